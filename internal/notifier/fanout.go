package notifier

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"edgewatch/internal/domain/notify"
	"edgewatch/internal/obs/retry"
	kafkax "edgewatch/internal/repository/kafka"
)

// AlertEvents is the optional mirror of every delivered message onto the
// alerts topic.
type AlertEvents interface {
	PublishAlert(ctx context.Context, ev kafkax.AlertEvent) error
}

var (
	notifySent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_sent_total", Help: "Notifications delivered, per monitor.",
	}, []string{"monitor"})
	notifyFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_failed_total", Help: "Notification deliveries that exhausted retries.",
	}, []string{"monitor"})
)

// Fanout routes one alert to its recipients: the shared alert channel
// plus any per-alert recipients. Each delivery is independent — a failed
// recipient is logged and skipped, never aborting the rest. Safe for
// concurrent use by multiple monitors.
type Fanout struct {
	log    *zap.Logger
	sender notify.Notifier
	events AlertEvents // nil when the alerts topic is disabled
	clock  notify.Clock

	alertChannel string
	admins       []string
	policy       retry.Policy
	pubPolicy    retry.Policy
}

func NewFanout(
	log *zap.Logger,
	sender notify.Notifier,
	events AlertEvents,
	clock notify.Clock,
	alertChannel string,
	admins []string,
) *Fanout {
	l := log.With(zap.String("component", "notifier.fanout"))
	return &Fanout{
		log:          l,
		sender:       sender,
		events:       events,
		clock:        clock,
		alertChannel: alertChannel,
		admins:       admins,
		policy:       retry.DefaultNotifyPolicy(l),
		pubPolicy:    retry.DefaultPublishPolicy(l),
	}
}

// Broadcast sends to the alert channel and every admin.
func (f *Fanout) Broadcast(ctx context.Context, monitor, text string) {
	f.deliver(ctx, monitor, text, f.admins...)
}

// Notify sends to the alert channel and one extra recipient (the user
// who owns the alerting resource).
func (f *Fanout) Notify(ctx context.Context, monitor, recipient, text string) {
	f.deliver(ctx, monitor, text, recipient)
}

func (f *Fanout) deliver(ctx context.Context, monitor, text string, extra ...string) {
	seen := map[string]bool{}
	recipients := make([]string, 0, len(extra)+1)
	if f.alertChannel != "" {
		recipients = append(recipients, f.alertChannel)
		seen[f.alertChannel] = true
	}
	for _, r := range extra {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		recipients = append(recipients, r)
	}

	for _, r := range recipients {
		err := retry.Do(ctx, func() error {
			return f.sender.Send(ctx, r, text)
		}, f.policy)
		if err != nil {
			notifyFailed.WithLabelValues(monitor).Inc()
			f.log.Error("notification delivery failed",
				zap.String("monitor", monitor), zap.String("recipient", r), zap.Error(err))
			continue
		}
		notifySent.WithLabelValues(monitor).Inc()
	}

	if f.events != nil {
		ev := kafkax.AlertEvent{
			Monitor: monitor,
			Text:    text,
			SentAt:  f.clock.Now().UTC(),
		}
		err := retry.Do(ctx, func() error {
			return f.events.PublishAlert(ctx, ev)
		}, f.pubPolicy)
		if err != nil {
			f.log.Warn("alert event publish failed",
				zap.String("monitor", monitor), zap.Error(err))
		}
	}
}
