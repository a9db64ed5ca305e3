// Package incidents announces new entries on the provider status feed.
// The seen-set is append-only: an incident id is announced at most once
// for the lifetime of the state, including across restarts.
package incidents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"edgewatch/internal/domain/incident"
	"edgewatch/internal/repository/state"
)

const monitorName = "status-incidents"

type Config struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Alerts is the slice of the fan-out this monitor uses.
type Alerts interface {
	Broadcast(ctx context.Context, monitor, text string)
}

var (
	mFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "incidents_feed_fetches_total", Help: "Status feed fetches, by result.",
	}, []string{"result"})
	mAnnounced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "incidents_announced_total", Help: "New incidents announced.",
	})
)

type Monitor struct {
	log    *zap.Logger
	source incident.Source
	alerts Alerts
	store  state.Store
	cfg    Config

	mu   sync.Mutex
	seen map[string]bool
}

func New(
	ctx context.Context,
	log *zap.Logger,
	source incident.Source,
	alerts Alerts,
	store state.Store,
	cfg Config,
) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}

	snap := incident.DefaultSnapshot()
	store.Load(ctx, state.KindStatusFeed, &snap)

	seen := make(map[string]bool, len(snap.SeenIncidentIDs))
	for _, id := range snap.SeenIncidentIDs {
		seen[id] = true
	}

	m := &Monitor{
		log:    log.With(zap.String("component", "monitor.incidents")),
		source: source,
		alerts: alerts,
		store:  store,
		cfg:    cfg,
		seen:   seen,
	}
	m.log.Info("incident monitor loaded", zap.Int("seen", len(seen)))
	return m
}

func (m *Monitor) Name() string { return monitorName }

func (m *Monitor) Interval() time.Duration { return m.cfg.Interval }

func (m *Monitor) Poll(ctx context.Context) error {
	_, err := m.CheckForNew(ctx)
	return err
}

// CheckForNew fetches the current feed, announces incidents not seen
// before, and returns how many were new. Feed errors leave the seen-set
// untouched.
func (m *Monitor) CheckForNew(ctx context.Context) (int, error) {
	current, err := m.source.Current(ctx)
	if err != nil {
		mFetches.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("fetch status feed: %w", err)
	}
	mFetches.WithLabelValues("ok").Inc()

	var fresh []incident.Incident
	m.mu.Lock()
	for _, in := range current {
		if in.ID == "" || m.seen[in.ID] {
			continue
		}
		m.seen[in.ID] = true
		fresh = append(fresh, in)
	}
	m.mu.Unlock()

	for _, in := range fresh {
		mAnnounced.Inc()
		m.alerts.Broadcast(ctx, monitorName, formatIncident(in))
		m.log.Info("new incident announced",
			zap.String("id", in.ID), zap.String("title", in.Title), zap.String("status", in.Status))
	}

	if len(fresh) > 0 {
		m.persist(ctx)
	}
	return len(fresh), nil
}

func statusEmoji(status string) string {
	switch status {
	case "investigating":
		return "🔍"
	case "identified":
		return "🔎"
	case "monitoring":
		return "👀"
	case "resolved":
		return "✅"
	case "scheduled", "in_progress":
		return "📅"
	default:
		return "⚠️"
	}
}

func formatIncident(in incident.Incident) string {
	msg := fmt.Sprintf("%s <b>Provider Status Incident</b>\n\n", statusEmoji(in.Status))
	msg += fmt.Sprintf("<b>Title:</b> %s\n", in.Title)
	if in.Status != "" {
		msg += fmt.Sprintf("<b>Status:</b> %s\n", in.Status)
	}
	if in.StartedAt != "" {
		msg += fmt.Sprintf("<b>Started:</b> %s\n", in.StartedAt)
	}
	if in.Body != "" {
		msg += fmt.Sprintf("\n%s\n", in.Body)
	}
	if in.URL != "" {
		msg += fmt.Sprintf("\n%s", in.URL)
	}
	return msg
}

func (m *Monitor) persist(ctx context.Context) {
	m.mu.Lock()
	snap := incident.Snapshot{SeenIncidentIDs: make([]string, 0, len(m.seen))}
	for id := range m.seen {
		snap.SeenIncidentIDs = append(snap.SeenIncidentIDs, id)
	}
	m.mu.Unlock()

	if err := m.store.Save(ctx, state.KindStatusFeed, snap); err != nil {
		m.log.Warn("state save failed, in-memory state stays authoritative", zap.Error(err))
	}
}
