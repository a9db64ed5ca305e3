// Package supervisor runs each monitor on its own goroutine. Monitors
// are isolated from each other: one slow, failing, or panicking monitor
// never delays or stops the others.
package supervisor

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"edgewatch/internal/obs"
)

// Monitor is one periodic background job. Interval is re-read after
// every poll, so a monitor may change its own cadence at runtime.
type Monitor interface {
	Name() string
	Interval() time.Duration
	Poll(ctx context.Context) error
}

var (
	mPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_polls_total", Help: "Poll cycles completed, per monitor.",
	}, []string{"monitor"})
	mPollErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_poll_errors_total", Help: "Poll cycles that returned an error.",
	}, []string{"monitor"})
	mPanics = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_panics_total", Help: "Poll cycles recovered from a panic.",
	}, []string{"monitor"})
	mPollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "monitor_poll_duration_seconds", Help: "Poll cycle duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"monitor"})
)

type Supervisor struct {
	log      *zap.Logger
	monitors []Monitor
}

func New(log *zap.Logger, monitors ...Monitor) *Supervisor {
	return &Supervisor{
		log:      log.With(zap.String("component", "supervisor")),
		monitors: monitors,
	}
}

// Run starts every monitor and blocks until the context is cancelled
// and all loops have returned.
func (s *Supervisor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, m := range s.monitors {
		wg.Add(1)
		go func(m Monitor) {
			defer wg.Done()
			s.loop(ctx, m)
		}(m)
	}
	s.log.Info("monitors started", zap.Int("count", len(s.monitors)))
	wg.Wait()
	s.log.Info("monitors stopped")
}

func (s *Supervisor) loop(ctx context.Context, m Monitor) {
	l := s.log.With(zap.String("monitor", m.Name()))
	timer := time.NewTimer(0) // first poll immediately
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		s.poll(ctx, m, l)

		// Re-read the interval: the monitor may have picked up new
		// work with a shorter cadence during the poll.
		timer.Reset(m.Interval())
	}
}

// poll runs one cycle behind a recover boundary so a panicking monitor
// only loses the cycle, not the process.
func (s *Supervisor) poll(ctx context.Context, m Monitor, l *zap.Logger) {
	ctx, span := otel.Tracer("supervisor").Start(ctx, "monitor.poll")
	span.SetAttributes(attribute.String("monitor", m.Name()))
	defer span.End()
	l = obs.WithTrace(ctx, l)

	start := time.Now()
	defer func() {
		mPollDuration.WithLabelValues(m.Name()).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			mPanics.WithLabelValues(m.Name()).Inc()
			span.SetStatus(codes.Error, "panic")
			l.Error("monitor panicked, cycle abandoned",
				zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
	}()

	mPolls.WithLabelValues(m.Name()).Inc()
	if err := m.Poll(ctx); err != nil {
		mPollErrors.WithLabelValues(m.Name()).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.Warn("poll failed", zap.Error(err))
	}
}
