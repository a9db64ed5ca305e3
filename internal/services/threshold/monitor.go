// Package threshold watches origin-served request volume per time window
// and alerts when it crosses a configured minimum. The per-window state
// machine is edge-triggered: a notification fires only when a window
// flips between Normal and Alerting, never on repeated polls in the same
// state.
package threshold

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"edgewatch/internal/domain/traffic"
	"edgewatch/internal/repository/state"
)

const monitorName = "origin-served"

type Config struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Alerts is the slice of the fan-out this monitor uses.
type Alerts interface {
	Broadcast(ctx context.Context, monitor, text string)
}

var (
	mChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threshold_window_checks_total", Help: "Window evaluations, by result.",
	}, []string{"result"})
	mTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threshold_transitions_total", Help: "Normal/Alerting edges, by direction.",
	}, []string{"direction"})
)

type Monitor struct {
	log    *zap.Logger
	source traffic.MetricsSource
	alerts Alerts
	store  state.Store
	cfg    Config

	mu         sync.Mutex
	enabled    bool
	thresholds map[traffic.Window]int64
	alertState map[traffic.Window]bool
}

func New(
	ctx context.Context,
	log *zap.Logger,
	source traffic.MetricsSource,
	alerts Alerts,
	store state.Store,
	cfg Config,
) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}

	snap := traffic.DefaultSnapshot()
	store.Load(ctx, state.KindOriginServed, &snap)
	if snap.Thresholds == nil {
		snap.Thresholds = map[traffic.Window]int64{}
	}
	if snap.AlertState == nil {
		snap.AlertState = map[traffic.Window]bool{}
	}

	m := &Monitor{
		log:        log.With(zap.String("component", "monitor.threshold")),
		source:     source,
		alerts:     alerts,
		store:      store,
		cfg:        cfg,
		enabled:    snap.Enabled,
		thresholds: snap.Thresholds,
		alertState: snap.AlertState,
	}
	m.log.Info("threshold monitor loaded", zap.Bool("enabled", m.enabled))
	return m
}

func (m *Monitor) Name() string { return monitorName }

func (m *Monitor) Interval() time.Duration { return m.cfg.Interval }

// SetThreshold configures a window's minimum expected count. Returns
// false on an unrecognized window; negative input clamps to 0, which
// disables the window entirely.
func (m *Monitor) SetThreshold(ctx context.Context, w traffic.Window, min int64) bool {
	if !w.Valid() {
		return false
	}
	if min < 0 {
		min = 0
	}

	m.mu.Lock()
	m.thresholds[w] = min
	if min == 0 {
		m.alertState[w] = false
	}
	m.mu.Unlock()

	m.persist(ctx)
	m.log.Info("threshold set", zap.String("window", string(w)), zap.Int64("min", min))
	return true
}

// Thresholds returns a copy of the configured minimums.
func (m *Monitor) Thresholds() map[traffic.Window]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[traffic.Window]int64, len(m.thresholds))
	for w, v := range m.thresholds {
		out[w] = v
	}
	return out
}

func (m *Monitor) Enable(ctx context.Context) {
	m.mu.Lock()
	m.enabled = true
	m.mu.Unlock()
	m.persist(ctx)
	m.log.Info("threshold alerts enabled")
}

func (m *Monitor) Disable(ctx context.Context) {
	m.mu.Lock()
	m.enabled = false
	m.mu.Unlock()
	m.persist(ctx)
	m.log.Info("threshold alerts disabled")
}

func (m *Monitor) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

func (m *Monitor) Poll(ctx context.Context) error {
	_, err := m.CheckAll(ctx)
	return err
}

// CheckAll evaluates every configured window and returns the results.
// The map is empty when the monitor is disabled or no window has a
// threshold. A window whose count is unavailable is skipped for the
// cycle with no state change.
func (m *Monitor) CheckAll(ctx context.Context) (map[traffic.Window]traffic.Result, error) {
	results := map[traffic.Window]traffic.Result{}
	if !m.Enabled() {
		return results, nil
	}

	changed := false
	for _, w := range traffic.Windows() {
		m.mu.Lock()
		min := m.thresholds[w]
		wasAlerting := m.alertState[w]
		m.mu.Unlock()

		if min <= 0 {
			continue
		}

		count, err := m.source.CountOriginServed(ctx, w.Hours())
		if err != nil {
			if errors.Is(err, traffic.ErrUnavailable) {
				mChecks.WithLabelValues("unavailable").Inc()
				m.log.Warn("count unavailable, skipping window",
					zap.String("window", string(w)), zap.Error(err))
				continue
			}
			return results, fmt.Errorf("count window %s: %w", w, err)
		}

		below := count < min
		results[w] = traffic.Result{Count: count, Threshold: min, Below: below}
		mChecks.WithLabelValues("ok").Inc()

		switch {
		case below && !wasAlerting:
			m.setAlertState(w, true)
			changed = true
			mTransitions.WithLabelValues("alert").Inc()
			m.alerts.Broadcast(ctx, monitorName, formatAlert(w, count, min))
			m.log.Info("window dropped below threshold",
				zap.String("window", string(w)), zap.Int64("count", count), zap.Int64("min", min))
		case !below && wasAlerting:
			m.setAlertState(w, false)
			changed = true
			mTransitions.WithLabelValues("recover").Inc()
			m.alerts.Broadcast(ctx, monitorName, formatRecovery(w, count, min))
			m.log.Info("window recovered",
				zap.String("window", string(w)), zap.Int64("count", count), zap.Int64("min", min))
		}
	}

	if changed {
		m.persist(ctx)
	}
	return results, nil
}

func (m *Monitor) setAlertState(w traffic.Window, alerting bool) {
	m.mu.Lock()
	m.alertState[w] = alerting
	m.mu.Unlock()
}

func formatAlert(w traffic.Window, count, min int64) string {
	msg := "⚠️ <b>Origin Served Requests Alert</b>\n\n"
	msg += fmt.Sprintf("<b>Period:</b> Last %s\n", w.Human())
	msg += fmt.Sprintf("<b>Requests Served by Origin:</b> <code>%d</code>\n", count)
	msg += fmt.Sprintf("<b>Threshold:</b> <code>%d</code>\n", min)
	msg += "<b>Status:</b> ❌ <b>Below Threshold</b>\n\n"
	msg += "<i>Origin requests are lower than expected: high cache hit rate, reduced traffic, or a potential origin issue.</i>"
	return msg
}

func formatRecovery(w traffic.Window, count, min int64) string {
	msg := "✅ <b>Origin Served Requests Recovered</b>\n\n"
	msg += fmt.Sprintf("<b>Period:</b> Last %s\n", w.Human())
	msg += fmt.Sprintf("<b>Requests Served by Origin:</b> <code>%d</code>\n", count)
	msg += fmt.Sprintf("<b>Threshold:</b> <code>%d</code>\n", min)
	msg += "<b>Status:</b> ✅ <b>Above Threshold</b>"
	return msg
}

func (m *Monitor) persist(ctx context.Context) {
	m.mu.Lock()
	snap := traffic.Snapshot{
		Enabled:    m.enabled,
		Thresholds: make(map[traffic.Window]int64, len(m.thresholds)),
		AlertState: make(map[traffic.Window]bool, len(m.alertState)),
	}
	for w, v := range m.thresholds {
		snap.Thresholds[w] = v
	}
	for w, v := range m.alertState {
		snap.AlertState[w] = v
	}
	m.mu.Unlock()

	if err := m.store.Save(ctx, state.KindOriginServed, snap); err != nil {
		m.log.Warn("state save failed, in-memory state stays authoritative", zap.Error(err))
	}
}
