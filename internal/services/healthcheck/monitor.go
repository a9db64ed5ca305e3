// Package healthcheck probes tracked origins and alerts on critical
// failures. Only transport errors and 5xx responses count toward
// alerting; 4xx responses are a client problem, logged and ignored.
package healthcheck

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"edgewatch/internal/domain/notify"
	"edgewatch/internal/domain/origin"
	"edgewatch/internal/repository/state"
)

const monitorName = "origin-health"

type Config struct {
	DefaultInterval time.Duration `mapstructure:"default_interval"`
	DefaultTimeout  time.Duration `mapstructure:"default_timeout"`
	PollCeiling     time.Duration `mapstructure:"poll_ceiling"`
	// RemindEvery repeats the alert on every Nth consecutive failure
	// after the first. Product policy, not an algorithmic necessity.
	RemindEvery int `mapstructure:"remind_every"`
}

// Alerts is the slice of the fan-out this monitor uses.
type Alerts interface {
	Notify(ctx context.Context, monitor, recipient, text string)
}

var (
	mProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthcheck_probes_total", Help: "Probes attempted, by outcome.",
	}, []string{"outcome"})
	mAlerts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "healthcheck_alerts_total", Help: "Critical-failure alerts emitted.",
	})
	mLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "healthcheck_probe_latency_seconds", Help: "Probe latency.",
		Buckets: prometheus.DefBuckets,
	})
)

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeClientError
	outcomeCritical
)

func (o outcome) String() string {
	switch o {
	case outcomeSuccess:
		return "success"
	case outcomeClientError:
		return "client_error"
	default:
		return "critical"
	}
}

// Monitor owns the tracked-origin set. The mutex covers the set because
// administrative AddOrigin/RemoveOrigin calls may race the poll loop;
// probes themselves run outside the lock.
type Monitor struct {
	log    *zap.Logger
	prober origin.Prober
	alerts Alerts
	store  state.Store
	clock  notify.Clock
	cfg    Config

	mu      sync.Mutex
	origins map[string]*origin.Origin
}

func New(
	ctx context.Context,
	log *zap.Logger,
	prober origin.Prober,
	alerts Alerts,
	store state.Store,
	clock notify.Clock,
	cfg Config,
) *Monitor {
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = time.Minute
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 10 * time.Second
	}
	if cfg.PollCeiling <= 0 {
		cfg.PollCeiling = 30 * time.Second
	}
	if cfg.RemindEvery <= 0 {
		cfg.RemindEvery = 5
	}

	snap := origin.DefaultSnapshot()
	store.Load(ctx, state.KindOriginHealth, &snap)
	if snap.Origins == nil {
		snap.Origins = map[string]*origin.Origin{}
	}

	m := &Monitor{
		log:     log.With(zap.String("component", "monitor.healthcheck")),
		prober:  prober,
		alerts:  alerts,
		store:   store,
		clock:   clock,
		cfg:     cfg,
		origins: snap.Origins,
	}
	m.log.Info("health monitor loaded", zap.Int("origins", len(m.origins)))
	return m
}

func (m *Monitor) Name() string { return monitorName }

// Interval is the loop cadence: the minimum of the tracked origins'
// intervals, capped by the poll ceiling so newly added short-interval
// origins are serviced promptly.
func (m *Monitor) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	min := m.cfg.DefaultInterval
	for _, o := range m.origins {
		if !o.Enabled {
			continue
		}
		if d := time.Duration(o.Interval) * time.Second; d > 0 && d < min {
			min = d
		}
	}
	if min > m.cfg.PollCeiling {
		min = m.cfg.PollCeiling
	}
	return min
}

// AddOrigin starts tracking a URL. Returns false when the URL cannot be
// normalized to scheme+host[+path].
func (m *Monitor) AddOrigin(ctx context.Context, rawURL, owner string, interval, timeout time.Duration) bool {
	normalized, err := origin.Normalize(rawURL)
	if err != nil {
		m.log.Warn("rejecting origin", zap.String("url", rawURL), zap.Error(err))
		return false
	}
	if interval <= 0 {
		interval = m.cfg.DefaultInterval
	}
	if timeout <= 0 {
		timeout = m.cfg.DefaultTimeout
	}

	m.mu.Lock()
	m.origins[normalized] = &origin.Origin{
		URL:      normalized,
		Owner:    owner,
		Interval: int(interval / time.Second),
		Timeout:  int(timeout / time.Second),
		Enabled:  true,
	}
	m.mu.Unlock()

	m.persist(ctx)
	m.log.Info("origin added", zap.String("url", normalized), zap.String("owner", owner))
	return true
}

// RemoveOrigin stops tracking a URL. Returns false when it was not
// tracked.
func (m *Monitor) RemoveOrigin(ctx context.Context, rawURL string) bool {
	normalized, err := origin.Normalize(rawURL)
	if err != nil {
		return false
	}

	m.mu.Lock()
	_, ok := m.origins[normalized]
	if ok {
		delete(m.origins, normalized)
	}
	m.mu.Unlock()

	if ok {
		m.persist(ctx)
		m.log.Info("origin removed", zap.String("url", normalized))
	}
	return ok
}

// Origins returns a copy of the tracked set for status reporting.
func (m *Monitor) Origins() []origin.Origin {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]origin.Origin, 0, len(m.origins))
	for _, o := range m.origins {
		out = append(out, *o)
	}
	return out
}

// Poll probes every enabled origin whose interval has elapsed.
func (m *Monitor) Poll(ctx context.Context) error {
	now := m.clock.Now()

	m.mu.Lock()
	due := make([]*origin.Origin, 0, len(m.origins))
	for _, o := range m.origins {
		if !o.Enabled {
			continue
		}
		interval := time.Duration(o.Interval) * time.Second
		if interval <= 0 {
			interval = m.cfg.DefaultInterval
		}
		if o.LastCheck.IsZero() || now.Sub(o.LastCheck) >= interval {
			due = append(due, o)
		}
	}
	urls := make([]string, len(due))
	timeouts := make([]time.Duration, len(due))
	for i, o := range due {
		urls[i] = o.URL
		timeouts[i] = time.Duration(o.Timeout) * time.Second
	}
	m.mu.Unlock()

	changed := false
	for i, url := range urls {
		if ctx.Err() != nil {
			break
		}
		res := m.prober.Probe(ctx, url, timeouts[i])
		mLatency.Observe(res.Latency.Seconds())
		if m.apply(ctx, url, res) {
			changed = true
		}
	}

	if changed {
		m.persist(ctx)
	}
	return nil
}

// apply records one probe result and emits an alert when the throttle
// allows. Returns whether any origin state changed.
func (m *Monitor) apply(ctx context.Context, url string, res origin.ProbeResult) bool {
	out := classify(res)
	mProbes.WithLabelValues(out.String()).Inc()

	m.mu.Lock()
	o, ok := m.origins[url]
	if !ok {
		// Removed while the probe was in flight.
		m.mu.Unlock()
		return false
	}

	o.LastCheck = m.clock.Now()
	o.TotalChecks++
	if res.ErrText != "" {
		o.LastStatus = "error: " + res.ErrText
	} else {
		o.LastStatus = strconv.Itoa(res.StatusCode)
	}

	switch out {
	case outcomeSuccess:
		o.ConsecutiveFailures = 0
		o.SuccessfulChecks++
	case outcomeClientError:
		o.ConsecutiveFailures = 0
		m.log.Debug("client error, not critical",
			zap.String("url", url), zap.Int("status", res.StatusCode))
	case outcomeCritical:
		o.ConsecutiveFailures++
	}

	snapshot := *o
	m.mu.Unlock()

	if out == outcomeCritical && shouldAlert(snapshot.ConsecutiveFailures, m.cfg.RemindEvery) {
		mAlerts.Inc()
		m.alerts.Notify(ctx, monitorName, snapshot.Owner, formatAlert(snapshot, res))
	}
	return true
}

func classify(res origin.ProbeResult) outcome {
	if res.ErrText != "" {
		return outcomeCritical
	}
	switch {
	case res.StatusCode >= 200 && res.StatusCode < 400:
		return outcomeSuccess
	case res.StatusCode >= 400 && res.StatusCode < 500:
		return outcomeClientError
	default:
		return outcomeCritical
	}
}

// shouldAlert bounds notification volume during a sustained outage:
// first failure, then every Nth.
func shouldAlert(consecutive, remindEvery int) bool {
	if consecutive <= 0 {
		return false
	}
	return consecutive == 1 || consecutive%remindEvery == 0
}

func formatAlert(o origin.Origin, res origin.ProbeResult) string {
	msg := "🚨 <b>Origin Health Alert</b>\n\n"
	msg += fmt.Sprintf("<b>URL:</b> <code>%s</code>\n", o.URL)
	if res.StatusCode != 0 {
		msg += fmt.Sprintf("<b>Status Code:</b> <code>%d</code>\n", res.StatusCode)
	}
	if res.Latency > 0 {
		msg += fmt.Sprintf("<b>Response Time:</b> %.2fs\n", res.Latency.Seconds())
	}
	if res.ErrText != "" {
		msg += fmt.Sprintf("<b>Error:</b> <code>%s</code>\n", res.ErrText)
	}
	msg += fmt.Sprintf("<b>Consecutive Failures:</b> %d\n", o.ConsecutiveFailures)
	if o.TotalChecks > 0 {
		rate := float64(o.SuccessfulChecks) / float64(o.TotalChecks) * 100
		msg += fmt.Sprintf("<b>Success Rate:</b> %.1f%% (%d/%d)\n",
			rate, o.SuccessfulChecks, o.TotalChecks)
	}
	return msg
}

func (m *Monitor) persist(ctx context.Context) {
	m.mu.Lock()
	snap := origin.Snapshot{Origins: make(map[string]*origin.Origin, len(m.origins))}
	for k, v := range m.origins {
		cp := *v
		snap.Origins[k] = &cp
	}
	m.mu.Unlock()

	if err := m.store.Save(ctx, state.KindOriginHealth, snap); err != nil {
		m.log.Warn("state save failed, in-memory state stays authoritative", zap.Error(err))
	}
}
