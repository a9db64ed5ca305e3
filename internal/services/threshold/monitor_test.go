package threshold

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"edgewatch/internal/domain/traffic"
	"edgewatch/internal/repository/state"
)

type fakeSource struct {
	mu     sync.Mutex
	counts map[int][]int64 // keyed by window hours, consumed in order
	errs   map[int]error
	calls  int
}

func (s *fakeSource) CountOriginServed(_ context.Context, hours int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := s.errs[hours]; err != nil {
		return 0, err
	}
	q := s.counts[hours]
	if len(q) == 0 {
		return 0, fmt.Errorf("%w: no scripted count for %dh", traffic.ErrUnavailable, hours)
	}
	v := q[0]
	if len(q) > 1 {
		s.counts[hours] = q[1:]
	}
	return v, nil
}

type fakeAlerts struct {
	mu    sync.Mutex
	texts []string
}

func (a *fakeAlerts) Broadcast(_ context.Context, _, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, text)
}

func (a *fakeAlerts) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.texts)
}

func newTestMonitor(t *testing.T, src *fakeSource) (*Monitor, *fakeAlerts, *state.MemoryStore) {
	t.Helper()
	alerts := &fakeAlerts{}
	store := state.NewMemoryStore()
	m := New(context.Background(), zap.NewNop(), src, alerts, store, Config{})
	return m, alerts, store
}

func TestSetThreshold(t *testing.T) {
	m, _, _ := newTestMonitor(t, &fakeSource{})

	require.True(t, m.SetThreshold(context.Background(), traffic.Window30m, 1000))
	require.False(t, m.SetThreshold(context.Background(), traffic.Window("2h"), 1000))

	require.True(t, m.SetThreshold(context.Background(), traffic.Window6h, -5))
	require.Equal(t, int64(0), m.Thresholds()[traffic.Window6h])
}

func TestCheckAll_DisabledReturnsEmpty(t *testing.T) {
	src := &fakeSource{counts: map[int][]int64{1: {100}}}
	m, alerts, _ := newTestMonitor(t, src)
	m.SetThreshold(context.Background(), traffic.Window30m, 1000)

	results, err := m.CheckAll(context.Background())
	require.NoError(t, err)
	require.Empty(t, results)
	require.Zero(t, alerts.count())
	require.Zero(t, src.calls)
}

func TestCheckAll_ZeroThresholdNeverFetched(t *testing.T) {
	src := &fakeSource{counts: map[int][]int64{1: {50}}}
	m, _, _ := newTestMonitor(t, src)
	m.Enable(context.Background())
	m.SetThreshold(context.Background(), traffic.Window30m, 100)

	results, err := m.CheckAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Contains(t, results, traffic.Window30m)

	// only the 30m window was configured, so only one fetch happened
	require.Equal(t, 1, src.calls)
}

func TestCheckAll_EdgeTriggered(t *testing.T) {
	// counts crossing the 1000 threshold: below, below, below, above.
	src := &fakeSource{counts: map[int][]int64{1: {1200, 800, 700, 1500}}}
	m, alerts, _ := newTestMonitor(t, src)
	m.Enable(context.Background())
	m.SetThreshold(context.Background(), traffic.Window30m, 1000)

	for i := 0; i < 4; i++ {
		_, err := m.CheckAll(context.Background())
		require.NoError(t, err)
	}

	// one alert on the drop below 1000, one recovery on the climb back
	require.Equal(t, 2, alerts.count())
	require.Contains(t, alerts.texts[0], "Below Threshold")
	require.Contains(t, alerts.texts[1], "Recovered")
}

func TestCheckAll_BoundaryCountEqualToThreshold(t *testing.T) {
	src := &fakeSource{counts: map[int][]int64{1: {1000}}}
	m, alerts, _ := newTestMonitor(t, src)
	m.Enable(context.Background())
	m.SetThreshold(context.Background(), traffic.Window30m, 1000)

	results, err := m.CheckAll(context.Background())
	require.NoError(t, err)
	require.False(t, results[traffic.Window30m].Below)
	require.Zero(t, alerts.count())
}

func TestCheckAll_UnavailableSkipsWithoutStateChange(t *testing.T) {
	src := &fakeSource{counts: map[int][]int64{1: {500}}}
	m, alerts, _ := newTestMonitor(t, src)
	m.Enable(context.Background())
	m.SetThreshold(context.Background(), traffic.Window30m, 1000)

	// first cycle drops into alerting
	_, err := m.CheckAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, alerts.count())

	// source goes dark: no recovery, no duplicate alert, window skipped
	src.mu.Lock()
	src.errs = map[int]error{1: fmt.Errorf("%w: upstream 500", traffic.ErrUnavailable)}
	src.mu.Unlock()

	results, err := m.CheckAll(context.Background())
	require.NoError(t, err)
	require.Empty(t, results)
	require.Equal(t, 1, alerts.count())
}

func TestWrongShapeStateDegradesToDefaults(t *testing.T) {
	store := state.NewMemoryStore()
	// valid JSON, wrong shape: enabled would decode before thresholds fails
	require.NoError(t, store.Save(context.Background(), state.KindOriginServed,
		map[string]any{"enabled": true, "thresholds": 123}))

	m := New(context.Background(), zap.NewNop(), &fakeSource{}, &fakeAlerts{}, store, Config{})
	require.False(t, m.Enabled())
	for w, min := range m.Thresholds() {
		require.Zero(t, min, string(w))
	}
}

func TestStateSurvivesRestart(t *testing.T) {
	src := &fakeSource{counts: map[int][]int64{1: {500}}}
	m, _, store := newTestMonitor(t, src)
	m.Enable(context.Background())
	m.SetThreshold(context.Background(), traffic.Window30m, 1000)
	_, err := m.CheckAll(context.Background())
	require.NoError(t, err)

	alerts2 := &fakeAlerts{}
	m2 := New(context.Background(), zap.NewNop(), src, alerts2, store, Config{})
	require.True(t, m2.Enabled())
	require.Equal(t, int64(1000), m2.Thresholds()[traffic.Window30m])

	// still below threshold after restart: alerting state carried over,
	// so no duplicate alert fires
	_, err = m2.CheckAll(context.Background())
	require.NoError(t, err)
	require.Zero(t, alerts2.count())
}
