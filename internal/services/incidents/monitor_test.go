package incidents

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"edgewatch/internal/domain/incident"
	"edgewatch/internal/repository/state"
)

type fakeSource struct {
	mu      sync.Mutex
	current []incident.Incident
	err     error
}

func (s *fakeSource) Current(context.Context) ([]incident.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.err
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

func TestCheckForNew_Dedup(t *testing.T) {
	src := &fakeSource{current: []incident.Incident{
		{ID: "abc", Title: "Elevated error rates", Status: "investigating"},
		{ID: "def", Title: "Scheduled maintenance", Status: "scheduled"},
	}}
	alerts := &fakeAlerts{}
	store := state.NewMemoryStore()
	m := New(context.Background(), zap.NewNop(), src, alerts, store, Config{})

	n, err := m.CheckForNew(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, alerts.texts, 2)

	// same feed again: nothing new
	n, err = m.CheckForNew(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Len(t, alerts.texts, 2)

	// one new incident joins the feed
	src.mu.Lock()
	src.current = append(src.current, incident.Incident{ID: "ghi", Title: "API latency", Status: "identified"})
	src.mu.Unlock()

	n, err = m.CheckForNew(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Contains(t, alerts.texts[2], "API latency")
}

func TestCheckForNew_FeedErrorLeavesStateUntouched(t *testing.T) {
	src := &fakeSource{err: errors.New("status api down")}
	alerts := &fakeAlerts{}
	store := state.NewMemoryStore()
	m := New(context.Background(), zap.NewNop(), src, alerts, store, Config{})

	n, err := m.CheckForNew(context.Background())
	require.Error(t, err)
	require.Zero(t, n)
	require.Empty(t, alerts.texts)

	// feed recovers: the incident is still announced
	src.mu.Lock()
	src.err = nil
	src.current = []incident.Incident{{ID: "abc", Title: "Outage", Status: "investigating"}}
	src.mu.Unlock()

	n, err = m.CheckForNew(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestCheckForNew_EmptyIDSkipped(t *testing.T) {
	src := &fakeSource{current: []incident.Incident{{ID: "", Title: "no id"}}}
	m := New(context.Background(), zap.NewNop(), src, &fakeAlerts{}, state.NewMemoryStore(), Config{})

	n, err := m.CheckForNew(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSeenSetSurvivesRestart(t *testing.T) {
	src := &fakeSource{current: []incident.Incident{{ID: "abc", Title: "Outage", Status: "resolved"}}}
	store := state.NewMemoryStore()
	m := New(context.Background(), zap.NewNop(), src, &fakeAlerts{}, store, Config{})

	n, err := m.CheckForNew(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	alerts2 := &fakeAlerts{}
	m2 := New(context.Background(), zap.NewNop(), src, alerts2, store, Config{})
	n, err = m2.CheckForNew(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, alerts2.texts)
}

func TestStatusEmoji(t *testing.T) {
	require.Equal(t, "🔍", statusEmoji("investigating"))
	require.Equal(t, "✅", statusEmoji("resolved"))
	require.Equal(t, "⚠️", statusEmoji("unresolved"))
}
