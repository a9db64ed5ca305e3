package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	kafkax "edgewatch/internal/repository/kafka"
)

type fakeSender struct {
	mu      sync.Mutex
	sent    map[string][]string // recipient -> texts
	failFor map[string]bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: map[string][]string{}, failFor: map[string]bool{}}
}

func (s *fakeSender) Send(_ context.Context, recipient, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[recipient] {
		return errors.New("delivery refused")
	}
	s.sent[recipient] = append(s.sent[recipient], text)
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []kafkax.AlertEvent
}

func (e *fakeEvents) PublishAlert(_ context.Context, ev kafkax.AlertEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestFanout_BroadcastReachesChannelAndAdmins(t *testing.T) {
	sender := newFakeSender()
	f := NewFanout(zap.NewNop(), sender, nil, fixedClock{}, "-100", []string{"1", "2"})

	f.Broadcast(context.Background(), "origin-health", "down")

	require.Equal(t, []string{"down"}, sender.sent["-100"])
	require.Equal(t, []string{"down"}, sender.sent["1"])
	require.Equal(t, []string{"down"}, sender.sent["2"])
}

func TestFanout_NotifyDeduplicatesRecipient(t *testing.T) {
	sender := newFakeSender()
	f := NewFanout(zap.NewNop(), sender, nil, fixedClock{}, "-100", nil)

	// the owner is also the alert channel: one delivery, not two
	f.Notify(context.Background(), "origin-health", "-100", "down")
	require.Equal(t, []string{"down"}, sender.sent["-100"])
}

func TestFanout_FailedRecipientDoesNotBlockOthers(t *testing.T) {
	sender := newFakeSender()
	sender.failFor["-100"] = true
	f := NewFanout(zap.NewNop(), sender, nil, fixedClock{}, "-100", []string{"1"})

	f.Broadcast(context.Background(), "origin-health", "down")

	require.Empty(t, sender.sent["-100"])
	require.Equal(t, []string{"down"}, sender.sent["1"])
}

func TestFanout_MirrorsAlertEvents(t *testing.T) {
	sender := newFakeSender()
	events := &fakeEvents{}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := NewFanout(zap.NewNop(), sender, events, fixedClock{t: now}, "-100", nil)

	f.Broadcast(context.Background(), "status-incidents", "incident text")

	require.Len(t, events.events, 1)
	require.Equal(t, "status-incidents", events.events[0].Monitor)
	require.Equal(t, "incident text", events.events[0].Text)
	require.Equal(t, now, events.events[0].SentAt)
}

func TestFanout_SkipsEmptyRecipients(t *testing.T) {
	sender := newFakeSender()
	f := NewFanout(zap.NewNop(), sender, nil, fixedClock{}, "", []string{"", "1"})

	f.Broadcast(context.Background(), "origin-health", "down")
	require.Len(t, sender.sent, 1)
	require.Equal(t, []string{"down"}, sender.sent["1"])
}
