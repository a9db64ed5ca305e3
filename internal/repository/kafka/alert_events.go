package kafka

import (
	"context"
	"time"
)

// AlertEvent mirrors every notification onto the alerts topic so other
// systems can consume them without talking to the messaging channel.
type AlertEvent struct {
	Monitor   string    `json:"monitor"`
	Recipient string    `json:"recipient"`
	Text      string    `json:"text"`
	SentAt    time.Time `json:"sent_at"`
}

type AlertEventsKafka struct {
	p *Producer
}

func NewAlertEventsKafka(p *Producer) *AlertEventsKafka { return &AlertEventsKafka{p: p} }

func (e *AlertEventsKafka) PublishAlert(ctx context.Context, ev AlertEvent) error {
	return e.p.PublishJSON(ctx, []byte(ev.Monitor), ev)
}
