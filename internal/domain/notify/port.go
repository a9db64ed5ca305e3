package notify

import (
	"context"
	"time"
)

// Notifier delivers one message to one recipient, best effort. A failed
// send is reported as an error and logged by the caller; it must never
// abort a wider fan-out.
type Notifier interface {
	Send(ctx context.Context, recipient, text string) error
}

type Clock interface {
	Now() time.Time
}
