package traffic

import (
	"context"
	"errors"
)

// ErrUnavailable marks a metrics query that degraded (transport failure,
// remote error, empty payload). The affected window is skipped for the
// cycle without a state change.
var ErrUnavailable = errors.New("metrics source unavailable")

// MetricsSource answers how many requests were served by the origin
// (cache misses) over the last N hours.
type MetricsSource interface {
	CountOriginServed(ctx context.Context, hours int) (int64, error)
}
