package origin

import (
	"context"
	"time"
)

// Prober performs one HTTP probe against a URL with a per-probe timeout.
type Prober interface {
	Probe(ctx context.Context, url string, timeout time.Duration) ProbeResult
}
