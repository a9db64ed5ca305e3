package origin

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Origin is one upstream HTTP endpoint under health watch.
type Origin struct {
	URL                 string    `json:"url"`
	Owner               string    `json:"owner"`
	Interval            int       `json:"interval"` // seconds
	Timeout             int       `json:"timeout"`  // seconds
	Enabled             bool      `json:"enabled"`
	LastCheck           time.Time `json:"last_check"`
	LastStatus          string    `json:"last_status"` // numeric code or error tag
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalChecks         int64     `json:"total_checks"`
	SuccessfulChecks    int64     `json:"successful_checks"`
}

// ProbeResult is the raw outcome of a single HTTP probe.
// StatusCode is 0 when no HTTP response was received; ErrText carries
// the transport error in that case.
type ProbeResult struct {
	StatusCode int
	Latency    time.Duration
	ErrText    string
}

// Snapshot is the persisted state of the health monitor, keyed by
// normalized URL.
type Snapshot struct {
	Origins map[string]*Origin `json:"origins"`
}

func DefaultSnapshot() Snapshot {
	return Snapshot{Origins: map[string]*Origin{}}
}

// Normalize brings a user-supplied URL to canonical scheme+host[+path]
// form. The scheme defaults to https; path case is preserved.
func Normalize(raw string) (string, error) {
	t := strings.TrimSpace(raw)
	if t == "" {
		return "", fmt.Errorf("empty url")
	}
	if !strings.HasPrefix(t, "http://") && !strings.HasPrefix(t, "https://") {
		t = "https://" + t
	}
	u, err := url.Parse(t)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	n := u.Scheme + "://" + strings.ToLower(u.Host) + u.Path
	if u.RawQuery != "" {
		n += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		n += "#" + u.Fragment
	}
	return n, nil
}
