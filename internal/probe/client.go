package probe

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"edgewatch/internal/domain/origin"
)

type Config struct {
	UserAgent string        `mapstructure:"user_agent"`
	VerifyTLS bool          `mapstructure:"verify_tls"`
	Timeout   time.Duration `mapstructure:"timeout"` // fallback when a probe has none
}

var _ origin.Prober = (*Client)(nil)

// Client probes origins over HTTP. The per-probe timeout is enforced via
// the request context so a hung endpoint cannot stall a monitor loop.
type Client struct {
	c   *http.Client
	cfg Config
}

func New(cfg Config) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !cfg.VerifyTLS,
			MinVersion:         tls.VersionTLS12,
		},
	}
	client := &http.Client{Transport: otelhttp.NewTransport(transport)}
	return &Client{c: client, cfg: cfg}
}

func (cl *Client) Probe(ctx context.Context, url string, timeout time.Duration) origin.ProbeResult {
	if timeout <= 0 {
		timeout = cl.cfg.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return origin.ProbeResult{Latency: time.Since(start), ErrText: err.Error()}
	}
	if cl.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cl.cfg.UserAgent)
	}

	resp, err := cl.c.Do(req)
	if err != nil {
		return origin.ProbeResult{Latency: time.Since(start), ErrText: errText(err)}
	}
	defer resp.Body.Close()

	return origin.ProbeResult{
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}
}

// errText keeps transport errors short enough for a notification line.
func errText(err error) string {
	s := err.Error()
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
