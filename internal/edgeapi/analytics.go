// Package edgeapi is the read-only analytics client for the edge
// provider's management API. Only the queries the monitors consume live
// here; command-style API calls belong to the excluded bot layer.
package edgeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"edgewatch/internal/domain/traffic"
)

type Config struct {
	Endpoint string        `mapstructure:"endpoint"`
	Token    string        `mapstructure:"token"`
	ZoneID   string        `mapstructure:"zone_id"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

var _ traffic.MetricsSource = (*AnalyticsClient)(nil)

// AnalyticsClient answers window queries against the provider's GraphQL
// analytics endpoint. Every failure mode maps to traffic.ErrUnavailable;
// the caller skips the window for the cycle.
type AnalyticsClient struct {
	client   *http.Client
	endpoint string
	token    string
	zoneID   string
	log      *zap.Logger
}

func NewAnalyticsClient(cfg Config, log *zap.Logger) *AnalyticsClient {
	return &AnalyticsClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		zoneID:   cfg.ZoneID,
		log:      log.With(zap.String("component", "edgeapi.analytics")),
	}
}

const cacheStatusQuery = `
query CacheStatusSplit($zoneTag: String!, $start: Time!, $end: Time!) {
  viewer {
    zones(filter: { zoneTag: $zoneTag }) {
      httpRequestsAdaptiveGroups(
        limit: 1000
        filter: { datetime_geq: $start, datetime_leq: $end }
      ) {
        count
        dimensions { cacheStatus }
      }
    }
  }
}`

// CountOriginServed sums requests whose cache status is anything but HIT
// over the last N hours: misses, bypasses, and dynamic content all reach
// the origin.
func (c *AnalyticsClient) CountOriginServed(ctx context.Context, hours int) (int64, error) {
	if hours < 1 {
		hours = 1
	}
	now := time.Now().UTC()
	variables := map[string]any{
		"zoneTag": c.zoneID,
		"start":   now.Add(-time.Duration(hours) * time.Hour).Format(time.RFC3339),
		"end":     now.Format(time.RFC3339),
	}

	var resp struct {
		Viewer struct {
			Zones []struct {
				Groups []struct {
					Count      int64 `json:"count"`
					Dimensions struct {
						CacheStatus string `json:"cacheStatus"`
					} `json:"dimensions"`
				} `json:"httpRequestsAdaptiveGroups"`
			} `json:"zones"`
		} `json:"viewer"`
	}

	if err := c.doGraphQL(ctx, cacheStatusQuery, variables, &resp); err != nil {
		c.log.Warn("cache status query failed", zap.Int("hours", hours), zap.Error(err))
		return 0, fmt.Errorf("%w: %w", traffic.ErrUnavailable, err)
	}
	if len(resp.Viewer.Zones) == 0 {
		return 0, fmt.Errorf("%w: no zones in response", traffic.ErrUnavailable)
	}

	var served int64
	for _, g := range resp.Viewer.Zones[0].Groups {
		status := strings.ToUpper(strings.TrimSpace(g.Dimensions.CacheStatus))
		if status != "" && status != "HIT" {
			served += g.Count
		}
	}
	return served, nil
}

func (c *AnalyticsClient) doGraphQL(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables,omitempty"`
	}{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("graphql request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("graphql status %s", resp.Status)
	}

	var raw struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return fmt.Errorf("decode graphql response: %w", err)
	}
	if len(raw.Errors) > 0 {
		msg := strings.TrimSpace(raw.Errors[0].Message)
		if msg == "" {
			msg = "unknown error"
		}
		return fmt.Errorf("graphql error: %s", msg)
	}
	if len(raw.Data) == 0 {
		return fmt.Errorf("graphql returned empty data")
	}
	if err := json.Unmarshal(raw.Data, out); err != nil {
		return fmt.Errorf("decode graphql data: %w", err)
	}
	return nil
}
