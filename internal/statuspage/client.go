// Package statuspage fetches the provider's public incident feed. The
// structured JSON API is the primary source; when it yields nothing the
// client falls back to scraping the status page itself. An empty API
// result can mean "no incidents" or "feed degraded" — the two are not
// distinguishable upstream, so empty always triggers the fallback.
package statuspage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"edgewatch/internal/domain/incident"
)

type Config struct {
	APIURL  string        `mapstructure:"api_url"`
	PageURL string        `mapstructure:"page_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

var _ incident.Source = (*Client)(nil)

type Client struct {
	client  *http.Client
	apiURL  string
	pageURL string
	log     *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	return &Client{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		apiURL:  cfg.APIURL,
		pageURL: cfg.PageURL,
		log:     log.With(zap.String("component", "statuspage")),
	}
}

func (c *Client) Current(ctx context.Context) ([]incident.Incident, error) {
	incidents, err := c.fromAPI(ctx)
	if err != nil {
		c.log.Warn("incident api fetch failed, falling back to page scrape", zap.Error(err))
	}
	if len(incidents) > 0 {
		return incidents, nil
	}
	return c.fromPage(ctx)
}

// fromAPI reads the statuspage v2 incidents document.
func (c *Client) fromAPI(ctx context.Context) ([]incident.Incident, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build incidents request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch incidents: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("incidents api status %s", resp.Status)
	}

	var doc struct {
		Incidents []struct {
			ID              string `json:"id"`
			Name            string `json:"name"`
			Status          string `json:"status"`
			CreatedAt       string `json:"created_at"`
			UpdatedAt       string `json:"updated_at"`
			Shortlink       string `json:"shortlink"`
			IncidentUpdates []struct {
				Body string `json:"body"`
			} `json:"incident_updates"`
		} `json:"incidents"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode incidents: %w", err)
	}

	out := make([]incident.Incident, 0, len(doc.Incidents))
	for _, in := range doc.Incidents {
		body := ""
		if len(in.IncidentUpdates) > 0 {
			body = truncate(in.IncidentUpdates[0].Body, 500)
		}
		url := in.Shortlink
		if url == "" {
			url = strings.TrimRight(c.pageURL, "/") + "/incidents/" + in.ID
		}
		out = append(out, incident.Incident{
			ID:        in.ID,
			Title:     in.Name,
			Status:    in.Status,
			StartedAt: in.CreatedAt,
			UpdatedAt: in.UpdatedAt,
			Body:      body,
			URL:       url,
		})
	}
	return out, nil
}

var (
	incidentBlockRe = regexp.MustCompile(`(?is)<div[^>]*class="[^"]*unresolved-incident[^"]*"[^>]*>(.*?)</div>\s*</div>`)
	incidentTitleRe = regexp.MustCompile(`(?is)<a[^>]*class="[^"]*incident-title[^"]*"[^>]*>(.*?)</a>`)
	incidentDateRe  = regexp.MustCompile(`(?is)<(?:time|span)[^>]*class="[^"]*(?:date|time)[^"]*"[^>]*>(.*?)</(?:time|span)>`)
	tagRe           = regexp.MustCompile(`<[^>]+>`)
)

// fromPage is the unstructured fallback: pull open incident blocks out
// of the status page HTML. Ids are synthesized from title and date, so a
// retitled incident re-alerts; that matches the identifier contract.
func (c *Client) fromPage(ctx context.Context) ([]incident.Incident, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build page request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch status page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status page status %s", resp.Status)
	}

	const maxPage = 4 << 20
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPage))
	if err != nil {
		return nil, fmt.Errorf("read status page: %w", err)
	}
	html := string(raw)

	var out []incident.Incident
	for _, block := range incidentBlockRe.FindAllStringSubmatch(html, -1) {
		title := extractText(incidentTitleRe, block[1])
		if title == "" {
			continue
		}
		date := extractText(incidentDateRe, block[1])
		out = append(out, incident.Incident{
			ID:        title + "_" + date,
			Title:     title,
			Status:    "unresolved",
			StartedAt: date,
			Body:      truncate(stripTags(block[1]), 500),
			URL:       c.pageURL,
		})
	}
	return out, nil
}

func extractText(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(stripTags(m[1]))
}

func stripTags(s string) string {
	return strings.Join(strings.Fields(tagRe.ReplaceAllString(s, " ")), " ")
}

// truncate cuts s to at most n bytes without splitting a rune or
// leaving a half-open tag; the text feeds HTML-mode notifications.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	cut := s[:n]
	if open := strings.LastIndexByte(cut, '<'); open > strings.LastIndexByte(cut, '>') {
		cut = cut[:open]
	}
	return cut
}
