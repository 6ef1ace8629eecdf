// Package alertsapi is a client for the external news/alerts feed the
// Token Watcher polls alongside the price feed. Grounded on the same
// exchange-client HTTP composition as internal/priceapi.
package alertsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/svyatogor45/marketmonitor/internal/errs"
	"github.com/svyatogor45/marketmonitor/pkg/ratelimit"
	"github.com/svyatogor45/marketmonitor/pkg/retry"
)

// Alert is one item returned by the feed.
type Alert struct {
	Text     string `json:"text"`
	Level    string `json:"level,omitempty"`
	Type     string `json:"type,omitempty"`
	Source   string `json:"source,omitempty"`
	PostLink string `json:"post_link,omitempty"`
}

type alertsResponse struct {
	Alerts []Alert `json:"alerts"`
}

// Client wraps the alerts feed's query endpoint.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *ratelimit.RateLimiter
}

func New(baseURL, apiKey string, limiter *ratelimit.RateLimiter) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: limiter,
	}
}

// FetchAlerts queries the feed for alerts at the given level mentioning
// any of the watched crypto targets.
func (c *Client) FetchAlerts(ctx context.Context, level string, watching []string) ([]Alert, error) {
	if len(watching) == 0 {
		return nil, nil
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	query := url.Values{}
	query.Set("level", level)
	query.Set("crypto", strings.Join(watching, ","))
	if c.apiKey != "" {
		query.Set("api_key", c.apiKey)
	}
	reqURL := c.baseURL + "/alerts?" + query.Encode()

	var parsed alertsResponse
	err := retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return errs.Wrap(errs.InvalidPayload, err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return errs.Wrap(errs.TransientNetwork, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return errs.Wrap(errs.TransientNetwork, err)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return errs.Wrap(errs.RateLimitExceeded, fmt.Errorf("alerts api: %s", resp.Status))
		}
		if resp.StatusCode != http.StatusOK {
			return errs.Wrap(errs.TransientNetwork, fmt.Errorf("alerts api: unexpected status %s", resp.Status))
		}
		return json.Unmarshal(body, &parsed)
	}, retry.NetworkConfig())
	if err != nil {
		return nil, err
	}
	return parsed.Alerts, nil
}

// FetchAirdropAlerts queries the feed for alerts mentioning any of
// watching within the last windowMinutes, the shape the Airdrop Watcher
// polls (no level filter, a rolling time window instead). An empty
// watching list fetches unfiltered, the shape a `*` wildcard rule needs.
func (c *Client) FetchAirdropAlerts(ctx context.Context, watching []string, windowMinutes int) ([]Alert, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	query := url.Values{}
	if len(watching) > 0 {
		query.Set("crypto", strings.Join(watching, ","))
	}
	query.Set("time", fmt.Sprintf("%d", windowMinutes))
	if c.apiKey != "" {
		query.Set("api_key", c.apiKey)
	}
	reqURL := c.baseURL + "/alerts?" + query.Encode()

	var parsed alertsResponse
	err := retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return errs.Wrap(errs.InvalidPayload, err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return errs.Wrap(errs.TransientNetwork, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return errs.Wrap(errs.TransientNetwork, err)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return errs.Wrap(errs.RateLimitExceeded, fmt.Errorf("alerts api: %s", resp.Status))
		}
		if resp.StatusCode != http.StatusOK {
			return errs.Wrap(errs.TransientNetwork, fmt.Errorf("alerts api: unexpected status %s", resp.Status))
		}
		return json.Unmarshal(body, &parsed)
	}, retry.NetworkConfig())
	if err != nil {
		return nil, err
	}
	return parsed.Alerts, nil
}

// MatchesAnyTarget reports whether alert.Text mentions any of targets,
// case-insensitively.
func MatchesAnyTarget(alert Alert, targets []string) []string {
	lowerText := strings.ToLower(alert.Text)
	var matched []string
	for _, t := range targets {
		if t == "" || t == "*" {
			continue
		}
		if strings.Contains(lowerText, strings.ToLower(t)) {
			matched = append(matched, t)
		}
	}
	return matched
}
