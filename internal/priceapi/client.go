// Package priceapi is a client for the external USD price feed the
// Token Watcher polls every tick. Grounded on the exchange package's
// HTTP client composition (httpclient.go's pooled *http.Client,
// bybit.go's doRequest shape), generalized from a signed private REST
// API to a public, keyless price endpoint.
package priceapi

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

// Snapshot is one coin's price data as returned by the feed.
type Snapshot struct {
	ID              string
	USD             float64
	USD24hChange    float64
	USD24hVol       float64
}

// Client wraps the price feed's /simple/price endpoint.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *ratelimit.RateLimiter
}

// New builds a Client against baseURL (e.g. https://api.coingecko.com/api/v3).
// apiKey may be empty for the public tier.
func New(baseURL, apiKey string, limiter *ratelimit.RateLimiter) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: limiter,
	}
}

// FetchPrices batch-fetches USD price, 24h change, and 24h volume for
// every id in ids. ids are price-API identifiers (CoinGecko-style slugs
// or lowercased symbols), not user-facing symbols; callers map the
// result back to symbols themselves.
func (c *Client) FetchPrices(ctx context.Context, ids []string) (map[string]Snapshot, error) {
	if len(ids) == 0 {
		return map[string]Snapshot{}, nil
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", "usd")
	query.Set("include_24hr_change", "true")
	query.Set("include_24hr_vol", "true")
	if c.apiKey != "" {
		query.Set("x_cg_api_key", c.apiKey)
	}

	reqURL := c.baseURL + "/simple/price?" + query.Encode()

	var raw map[string]map[string]float64
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
			return errs.Wrap(errs.RateLimitExceeded, fmt.Errorf("price api: %s", resp.Status))
		}
		if resp.StatusCode != http.StatusOK {
			return errs.Wrap(errs.TransientNetwork, fmt.Errorf("price api: unexpected status %s", resp.Status))
		}
		return json.Unmarshal(body, &raw)
	}, retry.NetworkConfig())
	if err != nil {
		return nil, err
	}

	out := make(map[string]Snapshot, len(raw))
	for id, fields := range raw {
		out[id] = Snapshot{
			ID:           id,
			USD:          fields["usd"],
			USD24hChange: fields["usd_24h_change"],
			USD24hVol:    fields["usd_24h_vol"],
		}
	}
	return out, nil
}

// MatchBySymbol resolves snapshots keyed by price-API id back to the
// user-facing symbol via case-insensitive comparison of id against
// symbol, falling back to exact id match (used when coin_gc_id was
// already the id requested).
func MatchBySymbol(snapshots map[string]Snapshot, id string) (Snapshot, bool) {
	if snap, ok := snapshots[id]; ok {
		return snap, true
	}
	lower := strings.ToLower(id)
	for key, snap := range snapshots {
		if strings.ToLower(key) == lower {
			return snap, true
		}
	}
	return Snapshot{}, false
}

// FormatID normalizes a raw id for query-string inclusion (defensive
// against stray whitespace from operator-entered target_data).
func FormatID(id string) string {
	return strings.TrimSpace(strings.ToLower(id))
}
