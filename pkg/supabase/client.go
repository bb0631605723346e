// Package supabase provides a minimal PostgREST client for the company
// research database.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client performs queries against Supabase REST tables.
type Client interface {
	Select(ctx context.Context, table string, q Query, out any) error
	Health(ctx context.Context) error
}

// Query is a PostgREST filter set built with the fluent methods below.
type Query struct {
	filters []filter
	order   string
	limit   int
}

type filter struct {
	column string
	op     string // "eq", "ilike", "gte", "lte"
	value  string
}

// NewQuery returns an empty query.
func NewQuery() Query {
	return Query{}
}

// Eq adds an equality filter.
func (q Query) Eq(column, value string) Query {
	q.filters = append(q.filters, filter{column, "eq", value})
	return q
}

// ILike adds a case-insensitive substring filter.
func (q Query) ILike(column, value string) Query {
	q.filters = append(q.filters, filter{column, "ilike", "*" + value + "*"})
	return q
}

// Gte adds a >= filter.
func (q Query) Gte(column string, value float64) Query {
	q.filters = append(q.filters, filter{column, "gte", formatFloat(value)})
	return q
}

// Lte adds a <= filter.
func (q Query) Lte(column string, value float64) Query {
	q.filters = append(q.filters, filter{column, "lte", formatFloat(value)})
	return q
}

// OrderDesc sets descending ordering on a column.
func (q Query) OrderDesc(column string) Query {
	q.order = column + ".desc"
	return q
}

// OrderAsc sets ascending ordering on a column.
func (q Query) OrderAsc(column string) Query {
	q.order = column + ".asc"
	return q
}

// Limit caps the number of rows returned.
func (q Query) Limit(n int) Query {
	q.limit = n
	return q
}

// Encode renders the query as PostgREST URL parameters.
func (q Query) Encode() string {
	params := url.Values{}
	for _, f := range q.filters {
		params.Add(f.column, f.op+"."+f.value)
	}
	if q.order != "" {
		params.Set("order", q.order)
	}
	if q.limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", q.limit))
	}
	return params.Encode()
}

func formatFloat(v float64) string {
	s := fmt.Sprintf("%f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets a per-second request rate limit.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

type httpClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Supabase REST client for the given project URL.
func NewClient(baseURL, apiKey string, opts ...Option) Client {
	c := &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Select(ctx context.Context, table string, q Query, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "supabase: rate limit")
		}
	}

	endpoint := c.baseURL + "/rest/v1/" + table
	if encoded := q.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return eris.Wrap(err, "supabase: create request")
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrapf(err, "supabase: select %s", table)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "supabase: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("supabase: select %s: unexpected status %d: %s", table, resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "supabase: unmarshal %s rows", table)
	}
	return nil
}

func (c *httpClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rest/v1/", nil)
	if err != nil {
		return eris.Wrap(err, "supabase: create health request")
	}
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "supabase: health")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return eris.Errorf("supabase: health: status %d", resp.StatusCode)
	}
	return nil
}
