// Package sparql is a client for SPARQL endpoints. It injects client-held prefixes into queries,
// keeps successive requests at least MinInterval apart and normalizes json results into tables.
//
// A Client is meant to be used by one goroutine at a time, its prefix table is not synchronized.
package sparql

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/umputun/graphly/pkg/prefix"
	"github.com/umputun/graphly/pkg/results"
	"github.com/umputun/graphly/pkg/transport"
)

// DefaultMinInterval is the minimal spacing between two requests of the same client
const DefaultMinInterval = time.Second

// Getter is the transport used by the client
type Getter interface {
	Get(ctx context.Context, endpoint string, params url.Values) ([]byte, error)
}

// Client sends queries to a single endpoint
type Client struct {
	endpoint    string
	prefixes    *prefix.Table
	limiter     *rate.Limiter
	transport   Getter
	httpOpts    transport.Opts
	minInterval time.Duration
}

// Option sets client parameters
type Option func(c *Client)

// WithTimeout sets request timeout, transport.NoTimeout disables it
func WithTimeout(t time.Duration) Option {
	return func(c *Client) { c.httpOpts.Timeout = t }
}

// WithRetries sets the number of transport retries, negative disables retries
func WithRetries(n int) Option {
	return func(c *Client) { c.httpOpts.Retries = n }
}

// WithBackoff sets the backoff factor, seconds
func WithBackoff(factor float64) Option {
	return func(c *Client) { c.httpOpts.BackoffFactor = factor }
}

// WithRetryStatuses sets http statuses retried by the transport
func WithRetryStatuses(statuses ...int) Option {
	return func(c *Client) { c.httpOpts.RetryStatuses = statuses }
}

// WithBasicAuth sets endpoint credentials
func WithBasicAuth(user, password string) Option {
	return func(c *Client) {
		c.httpOpts.User = user
		c.httpOpts.Password = password
	}
}

// WithMinInterval sets the minimal spacing between requests
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) { c.minInterval = d }
}

// WithPrefixes sets initial prefix table, the table is copied
func WithPrefixes(t *prefix.Table) Option {
	return func(c *Client) {
		if t != nil {
			c.prefixes = t.Clone()
		}
	}
}

// WithTransport replaces the http transport, transport options are ignored in this case
func WithTransport(g Getter) Option {
	return func(c *Client) { c.transport = g }
}

// New makes a client for the endpoint url
func New(endpoint string, opts ...Option) *Client {
	res := &Client{endpoint: endpoint, prefixes: &prefix.Table{}, minInterval: DefaultMinInterval}
	for _, opt := range opts {
		opt(res)
	}
	if res.transport == nil {
		res.transport = transport.New(res.httpOpts)
	}
	res.limiter = rate.NewLimiter(rate.Every(res.minInterval), 1) // non-positive interval means no limit
	return res
}

// Endpoint returns endpoint url
func (c *Client) Endpoint() string { return c.endpoint }

// AddPrefixes adds prefixes injected into every query, existing keys are overwritten
func (c *Client) AddPrefixes(prefixes map[string]string) { c.prefixes.Add(prefixes) }

// RemovePrefixes removes prefixes by short name, unknown names ignored
func (c *Client) RemovePrefixes(names ...string) { c.prefixes.Remove(names...) }

// Prefixes returns a copy of the client prefix table
func (c *Client) Prefixes() map[string]string { return c.prefixes.Map() }

// FormatQuery returns the query with client prefixes the query doesn't declare
func (c *Client) FormatQuery(query string) string { return c.prefixes.Format(query) }

// Query sends a SELECT query and returns the normalized table.
// Returns results.ErrNotFound if nothing matched and *results.ExecutionError if the endpoint
// reported an error instead of results.
func (c *Client) Query(ctx context.Context, query string) (*results.Table, error) {
	resp, err := c.send(ctx, query)
	if err != nil {
		return nil, err
	}
	tbl, err := results.Normalize(resp)
	if err != nil {
		return nil, fmt.Errorf("can't normalize results: %w", err)
	}
	log.Printf("[DEBUG] got %d rows, %d columns from %s", tbl.Len(), len(tbl.Columns), c.endpoint)
	return tbl, nil
}

// Ask sends an ASK query and returns its boolean result
func (c *Client) Ask(ctx context.Context, query string) (bool, error) {
	resp, err := c.send(ctx, query)
	if err != nil {
		return false, err
	}
	res, err := resp.Ask()
	if err != nil {
		return false, fmt.Errorf("can't get ask result: %w", err)
	}
	return res, nil
}

// send composes the query, waits for the limiter and decodes the response
func (c *Client) send(ctx context.Context, query string) (*results.Response, error) {
	q := c.FormatQuery(query)
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("can't wait for request slot: %w", err)
	}
	log.Printf("[DEBUG] send query to %s: %q", c.endpoint, q)
	body, err := c.transport.Get(ctx, c.endpoint, url.Values{"query": {q}})
	if err != nil {
		return nil, fmt.Errorf("query to %s failed: %w", c.endpoint, err)
	}
	return results.Decode(bytes.NewReader(body))
}
