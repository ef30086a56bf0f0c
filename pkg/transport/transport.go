// Package transport implements http GET requests to SPARQL endpoints with retries and exponential backoff.
package transport

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/go-pkgz/stringutils"
	"github.com/hashicorp/go-retryablehttp"
)

// AcceptHeader is the media type requested from endpoints
const AcceptHeader = "application/sparql-results+json"

const (
	// DefaultTimeout is a sentinel for "keep transport default", which is defaultClientTimeout
	DefaultTimeout time.Duration = 0
	// NoTimeout disables the http client timeout
	NoTimeout time.Duration = -1

	defaultClientTimeout = 60 * time.Second
	maxBackoff           = 120 * time.Second
	maxErrBody           = 512
)

// Opts defines transport parameters, zero values replaced by defaults
type Opts struct {
	Retries       int           // number of retries after the first attempt, -1 for no retries
	BackoffFactor float64       // wait factor*2^attempt seconds between retries
	RetryStatuses []int         // statuses triggering a retry
	Timeout       time.Duration // DefaultTimeout, NoTimeout or explicit value
	User          string        // basic auth user, no auth if empty
	Password      string        // basic auth password
}

// Defaults used for zero Opts fields
var (
	DefaultRetries       = 3
	DefaultBackoffFactor = 0.3
	DefaultRetryStatuses = []int{http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout}
)

// HTTP makes GET requests with retries
type HTTP struct {
	client *retryablehttp.Client
	opts   Opts
}

// StatusError returned for non-2xx responses
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %s", e.Status)
	}
	return fmt.Sprintf("unexpected status %s: %s", e.Status, e.Body)
}

// New makes HTTP transport
func New(opts Opts) *HTTP {
	if opts.Retries == 0 {
		opts.Retries = DefaultRetries
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.BackoffFactor == 0 {
		opts.BackoffFactor = DefaultBackoffFactor
	}
	if len(opts.RetryStatuses) == 0 {
		opts.RetryStatuses = DefaultRetryStatuses
	}

	res := &HTTP{opts: opts}
	client := retryablehttp.NewClient()
	client.RetryMax = opts.Retries
	client.RetryWaitMax = maxBackoff
	client.CheckRetry = res.checkRetry
	client.Backoff = res.backoff
	client.Logger = debugLogger{}
	client.ErrorHandler = passthroughErrorHandler
	client.HTTPClient.Timeout = ClientTimeout(opts.Timeout)
	res.client = client
	return res
}

// ClientTimeout maps timeout setting to the http.Client timeout value
func ClientTimeout(t time.Duration) time.Duration {
	switch {
	case t == DefaultTimeout:
		return defaultClientTimeout
	case t < 0:
		return 0
	}
	return t
}

// Get requests endpoint with params as a query string and returns the body of a 2xx response
func (h *HTTP) Get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("can't parse endpoint %q: %w", endpoint, err)
	}
	q := u.Query()
	for k, vv := range params {
		for _, v := range vv {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("can't make request: %w", err)
	}
	req.Header.Set("Accept", AcceptHeader)
	if h.opts.User != "" {
		req.SetBasicAuth(h.opts.User, h.opts.Password)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", u.Host, err)
	}
	defer resp.Body.Close() // nolint

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("can't read response from %s: %w", u.Host, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: stringutils.Truncate(string(body), maxErrBody)}
	}
	return body, nil
}

// checkRetry retries connection errors and configured statuses, nothing else
func (h *HTTP) checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	return slices.Contains(h.opts.RetryStatuses, resp.StatusCode), nil
}

// backoff waits factor * 2^attempt seconds, attempt starts from 0
func (h *HTTP) backoff(_, limit time.Duration, attempt int, _ *http.Response) time.Duration {
	wait := time.Duration(math.Round(h.opts.BackoffFactor * math.Pow(2, float64(attempt)) * float64(time.Second)))
	if wait > limit {
		return limit
	}
	return wait
}

// passthroughErrorHandler returns the last response as is, so the caller sees the real status
func passthroughErrorHandler(resp *http.Response, err error, attempts int) (*http.Response, error) {
	if err != nil {
		return resp, fmt.Errorf("giving up after %d attempt(s): %w", attempts, err)
	}
	return resp, nil
}

type debugLogger struct{}

func (debugLogger) Printf(format string, v ...any) {
	log.Printf("[DEBUG] "+format, v...)
}
