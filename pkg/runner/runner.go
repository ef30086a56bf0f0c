// Package runner executes query books. Every endpoint gets its own client, endpoints run in parallel
// with limited concurrency and queries of one endpoint run sequentially in book order, so the client
// request spacing holds per endpoint.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-pkgz/syncs"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/umputun/graphly/pkg/config"
	"github.com/umputun/graphly/pkg/results"
	"github.com/umputun/graphly/pkg/sparql"
)

// Process holds everything needed to run a query book
type Process struct {
	Book            *config.Book
	Concurrency     int                  // max endpoints processed at once
	ContinueOnError bool                 // keep going after a failed query
	Only            []string             // query names to run, all if empty
	Options         []sparql.Option      // applied to every client after the endpoint settings
	Reporter        *Reporter            // progress output, optional
	OnResult        func(r Result) error // called for each completed query, never concurrently
}

// Result of a single query
type Result struct {
	Query    string
	Endpoint string
	Table    *results.Table // nil for ask and not found queries
	Ask      bool           // answer of an ask query
	IsAsk    bool
	NotFound bool
	Duration time.Duration
}

// Stats summarizes a run
type Stats struct {
	Endpoints int
	Queries   int // completed, including not found
	Rows      int
	NotFound  int
	Failed    int
}

type endpointQueries struct {
	endpoint config.Endpoint
	queries  []config.Query
}

// Run executes selected queries of the book. Not found results are counted, not failed.
// Returns stats and all failures combined into a multierror.
func (p *Process) Run(ctx context.Context) (Stats, error) {
	groups, err := p.groups()
	if err != nil {
		return Stats{}, err
	}
	runID := uuid.New().String()[:8]
	log.Printf("[INFO] run %s started, endpoints: %d", runID, len(groups))
	st := time.Now()

	var stats Stats
	var errs *multierror.Error
	var failed atomic.Bool
	lock := sync.Mutex{}
	fail := func(e error) {
		lock.Lock()
		stats.Failed++
		errs = multierror.Append(errs, e)
		lock.Unlock()
		failed.Store(true)
	}

	opts := []syncs.GroupOption{syncs.Context(ctx), syncs.Preemptive}
	if !p.ContinueOnError {
		opts = append(opts, syncs.TermOnErr)
	}
	wg := syncs.NewErrSizedGroup(max(p.Concurrency, 1), opts...)
	for _, g := range groups {
		wg.Go(func() error {
			client, e := p.makeClient(g.endpoint)
			if e != nil {
				fail(e)
				return e
			}
			for _, q := range g.queries {
				if !p.ContinueOnError && failed.Load() {
					return nil // another query failed, stop this endpoint too
				}
				res, e := p.runQuery(ctx, runID, client, g.endpoint.Name, q)
				if e != nil {
					fail(e)
					continue
				}
				lock.Lock()
				stats.Queries++
				if res.NotFound {
					stats.NotFound++
				}
				if res.Table != nil {
					stats.Rows += res.Table.Len()
				}
				if p.OnResult != nil {
					e = p.OnResult(res)
				}
				lock.Unlock()
				if e != nil {
					fail(fmt.Errorf("can't handle result of query %q: %w", q.Name, e))
				}
			}
			return nil
		})
	}
	if e := wg.Wait(); e != nil && ctx.Err() != nil && errs.ErrorOrNil() == nil {
		errs = multierror.Append(errs, fmt.Errorf("run interrupted: %w", ctx.Err()))
	}

	stats.Endpoints = len(groups)
	log.Printf("[INFO] run %s completed in %v, queries: %d, rows: %d, not found: %d, failed: %d", runID,
		time.Since(st).Truncate(time.Millisecond), stats.Queries, stats.Rows, stats.NotFound, stats.Failed)
	return stats, errs.ErrorOrNil()
}

func (p *Process) runQuery(ctx context.Context, runID string, client *sparql.Client, endpoint string, q config.Query) (Result, error) {
	res := Result{Query: q.Name, Endpoint: endpoint, IsAsk: q.Ask}
	text, err := p.Book.Text(q)
	if err != nil {
		return res, err
	}

	log.Printf("[DEBUG] run %s, query %q on %s", runID, q.Name, endpoint)
	st := time.Now()
	if q.Ask {
		res.Ask, err = client.Ask(ctx, text)
	} else {
		res.Table, err = client.Query(ctx, text)
	}
	res.Duration = time.Since(st).Truncate(time.Millisecond)

	switch {
	case errors.Is(err, results.ErrNotFound):
		res.NotFound = true
		p.Reporter.Printf(endpoint, "query %q, nothing found (%v)", q.Name, res.Duration)
		return res, nil
	case err != nil:
		p.Reporter.Printf(endpoint, "failed query %q (%v)", q.Name, res.Duration)
		return res, fmt.Errorf("failed query %q on %s: %w", q.Name, endpoint, err)
	case q.Ask:
		p.Reporter.Printf(endpoint, "completed query %q, answer: %t (%v)", q.Name, res.Ask, res.Duration)
	default:
		p.Reporter.Printf(endpoint, "completed query %q, rows: %d (%v)", q.Name, res.Table.Len(), res.Duration)
	}
	return res, nil
}

// makeClient creates client with book prefixes and endpoint settings
func (p *Process) makeClient(ep config.Endpoint) (*sparql.Client, error) {
	timeout, err := ep.ClientTimeout()
	if err != nil {
		return nil, fmt.Errorf("endpoint %q: %w", ep.Name, err)
	}
	opts := []sparql.Option{sparql.WithPrefixes(p.Book.PrefixTable(ep.Name)), sparql.WithTimeout(timeout)}
	if ep.Retries != 0 {
		opts = append(opts, sparql.WithRetries(ep.Retries))
	}
	if ep.Backoff > 0 {
		opts = append(opts, sparql.WithBackoff(ep.Backoff))
	}
	if ep.User != "" {
		opts = append(opts, sparql.WithBasicAuth(ep.User, p.Book.Password(ep.Name)))
	}
	opts = append(opts, p.Options...)
	return sparql.New(ep.URL, opts...), nil
}

// groups splits selected queries by endpoint, endpoints ordered by the first query
func (p *Process) groups() ([]endpointQueries, error) {
	only := map[string]bool{}
	for _, name := range p.Only {
		only[name] = false
	}

	var res []endpointQueries
	idx := map[string]int{}
	for _, q := range p.Book.Queries {
		if len(only) > 0 {
			if _, ok := only[q.Name]; !ok {
				continue
			}
			only[q.Name] = true
		}
		i, ok := idx[q.Endpoint]
		if !ok {
			i = len(res)
			idx[q.Endpoint] = i
			res = append(res, endpointQueries{endpoint: p.Book.Endpoints[q.Endpoint]})
		}
		res[i].queries = append(res[i].queries, q)
	}

	for _, name := range p.Only {
		if !only[name] {
			return nil, fmt.Errorf("unknown query %q", name)
		}
	}
	if len(res) == 0 {
		return nil, errors.New("no queries to run")
	}
	return res, nil
}
