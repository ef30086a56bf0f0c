package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/graphly/pkg/config"
	"github.com/umputun/graphly/pkg/secrets"
	"github.com/umputun/graphly/pkg/sparql"
)

// fakeEndpoint answers with fixtures picked by the query text
type fakeEndpoint struct {
	t        *testing.T
	user     string
	password string

	lock    sync.Mutex
	queries []string
}

func (f *fakeEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("query")
	f.lock.Lock()
	f.queries = append(f.queries, q)
	f.lock.Unlock()

	if f.user != "" {
		u, p, ok := r.BasicAuth()
		if !ok || u != f.user || p != f.password {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	fixture := "literal.json"
	switch {
	case strings.Contains(q, "broken"):
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad query"))
		return
	case strings.Contains(q, "ASK"):
		fixture = "ask.json"
	case strings.Contains(q, "nothing"):
		fixture = "empty.json"
	}
	data, err := os.ReadFile(filepath.Join("..", "results", "testdata", fixture))
	require.NoError(f.t, err)
	w.Header().Set("Content-Type", "application/sparql-results+json")
	_, _ = w.Write(data)
}

func (f *fakeEndpoint) received() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.queries...)
}

func makeBook(t *testing.T, text string, sp config.SecretsProvider) *config.Book {
	fname := filepath.Join(t.TempDir(), "book.yml")
	require.NoError(t, os.WriteFile(fname, []byte(text), 0o600))
	b, err := config.New(fname, sp)
	require.NoError(t, err)
	return b
}

var fastClients = []sparql.Option{sparql.WithMinInterval(time.Millisecond)}

func TestProcess_Run(t *testing.T) {
	one := &fakeEndpoint{t: t}
	two := &fakeEndpoint{t: t, user: "reader", password: "s3cret"}
	ts1, ts2 := httptest.NewServer(one), httptest.NewServer(two)
	defer ts1.Close()
	defer ts2.Close()

	book := makeBook(t, fmt.Sprintf(`
prefixes:
  schema: <http://schema.org/>
endpoints:
  one:
    url: %s
    retries: -1
  two:
    url: %s
    user: reader
    password_secret: two-pass
    prefixes:
      geo: <http://www.opengis.net/ont/geosparql#>
queries:
  - name: capitals
    endpoint: one
    query: SELECT ?capital ?country WHERE {?c schema:capital ?capital}
  - name: nothing
    endpoint: one
    query: SELECT * WHERE {?s ?p "nothing"}
  - name: is-there
    endpoint: two
    ask: true
    query: ASK {?s a geo:Feature}
`, ts1.URL, ts2.URL), secrets.NewMemoryProvider(map[string]string{"two-pass": "s3cret"}))

	out := bytes.Buffer{}
	var res []Result
	p := Process{
		Book:        book,
		Concurrency: 2,
		Options:     fastClients,
		Reporter:    NewReporter(&out, true, book.AllSecretValues()),
		OnResult: func(r Result) error {
			res = append(res, r)
			return nil
		},
	}
	stats, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Endpoints: 2, Queries: 3, Rows: 2, NotFound: 1}, stats)

	require.Len(t, res, 3)
	sort.Slice(res, func(i, j int) bool { return res[i].Query < res[j].Query })
	assert.Equal(t, "capitals", res[0].Query)
	assert.Equal(t, []string{"capital", "country"}, res[0].Table.Names())
	assert.True(t, res[1].IsAsk)
	assert.True(t, res[1].Ask)
	assert.Equal(t, "two", res[1].Endpoint)
	assert.True(t, res[2].NotFound)
	assert.Nil(t, res[2].Table)

	q1 := one.received()
	require.Len(t, q1, 2)
	assert.Equal(t, "PREFIX schema: <http://schema.org/>\nSELECT ?capital ?country WHERE {?c schema:capital ?capital}", q1[0])
	q2 := two.received()
	require.Len(t, q2, 1)
	assert.True(t, strings.HasPrefix(q2[0], "PREFIX schema: <http://schema.org/>\nPREFIX geo: "), q2[0])

	assert.Contains(t, out.String(), `[one] completed query "capitals", rows: 2`)
	assert.Contains(t, out.String(), `[one] query "nothing", nothing found`)
	assert.Contains(t, out.String(), `[two] completed query "is-there", answer: true`)
}

func TestProcess_RunFailures(t *testing.T) {
	ep := &fakeEndpoint{t: t}
	ts := httptest.NewServer(ep)
	defer ts.Close()

	bookText := fmt.Sprintf(`
endpoints:
  one:
    url: %s
queries:
  - name: first
    endpoint: one
    query: SELECT * WHERE {?s ?p ?o}
  - name: broken
    endpoint: one
    query: SELECT broken
  - name: last
    endpoint: one
    query: SELECT * WHERE {?s ?p ?o} LIMIT 1
`, ts.URL)

	t.Run("stop on first failure", func(t *testing.T) {
		ep.queries = nil
		p := Process{Book: makeBook(t, bookText, nil), Concurrency: 1, Options: fastClients}
		stats, err := p.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), `failed query "broken" on one`)
		assert.Contains(t, err.Error(), "400 Bad Request")
		assert.Equal(t, Stats{Endpoints: 1, Queries: 1, Rows: 2, Failed: 1}, stats)
		assert.Len(t, ep.received(), 2, "last query not sent")
	})

	t.Run("continue on error", func(t *testing.T) {
		ep.queries = nil
		p := Process{Book: makeBook(t, bookText, nil), Concurrency: 1, Options: fastClients, ContinueOnError: true}
		stats, err := p.Run(context.Background())
		require.Error(t, err)
		assert.Equal(t, Stats{Endpoints: 1, Queries: 2, Rows: 4, Failed: 1}, stats)
		assert.Len(t, ep.received(), 3)
	})

	t.Run("result handler error", func(t *testing.T) {
		p := Process{Book: makeBook(t, bookText, nil), Concurrency: 1, Options: fastClients, Only: []string{"first"},
			OnResult: func(Result) error { return errors.New("disk full") }}
		stats, err := p.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), `can't handle result of query "first": disk full`)
		assert.Equal(t, 1, stats.Failed)
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p := Process{Book: makeBook(t, bookText, nil), Concurrency: 1, Options: fastClients}
		_, err := p.Run(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestProcess_Only(t *testing.T) {
	ep := &fakeEndpoint{t: t}
	ts := httptest.NewServer(ep)
	defer ts.Close()

	book := makeBook(t, fmt.Sprintf(`
endpoints:
  one:
    url: %s
queries:
  - name: first
    endpoint: one
    query: SELECT * WHERE {?s ?p ?o}
  - name: second
    endpoint: one
    query: SELECT * WHERE {?s ?p "nothing"}
`, ts.URL), nil)

	p := Process{Book: book, Concurrency: 1, Options: fastClients, Only: []string{"second"}}
	stats, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Endpoints: 1, Queries: 1, NotFound: 1}, stats)
	assert.Len(t, ep.received(), 1)

	p.Only = []string{"second", "third"}
	_, err = p.Run(context.Background())
	assert.EqualError(t, err, `unknown query "third"`)
}

func TestReporter(t *testing.T) {
	buf := bytes.Buffer{}
	r := NewReporter(&buf, true, []string{"s3cret", " ", ""})
	r.Printf("zazuko", "line one with s3cret\nline two %d", 2)
	r.Printf("local", "password s3cretive kept")
	assert.Equal(t, "[zazuko] line one with ****\n[zazuko] line two 2\n[local] password s3cretive kept\n", buf.String())

	buf.Reset()
	r = NewReporter(&buf, true, []string{"s3cret!", "#pa55", "@wrapped@"})
	r.Printf("ep", "auth failed for s3cret! here")
	r.Printf("ep", "token #pa55, and @wrapped@ at end")
	assert.Equal(t, "[ep] auth failed for **** here\n[ep] token ****, and **** at end\n", buf.String())

	var nilReporter *Reporter
	nilReporter.Printf("zazuko", "ignored")
}
