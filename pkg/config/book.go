// Package config loads query books: named SPARQL queries bound to endpoints, with shared and
// per-endpoint prefixes. Books are yaml or toml, local files or http(s) urls.
package config

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-pkgz/stringutils"
	"github.com/hashicorp/go-multierror"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/umputun/graphly/pkg/prefix"
	"github.com/umputun/graphly/pkg/transport"
)

// Book defines the top-level query book
type Book struct {
	Prefixes  map[string]string   `yaml:"prefixes" toml:"prefixes"`   // prefixes for all endpoints
	Endpoints map[string]Endpoint `yaml:"endpoints" toml:"endpoints"` // endpoints by name
	Queries   []Query             `yaml:"queries" toml:"queries"`     // queries in execution order

	baseDir         string            // directory of local book, query files are relative to it
	secrets         map[string]string // endpoint name -> password
	secretsProvider SecretsProvider
}

// Endpoint defines a SPARQL endpoint
type Endpoint struct {
	Name           string            `yaml:"-" toml:"-"`                             // set from the map key
	URL            string            `yaml:"url" toml:"url"`                         // query url
	Timeout        string            `yaml:"timeout" toml:"timeout"`                 // duration, "none" or empty for default
	User           string            `yaml:"user" toml:"user"`                       // basic auth user
	PasswordSecret string            `yaml:"password_secret" toml:"password_secret"` // secret key of the password
	Retries        int               `yaml:"retries" toml:"retries"`                 // transport retries, -1 disables
	Backoff        float64           `yaml:"backoff" toml:"backoff"`                 // backoff factor, seconds
	Prefixes       map[string]string `yaml:"prefixes" toml:"prefixes"`               // endpoint-only prefixes
}

// Query defines a named query
type Query struct {
	Name     string `yaml:"name" toml:"name"`
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
	Query    string `yaml:"query" toml:"query"` // inline query text
	File     string `yaml:"file" toml:"file"`   // or file with the query
	Ask      bool   `yaml:"ask" toml:"ask"`     // ASK query, boolean result
}

// SecretsProvider defines interface for secrets providers
type SecretsProvider interface {
	Get(key string) (string, error)
}

// New loads the book from a file or url, validates it and resolves endpoint passwords
// with the secrets provider. Provider can be nil if no endpoint uses password_secret.
func New(loc string, secProvider SecretsProvider) (*Book, error) {
	log.Printf("[DEBUG] request to load query book %q", loc)
	data, err := load(loc)
	if err != nil {
		return nil, err
	}

	res := &Book{secretsProvider: secProvider}
	if !strings.HasPrefix(loc, "http") {
		res.baseDir = filepath.Dir(loc)
	}
	if err = unmarshal(loc, data, res); err != nil {
		return nil, fmt.Errorf("can't unmarshal query book: %w", err)
	}
	for name, ep := range res.Endpoints {
		ep.Name = name
		res.Endpoints[name] = ep
	}

	if err = res.Validate(); err != nil {
		return nil, fmt.Errorf("query book %s is invalid: %w", loc, err)
	}
	if err = res.loadSecrets(); err != nil {
		return nil, err
	}
	log.Printf("[INFO] query book loaded with %d queries for %d endpoints", len(res.Queries), len(res.Endpoints))
	return res, nil
}

// Validate checks the book and reports all problems at once
func (b *Book) Validate() error {
	errs := new(multierror.Error)
	if len(b.Queries) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("no queries defined"))
	}

	names := make([]string, 0, len(b.Queries))
	for i, q := range b.Queries {
		if q.Name == "" {
			errs = multierror.Append(errs, fmt.Errorf("query #%d has no name", i+1))
		}
		names = append(names, q.Name)
		if _, ok := b.Endpoints[q.Endpoint]; !ok {
			errs = multierror.Append(errs, fmt.Errorf("query %q refers to unknown endpoint %q", q.Name, q.Endpoint))
		}
		if (q.Query == "") == (q.File == "") {
			errs = multierror.Append(errs, fmt.Errorf("query %q should have either query or file", q.Name))
		}
	}
	if dd := stringutils.DeDup(names); len(dd) != len(names) {
		errs = multierror.Append(errs, fmt.Errorf("query names are not unique"))
	}

	for _, name := range b.EndpointNames() {
		ep := b.Endpoints[name]
		if ep.URL == "" {
			errs = multierror.Append(errs, fmt.Errorf("endpoint %q has no url", name))
		}
		if _, err := ep.ClientTimeout(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("endpoint %q: %w", name, err))
		}
	}
	return errs.ErrorOrNil()
}

// EndpointNames returns sorted endpoint names
func (b *Book) EndpointNames() []string {
	res := make([]string, 0, len(b.Endpoints))
	for name := range b.Endpoints {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

// PrefixTable returns book prefixes merged with endpoint prefixes, endpoint wins on collision
func (b *Book) PrefixTable(endpoint string) *prefix.Table {
	res := prefix.New(b.Prefixes)
	res.Add(b.Endpoints[endpoint].Prefixes)
	return res
}

// Password returns resolved password for the endpoint
func (b *Book) Password(endpoint string) string {
	return b.secrets[endpoint]
}

// AllSecretValues returns all resolved passwords, used to mask them in logs
func (b *Book) AllSecretValues() []string {
	res := make([]string, 0, len(b.secrets))
	for _, v := range b.secrets {
		res = append(res, v)
	}
	sort.Strings(res)
	return res
}

// Text returns query text, reading the query file if set. Relative files are resolved
// against the book directory.
func (b *Book) Text(q Query) (string, error) {
	if q.File == "" {
		return q.Query, nil
	}
	fname := q.File
	if !filepath.IsAbs(fname) && b.baseDir != "" {
		fname = filepath.Join(b.baseDir, fname)
	}
	data, err := os.ReadFile(fname) // nolint
	if err != nil {
		return "", fmt.Errorf("can't read query %q file: %w", q.Name, err)
	}
	return string(data), nil
}

// ClientTimeout converts timeout setting to transport timeout
func (e Endpoint) ClientTimeout() (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(e.Timeout)) {
	case "":
		return transport.DefaultTimeout, nil
	case "none", "0":
		return transport.NoTimeout, nil
	}
	d, err := time.ParseDuration(e.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", e.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative timeout %q", e.Timeout)
	}
	return d, nil
}

func (b *Book) loadSecrets() error {
	b.secrets = make(map[string]string)
	for _, name := range b.EndpointNames() {
		ep := b.Endpoints[name]
		if ep.PasswordSecret == "" {
			continue
		}
		if b.secretsProvider == nil {
			return fmt.Errorf("endpoint %q needs secret %q, but no secrets provider set", name, ep.PasswordSecret)
		}
		val, err := b.secretsProvider.Get(ep.PasswordSecret)
		if err != nil {
			return fmt.Errorf("can't get secret %q for endpoint %q: %w", ep.PasswordSecret, name, err)
		}
		b.secrets[name] = val
	}
	return nil
}

// load reads the book from url or file
func load(loc string) ([]byte, error) {
	var rdr io.Reader
	switch {
	case strings.HasPrefix(loc, "http"):
		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Get(loc) // nolint
		if err != nil {
			return nil, fmt.Errorf("can't get query book from http %s: %w", loc, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("can't get query book from http %s, status: %s", loc, resp.Status)
		}
		rdr = resp.Body
	default:
		fh, err := os.Open(loc) // nolint
		if err != nil {
			return nil, fmt.Errorf("can't open query book %s: %w", loc, err)
		}
		defer fh.Close() // nolint
		rdr = fh
	}
	return io.ReadAll(rdr)
}

// unmarshal guesses format by extension, yaml is the default
func unmarshal(loc string, data []byte, res *Book) error {
	if strings.HasSuffix(loc, ".toml") {
		if err := toml.Unmarshal(data, res); err != nil {
			return fmt.Errorf("can't unmarshal toml %s: %w", loc, err)
		}
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // strict mode, fail on unknown fields
	if err := dec.Decode(res); err != nil {
		return fmt.Errorf("can't unmarshal yaml %s: %w", loc, err)
	}
	return nil
}
