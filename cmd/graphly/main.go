package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/fileutils"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/umputun/graphly/pkg/config"
	"github.com/umputun/graphly/pkg/prefix"
	"github.com/umputun/graphly/pkg/render"
	"github.com/umputun/graphly/pkg/results"
	"github.com/umputun/graphly/pkg/runner"
	"github.com/umputun/graphly/pkg/secrets"
	"github.com/umputun/graphly/pkg/sparql"
	"github.com/umputun/graphly/pkg/transport"
)

type options struct {
	PositionalArgs struct {
		Query string `positional-arg-name:"query" description:"query text or file with the query"`
	} `positional-args:"yes" positional-optional:"yes"`

	Endpoint    string            `short:"e" long:"endpoint" env:"GRAPHLY_ENDPOINT" description:"sparql endpoint url"`
	Prefixes    map[string]string `short:"P" long:"prefix" description:"prefix to inject, name:value"`
	Ask         bool              `long:"ask" description:"ask query, prints true or false"`
	Timeout     time.Duration     `long:"timeout" env:"GRAPHLY_TIMEOUT" description:"request timeout, 60s if not set"`
	NoTimeout   bool              `long:"no-timeout" description:"disable request timeout"`
	Retries     int               `long:"retries" env:"GRAPHLY_RETRIES" default:"3" description:"retries on 500, 502 and 504, -1 disables"`
	Backoff     float64           `long:"backoff" default:"0.3" description:"retry backoff factor, seconds"`
	MinInterval time.Duration     `long:"interval" default:"1s" description:"min interval between requests to the same endpoint"`
	User        string            `long:"user" env:"GRAPHLY_USER" description:"basic auth user"`
	Password    string            `long:"password" env:"GRAPHLY_PASSWORD" description:"basic auth password"`

	Format string `short:"f" long:"format" choice:"text" choice:"csv" choice:"json" choice:"geojson" default:"text" description:"output format"`
	Output string `short:"o" long:"output" description:"output file, directory for query book results"`

	// query book
	Book       string   `short:"b" long:"book" env:"GRAPHLY_BOOK" description:"query book file or url"`
	Only       []string `long:"only" description:"run only these book queries"`
	Concurrent int      `short:"c" long:"concurrent" default:"4" description:"endpoints processed at once"`
	Continue   bool     `long:"continue" description:"keep running the book after a failed query"`

	SecretsProvider SecretsProvider `group:"secrets" namespace:"secrets" env-namespace:"GRAPHLY_SECRETS"`

	Version bool `long:"version" description:"show version"`
	NoColor bool `long:"no-color" description:"disable colors"`
	Verbose bool `short:"v" long:"verbose" description:"verbose mode"`
	Dbg     bool `long:"dbg" description:"debug mode"`
}

// SecretsProvider defines secrets provider options, for all supported providers
type SecretsProvider struct {
	Provider string `long:"provider" env:"PROVIDER" description:"secret provider type" choice:"none" choice:"store" choice:"vault" choice:"aws" choice:"ansible" default:"none"`

	Key  string `long:"key" env:"KEY" description:"key of the credential store"`
	Conn string `long:"conn" env:"CONN" description:"connection string of the credential store" default:"graphly.db"`

	Vault struct {
		Token string `long:"token" env:"TOKEN" description:"vault token"`
		Path  string `long:"path" env:"PATH" description:"vault path"`
		URL   string `long:"url" env:"URL" description:"vault url"`
	} `group:"vault" namespace:"vault" env-namespace:"VAULT"`

	Aws struct {
		Region    string `long:"region" env:"REGION" description:"aws region"`
		AccessKey string `long:"access-key" env:"ACCESS_KEY" description:"aws access key"`
		SecretKey string `long:"secret-key" env:"SECRET_KEY" description:"aws secret key"`
	} `group:"aws" namespace:"aws" env-namespace:"AWS"`

	Ansible struct {
		File     string `long:"file" env:"FILE" description:"ansible-vault file"`
		Password string `long:"password" env:"PASSWORD" description:"ansible-vault password"`
	} `group:"ansible" namespace:"ansible" env-namespace:"ANSIBLE"`
}

var revision = "latest"

func main() {
	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		os.Exit(1)
	}
	if opts.Version {
		fmt.Printf("graphly %s\n", revision)
		os.Exit(0)
	}
	setupLog(opts.Dbg, opts.Verbose)
	if opts.NoColor {
		color.NoColor = true
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, os.Stdout); err != nil {
		if opts.Dbg {
			log.Panicf("[ERROR] %v", err)
		}
		fmt.Fprintf(os.Stderr, "failed, %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, stdout io.Writer) error {
	if opts.Book != "" {
		return runBook(ctx, opts, stdout)
	}
	if opts.Endpoint == "" {
		return errors.New("no endpoint set, use --endpoint or --book")
	}
	query, err := readQuery(opts.PositionalArgs.Query)
	if err != nil {
		return err
	}
	if opts.Password != "" {
		lgr.Setup(lgr.Secret(opts.Password)) // mask password in logs
	}

	client := sparql.New(opts.Endpoint, clientOptions(opts)...)
	client.AddPrefixes(opts.Prefixes)
	if opts.Verbose {
		showQuery(stdout, client, query)
	}

	if opts.Ask {
		res, err := client.Ask(ctx, query)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(stdout, "%t\n", res)
		return err
	}

	tbl, err := client.Query(ctx, query)
	if errors.Is(err, results.ErrNotFound) {
		_, err = fmt.Fprintln(stdout, "nothing found")
		return err
	}
	if err != nil {
		return err
	}

	out, closeOut, err := outputWriter(opts.Output, stdout)
	if err != nil {
		return err
	}
	defer closeOut()
	return render.Write(out, tbl, render.Format(opts.Format))
}

func runBook(ctx context.Context, opts options, stdout io.Writer) error {
	st := time.Now()
	sp, err := makeSecretsProvider(opts.SecretsProvider)
	if err != nil {
		return fmt.Errorf("can't make secrets provider: %w", err)
	}
	bookLoc, err := expandPath(opts.Book)
	if err != nil {
		return fmt.Errorf("can't expand book path %q: %w", opts.Book, err)
	}
	book, err := config.New(bookLoc, sp)
	if err != nil {
		return fmt.Errorf("can't load query book %q: %w", bookLoc, err)
	}
	lgr.Setup(lgr.Secret(book.AllSecretValues()...)) // mask secrets in logs

	if opts.Output != "" {
		if err = os.MkdirAll(opts.Output, 0o750); err != nil {
			return fmt.Errorf("can't make output directory %s: %w", opts.Output, err)
		}
	}

	r := runner.Process{
		Book:            book,
		Concurrency:     opts.Concurrent,
		ContinueOnError: opts.Continue,
		Only:            opts.Only,
		Options:         []sparql.Option{sparql.WithMinInterval(opts.MinInterval)},
		Reporter:        runner.NewReporter(os.Stderr, opts.NoColor, book.AllSecretValues()),
		OnResult:        func(res runner.Result) error { return writeResult(opts, stdout, res) },
	}
	stats, err := r.Run(ctx)
	log.Printf("[INFO] completed: endpoints: %d, queries: %d, rows: %d, not found: %d, failed: %d in %v",
		stats.Endpoints, stats.Queries, stats.Rows, stats.NotFound, stats.Failed, time.Since(st).Truncate(100*time.Millisecond))
	return err
}

// writeResult writes book query result to stdout or to "<query>.<ext>" file in the output directory
func writeResult(opts options, stdout io.Writer, res runner.Result) error {
	format := render.Format(opts.Format)
	if format == render.GeoJSON && res.Table != nil && !res.Table.Spatial() {
		log.Printf("[WARN] query %q has no geometry, written as json", res.Query)
		format = render.JSON
	}

	out := stdout
	if opts.Output != "" {
		fname := filepath.Join(opts.Output, res.Query+"."+format.Ext())
		fh, err := os.Create(fname) // nolint
		if err != nil {
			return fmt.Errorf("can't create %s: %w", fname, err)
		}
		defer fh.Close() // nolint
		out = fh
		log.Printf("[DEBUG] write %q result to %s", res.Query, fname)
	} else {
		if _, err := fmt.Fprintf(stdout, "== %s (%s)\n", res.Query, res.Endpoint); err != nil {
			return err
		}
	}

	switch {
	case res.NotFound:
		_, err := fmt.Fprintln(out, "nothing found")
		return err
	case res.IsAsk:
		_, err := fmt.Fprintf(out, "%t\n", res.Ask)
		return err
	}
	return render.Write(out, res.Table, format)
}

func clientOptions(opts options) []sparql.Option {
	timeout := opts.Timeout
	if opts.NoTimeout {
		timeout = transport.NoTimeout
	}
	res := []sparql.Option{
		sparql.WithTimeout(timeout),
		sparql.WithRetries(opts.Retries),
		sparql.WithBackoff(opts.Backoff),
		sparql.WithMinInterval(opts.MinInterval),
	}
	if opts.User != "" {
		res = append(res, sparql.WithBasicAuth(opts.User, opts.Password))
	}
	return res
}

// readQuery returns query text, the argument is either the query itself or a file with it
func readQuery(arg string) (string, error) {
	if strings.TrimSpace(arg) == "" {
		return "", errors.New("no query provided")
	}
	fname, err := expandPath(arg)
	if err != nil || !fileutils.IsFile(fname) {
		return arg, nil
	}
	data, err := os.ReadFile(fname) // nolint
	if err != nil {
		return "", fmt.Errorf("can't read query file %s: %w", fname, err)
	}
	log.Printf("[DEBUG] query loaded from %s", fname)
	return string(data), nil
}

// showQuery prints the query as sent, marking client prefixes the query declares itself
func showQuery(w io.Writer, client *sparql.Client, query string) {
	declared := prefix.Declared(query)
	names := make([]string, 0, len(declared))
	for name := range client.Prefixes() {
		if _, ok := declared[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "prefix %q declared by the query, client value skipped\n", name)
	}
	fmt.Fprintln(w, color.New(color.FgHiBlack).Sprint(client.FormatQuery(query)))
}

// outputWriter returns file writer for non-empty fname or stdout
func outputWriter(fname string, stdout io.Writer) (io.Writer, func(), error) {
	if fname == "" {
		return stdout, func() {}, nil
	}
	fh, err := os.Create(fname) // nolint
	if err != nil {
		return nil, nil, fmt.Errorf("can't create output file %s: %w", fname, err)
	}
	return fh, func() {
		if err := fh.Close(); err != nil {
			log.Printf("[WARN] can't close %s: %v", fname, err)
		}
	}, nil
}

// makeSecretsProvider creates secrets provider based on options
func makeSecretsProvider(sopts SecretsProvider) (config.SecretsProvider, error) {
	switch sopts.Provider {
	case "none", "":
		return &secrets.NoOpProvider{}, nil
	case "store":
		return secrets.NewStore(sopts.Conn, []byte(sopts.Key))
	case "vault":
		return secrets.NewHashiVaultProvider(sopts.Vault.URL, sopts.Vault.Path, sopts.Vault.Token)
	case "aws":
		return secrets.NewAWSSecretsProvider(sopts.Aws.AccessKey, sopts.Aws.SecretKey, sopts.Aws.Region)
	case "ansible":
		return secrets.NewAnsibleVaultProvider(sopts.Ansible.File, sopts.Ansible.Password)
	}
	log.Printf("[WARN] unknown secrets provider %q", sopts.Provider)
	return &secrets.NoOpProvider{}, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		usr, err := user.Current()
		if err != nil {
			return "", err
		}
		return filepath.Join(usr.HomeDir, path[1:]), nil
	}
	return path, nil
}

func setupLog(dbg, verbose bool) {
	logOpts := []lgr.Option{lgr.Out(io.Discard), lgr.Err(io.Discard)} // default to discard
	switch {
	case dbg:
		logOpts = []lgr.Option{lgr.Debug, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError, lgr.Out(os.Stderr)}
	case verbose:
		logOpts = []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.Out(os.Stderr)}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
