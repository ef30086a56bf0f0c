package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"
	"golang.org/x/term"

	"github.com/umputun/graphly/pkg/secrets"
)

type options struct {
	Key  string `short:"k" long:"key" env:"GRAPHLY_SECRETS_KEY" required:"true" description:"key to use for encryption/decryption"`
	Conn string `short:"c" long:"conn" env:"GRAPHLY_SECRETS_CONN" default:"graphly.db" description:"connection string of the credential store"`
	Dbg  bool   `long:"dbg" description:"debug mode"`

	SetCmd struct {
		PositionalArgs struct {
			Key   string `positional-arg-name:"key" required:"true" description:"secret key, i.e. endpoint password_secret"`
			Value string `positional-arg-name:"value" description:"secret value, asked interactively if omitted"`
		} `positional-args:"yes"`
	} `command:"set" description:"add or replace a secret"`

	GetCmd struct {
		PositionalArgs struct {
			Key string `positional-arg-name:"key" required:"true" description:"key to retrieve"`
		} `positional-args:"yes"`
	} `command:"get" description:"print a secret"`

	DeleteCmd struct {
		PositionalArgs struct {
			Key string `positional-arg-name:"key" required:"true" description:"key to delete"`
		} `positional-args:"yes"`
	} `command:"del" description:"delete a secret"`

	ListCmd struct {
		PositionalArgs struct {
			KeyPrefix string `positional-arg-name:"key-prefix" default:"*" description:"key prefix to list"`
		} `positional-args:"yes"`
	} `command:"list" description:"list secret keys"`
}

var revision = "latest"

var exitFunc = os.Exit

// readPassword asks for the value without echo, replaced in tests
var readPassword = func() (string, error) {
	fd := int(os.Stdin.Fd()) // nolint
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "value: ")
	data, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("can't read value: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func main() {
	fmt.Fprintf(os.Stderr, "graphly creds %s\n", revision)
	if err := runCommand(os.Args[1:], os.Stdout); err != nil {
		log.Printf("[WARN] %v", err)
		exitFunc(1) // can be redefined in tests
	}
}

func runCommand(args []string, stdout io.Writer) error {
	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.ParseArgs(args); err != nil {
		return err
	}
	setupLog(opts.Dbg)
	return run(p, opts, stdout)
}

func run(p *flags.Parser, opts options, stdout io.Writer) error {
	if p.Active == nil {
		return errors.New("no command set")
	}
	store, err := secrets.NewStore(opts.Conn, []byte(opts.Key))
	if err != nil {
		return fmt.Errorf("can't open credential store: %w", err)
	}
	defer store.Close() // nolint

	switch p.Active.Name {
	case "set":
		key, val := opts.SetCmd.PositionalArgs.Key, opts.SetCmd.PositionalArgs.Value
		log.Printf("[INFO] set command, key=%s", key)
		if val == "" {
			if val, err = readPassword(); err != nil {
				return fmt.Errorf("no value for key %q: %w", key, err)
			}
		}
		if val == "" {
			return fmt.Errorf("can't set empty secret for key %q", key)
		}
		if err = store.Set(key, val); err != nil {
			return fmt.Errorf("can't set secret for key %q: %w", key, err)
		}

	case "get":
		key := opts.GetCmd.PositionalArgs.Key
		log.Printf("[INFO] get command, key=%s", key)
		val, err := store.Get(key)
		if err != nil {
			return fmt.Errorf("can't get secret for key %q: %w", key, err)
		}
		fmt.Fprintln(stdout, val)

	case "del":
		key := opts.DeleteCmd.PositionalArgs.Key
		log.Printf("[INFO] del command, key=%s", key)
		if err = store.Delete(key); err != nil {
			return fmt.Errorf("can't delete secret for key %q: %w", key, err)
		}
		log.Printf("[INFO] key=%s deleted", key)

	case "list":
		log.Printf("[INFO] list command, key-prefix=%q", opts.ListCmd.PositionalArgs.KeyPrefix)
		keys, err := store.List(opts.ListCmd.PositionalArgs.KeyPrefix)
		if err != nil {
			return fmt.Errorf("can't list secrets: %w", err)
		}
		for _, k := range keys {
			fmt.Fprintln(stdout, k)
		}
	}
	return nil
}

func setupLog(dbg bool) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
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
