// Command jobsmv is a CLI client for the jobsmv HTTP API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
)

// ---- token store ----

type tokenFile struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	EmployerID   string    `json:"employer_id"`
}

var errNoSession = errors.New("no saved session (login required)")

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "jobsmv")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "jobsmv")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveTokens(tf tokenFile) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tf)
}

func loadTokens() (tokenFile, error) {
	var tf tokenFile
	b, err := os.ReadFile(tokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return tf, errNoSession
	}
	if err != nil {
		return tf, err
	}
	if err := json.Unmarshal(b, &tf); err != nil {
		return tf, fmt.Errorf("token file: %w", err)
	}
	if tf.AccessToken == "" && tf.RefreshToken == "" {
		return tf, errNoSession
	}
	return tf, nil
}

func clearTokens() error {
	err := os.Remove(tokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// ---- utils ----

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func usage() {
	fmt.Fprintf(os.Stderr, `jobsmv CLI
Usage:
  jobsmv [--addr URL] [--timeout D] <cmd> [args]

Commands:
  version
  register   --company <name> --email <email> [--password <pw>] [--contact <json>]
  login      --email <email> [--password <pw>]       (saves tokens)
  refresh                                            (rotates the saved refresh token)
  logout
  status                                             (shows the saved session)
  me
  jobs       [--public] [--cursor <c>] [--page-size N] [--all]
  keygen     --private <file> --public <file> [--bits N] [--force]
`)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

type globals struct {
	addr    string
	timeout time.Duration
}

// main parses global flags and dispatches the subcommand.
func main() {
	fs := pflag.NewFlagSet("jobsmv", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	var g globals
	fs.StringVar(&g.addr, "addr", envOr("JOBSMV_URL", "http://localhost:8080"), "API base URL")
	fs.DurationVar(&g.timeout, "timeout", 30*time.Second, "request timeout")
	fs.Usage = usage
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	if fs.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	if err := run(ctx, g, fs.Arg(0), fs.Args()[1:], os.Stdout); err != nil {
		fail(err)
	}
}

func run(ctx context.Context, g globals, cmd string, args []string, out io.Writer) error {
	c := newClient(g.addr, nil)
	switch cmd {
	case "version":
		fmt.Fprintf(out, "jobsmv %s (%s)\n", version, buildDate)
		return nil
	case "register":
		return cmdRegister(ctx, c, args, out)
	case "login":
		return cmdLogin(ctx, c, args, out)
	case "refresh":
		return cmdRefresh(ctx, c, out)
	case "logout":
		return cmdLogout(ctx, c, out)
	case "status":
		return cmdStatus(out)
	case "me":
		return cmdMe(ctx, c, out)
	case "jobs":
		return cmdJobs(ctx, c, args, out)
	case "keygen":
		return cmdKeygen(args, out)
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func fail(err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		fmt.Fprintf(os.Stderr, "api error: status=%d code=%s msg=%s\n", ae.Status, ae.Code, ae.message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
