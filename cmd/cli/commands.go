package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/and161185/jobsmv/internal/keys"
	"github.com/and161185/jobsmv/internal/token"
)

// readPassword is swapped in tests.
var readPassword = func() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	return string(b), err
}

func passwordOrPrompt(p string) (string, error) {
	if p != "" {
		return p, nil
	}
	return readPassword()
}

func newFlags(name string) *pflag.FlagSet {
	return pflag.NewFlagSet(name, pflag.ContinueOnError)
}

func cmdRegister(ctx context.Context, c *client, args []string, out io.Writer) error {
	fs := newFlags("register")
	company := fs.String("company", "", "company name")
	email := fs.String("email", "", "login email")
	pw := fs.String("password", "", "password (prompted when empty)")
	contact := fs.String("contact", "", "contact info JSON object")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *company == "" || *email == "" {
		return errors.New("need --company and --email")
	}
	if *contact != "" && !json.Valid([]byte(*contact)) {
		return errors.New("--contact must be valid JSON")
	}
	password, err := passwordOrPrompt(*pw)
	if err != nil {
		return err
	}

	pair, err := c.register(ctx, *company, *email, password, json.RawMessage(*contact))
	if err != nil {
		return err
	}
	if err := saveTokens(pair.file()); err != nil {
		return err
	}
	fmt.Fprintln(out, pair.EmployerID)
	return nil
}

func cmdLogin(ctx context.Context, c *client, args []string, out io.Writer) error {
	fs := newFlags("login")
	email := fs.String("email", "", "login email")
	pw := fs.String("password", "", "password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("need --email")
	}
	password, err := passwordOrPrompt(*pw)
	if err != nil {
		return err
	}

	pair, err := c.login(ctx, *email, password)
	if err != nil {
		return err
	}
	if err := saveTokens(pair.file()); err != nil {
		return err
	}
	fmt.Fprintln(out, "ok")
	return nil
}

func cmdRefresh(ctx context.Context, c *client, out io.Writer) error {
	tf, err := loadTokens()
	if err != nil {
		return err
	}
	if tf.RefreshToken == "" {
		return errNoSession
	}
	pair, err := c.refresh(ctx, tf.RefreshToken)
	if err != nil {
		return err
	}
	if err := saveTokens(pair.file()); err != nil {
		return err
	}
	fmt.Fprintln(out, "ok")
	return nil
}

// cmdLogout revokes the session server-side and always forgets it locally.
func cmdLogout(ctx context.Context, c *client, out io.Writer) error {
	tf, err := loadTokens()
	if errors.Is(err, errNoSession) {
		fmt.Fprintln(out, "not logged in")
		return nil
	}
	if err != nil {
		return err
	}
	rerr := c.logout(ctx, tf)
	if err := clearTokens(); err != nil {
		return err
	}
	if rerr != nil {
		return fmt.Errorf("local session cleared, server logout failed: %w", rerr)
	}
	fmt.Fprintln(out, "ok")
	return nil
}

// cmdStatus prints the saved session. Claims are decoded without verification.
func cmdStatus(out io.Writer) error {
	tf, err := loadTokens()
	if err != nil {
		return err
	}
	claims, err := token.Peek(tf.AccessToken)
	if err != nil {
		return err
	}
	exp := tf.ExpiresAt
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	state := "valid"
	if time.Now().After(exp) {
		state = "expired"
	}
	printJSON(out, map[string]any{
		"employer_id": claims.EmployerID,
		"roles":       claims.Roles,
		"expires_at":  exp.UTC().Format(time.RFC3339),
		"access":      state,
		"refreshable": tf.RefreshToken != "",
	})
	return nil
}

func cmdMe(ctx context.Context, c *client, out io.Writer) error {
	e, err := c.me(ctx)
	if err != nil {
		return err
	}
	printJSON(out, e)
	return nil
}

func cmdJobs(ctx context.Context, c *client, args []string, out io.Writer) error {
	fs := newFlags("jobs")
	public := fs.Bool("public", false, "list published jobs of all employers")
	cursor := fs.String("cursor", "", "cursor from a previous page")
	size := fs.Int("page-size", 0, "page size (server default when 0)")
	all := fs.Bool("all", false, "follow next_cursor until the last page")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*all {
		page, err := c.jobs(ctx, *public, *cursor, *size)
		if err != nil {
			return err
		}
		printJSON(out, page)
		return nil
	}

	items := []job{}
	next := *cursor
	for {
		page, err := c.jobs(ctx, *public, next, *size)
		if err != nil {
			return err
		}
		items = append(items, page.Items...)
		if page.NextCursor == nil {
			break
		}
		next = *page.NextCursor
	}
	printJSON(out, items)
	return nil
}

func cmdKeygen(args []string, out io.Writer) error {
	fs := newFlags("keygen")
	priv := fs.String("private", "keys/jwt-private.pem", "private key path")
	pub := fs.String("public", "keys/jwt-public.pem", "public key path")
	bits := fs.Int("bits", 2048, "RSA modulus size")
	force := fs.Bool("force", false, "overwrite existing files")
	if err := fs.Parse(args); err != nil {
		return err
	}
	kp, err := keys.Generate(keys.Paths{Private: *priv, Public: *pub}, *bits, *force)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, kp.KID)
	return nil
}
