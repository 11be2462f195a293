package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func withTmpConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return filepath.Join(dir, "jobsmv")
}

func Test_cfgDir_And_Paths(t *testing.T) {
	base := withTmpConfig(t)
	if got := cfgDir(); got != base {
		t.Fatalf("cfgDir=%q, want %q", got, base)
	}
	if !strings.HasPrefix(tokenPath(), base) || !strings.HasSuffix(tokenPath(), "token.json") {
		t.Fatalf("tokenPath unexpected: %s", tokenPath())
	}
}

func Test_tokens_SaveLoadClear(t *testing.T) {
	_ = withTmpConfig(t)

	if _, err := loadTokens(); err != errNoSession {
		t.Fatalf("want errNoSession, got %v", err)
	}
	in := tokenFile{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Minute).UTC(), EmployerID: "e"}
	if err := saveTokens(in); err != nil {
		t.Fatalf("saveTokens: %v", err)
	}
	st, err := os.Stat(tokenPath())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.Mode().Perm() != 0o600 {
		t.Fatalf("token file perm %v, want 0600", st.Mode().Perm())
	}
	got, err := loadTokens()
	if err != nil || got.AccessToken != "a" || got.RefreshToken != "r" || got.EmployerID != "e" {
		t.Fatalf("loadTokens: %+v %v", got, err)
	}

	if err := clearTokens(); err != nil {
		t.Fatalf("clearTokens: %v", err)
	}
	if err := clearTokens(); err != nil {
		t.Fatalf("clearTokens twice: %v", err)
	}
	if _, err := loadTokens(); err != errNoSession {
		t.Fatalf("want errNoSession after clear, got %v", err)
	}
}

func Test_loadTokens_Corrupt(t *testing.T) {
	_ = withTmpConfig(t)
	_ = os.MkdirAll(cfgDir(), 0o700)
	if err := os.WriteFile(tokenPath(), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadTokens(); err == nil || err == errNoSession {
		t.Fatalf("want decode error, got %v", err)
	}
}

func Test_run_VersionAndUnknown(t *testing.T) {
	var out bytes.Buffer
	if err := run(t.Context(), globals{addr: "http://127.0.0.1:1"}, "version", nil, &out); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out.String(), "jobsmv ") {
		t.Fatalf("version output %q", out.String())
	}
	if err := run(t.Context(), globals{}, "nope", nil, &out); err == nil {
		t.Fatalf("want error for unknown command")
	}
}

func Test_keygen(t *testing.T) {
	dir := t.TempDir()
	priv := filepath.Join(dir, "k.pem")
	pub := filepath.Join(dir, "k.pub")
	var out bytes.Buffer
	args := []string{"--private", priv, "--public", pub}
	if err := cmdKeygen(args, &out); err != nil {
		t.Fatalf("keygen: %v", err)
	}
	if strings.TrimSpace(out.String()) == "" {
		t.Fatalf("kid not printed")
	}
	if err := cmdKeygen(args, &out); err == nil {
		t.Fatalf("want error when keys exist without --force")
	}
	if err := cmdKeygen(append(args, "--force"), &out); err != nil {
		t.Fatalf("keygen --force: %v", err)
	}
}

func Test_envOr(t *testing.T) {
	t.Setenv("JOBSMV_TEST_ENV", "x")
	if envOr("JOBSMV_TEST_ENV", "d") != "x" || envOr("JOBSMV_TEST_UNSET", "d") != "d" {
		t.Fatalf("envOr mismatch")
	}
}
