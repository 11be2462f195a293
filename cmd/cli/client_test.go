package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeAPI serves the subset of endpoints the CLI calls.
type fakeAPI struct {
	mu        sync.Mutex
	access    string
	refresh   string
	rotated   int
	loggedOut bool
}

func (f *fakeAPI) pair() tokenPair {
	return tokenPair{AccessToken: f.access, RefreshToken: f.refresh, TokenType: "bearer", ExpiresIn: 900, EmployerID: "emp-1"}
}

func problem(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "code": code, "title": http.StatusText(status)})
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["password"] != "s3cret-pass" {
			problem(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.access, f.refresh = "acc-1", "ref-1"
		_ = json.NewEncoder(w).Encode(f.pair())
	})
	mux.HandleFunc("POST /api/v1/auth/register", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.access, f.refresh = "acc-1", "ref-1"
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(f.pair())
	})
	mux.HandleFunc("POST /api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		defer f.mu.Unlock()
		if req["refresh_token"] != f.refresh {
			problem(w, http.StatusUnauthorized, "invalid_refresh_token")
			return
		}
		f.rotated++
		f.access, f.refresh = "acc-2", "ref-2"
		_ = json.NewEncoder(w).Encode(f.pair())
	})
	mux.HandleFunc("POST /api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.loggedOut = true
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/v1/employers/me", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		ok := r.Header.Get("Authorization") == "Bearer "+f.access
		f.mu.Unlock()
		if !ok {
			problem(w, http.StatusUnauthorized, "token_expired")
			return
		}
		_ = json.NewEncoder(w).Encode(employer{ID: "emp-1", CompanyName: "Acme", Email: "hr@acme.io"})
	})
	mux.HandleFunc("GET /api/v1/public/jobs", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("cursor") {
		case "":
			next := "c1"
			_ = json.NewEncoder(w).Encode(jobPage{Items: []job{{ID: "j1"}, {ID: "j2"}}, NextCursor: &next})
		case "c1":
			_ = json.NewEncoder(w).Encode(jobPage{Items: []job{{ID: "j3"}}})
		default:
			problem(w, http.StatusBadRequest, "validation_error")
		}
	})
	mux.HandleFunc("POST /api/v1/auth/busy", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		problem(w, http.StatusTooManyRequests, "rate_limited")
	})
	return mux
}

func newFake(t *testing.T) (*fakeAPI, *client) {
	t.Helper()
	_ = withTmpConfig(t)
	f := &fakeAPI{}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return f, newClient(srv.URL+"/", srv.Client())
}

func Test_LoginSavesTokens(t *testing.T) {
	_, c := newFake(t)
	var out bytes.Buffer
	if err := cmdLogin(t.Context(), c, []string{"--email", "hr@acme.io", "--password", "s3cret-pass"}, &out); err != nil {
		t.Fatalf("login: %v", err)
	}
	tf, err := loadTokens()
	if err != nil || tf.AccessToken != "acc-1" || tf.RefreshToken != "ref-1" {
		t.Fatalf("saved tokens: %+v %v", tf, err)
	}
	if d := time.Until(tf.ExpiresAt); d < 14*time.Minute || d > 15*time.Minute {
		t.Fatalf("expires_at off: %s", d)
	}
}

func Test_LoginBadPassword(t *testing.T) {
	_, c := newFake(t)
	err := cmdLogin(t.Context(), c, []string{"--email", "hr@acme.io", "--password", "wrong"}, &bytes.Buffer{})
	var ae *apiError
	if !errors.As(err, &ae) || ae.Status != http.StatusUnauthorized || ae.Code != "invalid_credentials" {
		t.Fatalf("want 401 invalid_credentials, got %v", err)
	}
	if _, err := loadTokens(); err != errNoSession {
		t.Fatalf("nothing should be saved, got %v", err)
	}
}

func Test_LoginPromptsForPassword(t *testing.T) {
	_, c := newFake(t)
	prev := readPassword
	readPassword = func() (string, error) { return "s3cret-pass", nil }
	t.Cleanup(func() { readPassword = prev })

	if err := cmdLogin(t.Context(), c, []string{"--email", "hr@acme.io"}, &bytes.Buffer{}); err != nil {
		t.Fatalf("login: %v", err)
	}
}

func Test_MeRefreshesOnceOn401(t *testing.T) {
	f, c := newFake(t)
	if _, err := c.login(t.Context(), "hr@acme.io", "s3cret-pass"); err != nil {
		t.Fatal(err)
	}
	// stale access token, valid refresh token
	if err := saveTokens(tokenFile{AccessToken: "stale", RefreshToken: "ref-1"}); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := cmdMe(t.Context(), c, &out); err != nil {
		t.Fatalf("me: %v", err)
	}
	if !strings.Contains(out.String(), "Acme") {
		t.Fatalf("unexpected output %q", out.String())
	}
	if f.rotated != 1 {
		t.Fatalf("rotated=%d, want 1", f.rotated)
	}
	tf, _ := loadTokens()
	if tf.AccessToken != "acc-2" || tf.RefreshToken != "ref-2" {
		t.Fatalf("rotated tokens not saved: %+v", tf)
	}
}

func Test_MeRefreshRejected(t *testing.T) {
	f, c := newFake(t)
	f.refresh = "ref-live"
	if err := saveTokens(tokenFile{AccessToken: "stale", RefreshToken: "ref-old"}); err != nil {
		t.Fatal(err)
	}
	err := cmdMe(t.Context(), c, &bytes.Buffer{})
	var ae *apiError
	if !errors.As(err, &ae) || ae.Code != "invalid_refresh_token" {
		t.Fatalf("want invalid_refresh_token, got %v", err)
	}
	if f.rotated != 0 {
		t.Fatalf("rotated=%d", f.rotated)
	}
}

func Test_LogoutClearsSession(t *testing.T) {
	f, c := newFake(t)
	if err := saveTokens(tokenFile{AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatal(err)
	}
	if err := cmdLogout(t.Context(), c, &bytes.Buffer{}); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if !f.loggedOut {
		t.Fatalf("server logout not called")
	}
	if _, err := loadTokens(); err != errNoSession {
		t.Fatalf("session not cleared: %v", err)
	}

	var out bytes.Buffer
	if err := cmdLogout(t.Context(), c, &out); err != nil || !strings.Contains(out.String(), "not logged in") {
		t.Fatalf("second logout: %q %v", out.String(), err)
	}
}

func Test_JobsFollowsCursor(t *testing.T) {
	_, c := newFake(t)
	var out bytes.Buffer
	if err := cmdJobs(t.Context(), c, []string{"--public", "--all"}, &out); err != nil {
		t.Fatalf("jobs: %v", err)
	}
	var items []job
	if err := json.Unmarshal(out.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 3 || items[2].ID != "j3" {
		t.Fatalf("items=%+v", items)
	}

	err := cmdJobs(t.Context(), c, []string{"--public", "--cursor", "bogus"}, &bytes.Buffer{})
	var ae *apiError
	if !errors.As(err, &ae) || ae.Status != http.StatusBadRequest {
		t.Fatalf("want 400, got %v", err)
	}
}

func Test_ProblemRetryAfter(t *testing.T) {
	_, c := newFake(t)
	err := c.do(t.Context(), http.MethodPost, "/api/v1/auth/busy", "", map[string]string{}, nil)
	var ae *apiError
	if !errors.As(err, &ae) || ae.RetryAfter != 7*time.Second || ae.Code != "rate_limited" {
		t.Fatalf("want 429 with retry, got %v", err)
	}
	if !strings.Contains(ae.Error(), "retry after 7s") {
		t.Fatalf("message %q", ae.Error())
	}
}

func Test_RegisterRejectsBadContact(t *testing.T) {
	_, c := newFake(t)
	err := cmdRegister(t.Context(), c, []string{"--company", "Acme", "--email", "a@b.io", "--password", "x", "--contact", "{"}, &bytes.Buffer{})
	if err == nil {
		t.Fatalf("want error for invalid contact JSON")
	}
	if err := cmdRegister(t.Context(), c, []string{"--company", "Acme", "--email", "a@b.io", "--password", "s3cret-pass", "--contact", `{"phone":"1"}`}, &bytes.Buffer{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if tf, err := loadTokens(); err != nil || tf.EmployerID != "emp-1" {
		t.Fatalf("saved: %+v %v", tf, err)
	}
}
