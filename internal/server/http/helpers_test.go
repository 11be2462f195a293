package httpserver

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/jobsmv/internal/blacklist"
	"github.com/and161185/jobsmv/internal/health"
	"github.com/and161185/jobsmv/internal/keys"
	"github.com/and161185/jobsmv/internal/limiter"
	"github.com/and161185/jobsmv/internal/refresh"
	"github.com/and161185/jobsmv/internal/repository/memory"
	"github.com/and161185/jobsmv/internal/service"
	"github.com/and161185/jobsmv/internal/token"
)

type plainHasher struct{}

func (plainHasher) Hash(s []byte) ([]byte, error) { return append([]byte("h:"), s...), nil }
func (plainHasher) Verify(s, h []byte) bool       { return bytes.Equal(h, append([]byte("h:"), s...)) }

type staticKeys struct {
	kp  *keys.Keypair
	err error
}

func (s staticKeys) LoadOrCreate(context.Context) (*keys.Keypair, error) { return s.kp, s.err }

var (
	keyOnce sync.Once
	testKP  *keys.Keypair
)

func testKeys() *keys.Keypair {
	keyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKP = &keys.Keypair{Private: k, Public: &k.PublicKey, KID: "http-test"}
	})
	return testKP
}

type harness struct {
	srv       *httptest.Server
	codec     *token.Codec
	employers *memory.Employers
	jobs      *memory.Jobs
	checker   *health.Checker
}

type harnessOpt func(*service.AuthDeps)

func newHarness(t *testing.T, opts ...harnessOpt) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)
	codec := token.NewCodec(staticKeys{kp: testKeys()}, blacklist.NewMemory(),
		token.Config{Audience: "jobsmv-api", Issuer: "jobsmv-auth", TTL: 15 * time.Minute})
	employers := memory.NewEmployers()
	jobs := memory.NewJobs()
	deps := service.AuthDeps{
		Employers: employers,
		Passwords: plainHasher{},
		Tokens:    codec,
		Refresh:   refresh.NewStore(memory.NewRefreshTokens(), plainHasher{}, time.Hour),
		Limiter:   limiter.NewMemory(),
		Log:       log,
	}
	for _, o := range opts {
		o(&deps)
	}
	checker := health.New(time.Second)
	s := New(Options{
		Auth:    service.NewAuthService(deps),
		Jobs:    service.NewJobService(jobs, 20, 100),
		Gateway: NewGateway(codec, employers, log),
		Keys:    staticKeys{kp: testKeys()},
		Health:  checker,
		Log:     log,
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &harness{srv: srv, codec: codec, employers: employers, jobs: jobs, checker: checker}
}

func (h *harness) do(t *testing.T, method, path, bearer string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func (h *harness) register(t *testing.T, email string) TokenResponse {
	t.Helper()
	resp, body := h.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"company_name": "Acme", "email": email, "password": "correct horse",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var tr TokenResponse
	require.NoError(t, json.Unmarshal(body, &tr))
	return tr
}

func problemCode(t *testing.T, resp *http.Response, body []byte) string {
	t.Helper()
	require.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
	var p Problem
	require.NoError(t, json.Unmarshal(body, &p))
	require.Equal(t, resp.StatusCode, p.Status)
	return p.Code
}
