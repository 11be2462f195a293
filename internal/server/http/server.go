// Package httpserver exposes the jobsmv HTTP API handlers.
package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/jobsmv/internal/errs"
	"github.com/and161185/jobsmv/internal/health"
	"github.com/and161185/jobsmv/internal/model"
	"github.com/and161185/jobsmv/internal/service"
)

const maxBody = 64 << 10

// Options wires services into the HTTP server.
type Options struct {
	Auth    service.AuthService
	Jobs    service.JobService
	Gateway *Gateway
	Keys    KeySource
	Health  *health.Checker
	Log     *zap.Logger
	// Role required on protected endpoints.
	Role string
}

// Server wires services into HTTP handlers.
type Server struct {
	auth    service.AuthService
	jobs    service.JobService
	gateway *Gateway
	keys    KeySource
	health  *health.Checker
	log     *zap.Logger
	role    string
}

// New constructs the HTTP server with injected services.
func New(o Options) *Server {
	s := &Server{
		auth: o.Auth, jobs: o.Jobs, gateway: o.Gateway, keys: o.Keys,
		health: o.Health, log: o.Log, role: o.Role,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.health == nil {
		s.health = health.New(0)
	}
	if s.role == "" {
		s.role = model.RoleEmployerAdmin
	}
	return s
}

// Handler returns the routed API with logging and panic recovery applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	protect := s.gateway.Require(s.role)

	mux.HandleFunc("POST /api/v1/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/v1/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/v1/auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/v1/auth/logout", s.handleLogout)
	mux.Handle("GET /api/v1/employers/me", protect(http.HandlerFunc(s.handleMe)))
	mux.Handle("GET /api/v1/jobs", protect(http.HandlerFunc(s.handleMyJobs)))
	mux.HandleFunc("GET /api/v1/public/jobs", s.handlePublicJobs)
	mux.HandleFunc("GET /api/v1/.well-known/jwks.json", s.handleJWKS)
	mux.HandleFunc("GET /health", s.handleLive)
	mux.HandleFunc("GET /health/ready", s.handleReady)

	return Chain(mux, Logging(s.log), Recover(s.log))
}

// HTTPServer returns an *http.Server for addr with conservative timeouts.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          zap.NewStdLog(s.log),
	}
}

// --- Auth ---

type registerRequest struct {
	CompanyName string          `json:"company_name"`
	Email       string          `json:"email"`
	Password    string          `json:"password"`
	ContactInfo json.RawMessage `json:"contact_info,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse is returned by register, login and refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	EmployerID   string `json:"employer_id"`
}

func tokenResponse(t model.Tokens) TokenResponse {
	return TokenResponse{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(time.Until(t.ExpiresAt).Round(time.Second).Seconds()),
		EmployerID:   t.EmployerID.String(),
	}
}

// Register creates an employer account.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, &req, false); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	toks, err := s.auth.Register(r.Context(), service.RegisterInput{
		CompanyName: req.CompanyName,
		Email:       req.Email,
		Password:    req.Password,
		ContactInfo: req.ContactInfo,
	}, clientIP(r))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse(toks))
}

// Login exchanges credentials for a token pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req, false); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	toks, err := s.auth.Login(r.Context(), req.Email, req.Password, clientIP(r))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse(toks))
}

// Refresh rotates a refresh token.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(w, r, &req, false); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if req.RefreshToken == "" {
		writeError(w, r, s.log, errs.ErrInvalidRefreshToken)
		return
	}
	toks, err := s.auth.Refresh(r.Context(), req.RefreshToken, clientIP(r))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse(toks))
}

// Logout always answers 204; backend failures are only logged.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	_ = decode(w, r, &req, true)
	access, _ := bearerToken(r)
	if err := s.auth.Logout(r.Context(), access, req.RefreshToken); err != nil {
		s.log.Warn("logout incomplete", zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Employers & jobs ---

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	e, ok := EmployerFromCtx(r.Context())
	if !ok {
		writeError(w, r, s.log, errs.ErrMissingCredential)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleMyJobs(w http.ResponseWriter, r *http.Request) {
	e, ok := EmployerFromCtx(r.Context())
	if !ok {
		writeError(w, r, s.log, errs.ErrMissingCredential)
		return
	}
	q := r.URL.Query()
	page, err := s.jobs.ListForEmployer(r.Context(), e.ID, q.Get("cursor"), pageSize(q.Get("page_size")))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handlePublicJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := s.jobs.ListPublished(r.Context(), q.Get("cursor"), pageSize(q.Get("page_size")))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// --- Health ---

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	fail := s.health.Run(r.Context())
	checks := make(map[string]string, len(s.health.Names()))
	for _, n := range s.health.Names() {
		checks[n] = "ok"
		if err := fail[n]; err != nil {
			s.log.Warn("readiness check failed", zap.String("check", n), zap.Error(err))
			checks[n] = "unavailable"
		}
	}
	status, code := "ready", http.StatusOK
	if len(fail) > 0 {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}

// decode reads a JSON body. With optional set, an empty body is not an error.
func decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(dst)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && optional:
		return nil
	case errors.Is(err, io.EOF):
		return fmt.Errorf("%w: request body required", errs.ErrValidation)
	}
	return fmt.Errorf("%w: invalid JSON body", errs.ErrValidation)
}

// pageSize parses the page_size query parameter; anything invalid selects the default.
func pageSize(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
