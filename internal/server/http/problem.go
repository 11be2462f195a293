package httpserver

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/and161185/jobsmv/internal/errs"
)

// Problem is an RFC 7807 error body.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

type problemKind struct {
	status int
	code   string
	title  string
}

var problems = []struct {
	err  error
	kind problemKind
}{
	{errs.ErrMissingCredential, problemKind{http.StatusUnauthorized, "missing_credential", "Authentication required"}},
	{errs.ErrMalformedCredential, problemKind{http.StatusUnauthorized, "malformed_credential", "Malformed credential"}},
	{errs.ErrSignatureInvalid, problemKind{http.StatusUnauthorized, "signature_invalid", "Invalid token signature"}},
	{errs.ErrTokenExpired, problemKind{http.StatusUnauthorized, "token_expired", "Token expired"}},
	{errs.ErrTokenRevoked, problemKind{http.StatusUnauthorized, "token_revoked", "Token revoked"}},
	{errs.ErrUnknownTenant, problemKind{http.StatusUnauthorized, "unknown_tenant", "Unknown employer"}},
	{errs.ErrInsufficientRole, problemKind{http.StatusForbidden, "insufficient_role", "Insufficient role"}},
	{errs.ErrInvalidCredentials, problemKind{http.StatusUnauthorized, "invalid_credentials", "Invalid email or password"}},
	{errs.ErrInvalidRefreshToken, problemKind{http.StatusUnauthorized, "invalid_refresh_token", "Invalid refresh token"}},
	{errs.ErrRateLimited, problemKind{http.StatusTooManyRequests, "rate_limited", "Too many requests"}},
	{errs.ErrValidation, problemKind{http.StatusBadRequest, "validation_error", "Invalid request"}},
	{errs.ErrAlreadyExists, problemKind{http.StatusConflict, "email_taken", "Email already registered"}},
	{errs.ErrNotFound, problemKind{http.StatusNotFound, "not_found", "Not found"}},
}

var internalProblem = problemKind{http.StatusInternalServerError, "internal", "Internal server error"}

// problemFor maps an error onto its HTTP problem. Unknown errors are internal.
func problemFor(err error) problemKind {
	for _, p := range problems {
		if errors.Is(err, p.err) {
			return p.kind
		}
	}
	return internalProblem
}

// writeError reports err as problem+json. Internal causes are logged, never returned.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	p := problemFor(err)
	detail := ""
	switch {
	case p.status == http.StatusInternalServerError:
		log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	case p.status == http.StatusBadRequest:
		detail = err.Error()
	}

	var re *errs.RetryError
	if errors.As(err, &re) {
		secs := int(math.Ceil(re.After.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
	}
	if p.status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	writeProblem(w, p, detail)
}

func writeProblem(w http.ResponseWriter, p problemKind, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:   "about:blank",
		Title:  p.title,
		Status: p.status,
		Code:   p.code,
		Detail: detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
