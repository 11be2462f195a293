package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/and161185/jobsmv/internal/errs"
	"github.com/and161185/jobsmv/internal/model"
	"github.com/and161185/jobsmv/internal/repository"
	"github.com/and161185/jobsmv/internal/token"
)

// Verifier authenticates raw access tokens.
type Verifier interface {
	Verify(ctx context.Context, raw string) (*token.Claims, error)
}

// Gateway authenticates requests to protected endpoints.
type Gateway struct {
	verifier  Verifier
	employers repository.EmployerRepository
	log       *zap.Logger
}

// NewGateway constructs a Gateway.
func NewGateway(v Verifier, employers repository.EmployerRepository, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{verifier: v, employers: employers, log: log}
}

// Authenticate resolves the request's bearer token to an employer holding role.
// An empty role skips the role check.
func (g *Gateway) Authenticate(r *http.Request, role string) (*model.Employer, *token.Claims, error) {
	raw, present := bearerToken(r)
	if !present {
		return nil, nil, errs.ErrMissingCredential
	}
	if raw == "" {
		return nil, nil, fmt.Errorf("%w: bearer scheme required", errs.ErrMalformedCredential)
	}

	claims, err := g.verifier.Verify(r.Context(), raw)
	if err != nil {
		return nil, nil, err
	}
	if role != "" && !claims.HasRole(role) {
		return nil, nil, errs.ErrInsufficientRole
	}
	id, err := claims.Employer()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: bad employer_id", errs.ErrMalformedCredential)
	}

	e, err := g.employers.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, nil, errs.ErrUnknownTenant
		}
		return nil, nil, fmt.Errorf("load employer: %w", err)
	}
	return e, claims, nil
}

// Require rejects requests that do not carry a valid token with role and
// injects the employer and claims into the request context otherwise.
func (g *Gateway) Require(role string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			e, claims, err := g.Authenticate(r, role)
			if err != nil {
				g.log.Debug("authentication rejected", zap.String("path", r.URL.Path), zap.Error(err))
				writeError(w, r, g.log, err)
				return
			}
			ctx := WithClaims(WithEmployer(r.Context(), e), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
