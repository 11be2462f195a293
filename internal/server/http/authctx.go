package httpserver

import (
	"context"

	"github.com/and161185/jobsmv/internal/model"
	"github.com/and161185/jobsmv/internal/token"
)

type ctxKey string

const (
	employerKey ctxKey = "jobsmv.employer"
	claimsKey   ctxKey = "jobsmv.claims"
)

// WithEmployer stores the authenticated employer in context.
func WithEmployer(ctx context.Context, e *model.Employer) context.Context {
	return context.WithValue(ctx, employerKey, e)
}

// EmployerFromCtx fetches the authenticated employer from context.
func EmployerFromCtx(ctx context.Context) (*model.Employer, bool) {
	e, ok := ctx.Value(employerKey).(*model.Employer)
	return e, ok && e != nil
}

// WithClaims stores verified access token claims in context.
func WithClaims(ctx context.Context, c *token.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// ClaimsFromCtx fetches verified access token claims from context.
func ClaimsFromCtx(ctx context.Context) (*token.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*token.Claims)
	return c, ok && c != nil
}
