// Package service contains application services for authentication and job listings.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/jobsmv/internal/errs"
	"github.com/and161185/jobsmv/internal/limiter"
	"github.com/and161185/jobsmv/internal/model"
	"github.com/and161185/jobsmv/internal/refresh"
	"github.com/and161185/jobsmv/internal/repository"
	"github.com/and161185/jobsmv/internal/token"
)

// Rate-limited actions.
const (
	ActionRegister = "register"
	ActionLogin    = "login"
	ActionRefresh  = "refresh"
)

// DefaultLimits are the per-client budgets for each action.
var DefaultLimits = map[string]limiter.Rule{
	ActionRegister: {Limit: 5, Window: 300 * time.Second},
	ActionLogin:    {Limit: 10, Window: 60 * time.Second},
	ActionRefresh:  {Limit: 30, Window: 60 * time.Second},
}

const (
	minPassword = 8
	// bcrypt rejects longer inputs.
	maxPassword = 72
	maxName     = 255
)

// RegisterInput is a new employer account.
type RegisterInput struct {
	CompanyName string
	Email       string
	Password    string
	ContactInfo json.RawMessage
}

// AuthService defines the employer authentication lifecycle.
type AuthService interface {
	// Register creates an employer and signs it in.
	Register(ctx context.Context, in RegisterInput, clientIP string) (model.Tokens, error)
	// Login exchanges credentials for a token pair.
	Login(ctx context.Context, email, password, clientIP string) (model.Tokens, error)
	// Refresh rotates a refresh token and issues a new pair.
	Refresh(ctx context.Context, refreshToken, clientIP string) (model.Tokens, error)
	// Logout revokes the presented access token and, if given, the refresh token.
	Logout(ctx context.Context, accessToken, refreshToken string) error
}

// PasswordHasher hashes and verifies employer passwords.
type PasswordHasher interface {
	Hash(secret []byte) ([]byte, error)
	Verify(secret, hash []byte) bool
}

// TokenCodec issues, verifies and revokes access tokens.
type TokenCodec interface {
	Issue(ctx context.Context, sub token.Subject, ttl time.Duration) (token.Issued, error)
	Verify(ctx context.Context, raw string) (*token.Claims, error)
	Revoke(ctx context.Context, claims *token.Claims) error
}

// RefreshStore manages refresh token records.
type RefreshStore interface {
	Issue(ctx context.Context, employerID uuid.UUID) (string, error)
	Rotate(ctx context.Context, plaintext string) (refresh.Rotation, error)
	Revoke(ctx context.Context, plaintext string) error
}

// AuthDeps groups AuthServiceImpl collaborators.
type AuthDeps struct {
	Employers repository.EmployerRepository
	Passwords PasswordHasher
	Tokens    TokenCodec
	Refresh   RefreshStore
	Limiter   limiter.Limiter
	Log       *zap.Logger
	// Roles are granted to every employer token.
	Roles []string
	// Limits override DefaultLimits per action.
	Limits map[string]limiter.Rule
}

type AuthServiceImpl struct {
	employers repository.EmployerRepository
	passwords PasswordHasher
	tokens    TokenCodec
	refresh   RefreshStore
	lim       limiter.Limiter
	log       *zap.Logger
	roles     []string
	limits    map[string]limiter.Rule

	dummyOnce sync.Once
	dummyHash []byte
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(d AuthDeps) *AuthServiceImpl {
	s := &AuthServiceImpl{
		employers: d.Employers,
		passwords: d.Passwords,
		tokens:    d.Tokens,
		refresh:   d.Refresh,
		lim:       d.Limiter,
		log:       d.Log,
		roles:     d.Roles,
		limits:    make(map[string]limiter.Rule, len(DefaultLimits)),
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if len(s.roles) == 0 {
		s.roles = []string{model.RoleEmployerAdmin}
	}
	for k, v := range DefaultLimits {
		s.limits[k] = v
	}
	for k, v := range d.Limits {
		s.limits[k] = v
	}
	return s
}

// Register validates input, stores the employer and issues its first token pair.
func (s *AuthServiceImpl) Register(ctx context.Context, in RegisterInput, clientIP string) (model.Tokens, error) {
	if err := s.allow(ctx, ActionRegister, clientIP); err != nil {
		return model.Tokens{}, err
	}
	email, err := validateRegister(&in)
	if err != nil {
		return model.Tokens{}, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return model.Tokens{}, err
	}
	hash, err := s.passwords.Hash([]byte(in.Password))
	if err != nil {
		return model.Tokens{}, fmt.Errorf("hash password: %w", err)
	}
	e := &model.Employer{
		ID:           id,
		CompanyName:  strings.TrimSpace(in.CompanyName),
		Email:        email,
		PasswordHash: hash,
		ContactInfo:  in.ContactInfo,
	}
	if err := s.employers.Create(ctx, e); err != nil {
		return model.Tokens{}, err
	}
	s.log.Info("employer registered", zap.String("employer_id", id.String()))
	return s.issuePair(ctx, id)
}

// Login authenticates by email and password. Unknown emails and wrong passwords
// are indistinguishable to the caller.
func (s *AuthServiceImpl) Login(ctx context.Context, email, password, clientIP string) (model.Tokens, error) {
	if err := s.allow(ctx, ActionLogin, clientIP); err != nil {
		return model.Tokens{}, err
	}
	email = normalizeEmail(email)

	e, err := s.employers.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		// burn the same bcrypt work as a real comparison
		s.passwords.Verify([]byte(password), s.dummy())
		return model.Tokens{}, errs.ErrInvalidCredentials
	case err != nil:
		return model.Tokens{}, err
	}
	if !s.passwords.Verify([]byte(password), e.PasswordHash) {
		return model.Tokens{}, errs.ErrInvalidCredentials
	}
	return s.issuePair(ctx, e.ID)
}

// Refresh rotates refreshToken. The old token stops working even if issuing
// the new access token fails afterwards.
func (s *AuthServiceImpl) Refresh(ctx context.Context, refreshToken, clientIP string) (model.Tokens, error) {
	if err := s.allow(ctx, ActionRefresh, clientIP); err != nil {
		return model.Tokens{}, err
	}
	rot, err := s.refresh.Rotate(ctx, refreshToken)
	if err != nil {
		return model.Tokens{}, err
	}
	if _, err := s.employers.GetByID(ctx, rot.EmployerID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Tokens{}, errs.ErrInvalidRefreshToken
		}
		return model.Tokens{}, err
	}
	access, err := s.issueAccess(ctx, rot.EmployerID)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{
		AccessToken:  access.Token,
		RefreshToken: rot.Plaintext,
		EmployerID:   rot.EmployerID,
		ExpiresAt:    access.ExpiresAt,
	}, nil
}

// Logout blacklists accessToken when it still verifies and revokes refreshToken
// when present. Tokens that are already unusable are ignored; only backend
// failures are returned.
func (s *AuthServiceImpl) Logout(ctx context.Context, accessToken, refreshToken string) error {
	var errList []error
	if accessToken != "" {
		claims, err := s.tokens.Verify(ctx, accessToken)
		switch {
		case err == nil:
			if err := s.tokens.Revoke(ctx, claims); err != nil {
				errList = append(errList, fmt.Errorf("blacklist access token: %w", err))
			}
		case isAuthRejection(err):
		default:
			errList = append(errList, err)
		}
	}
	if refreshToken != "" {
		if err := s.refresh.Revoke(ctx, refreshToken); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

func (s *AuthServiceImpl) issuePair(ctx context.Context, employerID uuid.UUID) (model.Tokens, error) {
	access, err := s.issueAccess(ctx, employerID)
	if err != nil {
		return model.Tokens{}, err
	}
	rt, err := s.refresh.Issue(ctx, employerID)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{
		AccessToken:  access.Token,
		RefreshToken: rt,
		EmployerID:   employerID,
		ExpiresAt:    access.ExpiresAt,
	}, nil
}

func (s *AuthServiceImpl) issueAccess(ctx context.Context, employerID uuid.UUID) (token.Issued, error) {
	return s.tokens.Issue(ctx, token.Subject{
		Subject:    employerID.String(),
		EmployerID: employerID,
		Roles:      s.roles,
	}, 0)
}

func (s *AuthServiceImpl) allow(ctx context.Context, action, clientIP string) error {
	rule, ok := s.limits[action]
	if !ok || s.lim == nil {
		return nil
	}
	allowed, retry, err := s.lim.Allow(ctx, action+":"+clientIP, rule)
	if err != nil {
		return err
	}
	if !allowed {
		return &errs.RetryError{After: retry}
	}
	return nil
}

func (s *AuthServiceImpl) dummy() []byte {
	s.dummyOnce.Do(func() {
		h, err := s.passwords.Hash([]byte("jobsmv-timing-equalizer"))
		if err != nil {
			s.log.Warn("dummy hash", zap.Error(err))
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

func isAuthRejection(err error) bool {
	for _, e := range []error{
		errs.ErrMalformedCredential, errs.ErrSignatureInvalid,
		errs.ErrTokenExpired, errs.ErrTokenRevoked,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func validateRegister(in *RegisterInput) (string, error) {
	name := strings.TrimSpace(in.CompanyName)
	if name == "" || len(name) > maxName {
		return "", fmt.Errorf("%w: company_name must be 1..%d characters", errs.ErrValidation, maxName)
	}
	email := normalizeEmail(in.Email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: email is not a valid address", errs.ErrValidation)
	}
	if n := len(in.Password); n < minPassword || n > maxPassword {
		return "", fmt.Errorf("%w: password must be %d..%d bytes", errs.ErrValidation, minPassword, maxPassword)
	}
	if string(in.ContactInfo) == "null" {
		in.ContactInfo = nil
	}
	if len(in.ContactInfo) > 0 {
		var obj map[string]any
		if err := json.Unmarshal(in.ContactInfo, &obj); err != nil {
			return "", fmt.Errorf("%w: contact_info must be a JSON object", errs.ErrValidation)
		}
	}
	return email, nil
}
