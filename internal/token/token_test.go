package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/jobsmv/internal/blacklist"
	"github.com/and161185/jobsmv/internal/errs"
	"github.com/and161185/jobsmv/internal/keys"
)

type staticKeys struct {
	kp  *keys.Keypair
	err error
}

func (s staticKeys) LoadOrCreate(context.Context) (*keys.Keypair, error) { return s.kp, s.err }

var (
	keyOnce sync.Once
	testKP  *keys.Keypair
	otherKP *keys.Keypair
)

func testKeys(t *testing.T) (*keys.Keypair, *keys.Keypair) {
	t.Helper()
	keyOnce.Do(func() {
		a, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		b, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKP = &keys.Keypair{Private: a, Public: &a.PublicKey, KID: "test-kid"}
		otherKP = &keys.Keypair{Private: b, Public: &b.PublicKey, KID: "test-kid"}
	})
	return testKP, otherKP
}

func newCodec(t *testing.T) (*Codec, *blacklist.Memory) {
	t.Helper()
	kp, _ := testKeys(t)
	bl := blacklist.NewMemory()
	c := NewCodec(staticKeys{kp: kp}, bl, Config{Audience: "jobsmv-api", Issuer: "jobsmv-auth", TTL: time.Hour})
	return c, bl
}

func subject() Subject {
	id := uuid.Must(uuid.NewV4())
	return Subject{Subject: id.String(), EmployerID: id, Roles: []string{"employer_admin"}}
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	t.Parallel()
	c, _ := newCodec(t)
	ctx := context.Background()
	sub := subject()

	iss, err := c.Issue(ctx, sub, 0)
	require.NoError(t, err)
	require.NotEmpty(t, iss.JTI)

	claims, err := c.Verify(ctx, iss.Token)
	require.NoError(t, err)
	require.Equal(t, sub.Subject, claims.Subject)
	require.Equal(t, sub.EmployerID.String(), claims.EmployerID)
	require.Equal(t, sub.Roles, claims.Roles)
	require.True(t, claims.HasRole("employer_admin"))
	require.False(t, claims.HasRole("root"))
	require.Equal(t, iss.JTI, claims.ID)
	require.Equal(t, jwt.ClaimStrings{"jobsmv-api"}, claims.Audience)
	require.Equal(t, "jobsmv-auth", claims.Issuer)
	require.True(t, claims.ExpiresAt.After(claims.IssuedAt.Time))
	require.Equal(t, claims.IssuedAt.Unix(), claims.NotBefore.Unix())
	require.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 2*time.Second)

	emp, err := claims.Employer()
	require.NoError(t, err)
	require.Equal(t, sub.EmployerID, emp)
}

func TestIssue_HeaderAndUniqueJTI(t *testing.T) {
	t.Parallel()
	c, _ := newCodec(t)
	ctx := context.Background()
	sub := subject()

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		iss, err := c.Issue(ctx, sub, time.Minute)
		require.NoError(t, err)
		require.False(t, seen[iss.JTI], "duplicate jti")
		seen[iss.JTI] = true
		// 16 bytes, unpadded base64url
		require.Len(t, iss.JTI, 22)
		require.NotContains(t, iss.JTI, "=")

		parsed, _, err := jwt.NewParser().ParseUnverified(iss.Token, &Claims{})
		require.NoError(t, err)
		require.Equal(t, "RS256", parsed.Header["alg"])
		require.Equal(t, "test-kid", parsed.Header["kid"])
	}
}

func TestVerify_ExpiredAfterTTL(t *testing.T) {
	t.Parallel()
	c, _ := newCodec(t)
	ctx := context.Background()

	iss, err := c.Issue(ctx, subject(), 5*time.Minute)
	require.NoError(t, err)

	c.now = func() time.Time { return time.Now().Add(6 * time.Minute) }
	_, err = c.Verify(ctx, iss.Token)
	require.ErrorIs(t, err, errs.ErrTokenExpired)
}

func TestVerify_NotYetValid(t *testing.T) {
	t.Parallel()
	c, _ := newCodec(t)
	ctx := context.Background()

	c.now = func() time.Time { return time.Now().Add(time.Hour) }
	iss, err := c.Issue(ctx, subject(), 2*time.Hour)
	require.NoError(t, err)

	c.now = time.Now
	_, err = c.Verify(ctx, iss.Token)
	require.ErrorIs(t, err, errs.ErrTokenExpired)
}

func TestVerify_Revoked(t *testing.T) {
	t.Parallel()
	c, _ := newCodec(t)
	ctx := context.Background()

	iss, err := c.Issue(ctx, subject(), time.Minute)
	require.NoError(t, err)
	claims, err := c.Verify(ctx, iss.Token)
	require.NoError(t, err)

	require.NoError(t, c.Revoke(ctx, claims))
	_, err = c.Verify(ctx, iss.Token)
	require.ErrorIs(t, err, errs.ErrTokenRevoked)
}

func TestVerify_SignatureInvalid(t *testing.T) {
	t.Parallel()
	c, bl := newCodec(t)
	_, other := testKeys(t)
	ctx := context.Background()

	forger := NewCodec(staticKeys{kp: other}, bl, Config{Audience: "jobsmv-api", Issuer: "jobsmv-auth"})
	forged, err := forger.Issue(ctx, subject(), time.Minute)
	require.NoError(t, err)
	_, err = c.Verify(ctx, forged.Token)
	require.ErrorIs(t, err, errs.ErrSignatureInvalid)

	// flipped signature bytes
	good, err := c.Issue(ctx, subject(), time.Minute)
	require.NoError(t, err)
	i := strings.LastIndex(good.Token, ".")
	sig := []byte(good.Token[i+1:])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	_, err = c.Verify(ctx, good.Token[:i+1]+string(sig))
	require.ErrorIs(t, err, errs.ErrSignatureInvalid)
}

func TestVerify_WrongAudienceIssuerKidAlg(t *testing.T) {
	t.Parallel()
	c, bl := newCodec(t)
	kp, _ := testKeys(t)
	ctx := context.Background()

	aud := NewCodec(staticKeys{kp: kp}, bl, Config{Audience: "other", Issuer: "jobsmv-auth"})
	tok, err := aud.Issue(ctx, subject(), time.Minute)
	require.NoError(t, err)
	_, err = c.Verify(ctx, tok.Token)
	require.ErrorIs(t, err, errs.ErrSignatureInvalid)

	iss := NewCodec(staticKeys{kp: kp}, bl, Config{Audience: "jobsmv-api", Issuer: "other"})
	tok, err = iss.Issue(ctx, subject(), time.Minute)
	require.NoError(t, err)
	_, err = c.Verify(ctx, tok.Token)
	require.ErrorIs(t, err, errs.ErrSignatureInvalid)

	kid := NewCodec(staticKeys{kp: &keys.Keypair{Private: kp.Private, Public: kp.Public, KID: "old"}}, bl,
		Config{Audience: "jobsmv-api", Issuer: "jobsmv-auth"})
	tok, err = kid.Issue(ctx, subject(), time.Minute)
	require.NoError(t, err)
	_, err = c.Verify(ctx, tok.Token)
	require.ErrorIs(t, err, errs.ErrSignatureInvalid)

	// HS256 with the public key bytes must never be accepted
	hs := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "x", "employer_id": uuid.Must(uuid.NewV4()).String(), "jti": "j",
		"aud": "jobsmv-api", "iss": "jobsmv-auth",
		"iat": time.Now().Unix(), "exp": time.Now().Add(time.Minute).Unix(),
	})
	hs.Header["kid"] = "test-kid"
	s, err := hs.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = c.Verify(ctx, s)
	require.ErrorIs(t, err, errs.ErrSignatureInvalid)
}

func TestVerify_Malformed(t *testing.T) {
	t.Parallel()
	c, _ := newCodec(t)
	kp, _ := testKeys(t)
	ctx := context.Background()

	for _, raw := range []string{"", "   ", "abc", "a.b.c", "not.a.jwt.at.all"} {
		_, err := c.Verify(ctx, raw)
		require.ErrorIs(t, err, errs.ErrMalformedCredential, "raw=%q", raw)
	}

	// signed correctly but missing jti
	mc := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "x", "employer_id": uuid.Must(uuid.NewV4()).String(),
		"aud": "jobsmv-api", "iss": "jobsmv-auth",
		"iat": time.Now().Unix(), "exp": time.Now().Add(time.Minute).Unix(),
	})
	mc.Header["kid"] = kp.KID
	s, err := mc.SignedString(kp.Private)
	require.NoError(t, err)
	_, err = c.Verify(ctx, s)
	require.ErrorIs(t, err, errs.ErrMalformedCredential)

	// employer_id that is not a UUID
	mc = jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "x", "employer_id": "42", "jti": "j",
		"aud": "jobsmv-api", "iss": "jobsmv-auth",
		"iat": time.Now().Unix(), "exp": time.Now().Add(time.Minute).Unix(),
	})
	mc.Header["kid"] = kp.KID
	s, err = mc.SignedString(kp.Private)
	require.NoError(t, err)
	_, err = c.Verify(ctx, s)
	require.ErrorIs(t, err, errs.ErrMalformedCredential)
}

type failingBlacklist struct{}

func (failingBlacklist) Add(context.Context, string, time.Time) error { return errors.New("down") }
func (failingBlacklist) Contains(context.Context, string) (bool, error) {
	return false, errors.New("down")
}

func TestVerify_BlacklistFailureIsNotAuthError(t *testing.T) {
	t.Parallel()
	kp, _ := testKeys(t)
	c := NewCodec(staticKeys{kp: kp}, failingBlacklist{}, Config{Audience: "a", Issuer: "i"})
	ctx := context.Background()

	iss, err := c.Issue(ctx, subject(), time.Minute)
	require.NoError(t, err)
	_, err = c.Verify(ctx, iss.Token)
	require.Error(t, err)
	for _, e := range []error{errs.ErrMalformedCredential, errs.ErrSignatureInvalid, errs.ErrTokenExpired, errs.ErrTokenRevoked} {
		require.NotErrorIs(t, err, e)
	}
}

func TestIssue_KeyMaterialFailure(t *testing.T) {
	t.Parallel()
	c := NewCodec(staticKeys{err: errs.ErrKeyMaterial}, blacklist.NewMemory(), Config{})
	_, err := c.Issue(context.Background(), subject(), time.Minute)
	require.ErrorIs(t, err, errs.ErrKeyMaterial)
	_, err = c.Verify(context.Background(), "a.b.c")
	require.ErrorIs(t, err, errs.ErrKeyMaterial)
}

func TestPeek(t *testing.T) {
	t.Parallel()
	c, _ := newCodec(t)
	sub := subject()
	iss, err := c.Issue(context.Background(), sub, time.Minute)
	require.NoError(t, err)

	claims, err := Peek(iss.Token)
	require.NoError(t, err)
	require.Equal(t, iss.JTI, claims.ID)
	require.Equal(t, iss.ExpiresAt.Unix(), claims.ExpiresAt.Unix())

	_, err = Peek("junk")
	require.ErrorIs(t, err, errs.ErrMalformedCredential)
}

// clockBlacklist expires entries against a shared clock.
type clockBlacklist struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]time.Time
}

func (b *clockBlacklist) Add(_ context.Context, jti string, exp time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[jti] = exp
	return nil
}

func (b *clockBlacklist) Contains(_ context.Context, jti string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	exp, ok := b.entries[jti]
	return ok && exp.After(b.now()), nil
}

func TestRevoke_HoldsThroughLeeway(t *testing.T) {
	t.Parallel()
	kp, _ := testKeys(t)
	ctx := context.Background()

	now := time.Now()
	clock := func() time.Time { return now }
	bl := &clockBlacklist{now: clock, entries: map[string]time.Time{}}
	c := NewCodec(staticKeys{kp: kp}, bl, Config{Audience: "a", Issuer: "i", Leeway: time.Minute})
	c.now = clock

	iss, err := c.Issue(ctx, subject(), time.Second)
	require.NoError(t, err)
	claims, err := c.Verify(ctx, iss.Token)
	require.NoError(t, err)
	require.NoError(t, c.Revoke(ctx, claims))
	require.Equal(t, claims.ExpiresAt.Time.Add(time.Minute), bl.entries[claims.ID])

	// past exp but inside the leeway window
	now = now.Add(30 * time.Second)
	_, err = c.Verify(ctx, iss.Token)
	require.ErrorIs(t, err, errs.ErrTokenRevoked)

	now = now.Add(2 * time.Minute)
	_, err = c.Verify(ctx, iss.Token)
	require.ErrorIs(t, err, errs.ErrTokenExpired)
}
