package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/and161185/jobsmv/internal/keys"
)

// KeySource yields the current signing keypair.
type KeySource interface {
	LoadOrCreate(ctx context.Context) (*keys.Keypair, error)
}

// PublicJWKS renders the public half of kp as a JSON Web Key Set.
func PublicJWKS(kp *keys.Keypair) ([]byte, error) {
	key, err := jwk.Import(kp.Public)
	if err != nil {
		return nil, fmt.Errorf("jwk import: %w", err)
	}
	for name, v := range map[string]any{
		jwk.KeyIDKey:     kp.KID,
		jwk.AlgorithmKey: jwa.RS256(),
		jwk.KeyUsageKey:  jwk.ForSignature,
	} {
		if err := key.Set(name, v); err != nil {
			return nil, fmt.Errorf("jwk set %s: %w", name, err)
		}
	}
	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		return nil, fmt.Errorf("jwks add: %w", err)
	}
	return json.Marshal(set)
}

func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	kp, err := s.keys.LoadOrCreate(r.Context())
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	body, err := PublicJWKS(kp)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	w.Header().Set("Content-Type", "application/jwk-set+json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(body)
}
