// Package keys loads or creates the RSA keypair used to sign access tokens.
package keys

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/jobsmv/internal/errs"
)

// MinBits is the smallest accepted RSA modulus.
const MinBits = 2048

const (
	privatePerm fs.FileMode = 0o600
	publicPerm  fs.FileMode = 0o644
	dirPerm     fs.FileMode = 0o700
)

// Keypair is the signing key material plus its key identifier.
type Keypair struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
	KID     string
}

// Paths locates the PEM files on disk.
type Paths struct {
	Private string
	Public  string
}

// Manager lazily loads (or generates on first use) the keypair and caches it.
type Manager struct {
	paths Paths
	bits  int
	kid   string
	log   *zap.Logger

	mu     sync.Mutex
	cached *Keypair
}

// NewManager constructs a Manager. An empty kid is derived from the public key.
func NewManager(paths Paths, bits int, kid string, log *zap.Logger) *Manager {
	if bits < MinBits {
		bits = MinBits
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{paths: paths, bits: bits, kid: kid, log: log}
}

// LoadOrCreate returns the keypair, generating and persisting it when neither
// file exists. All failures wrap errs.ErrKeyMaterial.
func (m *Manager) LoadOrCreate(ctx context.Context) (*Keypair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached != nil {
		return m.cached, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	privExists, err := exists(m.paths.Private)
	if err != nil {
		return nil, keyErr("stat private key", err)
	}
	pubExists, err := exists(m.paths.Public)
	if err != nil {
		return nil, keyErr("stat public key", err)
	}

	var kp *Keypair
	switch {
	case privExists && pubExists:
		kp, err = Load(m.paths)
	case !privExists && !pubExists:
		m.log.Warn("signing keys not found, generating",
			zap.String("private", m.paths.Private),
			zap.String("public", m.paths.Public),
			zap.Int("bits", m.bits),
		)
		kp, err = Generate(m.paths, m.bits, false)
	default:
		err = keyErr("load", errors.New("only one of the private/public key files exists"))
	}
	if err != nil {
		return nil, err
	}

	if m.kid != "" {
		kp.KID = m.kid
	}
	m.cached = kp
	return kp, nil
}

// Load reads both PEM files and checks that they belong together.
func Load(paths Paths) (*Keypair, error) {
	privPEM, err := os.ReadFile(paths.Private)
	if err != nil {
		return nil, keyErr("read private key", err)
	}
	pubPEM, err := os.ReadFile(paths.Public)
	if err != nil {
		return nil, keyErr("read public key", err)
	}

	priv, err := ParsePrivateKey(privPEM)
	if err != nil {
		return nil, err
	}
	pub, err := ParsePublicKey(pubPEM)
	if err != nil {
		return nil, err
	}
	if !priv.PublicKey.Equal(pub) {
		return nil, keyErr("load", errors.New("public key does not match private key"))
	}
	return &Keypair{Private: priv, Public: pub, KID: Thumbprint(pub)}, nil
}

// Generate creates a fresh RSA keypair and writes it to paths. Existing files
// are replaced only when force is set; replacing the pair invalidates every
// access token signed with the previous one.
func Generate(paths Paths, bits int, force bool) (*Keypair, error) {
	if bits < MinBits {
		return nil, keyErr("generate", fmt.Errorf("modulus %d bits < %d", bits, MinBits))
	}
	if !force {
		for _, p := range []string{paths.Private, paths.Public} {
			ok, err := exists(p)
			if err != nil {
				return nil, keyErr("stat", err)
			}
			if ok {
				return nil, keyErr("generate", fmt.Errorf("%s already exists", p))
			}
		}
	}

	// rsa.GenerateKey always uses e=65537.
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, keyErr("generate", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, keyErr("marshal private key", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, keyErr("marshal public key", err)
	}

	if err := writePEM(paths.Private, "PRIVATE KEY", privDER, privatePerm); err != nil {
		return nil, err
	}
	if err := writePEM(paths.Public, "PUBLIC KEY", pubDER, publicPerm); err != nil {
		return nil, err
	}
	return &Keypair{Private: priv, Public: &priv.PublicKey, KID: Thumbprint(&priv.PublicKey)}, nil
}

// ParsePrivateKey decodes a PKCS#8 (or legacy PKCS#1) RSA private key PEM.
func ParsePrivateKey(b []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, keyErr("parse private key", errors.New("no PEM block"))
	}
	var key any
	var err error
	switch block.Type {
	case "PRIVATE KEY":
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	default:
		err = fmt.Errorf("unexpected PEM type %q", block.Type)
	}
	if err != nil {
		return nil, keyErr("parse private key", err)
	}
	rk, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, keyErr("parse private key", fmt.Errorf("not an RSA key: %T", key))
	}
	if rk.N.BitLen() < MinBits {
		return nil, keyErr("parse private key", fmt.Errorf("modulus %d bits < %d", rk.N.BitLen(), MinBits))
	}
	return rk, nil
}

// ParsePublicKey decodes a SubjectPublicKeyInfo RSA public key PEM.
func ParsePublicKey(b []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, keyErr("parse public key", errors.New("no PEM block"))
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, keyErr("parse public key", err)
	}
	rk, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, keyErr("parse public key", fmt.Errorf("not an RSA key: %T", key))
	}
	return rk, nil
}

// Thumbprint derives a short stable key id from the DER public key.
func Thumbprint(pub *rsa.PublicKey) string {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(der)
	return base64.RawURLEncoding.EncodeToString(sum[:12])
}

func writePEM(path, typ string, der []byte, perm fs.FileMode) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return keyErr("mkdir", err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return keyErr("open "+path, err)
	}
	if err := pem.Encode(f, &pem.Block{Type: typ, Bytes: der}); err != nil {
		_ = f.Close()
		return keyErr("write "+path, err)
	}
	if err := f.Close(); err != nil {
		return keyErr("close "+path, err)
	}
	// umask may have narrowed the mode on create; O_TRUNC keeps the old mode.
	if err := os.Chmod(path, perm); err != nil {
		return keyErr("chmod "+path, err)
	}
	return nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func keyErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", errs.ErrKeyMaterial, op, err)
}
