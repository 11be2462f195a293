package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(nil, envMap(nil))
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Addr)
	require.Equal(t, "jobsmv-api", cfg.JWTAudience)
	require.Equal(t, "jobsmv-auth", cfg.JWTIssuer)
	require.Equal(t, 15*time.Minute, cfg.AccessTTL)
	require.Equal(t, 12, cfg.BcryptCost)
	require.Empty(t, cfg.RedisURL)
}

func TestLoad_PrecedenceFileEnvFlags(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "jobsmv.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9000"
jwt_aud: "file-aud"
jwt_iss: "file-iss"
access_ttl: 30m
bcrypt_rounds: 11
`), 0o600))

	env := envMap(map[string]string{
		"JWT_ISS":                         "env-iss",
		"JWT_ACCESS_TOKEN_EXPIRE_MINUTES": "5",
		"REDIS_URL":                       "redis://localhost:6379/0",
	})

	cfg, err := Load([]string{"--config", path, "--addr=:9100"}, env)
	require.NoError(t, err)
	require.Equal(t, ":9100", cfg.Addr)            // flag beats file
	require.Equal(t, "file-aud", cfg.JWTAudience)  // file beats default
	require.Equal(t, "env-iss", cfg.JWTIssuer)     // env beats file
	require.Equal(t, 5*time.Minute, cfg.AccessTTL) // env beats file
	require.Equal(t, 11, cfg.BcryptCost)           // file only
	require.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
}

func TestLoad_ConfigFromEnv(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jwks_kid: from-file\n"), 0o600))

	cfg, err := Load(nil, envMap(map[string]string{"JOBSMV_CONFIG": path}))
	require.NoError(t, err)
	require.Equal(t, "from-file", cfg.KeyID)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	_, err := Load([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}, envMap(nil))
	require.Error(t, err)

	_, err = Load(nil, envMap(map[string]string{"BCRYPT_ROUNDS": "x"}))
	require.Error(t, err)

	_, err = Load([]string{"--bcrypt-rounds", "4"}, envMap(nil))
	require.ErrorContains(t, err, "bcrypt rounds")

	_, err = Load([]string{"--key-bits", "1024"}, envMap(nil))
	require.ErrorContains(t, err, "key bits")

	_, err = Load([]string{"--no-such-flag"}, envMap(nil))
	require.Error(t, err)
}

func TestConfigPath(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a.yaml", configPath([]string{"--config", "a.yaml"}))
	require.Equal(t, "b.yaml", configPath([]string{"-addr", ":1", "--config=b.yaml"}))
	require.Equal(t, "c.yaml", configPath([]string{"-config", "c.yaml"}))
	require.Empty(t, configPath([]string{"config", "x"}))
	require.Empty(t, configPath([]string{"--config"}))
}

func TestInMemory(t *testing.T) {
	cfg, err := Load([]string{"--dsn", "memory://"}, func(string) string { return "" })
	require.NoError(t, err)
	require.True(t, cfg.InMemory())
	require.False(t, Default().InMemory())
}
