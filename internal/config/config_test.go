package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestNew_Defaults(t *testing.T) {
	cfg := New()

	assert.Equal(t, "gocommerce.db", cfg.Database.Path)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, SenderLog, cfg.Notify.Sender)
	assert.Equal(t, 5*time.Second, cfg.Notify.Timeout)
	assert.False(t, cfg.Attributes.Lenient)
	assert.NoError(t, cfg.Validate())
	assert.Error(t, cfg.ValidateHTTP())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gocommerce.yaml")
	content := `
database:
  path: /var/lib/shop.db
http:
  addr: ":9090"
  corsOrigins: ["https://shop.example.com"]
auth:
  jwtSecret: from-file
  tokenTTL: 2h
attributes:
  lenient: true
notify:
  timeout: 750ms
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := New()
	require.NoError(t, cfg.LoadFile(path))

	assert.Equal(t, "/var/lib/shop.db", cfg.Database.Path)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, []string{"https://shop.example.com"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.True(t, cfg.Attributes.Lenient)
	assert.Equal(t, 750*time.Millisecond, cfg.Notify.Timeout)

	// Untouched keys keep defaults
	assert.Equal(t, "gocommerce", cfg.Auth.Issuer)
	assert.Equal(t, 256, cfg.Catalog.CacheSize)
}

func TestLoadFile_Errors(t *testing.T) {
	cfg := New()
	assert.Error(t, cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: [unclosed"), 0o600))
	assert.Error(t, cfg.LoadFile(path))
}

func TestApplyEnv(t *testing.T) {
	cfg := New()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"GOCOMMERCE_DB_PATH":            "env.db",
		"GOCOMMERCE_JWT_SECRET":         "s3cret",
		"GOCOMMERCE_NOTIFY_SENDER":      "sqs",
		"GOCOMMERCE_SQS_QUEUE_URL":      "https://sqs.example/queue",
		"GOCOMMERCE_ATTRIBUTES_LENIENT": "true",
		"GOCOMMERCE_CORS_ORIGINS":       "https://a.example, https://b.example",
		"GOCOMMERCE_NOTIFY_TIMEOUT":     "2s",
		"GOCOMMERCE_HTTP_ADDR":          "",
	}))
	require.NoError(t, err)

	assert.Equal(t, "env.db", cfg.Database.Path)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, SenderSQS, cfg.Notify.Sender)
	assert.True(t, cfg.Attributes.Lenient)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, 2*time.Second, cfg.Notify.Timeout)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.NoError(t, cfg.Validate())
	assert.NoError(t, cfg.ValidateHTTP())
}

func TestApplyEnv_Invalid(t *testing.T) {
	assert.Error(t, New().ApplyEnv(envMap(map[string]string{"GOCOMMERCE_ATTRIBUTES_LENIENT": "maybe"})))
	assert.Error(t, New().ApplyEnv(envMap(map[string]string{"GOCOMMERCE_TOKEN_TTL": "forever"})))
}

func TestValidate(t *testing.T) {
	cfg := New()
	cfg.Notify.Sender = SenderSQS
	assert.Error(t, cfg.Validate())

	cfg = New()
	cfg.Notify.Sender = "pigeon"
	assert.Error(t, cfg.Validate())

	cfg = New()
	cfg.Database.Path = ""
	assert.Error(t, cfg.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gocommerce.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  path: file.db\n"), 0o600))

	t.Setenv(EnvConfigFile, path)
	t.Setenv("GOCOMMERCE_JWT_SECRET", "from-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "file.db", cfg.Database.Path)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}
