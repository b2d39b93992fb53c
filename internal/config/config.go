// Package config loads gocommerce settings from defaults, an optional YAML
// file and GOCOMMERCE_* environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigFile names the environment variable pointing at a YAML config file
const EnvConfigFile = "GOCOMMERCE_CONFIG"

// Notification sender names
const (
	SenderLog = "log"
	SenderSQS = "sqs"
)

// Config represents the complete configuration.
type Config struct {
	Database   Database   `yaml:"database"`
	HTTP       HTTP       `yaml:"http"`
	Auth       Auth       `yaml:"auth"`
	Attributes Attributes `yaml:"attributes"`
	Notify     Notify     `yaml:"notify"`
	Catalog    Catalog    `yaml:"catalog"`
}

// Database configures the SQLite store.
type Database struct {
	Path string `yaml:"path"`
}

// HTTP configures the REST API listener.
type HTTP struct {
	Addr            string        `yaml:"addr"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// Auth configures token issuance.
type Auth struct {
	JWTSecret string        `yaml:"jwtSecret"`
	TokenTTL  time.Duration `yaml:"tokenTTL"`
	Issuer    string        `yaml:"issuer"`
	Audience  string        `yaml:"audience"`
}

// Attributes configures how stored attribute blobs are decoded.
type Attributes struct {
	Lenient bool `yaml:"lenient"`
}

// Notify configures order confirmation delivery.
type Notify struct {
	Sender       string        `yaml:"sender"`
	SQSQueueURL  string        `yaml:"sqsQueueURL"`
	AWSRegion    string        `yaml:"awsRegion"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"pollInterval"`
	Workers      int           `yaml:"workers"`
}

// Catalog configures the category cache.
type Catalog struct {
	CacheSize int           `yaml:"cacheSize"`
	CacheTTL  time.Duration `yaml:"cacheTTL"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Database: Database{Path: "gocommerce.db"},
		HTTP: HTTP{
			Addr:            ":8080",
			CORSOrigins:     []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: Auth{
			TokenTTL: 24 * time.Hour,
			Issuer:   "gocommerce",
		},
		Notify: Notify{
			Sender:       SenderLog,
			Timeout:      5 * time.Second,
			PollInterval: 10 * time.Second,
			Workers:      4,
		},
		Catalog: Catalog{
			CacheSize: 256,
			CacheTTL:  5 * time.Minute,
		},
	}
}

// Load builds the configuration from defaults, the file named by
// GOCOMMERCE_CONFIG (if set) and the environment.
func Load() (*Config, error) {
	cfg := New()
	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays values from a YAML file. Keys absent from the file keep
// their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing YAML config: %w", err)
	}
	return nil
}

// ApplyEnv overlays GOCOMMERCE_* environment variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("GOCOMMERCE_DB_PATH", &c.Database.Path)
	str("GOCOMMERCE_HTTP_ADDR", &c.HTTP.Addr)
	str("GOCOMMERCE_JWT_SECRET", &c.Auth.JWTSecret)
	str("GOCOMMERCE_JWT_ISSUER", &c.Auth.Issuer)
	str("GOCOMMERCE_JWT_AUDIENCE", &c.Auth.Audience)
	str("GOCOMMERCE_NOTIFY_SENDER", &c.Notify.Sender)
	str("GOCOMMERCE_SQS_QUEUE_URL", &c.Notify.SQSQueueURL)
	str("AWS_REGION", &c.Notify.AWSRegion)
	str("GOCOMMERCE_AWS_REGION", &c.Notify.AWSRegion)

	if v, ok := lookup("GOCOMMERCE_CORS_ORIGINS"); ok && v != "" {
		origins := make([]string, 0)
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.HTTP.CORSOrigins = origins
	}

	if v, ok := lookup("GOCOMMERCE_ATTRIBUTES_LENIENT"); ok && v != "" {
		lenient, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("GOCOMMERCE_ATTRIBUTES_LENIENT: %w", err)
		}
		c.Attributes.Lenient = lenient
	}

	for key, dst := range map[string]*time.Duration{
		"GOCOMMERCE_TOKEN_TTL":      &c.Auth.TokenTTL,
		"GOCOMMERCE_NOTIFY_TIMEOUT": &c.Notify.Timeout,
		"GOCOMMERCE_NOTIFY_POLL":    &c.Notify.PollInterval,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks settings that every mode depends on
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	switch c.Notify.Sender {
	case SenderLog:
	case SenderSQS:
		if c.Notify.SQSQueueURL == "" {
			return fmt.Errorf("notify sender %q requires an SQS queue URL", SenderSQS)
		}
	default:
		return fmt.Errorf("unknown notify sender %q", c.Notify.Sender)
	}
	if c.Notify.Timeout <= 0 {
		return fmt.Errorf("notify timeout must be positive")
	}
	return nil
}

// ValidateHTTP checks the settings the REST API additionally needs
func (c *Config) ValidateHTTP() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt secret is required (set GOCOMMERCE_JWT_SECRET)")
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http address is required")
	}
	return nil
}
