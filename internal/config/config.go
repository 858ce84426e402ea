package config

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete portal configuration. Values come from the
// environment (P4_* variables) with an optional YAML file underneath;
// environment always wins.
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Security SecurityConfig `yaml:"security" envconfig:"SECURITY"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Database DatabaseConfig `yaml:"database" envconfig:"DATABASE"`
	Crypto   CryptoConfig   `yaml:"crypto" envconfig:"CRYPTO"`
	Auth     AuthConfig     `yaml:"auth" envconfig:"AUTH"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// SecurityConfig contains CORS and rate limiting configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS" default:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/portal.log"`
}

// DatabaseConfig contains SQLite and backup configuration
type DatabaseConfig struct {
	Path           string        `yaml:"path" envconfig:"PATH" default:"data/portal.db"`
	BackupDir      string        `yaml:"backup_dir" envconfig:"BACKUP_DIR" default:"data/backups"`
	BackupInterval time.Duration `yaml:"backup_interval" envconfig:"BACKUP_INTERVAL" default:"24h"`
	BackupRetain   int           `yaml:"backup_retain" envconfig:"BACKUP_RETAIN" default:"7"`
}

// CryptoConfig holds the key material for signing and sealing licenses. All
// keys arrive base64-encoded; a missing or malformed value is a fatal
// startup error, never a runtime fallback.
type CryptoConfig struct {
	// Ed25519PrivateKey is the base64 64-byte signing key. Optional for
	// verify-only deployments.
	Ed25519PrivateKey string `yaml:"ed25519_private_key" envconfig:"ED25519_PRIVATE_KEY"`
	// Ed25519PublicKey is the base64 32-byte verification key. Required.
	Ed25519PublicKey string `yaml:"ed25519_public_key" envconfig:"ED25519_PUBLIC_KEY"`
	// Passphrases maps key version to the AES passphrase for that version.
	Passphrases map[int]string `yaml:"passphrases" envconfig:"PASSPHRASES"`
	// ActiveKeyVersion selects the passphrase used for new seals.
	ActiveKeyVersion int `yaml:"active_key_version" envconfig:"ACTIVE_KEY_VERSION" default:"1"`
	// KeySalt is the base64 scrypt salt, at least 16 bytes decoded.
	KeySalt string `yaml:"key_salt" envconfig:"KEY_SALT"`
}

// AuthConfig contains session token configuration
type AuthConfig struct {
	Issuer   string        `yaml:"issuer" envconfig:"ISSUER" default:"p4portal"`
	Audience string        `yaml:"audience" envconfig:"AUDIENCE" default:"p4portal-api"`
	TokenTTL time.Duration `yaml:"token_ttl" envconfig:"TOKEN_TTL" default:"1h"`
	// SigningKey and VerifyKey are base64 Ed25519 keys for session tokens,
	// independent of the license signing pair.
	SigningKey string `yaml:"signing_key" envconfig:"SIGNING_KEY"`
	VerifyKey  string `yaml:"verify_key" envconfig:"VERIFY_KEY"`
	// BootstrapSecret is the shared secret operators exchange for a session
	// token. Leaving it empty disables the token exchange endpoint.
	BootstrapSecret string `yaml:"bootstrap_secret" envconfig:"BOOTSTRAP_SECRET"`
}

// Load loads configuration from environment variables and an optional config
// file (P4_CONFIG_FILE, default config.yaml).
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("P4", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	configFile := os.Getenv("P4_CONFIG_FILE")
	if configFile == "" {
		configFile = "config.yaml"
	}
	if _, err := os.Stat(configFile); err == nil {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileCfg, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeConfigs merges file config under env config (env takes precedence)
func mergeConfigs(fileConfig, envConfig Config) Config {
	if envConfig.Server.Port == 0 {
		envConfig.Server.Port = fileConfig.Server.Port
	}
	if envConfig.Database.Path == "" {
		envConfig.Database.Path = fileConfig.Database.Path
	}
	if envConfig.Database.BackupDir == "" {
		envConfig.Database.BackupDir = fileConfig.Database.BackupDir
	}
	if envConfig.Crypto.Ed25519PrivateKey == "" {
		envConfig.Crypto.Ed25519PrivateKey = fileConfig.Crypto.Ed25519PrivateKey
	}
	if envConfig.Crypto.Ed25519PublicKey == "" {
		envConfig.Crypto.Ed25519PublicKey = fileConfig.Crypto.Ed25519PublicKey
	}
	if len(envConfig.Crypto.Passphrases) == 0 {
		envConfig.Crypto.Passphrases = fileConfig.Crypto.Passphrases
	}
	if envConfig.Crypto.KeySalt == "" {
		envConfig.Crypto.KeySalt = fileConfig.Crypto.KeySalt
	}
	if envConfig.Auth.SigningKey == "" {
		envConfig.Auth.SigningKey = fileConfig.Auth.SigningKey
	}
	if envConfig.Auth.VerifyKey == "" {
		envConfig.Auth.VerifyKey = fileConfig.Auth.VerifyKey
	}
	if envConfig.Auth.BootstrapSecret == "" {
		envConfig.Auth.BootstrapSecret = fileConfig.Auth.BootstrapSecret
	}
	return envConfig
}

// validate checks configuration values that would otherwise fail deep inside
// the service. Key material is decoded separately by the crypto accessors.
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Crypto.Ed25519PublicKey == "" {
		return fmt.Errorf("crypto.ed25519_public_key is required")
	}
	if len(c.Crypto.Passphrases) == 0 {
		return fmt.Errorf("crypto.passphrases must contain at least one key version")
	}
	if _, ok := c.Crypto.Passphrases[c.Crypto.ActiveKeyVersion]; !ok {
		return fmt.Errorf("crypto.active_key_version %d has no passphrase", c.Crypto.ActiveKeyVersion)
	}
	if c.Crypto.KeySalt == "" {
		return fmt.Errorf("crypto.key_salt is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

// SigningKeys decodes the license signing key pair. The private key may be
// absent for verify-only deployments.
func (c *CryptoConfig) SigningKeys() (ed25519.PrivateKey, ed25519.PublicKey, error) {
	pub, err := base64.StdEncoding.DecodeString(c.Ed25519PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid ed25519 public key encoding: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, nil, fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}

	var priv ed25519.PrivateKey
	if c.Ed25519PrivateKey != "" {
		raw, err := base64.StdEncoding.DecodeString(c.Ed25519PrivateKey)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid ed25519 private key encoding: %w", err)
		}
		if len(raw) != ed25519.PrivateKeySize {
			return nil, nil, fmt.Errorf("ed25519 private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
		}
		priv = ed25519.PrivateKey(raw)
	}
	return priv, ed25519.PublicKey(pub), nil
}

// Salt decodes the scrypt salt.
func (c *CryptoConfig) Salt() ([]byte, error) {
	salt, err := base64.StdEncoding.DecodeString(c.KeySalt)
	if err != nil {
		return nil, fmt.Errorf("invalid key salt encoding: %w", err)
	}
	return salt, nil
}

// TokenKeys decodes the session token key pair. Both sides are optional;
// deployments without the auth surface leave them empty.
func (a *AuthConfig) TokenKeys() (ed25519.PrivateKey, ed25519.PublicKey, error) {
	var priv ed25519.PrivateKey
	var pub ed25519.PublicKey

	if a.SigningKey != "" {
		raw, err := base64.StdEncoding.DecodeString(a.SigningKey)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid auth signing key encoding: %w", err)
		}
		if len(raw) != ed25519.PrivateKeySize {
			return nil, nil, fmt.Errorf("auth signing key must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
		}
		priv = ed25519.PrivateKey(raw)
	}
	if a.VerifyKey != "" {
		raw, err := base64.StdEncoding.DecodeString(a.VerifyKey)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid auth verify key encoding: %w", err)
		}
		if len(raw) != ed25519.PublicKeySize {
			return nil, nil, fmt.Errorf("auth verify key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
		}
		pub = ed25519.PublicKey(raw)
	}
	if priv != nil && pub == nil {
		pub = priv.Public().(ed25519.PublicKey)
	}
	return priv, pub, nil
}
