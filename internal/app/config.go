package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hllvc/grantline/internal/tokenstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// TokenStorageType represents the storage backends for tokens and token
// caches.
type TokenStorageType string

const (
	TokenStorageTypeFile    TokenStorageType = "file"
	TokenStorageTypeEnv     TokenStorageType = "env"
	TokenStorageTypeKeyring TokenStorageType = "keyring"
)

// AuthenticationMethod represents how the bearer token is obtained.
type AuthenticationMethod string

const (
	// AuthenticationMethodClientCredentials retrieves tokens from the
	// issuer's token endpoint using the client_credentials grant.
	AuthenticationMethodClientCredentials AuthenticationMethod = "client_credentials"

	// AuthenticationMethodStatic uses the stored value directly as the
	// bearer token.
	AuthenticationMethodStatic AuthenticationMethod = "static"
)

// Default configuration values
const (
	DefaultConfigLogFormat            = LogFormatText
	DefaultConfigProxyHost            = "127.0.0.1"
	DefaultConfigProxyPort            = 4180
	DefaultConfigShutdownTimeout      = 5 * time.Second
	DefaultConfigCacheStorage         = TokenStorageTypeFile
	DefaultConfigAuthMethod           = AuthenticationMethodClientCredentials
	DefaultConfigIssuerConnectTimeout = 10 * time.Second
	DefaultConfigIssuerReadTimeout    = 30 * time.Second
)

// IssuerConfig describes the token issuer contacted for the
// client_credentials grant.
type IssuerConfig struct {
	TokenURL     string `json:"token_url" validate:"omitempty,url"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Scope        string `json:"scope,omitempty"`

	// URLEncodeCredentials percent-encodes client id and secret before
	// base64 encoding, per RFC 6749 section 2.3.1.
	URLEncodeCredentials bool `json:"urlencode_credentials,omitempty"`

	ConnectTimeout time.Duration `json:"connect_timeout"`
	ReadTimeout    time.Duration `json:"read_timeout"`

	// RetryAttempts caps retries of retryable token endpoint failures.
	RetryAttempts uint `json:"retry_attempts,omitempty"`
}

// CacheConfig describes where tokens (or the access-token cache) live
// between process runs.
type CacheConfig struct {
	Storage TokenStorageType `json:"storage" validate:"required,oneof=file env keyring"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	File        string `json:"file,omitempty"`         // file storage: path to token file
	EnvKey      string `json:"env_key,omitempty"`      // env storage: environment variable name
	KeyringUser string `json:"keyring_user,omitempty"` // keyring storage: user identifier
}

// NewStore creates a tokenstore.Store from the cache configuration.
func (c *CacheConfig) NewStore() (tokenstore.Store, error) {
	switch c.Storage {
	case TokenStorageTypeFile:
		return tokenstore.NewFileStore(c.File)
	case TokenStorageTypeEnv:
		return tokenstore.NewEnvStore(c.EnvKey)
	case TokenStorageTypeKeyring:
		return tokenstore.NewKeyringStore("grantline-token", c.KeyringUser)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.Storage)
	}
}

// ProxyConfig holds the bearer-injection proxy settings.
type ProxyConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type

	// UpstreamBaseURL is where proxied requests are forwarded.
	UpstreamBaseURL string `json:"upstream_base_url" validate:"omitempty,url"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level `json:"log_level"`
	LogFormat LogFormat  `json:"log_format" validate:"oneof=text json"`

	Method AuthenticationMethod `json:"method" validate:"required,oneof=client_credentials static"`

	Issuer IssuerConfig `json:"issuer"`
	Cache  CacheConfig  `json:"cache"`
	Proxy  ProxyConfig  `json:"proxy"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Method == "" {
		c.Method = DefaultConfigAuthMethod
	}
	if c.Issuer.ConnectTimeout == 0 {
		c.Issuer.ConnectTimeout = DefaultConfigIssuerConnectTimeout
	}
	if c.Issuer.ReadTimeout == 0 {
		c.Issuer.ReadTimeout = DefaultConfigIssuerReadTimeout
	}
	if c.Cache.Storage == "" {
		c.Cache.Storage = DefaultConfigCacheStorage
	}
	if c.Proxy.Host == "" {
		c.Proxy.Host = DefaultConfigProxyHost
	}
	if c.Proxy.Port == 0 {
		c.Proxy.Port = DefaultConfigProxyPort
	}
	if c.Proxy.ShutdownTimeout == 0 {
		c.Proxy.ShutdownTimeout = DefaultConfigShutdownTimeout
	}

	// Dynamic defaults based on storage type
	switch c.Cache.Storage {
	case TokenStorageTypeFile:
		if c.Cache.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("cache.file required (auto-detect failed: %w)", err)
			}
			c.Cache.File = filepath.Join(configDir, "grantline", "token")
		}
	case TokenStorageTypeKeyring:
		if c.Cache.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("cache.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Cache.KeyringUser = currentUser.Username
		}
	case TokenStorageTypeEnv:
		// env_key must be explicitly configured (no sensible default)
	}

	return nil
}

// Validate validates the configuration using struct tags plus the
// cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Method {
	case AuthenticationMethodClientCredentials:
		if c.Issuer.TokenURL == "" {
			return errors.New("issuer.token_url required for client_credentials authentication")
		}
		if c.Issuer.ClientID == "" {
			return errors.New("issuer.client_id required for client_credentials authentication")
		}
	case AuthenticationMethodStatic:
		// The stored value is the token; env storage is fine here since no
		// write-back happens.
	}

	switch c.Cache.Storage {
	case TokenStorageTypeFile:
		if c.Cache.File == "" {
			return errors.New("file path required for file storage")
		}
	case TokenStorageTypeEnv:
		if c.Cache.EnvKey == "" {
			return errors.New("env_key required for env storage")
		}
	case TokenStorageTypeKeyring:
		if c.Cache.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	}

	return nil
}
