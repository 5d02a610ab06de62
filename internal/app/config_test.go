package app

import (
	"strings"
	"testing"
)

func validTestConfig() *Config {
	return &Config{
		Method: AuthenticationMethodClientCredentials,
		Issuer: IssuerConfig{
			TokenURL:     "https://issuer.example.com/oauth2/token",
			ClientID:     "service-a",
			ClientSecret: "s3cret",
		},
		Cache: CacheConfig{
			Storage: TokenStorageTypeFile,
			File:    "/tmp/grantline-test/token",
		},
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := validTestConfig()
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LogFormat != LogFormatText {
		t.Errorf("LogFormat = %q", cfg.LogFormat)
	}
	if cfg.Proxy.Host != DefaultConfigProxyHost || cfg.Proxy.Port != DefaultConfigProxyPort {
		t.Errorf("proxy defaults = %s:%d", cfg.Proxy.Host, cfg.Proxy.Port)
	}
	if cfg.Proxy.ShutdownTimeout != DefaultConfigShutdownTimeout {
		t.Errorf("shutdown timeout = %v", cfg.Proxy.ShutdownTimeout)
	}
	if cfg.Issuer.ConnectTimeout != DefaultConfigIssuerConnectTimeout {
		t.Errorf("connect timeout = %v", cfg.Issuer.ConnectTimeout)
	}
	if cfg.Issuer.ReadTimeout != DefaultConfigIssuerReadTimeout {
		t.Errorf("read timeout = %v", cfg.Issuer.ReadTimeout)
	}
}

func TestDefaultFillsCacheFilePath(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Cache.Storage != TokenStorageTypeFile {
		t.Errorf("storage = %q", cfg.Cache.Storage)
	}
	if !strings.Contains(cfg.Cache.File, "grantline") {
		t.Errorf("cache file path %q does not look auto-detected", cfg.Cache.File)
	}
	if cfg.Method != AuthenticationMethodClientCredentials {
		t.Errorf("method = %q", cfg.Method)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing token URL", mutate: func(c *Config) { c.Issuer.TokenURL = "" }, wantErr: true},
		{name: "missing client id", mutate: func(c *Config) { c.Issuer.ClientID = "" }, wantErr: true},
		{name: "malformed token URL", mutate: func(c *Config) { c.Issuer.TokenURL = "not a url" }, wantErr: true},
		{name: "unknown storage", mutate: func(c *Config) { c.Cache.Storage = "s3" }, wantErr: true},
		{name: "env storage without key", mutate: func(c *Config) {
			c.Cache.Storage = TokenStorageTypeEnv
			c.Cache.EnvKey = ""
		}, wantErr: true},
		{name: "static without issuer", mutate: func(c *Config) {
			c.Method = AuthenticationMethodStatic
			c.Issuer = IssuerConfig{}
		}},
		{name: "unknown method", mutate: func(c *Config) { c.Method = "oauth" }, wantErr: true},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			if err := cfg.ApplyDefaults(); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected a validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
