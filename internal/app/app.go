package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/hllvc/grantline/internal/proxy"
	"github.com/hllvc/grantline/internal/tokensource"
	"github.com/hllvc/grantline/internal/tokenstore"
)

// App orchestrates the lifecycle of the bearer-injection proxy and the
// token source behind it.
type App struct {
	cfg         *Config
	tokenSource oauth2.TokenSource
	proxy       *proxy.Proxy
}

// New creates a new App instance.
func New(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// I/O deferred to first Token() call
	ts, err := NewTokenSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create token source: %w", err)
	}

	a := &App{
		cfg:         cfg,
		tokenSource: ts,
	}

	if cfg.Proxy.UpstreamBaseURL != "" {
		proxyServer, err := proxy.New(ts, cfg.Proxy.UpstreamBaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create proxy: %w", err)
		}
		a.proxy = proxyServer
	}

	return a, nil
}

// RetrieveToken obtains one valid bearer access token (credential-helper
// mode).
func (a *App) RetrieveToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	token, err := a.tokenSource.Token()
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// Start starts the proxy and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and a shutdown function list
// for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	if a.proxy == nil {
		return errors.New("proxy.upstream_base_url required to run the proxy")
	}

	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Proxy.Host + ":" + strconv.FormatUint(uint64(a.cfg.Proxy.Port), 10)
	var shutdownFuncs []func(context.Context) error

	slog.InfoContext(gCtx, "starting bearer proxy", "address", address, "upstream", a.cfg.Proxy.UpstreamBaseURL)
	proxyErrCh, err := a.proxy.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("proxy startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.proxy.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-proxyErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "proxy runtime error", "error", err)
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", address)

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Proxy.ShutdownTimeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}

// NewTokenSource builds the oauth2.TokenSource described by the
// configuration. No I/O is performed until the first Token() call.
func NewTokenSource(cfg *Config) (oauth2.TokenSource, error) {
	store, err := cfg.Cache.NewStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	switch cfg.Method {
	case AuthenticationMethodStatic:
		return newStaticTokenSource(store), nil

	case AuthenticationMethodClientCredentials:
		inner, err := tokensource.NewTokenSource(tokensource.Config{
			TokenURL:             cfg.Issuer.TokenURL,
			ClientID:             cfg.Issuer.ClientID,
			ClientSecret:         cfg.Issuer.ClientSecret,
			Scope:                cfg.Issuer.Scope,
			URLEncodeCredentials: cfg.Issuer.URLEncodeCredentials,
			ConnectTimeout:       cfg.Issuer.ConnectTimeout,
			ReadTimeout:          cfg.Issuer.ReadTimeout,
			MaxAttempts:          cfg.Issuer.RetryAttempts,
		})
		if err != nil {
			return nil, err
		}
		return NewCachedTokenSource(inner, store)

	default:
		return nil, fmt.Errorf("unsupported authentication method: %s", cfg.Method)
	}
}

// staticTokenSource serves the stored value as a never-expiring bearer
// token, read once on first use.
type staticTokenSource struct {
	store tokenstore.Store
	token func() (*oauth2.Token, error)
}

var _ oauth2.TokenSource = (*staticTokenSource)(nil)

func newStaticTokenSource(store tokenstore.Store) *staticTokenSource {
	s := &staticTokenSource{store: store}
	s.token = sync.OnceValues(s.readToken)
	return s
}

func (s *staticTokenSource) readToken() (*oauth2.Token, error) {
	value, err := s.store.Read(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to read static token: %w", err)
	}
	return &oauth2.Token{AccessToken: value, TokenType: "Bearer"}, nil
}

func (s *staticTokenSource) Token() (*oauth2.Token, error) {
	return s.token()
}
