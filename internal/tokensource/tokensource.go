package tokensource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/oauth2"

	"github.com/hllvc/grantline/internal/retriever"
)

// Default retry behavior for retryable token endpoint failures.
const (
	DefaultMaxAttempts     = 3
	DefaultInitialInterval = 100 * time.Millisecond
	DefaultMaxInterval     = 10 * time.Second
)

// Config describes the token issuer and the client credentials presented to
// it. TLS and proxy concerns stay in the transport supplied via WithTransport.
type Config struct {
	// TokenURL is the issuer's token endpoint.
	TokenURL string

	// ClientID and ClientSecret authenticate the client per RFC 7617.
	ClientID     string
	ClientSecret string

	// Scope optionally narrows the requested grant. Blank means no scope
	// parameter is sent.
	Scope string

	// URLEncodeCredentials percent-encodes the client ID and secret before
	// base64 encoding, per RFC 6749 section 2.3.1. Some issuers require it,
	// some reject it.
	URLEncodeCredentials bool

	// ConnectTimeout and ReadTimeout bound the exchange. Zero leaves the
	// transport defaults in place.
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	// MaxAttempts caps retries of retryable failures. Zero means
	// DefaultMaxAttempts.
	MaxAttempts uint

	// InitialInterval and MaxInterval shape the exponential backoff between
	// attempts. Zero means the package defaults.
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithTransport sets a custom base transport for token endpoint requests
// (e.g., for custom TLS or proxy configuration).
func WithTransport(transport http.RoundTripper) Option {
	return func(r *Retriever) {
		r.transport = transport
	}
}

// Retriever obtains access tokens from a token issuer using the OAuth 2.0
// client_credentials grant. The request header and body are formatted once at
// construction; each Retrieve call performs one or more POST exchanges.
type Retriever struct {
	cfg        Config
	authHeader string
	body       string
	transport  http.RoundTripper
}

// New creates a Retriever. Blank credentials fail here, before any network
// activity, with a retriever.KindInvalidArgument error.
func New(cfg Config, opts ...Option) (*Retriever, error) {
	if cfg.TokenURL == "" {
		return nil, &retriever.Error{Kind: retriever.KindInvalidArgument, Msg: "the token endpoint URL must be non-blank"}
	}

	authHeader, err := retriever.FormatAuthorizationHeader(cfg.ClientID, cfg.ClientSecret, cfg.URLEncodeCredentials)
	if err != nil {
		return nil, err
	}

	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = DefaultInitialInterval
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = DefaultMaxInterval
	}

	r := &Retriever{
		cfg:        cfg,
		authHeader: authHeader,
		body:       retriever.FormatRequestBody(cfg.Scope),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Retrieve performs the token exchange and returns the bearer access token.
// Retryable failures are retried with exponential backoff up to the
// configured attempt cap; invalid-argument and non-retryable failures abort
// immediately.
func (r *Retriever) Retrieve(ctx context.Context) (string, error) {
	token, err := r.retrieveToken(ctx)
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

func (r *Retriever) retrieveToken(ctx context.Context) (*oauth2.Token, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	operation := func() (string, error) {
		conn := retriever.NewHTTPConn(ctx, r.cfg.TokenURL, r.transport)
		defer func() { _ = conn.Close() }()

		conn.SetHeader("Content-Type", "application/x-www-form-urlencoded")
		conn.SetHeader("Accept", "application/json")
		conn.SetHeader("Cache-Control", "no-cache")

		responseBody, err := retriever.Post(conn, r.authHeader, r.body, r.cfg.ConnectTimeout, r.cfg.ReadTimeout)
		if err != nil {
			var re *retriever.Error
			if errors.As(err, &re) && !re.Retryable() {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		return responseBody, nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.cfg.InitialInterval
	expo.MaxInterval = r.cfg.MaxInterval

	responseBody, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(r.cfg.MaxAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve an access token from %s: %w", r.cfg.TokenURL, err)
	}

	accessToken, err := retriever.ParseAccessToken(responseBody)
	if err != nil {
		return nil, err
	}

	token := &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}

	// expires_in is a caching hint only; the retriever core ignores it.
	var meta struct {
		ExpiresIn int64 `json:"expires_in"`
	}
	if err := json.Unmarshal([]byte(responseBody), &meta); err == nil && meta.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(meta.ExpiresIn) * time.Second)
	}

	return token, nil
}

// TokenSource exposes a Retriever as an oauth2.TokenSource. Tokens are cached
// in process and re-retrieved shortly before expiry.
type TokenSource struct {
	tokenSource oauth2.TokenSource
}

// Compile-time check that TokenSource implements oauth2.TokenSource.
var _ oauth2.TokenSource = (*TokenSource)(nil)

// NewTokenSource creates a TokenSource over a client-credentials Retriever.
func NewTokenSource(cfg Config, opts ...Option) (*TokenSource, error) {
	r, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &TokenSource{
		tokenSource: oauth2.ReuseTokenSource(nil, &retrieveSource{retriever: r}),
	}, nil
}

// Token returns a valid access token, retrieving a fresh one if the cached
// token expired.
func (ts *TokenSource) Token() (*oauth2.Token, error) {
	return ts.tokenSource.Token()
}

// retrieveSource adapts Retriever to the context-free oauth2.TokenSource
// interface.
type retrieveSource struct {
	retriever *Retriever
}

func (s *retrieveSource) Token() (*oauth2.Token, error) {
	return s.retriever.retrieveToken(context.Background())
}
