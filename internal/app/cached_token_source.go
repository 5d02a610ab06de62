package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"

	"github.com/hllvc/grantline/internal/tokenstore"
)

// tokenEnvelope is the serialized form of a cached access token.
type tokenEnvelope struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type,omitempty"`
	Expiry      time.Time `json:"expiry,omitempty"`
}

// CachedTokenSource layers persistent caching under an oauth2.TokenSource:
// an unexpired token from the store is served without contacting the issuer,
// and freshly issued tokens are written back. Initialization is deferred so
// no I/O happens during application startup.
//
// Cache read and write failures are never fatal; the inner source remains
// the source of truth.
type CachedTokenSource struct {
	source oauth2.TokenSource
	store  tokenstore.Store

	cached func() *oauth2.Token

	lastAccessToken atomic.Pointer[string]
	writeMu         sync.Mutex
}

// Compile-time check that CachedTokenSource implements oauth2.TokenSource.
var _ oauth2.TokenSource = (*CachedTokenSource)(nil)

// NewCachedTokenSource creates a CachedTokenSource. No I/O is performed
// until the first Token call.
func NewCachedTokenSource(source oauth2.TokenSource, store tokenstore.Store) (*CachedTokenSource, error) {
	if source == nil {
		return nil, fmt.Errorf("missing token source")
	}
	if store == nil {
		return nil, fmt.Errorf("missing token store")
	}

	c := &CachedTokenSource{
		source: source,
		store:  store,
	}
	c.cached = sync.OnceValue(c.readCache)

	return c, nil
}

// readCache performs the one-time read of the persisted envelope. A missing
// or unreadable cache is a normal cold start, not an error.
func (c *CachedTokenSource) readCache() *oauth2.Token {
	// oauth2.TokenSource.Token() has no context parameter (legacy interface
	// limitation), so the cache read uses a background context.
	ctx := context.Background()

	raw, err := c.store.Read(ctx)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.DebugContext(ctx, "token cache unavailable", "error", err)
		}
		return nil
	}

	var envelope tokenEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		slog.DebugContext(ctx, "discarding unparseable token cache", "error", err)
		return nil
	}

	token := &oauth2.Token{
		AccessToken: envelope.AccessToken,
		TokenType:   envelope.TokenType,
		Expiry:      envelope.Expiry,
	}
	c.lastAccessToken.Store(&envelope.AccessToken)

	return token
}

// Token returns a valid token, consulting the persistent cache first and
// writing back freshly issued tokens.
func (c *CachedTokenSource) Token() (*oauth2.Token, error) {
	if cached := c.cached(); cached != nil && cached.Valid() {
		return cached, nil
	}

	fresh, err := c.source.Token()
	if err != nil {
		return nil, fmt.Errorf("getting token from token source: %w", err)
	}

	// Hot path: lock-free atomic read for minimal contention
	last := ""
	if lastPtr := c.lastAccessToken.Load(); lastPtr != nil {
		last = *lastPtr
	}

	if fresh.AccessToken != "" && fresh.AccessToken != last {
		c.writeMu.Lock()
		c.persist(fresh)
		c.writeMu.Unlock()
	}

	return fresh, nil
}

func (c *CachedTokenSource) persist(token *oauth2.Token) {
	ctx := context.Background()

	raw, err := json.Marshal(tokenEnvelope{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		Expiry:      token.Expiry,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to serialize token cache", "error", err)
		return
	}

	// Read-only backends (env) reject the write; the token is still valid,
	// the next process run just pays for a fresh retrieval.
	if err := c.store.Write(ctx, string(raw)); err != nil {
		slog.WarnContext(ctx, "failed to persist token cache", "error", err)
		return
	}

	value := token.AccessToken
	c.lastAccessToken.Store(&value)
}
