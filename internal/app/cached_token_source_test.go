package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

// memoryStore is an in-memory tokenstore.Store for tests.
type memoryStore struct {
	mu     sync.Mutex
	value  string
	writes int
}

func (m *memoryStore) Read(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.value == "" {
		return "", errors.New("empty store")
	}
	return m.value, nil
}

func (m *memoryStore) Write(ctx context.Context, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = value
	m.writes++
	return nil
}

// countingSource returns a fixed token and counts invocations.
type countingSource struct {
	token *oauth2.Token
	err   error
	calls int
}

func (s *countingSource) Token() (*oauth2.Token, error) {
	s.calls++
	return s.token, s.err
}

func TestCachedTokenSourceServesUnexpiredCache(t *testing.T) {
	envelope, _ := json.Marshal(tokenEnvelope{
		AccessToken: "cached",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	})
	store := &memoryStore{value: string(envelope)}
	source := &countingSource{token: &oauth2.Token{AccessToken: "fresh"}}

	cts, err := NewCachedTokenSource(source, store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	token, err := cts.Token()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token.AccessToken != "cached" {
		t.Errorf("access token = %q, want the cached value", token.AccessToken)
	}
	if source.calls != 0 {
		t.Errorf("inner source was called %d times, want 0", source.calls)
	}
}

func TestCachedTokenSourcePersistsFreshToken(t *testing.T) {
	store := &memoryStore{}
	source := &countingSource{token: &oauth2.Token{
		AccessToken: "fresh",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}}

	cts, err := NewCachedTokenSource(source, store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	token, err := cts.Token()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token.AccessToken != "fresh" {
		t.Errorf("access token = %q", token.AccessToken)
	}

	var persisted tokenEnvelope
	if err := json.Unmarshal([]byte(store.value), &persisted); err != nil {
		t.Fatalf("persisted cache is not valid JSON: %v", err)
	}
	if persisted.AccessToken != "fresh" {
		t.Errorf("persisted access token = %q", persisted.AccessToken)
	}

	// Same token again must not rewrite the cache.
	if _, err := cts.Token(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.writes != 1 {
		t.Errorf("store was written %d times, want 1", store.writes)
	}
}

func TestCachedTokenSourceIgnoresExpiredCache(t *testing.T) {
	envelope, _ := json.Marshal(tokenEnvelope{
		AccessToken: "stale",
		Expiry:      time.Now().Add(-time.Hour),
	})
	store := &memoryStore{value: string(envelope)}
	source := &countingSource{token: &oauth2.Token{
		AccessToken: "fresh",
		Expiry:      time.Now().Add(time.Hour),
	}}

	cts, err := NewCachedTokenSource(source, store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	token, err := cts.Token()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token.AccessToken != "fresh" {
		t.Errorf("access token = %q, want a fresh retrieval", token.AccessToken)
	}
	if source.calls != 1 {
		t.Errorf("inner source was called %d times, want 1", source.calls)
	}
}

func TestCachedTokenSourcePropagatesSourceFailure(t *testing.T) {
	store := &memoryStore{}
	cause := errors.New("issuer unavailable")
	source := &countingSource{err: cause}

	cts, err := NewCachedTokenSource(source, store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := cts.Token(); !errors.Is(err, cause) {
		t.Errorf("expected the source failure to propagate, got %v", err)
	}
}
