// Package proxy implements a local reverse proxy that injects bearer access
// tokens into forwarded requests, so callers on localhost never handle
// credentials themselves.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// Proxy is the bearer-injection reverse proxy server.
type Proxy struct {
	handler http.Handler
	server  *http.Server
}

// Compile-time check that Proxy implements http.Handler.
var _ http.Handler = (*Proxy)(nil)

// New creates a reverse proxy that forwards every request to baseURL with an
// Authorization: Bearer header attached from ts.
func New(ts oauth2.TokenSource, baseURL string) (*Proxy, error) {
	upstream, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("upstream URL %q must be absolute", baseURL)
	}

	// oauth2.Transport retrieves and attaches the bearer token per request.
	transport := &oauth2.Transport{Source: ts}

	reverseProxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.Out.Host = upstream.Host
			// Strip any client-supplied credential before injection.
			pr.Out.Header.Del("Authorization")
		},
		// FlushInterval: -1 disables periodic flushing, flushing only when
		// the upstream flushes, so streamed responses pass through without
		// buffering delay.
		FlushInterval: -1,
		Transport:     transport,
	}

	handler := applyMiddlewares(reverseProxy,
		RequestID,
		Logging(slog.Default()),
		Recovery,
	)

	return &Proxy{handler: handler}, nil
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.handler.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error
// channel. The caller is responsible for calling Shutdown to stop the server.
func (p *Proxy) Start(ctx context.Context, address string) (<-chan error, error) {
	// Startup phase: create the listener synchronously to catch port-in-use
	// errors immediately
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	p.server = &http.Server{
		Handler:      p,
		ReadTimeout:  30 * time.Second, // Inbound: bound slow clients
		WriteTimeout: 15 * time.Minute, // Inbound: allow long streamed responses, still bounded
		IdleTimeout:  90 * time.Second, // Inbound: keep-alive wait for next request
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := p.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}

	if err := p.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = p.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
