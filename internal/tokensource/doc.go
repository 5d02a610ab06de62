// Package tokensource provides OAuth 2.0 client_credentials token retrieval
// with retry, exposed both as a direct Retrieve call and as an
// oauth2.TokenSource for use with oauth2.Transport.
//
// The wire-level exchange lives in the retriever package; this package adds
// the pieces the core deliberately leaves to collaborators: endpoint and
// credential configuration, transport injection, exponential backoff for
// retryable failures, and in-process token reuse.
//
// # Retrieval
//
//	r, err := tokensource.New(tokensource.Config{
//		TokenURL:     "https://issuer.example.com/oauth2/token",
//		ClientID:     "service-a",
//		ClientSecret: secret,
//		Scope:        "api.read",
//	})
//	token, err := r.Retrieve(ctx)
//
// # As an oauth2.TokenSource
//
//	ts, err := tokensource.NewTokenSource(cfg)
//	client := &http.Client{Transport: &oauth2.Transport{Source: ts}}
//
// Only retryable failures (5xx, transport errors, malformed responses) are
// retried. HTTP 400 and configuration mistakes abort immediately; see the
// retriever package for the classification rules.
package tokensource
