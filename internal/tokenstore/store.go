package tokenstore

import "context"

// Store reads and writes an opaque credential string to persistent storage.
//
// With the static authentication method the stored value is the bearer token
// itself; with the client_credentials method it holds the serialized cache of
// the last issued access token.
type Store interface {
	// Read returns the stored value. Returns an error if the value is
	// missing or empty.
	Read(ctx context.Context) (string, error)

	// Write persists the value. Returns an error if the backend is
	// read-only (environment variables) or the write fails.
	Write(ctx context.Context, value string) error
}
