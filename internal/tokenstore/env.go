package tokenstore

import (
	"context"
	"fmt"
	"os"
)

// EnvStore reads the credential from an environment variable. It is
// read-only: suitable for static bearer tokens, not for the access-token
// cache (writes fail).
type EnvStore struct {
	envKey string
}

// Compile-time check that EnvStore implements Store.
var _ Store = (*EnvStore)(nil)

// NewEnvStore creates an EnvStore for the given environment variable.
// Fails when the variable name is empty or the variable is not set.
func NewEnvStore(envKey string) (*EnvStore, error) {
	if envKey == "" {
		return nil, fmt.Errorf("environment key cannot be empty")
	}

	if _, exists := os.LookupEnv(envKey); !exists {
		return nil, fmt.Errorf("environment variable %s not set", envKey)
	}

	return &EnvStore{envKey: envKey}, nil
}

// Read returns the value of the environment variable. Fails when empty.
func (e *EnvStore) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	value := os.Getenv(e.envKey)
	if value == "" {
		return "", fmt.Errorf("environment variable %s is empty", e.envKey)
	}
	return value, nil
}

// Write always fails: environment variables are read-only storage.
func (e *EnvStore) Write(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fmt.Errorf("environment variable storage is read-only")
}
