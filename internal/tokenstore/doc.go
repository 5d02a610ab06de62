// Package tokenstore provides persistent storage backends for bearer tokens
// and token caches.
//
// Three backends with different security and deployment tradeoffs:
//   - File: local filesystem storage with atomic writes and 0600 permissions
//   - Env: read-only environment variable access (external secret management)
//   - Keyring: OS-native credential storage (macOS Keychain, Windows
//     Credential Manager, Linux Secret Service)
//
// Caching retrieved access tokens across process runs requires a writable
// backend (file or keyring); a static bearer token can come from any backend
// including read-only env storage.
package tokenstore
