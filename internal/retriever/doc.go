// Package retriever implements the OAuth 2.0 client_credentials token
// exchange at the wire level: formatting the grant request body and Basic
// Authorization header, driving a single POST over a caller-supplied
// connection handle, and extracting the access token from the response.
//
// The package deliberately sits below golang.org/x/oauth2: issuers in the
// wild disagree on error body shapes and credential encoding, and callers
// need to distinguish retryable issuer failures from permanent configuration
// mistakes. Every failure is an *Error with an explicit Kind.
//
// # Error classification
//
// HTTP 400 means the request itself was malformed (wrong credentials, wrong
// grant) and is KindNonRetryable. All other non-success statuses, stream
// failures, and unparseable responses are KindRetryable. Blank credentials
// and a missing access_token field are KindInvalidArgument. An unexpectedly
// empty success body is currently surfaced as KindRetryable; a stricter
// malformed-response kind is a deliberate non-change for now.
//
// Retry policy, token caching, refresh scheduling, and TLS/proxy transport
// configuration are the caller's concern; see the tokensource package.
package retriever
