package retriever

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	grantType           = "client_credentials"
	authorizationBasic  = "Basic"
	authorizationHeader = "Authorization"

	// copyBufferSize is the size of the single buffer reused across chunks
	// when draining request and response streams.
	copyBufferSize = 4096
)

// FormatRequestBody builds the url-encoded client_credentials grant body.
// A blank scope (empty or whitespace-only) yields the bare grant-type body;
// otherwise the scope is appended form-encoded (spaces as '+').
func FormatRequestBody(scope string) string {
	var b strings.Builder
	b.WriteString("grant_type=" + grantType)

	if scope = strings.TrimSpace(scope); scope != "" {
		b.WriteString("&scope=")
		b.WriteString(url.QueryEscape(scope))
	}

	return b.String()
}

// FormatAuthorizationHeader builds the Basic Authorization header value for
// the given client credentials using the standard (non-URL-safe) base64
// alphabet per RFC 7617.
//
// When urlencode is set, the client ID and secret are each percent-encoded
// before concatenation, as RFC 6749 section 2.3.1 requires of token endpoint
// credentials.
//
// Returns a KindInvalidArgument error when either credential is blank.
func FormatAuthorizationHeader(clientID, clientSecret string, urlencode bool) (string, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return "", invalidArgumentf("the token endpoint request client ID must be non-blank")
	}

	clientSecret = strings.TrimSpace(clientSecret)
	if clientSecret == "" {
		return "", invalidArgumentf("the token endpoint request client secret must be non-blank")
	}

	if urlencode {
		clientID = encodeCredential(clientID)
		clientSecret = encodeCredential(clientSecret)
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(clientID + ":" + clientSecret))
	return authorizationBasic + " " + encoded, nil
}

// encodeCredential percent-encodes a credential component for embedding in a
// Basic Authorization header. Issuers validate against the historical form
// encoding, which keeps '*' bare and escapes '~' ('%7E'); url.QueryEscape
// does the opposite, so the byte set is spelled out here.
func encodeCredential(s string) string {
	var b strings.Builder
	for _, c := range []byte(s) {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '.', c == '-', c == '*', c == '_':
			b.WriteByte(c)
		case c == ' ':
			b.WriteByte('+')
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// copyStream drains src into dst through a single fixed-size buffer. Neither
// stream is closed; read and write failures propagate with their cause.
func copyStream(src io.Reader, dst io.Writer) error {
	buf := make([]byte, copyBufferSize)
	if _, err := io.CopyBuffer(dst, src, buf); err != nil {
		return retryablef(err, "failed to copy stream")
	}
	return nil
}

// Post drives exactly one POST exchange over conn: attaches the Authorization
// header and request body when supplied, classifies the response status, and
// returns the full success body decoded as UTF-8 text.
//
// Failures carry an explicit Kind: HTTP 400 is KindNonRetryable (the request
// itself is malformed), every other non-success status and every stream
// failure is KindRetryable. An unexpectedly empty success body is surfaced as
// KindRetryable as well; see the package documentation.
//
// Post never closes conn and never mutates its configured method or headers
// beyond the Authorization header.
func Post(conn Conn, headerValue, requestBody string, connectTimeout, readTimeout time.Duration) (string, error) {
	if connectTimeout > 0 {
		conn.SetConnectTimeout(connectTimeout)
	}
	if readTimeout > 0 {
		conn.SetReadTimeout(readTimeout)
	}

	if headerValue != "" {
		conn.SetHeader(authorizationHeader, headerValue)
	}

	if requestBody != "" {
		w, err := conn.RequestBody()
		if err != nil {
			return "", retryablef(err, "failed to open the request body stream")
		}
		if err := copyStream(strings.NewReader(requestBody), w); err != nil {
			return "", err
		}
		// Flush without closing; the stream belongs to the caller.
		if f, ok := w.(interface{ Flush() error }); ok {
			if err := f.Flush(); err != nil {
				return "", retryablef(err, "failed to flush the request body stream")
			}
		}
	}

	code, err := conn.ResponseCode()
	if err != nil {
		return "", retryablef(err, "failed to read the response status code")
	}

	if code >= 200 && code < 300 {
		body, err := conn.Response()
		if err != nil {
			return "", retryablef(err, "failed to open the response body stream")
		}

		var buf bytes.Buffer
		if err := copyStream(body, &buf); err != nil {
			return "", err
		}

		responseBody := buf.String()
		if responseBody == "" {
			return "", retryablef(nil, "the token endpoint response was unexpectedly empty despite response code %d", code)
		}

		return responseBody, nil
	}

	message := formatErrorMessage(readErrorResponse(conn))

	if code == http.StatusBadRequest {
		return "", nonRetryablef("the token endpoint rejected the request with response code %d and error message %s", code, message)
	}

	return "", retryablef(nil, "the token endpoint returned response code %d and error message %s", code, message)
}

// readErrorResponse drains the handle's error stream, which may be absent.
// Read failures degrade to an empty body; the status code already determined
// the outcome and the body only improves the message.
func readErrorResponse(conn Conn) string {
	body := conn.ErrorResponse()
	if body == nil {
		return ""
	}

	var buf bytes.Buffer
	if err := copyStream(body, &buf); err != nil {
		return ""
	}
	return buf.String()
}

// formatErrorMessage renders a best-effort message from an issuer error body.
// Recognized code/description pairs yield {"<code>" - "<description>"}; valid
// JSON with unrecognized keys is surfaced verbatim; non-JSON text is wrapped
// in braces; an absent body yields {}.
func formatErrorMessage(errorResponseBody string) string {
	if strings.TrimSpace(errorResponseBody) == "" {
		return "{}"
	}

	var node map[string]any
	if err := json.Unmarshal([]byte(errorResponseBody), &node); err != nil {
		return "{" + errorResponseBody + "}"
	}

	for _, keys := range [][2]string{
		{"error", "error_description"},
		{"errorCode", "errorSummary"},
	} {
		code, okCode := node[keys[0]]
		description, okDescription := node[keys[1]]
		if okCode && okDescription {
			return fmt.Sprintf("{%s - %s}", jsonText(code), jsonText(description))
		}
	}

	return errorResponseBody
}

// jsonText renders a decoded JSON value back to its JSON form, so string
// values keep their quotes in error messages.
func jsonText(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// ParseAccessToken extracts the access_token field from a JSON token
// endpoint response. The returned value is not modified.
//
// A response that is not valid JSON fails as KindRetryable (issuer-side
// misbehavior may be transient); a missing or blank access_token fails as
// KindInvalidArgument.
func ParseAccessToken(responseBody string) (string, error) {
	var payload struct {
		AccessToken string `json:"access_token"`
	}

	if err := json.Unmarshal([]byte(responseBody), &payload); err != nil {
		return "", retryablef(err, "failed to parse the token endpoint response as JSON")
	}

	if strings.TrimSpace(payload.AccessToken) == "" {
		return "", invalidArgumentf("the token endpoint response did not contain a non-empty access_token value")
	}

	return payload.AccessToken, nil
}
