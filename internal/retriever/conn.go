package retriever

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Conn is a single-use request/response exchange with a token issuer. It is
// a capability set rather than a transport: Post only attaches a header,
// writes the body, reads the status and drains one of the two body streams.
//
// The caller owns the handle for its entire lifetime. Post never closes it,
// never reuses it, and never mutates its configured request method.
type Conn interface {
	// SetHeader attaches a request header. Called before the exchange runs.
	SetHeader(name, value string)

	// SetConnectTimeout bounds connection establishment.
	SetConnectTimeout(d time.Duration)

	// SetReadTimeout bounds reading the response.
	SetReadTimeout(d time.Duration)

	// RequestBody returns the writable request body stream and enables
	// output on the handle.
	RequestBody() (io.Writer, error)

	// ResponseCode returns the HTTP response status code, performing the
	// exchange if it has not run yet.
	ResponseCode() (int, error)

	// Response returns the readable success body stream.
	Response() (io.Reader, error)

	// ErrorResponse returns the readable error body stream, or nil when the
	// issuer sent none.
	ErrorResponse() io.Reader
}

// HTTPConn adapts net/http to the Conn interface for one POST exchange. The
// request fires lazily on the first ResponseCode call, so headers, body and
// timeouts may be configured in any order beforehand.
//
// Connection establishment details beyond the connect timeout (TLS, proxies)
// belong to the caller-supplied RoundTripper.
type HTTPConn struct {
	ctx       context.Context
	url       string
	transport http.RoundTripper

	headers        http.Header
	body           bytes.Buffer
	doOutput       bool
	connectTimeout time.Duration
	readTimeout    time.Duration

	done   bool
	cancel context.CancelFunc
	resp   *http.Response
	err    error
}

// Compile-time check that HTTPConn implements Conn.
var _ Conn = (*HTTPConn)(nil)

// NewHTTPConn creates a one-shot POST exchange against url. A nil transport
// falls back to a dialer honoring the connect timeout.
func NewHTTPConn(ctx context.Context, url string, transport http.RoundTripper) *HTTPConn {
	if ctx == nil {
		ctx = context.Background()
	}
	return &HTTPConn{
		ctx:       ctx,
		url:       url,
		transport: transport,
		headers:   make(http.Header),
	}
}

func (c *HTTPConn) SetHeader(name, value string) {
	c.headers.Set(name, value)
}

func (c *HTTPConn) SetConnectTimeout(d time.Duration) {
	c.connectTimeout = d
}

func (c *HTTPConn) SetReadTimeout(d time.Duration) {
	c.readTimeout = d
}

// RequestBody returns the buffered request body writer. The buffer is sent
// when the exchange runs.
func (c *HTTPConn) RequestBody() (io.Writer, error) {
	if c.done {
		return nil, fmt.Errorf("request body requested after the exchange already ran")
	}
	c.doOutput = true
	return &c.body, nil
}

// ResponseCode runs the exchange on first use and returns the status code.
func (c *HTTPConn) ResponseCode() (int, error) {
	if err := c.do(); err != nil {
		return 0, err
	}
	return c.resp.StatusCode, nil
}

// Response returns the response body stream for success statuses.
func (c *HTTPConn) Response() (io.Reader, error) {
	if err := c.do(); err != nil {
		return nil, err
	}
	if c.resp.StatusCode < 200 || c.resp.StatusCode >= 300 {
		return nil, fmt.Errorf("no success response for status code %d", c.resp.StatusCode)
	}
	return c.resp.Body, nil
}

// ErrorResponse returns the response body stream for non-success statuses,
// or nil when there is none to read.
func (c *HTTPConn) ErrorResponse() io.Reader {
	if err := c.do(); err != nil {
		return nil
	}
	if c.resp.StatusCode >= 200 && c.resp.StatusCode < 300 {
		return nil
	}
	return c.resp.Body
}

// Close releases the underlying response body, if the exchange ran.
func (c *HTTPConn) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.resp != nil {
		return c.resp.Body.Close()
	}
	return nil
}

func (c *HTTPConn) do() error {
	if c.done {
		return c.err
	}
	c.done = true

	ctx := c.ctx
	if c.readTimeout > 0 {
		// The deadline covers reading the body as well; Close releases it.
		ctx, c.cancel = context.WithTimeout(ctx, c.readTimeout)
	}

	var body io.Reader
	if c.doOutput {
		body = bytes.NewReader(c.body.Bytes())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		c.err = err
		return c.err
	}
	for name, values := range c.headers {
		req.Header[name] = values
	}

	client := &http.Client{Transport: c.roundTripper()}

	resp, err := client.Do(req)
	if err != nil {
		c.err = err
		return c.err
	}

	c.resp = resp
	return nil
}

func (c *HTTPConn) roundTripper() http.RoundTripper {
	if c.transport != nil {
		return c.transport
	}
	if c.connectTimeout <= 0 {
		return http.DefaultTransport
	}
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: c.connectTimeout}).DialContext,
		TLSHandshakeTimeout: c.connectTimeout,
	}
}
