package retriever

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPConnSuccessExchange(t *testing.T) {
	var gotMethod, gotAuth, gotContentType, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"abc"}`))
	}))
	defer server.Close()

	conn := NewHTTPConn(context.Background(), server.URL, nil)
	defer conn.Close()
	conn.SetHeader("Content-Type", "application/x-www-form-urlencoded")

	response, err := Post(conn, "Basic aWQ6c2VjcmV0", "grant_type=client_credentials", time.Second, 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if response != `{"access_token":"abc"}` {
		t.Errorf("response = %q", response)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", gotMethod)
	}
	if gotAuth != "Basic aWQ6c2VjcmV0" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotBody != "grant_type=client_credentials" {
		t.Errorf("body = %q", gotBody)
	}
}

func TestHTTPConnErrorExchange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"unknown client"}`))
	}))
	defer server.Close()

	conn := NewHTTPConn(context.Background(), server.URL, nil)
	defer conn.Close()

	_, err := Post(conn, "", "grant_type=client_credentials", 0, 0)
	assertKind(t, err, KindNonRetryable)
	assertMessageContains(t, err, `{"invalid_client" - "unknown client"}`)
}

func TestHTTPConnTransportFailure(t *testing.T) {
	// Closed server: the exchange cannot complete and surfaces as retryable.
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	conn := NewHTTPConn(context.Background(), server.URL, nil)
	defer conn.Close()

	_, err := Post(conn, "", "", 0, 0)
	assertKind(t, err, KindRetryable)
}

func TestHTTPConnReadTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	conn := NewHTTPConn(context.Background(), server.URL, nil)
	defer conn.Close()

	start := time.Now()
	_, err := Post(conn, "", "", 0, 50*time.Millisecond)
	assertKind(t, err, KindRetryable)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout did not bound the exchange (took %v)", elapsed)
	}
}

func TestHTTPConnSingleUse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	conn := NewHTTPConn(context.Background(), server.URL, nil)
	defer conn.Close()

	if _, err := conn.ResponseCode(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := conn.RequestBody(); err == nil {
		t.Error("expected an error requesting the body writer after the exchange ran")
	}
}
