package requestor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetReturnsBodyOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "test-agent" {
			t.Errorf("expected User-Agent 'test-agent', got %q", got)
		}
		if got := r.Header.Get("X-Request-Id"); got != "abc123" {
			t.Errorf("expected X-Request-Id 'abc123', got %q", got)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("REMOTE_ADDR: 198.51.100.4"))
	}))
	defer srv.Close()

	r := New()
	client, err := r.Build(nil, 5*time.Second)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	resp, err := r.Get(context.Background(), client, srv.URL, "test-agent", map[string]string{"X-Request-Id": "abc123"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if resp.Status != 200 {
		t.Errorf("expected status 200, got %d", resp.Status)
	}
	if string(resp.Body) != "REMOTE_ADDR: 198.51.100.4" {
		t.Errorf("unexpected body: %q", resp.Body)
	}
}

func TestGetReturnsBadStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := New()
	client, _ := r.Build(nil, 5*time.Second)

	_, err := r.Get(context.Background(), client, srv.URL, "test-agent", nil)
	if err == nil {
		t.Fatal("expected an error for a 503 response")
	}
	reqErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if reqErr.Kind != BadStatus || reqErr.StatusCode != 503 {
		t.Errorf("expected BadStatus/503, got %s/%d", reqErr.Kind, reqErr.StatusCode)
	}
	if IsTransport(err) {
		t.Error("BadStatus should not be classified as a transport (retryable) error")
	}
}

func TestGetReturnsTimeoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New()
	client, _ := r.Build(nil, 5*time.Millisecond)

	_, err := r.Get(context.Background(), client, srv.URL, "test-agent", nil)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if !IsTransport(err) {
		t.Errorf("expected a retryable transport error, got %v", err)
	}
}

func TestBuildDirectClientHasNoProxy(t *testing.T) {
	r := New()
	client, err := r.Build(nil, time.Second)
	if err != nil {
		t.Fatalf("Build(nil, ...) failed: %v", err)
	}
	if client.Timeout != time.Second {
		t.Errorf("expected client timeout 1s, got %v", client.Timeout)
	}
}
