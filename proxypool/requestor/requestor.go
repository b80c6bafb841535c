// Package requestor produces HTTP clients bound to a chosen outbound proxy
// (or none) and issues GET requests against them, translating every
// failure into one of a small set of typed, non-panicking error kinds.
package requestor

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
	"h12.io/socks"

	"proxyward/proxypool/model"
)

// ErrorKind classifies a Requestor failure into the taxonomy spec section
// 4.1 requires: ConnectFailed, Timeout, TlsFailed, ProxyRejected, BadStatus.
type ErrorKind string

const (
	ConnectFailed ErrorKind = "connect_failed"
	Timeout       ErrorKind = "timeout"
	TLSFailed     ErrorKind = "tls_failed"
	ProxyRejected ErrorKind = "proxy_rejected"
	BadStatus     ErrorKind = "bad_status"
)

// Error is the typed, wrapped failure Get and Build return. It is never a
// panic: every network or protocol failure is reported through this type.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == BadStatus {
		return fmt.Sprintf("requestor: bad status %d", e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("requestor: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("requestor: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransport reports whether an error is one of the retryable transport
// kinds (ConnectFailed, Timeout, TlsFailed) as opposed to a protocol-level
// failure (ProxyRejected, BadStatus), which the caller should not retry.
func IsTransport(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case ConnectFailed, Timeout, TLSFailed:
		return true
	default:
		return false
	}
}

// Response is the result of a successful Get call.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
	Elapsed time.Duration
}

// Requestor builds proxy-bound HTTP clients on demand. It holds no
// per-target state; every Build call returns an independent client.
type Requestor struct{}

// New constructs a Requestor.
func New() *Requestor {
	return &Requestor{}
}

// Build produces an http.Client routed through proxyKey (nil for a direct,
// unproxied client), with a bounded timeout. Credential encoding follows
// each protocol's own scheme: userinfo on the proxy URL for HTTP/HTTPS and
// SOCKS4, proxy.Auth for SOCKS5.
func (r *Requestor) Build(proxyKey *model.Key, timeout time.Duration) (*http.Client, error) {
	if proxyKey == nil {
		return &http.Client{Timeout: timeout}, nil
	}

	dialer := &net.Dialer{Timeout: timeout}
	addr := net.JoinHostPort(proxyKey.Host, portString(proxyKey.Port))

	switch proxyKey.Kind {
	case model.HTTP, model.HTTPS:
		proxyURL := &url.URL{Scheme: "http", Host: addr}
		if proxyKey.Credentials.Set() {
			proxyURL.User = url.UserPassword(proxyKey.Credentials.Username, proxyKey.Credentials.Password)
		}
		transport := &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.DialContext(ctx, network, addr)
			},
			TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
			TLSHandshakeTimeout:   timeout,
			ExpectContinueTimeout: 1 * time.Second,
		}
		return &http.Client{Transport: transport, Timeout: timeout}, nil

	case model.SOCKS5:
		var auth *proxy.Auth
		if proxyKey.Credentials.Set() {
			auth = &proxy.Auth{User: proxyKey.Credentials.Username, Password: proxyKey.Credentials.Password}
		}
		socksDialer, err := proxy.SOCKS5("tcp", addr, auth, dialer)
		if err != nil {
			return nil, &Error{Kind: ConnectFailed, Err: err}
		}
		ctxDialer, ok := socksDialer.(proxy.ContextDialer)
		if !ok {
			return nil, &Error{Kind: ConnectFailed, Err: fmt.Errorf("socks5 dialer does not support contexts")}
		}
		transport := &http.Transport{DialContext: ctxDialer.DialContext}
		return &http.Client{Transport: transport, Timeout: timeout}, nil

	case model.SOCKS4:
		proxyURL := fmt.Sprintf("socks4://%s?timeout=%ds", addr, int(timeout.Seconds()))
		if proxyKey.Credentials.Set() {
			proxyURL = fmt.Sprintf("socks4://%s@%s?timeout=%ds", proxyKey.Credentials.Username, addr, int(timeout.Seconds()))
		}
		transport := &http.Transport{Dial: socks.Dial(proxyURL)}
		return &http.Client{Transport: transport, Timeout: timeout}, nil

	default:
		return nil, &Error{Kind: ConnectFailed, Err: fmt.Errorf("unsupported proxy kind %q", proxyKey.Kind)}
	}
}

// Get issues a GET request through client, applying extraHeaders on top of
// a User-Agent header, and returns the elapsed wall-clock time alongside
// the decoded response. Every failure mode is translated to *Error.
func (r *Requestor) Get(ctx context.Context, client *http.Client, targetURL, userAgent string, extraHeaders map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, &Error{Kind: ConnectFailed, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: ConnectFailed, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Response{Status: resp.StatusCode, Headers: resp.Header, Body: body, Elapsed: elapsed},
			&Error{Kind: BadStatus, StatusCode: resp.StatusCode}
	}

	return &Response{Status: resp.StatusCode, Headers: resp.Header, Body: body, Elapsed: elapsed}, nil
}

// Measure issues a HEAD request through client and returns only the
// elapsed round-trip time, used to measure latency without a body cost.
func (r *Requestor) Measure(ctx context.Context, client *http.Client, targetURL string) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, targetURL, nil)
	if err != nil {
		return 0, &Error{Kind: ConnectFailed, Err: err}
	}
	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return 0, classify(err)
	}
	resp.Body.Close()
	return elapsed, nil
}

func classify(err error) *Error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: Timeout, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: Timeout, Err: err}
	}
	var tlsErr *tls.CertificateVerificationError
	if errors.As(err, &tlsErr) {
		return &Error{Kind: TLSFailed, Err: err}
	}
	return &Error{Kind: ConnectFailed, Err: err}
}

func portString(p int) string {
	return fmt.Sprintf("%d", p)
}
