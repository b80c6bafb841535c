// Package judge classifies a proxy's anonymity level and measures its
// latency by comparing a proxied judge response against a frozen,
// unproxied baseline captured at construction.
package judge

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"proxyward/internal/shared/logger"
	"proxyward/internal/shared/useragent"
	"proxyward/proxypool/model"
	"proxyward/proxypool/requestor"
)

// ErrorKind classifies why a probe failed to produce a classification.
type ErrorKind string

const (
	Unreachable ErrorKind = "unreachable"
	BadResponse ErrorKind = "bad_response"
	NotAProxy   ErrorKind = "not_a_proxy"
)

// Error is returned by Probe when a proxy could not be classified.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("judge: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("judge: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Result is the outcome of a successful probe.
type Result struct {
	Anonymity model.Anonymity
	LatencyMs int64
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// Judge holds the frozen baseline captured at construction and exposes
// Probe to classify a proxy's anonymity against it.
type Judge struct {
	requestor *requestor.Requestor
	urls      []string
	timeout   time.Duration

	baselineURL string
	baselineIP  string
}

// New constructs a Judge bound to a fallback list of judge endpoint URLs.
// Call Init before the first Probe.
func New(r *requestor.Requestor, urls []string, timeout time.Duration) *Judge {
	return &Judge{requestor: r, urls: urls, timeout: timeout}
}

// Init fetches each configured judge URL, unproxied, in fallback order,
// and freezes the first well-formed baseline (its REMOTE_ADDR field) for
// the lifetime of the Judge.
func (j *Judge) Init(ctx context.Context) error {
	l := logger.WithComponent("judge")
	client, err := j.requestor.Build(nil, j.timeout)
	if err != nil {
		return fmt.Errorf("judge: failed to build baseline client: %w", err)
	}

	var lastErr error
	for _, u := range j.urls {
		resp, err := j.requestor.Get(ctx, client, u, useragent.Default, nil)
		if err != nil {
			l.Warn().Err(err).Str("url", u).Msg("baseline judge unreachable, trying next")
			lastErr = err
			continue
		}
		fields := parseFields(resp.Body)
		ip := fields["remote_addr"]
		if ip == "" {
			l.Warn().Str("url", u).Msg("baseline judge response missing REMOTE_ADDR, trying next")
			lastErr = &Error{Kind: BadResponse, Err: fmt.Errorf("missing REMOTE_ADDR in %q", u)}
			continue
		}
		j.baselineURL = u
		j.baselineIP = ip
		l.Info().Str("url", u).Str("baseline_ip", ip).Msg("judge baseline captured")
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no judge urls configured")
	}
	return fmt.Errorf("judge: failed to capture baseline from any configured url: %w", lastErr)
}

// BaselineIP returns the frozen baseline public IP, valid after Init.
func (j *Judge) BaselineIP() string { return j.baselineIP }

// Probe sends a GET through proxyKey to the judge endpoint and classifies
// the result. On transport failure it retries up to retries times before
// giving up; non-transport failures (bad status, malformed body) are not
// retried.
func (j *Judge) Probe(ctx context.Context, proxyKey model.Key, retries int, timeout time.Duration) (*Result, error) {
	if j.baselineIP == "" {
		return nil, &Error{Kind: BadResponse, Err: fmt.Errorf("judge not initialized")}
	}

	client, err := j.requestor.Build(&proxyKey, timeout)
	if err != nil {
		return nil, &Error{Kind: Unreachable, Err: err}
	}

	requestID := uuid.NewString()
	headers := map[string]string{"X-Judge-Request-Id": requestID}

	var lastErr error
	attempts := retries + 1
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := j.requestor.Get(ctx, client, j.baselineURL, useragent.Random(), headers)
		if err != nil {
			if requestor.IsTransport(err) {
				lastErr = err
				continue
			}
			return nil, &Error{Kind: BadResponse, Err: err}
		}

		fields := parseFields(resp.Body)
		anonymity, err := classify(fields, j.baselineIP)
		if err != nil {
			return nil, err
		}
		return &Result{Anonymity: anonymity, LatencyMs: resp.Elapsed.Milliseconds()}, nil
	}
	return nil, &Error{Kind: Unreachable, Err: lastErr}
}

// parseFields parses a judge body of CGI-style variable dumps: lines of the
// form "KEY: value" or "KEY=value", case-insensitive, tolerant of extra
// whitespace and HTML wrappers. Keys are lower-cased in the result.
func parseFields(body []byte) map[string]string {
	text := htmlTag.ReplaceAllString(string(body), "\n")
	fields := make(map[string]string)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx := strings.IndexAny(line, ":=")
		if idx < 0 {
			continue
		}
		key, value := line[:idx], line[idx+1:]
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}
		fields[key] = value
	}
	return fields
}

var proxyIndicatorHeaders = []string{
	"http_x_forwarded_for",
	"http_via",
	"http_forwarded",
	"http_client_ip",
	"http_x_real_ip",
}

// classify implements the anonymity algorithm from the judge specification:
// a pure function of (baseline public IP, judge response fields).
func classify(fields map[string]string, baselineIP string) (model.Anonymity, error) {
	remoteAddr := fields["remote_addr"]
	if remoteAddr == baselineIP {
		return model.AnonymityUnknown, &Error{Kind: NotAProxy, Err: fmt.Errorf("remote_addr matches baseline ip %q", baselineIP)}
	}

	baselineRevealed := false
	anyIndicator := false
	for _, h := range proxyIndicatorHeaders {
		v := fields[h]
		if v == "" {
			continue
		}
		anyIndicator = true
		if strings.Contains(v, baselineIP) {
			baselineRevealed = true
		}
	}

	switch {
	case baselineRevealed:
		return model.AnonymityTransparent, nil
	case anyIndicator:
		return model.AnonymityAnonymous, nil
	default:
		return model.AnonymityElite, nil
	}
}
