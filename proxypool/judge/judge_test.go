package judge

import (
	"testing"

	"proxyward/proxypool/model"
)

// TestClassifyElite covers scenario S1: the judge sees only the proxy's
// own address and no forwarding headers reveal the baseline.
func TestClassifyElite(t *testing.T) {
	fields := map[string]string{
		"remote_addr": "198.51.100.4",
	}
	got, err := classify(fields, "203.0.113.7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != model.AnonymityElite {
		t.Errorf("expected Elite, got %s", got)
	}
}

// TestClassifyTransparent covers scenario S2: a forwarding header leaks the
// baseline IP outright.
func TestClassifyTransparent(t *testing.T) {
	fields := map[string]string{
		"remote_addr":           "198.51.100.4",
		"http_x_forwarded_for":  "203.0.113.7",
	}
	got, err := classify(fields, "203.0.113.7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != model.AnonymityTransparent {
		t.Errorf("expected Transparent, got %s", got)
	}
}

// TestClassifyAnonymous covers scenario S3: a proxy-indicator header is
// present but never reveals the baseline IP.
func TestClassifyAnonymous(t *testing.T) {
	fields := map[string]string{
		"remote_addr": "198.51.100.4",
		"http_via":    "1.1 proxy",
	}
	got, err := classify(fields, "203.0.113.7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != model.AnonymityAnonymous {
		t.Errorf("expected Anonymous, got %s", got)
	}
}

func TestClassifyNotAProxy(t *testing.T) {
	fields := map[string]string{
		"remote_addr": "203.0.113.7",
	}
	_, err := classify(fields, "203.0.113.7")
	if err == nil {
		t.Fatal("expected an error when remote_addr matches the baseline ip")
	}
	jerr, ok := err.(*Error)
	if !ok || jerr.Kind != NotAProxy {
		t.Fatalf("expected NotAProxy error, got %v", err)
	}
}

func TestClassifyBaselinePresenceDominatesOverIndicators(t *testing.T) {
	// Tie-break: baseline IP present anywhere dominates over a mere
	// proxy-indicator header, even alongside other indicator headers.
	fields := map[string]string{
		"remote_addr": "198.51.100.4",
		"http_via":    "1.1 proxy",
		"http_forwarded": "for=203.0.113.7",
	}
	got, err := classify(fields, "203.0.113.7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != model.AnonymityTransparent {
		t.Errorf("expected Transparent when baseline ip appears in any header, got %s", got)
	}
}

func TestParseFieldsTolerantOfFormats(t *testing.T) {
	body := []byte(`
		<html><body>
		REMOTE_ADDR: 198.51.100.4
		HTTP_VIA=1.1 proxy
		  HTTP_X_FORWARDED_FOR : 203.0.113.7
		</body></html>
	`)
	fields := parseFields(body)

	if fields["remote_addr"] != "198.51.100.4" {
		t.Errorf("expected remote_addr parsed, got %q", fields["remote_addr"])
	}
	if fields["http_via"] != "1.1 proxy" {
		t.Errorf("expected http_via parsed, got %q", fields["http_via"])
	}
	if fields["http_x_forwarded_for"] != "203.0.113.7" {
		t.Errorf("expected http_x_forwarded_for parsed, got %q", fields["http_x_forwarded_for"])
	}
}
