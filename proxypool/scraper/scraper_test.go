package scraper

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"proxyward/proxypool/model"
)

func TestKindOrDefaultRecognizesGrammar(t *testing.T) {
	cases := map[string]model.Kind{
		"HTTP":   model.HTTP,
		"https":  model.HTTPS,
		"SOCKS5": model.SOCKS5,
		"weird":  model.HTTP, // unrecognized label defaults to HTTP
	}
	for label, want := range cases {
		if got := kindOrDefault(label); got != want {
			t.Errorf("kindOrDefault(%q) = %s, want %s", label, got, want)
		}
	}
}

func TestStatusErrorMessage(t *testing.T) {
	err := &StatusError{Source: "example.com", StatusCode: 503}
	if err.Error() == "" {
		t.Error("expected a non-empty error message")
	}
}

const ip3366Fixture = `
<table class="table-bordered">
<tbody>
<tr><td>198.51.100.4</td><td>8080</td><td>China</td><td>HTTP</td></tr>
<tr><td>198.51.100.5</td><td>1080</td><td>China</td><td>SOCKS5</td></tr>
<tr><td>bad-ip</td><td>notaport</td><td>China</td><td>HTTP</td></tr>
</tbody>
</table>`

func TestParseIP3366TableFiltersToHTTPRows(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(ip3366Fixture))
	if err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}

	fps := parseIP3366Table(doc, "ip3366.net", zerolog.Nop())
	if len(fps) != 1 {
		t.Fatalf("expected exactly 1 HTTP-labeled, well-formed row, got %d: %+v", len(fps), fps)
	}
	if fps[0].Host != "198.51.100.4" || fps[0].Port != 8080 || fps[0].Kind != model.HTTP {
		t.Errorf("unexpected fingerprint: %+v", fps[0])
	}
}
