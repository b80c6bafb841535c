package scraper

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"proxyward/internal/shared/logger"
	"proxyward/internal/shared/useragent"
	"proxyward/proxypool/model"
)

// IP3366Scraper harvests the free HTTP proxy table at ip3366.net.
type IP3366Scraper struct {
	client *http.Client
}

// NewIP3366Scraper constructs an IP3366Scraper.
func NewIP3366Scraper() Harvester {
	return &IP3366Scraper{client: &http.Client{Timeout: 20 * time.Second}}
}

// Name identifies this harvester.
func (s *IP3366Scraper) Name() string { return "ip3366.net" }

// Harvest scrapes the first page of stype=1 listings.
func (s *IP3366Scraper) Harvest(ctx context.Context) ([]model.Fingerprint, error) {
	l := logger.WithComponent("scraper").With().Str("source", s.Name()).Logger()
	l.Info().Msg("starting harvest")

	var fingerprints []model.Fingerprint

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://www.ip3366.net/?stype=1&page=1", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", useragent.Default)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		l.Warn().Int("status_code", resp.StatusCode).Msg("received non-200 status code")
		return fingerprints, nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	fingerprints = parseIP3366Table(doc, s.Name(), l)
	l.Info().Int("count", len(fingerprints)).Msg("harvest finished")
	return fingerprints, nil
}

// parseIP3366Table extracts fingerprints from a parsed ip3366.net listing
// document, filtering out non-HTTP rows. Factored out of Harvest so the
// parsing logic can be exercised without a live HTTP fetch.
func parseIP3366Table(doc *goquery.Document, source string, l zerolog.Logger) []model.Fingerprint {
	var fingerprints []model.Fingerprint
	doc.Find("table.table-bordered tbody tr").Each(func(_ int, sel *goquery.Selection) {
		ip := strings.TrimSpace(sel.Find("td").Eq(0).Text())
		portStr := strings.TrimSpace(sel.Find("td").Eq(1).Text())
		proxyType := strings.TrimSpace(sel.Find("td").Eq(3).Text())

		if !strings.Contains(strings.ToUpper(proxyType), "HTTP") {
			return
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || ip == "" {
			l.Warn().Str("ip", ip).Str("port", portStr).Msg("failed to parse ip/port, skipping row")
			return
		}

		fingerprints = append(fingerprints, model.Fingerprint{
			Kind:   kindOrDefault(proxyType),
			Host:   ip,
			Port:   port,
			Source: source,
		})
	})
	return fingerprints
}

// kindOrDefault maps a site's free-text protocol label to a Kind, defaulting
// to HTTP for anything the grammar doesn't recognize (e.g. "HTTP/HTTPS").
func kindOrDefault(label string) model.Kind {
	if k, err := model.ParseKind(strings.ToLower(strings.TrimSpace(label))); err == nil {
		return k
	}
	return model.HTTP
}
