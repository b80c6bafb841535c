package scraper

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"proxyward/internal/shared/logger"
	"proxyward/internal/shared/useragent"
	"proxyward/proxypool/model"
)

// ProxyListDownloadScraper harvests the China-filtered HTTP listing at
// proxy-list.download.
type ProxyListDownloadScraper struct {
	client *http.Client
}

// NewProxyListDownloadScraper constructs a ProxyListDownloadScraper.
func NewProxyListDownloadScraper() Harvester {
	return &ProxyListDownloadScraper{client: &http.Client{Timeout: 20 * time.Second}}
}

// Name identifies this harvester.
func (s *ProxyListDownloadScraper) Name() string { return "proxy-list.download" }

// Harvest fetches and parses the single listing page.
func (s *ProxyListDownloadScraper) Harvest(ctx context.Context) ([]model.Fingerprint, error) {
	l := logger.WithComponent("scraper").With().Str("source", s.Name()).Logger()
	l.Info().Msg("starting harvest")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://www.proxy-list.download/HTTP?country=CN", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", useragent.Default)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Source: s.Name(), StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	var fingerprints []model.Fingerprint
	doc.Find("table#example1 tbody#tabli tr").Each(func(_ int, sel *goquery.Selection) {
		ip := strings.TrimSpace(sel.Find("td").Eq(0).Text())
		portStr := strings.TrimSpace(sel.Find("td").Eq(1).Text())
		if ip == "" || portStr == "" {
			return
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			l.Warn().Str("ip", ip).Str("port", portStr).Msg("failed to parse port, skipping")
			return
		}
		fingerprints = append(fingerprints, model.Fingerprint{
			Kind:   model.HTTP,
			Host:   ip,
			Port:   port,
			Source: s.Name(),
		})
	})

	l.Info().Int("count", len(fingerprints)).Msg("harvest finished")
	return fingerprints, nil
}
