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

// ProxydbScraper harvests proxydb.net's filtered listing table, which
// covers HTTP, HTTPS and SOCKS5 in one page.
type ProxydbScraper struct {
	client *http.Client
}

// NewProxydbScraper constructs a ProxydbScraper.
func NewProxydbScraper() Harvester {
	return &ProxydbScraper{client: &http.Client{Timeout: 20 * time.Second}}
}

// Name identifies this harvester.
func (s *ProxydbScraper) Name() string { return "proxydb.net" }

// Harvest scrapes the first three pages (offsets 0, 15, 30).
func (s *ProxydbScraper) Harvest(ctx context.Context) ([]model.Fingerprint, error) {
	l := logger.WithComponent("scraper").With().Str("source", s.Name()).Logger()
	l.Info().Msg("starting harvest")

	var fingerprints []model.Fingerprint

	for offset := 0; offset <= 30; offset += 15 {
		if err := ctx.Err(); err != nil {
			return fingerprints, err
		}

		url := "https://proxydb.net/?country=CN&protocol=http&protocol=https&protocol=socks5&offset=" + strconv.Itoa(offset)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fingerprints, err
		}
		req.Header.Set("User-Agent", useragent.Default)
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")

		resp, err := s.client.Do(req)
		if err != nil {
			l.Warn().Err(err).Str("url", url).Msg("failed to fetch page")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			l.Warn().Int("status_code", resp.StatusCode).Str("url", url).Msg("received non-200 status code")
			resp.Body.Close()
			continue
		}

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		resp.Body.Close()
		if err != nil {
			l.Warn().Err(err).Str("url", url).Msg("failed to parse HTML document")
			continue
		}

		doc.Find("tbody tr").Each(func(_ int, sel *goquery.Selection) {
			ip := strings.TrimSpace(sel.Find("td").Eq(0).Find("a").Text())
			portStr := strings.TrimSpace(sel.Find("td").Eq(1).Find("a").Text())
			if ip == "" || portStr == "" {
				return
			}
			proxyType := strings.ToLower(strings.TrimSpace(sel.Find("td").Eq(2).Text()))

			port, err := strconv.Atoi(portStr)
			if err != nil {
				l.Warn().Str("ip", ip).Str("port", portStr).Msg("failed to parse port, skipping row")
				return
			}

			fingerprints = append(fingerprints, model.Fingerprint{
				Kind:   kindOrDefault(proxyType),
				Host:   ip,
				Port:   port,
				Source: s.Name(),
			})
		})
	}

	l.Info().Int("count", len(fingerprints)).Msg("harvest finished")
	return fingerprints, nil
}
