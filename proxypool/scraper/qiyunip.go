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

// QiyunipScraper harvests qiyunip.com's free proxy table, which uses
// non-standard <th> cells for data rows.
type QiyunipScraper struct {
	client *http.Client
}

// NewQiyunipScraper constructs a QiyunipScraper.
func NewQiyunipScraper() Harvester {
	return &QiyunipScraper{client: &http.Client{Timeout: 20 * time.Second}}
}

// Name identifies this harvester.
func (s *QiyunipScraper) Name() string { return "qiyunip.com" }

// Harvest scrapes the first free-proxy listing page.
func (s *QiyunipScraper) Harvest(ctx context.Context) ([]model.Fingerprint, error) {
	l := logger.WithComponent("scraper").With().Str("source", s.Name()).Logger()
	l.Info().Msg("starting harvest")

	var fingerprints []model.Fingerprint

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://www.qiyunip.com/freeProxy/1.html", nil)
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
		l.Warn().Int("status_code", resp.StatusCode).Msg("received non-200 status code")
		return fingerprints, nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	doc.Find("table#proxyTable tbody tr").Each(func(_ int, sel *goquery.Selection) {
		cells := sel.Find("th")
		if cells.Length() < 4 {
			return
		}

		proxyType := strings.TrimSpace(cells.Eq(3).Text())
		if !strings.Contains(strings.ToUpper(proxyType), "HTTP") {
			return
		}

		ip := strings.TrimSpace(cells.Eq(0).Text())
		portStr := strings.TrimSpace(cells.Eq(1).Text())
		port, err := strconv.Atoi(portStr)
		if err != nil || ip == "" {
			l.Warn().Str("ip", ip).Str("port", portStr).Msg("failed to parse ip/port, skipping row")
			return
		}

		fingerprints = append(fingerprints, model.Fingerprint{
			Kind:   kindOrDefault(proxyType),
			Host:   ip,
			Port:   port,
			Source: s.Name(),
		})
	})

	l.Info().Int("count", len(fingerprints)).Msg("harvest finished")
	return fingerprints, nil
}
