package scraper

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"proxyward/internal/shared/logger"
	"proxyward/internal/shared/useragent"
	"proxyward/proxypool/model"
)

// ZdayeScraper harvests zdaye.com's free proxy table. The site's WAF blocks
// many direct connections, so a forward proxy from the source's
// SourceProfile.ForwardProxyURL can be routed through instead.
type ZdayeScraper struct {
	client *http.Client
}

// NewZdayeScraper constructs a ZdayeScraper, optionally routing every
// request through forwardProxyURL. An empty string connects directly.
func NewZdayeScraper(forwardProxyURL string) Harvester {
	l := logger.WithComponent("scraper")
	transport := &http.Transport{}

	if forwardProxyURL != "" {
		if u, err := url.Parse(forwardProxyURL); err != nil {
			l.Error().Err(err).Str("proxy_url", forwardProxyURL).Msg("invalid forward proxy url for zdaye.com, falling back to direct connection")
		} else {
			transport.Proxy = http.ProxyURL(u)
			l.Info().Str("proxy_url", forwardProxyURL).Msg("zdaye.com harvester will use a forward proxy")
		}
	}

	return &ZdayeScraper{client: &http.Client{Transport: transport, Timeout: 30 * time.Second}}
}

// Name identifies this harvester.
func (s *ZdayeScraper) Name() string { return "zdaye.com" }

// Harvest fetches and parses the first free-proxy listing page.
func (s *ZdayeScraper) Harvest(ctx context.Context) ([]model.Fingerprint, error) {
	l := logger.WithComponent("scraper").With().Str("source", s.Name()).Logger()
	l.Info().Msg("starting harvest via forward proxy")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://www.zdaye.com/free/1/?https=1", nil)
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
	doc.Find("table#ipc tbody tr").Each(func(_ int, sel *goquery.Selection) {
		ip := strings.TrimSpace(sel.Find("td").Eq(0).Text())
		portStr := strings.TrimSpace(sel.Find("td").Eq(1).Text())
		proxyType := strings.TrimSpace(sel.Find("td").Eq(2).Text())
		if ip == "" || portStr == "" {
			return
		}

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

	l.Info().Int("count", len(fingerprints)).Msg("harvest finished")
	return fingerprints, nil
}
