package scraper

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"proxyward/internal/shared/logger"
	"proxyward/internal/shared/useragent"
	"proxyward/proxypool/model"
)

// KuaidailiScraper harvests the free proxy lists published at
// www.kuaidaili.com, which embed candidates as a JS array literal rather
// than an HTML table.
type KuaidailiScraper struct {
	collector *colly.Collector
}

type kuaidailiEntry struct {
	IP   string `json:"ip"`
	Port string `json:"port"`
}

// NewKuaidailiScraper constructs a KuaidailiScraper.
func NewKuaidailiScraper() Harvester {
	c := colly.NewCollector(colly.UserAgent(useragent.Default))
	c.SetRequestTimeout(20 * time.Second)
	return &KuaidailiScraper{collector: c}
}

// Name identifies this harvester.
func (s *KuaidailiScraper) Name() string { return "kuaidaili.com" }

var fpsListPattern = regexp.MustCompile(`(var|let|const)\s+fpsList\s*=\s*(\[.*?\]);`)

// Harvest scrapes both the "intranet" and "internet" free-proxy sections.
func (s *KuaidailiScraper) Harvest(ctx context.Context) ([]model.Fingerprint, error) {
	l := logger.WithComponent("scraper").With().Str("source", s.Name()).Logger()
	l.Info().Msg("starting harvest")

	var fingerprints []model.Fingerprint
	var scrapeErr error
	var mu sync.Mutex

	s.collector.OnResponse(func(r *colly.Response) {
		matches := fpsListPattern.FindSubmatch(r.Body)
		if len(matches) < 3 {
			l.Warn().Str("url", r.Request.URL.String()).Msg("could not find fpsList variable in response body")
			return
		}

		var entries []*kuaidailiEntry
		if err := json.Unmarshal(matches[2], &entries); err != nil {
			l.Warn().Err(err).Str("url", r.Request.URL.String()).Msg("failed to unmarshal fpsList JSON")
			mu.Lock()
			scrapeErr = err
			mu.Unlock()
			return
		}

		mu.Lock()
		defer mu.Unlock()
		for _, e := range entries {
			port, err := strconv.Atoi(strings.TrimSpace(e.Port))
			if err != nil {
				l.Warn().Str("ip", e.IP).Str("port", e.Port).Msg("failed to parse port, skipping")
				continue
			}
			fingerprints = append(fingerprints, model.Fingerprint{
				Kind:   model.HTTP,
				Host:   strings.TrimSpace(e.IP),
				Port:   port,
				Source: s.Name(),
			})
		}
	})

	s.collector.OnError(func(r *colly.Response, err error) {
		l.Warn().Err(err).Int("status_code", r.StatusCode).Str("url", r.Request.URL.String()).Msg("scrape request failed")
	})

	for i := 1; i <= 2; i++ {
		if err := ctx.Err(); err != nil {
			return fingerprints, err
		}
		s.collector.Visit("https://www.kuaidaili.com/free/intr/" + strconv.Itoa(i) + "/")
	}
	for i := 1; i <= 2; i++ {
		if err := ctx.Err(); err != nil {
			return fingerprints, err
		}
		s.collector.Visit("https://www.kuaidaili.com/free/inha/" + strconv.Itoa(i) + "/")
	}
	s.collector.Wait()

	l.Info().Int("count", len(fingerprints)).Msg("harvest finished")
	return fingerprints, scrapeErr
}
