// Package manager is the proxy pool's total controller: it owns the
// in-memory record set, drives the harvest/validate/enrich cycle, and hands
// the result to Store between runs.
package manager

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"proxyward/internal/shared/logger"
	"proxyward/internal/shared/types"
	"proxyward/proxypool/judge"
	"proxyward/proxypool/model"
	"proxyward/proxypool/requestor"
	"proxyward/proxypool/scraper"
	"proxyward/proxypool/storage"
	"proxyward/proxypool/workerpool"
)

// Prober is the subset of *judge.Judge that Manager depends on to validate a
// single proxy. Defined here, at the point of use, so tests can substitute a
// fake without spinning up real judge endpoints.
type Prober interface {
	Probe(ctx context.Context, proxyKey model.Key, retries int, timeout time.Duration) (*judge.Result, error)
}

// Enricher is the subset of *sleuth.Sleuth that Manager depends on to
// enrich a proxy's host with geo/ASN metadata.
type Enricher interface {
	Lookup(ctx context.Context, ip string) (*model.Metadata, error)
}

// Stats summarizes the pool for the CLI's stats subcommand.
type Stats struct {
	Total     int
	Untested  int
	Alive     int
	Failing   int
	Dead      int
	ByKind    map[model.Kind]int
	ByCountry map[string]int
}

// Manager is the proxy pool's total controller.
type Manager struct {
	cfg        *types.Config
	store      storage.Store
	harvesters []scraper.Harvester
	requestor  *requestor.Requestor
	prober     Prober
	enricher   Enricher

	mu      sync.RWMutex
	proxies map[model.Key]*model.ProxyRecord

	scrapeTicker      *time.Ticker
	healthCheckTicker *time.Ticker
	stopChan          chan struct{}
	wg                sync.WaitGroup
}

// New creates and initializes a Manager. Call AddHarvester for each source
// before Start.
func New(cfg *types.Config, store storage.Store, prober Prober, enricher Enricher) *Manager {
	return &Manager{
		cfg:       cfg,
		store:     store,
		requestor: requestor.New(),
		prober:    prober,
		enricher:  enricher,
		proxies:   make(map[model.Key]*model.ProxyRecord),
		stopChan:  make(chan struct{}),
	}
}

// AddHarvester registers a Source Harvester to run in every scrape cycle.
func (m *Manager) AddHarvester(h scraper.Harvester) {
	m.harvesters = append(m.harvesters, h)
}

// Start loads the persisted pool and launches the scrape/health-check
// scheduler loop in the background.
func (m *Manager) Start(ctx context.Context) error {
	l := logger.WithComponent("manager")
	l.Info().Msg("manager starting")

	if err := m.load(); err != nil {
		l.Error().Err(err).Msg("failed to load proxies from storage, starting with an empty pool")
	}

	scrapeInterval := time.Duration(m.cfg.ProxiesConf.ScrapeIntervalSecs) * time.Second
	healthCheckInterval := time.Duration(m.cfg.ProxiesConf.HealthCheckIntervalSecs) * time.Second
	m.scrapeTicker = time.NewTicker(scrapeInterval)
	m.healthCheckTicker = time.NewTicker(healthCheckInterval)

	l.Info().
		Dur("scrape_interval", scrapeInterval).
		Dur("health_check_interval", healthCheckInterval).
		Msg("schedulers initialized")

	m.wg.Add(1)
	go m.schedulerLoop(ctx)

	return nil
}

// schedulerLoop is the ticker-driven dispatch loop: it fans harvest cycles
// and check_all cycles out onto their own goroutines so a slow cycle never
// stalls the ticker itself.
func (m *Manager) schedulerLoop(ctx context.Context) {
	defer m.wg.Done()
	l := logger.WithComponent("manager")

	for {
		select {
		case <-m.scrapeTicker.C:
			l.Info().Msg("scrape ticker triggered")
			go m.HarvestAndValidate(ctx)

		case <-m.healthCheckTicker.C:
			l.Debug().Msg("health check ticker triggered")
			go m.CheckAll(ctx)

		case <-m.stopChan:
			l.Info().Msg("stop signal received, shutting down schedulers")
			m.scrapeTicker.Stop()
			m.healthCheckTicker.Stop()
			return

		case <-ctx.Done():
			l.Info().Msg("context cancelled, shutting down schedulers")
			m.scrapeTicker.Stop()
			m.healthCheckTicker.Stop()
			return
		}
	}
}

// Stop gracefully halts the scheduler loop, waits for it to exit, then
// flushes the pool to storage.
func (m *Manager) Stop() {
	l := logger.WithComponent("manager")
	close(m.stopChan)
	m.wg.Wait()
	if err := m.save(); err != nil {
		l.Error().Err(err).Msg("failed to save proxies on shutdown")
	}
	l.Info().Msg("manager gracefully stopped")
}

// Load reads the persisted pool into memory, replacing whatever is
// currently held. Callers that don't run the scheduler loop (one-shot CLI
// invocations) must call this themselves before Ingest/Check/Enrich.
func (m *Manager) Load() error {
	return m.load()
}

func (m *Manager) load() error {
	pool, err := m.store.Load()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.proxies = pool
	m.mu.Unlock()
	return nil
}

// Save flushes the current in-memory pool to the store. Callers that don't
// run the scheduler loop must call this themselves after a mutating call
// that doesn't already persist on their behalf (Enrich, Ingest).
func (m *Manager) Save() error {
	return m.save()
}

func (m *Manager) save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Save(m.proxies)
}

// Ingest records a freshly harvested fingerprint. It is idempotent: a
// fingerprint whose key already exists in the pool leaves the existing
// record (and its measurement history) untouched.
func (m *Manager) Ingest(fp model.Fingerprint) *model.ProxyRecord {
	key := fp.Key()

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.proxies[key]; ok {
		return existing
	}
	rec := model.NewProxyRecord(fp)
	m.proxies[key] = rec
	return rec
}

// HarvestAndValidate runs every registered harvester concurrently, ingests
// whatever fingerprints they find, and immediately validates the ones that
// are new to the pool.
func (m *Manager) HarvestAndValidate(ctx context.Context) {
	l := logger.WithComponent("manager")
	l.Info().Msg("starting harvest cycle")

	results := workerpool.BoundedBatch(ctx, m.harvesters, len(m.harvesters)+1, func(ctx context.Context, h scraper.Harvester) []model.Fingerprint {
		fps, err := h.Harvest(ctx)
		if err != nil {
			l.Warn().Err(err).Str("source", h.Name()).Msg("harvester failed")
		}
		return fps
	})

	fresh := make([]model.Key, 0)
	for _, fps := range results {
		for _, fp := range fps {
			key := fp.Key()
			m.mu.RLock()
			_, exists := m.proxies[key]
			m.mu.RUnlock()
			if exists {
				continue
			}
			m.Ingest(fp)
			fresh = append(fresh, key)
		}
	}

	if len(fresh) == 0 {
		l.Info().Msg("no new proxies found in this cycle")
		if err := m.save(); err != nil {
			l.Error().Err(err).Msg("failed to save proxies")
		}
		return
	}

	l.Info().Int("count", len(fresh)).Msg("found new proxies, starting validation")
	m.checkKeys(ctx, fresh)

	if err := m.save(); err != nil {
		l.Error().Err(err).Msg("failed to save proxies after harvest cycle")
	}
	l.Info().Msg("harvest cycle finished")
}

// Check validates a single proxy immediately, blocking until the probe
// resolves.
func (m *Manager) Check(ctx context.Context, key model.Key) error {
	m.mu.RLock()
	_, ok := m.proxies[key]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("manager: unknown proxy %s", key)
	}
	m.validateOne(ctx, key)
	return m.save()
}

// CheckAll schedules validation for every record whose cooldown has elapsed
// and whose state is Untested, Alive, or Failing, bounded by the configured
// parallel_validations concurrency limit. It blocks until the whole batch
// resolves.
func (m *Manager) CheckAll(ctx context.Context) {
	l := logger.WithComponent("manager")

	now := time.Now()
	m.mu.RLock()
	due := make([]model.Key, 0, len(m.proxies))
	for k, p := range m.proxies {
		if p.DueForCheck(now) {
			due = append(due, k)
		}
	}
	m.mu.RUnlock()

	if len(due) == 0 {
		l.Debug().Msg("no proxies due for check")
		return
	}

	sort.Slice(due, func(i, j int) bool { return due[i].String() < due[j].String() })

	l.Info().Int("count", len(due)).Msg("starting check_all batch")
	m.checkKeys(ctx, due)

	if err := m.save(); err != nil {
		l.Error().Err(err).Msg("failed to save proxies after check_all")
	}
}

func (m *Manager) checkKeys(ctx context.Context, keys []model.Key) {
	n := m.cfg.ProxiesConf.ParallelValidations
	workerpool.BoundedBatch(ctx, keys, n, func(ctx context.Context, key model.Key) struct{} {
		m.validateOne(ctx, key)
		return struct{}{}
	})
}

// validateOne runs the full per-record validation algorithm: transition to
// Validating (removing the record from check_all's eligible set for the
// duration of the probe), probe through the judge, then apply RecordSuccess
// or RecordFailure.
func (m *Manager) validateOne(ctx context.Context, key model.Key) {
	l := logger.WithComponent("manager")

	m.mu.Lock()
	p, ok := m.proxies[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	p.State = model.Validating
	m.mu.Unlock()

	timeout := time.Duration(m.cfg.JudgeConf.TimeoutSecs) * time.Second
	result, err := m.prober.Probe(ctx, key, m.cfg.HTTPConf.Retries, timeout)

	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok = m.proxies[key]
	if !ok {
		return
	}

	now := time.Now()
	if err != nil {
		cooldown := time.Duration(m.cfg.ProxiesConf.CooldownSecs) * time.Second
		p.RecordFailure(m.cfg.ProxiesConf.MaxConsecutiveFailures, cooldown, now)
		l.Debug().Str("key", key.String()).Err(err).Str("state", string(p.State)).Msg("probe failed")
		return
	}

	p.RecordSuccess(result.Anonymity, result.LatencyMs, m.cfg.ProxiesConf.MaxLatencyMs, now)
	l.Debug().Str("key", key.String()).Str("anonymity", string(result.Anonymity)).Int64("latency_ms", result.LatencyMs).Msg("probe succeeded")
}

// Enrich looks up geolocation/ASN metadata for a proxy's host, on demand
// only: nothing else in Manager calls Sleuth automatically.
func (m *Manager) Enrich(ctx context.Context, key model.Key) error {
	m.mu.RLock()
	p, ok := m.proxies[key]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("manager: unknown proxy %s", key)
	}

	meta, err := m.enricher.Lookup(ctx, key.Host)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Metadata == nil {
		p.Metadata = &model.Metadata{}
	}
	p.Metadata.Merge(meta)
	return nil
}

// Get returns a snapshot of a single record, or false if unknown.
func (m *Manager) Get(key model.Key) (model.ProxyRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.proxies[key]
	if !ok {
		return model.ProxyRecord{}, false
	}
	return *p, true
}

// List returns a snapshot of every record currently in the pool, sorted by
// most recently checked first.
func (m *Manager) List() []model.ProxyRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]model.ProxyRecord, 0, len(m.proxies))
	for _, p := range m.proxies {
		all = append(all, *p)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].LastChecked.After(all[j].LastChecked)
	})
	return all
}

// Eligible returns up to count records currently eligible for rotation,
// ranked by success rate then by latency.
func (m *Manager) Eligible(count int) []model.ProxyRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	candidates := make([]model.ProxyRecord, 0)
	for _, p := range m.proxies {
		if p.EligibleForRotation(m.cfg.ProxiesConf.MinSuccessRate, now) {
			candidates = append(candidates, *p)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].SuccessRate() != candidates[j].SuccessRate() {
			return candidates[i].SuccessRate() > candidates[j].SuccessRate()
		}
		return candidates[i].LatencyMs < candidates[j].LatencyMs
	})

	if len(candidates) > count {
		return candidates[:count]
	}
	return candidates
}

// Remove deletes a record from the pool outright.
func (m *Manager) Remove(key model.Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.proxies, key)
}

// PurgeDead removes every Dead record whose last check is older than
// maxAge, returning the number removed. A purged record re-enters the pool
// only through a fresh Ingest.
func (m *Manager) PurgeDead(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	removed := 0
	for k, p := range m.proxies {
		if p.State == model.Dead && p.Stale(maxAge, now) {
			delete(m.proxies, k)
			removed++
		}
	}
	return removed
}

// Stats summarizes the pool's current composition.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{ByKind: make(map[model.Kind]int), ByCountry: make(map[string]int)}
	for _, p := range m.proxies {
		s.Total++
		switch p.State {
		case model.Untested:
			s.Untested++
		case model.Alive:
			s.Alive++
		case model.Failing:
			s.Failing++
		case model.Dead:
			s.Dead++
		}
		s.ByKind[p.Key.Kind]++
		if p.Metadata != nil && p.Metadata.Country != "" {
			s.ByCountry[p.Metadata.Country]++
		}
	}
	return s
}
