package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"proxyward/internal/shared/types"
	"proxyward/proxypool/judge"
	"proxyward/proxypool/model"
)

type memStore struct {
	mu   sync.Mutex
	pool map[model.Key]*model.ProxyRecord
}

func newMemStore() *memStore {
	return &memStore{pool: make(map[model.Key]*model.ProxyRecord)}
}

func (s *memStore) Load() (map[model.Key]*model.ProxyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[model.Key]*model.ProxyRecord, len(s.pool))
	for k, v := range s.pool {
		cp := *v
		out[k] = &cp
	}
	return out, nil
}

func (s *memStore) Save(pool map[model.Key]*model.ProxyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool = pool
	return nil
}

// scriptedProber returns queued (result, error) pairs in order, one per
// Probe call, falling back to the last entry once exhausted.
type scriptedProber struct {
	mu      sync.Mutex
	outcomes []proberOutcome
	calls   int
}

type proberOutcome struct {
	result *judge.Result
	err    error
}

func (p *scriptedProber) Probe(ctx context.Context, key model.Key, retries int, timeout time.Duration) (*judge.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls
	if idx >= len(p.outcomes) {
		idx = len(p.outcomes) - 1
	}
	p.calls++
	o := p.outcomes[idx]
	return o.result, o.err
}

type stubEnricher struct {
	meta *model.Metadata
	err  error
}

func (e *stubEnricher) Lookup(ctx context.Context, ip string) (*model.Metadata, error) {
	return e.meta, e.err
}

func testConfig() *types.Config {
	cfg := &types.Config{}
	cfg.ProxiesConf.ParallelValidations = 4
	cfg.ProxiesConf.MaxConsecutiveFailures = 3
	cfg.ProxiesConf.MaxLatencyMs = 3000
	cfg.ProxiesConf.CooldownSecs = 300
	cfg.ProxiesConf.MinSuccessRate = 0.7
	cfg.HTTPConf.Retries = 3
	cfg.JudgeConf.TimeoutSecs = 10
	return cfg
}

func newFingerprint() model.Fingerprint {
	return model.Fingerprint{Kind: model.HTTP, Host: "198.51.100.4", Port: 8080, Source: "test"}
}

func TestIngestIsIdempotent(t *testing.T) {
	m := New(testConfig(), newMemStore(), &scriptedProber{}, &stubEnricher{})
	fp := newFingerprint()

	first := m.Ingest(fp)
	first.SuccessCount = 5 // mutate to prove the second Ingest doesn't reset it

	second := m.Ingest(fp)
	if second.SuccessCount != 5 {
		t.Errorf("expected Ingest to return the existing record untouched, got success_count=%d", second.SuccessCount)
	}
	if len(m.List()) != 1 {
		t.Errorf("expected exactly one record in the pool, got %d", len(m.List()))
	}
}

// TestCheckBecomesDeadAfterRepeatedFailure covers scenario S4: a proxy that
// fails every probe transitions to Dead once consecutive failures reach the
// configured threshold, with a fresh cooldown set.
func TestCheckBecomesDeadAfterRepeatedFailure(t *testing.T) {
	cfg := testConfig()
	prober := &scriptedProber{outcomes: []proberOutcome{
		{err: &judge.Error{Kind: judge.Unreachable, Err: errors.New("connect refused")}},
	}}
	m := New(cfg, newMemStore(), prober, &stubEnricher{})
	rec := m.Ingest(newFingerprint())

	for i := 0; i < cfg.ProxiesConf.MaxConsecutiveFailures; i++ {
		if err := m.Check(context.Background(), rec.Key); err != nil {
			t.Fatalf("Check returned error: %v", err)
		}
	}

	got, ok := m.Get(rec.Key)
	if !ok {
		t.Fatal("expected record to still be present")
	}
	if got.State != model.Dead {
		t.Errorf("expected Dead after %d consecutive failures, got %s", cfg.ProxiesConf.MaxConsecutiveFailures, got.State)
	}
	if !got.CooldownUntil.After(time.Now()) {
		t.Error("expected cooldown_until to be set in the future")
	}
}

// TestCheckRetryAbsorbsTransientFailure covers scenario S6: Prober itself
// applies retries and only reports final success/failure, so a single
// Check call that internally retried and eventually succeeded counts as
// exactly one successful attempt at the Manager level.
func TestCheckRetryAbsorbsTransientFailure(t *testing.T) {
	cfg := testConfig()
	prober := &scriptedProber{outcomes: []proberOutcome{
		{result: &judge.Result{Anonymity: model.AnonymityElite, LatencyMs: 400}},
	}}
	m := New(cfg, newMemStore(), prober, &stubEnricher{})
	rec := m.Ingest(newFingerprint())

	if err := m.Check(context.Background(), rec.Key); err != nil {
		t.Fatalf("Check returned error: %v", err)
	}

	got, _ := m.Get(rec.Key)
	if got.AttemptCount != 1 || got.SuccessCount != 1 {
		t.Errorf("expected exactly one recorded attempt/success, got attempt_count=%d success_count=%d", got.AttemptCount, got.SuccessCount)
	}
	if got.State != model.Alive {
		t.Errorf("expected Alive after successful probe, got %s", got.State)
	}
}

func TestCheckAllSkipsRecordsNotYetDue(t *testing.T) {
	cfg := testConfig()
	prober := &scriptedProber{outcomes: []proberOutcome{
		{result: &judge.Result{Anonymity: model.AnonymityElite, LatencyMs: 100}},
	}}
	m := New(cfg, newMemStore(), prober, &stubEnricher{})

	rec := m.Ingest(newFingerprint())
	// Put the record into cooldown so it is not due yet.
	rec.RecordFailure(1, time.Hour, time.Now())

	m.CheckAll(context.Background())

	if prober.calls != 0 {
		t.Errorf("expected CheckAll to skip a record within its cooldown window, got %d probe calls", prober.calls)
	}
}

func TestCheckUnknownKeyReturnsError(t *testing.T) {
	m := New(testConfig(), newMemStore(), &scriptedProber{}, &stubEnricher{})
	key := model.Key{Kind: model.HTTP, Host: "203.0.113.9", Port: 3128}
	if err := m.Check(context.Background(), key); err == nil {
		t.Error("expected an error for an unknown key")
	}
}

func TestEnrichMergesMetadataOnDemandOnly(t *testing.T) {
	enricher := &stubEnricher{meta: &model.Metadata{Country: "China", ASN: "AS4808"}}
	m := New(testConfig(), newMemStore(), &scriptedProber{}, enricher)
	rec := m.Ingest(newFingerprint())

	got, _ := m.Get(rec.Key)
	if got.Metadata != nil {
		t.Fatal("expected Ingest alone to never populate metadata")
	}

	if err := m.Enrich(context.Background(), rec.Key); err != nil {
		t.Fatalf("Enrich returned error: %v", err)
	}
	got, _ = m.Get(rec.Key)
	if got.Metadata == nil || got.Metadata.Country != "China" {
		t.Errorf("expected enrichment to populate metadata, got %+v", got.Metadata)
	}
}

func TestPurgeDeadRemovesOnlyStaleDeadRecords(t *testing.T) {
	m := New(testConfig(), newMemStore(), &scriptedProber{}, &stubEnricher{})

	deadOld := m.Ingest(model.Fingerprint{Kind: model.HTTP, Host: "198.51.100.10", Port: 80})
	deadOld.State = model.Dead
	deadOld.LastChecked = time.Now().Add(-48 * time.Hour)

	deadRecent := m.Ingest(model.Fingerprint{Kind: model.HTTP, Host: "198.51.100.11", Port: 80})
	deadRecent.State = model.Dead
	deadRecent.LastChecked = time.Now()

	alive := m.Ingest(model.Fingerprint{Kind: model.HTTP, Host: "198.51.100.12", Port: 80})
	alive.State = model.Alive
	alive.LastChecked = time.Now().Add(-48 * time.Hour)

	removed := m.PurgeDead(24 * time.Hour)
	if removed != 1 {
		t.Errorf("expected exactly 1 purge, got %d", removed)
	}
	if _, ok := m.Get(deadOld.Key); ok {
		t.Error("expected stale dead record to be purged")
	}
	if _, ok := m.Get(deadRecent.Key); !ok {
		t.Error("expected recently-dead record to survive purge")
	}
	if _, ok := m.Get(alive.Key); !ok {
		t.Error("expected alive record to survive purge regardless of age")
	}
}

func TestEligibleRanksBySuccessRateThenLatency(t *testing.T) {
	cfg := testConfig()
	m := New(cfg, newMemStore(), &scriptedProber{}, &stubEnricher{})

	fast := m.Ingest(model.Fingerprint{Kind: model.HTTP, Host: "198.51.100.20", Port: 80})
	fast.RecordSuccess(model.AnonymityElite, 100, cfg.ProxiesConf.MaxLatencyMs, time.Now())

	slow := m.Ingest(model.Fingerprint{Kind: model.HTTP, Host: "198.51.100.21", Port: 80})
	slow.RecordSuccess(model.AnonymityElite, 2000, cfg.ProxiesConf.MaxLatencyMs, time.Now())

	unreliable := m.Ingest(model.Fingerprint{Kind: model.HTTP, Host: "198.51.100.22", Port: 80})
	unreliable.RecordSuccess(model.AnonymityElite, 50, cfg.ProxiesConf.MaxLatencyMs, time.Now())
	unreliable.RecordFailure(1, time.Nanosecond, time.Now())
	unreliable.State = model.Failing // not eligible: state must be Alive

	got := m.Eligible(10)
	if len(got) != 2 {
		t.Fatalf("expected 2 eligible records, got %d", len(got))
	}
	if got[0].Key != fast.Key || got[1].Key != slow.Key {
		t.Errorf("expected fast before slow, got %v then %v", got[0].Key, got[1].Key)
	}
}

func TestStatsCountsByStateKindAndCountry(t *testing.T) {
	m := New(testConfig(), newMemStore(), &scriptedProber{}, &stubEnricher{})

	a := m.Ingest(model.Fingerprint{Kind: model.HTTP, Host: "198.51.100.30", Port: 80})
	a.State = model.Alive
	a.Metadata = &model.Metadata{Country: "China"}

	b := m.Ingest(model.Fingerprint{Kind: model.SOCKS5, Host: "198.51.100.31", Port: 1080})
	b.State = model.Dead

	stats := m.Stats()
	if stats.Total != 2 || stats.Alive != 1 || stats.Dead != 1 {
		t.Errorf("unexpected totals: %+v", stats)
	}
	if stats.ByKind[model.HTTP] != 1 || stats.ByKind[model.SOCKS5] != 1 {
		t.Errorf("unexpected by-kind counts: %+v", stats.ByKind)
	}
	if stats.ByCountry["China"] != 1 {
		t.Errorf("unexpected by-country counts: %+v", stats.ByCountry)
	}
}
