package storage

import (
	"path/filepath"
	"testing"
	"time"

	"proxyward/proxypool/model"
)

func TestLoadMissingFileYieldsEmptyPool(t *testing.T) {
	fs := NewFileStorage(filepath.Join(t.TempDir(), "does-not-exist.db"))
	pool, err := fs.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pool) != 0 {
		t.Errorf("expected empty pool, got %d entries", len(pool))
	}
}

func TestSaveLoadRoundTripsPoolFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.db")
	fs := NewFileStorage(path)

	now := time.Unix(1_700_000_000, 0)
	rec := model.NewProxyRecord(model.Fingerprint{
		Kind:        model.SOCKS5,
		Host:        "198.51.100.4",
		Port:        1080,
		Credentials: model.Credentials{Username: "alice", Password: "secret"},
		Source:      "manual-import",
	})
	rec.RecordSuccess(model.AnonymityElite, 250, 3000, now)
	rec.Metadata = &model.Metadata{
		Country: "China", Region: "Beijing", City: "Beijing",
		Latitude: 39.9, Longitude: 116.4, ASN: "AS4808", Organization: "China Unicom",
		NetworkCIDR: "198.51.100.0/24",
	}

	pool := map[model.Key]*model.ProxyRecord{rec.Key: rec}
	if err := fs.Save(pool); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := fs.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	got, ok := loaded[rec.Key]
	if !ok {
		t.Fatalf("expected key %s to round-trip, got keys %v", rec.Key, keysOf(loaded))
	}

	if got.Source != rec.Source || got.Anonymity != rec.Anonymity || got.State != rec.State {
		t.Errorf("identity/state fields did not round-trip: %+v", got)
	}
	if got.LatencyMs != rec.LatencyMs || got.SuccessCount != rec.SuccessCount || got.AttemptCount != rec.AttemptCount {
		t.Errorf("measurement fields did not round-trip: %+v", got)
	}
	if got.Metadata == nil || got.Metadata.Country != "China" || got.Metadata.ASN != "AS4808" {
		t.Errorf("metadata did not round-trip: %+v", got.Metadata)
	}
	if !got.LastChecked.Equal(rec.LastChecked) {
		t.Errorf("last_checked did not round-trip: got %v want %v", got.LastChecked, rec.LastChecked)
	}
}

func keysOf(m map[model.Key]*model.ProxyRecord) []model.Key {
	ks := make([]model.Key, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	return ks
}
