// Package scraper implements the Source Harvesters: per-site collectors
// that turn a listing page into candidate proxy fingerprints for
// Manager.Ingest to dedupe against the pool.
package scraper

import (
	"context"
	"fmt"

	"proxyward/proxypool/model"
)

// Harvester scrapes one proxy-list source. Implementations only extract and
// parse candidates; they never validate them.
type Harvester interface {
	// Harvest fetches and parses the source, returning every fingerprint it
	// found. A partial result alongside a non-nil error is acceptable: the
	// caller keeps whatever fingerprints were parsed before the failure.
	Harvest(ctx context.Context) ([]model.Fingerprint, error)

	// Name identifies the harvester for logging and Fingerprint.Source.
	Name() string
}

// StatusError reports a non-200 response from a source that treats it as
// fatal rather than skippable.
type StatusError struct {
	Source     string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("scraper: %s returned status %d", e.Source, e.StatusCode)
}
