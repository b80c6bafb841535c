// Package storage persists the proxy pool between runs.
package storage

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"proxyward/internal/shared/logger"
	"proxyward/proxypool/model"
)

const (
	delimiter = "|"
	// kind|host|port|username|password|source|anonymity|latency_ms|state|
	// consecutive_failures|success_count|attempt_count|cooldown_until|
	// first_seen|last_checked|country|region|city|lat|lon|asn|org|cidr
	numFields = 23
)

// Store persists and reloads the full proxy pool, keyed by identity.
type Store interface {
	Load() (map[model.Key]*model.ProxyRecord, error)
	Save(proxies map[model.Key]*model.ProxyRecord) error
}

// FileStorage implements Store with a delimited plain-text file, one record
// per line, sorted by key for a stable diff between saves.
type FileStorage struct {
	filePath string
	mu       sync.RWMutex
}

// NewFileStorage constructs a FileStorage rooted at filePath.
func NewFileStorage(filePath string) *FileStorage {
	return &FileStorage{filePath: filePath}
}

// Load reads the pool from disk. A missing file is not an error: it yields
// an empty pool, matching a first-run gatherer with no prior state.
func (fs *FileStorage) Load() (map[model.Key]*model.ProxyRecord, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	l := logger.WithComponent("storage")

	file, err := os.Open(fs.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			l.Info().Str("path", fs.filePath).Msg("proxy data file not found, starting with an empty pool")
			return make(map[model.Key]*model.ProxyRecord), nil
		}
		return nil, err
	}
	defer file.Close()

	pool := make(map[model.Key]*model.ProxyRecord)
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}

		fields := strings.Split(line, delimiter)
		if len(fields) != numFields {
			l.Warn().Int("line", lineNum).Int("expected", numFields).Int("got", len(fields)).Msg("skipping malformed line in proxy file")
			continue
		}

		p, err := parseRecord(fields)
		if err != nil {
			l.Warn().Int("line", lineNum).Err(err).Msg("failed to parse proxy record, skipping")
			continue
		}
		pool[p.Key] = p
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	l.Info().Int("count", len(pool)).Msg("loaded proxies from file")
	return pool, nil
}

// Save persists the whole pool, replacing the file's previous contents.
func (fs *FileStorage) Save(proxies map[model.Key]*model.ProxyRecord) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	l := logger.WithComponent("storage")

	list := make([]*model.ProxyRecord, 0, len(proxies))
	for _, p := range proxies {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Key.String() < list[j].Key.String()
	})

	var sb strings.Builder
	for _, p := range list {
		sb.WriteString(formatRecord(p))
		sb.WriteString("\n")
	}

	if err := os.WriteFile(fs.filePath, []byte(sb.String()), 0o644); err != nil {
		return err
	}

	l.Info().Int("count", len(list)).Msg("saved proxies to file")
	return nil
}

func formatRecord(p *model.ProxyRecord) string {
	meta := p.Metadata
	if meta == nil {
		meta = &model.Metadata{}
	}
	return strings.Join([]string{
		string(p.Key.Kind),
		p.Key.Host,
		strconv.Itoa(p.Key.Port),
		p.Key.Credentials.Username,
		p.Key.Credentials.Password,
		p.Source,
		string(p.Anonymity),
		strconv.FormatInt(p.LatencyMs, 10),
		string(p.State),
		strconv.Itoa(p.ConsecutiveFailures),
		strconv.Itoa(p.SuccessCount),
		strconv.Itoa(p.AttemptCount),
		unixOrZero(p.CooldownUntil),
		unixOrZero(p.FirstSeen),
		unixOrZero(p.LastChecked),
		meta.Country,
		meta.Region,
		meta.City,
		strconv.FormatFloat(meta.Latitude, 'f', -1, 64),
		strconv.FormatFloat(meta.Longitude, 'f', -1, 64),
		meta.ASN,
		meta.Organization,
		meta.NetworkCIDR,
	}, delimiter)
}

func unixOrZero(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.Unix(), 10)
}

func timeFromUnix(s string) (time.Time, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if v == 0 {
		return time.Time{}, nil
	}
	return time.Unix(v, 0), nil
}

func parseRecord(f []string) (*model.ProxyRecord, error) {
	kind, err := model.ParseKind(f[0])
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(f[2])
	if err != nil {
		return nil, fmt.Errorf("invalid port: %w", err)
	}
	latencyMs, err := strconv.ParseInt(f[7], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latency_ms: %w", err)
	}
	consecutiveFailures, err := strconv.Atoi(f[9])
	if err != nil {
		return nil, fmt.Errorf("invalid consecutive_failures: %w", err)
	}
	successCount, err := strconv.Atoi(f[10])
	if err != nil {
		return nil, fmt.Errorf("invalid success_count: %w", err)
	}
	attemptCount, err := strconv.Atoi(f[11])
	if err != nil {
		return nil, fmt.Errorf("invalid attempt_count: %w", err)
	}
	cooldownUntil, err := timeFromUnix(f[12])
	if err != nil {
		return nil, fmt.Errorf("invalid cooldown_until: %w", err)
	}
	firstSeen, err := timeFromUnix(f[13])
	if err != nil {
		return nil, fmt.Errorf("invalid first_seen: %w", err)
	}
	lastChecked, err := timeFromUnix(f[14])
	if err != nil {
		return nil, fmt.Errorf("invalid last_checked: %w", err)
	}
	lat, err := strconv.ParseFloat(f[18], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(f[19], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude: %w", err)
	}

	key := model.Key{
		Kind:        kind,
		Host:        f[1],
		Port:        port,
		Credentials: model.Credentials{Username: f[3], Password: f[4]},
	}

	return &model.ProxyRecord{
		Key:                 key,
		Source:              f[5],
		Anonymity:           model.Anonymity(f[6]),
		LatencyMs:           latencyMs,
		State:               model.State(f[8]),
		ConsecutiveFailures: consecutiveFailures,
		SuccessCount:        successCount,
		AttemptCount:        attemptCount,
		CooldownUntil:       cooldownUntil,
		FirstSeen:           firstSeen,
		LastChecked:         lastChecked,
		Metadata: &model.Metadata{
			Country:      f[15],
			Region:       f[16],
			City:         f[17],
			Latitude:     lat,
			Longitude:    lon,
			ASN:          f[20],
			Organization: f[21],
			NetworkCIDR:  f[22],
		},
	}, nil
}
