// Package sleuth enriches an IP address with geolocation and ownership
// metadata, querying ip-api.com first and falling back to ipinfo.io.
package sleuth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"proxyward/internal/shared/logger"
	"proxyward/proxypool/model"
)

// ErrorKind classifies why a lookup could not produce metadata.
type ErrorKind string

const (
	NotFound    ErrorKind = "not_found"
	RateLimited ErrorKind = "rate_limited"
	APIError    ErrorKind = "api_error"
	ParseError  ErrorKind = "parse_error"
)

// Error is returned by Lookup when every configured endpoint failed.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sleuth: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("sleuth: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

type ipAPIResponse struct {
	Status     string  `json:"status"`
	Country    string  `json:"country"`
	RegionName string  `json:"regionName"`
	City       string  `json:"city"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	AS         string  `json:"as"`
	Org        string  `json:"org"`
}

type ipInfoResponse struct {
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country"`
	Loc     string `json:"loc"` // "lat,lon"
	Org     string `json:"org"` // "ASxxxx Org Name"
	Network string `json:"network"`
}

// Sleuth queries public IP-metadata endpoints, caching results per-IP for
// the process lifetime to amortize lookups across records sharing a host.
type Sleuth struct {
	client *http.Client

	mu    sync.RWMutex
	cache map[string]*model.Metadata
}

// New constructs a Sleuth with a dedicated HTTP client for lookup calls.
func New(timeout time.Duration) *Sleuth {
	return &Sleuth{
		client: &http.Client{Timeout: timeout},
		cache:  make(map[string]*model.Metadata),
	}
}

// Lookup returns metadata for ip, consulting the in-process cache first.
// The first endpoint to return a recognized schema is authoritative;
// partial results are retained (a missing field from one source does not
// erase a field already populated by another).
func (s *Sleuth) Lookup(ctx context.Context, ip string) (*model.Metadata, error) {
	s.mu.RLock()
	if cached, ok := s.cache[ip]; ok {
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	l := logger.WithComponent("sleuth")
	meta := &model.Metadata{}

	if m, err := s.lookupIPAPI(ctx, ip); err != nil {
		l.Debug().Err(err).Str("ip", ip).Msg("ip-api.com lookup failed, trying ipinfo.io")
	} else {
		meta.Merge(m)
	}

	if meta.Country == "" || meta.ASN == "" {
		if m, err := s.lookupIPInfo(ctx, ip); err != nil {
			l.Debug().Err(err).Str("ip", ip).Msg("ipinfo.io lookup failed")
		} else {
			m.Merge(meta)
			meta = m
		}
	}

	if meta.Country == "" && meta.ASN == "" && meta.Organization == "" {
		return nil, &Error{Kind: NotFound, Err: fmt.Errorf("no metadata available for %s", ip)}
	}

	s.mu.Lock()
	s.cache[ip] = meta
	s.mu.Unlock()

	return meta, nil
}

func (s *Sleuth) lookupIPAPI(ctx context.Context, ip string) (*model.Metadata, error) {
	url := fmt.Sprintf("http://ip-api.com/json/%s?fields=status,country,regionName,city,lat,lon,as,org", ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: APIError, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &Error{Kind: RateLimited}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Kind: APIError, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var body ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &Error{Kind: ParseError, Err: err}
	}
	if body.Status != "success" {
		return nil, &Error{Kind: NotFound, Err: fmt.Errorf("ip-api.com status %q", body.Status)}
	}

	return &model.Metadata{
		Country:      body.Country,
		Region:       body.RegionName,
		City:         body.City,
		Latitude:     body.Lat,
		Longitude:    body.Lon,
		ASN:          body.AS,
		Organization: body.Org,
	}, nil
}

func (s *Sleuth) lookupIPInfo(ctx context.Context, ip string) (*model.Metadata, error) {
	url := fmt.Sprintf("https://ipinfo.io/%s/json", ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: APIError, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, &Error{Kind: NotFound}
	case http.StatusTooManyRequests:
		return nil, &Error{Kind: RateLimited}
	case http.StatusOK:
	default:
		return nil, &Error{Kind: APIError, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var body ipInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &Error{Kind: ParseError, Err: err}
	}

	meta := &model.Metadata{
		Country:      body.Country,
		Region:       body.Region,
		City:         body.City,
		Organization: body.Org,
		NetworkCIDR:  body.Network,
	}
	fmt.Sscanf(body.Loc, "%f,%f", &meta.Latitude, &meta.Longitude)
	return meta, nil
}
