// Package model defines the core proxy value objects shared by the
// requestor, judge, sleuth, manager, scraper and storage packages.
package model

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Kind is the outbound protocol used to reach a target through a proxy.
type Kind string

const (
	HTTP   Kind = "http"
	HTTPS  Kind = "https"
	SOCKS4 Kind = "socks4"
	SOCKS5 Kind = "socks5"
)

// ParseKind validates a scheme string against the accepted proxy grammar.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(s)) {
	case HTTP:
		return HTTP, nil
	case HTTPS:
		return HTTPS, nil
	case SOCKS4:
		return SOCKS4, nil
	case SOCKS5:
		return SOCKS5, nil
	default:
		return "", fmt.Errorf("model: unknown proxy scheme %q", s)
	}
}

// Anonymity is the level of client-identity exposure a proxy was observed
// to reveal to a judge endpoint.
type Anonymity string

const (
	AnonymityUnknown     Anonymity = "unknown"
	AnonymityTransparent Anonymity = "transparent"
	AnonymityAnonymous   Anonymity = "anonymous"
	AnonymityElite       Anonymity = "elite"
)

// State is a record's position in the validation lifecycle.
type State string

const (
	Untested   State = "untested"
	Validating State = "validating"
	Alive      State = "alive"
	Failing    State = "failing"
	Dead       State = "dead"
)

// Credentials is an optional username/password pair attached to a proxy.
// The zero value means "no credentials", which keeps Credentials safely
// comparable as a plain struct field rather than a pointer: two Keys for the
// same anonymous proxy must hash identically as Go map keys.
type Credentials struct {
	Username string
	Password string
}

// Set reports whether any credential was supplied.
func (c Credentials) Set() bool { return c.Username != "" || c.Password != "" }

func (c Credentials) String() string {
	if !c.Set() {
		return ""
	}
	return c.Username + ":" + c.Password
}

// Key is the identity of a proxy: (kind, host, port, credentials). The pool
// holds at most one ProxyRecord per Key. Key is comparable and used directly
// as a map key by Manager and Store.
type Key struct {
	Kind        Kind
	Host        string
	Port        int
	Credentials Credentials
}

// String renders a Key as a stable map/log key.
func (k Key) String() string {
	cred := ""
	if k.Credentials.Set() {
		cred = "@" + k.Credentials.Username
	}
	return fmt.Sprintf("%s://%s%s:%d", k.Kind, cred, k.Host, k.Port)
}

// Metadata is the Sleuth-populated enrichment payload for a proxy's host.
// Fields are independently optional: a failed ASN lookup must not blank an
// otherwise-successful city lookup.
type Metadata struct {
	Country      string
	Region       string
	City         string
	Latitude     float64
	Longitude    float64
	ASN          string
	Organization string
	NetworkCIDR  string
}

// Merge copies every non-empty field of other into m, preserving fields
// already set that other leaves blank.
func (m *Metadata) Merge(other *Metadata) {
	if other == nil {
		return
	}
	if other.Country != "" {
		m.Country = other.Country
	}
	if other.Region != "" {
		m.Region = other.Region
	}
	if other.City != "" {
		m.City = other.City
	}
	if other.Latitude != 0 {
		m.Latitude = other.Latitude
	}
	if other.Longitude != 0 {
		m.Longitude = other.Longitude
	}
	if other.ASN != "" {
		m.ASN = other.ASN
	}
	if other.Organization != "" {
		m.Organization = other.Organization
	}
	if other.NetworkCIDR != "" {
		m.NetworkCIDR = other.NetworkCIDR
	}
}

// Fingerprint is the raw candidate handed to Manager.Ingest by a Source
// Harvester: identity plus the source it was scraped from.
type Fingerprint struct {
	Kind        Kind
	Host        string
	Port        int
	Credentials Credentials
	Source      string
}

// Key returns the identity key of a fingerprint.
func (f Fingerprint) Key() Key {
	return Key{Kind: f.Kind, Host: f.Host, Port: f.Port, Credentials: f.Credentials}
}

// ProxyRecord is the mutable per-proxy value object: identity, measurements,
// and lifecycle counters. It is only ever mutated by Manager under its
// internal lock.
type ProxyRecord struct {
	Key Key

	Source string

	Anonymity   Anonymity
	LatencyMs   int64
	State       State
	Metadata    *Metadata
	CooldownUntil time.Time

	ConsecutiveFailures int
	SuccessCount        int
	AttemptCount        int

	FirstSeen   time.Time
	LastChecked time.Time
}

// NewProxyRecord creates a fresh, untested record for a fingerprint.
func NewProxyRecord(fp Fingerprint) *ProxyRecord {
	now := time.Now()
	return &ProxyRecord{
		Key:         fp.Key(),
		Source:      fp.Source,
		Anonymity:   AnonymityUnknown,
		State:       Untested,
		FirstSeen:   now,
		LastChecked: time.Time{},
	}
}

// SuccessRate returns success_count/attempt_count, or 0 when no attempts
// have been made yet.
func (p *ProxyRecord) SuccessRate() float64 {
	if p.AttemptCount == 0 {
		return 0
	}
	return float64(p.SuccessCount) / float64(p.AttemptCount)
}

// RecordSuccess applies a successful probe outcome: it increments the
// counters, resets the failure streak, and sets state to Alive or Failing
// depending on whether latency clears maxAcceptableLatencyMs.
func (p *ProxyRecord) RecordSuccess(anonymity Anonymity, latencyMs int64, maxAcceptableLatencyMs int64, now time.Time) {
	p.AttemptCount++
	p.SuccessCount++
	p.ConsecutiveFailures = 0
	p.Anonymity = anonymity
	p.LatencyMs = latencyMs
	p.LastChecked = now
	if latencyMs <= maxAcceptableLatencyMs {
		p.State = Alive
	} else {
		p.State = Failing
	}
}

// RecordFailure applies a failed probe outcome: it increments the failure
// streak and, once maxConsecutiveFailures is reached, transitions to Dead
// with a fresh cooldown.
func (p *ProxyRecord) RecordFailure(maxConsecutiveFailures int, cooldown time.Duration, now time.Time) {
	p.AttemptCount++
	p.ConsecutiveFailures++
	p.LastChecked = now
	if p.ConsecutiveFailures >= maxConsecutiveFailures {
		p.State = Dead
		p.CooldownUntil = now.Add(cooldown)
	} else {
		p.State = Failing
	}
}

// EligibleForRotation reports whether the record may currently be handed
// out for external consumption.
func (p *ProxyRecord) EligibleForRotation(minSuccessRate float64, now time.Time) bool {
	return p.State == Alive && p.SuccessRate() >= minSuccessRate && !now.Before(p.CooldownUntil)
}

// DueForCheck reports whether check_all should schedule this record: its
// cooldown has elapsed, and it is untested, alive, or merely failing. Dead
// and Validating records are never due, whether or not their cooldown has
// passed; a dead record re-enters scheduling only through purge and a fresh
// Ingest.
func (p *ProxyRecord) DueForCheck(now time.Time) bool {
	if now.Before(p.CooldownUntil) {
		return false
	}
	switch p.State {
	case Untested, Alive, Failing:
		return true
	default: // Validating, Dead
		return false
	}
}

// Stale reports whether the record's last check is older than maxAge.
func (p *ProxyRecord) Stale(maxAge time.Duration, now time.Time) bool {
	if p.LastChecked.IsZero() {
		return true
	}
	return now.Sub(p.LastChecked) > maxAge
}

// ParseFingerprint parses the proxy URL grammar accepted by ingest:
// scheme://[user:pass@]host:port, with a bare host:port defaulting to HTTP.
func ParseFingerprint(raw string) (Fingerprint, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Fingerprint{}, fmt.Errorf("model: empty proxy string")
	}

	if !strings.Contains(s, "://") {
		s = string(HTTP) + "://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("model: invalid proxy url %q: %w", raw, err)
	}

	kind, err := ParseKind(u.Scheme)
	if err != nil {
		return Fingerprint{}, err
	}

	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("model: invalid host:port %q: %w", u.Host, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return Fingerprint{}, fmt.Errorf("model: invalid port %q", portStr)
	}

	var creds Credentials
	if u.User != nil {
		pass, _ := u.User.Password()
		creds = Credentials{Username: u.User.Username(), Password: pass}
	}

	return Fingerprint{
		Kind:        kind,
		Host:        host,
		Port:        port,
		Credentials: creds,
	}, nil
}

// String formats a fingerprint back into the scheme://[user:pass@]host:port
// grammar ParseFingerprint accepts, so parse then format round-trips modulo
// scheme casing.
func (f Fingerprint) String() string {
	host := f.Host
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if f.Credentials.Set() {
		return fmt.Sprintf("%s://%s:%s@%s:%d", f.Kind, f.Credentials.Username, f.Credentials.Password, host, f.Port)
	}
	return fmt.Sprintf("%s://%s:%d", f.Kind, host, f.Port)
}

// ConnectionString formats a record's identity the same way Fingerprint
// does, for logging and for the HTTP/SOCKS client factories.
func (p *ProxyRecord) ConnectionString() string {
	f := Fingerprint{Kind: p.Key.Kind, Host: p.Key.Host, Port: p.Key.Port, Credentials: p.Key.Credentials}
	return f.String()
}
