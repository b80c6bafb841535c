// Package types holds the configuration and seed-source shapes shared
// between the config loader, the manager, and the CLI.
package types

// Defaults mirror the constants the validation/enrichment engine falls
// back to when a config value is left at its zero value.
const (
	DefaultRequestTimeoutSecs      = 30
	DefaultRequestRetries          = 3
	DefaultRequestDelayMs          = 500
	DefaultParallelValidations     = 10
	DefaultMaxAcceptableLatencyMs  = 3000
	DefaultValidationTimeoutSecs   = 10
	DefaultMinSuccessRate          = 0.7
	DefaultMaxConsecutiveFailures  = 3
	DefaultFailureCooldownSecs     = 300
	DefaultMaxProxyAgeSecs         = 86400
	DefaultAutoSaveIntervalSecs    = 300
	DefaultScrapeIntervalSecs      = 3600
	DefaultHealthCheckIntervalSecs = 60
)

// DefaultJudgeURLs is the fallback list of judge endpoints tried in order
// at Judge construction; the first to yield a well-formed baseline wins.
var DefaultJudgeURLs = []string{
	"http://proxyjudge.us/azenv.php",
	"http://azenv.net",
}

// HTTPConf configures the Requestor.
type HTTPConf struct {
	TimeoutSecs int      `ini:"timeout_secs"`
	Retries     int      `ini:"retries"`
	DelayMs     int      `ini:"delay_ms"`
	UserAgents  []string `ini:"-"`
}

// JudgeConf configures the Judge.
type JudgeConf struct {
	URLs        []string `ini:"-"`
	TimeoutSecs int      `ini:"timeout_secs"`
}

// ProxiesConf configures Manager lifecycle policy.
type ProxiesConf struct {
	MaxLatencyMs            int64   `ini:"max_latency_ms"`
	MaxConsecutiveFailures  int     `ini:"max_consecutive_failures"`
	MinSuccessRate          float64 `ini:"min_success_rate"`
	CooldownSecs            int     `ini:"cooldown_secs"`
	MaxAgeSecs              int     `ini:"max_age_secs"`
	ParallelValidations     int     `ini:"parallel_validations"`
	ScrapeIntervalSecs      int     `ini:"scrape_interval_secs"`
	HealthCheckIntervalSecs int     `ini:"health_check_interval_secs"`
}

// StorageConf configures the Store collaborator.
type StorageConf struct {
	ProxiesPath          string `ini:"proxies_path"`
	SourcesPath          string `ini:"sources_path"`
	AutoSaveIntervalSecs int    `ini:"auto_save_interval_secs"`
}

// LogConf configures the logger.
type LogConf struct {
	Level string `ini:"level"`
}

// Config is the top-level behavior configuration, loaded from an ini file.
type Config struct {
	HTTPConf    `ini:"http"`
	JudgeConf   `ini:"judge"`
	ProxiesConf `ini:"proxies"`
	StorageConf `ini:"storage"`
	LogConf     `ini:"log"`
}

// ApplyDefaults fills any zero-valued field with the package default, so a
// minimal or partial ini file still produces a usable configuration.
func (c *Config) ApplyDefaults() {
	if c.HTTPConf.TimeoutSecs == 0 {
		c.HTTPConf.TimeoutSecs = DefaultRequestTimeoutSecs
	}
	if c.HTTPConf.Retries == 0 {
		c.HTTPConf.Retries = DefaultRequestRetries
	}
	if c.HTTPConf.DelayMs == 0 {
		c.HTTPConf.DelayMs = DefaultRequestDelayMs
	}
	if len(c.JudgeConf.URLs) == 0 {
		c.JudgeConf.URLs = DefaultJudgeURLs
	}
	if c.JudgeConf.TimeoutSecs == 0 {
		c.JudgeConf.TimeoutSecs = DefaultValidationTimeoutSecs
	}
	if c.ProxiesConf.MaxLatencyMs == 0 {
		c.ProxiesConf.MaxLatencyMs = DefaultMaxAcceptableLatencyMs
	}
	if c.ProxiesConf.MaxConsecutiveFailures == 0 {
		c.ProxiesConf.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if c.ProxiesConf.MinSuccessRate == 0 {
		c.ProxiesConf.MinSuccessRate = DefaultMinSuccessRate
	}
	if c.ProxiesConf.CooldownSecs == 0 {
		c.ProxiesConf.CooldownSecs = DefaultFailureCooldownSecs
	}
	if c.ProxiesConf.MaxAgeSecs == 0 {
		c.ProxiesConf.MaxAgeSecs = DefaultMaxProxyAgeSecs
	}
	if c.ProxiesConf.ParallelValidations == 0 {
		c.ProxiesConf.ParallelValidations = DefaultParallelValidations
	}
	if c.ProxiesConf.ScrapeIntervalSecs == 0 {
		c.ProxiesConf.ScrapeIntervalSecs = DefaultScrapeIntervalSecs
	}
	if c.ProxiesConf.HealthCheckIntervalSecs == 0 {
		c.ProxiesConf.HealthCheckIntervalSecs = DefaultHealthCheckIntervalSecs
	}
	if c.StorageConf.ProxiesPath == "" {
		c.StorageConf.ProxiesPath = "proxies.db"
	}
	if c.StorageConf.SourcesPath == "" {
		c.StorageConf.SourcesPath = "sources.json"
	}
	if c.StorageConf.AutoSaveIntervalSecs == 0 {
		c.StorageConf.AutoSaveIntervalSecs = DefaultAutoSaveIntervalSecs
	}
	if c.LogConf.Level == "" {
		c.LogConf.Level = "info"
	}
}

// SourceProfile is one entry of the harvester's seed source list, loaded
// from and persisted to sources.json by config.LoadSources/SaveSources.
type SourceProfile struct {
	Name               string `json:"name"`
	URL                string `json:"url"`
	UserAgent          string `json:"userAgent,omitempty"`
	ExtractionPattern  string `json:"extractionPattern,omitempty"`
	ForwardProxyURL    string `json:"forwardProxyUrl,omitempty"`
	LastStatus         string `json:"lastStatus,omitempty"`
	Reliability        float64 `json:"reliability,omitempty"`
}
