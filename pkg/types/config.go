package types

import "time"

// Default values applied by the WithDefaults methods. The politeness values
// follow the catalog's terms of use: one request every three seconds on the
// legacy APIs and at most four concurrent connections.
const (
	DefaultUserAgent       = "arxiv-harvester/0.1"
	DefaultRequestTimeout  = 60 * time.Second
	DefaultRequestInterval = 3 * time.Second
	DefaultMaxDelay        = 18000 * time.Second
	DefaultBatchSize       = 50000
	DefaultMetadataPrefix  = "arXivRaw"
	DefaultSet             = "cs"
	DefaultMaxFailures     = 5
	DefaultPageSize        = 200
	DefaultWorkers         = 4
	MaxWorkers             = 4
	DefaultMaxAttempts     = 20
	DefaultDownloadTimeout = time.Hour
	DefaultMirrorHost      = "export.arxiv.org"
	DefaultInteractiveHost = "arxiv.org"
	DefaultConsoleLogLevel = "INFO"
	DefaultFileLogLevel    = "DEBUG"
	DefaultLogFile         = "arxiv-harvester.log"
	DefaultLedgerPath      = "harvest.db"
	DefaultPapersDir       = "papers"
)

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// RequestInterval is the minimum spacing between two requests to the
	// catalog from one client.
	RequestInterval time.Duration `json:"request_interval" yaml:"request_interval" mapstructure:"request_interval"`
}

// WithDefaults returns a copy with zero fields replaced by defaults.
func (c HTTPConfig) WithDefaults() HTTPConfig {
	if c.Timeout <= 0 {
		c.Timeout = DefaultRequestTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.RequestInterval < 0 {
		c.RequestInterval = 0
	}
	return c
}

// HarvestConfig holds settings for the metadata walker.
type HarvestConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// BaseURL is the OAI-PMH endpoint.
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// MetadataPrefix selects the record format (default arXivRaw).
	MetadataPrefix string `json:"metadata_prefix" yaml:"metadata_prefix" mapstructure:"metadata_prefix"`

	// Set is the catalog partition to harvest (default cs).
	Set string `json:"set" yaml:"set" mapstructure:"set"`

	// BatchSize is the maximum number of identifiers per batch (default 50000).
	BatchSize int `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`

	// MaxFailures is the number of consecutive transport failures tolerated
	// before the harvest aborts (default 5).
	MaxFailures int `json:"max_failures" yaml:"max_failures" mapstructure:"max_failures"`

	// MaxDelay is the backoff ceiling (default 5h).
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay" mapstructure:"max_delay"`
}

// WithDefaults returns a copy with zero fields replaced by defaults.
func (c HarvestConfig) WithDefaults() HarvestConfig {
	c.HTTPConfig = c.HTTPConfig.WithDefaults()
	if c.MetadataPrefix == "" {
		c.MetadataPrefix = DefaultMetadataPrefix
	}
	if c.Set == "" {
		c.Set = DefaultSet
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = DefaultMaxFailures
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	return c
}

// ResolveConfig holds settings for the link resolver.
type ResolveConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// BaseURL is the search API endpoint.
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// PageSize is the number of results requested per page (default 200).
	PageSize int `json:"page_size" yaml:"page_size" mapstructure:"page_size"`

	// MirrorHost replaces the interactive host in document links.
	MirrorHost string `json:"mirror_host" yaml:"mirror_host" mapstructure:"mirror_host"`

	// MaxDelay is the backoff ceiling for retried pages (default 5h).
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay" mapstructure:"max_delay"`
}

// WithDefaults returns a copy with zero fields replaced by defaults.
func (c ResolveConfig) WithDefaults() ResolveConfig {
	c.HTTPConfig = c.HTTPConfig.WithDefaults()
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MirrorHost == "" {
		c.MirrorHost = DefaultMirrorHost
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	return c
}

// DownloadConfig holds settings for the download engine.
type DownloadConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// PapersDir is the base directory; documents land in a topic subdirectory.
	PapersDir string `json:"papers_dir" yaml:"papers_dir" mapstructure:"papers_dir"`

	// Workers is the number of concurrent downloads (default and maximum 4).
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`

	// MaxAttempts bounds the fetches made for one link (default 20).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`

	// DownloadTimeout bounds one link's whole attempt sequence (default 1h).
	DownloadTimeout time.Duration `json:"download_timeout" yaml:"download_timeout" mapstructure:"download_timeout"`

	// MaxDelay caps any single wait, declared by the server or not
	// (default 18000s).
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay" mapstructure:"max_delay"`
}

// WithDefaults returns a copy with zero fields replaced by defaults.
func (c DownloadConfig) WithDefaults() DownloadConfig {
	c.HTTPConfig = c.HTTPConfig.WithDefaults()
	if c.PapersDir == "" {
		c.PapersDir = DefaultPapersDir
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Workers > MaxWorkers {
		c.Workers = MaxWorkers
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = DefaultDownloadTimeout
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	return c
}

// LogConfig holds the independent console and file verbosity thresholds.
type LogConfig struct {
	ConsoleLevel string `json:"console_level" yaml:"console_level" mapstructure:"console_level"`
	FileLevel    string `json:"file_level" yaml:"file_level" mapstructure:"file_level"`

	// File is the log file path; empty disables file logging.
	File string `json:"file" yaml:"file" mapstructure:"file"`

	// JSON selects the JSON handler for the console.
	JSON bool `json:"json" yaml:"json" mapstructure:"json"`
}

// PipelineConfig groups all stage configurations for a harvesting session.
type PipelineConfig struct {
	Harvest  HarvestConfig  `json:"harvest" yaml:"harvest" mapstructure:"harvest"`
	Resolve  ResolveConfig  `json:"resolve" yaml:"resolve" mapstructure:"resolve"`
	Download DownloadConfig `json:"download" yaml:"download" mapstructure:"download"`
	Log      LogConfig      `json:"log" yaml:"log" mapstructure:"log"`

	// LedgerPath is the SQLite ledger file; empty disables the ledger.
	LedgerPath string `json:"ledger_path" yaml:"ledger_path" mapstructure:"ledger_path"`

	// Topic is the free-text topic searched within the categories.
	Topic string `json:"topic" yaml:"topic" mapstructure:"topic"`

	// Categories restricts the search; empty means every cs.* class.
	Categories []string `json:"categories" yaml:"categories" mapstructure:"categories"`
}
