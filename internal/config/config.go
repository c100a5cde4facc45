// Package config loads service settings with viper: built-in defaults, an
// optional config.yaml, PUBAGG_* environment variables, then env-only secrets.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Postgres sslmode values accepted in DatabaseConfig.
const (
	SSLModeDisable    = "disable"
	SSLModeRequire    = "require"
	SSLModeVerifyCA   = "verify-ca"
	SSLModeVerifyFull = "verify-full"
)

// Backoff names accepted in retry policies.
const (
	BackoffConstant    = "constant"
	BackoffLinear      = "linear"
	BackoffExponential = "exponential"
)

// Citation merge strategies accepted in MergeConfig.
const (
	CitationStrategyMean         = "mean"
	CitationStrategyMax          = "max"
	CitationStrategyPreferSource = "prefer_source"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "PUBAGG"

// dateLayout is the layout of bulk window boundaries.
const dateLayout = "2006-01-02"

// Config is the full service configuration, one field per YAML section.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Sources     SourcesConfig     `mapstructure:"sources"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Bulk        BulkConfig        `mapstructure:"bulk"`
	Merge       MergeConfig       `mapstructure:"merge"`
	Institution InstitutionConfig `mapstructure:"institution"`
	Faculty     FacultyConfig     `mapstructure:"faculty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// SearchTimeout bounds a single synchronous search request.
	SearchTimeout time.Duration `mapstructure:"search_timeout"`
}

// DatabaseConfig holds the batch store connection. Its fields are only
// checked when Enabled is set; without it the HTTP batch API is unavailable.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"min=1,max=65535"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name" validate:"required"`
	SSLMode  string `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable require verify-ca verify-full"`

	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns" validate:"gte=0"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`

	// MigrationPath is a directory of migration files. Empty selects the
	// migrations embedded in the binary.
	MigrationPath    string `mapstructure:"migration_path"`
	MigrationAutoRun bool   `mapstructure:"migration_auto_run"`
}

// LoggingConfig mirrors observability.LoggingConfig.
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"loglevel"`
	Format     string `mapstructure:"format" validate:"omitempty,oneof=json console pretty"`
	Output     string `mapstructure:"output" validate:"omitempty,oneof=stdout stderr"`
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds Prometheus exposure settings.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// KafkaConfig holds batch event settings. Topic receives lifecycle events;
// RequestTopic, when set, is consumed for batch submissions.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers" validate:"min=1,dive,required"`
	Topic        string        `mapstructure:"topic" validate:"required"`
	RequestTopic string        `mapstructure:"request_topic"`
	GroupID      string        `mapstructure:"group_id" validate:"required_with=RequestTopic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// SourcesConfig has one block per external source. Semantic Scholar is only
// consulted for citation counts, Google Scholar only for profile totals.
type SourcesConfig struct {
	ORCID           SourceConfig `mapstructure:"orcid"`
	CrossRef        SourceConfig `mapstructure:"crossref"`
	OpenAlex        SourceConfig `mapstructure:"openalex"`
	SemanticScholar SourceConfig `mapstructure:"semantic_scholar"`
	Scholar         SourceConfig `mapstructure:"scholar"`
}

// SourceConfig sizes the HTTP client of one source. RateLimit is requests
// per second, zero meaning unlimited. MaxResults is the page or row size.
// Mailto joins the CrossRef and OpenAlex polite pools. APIKey never comes
// from a file; see loadSecrets.
type SourceConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	BaseURL    string        `mapstructure:"base_url" validate:"required,url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  float64       `mapstructure:"rate_limit" validate:"gte=0"`
	Burst      int           `mapstructure:"burst" validate:"gte=0"`
	MaxResults int           `mapstructure:"max_results"`
	Mailto     string        `mapstructure:"mailto"`
	APIKey     string        `mapstructure:"-"`
}

// RetryConfig holds the configurable retry policies.
type RetryConfig struct {
	// ORCID is the per-entity ORCID fetch policy used by the bulk orchestrator.
	ORCID RetryPolicyConfig `mapstructure:"orcid"`
	// OpenAlex is the policy wrapped around OpenAlex author search.
	OpenAlex RetryPolicyConfig `mapstructure:"openalex"`
}

// RetryPolicyConfig describes one retry policy.
type RetryPolicyConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int `mapstructure:"max_attempts" validate:"min=1"`
	// BaseDelay is the backoff unit.
	BaseDelay time.Duration `mapstructure:"base_delay"`
	// Backoff is constant, linear or exponential.
	Backoff string `mapstructure:"backoff" validate:"oneof=constant linear exponential"`
	// Jitter bounds the random delay added to each wait.
	Jitter time.Duration `mapstructure:"jitter"`
}

// BulkConfig holds bulk orchestrator settings.
type BulkConfig struct {
	// Workers is the number of entities processed concurrently (default: 5).
	Workers int `mapstructure:"workers" validate:"min=1"`
	// DefaultStart is the default window start (YYYY-MM-DD).
	DefaultStart string `mapstructure:"default_start" validate:"required,datetime=2006-01-02"`
	// DefaultEnd is the default window end (YYYY-MM-DD).
	DefaultEnd string `mapstructure:"default_end" validate:"required,datetime=2006-01-02"`
	// MaxEntities bounds the size of one submitted batch.
	MaxEntities int `mapstructure:"max_entities" validate:"gte=0"`
}

// MergeConfig holds merge engine settings.
type MergeConfig struct {
	// CitationStrategy is mean, max or prefer_source (default: mean).
	CitationStrategy string `mapstructure:"citation_strategy" validate:"oneof=mean max prefer_source"`
	// PreferredSource is the source label consulted by prefer_source.
	PreferredSource string `mapstructure:"preferred_source" validate:"required_if=CitationStrategy prefer_source"`
}

// InstitutionConfig holds home-institution matching settings.
type InstitutionConfig struct {
	// Markers are affiliation substrings identifying the institution.
	Markers []string `mapstructure:"markers"`
}

// FacultyConfig holds the faculty roster location.
type FacultyConfig struct {
	// RosterPath is a CSV or YAML roster loaded at startup. Empty means no roster.
	RosterPath string `mapstructure:"roster_path"`
}

// DSN renders a postgres:// URL with escaped credentials.
func (c *DatabaseConfig) DSN() string {
	q := url.Values{"sslmode": {c.SSLMode}}
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// HTTPAddress is host:port for the listener.
func (c *ServerConfig) HTTPAddress() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.HTTPPort))
}

// Window parses the default bulk window boundaries.
func (c *BulkConfig) Window() (start, end time.Time, err error) {
	start, err = time.Parse(dateLayout, c.DefaultStart)
	if err != nil {
		return start, end, fmt.Errorf("invalid bulk default_start %q: %w", c.DefaultStart, err)
	}
	end, err = time.Parse(dateLayout, c.DefaultEnd)
	if err != nil {
		return start, end, fmt.Errorf("invalid bulk default_end %q: %w", c.DefaultEnd, err)
	}
	return start, end, nil
}

// Load reads config.yaml from the default locations, then PUBAGG_*
// environment overrides, then secrets.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches the
// default locations.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/publication-aggregator")
	}

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// loadSecrets reads values that must not live in a config file. CrossRef
// shares the OpenAlex contact address unless it has its own.
func loadSecrets(cfg *Config) {
	cfg.Sources.SemanticScholar.APIKey = os.Getenv("SEMANTIC_SCHOLAR_API_KEY")

	if mailto := os.Getenv("OPENALEX_MAILTO"); mailto != "" {
		cfg.Sources.OpenAlex.Mailto = mailto
	}
	if cfg.Sources.CrossRef.Mailto == "" {
		cfg.Sources.CrossRef.Mailto = cfg.Sources.OpenAlex.Mailto
	}
}

// sourceDefaults holds base URL, requests per second, burst and page size.
var sourceDefaults = map[string]struct {
	url        string
	rate       float64
	burst      int
	maxResults int
}{
	"orcid":            {"https://pub.orcid.org/v3.0", 8, 8, 50},
	"crossref":         {"https://api.crossref.org", 5, 5, 100},
	"openalex":         {"https://api.openalex.org", 10, 10, 200},
	"semantic_scholar": {"https://api.semanticscholar.org/graph/v1", 1, 1, 0},
	"scholar":          {"https://scholar.google.com", 1, 1, 0},
}

// defaults is every key with a built-in value. The database ships with
// ssl_mode=require; local setups override it with PUBAGG_DATABASE_SSL_MODE.
var defaults = map[string]any{
	"server.host":             "0.0.0.0",
	"server.http_port":        8080,
	"server.read_timeout":     "30s",
	"server.write_timeout":    "5m",
	"server.shutdown_timeout": "30s",
	"server.search_timeout":   "4m",

	"database.enabled":             false,
	"database.host":                "localhost",
	"database.port":                5432,
	"database.user":                "pubagg",
	"database.name":                "publication_aggregator",
	"database.ssl_mode":            SSLModeRequire,
	"database.max_conns":           20,
	"database.min_conns":           2,
	"database.max_conn_lifetime":   "1h",
	"database.max_conn_idle_time":  "30m",
	"database.health_check_period": "30s",
	"database.connect_timeout":     "10s",
	"database.password":            "",
	"database.migration_path":      "migrations",
	"database.migration_auto_run":  false,

	"logging.level":       "info",
	"logging.format":      "json",
	"logging.output":      "stdout",
	"logging.time_format": time.RFC3339,
	"logging.add_source":  false,

	"metrics.enabled":   true,
	"metrics.path":      "/metrics",
	"metrics.namespace": "pubagg",

	"kafka.enabled":       false,
	"kafka.request_topic": "",
	"kafka.brokers":       []string{"localhost:9092"},
	"kafka.topic":         "events.publication_aggregator.batches",
	"kafka.group_id":      "publication-aggregator",
	"kafka.batch_timeout": "10ms",
	"kafka.write_timeout": "10s",

	"retry.orcid.max_attempts":    4,
	"retry.orcid.base_delay":      "6s",
	"retry.orcid.backoff":         BackoffLinear,
	"retry.orcid.jitter":          "500ms",
	"retry.openalex.max_attempts": 3,
	"retry.openalex.base_delay":   "1s",
	"retry.openalex.backoff":      BackoffExponential,
	"retry.openalex.jitter":       "0s",

	"bulk.workers":       5,
	"bulk.default_start": "2000-01-01",
	"bulk.default_end":   "2050-12-31",
	"bulk.max_entities":  1000,

	"merge.citation_strategy": CitationStrategyMean,
	"merge.preferred_source":  "",

	"institution.markers": []string{"nanyang technological university", "nanyang", "ntu"},
	"faculty.roster_path": "",
}

// setDefaults registers defaults and sourceDefaults on v. Every key needs a
// default, even an empty one, for AutomaticEnv to reach it on Unmarshal.
func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for name, d := range sourceDefaults {
		prefix := "sources." + name + "."
		v.SetDefault(prefix+"enabled", true)
		v.SetDefault(prefix+"base_url", d.url)
		v.SetDefault(prefix+"timeout", "10s")
		v.SetDefault(prefix+"rate_limit", d.rate)
		v.SetDefault(prefix+"burst", d.burst)
		if d.maxResults > 0 {
			v.SetDefault(prefix+"max_results", d.maxResults)
		}
	}
}

// section is one config block checked by Validate.
type section struct {
	name   string
	active bool
	value  interface{}
}

func (c *Config) sections() []section {
	return []section{
		{"server", true, &c.Server},
		{"database", c.Database.Enabled, &c.Database},
		{"logging", true, &c.Logging},
		{"kafka", c.Kafka.Enabled, &c.Kafka},
		{"source orcid", c.Sources.ORCID.Enabled, &c.Sources.ORCID},
		{"source crossref", c.Sources.CrossRef.Enabled, &c.Sources.CrossRef},
		{"source openalex", c.Sources.OpenAlex.Enabled, &c.Sources.OpenAlex},
		{"source semantic_scholar", c.Sources.SemanticScholar.Enabled, &c.Sources.SemanticScholar},
		{"source scholar", c.Sources.Scholar.Enabled, &c.Sources.Scholar},
		{"retry orcid", true, &c.Retry.ORCID},
		{"retry openalex", true, &c.Retry.OpenAlex},
		{"bulk", true, &c.Bulk},
		{"merge", true, &c.Merge},
	}
}

// Validate checks every active section against its field rules, then the
// rules that span fields.
func (c *Config) Validate() error {
	for _, s := range c.sections() {
		if !s.active {
			continue
		}
		if err := validate.Struct(s.value); err != nil {
			return fmt.Errorf("%s: %w", s.name, fieldError(err))
		}
	}

	if c.Database.Enabled && c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("database: max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	start, end, err := c.Bulk.Window()
	if err != nil {
		return err
	}
	if end.Before(start) {
		return errors.New("bulk: default_end must not be before default_start")
	}
	return nil
}
