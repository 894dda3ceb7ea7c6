// Package config loads and validates linkplayer configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultLinksURL is the public link list used when LINKS_URL is not set.
const DefaultLinksURL = "https://raw.githubusercontent.com/anisidina29/earn/refs/heads/main/videzzz_link.2txt"

// Config captures all knobs for a single node run.
type Config struct {
	Links   LinksConfig   `mapstructure:"links"`
	Node    NodeConfig    `mapstructure:"node"`
	Browser BrowserConfig `mapstructure:"browser"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Storage StorageConfig `mapstructure:"storage"`
	Report  ReportConfig  `mapstructure:"report"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Ops     OpsConfig     `mapstructure:"ops"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// LinksConfig controls how the link list is fetched.
type LinksConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
}

// NodeConfig identifies this process among the parallel CI nodes.
type NodeConfig struct {
	Index int `mapstructure:"index"`
	Total int `mapstructure:"total"`
}

// BrowserConfig configures the Chrome session.
type BrowserConfig struct {
	// Headless is kept as the raw string so that only "true" (any case) enables it.
	Headless          string `mapstructure:"headless"`
	Proxy             string `mapstructure:"proxy"`
	UserAgent         string `mapstructure:"user_agent"`
	WindowWidth       int    `mapstructure:"window_width"`
	WindowHeight      int    `mapstructure:"window_height"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
}

// HeadlessEnabled reports whether Chrome should run without a window.
func (b BrowserConfig) HeadlessEnabled() bool {
	return strings.EqualFold(b.Headless, "true")
}

// Delay is a base wait plus a uniformly random jitter in [0, Jitter).
type Delay struct {
	Base   time.Duration `mapstructure:"base"`
	Jitter time.Duration `mapstructure:"jitter"`
}

// WorkerConfig governs the per-link interaction sequence.
type WorkerConfig struct {
	StartAttempts          int           `mapstructure:"start_attempts"`
	StartRetryDelay        time.Duration `mapstructure:"start_retry_delay"`
	PlayXPath              string        `mapstructure:"play_xpath"`
	PlayerElementID        string        `mapstructure:"player_element_id"`
	ClickTimeout           time.Duration `mapstructure:"click_timeout"`
	PageLoadWait           Delay         `mapstructure:"page_load_wait"`
	ScrollPause            Delay         `mapstructure:"scroll_pause"`
	WatchWait              Delay         `mapstructure:"watch_wait"`
	CooldownWait           Delay         `mapstructure:"cooldown_wait"`
	ExtraScrollProbability float64       `mapstructure:"extra_scroll_probability"`
}

// StorageConfig selects where screenshots are written.
type StorageConfig struct {
	Provider       string `mapstructure:"provider"`
	ScreenshotsDir string `mapstructure:"screenshots_dir"`
	GCSBucket      string `mapstructure:"gcs_bucket"`
	Prefix         string `mapstructure:"prefix"`
}

// ReportConfig enables the optional visit sinks.
type ReportConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// PostgresConfig controls the visit ledger.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds the topic that receives run summaries.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// MetricsConfig controls the Prometheus push at run end.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	JobName        string `mapstructure:"job_name"`
}

// OpsConfig configures the optional health/metrics listener.
type OpsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ciEnv maps config keys to the bare environment names CI runners export.
var ciEnv = map[string]string{
	"links.url":        "LINKS_URL",
	"browser.proxy":    "PROXY",
	"browser.headless": "HEADLESS",
	"node.index":       "CIRCLE_NODE_INDEX",
	"node.total":       "CIRCLE_NODE_TOTAL",
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LINKPLAYER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range ciEnv {
		prefixed := "LINKPLAYER_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, env, prefixed); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("links.url", DefaultLinksURL)
	v.SetDefault("links.timeout_seconds", 10)
	v.SetDefault("links.user_agent", "")
	v.SetDefault("node.index", 0)
	v.SetDefault("node.total", 1)
	v.SetDefault("browser.headless", "true")
	v.SetDefault("browser.proxy", "")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 800)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("worker.start_attempts", 3)
	v.SetDefault("worker.start_retry_delay", 3*time.Second)
	v.SetDefault("worker.play_xpath", "//button[@title='Play Video']")
	v.SetDefault("worker.player_element_id", "vplayer")
	v.SetDefault("worker.click_timeout", 8*time.Second)
	v.SetDefault("worker.page_load_wait.base", 3*time.Second)
	v.SetDefault("worker.page_load_wait.jitter", 4*time.Second)
	v.SetDefault("worker.scroll_pause.base", 300*time.Millisecond)
	v.SetDefault("worker.scroll_pause.jitter", 700*time.Millisecond)
	v.SetDefault("worker.watch_wait.base", 30*time.Second)
	v.SetDefault("worker.watch_wait.jitter", 10*time.Second)
	v.SetDefault("worker.cooldown_wait.base", 5*time.Second)
	v.SetDefault("worker.cooldown_wait.jitter", 5*time.Second)
	v.SetDefault("worker.extra_scroll_probability", 0.4)
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.screenshots_dir", "screens")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("report.postgres.dsn", "")
	v.SetDefault("report.postgres.table", "visits")
	v.SetDefault("report.postgres.max_conns", 2)
	v.SetDefault("report.pubsub.project_id", "")
	v.SetDefault("report.pubsub.topic_id", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job_name", "linkplayer")
	v.SetDefault("ops.listen_addr", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Links.URL) == "" {
		return fmt.Errorf("links.url must be set")
	}
	if c.Links.TimeoutSeconds <= 0 {
		return fmt.Errorf("links.timeout_seconds must be > 0")
	}
	if c.Node.Total < 1 {
		return fmt.Errorf("node.total must be >= 1")
	}
	if c.Node.Index < 0 {
		return fmt.Errorf("node.index must be >= 0")
	}
	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		return fmt.Errorf("browser.window_width and browser.window_height must be > 0")
	}
	if c.Browser.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0")
	}
	if c.Worker.StartAttempts <= 0 {
		return fmt.Errorf("worker.start_attempts must be > 0")
	}
	if c.Worker.StartRetryDelay < 0 {
		return fmt.Errorf("worker.start_retry_delay must be >= 0")
	}
	if c.Worker.PlayXPath == "" {
		return fmt.Errorf("worker.play_xpath must be set")
	}
	if c.Worker.ClickTimeout <= 0 {
		return fmt.Errorf("worker.click_timeout must be > 0")
	}
	for name, d := range map[string]Delay{
		"worker.page_load_wait": c.Worker.PageLoadWait,
		"worker.scroll_pause":   c.Worker.ScrollPause,
		"worker.watch_wait":     c.Worker.WatchWait,
		"worker.cooldown_wait":  c.Worker.CooldownWait,
	} {
		if d.Base < 0 || d.Jitter < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if c.Worker.ExtraScrollProbability < 0 || c.Worker.ExtraScrollProbability > 1 {
		return fmt.Errorf("worker.extra_scroll_probability must be within [0, 1]")
	}
	switch c.Storage.Provider {
	case "local":
		if strings.TrimSpace(c.Storage.ScreenshotsDir) == "" {
			return fmt.Errorf("storage.screenshots_dir must be set for the local provider")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs provider")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.provider %q is not supported", c.Storage.Provider)
	}
	if (c.Report.PubSub.ProjectID == "") != (c.Report.PubSub.TopicID == "") {
		return fmt.Errorf("report.pubsub.project_id and report.pubsub.topic_id must be set together")
	}
	return nil
}

// LinksTimeout returns the link list GET timeout.
func (c Config) LinksTimeout() time.Duration {
	return time.Duration(c.Links.TimeoutSeconds) * time.Second
}

// NavTimeout returns the per-navigation timeout for the browser.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSeconds) * time.Second
}
