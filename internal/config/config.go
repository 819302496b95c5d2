package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// Adapter kinds understood by the crawler.
const (
	AdapterHTML    = "html"
	AdapterArchive = "archive"
	AdapterBrowser = "browser"
	AdapterAPI     = "api"
	AdapterFeed    = "feed"
)

// Storage backend names accepted in storage.backends.
const (
	BackendDB  = "db"
	BackendCSV = "csv"
)

type Config struct {
	Database Database `yaml:"database"`
	Crawl    Crawl    `yaml:"crawl"`
	Storage  Storage  `yaml:"storage"`
	Schedule Schedule `yaml:"schedule"`
	Logging  Logging  `yaml:"logging"`
	Sources  []Source `yaml:"sources"`
}

type Database struct {
	Path string `yaml:"path"`
}

type Crawl struct {
	UserAgent           string  `yaml:"user_agent"`
	RequestDelaySeconds float64 `yaml:"request_delay_seconds"`
	TimeoutSeconds      int     `yaml:"timeout_seconds"`
	MaxRetries          int     `yaml:"max_retries"`
	BatchSize           int     `yaml:"batch_size"`
}

type Storage struct {
	Backends []string `yaml:"backends"`
	CSVDir   string   `yaml:"csv_dir"`
}

type Schedule struct {
	Cron string `yaml:"cron"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// Source describes one crawlable origin and its adapter settings.
// Only the section matching the adapter kind is consulted.
type Source struct {
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
	Adapter string `yaml:"adapter"`

	// Shared listing constraints.
	URLSubstring  string `yaml:"article_url_substring"`
	MaxCandidates int    `yaml:"max_candidates"`

	Selectors Selectors     `yaml:"selectors"`
	Archive   ArchiveConfig `yaml:"archive"`
	Browser   BrowserConfig `yaml:"browser"`
	API       APIConfig     `yaml:"api"`
}

// Selectors configures the HTML-scrape and archive adapters. The list,
// title and content chains are tried in order until one matches.
type Selectors struct {
	List          []string `yaml:"list"`
	Title         []string `yaml:"title"`
	Content       []string `yaml:"content"`
	Author        string   `yaml:"author"`
	Date          string   `yaml:"date"`
	DateAttribute string   `yaml:"date_attribute"`
}

// ArchiveConfig drives date-indexed listing. URLTemplate must contain
// a "{date}" placeholder; DateLayout is the Go time layout used to
// fill it (default "2006/01/02").
type ArchiveConfig struct {
	URLTemplate string `yaml:"url_template"`
	DateLayout  string `yaml:"date_layout"`
}

type BrowserConfig struct {
	ListWaitSelector   string       `yaml:"list_wait_selector"`
	LinkSelector       string       `yaml:"link_selector"`
	SummarySelector    string       `yaml:"summary_selector"`
	DateSelector       string       `yaml:"date_selector"`
	ContentSelectors   []string     `yaml:"content_selectors"`
	WaitTimeoutSeconds int          `yaml:"wait_timeout_seconds"`
	FetchArticlePages  bool         `yaml:"fetch_article_pages"`
	Login              *LoginConfig `yaml:"login"`
}

// LoginConfig names environment variables holding credentials for an
// optional pre-listing sign-in. Empty env values skip the login.
type LoginConfig struct {
	URL         string `yaml:"url"`
	EmailEnv    string `yaml:"email_env"`
	PasswordEnv string `yaml:"password_env"`
}

type APIConfig struct {
	Endpoint  string `yaml:"endpoint"`
	APIKeyEnv string `yaml:"api_key_env"`
	Query     string `yaml:"query"`
	Language  string `yaml:"language"`
	SortBy    string `yaml:"sort_by"`
	PageSize  int    `yaml:"page_size"`
	MaxPages  int    `yaml:"max_pages"`
}

// ResolveConfigPath finds the config file: explicit path > ./config.yaml.
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml", nil
	}

	return "", fmt.Errorf("no config file found; run 'newscrawler init' to create ./config.yaml")
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Database: Database{Path: "data/news.db"},
		Crawl: Crawl{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
				"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestDelaySeconds: 1.0,
			TimeoutSeconds:      30,
			MaxRetries:          3,
			BatchSize:           10,
		},
		Storage:  Storage{Backends: []string{BackendDB}, CSVDir: "data"},
		Schedule: Schedule{Cron: "0 */6 * * *"},
		Logging:  Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configuration the crawler cannot act on. It runs at
// startup so bad adapter kinds or backend names never reach a crawl.
func (c *Config) Validate() error {
	kinds := map[string]bool{
		AdapterHTML:    true,
		AdapterArchive: true,
		AdapterBrowser: true,
		AdapterAPI:     true,
		AdapterFeed:    true,
	}
	for _, s := range c.Sources {
		if s.Name == "" {
			return fmt.Errorf("source with url %q has no name", s.URL)
		}
		if s.URL == "" {
			return fmt.Errorf("source %q has no url", s.Name)
		}
		if !kinds[s.Adapter] {
			return fmt.Errorf("source %q: unknown adapter kind %q", s.Name, s.Adapter)
		}
		if s.Adapter == AdapterArchive && s.Archive.URLTemplate == "" {
			return fmt.Errorf("source %q: archive adapter requires archive.url_template", s.Name)
		}
		if s.Adapter == AdapterAPI && s.API.Endpoint == "" {
			return fmt.Errorf("source %q: api adapter requires api.endpoint", s.Name)
		}
	}

	if len(c.Storage.Backends) == 0 {
		return fmt.Errorf("storage.backends must list at least one of %q, %q", BackendDB, BackendCSV)
	}
	for _, b := range c.Storage.Backends {
		if b != BackendDB && b != BackendCSV {
			return fmt.Errorf("unknown storage backend %q", b)
		}
	}

	if c.Crawl.BatchSize <= 0 {
		return fmt.Errorf("crawl.batch_size must be positive, got %d", c.Crawl.BatchSize)
	}

	return nil
}

// HasBackend reports whether the named storage backend is enabled.
func (c *Config) HasBackend(name string) bool {
	for _, b := range c.Storage.Backends {
		if b == name {
			return true
		}
	}
	return false
}
