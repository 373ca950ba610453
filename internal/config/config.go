package config

import (
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "ACR_SCANNER_CONFIG"
	logLevelEnv     = "ACR_LOG_LEVEL"
	geminiAPIKeyEnv = "GEMINI_API_KEY"
	remoteAPIKeyEnv = "ACR_REMOTE_API_KEY"
	remoteModelEnv  = "ACR_REMOTE_MODEL"
	ollamaHostEnv   = "OLLAMA_HOST"
	githubTokenEnv  = "GITHUB_TOKEN"
)

// Backend names accepted for the AI capability.
const (
	BackendRemote = "remote"
	BackendLocal  = "local"
)

// Storage drivers for the record store.
const (
	DriverCSV    = "csv"
	DriverSQLite = "sqlite"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	AI        AIConfig        `yaml:"ai"`
	Trackers  TrackerConfig   `yaml:"trackers"`
	Thread    ThreadConfig    `yaml:"thread"`
	Storage   StorageConfig   `yaml:"storage"`
	Report    ReportConfig    `yaml:"report"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// AIConfig selects and configures the text-generation backend.
type AIConfig struct {
	Backend string       `yaml:"backend"`
	Model   string       `yaml:"model"`
	Remote  RemoteConfig `yaml:"remote"`
	Local   LocalConfig  `yaml:"local"`
}

// RemoteConfig defines how to contact an OpenAI-compatible chat completions API.
type RemoteConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	Model        string        `yaml:"model"`
	APIKey       string        `yaml:"apiKey"`
	SystemPrompt string        `yaml:"systemPrompt"`
	CallDelay    time.Duration `yaml:"callDelay"`
	Timeout      time.Duration `yaml:"timeout"`
}

// LocalConfig points at a locally hosted Ollama server.
type LocalConfig struct {
	BaseURL     string  `yaml:"baseUrl"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

// TrackerConfig groups the two issue tracker connectors.
type TrackerConfig struct {
	Drupal DrupalConfig `yaml:"drupal"`
	GitHub GitHubConfig `yaml:"github"`
}

// DrupalConfig tunes the search-page scraper.
type DrupalConfig struct {
	BaseURL        string        `yaml:"baseUrl"`
	GeneralTags    []string      `yaml:"generalTags"`
	Statuses       []int         `yaml:"statuses"`
	PageSize       int           `yaml:"pageSize"`
	MaxPages       int           `yaml:"maxPages"`
	RequestDelay   time.Duration `yaml:"requestDelay"`
	InitialBackoff time.Duration `yaml:"initialBackoff"`
	MaxAttempts    int           `yaml:"maxAttempts"`
	CooldownEvery  int           `yaml:"cooldownEvery"`
	CooldownPause  time.Duration `yaml:"cooldownPause"`
	MaxErrors      int           `yaml:"maxErrors"`
}

// GitHubConfig tunes the labeled-issues API client.
type GitHubConfig struct {
	APIURL         string        `yaml:"apiUrl"`
	Token          string        `yaml:"token"`
	PageSize       int           `yaml:"pageSize"`
	State          string        `yaml:"state"`
	LabelKeywords  []string      `yaml:"labelKeywords"`
	InitialBackoff time.Duration `yaml:"initialBackoff"`
	MaxAttempts    int           `yaml:"maxAttempts"`
}

// ThreadConfig bounds the discussion context fed to the analyze-thread stage.
type ThreadConfig struct {
	MaxComments  int           `yaml:"maxComments"`
	MaxBodyChars int           `yaml:"maxBodyChars"`
	Timeout      time.Duration `yaml:"timeout"`
}

// StorageConfig describes where stage outputs live.
type StorageConfig struct {
	Driver     string `yaml:"driver"`
	ResultsDir string `yaml:"resultsDir"`
}

// ReportConfig fills the OpenACR metadata blocks.
type ReportConfig struct {
	Title   string      `yaml:"title"`
	Catalog string      `yaml:"catalog"`
	Product ProductInfo `yaml:"product"`
	Author  ContactInfo `yaml:"author"`
	Vendor  ContactInfo `yaml:"vendor"`
	Formats []string    `yaml:"formats"`
}

// ProductInfo names the evaluated product.
type ProductInfo struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
}

// ContactInfo is an OpenACR author/vendor block.
type ContactInfo struct {
	Name    string `yaml:"name"`
	Company string `yaml:"company"`
	Email   string `yaml:"email"`
	Website string `yaml:"website"`
}

// SchedulerConfig defines how often the schedule command reruns the pipeline.
type SchedulerConfig struct {
	Interval time.Duration  `yaml:"interval"`
	Timezone string         `yaml:"timezone"`
	location *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// NormalizeBackend maps CLI aliases onto the two supported backends.
func NormalizeBackend(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case BackendLocal, "ollama":
		return BackendLocal
	default:
		return BackendRemote
	}
}

// Load reads YAML configuration (if present) and applies environment overrides.
// An explicit path wins over the ACR_SCANNER_CONFIG variable.
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.AI.Backend = NormalizeBackend(cfg.AI.Backend)
	cfg.bindTimezone()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(geminiAPIKeyEnv); v != "" {
		c.AI.Remote.APIKey = v
	}
	if v := os.Getenv(remoteAPIKeyEnv); v != "" {
		c.AI.Remote.APIKey = v
	}
	if v := os.Getenv(remoteModelEnv); v != "" {
		c.AI.Remote.Model = v
	}

	if v := os.Getenv(ollamaHostEnv); v != "" {
		if !strings.HasPrefix(v, "http") {
			v = "http://" + v
		}
		c.AI.Local.BaseURL = v
	}

	if v := os.Getenv(githubTokenEnv); v != "" {
		c.Trackers.GitHub.Token = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.AI.Backend != "" {
		base.AI.Backend = override.AI.Backend
	}
	if override.AI.Model != "" {
		base.AI.Model = override.AI.Model
	}
	mergeString(&base.AI.Remote.Endpoint, override.AI.Remote.Endpoint)
	mergeString(&base.AI.Remote.Model, override.AI.Remote.Model)
	mergeString(&base.AI.Remote.APIKey, override.AI.Remote.APIKey)
	mergeString(&base.AI.Remote.SystemPrompt, override.AI.Remote.SystemPrompt)
	mergeDuration(&base.AI.Remote.CallDelay, override.AI.Remote.CallDelay)
	mergeDuration(&base.AI.Remote.Timeout, override.AI.Remote.Timeout)
	mergeString(&base.AI.Local.BaseURL, override.AI.Local.BaseURL)
	mergeString(&base.AI.Local.Model, override.AI.Local.Model)
	if override.AI.Local.Temperature > 0 {
		base.AI.Local.Temperature = override.AI.Local.Temperature
	}

	d, o := &base.Trackers.Drupal, override.Trackers.Drupal
	mergeString(&d.BaseURL, o.BaseURL)
	if len(o.GeneralTags) > 0 {
		d.GeneralTags = o.GeneralTags
	}
	if len(o.Statuses) > 0 {
		d.Statuses = o.Statuses
	}
	mergeInt(&d.PageSize, o.PageSize)
	mergeInt(&d.MaxPages, o.MaxPages)
	mergeDuration(&d.RequestDelay, o.RequestDelay)
	mergeDuration(&d.InitialBackoff, o.InitialBackoff)
	mergeInt(&d.MaxAttempts, o.MaxAttempts)
	mergeInt(&d.CooldownEvery, o.CooldownEvery)
	mergeDuration(&d.CooldownPause, o.CooldownPause)
	mergeInt(&d.MaxErrors, o.MaxErrors)

	g, og := &base.Trackers.GitHub, override.Trackers.GitHub
	mergeString(&g.APIURL, og.APIURL)
	mergeString(&g.Token, og.Token)
	mergeInt(&g.PageSize, og.PageSize)
	mergeString(&g.State, og.State)
	if len(og.LabelKeywords) > 0 {
		g.LabelKeywords = og.LabelKeywords
	}
	mergeDuration(&g.InitialBackoff, og.InitialBackoff)
	mergeInt(&g.MaxAttempts, og.MaxAttempts)

	mergeInt(&base.Thread.MaxComments, override.Thread.MaxComments)
	mergeInt(&base.Thread.MaxBodyChars, override.Thread.MaxBodyChars)
	mergeDuration(&base.Thread.Timeout, override.Thread.Timeout)

	mergeString(&base.Storage.Driver, override.Storage.Driver)
	mergeString(&base.Storage.ResultsDir, override.Storage.ResultsDir)

	mergeString(&base.Report.Title, override.Report.Title)
	mergeString(&base.Report.Catalog, override.Report.Catalog)
	if override.Report.Product.Name != "" {
		base.Report.Product = override.Report.Product
	}
	if override.Report.Author.Name != "" {
		base.Report.Author = override.Report.Author
	}
	if override.Report.Vendor.Name != "" {
		base.Report.Vendor = override.Report.Vendor
	}
	if len(override.Report.Formats) > 0 {
		base.Report.Formats = override.Report.Formats
	}

	mergeDuration(&base.Scheduler.Interval, override.Scheduler.Interval)
	mergeString(&base.Scheduler.Timezone, override.Scheduler.Timezone)

	return base
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func mergeDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info"},
		AI: AIConfig{
			Backend: BackendRemote,
			Remote: RemoteConfig{
				Endpoint:     "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions",
				Model:        "gemini-2.0-flash",
				SystemPrompt: "You are an accessibility compliance analyst writing OpenACR conformance reports.",
				CallDelay:    2 * time.Second,
				Timeout:      60 * time.Second,
			},
			Local: LocalConfig{
				BaseURL:     "http://localhost:11434",
				Model:       "gemma3:4b",
				Temperature: 0.1,
			},
		},
		Trackers: TrackerConfig{
			Drupal: DrupalConfig{
				BaseURL:        "https://www.drupal.org",
				GeneralTags:    []string{"accessibility", "a11y", "wcag"},
				Statuses:       []int{1, 8, 13, 14, 16},
				PageSize:       50,
				MaxPages:       5,
				RequestDelay:   time.Second,
				InitialBackoff: 5 * time.Second,
				MaxAttempts:    3,
				CooldownEvery:  5,
				CooldownPause:  30 * time.Second,
				MaxErrors:      15,
			},
			GitHub: GitHubConfig{
				APIURL:         "https://api.github.com",
				PageSize:       100,
				State:          "open",
				LabelKeywords:  []string{"access", "a11y", "wcag"},
				InitialBackoff: 5 * time.Second,
				MaxAttempts:    3,
			},
		},
		Thread: ThreadConfig{
			MaxComments:  200,
			MaxBodyChars: 1000,
			Timeout:      30 * time.Second,
		},
		Storage: StorageConfig{Driver: DriverCSV, ResultsDir: "results"},
		Report: ReportConfig{
			Title:   "Accessibility Conformance Report",
			Catalog: "2.4-edition-wcag-2.2-en",
			Product: ProductInfo{Name: "Drupal"},
			Author:  ContactInfo{Name: "ACRScanner"},
			Vendor:  ContactInfo{Name: "Unknown"},
			Formats: []string{"yaml", "json"},
		},
		Scheduler: SchedulerConfig{Interval: 24 * time.Hour, Timezone: defaultTimezone, location: tz},
	}
}
