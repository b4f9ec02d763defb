package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/grantscout/grantscout/scrape"
)

// StorageConfig represents storage configuration from config file.
type StorageConfig struct {
	Metadata struct {
		Type string `yaml:"type"`
		DSN  string `yaml:"dsn"`
	} `yaml:"metadata"`
	Grants struct {
		Type string `yaml:"type"`
		DSN  string `yaml:"dsn"`
	} `yaml:"grants"`
}

// ScrapeConfig represents scraping behavior settings from config file. Zero
// values mean "use the built-in default" throughout.
type ScrapeConfig struct {
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	BurstSize         int      `yaml:"burst_size"`
	CooldownPeriod    Duration `yaml:"cooldown_period"`
	MaxRetries        int      `yaml:"max_retries"`
	BackoffFactor     float64  `yaml:"backoff_factor"`
	ConnectTimeout    Duration `yaml:"connect_timeout"`
	ReadTimeout       Duration `yaml:"read_timeout"`
	UserAgents        []string `yaml:"user_agents"`
}

// FileConfig represents the structure of ~/.grantscout/config.yaml.
type FileConfig struct {
	Storage StorageConfig `yaml:"storage"`
	Scrape  ScrapeConfig  `yaml:"scrape"`
}

// LimiterConfig converts the scrape section into rate limiter settings.
func (c *FileConfig) LimiterConfig() scrape.LimiterConfig {
	return scrape.LimiterConfig{
		RequestsPerSecond: c.Scrape.RequestsPerSecond,
		BurstSize:         c.Scrape.BurstSize,
		CooldownPeriod:    c.Scrape.CooldownPeriod.Duration,
	}
}

// FetcherConfig converts the scrape section into fetcher settings.
func (c *FileConfig) FetcherConfig() scrape.FetcherConfig {
	return scrape.FetcherConfig{
		MaxRetries:     c.Scrape.MaxRetries,
		BackoffFactor:  c.Scrape.BackoffFactor,
		ConnectTimeout: c.Scrape.ConnectTimeout.Duration,
		ReadTimeout:    c.Scrape.ReadTimeout.Duration,
		UserAgents:     c.Scrape.UserAgents,
	}
}

// LoadConfigFile loads configuration from ~/.grantscout/config.yaml. Returns
// nil if the file doesn't exist (not an error). Returns error if the file
// exists but cannot be parsed.
func LoadConfigFile() (*FileConfig, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".grantscout", "config.yaml")

	// Check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, nil // File doesn't exist -- not an error
	}

	// Read file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}
