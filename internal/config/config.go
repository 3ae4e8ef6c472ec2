package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Store         StoreConfig         `yaml:"store"`
	Reader        ReaderConfig        `yaml:"reader"`
	Journal       JournalConfig       `yaml:"journal"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StoreConfig carries the store location and the fixed parameters every
// session is opened with.
type StoreConfig struct {
	Dir               string   `yaml:"dir"`
	RecordSize        ByteSize `yaml:"record_size"`
	TickLen           int      `yaml:"tick_len"`
	MaxLag            int      `yaml:"max_lag"`
	MetaPagesReserved int      `yaml:"meta_pages_reserved"`
	MetaFilePath      string   `yaml:"meta_file_path"`
	PageCacheBytes    ByteSize `yaml:"page_cache_bytes"`
}

// ReaderConfig drives the polling harness. TestDuration comes from the
// command line, the rest may be overridden there.
type ReaderConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
	TestDuration Duration `yaml:"test_duration"`
	NCommon      int      `yaml:"ncommon"`
	NRandom      int      `yaml:"nrandom"`
	// TierCounts is the per-tier stream population, tier 0 first. It
	// must match what the catalog generator used on the writer side.
	TierCounts []int `yaml:"tier_counts"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Store.Dir == "" {
		return fmt.Errorf("store.dir is required")
	}
	if c.Store.RecordSize < 8 {
		return fmt.Errorf("store.record_size must be >= 8, got %d", c.Store.RecordSize)
	}
	if c.Store.TickLen <= 0 {
		return fmt.Errorf("store.tick_len must be > 0")
	}
	if c.Store.MaxLag <= 0 {
		return fmt.Errorf("store.max_lag must be > 0")
	}
	if c.Store.MetaPagesReserved < 1 {
		return fmt.Errorf("store.meta_pages_reserved must be >= 1")
	}
	if c.Store.MetaFilePath == "" {
		return fmt.Errorf("store.meta_file_path is required")
	}

	if c.Reader.PollInterval <= 0 {
		return fmt.Errorf("reader.poll_interval must be > 0")
	}
	if c.Reader.TestDuration <= 0 {
		return fmt.Errorf("reader.test_duration must be > 0")
	}
	if c.Reader.PollInterval.Duration() >= c.Reader.TestDuration.Duration() {
		return fmt.Errorf("reader.poll_interval (%s) must be shorter than reader.test_duration (%s)",
			c.Reader.PollInterval.Duration(), c.Reader.TestDuration.Duration())
	}
	if c.Reader.NCommon < 0 {
		return fmt.Errorf("reader.ncommon must be >= 0")
	}
	if c.Reader.NRandom < 0 {
		return fmt.Errorf("reader.nrandom must be >= 0")
	}
	if len(c.Reader.TierCounts) == 0 {
		return fmt.Errorf("reader.tier_counts must name at least one tier")
	}
	for i, n := range c.Reader.TierCounts {
		if n <= 0 {
			return fmt.Errorf("reader.tier_counts[%d] must be > 0, got %d", i, n)
		}
	}

	if c.Journal.Enabled && c.Journal.Dir == "" {
		return fmt.Errorf("journal.dir is required when the journal is enabled")
	}

	return nil
}

// Duration wraps time.Duration for YAML unmarshaling of strings like "5m", "24h".
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ByteSize wraps int64 for YAML unmarshaling of strings like "256MB", "10GB".
type ByteSize int64

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		// Try as integer
		var n int64
		if err2 := value.Decode(&n); err2 != nil {
			return err
		}
		*b = ByteSize(n)
		return nil
	}
	parsed, err := parseByteSize(s)
	if err != nil {
		return err
	}
	*b = ByteSize(parsed)
	return nil
}

func parseByteSize(s string) (int64, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("empty byte size")
	}

	var multiplier int64 = 1
	numStr := s

	switch {
	case len(s) >= 2 && s[len(s)-2:] == "KB":
		multiplier = 1024
		numStr = s[:len(s)-2]
	case len(s) >= 2 && s[len(s)-2:] == "MB":
		multiplier = 1024 * 1024
		numStr = s[:len(s)-2]
	case len(s) >= 2 && s[len(s)-2:] == "GB":
		multiplier = 1024 * 1024 * 1024
		numStr = s[:len(s)-2]
	case s[len(s)-1] == 'B':
		numStr = s[:len(s)-1]
	}

	var n int64
	_, err := fmt.Sscanf(numStr, "%d", &n)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return n * multiplier, nil
}
