// Package config provides configuration loading for the council
// orchestrator. It defines the structure of the YAML configuration file and
// handles loading, validation, and default value application; the
// orchestrator package itself never touches the filesystem.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shawkym/councilpipe/pkg/council"
)

// Config is the top-level configuration file shape. It declares zero or
// more named councils and which one runs when none is specified on the
// command line.
type Config struct {
	// Version is the configuration file format version.
	Version string `yaml:"version"`
	// Defaults are applied to any council field left unset.
	Defaults Defaults `yaml:"defaults"`
	// Councils maps a council name to its configuration.
	Councils map[string]Council `yaml:"councils"`
	// DefaultCouncil names the entry in Councils used when the caller does
	// not select one explicitly.
	DefaultCouncil string `yaml:"default_council"`
	// Logging controls the process-wide structured logger.
	Logging LoggingConfig `yaml:"logging"`
}

// Defaults are the fallback values used by any Council that leaves a field
// unset.
type Defaults struct {
	Temperature    *float64      `yaml:"temperature"`
	MaxTokens      *int          `yaml:"max_tokens"`
	Rounds         int           `yaml:"rounds"`
	FirstN         int           `yaml:"first_n"`
	TimeLimit      time.Duration `yaml:"time_limit"`
	RateLimit      float64       `yaml:"rate_limit"`
	RateLimitBurst int           `yaml:"rate_limit_burst"`
}

// ModelEntry is one backend model entry in a Council's Models list.
type ModelEntry struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
	// SystemPrompt, if set, overrides the council's system prompt for this
	// model only.
	SystemPrompt string `yaml:"system_prompt"`
}

// WebSearchConfig configures retrieval-augmented answering for a Council.
type WebSearchConfig struct {
	Enabled           bool   `yaml:"enabled"`
	MaxResults        int    `yaml:"max_results"`
	SearchContextSize string `yaml:"search_context_size"`
}

// Council is one named set of models, a system prompt, and the query
// behavior to run against them.
type Council struct {
	System          string          `yaml:"system"`
	Models          []ModelEntry    `yaml:"models"`
	Synthesizer     string          `yaml:"synthesizer"`
	Synthesize      bool            `yaml:"synthesize"`
	Rounds          int             `yaml:"rounds"`
	FirstN          int             `yaml:"first_n"`
	TimeLimit       time.Duration   `yaml:"time_limit"`
	Temperature     *float64        `yaml:"temperature"`
	MaxTokens       *int            `yaml:"max_tokens"`
	RateLimit       float64         `yaml:"rate_limit"`
	RateLimitBurst  int             `yaml:"rate_limit_burst"`
	WebSearch       WebSearchConfig `yaml:"web_search"`
}

// LoggingConfig controls the process-wide structured logger.
type LoggingConfig struct {
	Format string `yaml:"format"` // "text" or "json"
	Level  string `yaml:"level"`  // zerolog level name
}

// NewDefaultConfig returns a minimal configuration with one council named
// "default" and no models; it does not pass Validate until models are
// filled in.
func NewDefaultConfig() *Config {
	return &Config{
		Version: "1.0",
		Defaults: Defaults{
			Rounds:         1,
			RateLimitBurst: 1,
		},
		Councils:       map[string]Council{"default": {}},
		DefaultCouncil: "default",
		Logging:        LoggingConfig{Format: "text", Level: "info"},
	}
}

// LoadConfig reads, parses, validates, and defaults a configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// SaveConfig writes the configuration to a YAML file with owner-only
// permissions.
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks structural requirements: at least one council, every
// council has at least one model, DefaultCouncil (if set) exists, and
// synthesize implies a synthesizer model.
func (c *Config) Validate() error {
	if len(c.Councils) == 0 {
		return fmt.Errorf("at least one council must be configured")
	}

	for name, council := range c.Councils {
		if len(council.Models) == 0 {
			return fmt.Errorf("council %q must declare at least one model", name)
		}
		seen := make(map[string]bool, len(council.Models))
		for _, m := range council.Models {
			if m.ID == "" {
				return fmt.Errorf("council %q has a model with an empty id", name)
			}
			if seen[m.ID] {
				return fmt.Errorf("council %q declares model %q more than once", name, m.ID)
			}
			seen[m.ID] = true
		}
		if council.Synthesize && council.Synthesizer == "" {
			return fmt.Errorf("council %q sets synthesize but no synthesizer model", name)
		}
		if council.FirstN < 0 {
			return fmt.Errorf("council %q has a negative first_n", name)
		}
		if council.Rounds < 0 {
			return fmt.Errorf("council %q has a negative rounds", name)
		}
	}

	if c.DefaultCouncil != "" {
		if _, ok := c.Councils[c.DefaultCouncil]; !ok {
			return fmt.Errorf("default_council %q is not a configured council", c.DefaultCouncil)
		}
	}

	if c.Logging.Format != "" && c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.Defaults.Rounds == 0 {
		c.Defaults.Rounds = 1
	}
	if c.Defaults.RateLimitBurst == 0 {
		c.Defaults.RateLimitBurst = 1
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.DefaultCouncil == "" && len(c.Councils) == 1 {
		for name := range c.Councils {
			c.DefaultCouncil = name
		}
	}
}

// Resolve builds a ready-to-run council.CouncilConfig for the named
// council, merging any unset Council fields from Defaults. An empty name
// selects DefaultCouncil.
func (c *Config) Resolve(name string) (council.CouncilConfig, error) {
	if name == "" {
		name = c.DefaultCouncil
	}
	cc, ok := c.Councils[name]
	if !ok {
		return council.CouncilConfig{}, fmt.Errorf("unknown council %q", name)
	}

	models := make([]council.ModelRef, 0, len(cc.Models))
	for _, m := range cc.Models {
		models = append(models, council.ModelRef{ID: m.ID, Label: m.Label, SystemPrompt: m.SystemPrompt})
	}

	rounds := cc.Rounds
	if rounds == 0 {
		rounds = c.Defaults.Rounds
	}
	firstN := cc.FirstN
	if firstN == 0 {
		firstN = c.Defaults.FirstN
	}
	timeLimit := cc.TimeLimit
	if timeLimit == 0 {
		timeLimit = c.Defaults.TimeLimit
	}
	temperature := cc.Temperature
	if temperature == nil {
		temperature = c.Defaults.Temperature
	}
	maxTokens := cc.MaxTokens
	if maxTokens == nil {
		maxTokens = c.Defaults.MaxTokens
	}

	opts := council.QueryOptions{
		Models:      models,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		FirstN:      firstN,
		TimeLimit:   timeLimit,
		Rounds:      rounds,
		Synthesize:  cc.Synthesize,
		WebSearch: council.WebSearchOptions{
			Enabled:           cc.WebSearch.Enabled,
			MaxResults:        cc.WebSearch.MaxResults,
			SearchContextSize: cc.WebSearch.SearchContextSize,
		},
	}
	if cc.Synthesizer != "" {
		opts.SynthesizerModel = council.ModelRef{ID: cc.Synthesizer}
	}

	return council.CouncilConfig{
		Name:         name,
		SystemPrompt: cc.System,
		Options:      opts,
	}, nil
}

// RateLimit resolves the effective per-model rate limit and burst for the
// named council, merging Defaults the same way Resolve does.
func (c *Config) RateLimit(name string) (rate float64, burst int) {
	cc := c.Councils[name]
	rate = cc.RateLimit
	if rate == 0 {
		rate = c.Defaults.RateLimit
	}
	burst = cc.RateLimitBurst
	if burst == 0 {
		burst = c.Defaults.RateLimitBurst
	}
	if burst < 1 {
		burst = 1
	}
	return rate, burst
}
