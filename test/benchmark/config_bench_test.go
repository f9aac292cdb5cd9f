package benchmark

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/shawkym/councilpipe/pkg/config"
)

func BenchmarkConfigValidate(b *testing.B) {
	cfg := createTestConfig()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cfg.Validate()
	}
}

func BenchmarkConfigMarshal(b *testing.B) {
	cfg := createTestConfig()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = yaml.Marshal(cfg)
	}
}

func BenchmarkConfigUnmarshal(b *testing.B) {
	yamlData := []byte(`version: "1.0"
default_council: research
defaults:
  rounds: 2
  rate_limit: 2.0
councils:
  research:
    system: "You are a helpful assistant."
    models:
      - id: openai/gpt-4o
      - id: anthropic/claude-3.5-sonnet
    synthesizer: openai/gpt-4o
    synthesize: true
logging:
  format: json
  level: info
`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var cfg config.Config
		_ = yaml.Unmarshal(yamlData, &cfg)
	}
}

func BenchmarkConfigLoadFromFile(b *testing.B) {
	tempDir := b.TempDir()
	configPath := filepath.Join(tempDir, "bench-config.yaml")

	cfg := createTestConfig()
	data, _ := yaml.Marshal(cfg)
	_ = os.WriteFile(configPath, data, 0644)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = config.LoadConfig(configPath)
	}
}

func BenchmarkConfigCreationWithDefaults(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cfg := config.NewDefaultConfig()
		cfg.Councils["default"] = config.Council{Models: []config.ModelEntry{{ID: "openai/gpt-4o"}}}
		_ = cfg.Validate()
	}
}

func BenchmarkNewDefaultConfig(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = config.NewDefaultConfig()
	}
}

func createTestConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Councils["default"] = config.Council{
		System: "You are a helpful assistant.",
		Models: []config.ModelEntry{
			{ID: "openai/gpt-4o"},
			{ID: "anthropic/claude-3.5-sonnet"},
		},
	}
	return cfg
}
