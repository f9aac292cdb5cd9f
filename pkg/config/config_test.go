package config

import (
	"strings"
	"testing"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.Version != "1.0" {
		t.Errorf("expected Version '1.0', got %s", cfg.Version)
	}
	if cfg.Defaults.Rounds != 1 {
		t.Errorf("expected default Rounds 1, got %d", cfg.Defaults.Rounds)
	}
	if cfg.DefaultCouncil != "default" {
		t.Errorf("expected DefaultCouncil 'default', got %s", cfg.DefaultCouncil)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for a council with no models")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
		errMsg  string
	}{
		{
			name:    "no councils",
			config:  &Config{},
			wantErr: true,
			errMsg:  "at least one council",
		},
		{
			name: "council with no models",
			config: &Config{
				Councils: map[string]Council{"c": {}},
			},
			wantErr: true,
			errMsg:  "at least one model",
		},
		{
			name: "duplicate model ids",
			config: &Config{
				Councils: map[string]Council{
					"c": {Models: []ModelEntry{{ID: "a"}, {ID: "a"}}},
				},
			},
			wantErr: true,
			errMsg:  "more than once",
		},
		{
			name: "synthesize without synthesizer",
			config: &Config{
				Councils: map[string]Council{
					"c": {Models: []ModelEntry{{ID: "a"}}, Synthesize: true},
				},
			},
			wantErr: true,
			errMsg:  "no synthesizer",
		},
		{
			name: "unknown default council",
			config: &Config{
				Councils:       map[string]Council{"c": {Models: []ModelEntry{{ID: "a"}}}},
				DefaultCouncil: "missing",
			},
			wantErr: true,
			errMsg:  "not a configured council",
		},
		{
			name: "valid config",
			config: &Config{
				Councils: map[string]Council{
					"c": {Models: []ModelEntry{{ID: "a"}, {ID: "b"}}},
				},
				DefaultCouncil: "c",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %v, want to contain %q", err, tt.errMsg)
			}
		})
	}
}

func TestResolve_MergesDefaults(t *testing.T) {
	half := 0.5
	cfg := &Config{
		Defaults: Defaults{Rounds: 3, Temperature: &half},
		Councils: map[string]Council{
			"c": {Models: []ModelEntry{{ID: "a"}, {ID: "b"}}},
		},
		DefaultCouncil: "c",
	}
	cfg.applyDefaults()

	resolved, err := cfg.Resolve("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Options.Rounds != 3 {
		t.Errorf("expected Rounds merged from defaults, got %d", resolved.Options.Rounds)
	}
	if resolved.Options.Temperature == nil || *resolved.Options.Temperature != 0.5 {
		t.Errorf("expected Temperature merged from defaults, got %v", resolved.Options.Temperature)
	}
	if len(resolved.Options.Models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(resolved.Options.Models))
	}
}

func TestResolve_UnknownCouncil(t *testing.T) {
	cfg := NewDefaultConfig()
	if _, err := cfg.Resolve("does-not-exist"); err == nil {
		t.Error("expected error for unknown council")
	}
}
