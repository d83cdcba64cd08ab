package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/medivox/internal/config"
)

func TestLoadFromReader_ValidConfig(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
  log_level: debug
catalog:
  path: medicines.json
pipeline:
  capture_timeout: 15s
  gate:
    enabled: true
    aggressiveness: 2
    frame_ms: 30
  denoise:
    enabled: true
    strength: 0.7
match:
  threshold: 78.0
  top_k: 5
providers:
  stt:
    name: whisper
    base_url: http://localhost:9000
  stt_fallbacks:
    - name: openai
      api_key: sk-test
      model: whisper-1
selection:
  store: jsonfile
  path: selections.json
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.STT.Name != "whisper" {
		t.Errorf("stt provider = %q", cfg.Providers.STT.Name)
	}
	if cfg.Pipeline.Gate.Aggressiveness != 2 || cfg.Pipeline.Gate.FrameMs != 30 {
		t.Errorf("gate config = %+v", cfg.Pipeline.Gate)
	}
	if cfg.Match.Threshold == nil || *cfg.Match.Threshold != 78.0 {
		t.Errorf("threshold = %v", cfg.Match.Threshold)
	}
}

func TestLoadFromReader_ExplicitZeroIsNotAbsent(t *testing.T) {
	t.Parallel()
	yaml := `
catalog:
  path: medicines.json
providers:
  stt:
    name: whisper
pipeline:
  denoise:
    enabled: true
    strength: 0.0
match:
  threshold: 0
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Zero is a valid value for both ranges and must not fall back to the
	// defaults the way an omitted key does.
	if cfg.Pipeline.Denoise.Strength == nil || *cfg.Pipeline.Denoise.Strength != 0 {
		t.Errorf("strength = %v, want explicit 0", cfg.Pipeline.Denoise.Strength)
	}
	if cfg.Match.Threshold == nil || *cfg.Match.Threshold != 0 {
		t.Errorf("threshold = %v, want explicit 0", cfg.Match.Threshold)
	}
}

func TestLoadFromReader_OmittedTunablesStayNil(t *testing.T) {
	t.Parallel()
	yaml := `
catalog:
  path: medicines.json
providers:
  stt:
    name: whisper
pipeline:
  denoise:
    enabled: true
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Pipeline.Denoise.Strength != nil {
		t.Errorf("strength = %v, want nil for omitted key", *cfg.Pipeline.Denoise.Strength)
	}
	if cfg.Match.Threshold != nil {
		t.Errorf("threshold = %v, want nil for omitted key", *cfg.Match.Threshold)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := `
catalog:
  path: medicines.json
  shape: round
providers:
  stt:
    name: whisper
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_MissingRequiredFields(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`server: {log_level: info}`))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "catalog.path") {
		t.Errorf("error should mention catalog.path, got: %v", err)
	}
	if !strings.Contains(err.Error(), "providers.stt.name") {
		t.Errorf("error should mention providers.stt.name, got: %v", err)
	}
}

func TestValidate_OutOfRangeValues(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			"bad aggressiveness",
			"pipeline:\n  gate:\n    enabled: true\n    aggressiveness: 4\n",
			"aggressiveness",
		},
		{
			"bad frame duration",
			"pipeline:\n  gate:\n    enabled: true\n    frame_ms: 25\n",
			"frame_ms",
		},
		{
			"bad denoise strength",
			"pipeline:\n  denoise:\n    enabled: true\n    strength: 1.5\n",
			"strength",
		},
		{
			"bad threshold",
			"match:\n  threshold: 150\n",
			"threshold",
		},
		{
			"bad log level",
			"server:\n  log_level: loud\n",
			"log_level",
		},
		{
			"bad store kind",
			"selection:\n  store: csv\n",
			"selection.store",
		},
		{
			"jsonfile without path",
			"selection:\n  store: jsonfile\n",
			"selection.path",
		},
		{
			"postgres without dsn",
			"selection:\n  store: postgres\n",
			"postgres_dsn",
		},
	}
	base := "catalog:\n  path: medicines.json\nproviders:\n  stt:\n    name: whisper\n"
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(base + tt.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error should mention %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestValidate_DisabledStagesSkipRangeChecks(t *testing.T) {
	t.Parallel()
	yaml := `
catalog:
  path: medicines.json
providers:
  stt:
    name: whisper
pipeline:
  gate:
    enabled: false
    aggressiveness: 9
  denoise:
    enabled: false
    strength: 5
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("disabled stages should not be range-checked: %v", err)
	}
}
