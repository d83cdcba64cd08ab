package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidSTTProviders lists the known transcription provider names. Used by
// [Validate] to warn about unrecognised names.
var ValidSTTProviders = []string{"whisper", "whisper-native", "openai"}

// validFrameMs lists the accepted gate frame lengths in milliseconds.
var validFrameMs = []int{10, 20, 30}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Catalog
	if cfg.Catalog.Path == "" {
		errs = append(errs, errors.New("catalog.path is required"))
	}

	// Pipeline
	if cfg.Pipeline.CaptureTimeout < 0 {
		errs = append(errs, fmt.Errorf("pipeline.capture_timeout %v must not be negative", cfg.Pipeline.CaptureTimeout))
	}
	if g := cfg.Pipeline.Gate; g.Enabled {
		if g.Aggressiveness < 0 || g.Aggressiveness > 3 {
			errs = append(errs, fmt.Errorf("pipeline.gate.aggressiveness %d is out of range [0, 3]", g.Aggressiveness))
		}
		if g.FrameMs != 0 && !slices.Contains(validFrameMs, g.FrameMs) {
			errs = append(errs, fmt.Errorf("pipeline.gate.frame_ms %d is invalid; valid values: 10, 20, 30", g.FrameMs))
		}
	}
	if d := cfg.Pipeline.Denoise; d.Enabled && d.Strength != nil {
		if *d.Strength < 0 || *d.Strength > 1 {
			errs = append(errs, fmt.Errorf("pipeline.denoise.strength %.2f is out of range [0, 1]", *d.Strength))
		}
	}

	// Match
	if t := cfg.Match.Threshold; t != nil && (*t < 0 || *t > 100) {
		errs = append(errs, fmt.Errorf("match.threshold %.1f is out of range [0, 100]", *t))
	}
	if cfg.Match.TopK < 0 {
		errs = append(errs, fmt.Errorf("match.top_k %d must not be negative", cfg.Match.TopK))
	}
	switch cfg.Match.Scorer {
	case "", "edit-distance", "lcs":
	default:
		errs = append(errs, fmt.Errorf("match.scorer %q is invalid; valid values: edit-distance, lcs", cfg.Match.Scorer))
	}

	// Providers
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	} else {
		validateProviderName("stt", cfg.Providers.STT.Name)
	}
	for i, p := range cfg.Providers.STTFallbacks {
		prefix := fmt.Sprintf("providers.stt_fallbacks[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			validateProviderName("stt", p.Name)
		}
	}

	// Selection store
	switch cfg.Selection.Store {
	case "":
		// Persistence disabled; POST /v1/selections will be rejected.
	case StoreJSONFile:
		if cfg.Selection.Path == "" {
			errs = append(errs, errors.New("selection.path is required when selection.store is jsonfile"))
		}
	case StorePostgres:
		if cfg.Selection.PostgresDSN == "" {
			errs = append(errs, errors.New("selection.postgres_dsn is required when selection.store is postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("selection.store %q is invalid; valid values: jsonfile, postgres", cfg.Selection.Store))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is not found in the known
// provider list for the given kind.
func validateProviderName(kind, name string) {
	if slices.Contains(ValidSTTProviders, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", ValidSTTProviders,
	)
}
