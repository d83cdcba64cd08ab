// Command medivox is the main entry point for the Medivox voice medicine
// selector server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/medivox/internal/api"
	"github.com/MrWong99/medivox/internal/catalog"
	"github.com/MrWong99/medivox/internal/config"
	"github.com/MrWong99/medivox/internal/health"
	"github.com/MrWong99/medivox/internal/match"
	"github.com/MrWong99/medivox/internal/observe"
	"github.com/MrWong99/medivox/internal/pipeline"
	"github.com/MrWong99/medivox/internal/resilience"
	"github.com/MrWong99/medivox/internal/selection"
	"github.com/MrWong99/medivox/pkg/audio"
	"github.com/MrWong99/medivox/pkg/provider/denoise"
	"github.com/MrWong99/medivox/pkg/provider/denoise/spectral"
	"github.com/MrWong99/medivox/pkg/provider/stt"
	oaistt "github.com/MrWong99/medivox/pkg/provider/stt/openai"
	"github.com/MrWong99/medivox/pkg/provider/stt/whisper"
	"github.com/MrWong99/medivox/pkg/provider/vad"
	"github.com/MrWong99/medivox/pkg/provider/vad/energy"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "medivox: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "medivox: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("medivox starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "medivox"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Catalog ───────────────────────────────────────────────────────────────
	idx, err := catalog.LoadFile(cfg.Catalog.Path)
	if err != nil {
		slog.Error("failed to load catalog", "path", cfg.Catalog.Path, "err", err)
		return 1
	}
	catalogHandle := catalog.NewHandle(idx)
	slog.Info("catalog loaded", "path", cfg.Catalog.Path, "entries", idx.Len())

	// SIGHUP reloads the catalog without a restart. A corrupt file keeps the
	// previous catalog in place.
	go watchReload(ctx, catalogHandle, cfg.Catalog.Path)

	// ── Transcription providers ───────────────────────────────────────────────
	transcriber, err := buildTranscriberChain(cfg.Providers)
	if err != nil {
		slog.Error("failed to build transcription providers", "err", err)
		return 1
	}

	// ── Optional pipeline stages ──────────────────────────────────────────────
	var gate vad.Gate
	if g := cfg.Pipeline.Gate; g.Enabled {
		var gateOpts []energy.Option
		gateOpts = append(gateOpts, energy.WithAggressiveness(g.Aggressiveness))
		if g.FrameMs != 0 {
			gateOpts = append(gateOpts, energy.WithFrameMs(g.FrameMs))
		}
		gate, err = energy.New(audio.PipelineRate, gateOpts...)
		if err != nil {
			slog.Error("failed to build voice activity gate", "err", err)
			return 1
		}
		slog.Info("voice activity gate enabled", "aggressiveness", g.Aggressiveness)
	}

	var denoiser denoise.Denoiser
	if d := cfg.Pipeline.Denoise; d.Enabled {
		var denoiseOpts []spectral.Option
		if d.Strength != nil {
			denoiseOpts = append(denoiseOpts, spectral.WithStrength(*d.Strength))
		}
		denoiser, err = spectral.New(denoiseOpts...)
		if err != nil {
			slog.Error("failed to build spectral denoiser", "err", err)
			return 1
		}
		slog.Info("spectral denoiser enabled")
	}

	// ── Matcher ───────────────────────────────────────────────────────────────
	var matchOpts []match.Option
	if cfg.Match.Threshold != nil {
		matchOpts = append(matchOpts, match.WithThreshold(*cfg.Match.Threshold))
	}
	if cfg.Match.TopK != 0 {
		matchOpts = append(matchOpts, match.WithTopK(cfg.Match.TopK))
	}
	if cfg.Match.Scorer == "lcs" {
		matchOpts = append(matchOpts, match.WithScorer(match.LCSScorer{}))
	}
	matcher := match.New(matchOpts...)
	slog.Info("matcher configured", "scorer", matcher.ScorerName(), "threshold", matcher.Threshold())

	// ── Pipeline ──────────────────────────────────────────────────────────────
	pipeOpts := []pipeline.Option{
		pipeline.WithGate(gate),
		pipeline.WithDenoiser(denoiser),
	}
	if cfg.Pipeline.CaptureTimeout > 0 {
		pipeOpts = append(pipeOpts, pipeline.WithCaptureTimeout(cfg.Pipeline.CaptureTimeout))
	}
	pipe, err := pipeline.New(transcriber, matcher, catalogHandle, pipeOpts...)
	if err != nil {
		slog.Error("failed to build capture pipeline", "err", err)
		return 1
	}

	// ── Selection store ───────────────────────────────────────────────────────
	store, err := buildSelectionStore(ctx, cfg.Selection)
	if err != nil {
		slog.Error("failed to build selection store", "err", err)
		return 1
	}
	if store != nil {
		defer store.Close()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	healthHandler := health.New(buildCheckers(catalogHandle, store)...)

	serverOpts := []api.ServerOption{
		api.WithHealth(healthHandler),
		api.WithLogger(logger),
	}
	if store != nil {
		serverOpts = append(serverOpts, api.WithSelectionStore(store))
	}
	server := api.NewServer(pipe, catalogHandle, cfg.Catalog.Path, serverOpts...)

	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = ":8080"
	}
	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildTranscriber constructs one transcription provider from its config
// entry.
func buildTranscriber(entry config.ProviderEntry) (stt.Transcriber, error) {
	switch entry.Name {
	case "whisper":
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, whisper.WithLanguage(entry.Language))
		}
		return whisper.New(entry.BaseURL, opts...)

	case "whisper-native":
		var opts []whisper.NativeOption
		if entry.Language != "" {
			opts = append(opts, whisper.WithNativeLanguage(entry.Language))
		}
		return whisper.NewNative(entry.Model, opts...)

	case "openai":
		var opts []oaistt.Option
		if entry.Model != "" {
			opts = append(opts, oaistt.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, oaistt.WithLanguage(entry.Language))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		return oaistt.New(entry.APIKey, opts...)

	default:
		return nil, fmt.Errorf("unknown stt provider %q", entry.Name)
	}
}

// buildTranscriberChain wires the primary provider and its fallbacks behind
// per-provider circuit breakers. With no fallbacks configured the primary is
// returned directly.
func buildTranscriberChain(cfg config.ProvidersConfig) (stt.Transcriber, error) {
	primary, err := buildTranscriber(cfg.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.STT.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", cfg.STT.Name)

	if len(cfg.STTFallbacks) == 0 {
		return primary, nil
	}

	chain := resilience.NewTranscriberChain(cfg.STT.Name, primary, resilience.BreakerConfig{})
	for _, entry := range cfg.STTFallbacks {
		fallback, err := buildTranscriber(entry)
		if err != nil {
			return nil, fmt.Errorf("create stt fallback %q: %w", entry.Name, err)
		}
		chain.Add(entry.Name, fallback)
		slog.Info("provider created", "kind", "stt", "name", entry.Name, "role", "fallback")
	}
	return chain, nil
}

// buildSelectionStore constructs the configured store, or nil when
// persistence is disabled.
func buildSelectionStore(ctx context.Context, cfg config.SelectionConfig) (selection.Store, error) {
	switch cfg.Store {
	case "":
		slog.Info("selection persistence disabled")
		return nil, nil
	case config.StoreJSONFile:
		slog.Info("selection store", "kind", "jsonfile", "path", cfg.Path)
		return selection.NewJSONFileStore(cfg.Path)
	case config.StorePostgres:
		slog.Info("selection store", "kind", "postgres")
		return selection.NewPostgresStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown selection store %q", cfg.Store)
	}
}

// buildCheckers assembles the readiness checks.
func buildCheckers(h *catalog.Handle, store selection.Store) []health.Checker {
	checkers := []health.Checker{
		{
			Name: "catalog",
			Check: func(context.Context) error {
				if h.Index().Len() == 0 {
					return errors.New("catalog is empty")
				}
				return nil
			},
		},
	}
	if pg, ok := store.(*selection.PostgresStore); ok {
		checkers = append(checkers, health.Checker{
			Name:  "selection_store",
			Check: pg.Ping,
		})
	}
	return checkers
}

// watchReload reloads the catalog on SIGHUP until ctx is cancelled.
func watchReload(ctx context.Context, h *catalog.Handle, path string) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := h.Reload(path); err != nil {
				slog.Error("catalog reload failed, keeping previous catalog", "path", path, "err", err)
				continue
			}
			slog.Info("catalog reloaded", "path", path, "entries", h.Index().Len())
		}
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
