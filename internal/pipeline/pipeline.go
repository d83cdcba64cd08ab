// Package pipeline orchestrates one capture-to-candidate cycle: frame
// gating, spectral denoising, transcription, normalization, and fuzzy
// matching.
//
// A cycle is synchronous and request-scoped. The gate and denoiser are
// optional signal-quality stages under a strict fail-open discipline: their
// errors are logged, recorded as a skipped [StageOutcome], and never abort
// the cycle — they may only improve the signal, never block it. The only
// user-visible failures a cycle can produce are an unreachable transcription
// service and the capture timeout.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/medivox/internal/catalog"
	"github.com/MrWong99/medivox/internal/match"
	"github.com/MrWong99/medivox/internal/observe"
	"github.com/MrWong99/medivox/pkg/audio"
	"github.com/MrWong99/medivox/pkg/provider/denoise"
	"github.com/MrWong99/medivox/pkg/provider/stt"
	"github.com/MrWong99/medivox/pkg/provider/vad"
)

// ErrTranscriptionUnavailable is returned when the speech-to-text
// collaborator reports a network or service failure. It is recoverable: the
// caller may re-invoke the whole cycle or fall back to typed input.
var ErrTranscriptionUnavailable = errors.New("pipeline: transcription unavailable")

// ErrTimeout is returned when a cycle exceeds the configured capture
// timeout. Recoverable in the same way as a transcription failure.
var ErrTimeout = errors.New("pipeline: capture timed out")

// State names a pipeline stage. Cycles advance strictly sequentially:
// Idle → Capturing → Gating → Denoising → Transcribing → Normalizing →
// Matching → Done, with Failed reachable from any stage.
type State string

const (
	StateIdle         State = "idle"
	StateCapturing    State = "capturing"
	StateGating       State = "gating"
	StateDenoising    State = "denoising"
	StateTranscribing State = "transcribing"
	StateNormalizing  State = "normalizing"
	StateMatching     State = "matching"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// StageOutcome is the observable record of one optional stage: either the
// stage was applied, or it was skipped for the stated reason. Recording
// skips as values (rather than swallowing errors silently) makes the
// fail-open behaviour testable.
type StageOutcome struct {
	Stage      State
	Applied    bool
	SkipReason string
}

// applied and skipped are StageOutcome constructors.
func applied(stage State) StageOutcome { return StageOutcome{Stage: stage, Applied: true} }

func skipped(stage State, reason string) StageOutcome {
	return StageOutcome{Stage: stage, Applied: false, SkipReason: reason}
}

// CycleResult is the outcome of one completed capture-to-match cycle.
type CycleResult struct {
	// State is the terminal state of the cycle, [StateDone] on success.
	State State

	// Transcript is the raw text produced by the transcriber, before
	// normalization.
	Transcript string

	// Match is the ranked candidate list with the auto-accept decision.
	Match match.Result

	// Stages records the outcome of each optional stage in execution order.
	Stages []StageOutcome
}

// Option is a functional option for configuring a [Pipeline].
type Option func(*Pipeline)

// WithGate attaches a frame gate as the first signal-quality stage. When nil
// (the default) the stage is skipped entirely.
func WithGate(g vad.Gate) Option {
	return func(p *Pipeline) { p.gate = g }
}

// WithDenoiser attaches a spectral denoiser as the second signal-quality
// stage. When nil (the default) the stage is skipped entirely.
func WithDenoiser(d denoise.Denoiser) Option {
	return func(p *Pipeline) { p.denoiser = d }
}

// WithCaptureTimeout bounds one whole cycle, transcription included. Zero
// (the default) means no pipeline-imposed deadline beyond the caller's
// context.
func WithCaptureTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.timeout = d }
}

// WithMetrics replaces the metrics sink. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// Pipeline runs capture cycles against a transcriber, a matcher, and the
// current catalog. It is read-only after construction and safe for
// concurrent use; each Run call is an independent cycle.
type Pipeline struct {
	gate        vad.Gate
	denoiser    denoise.Denoiser
	transcriber stt.Transcriber
	matcher     *match.Matcher
	catalog     *catalog.Handle
	timeout     time.Duration
	metrics     *observe.Metrics
}

// New constructs a Pipeline. transcriber, matcher, and handle are required;
// the optional stages are attached via [WithGate] and [WithDenoiser].
func New(transcriber stt.Transcriber, matcher *match.Matcher, handle *catalog.Handle, opts ...Option) (*Pipeline, error) {
	if transcriber == nil {
		return nil, errors.New("pipeline: transcriber must not be nil")
	}
	if matcher == nil {
		return nil, errors.New("pipeline: matcher must not be nil")
	}
	if handle == nil {
		return nil, errors.New("pipeline: catalog handle must not be nil")
	}
	p := &Pipeline{
		transcriber: transcriber,
		matcher:     matcher,
		catalog:     handle,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p, nil
}

// Run executes one capture-to-match cycle over buf.
//
// The buffer is owned by the pipeline for the duration of the cycle and not
// retained afterwards. Input at a rate other than [audio.PipelineRate] is
// resampled on entry so that every stage operates at the agreed rate.
//
// Errors are limited to [ErrTranscriptionUnavailable] and [ErrTimeout];
// every other stage problem degrades quality, not availability.
func (p *Pipeline) Run(ctx context.Context, buf audio.Buffer) (*CycleResult, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	ctx, span := observe.StartSpan(ctx, "pipeline.cycle")
	defer span.End()
	start := time.Now()

	if buf.SampleRate != audio.PipelineRate {
		buf = audio.ResampleMono16(buf, audio.PipelineRate)
	}
	captured := buf // pre-gate signal kept for the transcription retry

	result := &CycleResult{}

	// --- Gating (optional) ---
	buf = p.runOptional(ctx, result, StateGating, buf, func(b audio.Buffer) (audio.Buffer, error) {
		if p.gate == nil {
			return b, errStageDisabled
		}
		return p.gate.Apply(b)
	})

	// --- Denoising (optional) ---
	buf = p.runOptional(ctx, result, StateDenoising, buf, func(b audio.Buffer) (audio.Buffer, error) {
		if p.denoiser == nil {
			return b, errStageDisabled
		}
		return p.denoiser.Apply(b)
	})

	// --- Transcribing ---
	transcript, err := p.transcribe(ctx, buf, captured)
	if err != nil {
		outcome := "transcription_unavailable"
		if errors.Is(err, ErrTimeout) {
			outcome = "timeout"
		}
		p.metrics.RecordCycle(ctx, outcome, time.Since(start).Seconds())
		return nil, err
	}
	result.Transcript = transcript

	// --- Normalizing + Matching ---
	result.Match = p.matcher.Match(transcript, p.catalog.Index())
	p.recordMatch(ctx, result.Match)

	result.State = StateDone
	p.metrics.RecordCycle(ctx, "done", time.Since(start).Seconds())
	observe.Logger(ctx).Info("capture cycle complete",
		"transcript", transcript,
		"candidates", len(result.Match.Candidates),
		"auto_accepted", result.Match.AutoAccepted,
	)
	return result, nil
}

// MatchText runs the typed-input path: normalization and matching only,
// bypassing every audio stage. It never fails.
func (p *Pipeline) MatchText(ctx context.Context, query string) match.Result {
	ctx, span := observe.StartSpan(ctx, "pipeline.match_text")
	defer span.End()

	result := p.matcher.Match(query, p.catalog.Index())
	p.recordMatch(ctx, result)
	return result
}

// errStageDisabled marks an optional stage that has no implementation
// attached, as opposed to one that failed.
var errStageDisabled = errors.New("stage disabled")

// runOptional executes one fail-open stage. On any error the input buffer is
// passed through unchanged and the skip is recorded; the error never
// propagates.
func (p *Pipeline) runOptional(
	ctx context.Context,
	result *CycleResult,
	stage State,
	buf audio.Buffer,
	apply func(audio.Buffer) (audio.Buffer, error),
) audio.Buffer {
	_, span := observe.StartSpan(ctx, "pipeline."+string(stage))
	defer span.End()
	stageStart := time.Now()

	out, err := apply(buf)
	if err != nil {
		reason := "error"
		if errors.Is(err, errStageDisabled) {
			reason = "disabled"
		} else {
			observe.Logger(ctx).Warn("optional stage failed, passing buffer through",
				"stage", string(stage), "error", err)
		}
		result.Stages = append(result.Stages, skipped(stage, reason))
		p.metrics.RecordStageSkip(ctx, string(stage), reason)
		return buf
	}

	result.Stages = append(result.Stages, applied(stage))
	p.metrics.StageDuration.Record(ctx, time.Since(stageStart).Seconds(),
		stageDurationAttrs(stage))
	return out
}

// transcribe invokes the external speech-to-text collaborator on the
// cleaned buffer. When the cleaned signal yields an empty transcript even
// though the original capture differs from it, the original is submitted
// once more — aggressive gating or denoising can occasionally strip the
// very speech it was meant to isolate.
func (p *Pipeline) transcribe(ctx context.Context, cleaned, captured audio.Buffer) (string, error) {
	tctx, span := observe.StartSpan(ctx, "pipeline.transcribing")
	defer span.End()
	stageStart := time.Now()

	text, err := p.transcriber.Transcribe(tctx, cleaned)
	if err != nil {
		return "", p.classifyTranscribeErr(ctx, err)
	}

	if text == "" && !bytes.Equal(cleaned.PCM, captured.PCM) {
		text, err = p.transcriber.Transcribe(tctx, captured)
		if err != nil {
			return "", p.classifyTranscribeErr(ctx, err)
		}
	}

	p.metrics.StageDuration.Record(ctx, time.Since(stageStart).Seconds(),
		stageDurationAttrs(StateTranscribing))
	return text, nil
}

// classifyTranscribeErr maps transcriber failures onto the pipeline's two
// recoverable error kinds.
func (p *Pipeline) classifyTranscribeErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		observe.Logger(ctx).Warn("capture cycle timed out during transcription")
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	observe.Logger(ctx).Warn("transcription service failed", "error", err)
	return fmt.Errorf("%w: %v", ErrTranscriptionUnavailable, err)
}

// stageDurationAttrs builds the standard attribute set for the per-stage
// latency histogram.
func stageDurationAttrs(stage State) metric.MeasurementOption {
	return metric.WithAttributes(observe.Attr("stage", string(stage)))
}

func (p *Pipeline) recordMatch(ctx context.Context, r match.Result) {
	top := 0.0
	if len(r.Candidates) > 0 {
		top = r.Candidates[0].Score
	}
	p.metrics.RecordMatch(ctx, top, r.AutoAccepted)
}
