// Package energy implements [vad.Gate] with an in-process energy and
// zero-crossing-rate heuristic.
//
// The gate splits the buffer into fixed-duration frames, estimates the noise
// floor from the quietest frames, and classifies a frame as speech when its
// RMS energy clears an aggressiveness-scaled multiple of that floor and its
// zero-crossing rate stays below the hiss band. A short hangover keeps a few
// trailing frames after each speech burst so that word-final consonants and
// short intra-word pauses survive gating.
//
// The heuristic needs no model files or cgo, which keeps the gate an always-
// available pipeline stage; a heavier detector (e.g. Silero via ONNX) can be
// swapped in behind the same interface.
package energy

import (
	"encoding/binary"
	"fmt"
	"slices"
	"sort"

	"github.com/MrWong99/medivox/pkg/audio"
	"github.com/MrWong99/medivox/pkg/provider/vad"
)

const (
	defaultFrameMs        = 30
	defaultAggressiveness = 2

	// hangoverFrames is the number of non-speech frames kept after a speech
	// frame before gating resumes.
	hangoverFrames = 3

	// maxSpeechZCR is the per-sample zero-crossing rate above which a frame is
	// treated as broadband hiss rather than voiced speech.
	maxSpeechZCR = 0.45
)

// floorMultiplier maps aggressiveness (0–3) to the factor applied to the
// estimated noise floor. Higher aggressiveness demands more energy headroom.
var floorMultiplier = [4]float64{1.3, 1.8, 2.5, 3.5}

// absoluteMinRMS maps aggressiveness (0–3) to the minimum frame RMS (in PCM
// units, max 32767) that can ever count as speech.
var absoluteMinRMS = [4]float64{50, 100, 180, 300}

// Compile-time interface assertion.
var _ vad.Gate = (*Gate)(nil)

// Option is a functional option for configuring a [Gate].
type Option func(*Gate)

// WithFrameMs sets the analysis frame duration. Valid values are 10, 20, or
// 30 ms. Default: 30.
func WithFrameMs(ms int) Option {
	return func(g *Gate) { g.frameMs = ms }
}

// WithAggressiveness sets the filtering aggressiveness in the range [0, 3],
// where 0 is the most permissive and 3 filters the hardest. Default: 2.
func WithAggressiveness(level int) Option {
	return func(g *Gate) { g.aggressiveness = level }
}

// Gate is the energy-heuristic [vad.Gate]. It is read-only after
// construction and safe for concurrent use.
type Gate struct {
	sampleRate     int
	frameMs        int
	aggressiveness int
}

// New creates a Gate for buffers at the given sample rate. Returns an error
// for an invalid frame duration or aggressiveness level.
func New(sampleRate int, opts ...Option) (*Gate, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("energy: sample rate %d is invalid", sampleRate)
	}
	g := &Gate{
		sampleRate:     sampleRate,
		frameMs:        defaultFrameMs,
		aggressiveness: defaultAggressiveness,
	}
	for _, o := range opts {
		o(g)
	}
	if !slices.Contains(vad.ValidFrameMs, g.frameMs) {
		return nil, fmt.Errorf("energy: frame duration %d ms is invalid; valid values: 10, 20, 30", g.frameMs)
	}
	if g.aggressiveness < 0 || g.aggressiveness > 3 {
		return nil, fmt.Errorf("energy: aggressiveness %d is out of range [0, 3]", g.aggressiveness)
	}
	return g, nil
}

// Apply implements [vad.Gate]. The buffer's sample rate must match the rate
// the gate was constructed with.
func (g *Gate) Apply(buf audio.Buffer) (audio.Buffer, error) {
	if buf.SampleRate != g.sampleRate {
		return buf, fmt.Errorf("energy: buffer sample rate %d does not match gate rate %d", buf.SampleRate, g.sampleRate)
	}
	total := buf.Len()
	if total == 0 {
		return buf, nil
	}

	samplesPerFrame := g.sampleRate * g.frameMs / 1000
	frameCount := (total + samplesPerFrame - 1) / samplesPerFrame

	energies := make([]float64, frameCount)
	crossings := make([]float64, frameCount)
	for i := range frameCount {
		frame := buf.Frame(i*samplesPerFrame, samplesPerFrame)
		energies[i] = frame.RMS()
		crossings[i] = zeroCrossingRate(frame)
	}

	threshold := g.speechThreshold(energies)

	// Classify with hangover: a speech frame re-arms the keep counter so the
	// next few frames survive even when they fall below the threshold.
	kept := make([]byte, 0, len(buf.PCM))
	keepCount := 0
	anySpeech := false
	for i := range frameCount {
		isSpeech := energies[i] >= threshold && crossings[i] <= maxSpeechZCR
		if isSpeech {
			anySpeech = true
			keepCount = hangoverFrames
			kept = append(kept, buf.Frame(i*samplesPerFrame, samplesPerFrame).PCM...)
		} else if keepCount > 0 {
			keepCount--
			kept = append(kept, buf.Frame(i*samplesPerFrame, samplesPerFrame).PCM...)
		}
	}

	// Fail open: never hand an emptied signal downstream.
	if !anySpeech {
		return buf, nil
	}
	return audio.NewBuffer(kept, buf.SampleRate), nil
}

// speechThreshold derives the RMS level a frame must reach to count as
// speech. The noise floor is the mean of the quietest 10% of frames; the
// threshold is the floor scaled by the aggressiveness multiplier, but never
// below the absolute minimum for the configured level.
func (g *Gate) speechThreshold(energies []float64) float64 {
	sorted := make([]float64, len(energies))
	copy(sorted, energies)
	sort.Float64s(sorted)

	quiet := len(sorted) / 10
	if quiet == 0 {
		quiet = 1
	}
	var floor float64
	for _, e := range sorted[:quiet] {
		floor += e
	}
	floor /= float64(quiet)

	threshold := floor * floorMultiplier[g.aggressiveness]
	if min := absoluteMinRMS[g.aggressiveness]; threshold < min {
		threshold = min
	}
	return threshold
}

// zeroCrossingRate returns the fraction of adjacent sample pairs in the
// frame whose signs differ. Voiced speech sits well below broadband noise on
// this measure.
func zeroCrossingRate(frame audio.Buffer) float64 {
	n := frame.Len()
	if n < 2 {
		return 0
	}
	crossings := 0
	prev := int16(binary.LittleEndian.Uint16(frame.PCM[0:2]))
	for i := 1; i < n; i++ {
		cur := int16(binary.LittleEndian.Uint16(frame.PCM[i*2 : i*2+2]))
		if (prev >= 0) != (cur >= 0) {
			crossings++
		}
		prev = cur
	}
	return float64(crossings) / float64(n-1)
}
