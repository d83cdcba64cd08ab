// Package spectral implements [denoise.Denoiser] using short-time Fourier
// transform spectral subtraction.
//
// The denoiser estimates a stationary noise magnitude profile — by default
// from the first half second of the buffer, on the assumption that capture
// begins slightly before speech — and subtracts a configurable fraction of
// that profile from every frame's magnitude spectrum. Phases are left
// untouched and frames are reassembled by overlap-add with a periodic Hann
// window at 50% hop, which sums to unity and therefore needs no separate
// synthesis normalisation.
//
// A spectral floor keeps every output magnitude at a small fraction of its
// input value, so silent input cannot produce division by zero, NaNs, or
// negative magnitudes.
package spectral

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/MrWong99/medivox/pkg/audio"
	"github.com/MrWong99/medivox/pkg/provider/denoise"
)

const (
	defaultStrength = 0.7

	// fftSize is the STFT frame length in samples: 32 ms at 16 kHz.
	fftSize = 512
	hopSize = fftSize / 2

	// noiseProfileSeconds is the length of the leading segment used for the
	// noise estimate when no explicit noise sample is configured.
	noiseProfileSeconds = 0.5

	// spectralFloor is the minimum fraction of a bin's input magnitude that
	// survives subtraction.
	spectralFloor = 0.01

	// silenceRMS is the PCM RMS level below which the buffer is considered
	// silent and returned unchanged.
	silenceRMS = 1.0
)

// Compile-time interface assertion.
var _ denoise.Denoiser = (*Denoiser)(nil)

// Option is a functional option for configuring a [Denoiser].
type Option func(*Denoiser)

// WithStrength sets the fraction of the estimated noise magnitude removed
// from each spectral bin, in the range [0.0, 1.0]. Default: 0.7.
func WithStrength(strength float64) Option {
	return func(d *Denoiser) { d.strength = strength }
}

// WithNoiseSample supplies an explicit noise-only recording to estimate the
// noise profile from, instead of the leading segment of each buffer. The
// sample must use the same sample rate as the buffers being cleaned.
func WithNoiseSample(sample audio.Buffer) Option {
	return func(d *Denoiser) { d.noiseSample = &sample }
}

// Denoiser is the spectral-subtraction [denoise.Denoiser]. It is read-only
// after construction and safe for concurrent use.
type Denoiser struct {
	strength    float64
	noiseSample *audio.Buffer
	window      []float64
}

// New creates a Denoiser. Returns an error when the strength is outside
// [0.0, 1.0].
func New(opts ...Option) (*Denoiser, error) {
	d := &Denoiser{strength: defaultStrength, window: hannWindow(fftSize)}
	for _, o := range opts {
		o(d)
	}
	if d.strength < 0 || d.strength > 1 {
		return nil, fmt.Errorf("spectral: strength %.2f is out of range [0.0, 1.0]", d.strength)
	}
	return d, nil
}

// Apply implements [denoise.Denoiser]. The returned buffer has exactly the
// same length and sample rate as buf.
func (d *Denoiser) Apply(buf audio.Buffer) (audio.Buffer, error) {
	n := buf.Len()
	if n == 0 || buf.RMS() < silenceRMS {
		return buf, nil
	}

	samples := toFloat64(buf.Samples())

	// Pad by one hop at each end so every original sample is covered by a
	// full complement of overlapping windows, then pad up to whole frames.
	padded := make([]float64, 0, n+2*hopSize+fftSize)
	padded = append(padded, make([]float64, hopSize)...)
	padded = append(padded, samples...)
	padded = append(padded, make([]float64, hopSize)...)
	for len(padded)%hopSize != 0 {
		padded = append(padded, 0)
	}
	padded = append(padded, make([]float64, fftSize-hopSize)...)

	fft := fourier.NewFFT(fftSize)
	noiseMag := d.noiseProfile(fft, samples, buf.SampleRate)

	out := make([]float64, len(padded))
	frame := make([]float64, fftSize)
	for start := 0; start+fftSize <= len(padded); start += hopSize {
		for i := range frame {
			frame[i] = padded[start+i] * d.window[i]
		}
		coeffs := fft.Coefficients(nil, frame)

		for k, c := range coeffs {
			mag := cmplxAbs(c)
			cleaned := mag - d.strength*noiseMag[k]
			if floor := mag * spectralFloor; cleaned < floor {
				cleaned = floor
			}
			if mag > 0 {
				scale := cleaned / mag
				coeffs[k] = complex(real(c)*scale, imag(c)*scale)
			}
		}

		restored := fft.Sequence(nil, coeffs)
		for i := range restored {
			out[start+i] += restored[i] / float64(fftSize)
		}
	}

	cleaned := make([]float32, n)
	for i := range cleaned {
		cleaned[i] = float32(out[hopSize+i])
	}
	return audio.FromSamples(cleaned, buf.SampleRate), nil
}

// noiseProfile returns the average magnitude spectrum of the noise estimate:
// either the configured noise sample or the leading segment of samples.
func (d *Denoiser) noiseProfile(fft *fourier.FFT, samples []float64, sampleRate int) []float64 {
	noise := samples
	if d.noiseSample != nil {
		noise = toFloat64(d.noiseSample.Samples())
	} else {
		lead := int(noiseProfileSeconds * float64(sampleRate))
		if lead > 0 && lead < len(noise) {
			noise = noise[:lead]
		}
	}

	bins := fftSize/2 + 1
	profile := make([]float64, bins)
	frames := 0
	frame := make([]float64, fftSize)
	for start := 0; start+fftSize <= len(noise); start += hopSize {
		for i := range frame {
			frame[i] = noise[start+i] * d.window[i]
		}
		coeffs := fft.Coefficients(nil, frame)
		for k, c := range coeffs {
			profile[k] += cmplxAbs(c)
		}
		frames++
	}

	// Noise segment shorter than one frame: analyse it zero-padded so the
	// profile is never all zeros for noisy-but-short input.
	if frames == 0 {
		for i := range frame {
			if i < len(noise) {
				frame[i] = noise[i] * d.window[i]
			} else {
				frame[i] = 0
			}
		}
		coeffs := fft.Coefficients(nil, frame)
		for k, c := range coeffs {
			profile[k] = cmplxAbs(c)
		}
		return profile
	}

	for k := range profile {
		profile[k] /= float64(frames)
	}
	return profile
}

// hannWindow returns a periodic Hann window of length n. Periodic (rather
// than symmetric) windows at 50% overlap sum to exactly one, which makes the
// overlap-add reconstruction lossless for unmodified spectra.
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n)))
	}
	return w
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

func toFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
