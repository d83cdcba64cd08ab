// Package audio provides the PCM buffer type shared by every stage of the
// medivox capture pipeline, plus conversions between raw 16-bit PCM bytes,
// float32 sample slices, and RIFF/WAV containers.
//
// The pipeline operates exclusively on 16 kHz mono 16-bit signed
// little-endian PCM. Buffers carry their sample rate so that mismatches can
// be detected at the pipeline boundary instead of corrupting downstream
// stages silently.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// PipelineRate is the sample rate (Hz) every pipeline stage agrees on.
const PipelineRate = 16000

// bitsPerSample is fixed at 16 for the signed little-endian PCM used
// throughout the pipeline.
const bitsPerSample = 16

// Buffer is an immutable-by-convention chunk of mono PCM audio. Stages that
// transform audio return a new Buffer and never modify the input in place.
type Buffer struct {
	// PCM is raw 16-bit signed little-endian mono sample data.
	PCM []byte

	// SampleRate in Hz. The pipeline requires PipelineRate.
	SampleRate int
}

// NewBuffer wraps pcm at the given sample rate. The data is not copied.
func NewBuffer(pcm []byte, sampleRate int) Buffer {
	return Buffer{PCM: pcm, SampleRate: sampleRate}
}

// Len returns the number of samples in the buffer. A trailing odd byte is
// not counted.
func (b Buffer) Len() int { return len(b.PCM) / 2 }

// Empty reports whether the buffer holds no complete sample.
func (b Buffer) Empty() bool { return b.Len() == 0 }

// Duration returns the playback duration of the buffer. Returns 0 when the
// sample rate is not positive.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Len()) * time.Second / time.Duration(b.SampleRate)
}

// Samples converts the PCM data to float32 samples normalised to
// [-1.0, 1.0]. Any trailing odd byte is ignored.
func (b Buffer) Samples() []float32 {
	n := b.Len()
	samples := make([]float32, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(b.PCM[i*2 : i*2+2]))
		samples[i] = float32(s) / 32768.0
	}
	return samples
}

// FromSamples builds a Buffer from normalised float32 samples. Values are
// clamped to [-1.0, 1.0] before conversion so that denoiser overshoot cannot
// wrap around the int16 range.
func FromSamples(samples []float32, sampleRate int) Buffer {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		v := int16(s * 32767.0)
		binary.LittleEndian.PutUint16(pcm[i*2:i*2+2], uint16(v))
	}
	return Buffer{PCM: pcm, SampleRate: sampleRate}
}

// RMS returns the root-mean-square energy of the buffer, expressed in PCM
// sample units (0–32767). Returns 0 for buffers shorter than one sample.
func (b Buffer) RMS() float64 {
	n := b.Len()
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(int16(binary.LittleEndian.Uint16(b.PCM[i*2 : i*2+2])))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// Frame returns the sub-buffer covering samples [start, start+length). The
// returned Buffer shares the underlying PCM data. Out-of-range requests are
// clipped to the buffer bounds.
func (b Buffer) Frame(start, length int) Buffer {
	n := b.Len()
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end := start + length
	if end > n {
		end = n
	}
	return Buffer{PCM: b.PCM[start*2 : end*2], SampleRate: b.SampleRate}
}
