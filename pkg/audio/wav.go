package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/wav"
)

// ErrUnsupportedFormat is returned by DecodeWAV for WAV files that are not
// PCM or that the decoder cannot parse.
var ErrUnsupportedFormat = errors.New("audio: unsupported wav format")

// DecodeWAV reads a RIFF/WAV stream and returns its contents as a mono
// Buffer. Multi-channel input is down-mixed by averaging all channels per
// frame; bit depths other than 16 are rescaled. The sample rate is taken
// from the file header — resampling to PipelineRate is the caller's job.
func DecodeWAV(r io.Reader) (Buffer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Buffer{}, fmt.Errorf("audio: read wav stream: %w", err)
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Buffer{}, ErrUnsupportedFormat
	}

	ib, err := dec.FullPCMBuffer()
	if err != nil {
		return Buffer{}, fmt.Errorf("audio: decode wav pcm: %w", err)
	}

	channels := ib.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}
	bitDepth := int(dec.BitDepth)
	if bitDepth <= 0 {
		bitDepth = 16
	}
	// Shift needed to bring samples into int16 range.
	shift := bitDepth - 16

	frames := len(ib.Data) / channels
	pcm := make([]byte, frames*2)
	for i := range frames {
		var sum int64
		for ch := range channels {
			sum += int64(ib.Data[i*channels+ch])
		}
		v := sum / int64(channels)
		if shift > 0 {
			v >>= shift
		} else if shift < 0 {
			v <<= -shift
		}
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(pcm[i*2:i*2+2], uint16(int16(v)))
	}

	return Buffer{PCM: pcm, SampleRate: int(ib.Format.SampleRate)}, nil
}

// EncodeWAV wraps the buffer's PCM data in a standard RIFF/WAV container
// suitable for upload to transcription services.
func EncodeWAV(b Buffer) []byte {
	byteRate := b.SampleRate * bitsPerSample / 8
	blockAlign := bitsPerSample / 8
	dataSize := len(b.PCM)

	out := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataSize)) // file size − 8
	copy(out[8:12], "WAVE")

	// fmt sub-chunk
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)                    // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(out[20:22], 1)                     // audio format: PCM
	binary.LittleEndian.PutUint16(out[22:24], 1)                     // mono
	binary.LittleEndian.PutUint32(out[24:28], uint32(b.SampleRate))  // sample rate
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))      // byte rate
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))    // block align
	binary.LittleEndian.PutUint16(out[34:36], uint16(bitsPerSample)) // bits per sample

	// data sub-chunk
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))
	copy(out[44:], b.PCM)

	return out
}

// ResampleMono16 resamples the buffer to dstRate using linear interpolation.
// If the buffer is already at dstRate (or either rate is not positive) the
// buffer is returned unchanged.
func ResampleMono16(b Buffer, dstRate int) Buffer {
	if b.SampleRate <= 0 || dstRate <= 0 || b.SampleRate == dstRate || b.Len() < 1 {
		return b
	}
	srcSamples := b.Len()
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(b.SampleRate))
	if dstSamples == 0 {
		return Buffer{PCM: nil, SampleRate: dstRate}
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(b.SampleRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(binary.LittleEndian.Uint16(b.PCM[srcIdx*2 : srcIdx*2+2]))
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(binary.LittleEndian.Uint16(b.PCM[(srcIdx+1)*2 : (srcIdx+1)*2+2]))
		}

		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(v))
	}
	return Buffer{PCM: out, SampleRate: dstRate}
}
