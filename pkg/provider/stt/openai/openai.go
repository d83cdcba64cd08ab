// Package openai provides an [stt.Transcriber] backed by the OpenAI audio
// transcription API (whisper-1 and the gpt-4o transcribe family).
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/medivox/pkg/audio"
	"github.com/MrWong99/medivox/pkg/provider/stt"
)

const defaultModel = "whisper-1"

// Compile-time assertion that Transcriber implements stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithModel selects the transcription model (e.g., "whisper-1",
// "gpt-4o-mini-transcribe"). Defaults to "whisper-1".
func WithModel(model string) Option {
	return func(t *Transcriber) { t.model = model }
}

// WithLanguage sets the ISO-639-1 language hint (e.g., "en"). Empty lets the
// API auto-detect.
func WithLanguage(lang string) Option {
	return func(t *Transcriber) { t.language = lang }
}

// WithBaseURL overrides the API endpoint, for OpenAI-compatible servers.
func WithBaseURL(baseURL string) Option {
	return func(t *Transcriber) { t.baseURL = baseURL }
}

// Transcriber implements stt.Transcriber via the OpenAI API.
type Transcriber struct {
	client   oai.Client
	model    string
	language string
	baseURL  string
}

// New creates a Transcriber authenticated with apiKey.
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	t := &Transcriber{model: defaultModel}
	for _, o := range opts {
		o(t)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(60 * time.Second),
	}
	if t.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(t.baseURL))
	}
	t.client = oai.NewClient(clientOpts...)
	return t, nil
}

// Transcribe uploads buf as a WAV file to the transcription endpoint and
// returns the transcript text. API and transport failures wrap
// [stt.ErrServiceUnavailable].
func (t *Transcriber) Transcribe(ctx context.Context, buf audio.Buffer) (string, error) {
	wav := audio.EncodeWAV(buf)

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model: oai.AudioModel(t.model),
	}
	if t.language != "" {
		params.Language = oai.String(t.language)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: transcription request: %w: %w", stt.ErrServiceUnavailable, err)
	}

	return strings.TrimSpace(resp.Text), nil
}
