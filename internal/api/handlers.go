package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/medivox/internal/catalog"
	"github.com/MrWong99/medivox/internal/match"
	"github.com/MrWong99/medivox/internal/observe"
	"github.com/MrWong99/medivox/internal/pipeline"
	"github.com/MrWong99/medivox/internal/selection"
	"github.com/MrWong99/medivox/pkg/audio"
)

// candidateJSON is the wire form of one ranked candidate.
type candidateJSON struct {
	Name     string   `json:"name"`
	Variants []string `json:"variants"`
	Score    float64  `json:"score"`
}

// matchJSON is the wire form of a match result.
type matchJSON struct {
	Query        string          `json:"query"`
	Candidates   []candidateJSON `json:"candidates"`
	AutoAccepted bool            `json:"auto_accepted"`
}

// stageJSON is the wire form of one optional stage outcome.
type stageJSON struct {
	Stage      string `json:"stage"`
	Applied    bool   `json:"applied"`
	SkipReason string `json:"skip_reason,omitempty"`
}

// captureJSON is the response body of POST /v1/capture.
type captureJSON struct {
	State      string      `json:"state"`
	Transcript string      `json:"transcript"`
	Match      matchJSON   `json:"match"`
	Stages     []stageJSON `json:"stages"`
}

func toMatchJSON(r match.Result) matchJSON {
	out := matchJSON{
		Query:        r.Query,
		Candidates:   make([]candidateJSON, 0, len(r.Candidates)),
		AutoAccepted: r.AutoAccepted,
	}
	for _, c := range r.Candidates {
		out.Candidates = append(out.Candidates, candidateJSON{
			Name:     c.Entry.Name,
			Variants: c.Entry.Variants,
			Score:    c.Score,
		})
	}
	return out
}

// handleCapture runs one capture cycle over an uploaded recording.
//
// The body is either a WAV file (Content-Type audio/wav) or raw 16-bit
// signed little-endian mono PCM (application/octet-stream) with an optional
// sample_rate query parameter defaulting to the pipeline rate.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	buf, err := s.decodeAudioBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if buf.Empty() {
		writeError(w, http.StatusBadRequest, "empty audio body")
		return
	}

	result, err := s.pipeline.Run(r.Context(), buf)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrTimeout):
			writeError(w, http.StatusGatewayTimeout, "capture timed out")
		case errors.Is(err, pipeline.ErrTranscriptionUnavailable):
			writeError(w, http.StatusServiceUnavailable, "transcription service unavailable")
		default:
			s.logger.Error("capture cycle failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	resp := captureJSON{
		State:      string(result.State),
		Transcript: result.Transcript,
		Match:      toMatchJSON(result.Match),
		Stages:     make([]stageJSON, 0, len(result.Stages)),
	}
	for _, st := range result.Stages {
		resp.Stages = append(resp.Stages, stageJSON{
			Stage:      string(st.Stage),
			Applied:    st.Applied,
			SkipReason: st.SkipReason,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeAudioBody parses the capture request body into a Buffer.
func (s *Server) decodeAudioBody(r *http.Request) (audio.Buffer, error) {
	body := http.MaxBytesReader(nil, r.Body, maxAudioBody)

	contentType := r.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	}

	switch {
	case strings.HasPrefix(contentType, "audio/wav"), strings.HasPrefix(contentType, "audio/x-wav"):
		return audio.DecodeWAV(body)

	case contentType == "" || contentType == "application/octet-stream":
		rate := audio.PipelineRate
		if v := r.URL.Query().Get("sample_rate"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return audio.Buffer{}, errors.New("sample_rate must be a positive integer")
			}
			rate = n
		}
		pcm, err := io.ReadAll(body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return audio.Buffer{}, errors.New("audio body too large")
			}
			return audio.Buffer{}, errors.New("failed to read request body")
		}
		return audio.NewBuffer(pcm, rate), nil

	default:
		return audio.Buffer{}, errors.New("unsupported content type; use audio/wav or application/octet-stream")
	}
}

// handleMatch runs the typed-input path: normalize and match a text query
// without any audio stage.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result := s.pipeline.MatchText(r.Context(), req.Query)
	writeJSON(w, http.StatusOK, toMatchJSON(result))
}

// handleCatalog lists the current catalog in insertion order.
func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	idx := s.catalog.Index()
	type entryJSON struct {
		Name     string   `json:"name"`
		Variants []string `json:"variants"`
	}
	entries := make([]entryJSON, 0, idx.Len())
	for _, e := range idx.Entries() {
		entries = append(entries, entryJSON{Name: e.Name, Variants: e.Variants})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// handleCatalogReload re-reads the catalog file and swaps it in atomically.
// A corrupt file leaves the previous catalog in place and answers 422.
func (s *Server) handleCatalogReload(w http.ResponseWriter, r *http.Request) {
	err := s.catalog.Reload(s.catalogPath)
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.CatalogReloads.Add(r.Context(), 1,
		metric.WithAttributes(observe.Attr("status", status)))

	if err != nil {
		if errors.Is(err, catalog.ErrCorruptCatalog) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.Error("catalog reload failed", "path", s.catalogPath, "error", err)
		writeError(w, http.StatusInternalServerError, "catalog reload failed")
		return
	}

	s.logger.Info("catalog reloaded", "path", s.catalogPath, "entries", s.catalog.Index().Len())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"entries": s.catalog.Index().Len(),
	})
}

// handleSelectionCreate persists one confirmed selection.
func (s *Server) handleSelectionCreate(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, "selection store not configured")
		return
	}

	var rec selection.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if rec.SelectedAt.IsZero() {
		rec.SelectedAt = time.Now().UTC()
	}
	if err := rec.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := s.store.Append(r.Context(), rec); err != nil {
		s.logger.Error("failed to persist selection", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to persist selection")
		return
	}
	s.metrics.Selections.Add(r.Context(), 1)
	writeJSON(w, http.StatusCreated, rec)
}

// handleSelectionList returns all persisted selections in insertion order.
func (s *Server) handleSelectionList(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, "selection store not configured")
		return
	}

	records, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list selections", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list selections")
		return
	}
	if records == nil {
		records = []selection.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"selections": records})
}
