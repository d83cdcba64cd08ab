package whisper_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/medivox/pkg/audio"
	"github.com/MrWong99/medivox/pkg/provider/stt"
	"github.com/MrWong99/medivox/pkg/provider/stt/whisper"
)

func testBuffer() audio.Buffer {
	return audio.NewBuffer(make([]byte, audio.PipelineRate/10*2), audio.PipelineRate)
}

func TestClient_Transcribe(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			t.Errorf("path = %q, want /inference", r.URL.Path)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("language"); got != "de" {
			t.Errorf("language field = %q, want de", got)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("file field missing: %v", err)
		} else {
			f.Close()
		}
		w.Write([]byte(`{"text": " paracetamol fünfhundert "}`))
	}))
	defer srv.Close()

	c, err := whisper.New(srv.URL, whisper.WithLanguage("de"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text, err := c.Transcribe(context.Background(), testBuffer())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if !strings.Contains(text, "paracetamol") {
		t.Errorf("text = %q", text)
	}
}

func TestClient_ServerErrorWrapsServiceUnavailable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Transcribe(context.Background(), testBuffer()); !errors.Is(err, stt.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got: %v", err)
	}
}

func TestClient_ConnectionRefusedWrapsServiceUnavailable(t *testing.T) {
	t.Parallel()
	// A server that is immediately closed guarantees a refused connection.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := whisper.New(url)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Transcribe(context.Background(), testBuffer()); !errors.Is(err, stt.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got: %v", err)
	}
}

func TestNew_RequiresServerURL(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty server URL")
	}
}
