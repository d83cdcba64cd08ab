package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/medivox/internal/resilience"
	"github.com/MrWong99/medivox/pkg/audio"
	"github.com/MrWong99/medivox/pkg/provider/stt"
	sttmock "github.com/MrWong99/medivox/pkg/provider/stt/mock"
)

var errBackend = errors.New("backend down")

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	b := resilience.NewBreaker(resilience.BreakerConfig{
		Name:      "test",
		TripAfter: 3,
		CoolDown:  time.Hour,
	})

	fail := func() error { return errBackend }
	for range 3 {
		if err := b.Do(fail); !errors.Is(err, errBackend) {
			t.Fatalf("expected backend error, got: %v", err)
		}
	}
	if got := b.State(); got != resilience.BreakerOpen {
		t.Fatalf("state = %v after trip, want open", got)
	}

	// The next call is rejected without invoking fn.
	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, resilience.ErrBreakerOpen) {
		t.Fatalf("expected ErrBreakerOpen, got: %v", err)
	}
	if called {
		t.Error("fn invoked while breaker open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()
	b := resilience.NewBreaker(resilience.BreakerConfig{TripAfter: 2, CoolDown: time.Hour})

	_ = b.Do(func() error { return errBackend })
	_ = b.Do(func() error { return nil })
	_ = b.Do(func() error { return errBackend })

	if got := b.State(); got != resilience.BreakerClosed {
		t.Fatalf("state = %v, want closed (success between failures resets count)", got)
	}
}

func TestBreaker_ClosesAfterSuccessfulProbes(t *testing.T) {
	t.Parallel()
	b := resilience.NewBreaker(resilience.BreakerConfig{
		TripAfter:   1,
		CoolDown:    time.Millisecond,
		ProbeBudget: 2,
	})

	_ = b.Do(func() error { return errBackend })
	time.Sleep(5 * time.Millisecond)

	if got := b.State(); got != resilience.BreakerHalfOpen {
		t.Fatalf("state = %v after cool-down, want half-open", got)
	}
	for range 2 {
		if err := b.Do(func() error { return nil }); err != nil {
			t.Fatalf("probe failed: %v", err)
		}
	}
	if got := b.State(); got != resilience.BreakerClosed {
		t.Fatalf("state = %v after successful probes, want closed", got)
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()
	b := resilience.NewBreaker(resilience.BreakerConfig{TripAfter: 1, CoolDown: time.Hour})
	_ = b.Do(func() error { return errBackend })
	if b.State() != resilience.BreakerOpen {
		t.Fatal("breaker should be open")
	}
	b.Reset()
	if b.State() != resilience.BreakerClosed {
		t.Fatal("breaker should be closed after Reset")
	}
}

func TestTranscriberChain_FallsBackToSecondary(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Transcriber{
		TranscribeFunc: func(context.Context, audio.Buffer) (string, error) {
			return "", errBackend
		},
	}
	secondary := &sttmock.Transcriber{
		TranscribeFunc: func(context.Context, audio.Buffer) (string, error) {
			return "paracetamol", nil
		},
	}
	chain := resilience.NewTranscriberChain("primary", primary, resilience.BreakerConfig{})
	chain.Add("secondary", secondary)

	text, err := chain.Transcribe(context.Background(), audio.Buffer{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "paracetamol" {
		t.Errorf("text = %q, want secondary result", text)
	}
	if len(primary.Calls()) != 1 || len(secondary.Calls()) != 1 {
		t.Errorf("call counts: primary %d, secondary %d", len(primary.Calls()), len(secondary.Calls()))
	}
}

func TestTranscriberChain_AllFailedReportsServiceUnavailable(t *testing.T) {
	t.Parallel()
	failing := func(context.Context, audio.Buffer) (string, error) {
		return "", errBackend
	}
	chain := resilience.NewTranscriberChain("a", &sttmock.Transcriber{TranscribeFunc: failing}, resilience.BreakerConfig{})
	chain.Add("b", &sttmock.Transcriber{TranscribeFunc: failing})

	_, err := chain.Transcribe(context.Background(), audio.Buffer{})
	if !errors.Is(err, stt.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got: %v", err)
	}
}

func TestTranscriberChain_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Transcriber{
		TranscribeFunc: func(context.Context, audio.Buffer) (string, error) {
			return "", errBackend
		},
	}
	secondary := &sttmock.Transcriber{
		TranscribeFunc: func(context.Context, audio.Buffer) (string, error) {
			return "ok", nil
		},
	}
	chain := resilience.NewTranscriberChain("primary", primary,
		resilience.BreakerConfig{TripAfter: 1, CoolDown: time.Hour})
	chain.Add("secondary", secondary)

	// First call trips the primary's breaker; the second must not touch it.
	if _, err := chain.Transcribe(context.Background(), audio.Buffer{}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := chain.Transcribe(context.Background(), audio.Buffer{}); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if got := len(primary.Calls()); got != 1 {
		t.Errorf("primary called %d times, want 1 (breaker open)", got)
	}
}

func TestTranscriberChain_StopsOnCancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	primary := &sttmock.Transcriber{
		TranscribeFunc: func(context.Context, audio.Buffer) (string, error) {
			cancel()
			return "", errBackend
		},
	}
	secondary := &sttmock.Transcriber{
		TranscribeFunc: func(context.Context, audio.Buffer) (string, error) {
			return "ok", nil
		},
	}
	chain := resilience.NewTranscriberChain("primary", primary, resilience.BreakerConfig{})
	chain.Add("secondary", secondary)

	_, err := chain.Transcribe(ctx, audio.Buffer{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got: %v", err)
	}
	if len(secondary.Calls()) != 0 {
		t.Error("secondary tried after context cancellation")
	}
}
