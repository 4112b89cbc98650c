package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRunner struct {
	mu      sync.Mutex
	runs    int
	finals  int
	outcome Outcome
	err     error
}

func (f *fakeRunner) Run(ctx context.Context, sess *GuildSession, mode string, final bool) (Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	if final {
		f.finals++
	}
	return f.outcome, f.err
}

func (f *fakeRunner) counts() (runs, finals int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs, f.finals
}

type fakeCapture struct {
	closed int64
}

func (f *fakeCapture) Close() error {
	atomic.AddInt64(&f.closed, 1)
	return nil
}

type fakeSettings struct {
	mu       sync.Mutex
	settings Settings
	err      error
	calls    int
}

func (f *fakeSettings) GuildSettings(ctx context.Context, guildID string) (Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.settings, f.err
}

func (f *fakeSettings) set(s Settings) {
	f.mu.Lock()
	f.settings = s
	f.mu.Unlock()
}

func (f *fakeSettings) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSpeakerNames(t *testing.T) {
	s := NewGuildSession("g1", "c1")
	s.SetSpeakerName(1, "alice")
	s.SetSpeakerName(2, "bob")
	s.SetSpeakerName(1, "")

	names := s.SpeakerNames()
	if names[1] != "alice" {
		t.Fatalf("expected empty name ignored, got %q", names[1])
	}
	if names[2] != "bob" {
		t.Fatalf("expected bob, got %q", names[2])
	}

	names[2] = "mallory"
	if s.SpeakerNames()[2] != "bob" {
		t.Fatal("SpeakerNames must return a copy")
	}
}

func TestContextReplacedWholesale(t *testing.T) {
	s := NewGuildSession("g1", "c1")
	s.SetContext("first")
	s.SetContext("second")
	if s.Context() != "second" {
		t.Fatalf("expected context replaced, got %q", s.Context())
	}
}

func TestStartRecordingTwiceRejected(t *testing.T) {
	s := NewGuildSession("g1", "c1")
	runner := &fakeRunner{}
	src := &fakeSettings{settings: Settings{Mode: "debate", Interval: time.Hour}}
	cap1 := &fakeCapture{}

	if err := s.StartRecording(cap1, src, runner); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	defer s.Stop(context.Background())

	if err := s.StartRecording(&fakeCapture{}, src, runner); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
}

func TestStopRunsFinalAnalysisAndReleasesCapture(t *testing.T) {
	s := NewGuildSession("g1", "c1")
	runner := &fakeRunner{outcome: OutcomeSuccess}
	src := &fakeSettings{settings: Settings{Mode: "summary", Interval: time.Hour}}
	cap1 := &fakeCapture{}

	if err := s.StartRecording(cap1, src, runner); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	outcome, err := s.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if outcome != OutcomeSuccess {
		t.Fatalf("expected success outcome, got %v", outcome)
	}

	runs, finals := runner.counts()
	if finals != 1 {
		t.Fatalf("expected exactly one final run, got %d", finals)
	}
	if runs != finals {
		t.Fatalf("expected no periodic runs with a 1h interval, got %d total", runs)
	}
	if atomic.LoadInt64(&cap1.closed) != 1 {
		t.Fatalf("expected capture released once, got %d", cap1.closed)
	}
	if s.Active() {
		t.Fatal("session still active after Stop")
	}
}

func TestStopAbortsIntervalSleepPromptly(t *testing.T) {
	s := NewGuildSession("g1", "c1")
	runner := &fakeRunner{}
	src := &fakeSettings{settings: Settings{Interval: time.Hour}}

	if err := s.StartRecording(&fakeCapture{}, src, runner); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.Stop(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not abort the interval sleep")
	}
}

func TestDoubleStop(t *testing.T) {
	s := NewGuildSession("g1", "c1")
	runner := &fakeRunner{}
	src := &fakeSettings{settings: Settings{Interval: time.Hour}}
	cap1 := &fakeCapture{}

	if err := s.StartRecording(cap1, src, runner); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if _, err := s.Stop(context.Background()); err != nil {
		t.Fatalf("first stop failed: %v", err)
	}
	if _, err := s.Stop(context.Background()); !errors.Is(err, ErrSessionStopped) {
		t.Fatalf("expected ErrSessionStopped on second stop, got %v", err)
	}

	_, finals := runner.counts()
	if finals != 1 {
		t.Fatalf("expected one final run despite double stop, got %d", finals)
	}
	if atomic.LoadInt64(&cap1.closed) != 1 {
		t.Fatalf("expected capture released once, got %d", cap1.closed)
	}
}

func TestStartAfterStopRejected(t *testing.T) {
	s := NewGuildSession("g1", "c1")
	runner := &fakeRunner{}
	src := &fakeSettings{settings: Settings{Interval: time.Hour}}

	if err := s.StartRecording(&fakeCapture{}, src, runner); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	if err := s.StartRecording(&fakeCapture{}, src, runner); !errors.Is(err, ErrSessionStopped) {
		t.Fatalf("expected ErrSessionStopped, got %v", err)
	}
}
