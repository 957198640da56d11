package speech_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/larder/internal/speech"
	audiomock "github.com/MrWong99/larder/pkg/audio/mock"
	"github.com/MrWong99/larder/pkg/provider/tts"
	ttsmock "github.com/MrWong99/larder/pkg/provider/tts/mock"
)

func TestSpeaker_Say(t *testing.T) {
	t.Parallel()

	p := &ttsmock.Provider{Audio: []byte{1, 0, 2, 0, 3, 0, 4, 0}, Rate: 16000}
	sink := &audiomock.Sink{Rate: 16000}
	s, err := speech.New(p, sink, speech.WithVoice("alice"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Say(context.Background(), "  牛奶 将在 2 天后过期 "); err != nil {
		t.Fatalf("Say: %v", err)
	}
	if len(p.Calls) != 1 || p.Calls[0].Text != "牛奶 将在 2 天后过期" || p.Calls[0].Voice != "alice" {
		t.Errorf("tts calls = %+v", p.Calls)
	}
	if sink.PlayCount() != 1 || len(sink.Played[0]) != 8 {
		t.Errorf("played = %v", sink.Played)
	}
}

func TestSpeaker_ResamplesToSinkRate(t *testing.T) {
	t.Parallel()

	p := &ttsmock.Provider{Audio: make([]byte, 3200), Rate: 16000}
	sink := &audiomock.Sink{Rate: 48000}
	s, _ := speech.New(p, sink)

	if err := s.Say(context.Background(), "hello"); err != nil {
		t.Fatalf("Say: %v", err)
	}
	if got := len(sink.Played[0]); got != 9600 {
		t.Errorf("played %d bytes, want 9600", got)
	}
}

func TestSpeaker_Errors(t *testing.T) {
	t.Parallel()

	sink := &audiomock.Sink{}
	s, _ := speech.New(&ttsmock.Provider{Err: errors.New("quota")}, sink)
	if err := s.Say(context.Background(), "hi"); err == nil {
		t.Error("expected synthesis error")
	}
	if err := s.Say(context.Background(), "   "); !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("blank text: err = %v", err)
	}
	if sink.PlayCount() != 0 {
		t.Error("nothing should be played after errors")
	}

	failing := &audiomock.Sink{PlayErr: errors.New("device gone")}
	s2, _ := speech.New(&ttsmock.Provider{Audio: []byte{0, 0}}, failing)
	if err := s2.Say(context.Background(), "hi"); err == nil {
		t.Error("expected play error")
	}

	if _, err := speech.New(nil, sink); err == nil {
		t.Error("expected error for nil provider")
	}
	if _, err := speech.New(&ttsmock.Provider{}, nil); err == nil {
		t.Error("expected error for nil sink")
	}
}

// slowSink records the maximum number of concurrent Play calls.
type slowSink struct {
	audiomock.Sink
	mu      sync.Mutex
	active  int
	maxSeen int
}

func (s *slowSink) Play(ctx context.Context, pcm []byte) error {
	s.mu.Lock()
	s.active++
	s.maxSeen = max(s.maxSeen, s.active)
	s.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	s.mu.Lock()
	s.active--
	s.mu.Unlock()
	return nil
}

func TestSpeaker_SerializesAnnouncements(t *testing.T) {
	t.Parallel()

	sink := &slowSink{}
	s, _ := speech.New(&ttsmock.Provider{Audio: []byte{0, 0}}, sink)

	var wg sync.WaitGroup
	for range 5 {
		wg.Go(func() { _ = s.Say(context.Background(), "x") })
	}
	wg.Wait()
	if sink.maxSeen != 1 {
		t.Errorf("max concurrent plays = %d, want 1", sink.maxSeen)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"番茄炒蛋做法", 2, "番茄"},
		{"番茄", 2, "番茄"},
		{"abc", 0, "abc"},
	}
	for _, tt := range tests {
		if got := speech.Truncate(tt.in, tt.limit); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
		}
	}
}
