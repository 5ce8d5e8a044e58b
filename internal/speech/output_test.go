package speech

import (
	"context"
	"sync"
	"testing"
	"time"

	"vortex/internal/resource"
)

type fakeSynth struct{}

func (fakeSynth) Synthesize(_ context.Context, text string) ([]float32, error) {
	return make([]float32, len(text)), nil
}

type recordingPlayer struct {
	mu     sync.Mutex
	played [][]float32
	delay  time.Duration
}

func (p *recordingPlayer) Play(pcm []float32) error {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	p.mu.Lock()
	p.played = append(p.played, pcm)
	p.mu.Unlock()
	return nil
}

func (p *recordingPlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.played)
}

func TestSpeakIsFIFOAndSequential(t *testing.T) {
	player := &recordingPlayer{}
	o := NewOutput(nil, resource.NewGuard(nil), fakeSynth{}, player, nil)

	first := o.Speak("one")
	second := o.Speak("four")
	third := o.Speak("seven11")

	<-third
	o.Shutdown()

	select {
	case <-first:
	default:
		t.Fatal("first utterance not done after last finished")
	}
	select {
	case <-second:
	default:
		t.Fatal("second utterance not done after last finished")
	}

	player.mu.Lock()
	defer player.mu.Unlock()
	if len(player.played) != 3 {
		t.Fatalf("played %d utterances, want 3", len(player.played))
	}
	// fakeSynth renders len(text) samples, so order is observable.
	wantLens := []int{3, 4, 7}
	for i, pcm := range player.played {
		if len(pcm) != wantLens[i] {
			t.Errorf("utterance %d has %d samples, want %d (out of order?)", i, len(pcm), wantLens[i])
		}
	}
}

func TestSpeakDoesNotBlockCaller(t *testing.T) {
	player := &recordingPlayer{delay: 100 * time.Millisecond}
	o := NewOutput(nil, resource.NewGuard(nil), fakeSynth{}, player, nil)
	defer o.Shutdown()

	start := time.Now()
	o.Speak("hello there")
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Speak blocked for %v", elapsed)
	}
}

func TestSpeakerLeaseHeldWhileSpeaking(t *testing.T) {
	guard := resource.NewGuard(nil)
	player := &recordingPlayer{delay: 150 * time.Millisecond}
	o := NewOutput(nil, guard, fakeSynth{}, player, nil)
	defer o.Shutdown()

	done := o.Speak("busy")
	time.Sleep(50 * time.Millisecond)

	if _, err := guard.Acquire(resource.Speaker, "other", resource.Exclusive, resource.Hooks{}); err == nil {
		t.Fatal("speaker lease not held during speech")
	}

	<-done
	// Worker releases between bursts; give it a moment.
	time.Sleep(50 * time.Millisecond)
	ex, err := guard.Acquire(resource.Speaker, "other", resource.Exclusive, resource.Hooks{})
	if err != nil {
		t.Fatalf("speaker lease not released after drain: %v", err)
	}
	guard.Release(ex)
}

func TestShutdownDrainsQueue(t *testing.T) {
	player := &recordingPlayer{delay: 10 * time.Millisecond}
	o := NewOutput(nil, resource.NewGuard(nil), fakeSynth{}, player, nil)

	for i := 0; i < 5; i++ {
		o.Speak("x")
	}
	o.Shutdown()

	if got := player.count(); got != 5 {
		t.Errorf("shutdown drained %d of 5 utterances", got)
	}

	// Speaking after shutdown returns an already-closed channel.
	done := o.Speak("late")
	select {
	case <-done:
	default:
		t.Error("post-shutdown Speak did not resolve immediately")
	}
	o.Shutdown() // idempotent
}

func TestChimePlaysPrerenderedPCM(t *testing.T) {
	player := &recordingPlayer{}
	o := NewOutput(nil, resource.NewGuard(nil), fakeSynth{}, player, nil)
	o.SetChime([]float32{0.1, 0.2})

	<-o.Chime()
	o.Shutdown()

	player.mu.Lock()
	defer player.mu.Unlock()
	if len(player.played) != 1 || len(player.played[0]) != 2 {
		t.Fatalf("chime not played as pre-rendered PCM: %v", player.played)
	}
}
