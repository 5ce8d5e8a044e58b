package speech

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vortex/internal/audio"
	"vortex/internal/resource"
)

// Synthesizer converts text to mono 16 kHz PCM.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]float32, error)
}

// Player plays PCM to completion before returning.
type Player interface {
	Play(pcm []float32) error
}

type utterance struct {
	text string
	pcm  []float32 // pre-rendered audio (earcon); text is empty then
	done chan struct{}
}

// Output is the speech queue: one worker drains utterances in FIFO order,
// speaking each to completion. Speak never blocks the caller. While the
// queue drains, the worker holds the exclusive speaker lease and ducks
// other PulseAudio streams.
type Output struct {
	log    *slog.Logger
	guard  *resource.Guard
	synth  Synthesizer
	player Player
	ducker *audio.Ducker // optional
	chime  []float32

	mu     sync.Mutex
	closed bool

	queue      chan utterance
	workerDone chan struct{}
}

func NewOutput(log *slog.Logger, guard *resource.Guard, synth Synthesizer, player Player, ducker *audio.Ducker) *Output {
	if log == nil {
		log = slog.Default()
	}
	o := &Output{
		log:        log,
		guard:      guard,
		synth:      synth,
		player:     player,
		ducker:     ducker,
		queue:      make(chan utterance, 32),
		workerDone: make(chan struct{}),
	}
	go o.worker()
	return o
}

// SetChime installs the pre-decoded earcon played by Chime.
func (o *Output) SetChime(pcm []float32) { o.chime = pcm }

// Speak enqueues an utterance. The returned channel closes when it has been
// spoken (or discarded on shutdown); callers may ignore it.
func (o *Output) Speak(text string) <-chan struct{} {
	return o.enqueue(utterance{text: text, done: make(chan struct{})})
}

// Chime enqueues the listening earcon, serialized with speech so the two
// never fight over the device.
func (o *Output) Chime() <-chan struct{} {
	if len(o.chime) == 0 {
		done := make(chan struct{})
		close(done)
		return done
	}
	return o.enqueue(utterance{pcm: o.chime, done: make(chan struct{})})
}

func (o *Output) enqueue(u utterance) <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		close(u.done)
		return u.done
	}
	select {
	case o.queue <- u:
	default:
		o.log.Warn("speech queue full, dropping utterance", "text", u.text)
		close(u.done)
	}
	return u.done
}

// Shutdown stops accepting utterances, lets the worker drain what is
// queued, and waits briefly for in-flight speech to finish.
func (o *Output) Shutdown() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.queue)
	o.mu.Unlock()

	select {
	case <-o.workerDone:
	case <-time.After(5 * time.Second):
		o.log.Warn("speech worker did not drain in time")
	}
}

func (o *Output) worker() {
	defer close(o.workerDone)

	var lease *resource.Lease
	stopSpeaking := func() {
		if lease != nil {
			o.guard.Release(lease)
			lease = nil
		}
		if o.ducker != nil {
			if err := o.ducker.Unduck(context.Background(), 200*time.Millisecond); err != nil {
				o.log.Warn("unduck failed", "err", err)
			}
		}
	}
	defer stopSpeaking()

	for u := range o.queue {
		if lease == nil {
			l, err := o.guard.Acquire(resource.Speaker, "speech-output", resource.Exclusive, resource.Hooks{})
			if err != nil {
				// Speaker busy or degraded: drop the utterance, the pipeline
				// must not stall on announcement failures.
				o.log.Error("speaker lease unavailable", "err", err)
				close(u.done)
				continue
			}
			lease = l
			if o.ducker != nil {
				if err := o.ducker.Duck(context.Background(), 0.3, 200*time.Millisecond); err != nil {
					o.log.Warn("duck failed", "err", err)
				}
			}
		}

		o.speakOne(u)
		close(u.done)

		// Release the speaker between bursts, not between queued items.
		if len(o.queue) == 0 {
			stopSpeaking()
		}
	}
}

func (o *Output) speakOne(u utterance) {
	pcm := u.pcm
	if pcm == nil {
		if u.text == "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		out, err := o.synth.Synthesize(ctx, u.text)
		cancel()
		if err != nil {
			o.log.Error("synthesis failed", "text", u.text, "err", err)
			return
		}
		pcm = out
	}
	if err := o.player.Play(pcm); err != nil {
		o.log.Error("playback failed", "err", err)
	}
}
