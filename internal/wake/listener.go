package wake

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"vortex/internal/audio"
	"vortex/internal/resource"
)

// Detector is the wake-word engine contract: one boolean per frame window.
// Reset is called when listening restarts after a pause so stale state does
// not carry a half-detected phrase across the gap.
type Detector interface {
	Detect(frame []float32) bool
	Reset()
}

// Source delivers mic frames while the listener is active. The listener
// opens one per active stretch and closes it on pause/stop, so the device
// is genuinely free while an exclusive recording runs.
type Source interface {
	ReadFrame() ([]float32, error)
	Close() error
}

// OpenSource opens a fresh frame source. Returning an error from a resume
// path marks the mic degraded via the resource guard.
type OpenSource func() (Source, error)

// Event signals that the wake phrase was detected.
type Event struct {
	At time.Time
}

type State int

const (
	Stopped State = iota
	Active
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Active:
		return "active"
	case Paused:
		return "paused"
	}
	return "unknown"
}

// Listener is the always-on wake phrase worker. It holds a Background mic
// lease while active; the resource guard pauses it whenever the recorder
// takes the mic exclusively.
type Listener struct {
	log   *slog.Logger
	guard *resource.Guard
	open  OpenSource
	det   Detector

	mu     sync.Mutex
	state  State
	src    Source
	lease  *resource.Lease
	resume chan struct{}

	events chan Event
	done   chan struct{}
}

func NewListener(log *slog.Logger, guard *resource.Guard, open OpenSource, det Detector) *Listener {
	if log == nil {
		log = slog.Default()
	}
	return &Listener{
		log:    log,
		guard:  guard,
		open:   open,
		det:    det,
		events: make(chan Event, 1),
	}
}

// Events is the wake event channel. Capacity one; detections while an event
// is already pending are dropped, matching the one-session-at-a-time rule.
func (l *Listener) Events() <-chan Event { return l.events }

// Lease exposes the background mic lease so the orchestrator can hold it
// open across a whole pipeline cycle.
func (l *Listener) Lease() *resource.Lease {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lease
}

func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start acquires the background mic lease and begins the detection loop.
// Starting a started listener is a no-op.
func (l *Listener) Start() error {
	l.mu.Lock()
	if l.state != Stopped {
		l.mu.Unlock()
		return nil
	}

	lease, err := l.guard.Acquire(resource.Mic, "wake-listener", resource.Background, resource.Hooks{
		Pause:  l.pauseHook,
		Resume: l.resumeHook,
	})
	if err != nil {
		l.mu.Unlock()
		return err
	}

	src, err := l.open()
	if err != nil {
		l.mu.Unlock()
		l.guard.Release(lease)
		return err
	}

	l.lease = lease
	l.src = src
	l.state = Active
	l.resume = make(chan struct{}, 1)
	l.done = make(chan struct{})
	l.det.Reset()
	l.mu.Unlock()

	go l.run()
	l.log.Info("wake listener started")
	return nil
}

// Stop halts the loop and releases the mic lease. Idempotent.
func (l *Listener) Stop() {
	l.mu.Lock()
	if l.state == Stopped {
		l.mu.Unlock()
		return
	}
	l.state = Stopped
	if l.src != nil {
		l.src.Close()
		l.src = nil
	}
	lease := l.lease
	l.lease = nil
	close(l.done)
	l.mu.Unlock()

	l.guard.Release(lease)
	l.log.Info("wake listener stopped")
}

// pauseHook runs under the guard lock: no guard calls from here.
func (l *Listener) pauseHook() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Active {
		return nil
	}
	l.state = Paused
	if l.src != nil {
		l.src.Close()
		l.src = nil
	}
	l.log.Debug("wake listener paused")
	return nil
}

func (l *Listener) resumeHook() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Paused {
		return nil
	}
	src, err := l.open()
	if err != nil {
		return err
	}
	l.src = src
	l.state = Active
	l.det.Reset()
	select {
	case l.resume <- struct{}{}:
	default:
	}
	l.log.Debug("wake listener resumed")
	return nil
}

func (l *Listener) run() {
	for {
		l.mu.Lock()
		state := l.state
		src := l.src
		resume := l.resume
		done := l.done
		l.mu.Unlock()

		switch state {
		case Stopped:
			return

		case Paused:
			select {
			case <-resume:
			case <-done:
				return
			}

		case Active:
			frame, err := src.ReadFrame()
			if err != nil {
				// Pause/stop close the source under us; anything else is a
				// real device error worth logging once per transition.
				if l.State() == Active && !errors.Is(err, ErrSourceClosed) {
					l.log.Warn("wake frame read failed", "err", err)
					time.Sleep(100 * time.Millisecond)
				}
				continue
			}
			if l.det.Detect(frame) {
				l.emit()
			}
		}
	}
}

// ErrSourceClosed is returned by sources whose Close raced a ReadFrame. The
// portaudio capture reports exactly this condition.
var ErrSourceClosed = audio.ErrCaptureClosed

// emit re-checks the state under the lock: a detection that raced a pause
// must not surface.
func (l *Listener) emit() {
	l.mu.Lock()
	active := l.state == Active
	l.mu.Unlock()
	if !active {
		return
	}
	select {
	case l.events <- Event{At: time.Now()}:
		l.log.Info("wake phrase detected")
	default:
		// A wake event is already pending; drop, never queue.
	}
}
