package resource

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Kind identifies one physical device arbitrated by the Guard.
type Kind int

const (
	Mic Kind = iota
	Speaker
	Camera
)

func (k Kind) String() string {
	switch k {
	case Mic:
		return "mic"
	case Speaker:
		return "speaker"
	case Camera:
		return "camera"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Priority is the lease class. A Background lease is held continuously by a
// low-priority listener and is preempted (paused) whenever an Exclusive lease
// is granted on the same resource.
type Priority int

const (
	Background Priority = iota
	Exclusive
)

var (
	// ErrBusy means the resource already has a holder of the same class.
	// There is no queue; callers retry or abort.
	ErrBusy = errors.New("resource busy")
	// ErrDegraded means a resume hook failed earlier and the resource is
	// unusable until Reset is called.
	ErrDegraded = errors.New("resource degraded")
)

// Hooks let a Background holder react to preemption. Both hooks may be nil.
// Resume returning an error marks the resource degraded.
type Hooks struct {
	Pause  func() error
	Resume func() error
}

// Lease is a token for temporary ownership of a resource. Leases are handed
// out by a Guard and must be returned via Guard.Release.
type Lease struct {
	kind     Kind
	holder   string
	priority Priority
	hooks    Hooks
	released bool
}

func (l *Lease) Kind() Kind         { return l.kind }
func (l *Lease) Holder() string     { return l.holder }
func (l *Lease) Priority() Priority { return l.priority }

type slot struct {
	background *Lease
	bgPaused   bool
	bgHold     bool // skip auto-resume on exclusive release
	exclusive  *Lease
	degraded   bool
}

// Guard arbitrates access to the mic, speaker and camera. At most one
// Exclusive lease per resource exists at any time; a Background lease is
// paused while an Exclusive lease is outstanding and resumed on its release.
type Guard struct {
	mu    sync.Mutex
	log   *slog.Logger
	slots map[Kind]*slot
}

func NewGuard(log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{
		log: log,
		slots: map[Kind]*slot{
			Mic:     {},
			Speaker: {},
			Camera:  {},
		},
	}
}

// Acquire requests a lease. Exclusive requests over a Background holder
// succeed immediately after the holder's Pause hook returns; a failing Pause
// hook fails the acquisition. Exclusive over Exclusive and Background over
// Background return ErrBusy.
func (g *Guard) Acquire(kind Kind, holder string, prio Priority, hooks Hooks) (*Lease, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.slots[kind]
	if s.degraded {
		return nil, fmt.Errorf("%s: %w", kind, ErrDegraded)
	}

	l := &Lease{kind: kind, holder: holder, priority: prio, hooks: hooks}

	switch prio {
	case Background:
		if s.background != nil {
			return nil, fmt.Errorf("%s held by %s: %w", kind, s.background.holder, ErrBusy)
		}
		s.background = l
		// Granted under an outstanding exclusive lease: start paused, the
		// exclusive release will resume it.
		s.bgPaused = s.exclusive != nil
		g.log.Debug("background lease granted", "resource", kind.String(), "holder", holder, "paused", s.bgPaused)
		return l, nil

	case Exclusive:
		if s.exclusive != nil {
			return nil, fmt.Errorf("%s held by %s: %w", kind, s.exclusive.holder, ErrBusy)
		}
		if s.background != nil && !s.bgPaused {
			if h := s.background.hooks.Pause; h != nil {
				if err := h(); err != nil {
					return nil, fmt.Errorf("pause %s holder %s: %w", kind, s.background.holder, err)
				}
			}
			s.bgPaused = true
		}
		s.exclusive = l
		g.log.Debug("exclusive lease granted", "resource", kind.String(), "holder", holder)
		return l, nil
	}
	return nil, fmt.Errorf("unknown priority %d", prio)
}

// Release returns a lease. Releasing twice is a no-op. Releasing an Exclusive
// lease resumes a paused Background holder unless the holder is held open; a
// failing Resume hook marks the resource degraded.
func (g *Guard) Release(l *Lease) {
	if l == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if l.released {
		return
	}
	l.released = true

	s := g.slots[l.kind]
	switch l.priority {
	case Background:
		if s.background == l {
			s.background = nil
			s.bgPaused = false
			s.bgHold = false
		}
	case Exclusive:
		if s.exclusive == l {
			s.exclusive = nil
			g.resumeBackgroundLocked(s, l.kind)
		}
	}
	g.log.Debug("lease released", "resource", l.kind.String(), "holder", l.holder)
}

func (g *Guard) resumeBackgroundLocked(s *slot, kind Kind) {
	if s.background == nil || !s.bgPaused || s.bgHold {
		return
	}
	if h := s.background.hooks.Resume; h != nil {
		if err := h(); err != nil {
			s.degraded = true
			g.log.Error("resume failed, resource degraded", "resource", kind.String(), "holder", s.background.holder, "err", err)
			return
		}
	}
	s.bgPaused = false
}

// Pause explicitly pauses a Background lease, invoking its Pause hook.
func (g *Guard) Pause(l *Lease) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.slots[l.kind]
	if l.released || s.background != l || s.bgPaused {
		return nil
	}
	if h := l.hooks.Pause; h != nil {
		if err := h(); err != nil {
			return fmt.Errorf("pause %s holder %s: %w", l.kind, l.holder, err)
		}
	}
	s.bgPaused = true
	return nil
}

// Resume explicitly resumes a paused Background lease. It refuses while an
// Exclusive lease is outstanding. A failing Resume hook degrades the resource.
func (g *Guard) Resume(l *Lease) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.slots[l.kind]
	if l.released || s.background != l || !s.bgPaused {
		return nil
	}
	if s.exclusive != nil {
		return fmt.Errorf("%s: %w", l.kind, ErrBusy)
	}
	if h := l.hooks.Resume; h != nil {
		if err := h(); err != nil {
			s.degraded = true
			return fmt.Errorf("resume %s holder %s: %w", l.kind, l.holder, err)
		}
	}
	s.bgPaused = false
	s.bgHold = false
	return nil
}

// Hold marks a Background lease so the guard's auto-resume on exclusive
// release leaves it paused. The orchestrator uses this to keep the wake
// listener quiet for a whole pipeline cycle.
func (g *Guard) Hold(l *Lease) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.slots[l.kind]
	if !l.released && s.background == l {
		s.bgHold = true
	}
}

// Unhold clears the hold flag and resumes the lease if nothing exclusive is
// outstanding.
func (g *Guard) Unhold(l *Lease) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.slots[l.kind]
	if l.released || s.background != l {
		return
	}
	s.bgHold = false
	if s.exclusive == nil {
		g.resumeBackgroundLocked(s, l.kind)
	}
}

// Degraded reports whether the resource failed a resume and awaits Reset.
func (g *Guard) Degraded(kind Kind) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.slots[kind].degraded
}

// Reset clears the degraded flag after manual intervention.
func (g *Guard) Reset(kind Kind) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.slots[kind].degraded = false
	g.log.Info("resource reset", "resource", kind.String())
}
