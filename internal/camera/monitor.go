package camera

import (
	"log/slog"
	"sync"
	"time"

	"vortex/internal/resource"
)

// Device is the camera contract. ReadFrame blocks for the next frame;
// implementations decide the actual cadence ceiling.
type Device interface {
	ReadFrame() (Frame, error)
	Close() error
}

// OpenDevice opens a fresh device handle. Called on start and on resume
// after the face verifier returns the camera.
type OpenDevice func() (Device, error)

type EventKind int

const (
	Blocked EventKind = iota
	Restored
)

func (k EventKind) String() string {
	if k == Blocked {
		return "blocked"
	}
	return "restored"
}

// Event is one obstruction transition. Unavailable marks a fail-safe block
// declared after repeated read failures rather than a genuinely dark feed.
type Event struct {
	Kind        EventKind
	Unavailable bool
	At          time.Time
}

// Config tunes the obstruction state machine.
type Config struct {
	DarkThreshold float64       // mean brightness below this is a dark frame
	DarkFrames    int           // consecutive dark frames before Blocked
	MaxFailures   int           // consecutive read failures before fail-safe Blocked
	Interval      time.Duration // sampling cadence
}

func (c *Config) withDefaults() {
	if c.DarkThreshold <= 0 {
		c.DarkThreshold = 60
	}
	if c.DarkFrames <= 0 {
		c.DarkFrames = 5
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 10
	}
	if c.Interval <= 0 {
		c.Interval = 200 * time.Millisecond
	}
}

// Monitor watches the camera feed for tampering. Blocked trips only after
// DarkFrames consecutive dark frames; Restored fires on the first clear
// frame. Slow to trip, fast to recover.
//
// The monitor holds a Background camera lease; the face verifier's
// exclusive acquisition pauses it through the lease hooks and releasing
// resumes it.
type Monitor struct {
	log   *slog.Logger
	guard *resource.Guard
	open  OpenDevice
	cfg   Config

	mu      sync.Mutex
	running bool
	paused  bool
	dev     Device
	lease   *resource.Lease
	resume  chan struct{}
	done    chan struct{}

	blocked   bool
	darkCount int
	failCount int

	events chan Event
}

func NewMonitor(log *slog.Logger, guard *resource.Guard, open OpenDevice, cfg Config) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	cfg.withDefaults()
	return &Monitor{
		log:    log,
		guard:  guard,
		open:   open,
		cfg:    cfg,
		events: make(chan Event, 4),
	}
}

func (m *Monitor) Events() <-chan Event { return m.events }

// Blocked reports the current obstruction state.
func (m *Monitor) Blocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blocked
}

// Paused reports whether the lease is currently preempted.
func (m *Monitor) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Start acquires the background camera lease and begins sampling.
func (m *Monitor) Start() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}

	lease, err := m.guard.Acquire(resource.Camera, "camera-monitor", resource.Background, resource.Hooks{
		Pause:  m.pauseHook,
		Resume: m.resumeHook,
	})
	if err != nil {
		m.mu.Unlock()
		return err
	}

	dev, err := m.open()
	if err != nil {
		m.mu.Unlock()
		m.guard.Release(lease)
		return err
	}

	m.lease = lease
	m.dev = dev
	m.running = true
	m.paused = false
	m.blocked = false
	m.darkCount = 0
	m.failCount = 0
	m.resume = make(chan struct{}, 1)
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.run()
	m.log.Info("camera monitor started")
	return nil
}

// Stop halts sampling and releases the lease. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	if m.dev != nil {
		m.dev.Close()
		m.dev = nil
	}
	lease := m.lease
	m.lease = nil
	close(m.done)
	m.mu.Unlock()

	m.guard.Release(lease)
	m.log.Info("camera monitor stopped")
}

func (m *Monitor) pauseHook() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running || m.paused {
		return nil
	}
	m.paused = true
	if m.dev != nil {
		m.dev.Close()
		m.dev = nil
	}
	m.log.Debug("camera monitor paused")
	return nil
}

func (m *Monitor) resumeHook() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running || !m.paused {
		return nil
	}
	dev, err := m.open()
	if err != nil {
		return err
	}
	m.dev = dev
	m.paused = false
	// A pause gap breaks the consecutive-frame counts.
	m.darkCount = 0
	m.failCount = 0
	select {
	case m.resume <- struct{}{}:
	default:
	}
	m.log.Debug("camera monitor resumed")
	return nil
}

func (m *Monitor) run() {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		m.mu.Lock()
		running, paused := m.running, m.paused
		dev := m.dev
		resume, done := m.resume, m.done
		m.mu.Unlock()

		if !running {
			return
		}
		if paused {
			select {
			case <-resume:
			case <-done:
				return
			}
			continue
		}

		frame, err := dev.ReadFrame()
		m.observe(frame, err)

		select {
		case <-ticker.C:
		case <-done:
			return
		}
	}
}

// observe advances the obstruction state machine by one sample.
func (m *Monitor) observe(frame Frame, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused || !m.running {
		return
	}

	if err != nil {
		m.failCount++
		if m.failCount >= m.cfg.MaxFailures && !m.blocked {
			// Fail safe: an unreadable camera is treated as covered, but the
			// log tells operators this is a device problem, not a dark feed.
			m.log.Error("camera unreadable, treating as blocked", "failures", m.failCount, "err", err)
			m.blocked = true
			m.send(Event{Kind: Blocked, Unavailable: true, At: time.Now()})
		}
		return
	}
	m.failCount = 0

	if frame.Brightness() < m.cfg.DarkThreshold {
		m.darkCount++
	} else {
		m.darkCount = 0
	}

	if m.darkCount >= m.cfg.DarkFrames && !m.blocked {
		m.blocked = true
		m.log.Warn("camera appears covered", "darkFrames", m.darkCount)
		m.send(Event{Kind: Blocked, At: time.Now()})
	}
	if m.darkCount == 0 && m.blocked {
		m.blocked = false
		m.log.Info("camera feed restored")
		m.send(Event{Kind: Restored, At: time.Now()})
	}
}

func (m *Monitor) send(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.log.Warn("camera event dropped, consumer lagging", "kind", ev.Kind.String())
	}
}
