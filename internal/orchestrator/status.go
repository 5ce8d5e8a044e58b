package orchestrator

import "sync"

// statusBox is the only orchestrator state readable off the event loop.
// The loop writes through the setters; Status() readers never block on
// pipeline work.
type statusBox struct {
	mu   sync.Mutex
	snap Status
}

func (b *statusBox) get() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap
}

func (b *statusBox) setStage(st Stage) {
	b.mu.Lock()
	b.snap.Stage = st.String()
	b.mu.Unlock()
}

func (b *statusBox) setSecurity(s SecurityState) {
	b.mu.Lock()
	b.snap.Security = s
	b.mu.Unlock()
}

func (b *statusBox) setCameraBlocked(v bool) {
	b.mu.Lock()
	b.snap.CameraBlocked = v
	b.mu.Unlock()
}

func (b *statusBox) setSession(id string) {
	b.mu.Lock()
	b.snap.SessionID = id
	b.mu.Unlock()
}
