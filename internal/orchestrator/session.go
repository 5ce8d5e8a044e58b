package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"vortex/internal/identity"
)

// Session is one wake-to-response cycle. Exactly one exists at a time;
// wake events arriving while a session is active are dropped, never queued.
type Session struct {
	ID        string
	StartedAt time.Time
	Stage     Stage

	Buffer     []float32
	Voice      *identity.Result
	Face       *identity.Result
	Transcript string
}

func newSession() *Session {
	return &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Stage:     Awake,
	}
}
