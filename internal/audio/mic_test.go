package audio

import (
	"errors"
	"sync"
	"testing"
)

// These run against a closed capture so no audio device is needed; the
// locking they exercise is the same one a live stream uses.

func TestReadFrameAfterCloseReturnsSentinel(t *testing.T) {
	c := &Capture{}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := c.ReadFrame(); !errors.Is(err, ErrCaptureClosed) {
		t.Errorf("ReadFrame after Close = %v, want ErrCaptureClosed", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c := &Capture{}
	if err := c.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestCloseRacingReadFrame(t *testing.T) {
	c := &Capture{}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if _, err := c.ReadFrame(); err != nil && !errors.Is(err, ErrCaptureClosed) {
					t.Errorf("ReadFrame: %v", err)
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Close()
	}()
	wg.Wait()

	if _, err := c.ReadFrame(); !errors.Is(err, ErrCaptureClosed) {
		t.Errorf("ReadFrame after racing Close = %v", err)
	}
}
