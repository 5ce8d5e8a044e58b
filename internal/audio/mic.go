package audio

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// ErrCaptureClosed is returned by ReadFrame once Close has run, including a
// Close racing an in-flight read from another goroutine.
var ErrCaptureClosed = errors.New("capture closed")

// Init must be called once before any capture is opened.
func Init() error { return portaudio.Initialize() }

// Terminate releases portaudio. Call on shutdown.
func Terminate() { portaudio.Terminate() }

// Capture is an open mono input stream delivering fixed-size float32 frames.
// The wake listener opens one while its background mic lease is active and
// closes it when paused, so pause/resume genuinely frees the device. Close is
// called from the guard's pause hook while the listener goroutine sits in
// ReadFrame, so both serialize on the mutex.
type Capture struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []float32
}

// OpenCapture opens the default input device at the given rate. frameSize is
// in samples; 320 at 16 kHz is a 20 ms hop.
func OpenCapture(sampleRate, frameSize int) (*Capture, error) {
	buf := make([]float32, frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(buf), buf)
	if err != nil {
		return nil, err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, err
	}
	return &Capture{stream: stream, buf: buf}, nil
}

// ReadFrame blocks for the next frame. The returned slice is reused on the
// next call. Returns ErrCaptureClosed after Close. The lock is held through
// the device read; a concurrent Close waits out at most one frame period.
func (c *Capture) ReadFrame() ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return nil, ErrCaptureClosed
	}
	if err := c.stream.Read(); err != nil {
		return nil, err
	}
	return c.buf, nil
}

// Close stops and closes the stream. Safe to call twice and safe against a
// concurrent ReadFrame.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return nil
	}
	s := c.stream
	c.stream = nil
	if err := s.Stop(); err != nil {
		s.Close()
		return err
	}
	return s.Close()
}

// Recorder records a fixed-duration command phrase from the default mic.
// The caller is expected to hold the exclusive mic lease for the duration.
type Recorder struct {
	SampleRate int
}

// Record captures duration worth of mono samples. The wall clock bounds the
// recording; ctx only aborts on daemon shutdown.
func (r *Recorder) Record(ctx context.Context, duration time.Duration) ([]float32, error) {
	if duration <= 0 {
		return nil, errors.New("non-positive record duration")
	}

	const frameSize = 1024
	buf := make([]float32, frameSize)

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(r.SampleRate), len(buf), buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	want := int(float64(r.SampleRate) * duration.Seconds())
	out := make([]float32, 0, want)

	for len(out) < want {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if err := stream.Read(); err != nil {
			return nil, err
		}
		out = append(out, buf...)
	}
	return out[:want], nil
}

// RMS is the root-mean-square energy of one frame.
func RMS(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var s float64
	for _, x := range frame {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(frame)))
}
