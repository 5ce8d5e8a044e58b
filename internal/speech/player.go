package speech

import (
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"

	"vortex/pkg/audioconv"
)

// BeepPlayer plays mono 16 kHz PCM through the default output device via
// the beep speaker. Init happens on first use.
type BeepPlayer struct {
	once    sync.Once
	initErr error
}

func (p *BeepPlayer) Play(pcm []float32) error {
	p.once.Do(func() {
		sr := beep.SampleRate(audioconv.SampleRate)
		p.initErr = speaker.Init(sr, sr.N(time.Second/10))
	})
	if p.initErr != nil {
		return p.initErr
	}
	if len(pcm) == 0 {
		return nil
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(&pcmStreamer{data: pcm}, beep.Callback(func() {
		close(done)
	})))
	<-done
	return nil
}

// pcmStreamer adapts a mono float32 buffer to a beep stereo streamer.
type pcmStreamer struct {
	data []float32
	pos  int
}

func (s *pcmStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.pos >= len(s.data) {
		return 0, false
	}
	n := 0
	for i := range samples {
		if s.pos >= len(s.data) {
			break
		}
		v := float64(s.data[s.pos])
		samples[i][0] = v
		samples[i][1] = v
		s.pos++
		n++
	}
	return n, true
}

func (s *pcmStreamer) Err() error { return nil }
