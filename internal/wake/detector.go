package wake

import "vortex/internal/audio"

// EnergyDetector is the built-in wake trigger: sustained voice energy above
// a threshold. It stands in for a phrase-level engine behind the same
// Detector contract. A refractory window suppresses retriggering off the
// tail of the same utterance.
type EnergyDetector struct {
	Threshold   float64 // RMS level counted as voice
	HotFrames   int     // consecutive hot frames required to trigger
	CoolFrames  int     // frames to ignore after a trigger
	hot, cooled int
}

func NewEnergyDetector(threshold float64, hotFrames int) *EnergyDetector {
	if threshold <= 0 {
		threshold = 0.015
	}
	if hotFrames <= 0 {
		hotFrames = 3
	}
	return &EnergyDetector{
		Threshold:  threshold,
		HotFrames:  hotFrames,
		CoolFrames: 50, // ~1s of 20ms frames
	}
}

func (d *EnergyDetector) Detect(frame []float32) bool {
	if d.cooled > 0 {
		d.cooled--
		return false
	}
	if audio.RMS(frame) >= d.Threshold {
		d.hot++
		if d.hot >= d.HotFrames {
			d.hot = 0
			d.cooled = d.CoolFrames
			return true
		}
	} else {
		d.hot = 0
	}
	return false
}

func (d *EnergyDetector) Reset() {
	d.hot = 0
	d.cooled = 0
}
