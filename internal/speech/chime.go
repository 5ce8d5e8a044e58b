package speech

import (
	"math"

	"vortex/pkg/audioconv"
)

// LoadChime decodes an earcon asset into pipeline PCM.
func LoadChime(path string) ([]float32, error) {
	return audioconv.DecodeFile(path, audioconv.Options{MaxSamples: audioconv.SampleRate * 2})
}

// GenerateChime renders the built-in two-tone listening earcon, used when no
// asset file is configured.
func GenerateChime() []float32 {
	const (
		toneDur = 0.12 // seconds per tone
		fadeDur = 0.015
	)
	tones := []float64{880, 1174.66} // A5 then D6

	perTone := int(toneDur * audioconv.SampleRate)
	fade := int(fadeDur * audioconv.SampleRate)
	out := make([]float32, 0, perTone*len(tones))

	for _, freq := range tones {
		step := 2 * math.Pi * freq / audioconv.SampleRate
		for i := 0; i < perTone; i++ {
			v := 0.4 * math.Sin(step*float64(i))
			// Short linear fades keep the tone edges from clicking.
			if i < fade {
				v *= float64(i) / float64(fade)
			}
			if rem := perTone - i; rem < fade {
				v *= float64(rem) / float64(fade)
			}
			out = append(out, float32(v))
		}
	}
	return out
}
