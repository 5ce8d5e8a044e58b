package identity

import (
	"fmt"
	"math"

	"vortex/internal/camera"
)

// SpectralVoiceEmbedder derives a fixed-size voiceprint from command audio
// without an external model: the recording is split into equal windows and
// each contributes its RMS energy and zero-crossing rate. The contour of
// energy and pitch-proxy over time is speaker-characteristic enough for a
// single-user device; the VoiceEmbedder interface leaves room for a neural
// model later.
type SpectralVoiceEmbedder struct {
	Windows int // default 32
}

func (e SpectralVoiceEmbedder) EmbedVoice(samples []float32) ([]float32, error) {
	windows := e.Windows
	if windows <= 0 {
		windows = 32
	}
	if len(samples) < windows {
		return nil, fmt.Errorf("voice sample too short: %d samples", len(samples))
	}

	per := len(samples) / windows
	out := make([]float32, 0, windows*2)
	for w := 0; w < windows; w++ {
		chunk := samples[w*per : (w+1)*per]

		var sum float64
		crossings := 0
		for i, v := range chunk {
			sum += float64(v) * float64(v)
			if i > 0 && (v >= 0) != (chunk[i-1] >= 0) {
				crossings++
			}
		}
		out = append(out,
			float32(math.Sqrt(sum/float64(len(chunk)))),
			float32(crossings)/float32(len(chunk)))
	}
	return out, nil
}

// TemplateFaceEmbedder turns the frame's center crop into a mean-pooled,
// contrast-normalized grid template. It has no face detector; it assumes the
// subject fills the center of a fixed desk camera. A frame too dark or too
// flat to hold a subject reports ok=false so the verifier keeps sampling.
type TemplateFaceEmbedder struct {
	Grid          int     // cells per side, default 16
	MinBrightness float64 // default 25
	MinContrast   float64 // stddev floor, default 8
}

func (e TemplateFaceEmbedder) EmbedLargestFace(f camera.Frame) ([]float32, bool, error) {
	grid := e.Grid
	if grid <= 0 {
		grid = 16
	}
	minBright := e.MinBrightness
	if minBright <= 0 {
		minBright = 25
	}
	minContrast := e.MinContrast
	if minContrast <= 0 {
		minContrast = 8
	}
	if f.Width < grid || f.Height < grid || len(f.Pix) < f.Width*f.Height {
		return nil, false, fmt.Errorf("frame too small: %dx%d", f.Width, f.Height)
	}

	// Center square crop.
	side := f.Width
	if f.Height < side {
		side = f.Height
	}
	x0 := (f.Width - side) / 2
	y0 := (f.Height - side) / 2

	cell := side / grid
	vec := make([]float32, grid*grid)
	var mean float64
	for gy := 0; gy < grid; gy++ {
		for gx := 0; gx < grid; gx++ {
			var sum int
			for y := 0; y < cell; y++ {
				row := (y0 + gy*cell + y) * f.Width
				for x := 0; x < cell; x++ {
					sum += int(f.Pix[row+x0+gx*cell+x])
				}
			}
			v := float64(sum) / float64(cell*cell)
			vec[gy*grid+gx] = float32(v)
			mean += v
		}
	}
	mean /= float64(len(vec))

	var variance float64
	for _, v := range vec {
		d := float64(v) - mean
		variance += d * d
	}
	stddev := math.Sqrt(variance / float64(len(vec)))

	if mean < minBright || stddev < minContrast {
		return nil, false, nil
	}

	// Zero-mean so global lighting shifts cancel out of the cosine.
	for i := range vec {
		vec[i] -= float32(mean)
	}
	return vec, true, nil
}
