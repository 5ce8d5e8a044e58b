package identity

import (
	"math"
	"testing"

	"vortex/internal/camera"
)

func sine(freq float64, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/16000))
	}
	return out
}

func TestVoiceEmbeddingIsStable(t *testing.T) {
	e := SpectralVoiceEmbedder{}
	a, err := e.EmbedVoice(sine(220, 48000))
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.EmbedVoice(sine(220, 48000))
	if err != nil {
		t.Fatal(err)
	}
	if sim := Cosine(Normalize(a), Normalize(b)); sim < 0.999 {
		t.Errorf("same signal similarity = %v", sim)
	}
}

func TestVoiceEmbeddingSeparatesSignals(t *testing.T) {
	e := SpectralVoiceEmbedder{}
	low, _ := e.EmbedVoice(sine(120, 48000))
	high, _ := e.EmbedVoice(sine(2000, 48000))
	same, _ := e.EmbedVoice(sine(120, 48000))

	simDiff := Cosine(Normalize(low), Normalize(high))
	simSame := Cosine(Normalize(low), Normalize(same))
	if simSame <= simDiff {
		t.Errorf("same=%v should exceed different=%v", simSame, simDiff)
	}
}

func TestVoiceEmbeddingRejectsShortSample(t *testing.T) {
	if _, err := (SpectralVoiceEmbedder{}).EmbedVoice(make([]float32, 10)); err == nil {
		t.Fatal("expected error for short sample")
	}
}

func gradientFrame(w, h int) camera.Frame {
	pix := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pix[y*w+x] = uint8((x*200/w + y*200/h) / 2)
		}
	}
	return camera.Frame{Pix: pix, Width: w, Height: h}
}

func flatFrame(w, h int, v uint8) camera.Frame {
	pix := make([]uint8, w*h)
	for i := range pix {
		pix[i] = v
	}
	return camera.Frame{Pix: pix, Width: w, Height: h}
}

func TestFaceEmbedderMatchesItself(t *testing.T) {
	e := TemplateFaceEmbedder{}
	f := gradientFrame(160, 120)

	a, ok, err := e.EmbedLargestFace(f)
	if err != nil || !ok {
		t.Fatalf("embed: ok=%v err=%v", ok, err)
	}
	b, ok, _ := e.EmbedLargestFace(f)
	if !ok {
		t.Fatal("second embed found nothing")
	}
	if sim := Cosine(Normalize(a), Normalize(b)); sim < 0.999 {
		t.Errorf("self similarity = %v", sim)
	}
}

func TestFaceEmbedderSkipsDarkAndFlatFrames(t *testing.T) {
	e := TemplateFaceEmbedder{}

	if _, ok, err := e.EmbedLargestFace(flatFrame(160, 120, 5)); ok || err != nil {
		t.Errorf("dark frame: ok=%v err=%v", ok, err)
	}
	if _, ok, err := e.EmbedLargestFace(flatFrame(160, 120, 128)); ok || err != nil {
		t.Errorf("flat frame: ok=%v err=%v", ok, err)
	}
}

func TestFaceEmbedderLightingInvariance(t *testing.T) {
	e := TemplateFaceEmbedder{}
	f := gradientFrame(160, 120)

	brighter := camera.Frame{Pix: make([]uint8, len(f.Pix)), Width: f.Width, Height: f.Height}
	for i, v := range f.Pix {
		b := int(v) + 40
		if b > 255 {
			b = 255
		}
		brighter.Pix[i] = uint8(b)
	}

	a, _, _ := e.EmbedLargestFace(f)
	b, ok, _ := e.EmbedLargestFace(brighter)
	if !ok {
		t.Fatal("brighter frame found nothing")
	}
	if sim := Cosine(Normalize(a), Normalize(b)); sim < 0.98 {
		t.Errorf("lighting shift similarity = %v", sim)
	}
}
