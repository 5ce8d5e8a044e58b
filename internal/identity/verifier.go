package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"vortex/internal/camera"
	"vortex/internal/resource"
)

// VoiceEmbedder is the voice embedding model contract.
type VoiceEmbedder interface {
	EmbedVoice(samples []float32) ([]float32, error)
}

// FaceEmbedder extracts the embedding of the largest face in a frame.
// ok=false means no face was found, which is a normal outcome for an
// individual frame, not an error.
type FaceEmbedder interface {
	EmbedLargestFace(f camera.Frame) (vec []float32, ok bool, err error)
}

// Result is one verification attempt's outcome. Never persisted.
type Result struct {
	Modality   Modality
	Similarity float32
	Matched    bool
}

// Config tunes thresholds and the face capture loop.
type Config struct {
	VoiceThreshold float32
	FaceThreshold  float32
	MaxAttempts    int
	AttemptGap     time.Duration
}

func (c *Config) withDefaults() {
	if c.VoiceThreshold <= 0 {
		c.VoiceThreshold = 0.75
	}
	if c.FaceThreshold <= 0 {
		c.FaceThreshold = 0.8
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.AttemptGap <= 0 {
		c.AttemptGap = 100 * time.Millisecond
	}
}

// Verifier compares live samples against enrolled profiles. It is stateless
// between calls; the face path borrows the camera exclusively for the
// duration of one verification.
type Verifier struct {
	log     *slog.Logger
	guard   *resource.Guard
	openCam camera.OpenDevice
	voice   VoiceEmbedder
	face    FaceEmbedder
	cfg     Config
}

func NewVerifier(log *slog.Logger, guard *resource.Guard, openCam camera.OpenDevice, voice VoiceEmbedder, face FaceEmbedder, cfg Config) *Verifier {
	if log == nil {
		log = slog.Default()
	}
	cfg.withDefaults()
	return &Verifier{log: log, guard: guard, openCam: openCam, voice: voice, face: face, cfg: cfg}
}

// VerifyVoice embeds the recorded command audio and scores it against the
// enrolled voiceprint.
func (v *Verifier) VerifyVoice(samples []float32, p *Profile) (Result, error) {
	res := Result{Modality: Voice}
	if p == nil {
		return res, fmt.Errorf("no voice profile")
	}

	emb, err := v.voice.EmbedVoice(samples)
	if err != nil {
		return res, fmt.Errorf("voice embedding: %w", err)
	}
	res.Similarity = Cosine(Normalize(emb), p.Vector)
	res.Matched = res.Similarity >= v.cfg.VoiceThreshold
	v.log.Info("voice verification", "similarity", res.Similarity, "matched", res.Matched)
	return res, nil
}

// VerifyFace takes the camera exclusively (pausing the monitor), samples up
// to MaxAttempts frames and keeps the best similarity seen, returning early
// on the first match. The lease is released on every exit path so the
// monitor always resumes.
func (v *Verifier) VerifyFace(ctx context.Context, p *Profile) (Result, error) {
	res := Result{Modality: Face, Similarity: -1}
	if p == nil {
		return res, fmt.Errorf("no face profile")
	}

	lease, err := v.guard.Acquire(resource.Camera, "face-verifier", resource.Exclusive, resource.Hooks{})
	if err != nil {
		return res, fmt.Errorf("camera lease: %w", err)
	}
	defer v.guard.Release(lease)

	dev, err := v.openCam()
	if err != nil {
		return res, fmt.Errorf("open camera: %w", err)
	}
	defer dev.Close()

	var lastErr error
	sawEmbedding := false
	for attempt := 0; attempt < v.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		frame, err := dev.ReadFrame()
		if err != nil {
			lastErr = err
			continue
		}
		emb, ok, err := v.face.EmbedLargestFace(frame)
		if err != nil {
			lastErr = err
			continue
		}
		if !ok {
			// No face in this frame; try the next one.
			time.Sleep(v.cfg.AttemptGap)
			continue
		}

		sawEmbedding = true
		sim := Cosine(Normalize(emb), p.Vector)
		if sim > res.Similarity {
			res.Similarity = sim
		}
		v.log.Debug("face attempt", "attempt", attempt+1, "similarity", sim)
		if sim >= v.cfg.FaceThreshold {
			res.Matched = true
			break
		}
	}

	if !sawEmbedding && lastErr != nil {
		return res, fmt.Errorf("face verification: %w", lastErr)
	}
	v.log.Info("face verification", "similarity", res.Similarity, "matched", res.Matched)
	return res, nil
}
