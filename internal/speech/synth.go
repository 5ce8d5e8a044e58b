package speech

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"vortex/pkg/audioconv"
)

// Espeak renders text with the espeak-ng CLI, reading the wav it writes to
// stdout. One process per utterance keeps the daemon free of audio-engine
// state between calls.
type Espeak struct {
	Voice string // e.g. "en-us"
	Rate  int    // words per minute, espeak default when 0
}

func NewEspeak(voice string, rate int) *Espeak {
	if voice == "" {
		voice = "en-us"
	}
	return &Espeak{Voice: voice, Rate: rate}
}

func (e *Espeak) Synthesize(ctx context.Context, text string) ([]float32, error) {
	args := []string{"-v", e.Voice, "--stdout"}
	if e.Rate > 0 {
		args = append(args, "-s", strconv.Itoa(e.Rate))
	}
	args = append(args, text)

	var out, errBuf bytes.Buffer
	cmd := exec.CommandContext(ctx, "espeak-ng", args...)
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("espeak-ng: %w (%s)", err, bytes.TrimSpace(errBuf.Bytes()))
	}

	pcm, err := audioconv.DecodeWAVBytes(out.Bytes(), audioconv.Options{})
	if err != nil {
		return nil, fmt.Errorf("decode synthesized wav: %w", err)
	}
	return pcm, nil
}
