package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds everything the daemon reads from the environment. Each field
// has a VORTEX_* variable; godotenv fills the environment from an env file
// before Load runs.
type Config struct {
	SocketPath string // VORTEX_SOCKET
	UIAddr     string // VORTEX_UI_ADDR, empty disables the feed

	ProfilesDir string // VORTEX_PROFILES_DIR
	CapturesDir string // VORTEX_CAPTURES_DIR, empty disables archiving
	NotesPath   string // VORTEX_NOTES_PATH
	ChimePath   string // VORTEX_CHIME, empty uses the built-in earcon

	WhisperModel string // VORTEX_WHISPER_MODEL
	Language     string // VORTEX_STT_LANG

	OpenAIModel string // VORTEX_OPENAI_MODEL, empty uses the client default
	ProxyAddr   string // VORTEX_PROXY, empty dials directly

	TTSVoice string // VORTEX_TTS_VOICE
	TTSRate  int    // VORTEX_TTS_RATE, words per minute, 0 uses espeak default

	RecordDuration time.Duration // VORTEX_RECORD_DURATION
	WakeThreshold  float64       // VORTEX_WAKE_THRESHOLD, RMS energy

	VoiceThreshold float64 // VORTEX_VOICE_THRESHOLD, cosine similarity
	FaceThreshold  float64 // VORTEX_FACE_THRESHOLD

	CameraDevice  string        // VORTEX_CAMERA_DEV
	DarkThreshold float64       // VORTEX_DARK_THRESHOLD, mean frame brightness
	CameraPoll    time.Duration // VORTEX_CAMERA_POLL

	Greeting string // VORTEX_GREETING
}

func Load() (*Config, error) {
	home, _ := os.UserHomeDir()

	c := &Config{
		SocketPath:     envStr("VORTEX_SOCKET", ""),
		UIAddr:         envStr("VORTEX_UI_ADDR", "127.0.0.1:8765"),
		ProfilesDir:    envStr("VORTEX_PROFILES_DIR", home+"/.vortex/profiles"),
		CapturesDir:    envStr("VORTEX_CAPTURES_DIR", ""),
		NotesPath:      envStr("VORTEX_NOTES_PATH", home+"/.vortex/notes.txt"),
		ChimePath:      envStr("VORTEX_CHIME", ""),
		WhisperModel:   envStr("VORTEX_WHISPER_MODEL", "third_party/whisper.cpp/models/ggml-base.en.bin"),
		Language:       envStr("VORTEX_STT_LANG", "en"),
		OpenAIModel:    envStr("VORTEX_OPENAI_MODEL", ""),
		ProxyAddr:      envStr("VORTEX_PROXY", ""),
		TTSVoice:       envStr("VORTEX_TTS_VOICE", "en"),
		Greeting:       envStr("VORTEX_GREETING", "Vortex online."),
		CameraDevice:   envStr("VORTEX_CAMERA_DEV", "/dev/video0"),
	}

	var err error
	if c.TTSRate, err = envInt("VORTEX_TTS_RATE", 0); err != nil {
		return nil, err
	}
	if c.RecordDuration, err = envDuration("VORTEX_RECORD_DURATION", 3*time.Second); err != nil {
		return nil, err
	}
	if c.CameraPoll, err = envDuration("VORTEX_CAMERA_POLL", 200*time.Millisecond); err != nil {
		return nil, err
	}
	if c.WakeThreshold, err = envFloat("VORTEX_WAKE_THRESHOLD", 0.015); err != nil {
		return nil, err
	}
	if c.VoiceThreshold, err = envFloat("VORTEX_VOICE_THRESHOLD", 0.75); err != nil {
		return nil, err
	}
	if c.FaceThreshold, err = envFloat("VORTEX_FACE_THRESHOLD", 0.8); err != nil {
		return nil, err
	}
	if c.DarkThreshold, err = envFloat("VORTEX_DARK_THRESHOLD", 60); err != nil {
		return nil, err
	}
	return c, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q: %w", key, v, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q: %w", key, v, err)
	}
	return f, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q: %w", key, v, err)
	}
	return d, nil
}
