package identity

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"

	"github.com/spf13/afero"
)

// Modality names one biometric channel.
type Modality string

const (
	Voice Modality = "voice"
	Face  Modality = "face"
)

func (m Modality) filename() string {
	if m == Face {
		return "faceprint.vec"
	}
	return "voiceprint.vec"
}

// Profile is an owner's enrolled reference embedding for one modality.
// Vectors are L2-normalized on save and on load, so cosine similarity
// reduces to a dot product.
type Profile struct {
	Modality Modality
	Vector   []float32
}

// Store persists profiles as little-endian float32 vector files, one per
// modality. A missing file means "not enrolled" and is not an error; a fresh
// install runs with zero biometrics and the pipeline skips those checks.
type Store struct {
	fs  afero.Fs
	dir string
}

func NewStore(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, dir: dir}
}

// Load reads a profile. Returns (nil, nil) when the modality is not
// enrolled.
func (s *Store) Load(m Modality) (*Profile, error) {
	path := s.path(m)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s profile: %w", m, err)
	}
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("%s profile %s: corrupt length %d", m, path, len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return &Profile{Modality: m, Vector: Normalize(vec)}, nil
}

// Save normalizes and persists a profile vector.
func (s *Store) Save(m Modality, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty %s embedding", m)
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	vec = Normalize(vec)
	data := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	return afero.WriteFile(s.fs, s.path(m), data, 0o600)
}

// Enroll averages normalized sample embeddings into one reference vector,
// renormalizes and saves it.
func (s *Store) Enroll(m Modality, samples [][]float32) error {
	if len(samples) == 0 {
		return fmt.Errorf("no %s samples to enroll", m)
	}
	dim := len(samples[0])
	mean := make([]float32, dim)
	for _, sample := range samples {
		if len(sample) != dim {
			return fmt.Errorf("inconsistent %s embedding dims: %d vs %d", m, len(sample), dim)
		}
		n := Normalize(sample)
		for i, v := range n {
			mean[i] += v
		}
	}
	inv := 1 / float32(len(samples))
	for i := range mean {
		mean[i] *= inv
	}
	return s.Save(m, mean)
}

func (s *Store) path(m Modality) string {
	return s.dir + "/" + m.filename()
}

// Normalize returns an L2-normalized copy. The epsilon keeps a zero vector
// from dividing by zero.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum) + 1e-9
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Cosine is the dot product of two normalized vectors, in [-1, 1].
func Cosine(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}
