package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// StaticProvider derives a deterministic pseudo-embedding from the text
// itself. No model, no network: the same text always yields the same
// unit vector, which is all local development and tests need.
type StaticProvider struct {
	dimensions int
}

// NewStaticProvider creates a provider with the given vector width.
func NewStaticProvider(dimensions int) *StaticProvider {
	if dimensions <= 0 {
		dimensions = 64
	}
	return &StaticProvider{dimensions: dimensions}
}

// Embed implements Provider.
func (p *StaticProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, p.dimensions)
	seed := sha256.Sum256([]byte(text))
	buf := seed[:]
	for i := range vec {
		if len(buf) < 8 {
			next := sha256.Sum256(buf)
			buf = next[:]
		}
		bits := binary.BigEndian.Uint64(buf[:8])
		buf = buf[8:]
		// Map to [-1, 1).
		vec[i] = float32(int64(bits>>11))/float32(1<<52) - 1
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum > 0 {
		inv := float32(1.0 / math.Sqrt(sum))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// Dimensions implements Provider.
func (p *StaticProvider) Dimensions() int { return p.dimensions }

// ModelName implements Provider.
func (p *StaticProvider) ModelName() string { return "static" }
