package hardware

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/hackportal/hackportal-backend/pkg/config"
)

// DefaultTokenBytes is the entropy of a reservation token before hex encoding.
const DefaultTokenBytes = 32

// TokenGenerator mints the bearer tokens that identify reservations.
type TokenGenerator interface {
	Generate() (string, error)
}

type randomTokenGenerator struct {
	size int
}

// NewTokenGenerator returns a crypto/rand backed generator producing size
// random bytes per token. Sizes below config.MinTokenBytes are raised to it.
func NewTokenGenerator(size int) TokenGenerator {
	if size <= 0 {
		size = DefaultTokenBytes
	}
	if size < config.MinTokenBytes {
		size = config.MinTokenBytes
	}
	return randomTokenGenerator{size: size}
}

func (g randomTokenGenerator) Generate() (string, error) {
	buf := make([]byte, g.size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
