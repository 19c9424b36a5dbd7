package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/smarttransit/booking-core/internal/apperr"
	"github.com/smarttransit/booking-core/internal/models"
)

// Booking references are three letters followed by five alphanumerics.
// I, O, 0 and 1 are left out so a reference can be read over the phone.
const (
	referenceLetters      = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	referenceAlphanumeric = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
	referencePrefixLen    = 3
	referenceSuffixLen    = 5
	maxReferenceAttempts  = 10
)

// ReferenceGenerator produces unique human-readable booking references
type ReferenceGenerator struct {
	random      io.Reader
	maxAttempts int
}

// NewReferenceGenerator creates a generator backed by crypto/rand
func NewReferenceGenerator() *ReferenceGenerator {
	return &ReferenceGenerator{random: rand.Reader, maxAttempts: maxReferenceAttempts}
}

// Generate draws candidates until exists reports a free one
func (g *ReferenceGenerator) Generate(ctx context.Context, exists models.ExistsFunc) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		candidate, err := g.candidate()
		if err != nil {
			return "", apperr.Internal(err, "failed to generate booking reference")
		}

		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", apperr.Internal(nil, "could not find a free booking reference after %d attempts", g.maxAttempts)
}

func (g *ReferenceGenerator) candidate() (string, error) {
	buf := make([]byte, 0, referencePrefixLen+referenceSuffixLen)
	for i := 0; i < referencePrefixLen; i++ {
		c, err := g.pick(referenceLetters)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	for i := 0; i < referenceSuffixLen; i++ {
		c, err := g.pick(referenceAlphanumeric)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	return string(buf), nil
}

func (g *ReferenceGenerator) pick(alphabet string) (byte, error) {
	n, err := rand.Int(g.random, big.NewInt(int64(len(alphabet))))
	if err != nil {
		return 0, fmt.Errorf("failed to read random source: %w", err)
	}
	return alphabet[n.Int64()], nil
}
