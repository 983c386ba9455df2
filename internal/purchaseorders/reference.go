package purchaseorders

import (
	"context"
	"fmt"

	nanoid "github.com/jaevor/go-nanoid"
)

// referenceAlphabet omits characters that are easy to misread over the phone.
const referenceAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	referenceLength   = 8
	referencePrefix   = "PO-"
	referenceAttempts = 5
)

// ReferenceGenerator produces human-readable supplier references.
type ReferenceGenerator func() string

// NewReferenceGenerator returns a generator of PO-XXXXXXXX references.
func NewReferenceGenerator() (ReferenceGenerator, error) {
	gen, err := nanoid.CustomASCII(referenceAlphabet, referenceLength)
	if err != nil {
		return nil, fmt.Errorf("build reference generator: %w", err)
	}
	return func() string {
		return referencePrefix + gen()
	}, nil
}

func (s *service) uniqueReference(ctx context.Context, repo Repository) (string, error) {
	for i := 0; i < referenceAttempts; i++ {
		candidate := s.references()
		exists, err := repo.ReferenceExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique supplier reference after %d attempts", referenceAttempts)
}
