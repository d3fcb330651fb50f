package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
)

const derivationLabel = "certanchor-kms-v1"

// SeedSize is the length of every seed handled by this package.
const SeedSize = ed25519.SeedSize

// DeriveOrgSeed deterministically derives an organization's issuer seed from a root seed.
func DeriveOrgSeed(rootSeed []byte, orgID string) ([]byte, error) {
	if len(rootSeed) != SeedSize {
		return nil, fmt.Errorf("root seed must be %d bytes", SeedSize)
	}
	if err := CheckKeyName(orgID); err != nil {
		return nil, err
	}

	h := sha256.New()
	_, _ = h.Write(rootSeed)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(derivationLabel))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("org:"))
	_, _ = h.Write([]byte(orgID))
	sum := h.Sum(nil)
	return sum[:SeedSize], nil
}
