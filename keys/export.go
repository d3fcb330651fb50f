package keys

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

const (
	AlgEd25519    = "ed25519"
	AlgDilithium3 = "dilithium3"
)

// IssuerKeyFromPublicKey encodes an Ed25519 public key into an issuer-key string.
func IssuerKeyFromPublicKey(pub ed25519.PublicKey) (string, error) {
	if l := len(pub); l != ed25519.PublicKeySize {
		return "", fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, l)
	}
	return AlgEd25519 + ":" + base64.StdEncoding.EncodeToString(pub), nil
}

// IssuerKeyFromSeed returns the issuer key for seed under alg.
func IssuerKeyFromSeed(alg string, seed []byte) (string, error) {
	s, err := SignerFromSeed(alg, "", seed)
	if err != nil {
		return "", err
	}
	return s.IssuerKey(), nil
}

// ParseIssuerKey splits an issuer key into its algorithm and raw public key bytes.
func ParseIssuerKey(issuerKey string) (alg string, pub []byte, err error) {
	alg, enc, ok := strings.Cut(strings.TrimSpace(issuerKey), ":")
	if !ok || enc == "" {
		return "", nil, fmt.Errorf("invalid issuer key encoding")
	}
	pub, err = decodeBase64(enc)
	if err != nil {
		return "", nil, fmt.Errorf("invalid issuer key base64: %w", err)
	}
	switch alg {
	case AlgEd25519:
		if len(pub) != ed25519.PublicKeySize {
			return "", nil, fmt.Errorf("invalid ed25519 public key length")
		}
	case AlgDilithium3:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return "", nil, fmt.Errorf("invalid dilithium3 public key: %w", err)
		}
	default:
		return "", nil, fmt.Errorf("unsupported issuer key algorithm %q", alg)
	}
	return alg, pub, nil
}

func decodeBase64(s string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
