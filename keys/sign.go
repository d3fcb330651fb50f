package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"
)

// DefaultHashAlg is used when a signer is created without an explicit hash.
const DefaultHashAlg = "sha256"

var ErrSignatureInvalid = errors.New("keys: signature invalid")

func digestFor(hashAlg string, message []byte) ([]byte, error) {
	switch hashAlg {
	case "sha256":
		s := sha256.Sum256(message)
		return s[:], nil
	case "sha512":
		s := sha512.Sum512(message)
		return s[:], nil
	case "sha3-256":
		s := sha3.Sum256(message)
		return s[:], nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %q", hashAlg)
	}
}

// Signer signs document bytes as one organization issuer.
type Signer struct {
	alg       string
	hashAlg   string
	issuerKey string

	ed  ed25519.PrivateKey
	dil *mode3.PrivateKey
}

// SignerFromSeed builds a signer for alg (ed25519 or dilithium3) from a 32-byte seed.
// An empty hashAlg selects DefaultHashAlg.
func SignerFromSeed(alg, hashAlg string, seed []byte) (*Signer, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	if hashAlg == "" {
		hashAlg = DefaultHashAlg
	}
	if _, err := digestFor(hashAlg, nil); err != nil {
		return nil, err
	}

	s := &Signer{alg: alg, hashAlg: hashAlg}
	switch alg {
	case AlgEd25519, "":
		s.alg = AlgEd25519
		s.ed = ed25519.NewKeyFromSeed(seed)
		key, err := IssuerKeyFromPublicKey(s.ed.Public().(ed25519.PublicKey))
		if err != nil {
			return nil, err
		}
		s.issuerKey = key
	case AlgDilithium3:
		var ds [mode3.SeedSize]byte
		copy(ds[:], seed)
		pk, sk := mode3.NewKeyFromSeed(&ds)
		s.dil = sk
		s.issuerKey = AlgDilithium3 + ":" + base64.StdEncoding.EncodeToString(pk.Bytes())
	default:
		return nil, fmt.Errorf("unsupported signature algorithm %q", alg)
	}
	return s, nil
}

func (s *Signer) Alg() string       { return s.alg }
func (s *Signer) HashAlg() string   { return s.hashAlg }
func (s *Signer) IssuerKey() string { return s.issuerKey }

// Sign returns a base64 signature over hash(message).
func (s *Signer) Sign(message []byte) (string, error) {
	switch s.alg {
	case AlgEd25519:
		digest, err := digestFor(s.hashAlg, message)
		if err != nil {
			return "", err
		}
		return base64.StdEncoding.EncodeToString(ed25519.Sign(s.ed, digest)), nil
	case AlgDilithium3:
		return SignDilithium3(message, s.hashAlg, s.dil)
	default:
		return "", fmt.Errorf("unsupported signature algorithm %q", s.alg)
	}
}

// SignEd25519SHA256 returns a base64 signature over sha256(message).
func SignEd25519SHA256(message []byte, privateKey ed25519.PrivateKey) string {
	digest := sha256.Sum256(message)
	return base64.StdEncoding.EncodeToString(ed25519.Sign(privateKey, digest[:]))
}

// SignDilithium3 returns a base64 dilithium3 signature over hash(message).
func SignDilithium3(message []byte, hashAlg string, privateKey *mode3.PrivateKey) (string, error) {
	if privateKey == nil {
		return "", fmt.Errorf("missing private key")
	}
	digest, err := digestFor(hashAlg, message)
	if err != nil {
		return "", err
	}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(privateKey, digest, sig)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// GenerateDilithium3Keypair returns a new Dilithium3 keypair.
func GenerateDilithium3Keypair(rand io.Reader) (*mode3.PublicKey, *mode3.PrivateKey, error) {
	return mode3.GenerateKey(rand)
}

// Verify checks a base64 signature made by issuerKey over hash(message).
func Verify(issuerKey, hashAlg string, message []byte, sigB64 string) error {
	alg, pub, err := ParseIssuerKey(issuerKey)
	if err != nil {
		return err
	}
	if hashAlg == "" {
		hashAlg = DefaultHashAlg
	}
	digest, err := digestFor(hashAlg, message)
	if err != nil {
		return err
	}
	sig, err := decodeBase64(sigB64)
	if err != nil {
		return fmt.Errorf("invalid signature base64: %w", err)
	}

	switch alg {
	case AlgEd25519:
		if len(sig) != ed25519.SignatureSize || !ed25519.Verify(ed25519.PublicKey(pub), digest, sig) {
			return ErrSignatureInvalid
		}
	case AlgDilithium3:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return fmt.Errorf("invalid dilithium3 public key: %w", err)
		}
		if len(sig) != mode3.SignatureSize || !mode3.Verify(&pk, digest, sig) {
			return ErrSignatureInvalid
		}
	}
	return nil
}
