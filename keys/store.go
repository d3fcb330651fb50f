package keys

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// KeyStore keeps issuer seeds on the local filesystem.
//
// Layout:
//
//	<dir>/<root>/root.key
//	<dir>/<root>/orgs/<organizationId>.key
//
// Files hold one hex-encoded 32-byte seed and are created with mode 0600.
type KeyStore struct {
	Directory string
}

type KeyEntry struct {
	Root          string
	Organizations []string
}

func DefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".certanchor", "keys"), nil
}

// OpenKeyStore returns a store rooted at directory (DefaultDirectory when empty).
func OpenKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = DefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

func (ks *KeyStore) rootKeyPath(root string) string {
	return filepath.Join(ks.Directory, root, "root.key")
}

func (ks *KeyStore) orgKeyPath(root, orgID string) string {
	return filepath.Join(ks.Directory, root, "orgs", orgID+".key")
}

// CheckKeyName accepts ASCII letters, digits, '-' and '_'.
func CheckKeyName(name string) error {
	if name == "" {
		return errors.New("key name cannot be empty")
	}
	for _, char := range name {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in key name", char)
	}
	return nil
}

func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimPrefix(strings.TrimSpace(seedHex), "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", SeedSize, len(data))
	}
	return data, nil
}

// NewSeed returns a random seed.
func NewSeed() ([]byte, error) {
	seed := make([]byte, SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	return seed, nil
}

func writeSeed(path string, seed []byte, overwrite bool) error {
	if len(seed) != SeedSize {
		return fmt.Errorf("expected seed length of %d bytes", SeedSize)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func readSeed(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(string(data))
}

// InitRoot stores seed as the root seed named root and returns its issuer key under alg.
func (ks *KeyStore) InitRoot(root string, seed []byte, alg string, overwrite bool) (issuerKey, path string, err error) {
	if err := CheckKeyName(root); err != nil {
		return "", "", err
	}
	path = ks.rootKeyPath(root)
	if err := writeSeed(path, seed, overwrite); err != nil {
		return "", "", err
	}
	issuerKey, err = IssuerKeyFromSeed(alg, seed)
	return issuerKey, path, err
}

// DeriveOrg derives and stores the seed for orgID under root.
func (ks *KeyStore) DeriveOrg(root, orgID, alg string, overwrite bool) (issuerKey, path string, err error) {
	if err := CheckKeyName(root); err != nil {
		return "", "", err
	}
	rootSeed, err := readSeed(ks.rootKeyPath(root))
	if err != nil {
		return "", "", err
	}
	seed, err := DeriveOrgSeed(rootSeed, orgID)
	if err != nil {
		return "", "", err
	}
	path = ks.orgKeyPath(root, orgID)
	if err := writeSeed(path, seed, overwrite); err != nil {
		return "", "", err
	}
	issuerKey, err = IssuerKeyFromSeed(alg, seed)
	return issuerKey, path, err
}

// Seed loads the root seed (orgID empty) or an organization seed.
func (ks *KeyStore) Seed(root, orgID string) ([]byte, error) {
	if err := CheckKeyName(root); err != nil {
		return nil, err
	}
	if orgID == "" {
		return readSeed(ks.rootKeyPath(root))
	}
	if err := CheckKeyName(orgID); err != nil {
		return nil, err
	}
	return readSeed(ks.orgKeyPath(root, orgID))
}

// Export returns the issuer key for the root (orgID empty) or an organization.
func (ks *KeyStore) Export(root, orgID, alg string) (string, error) {
	seed, err := ks.Seed(root, orgID)
	if err != nil {
		return "", err
	}
	return IssuerKeyFromSeed(alg, seed)
}

// Signer returns a signer for orgID. When the organization has no stored seed
// it is derived from the root on the fly.
func (ks *KeyStore) Signer(root, orgID, alg, hashAlg string) (*Signer, error) {
	seed, err := ks.Seed(root, orgID)
	if errors.Is(err, os.ErrNotExist) && orgID != "" {
		var rootSeed []byte
		rootSeed, err = ks.Seed(root, "")
		if err == nil {
			seed, err = DeriveOrgSeed(rootSeed, orgID)
		}
	}
	if err != nil {
		return nil, err
	}
	return SignerFromSeed(alg, hashAlg, seed)
}

func (ks *KeyStore) List() ([]KeyEntry, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var roots []string
	for _, e := range entries {
		if e.IsDir() {
			roots = append(roots, e.Name())
		}
	}
	sort.Strings(roots)

	out := make([]KeyEntry, 0, len(roots))
	for _, root := range roots {
		var orgs []string
		if orgEntries, err := os.ReadDir(filepath.Join(ks.Directory, root, "orgs")); err == nil {
			for _, e := range orgEntries {
				if !e.IsDir() && strings.HasSuffix(e.Name(), ".key") {
					orgs = append(orgs, strings.TrimSuffix(e.Name(), ".key"))
				}
			}
			sort.Strings(orgs)
		}
		out = append(out, KeyEntry{Root: root, Organizations: orgs})
	}
	return out, nil
}
