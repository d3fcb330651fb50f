// Package compliance selects how strictly public resolution treats document signatures.
package compliance

import "fmt"

// ComplianceMode selects how aggressively the resolver rejects unverifiable content.
//
// Permissive returns any document whose bytes match the anchored CID and reports
// the signature check separately. Strict additionally requires a valid issuer
// signature and fails resolution otherwise.
type ComplianceMode int

const (
	Permissive ComplianceMode = iota
	Strict
)

func (m ComplianceMode) String() string {
	switch m {
	case Strict:
		return "strict"
	default:
		return "permissive"
	}
}

// ParseMode accepts "strict" or "permissive" (empty means permissive).
func ParseMode(s string) (ComplianceMode, error) {
	switch s {
	case "", "permissive":
		return Permissive, nil
	case "strict":
		return Strict, nil
	default:
		return Permissive, fmt.Errorf("invalid compliance mode %q (want permissive|strict)", s)
	}
}
