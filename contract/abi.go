// Package contract binds the certificate registry contract: its ABI, the
// submitCertificate argument packing and the getCertificate record shape.
package contract

import (
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	MethodSubmit = "submitCertificate"
	MethodGet    = "getCertificate"
)

// DefaultABI declares getCertificate with a single tuple output. Deployments
// whose contract returns a flat list are supported by supplying their ABI.
const DefaultABI = `[
  {
    "type": "function",
    "name": "submitCertificate",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "code", "type": "string"},
      {"name": "organizationId", "type": "string"},
      {"name": "certificateTypeId", "type": "string"},
      {"name": "holderIdCard", "type": "string"},
      {"name": "holderCountryCode", "type": "string"},
      {"name": "grantLevel", "type": "uint256"},
      {"name": "expiry", "type": "uint256"},
      {"name": "certificateHash", "type": "string"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "getCertificate",
    "stateMutability": "view",
    "inputs": [{"name": "code", "type": "string"}],
    "outputs": [
      {
        "name": "",
        "type": "tuple",
        "components": [
          {"name": "code", "type": "string"},
          {"name": "organizationId", "type": "string"},
          {"name": "certificateTypeId", "type": "string"},
          {"name": "holderIdCard", "type": "string"},
          {"name": "holderCountryCode", "type": "string"},
          {"name": "grantLevel", "type": "uint256"},
          {"name": "expiry", "type": "uint256"},
          {"name": "certificateHash", "type": "string"}
        ]
      }
    ]
  }
]`

// Binding wraps a parsed contract ABI.
type Binding struct {
	abi abi.ABI
}

// SubmitArgs are the positional arguments of submitCertificate.
type SubmitArgs struct {
	Code              string
	OrganizationID    string
	CertificateTypeID string
	HolderIDCard      string
	HolderCountryCode string
	GrantLevel        *big.Int
	Expiry            *big.Int
	CertificateHash   string
}

// Default returns the binding for DefaultABI.
func Default() *Binding {
	b, err := Parse(strings.NewReader(DefaultABI))
	if err != nil {
		panic(err)
	}
	return b
}

// Load parses the ABI JSON at path, or returns Default when path is empty.
func Load(path string) (*Binding, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads an ABI JSON document and checks both methods are declared.
func Parse(r io.Reader) (*Binding, error) {
	parsed, err := abi.JSON(r)
	if err != nil {
		return nil, fmt.Errorf("contract: parse abi: %w", err)
	}
	for _, name := range []string{MethodSubmit, MethodGet} {
		if _, ok := parsed.Methods[name]; !ok {
			return nil, fmt.Errorf("contract: abi has no %s method", name)
		}
	}
	if n := len(parsed.Methods[MethodSubmit].Inputs); n != 8 {
		return nil, fmt.Errorf("contract: %s takes %d inputs, want 8", MethodSubmit, n)
	}
	return &Binding{abi: parsed}, nil
}

// ABI returns the parsed ABI.
func (b *Binding) ABI() abi.ABI { return b.abi }

func (b *Binding) PackSubmit(a SubmitArgs) ([]byte, error) {
	if a.GrantLevel == nil || a.Expiry == nil {
		return nil, fmt.Errorf("contract: grantLevel and expiry are required")
	}
	return b.abi.Pack(MethodSubmit,
		a.Code,
		a.OrganizationID,
		a.CertificateTypeID,
		a.HolderIDCard,
		a.HolderCountryCode,
		a.GrantLevel,
		a.Expiry,
		a.CertificateHash,
	)
}

func (b *Binding) PackGet(code string) ([]byte, error) {
	return b.abi.Pack(MethodGet, code)
}

// UnpackGet decodes getCertificate return data into a Record.
func (b *Binding) UnpackGet(data []byte) (Record, error) {
	values, err := b.abi.Unpack(MethodGet, data)
	if err != nil {
		return Record{}, err
	}
	return Normalize(values, b.abi.Methods[MethodGet].Outputs)
}
