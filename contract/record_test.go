package contract

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const flatABI = `[
  {"type":"function","name":"submitCertificate","inputs":[
    {"name":"a","type":"string"},{"name":"b","type":"string"},{"name":"c","type":"string"},{"name":"d","type":"string"},
    {"name":"e","type":"string"},{"name":"f","type":"uint256"},{"name":"g","type":"uint256"},{"name":"h","type":"string"}],"outputs":[]},
  {"type":"function","name":"getCertificate","stateMutability":"view","inputs":[{"name":"code","type":"string"}],"outputs":[
    {"name":"","type":"string"},{"name":"","type":"string"},{"name":"","type":"string"},{"name":"","type":"string"},
    {"name":"","type":"string"},{"name":"","type":"uint256"},{"name":"","type":"uint256"},{"name":"","type":"string"}]}
]`

const namedABI = `[
  {"type":"function","name":"submitCertificate","inputs":[
    {"name":"a","type":"string"},{"name":"b","type":"string"},{"name":"c","type":"string"},{"name":"d","type":"string"},
    {"name":"e","type":"string"},{"name":"f","type":"uint256"},{"name":"g","type":"uint256"},{"name":"h","type":"string"}],"outputs":[]},
  {"type":"function","name":"getCertificate","stateMutability":"view","inputs":[{"name":"code","type":"string"}],"outputs":[
    {"name":"contentHash","type":"string"},{"name":"code","type":"string"},{"name":"issuedAt","type":"uint256"}]}
]`

func recordValues() []any {
	return []any{"CERT-1", "org-1", "type-1", "0792", "VN", big.NewInt(2), big.NewInt(1900000000), " bafkreihash "}
}

func TestUnpackGet_Tuple(t *testing.T) {
	b := Default()
	out := b.ABI().Methods[MethodGet].Outputs
	type tuple struct {
		Code              string
		OrganizationId    string
		CertificateTypeId string
		HolderIdCard      string
		HolderCountryCode string
		GrantLevel        *big.Int
		Expiry            *big.Int
		CertificateHash   string
	}
	data, err := out.Pack(tuple{"CERT-1", "org-1", "type-1", "0792", "VN", big.NewInt(2), big.NewInt(1900000000), "bafkreihash"})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	rec, err := b.UnpackGet(data)
	if err != nil {
		t.Fatalf("UnpackGet: %v", err)
	}
	if rec.CertificateHash != "bafkreihash" || rec.Code != "CERT-1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestUnpackGet_FlatUnnamedUsesIndex(t *testing.T) {
	b, err := Parse(strings.NewReader(flatABI))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	data, err := b.ABI().Methods[MethodGet].Outputs.Pack(recordValues()...)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	rec, err := b.UnpackGet(data)
	if err != nil {
		t.Fatalf("UnpackGet: %v", err)
	}
	if rec.CertificateHash != "bafkreihash" {
		t.Fatalf("hash = %q", rec.CertificateHash)
	}
	if rec.Values["#5"].(*big.Int).Int64() != 2 {
		t.Fatalf("values not keyed by index: %v", rec.Values)
	}
}

func TestNormalize_NamedFlatPrefersName(t *testing.T) {
	b, err := Parse(strings.NewReader(namedABI))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	outputs := b.ABI().Methods[MethodGet].Outputs
	rec, err := Normalize([]any{"bafyname", "CERT-2", big.NewInt(1)}, outputs)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.CertificateHash != "bafyname" || rec.Code != "CERT-2" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestNormalize_Errors(t *testing.T) {
	str, _ := abi.NewType("string", "", nil)
	short := abi.Arguments{{Type: str}, {Type: str}}
	if _, err := Normalize([]any{"a", "b"}, short); err != ErrNoHash {
		t.Fatalf("short unnamed output: got %v want ErrNoHash", err)
	}
	if _, err := Normalize([]any{"a"}, short); err == nil {
		t.Fatalf("value/output count mismatch accepted")
	}
}

func TestPackSubmit(t *testing.T) {
	b := Default()
	data, err := b.PackSubmit(SubmitArgs{
		Code: "CERT-1", OrganizationID: "org-1", CertificateTypeID: "type-1",
		HolderIDCard: "0792", HolderCountryCode: "VN",
		GrantLevel: big.NewInt(2), Expiry: big.NewInt(1900000000), CertificateHash: "bafk",
	})
	if err != nil {
		t.Fatalf("PackSubmit: %v", err)
	}
	id := b.ABI().Methods[MethodSubmit].ID
	if string(data[:4]) != string(id) {
		t.Fatalf("selector mismatch")
	}
	if _, err := b.PackSubmit(SubmitArgs{Code: "x"}); err == nil {
		t.Fatalf("nil integers accepted")
	}
}

func TestParseRequiresMethods(t *testing.T) {
	if _, err := Parse(strings.NewReader(`[]`)); err == nil {
		t.Fatalf("empty abi accepted")
	}
}

func TestRecordEmpty(t *testing.T) {
	b, err := Parse(strings.NewReader(flatABI))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	outputs := b.ABI().Methods[MethodGet].Outputs
	zero, err := Normalize([]any{"", "", "", "", "", new(big.Int), new(big.Int), ""}, outputs)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !zero.Empty() {
		t.Fatalf("zero record not empty: %+v", zero.Values)
	}
	stored, err := Normalize(recordValues(), outputs)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if stored.Empty() {
		t.Fatalf("stored record reported empty")
	}
	noCode := []any{"", "", "", "", "", new(big.Int), big.NewInt(1900000000), ""}
	if r, _ := Normalize(noCode, outputs); r.Empty() {
		t.Fatalf("record with an expiry reported empty")
	}
}
