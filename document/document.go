// Package document builds the off-chain metadata document whose CID is
// anchored on chain as a certificate's content hash.
package document

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/certanchor/cert"
	"xdao.co/certanchor/keys"
	"xdao.co/certanchor/storage"
)

// Version is the only document version this package writes and accepts.
const Version = 1

var (
	ErrUnsigned     = errors.New("document: not signed")
	ErrEmpty        = errors.New("document: empty")
	ErrBadVersion   = errors.New("document: unsupported version")
	ErrMissingCode  = errors.New("document: missing code")
	ErrTrailingData = errors.New("document: trailing data")
)

// Document is the certificate metadata stored in CAS.
//
// Field order is fixed by the struct, and AdditionalInfo is re-encoded with
// sorted keys, so Canonical is stable for equal content.
type Document struct {
	Version           int                `json:"version"`
	Code              string             `json:"code"`
	CertificateTypeID string             `json:"certificateTypeId"`
	OrganizationID    string             `json:"organizationId"`
	ValidFrom         *time.Time         `json:"validFrom,omitempty"`
	ValidTo           *time.Time         `json:"validTo,omitempty"`
	Holder            cert.AuthorProfile `json:"holder"`
	Issuer            *Issuer            `json:"issuer,omitempty"`
}

// Issuer carries the organization signature over the canonical document.
type Issuer struct {
	Key          string `json:"key"`
	SignatureAlg string `json:"signatureAlg"`
	HashAlg      string `json:"hashAlg"`
	Signature    string `json:"signature,omitempty"`
}

func FromDraft(d cert.Draft) Document {
	return Document{
		Version:           Version,
		Code:              strings.TrimSpace(d.Code),
		CertificateTypeID: d.CertificateTypeID,
		OrganizationID:    d.OrganizationID,
		ValidFrom:         utc(d.ValidFrom),
		ValidTo:           utc(d.ValidTo),
		Holder:            d.AuthorProfile,
	}
}

func FromCertificate(c cert.Certificate) Document {
	return FromDraft(cert.Draft{
		Code:              c.Code,
		CertificateTypeID: c.CertificateTypeID,
		OrganizationID:    c.OrganizationID,
		ValidFrom:         c.ValidFrom,
		ValidTo:           c.ValidTo,
		AuthorProfile:     c.AuthorProfile,
	})
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

// Canonical returns the signed scope: the document encoded without the signature value.
func (d Document) Canonical() ([]byte, error) {
	if d.Issuer != nil {
		iss := *d.Issuer
		iss.Signature = ""
		d.Issuer = &iss
	}
	return d.encode()
}

// Encode returns the full document bytes, signature included.
func (d Document) Encode() ([]byte, error) {
	return d.encode()
}

func (d Document) encode() ([]byte, error) {
	if d.Version == 0 {
		d.Version = Version
	}
	info, err := sortedJSON(d.Holder.AdditionalInfo)
	if err != nil {
		return nil, fmt.Errorf("document: additionalInfo: %w", err)
	}
	d.Holder.AdditionalInfo = info
	return json.Marshal(d)
}

// sortedJSON re-encodes raw with object keys sorted and numbers preserved.
func sortedJSON(raw json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// Sign sets the issuer block and signs the canonical bytes.
func (d *Document) Sign(s *keys.Signer) error {
	if s == nil {
		return errors.New("document: nil signer")
	}
	d.Issuer = &Issuer{Key: s.IssuerKey(), SignatureAlg: s.Alg(), HashAlg: s.HashAlg()}
	msg, err := d.Canonical()
	if err != nil {
		return err
	}
	sig, err := s.Sign(msg)
	if err != nil {
		return err
	}
	d.Issuer.Signature = sig
	return nil
}

// Verify checks the issuer signature. Unsigned documents return ErrUnsigned.
func (d Document) Verify() error {
	if d.Issuer == nil || d.Issuer.Signature == "" {
		return ErrUnsigned
	}
	alg, _, err := keys.ParseIssuerKey(d.Issuer.Key)
	if err != nil {
		return err
	}
	if alg != d.Issuer.SignatureAlg {
		return fmt.Errorf("document: issuer key alg %q does not match signatureAlg %q", alg, d.Issuer.SignatureAlg)
	}
	msg, err := d.Canonical()
	if err != nil {
		return err
	}
	return keys.Verify(d.Issuer.Key, d.Issuer.HashAlg, msg, d.Issuer.Signature)
}

// Decode parses document bytes fetched from CAS.
func Decode(b []byte) (*Document, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, ErrEmpty
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	var d Document
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("document: %w", err)
	}
	if dec.More() {
		return nil, ErrTrailingData
	}
	if d.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, d.Version)
	}
	if strings.TrimSpace(d.Code) == "" {
		return nil, ErrMissingCode
	}
	return &d, nil
}

// Publish stores the encoded document and returns its CID.
func Publish(ctx context.Context, cas storage.CAS, d Document) (cid.Cid, error) {
	if cas == nil {
		return cid.Undef, errors.New("document: nil CAS")
	}
	b, err := d.Encode()
	if err != nil {
		return cid.Undef, err
	}
	return cas.Put(ctx, b)
}
