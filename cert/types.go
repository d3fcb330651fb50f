// Package cert defines the certificate record, its lifecycle transition table and
// the error taxonomy shared by every component.
//
// The JSON shape matches the record store's REST representation (camelCase).
package cert

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

type Status string

const (
	StatusCreated  Status = "CREATED"
	StatusSigned   Status = "SIGNED"
	StatusVerified Status = "VERIFIED"
	StatusRevoked  Status = "REVOKED"
)

// Valid reports whether s is one of the four lifecycle statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusSigned, StatusVerified, StatusRevoked:
		return true
	}
	return false
}

type Certificate struct {
	ID                string        `json:"id"`
	Code              string        `json:"code"`
	Status            Status        `json:"status"`
	CertificateTypeID string        `json:"certificateTypeId"`
	OrganizationID    string        `json:"organizationId"`
	IssuerID          string        `json:"issuerId"`
	ValidFrom         *time.Time    `json:"validFrom,omitempty"`
	ValidTo           *time.Time    `json:"validTo,omitempty"`
	CertificateHash   string        `json:"certificateHash,omitempty"`
	SignedTxHash      string        `json:"signedTxHash,omitempty"`
	ApprovedTxHash    string        `json:"approvedTxHash,omitempty"`
	RevokedTxHash     string        `json:"revokedTxHash,omitempty"`
	RevokedReason     string        `json:"revokedReason,omitempty"`
	AuthorProfile     AuthorProfile `json:"authorProfile"`
	CreatedAt         *time.Time    `json:"createdAt,omitempty"`
	ApprovedAt        *time.Time    `json:"approvedAt,omitempty"`
	RevokedAt         *time.Time    `json:"revokedAt,omitempty"`
}

// AuthorProfile holds the certificate holder's attributes.
//
// GrantLevel is a JSON number so that non-integral or out-of-range values coming
// from the record store can be detected instead of failing the whole decode.
type AuthorProfile struct {
	Name           string          `json:"name"`
	IDCard         string          `json:"idCard"`
	CountryCode    string          `json:"countryCode"`
	GrantLevel     *float64        `json:"grantLevel,omitempty"`
	AdditionalInfo json.RawMessage `json:"additionalInfo,omitempty"`
}

// GrantLevelValue returns the grant level when it is a finite integer >= 0.
func (p AuthorProfile) GrantLevelValue() (uint64, bool) {
	if p.GrantLevel == nil {
		return 0, false
	}
	v := *p.GrantLevel
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v != math.Trunc(v) || v > math.MaxInt64 {
		return 0, false
	}
	return uint64(v), true
}

// HasAdditionalInfo reports whether additionalInfo carries a non-empty JSON value.
func (p AuthorProfile) HasAdditionalInfo() bool {
	s := strings.TrimSpace(string(p.AdditionalInfo))
	switch s {
	case "", "null", "{}", "[]", `""`:
		return false
	}
	return true
}

type TemplateKind string

const (
	TemplateStandard  TemplateKind = "STANDARD"
	TemplateDegree    TemplateKind = "DEGREE"
	TemplateTestScore TemplateKind = "TEST_SCORE"
)

type CertificateType struct {
	ID           string       `json:"id"`
	Code         string       `json:"code"`
	Name         string       `json:"name"`
	Active       bool         `json:"active"`
	ExpiryMonths int          `json:"expiryMonths,omitempty"`
	TemplateKind TemplateKind `json:"templateKind,omitempty"`
}

// RequiresAdditionalInfo reports whether certificates of this type need
// template-specific fields in AuthorProfile.AdditionalInfo.
func (t CertificateType) RequiresAdditionalInfo() bool {
	switch t.TemplateKind {
	case TemplateDegree, TemplateTestScore:
		return true
	default:
		return false
	}
}

// DefaultValidTo returns from+ExpiryMonths, or nil when the type does not expire.
func (t CertificateType) DefaultValidTo(from time.Time) *time.Time {
	if t.ExpiryMonths <= 0 {
		return nil
	}
	v := from.AddDate(0, t.ExpiryMonths, 0)
	return &v
}

type Organization struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Name    string `json:"name"`
	IsOwner bool   `json:"isOwner"`
}

// Actor is the authenticated user requesting a transition.
type Actor struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organizationId"`
	IsOwner        bool   `json:"isOwner"`
}

// OwnsOrganization reports whether the actor holds the owner relationship for orgID.
func (a Actor) OwnsOrganization(orgID string) bool {
	return a.IsOwner && orgID != "" && a.OrganizationID == orgID
}

// Draft is the input for creating a certificate record.
type Draft struct {
	Code              string        `json:"code"`
	CertificateTypeID string        `json:"certificateTypeId"`
	OrganizationID    string        `json:"organizationId"`
	ValidFrom         *time.Time    `json:"validFrom,omitempty"`
	ValidTo           *time.Time    `json:"validTo,omitempty"`
	AuthorProfile     AuthorProfile `json:"authorProfile"`
}

// NewCertificate is what the record store receives on create.
type NewCertificate struct {
	Draft
	IssuerID        string `json:"issuerId"`
	CertificateHash string `json:"certificateHash"`
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	Status       *Status `json:"status,omitempty"`
	SignedTxHash *string `json:"signedTxHash,omitempty"`
}
