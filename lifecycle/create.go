package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"xdao.co/certanchor/cert"
	"xdao.co/certanchor/document"
	"xdao.co/certanchor/events"
	"xdao.co/certanchor/keys"
)

// SignerSource returns the issuer signer of an organization.
type SignerSource interface {
	Signer(orgID string) (*keys.Signer, error)
}

// KeyStoreSigners serves organization signers from a local key store, deriving
// organization keys from Root when they were never exported.
type KeyStoreSigners struct {
	Keys    *keys.KeyStore
	Root    string
	Alg     string
	HashAlg string
}

func (k KeyStoreSigners) Signer(orgID string) (*keys.Signer, error) {
	return k.Keys.Signer(k.Root, orgID, k.Alg, k.HashAlg)
}

// Create validates drafts, publishes one metadata document per draft and
// stores the records. A single draft uses the create endpoint, several use
// batch import. Missing fields across all drafts are reported together before
// anything is written.
func (o *Orchestrator) Create(ctx context.Context, actor cert.Actor, drafts []cert.Draft) ([]cert.Certificate, error) {
	if len(drafts) == 0 {
		return nil, cert.NewError(cert.KindGeneric, "no certificates to create")
	}
	if o.cas == nil {
		return nil, cert.NewError(cert.KindGeneric, "content store is not configured")
	}

	prepared := make([]cert.Draft, len(drafts))
	var missing []string
	for i, d := range drafts {
		d.Code = strings.TrimSpace(d.Code)
		if d.OrganizationID == "" {
			d.OrganizationID = actor.OrganizationID
		}
		missing = append(missing, prefixed(len(drafts), i, draftMissing(d))...)
		prepared[i] = d
	}
	if err := cert.MissingFields(missing...); err != nil {
		return nil, err
	}

	for i, d := range prepared {
		if d.OrganizationID != actor.OrganizationID || actor.ID == "" {
			return nil, cert.NewError(cert.KindInvalidTransition,
				fmt.Sprintf("actor %q cannot create certificates for organization %q", actor.ID, d.OrganizationID))
		}
		if seen := indexOfCode(prepared[:i], d.Code); seen >= 0 {
			return nil, cert.NewError(cert.KindGeneric, fmt.Sprintf("duplicate code %q in request", d.Code))
		}
	}

	types := map[string]cert.CertificateType{}
	for i := range prepared {
		d := &prepared[i]
		t, ok := types[d.CertificateTypeID]
		if !ok {
			var err error
			t, err = o.store.CertificateType(ctx, d.CertificateTypeID)
			if err != nil {
				return nil, err
			}
			types[d.CertificateTypeID] = t
		}
		if !t.Active {
			return nil, cert.NewError(cert.KindGeneric, fmt.Sprintf("certificate type %q is not active", t.ID))
		}
		if t.RequiresAdditionalInfo() && !d.AuthorProfile.HasAdditionalInfo() {
			missing = append(missing, prefixed(len(drafts), i, []string{"authorProfile.additionalInfo"})...)
		}
		if d.ValidTo == nil {
			from := time.Now().UTC()
			if d.ValidFrom != nil {
				from = *d.ValidFrom
			}
			d.ValidTo = t.DefaultValidTo(from)
		}
	}
	if err := cert.MissingFields(missing...); err != nil {
		return nil, err
	}

	in := make([]cert.NewCertificate, len(prepared))
	for i, d := range prepared {
		hash, err := o.publishDocument(ctx, d)
		if err != nil {
			return nil, err
		}
		in[i] = cert.NewCertificate{Draft: d, IssuerID: actor.ID, CertificateHash: hash}
	}

	var out []cert.Certificate
	if len(in) == 1 {
		c, err := o.store.Create(ctx, in[0])
		if err != nil {
			return nil, err
		}
		out = []cert.Certificate{c}
	} else {
		var err error
		if out, err = o.store.Import(ctx, in); err != nil {
			return nil, err
		}
	}
	o.log.Info("certificates created", zap.Int("count", len(out)), zap.String("actor", actor.ID))
	for _, c := range out {
		o.publish(ctx, events.New(events.TypeCreated, c, actor.ID))
	}
	return out, nil
}

func (o *Orchestrator) publishDocument(ctx context.Context, d cert.Draft) (string, error) {
	doc := document.FromDraft(d)
	if o.signers != nil {
		s, err := o.signers.Signer(d.OrganizationID)
		if err != nil {
			return "", cert.WrapError(cert.KindGeneric, "load issuer key for "+d.OrganizationID, err)
		}
		if err := doc.Sign(s); err != nil {
			return "", cert.WrapError(cert.KindGeneric, "sign document", err)
		}
	}
	id, err := document.Publish(ctx, o.cas, doc)
	if err != nil {
		return "", cert.WrapError(cert.KindGeneric, "publish document", err)
	}
	o.log.Debug("document published", zap.String("code", d.Code), zap.String("cid", id.String()))
	return id.String(), nil
}

func draftMissing(d cert.Draft) []string {
	var missing []string
	add := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	add("code", d.Code)
	add("organizationId", d.OrganizationID)
	add("certificateTypeId", d.CertificateTypeID)
	add("authorProfile.name", d.AuthorProfile.Name)
	add("authorProfile.idCard", d.AuthorProfile.IDCard)
	add("authorProfile.countryCode", d.AuthorProfile.CountryCode)
	if _, ok := d.AuthorProfile.GrantLevelValue(); !ok {
		missing = append(missing, "authorProfile.grantLevel")
	}
	return missing
}

// prefixed qualifies field names with the draft index in batch requests.
func prefixed(n, i int, fields []string) []string {
	if n == 1 {
		return fields
	}
	out := make([]string, len(fields))
	for j, f := range fields {
		out[j] = fmt.Sprintf("certificates[%d].%s", i, f)
	}
	return out
}

func indexOfCode(ds []cert.Draft, code string) int {
	for i, d := range ds {
		if d.Code == code {
			return i
		}
	}
	return -1
}
