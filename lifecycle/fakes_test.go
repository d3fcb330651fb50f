package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"xdao.co/certanchor/cert"
	"xdao.co/certanchor/recordstore"
)

// memStore is an in-memory recordstore.Store that counts every call.
type memStore struct {
	mu        sync.Mutex
	certs     map[string]cert.Certificate
	types     map[string]cert.CertificateType
	calls     []string
	updateErr error
	nextID    int
	// tamper edits the record a transition returns, after it is stored.
	tamper func(*cert.Certificate)
}

var _ recordstore.Store = (*memStore)(nil)

func newMemStore(cs ...cert.Certificate) *memStore {
	s := &memStore{certs: map[string]cert.Certificate{}, types: map[string]cert.CertificateType{}}
	for _, c := range cs {
		s.certs[c.ID] = c
	}
	return s
}

func (s *memStore) record(name string) {
	s.calls = append(s.calls, name)
}

func (s *memStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *memStore) create(in cert.NewCertificate) cert.Certificate {
	s.nextID++
	c := cert.Certificate{
		ID:                fmt.Sprintf("c-%d", s.nextID),
		Code:              in.Code,
		Status:            cert.StatusCreated,
		CertificateTypeID: in.CertificateTypeID,
		OrganizationID:    in.OrganizationID,
		IssuerID:          in.IssuerID,
		ValidFrom:         in.ValidFrom,
		ValidTo:           in.ValidTo,
		CertificateHash:   in.CertificateHash,
		AuthorProfile:     in.AuthorProfile,
	}
	s.certs[c.ID] = c
	return c
}

func (s *memStore) Create(_ context.Context, in cert.NewCertificate) (cert.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("create")
	return s.create(in), nil
}

func (s *memStore) Import(_ context.Context, in []cert.NewCertificate) ([]cert.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("import")
	out := make([]cert.Certificate, len(in))
	for i := range in {
		out[i] = s.create(in[i])
	}
	return out, nil
}

func (s *memStore) Get(_ context.Context, id string) (cert.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("get")
	c, ok := s.certs[id]
	if !ok {
		return cert.Certificate{}, cert.NewError(cert.KindNotFound, "no such certificate")
	}
	return c, nil
}

func (s *memStore) move(id string, from cert.Status, f func(*cert.Certificate)) (cert.Certificate, error) {
	c, ok := s.certs[id]
	if !ok {
		return cert.Certificate{}, cert.NewError(cert.KindNotFound, "no such certificate")
	}
	if c.Status != from {
		return cert.Certificate{}, cert.NewError(cert.KindInvalidTransition, "status changed")
	}
	f(&c)
	s.certs[id] = c
	if s.tamper != nil {
		s.tamper(&c)
	}
	return c, nil
}

func (s *memStore) Update(_ context.Context, id string, p cert.Patch) (cert.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("update")
	if s.updateErr != nil {
		return cert.Certificate{}, s.updateErr
	}
	return s.move(id, cert.StatusCreated, func(c *cert.Certificate) {
		if p.Status != nil {
			c.Status = *p.Status
		}
		if p.SignedTxHash != nil && c.SignedTxHash == "" {
			c.SignedTxHash = *p.SignedTxHash
		}
	})
}

func (s *memStore) Approve(_ context.Context, id string) (cert.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("approve")
	return s.move(id, cert.StatusSigned, func(c *cert.Certificate) {
		c.Status = cert.StatusVerified
		c.ApprovedTxHash = "0xapproved"
	})
}

func (s *memStore) Revoke(_ context.Context, id, reason string) (cert.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("revoke")
	return s.move(id, cert.StatusVerified, func(c *cert.Certificate) {
		c.Status = cert.StatusRevoked
		c.RevokedReason = reason
		c.RevokedTxHash = "0xrevoked"
	})
}

func (s *memStore) Search(context.Context, recordstore.Query) (recordstore.Page, error) {
	return recordstore.Page{}, errors.New("not implemented")
}

func (s *memStore) CertificateType(_ context.Context, id string) (cert.CertificateType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("certificateType")
	t, ok := s.types[id]
	if !ok {
		return cert.CertificateType{}, cert.NewError(cert.KindNotFound, "no such type")
	}
	return t, nil
}

func (s *memStore) Organization(_ context.Context, id string) (cert.Organization, error) {
	return cert.Organization{ID: id}, nil
}
