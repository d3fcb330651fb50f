// Package events publishes certificate lifecycle events.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"xdao.co/certanchor/cert"
)

type Type string

const (
	TypeCreated  Type = "certificate.created"
	TypeSigned   Type = "certificate.signed"
	TypeApproved Type = "certificate.approved"
	TypeRevoked  Type = "certificate.revoked"
)

// TypeFor returns the event type emitted after action completes.
func TypeFor(action cert.Action) (Type, bool) {
	switch action {
	case cert.ActionSign:
		return TypeSigned, true
	case cert.ActionApprove:
		return TypeApproved, true
	case cert.ActionRevoke:
		return TypeRevoked, true
	default:
		return "", false
	}
}

type Event struct {
	ID             string      `json:"id"`
	Type           Type        `json:"type"`
	CertificateID  string      `json:"certificateId"`
	Code           string      `json:"code"`
	OrganizationID string      `json:"organizationId"`
	ActorID        string      `json:"actorId,omitempty"`
	Status         cert.Status `json:"status"`
	TxHash         string      `json:"txHash,omitempty"`
	OccurredAt     time.Time   `json:"occurredAt"`
}

// New builds an event for c with a fresh id.
func New(t Type, c cert.Certificate, actorID string) Event {
	ev := Event{
		ID:             uuid.NewString(),
		Type:           t,
		CertificateID:  c.ID,
		Code:           c.Code,
		OrganizationID: c.OrganizationID,
		ActorID:        actorID,
		Status:         c.Status,
		OccurredAt:     time.Now().UTC(),
	}
	switch t {
	case TypeSigned:
		ev.TxHash = c.SignedTxHash
	case TypeApproved:
		ev.TxHash = c.ApprovedTxHash
	case TypeRevoked:
		ev.TxHash = c.RevokedTxHash
	}
	return ev
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Memory keeps published events in order. It is safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Publish(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of everything published so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
