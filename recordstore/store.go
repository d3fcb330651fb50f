// Package recordstore reads and writes certificate records held by the
// backend: a REST client for the external record API and a gorm-backed store
// implementing the same contract.
package recordstore

import (
	"context"

	"xdao.co/certanchor/cert"
)

// Store is the record store contract used by the orchestrator and the stats
// aggregator. Implementations must re-check status transitions themselves.
type Store interface {
	Create(ctx context.Context, in cert.NewCertificate) (cert.Certificate, error)
	Import(ctx context.Context, in []cert.NewCertificate) ([]cert.Certificate, error)
	Get(ctx context.Context, id string) (cert.Certificate, error)
	// Update applies patch; it is accepted only while the record is CREATED.
	Update(ctx context.Context, id string, patch cert.Patch) (cert.Certificate, error)
	Approve(ctx context.Context, id string) (cert.Certificate, error)
	Revoke(ctx context.Context, id string, reason string) (cert.Certificate, error)
	Search(ctx context.Context, q Query) (Page, error)
	CertificateType(ctx context.Context, id string) (cert.CertificateType, error)
	Organization(ctx context.Context, id string) (cert.Organization, error)
}

// Cond bounds one field. Nil members are omitted.
type Cond struct {
	Eq  any `json:"eq,omitempty"`
	Gte any `json:"gte,omitempty"`
	Lte any `json:"lte,omitempty"`
}

// Filters maps a record field (camelCase, as in the JSON representation) to its condition.
type Filters map[string]Cond

type Sort struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// Query is one page of a search. Page is 1-based.
type Query struct {
	Filters  Filters `json:"filters,omitempty"`
	Page     int     `json:"page"`
	PageSize int     `json:"pageSize"`
	Sort     []Sort  `json:"sort,omitempty"`
}

type Page struct {
	Items []cert.Certificate `json:"data"`
	Total int                `json:"total"`
}

const (
	DefaultPageSize = 100
	MaxPageSize     = 500
)

func (q Query) normalized() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	return q
}

type searcher interface {
	Search(ctx context.Context, q Query) (Page, error)
}

// ListAll reads every page of q and returns all items.
func ListAll(ctx context.Context, s searcher, q Query) ([]cert.Certificate, error) {
	q = q.normalized()
	var out []cert.Certificate
	for {
		page, err := s.Search(ctx, q)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		if len(page.Items) == 0 || len(out) >= page.Total {
			return out, nil
		}
		q.Page++
	}
}
