package recordstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"xdao.co/certanchor/cert"
)

type certificateRow struct {
	ID                string `gorm:"primaryKey;size:64"`
	Code              string `gorm:"uniqueIndex;size:128;not null"`
	Status            string `gorm:"index;size:16;not null"`
	CertificateTypeID string `gorm:"index;size:64"`
	OrganizationID    string `gorm:"index;size:64"`
	IssuerID          string `gorm:"index;size:64"`
	ValidFrom         *time.Time
	ValidTo           *time.Time `gorm:"index"`
	CertificateHash   string     `gorm:"size:128"`
	SignedTxHash      string     `gorm:"size:80"`
	ApprovedTxHash    string     `gorm:"size:80"`
	RevokedTxHash     string     `gorm:"size:80"`
	RevokedReason     string     `gorm:"type:text"`
	HolderName        string
	HolderIDCard      string `gorm:"size:64"`
	HolderCountryCode string `gorm:"size:8"`
	GrantLevel        *float64
	AdditionalInfo    string     `gorm:"type:text"`
	CreatedAt         time.Time  `gorm:"index"`
	ApprovedAt        *time.Time `gorm:"index"`
	RevokedAt         *time.Time `gorm:"index"`
	UpdatedAt         time.Time
}

func (certificateRow) TableName() string { return "certificates" }

type certificateTypeRow struct {
	ID           string `gorm:"primaryKey;size:64"`
	Code         string `gorm:"uniqueIndex;size:64"`
	Name         string
	Active       bool
	ExpiryMonths int
	TemplateKind string `gorm:"size:16"`
}

func (certificateTypeRow) TableName() string { return "certificate_types" }

type organizationRow struct {
	ID   string `gorm:"primaryKey;size:64"`
	Code string `gorm:"uniqueIndex;size:64"`
	Name string
}

func (organizationRow) TableName() string { return "organizations" }

// column is a searchable or sortable certificate field.
type column struct {
	name   string
	isTime bool
}

var columns = map[string]column{
	"id":                {name: "id"},
	"code":              {name: "code"},
	"status":            {name: "status"},
	"certificateTypeId": {name: "certificate_type_id"},
	"organizationId":    {name: "organization_id"},
	"issuerId":          {name: "issuer_id"},
	"certificateHash":   {name: "certificate_hash"},
	"validFrom":         {name: "valid_from", isTime: true},
	"validTo":           {name: "valid_to", isTime: true},
	"createdAt":         {name: "created_at", isTime: true},
	"approvedAt":        {name: "approved_at", isTime: true},
	"revokedAt":         {name: "revoked_at", isTime: true},
}

// SQLStore keeps certificate records in a relational database through gorm.
// Every status change is a conditional UPDATE on the expected source status,
// so concurrent or stale requests fail with cert.KindInvalidTransition.
type SQLStore struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

var _ Store = (*SQLStore)(nil)

// PoolConfig sizes the underlying database/sql pool. Zero values keep driver defaults.
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// OpenPostgres connects to dsn, sizes the pool and migrates the schema.
func OpenPostgres(dsn string, pool PoolConfig, log *zap.Logger) (*SQLStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	return NewSQLStore(db, log)
}

// NewSQLStore wraps an open gorm handle and runs migrations.
func NewSQLStore(db *gorm.DB, log *zap.Logger) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("recordstore: nil db")
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "recordstore"))
	log.Info("running database migrations")
	if err := db.AutoMigrate(&certificateRow{}, &certificateTypeRow{}, &organizationRow{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &SQLStore{db: db, log: log, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLStore) Create(ctx context.Context, in cert.NewCertificate) (cert.Certificate, error) {
	row := s.newRow(in)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.log.Error("create certificate", zap.String("code", in.Code), zap.Error(err))
		return cert.Certificate{}, cert.WrapError(cert.KindGeneric, "failed to create certificate", err)
	}
	return row.toCertificate(), nil
}

// Import creates every record in one transaction; either all are stored or none.
func (s *SQLStore) Import(ctx context.Context, in []cert.NewCertificate) ([]cert.Certificate, error) {
	if len(in) == 0 {
		return []cert.Certificate{}, nil
	}
	rows := make([]certificateRow, len(in))
	for i := range in {
		rows[i] = s.newRow(in[i])
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if err != nil {
		s.log.Error("import certificates", zap.Int("count", len(in)), zap.Error(err))
		return nil, cert.WrapError(cert.KindGeneric, "failed to import certificates", err)
	}
	out := make([]cert.Certificate, len(rows))
	for i := range rows {
		out[i] = rows[i].toCertificate()
	}
	return out, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (cert.Certificate, error) {
	row, err := s.get(s.db.WithContext(ctx), id)
	if err != nil {
		return cert.Certificate{}, err
	}
	return row.toCertificate(), nil
}

func (s *SQLStore) get(db *gorm.DB, id string) (certificateRow, error) {
	var row certificateRow
	if err := db.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return row, cert.NewError(cert.KindNotFound, fmt.Sprintf("certificate %q not found", id))
		}
		return row, cert.WrapError(cert.KindGeneric, "failed to load certificate", err)
	}
	return row, nil
}

// Update applies patch while the record is CREATED. A signedTxHash that is
// already set is never replaced.
func (s *SQLStore) Update(ctx context.Context, id string, patch cert.Patch) (cert.Certificate, error) {
	updates := map[string]any{"updated_at": s.now()}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return cert.Certificate{}, cert.NewError(cert.KindInvalidTransition, fmt.Sprintf("unknown status %q", *patch.Status))
		}
		if *patch.Status != cert.StatusCreated && *patch.Status != cert.StatusSigned {
			return cert.Certificate{}, cert.NewError(cert.KindInvalidTransition,
				fmt.Sprintf("status %s cannot be set by update", *patch.Status))
		}
		updates["status"] = string(*patch.Status)
	}
	q := s.db.WithContext(ctx).Model(&certificateRow{}).Where("id = ? AND status = ?", id, string(cert.StatusCreated))
	if patch.SignedTxHash != nil {
		updates["signed_tx_hash"] = *patch.SignedTxHash
		q = q.Where("signed_tx_hash = ''")
	}
	return s.conditional(ctx, q, id, updates, "update")
}

// Approve moves a SIGNED record to VERIFIED. No chain write happens for
// approval, so approvedTxHash stays empty.
func (s *SQLStore) Approve(ctx context.Context, id string) (cert.Certificate, error) {
	now := s.now()
	q := s.db.WithContext(ctx).Model(&certificateRow{}).Where("id = ? AND status = ?", id, string(cert.StatusSigned))
	return s.conditional(ctx, q, id, map[string]any{
		"status":      string(cert.StatusVerified),
		"approved_at": now,
		"updated_at":  now,
	}, "approve")
}

// Revoke moves a VERIFIED record to REVOKED with a non-empty reason.
func (s *SQLStore) Revoke(ctx context.Context, id, reason string) (cert.Certificate, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return cert.Certificate{}, cert.NewError(cert.KindMissingReason, "revocation reason is empty")
	}
	now := s.now()
	q := s.db.WithContext(ctx).Model(&certificateRow{}).Where("id = ? AND status = ?", id, string(cert.StatusVerified))
	return s.conditional(ctx, q, id, map[string]any{
		"status":         string(cert.StatusRevoked),
		"revoked_reason": reason,
		"revoked_at":     now,
		"updated_at":     now,
	}, "revoke")
}

func (s *SQLStore) conditional(ctx context.Context, q *gorm.DB, id string, updates map[string]any, op string) (cert.Certificate, error) {
	res := q.Updates(updates)
	if res.Error != nil {
		s.log.Error(op+" certificate", zap.String("id", id), zap.Error(res.Error))
		return cert.Certificate{}, cert.WrapError(cert.KindGeneric, "failed to "+op+" certificate", res.Error)
	}
	row, err := s.get(s.db.WithContext(ctx), id)
	if err != nil {
		return cert.Certificate{}, err
	}
	if res.RowsAffected == 0 {
		return cert.Certificate{}, cert.NewError(cert.KindInvalidTransition,
			fmt.Sprintf("cannot %s certificate in status %s", op, row.Status))
	}
	return row.toCertificate(), nil
}

func (s *SQLStore) Search(ctx context.Context, q Query) (Page, error) {
	q = q.normalized()
	db := s.db.WithContext(ctx).Model(&certificateRow{})
	for field, c := range q.Filters {
		col, ok := columns[field]
		if !ok {
			return Page{}, cert.NewError(cert.KindGeneric, fmt.Sprintf("unknown filter field %q", field))
		}
		for _, b := range []struct {
			op string
			v  any
		}{{"=", c.Eq}, {">=", c.Gte}, {"<=", c.Lte}} {
			if b.v == nil {
				continue
			}
			v, err := filterValue(col, b.v)
			if err != nil {
				return Page{}, cert.WrapError(cert.KindGeneric, fmt.Sprintf("filter %s", field), err)
			}
			db = db.Where(col.name+" "+b.op+" ?", v)
		}
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return Page{}, cert.WrapError(cert.KindGeneric, "failed to count certificates", err)
	}
	for _, srt := range q.Sort {
		col, ok := columns[srt.Field]
		if !ok {
			return Page{}, cert.NewError(cert.KindGeneric, fmt.Sprintf("unknown sort field %q", srt.Field))
		}
		dir := " ASC"
		if srt.Desc {
			dir = " DESC"
		}
		db = db.Order(col.name + dir)
	}
	db = db.Order("id ASC")

	var rows []certificateRow
	if err := db.Offset((q.Page - 1) * q.PageSize).Limit(q.PageSize).Find(&rows).Error; err != nil {
		return Page{}, cert.WrapError(cert.KindGeneric, "failed to search certificates", err)
	}
	items := make([]cert.Certificate, len(rows))
	for i := range rows {
		items[i] = rows[i].toCertificate()
	}
	return Page{Items: items, Total: int(total)}, nil
}

func filterValue(col column, v any) (any, error) {
	if !col.isTime {
		return v, nil
	}
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case *time.Time:
		if t == nil {
			return nil, errors.New("nil time")
		}
		return t.UTC(), nil
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC(), nil
			}
		}
		return nil, fmt.Errorf("invalid time %q", t)
	default:
		return nil, fmt.Errorf("unsupported time value %T", v)
	}
}

func (s *SQLStore) CertificateType(ctx context.Context, id string) (cert.CertificateType, error) {
	var row certificateTypeRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return cert.CertificateType{}, cert.NewError(cert.KindNotFound, fmt.Sprintf("certificate type %q not found", id))
		}
		return cert.CertificateType{}, cert.WrapError(cert.KindGeneric, "failed to load certificate type", err)
	}
	return cert.CertificateType{
		ID:           row.ID,
		Code:         row.Code,
		Name:         row.Name,
		Active:       row.Active,
		ExpiryMonths: row.ExpiryMonths,
		TemplateKind: cert.TemplateKind(row.TemplateKind),
	}, nil
}

// PutCertificateType inserts or replaces a certificate type.
func (s *SQLStore) PutCertificateType(ctx context.Context, t cert.CertificateType) error {
	row := certificateTypeRow{
		ID:           t.ID,
		Code:         t.Code,
		Name:         t.Name,
		Active:       t.Active,
		ExpiryMonths: t.ExpiryMonths,
		TemplateKind: string(t.TemplateKind),
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

// Organization returns the organization. IsOwner is caller-relative and is
// always false here.
func (s *SQLStore) Organization(ctx context.Context, id string) (cert.Organization, error) {
	var row organizationRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return cert.Organization{}, cert.NewError(cert.KindNotFound, fmt.Sprintf("organization %q not found", id))
		}
		return cert.Organization{}, cert.WrapError(cert.KindGeneric, "failed to load organization", err)
	}
	return cert.Organization{ID: row.ID, Code: row.Code, Name: row.Name}, nil
}

// PutOrganization inserts or replaces an organization.
func (s *SQLStore) PutOrganization(ctx context.Context, o cert.Organization) error {
	row := organizationRow{ID: o.ID, Code: o.Code, Name: o.Name}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *SQLStore) newRow(in cert.NewCertificate) certificateRow {
	p := in.AuthorProfile
	return certificateRow{
		ID:                uuid.NewString(),
		Code:              strings.TrimSpace(in.Code),
		Status:            string(cert.StatusCreated),
		CertificateTypeID: in.CertificateTypeID,
		OrganizationID:    in.OrganizationID,
		IssuerID:          in.IssuerID,
		ValidFrom:         utc(in.ValidFrom),
		ValidTo:           utc(in.ValidTo),
		CertificateHash:   in.CertificateHash,
		HolderName:        p.Name,
		HolderIDCard:      p.IDCard,
		HolderCountryCode: p.CountryCode,
		GrantLevel:        p.GrantLevel,
		AdditionalInfo:    string(p.AdditionalInfo),
		CreatedAt:         s.now(),
	}
}

func (r certificateRow) toCertificate() cert.Certificate {
	created := r.CreatedAt.UTC()
	c := cert.Certificate{
		ID:                r.ID,
		Code:              r.Code,
		Status:            cert.Status(r.Status),
		CertificateTypeID: r.CertificateTypeID,
		OrganizationID:    r.OrganizationID,
		IssuerID:          r.IssuerID,
		ValidFrom:         utc(r.ValidFrom),
		ValidTo:           utc(r.ValidTo),
		CertificateHash:   r.CertificateHash,
		SignedTxHash:      r.SignedTxHash,
		ApprovedTxHash:    r.ApprovedTxHash,
		RevokedTxHash:     r.RevokedTxHash,
		RevokedReason:     r.RevokedReason,
		AuthorProfile: cert.AuthorProfile{
			Name:        r.HolderName,
			IDCard:      r.HolderIDCard,
			CountryCode: r.HolderCountryCode,
			GrantLevel:  r.GrantLevel,
		},
		CreatedAt:  &created,
		ApprovedAt: utc(r.ApprovedAt),
		RevokedAt:  utc(r.RevokedAt),
	}
	if r.AdditionalInfo != "" {
		c.AuthorProfile.AdditionalInfo = []byte(r.AdditionalInfo)
	}
	return c
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
