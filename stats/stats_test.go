package stats

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"xdao.co/certanchor/cert"
	"xdao.co/certanchor/recordstore"
)

func at(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestDays(t *testing.T) {
	if got := Days("2024-01-01", "2024-01-03"); !reflect.DeepEqual(got, []string{"2024-01-01", "2024-01-02", "2024-01-03"}) {
		t.Fatalf("Days = %v", got)
	}
	if got := Days("2024-02-28", "2024-03-01"); len(got) != 3 || got[1] != "2024-02-29" {
		t.Fatalf("leap year Days = %v", got)
	}
	for _, bad := range [][2]string{{"2024-01-03", "2024-01-01"}, {"", "2024-01-01"}, {"2024-13-01", "2024-13-02"}} {
		if got := Days(bad[0], bad[1]); len(got) != 0 {
			t.Fatalf("Days(%q, %q) = %v want empty", bad[0], bad[1], got)
		}
	}
}

func TestCountAndMerge(t *testing.T) {
	days := Days("2024-01-01", "2024-01-03")
	items := []cert.Certificate{
		{ID: "a", CreatedAt: at("2024-01-02T10:00:00Z")},
		{ID: "b", CreatedAt: at("2024-01-05T10:00:00Z")},
		{ID: "c"},
	}
	created := Count(Created, items, days)
	if !reflect.DeepEqual(created, map[string]int{"2024-01-02": 1}) {
		t.Fatalf("Count = %v", created)
	}
	rows := Merge(days, map[Dimension]map[string]int{Created: created})
	if len(rows) != 3 || rows[0].Created != 0 || rows[1].Created != 1 || rows[2].Created != 0 {
		t.Fatalf("rows = %+v", rows)
	}
	if tot := Totals(rows); tot.Created != 1 || tot.Signed != 0 {
		t.Fatalf("totals = %+v", tot)
	}
}

// fakeStore answers searches from a fixed item list, honoring only the
// dimension's date bounds, in pages.
type fakeStore struct {
	recordstore.Store
	items    []cert.Certificate
	searches atomic.Int32
	fail     error
}

func (s *fakeStore) Search(_ context.Context, q recordstore.Query) (recordstore.Page, error) {
	s.searches.Add(1)
	if s.fail != nil {
		return recordstore.Page{}, s.fail
	}
	var matched []cert.Certificate
	for field, c := range q.Filters {
		dim := dimensionFor(field)
		if dim == "" {
			continue
		}
		from, to := c.Gte.(time.Time), c.Lte.(time.Time)
		for _, it := range s.items {
			if d := dateOf(dim, it); d != nil && !d.Before(from) && !d.After(to) {
				matched = append(matched, it)
			}
		}
	}
	start := (q.Page - 1) * q.PageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := min(start+q.PageSize, len(matched))
	return recordstore.Page{Items: matched[start:end], Total: len(matched)}, nil
}

func dimensionFor(field string) Dimension {
	for _, d := range Dimensions {
		if d.Field == field {
			return d.Dimension
		}
	}
	return ""
}

func TestAggregate(t *testing.T) {
	s := &fakeStore{items: []cert.Certificate{
		{ID: "a", CreatedAt: at("2024-01-02T00:00:00Z")},
		{ID: "b", CreatedAt: at("2023-12-31T23:59:59Z"), ApprovedAt: at("2024-01-01T08:00:00Z")},
		{ID: "c", CreatedAt: at("2024-01-03T23:59:59Z"), ValidTo: at("2024-01-03T12:00:00Z"), RevokedAt: at("2024-01-03T01:00:00Z")},
	}}
	a := New(s, nil)
	a.pageSize = 1

	rows, err := a.Aggregate(context.Background(), Range{Start: "2024-01-01", End: "2024-01-03"}, Filters{OrganizationID: "org-1"})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	want := []DailyRow{
		{Date: "2024-01-01", Signed: 1},
		{Date: "2024-01-02", Created: 1},
		{Date: "2024-01-03", Created: 1, Revoked: 1, Expired: 1},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows = %+v\nwant %+v", rows, want)
	}
	// created has two matching items over two pages; the other dimensions one each.
	if got := s.searches.Load(); got != 5 {
		t.Fatalf("searches = %d want 5", got)
	}
}

func TestAggregate_EmptyRangeMakesNoQueries(t *testing.T) {
	s := &fakeStore{}
	rows, err := New(s, nil).Aggregate(context.Background(), Range{Start: "2024-01-03", End: "2024-01-01"}, Filters{})
	if err != nil || len(rows) != 0 {
		t.Fatalf("rows = %v, err = %v", rows, err)
	}
	if s.searches.Load() != 0 {
		t.Fatalf("queries issued for empty range")
	}
}

func TestRangeLimit(t *testing.T) {
	if err := (Range{Start: "2024-01-01", End: "2024-12-31"}).Validate(); err != nil {
		t.Fatalf("leap year range: %v", err)
	}
	if err := (Range{Start: "2024-01-01", End: "2025-01-01"}).Validate(); !errors.Is(err, ErrRangeTooLong) {
		t.Fatalf("367 days: got %v want ErrRangeTooLong", err)
	}
	if got := Days("0001-01-01", "9999-12-31"); len(got) != 0 {
		t.Fatalf("unbounded Days returned %d entries", len(got))
	}
	if got := Days("2024-01-01", "2024-12-31"); len(got) != MaxDays {
		t.Fatalf("Days over %d days = %d", MaxDays, len(got))
	}

	s := &fakeStore{}
	_, err := New(s, nil).Aggregate(context.Background(), Range{Start: "0001-01-01", End: "9999-12-31"}, Filters{})
	if !errors.Is(err, ErrRangeTooLong) || s.searches.Load() != 0 {
		t.Fatalf("err = %v after %d queries", err, s.searches.Load())
	}
}

func TestAggregate_AnyFailureFailsAll(t *testing.T) {
	s := &fakeStore{fail: errors.New("backend down")}
	if _, err := New(s, nil).Aggregate(context.Background(), Range{Start: "2024-01-01", End: "2024-01-01"}, Filters{}); err == nil {
		t.Fatalf("expected failure")
	}
}

func TestAggregate_SQLStore(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "stats.db")), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	store, err := recordstore.NewSQLStore(db, nil)
	if err != nil {
		t.Fatalf("NewSQLStore: %v", err)
	}
	defer store.Close()

	level := 1.0
	validTo := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	_, err = store.Create(context.Background(), cert.NewCertificate{
		Draft: cert.Draft{
			Code: "CERT-1", CertificateTypeID: "t", OrganizationID: "org-1", ValidTo: &validTo,
			AuthorProfile: cert.AuthorProfile{Name: "A", IDCard: "1", CountryCode: "VN", GrantLevel: &level},
		},
		IssuerID: "u1",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	rows, err := New(store, nil).Aggregate(context.Background(), Range{Start: "2024-01-01", End: "2024-01-03"}, Filters{OrganizationID: "org-1"})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(rows) != 3 || rows[1].Expired != 1 || Totals(rows).Expired != 1 {
		t.Fatalf("rows = %+v", rows)
	}
	rows, err = New(store, nil).Aggregate(context.Background(), Range{Start: "2024-01-01", End: "2024-01-03"}, Filters{OrganizationID: "org-2"})
	if err != nil || Totals(rows).Expired != 0 {
		t.Fatalf("org filter ignored: %+v, %v", rows, err)
	}
}
