// Package stats counts certificates per UTC day along four date dimensions.
//
// Each dimension is read independently into an immutable list; Count turns a
// list into per-day counts and Merge folds the counts over the day list. There
// is no shared accumulator.
package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"xdao.co/certanchor/cert"
	"xdao.co/certanchor/recordstore"
)

const dayLayout = time.DateOnly

// MaxDays is the longest range, in days, that Days and Aggregate accept.
const MaxDays = 366

var (
	ErrInvalidRange = errors.New("stats: start and end must be YYYY-MM-DD dates with start <= end")
	ErrRangeTooLong = fmt.Errorf("stats: range covers more than %d days", MaxDays)
)

// Dimension names a counted date field.
type Dimension string

const (
	Created Dimension = "created"
	Signed  Dimension = "signed"
	Revoked Dimension = "revoked"
	Expired Dimension = "expired"
)

// Dimensions lists every dimension with the record field it is keyed on.
var Dimensions = []struct {
	Dimension Dimension
	Field     string
}{
	{Created, "createdAt"},
	{Signed, "approvedAt"},
	{Revoked, "revokedAt"},
	{Expired, "validTo"},
}

type DailyRow struct {
	Date    string `json:"date"`
	Created int    `json:"created"`
	Signed  int    `json:"signed"`
	Revoked int    `json:"revoked"`
	Expired int    `json:"expired"`
}

// Range is an inclusive pair of YYYY-MM-DD dates.
type Range struct {
	Start string
	End   string
}

type Filters struct {
	OrganizationID string
	IssuerID       string
}

// Days returns the inclusive list of YYYY-MM-DD dates from start to end, or an
// empty list when the range does not pass Validate.
func Days(start, end string) []string {
	r := Range{Start: start, End: end}
	if r.Validate() != nil {
		return []string{}
	}
	s, _ := time.Parse(dayLayout, start)
	e, _ := time.Parse(dayLayout, end)
	var out []string
	for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(dayLayout))
	}
	return out
}

// Validate returns ErrInvalidRange for unparsable or reversed dates and
// ErrRangeTooLong when the range covers more than MaxDays days.
func (r Range) Validate() error {
	s, err1 := time.Parse(dayLayout, r.Start)
	e, err2 := time.Parse(dayLayout, r.End)
	if err1 != nil || err2 != nil || e.Before(s) {
		return ErrInvalidRange
	}
	if (e.Unix()-s.Unix())/86400+1 > MaxDays {
		return ErrRangeTooLong
	}
	return nil
}

// Bounds returns [start 00:00:00Z, end 23:59:59.999Z].
func (r Range) Bounds() (time.Time, time.Time, bool) {
	s, err1 := time.Parse(dayLayout, r.Start)
	e, err2 := time.Parse(dayLayout, r.End)
	if err1 != nil || err2 != nil || e.Before(s) {
		return time.Time{}, time.Time{}, false
	}
	return s, e.Add(24*time.Hour - time.Millisecond), true
}

// Count returns per-day counts of the dimension's date across items. Items
// without the date or outside days are ignored.
func Count(dim Dimension, items []cert.Certificate, days []string) map[string]int {
	in := make(map[string]bool, len(days))
	for _, d := range days {
		in[d] = true
	}
	out := map[string]int{}
	for _, c := range items {
		t := dateOf(dim, c)
		if t == nil {
			continue
		}
		day := t.UTC().Format(dayLayout)
		if in[day] {
			out[day]++
		}
	}
	return out
}

func dateOf(dim Dimension, c cert.Certificate) *time.Time {
	switch dim {
	case Created:
		return c.CreatedAt
	case Signed:
		return c.ApprovedAt
	case Revoked:
		return c.RevokedAt
	case Expired:
		return c.ValidTo
	default:
		return nil
	}
}

// Merge folds per-dimension counts into one row per day, in day order.
func Merge(days []string, counts map[Dimension]map[string]int) []DailyRow {
	rows := make([]DailyRow, len(days))
	for i, d := range days {
		rows[i] = DailyRow{
			Date:    d,
			Created: counts[Created][d],
			Signed:  counts[Signed][d],
			Revoked: counts[Revoked][d],
			Expired: counts[Expired][d],
		}
	}
	return rows
}

// Totals sums every column of rows. Date is left empty.
func Totals(rows []DailyRow) DailyRow {
	var t DailyRow
	for _, r := range rows {
		t.Created += r.Created
		t.Signed += r.Signed
		t.Revoked += r.Revoked
		t.Expired += r.Expired
	}
	return t
}

type Aggregator struct {
	store    recordstore.Store
	pageSize int
	log      *zap.Logger
}

func New(store recordstore.Store, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{
		store:    store,
		pageSize: recordstore.MaxPageSize,
		log:      log.With(zap.String("component", "stats")),
	}
}

// Aggregate returns one row per day of r. The four dimension queries run in
// parallel and every page of each is read; any failure fails the whole call.
// An invalid range yields no rows and no queries; a range longer than MaxDays
// fails with ErrRangeTooLong.
func (a *Aggregator) Aggregate(ctx context.Context, r Range, f Filters) ([]DailyRow, error) {
	if errors.Is(r.Validate(), ErrRangeTooLong) {
		return nil, ErrRangeTooLong
	}
	days := Days(r.Start, r.End)
	if len(days) == 0 {
		return []DailyRow{}, nil
	}
	from, to, _ := r.Bounds()

	lists := make([][]cert.Certificate, len(Dimensions))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range Dimensions {
		g.Go(func() error {
			items, err := recordstore.ListAll(gctx, a.store, recordstore.Query{
				Filters:  dimensionFilters(d.Field, from, to, f),
				PageSize: a.pageSize,
			})
			if err != nil {
				return err
			}
			lists[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.log.Warn("aggregate failed", zap.String("start", r.Start), zap.String("end", r.End), zap.Error(err))
		return nil, err
	}

	counts := make(map[Dimension]map[string]int, len(Dimensions))
	for i, d := range Dimensions {
		counts[d.Dimension] = Count(d.Dimension, lists[i], days)
	}
	return Merge(days, counts), nil
}

func dimensionFilters(field string, from, to time.Time, f Filters) recordstore.Filters {
	out := recordstore.Filters{field: {Gte: from, Lte: to}}
	if f.OrganizationID != "" {
		out["organizationId"] = recordstore.Cond{Eq: f.OrganizationID}
	}
	if f.IssuerID != "" {
		out["issuerId"] = recordstore.Cond{Eq: f.IssuerID}
	}
	return out
}
