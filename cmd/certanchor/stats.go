package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"xdao.co/certanchor/recordstore"
	"xdao.co/certanchor/stats"
)

func cmdStats(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var baseURL, token, start, end, orgID, issuerID string
	fs.StringVar(&baseURL, "records-url", "", "Record store base URL")
	fs.StringVar(&token, "token", "", "Bearer token for the record store")
	fs.StringVar(&start, "start", "", "First day (YYYY-MM-DD)")
	fs.StringVar(&end, "end", "", "Last day (YYYY-MM-DD), inclusive")
	fs.StringVar(&orgID, "org", "", "Organization id filter")
	fs.StringVar(&issuerID, "issuer", "", "Issuer id filter")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if baseURL == "" || start == "" || end == "" {
		fmt.Fprintln(errOut, "usage: certanchor stats --records-url <url> --start <YYYY-MM-DD> --end <YYYY-MM-DD>")
		return 2
	}
	if err := (stats.Range{Start: start, End: end}).Validate(); err != nil {
		if errors.Is(err, stats.ErrRangeTooLong) {
			fmt.Fprintf(errOut, "invalid range: at most %d days\n", stats.MaxDays)
		} else {
			fmt.Fprintln(errOut, "invalid range: --start and --end must be YYYY-MM-DD with start <= end")
		}
		return 2
	}

	ctx, cancel := commandContext()
	defer cancel()
	agg := stats.New(recordstore.NewClient(baseURL, token), nil)
	rows, err := agg.Aggregate(ctx, stats.Range{Start: start, End: end}, stats.Filters{OrganizationID: orgID, IssuerID: issuerID})
	if err != nil {
		fmt.Fprintf(errOut, "stats: %v\n", err)
		return 1
	}
	writeRows(out, rows)
	return 0
}

func writeRows(out io.Writer, rows []stats.DailyRow) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tCREATED\tSIGNED\tREVOKED\tEXPIRED")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", r.Date, r.Created, r.Signed, r.Revoked, r.Expired)
	}
	t := stats.Totals(rows)
	fmt.Fprintf(tw, "TOTAL\t%d\t%d\t%d\t%d\n", t.Created, t.Signed, t.Revoked, t.Expired)
	_ = tw.Flush()
}
