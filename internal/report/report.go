// Package report renders the plain-text allocation report.
package report

import (
	"bufio"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"jobmate/allocation-service/internal/allocation"
)

// Filename is the download name of a report produced at now.
func Filename(now time.Time) string {
	return fmt.Sprintf("allocation_%s.txt", now.Format(time.DateOnly))
}

// Write renders a summary of every offer in snap: totals by state, then one
// "candidate - position - state" line per offer in creation order. Names
// fall back to ids when a record is missing.
func Write(w io.Writer, snap allocation.Snapshot, now time.Time) error {
	names := make(map[string]string, len(snap.Candidates))
	for _, c := range snap.Candidates {
		names[c.ID] = orID(c.Name, c.ID)
	}
	titles := make(map[string]string, len(snap.Positions))
	for _, p := range snap.Positions {
		titles[p.ID] = orID(p.Title, p.ID)
	}

	var accepted, pending, rejected int
	for _, o := range snap.Offers {
		switch o.State {
		case allocation.OfferAccepted:
			accepted++
		case allocation.OfferPending:
			pending++
		case allocation.OfferRejected:
			rejected++
		}
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ALLOCATION REPORT\n\n")
	fmt.Fprintf(bw, "Date: %s\n", now.Format(time.DateOnly))
	fmt.Fprintf(bw, "Time: %s\n\n", now.Format(time.TimeOnly))
	fmt.Fprintf(bw, "SUMMARY:\n")
	fmt.Fprintf(bw, "Total offers: %d\n", len(snap.Offers))
	fmt.Fprintf(bw, "Accepted: %d\n", accepted)
	fmt.Fprintf(bw, "Pending: %d\n", pending)
	fmt.Fprintf(bw, "Rejected: %d\n\n", rejected)
	fmt.Fprintf(bw, "DETAIL:\n")

	tw := tabwriter.NewWriter(bw, 0, 0, 1, ' ', 0)
	for _, o := range snap.Offers {
		state := string(o.State)
		if o.Automatic {
			state += " (expired)"
		}
		fmt.Fprintf(tw, "%s\t- %s\t- %s\n", nameOr(names, o.CandidateID), nameOr(titles, o.PositionID), state)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func orID(name, id string) string {
	if name == "" {
		return id
	}
	return name
}

func nameOr(m map[string]string, id string) string {
	if n, ok := m[id]; ok {
		return n
	}
	return id
}
