package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/ogurasousui/attendance-sync/internal/core/attendance"
	"github.com/ogurasousui/attendance-sync/internal/core/syncqueue"
	"github.com/ogurasousui/attendance-sync/internal/core/tracker"
)

const emptyClock = "-"

func clockOrDash(value string) string {
	if value == "" {
		return emptyClock
	}
	return value
}

func printOutcome(w io.Writer, action string, outcome tracker.Outcome) {
	rec := outcome.Snapshot()
	if rec == nil {
		fmt.Fprintf(w, "%s: no record\n", action)
		return
	}
	switch o := outcome.(type) {
	case tracker.Pending:
		fmt.Fprintf(w, "%s queued (operation %s), will sync when online\n", action, o.OperationID)
	default:
		fmt.Fprintf(w, "%s confirmed\n", action)
	}
	printRecord(w, rec)
}

func printRecord(w io.Writer, rec *attendance.Record) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  date\t%s\n", rec.Date)
	fmt.Fprintf(tw, "  check-in\t%s\n", clockOrDash(rec.CheckInClock()))
	fmt.Fprintf(tw, "  check-out\t%s\n", clockOrDash(rec.CheckOutClock()))
	fmt.Fprintf(tw, "  status\t%s\n", rec.Status)
	if rec.DistanceMeters > 0 {
		fmt.Fprintf(tw, "  distance\t%.0fm\n", rec.DistanceMeters)
	}
	if rec.Notes != "" {
		fmt.Fprintf(tw, "  notes\t%s\n", rec.Notes)
	}
	_ = tw.Flush()
}

func printOperations(w io.Writer, ops []syncqueue.Operation) {
	if len(ops) == 0 {
		fmt.Fprintln(w, "queue is empty")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMETHOD\tENDPOINT\tENQUEUED")
	for _, op := range ops {
		enqueued := time.UnixMilli(op.EnqueuedAtEpochMs).Format(time.RFC3339)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", op.ID, op.Method, op.TargetEndpoint, enqueued)
	}
	_ = tw.Flush()
}

func printHistory(w io.Writer, records []*attendance.Record, stats attendance.Stats) {
	if len(records) == 0 {
		fmt.Fprintln(w, "no records")
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "DATE\tCHECK-IN\tCHECK-OUT\tSTATUS")
		for _, rec := range records {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", rec.Date, clockOrDash(rec.CheckInClock()), clockOrDash(rec.CheckOutClock()), rec.Status)
		}
		_ = tw.Flush()
	}

	fmt.Fprintf(w, "\ndays: %d  present: %d  late: %d  absent: %d  streak: %d  average check-in: %s\n",
		stats.TotalDays, stats.TotalPresent, stats.TotalLate, stats.TotalAbsent, stats.Streak, clockOrDash(stats.AverageCheckIn))
}
