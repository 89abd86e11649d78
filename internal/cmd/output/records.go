package output

import (
	"io"
	"time"

	"github.com/agentstation/seatwatch"
	"github.com/agentstation/seatwatch/internal/cmd/table"
	"github.com/agentstation/seatwatch/pkg/events"
	"github.com/agentstation/seatwatch/pkg/livefeed"
	"github.com/agentstation/seatwatch/pkg/notify"
	"github.com/agentstation/seatwatch/pkg/subscriptions"
)

// tabular reports whether format renders table data rather than records.
func tabular(format Format) bool {
	switch format {
	case FormatTable, FormatWide, FormatMarkdown, "":
		return true
	default:
		return false
	}
}

// FormatEvents writes events in the requested format.
func FormatEvents(w io.Writer, evs []events.Event, format Format) error {
	var data any = evs
	if tabular(format) {
		data = table.EventsToTableData(evs, format == FormatWide)
	}
	return NewFormatter(format).Format(w, data)
}

// FormatEventCounts writes a per-type summary of evs.
func FormatEventCounts(w io.Writer, evs []events.Event, format Format) error {
	if !tabular(format) {
		counts := make(map[events.Type]int)
		for _, ev := range evs {
			counts[ev.Type]++
		}
		return NewFormatter(format).Format(w, counts)
	}
	return NewFormatter(format).Format(w, table.CountsToTableData(evs))
}

// FormatFeed writes live feed entries in the requested format.
func FormatFeed(w io.Writer, entries []livefeed.Entry, format Format) error {
	var data any = entries
	if tabular(format) {
		data = table.FeedToTableData(entries, format == FormatWide)
	}
	return NewFormatter(format).Format(w, data)
}

// FormatSubscriptions writes subscriptions in the requested format.
func FormatSubscriptions(w io.Writer, subs []subscriptions.Subscription, format Format) error {
	var data any = subs
	if tabular(format) {
		data = table.SubscriptionsToTableData(subs)
	}
	return NewFormatter(format).Format(w, data)
}

// FormatProfile writes a user's notification profile.
func FormatProfile(w io.Writer, p notify.Profile, format Format) error {
	var data any = p
	if tabular(format) {
		data = table.ProfileToTableData(p)
	}
	return NewFormatter(format).Format(w, data)
}

// FormatAny handles the common pattern of formatting any data type for output.
func FormatAny(w io.Writer, data any, format Format) error {
	return NewFormatter(format).Format(w, data)
}

// ReportSummary is the machine-readable form of a cycle report.
type ReportSummary struct {
	Semester  string        `json:"semester" yaml:"semester"`
	Prefix    string        `json:"prefix" yaml:"prefix"`
	Batch     time.Time     `json:"batch" yaml:"batch"`
	Status    string        `json:"status" yaml:"status"`
	Events    int           `json:"events" yaml:"events"`
	Delivered int           `json:"delivered" yaml:"delivered"`
	Failed    int           `json:"failed" yaml:"failed"`
	Feed      int           `json:"feed" yaml:"feed"`
	Duration  time.Duration `json:"duration_ns" yaml:"duration_ns"`
}

// FormatReports writes cycle reports in the requested format.
func FormatReports(w io.Writer, reports []seatwatch.CycleReport, format Format) error {
	if tabular(format) {
		return NewFormatter(format).Format(w, table.ReportsToTableData(reports))
	}
	out := make([]ReportSummary, len(reports))
	for i, r := range reports {
		out[i] = ReportSummary{
			Semester:  r.Semester,
			Prefix:    r.Prefix,
			Batch:     r.Batch,
			Status:    table.ReportStatus(r),
			Events:    len(r.Events),
			Delivered: r.Dispatch.Delivered,
			Failed:    r.Dispatch.Failed,
			Feed:      r.Feed.Appended,
			Duration:  r.Duration,
		}
	}
	return NewFormatter(format).Format(w, out)
}
