// Package table converts seatwatch records into rows for CLI tables.
package table

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/seatwatch"
	"github.com/agentstation/seatwatch/pkg/events"
	"github.com/agentstation/seatwatch/pkg/livefeed"
	"github.com/agentstation/seatwatch/pkg/notify"
	"github.com/agentstation/seatwatch/pkg/subscriptions"
)

// Align represents column alignment in tables.
type Align int

const (
	// AlignDefault uses the default alignment (skip).
	AlignDefault Align = iota
	// AlignLeft aligns content to the left.
	AlignLeft
	// AlignCenter centers content.
	AlignCenter
	// AlignRight aligns content to the right.
	AlignRight
)

// Data represents table formatting data to avoid import cycles.
type Data struct {
	Headers         []string
	Rows            [][]string
	ColumnAlignment []Align // Optional: column alignment
}

// maxCell is the widest value printed in a narrow table.
const maxCell = 40

// EventsToTableData converts events to table format. Wide tables include
// the event id and the untruncated values.
func EventsToTableData(evs []events.Event, wide bool) Data {
	headers := []string{"Type", "Course", "Section", "Old", "New"}
	if wide {
		headers = append(headers, "Title", "Timestamp", "ID")
	}

	rows := make([][]string, 0, len(evs))
	for _, ev := range evs {
		oldVal, newVal := ev.Values()
		if !wide {
			oldVal, newVal = Truncate(oldVal, maxCell), Truncate(newVal, maxCell)
		}
		row := []string{
			string(ev.Type),
			ev.Course,
			OrDash(ev.Section),
			OrDash(oldVal),
			OrDash(newVal),
		}
		if wide {
			row = append(row, OrDash(ev.Title), ev.Timestamp.UTC().Format(time.RFC3339), ev.ID)
		}
		rows = append(rows, row)
	}

	return Data{Headers: headers, Rows: rows}
}

// FeedToTableData converts live feed entries to table format.
func FeedToTableData(entries []livefeed.Entry, wide bool) Data {
	headers := []string{"Observed", "Type", "Course", "Section", "Change"}
	if wide {
		headers = append(headers, "Semester", "Title", "Event ID")
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		change := "-"
		if e.Old != "" || e.New != "" {
			change = OrDash(e.Old) + " -> " + OrDash(e.New)
		}
		row := []string{
			e.ObservedAt.Local().Format(time.Kitchen),
			string(e.Type),
			e.Course,
			OrDash(e.Section),
			change,
		}
		if wide {
			row = append(row, e.Semester, OrDash(e.Title), e.EventID)
		}
		rows = append(rows, row)
	}

	return Data{Headers: headers, Rows: rows}
}

// SubscriptionsToTableData converts subscriptions to table format. The
// settings column lists the enabled event types.
func SubscriptionsToTableData(subs []subscriptions.Subscription) Data {
	rows := make([][]string, 0, len(subs))
	for _, s := range subs {
		rows = append(rows, []string{
			s.UserID,
			s.Semester,
			string(s.Scope),
			s.Key,
			FormatSettings(s.Settings),
		})
	}
	return Data{
		Headers: []string{"User", "Semester", "Scope", "Key", "Enabled"},
		Rows:    rows,
	}
}

// ProfileToTableData converts a profile to a channel table.
func ProfileToTableData(p notify.Profile) Data {
	channel := func(kind notify.ChannelKind, c notify.Channel) []string {
		allowed := "no"
		if p.Tier.Allows(kind) {
			allowed = "yes"
		}
		return []string{string(kind), OrDash(c.Target), strconv.FormatBool(c.Enabled), allowed}
	}
	return Data{
		Headers: []string{"Channel", "Target", "Enabled", "Tier Allows"},
		Rows: [][]string{
			channel(notify.ChannelPush, p.Push),
			channel(notify.ChannelDiscord, p.Discord),
			channel(notify.ChannelWebhook, p.Webhook),
		},
		ColumnAlignment: []Align{AlignLeft, AlignLeft, AlignCenter, AlignCenter},
	}
}

// CountsToTableData summarizes event counts by type, largest first.
func CountsToTableData(evs []events.Event) Data {
	counts := make(map[events.Type]int)
	for _, ev := range evs {
		counts[ev.Type]++
	}
	types := make([]events.Type, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	slices.SortFunc(types, func(a, b events.Type) int {
		if counts[a] != counts[b] {
			return counts[b] - counts[a]
		}
		return strings.Compare(string(a), string(b))
	})

	rows := make([][]string, 0, len(types))
	for _, t := range types {
		rows = append(rows, []string{string(t), strconv.Itoa(counts[t])})
	}
	return Data{
		Headers:         []string{"Type", "Count"},
		Rows:            rows,
		ColumnAlignment: []Align{AlignLeft, AlignRight},
	}
}

// ReportsToTableData converts cycle reports to table format.
func ReportsToTableData(reports []seatwatch.CycleReport) Data {
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, []string{
			r.Semester,
			r.Prefix,
			ReportStatus(r),
			strconv.Itoa(len(r.Events)),
			strconv.Itoa(r.Dispatch.Delivered),
			strconv.Itoa(r.Dispatch.Failed),
			strconv.Itoa(r.Feed.Appended),
			r.Duration.Round(time.Millisecond).String(),
		})
	}
	return Data{
		Headers: []string{"Semester", "Prefix", "Status", "Events", "Delivered", "Failed", "Feed", "Duration"},
		Rows:    rows,
		ColumnAlignment: []Align{
			AlignLeft, AlignLeft, AlignLeft, AlignRight, AlignRight, AlignRight, AlignRight, AlignRight,
		},
	}
}

// ReportStatus summarizes how a cycle ended.
func ReportStatus(r seatwatch.CycleReport) string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Seeded:
		return "seeded"
	case r.Dispatch.Failed > 0:
		return "partial"
	default:
		return "ok"
	}
}

// FormatSettings lists the enabled event types of s in a stable order.
func FormatSettings(s subscriptions.Settings) string {
	var on []string
	for _, t := range events.AllTypes() {
		if v, ok := s[t]; ok && v {
			on = append(on, string(t))
		}
	}
	if len(on) == 0 {
		return "-"
	}
	return strings.Join(on, ", ")
}

// Truncate shortens s to at most limit runes, ending in "...".
func Truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit || limit < 4 {
		return s
	}
	return string(r[:limit-3]) + "..."
}

// OrDash returns "-" for empty strings.
func OrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// FormatCount renders n with a unit, pluralized.
func FormatCount(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
