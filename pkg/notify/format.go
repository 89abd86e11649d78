package notify

import (
	"encoding/json"
	"fmt"
	"strings"

	md "github.com/nao1215/markdown"

	"github.com/agentstation/seatwatch/pkg/catalog"
	"github.com/agentstation/seatwatch/pkg/events"
)

// discordContentLimit is the maximum message length Discord accepts.
const discordContentLimit = 2000

// Headline returns a one-line description of the event. Every event type
// has a headline; an unknown type is an error rather than a generic message.
func Headline(ev events.Event) (string, error) {
	where := ev.Course
	if ev.Section != "" {
		where = ev.Course + " section " + ev.Section
	}

	switch ev.Type {
	case events.CourseAdded:
		return fmt.Sprintf("New course %s", where), nil
	case events.CourseRemoved:
		return fmt.Sprintf("%s was removed from the catalog", where), nil
	case events.SectionAdded:
		return fmt.Sprintf("New section: %s", where), nil
	case events.SectionRemoved:
		return fmt.Sprintf("%s was removed", where), nil
	case events.CourseNameChanged:
		return fmt.Sprintf("%s was renamed", where), nil
	case events.CourseDescriptionChanged:
		return fmt.Sprintf("%s has a new description", where), nil
	case events.InstructorChanged:
		return fmt.Sprintf("Instructor changed for %s", where), nil
	case events.TotalSeatsChanged:
		return fmt.Sprintf("Total seats changed for %s", where), nil
	case events.OpenSeatsChanged:
		return fmt.Sprintf("Open seats changed for %s", where), nil
	case events.WaitlistChanged:
		return fmt.Sprintf("Waitlist changed for %s", where), nil
	case events.HoldfileChanged:
		return fmt.Sprintf("Holdfile changed for %s", where), nil
	case events.MeetingTimesChanged:
		return fmt.Sprintf("Meeting times changed for %s", where), nil
	case events.OpenSeatAvailable:
		return fmt.Sprintf("A seat opened up in %s", where), nil
	default:
		return "", fmt.Errorf("no headline for event type %q", ev.Type)
	}
}

// detail describes the change in plain text, empty for lifecycle events.
func detail(ev events.Event) string {
	switch c := ev.Change.(type) {
	case events.CountChange:
		return fmt.Sprintf("%d → %d", c.Old, c.New)
	case events.TextChange:
		if ev.Type == events.MeetingTimesChanged {
			return fmt.Sprintf("%s → %s", describeMeetings(c.Old), describeMeetings(c.New))
		}
		return fmt.Sprintf("%s → %s", orNone(c.Old), orNone(c.New))
	default:
		return ""
	}
}

// DiscordPayload renders the event as a Discord webhook message.
func DiscordPayload(ev events.Event) ([]byte, error) {
	headline, err := Headline(ev)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	m := md.NewMarkdown(&b)
	m.PlainText(md.Bold(headline))
	if ev.Title != "" {
		m.PlainText(md.Italic(ev.Title))
	}
	switch c := ev.Change.(type) {
	case events.CountChange:
		m.PlainText(fmt.Sprintf("%s → %s", md.Code(fmt.Sprint(c.Old)), md.Code(fmt.Sprint(c.New))))
	case events.TextChange:
		if ev.Type == events.MeetingTimesChanged {
			m.PlainText("Before:").BulletList(meetingLines(c.Old)...)
			m.PlainText("After:").BulletList(meetingLines(c.New)...)
		} else {
			m.PlainText(fmt.Sprintf("%s → %s", md.Code(orNone(c.Old)), md.Code(orNone(c.New))))
		}
	}
	if err := m.Build(); err != nil {
		return nil, fmt.Errorf("render discord message: %w", err)
	}

	content := strings.TrimSpace(b.String())
	if len(content) > discordContentLimit {
		content = strings.ToValidUTF8(content[:discordContentLimit-1], "") + "…"
	}
	return json.Marshal(struct {
		Content  string `json:"content"`
		Username string `json:"username"`
	}{Content: content, Username: "seatwatch"})
}

// WebhookPayload renders the event for a generic JSON webhook.
func WebhookPayload(ev events.Event) ([]byte, error) {
	headline, err := Headline(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Headline string       `json:"headline"`
		Event    events.Event `json:"event"`
	}{Headline: headline, Event: ev})
}

// PushPayload renders the event as a push notification.
func PushPayload(ev events.Event) ([]byte, error) {
	headline, err := Headline(ev)
	if err != nil {
		return nil, err
	}
	body := detail(ev)
	if body == "" {
		body = ev.Title
	}
	return json.Marshal(struct {
		Title   string `json:"title"`
		Body    string `json:"body"`
		EventID string `json:"event_id"`
		Tag     string `json:"tag"`
	}{Title: headline, Body: body, EventID: ev.ID, Tag: ev.Key()})
}

// Payload renders ev for the given channel kind.
func Payload(kind ChannelKind, ev events.Event) ([]byte, error) {
	switch kind {
	case ChannelPush:
		return PushPayload(ev)
	case ChannelDiscord:
		return DiscordPayload(ev)
	case ChannelWebhook:
		return WebhookPayload(ev)
	default:
		return nil, fmt.Errorf("unknown channel %q", kind)
	}
}

func meetingLines(encoded string) []string {
	meetings, err := catalog.ParseMeetings(encoded)
	if err != nil || len(meetings) == 0 {
		return []string{"none"}
	}
	lines := make([]string, len(meetings))
	for i, m := range meetings {
		lines[i] = formatMeeting(m)
	}
	return lines
}

func describeMeetings(encoded string) string {
	return strings.Join(meetingLines(encoded), "; ")
}

func formatMeeting(m catalog.Meeting) string {
	var parts []string
	if m.Days != "" {
		parts = append(parts, m.Days)
	}
	if m.Start != "" || m.End != "" {
		parts = append(parts, m.Start+"-"+m.End)
	}
	if loc := strings.TrimSpace(m.Building + " " + m.Room); loc != "" {
		parts = append(parts, loc)
	}
	if m.Kind != "" {
		parts = append(parts, "("+m.Kind+")")
	}
	if len(parts) == 0 {
		return "TBA"
	}
	return strings.Join(parts, " ")
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
