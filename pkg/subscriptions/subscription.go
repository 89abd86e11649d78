// Package subscriptions resolves which users want to hear about an event.
//
// Users subscribe at one of four scopes within a semester: a single
// section, a course, a department prefix, or everything. Each subscription
// carries per-event-type settings. When a user holds subscriptions at
// several scopes that cover the same event, settings are merged per event
// type with the most specific scope winning, on top of a fixed baseline.
package subscriptions

import (
	"context"
	"maps"
	"time"

	"github.com/agentstation/seatwatch/pkg/catalog"
	"github.com/agentstation/seatwatch/pkg/errors"
	"github.com/agentstation/seatwatch/pkg/events"
)

// Scope is a subscription granularity.
type Scope string

// Scopes from least to most specific.
const (
	ScopeEverything Scope = "everything"
	ScopeDepartment Scope = "department"
	ScopeCourse     Scope = "course"
	ScopeSection    Scope = "section"
)

// EverythingKey is the scope key of the everything scope.
const EverythingKey = "*"

// Precedence lists scopes from lowest to highest merge precedence.
func Precedence() []Scope {
	return []Scope{ScopeEverything, ScopeDepartment, ScopeCourse, ScopeSection}
}

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	switch s {
	case ScopeEverything, ScopeDepartment, ScopeCourse, ScopeSection:
		return true
	default:
		return false
	}
}

// ParseScope parses a scope name.
func ParseScope(s string) (Scope, error) {
	scope := Scope(s)
	if !scope.Valid() {
		return "", errors.NewValidationError("scope", s, "must be one of section, course, department, everything")
	}
	return scope, nil
}

// KeyFor builds the scope key for a subscription target.
// course is required for section and course scopes, and is used to derive
// the department when dept is empty.
func KeyFor(scope Scope, dept, course, section string) (string, error) {
	switch scope {
	case ScopeEverything:
		return EverythingKey, nil
	case ScopeDepartment:
		if dept == "" {
			dept = catalog.Department(course)
		}
		if dept == "" {
			return "", errors.NewValidationError("department", nil, "department or course is required")
		}
		return dept, nil
	case ScopeCourse:
		if course == "" {
			return "", errors.NewValidationError("course", nil, "course is required")
		}
		return course, nil
	case ScopeSection:
		if course == "" || section == "" {
			return "", errors.NewValidationError("section", nil, "course and section are required")
		}
		return course + "-" + section, nil
	default:
		return "", errors.NewValidationError("scope", string(scope), "unknown scope")
	}
}

// Settings maps event types to whether they are enabled. A missing key
// defers to lower-precedence layers.
type Settings map[events.Type]bool

// Clone returns a copy of the settings.
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	maps.Copy(out, s)
	return out
}

// Overlay writes every explicit key of top over s.
func (s Settings) Overlay(top Settings) {
	maps.Copy(s, top)
}

// Enabled reports whether t resolves to true.
func (s Settings) Enabled(t events.Type) bool {
	return s[t]
}

// Baseline returns the categories every subscriber receives unless a scope
// explicitly disables them.
func Baseline() Settings {
	return Settings{
		events.CourseAdded:              true,
		events.CourseRemoved:            true,
		events.SectionAdded:             true,
		events.SectionRemoved:           true,
		events.CourseNameChanged:        true,
		events.CourseDescriptionChanged: true,
		events.InstructorChanged:        true,
		events.MeetingTimesChanged:      true,
	}
}

// Subscription is one user's settings at one scope.
type Subscription struct {
	Semester  string    `json:"semester"`
	Scope     Scope     `json:"scope"`
	Key       string    `json:"key"`
	UserID    string    `json:"user_id"`
	Settings  Settings  `json:"settings,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks a subscription before it is written.
func (s Subscription) Validate() error {
	if s.Semester == "" {
		return errors.NewValidationError("semester", nil, "semester is required")
	}
	if !s.Scope.Valid() {
		return errors.NewValidationError("scope", string(s.Scope), "unknown scope")
	}
	if s.Key == "" {
		return errors.NewValidationError("key", nil, "scope key is required")
	}
	if s.UserID == "" {
		return errors.NewValidationError("user_id", nil, "user id is required")
	}
	for t := range s.Settings {
		if !t.Valid() {
			return errors.NewValidationError("settings", string(t), "unknown event type")
		}
	}
	return nil
}

// Store reads subscriptions. A scope with no subscribers returns an empty
// slice, not an error.
type Store interface {
	Subscribers(ctx context.Context, semester string, scope Scope, key string) ([]Subscription, error)
}

// Writer mutates subscriptions. It is used only by explicit subscribe and
// unsubscribe operations, never by the event pipeline.
type Writer interface {
	Subscribe(ctx context.Context, sub Subscription) error
	Unsubscribe(ctx context.Context, semester string, scope Scope, key, userID string) error
}
