// Package notify turns resolved recipients into delivery jobs.
//
// Push notifications are sent directly through a rate-limited sender.
// Discord and generic webhook deliveries are placed on one of N shard
// queues chosen by hashing the target URL, and are delivered later by a
// queue consumer. The dispatcher's work ends once a job is enqueued.
package notify

import (
	"context"

	"github.com/agentstation/seatwatch/pkg/errors"
	"github.com/agentstation/seatwatch/pkg/subscriptions"
)

// ChannelKind names a delivery channel.
type ChannelKind string

// Delivery channels.
const (
	ChannelPush    ChannelKind = "push"
	ChannelDiscord ChannelKind = "discord"
	ChannelWebhook ChannelKind = "webhook"
)

// Tier is a user's access tier. It limits which channels are used.
type Tier string

// Access tiers.
const (
	TierNone  Tier = "none"
	TierBasic Tier = "basic"
	TierPro   Tier = "pro"
)

// ParseTier parses a tier name. The empty string is TierNone.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case "", TierNone:
		return TierNone, nil
	case TierBasic, TierPro:
		return Tier(s), nil
	default:
		return "", errors.NewValidationError("tier", s, "must be none, basic or pro")
	}
}

// Allows reports whether the tier may receive deliveries on kind.
func (t Tier) Allows(kind ChannelKind) bool {
	switch t {
	case TierPro:
		return kind == ChannelPush || kind == ChannelDiscord || kind == ChannelWebhook
	case TierBasic:
		return kind == ChannelPush || kind == ChannelDiscord
	default:
		return false
	}
}

// Channel is one configured delivery destination.
type Channel struct {
	Target  string `json:"target,omitempty"`
	Enabled bool   `json:"enabled"`
}

// Active reports whether the channel should receive deliveries.
func (c Channel) Active() bool {
	return c.Enabled && c.Target != ""
}

// Profile holds a user's delivery configuration.
type Profile struct {
	UserID  string  `json:"user_id"`
	Tier    Tier    `json:"tier"`
	Push    Channel `json:"push"`
	Discord Channel `json:"discord"`
	Webhook Channel `json:"webhook"`
}

// Channels returns the profile's active channels that its tier allows.
func (p Profile) Channels() map[ChannelKind]string {
	out := make(map[ChannelKind]string, 3)
	for kind, ch := range map[ChannelKind]Channel{
		ChannelPush:    p.Push,
		ChannelDiscord: p.Discord,
		ChannelWebhook: p.Webhook,
	} {
		if ch.Active() && p.Tier.Allows(kind) {
			out[kind] = ch.Target
		}
	}
	return out
}

// Validate checks a profile before it is written.
func (p Profile) Validate() error {
	if p.UserID == "" {
		return errors.NewValidationError("user_id", nil, "user id is required")
	}
	if _, err := ParseTier(string(p.Tier)); err != nil {
		return err
	}
	return nil
}

// ProfileStore reads delivery profiles. A user without a profile returns
// a NotFoundError.
type ProfileStore interface {
	Profile(ctx context.Context, userID string) (Profile, error)
}

// CommunityStore lists shared channels registered against a department or
// the everything scope. They are notified for every event in that scope.
type CommunityStore interface {
	Channels(ctx context.Context, semester string, scope subscriptions.Scope, key string) ([]string, error)
}
