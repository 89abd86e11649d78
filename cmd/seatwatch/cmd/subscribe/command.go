// Package subscribe manages subscriptions from the command line.
package subscribe

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/seatwatch/cmd/seatwatch/cmd/completion"
	"github.com/agentstation/seatwatch/internal/appcontext"
	"github.com/agentstation/seatwatch/internal/cmd/output"
	"github.com/agentstation/seatwatch/pkg/events"
	"github.com/agentstation/seatwatch/pkg/subscriptions"
)

// Target selects the scope a subscription applies to.
type Target struct {
	Semester   string
	Scope      string
	Department string
	Course     string
	Section    string
}

func addTargetFlags(cmd *cobra.Command, t *Target) {
	cmd.Flags().StringVar(&t.Semester, "semester", "", "semester (required)")
	cmd.Flags().StringVar(&t.Scope, "scope", string(subscriptions.ScopeSection), "section, course, department or everything")
	cmd.Flags().StringVar(&t.Department, "dept", "", "department prefix (department scope)")
	cmd.Flags().StringVar(&t.Course, "course", "", "course id, e.g. CMSC131")
	cmd.Flags().StringVar(&t.Section, "section", "", "section id, e.g. 0101")
	_ = cmd.MarkFlagRequired("semester")
	_ = cmd.RegisterFlagCompletionFunc("scope", completion.Values(
		string(subscriptions.ScopeSection), string(subscriptions.ScopeCourse),
		string(subscriptions.ScopeDepartment), string(subscriptions.ScopeEverything)))
}

// resolve parses the scope and builds its key.
func (t Target) resolve() (subscriptions.Scope, string, error) {
	scope, err := subscriptions.ParseScope(t.Scope)
	if err != nil {
		return "", "", err
	}
	key, err := subscriptions.KeyFor(scope, t.Department, t.Course, t.Section)
	if err != nil {
		return "", "", err
	}
	return scope, key, nil
}

// NewCommand creates the subscribe command.
func NewCommand(app appcontext.Interface) *cobra.Command {
	var (
		target  Target
		enable  []string
		disable []string
	)

	cmd := &cobra.Command{
		Use:     "subscribe <user-id>",
		GroupID: "management",
		Short:   "Create or replace a user's subscription at one scope",
		Long: `Subscribe writes a user's settings at one scope. Event types not listed
fall back to broader scopes and then to the baseline, which enables
lifecycle, name, description, instructor and meeting time changes.

Seat counts, waitlist and holdfile changes and open seat alerts must be
enabled explicitly.`,
		Example: `  # Alert when CMSC131 section 0101 gets an open seat
  seatwatch subscribe alice --semester 202508 --course CMSC131 --section 0101 \
    --enable open_seat_available

  # Everything in CMSC, except instructor changes
  seatwatch subscribe alice --semester 202508 --scope department --dept CMSC \
    --disable instructor_changed`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			scope, key, err := target.resolve()
			if err != nil {
				return err
			}
			settings, err := parseSettings(enable, disable)
			if err != nil {
				return err
			}

			sub := subscriptions.Subscription{
				Semester:  target.Semester,
				Scope:     scope,
				Key:       key,
				UserID:    args[0],
				Settings:  settings,
				UpdatedAt: time.Now().UTC(),
			}
			if err := sub.Validate(); err != nil {
				return err
			}

			store, err := app.Store(ctx)
			if err != nil {
				return err
			}
			if err := store.Subscribe(ctx, sub); err != nil {
				return err
			}
			app.Logger().Info().Str("user", sub.UserID).Str("scope", string(scope)).Str("key", key).Msg("Subscribed")

			format, err := output.ParseFormat(app.OutputFormat())
			if err != nil {
				return err
			}
			return output.FormatSubscriptions(cmd.OutOrStdout(), []subscriptions.Subscription{sub}, format)
		},
	}

	addTargetFlags(cmd, &target)
	cmd.Flags().StringSliceVar(&enable, "enable", nil, "event types to enable")
	cmd.Flags().StringSliceVar(&disable, "disable", nil, "event types to disable")
	_ = cmd.RegisterFlagCompletionFunc("enable", completion.EventTypes)
	_ = cmd.RegisterFlagCompletionFunc("disable", completion.EventTypes)

	cmd.AddCommand(newListCommand(app))

	return cmd
}

// NewUnsubscribeCommand creates the unsubscribe command.
func NewUnsubscribeCommand(app appcontext.Interface) *cobra.Command {
	var target Target

	cmd := &cobra.Command{
		Use:     "unsubscribe <user-id>",
		GroupID: "management",
		Short:   "Remove a user's subscription at one scope",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			scope, key, err := target.resolve()
			if err != nil {
				return err
			}
			store, err := app.Store(ctx)
			if err != nil {
				return err
			}
			if err := store.Unsubscribe(ctx, target.Semester, scope, key, args[0]); err != nil {
				return err
			}
			app.Logger().Info().Str("user", args[0]).Str("scope", string(scope)).Str("key", key).Msg("Unsubscribed")
			return nil
		},
	}

	addTargetFlags(cmd, &target)
	return cmd
}

func newListCommand(app appcontext.Interface) *cobra.Command {
	var target Target

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the subscribers of one scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			scope, key, err := target.resolve()
			if err != nil {
				return err
			}
			store, err := app.Store(ctx)
			if err != nil {
				return err
			}
			subs, err := store.Subscribers(ctx, target.Semester, scope, key)
			if err != nil {
				return err
			}
			format, err := output.ParseFormat(app.OutputFormat())
			if err != nil {
				return err
			}
			return output.FormatSubscriptions(cmd.OutOrStdout(), subs, format)
		},
	}

	addTargetFlags(cmd, &target)
	return cmd
}

// parseSettings builds explicit settings. Disable wins when a type is in
// both lists.
func parseSettings(enable, disable []string) (subscriptions.Settings, error) {
	settings := subscriptions.Settings{}
	for _, list := range []struct {
		names []string
		value bool
	}{{enable, true}, {disable, false}} {
		for _, name := range list.names {
			t, err := events.ParseType(name)
			if err != nil {
				return nil, err
			}
			settings[t] = list.value
		}
	}
	return settings, nil
}
