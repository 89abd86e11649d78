// Package profile manages delivery profiles and community channels.
package profile

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/seatwatch/cmd/seatwatch/cmd/completion"
	"github.com/agentstation/seatwatch/internal/appcontext"
	"github.com/agentstation/seatwatch/internal/cmd/output"
	"github.com/agentstation/seatwatch/pkg/errors"
	"github.com/agentstation/seatwatch/pkg/notify"
	"github.com/agentstation/seatwatch/pkg/subscriptions"
)

// NewCommand creates the profile command.
func NewCommand(app appcontext.Interface) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "profile",
		GroupID: "management",
		Short:   "Manage delivery profiles and community channels",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newGetCommand(app))
	cmd.AddCommand(newSetCommand(app))
	cmd.AddCommand(newCommunityCommand(app))

	return cmd
}

func newGetCommand(app appcontext.Interface) *cobra.Command {
	return &cobra.Command{
		Use:   "get <user-id>",
		Short: "Show a user's profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := app.Store(ctx)
			if err != nil {
				return err
			}
			p, err := store.Profile(ctx, args[0])
			if err != nil {
				return err
			}
			return printProfile(cmd, app, p)
		},
	}
}

// SetFlags are the profile fields set from the command line.
type SetFlags struct {
	Tier    string
	Push    string
	Discord string
	Webhook string
	Disable []string
}

func newSetCommand(app appcontext.Interface) *cobra.Command {
	flags := &SetFlags{}

	cmd := &cobra.Command{
		Use:   "set <user-id>",
		Short: "Create or update a user's profile",
		Long: `Set updates the given fields of a user's profile, creating it when it
does not exist. Setting a channel target enables that channel; --disable
turns channels off without forgetting their targets.

The tier decides which channels are used: none receives nothing, basic
receives push and Discord, pro receives every channel.`,
		Example: `  seatwatch profile set alice --tier pro --discord https://discord.com/api/webhooks/1/abc
  seatwatch profile set alice --disable webhook`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := app.Store(ctx)
			if err != nil {
				return err
			}

			p, err := store.Profile(ctx, args[0])
			switch {
			case errors.IsNotFound(err):
				p = notify.Profile{UserID: args[0], Tier: notify.TierNone}
			case err != nil:
				return err
			}

			if err := Apply(&p, flags); err != nil {
				return err
			}
			if err := p.Validate(); err != nil {
				return err
			}
			if err := store.SaveProfile(ctx, p); err != nil {
				return err
			}
			app.Logger().Info().Str("user", p.UserID).Str("tier", string(p.Tier)).Msg("Profile saved")
			return printProfile(cmd, app, p)
		},
	}

	cmd.Flags().StringVar(&flags.Tier, "tier", "", "access tier: none, basic or pro")
	cmd.Flags().StringVar(&flags.Push, "push", "", "push endpoint")
	cmd.Flags().StringVar(&flags.Discord, "discord", "", "Discord webhook URL")
	cmd.Flags().StringVar(&flags.Webhook, "webhook", "", "generic webhook URL")
	cmd.Flags().StringSliceVar(&flags.Disable, "disable", nil, "channels to disable: push, discord, webhook")
	_ = cmd.RegisterFlagCompletionFunc("tier", completion.Values(string(notify.TierNone), string(notify.TierBasic), string(notify.TierPro)))
	_ = cmd.RegisterFlagCompletionFunc("disable", completion.Values(string(notify.ChannelPush), string(notify.ChannelDiscord), string(notify.ChannelWebhook)))

	return cmd
}

// Apply merges flags into p.
func Apply(p *notify.Profile, flags *SetFlags) error {
	if flags.Tier != "" {
		tier, err := notify.ParseTier(flags.Tier)
		if err != nil {
			return err
		}
		p.Tier = tier
	}

	channels := map[notify.ChannelKind]*notify.Channel{
		notify.ChannelPush:    &p.Push,
		notify.ChannelDiscord: &p.Discord,
		notify.ChannelWebhook: &p.Webhook,
	}
	for kind, target := range map[notify.ChannelKind]string{
		notify.ChannelPush:    flags.Push,
		notify.ChannelDiscord: flags.Discord,
		notify.ChannelWebhook: flags.Webhook,
	} {
		if target != "" {
			*channels[kind] = notify.Channel{Target: target, Enabled: true}
		}
	}
	for _, name := range flags.Disable {
		ch, ok := channels[notify.ChannelKind(name)]
		if !ok {
			return errors.NewValidationError("disable", name, "must be push, discord or webhook")
		}
		ch.Enabled = false
	}
	return nil
}

func newCommunityCommand(app appcontext.Interface) *cobra.Command {
	var (
		semester string
		scope    string
		dept     string
	)

	cmd := &cobra.Command{
		Use:   "community <webhook-url>",
		Short: "Register a shared channel for a department or everything",
		Long: `Community registers a Discord or webhook URL that receives every event
of a department, or of the whole semester with --scope everything.
Community channels ignore user tiers and settings.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := subscriptions.ParseScope(scope)
			if err != nil {
				return err
			}
			key, err := subscriptions.KeyFor(s, dept, "", "")
			if err != nil {
				return err
			}
			store, err := app.Store(ctx)
			if err != nil {
				return err
			}
			if err := store.AddCommunityChannel(ctx, semester, s, key, args[0]); err != nil {
				return err
			}
			app.Logger().Info().Str("scope", scope).Str("key", key).Msg("Community channel registered")
			return nil
		},
	}

	cmd.Flags().StringVar(&semester, "semester", "", "semester (required)")
	cmd.Flags().StringVar(&scope, "scope", string(subscriptions.ScopeDepartment), "department or everything")
	cmd.Flags().StringVar(&dept, "dept", "", "department prefix")
	_ = cmd.MarkFlagRequired("semester")

	return cmd
}

func printProfile(cmd *cobra.Command, app appcontext.Interface, p notify.Profile) error {
	format, err := output.ParseFormat(app.OutputFormat())
	if err != nil {
		return err
	}
	return output.FormatProfile(cmd.OutOrStdout(), p, format)
}
