package app

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/agentstation/seatwatch/cmd/seatwatch/cmd/completion"
	"github.com/agentstation/seatwatch/cmd/seatwatch/cmd/deliver"
	"github.com/agentstation/seatwatch/cmd/seatwatch/cmd/diff"
	"github.com/agentstation/seatwatch/cmd/seatwatch/cmd/feed"
	"github.com/agentstation/seatwatch/cmd/seatwatch/cmd/profile"
	"github.com/agentstation/seatwatch/cmd/seatwatch/cmd/run"
	"github.com/agentstation/seatwatch/cmd/seatwatch/cmd/serve"
	"github.com/agentstation/seatwatch/cmd/seatwatch/cmd/subscribe"
	"github.com/agentstation/seatwatch/cmd/seatwatch/cmd/version"
)

// Execute runs the CLI with args.
func (a *App) Execute(ctx context.Context, args []string) error {
	rootCmd := a.createRootCommand()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// createRootCommand builds the command tree.
func (a *App) createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "seatwatch",
		Short:   "Course registration catalog tracker",
		Version: a.version,
		Long: `Seatwatch tracks a university course catalog across scrapes and
notifies subscribers when seats open, waitlists move, instructors change
or meeting times shift.

Each scrape cycle diffs the new catalog snapshot against the previous one,
stores the resulting events, fans notifications out to subscribers over
push, Discord and webhooks, and appends a trimmed copy to the live feed.`,
		PersistentPreRunE: a.setupCommand,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	rootCmd.AddGroup(&cobra.Group{
		ID:    "core",
		Title: "Core Commands:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "management",
		Title: "Management Commands:",
	})

	addGlobalFlags(rootCmd.PersistentFlags())
	rootCmd.SetVersionTemplate("seatwatch {{.Version}}\n")

	a.registerCommands(rootCmd)

	return rootCmd
}

// setupCommand reloads the configuration when --config names another
// file, applies the global flags on top and builds the logger.
func (a *App) setupCommand(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	if file, _ := flags.GetString("config"); file != "" && file != a.config.ConfigFile {
		if err := os.Setenv(envPrefix+"_CONFIG", file); err != nil {
			return err
		}
		reloaded, err := LoadConfig()
		if err != nil {
			return err
		}
		reloaded.ConfigFile = file
		a.config = reloaded
	}
	a.config.ApplyFlags(flags)

	logger := NewLogger(a.config)
	a.logger = &logger
	return nil
}

// addGlobalFlags defines the flags every command accepts. Their values are
// read back by Config.ApplyFlags, and only when set.
func addGlobalFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (default is $HOME/.seatwatch.yaml)")
	fs.BoolP("verbose", "v", false, "verbose output (shortcut for --log-level=debug)")
	fs.BoolP("quiet", "q", false, "minimal output (shortcut for --log-level=warn)")
	fs.Bool("no-color", false, "disable colored output")
	fs.StringP("format", "o", "", "output format: table, json, yaml, wide, markdown (default: table on a terminal, json otherwise)")
	fs.String("log-level", "", "log level: trace, debug, info, warn, error (overrides -v/-q)")
	fs.String("db", "", `database file, or "memory" for an in-process store (default ~/.seatwatch/seatwatch.db)`)
}

// registerCommands adds the subcommands and global flag completions.
func (a *App) registerCommands(rootCmd *cobra.Command) {
	// Core commands
	rootCmd.AddCommand(run.NewCommand(a))
	rootCmd.AddCommand(serve.NewCommand(a))
	rootCmd.AddCommand(deliver.NewCommand(a))
	rootCmd.AddCommand(diff.NewCommand(a))
	rootCmd.AddCommand(feed.NewCommand(a))

	// Management commands
	rootCmd.AddCommand(subscribe.NewCommand(a))
	rootCmd.AddCommand(subscribe.NewUnsubscribeCommand(a))
	rootCmd.AddCommand(profile.NewCommand(a))

	// Utility commands
	rootCmd.AddCommand(version.NewCommand(a))
	rootCmd.AddCommand(completion.NewCommand())

	_ = rootCmd.RegisterFlagCompletionFunc("format", completion.Values("table", "wide", "json", "yaml", "markdown"))
	_ = rootCmd.RegisterFlagCompletionFunc("log-level", completion.Values(validLevels...))
}

// ExitOnError prints err and exits with status 1.
func ExitOnError(err error) {
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
