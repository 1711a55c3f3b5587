package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"berryBot/internal/app/runtime"
	"berryBot/internal/infrastructure/config"
	sqlitestorage "berryBot/internal/infrastructure/persistence/sqlite"
	"berryBot/internal/usecase/commands"
	"berryBot/internal/usecase/notifications"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "berrybot",
		Short:        "Twitch chat bot with moderation and custom commands",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newCommandsCmd(), newModerationCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bots for TWITCH_BOT_CHANNELS and the admin server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := runtime.Start(ctx, runtime.Options{})
			if err != nil {
				return err
			}

			var runErr error
			select {
			case <-ctx.Done():
			case runErr = <-rt.ServerErr():
			}

			if err := rt.Stop(); err != nil && runErr == nil {
				runErr = err
			}
			return runErr
		},
	}
}

// openStore opens the database named by the environment config.
func openStore() (*sqlitestorage.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return sqlitestorage.NewStore(cfg.DatabasePath)
}

func newCommandsCmd() *cobra.Command {
	var channel string

	cmd := &cobra.Command{
		Use:   "commands",
		Short: "Manage a channel's custom commands",
	}
	cmd.PersistentFlags().StringVarP(&channel, "channel", "c", "", "channel name")
	_ = cmd.MarkPersistentFlagRequired("channel")

	withService := func(fn func(*commands.Service) error) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		return fn(commands.NewService(commands.NewCustomCommandManager(store)))
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List built-in and custom commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(func(svc *commands.Service) error {
				items, err := svc.List(cmd.Context(), channel)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, item := range items {
					fmt.Fprintf(out, "%s%s\t%s\t%s\n", commands.Marker, item.Name, item.Source, item.Response)
				}
				return nil
			})
		},
	}

	var aliases []string
	add := &cobra.Command{
		Use:   "add NAME RESPONSE",
		Short: "Create or update a custom command",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(svc *commands.Service) error {
				input := commands.CommandMutationDTO{Name: args[0], Response: &args[1]}
				if cmd.Flags().Changed("alias") {
					input.Aliases = &aliases
				}
				saved, err := svc.Upsert(cmd.Context(), channel, input)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved %s%s\n", commands.Marker, saved.Name)
				return nil
			})
		},
	}
	add.Flags().StringSliceVar(&aliases, "alias", nil, "alias for the command (repeatable)")

	remove := &cobra.Command{
		Use:   "remove NAME",
		Short: "Delete a custom command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(svc *commands.Service) error {
				removed, err := svc.Delete(cmd.Context(), channel, args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("no custom command %q in %s", args[0], channel)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s%s\n", commands.Marker, args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(list, add, remove)
	return cmd
}

func newModerationCmd() *cobra.Command {
	var (
		channel string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "moderation",
		Short: "Show recent moderation verdicts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			recorder := notifications.NewVerdictRecorder(store, nil, zerolog.Nop())
			items, err := recorder.Recent(cmd.Context(), channel, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, v := range items {
				fmt.Fprintf(out, "%s\t#%s\t%s\t%s %.3f\t%s\t%s\n", v.DecidedAt, v.Channel, v.Username, v.Category, v.Score, v.Punishment, v.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&channel, "channel", "c", "", "only this channel")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of verdicts")
	return cmd
}
