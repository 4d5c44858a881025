package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/termdock/internal/appconfig"
	"pkt.systems/termdock/schema"
)

// clientFlags carries the flags shared by every remote control command.
type clientFlags struct {
	cfgPath string
	user    string
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVarP(&f.user, "user", "u", defaultUsername(), "control channel username")
}

func (f *clientFlags) run(cmd *cobra.Command, command string) error {
	cfg, err := appconfig.Load(f.cfgPath)
	if err != nil {
		return err
	}
	username, err := requireUsername(f.user)
	if err != nil {
		return err
	}
	return runControl(cmd.Context(), cfg, username, command, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
}

func newToggleCmd() *cobra.Command {
	flags := &clientFlags{}
	cmd := &cobra.Command{
		Use:   "toggle <session>",
		Short: "Show the named session, hiding any other; hide it if visible",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := schema.SessionName(args[0])
			if err := schema.ValidateSessionName(name); err != nil {
				return err
			}
			return flags.run(cmd, fmt.Sprintf("toggle %s", name))
		},
	}
	flags.register(cmd)
	return cmd
}

func newListCmd() *cobra.Command {
	flags := &clientFlags{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions and their states",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.run(cmd, "list")
		},
	}
	flags.register(cmd)
	return cmd
}

func newHideAllCmd() *cobra.Command {
	flags := &clientFlags{}
	cmd := &cobra.Command{
		Use:   "hide-all",
		Short: "Hide every visible session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.run(cmd, "hide-all")
		},
	}
	flags.register(cmd)
	return cmd
}

func newLastCmd() *cobra.Command {
	flags := &clientFlags{}
	cmd := &cobra.Command{
		Use:   "last <session>",
		Short: "Show the last captured exit output for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := schema.SessionName(args[0])
			if err := schema.ValidateSessionName(name); err != nil {
				return err
			}
			return flags.run(cmd, fmt.Sprintf("last %s", name))
		},
	}
	flags.register(cmd)
	return cmd
}

func newWatchCmd() *cobra.Command {
	flags := &clientFlags{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream session lifecycle events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.run(cmd, "watch")
		},
	}
	flags.register(cmd)
	return cmd
}
