package main

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/termdock/internal/appconfig"
	"pkt.systems/termdock/internal/auth"
	"pkt.systems/termdock/internal/clientkeys"
	"pkt.systems/termdock/internal/tmuxhost"
	"pkt.systems/termdock/sshserver"
)

func newDoctorCmd() *cobra.Command {
	var cfgPath string
	var skipTmux bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run termdock diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())

			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			configPath := cfgPath
			if strings.TrimSpace(configPath) == "" {
				path, err := appconfig.DefaultConfigPath()
				if err != nil {
					return err
				}
				configPath = path
			}
			logger.Info("doctor start", "config", configPath)
			logger.Info("doctor config ok", "sessions", len(cfg.Sessions))

			if !skipTmux {
				binary, err := exec.LookPath(cfg.Tmux.Binary)
				if err != nil {
					return fmt.Errorf("tmux binary %q not found in PATH: %w", cfg.Tmux.Binary, err)
				}
				logger.Info("doctor tmux binary ok", "binary", binary)

				host := tmuxhost.New(tmuxhost.Config{
					Binary:        cfg.Tmux.Binary,
					SocketName:    cfg.Tmux.SocketName,
					DockSession:   cfg.Tmux.DockSession,
					TargetSession: cfg.Tmux.TargetSession,
					PollInterval:  time.Duration(cfg.Tmux.PollIntervalMS) * time.Millisecond,
				}, logger)
				defer host.Close()
				if err := host.EnsureReady(cmd.Context()); err != nil {
					return err
				}
				logger.Info("doctor tmux host ok", "socket", cfg.Tmux.SocketName, "dock", cfg.Tmux.DockSession)
			}

			if _, err := sshserver.EnsureHostKey(cfg.SSH.HostKeyPath); err != nil {
				return err
			}
			logger.Info("doctor ssh host key ok", "path", cfg.SSH.HostKeyPath)

			store, err := auth.NewStore(cfg.Auth.UserFile, cfg.Auth.SeedUsers, logger)
			if err != nil {
				return err
			}
			logger.Info("doctor auth store ok", "users", len(store.Users()))

			if _, err := clientkeys.NewStore(cfg.SSH.KeyStorePath, cfg.SSH.KeyDir, logger); err != nil {
				return err
			}
			logger.Info("doctor client key store ok", "key_store", cfg.SSH.KeyStorePath)

			logger.Info("doctor complete")
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&skipTmux, "skip-tmux", false, "skip tmux host checks")
	return cmd
}
