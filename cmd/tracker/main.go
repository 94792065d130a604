package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-relay/internal/app"
	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/cli"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/log"
	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
)

type flags struct {
	configPath string
	overrides  config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:          "relay-tracker",
		Short:        "Relay tracker: sessions, presence, channels and offline messages",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), f)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "path to config.yaml")
	pf.StringVar(&f.overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&f.overrides.Tracker.DatabasePath, "db", "", "SQLite database path")

	fl := root.Flags()
	fl.StringVar(&f.overrides.Tracker.Addr, "addr", "", "tracker listen address")
	fl.StringVar(&f.overrides.Tracker.AdminAddr, "admin-addr", "", "admin listen address (health, metrics)")
	fl.StringVar(&f.overrides.Tracker.UsersFile, "users-file", "", "YAML file of username: password to seed")
	fl.StringVar(&f.overrides.Tracker.StaticDir, "static-dir", "", "directory overriding the built-in pages")
	fl.DurationVar(&f.overrides.Tracker.HeartbeatTimeout, "heartbeat-timeout", 0, "evict peers silent for this long")

	root.AddCommand(newUserAddCmd(f))
	return root
}

func loadConfig(f *flags) (config.Config, error) {
	bootLogger := log.New("info")
	cfg, path, err := config.Load(bootLogger, f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	cfg.UpdateFrom(f.overrides)
	bootLogger.Debug().Str("path", path).Msg("config loaded")
	return cfg, nil
}

func serve(parent context.Context, f *flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	logger := log.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg.Tracker, logger)
	if err != nil {
		return err
	}

	logger.Info().Str("addr", cfg.Tracker.Addr).Str("admin_addr", cfg.Tracker.AdminAddr).Msg("starting relay tracker")
	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("tracker exited with error")
		return err
	}
	logger.Info().Msg("tracker stopped")
	return nil
}

func newUserAddCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "useradd <username>",
		Short: "Create a tracker account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}

			st, err := sqlite.New(cfg.Tracker.DatabasePath)
			if err != nil {
				return err
			}
			defer st.Close()

			password, err := cli.Password(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			confirm, err := cli.PasswordPrompt(cmd.OutOrStdout(), "Confirm password: ")
			if err != nil {
				return err
			}
			if confirm != password {
				return fmt.Errorf("passwords do not match")
			}

			svc := auth.NewService(st, core.NewRegistry(core.Options{}))
			user, err := svc.CreateUser(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s\n", user.Username)
			return nil
		},
	}
}
