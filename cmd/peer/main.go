package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-relay/internal/cli"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/log"
	"github.com/vovakirdan/wirechat-relay/internal/peer"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		overrides  config.Config
	)

	root := &cobra.Command{
		Use:          "relay-peer",
		Short:        "Chat peer: direct TCP delivery with tracker fallback",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bootLogger := log.New("info")
			cfg, _, err := config.Load(bootLogger, configPath)
			if err != nil {
				return err
			}
			cfg.UpdateFrom(overrides)
			return run(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	fl := root.Flags()
	fl.StringVar(&configPath, "config", "", "path to config.yaml")
	fl.StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	fl.StringVar(&overrides.Peer.TrackerURL, "tracker", "", "tracker base URL")
	fl.StringVarP(&overrides.Peer.Username, "user", "u", "", "username")
	fl.StringVar(&overrides.Peer.ListenAddr, "listen", "", "peer listen address")
	fl.StringVar(&overrides.Peer.AdvertiseIP, "advertise-ip", "", "IP announced to the tracker")
	fl.StringVar(&overrides.Peer.DataDir, "data-dir", "", "directory for history files")
	return root
}

// syncWriter serializes output from the shell and the inbox consumer.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func run(parent context.Context, cfg config.Config, in io.Reader, rawOut io.Writer) error {
	logger := log.Component(log.New(cfg.LogLevel), "peer")
	out := &syncWriter{w: rawOut}
	reader := bufio.NewReader(in)

	username := cfg.Peer.Username
	if username == "" {
		var err error
		if username, err = cli.Prompt(reader, "Username: ", out); err != nil {
			return err
		}
	}
	password, err := cli.Password(out)
	if err != nil {
		return err
	}

	client, err := peer.NewTrackerClient(cfg.Peer.TrackerURL, cfg.Peer.RequestTimeout, logger)
	if err != nil {
		return err
	}

	node := peer.NewNode(client, peer.NodeConfig{
		Username:          username,
		Password:          password,
		ListenAddr:        cfg.Peer.ListenAddr,
		AdvertiseIP:       cfg.Peer.AdvertiseIP,
		DataDir:           cfg.Peer.DataDir,
		HeartbeatInterval: cfg.Peer.HeartbeatInterval,
		RefreshInterval:   cfg.Peer.RefreshInterval,
		DrainInterval:     cfg.Peer.DrainInterval,
		DialTimeout:       cfg.Peer.DialTimeout,
		OnEntry: func(conversation string, e peer.Entry) {
			if e.From == username {
				return
			}
			fmt.Fprintf(out, "(%s) %s\n", conversation, cli.FormatEntry(username, e))
		},
	}, logger)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := node.Start(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The shell blocks on stdin, so only the node is waited for.
	go func() {
		defer cancel()
		if err := cli.NewShell(node, reader, out).Run(ctx); err != nil {
			logger.Warn().Err(err).Msg("shell stopped")
		}
	}()
	return node.Run(ctx)
}
