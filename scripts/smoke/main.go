package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/peer"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/utils"
)

func main() {
	if err := run(); err != nil {
		log.Printf("smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("tracker", "http://localhost:8080", "tracker base URL")
	user := flag.String("user", "tester", "username to log in with")
	password := flag.String("password", "", "password for -user")
	to := flag.String("to", "", "recipient of a test message (empty to skip)")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := peer.NewTrackerClient(*addr, *timeout, nil)
	if err != nil {
		return err
	}
	if err := client.Login(ctx, *user, *password); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	fmt.Printf("Logged in as %s\n", *user)

	// Register a port that accepts and discards so the tracker sees a live peer.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port
	if err := client.Register(ctx, port, ""); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	defer func() {
		if err := client.Logout(context.Background()); err != nil {
			fmt.Printf("Logout failed: %v\n", err)
		}
	}()
	fmt.Printf("Registered on port %d\n", port)

	if err := client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}

	peers, err := client.Peers(ctx)
	if err != nil {
		return fmt.Errorf("peers: %w", err)
	}
	for name, info := range peers {
		fmt.Printf("Peer: %s %s:%d last_seen=%d\n", name, info.IP, info.Port, info.LastSeen)
	}

	channels, err := client.Channels(ctx)
	if err != nil {
		return fmt.Errorf("channels: %w", err)
	}
	fmt.Printf("Channels: %v\n", channels)

	if *to != "" {
		d := peer.NewDeliverer(client, *user, peer.DelivererOptions{
			Notify: func(_ string, e peer.Entry) { fmt.Printf("System: %s\n", e.Message.Message) },
		})
		msg := proto.Message{ID: utils.NewMessageID(), From: *user, Message: *text, Type: proto.TypeDirect}
		route, err := d.SendDirect(ctx, *to, msg)
		if err != nil {
			return fmt.Errorf("send: %w", err)
		}
		fmt.Printf("Sent to %s via %s\n", *to, route)
	}

	offline, err := client.FetchOffline(ctx)
	if err != nil {
		return fmt.Errorf("fetch offline: %w", err)
	}
	for _, m := range offline {
		fmt.Printf("Offline: from=%s type=%s text=%q ts=%.0f\n", m.From, m.Type, m.Message.Message, m.Timestamp)
	}
	return nil
}
