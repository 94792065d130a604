package peer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wirechat-relay/internal/log"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/utils"
)

// Default loop periods.
const (
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultRefreshInterval   = 5 * time.Second
)

const shutdownTimeout = 3 * time.Second

// NodeConfig configures a peer node.
type NodeConfig struct {
	Username    string
	Password    string
	ListenAddr  string
	AdvertiseIP string
	DataDir     string

	HeartbeatInterval time.Duration
	RefreshInterval   time.Duration
	DrainInterval     time.Duration
	DialTimeout       time.Duration

	// OnEntry is called for every entry stored in the history.
	OnEntry func(conversation string, e Entry)
}

// Node is a running chat peer: it listens for direct messages, keeps its
// tracker registration alive and stores conversations.
type Node struct {
	cfg       NodeConfig
	tracker   *TrackerClient
	history   *History
	inbox     *Inbox
	listener  *Listener
	deliverer *Deliverer
	log       *zerolog.Logger

	mu       sync.RWMutex
	peers    map[string]proto.PeerInfo
	channels []string
}

// NewNode builds a node on top of a tracker client.
func NewNode(tracker *TrackerClient, cfg NodeConfig, logger *zerolog.Logger) *Node {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "0.0.0.0:0"
	}
	if logger == nil {
		logger = log.Nop()
	}

	n := &Node{
		cfg:     cfg,
		tracker: tracker,
		history: NewHistory(cfg.DataDir, cfg.Username),
		log:     logger,
		peers:   make(map[string]proto.PeerInfo),
	}
	n.inbox = NewInbox(n.history, cfg.DrainInterval, cfg.OnEntry, logger)
	n.listener = NewListener(n.inbox, 0, logger)
	n.deliverer = NewDeliverer(tracker, cfg.Username, DelivererOptions{
		DialTimeout: cfg.DialTimeout,
		Notify:      n.inbox.Push,
		Logger:      logger,
	})
	return n
}

// Start loads the history, logs in, binds the listener, registers and joins
// the default channel.
func (n *Node) Start(ctx context.Context) error {
	if err := n.history.Load(); err != nil {
		n.log.Warn().Err(err).Str("path", n.history.Path()).Msg("starting with empty history")
	}

	if err := n.tracker.Login(ctx, n.cfg.Username, n.cfg.Password); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := n.listener.Listen(n.cfg.ListenAddr); err != nil {
		return err
	}
	if err := n.announce(ctx); err != nil {
		_ = n.listener.Close()
		return err
	}

	n.inbox.Push(SystemContext, Entry{Message: proto.Message{
		From:    SystemSender,
		Message: fmt.Sprintf("listening on port %d", n.listener.Port()),
	}})
	n.refresh(ctx)
	return nil
}

// announce registers the listener and joins the default channel.
func (n *Node) announce(ctx context.Context) error {
	if err := n.tracker.Register(ctx, n.listener.Port(), n.cfg.AdvertiseIP); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if err := n.tracker.Join(ctx, proto.DefaultChannel); err != nil {
		return fmt.Errorf("join %s: %w", proto.DefaultChannel, err)
	}
	n.log.Info().Str("username", n.cfg.Username).Int("port", n.listener.Port()).Msg("registered with tracker")
	return nil
}

// Run serves until ctx is done. On return the node has logged out and saved
// its history.
func (n *Node) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return n.listener.Serve(gctx) })
	g.Go(func() error { return n.inbox.Run(gctx) })
	g.Go(func() error { return every(gctx, n.cfg.HeartbeatInterval, n.heartbeat) })
	g.Go(func() error { return every(gctx, n.cfg.RefreshInterval, n.refresh) })

	err := g.Wait()
	n.shutdown()
	return err
}

func (n *Node) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := n.tracker.Logout(ctx); err != nil {
		n.log.Warn().Err(err).Msg("logout failed")
	}
	n.inbox.Drain()
	if err := n.history.Save(); err != nil {
		n.log.Error().Err(err).Msg("failed to save history")
	}
	n.log.Info().Msg("peer stopped")
}

func every(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (n *Node) heartbeat(ctx context.Context) {
	err := n.tracker.Heartbeat(ctx)
	switch {
	case err == nil:
		return
	case errors.Is(err, ErrNotRegistered):
		n.log.Warn().Msg("tracker forgot this peer, registering again")
		if err := n.announce(ctx); err != nil {
			n.log.Error().Err(err).Msg("re-register failed")
		}
	case errors.Is(err, ErrUnauthorized):
		n.log.Warn().Msg("session rejected, logging in again")
		if err := n.tracker.Login(ctx, n.cfg.Username, n.cfg.Password); err != nil {
			n.log.Error().Err(err).Msg("re-login failed")
			return
		}
		if err := n.announce(ctx); err != nil {
			n.log.Error().Err(err).Msg("re-register failed")
		}
	default:
		n.log.Warn().Err(err).Msg("heartbeat failed")
	}
}

// refresh updates the peer and channel tables and fetches offline messages.
func (n *Node) refresh(ctx context.Context) {
	if peers, err := n.tracker.Peers(ctx); err != nil {
		n.log.Warn().Err(err).Msg("refresh peers failed")
	} else {
		n.mu.Lock()
		n.peers = peers
		n.mu.Unlock()
	}

	if channels, err := n.tracker.Channels(ctx); err != nil {
		n.log.Warn().Err(err).Msg("refresh channels failed")
	} else {
		n.mu.Lock()
		n.channels = channels
		n.mu.Unlock()
	}

	n.FetchOffline(ctx)
}

// FetchOffline moves queued tracker messages into the inbox.
func (n *Node) FetchOffline(ctx context.Context) int {
	msgs, err := n.tracker.FetchOffline(ctx)
	if err != nil {
		n.log.Warn().Err(err).Msg("fetch offline failed")
		return 0
	}
	if len(msgs) > 0 {
		n.log.Info().Int("count", len(msgs)).Msg("received offline messages")
	}
	for _, m := range msgs {
		n.inbox.Push(ConversationFor(m.Message), Entry{Message: m.Message, IsOffline: m.IsOffline})
	}
	return len(msgs)
}

// SendDirect sends text to target and records it in the conversation.
func (n *Node) SendDirect(ctx context.Context, target, text string) (Route, error) {
	msg := proto.Message{
		ID:      utils.NewMessageID(),
		From:    n.cfg.Username,
		Message: text,
		Type:    proto.TypeDirect,
	}
	n.inbox.Push(DirectConversation(target), Entry{Message: msg})
	return n.deliverer.SendDirect(ctx, target, msg)
}

// SendChannel broadcasts text to channel and records it in the conversation.
func (n *Node) SendChannel(ctx context.Context, channel, text string) (map[string]Route, error) {
	name := channel
	msg := proto.Message{
		ID:      utils.NewMessageID(),
		From:    n.cfg.Username,
		Message: text,
		Type:    proto.TypeChannel,
		Channel: &name,
	}
	n.inbox.Push(channel, Entry{Message: msg})
	return n.deliverer.Broadcast(ctx, channel, msg)
}

// Join adds this peer to channel.
func (n *Node) Join(ctx context.Context, channel string) error {
	if err := n.tracker.Join(ctx, channel); err != nil {
		return err
	}
	n.refresh(ctx)
	return nil
}

// Username is the logged-in user.
func (n *Node) Username() string {
	return n.cfg.Username
}

// Port is the bound listener port.
func (n *Node) Port() int {
	return n.listener.Port()
}

// History exposes the stored conversations.
func (n *Node) History() *History {
	return n.history
}

// Peers returns the last refreshed peer table.
func (n *Node) Peers() map[string]proto.PeerInfo {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make(map[string]proto.PeerInfo, len(n.peers))
	for k, v := range n.peers {
		out[k] = v
	}
	return out
}

// PeerNames returns the sorted names of known peers.
func (n *Node) PeerNames() []string {
	peers := n.Peers()
	names := make([]string, 0, len(peers))
	for name := range peers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Channels returns the last refreshed channel list.
func (n *Node) Channels() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]string(nil), n.channels...)
}
