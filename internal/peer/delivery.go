package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wirechat-relay/internal/log"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

const (
	// DefaultDialTimeout bounds a direct connection attempt.
	DefaultDialTimeout = 2 * time.Second
	// DefaultBroadcastParallel bounds concurrent deliveries of one broadcast.
	DefaultBroadcastParallel = 8
)

// Route tells how a message reached its recipient.
type Route int

const (
	// RouteFailed means neither direct delivery nor the offline store worked.
	RouteFailed Route = iota
	// RouteDirect means the recipient's listener accepted the payload.
	RouteDirect
	// RouteOffline means the tracker stored the message.
	RouteOffline
)

func (r Route) String() string {
	switch r {
	case RouteDirect:
		return "direct"
	case RouteOffline:
		return "offline"
	default:
		return "failed"
	}
}

// Directory is the tracker surface used for delivery.
type Directory interface {
	Peers(ctx context.Context) (map[string]proto.PeerInfo, error)
	ChannelPeers(ctx context.Context, channel string) (map[string]proto.PeerInfo, error)
	SendOffline(ctx context.Context, target string, msg proto.Message) error
}

// Notify receives system notices for a conversation.
type Notify func(conversation string, e Entry)

// Deliverer sends messages directly to peers and falls back to the
// tracker's offline store.
type Deliverer struct {
	dir         Directory
	self        string
	dialTimeout time.Duration
	parallel    int
	notify      Notify
	log         *zerolog.Logger
}

// DelivererOptions tunes a Deliverer.
type DelivererOptions struct {
	DialTimeout time.Duration
	Parallel    int
	Notify      Notify
	Logger      *zerolog.Logger
}

// NewDeliverer creates a deliverer sending as self.
func NewDeliverer(dir Directory, self string, opts DelivererOptions) *Deliverer {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.Parallel <= 0 {
		opts.Parallel = DefaultBroadcastParallel
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &Deliverer{
		dir:         dir,
		self:        self,
		dialTimeout: opts.DialTimeout,
		parallel:    opts.Parallel,
		notify:      opts.Notify,
		log:         opts.Logger,
	}
}

// SendDirect delivers msg to target. It refreshes the peer table first; an
// unknown target or a failed connection falls back to the offline store
// exactly once.
func (d *Deliverer) SendDirect(ctx context.Context, target string, msg proto.Message) (Route, error) {
	peers, err := d.dir.Peers(ctx)
	if err != nil {
		d.log.Warn().Err(err).Msg("peer refresh failed")
	}

	info, known := peers[target]
	if !known {
		return d.fallback(ctx, target, msg, DirectConversation(target))
	}
	return d.deliver(ctx, target, info, msg, DirectConversation(target))
}

// Broadcast delivers msg to every active member of channel except the
// sender. Each member is handled independently.
func (d *Deliverer) Broadcast(ctx context.Context, channel string, msg proto.Message) (map[string]Route, error) {
	members, err := d.dir.ChannelPeers(ctx, channel)
	if err != nil {
		d.system(channel, fmt.Sprintf("could not list members of %s: %v", channel, err))
		return nil, fmt.Errorf("channel peers: %w", err)
	}

	var (
		mu     sync.Mutex
		routes = make(map[string]Route, len(members))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.parallel)
	for user, info := range members {
		if user == d.self {
			continue
		}
		g.Go(func() error {
			route, _ := d.deliver(gctx, user, info, msg, channel)
			mu.Lock()
			routes[user] = route
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return routes, nil
}

func (d *Deliverer) deliver(ctx context.Context, target string, info proto.PeerInfo, msg proto.Message, conversation string) (Route, error) {
	if err := d.dial(ctx, info, msg); err != nil {
		d.log.Info().Err(err).Str("target", target).Msg("direct delivery failed, storing offline")
		return d.fallback(ctx, target, msg, conversation)
	}
	d.log.Debug().Str("target", target).Msg("delivered directly")
	return RouteDirect, nil
}

func (d *Deliverer) fallback(ctx context.Context, target string, msg proto.Message, conversation string) (Route, error) {
	if err := d.dir.SendOffline(ctx, target, msg); err != nil {
		d.log.Error().Err(err).Str("target", target).Msg("offline store rejected message")
		d.system(conversation, fmt.Sprintf("error: message to %s was not saved: %v", target, err))
		return RouteFailed, fmt.Errorf("send offline to %s: %w", target, err)
	}
	d.system(conversation, fmt.Sprintf("user %s offline, saved on server", target))
	return RouteOffline, nil
}

func (d *Deliverer) dial(ctx context.Context, info proto.PeerInfo, msg proto.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	dialer := net.Dialer{Timeout: d.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(info.IP, strconv.Itoa(info.Port)))
	if err != nil {
		return err
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(d.dialTimeout))
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (d *Deliverer) system(conversation, text string) {
	if d.notify == nil {
		return
	}
	d.notify(conversation, Entry{Message: proto.Message{From: SystemSender, Message: text}})
}
