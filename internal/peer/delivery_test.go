package peer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

// serveListener runs a listener for user on loopback and registers it.
func serveListener(t *testing.T, c *TrackerClient) (*Inbox, *History) {
	t.Helper()

	history := NewHistory(t.TempDir(), "test")
	inbox := NewInbox(history, 0, nil, nil)
	l := NewListener(inbox, time.Second, nil)
	require.NoError(t, l.Listen("127.0.0.1:0"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.NoError(t, c.Register(context.Background(), l.Port(), ""))
	return inbox, history
}

func directMessage(from, text string) proto.Message {
	return proto.Message{ID: from + "-" + text, From: from, Message: text, Type: proto.TypeDirect}
}

func TestSendDirectDeliversOverTCP(t *testing.T) {
	tr := startTracker(t)
	ctx := context.Background()
	alice := loggedIn(t, tr, "alice")
	bob := loggedIn(t, tr, "bob")
	bobInbox, bobHistory := serveListener(t, bob)

	sent := newNotices()
	d := NewDeliverer(alice, "alice", DelivererOptions{Notify: sent.push})

	msg := directMessage("alice", "hello bob")
	route, err := d.SendDirect(ctx, "bob", msg)
	require.NoError(t, err)
	require.Equal(t, RouteDirect, route)

	require.Eventually(t, func() bool { return bobInbox.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, bobInbox.Drain())

	got := bobHistory.Conversation("dm_alice")
	require.Len(t, got, 1)
	require.Equal(t, msg, got[0].Message)
	require.False(t, got[0].IsOffline)

	offline, err := bob.FetchOffline(ctx)
	require.NoError(t, err)
	require.Empty(t, offline)
	require.Empty(t, sent.get("dm_bob"))
}

func TestSendDirectFallsBackWhenListenerDown(t *testing.T) {
	tr := startTracker(t)
	ctx := context.Background()
	alice := loggedIn(t, tr, "alice")
	bob := loggedIn(t, tr, "bob")
	require.NoError(t, bob.Register(ctx, deadPort(t), ""))

	sent := newNotices()
	d := NewDeliverer(alice, "alice", DelivererOptions{DialTimeout: 500 * time.Millisecond, Notify: sent.push})

	msg := directMessage("alice", "are you there")
	route, err := d.SendDirect(ctx, "bob", msg)
	require.NoError(t, err)
	require.Equal(t, RouteOffline, route)

	notes := sent.get("dm_bob")
	require.Len(t, notes, 1)
	require.Equal(t, SystemSender, notes[0].From)
	require.Contains(t, notes[0].Message.Message, "offline, saved on server")

	offline, err := bob.FetchOffline(ctx)
	require.NoError(t, err)
	require.Len(t, offline, 1)
	require.True(t, offline[0].IsOffline)
	require.Equal(t, msg, offline[0].Message)

	offline, err = bob.FetchOffline(ctx)
	require.NoError(t, err)
	require.Empty(t, offline)
}

func TestSendDirectUnknownTargetStoresOffline(t *testing.T) {
	tr := startTracker(t)
	ctx := context.Background()
	alice := loggedIn(t, tr, "alice")

	d := NewDeliverer(alice, "alice", DelivererOptions{})
	route, err := d.SendDirect(ctx, "carol", directMessage("alice", "later"))
	require.NoError(t, err)
	require.Equal(t, RouteOffline, route)
	require.Equal(t, 1, tr.Registry.Pending("carol"))
}

func TestBroadcastSkipsSelfAndFallsBackPerMember(t *testing.T) {
	tr := startTracker(t)
	ctx := context.Background()
	alice := loggedIn(t, tr, "alice")
	bob := loggedIn(t, tr, "bob")
	carol := loggedIn(t, tr, "carol")

	_, _ = serveListener(t, alice)
	require.NoError(t, bob.Register(ctx, deadPort(t), ""))
	carolInbox, carolHistory := serveListener(t, carol)

	sent := newNotices()
	d := NewDeliverer(alice, "alice", DelivererOptions{DialTimeout: 500 * time.Millisecond, Notify: sent.push})

	channel := "general"
	msg := proto.Message{ID: "b1", From: "alice", Message: "hi all", Type: proto.TypeChannel, Channel: &channel}
	routes, err := d.Broadcast(ctx, channel, msg)
	require.NoError(t, err)
	require.Equal(t, map[string]Route{"bob": RouteOffline, "carol": RouteDirect}, routes)

	require.Eventually(t, func() bool { return carolInbox.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	carolInbox.Drain()
	require.Len(t, carolHistory.Conversation("general"), 1)

	offline, err := bob.FetchOffline(ctx)
	require.NoError(t, err)
	require.Len(t, offline, 1)
	require.Equal(t, "general", offline[0].ChannelName())

	notes := sent.get("general")
	require.Len(t, notes, 1)
	require.Contains(t, notes[0].Message.Message, "bob")
}

type failingDirectory struct {
	calls int
}

func (f *failingDirectory) Peers(context.Context) (map[string]proto.PeerInfo, error) {
	return nil, errors.New("tracker down")
}

func (f *failingDirectory) ChannelPeers(context.Context, string) (map[string]proto.PeerInfo, error) {
	return nil, errors.New("tracker down")
}

func (f *failingDirectory) SendOffline(context.Context, string, proto.Message) error {
	f.calls++
	return errors.New("tracker down")
}

func TestFallbackFailureIsReported(t *testing.T) {
	dir := &failingDirectory{}
	sent := newNotices()
	d := NewDeliverer(dir, "alice", DelivererOptions{Notify: sent.push})

	route, err := d.SendDirect(context.Background(), "bob", directMessage("alice", "x"))
	require.Error(t, err)
	require.Equal(t, RouteFailed, route)
	require.Equal(t, 1, dir.calls, "offline store is tried exactly once")

	notes := sent.get("dm_bob")
	require.Len(t, notes, 1)
	require.Contains(t, notes[0].Message.Message, "error")

	_, err = d.Broadcast(context.Background(), "general", directMessage("alice", "y"))
	require.Error(t, err)
	require.Len(t, sent.get("general"), 1)
}
