package peer

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type runningNode struct {
	*Node
	cancel context.CancelFunc
	done   chan error
}

func (r *runningNode) stop(t *testing.T) {
	t.Helper()
	r.cancel()
	select {
	case err := <-r.done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("node %s did not stop", r.Username())
	}
}

func startNode(t *testing.T, tr *testTracker, user string) *runningNode {
	t.Helper()

	client, err := NewTrackerClient(tr.URL, 2*time.Second, nil)
	require.NoError(t, err)

	n := NewNode(client, NodeConfig{
		Username:          user,
		Password:          testUsers[user],
		ListenAddr:        "127.0.0.1:0",
		DataDir:           t.TempDir(),
		HeartbeatInterval: 50 * time.Millisecond,
		RefreshInterval:   50 * time.Millisecond,
		DrainInterval:     10 * time.Millisecond,
		DialTimeout:       500 * time.Millisecond,
	}, nil)
	require.NoError(t, n.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	r := &runningNode{Node: n, cancel: cancel, done: make(chan error, 1)}
	go func() { r.done <- n.Run(ctx) }()
	return r
}

func TestNodeStartFailsWithBadPassword(t *testing.T) {
	tr := startTracker(t)
	client, err := NewTrackerClient(tr.URL, 2*time.Second, nil)
	require.NoError(t, err)

	n := NewNode(client, NodeConfig{Username: "alice", Password: "nope", DataDir: t.TempDir()}, nil)
	require.ErrorIs(t, n.Start(context.Background()), ErrUnauthorized)
}

func TestNodesExchangeMessages(t *testing.T) {
	tr := startTracker(t)
	ctx := context.Background()

	alice := startNode(t, tr, "alice")
	bob := startNode(t, tr, "bob")

	require.Eventually(t, func() bool { return len(alice.PeerNames()) == 2 }, 2*time.Second, 20*time.Millisecond)
	require.Contains(t, alice.Channels(), "general")

	route, err := alice.SendDirect(ctx, "bob", "hi bob")
	require.NoError(t, err)
	require.Equal(t, RouteDirect, route)

	require.Eventually(t, func() bool {
		return len(bob.History().Conversation("dm_alice")) == 1
	}, 2*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(alice.History().Conversation("dm_bob")) == 1
	}, 2*time.Second, 20*time.Millisecond, "sender keeps its own copy")

	require.NoError(t, bob.Join(ctx, "random"))
	require.NoError(t, alice.Join(ctx, "random"))
	routes, err := bob.SendChannel(ctx, "random", "channel hello")
	require.NoError(t, err)
	require.Equal(t, map[string]Route{"alice": RouteDirect}, routes)
	require.Eventually(t, func() bool {
		return len(alice.History().Conversation("random")) == 1
	}, 2*time.Second, 20*time.Millisecond)

	bob.stop(t)
	_, registered := tr.Registry.Peer("bob")
	require.False(t, registered, "logout unregisters the peer")
	_, err = os.Stat(bob.History().Path())
	require.NoError(t, err, "history saved on shutdown")

	route, err = alice.SendDirect(ctx, "bob", "you there?")
	require.NoError(t, err)
	require.Equal(t, RouteOffline, route)
	require.Equal(t, 1, tr.Registry.Pending("bob"))

	alice.stop(t)
}

func TestNodePicksUpOfflineMessages(t *testing.T) {
	tr := startTracker(t)
	ctx := context.Background()

	carol := loggedIn(t, tr, "carol")
	d := NewDeliverer(carol, "carol", DelivererOptions{})
	_, err := d.SendDirect(ctx, "alice", directMessage("carol", "while you were out"))
	require.NoError(t, err)

	alice := startNode(t, tr, "alice")
	defer alice.stop(t)

	require.Eventually(t, func() bool {
		entries := alice.History().Conversation("dm_carol")
		return len(entries) == 1 && entries[0].IsOffline
	}, 2*time.Second, 20*time.Millisecond)
	require.Zero(t, tr.Registry.Pending("alice"))
}

func TestNodeReRegistersAfterEviction(t *testing.T) {
	tr := startTracker(t)

	alice := startNode(t, tr, "alice")
	defer alice.stop(t)

	require.True(t, tr.Registry.Unregister("alice"))
	require.Eventually(t, func() bool {
		_, ok := tr.Registry.Peer("alice")
		return ok
	}, 2*time.Second, 20*time.Millisecond)
}
