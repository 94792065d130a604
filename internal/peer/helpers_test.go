package peer

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/httpd"
	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
	"github.com/vovakirdan/wirechat-relay/internal/tracker"
)

var testUsers = map[string]string{
	"alice": "wonderland",
	"bob":   "builder1",
	"carol": "christmas",
}

type testTracker struct {
	URL      string
	Registry *core.Registry
}

// startTracker runs a complete tracker on a loopback port.
func startTracker(t *testing.T) *testTracker {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	reg := core.NewRegistry(core.Options{})
	svc := auth.NewService(st, reg)
	_, err = svc.Seed(context.Background(), testUsers)
	require.NoError(t, err)

	pages, err := tracker.Pages("")
	require.NoError(t, err)

	srv := httpd.NewServer(
		httpd.NewDispatcher(tracker.Routes(tracker.NewHooks(reg, svc, nil)), nil),
		httpd.NewResponseBuilder(pages),
		httpd.ServerConfig{ReadTimeout: 2 * time.Second},
		nil,
	)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Errorf("tracker did not stop")
		}
	})

	return &testTracker{URL: "http://" + ln.Addr().String(), Registry: reg}
}

// loggedIn returns a tracker client with an open session for user.
func loggedIn(t *testing.T, tr *testTracker, user string) *TrackerClient {
	t.Helper()

	c, err := NewTrackerClient(tr.URL, 2*time.Second, nil)
	require.NoError(t, err)
	require.NoError(t, c.Login(context.Background(), user, testUsers[user]))
	return c
}

// notices collects system notices from a deliverer.
type notices struct {
	mu      sync.Mutex
	entries map[string][]Entry
}

func newNotices() *notices {
	return &notices{entries: make(map[string][]Entry)}
}

func (n *notices) push(conversation string, e Entry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries[conversation] = append(n.entries[conversation], e)
}

func (n *notices) get(conversation string) []Entry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Entry(nil), n.entries[conversation]...)
}

// deadPort returns a loopback port with nothing listening on it.
func deadPort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}
