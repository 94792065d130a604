package core

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/log"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/utils"
)

// DefaultHeartbeatTimeout is how long a peer stays active without a heartbeat.
const DefaultHeartbeatTimeout = 30 * time.Second

// Options configures a Registry. Zero values fall back to defaults.
type Options struct {
	HeartbeatTimeout time.Duration
	DefaultChannel   string
	Now              func() time.Time
	NewToken         func() string
	Logger           *zerolog.Logger
}

// Registry owns the session, presence, channel and offline tables of the
// tracker. Every operation runs under one mutex.
type Registry struct {
	mu sync.Mutex

	timeout        time.Duration
	defaultChannel string
	now            func() time.Time
	newToken       func() string
	log            *zerolog.Logger

	sessions map[string]string
	peers    map[string]*PeerRecord
	channels map[string]map[string]struct{}
	offline  map[string][]OfflineEntry
}

// NewRegistry creates an empty registry with the default channel present.
func NewRegistry(opts Options) *Registry {
	r := &Registry{
		timeout:        opts.HeartbeatTimeout,
		defaultChannel: opts.DefaultChannel,
		now:            opts.Now,
		newToken:       opts.NewToken,
		log:            opts.Logger,
		sessions:       make(map[string]string),
		peers:          make(map[string]*PeerRecord),
		channels:       make(map[string]map[string]struct{}),
		offline:        make(map[string][]OfflineEntry),
	}
	if r.timeout <= 0 {
		r.timeout = DefaultHeartbeatTimeout
	}
	if r.defaultChannel == "" {
		r.defaultChannel = proto.DefaultChannel
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newToken == nil {
		r.newToken = utils.NewToken
	}
	if r.log == nil {
		r.log = log.Nop()
	}
	r.channels[r.defaultChannel] = make(map[string]struct{})
	return r
}

// DefaultChannel returns the channel every registered peer joins.
func (r *Registry) DefaultChannel() string {
	return r.defaultChannel
}

// Timeout returns the heartbeat timeout.
func (r *Registry) Timeout() time.Duration {
	return r.timeout
}

// Stats is a point-in-time summary of the registry tables.
type Stats struct {
	Sessions      int `json:"sessions"`
	Peers         int `json:"peers"`
	Channels      int `json:"channels"`
	OfflineQueued int `json:"offline_queued"`
}

// Stats counts table sizes. It does not evict stale peers.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	queued := 0
	for _, q := range r.offline {
		queued += len(q)
	}
	return Stats{
		Sessions:      len(r.sessions),
		Peers:         len(r.peers),
		Channels:      len(r.channels),
		OfflineQueued: queued,
	}
}
