package core

import (
	"strings"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/metrics"
)

// PeerRecord is the last known address of a registered peer.
type PeerRecord struct {
	Username string
	IP       string
	Port     int
	LastSeen time.Time
}

// Register inserts or overwrites the record for username and adds the user
// to the default channel. LastSeen never moves backwards for an existing record.
func (r *Registry) Register(username, ip string, port int) (PeerRecord, error) {
	username = strings.TrimSpace(username)
	if username == "" || port <= 0 || port > 65535 {
		return PeerRecord{}, ErrInvalidPeer
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if existing, ok := r.peers[username]; ok && existing.LastSeen.After(now) {
		now = existing.LastSeen
	}

	rec := &PeerRecord{Username: username, IP: ip, Port: port, LastSeen: now}
	r.peers[username] = rec
	r.joinLocked(username, r.defaultChannel)

	metrics.PeersRegistered.Inc()
	r.log.Info().Str("username", username).Str("ip", ip).Int("port", port).Msg("peer registered")
	return *rec, nil
}

// Heartbeat refreshes LastSeen of an existing record. It never touches the address.
func (r *Registry) Heartbeat(username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.peers[username]
	if !ok {
		return ErrNotRegistered
	}
	if now := r.now(); now.After(rec.LastSeen) {
		rec.LastSeen = now
	}
	return nil
}

// Unregister removes the record of username. Channel membership is kept.
func (r *Registry) Unregister(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[username]; !ok {
		return false
	}
	delete(r.peers, username)
	r.log.Info().Str("username", username).Msg("peer unregistered")
	return true
}

// Peer returns the record of username without evicting anything.
func (r *Registry) Peer(username string) (PeerRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.peers[username]
	if !ok {
		return PeerRecord{}, false
	}
	return *rec, true
}

// ActivePeers returns every peer heard from within the timeout. Stale records
// are deleted and their users removed from every channel.
func (r *Registry) ActivePeers() map[string]PeerRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.activePeersLocked()
}

func (r *Registry) activePeersLocked() map[string]PeerRecord {
	now := r.now()
	active := make(map[string]PeerRecord, len(r.peers))

	for username, rec := range r.peers {
		if now.Sub(rec.LastSeen) < r.timeout {
			active[username] = *rec
			continue
		}

		delete(r.peers, username)
		for _, members := range r.channels {
			delete(members, username)
		}
		metrics.PeersEvicted.Inc()
		r.log.Info().Str("username", username).Time("last_seen", rec.LastSeen).Msg("peer evicted after timeout")
	}

	return active
}
