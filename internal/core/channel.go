package core

import (
	"sort"
	"strings"
)

// Channels returns all channel names in lexical order.
func (r *Registry) Channels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Join adds username to channel, creating the channel when absent.
// Returns true if the user was newly added.
func (r *Registry) Join(username, channel string) (bool, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return false, ErrInvalidChannel
	}
	if username == "" {
		return false, ErrInvalidPeer
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.joinLocked(username, channel), nil
}

func (r *Registry) joinLocked(username, channel string) bool {
	members, ok := r.channels[channel]
	if !ok {
		members = make(map[string]struct{})
		r.channels[channel] = members
	}
	if _, exists := members[username]; exists {
		return false
	}
	members[username] = struct{}{}
	return true
}

// Members returns the raw membership of channel in lexical order.
// Unknown channels have no members.
func (r *Registry) Members(channel string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return sortedMembers(r.channels[channel])
}

// ActiveMembers returns the members of channel that are currently active,
// evicting stale peers on the way.
func (r *Registry) ActiveMembers(channel string) map[string]PeerRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := r.activePeersLocked()
	result := make(map[string]PeerRecord)
	for username := range r.channels[channel] {
		if rec, ok := active[username]; ok {
			result[username] = rec
		}
	}
	return result
}

func sortedMembers(members map[string]struct{}) []string {
	out := make([]string, 0, len(members))
	for username := range members {
		out = append(out, username)
	}
	sort.Strings(out)
	return out
}
