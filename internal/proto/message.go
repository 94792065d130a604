package proto

const (
	// TypeDirect marks a one-to-one message.
	TypeDirect = "direct_message"
	// TypeChannel marks a message fanned out to a channel.
	TypeChannel = "channel_message"

	// DefaultChannel always exists on the tracker.
	DefaultChannel = "general"

	// SessionCookie carries the session token.
	SessionCookie = "session_id"
)

// Message is the payload exchanged peer-to-peer or queued on the tracker.
// Channel is nil for direct messages.
type Message struct {
	ID      string  `json:"id,omitempty"`
	From    string  `json:"from"`
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Channel *string `json:"channel"`
}

// ChannelName returns the channel of a message or "" for direct messages.
func (m Message) ChannelName() string {
	if m.Channel == nil {
		return ""
	}
	return *m.Channel
}

// OfflineMessage is a Message returned from the offline store.
type OfflineMessage struct {
	Message
	IsOffline bool    `json:"is_offline"`
	Timestamp float64 `json:"timestamp"`
}

// PeerInfo is the advertised address of a registered peer.
type PeerInfo struct {
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	LastSeen int64  `json:"last_seen"`
}

// LoginRequest is the body of POST /api/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse answers a successful API login.
type LoginResponse struct {
	Login    string `json:"login"`
	Username string `json:"username"`
}

// RegisterRequest announces the peer's listening port.
// IP is optional; the tracker uses the connection address otherwise.
type RegisterRequest struct {
	Port int    `json:"port"`
	IP   string `json:"ip,omitempty"`
}

// RegisterResponse confirms a registration.
type RegisterResponse struct {
	Status string `json:"status"`
	Peer   string `json:"peer"`
}

// SendOfflineRequest asks the tracker to queue a message for a user.
type SendOfflineRequest struct {
	TargetUser string  `json:"target_user"`
	Payload    Message `json:"payload"`
}

// FetchOfflineResponse drains the caller's offline queue.
type FetchOfflineResponse struct {
	Status   string           `json:"status"`
	Messages []OfflineMessage `json:"messages"`
}

// ChannelRequest names a channel for join and peer lookups.
type ChannelRequest struct {
	ChannelName string `json:"channel_name"`
}

// ChannelListResponse lists all channels.
type ChannelListResponse struct {
	Status   string   `json:"status"`
	Channels []string `json:"channels"`
}

// StatusResponse is the generic {status, reason} answer.
type StatusResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}
