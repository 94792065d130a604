package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/httpd"
	"github.com/vovakirdan/wirechat-relay/internal/log"
	"github.com/vovakirdan/wirechat-relay/internal/metrics"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

const loginTimeout = 5 * time.Second

var errEmptyBody = errors.New("empty body")

// Hooks implements the tracker routes on top of the registry and the
// credential service.
type Hooks struct {
	registry *core.Registry
	auth     *auth.Service
	log      *zerolog.Logger
}

// NewHooks wires hooks to their dependencies.
func NewHooks(registry *core.Registry, authSvc *auth.Service, logger *zerolog.Logger) *Hooks {
	if logger == nil {
		logger = log.Nop()
	}
	return &Hooks{registry: registry, auth: authSvc, log: logger}
}

func sessionCookie(token string) string {
	return proto.SessionCookie + "=" + token + "; Path=/; HttpOnly"
}

func failed(reason string) httpd.Result {
	return httpd.API(http.StatusBadRequest, proto.StatusResponse{Status: "failed", Reason: reason})
}

func ok(body any) httpd.Result {
	return httpd.API(http.StatusOK, body)
}

// user resolves the session cookie of req.
func (h *Hooks) user(req *httpd.Request) (string, bool) {
	return h.auth.SessionUser(req.Cookies, proto.SessionCookie)
}

// decode parses a complete JSON body into v.
func decode(req *httpd.Request, v any) error {
	if req.Truncated {
		return errors.New("truncated body")
	}
	if len(req.Body) == 0 {
		return errEmptyBody
	}
	return json.Unmarshal(req.Body, v)
}

func (h *Hooks) login(username, password string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), loginTimeout)
	defer cancel()

	token, err := h.auth.Login(ctx, username, password)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("failure").Inc()
		h.log.Info().Str("username", username).Msg("login rejected")
		return "", false
	}
	metrics.LoginsTotal.WithLabelValues("success").Inc()
	h.log.Info().Str("username", username).Msg("login successful")
	return token, true
}

// FormLogin handles the browser login form.
func (h *Hooks) FormLogin(req *httpd.Request) httpd.Result {
	form, err := url.ParseQuery(string(req.Body))
	if err != nil || req.Truncated {
		return httpd.Unauthorized()
	}

	username := form.Get("username")
	token, loggedIn := h.login(username, form.Get("password"))
	if !loggedIn {
		return httpd.Unauthorized()
	}
	return httpd.Authorized(strings.TrimSpace(username)).WithHeader("Set-Cookie", sessionCookie(token))
}

// Index guards the index page behind a session.
func (h *Hooks) Index(req *httpd.Request) httpd.Result {
	username, authed := h.user(req)
	if !authed {
		return httpd.Unauthorized()
	}
	return httpd.Authorized(username)
}

// APILogin handles JSON logins from peers.
func (h *Hooks) APILogin(req *httpd.Request) httpd.Result {
	var body proto.LoginRequest
	if err := decode(req, &body); err != nil {
		return httpd.Unauthorized()
	}

	token, loggedIn := h.login(body.Username, body.Password)
	if !loggedIn {
		return httpd.Unauthorized()
	}
	return ok(proto.LoginResponse{Login: "success", Username: strings.TrimSpace(body.Username)}).
		WithHeader("Set-Cookie", sessionCookie(token))
}

// Register records the caller's listening address.
func (h *Hooks) Register(req *httpd.Request) httpd.Result {
	username, authed := h.user(req)
	if !authed {
		return httpd.Unauthorized()
	}

	var body proto.RegisterRequest
	if err := decode(req, &body); err != nil {
		return failed("invalid register body")
	}

	ip := strings.TrimSpace(body.IP)
	if ip == "" {
		ip = remoteIP(req.RemoteAddr)
	}

	if _, err := h.registry.Register(username, ip, body.Port); err != nil {
		return failed(err.Error())
	}
	return ok(proto.RegisterResponse{Status: "registered", Peer: username})
}

// Heartbeat refreshes the caller's presence.
func (h *Hooks) Heartbeat(req *httpd.Request) httpd.Result {
	username, authed := h.user(req)
	if !authed {
		return httpd.Unauthorized()
	}

	if err := h.registry.Heartbeat(username); err != nil {
		if errors.Is(err, core.ErrNotRegistered) {
			return httpd.NotFound()
		}
		return httpd.Fault(err)
	}
	h.log.Debug().Str("username", username).Msg("heartbeat")
	return ok(proto.StatusResponse{Status: "ok"})
}

// Peers lists all active peers.
func (h *Hooks) Peers(req *httpd.Request) httpd.Result {
	if _, authed := h.user(req); !authed {
		return httpd.Unauthorized()
	}
	return ok(peerInfos(h.registry.ActivePeers()))
}

// SendOffline queues a message for a user that could not be reached directly.
func (h *Hooks) SendOffline(req *httpd.Request) httpd.Result {
	username, authed := h.user(req)
	if !authed {
		return httpd.Unauthorized()
	}

	var body proto.SendOfflineRequest
	if err := decode(req, &body); err != nil {
		return failed("invalid offline message")
	}

	msg := body.Payload
	msg.From = username
	if _, err := h.registry.Enqueue(strings.TrimSpace(body.TargetUser), msg); err != nil {
		return failed(err.Error())
	}
	return ok(proto.StatusResponse{Status: "saved"})
}

// FetchOffline drains the caller's offline queue.
func (h *Hooks) FetchOffline(req *httpd.Request) httpd.Result {
	username, authed := h.user(req)
	if !authed {
		return httpd.Unauthorized()
	}

	entries := h.registry.Drain(username)
	messages := make([]proto.OfflineMessage, 0, len(entries))
	for _, e := range entries {
		messages = append(messages, e.Wire())
	}
	return ok(proto.FetchOfflineResponse{Status: "ok", Messages: messages})
}

// ListChannels lists every channel name.
func (h *Hooks) ListChannels(req *httpd.Request) httpd.Result {
	if _, authed := h.user(req); !authed {
		return httpd.Unauthorized()
	}
	return ok(proto.ChannelListResponse{Status: "ok", Channels: h.registry.Channels()})
}

// JoinChannel adds the caller to a channel, creating it when needed.
func (h *Hooks) JoinChannel(req *httpd.Request) httpd.Result {
	username, authed := h.user(req)
	if !authed {
		return httpd.Unauthorized()
	}

	var body proto.ChannelRequest
	if err := decode(req, &body); err != nil {
		return failed("invalid channel request")
	}

	if _, err := h.registry.Join(username, body.ChannelName); err != nil {
		return failed(err.Error())
	}
	return ok(proto.StatusResponse{Status: "joined"})
}

// ChannelPeers lists the active members of a channel.
// A malformed body yields an empty map.
func (h *Hooks) ChannelPeers(req *httpd.Request) httpd.Result {
	if _, authed := h.user(req); !authed {
		return httpd.Unauthorized()
	}

	var body proto.ChannelRequest
	if err := decode(req, &body); err != nil {
		return ok(map[string]proto.PeerInfo{})
	}
	return ok(peerInfos(h.registry.ActiveMembers(strings.TrimSpace(body.ChannelName))))
}

// Logout unregisters the caller and ends the session.
func (h *Hooks) Logout(req *httpd.Request) httpd.Result {
	username, authed := h.user(req)
	if !authed {
		return httpd.Unauthorized()
	}

	h.registry.Unregister(username)
	h.auth.Logout(req.Cookie(proto.SessionCookie))
	h.log.Info().Str("username", username).Msg("logged out")
	return ok(proto.StatusResponse{Status: "logged_out"})
}

func peerInfos(records map[string]core.PeerRecord) map[string]proto.PeerInfo {
	out := make(map[string]proto.PeerInfo, len(records))
	for name, rec := range records {
		out[name] = proto.PeerInfo{IP: rec.IP, Port: rec.Port, LastSeen: rec.LastSeen.Unix()}
	}
	return out
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
