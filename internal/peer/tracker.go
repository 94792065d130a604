package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/log"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

const maxResponseBytes = 1 << 20

var (
	// ErrUnauthorized is returned when the tracker rejects the session or credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned for a 404 answer.
	ErrNotFound = errors.New("not found")
	// ErrNotRegistered is returned by Heartbeat when the tracker has no record.
	ErrNotRegistered = errors.New("peer not registered")
)

// StatusError is an unexpected tracker answer.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// TrackerClient talks to the tracker over HTTP and keeps the session cookie.
type TrackerClient struct {
	base *url.URL
	http *http.Client
	log  *zerolog.Logger
}

// NewTrackerClient builds a client for the tracker at baseURL.
func NewTrackerClient(baseURL string, timeout time.Duration, logger *zerolog.Logger) (*TrackerClient, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse tracker url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("tracker url %q must be absolute", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	if logger == nil {
		logger = log.Nop()
	}

	return &TrackerClient{
		base: base,
		http: &http.Client{Jar: jar, Timeout: timeout},
		log:  logger,
	}, nil
}

// Login opens a session for username.
func (c *TrackerClient) Login(ctx context.Context, username, password string) error {
	var resp proto.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/login", proto.LoginRequest{Username: username, Password: password}, &resp); err != nil {
		return err
	}
	if resp.Login != "success" {
		return ErrUnauthorized
	}
	return nil
}

// Register announces the listening port. An empty ip lets the tracker use
// the connection address.
func (c *TrackerClient) Register(ctx context.Context, port int, ip string) error {
	var resp proto.RegisterResponse
	return c.do(ctx, http.MethodPost, "/register", proto.RegisterRequest{Port: port, IP: ip}, &resp)
}

// Heartbeat refreshes presence.
func (c *TrackerClient) Heartbeat(ctx context.Context) error {
	err := c.do(ctx, http.MethodGet, "/heartbeat", nil, nil)
	if errors.Is(err, ErrNotFound) {
		return ErrNotRegistered
	}
	return err
}

// Peers returns all active peers.
func (c *TrackerClient) Peers(ctx context.Context) (map[string]proto.PeerInfo, error) {
	peers := make(map[string]proto.PeerInfo)
	if err := c.do(ctx, http.MethodGet, "/get-peers", nil, &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

// SendOffline stores msg on the tracker for target.
func (c *TrackerClient) SendOffline(ctx context.Context, target string, msg proto.Message) error {
	var resp proto.StatusResponse
	if err := c.do(ctx, http.MethodPost, "/api/send_offline", proto.SendOfflineRequest{TargetUser: target, Payload: msg}, &resp); err != nil {
		return err
	}
	if resp.Status != "saved" {
		return fmt.Errorf("offline message not saved: %s", resp.Status)
	}
	return nil
}

// FetchOffline drains the offline queue of the session user.
func (c *TrackerClient) FetchOffline(ctx context.Context) ([]proto.OfflineMessage, error) {
	var resp proto.FetchOfflineResponse
	if err := c.do(ctx, http.MethodGet, "/api/fetch_offline", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Channels lists every channel.
func (c *TrackerClient) Channels(ctx context.Context) ([]string, error) {
	var resp proto.ChannelListResponse
	if err := c.do(ctx, http.MethodGet, "/channels/list", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Channels, nil
}

// Join adds the session user to channel.
func (c *TrackerClient) Join(ctx context.Context, channel string) error {
	var resp proto.StatusResponse
	return c.do(ctx, http.MethodPost, "/channels/join", proto.ChannelRequest{ChannelName: channel}, &resp)
}

// ChannelPeers returns the active members of channel.
func (c *TrackerClient) ChannelPeers(ctx context.Context, channel string) (map[string]proto.PeerInfo, error) {
	peers := make(map[string]proto.PeerInfo)
	if err := c.do(ctx, http.MethodPost, "/channels/peers", proto.ChannelRequest{ChannelName: channel}, &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

// Logout unregisters the peer and ends the session.
func (c *TrackerClient) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/logout", nil, nil)
}

func (c *TrackerClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("build %s: %w", path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	c.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("tracker call")

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
