package admin

import (
	"context"
	stdhttp "net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/log"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// Registry is the read-only tracker state exposed on the admin surface.
type Registry interface {
	Stats() core.Stats
	ActivePeers() map[string]core.PeerRecord
	Channels() []string
}

// PeerStatus is one active peer in /api/peers.
type PeerStatus struct {
	Username string    `json:"username"`
	IP       string    `json:"ip"`
	Port     int       `json:"port"`
	LastSeen time.Time `json:"last_seen"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handlers serves operational endpoints.
type Handlers struct {
	registry Registry
	users    store.UserStore
	log      *zerolog.Logger
}

// NewRouter builds the admin gin engine.
func NewRouter(registry Registry, users store.UserStore, logger *zerolog.Logger) *gin.Engine {
	if logger == nil {
		logger = log.Nop()
	}
	h := &Handlers{registry: registry, users: users, log: logger}

	r := gin.New()
	r.Use(gin.Recovery(), LoggerMiddleware(logger))

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/stats", h.Stats)
	api.GET("/peers", h.Peers)
	api.GET("/channels", h.Channels)
	api.GET("/users", h.Users)
	return r
}

// NewServer wraps the admin router in an HTTP server listening on addr.
func NewServer(addr string, registry Registry, users store.UserStore, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              addr,
		Handler:           NewRouter(registry, users, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Health reports liveness.
// GET /health
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(stdhttp.StatusOK, gin.H{"status": "ok"})
}

// Stats returns registry table sizes.
// GET /api/stats
func (h *Handlers) Stats(c *gin.Context) {
	c.JSON(stdhttp.StatusOK, h.registry.Stats())
}

// Peers lists active peers sorted by username.
// GET /api/peers
func (h *Handlers) Peers(c *gin.Context) {
	records := h.registry.ActivePeers()
	peers := make([]PeerStatus, 0, len(records))
	for _, rec := range records {
		peers = append(peers, PeerStatus{Username: rec.Username, IP: rec.IP, Port: rec.Port, LastSeen: rec.LastSeen})
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].Username < peers[j].Username })
	c.JSON(stdhttp.StatusOK, gin.H{"peers": peers})
}

// Channels lists channel names.
// GET /api/channels
func (h *Handlers) Channels(c *gin.Context) {
	c.JSON(stdhttp.StatusOK, gin.H{"channels": h.registry.Channels()})
}

// Users lists account names.
// GET /api/users
func (h *Handlers) Users(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	users, err := h.users.ListUsers(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list users")
		c.JSON(stdhttp.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}
	c.JSON(stdhttp.StatusOK, gin.H{"users": names})
}
