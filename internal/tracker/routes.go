package tracker

import (
	"net/http"

	"github.com/vovakirdan/wirechat-relay/internal/httpd"
)

// Routes builds the tracker route table.
func Routes(h *Hooks) *httpd.RouteTable {
	return httpd.NewRouteBuilder().
		Handle(http.MethodPost, httpd.LoginPath, h.FormLogin).
		Handle(http.MethodGet, httpd.IndexPath, h.Index).
		Handle(http.MethodPost, "/api/login", h.APILogin).
		Handle(http.MethodPost, "/register", h.Register).
		Handle(http.MethodGet, "/heartbeat", h.Heartbeat).
		Handle(http.MethodGet, "/get-peers", h.Peers).
		Handle(http.MethodPost, "/api/send_offline", h.SendOffline).
		Handle(http.MethodGet, "/api/fetch_offline", h.FetchOffline).
		Handle(http.MethodGet, "/channels/list", h.ListChannels).
		Handle(http.MethodPost, "/channels/list", h.ListChannels).
		Handle(http.MethodPost, "/channels/join", h.JoinChannel).
		Handle(http.MethodPost, "/channels/peers", h.ChannelPeers).
		Handle(http.MethodPost, "/logout", h.Logout).
		Build()
}
