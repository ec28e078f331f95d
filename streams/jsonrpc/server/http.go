package server

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// NewHTTPHandler serves srv over WebSocket for upgrade requests and over plain
// HTTP otherwise. Subscriptions are only available over WebSocket.
func NewHTTPHandler(srv *rpc.Server, allowedOrigins []string) http.Handler {
	ws := srv.WebsocketHandler(allowedOrigins)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			ws.ServeHTTP(w, r)
			return
		}
		srv.ServeHTTP(w, r)
	})
}
