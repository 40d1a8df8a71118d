package notify

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"incident-command-plane/internal/platform/rbac"
	"incident-command-plane/internal/server/httpapi"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WSHandler upgrades authenticated requests to the change-feed socket.
type WSHandler struct {
	hub *Hub
}

// NewWSHandler returns the websocket handler.
func NewWSHandler(hub *Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// Routes returns the handler's route table.
func (h *WSHandler) Routes() []httpapi.Route {
	return []httpapi.Route{
		{Method: http.MethodGet, Pattern: "/v1/changes", Handler: h.subscribe},
	}
}

func (h *WSHandler) subscribe(w http.ResponseWriter, r *http.Request) {
	ident, err := rbac.RequireIdentity(r.Context())
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	incidentID := r.URL.Query().Get("incident_id")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("notify: websocket upgrade failed: %v", err)
		return
	}
	h.hub.Serve(conn, ident.TenantID, incidentID)
}
