package dash

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsMaxMessage   = 1 << 20
)

// The default origin check only admits pages served from this host.
var upgrader = websocket.Upgrader{}

// hub tracks open websocket clients so they can be closed on shutdown.
type hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]string
	logger  *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		clients: make(map[*websocket.Conn]string),
		logger:  logger,
	}
}

func (h *hub) register(conn *websocket.Conn) string {
	id := uuid.New().String()
	h.mu.Lock()
	h.clients[conn] = id
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("WebSocket client connected", "client", id, "clients", count)
	return id
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	id, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
	}
	count := len(h.clients)
	h.mu.Unlock()
	if ok {
		conn.Close()
		h.logger.Debug("WebSocket client disconnected", "client", id, "clients", count)
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()
	for _, conn := range conns {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		h.unregister(conn)
	}
}

// handleWebsocket serves callback requests over a websocket, one at a time per client.
func (a *App) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	a.hub.register(conn)
	defer a.hub.unregister(conn)

	conn.SetReadLimit(wsMaxMessage)
	ctx := r.Context()
	for {
		var req UpdateRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				a.logger.Warn("WebSocket read failed", "error", err)
			}
			return
		}

		resp := a.Dispatch(ctx, req)

		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(resp); err != nil {
			a.logger.Warn("WebSocket write failed", "error", err)
			return
		}
	}
}
