// Package ws is the client WebSocket transport: it accepts connections,
// turns join_device frames into relay subscriptions and streams each
// session's outbound events.
package ws

import (
	"net/http"
	"time"

	"github.com/HerbHall/guardian/internal/relay"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// DefaultWriteTimeout bounds a single outbound frame write.
const DefaultWriteTimeout = 5 * time.Second

// Handler serves the client WebSocket endpoint.
type Handler struct {
	sessions     *relay.SessionManager
	writeTimeout time.Duration
	logger       *zap.Logger
}

// Compile-time check that Handler implements the server interface.
var _ interface {
	RegisterRoutes(mux *http.ServeMux)
} = (*Handler)(nil)

// NewHandler creates a WebSocket handler backed by sessions.
func NewHandler(sessions *relay.SessionManager, writeTimeout time.Duration, logger *zap.Logger) *Handler {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Handler{
		sessions:     sessions,
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// RegisterRoutes registers WebSocket routes on the server mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/ws", h.handleStream)
}

// handleStream upgrades the connection and runs the session until either
// side goes away.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	// The server read timeout would otherwise carry over to the hijacked
	// connection and cut idle clients off.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Mobile clients connect from arbitrary origins.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	session := h.sessions.Connect(r.RemoteAddr)
	client := &Client{
		conn:         conn,
		session:      session,
		sessions:     h.sessions,
		writeTimeout: h.writeTimeout,
		logger:       h.logger,
	}

	ctx := r.Context()
	done := make(chan struct{})
	go func() {
		defer close(done)
		client.writePump(ctx)
		// Outbound closed or a write failed: unblock the reader.
		if session.State() == relay.StateTerminated {
			conn.Close(websocket.StatusGoingAway, "session closed")
			return
		}
		conn.CloseNow()
	}()

	// readPump blocks until the client disconnects.
	client.readPump(ctx)

	h.sessions.Disconnect(session)
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}
