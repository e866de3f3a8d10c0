package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ewfx/sradg-ai-innovators/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The service is deployed behind an internal gateway.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ConnectionManager tracks active websocket connections so shutdown can
// close them cleanly.
type ConnectionManager struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{conns: make(map[*websocket.Conn]struct{})}
}

func (m *ConnectionManager) add(conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[conn] = struct{}{}
}

func (m *ConnectionManager) remove(conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, conn)
}

// Active returns the number of open connections.
func (m *ConnectionManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// CloseAll closes every tracked connection.
func (m *ConnectionManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for conn := range m.conns {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
		conn.Close()
	}
	m.conns = make(map[*websocket.Conn]struct{})
}

// Stream upgrades to a websocket and runs the pipeline over each received
// trade record, writing the anomaly result back on the same connection.
func (h *Handlers) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	h.conns.add(conn)
	defer func() {
		h.conns.remove(conn)
		conn.Close()
	}()
	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("websocket client connected")

	for {
		var record domain.TradeRecord
		if err := conn.ReadJSON(&record); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}

		anomalies, err := h.runner.Run(r.Context(), []domain.TradeRecord{record})
		if err != nil {
			if werr := conn.WriteJSON(errorResponse{Error: err.Error()}); werr != nil {
				return
			}
			continue
		}
		if err := conn.WriteJSON(anomalyResponse{Count: len(anomalies), Anomalies: anomalies}); err != nil {
			return
		}
	}
}
