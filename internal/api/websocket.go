package api

import (
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"fleetplane/internal/events"
)

// ============================================================================
// EVENT STREAMING
// ============================================================================

var eventUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 8192,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

const (
	streamWriteTimeout = 5 * time.Second
	streamPingInterval = 30 * time.Second
	streamPongTimeout  = 60 * time.Second
	streamBufferSize   = 256
)

// StreamMetrics counts event-stream activity.
type StreamMetrics struct {
	connectionsTotal  atomic.Uint64
	connectionsActive atomic.Int64
	eventsSent        atomic.Uint64
	writeFailures     atomic.Uint64
	upgradeFailures   atomic.Uint64
}

func (m *StreamMetrics) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"connections_total":  m.connectionsTotal.Load(),
		"connections_active": m.connectionsActive.Load(),
		"events_sent":        m.eventsSent.Load(),
		"write_failures":     m.writeFailures.Load(),
		"upgrade_failures":   m.upgradeFailures.Load(),
	}
}

// Streamer forwards hub events to WebSocket subscribers. One hub
// subscription per connection; a slow consumer drops events at the hub,
// never blocking the publishers.
type Streamer struct {
	hub     *events.Hub
	metrics StreamMetrics
}

func NewStreamer(hub *events.Hub) *Streamer {
	return &Streamer{hub: hub}
}

func (s *Streamer) Metrics() map[string]interface{} {
	return s.metrics.Snapshot()
}

// ServeWS upgrades the request and streams events until the client
// disconnects or stops answering pings.
func (s *Streamer) ServeWS(c *gin.Context) {
	conn, err := eventUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.metrics.upgradeFailures.Add(1)
		log.Printf("[Stream] upgrade failed: %v", err)
		return
	}

	clientID := fmt.Sprintf("stream-%d", time.Now().UnixNano())
	s.metrics.connectionsTotal.Add(1)
	s.metrics.connectionsActive.Add(1)
	log.Printf("[Stream] client %s connected", clientID)

	subID, eventCh := s.hub.Subscribe(streamBufferSize)

	done := make(chan struct{})
	var lastPong atomic.Int64
	lastPong.Store(time.Now().UnixNano())

	conn.SetPongHandler(func(string) error {
		lastPong.Store(time.Now().UnixNano())
		return nil
	})

	// Read loop only services control frames and detects disconnects.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(streamPingInterval)
	defer func() {
		pingTicker.Stop()
		s.hub.Unsubscribe(subID)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
		s.metrics.connectionsActive.Add(-1)
		log.Printf("[Stream] client %s disconnected", clientID)
	}()

	for {
		select {
		case evt, ok := <-eventCh:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.metrics.writeFailures.Add(1)
					log.Printf("[Stream] client %s write error: %v", clientID, err)
				}
				return
			}
			s.metrics.eventsSent.Add(1)

		case <-pingTicker.C:
			if time.Since(time.Unix(0, lastPong.Load())) > streamPongTimeout {
				log.Printf("[Stream] client %s pong timeout", clientID)
				return
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}
