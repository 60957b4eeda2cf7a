package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"facilio.dev/envmon/internal/bus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWebsocket turns the request into a bus subscription. Subscribing
// happens before the upgrade so the replay state is already queued when the
// first frame goes out.
func (h *Handler) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	sub, err := h.bus.Subscribe(r.Context())
	if err != nil {
		h.respondError(w, http.StatusServiceUnavailable, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.bus.Unsubscribe(sub.ID)
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	if h.metrics != nil {
		h.metrics.WSConnectionsTotal.Inc()
		h.metrics.WSConnectionsActive.Inc()
	}
	h.logger.Info("websocket client connected",
		"subscriber", sub.ID,
		"remote", conn.RemoteAddr().String(),
	)

	client := &wsClient{
		handler: h,
		sub:     sub,
		conn:    conn,
	}
	go client.writePump()
	go client.readPump()
}

// wsClient is a middleman between one websocket connection and the bus.
type wsClient struct {
	handler   *Handler
	sub       *bus.Subscription
	conn      *websocket.Conn
	closeOnce sync.Once
}

// writePump forwards bus events to the peer and keeps the connection alive
// with pings. It exits when the subscription closes or a write fails.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case event, ok := <-c.sub.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The bus closed the subscription.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(event); err != nil {
				c.handler.logger.Debug("websocket write failed",
					"subscriber", c.sub.ID,
					"error", err,
				)
				return
			}

			if c.handler.metrics != nil {
				c.handler.metrics.WSMessagesSent.WithLabelValues(string(event.Kind)).Inc()
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; it exists to process control messages
// and to notice when the peer goes away.
func (c *wsClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.handler.logger.Debug("websocket read error",
					"subscriber", c.sub.ID,
					"error", err,
				)
			}
			return
		}
	}
}

// close tears the connection down exactly once, from whichever pump exits
// first.
func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		c.handler.bus.Unsubscribe(c.sub.ID)
		_ = c.conn.Close()

		if c.handler.metrics != nil {
			c.handler.metrics.WSConnectionsActive.Dec()
		}
		c.handler.logger.Info("websocket client disconnected", "subscriber", c.sub.ID)
	})
}
