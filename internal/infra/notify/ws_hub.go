package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"blueprint-room-pipeline/internal/domain"
	"blueprint-room-pipeline/internal/domain/model"
	"blueprint-room-pipeline/internal/domain/ports/adapter"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 32
)

var _ adapter.ChannelSender = (*Hub)(nil)

// Hub owns the live websocket connections, one per channel ID. Each
// connection has a single writer goroutine fed from a FIFO buffer, so events
// queued for a channel go out in the order they were queued.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*connection
	log   *zerolog.Logger
}

type connection struct {
	ws   *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func NewHub(logger *zerolog.Logger) *Hub {
	return &Hub{
		conns: make(map[string]*connection),
		log:   logger,
	}
}

// Register adopts an upgraded websocket under the given channel ID and starts
// its write pump. The caller keeps ownership of the read side.
func (h *Hub) Register(channelID string, ws *websocket.Conn) {
	c := &connection{
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if old, ok := h.conns[channelID]; ok {
		old.close()
	}
	h.conns[channelID] = c
	h.mu.Unlock()

	go h.writePump(channelID, c)
}

// Unregister drops the channel and closes its connection.
func (h *Hub) Unregister(channelID string) {
	h.mu.Lock()
	c, ok := h.conns[channelID]
	if ok {
		delete(h.conns, channelID)
	}
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

// Send queues an event for the channel. It fails fast when the channel is
// unknown or its buffer is full; the caller's retry policy decides what
// happens next.
func (h *Hub) Send(_ context.Context, channelID string, event *model.ProgressEvent) error {
	h.mu.RLock()
	c, ok := h.conns[channelID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: channel %s", domain.ErrNotFound, channelID)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return fmt.Errorf("%w: channel %s closed", domain.ErrNotFound, channelID)
	default:
		return fmt.Errorf("channel %s send buffer full", channelID)
	}
}

func (h *Hub) writePump(channelID string, c *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		h.mu.Lock()
		if h.conns[channelID] == c {
			delete(h.conns, channelID)
		}
		h.mu.Unlock()
	}()

	for {
		select {
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Debug().Err(err).Str("channel", channelID).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *connection) close() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// Close shuts down every connection, used on server shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.conns {
		c.close()
		delete(h.conns, id)
	}
}
