package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	streamBuffer    = 16
	streamHeartbeat = 30 * time.Second
	streamWrite     = 5 * time.Second
)

// StreamMessage is one frame sent to stream clients
type StreamMessage struct {
	Type      string      `json:"type"` // connected, cycle, status, heartbeat
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// StreamHub fans cycle records out to websocket clients. It implements domain.CycleSink.
type StreamHub struct {
	mu      sync.RWMutex
	clients map[chan StreamMessage]struct{}
	log     zerolog.Logger
}

// NewStreamHub creates an empty hub
func NewStreamHub(log zerolog.Logger) *StreamHub {
	return &StreamHub{
		clients: make(map[chan StreamMessage]struct{}),
		log:     log.With().Str("component", "events_stream").Logger(),
	}
}

// Deliver implements domain.CycleSink
func (h *StreamHub) Deliver(_ context.Context, record domain.CycleRunRecord) error {
	h.Broadcast(StreamMessage{Type: "cycle", Timestamp: record.FinishedAt, Data: record})
	return nil
}

// Broadcast sends msg to every client without blocking. Slow clients drop frames.
func (h *StreamHub) Broadcast(msg StreamMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
			h.log.Warn().Str("type", msg.Type).Msg("Stream client too slow, dropping message")
		}
	}
}

// Clients returns the number of connected clients
func (h *StreamHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *StreamHub) subscribe() chan StreamMessage {
	ch := make(chan StreamMessage, streamBuffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *StreamHub) unsubscribe(ch chan StreamMessage) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

// ServeHTTP handles GET /api/stream (websocket)
func (h *StreamHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	// Clients only listen; CloseRead handles control frames and cancels ctx on disconnect
	ctx := conn.CloseRead(r.Context())

	ch := h.subscribe()
	defer h.unsubscribe(ch)
	h.log.Info().Int("clients", h.Clients()).Msg("Client connected to event stream")

	if err := h.write(ctx, conn, StreamMessage{Type: "connected", Timestamp: time.Now().UTC()}); err != nil {
		return
	}

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("Client disconnected from event stream")
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case msg := <-ch:
			if err := h.write(ctx, conn, msg); err != nil {
				return
			}
		case t := <-heartbeat.C:
			if err := h.write(ctx, conn, StreamMessage{Type: "heartbeat", Timestamp: t.UTC()}); err != nil {
				return
			}
		}
	}
}

func (h *StreamHub) write(ctx context.Context, conn *websocket.Conn, msg StreamMessage) error {
	wctx, cancel := context.WithTimeout(ctx, streamWrite)
	defer cancel()
	if err := wsjson.Write(wctx, conn, msg); err != nil {
		h.log.Debug().Err(err).Str("type", msg.Type).Msg("Stream write failed")
		return err
	}
	return nil
}
