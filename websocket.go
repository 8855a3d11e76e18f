package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsSendBuffer   = 16
)

// TelemetryHub fans decoded telemetry records out to connected WebSocket
// clients. Slow clients are dropped rather than allowed to stall the
// decode pipeline.
type TelemetryHub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]chan []byte

	lastRecord []byte // most recent record, sent to new clients on connect
}

// NewTelemetryHub creates a hub. With enableCORS set, cross-origin
// WebSocket upgrades are accepted.
func NewTelemetryHub(enableCORS bool) *TelemetryHub {
	h := &TelemetryHub{
		clients: make(map[string]chan []byte),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if enableCORS {
		h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	return h
}

// ServeHTTP upgrades the connection and streams telemetry records to it
func (h *TelemetryHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket: upgrade failed: %v", err)
		return
	}

	id := uuid.New().String()
	send := make(chan []byte, wsSendBuffer)

	h.mu.Lock()
	h.clients[id] = send
	last := h.lastRecord
	h.mu.Unlock()

	if DebugMode {
		log.Printf("WebSocket: client %s connected from %s", id, r.RemoteAddr)
	}
	if last != nil {
		select {
		case send <- last:
		default:
		}
	}

	// Reader goroutine: discard client messages, detect disconnect.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(id)
				conn.Close()
				return
			}
		}
	}()

	go func() {
		defer conn.Close()
		for payload := range send {
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.drop(id)
				return
			}
		}
	}()
}

// Broadcast sends one telemetry record to every connected client
func (h *TelemetryHub) Broadcast(rec *Telemetry) {
	payload, err := json.Marshal(rec)
	if err != nil {
		log.Printf("WebSocket: failed to marshal telemetry: %v", err)
		return
	}

	h.mu.Lock()
	h.lastRecord = payload
	var stale []string
	for id, send := range h.clients {
		select {
		case send <- payload:
		default:
			// Client is not keeping up, disconnect it.
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		if send, ok := h.clients[id]; ok {
			close(send)
			delete(h.clients, id)
		}
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients
func (h *TelemetryHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *TelemetryHub) drop(id string) {
	h.mu.Lock()
	if send, ok := h.clients[id]; ok {
		close(send)
		delete(h.clients, id)
	}
	h.mu.Unlock()
}
