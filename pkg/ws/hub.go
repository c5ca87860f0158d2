// Package ws pushes sensor status and alerts to dashboard websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"liyu1981.xyz/water-quality-monitor/pkg/common"
	"liyu1981.xyz/water-quality-monitor/pkg/models"
	"liyu1981.xyz/water-quality-monitor/pkg/monitor"
)

const (
	MessageTypeStatus = "status"
	MessageTypeAlert  = "alert"

	sendBufferSize      = 256
	broadcastBufferSize = 64
)

// Message is the envelope of every frame sent to clients.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub maintains the set of active clients and broadcasts messages.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

func (h *Hub) logger() *zap.Logger {
	return common.GetLoggerWith(common.LoggerNameWsHub)
}

// Run serves register, unregister and broadcast until ctx is done, then
// closes every client.
func (h *Hub) Run(ctx context.Context) {
	logger := h.logger()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logger.Info("WebSocket client registered", zap.String("remote_addr", client.remoteAddr()))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				logger.Info("WebSocket client unregistered", zap.String("remote_addr", client.remoteAddr()))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					logger.Warn("WebSocket client send buffer full, removing", zap.String("remote_addr", client.remoteAddr()))
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve upgrades the request and registers the connection. initial messages
// are queued ahead of any broadcast.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, initial ...Message) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger().Warn("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, sendBufferSize)}
	for _, m := range initial {
		if data, err := json.Marshal(m); err == nil {
			client.send <- data
		}
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return nil
	}

	go client.writePump()
	go client.readPump()
	return nil
}

func (h *Hub) publish(msgType string, payload any) {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		h.logger().Error("Error marshalling websocket message", zap.String("type", msgType), zap.Error(err))
		return
	}

	select {
	case h.broadcast <- data:
	case <-h.done:
	default:
		h.logger().Warn("WebSocket broadcast queue full, dropping message", zap.String("type", msgType))
	}
}

func (h *Hub) NotifyStatus(status monitor.Snapshot) {
	h.publish(MessageTypeStatus, status)
}

func (h *Hub) NotifyAlert(alert models.AlertRecord) {
	h.publish(MessageTypeAlert, alert)
}
