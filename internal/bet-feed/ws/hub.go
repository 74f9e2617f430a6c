package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// client serializa as escritas na conexão (gorilla aceita um writer por vez)
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(messageType int, b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, b)
}

// Hub gerencia conexões WebSocket e assinaturas por evento
// subs: mapeia eventID para o conjunto de clientes inscritos
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	// eventID -> set of clients
	subs map[string]map[*client]struct{}
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket
// Permite subscribe/unsubscribe em eventos e responde a pings
// Cada cliente pode se inscrever em múltiplos eventIDs
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn}
	defer conn.Close()
	defer h.drop(c)

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "subscribe":
			if msg.EventID == "" {
				continue
			}
			h.mu.Lock()
			if _, ok := h.subs[msg.EventID]; !ok {
				h.subs[msg.EventID] = make(map[*client]struct{})
			}
			h.subs[msg.EventID][c] = struct{}{}
			h.mu.Unlock()
			_ = c.write(websocket.TextMessage, ack("subscribed", msg.EventID))
		case "unsubscribe":
			h.mu.Lock()
			if m, ok := h.subs[msg.EventID]; ok {
				delete(m, c)
				if len(m) == 0 {
					delete(h.subs, msg.EventID)
				}
			}
			h.mu.Unlock()
			_ = c.write(websocket.TextMessage, ack("unsubscribed", msg.EventID))
		case "ping":
			_ = c.write(websocket.TextMessage, []byte(`{"type":"pong"}`))
		}
	}
}

// drop remove o cliente de todas as assinaturas ao desconectar
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, id)
		}
	}
}

// Broadcast envia a atualização para todos os clientes inscritos no eventID
func (h *Hub) Broadcast(update BetUpdate) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.subs[update.EventID]))
	for c := range h.subs[update.EventID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	b, err := json.Marshal(update)
	if err != nil {
		return
	}
	for _, c := range targets {
		_ = c.write(websocket.TextMessage, b)
	}
}

// Subscribers conta os clientes inscritos no evento
func (h *Hub) Subscribers(eventID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[eventID])
}

func ack(kind, eventID string) []byte {
	b, _ := json.Marshal(map[string]string{"type": kind, "eventId": eventID})
	return b
}
