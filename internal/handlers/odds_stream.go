package handlers

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"sports-prediction/internal/models"
	"sports-prediction/internal/services"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512
	sendBufferSize = 32
)

// oddsMessage is pushed to subscribers of a pool
type oddsMessage struct {
	Type string          `json:"type"`
	Data models.PoolView `json:"data"`
}

type oddsClient struct {
	poolID string
	conn   *websocket.Conn
	send   chan oddsMessage
}

// OddsHub fans pool views out to websocket clients watching that pool
type OddsHub struct {
	mirror   *services.PoolMirrorService
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]map[*oddsClient]struct{}
}

// NewOddsHub creates a hub and subscribes it to mirror updates
func NewOddsHub(mirror *services.PoolMirrorService, allowedOrigins []string) *OddsHub {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	h := &OddsHub{
		mirror:  mirror,
		clients: make(map[string]map[*oddsClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins[origin]
			},
		},
	}
	mirror.Subscribe(h.Broadcast)
	return h
}

// ClientCount returns the number of clients watching poolID
func (h *OddsHub) ClientCount(poolID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[poolID])
}

// Broadcast sends view to every client of its pool. Slow clients drop updates.
func (h *OddsHub) Broadcast(view models.PoolView) {
	msg := oddsMessage{Type: "pool_update", Data: view}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[view.PoolID] {
		select {
		case client.send <- msg:
		default:
			log.Printf("[OddsHub] Dropping update for slow client on pool %s", view.PoolID)
		}
	}
}

func (h *OddsHub) register(client *oddsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[client.poolID] == nil {
		h.clients[client.poolID] = make(map[*oddsClient]struct{})
	}
	h.clients[client.poolID][client] = struct{}{}
}

func (h *OddsHub) unregister(client *oddsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[client.poolID]; ok {
		if _, ok := set[client]; ok {
			delete(set, client)
			close(client.send)
		}
		if len(set) == 0 {
			delete(h.clients, client.poolID)
		}
	}
}

// Stream upgrades the request and streams odds of one pool
// GET /ws/pools/:pool_id
func (h *OddsHub) Stream(c *gin.Context) {
	poolID := c.Param("pool_id")
	if !services.ValidLedgerAddress(poolID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pool id"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[OddsHub] Websocket upgrade failed: %v", err)
		return
	}

	client := &oddsClient{
		poolID: poolID,
		conn:   conn,
		send:   make(chan oddsMessage, sendBufferSize),
	}
	h.register(client)

	// Start with the current odds when the pool is already mirrored.
	if pool, ok := h.mirror.Get(poolID); ok {
		client.send <- oddsMessage{Type: "pool_snapshot", Data: h.mirror.View(pool, time.Now())}
	}

	go h.writePump(client)
	h.readPump(client)
}

// readPump only watches for disconnects; clients send nothing meaningful
func (h *OddsHub) readPump(client *oddsClient) {
	defer func() {
		h.unregister(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[OddsHub] Unexpected close on pool %s: %v", client.poolID, err)
			}
			return
		}
	}
}

func (h *OddsHub) writePump(client *oddsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
