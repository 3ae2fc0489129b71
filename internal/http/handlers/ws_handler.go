package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/textforce/backend/internal/auth"
	"github.com/textforce/backend/internal/config"
	"github.com/textforce/backend/internal/events"
	"go.uber.org/zap"
)

// WSHub relays claim, archival and autosend events to connected members of
// the organization the event belongs to.
type WSHub struct {
	cfg         *config.Config
	subscriber  events.Subscriber
	log         *zap.Logger
	mu          sync.RWMutex
	connections map[int64][]*websocket.Conn
}

func NewWSHub(cfg *config.Config, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		cfg:         cfg,
		subscriber:  subscriber,
		log:         log,
		connections: make(map[int64][]*websocket.Conn),
	}
}

func (h *WSHub) Start(ctx context.Context) {
	err := h.subscriber.Subscribe(ctx, func(stream string, event events.Event) {
		h.SendToOrganization(event.OrganizationID, event)
	}, events.StreamAssignment, events.StreamCampaign, events.StreamAutosend)
	if err != nil {
		h.log.Error("ws hub subscribe failed", zap.Error(err))
	}
}

func (h *WSHub) SendToOrganization(orgID int64, event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.connections[orgID] {
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	// Extract token from query
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		conn.Close()
		return
	}

	claims, err := auth.ParseJWT(h.cfg.JWTSecret, tokenStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}

	// Greet before registering; after that only the hub writes.
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"connected"}`))

	orgID := claims.OrganizationID
	h.register(orgID, conn)
	defer h.unregister(orgID, conn)

	// Read loop (keep alive / pings)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

func (h *WSHub) register(orgID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[orgID] = append(h.connections[orgID], conn)
	h.log.Debug("ws connected", zap.Int64("organization_id", orgID), zap.Int("connections", len(h.connections[orgID])))
}

func (h *WSHub) unregister(orgID int64, conn *websocket.Conn) {
	h.mu.Lock()
	conns := h.connections[orgID]
	for i, c := range conns {
		if c == conn {
			h.connections[orgID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.connections[orgID]) == 0 {
		delete(h.connections, orgID)
	}
	h.mu.Unlock()
	conn.Close()
}
