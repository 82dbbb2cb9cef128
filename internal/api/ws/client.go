package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/collab-service/internal/auth"
	"github.com/spec-kit/collab-service/internal/domain"
	"github.com/spec-kit/collab-service/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Handler upgrades connections into streaming room sessions: the client
// joins a room, receives the authoritative snapshot, then gets every
// broadcast update in room sequence order through its outbound queue.
type Handler struct {
	engine *service.CollaborationService
	tokens *auth.TokenManager
	logger *zap.Logger
}

// NewHandler constructs the websocket handler.
func NewHandler(engine *service.CollaborationService, tokens *auth.TokenManager, logger *zap.Logger) *Handler {
	return &Handler{engine: engine, tokens: tokens, logger: logger}
}

// Upgrade gates the route to websocket upgrade requests.
func (h *Handler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// inboundMessage is the tagged envelope for client commands; the action
// tag selects which fields are meaningful.
type inboundMessage struct {
	Action     string `json:"action"`
	ChangeType string `json:"change_type,omitempty"`
	FieldName  string `json:"field_name,omitempty"`
	OldValue   any    `json:"old_value,omitempty"`
	NewValue   any    `json:"new_value,omitempty"`
}

type snapshotMessage struct {
	Type     string          `json:"type"`
	RoomID   string          `json:"room_id"`
	ClientID string          `json:"client_id"`
	Snapshot domain.Snapshot `json:"snapshot"`
}

type updateMessage struct {
	Type   string        `json:"type"`
	Update domain.Update `json:"update"`
}

// Serve runs one room session over the upgraded connection. Tokens ride
// the query string because browsers cannot set headers on websocket
// dials.
func (h *Handler) Serve(conn *websocket.Conn) {
	defer conn.Close()

	claims, err := h.tokens.ParseToken(conn.Query("token"))
	if err != nil {
		h.closeWith(conn, websocket.ClosePolicyViolation, "invalid token")
		return
	}
	principal := auth.PrincipalFromClaims(claims)

	roomID := conn.Query("room")
	if roomID == "" {
		h.closeWith(conn, websocket.CloseUnsupportedData, "room required")
		return
	}

	ctx := context.Background()
	result, err := h.engine.JoinRoom(ctx, service.JoinInput{
		RoomID:    roomID,
		UserID:    principal.UserID,
		UserName:  principal.UserName,
		UserEmail: principal.UserEmail,
		CompanyID: principal.CompanyID,
	})
	if err != nil {
		h.closeWith(conn, websocket.ClosePolicyViolation, err.Error())
		return
	}
	clientID := result.ClientID
	defer h.engine.DetachClient(ctx, roomID, clientID, principal.CompanyID)

	queue, ok := h.engine.AttachClient(roomID, clientID)
	if !ok {
		h.closeWith(conn, websocket.CloseInternalServerErr, "no outbound queue")
		return
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(snapshotMessage{
		Type:     "snapshot",
		RoomID:   roomID,
		ClientID: clientID,
		Snapshot: result.Snapshot,
	}); err != nil {
		return
	}

	done := make(chan struct{})
	go h.writePump(conn, queue, done)
	h.readPump(conn, principal, roomID)
	close(done)
}

func (h *Handler) readPump(conn *websocket.Conn, principal *auth.Principal, roomID string) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket read failed", zap.String("room_id", roomID), zap.Error(err))
			}
			return
		}

		// Only the write pump touches the connection's write side; rejected
		// commands are logged, and the client reconciles via sequence gaps.
		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.logger.Debug("malformed websocket message", zap.String("room_id", roomID), zap.Error(err))
			continue
		}

		switch msg.Action {
		case "update":
			_, err := h.engine.ProcessUpdate(context.Background(), service.UpdateInput{
				RoomID:     roomID,
				UserID:     principal.UserID,
				CompanyID:  principal.CompanyID,
				ChangeType: domain.ChangeType(msg.ChangeType),
				FieldName:  msg.FieldName,
				OldValue:   msg.OldValue,
				NewValue:   msg.NewValue,
			})
			if err != nil {
				h.logger.Debug("websocket update rejected", zap.String("room_id", roomID), zap.Error(err))
			}
		case "leave":
			return
		default:
			h.logger.Debug("unknown websocket action", zap.String("action", msg.Action))
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, queue <-chan domain.Update, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case update, ok := <-queue:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(updateMessage{Type: "update", Update: update}); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *Handler) closeWith(conn *websocket.Conn, code int, reason string) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}
