package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/collab-service/internal/api/dto"
	"github.com/spec-kit/collab-service/internal/auth"
	"github.com/spec-kit/collab-service/internal/domain"
	"github.com/spec-kit/collab-service/internal/service"
	apperrors "github.com/spec-kit/collab-service/pkg/util/errorutil"
)

// CollaborationHandler exposes the engine's operation surface over HTTP.
// Every route runs behind the auth middleware, so handlers receive an
// already-validated (userId, companyId) pair.
type CollaborationHandler struct {
	engine         *service.CollaborationService
	defaultHistory int
}

// NewCollaborationHandler constructs handler.
func NewCollaborationHandler(engine *service.CollaborationService, defaultHistoryLimit int) *CollaborationHandler {
	if defaultHistoryLimit <= 0 {
		defaultHistoryLimit = 50
	}
	return &CollaborationHandler{engine: engine, defaultHistory: defaultHistoryLimit}
}

// CreateRoom POST /collab/rooms.
func (h *CollaborationHandler) CreateRoom(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	room, err := h.engine.CreateRoom(c.Context(), req.EntityType, req.EntityID, principal.CompanyID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": roomResponse(room)})
}

// JoinRoom POST /collab/rooms/:id/join.
func (h *CollaborationHandler) JoinRoom(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.JoinRoomRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}

	result, err := h.engine.JoinRoom(c.Context(), service.JoinInput{
		RoomID:    c.Params("id"),
		UserID:    principal.UserID,
		UserName:  principal.UserName,
		UserEmail: principal.UserEmail,
		CompanyID: principal.CompanyID,
		ClientID:  req.ClientID,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.JoinRoomResponse{
		Room:     roomResponse(result.Room),
		Snapshot: result.Snapshot,
		ClientID: result.ClientID,
	}})
}

// LeaveRoom POST /collab/rooms/:id/leave.
func (h *CollaborationHandler) LeaveRoom(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	h.engine.LeaveRoom(c.Context(), c.Params("id"), principal.UserID, principal.CompanyID)
	return c.JSON(fiber.Map{"data": fiber.Map{"left": true}})
}

// ProcessUpdate POST /collab/rooms/:id/updates.
func (h *CollaborationHandler) ProcessUpdate(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.UpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.engine.ProcessUpdate(c.Context(), service.UpdateInput{
		RoomID:     c.Params("id"),
		UserID:     principal.UserID,
		CompanyID:  principal.CompanyID,
		ChangeType: domain.ChangeType(req.ChangeType),
		FieldName:  req.FieldName,
		OldValue:   req.OldValue,
		NewValue:   req.NewValue,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": updateResponse(result)})
}

// GetRoom GET /collab/rooms/:id.
func (h *CollaborationHandler) GetRoom(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	room, err := h.engine.GetRoom(c.Params("id"), principal.CompanyID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": roomResponse(room)})
}

// ListUserRooms GET /collab/rooms.
func (h *CollaborationHandler) ListUserRooms(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	summaries := h.engine.UserRooms(principal.UserID)
	items := make([]dto.RoomSummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		items = append(items, dto.RoomSummaryResponse{
			ID:               s.ID,
			EntityType:       s.EntityType,
			EntityID:         s.EntityID,
			ParticipantCount: s.ParticipantCount,
			LastActivityAt:   s.LastActivityAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetHistory GET /collab/history/:entityType/:entityId.
func (h *CollaborationHandler) GetHistory(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	limit := h.defaultHistory
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return apperrors.NewValidationError("limit must be an integer", nil)
		}
		limit = parsed
	}

	entries, err := h.engine.History(c.Context(), principal.CompanyID, c.Params("entityType"), c.Params("entityId"), limit)
	if err != nil {
		return err
	}
	items := make([]dto.HistoryEntryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, historyEntryResponse(&entries[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetStatistics GET /collab/statistics.
func (h *CollaborationHandler) GetStatistics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.engine.GetStatistics()})
}

func roomResponse(room domain.RoomDescriptor) dto.RoomResponse {
	participants := make([]dto.ParticipantResponse, 0, len(room.Participants))
	for _, p := range room.Participants {
		participants = append(participants, dto.ParticipantResponse{
			UserID:   p.UserID,
			UserName: p.UserName,
			ClientID: p.ClientID,
			JoinedAt: p.JoinedAt,
		})
	}
	return dto.RoomResponse{
		ID:             room.ID,
		EntityType:     room.EntityType,
		EntityID:       room.EntityID,
		CompanyID:      room.CompanyID,
		Participants:   participants,
		CreatedAt:      room.CreatedAt,
		LastActivityAt: room.LastActivityAt,
	}
}

func updateResponse(result service.UpdateResult) dto.UpdateResponse {
	u := result.Update
	return dto.UpdateResponse{
		ID:         u.ID,
		RoomID:     u.RoomID,
		UserID:     u.UserID,
		ChangeType: string(u.ChangeType),
		FieldName:  u.FieldName,
		OldValue:   u.OldValue,
		NewValue:   u.NewValue,
		Sequence:   u.Sequence,
		Timestamp:  u.Timestamp,
		Degraded:   result.Degraded,
	}
}

func historyEntryResponse(entry *domain.HistoryEntry) dto.HistoryEntryResponse {
	return dto.HistoryEntryResponse{
		ID:         entry.ID,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		RoomID:     entry.RoomID,
		UserID:     entry.UserID,
		ChangeType: string(entry.ChangeType),
		FieldName:  entry.FieldName,
		OldValue:   entry.OldValue,
		NewValue:   entry.NewValue,
		Sequence:   entry.Sequence,
		CreatedAt:  entry.CreatedAt,
	}
}
