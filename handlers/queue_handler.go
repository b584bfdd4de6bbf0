package handlers

import (
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"kuji-system/services"
)

type QueueHandler struct {
	app          *pocketbase.PocketBase
	queueService *services.QueueService
}

func NewQueueHandler(app *pocketbase.PocketBase, queueService *services.QueueService) *QueueHandler {
	return &QueueHandler{
		app:          app,
		queueService: queueService,
	}
}

// Join puts the authenticated user in line for a lottery set. When nobody is
// active they become the turn holder immediately.
func (h *QueueHandler) Join(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		LotterySetID string `json:"lottery_set_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.LotterySetID == "" {
		return apis.NewBadRequestError("lottery_set_id is required", nil)
	}

	if err := h.queueService.Join(e.Request.Context(), req.LotterySetID, e.Auth.Id); err != nil {
		return apiError(err)
	}
	return h.status(e, req.LotterySetID)
}

// Leave drops the user from the queue. An active holder leaving releases
// their ticket locks and promotes the next in line.
func (h *QueueHandler) Leave(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		LotterySetID string `json:"lottery_set_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	if err := h.queueService.Leave(e.Request.Context(), req.LotterySetID, e.Auth.Id); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "Left the queue"})
}

// Extend spends one extension credit on the caller's running turn.
func (h *QueueHandler) Extend(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		LotterySetID string `json:"lottery_set_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	extended, err := h.queueService.ExtendTurn(e.Request.Context(), req.LotterySetID, e.Auth.Id)
	if err != nil {
		return apiError(err)
	}
	if !extended {
		return apis.NewBadRequestError("No extension available", nil)
	}
	return h.status(e, req.LotterySetID)
}

// Status reports the caller's view of one lottery's queue.
func (h *QueueHandler) Status(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	setID := e.Request.URL.Query().Get("lottery_set_id")
	if setID == "" {
		return apis.NewBadRequestError("lottery_set_id is required", nil)
	}
	return h.status(e, setID)
}

func (h *QueueHandler) status(e *core.RequestEvent, setID string) error {
	ctx := e.Request.Context()

	turn, err := h.queueService.ActiveTurn(ctx, setID)
	if err != nil {
		return apiError(err)
	}
	position, err := h.queueService.Position(ctx, setID, e.Auth.Id)
	if err != nil {
		return apiError(err)
	}
	length, err := h.queueService.QueueLength(ctx, setID)
	if err != nil {
		return apiError(err)
	}

	response := map[string]any{
		"lottery_set_id": setID,
		"queue_length":   length,
		"position":       position,
		"is_active":      false,
	}
	if turn != nil {
		response["active_user_id"] = turn.UserID
		if turn.UserID == e.Auth.Id {
			response["is_active"] = true
			response["turn_expires_at"] = turn.ExpiresAt.UTC().Format(time.RFC3339)
		}
	}
	return e.JSON(http.StatusOK, response)
}
