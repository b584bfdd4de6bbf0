package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"kuji-system/services"
)

type TicketHandler struct {
	app         *pocketbase.PocketBase
	store       services.Store
	lockService *services.LockService
}

func NewTicketHandler(app *pocketbase.PocketBase, store services.Store, lockService *services.LockService) *TicketHandler {
	return &TicketHandler{
		app:         app,
		store:       store,
		lockService: lockService,
	}
}

// Lock reserves a batch of ticket indices for the active turn holder, all or
// nothing.
func (h *TicketHandler) Lock(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		LotterySetID  string `json:"lottery_set_id"`
		TicketIndices []int  `json:"ticket_indices"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.LotterySetID == "" || len(req.TicketIndices) == 0 {
		return apis.NewBadRequestError("lottery_set_id and ticket_indices are required", nil)
	}

	ctx := e.Request.Context()
	set, err := h.store.LotterySet(ctx, req.LotterySetID)
	if err != nil {
		return apiError(err)
	}

	if err := h.lockService.Acquire(ctx, set, e.Auth.Id, req.TicketIndices); err != nil {
		return apiError(err)
	}

	held, err := h.lockService.LockedIndices(ctx, req.LotterySetID, e.Auth.Id)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"lottery_set_id": req.LotterySetID,
		"locked_indices": held,
	})
}

// Unlock releases the caller's holds on the given indices.
func (h *TicketHandler) Unlock(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		LotterySetID  string `json:"lottery_set_id"`
		TicketIndices []int  `json:"ticket_indices"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	ctx := e.Request.Context()
	if err := h.lockService.Release(ctx, req.LotterySetID, e.Auth.Id, req.TicketIndices); err != nil {
		return apiError(err)
	}

	held, err := h.lockService.LockedIndices(ctx, req.LotterySetID, e.Auth.Id)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"lottery_set_id": req.LotterySetID,
		"locked_indices": held,
	})
}
