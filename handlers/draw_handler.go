package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"kuji-system/services"
)

type DrawHandler struct {
	app               *pocketbase.PocketBase
	drawService       *services.DrawService
	commitmentService *services.CommitmentService
}

func NewDrawHandler(app *pocketbase.PocketBase, drawService *services.DrawService, commitmentService *services.CommitmentService) *DrawHandler {
	return &DrawHandler{
		app:               app,
		drawService:       drawService,
		commitmentService: commitmentService,
	}
}

// MintCommitment issues a fresh draw hash for the caller's next draw attempt.
// The matching secret stays server-side until the draw commits.
func (h *DrawHandler) MintCommitment(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	drawHash, err := h.commitmentService.MintDrawCommitment(e.Request.Context())
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"draw_hash": drawHash})
}

// Draw resolves the caller's held tickets into prizes atomically.
func (h *DrawHandler) Draw(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		LotterySetID  string `json:"lottery_set_id"`
		TicketIndices []int  `json:"ticket_indices"`
		CostInPoints  int    `json:"cost_in_points"`
		DrawHash      string `json:"draw_hash"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.LotterySetID == "" || req.DrawHash == "" {
		return apis.NewBadRequestError("lottery_set_id and draw_hash are required", nil)
	}

	result, err := h.drawService.Draw(
		e.Request.Context(),
		req.LotterySetID,
		e.Auth.Id,
		req.TicketIndices,
		req.CostInPoints,
		req.DrawHash,
	)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, result)
}
