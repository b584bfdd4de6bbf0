package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"kuji-system/services"
)

type PrizeHandler struct {
	app             *pocketbase.PocketBase
	drawService     *services.DrawService
	shippingService *services.ShippingService
}

func NewPrizeHandler(app *pocketbase.PocketBase, drawService *services.DrawService, shippingService *services.ShippingService) *PrizeHandler {
	return &PrizeHandler{
		app:             app,
		drawService:     drawService,
		shippingService: shippingService,
	}
}

// Recycle converts one of the caller's in-inventory prizes back into points.
func (h *PrizeHandler) Recycle(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	instanceID := e.Request.PathValue("instanceId")
	if instanceID == "" {
		return apis.NewBadRequestError("instanceId is required", nil)
	}

	entry, err := h.drawService.Recycle(e.Request.Context(), e.Auth.Id, instanceID)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"message":        "Prize recycled",
		"points_awarded": entry.Amount,
		"ledger_id":      entry.ID,
	})
}

// EstimateShipping quotes a shipping fee for the caller's prize instances
// without charging anything.
func (h *PrizeHandler) EstimateShipping(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		InstanceIDs []string `json:"instance_ids"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	estimate, err := h.shippingService.Estimate(e.Request.Context(), e.Auth.Id, req.InstanceIDs)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, estimate)
}

// RequestShipping charges the fee and books the shipment.
func (h *PrizeHandler) RequestShipping(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		InstanceIDs []string `json:"instance_ids"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	entry, err := h.shippingService.RequestShipment(e.Request.Context(), e.Auth.Id, req.InstanceIDs)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"message":        "Shipment requested",
		"points_charged": -entry.Amount,
		"ledger_id":      entry.ID,
	})
}
