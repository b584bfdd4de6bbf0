package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"kuji-system/services"
)

// VerifyHandler exposes the stateless fairness checks. Both endpoints are
// public: anyone holding the published values can re-run the hashes.
type VerifyHandler struct{}

func NewVerifyHandler() *VerifyHandler {
	return &VerifyHandler{}
}

// VerifyDraw checks a revealed per-draw secret against its pre-committed
// hash.
func (h *VerifyHandler) VerifyDraw(e *core.RequestEvent) error {
	var req struct {
		SecretKey string `json:"secret_key"`
		DrawHash  string `json:"draw_hash"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.SecretKey == "" || req.DrawHash == "" {
		return apis.NewBadRequestError("secret_key and draw_hash are required", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"valid": services.VerifyDrawHash(req.SecretKey, req.DrawHash),
	})
}

// VerifyPool checks a released pool seed and prize order against the
// commitment hash published before the first sale.
func (h *VerifyHandler) VerifyPool(e *core.RequestEvent) error {
	var req struct {
		PoolSeed           string   `json:"pool_seed"`
		PrizeOrder         []string `json:"prize_order"`
		PoolCommitmentHash string   `json:"pool_commitment_hash"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.PoolSeed == "" || req.PoolCommitmentHash == "" {
		return apis.NewBadRequestError("pool_seed and pool_commitment_hash are required", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"valid": services.VerifyPoolCommitment(req.PoolSeed, req.PrizeOrder, req.PoolCommitmentHash),
	})
}
