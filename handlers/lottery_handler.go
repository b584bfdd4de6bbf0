package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"kuji-system/models"
	"kuji-system/services"
)

type LotteryHandler struct {
	app          *pocketbase.PocketBase
	store        services.Store
	lockService  *services.LockService
	queueService *services.QueueService
	drawService  *services.DrawService
}

func NewLotteryHandler(app *pocketbase.PocketBase, store services.Store, lockService *services.LockService, queueService *services.QueueService, drawService *services.DrawService) *LotteryHandler {
	return &LotteryHandler{
		app:          app,
		store:        store,
		lockService:  lockService,
		queueService: queueService,
		drawService:  drawService,
	}
}

// State is the public board projection: which tickets are gone, which are
// held right now, and what remains per grade. The pool seed appears only
// after sell-out; before that observers get the commitment hash alone.
func (h *LotteryHandler) State(e *core.RequestEvent) error {
	setID := e.Request.PathValue("setId")
	if setID == "" {
		return apis.NewBadRequestError("setId is required", nil)
	}
	ctx := e.Request.Context()

	set, err := h.store.LotterySet(ctx, setID)
	if err != nil {
		return apiError(err)
	}

	locked, err := h.lockService.AllLockedIndices(ctx, setID)
	if err != nil {
		return apiError(err)
	}
	turn, err := h.queueService.ActiveTurn(ctx, setID)
	if err != nil {
		return apiError(err)
	}
	queueLength, err := h.queueService.QueueLength(ctx, setID)
	if err != nil {
		return apiError(err)
	}

	drawn := set.DrawnTicketIndices
	if drawn == nil {
		drawn = []int{}
	}
	if locked == nil {
		locked = []int{}
	}

	response := map[string]any{
		"lottery_set_id":       set.ID,
		"status":               set.Status,
		"total_tickets":        len(set.PrizeOrder),
		"remaining_tickets":    set.RemainingTickets(),
		"drawn_ticket_indices": drawn,
		"locked_indices":       locked,
		"remaining_by_grade":   set.RemainingByGrade(),
		"pool_commitment_hash": set.PoolCommitmentHash,
		"queue_length":         queueLength,
	}
	if turn != nil {
		response["active_user_id"] = turn.UserID
		response["turn_expires_at"] = turn.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if e.Auth != nil {
		mine, err := h.lockService.LockedIndices(ctx, setID, e.Auth.Id)
		if err != nil {
			return apiError(err)
		}
		if mine == nil {
			mine = []int{}
		}
		response["my_locked_indices"] = mine
		if turn != nil && turn.UserID == e.Auth.Id {
			response["my_turn_expires_at"] = turn.ExpiresAt.UTC().Format(time.RFC3339)
		}
	}
	// The seed stays withheld until the last ticket is drawn, otherwise a
	// reader could replay the shuffle and map every remaining index.
	if set.Status == models.SetSoldOut {
		response["pool_seed"] = set.PoolSeed
		response["prize_order"] = set.PrizeOrder
	}
	return e.JSON(http.StatusOK, response)
}

// QuickPick suggests random undrawn, unlocked ticket indices.
func (h *LotteryHandler) QuickPick(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	setID := e.Request.PathValue("setId")
	if setID == "" {
		return apis.NewBadRequestError("setId is required", nil)
	}

	count := 1
	if raw := e.Request.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return apis.NewBadRequestError("count must be a positive integer", nil)
		}
		count = n
	}

	indices, err := h.drawService.QuickPick(e.Request.Context(), setID, count)
	if err != nil {
		return apiError(err)
	}
	if indices == nil {
		indices = []int{}
	}
	return e.JSON(http.StatusOK, map[string]any{
		"lottery_set_id": setID,
		"ticket_indices": indices,
	})
}
