package handlers

import (
	"log/slog"
	"net/http"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"

	"kuji-system/services"
)

type AdminHandler struct {
	app               *pocketbase.PocketBase
	commitmentService *services.CommitmentService
	queueService      *services.QueueService
	notifier          *services.Notifier
	redis             *redis.Client
}

func NewAdminHandler(app *pocketbase.PocketBase, commitmentService *services.CommitmentService, queueService *services.QueueService, notifier *services.Notifier, redisClient *redis.Client) *AdminHandler {
	return &AdminHandler{
		app:               app,
		commitmentService: commitmentService,
		queueService:      queueService,
		notifier:          notifier,
		redis:             redisClient,
	}
}

func requireSuperuser(e *core.RequestEvent) error {
	if e.Auth == nil || e.Auth.Collection().Name != core.CollectionNameSuperusers {
		return apis.NewUnauthorizedError("Admin access required", nil)
	}
	return nil
}

// Finalize commits a lottery set's prize order and opens it for sale. The
// commitment hash goes public; the seed does not.
func (h *AdminHandler) Finalize(e *core.RequestEvent) error {
	if err := requireSuperuser(e); err != nil {
		return err
	}

	setID := e.Request.PathValue("setId")
	if setID == "" {
		return apis.NewBadRequestError("setId is required", nil)
	}

	set, err := h.commitmentService.Finalize(e.Request.Context(), setID)
	if err != nil {
		return apiError(err)
	}

	slog.Info("lottery finalized", "lottery_set_id", set.ID, "tickets", len(set.PrizeOrder))
	return e.JSON(http.StatusOK, map[string]any{
		"lottery_set_id":       set.ID,
		"status":               set.Status,
		"total_tickets":        len(set.PrizeOrder),
		"pool_commitment_hash": set.PoolCommitmentHash,
	})
}

// Archive soft-deletes a lottery set: the record stays (orders and prize
// instances keep their relations) but the set leaves the storefront and the
// active registry.
func (h *AdminHandler) Archive(e *core.RequestEvent) error {
	if err := requireSuperuser(e); err != nil {
		return err
	}

	setID := e.Request.PathValue("setId")
	if setID == "" {
		return apis.NewBadRequestError("setId is required", nil)
	}

	record, err := h.app.FindRecordById("lottery_sets", setID)
	if err != nil {
		return apis.NewNotFoundError("Lottery set not found", err)
	}

	record.Set("status", "ARCHIVED")
	if err := h.app.Save(record); err != nil {
		return apis.NewBadRequestError("Failed to archive lottery set", err)
	}

	if err := h.redis.SRem(e.Request.Context(), "active_lotteries", setID).Err(); err != nil {
		slog.Error("archive: removing from active set", "lottery_set_id", setID, "error", err)
	}

	slog.Info("lottery archived", "lottery_set_id", setID, "admin_id", e.Auth.Id)
	return e.JSON(http.StatusOK, map[string]any{
		"lottery_set_id": setID,
		"status":         "ARCHIVED",
	})
}

// DrawDashboard aggregates sales figures from SQLite and live queue state
// from Redis for every active lottery set.
func (h *AdminHandler) DrawDashboard(e *core.RequestEvent) error {
	if err := requireSuperuser(e); err != nil {
		return err
	}
	ctx := e.Request.Context()

	setIDs, err := h.redis.SMembers(ctx, "active_lotteries").Result()
	if err != nil {
		return apis.NewBadRequestError("Failed to list active lotteries", err)
	}

	dashboard := []map[string]any{}
	for _, setID := range setIDs {
		set, err := h.app.FindRecordById("lottery_sets", setID)
		if err != nil {
			continue
		}

		row := dbx.NullStringMap{}
		err = h.app.DB().
			NewQuery(`SELECT COUNT(id) AS order_count, COALESCE(SUM(cost_points), 0) AS points_spent
				FROM orders WHERE lottery_set = {:set}`).
			Bind(dbx.Params{"set": setID}).
			One(row)
		if err != nil {
			slog.Error("dashboard: order aggregate", "lottery_set_id", setID, "error", err)
			continue
		}

		queueLength, _ := h.queueService.QueueLength(ctx, setID)
		turn, _ := h.queueService.ActiveTurn(ctx, setID)

		entry := map[string]any{
			"lottery_set_id": setID,
			"title":          set.GetString("title"),
			"status":         set.GetString("status"),
			"order_count":    row["order_count"].String,
			"points_spent":   row["points_spent"].String,
			"queue_length":   queueLength,
		}
		if turn != nil {
			entry["active_user_id"] = turn.UserID
		}
		dashboard = append(dashboard, entry)
	}
	return e.JSON(http.StatusOK, dashboard)
}

// RemoveFromQueue force-removes a user from a lottery's queue.
func (h *AdminHandler) RemoveFromQueue(e *core.RequestEvent) error {
	if err := requireSuperuser(e); err != nil {
		return err
	}

	var req struct {
		LotterySetID string `json:"lottery_set_id"`
		UserID       string `json:"user_id"`
		Reason       string `json:"reason"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.LotterySetID == "" || req.UserID == "" {
		return apis.NewBadRequestError("lottery_set_id and user_id are required", nil)
	}
	ctx := e.Request.Context()

	slog.Info("admin removing user from queue",
		"admin_id", e.Auth.Id, "user_id", req.UserID,
		"lottery_set_id", req.LotterySetID, "reason", req.Reason)

	if err := h.queueService.Leave(ctx, req.LotterySetID, req.UserID); err != nil {
		return apiError(err)
	}

	h.notifier.NotifyUser(ctx, req.UserID, map[string]any{
		"type":           "queue_removed",
		"lottery_set_id": req.LotterySetID,
		"reason":         req.Reason,
	})
	return e.JSON(http.StatusOK, map[string]any{"message": "User removed from queue"})
}
