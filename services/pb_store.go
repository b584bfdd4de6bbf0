package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"kuji-system/internal/status"
	"kuji-system/models"
)

// PBStore adapts PocketBase to the Store/StoreTx interfaces. PocketBase is
// the system of record: lottery sets, prizes, prize instances, orders, the
// point ledger, and user balances all live in its collections, and
// RunInTransaction maps straight onto the underlying SQL transaction.
type PBStore struct {
	app core.App
}

func NewPBStore(app core.App) *PBStore {
	return &PBStore{app: app}
}

func (s *PBStore) RunInTransaction(ctx context.Context, fn func(tx StoreTx) error) error {
	return s.app.RunInTransaction(func(txApp core.App) error {
		return fn(&pbTx{app: txApp})
	})
}

func (s *PBStore) LotterySet(ctx context.Context, id string) (*models.LotterySet, error) {
	return loadLotterySet(s.app, id)
}

// UseExtensionCredit implements CreditStore for the queue scheduler.
func (s *PBStore) UseExtensionCredit(ctx context.Context, setID, userID string) (bool, error) {
	used := false
	err := s.RunInTransaction(ctx, func(tx StoreTx) error {
		stats, err := tx.Stats(setID, userID)
		if err != nil {
			return err
		}
		if stats.ExtensionCredits <= 0 {
			return nil
		}
		stats.ExtensionCredits--
		used = true
		return tx.SaveStats(stats)
	})
	return used, err
}

type pbTx struct {
	app core.App
}

func (t *pbTx) LotterySetForUpdate(id string) (*models.LotterySet, error) {
	return loadLotterySet(t.app, id)
}

func (t *pbTx) SaveLotterySet(set *models.LotterySet) error {
	record, err := t.app.FindRecordById("lottery_sets", set.ID)
	if err != nil {
		return err
	}
	record.Set("status", set.Status)
	record.Set("prize_order", set.PrizeOrder)
	record.Set("pool_seed", set.PoolSeed)
	record.Set("pool_commitment_hash", set.PoolCommitmentHash)
	record.Set("drawn_ticket_indices", set.DrawnTicketIndices)
	return t.app.Save(record)
}

func (t *pbTx) UserPoints(userID string) (int, error) {
	record, err := t.app.FindRecordById("users", userID)
	if err != nil {
		return 0, notFound(err)
	}
	return record.GetInt("points"), nil
}

func (t *pbTx) AdjustUserPoints(userID string, delta int) (int, error) {
	record, err := t.app.FindRecordById("users", userID)
	if err != nil {
		return 0, notFound(err)
	}
	balance := record.GetInt("points") + delta
	record.Set("points", balance)
	if err := t.app.Save(record); err != nil {
		return 0, err
	}
	return balance, nil
}

func (t *pbTx) Prize(id string) (*models.Prize, error) {
	record, err := t.app.FindRecordById("prizes", id)
	if err != nil {
		return nil, notFound(err)
	}
	return prizeFromRecord(record), nil
}

func (t *pbTx) CreatePrizeInstance(pi *models.PrizeInstance) error {
	collection, err := t.app.FindCollectionByNameOrId("prize_instances")
	if err != nil {
		return err
	}
	record := core.NewRecord(collection)
	record.Set("uid", pi.ID)
	record.Set("prize", pi.PrizeID)
	record.Set("lottery_set", pi.LotterySetID)
	record.Set("user", pi.UserID)
	record.Set("status", pi.Status)
	record.Set("is_recycled", pi.IsRecycled)
	return t.app.Save(record)
}

func (t *pbTx) PrizeInstanceByUID(uid string) (*models.PrizeInstance, error) {
	record, err := t.app.FindFirstRecordByFilter(
		"prize_instances",
		"uid = {:uid}",
		dbx.Params{"uid": uid},
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &models.PrizeInstance{
		ID:           record.GetString("uid"),
		PrizeID:      record.GetString("prize"),
		LotterySetID: record.GetString("lottery_set"),
		UserID:       record.GetString("user"),
		Status:       record.GetString("status"),
		IsRecycled:   record.GetBool("is_recycled"),
	}, nil
}

func (t *pbTx) SavePrizeInstance(pi *models.PrizeInstance) error {
	record, err := t.app.FindFirstRecordByFilter(
		"prize_instances",
		"uid = {:uid}",
		dbx.Params{"uid": pi.ID},
	)
	if err != nil {
		return notFound(err)
	}
	record.Set("status", pi.Status)
	record.Set("is_recycled", pi.IsRecycled)
	return t.app.Save(record)
}

func (t *pbTx) CreateOrder(order *models.Order) error {
	collection, err := t.app.FindCollectionByNameOrId("orders")
	if err != nil {
		return err
	}
	record := core.NewRecord(collection)
	record.Set("uid", order.ID)
	record.Set("user", order.UserID)
	record.Set("lottery_set", order.LotterySetID)
	record.Set("ticket_indices", order.TicketIndices)
	record.Set("prize_instance_ids", order.PrizeInstanceIDs)
	record.Set("cost_points", order.CostPoints)
	record.Set("draw_hash", order.DrawHash)
	record.Set("secret_key", order.SecretKey)
	return t.app.Save(record)
}

func (t *pbTx) AppendLedger(entry *models.LedgerEntry) error {
	collection, err := t.app.FindCollectionByNameOrId("ledger")
	if err != nil {
		return err
	}
	record := core.NewRecord(collection)
	record.Set("uid", entry.ID)
	record.Set("user", entry.UserID)
	record.Set("type", entry.Type)
	record.Set("amount", entry.Amount)
	record.Set("description", entry.Description)
	record.Set("prize_instance_ids", entry.PrizeInstanceIDs)
	return t.app.Save(record)
}

func (t *pbTx) Stats(setID, userID string) (models.LotteryStats, error) {
	stats := models.LotteryStats{LotterySetID: setID, UserID: userID}

	record, err := t.app.FindFirstRecordByFilter(
		"lottery_stats",
		"lottery_set = {:set} && user = {:user}",
		dbx.Params{"set": setID, "user": userID},
	)
	if errors.Is(err, sql.ErrNoRows) {
		return stats, nil
	} else if err != nil {
		return stats, err
	}

	stats.CumulativeDraws = record.GetInt("cumulative_draws")
	stats.ExtensionCredits = record.GetInt("extension_credits")
	return stats, nil
}

func (t *pbTx) SaveStats(stats models.LotteryStats) error {
	record, err := t.app.FindFirstRecordByFilter(
		"lottery_stats",
		"lottery_set = {:set} && user = {:user}",
		dbx.Params{"set": stats.LotterySetID, "user": stats.UserID},
	)
	if errors.Is(err, sql.ErrNoRows) {
		collection, err := t.app.FindCollectionByNameOrId("lottery_stats")
		if err != nil {
			return err
		}
		record = core.NewRecord(collection)
		record.Set("lottery_set", stats.LotterySetID)
		record.Set("user", stats.UserID)
	} else if err != nil {
		return err
	}

	record.Set("cumulative_draws", stats.CumulativeDraws)
	record.Set("extension_credits", stats.ExtensionCredits)
	return t.app.Save(record)
}

func loadLotterySet(app core.App, id string) (*models.LotterySet, error) {
	record, err := app.FindRecordById("lottery_sets", id)
	if err != nil {
		return nil, notFound(err)
	}

	set := &models.LotterySet{
		ID:                 record.Id,
		Title:              record.GetString("title"),
		CategoryID:         record.GetString("category"),
		Price:              record.GetInt("price"),
		Status:             record.GetString("status"),
		AllowSelfPickup:    record.GetBool("allow_self_pickup"),
		DrawnTicketIndices: []int{},
	}
	if err := record.UnmarshalJSONField("prize_order", &set.PrizeOrder); err != nil {
		set.PrizeOrder = nil
	}
	if err := record.UnmarshalJSONField("drawn_ticket_indices", &set.DrawnTicketIndices); err != nil {
		set.DrawnTicketIndices = []int{}
	}
	set.PoolSeed = record.GetString("pool_seed")
	set.PoolCommitmentHash = record.GetString("pool_commitment_hash")

	prizeRecords, err := app.FindRecordsByFilter(
		"prizes",
		"lottery_set = {:set}",
		"created",
		0,
		0,
		dbx.Params{"set": id},
	)
	if err != nil {
		return nil, err
	}
	for _, pr := range prizeRecords {
		set.Prizes = append(set.Prizes, *prizeFromRecord(pr))
	}

	return set, nil
}

func prizeFromRecord(record *core.Record) *models.Prize {
	return &models.Prize{
		ID:           record.Id,
		LotterySetID: record.GetString("lottery_set"),
		Grade:        record.GetString("grade"),
		Name:         record.GetString("name"),
		Type:         record.GetString("type"),
		Total:        record.GetInt("total"),
		WeightGrams:  record.GetInt("weight_grams"),
		RecycleValue: record.GetInt("recycle_value"),
	}
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return status.ErrNotFound
	}
	return err
}
