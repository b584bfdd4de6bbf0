package services

import (
	"context"

	"kuji-system/models"
)

// Store is the system-of-record boundary for the draw engine. The production
// implementation wraps PocketBase (see PBStore); tests substitute an
// in-memory double. Everything that must commit atomically goes through
// RunInTransaction; a returned error rolls back every write made through the
// StoreTx.
type Store interface {
	RunInTransaction(ctx context.Context, fn func(tx StoreTx) error) error

	// LotterySet is a plain read used by projections and pre-checks.
	LotterySet(ctx context.Context, id string) (*models.LotterySet, error)
}

// StoreTx is the slice of the system of record a single transaction may
// touch: the lottery aggregate, user balances, prize instances, and the
// append-only order/ledger records.
type StoreTx interface {
	LotterySetForUpdate(id string) (*models.LotterySet, error)
	SaveLotterySet(set *models.LotterySet) error

	UserPoints(userID string) (int, error)
	AdjustUserPoints(userID string, delta int) (int, error)

	Prize(id string) (*models.Prize, error)
	CreatePrizeInstance(pi *models.PrizeInstance) error
	PrizeInstanceByUID(uid string) (*models.PrizeInstance, error)
	SavePrizeInstance(pi *models.PrizeInstance) error

	CreateOrder(order *models.Order) error
	AppendLedger(entry *models.LedgerEntry) error

	Stats(setID, userID string) (models.LotteryStats, error)
	SaveStats(stats models.LotteryStats) error
}

// CreditStore hands out and consumes turn extension credits. Kept narrow so
// the queue scheduler does not depend on the whole Store.
type CreditStore interface {
	// UseExtensionCredit consumes one credit if any remain. Returns false
	// (and no error) when the user has none.
	UseExtensionCredit(ctx context.Context, setID, userID string) (bool, error)
}
