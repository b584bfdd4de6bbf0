package models

import "time"

// Ledger entry types.
const (
	LedgerDraw     = "DRAW"
	LedgerRecycle  = "RECYCLE"
	LedgerShipping = "SHIPPING"
)

// DrawCommitment is the one-time secret/hash pair minted before a draw is
// resolved. Only the hash ever leaves the server before the draw commits.
type DrawCommitment struct {
	SecretKey string `json:"secret_key"`
	DrawHash  string `json:"draw_hash"`
}

// Order is the immutable record of one draw transaction.
type Order struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	LotterySetID     string    `json:"lottery_set_id"`
	TicketIndices    []int     `json:"ticket_indices"`
	PrizeInstanceIDs []string  `json:"prize_instance_ids"`
	CostPoints       int       `json:"cost_points"`
	DrawHash         string    `json:"draw_hash"`
	SecretKey        string    `json:"secret_key"`
	Created          time.Time `json:"created"`
}

// LedgerEntry is one append-only point movement. Draw debits are negative.
type LedgerEntry struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Type             string    `json:"type"`
	Amount           int       `json:"amount"`
	Description      string    `json:"description"`
	PrizeInstanceIDs []string  `json:"prize_instance_ids,omitempty"`
	Created          time.Time `json:"created"`
}

// LotteryStats tracks per (user, set) cumulative draws and earned turn
// extension credits. Both counters are monotonic on the draw path.
type LotteryStats struct {
	LotterySetID     string `json:"lottery_set_id"`
	UserID           string `json:"user_id"`
	CumulativeDraws  int    `json:"cumulative_draws"`
	ExtensionCredits int    `json:"extension_credits"`
}

// DrawResult is what a successful draw returns to the buyer.
type DrawResult struct {
	Order      Order           `json:"order"`
	Prizes     []PrizeInstance `json:"prizes"`
	BonusPrize *PrizeInstance  `json:"bonus_prize,omitempty"`
	SoldOut    bool            `json:"sold_out"`
	SecretKey  string          `json:"secret_key"`
	NewBalance int             `json:"new_balance"`
}
