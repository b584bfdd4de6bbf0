package models

import (
	"time"
)

// QueueEntry is one waiting user in a lottery's FIFO turn queue. Only the
// promoted (active) holder carries a running timer, kept separately in
// ActiveTurn.
type QueueEntry struct {
	UserID       string    `json:"user_id"`
	LotterySetID string    `json:"lottery_set_id"`
	JoinedAt     time.Time `json:"joined_at"`
}

// ActiveTurn is the single head-of-queue holder for a lottery set.
type ActiveTurn struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TicketLock is a short-lived exclusive hold on one ticket index. At most one
// non-expired lock exists per (set, index).
type TicketLock struct {
	LotterySetID string    `json:"lottery_set_id"`
	TicketIndex  int       `json:"ticket_index"`
	UserID       string    `json:"user_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// LotteryState is the per-set read projection consumed by the storefront UI.
type LotteryState struct {
	LotterySetID       string         `json:"lottery_set_id"`
	Status             string         `json:"status"`
	DrawnTicketIndices []int          `json:"drawn_ticket_indices"`
	RemainingByGrade   map[string]int `json:"remaining_by_grade"`
	ActiveUserID       string         `json:"active_user_id,omitempty"`
	QueueLength        int            `json:"queue_length"`
	MyTurnExpiresAt    *time.Time     `json:"my_turn_expires_at,omitempty"`
	MyLockedIndices    []int          `json:"my_locked_indices"`
	LockedIndices      []int          `json:"locked_indices"`
	PoolCommitmentHash string         `json:"pool_commitment_hash,omitempty"`
	PoolSeed           string         `json:"pool_seed,omitempty"` // only after SOLD_OUT
}
