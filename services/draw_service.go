package services

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"kuji-system/config"
	"kuji-system/internal/status"
	"kuji-system/models"
	"kuji-system/monitoring"
)

// DrawService executes the atomic draw transaction: it consumes held
// tickets, debits points, instantiates prizes (including the last-one
// bonus), and writes the order/ledger records, all-or-nothing. Everything is
// re-validated inside the transaction; holding locks narrows the race
// window but the commit is the arbiter.
type DrawService struct {
	store    Store
	locks    *LockService
	queue    *QueueService
	commits  *CommitmentService
	notifier *Notifier
	monitor  *monitoring.Monitor
	config   *config.Config
}

func NewDrawService(store Store, locks *LockService, queue *QueueService, commits *CommitmentService, notifier *Notifier, monitor *monitoring.Monitor, cfg *config.Config) *DrawService {
	return &DrawService{
		store:    store,
		locks:    locks,
		queue:    queue,
		commits:  commits,
		notifier: notifier,
		monitor:  monitor,
		config:   cfg,
	}
}

// Draw runs one draw attempt for the active turn holder. drawHash must come
// from a prior MintDrawCommitment call; the matching secret is revealed in
// the result only after the transaction commits.
func (s *DrawService) Draw(ctx context.Context, setID, userID string, indices []int, costInPoints int, drawHash string) (*models.DrawResult, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("no tickets selected")
	}
	indices = dedupeSorted(indices)
	if max := s.config.MaxTicketsPerDraw; max > 0 && len(indices) > max {
		return nil, fmt.Errorf("at most %d tickets per draw", max)
	}

	active, err := s.queue.IsActiveHolder(ctx, setID, userID)
	if err != nil {
		return nil, err
	}
	if !active {
		s.trackDraw(setID, "not_active_holder", 0)
		return nil, status.ErrNotActiveHolder
	}

	secretKey, err := s.commits.RedeemSecret(ctx, drawHash)
	if err != nil {
		return nil, err
	}

	var result models.DrawResult
	err = s.store.RunInTransaction(ctx, func(tx StoreTx) error {
		set, err := tx.LotterySetForUpdate(setID)
		if err != nil {
			return err
		}
		if set.Status != models.SetAvailable {
			return status.ErrSetNotAvailable
		}

		// Re-validated here, not just at lock time: a just-expired turn's
		// in-flight draw can still race a successor past the lock layer.
		for _, idx := range indices {
			if idx < 0 || idx >= len(set.PrizeOrder) || set.IsDrawn(idx) {
				return status.ErrTicketsNoLongerAvailable
			}
		}

		if want := set.Price * len(indices); costInPoints != want {
			return fmt.Errorf("cost mismatch: %d tickets cost %d points", len(indices), want)
		}

		balance, err := tx.UserPoints(userID)
		if err != nil {
			return err
		}
		if balance < costInPoints {
			return status.ErrInsufficientPoints
		}

		remainingBefore := set.RemainingTickets()

		orderID := uuid.NewString()
		var instances []models.PrizeInstance
		for _, idx := range indices {
			prize := set.PrizeByID(set.PrizeOrder[idx])
			if prize == nil {
				return fmt.Errorf("prize order references unknown prize %q", set.PrizeOrder[idx])
			}
			pi := models.PrizeInstance{
				ID:           uuid.NewString(),
				PrizeID:      prize.ID,
				LotterySetID: set.ID,
				UserID:       userID,
				Grade:        prize.Grade,
				Name:         prize.Name,
				Status:       models.InstanceInInventory,
			}
			if err := tx.CreatePrizeInstance(&pi); err != nil {
				return err
			}
			instances = append(instances, pi)
		}

		// Last-one bonus: this draw empties the set.
		var bonus *models.PrizeInstance
		soldOut := remainingBefore == len(indices)
		if soldOut {
			if last := set.LastOnePrize(); last != nil {
				pi := models.PrizeInstance{
					ID:           uuid.NewString(),
					PrizeID:      last.ID,
					LotterySetID: set.ID,
					UserID:       userID,
					Grade:        last.Grade,
					Name:         last.Name,
					Status:       models.InstanceInInventory,
				}
				if err := tx.CreatePrizeInstance(&pi); err != nil {
					return err
				}
				bonus = &pi
			}
			set.Status = models.SetSoldOut
		}

		newBalance, err := tx.AdjustUserPoints(userID, -costInPoints)
		if err != nil {
			return err
		}

		set.DrawnTicketIndices = append(set.DrawnTicketIndices, indices...)
		if err := tx.SaveLotterySet(set); err != nil {
			return err
		}

		stats, err := tx.Stats(setID, userID)
		if err != nil {
			return err
		}
		stats.ExtensionCredits += extensionCreditsEarned(stats.CumulativeDraws, len(indices), s.config.DrawsPerExtension)
		stats.CumulativeDraws += len(indices)
		if err := tx.SaveStats(stats); err != nil {
			return err
		}

		instanceIDs := make([]string, 0, len(instances)+1)
		for _, pi := range instances {
			instanceIDs = append(instanceIDs, pi.ID)
		}
		if bonus != nil {
			instanceIDs = append(instanceIDs, bonus.ID)
		}

		order := models.Order{
			ID:               orderID,
			UserID:           userID,
			LotterySetID:     setID,
			TicketIndices:    indices,
			PrizeInstanceIDs: instanceIDs,
			CostPoints:       costInPoints,
			DrawHash:         drawHash,
			SecretKey:        secretKey,
		}
		if err := tx.CreateOrder(&order); err != nil {
			return err
		}

		entry := models.LedgerEntry{
			ID:               uuid.NewString(),
			UserID:           userID,
			Type:             models.LedgerDraw,
			Amount:           -costInPoints,
			Description:      fmt.Sprintf("Draw of %d ticket(s) from %s", len(indices), set.Title),
			PrizeInstanceIDs: instanceIDs,
		}
		if err := tx.AppendLedger(&entry); err != nil {
			return err
		}

		result = models.DrawResult{
			Order:      order,
			Prizes:     instances,
			BonusPrize: bonus,
			SoldOut:    soldOut,
			SecretKey:  secretKey,
			NewBalance: newBalance,
		}
		return nil
	})
	if err != nil {
		s.trackDraw(setID, drawOutcome(err), 0)
		return nil, err
	}

	s.trackDraw(setID, "success", len(indices))

	// Post-commit cleanup is best effort; the transaction is already the
	// source of truth and the sweep covers stragglers.
	if err := s.locks.Release(ctx, setID, userID, indices); err != nil {
		slog.Error("draw: releasing consumed locks", "lottery_set_id", setID, "user_id", userID, "error", err)
	}
	if err := s.commits.BurnCommitment(ctx, drawHash); err != nil {
		slog.Error("draw: burning commitment", "draw_hash", drawHash, "error", err)
	}

	s.notifier.NotifyLottery(ctx, setID, map[string]any{
		"type":           "tickets_drawn",
		"lottery_set_id": setID,
		"ticket_indices": indices,
		"sold_out":       result.SoldOut,
	})

	return &result, nil
}

// Recycle converts an in-inventory prize instance back into points at the
// template's recycle value. Owner only, once only.
func (s *DrawService) Recycle(ctx context.Context, userID, instanceID string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := s.store.RunInTransaction(ctx, func(tx StoreTx) error {
		pi, err := tx.PrizeInstanceByUID(instanceID)
		if err != nil {
			return err
		}
		if pi.UserID != userID {
			return status.ErrNotFound
		}
		if pi.IsRecycled || pi.Status != models.InstanceInInventory {
			return fmt.Errorf("prize instance %s cannot be recycled", instanceID)
		}

		prize, err := tx.Prize(pi.PrizeID)
		if err != nil {
			return err
		}
		if prize.RecycleValue <= 0 {
			return fmt.Errorf("prize %s has no recycle value", prize.ID)
		}

		pi.IsRecycled = true
		if err := tx.SavePrizeInstance(pi); err != nil {
			return err
		}
		if _, err := tx.AdjustUserPoints(userID, prize.RecycleValue); err != nil {
			return err
		}

		entry = models.LedgerEntry{
			ID:               uuid.NewString(),
			UserID:           userID,
			Type:             models.LedgerRecycle,
			Amount:           prize.RecycleValue,
			Description:      fmt.Sprintf("Recycled %s (%s)", prize.Name, prize.Grade),
			PrizeInstanceIDs: []string{pi.ID},
		}
		return tx.AppendLedger(&entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// QuickPick chooses count random undrawn, unlocked ticket indices. Pure UI
// convenience outside the fairness boundary, so math/rand is fine here.
func (s *DrawService) QuickPick(ctx context.Context, setID string, count int) ([]int, error) {
	if count <= 0 {
		return nil, fmt.Errorf("count must be positive")
	}

	set, err := s.store.LotterySet(ctx, setID)
	if err != nil {
		return nil, err
	}
	locked, err := s.locks.AllLockedIndices(ctx, setID)
	if err != nil {
		return nil, err
	}

	lockedSet := make(map[int]bool, len(locked))
	for _, idx := range locked {
		lockedSet[idx] = true
	}

	var available []int
	for idx := range set.PrizeOrder {
		if !set.IsDrawn(idx) && !lockedSet[idx] {
			available = append(available, idx)
		}
	}
	if len(available) < count {
		count = len(available)
	}

	rand.New(rand.NewSource(time.Now().UnixNano())).Shuffle(len(available), func(i, j int) {
		available[i], available[j] = available[j], available[i]
	})
	picked := available[:count]
	return dedupeSorted(picked), nil
}

// extensionCreditsEarned counts the full multiples of per crossed when a
// user's cumulative draw count grows by added.
func extensionCreditsEarned(before, added, per int) int {
	if per <= 0 {
		return 0
	}
	return (before+added)/per - before/per
}

func drawOutcome(err error) string {
	switch {
	case err == status.ErrTicketsNoLongerAvailable:
		return "tickets_unavailable"
	case err == status.ErrInsufficientPoints:
		return "insufficient_points"
	case err == status.ErrSetNotAvailable:
		return "set_closed"
	default:
		return "error"
	}
}

func (s *DrawService) trackDraw(setID, outcome string, tickets int) {
	if s.monitor != nil {
		s.monitor.TrackDraw(setID, outcome, tickets)
	}
}
