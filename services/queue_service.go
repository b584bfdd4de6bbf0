package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"kuji-system/config"
	"kuji-system/models"
	"kuji-system/monitoring"
)

// QueueService serializes buyers per lottery set: a FIFO waiting list in a
// Redis list plus a single active-holder hash with a running turn timer.
// Only the active holder may take ticket locks or draw. One background sweep
// goroutine expires overdue turns and cascades into releasing the holder's
// locks.
type QueueService struct {
	Redis    *redis.Client
	notifier *Notifier
	config   *config.Config
	locks    *LockService
	credits  CreditStore
	monitor  *monitoring.Monitor

	now      func() time.Time
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewQueueService(redisClient *redis.Client, notifier *Notifier, cfg *config.Config, locks *LockService, credits CreditStore, monitor *monitoring.Monitor) *QueueService {
	return &QueueService{
		Redis:    redisClient,
		notifier: notifier,
		config:   cfg,
		locks:    locks,
		credits:  credits,
		monitor:  monitor,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

func waitingKey(setID string) string {
	return fmt.Sprintf("queue:waiting:%s", setID)
}

func activeKey(setID string) string {
	return fmt.Sprintf("queue:active:%s", setID)
}

// Join appends the user to the lottery's queue. When nobody is active the
// newcomer is promoted immediately with a full turn timer. Joining twice is
// a no-op.
func (s *QueueService) Join(ctx context.Context, setID, userID string) error {
	active, err := s.activeTurn(ctx, setID, true)
	if err != nil {
		return err
	}
	if active != nil && active.UserID == userID {
		return nil
	}

	pos, err := s.Position(ctx, setID, userID)
	if err != nil {
		return err
	}
	if pos > 0 {
		return nil
	}

	if active == nil {
		return s.promote(ctx, setID, userID)
	}

	entry := models.QueueEntry{
		UserID:       userID,
		LotterySetID: setID,
		JoinedAt:     s.now(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.Redis.RPush(ctx, waitingKey(setID), data).Err()
}

// Leave removes the user from the queue. Leaving as the active holder
// releases every ticket lock they hold and promotes the next head with a
// fresh full-duration timer.
func (s *QueueService) Leave(ctx context.Context, setID, userID string) error {
	fields, err := s.Redis.HGetAll(ctx, activeKey(setID)).Result()
	if err != nil {
		return err
	}
	if fields["user_id"] == userID {
		return s.endActiveTurn(ctx, setID, userID)
	}

	entries, err := s.Redis.LRange(ctx, waitingKey(setID), 0, -1).Result()
	if err != nil {
		return err
	}
	for _, raw := range entries {
		var entry models.QueueEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		if entry.UserID == userID {
			return s.Redis.LRem(ctx, waitingKey(setID), 1, raw).Err()
		}
	}
	return nil
}

// ExtendTurn consumes one extension credit and adds a full turn duration to
// the active holder's timer. Without credits it silently does nothing (the
// UI greys the button out, the server just stays consistent).
func (s *QueueService) ExtendTurn(ctx context.Context, setID, userID string) (bool, error) {
	fields, err := s.Redis.HGetAll(ctx, activeKey(setID)).Result()
	if err != nil {
		return false, err
	}
	if fields["user_id"] != userID {
		return false, nil
	}
	exp, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil || exp <= s.now().Unix() {
		return false, nil
	}

	ok, err := s.credits.UseExtensionCredit(ctx, setID, userID)
	if err != nil || !ok {
		return false, err
	}

	newExpiry := exp + int64(s.config.TurnDuration/time.Second)
	if err := s.Redis.HSet(ctx, activeKey(setID), "expires_at", newExpiry).Err(); err != nil {
		return false, err
	}

	s.notifier.NotifyUser(ctx, userID, map[string]any{
		"type":           "turn_extended",
		"lottery_set_id": setID,
		"expires_at":     newExpiry,
	})
	return true, nil
}

// ActiveTurn returns the current live turn holder, or nil. Expiry is applied
// lazily: an overdue holder reads as absent even before the sweep runs.
func (s *QueueService) ActiveTurn(ctx context.Context, setID string) (*models.ActiveTurn, error) {
	return s.activeTurn(ctx, setID, false)
}

// IsActiveHolder implements TurnChecker for the lock manager.
func (s *QueueService) IsActiveHolder(ctx context.Context, setID, userID string) (bool, error) {
	turn, err := s.activeTurn(ctx, setID, false)
	if err != nil {
		return false, err
	}
	return turn != nil && turn.UserID == userID, nil
}

// QueueLength is the number of waiting (not active) users.
func (s *QueueService) QueueLength(ctx context.Context, setID string) (int, error) {
	n, err := s.Redis.LLen(ctx, waitingKey(setID)).Result()
	return int(n), err
}

// Position returns the 1-based waiting position, 0 when not queued.
func (s *QueueService) Position(ctx context.Context, setID, userID string) (int, error) {
	entries, err := s.Redis.LRange(ctx, waitingKey(setID), 0, -1).Result()
	if err != nil {
		return 0, err
	}
	for i, raw := range entries {
		var entry models.QueueEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		if entry.UserID == userID {
			return i + 1, nil
		}
	}
	return 0, nil
}

// Start launches the expiry sweep. One goroutine covers every lottery set.
func (s *QueueService) Start() {
	s.wg.Add(1)
	go s.sweepLoop()
	log.Println("Turn queue sweep started")
}

// Shutdown stops the sweep and waits for it to drain.
func (s *QueueService) Shutdown() {
	close(s.stopChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Turn queue sweep stopped")
	case <-time.After(10 * time.Second):
		log.Println("Timeout waiting for turn queue sweep to stop")
	}
}

func (s *QueueService) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepOnce(context.Background())
		case <-s.stopChan:
			return
		}
	}
}

// sweepOnce expires every overdue active turn (treating it as an implicit
// leave: locks released, next head promoted) and reaps expired ticket locks.
func (s *QueueService) sweepOnce(ctx context.Context) {
	keys, err := s.Redis.Keys(ctx, "queue:active:*").Result()
	if err != nil {
		slog.Error("queue sweep: listing keys", "error", err)
		return
	}

	now := s.now().Unix()
	for _, key := range keys {
		setID := key[len("queue:active:"):]
		fields, err := s.Redis.HGetAll(ctx, key).Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		exp, err := strconv.ParseInt(fields["expires_at"], 10, 64)
		if err != nil || exp > now {
			continue
		}

		userID := fields["user_id"]
		slog.Info("turn expired", "lottery_set_id", setID, "user_id", userID)
		if s.monitor != nil {
			s.monitor.TrackSweepExpiration()
		}
		s.notifier.NotifyUser(ctx, userID, map[string]any{
			"type":           "turn_expired",
			"lottery_set_id": setID,
		})

		if err := s.endActiveTurn(ctx, setID, userID); err != nil {
			slog.Error("queue sweep: ending turn", "lottery_set_id", setID, "user_id", userID, "error", err)
		}
	}

	s.locks.SweepExpired(ctx)
}

// endActiveTurn releases the holder's locks, clears the active slot, and
// promotes the next waiting user.
func (s *QueueService) endActiveTurn(ctx context.Context, setID, userID string) error {
	if err := s.locks.ReleaseAll(ctx, setID, userID); err != nil {
		return err
	}
	if err := s.Redis.Del(ctx, activeKey(setID)).Err(); err != nil {
		return err
	}
	return s.promoteNext(ctx, setID)
}

// promoteNext pops the queue head into the active slot, if anyone is
// waiting.
func (s *QueueService) promoteNext(ctx context.Context, setID string) error {
	for {
		raw, err := s.Redis.LPop(ctx, waitingKey(setID)).Result()
		if err == redis.Nil {
			return nil
		} else if err != nil {
			return err
		}

		var entry models.QueueEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			slog.Error("queue: dropping corrupt entry", "lottery_set_id", setID, "error", err)
			continue
		}
		return s.promote(ctx, setID, entry.UserID)
	}
}

func (s *QueueService) promote(ctx context.Context, setID, userID string) error {
	expiresAt := s.now().Add(s.config.TurnDuration).Unix()
	err := s.Redis.HSet(ctx, activeKey(setID),
		"user_id", userID,
		"expires_at", expiresAt,
	).Err()
	if err != nil {
		return err
	}

	s.notifier.NotifyUser(ctx, userID, map[string]any{
		"type":           "turn_started",
		"lottery_set_id": setID,
		"expires_at":     expiresAt,
	})
	return nil
}

// activeTurn reads the active slot with lazy expiry. With reap set, an
// expired holder is cleaned up inline (locks released, next user promoted)
// instead of waiting for the sweep tick.
func (s *QueueService) activeTurn(ctx context.Context, setID string, reap bool) (*models.ActiveTurn, error) {
	fields, err := s.Redis.HGetAll(ctx, activeKey(setID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	exp, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt active turn for %s: %w", setID, err)
	}
	if exp <= s.now().Unix() {
		if reap {
			if err := s.endActiveTurn(ctx, setID, fields["user_id"]); err != nil {
				return nil, err
			}
			// The promoted successor, if any, is the live holder now.
			return s.activeTurn(ctx, setID, false)
		}
		return nil, nil
	}

	return &models.ActiveTurn{
		UserID:    fields["user_id"],
		ExpiresAt: time.Unix(exp, 0),
	}, nil
}
