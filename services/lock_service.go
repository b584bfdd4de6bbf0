package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"kuji-system/config"
	"kuji-system/internal/status"
	"kuji-system/models"
	"kuji-system/monitoring"
)

// TurnChecker is the slice of the queue scheduler the lock manager needs:
// only the active turn holder may take locks.
type TurnChecker interface {
	IsActiveHolder(ctx context.Context, setID, userID string) (bool, error)
}

// acquireTicketsScript locks a whole batch of ticket indices atomically.
// KEYS[1..n] are the per-ticket lock hashes, KEYS[n+1] the holder's index
// set. ARGV[1] is the current unix time, ARGV[2] the new expiry, ARGV[3] the
// user id, ARGV[3+i] the ticket index behind KEYS[i].
//
// Returns the first conflicting ticket index, or -1 when the whole batch was
// taken. Indices already held by the same user keep their original expiry:
// re-acquiring is a no-op, not a refresh.
const acquireTicketsScript = `
local now = tonumber(ARGV[1])
local user = ARGV[3]
local n = #KEYS - 1
for i = 1, n do
  local holder = redis.call('HGET', KEYS[i], 'user_id')
  if holder and holder ~= user then
    local exp = tonumber(redis.call('HGET', KEYS[i], 'expires_at'))
    if exp and exp > now then
      return tonumber(ARGV[3 + i])
    end
  end
end
for i = 1, n do
  local holder = redis.call('HGET', KEYS[i], 'user_id')
  local exp = tonumber(redis.call('HGET', KEYS[i], 'expires_at'))
  if holder ~= user or not exp or exp <= now then
    redis.call('HSET', KEYS[i], 'user_id', user, 'expires_at', ARGV[2])
  end
  redis.call('SADD', KEYS[n + 1], ARGV[3 + i])
end
return -1
`

// LockService grants short-lived exclusive holds on individual ticket
// indices. Lock state lives in Redis; expiry is evaluated lazily on every
// read and reaped by the queue sweep.
type LockService struct {
	Redis   *redis.Client
	config  *config.Config
	monitor *monitoring.Monitor
	turns   TurnChecker

	now func() time.Time
}

func NewLockService(redisClient *redis.Client, cfg *config.Config, monitor *monitoring.Monitor) *LockService {
	return &LockService{
		Redis:   redisClient,
		config:  cfg,
		monitor: monitor,
		now:     time.Now,
	}
}

// BindTurnChecker wires the queue scheduler in after construction (the two
// services reference each other).
func (s *LockService) BindTurnChecker(t TurnChecker) {
	s.turns = t
}

func lockKey(setID string, index int) string {
	return fmt.Sprintf("lock:%s:%d", setID, index)
}

func userLocksKey(setID, userID string) string {
	return fmt.Sprintf("userlocks:%s:%s", setID, userID)
}

// Acquire locks the given ticket indices for userID, all or nothing. The
// caller must be the active turn holder and every index must be undrawn and
// in range. A conflict with another user's live lock fails the whole batch
// with a LockConflictError naming the first contested index.
func (s *LockService) Acquire(ctx context.Context, set *models.LotterySet, userID string, indices []int) error {
	if len(indices) == 0 {
		return fmt.Errorf("no ticket indices given")
	}

	active, err := s.turns.IsActiveHolder(ctx, set.ID, userID)
	if err != nil {
		return err
	}
	if !active {
		s.track("acquire", "rejected")
		return status.ErrNotActiveHolder
	}

	indices = dedupeSorted(indices)
	for _, idx := range indices {
		if idx < 0 || idx >= len(set.PrizeOrder) {
			return fmt.Errorf("ticket index %d out of range", idx)
		}
		if set.IsDrawn(idx) {
			s.track("acquire", "conflict")
			return &status.LockConflictError{TicketIndex: idx}
		}
	}

	now := s.now()
	keys := make([]string, 0, len(indices)+1)
	args := make([]any, 0, len(indices)+3)
	args = append(args,
		now.Unix(),
		now.Add(s.config.TicketLockDuration).Unix(),
		userID,
	)
	for _, idx := range indices {
		keys = append(keys, lockKey(set.ID, idx))
		args = append(args, idx)
	}
	keys = append(keys, userLocksKey(set.ID, userID))

	res, err := s.Redis.Eval(ctx, acquireTicketsScript, keys, args...).Int64()
	if err != nil {
		return err
	}
	if res >= 0 {
		s.track("acquire", "conflict")
		return &status.LockConflictError{TicketIndex: int(res)}
	}

	s.track("acquire", "success")
	return nil
}

// Release drops the caller's locks on the given indices unconditionally.
// Used when a user deselects tickets, disconnects, or right after a draw
// consumed them. Locks held by other users are left alone.
func (s *LockService) Release(ctx context.Context, setID, userID string, indices []int) error {
	for _, idx := range indices {
		key := lockKey(setID, idx)
		holder, err := s.Redis.HGet(ctx, key, "user_id").Result()
		if err == redis.Nil {
			continue
		} else if err != nil {
			return err
		}
		if holder != userID {
			continue
		}
		if err := s.Redis.Del(ctx, key).Err(); err != nil {
			return err
		}
		if err := s.Redis.SRem(ctx, userLocksKey(setID, userID), idx).Err(); err != nil {
			return err
		}
	}
	s.track("release", "success")
	return nil
}

// ReleaseAll clears every lock userID holds on the set. Called when a turn
// ends, expires, or the user leaves the queue, so locks never outlive their
// owner's turn.
func (s *LockService) ReleaseAll(ctx context.Context, setID, userID string) error {
	setKey := userLocksKey(setID, userID)
	members, err := s.Redis.SMembers(ctx, setKey).Result()
	if err != nil {
		return err
	}

	for _, member := range members {
		idx, err := strconv.Atoi(member)
		if err != nil {
			continue
		}
		key := lockKey(setID, idx)
		holder, err := s.Redis.HGet(ctx, key, "user_id").Result()
		if err == redis.Nil {
			continue
		} else if err != nil {
			return err
		}
		if holder == userID {
			if err := s.Redis.Del(ctx, key).Err(); err != nil {
				return err
			}
		}
	}

	return s.Redis.Del(ctx, setKey).Err()
}

// LockedIndices returns the indices userID currently holds live locks on.
func (s *LockService) LockedIndices(ctx context.Context, setID, userID string) ([]int, error) {
	members, err := s.Redis.SMembers(ctx, userLocksKey(setID, userID)).Result()
	if err != nil {
		return nil, err
	}

	now := s.now()
	var out []int
	for _, member := range members {
		idx, err := strconv.Atoi(member)
		if err != nil {
			continue
		}
		lock, err := s.lockAt(ctx, setID, idx, now)
		if err != nil {
			return nil, err
		}
		if lock != nil && lock.UserID == userID {
			out = append(out, idx)
		}
	}
	sort.Ints(out)
	return out, nil
}

// AllLockedIndices returns every live-locked index on the set, for the
// public board projection.
func (s *LockService) AllLockedIndices(ctx context.Context, setID string) ([]int, error) {
	keys, err := s.Redis.Keys(ctx, fmt.Sprintf("lock:%s:*", setID)).Result()
	if err != nil {
		return nil, err
	}

	now := s.now()
	var out []int
	for _, key := range keys {
		parts := strings.Split(key, ":")
		idx, err := strconv.Atoi(parts[len(parts)-1])
		if err != nil {
			continue
		}
		lock, err := s.lockAt(ctx, setID, idx, now)
		if err != nil {
			return nil, err
		}
		if lock != nil {
			out = append(out, idx)
		}
	}
	sort.Ints(out)
	return out, nil
}

// SweepExpired deletes every expired lock. Runs from the queue scheduler's
// periodic sweep.
func (s *LockService) SweepExpired(ctx context.Context) {
	keys, err := s.Redis.Keys(ctx, "lock:*").Result()
	if err != nil {
		slog.Error("lock sweep: listing keys", "error", err)
		return
	}

	now := s.now()
	for _, key := range keys {
		parts := strings.Split(key, ":")
		if len(parts) != 3 {
			continue
		}
		setID := parts[1]
		idx, err := strconv.Atoi(parts[2])
		if err != nil {
			continue
		}

		fields, err := s.Redis.HGetAll(ctx, key).Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		exp, err := strconv.ParseInt(fields["expires_at"], 10, 64)
		if err != nil || exp > now.Unix() {
			continue
		}

		if err := s.Redis.Del(ctx, key).Err(); err != nil {
			slog.Error("lock sweep: delete", "key", key, "error", err)
			continue
		}
		s.Redis.SRem(ctx, userLocksKey(setID, fields["user_id"]), idx)
		s.track("sweep", "expired")
	}
}

// lockAt reads one lock hash and applies lazy expiry: a lock whose stored
// expiry has passed counts as absent even before the sweep deletes it.
func (s *LockService) lockAt(ctx context.Context, setID string, index int, now time.Time) (*models.TicketLock, error) {
	fields, err := s.Redis.HGetAll(ctx, lockKey(setID, index)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	exp, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt lock %s:%d: %w", setID, index, err)
	}
	if exp <= now.Unix() {
		return nil, nil
	}

	return &models.TicketLock{
		LotterySetID: setID,
		TicketIndex:  index,
		UserID:       fields["user_id"],
		ExpiresAt:    time.Unix(exp, 0),
	}, nil
}

func (s *LockService) track(operation, result string) {
	if s.monitor != nil {
		s.monitor.TrackLockOperation(operation, result)
	}
}

func dedupeSorted(indices []int) []int {
	sort.Ints(indices)
	out := indices[:0]
	for i, idx := range indices {
		if i == 0 || idx != indices[i-1] {
			out = append(out, idx)
		}
	}
	return out
}
