package services

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kuji-system/models"
)

// fakeCreditStore hands out a fixed number of extension credits.
type fakeCreditStore struct {
	credits int
	calls   int
}

func (f *fakeCreditStore) UseExtensionCredit(ctx context.Context, setID, userID string) (bool, error) {
	f.calls++
	if f.credits > 0 {
		f.credits--
		return true, nil
	}
	return false, nil
}

func setupQueueService(t *testing.T, credits *fakeCreditStore) (*QueueService, redismock.ClientMock, time.Time) {
	t.Helper()

	db, mock := redismock.NewClientMock()
	cfg := testConfig()

	locks := NewLockService(db, cfg, nil)
	svc := NewQueueService(db, nil, cfg, locks, credits, nil)
	locks.BindTurnChecker(svc)

	now := time.Unix(1_700_000_000, 0)
	svc.now = func() time.Time { return now }
	locks.now = func() time.Time { return now }
	return svc, mock, now
}

func TestQueueService_Join_PromotesWhenEmpty(t *testing.T) {
	svc, mock, now := setupQueueService(t, &fakeCreditStore{})

	mock.ExpectHGetAll("queue:active:set-1").SetVal(map[string]string{})
	mock.ExpectLRange("queue:waiting:set-1", 0, -1).SetVal([]string{})
	mock.ExpectHSet("queue:active:set-1",
		"user_id", "user-1",
		"expires_at", now.Add(3*time.Minute).Unix(),
	).SetVal(2)

	err := svc.Join(context.Background(), "set-1", "user-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueService_Join_AppendsWhenOccupied(t *testing.T) {
	svc, mock, now := setupQueueService(t, &fakeCreditStore{})

	future := strconv.FormatInt(now.Add(time.Minute).Unix(), 10)
	mock.ExpectHGetAll("queue:active:set-1").SetVal(map[string]string{
		"user_id":    "user-2",
		"expires_at": future,
	})
	mock.ExpectLRange("queue:waiting:set-1", 0, -1).SetVal([]string{})

	entry, err := json.Marshal(models.QueueEntry{
		UserID:       "user-1",
		LotterySetID: "set-1",
		JoinedAt:     now,
	})
	require.NoError(t, err)
	mock.ExpectRPush("queue:waiting:set-1", entry).SetVal(1)

	err = svc.Join(context.Background(), "set-1", "user-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueService_Join_ActiveHolderIsNoop(t *testing.T) {
	svc, mock, now := setupQueueService(t, &fakeCreditStore{})

	future := strconv.FormatInt(now.Add(time.Minute).Unix(), 10)
	mock.ExpectHGetAll("queue:active:set-1").SetVal(map[string]string{
		"user_id":    "user-1",
		"expires_at": future,
	})

	err := svc.Join(context.Background(), "set-1", "user-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueService_Join_AlreadyQueuedIsNoop(t *testing.T) {
	svc, mock, now := setupQueueService(t, &fakeCreditStore{})

	future := strconv.FormatInt(now.Add(time.Minute).Unix(), 10)
	mock.ExpectHGetAll("queue:active:set-1").SetVal(map[string]string{
		"user_id":    "user-2",
		"expires_at": future,
	})

	queued, _ := json.Marshal(models.QueueEntry{UserID: "user-1", LotterySetID: "set-1", JoinedAt: now})
	mock.ExpectLRange("queue:waiting:set-1", 0, -1).SetVal([]string{string(queued)})

	err := svc.Join(context.Background(), "set-1", "user-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueService_Leave_Waiting(t *testing.T) {
	svc, mock, now := setupQueueService(t, &fakeCreditStore{})

	mock.ExpectHGetAll("queue:active:set-1").SetVal(map[string]string{
		"user_id":    "user-2",
		"expires_at": strconv.FormatInt(now.Add(time.Minute).Unix(), 10),
	})

	queued, _ := json.Marshal(models.QueueEntry{UserID: "user-1", LotterySetID: "set-1", JoinedAt: now})
	mock.ExpectLRange("queue:waiting:set-1", 0, -1).SetVal([]string{string(queued)})
	mock.ExpectLRem("queue:waiting:set-1", 1, string(queued)).SetVal(1)

	err := svc.Leave(context.Background(), "set-1", "user-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueService_Leave_ActiveHolderPromotesNext(t *testing.T) {
	svc, mock, now := setupQueueService(t, &fakeCreditStore{})

	mock.ExpectHGetAll("queue:active:set-1").SetVal(map[string]string{
		"user_id":    "user-1",
		"expires_at": strconv.FormatInt(now.Add(time.Minute).Unix(), 10),
	})

	// endActiveTurn: release every lock user-1 holds, drop the slot
	mock.ExpectSMembers("userlocks:set-1:user-1").SetVal([]string{"3"})
	mock.ExpectHGet("lock:set-1:3", "user_id").SetVal("user-1")
	mock.ExpectDel("lock:set-1:3").SetVal(1)
	mock.ExpectDel("userlocks:set-1:user-1").SetVal(1)
	mock.ExpectDel("queue:active:set-1").SetVal(1)

	// promoteNext: next waiting user gets a fresh full-duration turn
	next, _ := json.Marshal(models.QueueEntry{UserID: "user-2", LotterySetID: "set-1", JoinedAt: now})
	mock.ExpectLPop("queue:waiting:set-1").SetVal(string(next))
	mock.ExpectHSet("queue:active:set-1",
		"user_id", "user-2",
		"expires_at", now.Add(3*time.Minute).Unix(),
	).SetVal(2)

	err := svc.Leave(context.Background(), "set-1", "user-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueService_ExtendTurn(t *testing.T) {
	credits := &fakeCreditStore{credits: 1}
	svc, mock, now := setupQueueService(t, credits)

	exp := now.Add(time.Minute).Unix()
	mock.ExpectHGetAll("queue:active:set-1").SetVal(map[string]string{
		"user_id":    "user-1",
		"expires_at": strconv.FormatInt(exp, 10),
	})
	mock.ExpectHSet("queue:active:set-1", "expires_at", exp+180).SetVal(0)

	extended, err := svc.ExtendTurn(context.Background(), "set-1", "user-1")
	require.NoError(t, err)
	assert.True(t, extended)
	assert.Equal(t, 1, credits.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueService_ExtendTurn_NoCredits(t *testing.T) {
	credits := &fakeCreditStore{credits: 0}
	svc, mock, now := setupQueueService(t, credits)

	mock.ExpectHGetAll("queue:active:set-1").SetVal(map[string]string{
		"user_id":    "user-1",
		"expires_at": strconv.FormatInt(now.Add(time.Minute).Unix(), 10),
	})

	extended, err := svc.ExtendTurn(context.Background(), "set-1", "user-1")
	require.NoError(t, err)
	assert.False(t, extended)
	assert.Equal(t, 1, credits.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueService_ExtendTurn_NotActiveHolder(t *testing.T) {
	credits := &fakeCreditStore{credits: 5}
	svc, mock, now := setupQueueService(t, credits)

	mock.ExpectHGetAll("queue:active:set-1").SetVal(map[string]string{
		"user_id":    "user-2",
		"expires_at": strconv.FormatInt(now.Add(time.Minute).Unix(), 10),
	})

	extended, err := svc.ExtendTurn(context.Background(), "set-1", "user-1")
	require.NoError(t, err)
	assert.False(t, extended)
	assert.Zero(t, credits.calls)
}

func TestQueueService_ActiveTurn_LazyExpiry(t *testing.T) {
	svc, mock, now := setupQueueService(t, &fakeCreditStore{})

	mock.ExpectHGetAll("queue:active:set-1").SetVal(map[string]string{
		"user_id":    "user-1",
		"expires_at": strconv.FormatInt(now.Add(-time.Second).Unix(), 10),
	})

	turn, err := svc.ActiveTurn(context.Background(), "set-1")
	require.NoError(t, err)
	assert.Nil(t, turn)
}

func TestQueueService_IsActiveHolder(t *testing.T) {
	svc, mock, now := setupQueueService(t, &fakeCreditStore{})

	future := strconv.FormatInt(now.Add(time.Minute).Unix(), 10)
	mock.ExpectHGetAll("queue:active:set-1").SetVal(map[string]string{
		"user_id":    "user-1",
		"expires_at": future,
	})
	mock.ExpectHGetAll("queue:active:set-1").SetVal(map[string]string{
		"user_id":    "user-1",
		"expires_at": future,
	})

	active, err := svc.IsActiveHolder(context.Background(), "set-1", "user-1")
	require.NoError(t, err)
	assert.True(t, active)

	active, err = svc.IsActiveHolder(context.Background(), "set-1", "user-2")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestQueueService_Position(t *testing.T) {
	svc, mock, now := setupQueueService(t, &fakeCreditStore{})

	first, _ := json.Marshal(models.QueueEntry{UserID: "user-2", LotterySetID: "set-1", JoinedAt: now})
	second, _ := json.Marshal(models.QueueEntry{UserID: "user-1", LotterySetID: "set-1", JoinedAt: now})
	mock.ExpectLRange("queue:waiting:set-1", 0, -1).SetVal([]string{string(first), string(second)})

	pos, err := svc.Position(context.Background(), "set-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, pos)
}

func TestQueueService_SweepExpiredTurn(t *testing.T) {
	svc, mock, now := setupQueueService(t, &fakeCreditStore{})

	mock.ExpectKeys("queue:active:*").SetVal([]string{"queue:active:set-1"})
	mock.ExpectHGetAll("queue:active:set-1").SetVal(map[string]string{
		"user_id":    "user-1",
		"expires_at": strconv.FormatInt(now.Add(-time.Second).Unix(), 10),
	})

	// Implicit leave: locks released, slot cleared, nobody left to promote
	mock.ExpectSMembers("userlocks:set-1:user-1").SetVal([]string{})
	mock.ExpectDel("userlocks:set-1:user-1").SetVal(0)
	mock.ExpectDel("queue:active:set-1").SetVal(1)
	mock.ExpectLPop("queue:waiting:set-1").RedisNil()

	// Lock sweep runs after the turn sweep
	mock.ExpectKeys("lock:*").SetVal([]string{})

	svc.sweepOnce(context.Background())
	assert.NoError(t, mock.ExpectationsWereMet())
}
