package services

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"kuji-system/config"
	"kuji-system/internal/status"
	"kuji-system/models"
	"kuji-system/utils"
)

const (
	poolSeedBytes   = 32
	drawSecretBytes = 32
)

// CommitmentService owns both halves of the fairness scheme: the one-shot
// pool commitment fixed before any sale, and the per-draw secret/hash pairs
// minted before each draw resolves.
//
// Per-draw secrets are parked in Redis under their hash and revealed to the
// buyer only inside the draw transaction's response.
type CommitmentService struct {
	store  Store
	Redis  *redis.Client
	config *config.Config
}

func NewCommitmentService(store Store, redisClient *redis.Client, cfg *config.Config) *CommitmentService {
	return &CommitmentService{
		store:  store,
		Redis:  redisClient,
		config: cfg,
	}
}

// BuildPrizeOrder expands every NORMAL prize template into `total` copies of
// its id and returns a uniformly random permutation. crypto/rand only: the
// ordering must not be reproducible by an outside observer.
func BuildPrizeOrder(prizes []models.Prize) ([]string, error) {
	var pool []string
	for _, p := range prizes {
		if p.Type != models.PrizeNormal {
			continue
		}
		for i := 0; i < p.Total; i++ {
			pool = append(pool, p.ID)
		}
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("no normal prizes to build an order from")
	}

	if err := utils.SecureShuffle(pool); err != nil {
		return nil, err
	}
	return pool, nil
}

// Finalize commits the prize order for a lottery set: permutation, pool seed,
// commitment hash, and the UPCOMING -> AVAILABLE transition, all in one
// transaction. Runs at most once per set; a second call fails with
// ErrAlreadyFinalized and changes nothing. The seed itself stays withheld
// from public reads until the set is SOLD_OUT (enforced by the projection).
func (s *CommitmentService) Finalize(ctx context.Context, setID string) (*models.LotterySet, error) {
	var finalized *models.LotterySet

	err := s.store.RunInTransaction(ctx, func(tx StoreTx) error {
		set, err := tx.LotterySetForUpdate(setID)
		if err != nil {
			return err
		}

		if len(set.PrizeOrder) > 0 {
			return status.ErrAlreadyFinalized
		}

		order, err := BuildPrizeOrder(set.Prizes)
		if err != nil {
			return err
		}
		if got, want := len(order), set.TotalNormalTickets(); got != want {
			return fmt.Errorf("prize order length %d does not match ticket count %d", got, want)
		}

		seed, err := utils.GenerateCode(poolSeedBytes)
		if err != nil {
			return err
		}

		set.PrizeOrder = order
		set.PoolSeed = seed
		set.PoolCommitmentHash = utils.Sha256Hex(utils.PoolCommitmentPayload(seed, order))
		if set.Status == models.SetUpcoming {
			set.Status = models.SetAvailable
		}

		finalized = set
		return tx.SaveLotterySet(set)
	})
	if err != nil {
		return nil, err
	}
	return finalized, nil
}

func drawCommitKey(drawHash string) string {
	return fmt.Sprintf("drawcommit:%s", drawHash)
}

// MintDrawCommitment creates a fresh secret/hash pair for one draw attempt.
// Only the hash is returned to the caller; the secret waits in Redis until
// the draw redeems it.
func (s *CommitmentService) MintDrawCommitment(ctx context.Context) (string, error) {
	secret, err := utils.GenerateCode(drawSecretBytes)
	if err != nil {
		return "", err
	}
	drawHash := utils.Sha256Hex(secret)

	if err := s.Redis.Set(ctx, drawCommitKey(drawHash), secret, s.config.DrawCommitmentTTL).Err(); err != nil {
		return "", err
	}
	return drawHash, nil
}

// RedeemSecret looks up the parked secret for a minted draw hash. The key is
// left in place so a draw that fails on a recoverable error can retry with
// the same commitment; BurnCommitment removes it after a successful draw.
func (s *CommitmentService) RedeemSecret(ctx context.Context, drawHash string) (string, error) {
	secret, err := s.Redis.Get(ctx, drawCommitKey(drawHash)).Result()
	if err == redis.Nil {
		return "", status.ErrUnknownCommitment
	} else if err != nil {
		return "", err
	}

	// Defense against a tampered key: the pair must still verify.
	if !VerifyDrawHash(secret, drawHash) {
		return "", status.ErrUnknownCommitment
	}
	return secret, nil
}

// BurnCommitment deletes a redeemed commitment so it cannot back a second
// draw.
func (s *CommitmentService) BurnCommitment(ctx context.Context, drawHash string) error {
	return s.Redis.Del(ctx, drawCommitKey(drawHash)).Err()
}

// VerifyDrawHash is the public, stateless check a buyer can run after a draw.
func VerifyDrawHash(secretKey, drawHash string) bool {
	return utils.Sha256Hex(secretKey) == drawHash
}

// VerifyPoolCommitment is the public, stateless check anyone can run after
// sell-out, once the pool seed is released.
func VerifyPoolCommitment(poolSeed string, prizeOrder []string, poolCommitmentHash string) bool {
	return utils.Sha256Hex(utils.PoolCommitmentPayload(poolSeed, prizeOrder)) == poolCommitmentHash
}
