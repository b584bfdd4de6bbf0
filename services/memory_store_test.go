package services

import (
	"context"
	"fmt"
	"sync"

	"kuji-system/internal/status"
	"kuji-system/models"
)

// memStore is an in-memory Store used by the transaction tests. Commits are
// copy-on-write: the transaction works on a deep copy and the copy replaces
// the live state only when the callback returns nil, which is exactly the
// rollback behavior the SQL-backed store gives us.
type memStore struct {
	mu sync.Mutex

	sets      map[string]*models.LotterySet
	points    map[string]int
	instances map[string]*models.PrizeInstance
	orders    []models.Order
	ledger    []models.LedgerEntry
	stats     map[string]models.LotteryStats

	// failOn makes the named StoreTx method fail, for rollback tests.
	failOn string
}

func newMemStore(sets ...*models.LotterySet) *memStore {
	s := &memStore{
		sets:      map[string]*models.LotterySet{},
		points:    map[string]int{},
		instances: map[string]*models.PrizeInstance{},
		stats:     map[string]models.LotteryStats{},
	}
	for _, set := range sets {
		s.sets[set.ID] = set
	}
	return s
}

func statsKey(setID, userID string) string {
	return setID + "|" + userID
}

func copySet(set *models.LotterySet) *models.LotterySet {
	cp := *set
	cp.Prizes = append([]models.Prize(nil), set.Prizes...)
	cp.PrizeOrder = append([]string(nil), set.PrizeOrder...)
	cp.DrawnTicketIndices = append([]int(nil), set.DrawnTicketIndices...)
	return &cp
}

func (s *memStore) snapshot() *memStore {
	cp := &memStore{
		sets:      map[string]*models.LotterySet{},
		points:    map[string]int{},
		instances: map[string]*models.PrizeInstance{},
		orders:    append([]models.Order(nil), s.orders...),
		ledger:    append([]models.LedgerEntry(nil), s.ledger...),
		stats:     map[string]models.LotteryStats{},
		failOn:    s.failOn,
	}
	for id, set := range s.sets {
		cp.sets[id] = copySet(set)
	}
	for id, p := range s.points {
		cp.points[id] = p
	}
	for id, pi := range s.instances {
		c := *pi
		cp.instances[id] = &c
	}
	for k, v := range s.stats {
		cp.stats[k] = v
	}
	return cp
}

func (s *memStore) RunInTransaction(ctx context.Context, fn func(tx StoreTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.snapshot()
	if err := fn(&memTx{state: work}); err != nil {
		return err
	}

	s.sets = work.sets
	s.points = work.points
	s.instances = work.instances
	s.orders = work.orders
	s.ledger = work.ledger
	s.stats = work.stats
	return nil
}

func (s *memStore) LotterySet(ctx context.Context, id string) (*models.LotterySet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[id]
	if !ok {
		return nil, status.ErrNotFound
	}
	return copySet(set), nil
}

type memTx struct {
	state *memStore
}

func (t *memTx) fail(method string) error {
	if t.state.failOn == method {
		return fmt.Errorf("injected %s failure", method)
	}
	return nil
}

func (t *memTx) LotterySetForUpdate(id string) (*models.LotterySet, error) {
	set, ok := t.state.sets[id]
	if !ok {
		return nil, status.ErrNotFound
	}
	return set, nil
}

func (t *memTx) SaveLotterySet(set *models.LotterySet) error {
	if err := t.fail("SaveLotterySet"); err != nil {
		return err
	}
	t.state.sets[set.ID] = set
	return nil
}

func (t *memTx) UserPoints(userID string) (int, error) {
	points, ok := t.state.points[userID]
	if !ok {
		return 0, status.ErrNotFound
	}
	return points, nil
}

func (t *memTx) AdjustUserPoints(userID string, delta int) (int, error) {
	if err := t.fail("AdjustUserPoints"); err != nil {
		return 0, err
	}
	points, ok := t.state.points[userID]
	if !ok {
		return 0, status.ErrNotFound
	}
	t.state.points[userID] = points + delta
	return points + delta, nil
}

func (t *memTx) Prize(id string) (*models.Prize, error) {
	for _, set := range t.state.sets {
		if p := set.PrizeByID(id); p != nil {
			return p, nil
		}
	}
	return nil, status.ErrNotFound
}

func (t *memTx) CreatePrizeInstance(pi *models.PrizeInstance) error {
	if err := t.fail("CreatePrizeInstance"); err != nil {
		return err
	}
	cp := *pi
	t.state.instances[pi.ID] = &cp
	return nil
}

func (t *memTx) PrizeInstanceByUID(uid string) (*models.PrizeInstance, error) {
	pi, ok := t.state.instances[uid]
	if !ok {
		return nil, status.ErrNotFound
	}
	cp := *pi
	return &cp, nil
}

func (t *memTx) SavePrizeInstance(pi *models.PrizeInstance) error {
	if err := t.fail("SavePrizeInstance"); err != nil {
		return err
	}
	cp := *pi
	t.state.instances[pi.ID] = &cp
	return nil
}

func (t *memTx) CreateOrder(order *models.Order) error {
	if err := t.fail("CreateOrder"); err != nil {
		return err
	}
	t.state.orders = append(t.state.orders, *order)
	return nil
}

func (t *memTx) AppendLedger(entry *models.LedgerEntry) error {
	if err := t.fail("AppendLedger"); err != nil {
		return err
	}
	t.state.ledger = append(t.state.ledger, *entry)
	return nil
}

func (t *memTx) Stats(setID, userID string) (models.LotteryStats, error) {
	stats, ok := t.state.stats[statsKey(setID, userID)]
	if !ok {
		return models.LotteryStats{LotterySetID: setID, UserID: userID}, nil
	}
	return stats, nil
}

func (t *memTx) SaveStats(stats models.LotteryStats) error {
	if err := t.fail("SaveStats"); err != nil {
		return err
	}
	t.state.stats[statsKey(stats.LotterySetID, stats.UserID)] = stats
	return nil
}
