package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSet() *LotterySet {
	return &LotterySet{
		ID:     "set-1",
		Title:  "Space Cats Vol. 2",
		Price:  100,
		Status: SetAvailable,
		Prizes: []Prize{
			{ID: "p-a", Grade: "A", Name: "Figure", Type: PrizeNormal, Total: 2},
			{ID: "p-b", Grade: "B", Name: "Mug", Type: PrizeNormal, Total: 3},
			{ID: "p-last", Grade: "LAST", Name: "Golden Figure", Type: PrizeLastOne, Total: 1},
		},
		PrizeOrder:         []string{"p-a", "p-b", "p-b", "p-a", "p-b"},
		DrawnTicketIndices: []int{},
	}
}

func TestLotterySet_TotalNormalTickets(t *testing.T) {
	set := sampleSet()

	// The LAST_ONE template never contributes tickets
	assert.Equal(t, 5, set.TotalNormalTickets())
}

func TestLotterySet_RemainingTickets(t *testing.T) {
	set := sampleSet()
	assert.Equal(t, 5, set.RemainingTickets())

	set.DrawnTicketIndices = []int{0, 3}
	assert.Equal(t, 3, set.RemainingTickets())

	set.DrawnTicketIndices = []int{0, 1, 2, 3, 4}
	assert.Equal(t, 0, set.RemainingTickets())
}

func TestLotterySet_IsDrawn(t *testing.T) {
	set := sampleSet()
	set.DrawnTicketIndices = []int{1, 4}

	assert.True(t, set.IsDrawn(1))
	assert.True(t, set.IsDrawn(4))
	assert.False(t, set.IsDrawn(0))
	assert.False(t, set.IsDrawn(2))
}

func TestLotterySet_LastOnePrize(t *testing.T) {
	set := sampleSet()

	last := set.LastOnePrize()
	require.NotNil(t, last)
	assert.Equal(t, "p-last", last.ID)

	set.Prizes = set.Prizes[:2]
	assert.Nil(t, set.LastOnePrize())
}

func TestLotterySet_PrizeByID(t *testing.T) {
	set := sampleSet()

	prize := set.PrizeByID("p-b")
	require.NotNil(t, prize)
	assert.Equal(t, "B", prize.Grade)

	assert.Nil(t, set.PrizeByID("missing"))
}

func TestLotterySet_RemainingByGrade(t *testing.T) {
	set := sampleSet()
	set.DrawnTicketIndices = []int{0, 1} // one A, one B gone

	remaining := set.RemainingByGrade()
	assert.Equal(t, 1, remaining["A"])
	assert.Equal(t, 2, remaining["B"])

	// LAST_ONE grades never appear on the board
	_, ok := remaining["LAST"]
	assert.False(t, ok)
}

func TestQueueEntry_JSONRoundTrip(t *testing.T) {
	entry := QueueEntry{
		UserID:       "user-1",
		LotterySetID: "set-1",
	}

	data, err := json.Marshal(entry)
	require.NoError(t, err)

	var decoded QueueEntry
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, entry.UserID, decoded.UserID)
	assert.Equal(t, entry.LotterySetID, decoded.LotterySetID)
}

func TestDrawResult_OmitsBonusWhenAbsent(t *testing.T) {
	result := DrawResult{
		Order:  Order{ID: "o-1"},
		Prizes: []PrizeInstance{{ID: "pi-1"}},
	}

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "bonus_prize")
}
