package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kuji-system/internal/status"
	"kuji-system/models"
)

func setupShippingService(t *testing.T, store *memStore) *ShippingService {
	t.Helper()

	cfg := testConfig()
	cfg.ShippingBaseFee = "500"
	cfg.ShippingBaseWeightKg = "5"
	cfg.ShippingFeePerKg = "80"

	svc, err := NewShippingService(store, cfg)
	require.NoError(t, err)
	return svc
}

func shippingFixture() *memStore {
	set := drawFixtureSet()
	set.Prizes[0].WeightGrams = 1200 // p-a
	set.Prizes[1].WeightGrams = 300  // p-b
	store := newMemStore(set)
	store.points["user-1"] = 1000
	store.instances["pi-1"] = &models.PrizeInstance{
		ID: "pi-1", PrizeID: "p-a", UserID: "user-1", Status: models.InstanceInInventory,
	}
	store.instances["pi-2"] = &models.PrizeInstance{
		ID: "pi-2", PrizeID: "p-b", UserID: "user-1", Status: models.InstanceInInventory,
	}
	return store
}

func TestShippingService_EstimateFee(t *testing.T) {
	svc := setupShippingService(t, newMemStore())

	tests := []struct {
		grams int
		want  int
	}{
		{0, 500},
		{4999, 500},
		{5000, 500},   // exactly the base weight
		{5001, 580},   // first started kg above base
		{6000, 580},
		{6001, 660},
		{12500, 1140}, // 7.5kg over, 8 started kg
	}
	for _, tt := range tests {
		_, fee := svc.EstimateFee(tt.grams)
		assert.Equal(t, tt.want, fee, "grams=%d", tt.grams)
	}
}

func TestShippingService_Estimate(t *testing.T) {
	store := shippingFixture()
	svc := setupShippingService(t, store)

	estimate, err := svc.Estimate(context.Background(), "user-1", []string{"pi-1", "pi-2"})
	require.NoError(t, err)

	assert.Equal(t, "1.5", estimate.TotalWeightKg)
	assert.Equal(t, 500, estimate.FeePoints)

	// A quote never charges or mutates anything
	assert.Equal(t, 1000, store.points["user-1"])
	assert.Equal(t, models.InstanceInInventory, store.instances["pi-1"].Status)
}

func TestShippingService_Estimate_NotOwner(t *testing.T) {
	store := shippingFixture()
	store.instances["pi-1"].UserID = "user-2"
	svc := setupShippingService(t, store)

	_, err := svc.Estimate(context.Background(), "user-1", []string{"pi-1"})
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestShippingService_RequestShipment(t *testing.T) {
	store := shippingFixture()
	svc := setupShippingService(t, store)

	entry, err := svc.RequestShipment(context.Background(), "user-1", []string{"pi-1", "pi-2"})
	require.NoError(t, err)

	assert.Equal(t, models.LedgerShipping, entry.Type)
	assert.Equal(t, -500, entry.Amount)
	assert.Equal(t, 500, store.points["user-1"])
	assert.Equal(t, models.InstanceInShipment, store.instances["pi-1"].Status)
	assert.Equal(t, models.InstanceInShipment, store.instances["pi-2"].Status)
}

func TestShippingService_RequestShipment_InsufficientPoints(t *testing.T) {
	store := shippingFixture()
	store.points["user-1"] = 100
	svc := setupShippingService(t, store)

	_, err := svc.RequestShipment(context.Background(), "user-1", []string{"pi-1"})
	assert.ErrorIs(t, err, status.ErrInsufficientPoints)

	// Rolled back entirely
	assert.Equal(t, 100, store.points["user-1"])
	assert.Equal(t, models.InstanceInInventory, store.instances["pi-1"].Status)
}

func TestShippingService_RequestShipment_RecycledNotShippable(t *testing.T) {
	store := shippingFixture()
	store.instances["pi-1"].IsRecycled = true
	svc := setupShippingService(t, store)

	_, err := svc.RequestShipment(context.Background(), "user-1", []string{"pi-1"})
	assert.Error(t, err)
}
