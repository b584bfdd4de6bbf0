package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"kuji-system/config"
	"kuji-system/internal/status"
	"kuji-system/models"
)

// ShippingService prices and books prize shipments. Fees are computed in
// decimal to keep the per-kilogram arithmetic exact, then charged in whole
// points.
type ShippingService struct {
	store Store

	baseFee      decimal.Decimal
	baseWeightKg decimal.Decimal
	feePerKg     decimal.Decimal
}

func NewShippingService(store Store, cfg *config.Config) (*ShippingService, error) {
	baseFee, err := decimal.NewFromString(cfg.ShippingBaseFee)
	if err != nil {
		return nil, fmt.Errorf("invalid SHIPPING_BASE_FEE: %w", err)
	}
	baseWeight, err := decimal.NewFromString(cfg.ShippingBaseWeightKg)
	if err != nil {
		return nil, fmt.Errorf("invalid SHIPPING_BASE_WEIGHT_KG: %w", err)
	}
	perKg, err := decimal.NewFromString(cfg.ShippingFeePerKg)
	if err != nil {
		return nil, fmt.Errorf("invalid SHIPPING_FEE_PER_KG: %w", err)
	}
	return &ShippingService{
		store:        store,
		baseFee:      baseFee,
		baseWeightKg: baseWeight,
		feePerKg:     perKg,
	}, nil
}

// ShippingEstimate is a priced quote for a candidate shipment.
type ShippingEstimate struct {
	InstanceIDs   []string `json:"instance_ids"`
	TotalWeightKg string   `json:"total_weight_kg"`
	FeePoints     int      `json:"fee_points"`
}

var gramsPerKg = decimal.NewFromInt(1000)

// EstimateFee prices a shipment by total weight: the base fee covers the base
// weight, every started kilogram above it adds the per-kg fee.
func (s *ShippingService) EstimateFee(totalWeightGrams int) (decimal.Decimal, int) {
	weightKg := decimal.NewFromInt(int64(totalWeightGrams)).Div(gramsPerKg)

	fee := s.baseFee
	if over := weightKg.Sub(s.baseWeightKg); over.IsPositive() {
		fee = fee.Add(s.feePerKg.Mul(over.Ceil()))
	}
	return weightKg, int(fee.Ceil().IntPart())
}

// Estimate quotes shipping for the given prize instances without charging
// anything. Every instance must belong to userID and still sit in inventory.
func (s *ShippingService) Estimate(ctx context.Context, userID string, instanceIDs []string) (*ShippingEstimate, error) {
	if len(instanceIDs) == 0 {
		return nil, fmt.Errorf("no prize instances given")
	}

	var estimate ShippingEstimate
	err := s.store.RunInTransaction(ctx, func(tx StoreTx) error {
		totalGrams, err := s.shippableWeight(tx, userID, instanceIDs)
		if err != nil {
			return err
		}
		weightKg, fee := s.EstimateFee(totalGrams)
		estimate = ShippingEstimate{
			InstanceIDs:   instanceIDs,
			TotalWeightKg: weightKg.String(),
			FeePoints:     fee,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &estimate, nil
}

// RequestShipment charges the quoted fee in points and moves the instances to
// IN_SHIPMENT, atomically. The fee is recomputed inside the transaction so a
// stale client quote cannot undercharge.
func (s *ShippingService) RequestShipment(ctx context.Context, userID string, instanceIDs []string) (*models.LedgerEntry, error) {
	if len(instanceIDs) == 0 {
		return nil, fmt.Errorf("no prize instances given")
	}

	var entry models.LedgerEntry
	err := s.store.RunInTransaction(ctx, func(tx StoreTx) error {
		totalGrams, err := s.shippableWeight(tx, userID, instanceIDs)
		if err != nil {
			return err
		}
		_, fee := s.EstimateFee(totalGrams)

		balance, err := tx.UserPoints(userID)
		if err != nil {
			return err
		}
		if balance < fee {
			return status.ErrInsufficientPoints
		}

		for _, id := range instanceIDs {
			pi, err := tx.PrizeInstanceByUID(id)
			if err != nil {
				return err
			}
			pi.Status = models.InstanceInShipment
			if err := tx.SavePrizeInstance(pi); err != nil {
				return err
			}
		}

		if _, err := tx.AdjustUserPoints(userID, -fee); err != nil {
			return err
		}

		entry = models.LedgerEntry{
			ID:               uuid.NewString(),
			UserID:           userID,
			Type:             models.LedgerShipping,
			Amount:           -fee,
			Description:      fmt.Sprintf("Shipping for %d prize(s)", len(instanceIDs)),
			PrizeInstanceIDs: instanceIDs,
		}
		return tx.AppendLedger(&entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// shippableWeight validates ownership and status for every instance and sums
// the template weights.
func (s *ShippingService) shippableWeight(tx StoreTx, userID string, instanceIDs []string) (int, error) {
	total := 0
	for _, id := range instanceIDs {
		pi, err := tx.PrizeInstanceByUID(id)
		if err != nil {
			return 0, err
		}
		if pi.UserID != userID {
			return 0, status.ErrNotFound
		}
		if pi.IsRecycled || pi.Status != models.InstanceInInventory {
			return 0, fmt.Errorf("prize instance %s is not shippable", id)
		}
		prize, err := tx.Prize(pi.PrizeID)
		if err != nil {
			return 0, err
		}
		total += prize.WeightGrams
	}
	return total, nil
}
