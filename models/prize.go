package models

const (
	PrizeNormal  = "NORMAL"
	PrizeLastOne = "LAST_ONE"
)

// Prize instance fulfillment statuses.
const (
	InstanceInInventory   = "IN_INVENTORY"
	InstanceInShipment    = "IN_SHIPMENT"
	InstanceShipped       = "SHIPPED"
	InstancePendingPickup = "PENDING_PICKUP"
	InstancePickedUp      = "PICKED_UP"
)

// Prize is a template: one grade row of a lottery set.
type Prize struct {
	ID           string `json:"id"`
	LotterySetID string `json:"lottery_set_id"`
	Grade        string `json:"grade"`
	Name         string `json:"name"`
	Type         string `json:"type"` // NORMAL, LAST_ONE
	Total        int    `json:"total"`
	WeightGrams  int    `json:"weight_grams"`
	RecycleValue int    `json:"recycle_value"`
}

// PrizeInstance binds a template to a buyer at draw time. Only status and the
// recycled flag may change after creation.
type PrizeInstance struct {
	ID           string `json:"id"`
	PrizeID      string `json:"prize_id"`
	LotterySetID string `json:"lottery_set_id"`
	UserID       string `json:"user_id"`
	Grade        string `json:"grade"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	IsRecycled   bool   `json:"is_recycled"`
}
