package models

// Lottery set lifecycle. SOLD_OUT is terminal for drawing, ARCHIVED is the
// admin soft delete.
const (
	SetUpcoming  = "UPCOMING"
	SetAvailable = "AVAILABLE"
	SetSoldOut   = "SOLD_OUT"
	SetArchived  = "ARCHIVED"
)

type LotterySet struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	CategoryID         string   `json:"category_id"`
	Price              int      `json:"price"` // points per ticket
	Status             string   `json:"status"`
	Prizes             []Prize  `json:"prizes"`
	PrizeOrder         []string `json:"prize_order,omitempty"` // prize template id per ticket index
	PoolSeed           string   `json:"pool_seed,omitempty"`
	PoolCommitmentHash string   `json:"pool_commitment_hash,omitempty"`
	DrawnTicketIndices []int    `json:"drawn_ticket_indices"`
	AllowSelfPickup    bool     `json:"allow_self_pickup"`
}

// TotalNormalTickets is the number of purchasable tickets, i.e. the length the
// prize order must have once finalized.
func (s *LotterySet) TotalNormalTickets() int {
	total := 0
	for _, p := range s.Prizes {
		if p.Type == PrizeNormal {
			total += p.Total
		}
	}
	return total
}

// RemainingTickets derives the undrawn ticket count from the single source of
// truth (prize order length minus consumed indices), never from per-prize
// counters.
func (s *LotterySet) RemainingTickets() int {
	return len(s.PrizeOrder) - len(s.DrawnTicketIndices)
}

// IsDrawn reports whether the ticket index was already consumed.
func (s *LotterySet) IsDrawn(index int) bool {
	for _, d := range s.DrawnTicketIndices {
		if d == index {
			return true
		}
	}
	return false
}

// LastOnePrize returns the configured last-one bonus template, if any.
func (s *LotterySet) LastOnePrize() *Prize {
	for i := range s.Prizes {
		if s.Prizes[i].Type == PrizeLastOne {
			return &s.Prizes[i]
		}
	}
	return nil
}

// PrizeByID resolves a prize template on this set.
func (s *LotterySet) PrizeByID(id string) *Prize {
	for i := range s.Prizes {
		if s.Prizes[i].ID == id {
			return &s.Prizes[i]
		}
	}
	return nil
}

// RemainingByGrade aggregates undrawn tickets per prize grade for the public
// board projection.
func (s *LotterySet) RemainingByGrade() map[string]int {
	drawn := make(map[string]int)
	for _, idx := range s.DrawnTicketIndices {
		if idx >= 0 && idx < len(s.PrizeOrder) {
			drawn[s.PrizeOrder[idx]]++
		}
	}

	remaining := make(map[string]int)
	for _, p := range s.Prizes {
		if p.Type != PrizeNormal {
			continue
		}
		remaining[p.Grade] += p.Total - drawn[p.ID]
	}
	return remaining
}
