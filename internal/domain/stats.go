package domain

import "github.com/shopspring/decimal"

// TypeStats aggregates one ticket tier
type TypeStats struct {
	Count     int             `json:"count"`
	Validated int             `json:"validated"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// TicketStats backs the admin dashboard. Revenue excludes cancelled and rejected tickets.
type TicketStats struct {
	Total      int                       `json:"total"`
	ByStatus   map[TicketStatus]int      `json:"by_status"`
	ByType     map[TicketType]*TypeStats `json:"by_type"`
	ByOperator map[string]int            `json:"validations_by_operator"`
	Revenue    decimal.Decimal           `json:"revenue"`
}

// NewTicketStats returns zeroed stats with every status and type present
func NewTicketStats() *TicketStats {
	s := &TicketStats{
		ByStatus:   make(map[TicketStatus]int),
		ByType:     make(map[TicketType]*TypeStats),
		ByOperator: make(map[string]int),
		Revenue:    decimal.Zero,
	}
	for _, st := range []TicketStatus{TicketStatusPending, TicketStatusOTPSent, TicketStatusValidated,
		TicketStatusRejected, TicketStatusCancelled, TicketStatusExpired} {
		s.ByStatus[st] = 0
	}
	for _, t := range TicketTypes {
		s.ByType[t] = &TypeStats{Revenue: decimal.Zero}
	}
	return s
}

// Add folds one ticket into the stats
func (s *TicketStats) Add(t *Ticket) {
	s.AddRow(t.Type, t.Status, t.Price, t.ValidatedBy, 1)
}

// AddRow folds n tickets sharing the same attributes. amount is their summed price.
func (s *TicketStats) AddRow(tt TicketType, st TicketStatus, amount decimal.Decimal, validatedBy string, n int) {
	s.Total += n
	s.ByStatus[st] += n
	ts, ok := s.ByType[tt]
	if !ok {
		ts = &TypeStats{Revenue: decimal.Zero}
		s.ByType[tt] = ts
	}
	ts.Count += n
	if st == TicketStatusValidated {
		ts.Validated += n
		if validatedBy != "" {
			s.ByOperator[validatedBy] += n
		}
	}
	if st != TicketStatusCancelled && st != TicketStatusRejected {
		ts.Revenue = ts.Revenue.Add(amount)
		s.Revenue = s.Revenue.Add(amount)
	}
}
