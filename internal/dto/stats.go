package dto

import "github.com/scriptify-cm/event-qr-platform/internal/domain"

// TypeStatsResponse aggregates one ticket tier
type TypeStatsResponse struct {
	Count     int    `json:"count"`
	Validated int    `json:"validated"`
	Revenue   string `json:"revenue"`
}

// StatsResponse backs the admin dashboard
type StatsResponse struct {
	Total      int                           `json:"total"`
	ByStatus   map[string]int                `json:"by_status"`
	ByType     map[string]*TypeStatsResponse `json:"by_type"`
	ByOperator map[string]int                `json:"validations_by_operator"`
	// ScansByOperator counts scans handled by this instance since it started
	ScansByOperator map[string]int `json:"scans_by_operator"`
	Revenue         string         `json:"revenue"`
	Currency        string         `json:"currency"`
}

// FromStats converts dashboard stats; amounts are rendered with two decimals
func FromStats(s *domain.TicketStats, currency string) *StatsResponse {
	out := &StatsResponse{
		Total:      s.Total,
		ByStatus:   make(map[string]int, len(s.ByStatus)),
		ByType:     make(map[string]*TypeStatsResponse, len(s.ByType)),
		ByOperator: s.ByOperator,
		Revenue:    s.Revenue.StringFixed(2),
		Currency:   currency,
	}
	for st, n := range s.ByStatus {
		out.ByStatus[string(st)] = n
	}
	for tt, ts := range s.ByType {
		out.ByType[string(tt)] = &TypeStatsResponse{
			Count:     ts.Count,
			Validated: ts.Validated,
			Revenue:   ts.Revenue.StringFixed(2),
		}
	}
	return out
}

// CatalogueEntryResponse is one row of the price list
type CatalogueEntryResponse struct {
	Type        string `json:"type"`
	Price       string `json:"price"`
	Currency    string `json:"currency"`
	OTPRequired bool   `json:"otp_required"`
}
