package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Catalogue prices each ticket type in a single currency
type Catalogue struct {
	Currency string
	prices   map[TicketType]decimal.Decimal
}

// DefaultCatalogue returns the launch price list
func DefaultCatalogue() *Catalogue {
	c, _ := NewCatalogue("USD", map[string]string{
		"simple": "49.99",
		"couple": "84.99",
		"vip":    "149.99",
		"vvip":   "299.99",
	})
	return c
}

// NewCatalogue parses decimal prices keyed by ticket type; every type must be priced
func NewCatalogue(currency string, prices map[string]string) (*Catalogue, error) {
	c := &Catalogue{Currency: currency, prices: make(map[TicketType]decimal.Decimal, len(prices))}
	for k, v := range prices {
		t, err := ParseTicketType(k)
		if err != nil {
			return nil, fmt.Errorf("catalogue: %q: %w", k, err)
		}
		p, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("catalogue: price for %s: %w", t, err)
		}
		if p.IsNegative() {
			return nil, fmt.Errorf("catalogue: negative price for %s", t)
		}
		c.prices[t] = p
	}
	for _, t := range TicketTypes {
		if _, ok := c.prices[t]; !ok {
			return nil, fmt.Errorf("catalogue: missing price for %s", t)
		}
	}
	return c, nil
}

// Price returns the price of t
func (c *Catalogue) Price(t TicketType) (decimal.Decimal, error) {
	p, ok := c.prices[t]
	if !ok {
		return decimal.Zero, ErrInvalidTicketType
	}
	return p, nil
}

// CatalogueEntry is one row of the public price list
type CatalogueEntry struct {
	Type     TicketType      `json:"type"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

// Entries lists prices in display order
func (c *Catalogue) Entries() []CatalogueEntry {
	out := make([]CatalogueEntry, 0, len(TicketTypes))
	for _, t := range TicketTypes {
		out = append(out, CatalogueEntry{Type: t, Price: c.prices[t], Currency: c.Currency})
	}
	return out
}
