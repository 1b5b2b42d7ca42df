package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogue(t *testing.T) {
	c := DefaultCatalogue()
	require.NotNil(t, c)

	p, err := c.Price(TicketTypeVVIP)
	require.NoError(t, err)
	assert.Equal(t, "299.99", p.StringFixed(2))

	entries := c.Entries()
	require.Len(t, entries, 4)
	assert.Equal(t, TicketTypeSimple, entries[0].Type)
	assert.Equal(t, "USD", entries[0].Currency)
}

func TestNewCatalogue_Errors(t *testing.T) {
	_, err := NewCatalogue("USD", map[string]string{"simple": "1", "couple": "2", "vip": "3"})
	assert.ErrorContains(t, err, "missing price for vvip")

	_, err = NewCatalogue("USD", map[string]string{"simple": "abc", "couple": "2", "vip": "3", "vvip": "4"})
	assert.Error(t, err)

	_, err = NewCatalogue("USD", map[string]string{"simple": "-1", "couple": "2", "vip": "3", "vvip": "4"})
	assert.ErrorContains(t, err, "negative")

	_, err = NewCatalogue("USD", map[string]string{"box": "1"})
	assert.ErrorIs(t, err, ErrInvalidTicketType)
}

func TestTicketStats(t *testing.T) {
	now := time.Now()
	s := NewTicketStats()

	add := func(tt TicketType, st TicketStatus, price string, by string) {
		tk := &Ticket{Type: tt, Status: st, Price: decimal.RequireFromString(price)}
		if st == TicketStatusValidated {
			tk.ValidatedAt = &now
			tk.ValidatedBy = by
		}
		s.Add(tk)
	}

	add(TicketTypeVIP, TicketStatusValidated, "149.99", "Manager001")
	add(TicketTypeVIP, TicketStatusPending, "149.99", "")
	add(TicketTypeSimple, TicketStatusValidated, "49.99", "Manager002")
	add(TicketTypeCouple, TicketStatusCancelled, "84.99", "")

	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.ByStatus[TicketStatusValidated])
	assert.Equal(t, 0, s.ByStatus[TicketStatusExpired])
	assert.Equal(t, 2, s.ByType[TicketTypeVIP].Count)
	assert.Equal(t, 1, s.ByType[TicketTypeVIP].Validated)
	assert.Equal(t, "299.98", s.ByType[TicketTypeVIP].Revenue.StringFixed(2))
	assert.True(t, s.ByType[TicketTypeCouple].Revenue.IsZero())
	assert.Equal(t, "349.97", s.Revenue.StringFixed(2))
	assert.Equal(t, map[string]int{"Manager001": 1, "Manager002": 1}, s.ByOperator)
}
