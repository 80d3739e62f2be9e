package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLine(t *testing.T, ebookID int64, title, price string, qty int) OrderLine {
	t.Helper()
	l, err := NewOrderLine(ebookID, title, decimal.RequireFromString(price), qty)
	require.NoError(t, err)
	return l
}

func TestNewOrder_TotalsAreSumOfLines(t *testing.T) {
	now := time.Now()
	lines := []OrderLine{
		mustLine(t, 1, "A", "9900", 2),
		mustLine(t, 2, "B", "12900", 1),
	}

	o, err := NewOrder("o-1", "shopper-1", "ORD-1", OrderSourceCart, lines, now)
	require.NoError(t, err)

	assert.Equal(t, OrderStatusPending, o.Status)
	assert.True(t, o.TotalAmount.Equal(decimal.NewFromInt(32700)))
	assert.True(t, o.FinalAmount.Equal(o.TotalAmount))
	assert.Equal(t, "19800.00", o.Lines[0].LineTotal().StringFixed(2))
}

func TestNewOrder_NoLines(t *testing.T) {
	_, err := NewOrder("o-1", "s", "ORD-1", OrderSourceCart, nil, time.Now())
	assert.ErrorIs(t, err, ErrEmptyOrder)
}

func TestNewOrderLine_RejectsZeroQuantity(t *testing.T) {
	_, err := NewOrderLine(1, "A", decimal.NewFromInt(10), 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestOrderTransitions(t *testing.T) {
	now := time.Now()
	newOrder := func() *Order {
		o, err := NewOrder("o-1", "s", "ORD-1", OrderSourceCart, []OrderLine{mustLine(t, 1, "A", "10", 1)}, now)
		require.NoError(t, err)
		return o
	}

	tests := []struct {
		name    string
		prepare func(o *Order)
		apply   func(o *Order) error
		want    OrderStatus
		wantErr bool
	}{
		{"pending to paid", func(*Order) {}, func(o *Order) error { return o.MarkPaid(now) }, OrderStatusPaid, false},
		{"pending to canceled", func(*Order) {}, func(o *Order) error { return o.Cancel(now) }, OrderStatusCanceled, false},
		{"paid twice", func(o *Order) { _ = o.MarkPaid(now) }, func(o *Order) error { return o.MarkPaid(now) }, OrderStatusPaid, true},
		{"cancel paid", func(o *Order) { _ = o.MarkPaid(now) }, func(o *Order) error { return o.Cancel(now) }, OrderStatusPaid, true},
		{"pay canceled", func(o *Order) { _ = o.Cancel(now) }, func(o *Order) error { return o.MarkPaid(now) }, OrderStatusCanceled, true},
		{"unknown status", func(o *Order) { o.Status = "REFUNDED" }, func(o *Order) error { return o.MarkPaid(now) }, "REFUNDED", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrder()
			tt.prepare(o)
			err := tt.apply(o)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrIllegalTransition))
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, o.Status)
		})
	}
}

func TestOrderPendingKey(t *testing.T) {
	now := time.Now()
	cartOrder, err := NewOrder("o-1", "s", "ORD-1", OrderSourceCart, []OrderLine{mustLine(t, 7, "A", "10", 1)}, now)
	require.NoError(t, err)
	direct, err := NewOrder("o-2", "s", "ORD-2", OrderSourceDirect, []OrderLine{mustLine(t, 7, "A", "10", 1)}, now)
	require.NoError(t, err)

	assert.Equal(t, "cart:s", cartOrder.PendingKey())
	assert.Equal(t, "direct:s:7", direct.PendingKey())

	require.NoError(t, direct.MarkPaid(now))
	assert.Empty(t, direct.PendingKey())
}

func TestOrderContains(t *testing.T) {
	o, err := NewOrder("o-1", "s", "ORD-1", OrderSourceCart, []OrderLine{mustLine(t, 7, "A", "10", 1)}, time.Now())
	require.NoError(t, err)
	assert.True(t, o.Contains(7))
	assert.False(t, o.Contains(8))
}
