package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrIllegalTransition = errors.New("illegal order status transition")
	ErrEmptyOrder        = errors.New("order has no lines")
)

type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "PENDING"
	OrderStatusPaid     OrderStatus = "PAID"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusCanceled:
		return true
	}
	return false
}

// OrderSource records how an order was created. It determines which
// pending-order slot the order occupies.
type OrderSource string

const (
	OrderSourceCart   OrderSource = "CART"
	OrderSourceDirect OrderSource = "DIRECT"
)

// OrderLine is a price and title snapshot taken at conversion time. It has no
// mutators; the line total is fixed by the constructor.
type OrderLine struct {
	ebookID   int64
	title     string
	price     decimal.Decimal
	quantity  int
	lineTotal decimal.Decimal
}

func NewOrderLine(ebookID int64, title string, price decimal.Decimal, quantity int) (OrderLine, error) {
	if quantity < 1 {
		return OrderLine{}, ErrInvalidQuantity
	}
	price = Money(price)
	return OrderLine{
		ebookID:   ebookID,
		title:     title,
		price:     price,
		quantity:  quantity,
		lineTotal: Money(price.Mul(decimal.NewFromInt(int64(quantity)))),
	}, nil
}

// RestoreOrderLine rebuilds a persisted line without recomputing its total.
func RestoreOrderLine(ebookID int64, title string, price decimal.Decimal, quantity int, lineTotal decimal.Decimal) OrderLine {
	return OrderLine{ebookID: ebookID, title: title, price: price, quantity: quantity, lineTotal: lineTotal}
}

func (l OrderLine) EbookID() int64             { return l.ebookID }
func (l OrderLine) Title() string              { return l.title }
func (l OrderLine) Price() decimal.Decimal     { return l.price }
func (l OrderLine) Quantity() int              { return l.quantity }
func (l OrderLine) LineTotal() decimal.Decimal { return l.lineTotal }

type Order struct {
	ID          string
	ShopperID   string
	OrderNumber string
	Source      OrderSource
	Status      OrderStatus
	TotalAmount decimal.Decimal
	FinalAmount decimal.Decimal
	CreatedAt   time.Time
	PaidAt      *time.Time
	CanceledAt  *time.Time
	Lines       []OrderLine
}

// NewOrder builds a PENDING order whose totals are the sum of its lines.
func NewOrder(id, shopperID, orderNumber string, source OrderSource, lines []OrderLine, now time.Time) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineTotal())
	}
	total = Money(total)
	return &Order{
		ID:          id,
		ShopperID:   shopperID,
		OrderNumber: orderNumber,
		Source:      source,
		Status:      OrderStatusPending,
		TotalAmount: total,
		FinalAmount: total,
		CreatedAt:   now,
		Lines:       lines,
	}, nil
}

func (o *Order) MarkPaid(now time.Time) error {
	switch o.Status {
	case OrderStatusPending:
		o.Status = OrderStatusPaid
		o.PaidAt = &now
		return nil
	case OrderStatusPaid, OrderStatusCanceled:
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, o.Status, OrderStatusPaid)
	}
	return fmt.Errorf("%w: unknown status %q", ErrIllegalTransition, o.Status)
}

func (o *Order) Cancel(now time.Time) error {
	switch o.Status {
	case OrderStatusPending:
		o.Status = OrderStatusCanceled
		o.CanceledAt = &now
		return nil
	case OrderStatusPaid, OrderStatusCanceled:
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, o.Status, OrderStatusCanceled)
	}
	return fmt.Errorf("%w: unknown status %q", ErrIllegalTransition, o.Status)
}

func (o *Order) OwnedBy(shopperID string) bool {
	return o.ShopperID == shopperID
}

func (o *Order) Contains(ebookID int64) bool {
	for _, l := range o.Lines {
		if l.EbookID() == ebookID {
			return true
		}
	}
	return false
}

// PendingKey identifies the single PENDING slot an order occupies: one per
// shopper for cart orders, one per shopper and ebook for direct orders. It is
// empty once the order has left PENDING.
func (o *Order) PendingKey() string {
	if o.Status != OrderStatusPending {
		return ""
	}
	switch o.Source {
	case OrderSourceDirect:
		if len(o.Lines) == 0 {
			return ""
		}
		return DirectPendingKey(o.ShopperID, o.Lines[0].EbookID())
	case OrderSourceCart:
		return CartPendingKey(o.ShopperID)
	}
	return ""
}

func CartPendingKey(shopperID string) string {
	return "cart:" + shopperID
}

func DirectPendingKey(shopperID string, ebookID int64) string {
	return fmt.Sprintf("direct:%s:%d", shopperID, ebookID)
}

type OrderSummary struct {
	ID          string
	OrderNumber string
	Status      OrderStatus
	TotalAmount decimal.Decimal
	FinalAmount decimal.Decimal
	CreatedAt   time.Time
}

func (o *Order) Summary() OrderSummary {
	return OrderSummary{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		Status:      o.Status,
		TotalAmount: o.TotalAmount,
		FinalAmount: o.FinalAmount,
		CreatedAt:   o.CreatedAt,
	}
}
