package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderEventType string

const (
	OrderEventCreated  OrderEventType = "order.created"
	OrderEventPaid     OrderEventType = "order.paid"
	OrderEventCanceled OrderEventType = "order.canceled"
)

type OrderEvent struct {
	Type        OrderEventType  `json:"type"`
	OrderID     string          `json:"orderId"`
	OrderNumber string          `json:"orderNumber"`
	ShopperID   string          `json:"shopperId"`
	Status      OrderStatus     `json:"status"`
	FinalAmount decimal.Decimal `json:"finalAmount"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

func NewOrderEvent(t OrderEventType, o *Order, at time.Time) OrderEvent {
	return OrderEvent{
		Type:        t,
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		ShopperID:   o.ShopperID,
		Status:      o.Status,
		FinalAmount: o.FinalAmount,
		OccurredAt:  at,
	}
}
