package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be >= 1")
	ErrLineNotFound    = errors.New("cart line not found")
)

type CartLine struct {
	ID       string
	CartID   string
	EbookID  int64
	Quantity int
	AddedAt  time.Time
}

// Cart holds at most one line per ebook.
type Cart struct {
	ID        string
	ShopperID string
	UpdatedAt time.Time
	Lines     []CartLine
}

func NewCart(shopperID string, now time.Time) *Cart {
	return &Cart{
		ID:        uuid.NewString(),
		ShopperID: shopperID,
		UpdatedAt: now,
	}
}

func (c *Cart) indexOf(ebookID int64) int {
	for i := range c.Lines {
		if c.Lines[i].EbookID == ebookID {
			return i
		}
	}
	return -1
}

// Add merges quantity into an existing line or appends a new one.
func (c *Cart) Add(ebookID int64, quantity int, now time.Time) (CartLine, error) {
	if quantity < 1 {
		return CartLine{}, ErrInvalidQuantity
	}
	c.UpdatedAt = now
	if i := c.indexOf(ebookID); i >= 0 {
		c.Lines[i].Quantity += quantity
		return c.Lines[i], nil
	}
	line := CartLine{
		ID:       uuid.NewString(),
		CartID:   c.ID,
		EbookID:  ebookID,
		Quantity: quantity,
		AddedAt:  now,
	}
	c.Lines = append(c.Lines, line)
	return line, nil
}

func (c *Cart) SetQuantity(ebookID int64, quantity int, now time.Time) (CartLine, error) {
	if quantity < 1 {
		return CartLine{}, ErrInvalidQuantity
	}
	i := c.indexOf(ebookID)
	if i < 0 {
		return CartLine{}, ErrLineNotFound
	}
	c.Lines[i].Quantity = quantity
	c.UpdatedAt = now
	return c.Lines[i], nil
}

func (c *Cart) Remove(ebookID int64, now time.Time) error {
	i := c.indexOf(ebookID)
	if i < 0 {
		return ErrLineNotFound
	}
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	c.UpdatedAt = now
	return nil
}

func (c *Cart) Clear(now time.Time) {
	c.Lines = nil
	c.UpdatedAt = now
}

// PricedLine is a cart line valued at the current catalog price.
type PricedLine struct {
	EbookID      int64
	Title        string
	UnitPrice    decimal.Decimal
	Quantity     int
	LineSubtotal decimal.Decimal
	Sellable     bool
}

type CartSummary struct {
	Lines     []PricedLine
	ItemCount int
	Total     decimal.Decimal
}

func Summarize(lines []PricedLine) CartSummary {
	s := CartSummary{Lines: lines, Total: decimal.Zero}
	for _, l := range lines {
		s.ItemCount += l.Quantity
		s.Total = s.Total.Add(l.LineSubtotal)
	}
	s.Total = Money(s.Total)
	return s
}
