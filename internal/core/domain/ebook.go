package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type EbookStatus string

const (
	EbookStatusActive   EbookStatus = "ACTIVE"
	EbookStatusInactive EbookStatus = "INACTIVE"
	EbookStatusDraft    EbookStatus = "DRAFT"
)

// ParseEbookStatus normalizes a stored status. Unknown values are returned
// as-is and are never sellable.
func ParseEbookStatus(s string) EbookStatus {
	return EbookStatus(strings.ToUpper(strings.TrimSpace(s)))
}

func (s EbookStatus) Sellable() bool {
	switch s {
	case EbookStatusActive:
		return true
	case EbookStatusInactive, EbookStatusDraft:
		return false
	}
	return false
}

// Ebook is the catalog view the order engine consumes.
type Ebook struct {
	ID     int64
	Title  string
	Author string
	Price  decimal.Decimal
	Status EbookStatus
}

// ContentFilename is the name under which an ebook's file is stored and served.
func ContentFilename(ebookID int64) string {
	return fmt.Sprintf("ebook-%d.pdf", ebookID)
}

// Money rounds an amount to currency scale.
func Money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
