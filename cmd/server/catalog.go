package main

import (
	"github.com/shopspring/decimal"

	"github.com/rl1809/ebook-shop/internal/core/domain"
)

// devCatalog is loaded when SEED_CATALOG is set.
var devCatalog = []domain.Ebook{
	{ID: 1, Title: "The Go Programming Language", Author: "Donovan, Kernighan", Price: decimal.NewFromInt(9900), Status: domain.EbookStatusActive},
	{ID: 2, Title: "Concurrency in Go", Author: "Cox-Buday", Price: decimal.NewFromInt(12900), Status: domain.EbookStatusActive},
	{ID: 3, Title: "Distributed Services with Go", Author: "Jeffery", Price: decimal.NewFromInt(15900), Status: domain.EbookStatusActive},
	{ID: 4, Title: "Network Programming with Go", Author: "Woodbeck", Price: decimal.NewFromInt(11900), Status: domain.EbookStatusInactive},
	{ID: 5, Title: "Untitled Draft", Author: "", Price: decimal.NewFromInt(5000), Status: domain.EbookStatusDraft},
}
