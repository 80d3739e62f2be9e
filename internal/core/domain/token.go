package domain

import "time"

// DownloadToken authorizes exactly one download of one ebook from a paid order.
type DownloadToken struct {
	ID        string
	ShopperID string
	OrderID   string
	EbookID   int64
	Value     string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

func (t DownloadToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

// DownloadDescriptor is what a redeemed token resolves to; the content store
// turns ContentKey into bytes.
type DownloadDescriptor struct {
	EbookID    int64
	Filename   string
	ContentKey string
}

type DownloadFile struct {
	Filename string
	Content  []byte
}
