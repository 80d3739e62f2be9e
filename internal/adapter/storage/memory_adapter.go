package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rl1809/ebook-shop/internal/core/domain"
	"github.com/rl1809/ebook-shop/internal/port"
)

// MemoryStore is a process-local store for development and tests. Units of
// work are serialized and applied to a copy that replaces the committed state
// only when fn succeeds.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState

	catalogMu sync.RWMutex
	ebooks    map[int64]domain.Ebook

	tokensMu sync.Mutex
	tokens   map[string]domain.DownloadToken
}

type memoryState struct {
	carts  map[string]*domain.Cart // by shopper
	orders map[string]*domain.Order
	seq    []string // order ids in creation order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memoryState{
			carts:  make(map[string]*domain.Cart),
			orders: make(map[string]*domain.Order),
		},
		ebooks: make(map[int64]domain.Ebook),
		tokens: make(map[string]domain.DownloadToken),
	}
}

func (m *MemoryStore) Do(ctx context.Context, fn func(ctx context.Context, repos port.Repositories) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	working := m.state.clone()
	if err := fn(ctx, memoryRepos{state: working}); err != nil {
		return err
	}
	m.state = working
	return nil
}

// PutEbook inserts or replaces a catalog entry.
func (m *MemoryStore) PutEbook(e domain.Ebook) {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()
	m.ebooks[e.ID] = e
}

func (m *MemoryStore) Lookup(ctx context.Context, ebookID int64) (domain.Ebook, error) {
	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()
	e, ok := m.ebooks[ebookID]
	if !ok {
		return domain.Ebook{}, port.ErrEbookNotFound
	}
	return e, nil
}

func (m *MemoryStore) Save(ctx context.Context, token domain.DownloadToken) error {
	m.tokensMu.Lock()
	defer m.tokensMu.Unlock()
	if _, ok := m.tokens[token.Value]; ok {
		return fmt.Errorf("token %s: %w", token.Value, port.ErrDuplicateKey)
	}
	m.tokens[token.Value] = token
	return nil
}

func (m *MemoryStore) Find(ctx context.Context, value string) (*domain.DownloadToken, error) {
	m.tokensMu.Lock()
	defer m.tokensMu.Unlock()
	t, ok := m.tokens[value]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *MemoryStore) Consume(ctx context.Context, value string) (bool, error) {
	m.tokensMu.Lock()
	defer m.tokensMu.Unlock()
	if _, ok := m.tokens[value]; !ok {
		return false, nil
	}
	delete(m.tokens, value)
	return true, nil
}

func (m *MemoryStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	m.tokensMu.Lock()
	defer m.tokensMu.Unlock()
	var n int64
	for v, t := range m.tokens {
		if t.ExpiresAt.Before(before) {
			delete(m.tokens, v)
			n++
		}
	}
	return n, nil
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		carts:  make(map[string]*domain.Cart, len(s.carts)),
		orders: make(map[string]*domain.Order, len(s.orders)),
		seq:    append([]string(nil), s.seq...),
	}
	for k, v := range s.carts {
		c.carts[k] = cloneCart(v)
	}
	for k, v := range s.orders {
		c.orders[k] = cloneOrder(v)
	}
	return c
}

func cloneCart(c *domain.Cart) *domain.Cart {
	cp := *c
	cp.Lines = append([]domain.CartLine(nil), c.Lines...)
	return &cp
}

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Lines = append([]domain.OrderLine(nil), o.Lines...)
	if o.PaidAt != nil {
		t := *o.PaidAt
		cp.PaidAt = &t
	}
	if o.CanceledAt != nil {
		t := *o.CanceledAt
		cp.CanceledAt = &t
	}
	return &cp
}

type memoryRepos struct {
	state *memoryState
}

func (r memoryRepos) Carts() port.CartRepository   { return memoryCarts(r) }
func (r memoryRepos) Orders() port.OrderRepository { return memoryOrders(r) }

type memoryCarts struct {
	state *memoryState
}

func (r memoryCarts) FindByShopper(ctx context.Context, shopperID string) (*domain.Cart, error) {
	c, ok := r.state.carts[shopperID]
	if !ok {
		return nil, nil
	}
	return cloneCart(c), nil
}

func (r memoryCarts) Create(ctx context.Context, cart *domain.Cart) error {
	if _, ok := r.state.carts[cart.ShopperID]; ok {
		return fmt.Errorf("cart for %s: %w", cart.ShopperID, port.ErrDuplicateKey)
	}
	r.state.carts[cart.ShopperID] = cloneCart(cart)
	return nil
}

func (r memoryCarts) byID(cartID string) (*domain.Cart, error) {
	for _, c := range r.state.carts {
		if c.ID == cartID {
			return c, nil
		}
	}
	return nil, fmt.Errorf("cart %s: %w", cartID, port.ErrOptimisticLock)
}

func (r memoryCarts) SaveLine(ctx context.Context, line domain.CartLine) error {
	c, err := r.byID(line.CartID)
	if err != nil {
		return err
	}
	for i := range c.Lines {
		if c.Lines[i].EbookID == line.EbookID {
			c.Lines[i].Quantity = line.Quantity
			return nil
		}
	}
	c.Lines = append(c.Lines, line)
	return nil
}

func (r memoryCarts) DeleteLine(ctx context.Context, cartID string, ebookID int64) error {
	c, err := r.byID(cartID)
	if err != nil {
		return err
	}
	for i := range c.Lines {
		if c.Lines[i].EbookID == ebookID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r memoryCarts) DeleteLines(ctx context.Context, cartID string) error {
	c, err := r.byID(cartID)
	if err != nil {
		return err
	}
	c.Lines = nil
	return nil
}

func (r memoryCarts) Touch(ctx context.Context, cartID string, at time.Time) error {
	c, err := r.byID(cartID)
	if err != nil {
		return err
	}
	c.UpdatedAt = at
	return nil
}

type memoryOrders struct {
	state *memoryState
}

func (r memoryOrders) Create(ctx context.Context, order *domain.Order) error {
	key := order.PendingKey()
	for _, o := range r.state.orders {
		if o.OrderNumber == order.OrderNumber {
			return fmt.Errorf("order number %s: %w", order.OrderNumber, port.ErrDuplicateKey)
		}
		if key != "" && o.PendingKey() == key {
			return fmt.Errorf("pending order %s: %w", key, port.ErrDuplicateKey)
		}
	}
	r.state.orders[order.ID] = cloneOrder(order)
	r.state.seq = append(r.state.seq, order.ID)
	return nil
}

func (r memoryOrders) FindByID(ctx context.Context, orderID string) (*domain.Order, error) {
	o, ok := r.state.orders[orderID]
	if !ok {
		return nil, nil
	}
	return cloneOrder(o), nil
}

// newestFirst walks orders from the most recently created.
func (r memoryOrders) newestFirst(match func(o *domain.Order) bool) []*domain.Order {
	var out []*domain.Order
	for i := len(r.state.seq) - 1; i >= 0; i-- {
		o := r.state.orders[r.state.seq[i]]
		if match(o) {
			out = append(out, o)
		}
	}
	return out
}

func (r memoryOrders) FindLatestPending(ctx context.Context, shopperID string) (*domain.Order, error) {
	found := r.newestFirst(func(o *domain.Order) bool {
		return o.ShopperID == shopperID && o.Status == domain.OrderStatusPending
	})
	if len(found) == 0 {
		return nil, nil
	}
	return cloneOrder(found[0]), nil
}

func (r memoryOrders) FindPendingByKey(ctx context.Context, key string) (*domain.Order, error) {
	found := r.newestFirst(func(o *domain.Order) bool { return o.PendingKey() == key })
	if len(found) == 0 {
		return nil, nil
	}
	return cloneOrder(found[0]), nil
}

func (r memoryOrders) FindPendingContaining(ctx context.Context, shopperID string, ebookID int64) (*domain.Order, error) {
	found := r.newestFirst(func(o *domain.Order) bool {
		return o.ShopperID == shopperID && o.Status == domain.OrderStatusPending && o.Contains(ebookID)
	})
	if len(found) == 0 {
		return nil, nil
	}
	return cloneOrder(found[0]), nil
}

func (r memoryOrders) HasPaid(ctx context.Context, shopperID string, ebookID int64) (bool, error) {
	found := r.newestFirst(func(o *domain.Order) bool {
		return o.ShopperID == shopperID && o.Status == domain.OrderStatusPaid && o.Contains(ebookID)
	})
	return len(found) > 0, nil
}

func (r memoryOrders) ListByShopper(ctx context.Context, shopperID string) ([]domain.OrderSummary, error) {
	found := r.newestFirst(func(o *domain.Order) bool { return o.ShopperID == shopperID })
	out := make([]domain.OrderSummary, 0, len(found))
	for _, o := range found {
		out = append(out, o.Summary())
	}
	return out, nil
}

func (r memoryOrders) UpdateStatus(ctx context.Context, order *domain.Order, from domain.OrderStatus) error {
	stored, ok := r.state.orders[order.ID]
	if !ok || stored.Status != from {
		return port.ErrOptimisticLock
	}
	stored.Status = order.Status
	stored.PaidAt = order.PaidAt
	stored.CanceledAt = order.CanceledAt
	return nil
}
