package ordering

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bookstore/internal/eventstore"
	"bookstore/internal/pricing"
)

type memBook struct {
	title string
	offer pricing.Offer
	stock int
	sold  int
}

type memCartItem struct {
	userID   uuid.UUID
	bookID   uuid.UUID
	quantity int
}

type memState struct {
	books  map[uuid.UUID]memBook
	cart   map[uuid.UUID]memCartItem
	orders map[uuid.UUID]*Order
	events map[uuid.UUID][]eventstore.Event
}

func (s *memState) clone() *memState {
	c := &memState{
		books:  maps.Clone(s.books),
		cart:   maps.Clone(s.cart),
		orders: make(map[uuid.UUID]*Order, len(s.orders)),
		events: make(map[uuid.UUID][]eventstore.Event, len(s.events)),
	}
	for id, o := range s.orders {
		c.orders[id] = copyOrder(o)
	}
	for id, evs := range s.events {
		c.events[id] = slices.Clone(evs)
	}
	return c
}

func copyOrder(o *Order) *Order {
	cp := *o
	cp.Items = slices.Clone(o.Items)
	return &cp
}

// memStore is an in-memory Store. Units of work are serialized and roll back by discarding a copy.
type memStore struct {
	mu    sync.Mutex
	state *memState
}

func newMemStore() *memStore {
	return &memStore{state: &memState{
		books:  make(map[uuid.UUID]memBook),
		cart:   make(map[uuid.UUID]memCartItem),
		orders: make(map[uuid.UUID]*Order),
		events: make(map[uuid.UUID][]eventstore.Event),
	}}
}

func (m *memStore) addBook(title, price string, stock int) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.state.books[id] = memBook{
		title: title,
		offer: pricing.Offer{ListPrice: decimal.RequireFromString(price)},
		stock: stock,
	}
	return id
}

func (m *memStore) setPrice(bookID uuid.UUID, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.state.books[bookID]
	b.offer.ListPrice = decimal.RequireFromString(price)
	m.state.books[bookID] = b
}

func (m *memStore) startSale(bookID uuid.UUID, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.state.books[bookID]
	b.offer.OnSale = true
	b.offer.SalePrice = decimal.NewNullDecimal(decimal.RequireFromString(price))
	m.state.books[bookID] = b
}

func (m *memStore) addToCart(userID, bookID uuid.UUID, quantity int) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.state.cart[id] = memCartItem{userID: userID, bookID: bookID, quantity: quantity}
	return id
}

func (m *memStore) book(id uuid.UUID) memBook {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.books[id]
}

func (m *memStore) inCart(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.state.cart[id]
	return ok
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.orders)
}

func (m *memStore) seedCompleted(userID uuid.UUID, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		id := uuid.New()
		m.state.orders[id] = &Order{ID: id, UserID: userID, ClaimCode: NewClaimCode(), Status: StatusCompleted, Version: 2}
	}
}

func (m *memStore) WithinTx(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{state: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *memStore) FindOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.state.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (m *memStore) FindOrderByClaimCode(ctx context.Context, code string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.state.orders {
		if o.ClaimCode == code {
			return copyOrder(o), nil
		}
	}
	return nil, ErrOrderNotFound
}

func (m *memStore) ListUserOrders(ctx context.Context, userID uuid.UUID) ([]*Order, error) {
	return m.list(func(o *Order) bool { return o.UserID == userID }), nil
}

func (m *memStore) ListOrders(ctx context.Context, filter ListFilter) ([]*Order, error) {
	return m.list(func(o *Order) bool { return filter.Status == "" || o.Status == filter.Status }), nil
}

func (m *memStore) list(keep func(*Order) bool) []*Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Order
	for _, o := range m.state.orders {
		if keep(o) {
			out = append(out, copyOrder(o))
		}
	}
	slices.SortFunc(out, func(a, b *Order) int { return b.OrderedAt.Compare(a.OrderedAt) })
	return out
}

func (m *memStore) LoadEvents(ctx context.Context, aggregateID uuid.UUID) ([]eventstore.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.state.events[aggregateID]), nil
}

type memTx struct {
	state *memState
}

func (t *memTx) CartLines(ctx context.Context, userID uuid.UUID, cartItemIDs []uuid.UUID) ([]CartLine, error) {
	var lines []CartLine
	for _, id := range cartItemIDs {
		item, ok := t.state.cart[id]
		if !ok || item.userID != userID {
			continue
		}
		book := t.state.books[item.bookID]
		lines = append(lines, CartLine{
			CartItemID: id,
			BookID:     item.bookID,
			Title:      book.title,
			Quantity:   item.quantity,
			Offer:      book.offer,
		})
	}
	return lines, nil
}

func (t *memTx) CompletedOrderCount(ctx context.Context, userID uuid.UUID) (int, error) {
	n := 0
	for _, o := range t.state.orders {
		if o.UserID == userID && o.Status == StatusCompleted {
			n++
		}
	}
	return n, nil
}

func (t *memTx) LockBooks(ctx context.Context, bookIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	stock := make(map[uuid.UUID]int, len(bookIDs))
	for _, id := range bookIDs {
		stock[id] = t.state.books[id].stock
	}
	return stock, nil
}

func (t *memTx) DecrementStock(ctx context.Context, bookID uuid.UUID, quantity int) (bool, error) {
	b := t.state.books[bookID]
	if b.stock < quantity {
		return false, nil
	}
	b.stock -= quantity
	t.state.books[bookID] = b
	return true, nil
}

func (t *memTx) RestoreStock(ctx context.Context, bookID uuid.UUID, quantity int) error {
	b := t.state.books[bookID]
	b.stock += quantity
	t.state.books[bookID] = b
	return nil
}

func (t *memTx) IncrementSoldCount(ctx context.Context, bookID uuid.UUID, quantity int) error {
	b := t.state.books[bookID]
	b.sold += quantity
	t.state.books[bookID] = b
	return nil
}

func (t *memTx) InsertOrder(ctx context.Context, order *Order) error {
	for _, o := range t.state.orders {
		if o.ClaimCode == order.ClaimCode {
			return ErrDuplicateClaimCode
		}
	}
	t.state.orders[order.ID] = copyOrder(order)
	return nil
}

func (t *memTx) DeleteCartItems(ctx context.Context, userID uuid.UUID, cartItemIDs []uuid.UUID) error {
	for _, id := range cartItemIDs {
		if item, ok := t.state.cart[id]; ok && item.userID == userID {
			delete(t.state.cart, id)
		}
	}
	return nil
}

func (t *memTx) LockOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, ok := t.state.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (t *memTx) LockOrderByClaimCode(ctx context.Context, code string) (*Order, error) {
	for _, o := range t.state.orders {
		if o.ClaimCode == code {
			return copyOrder(o), nil
		}
	}
	return nil, ErrOrderNotFound
}

func (t *memTx) SetStatus(ctx context.Context, id uuid.UUID, status Status, version int, updatedAt time.Time) error {
	o, ok := t.state.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = status
	o.Version = version
	o.UpdatedAt = updatedAt
	return nil
}

func (t *memTx) Record(ctx context.Context, orderID uuid.UUID, expectedVersion int, event eventstore.Event) error {
	stream := t.state.events[orderID]
	if len(stream) != expectedVersion {
		return eventstore.ErrConcurrencyConflict
	}
	event.ID = int64(len(stream) + 1)
	event.AggregateID = orderID
	event.AggregateType = "order"
	event.Version = expectedVersion + 1
	event.CreatedAt = time.Now().UTC()
	md := eventstore.RequestMetadata(ctx)
	maps.Copy(md, event.Metadata)
	if len(md) > 0 {
		event.Metadata = md
	}
	t.state.events[orderID] = append(stream, event)
	return nil
}
