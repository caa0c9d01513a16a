package store

import (
	"context"
	"sort"
	"sync"
	"time"

	models "online-market/model"

	"github.com/shopspring/decimal"
)

// MemoryStore keeps every record in process memory. Transactions are
// serialized by a single mutex and run against a private copy of the data
// that replaces the live copy only on commit.
type MemoryStore struct {
	mu   sync.RWMutex
	data *memData
}

type memData struct {
	products   map[int64]models.Product
	carts      map[int64]models.Cart
	lines      map[int64]models.CartLine
	orders     map[int64]models.Order
	orderLines map[int64]models.OrderLine
	events     map[int64]models.Event
	lastID     map[string]int64
}

func newMemData() *memData {
	return &memData{
		products:   map[int64]models.Product{},
		carts:      map[int64]models.Cart{},
		lines:      map[int64]models.CartLine{},
		orders:     map[int64]models.Order{},
		orderLines: map[int64]models.OrderLine{},
		events:     map[int64]models.Event{},
		lastID:     map[string]int64{},
	}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemData()}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (d *memData) clone() *memData {
	events := make(map[int64]models.Event, len(d.events))
	for id, ev := range d.events {
		ev.Payload = append([]byte(nil), ev.Payload...)
		events[id] = ev
	}
	return &memData{
		products:   copyMap(d.products),
		carts:      copyMap(d.carts),
		lines:      copyMap(d.lines),
		orders:     copyMap(d.orders),
		orderLines: copyMap(d.orderLines),
		events:     events,
		lastID:     copyMap(d.lastID),
	}
}

func (d *memData) nextID(table string) int64 {
	d.lastID[table]++
	return d.lastID[table]
}

func (s *MemoryStore) Close() error { return nil }

// WithTx holds the write lock for the whole of fn. Store methods must not be
// called from inside fn.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(&memTx{d: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = work
	return nil
}

// ---- Store reads and provisioning ----

func (s *MemoryStore) CreateProduct(_ context.Context, p models.Product) (int64, error) {
	if p.Stock < 0 {
		return 0, models.InvalidArgument("stock cannot be negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.data.nextID("products")
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.data.products[p.ID] = p
	return p.ID, nil
}

func (s *MemoryStore) GetProduct(_ context.Context, id int64) (models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.product(id)
}

func (s *MemoryStore) ListProducts(_ context.Context) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Product, 0, len(s.data.products))
	for _, p := range s.data.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) EnsureCart(_ context.Context, userID int64) (models.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.data.cartByUser(userID); ok {
		return c, nil
	}
	c := models.Cart{ID: s.data.nextID("carts"), UserID: userID, Total: decimal.Zero}
	s.data.carts[c.ID] = c
	return c, nil
}

func (s *MemoryStore) GetCart(_ context.Context, id int64) (models.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.cart(id)
}

func (s *MemoryStore) GetCartByUser(_ context.Context, userID int64) (models.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.data.cartByUser(userID); ok {
		return c, nil
	}
	return models.Cart{}, models.NotFound("cart for user", userID)
}

func (s *MemoryStore) GetCartLine(_ context.Context, id int64) (models.CartLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.cartLine(id)
}

func (s *MemoryStore) GetCartLinesByCart(_ context.Context, cartID int64) ([]models.CartLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.cartLines(cartID), nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id int64) (models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.order(id)
}

func (s *MemoryStore) ListOrders(_ context.Context, userID int64) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Order{}
	for _, o := range s.data.orders {
		if userID <= 0 || o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetOrderLinesByOrder(_ context.Context, orderID int64) ([]models.OrderLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.OrderLine{}
	for _, l := range s.data.orderLines {
		if l.OrderID == orderID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) PendingEvents(_ context.Context, limit int) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Event
	for _, ev := range s.data.events {
		if ev.SentAt == nil {
			ev.Payload = append([]byte(nil), ev.Payload...)
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkEventSent(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.data.events[id]
	if !ok {
		return models.NotFound("event", id)
	}
	now := time.Now().UTC()
	ev.SentAt = &now
	s.data.events[id] = ev
	return nil
}

// ---- lookups shared by Store and Tx ----

func (d *memData) product(id int64) (models.Product, error) {
	p, ok := d.products[id]
	if !ok {
		return models.Product{}, models.NotFound("product", id)
	}
	return p, nil
}

func (d *memData) cart(id int64) (models.Cart, error) {
	c, ok := d.carts[id]
	if !ok {
		return models.Cart{}, models.NotFound("cart", id)
	}
	return c, nil
}

func (d *memData) cartByUser(userID int64) (models.Cart, bool) {
	for _, c := range d.carts {
		if c.UserID == userID {
			return c, true
		}
	}
	return models.Cart{}, false
}

func (d *memData) cartLine(id int64) (models.CartLine, error) {
	l, ok := d.lines[id]
	if !ok {
		return models.CartLine{}, models.NotFound("cart line", id)
	}
	return l, nil
}

func (d *memData) cartLines(cartID int64) []models.CartLine {
	out := []models.CartLine{}
	for _, l := range d.lines {
		if l.CartID == cartID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func (d *memData) order(id int64) (models.Order, error) {
	o, ok := d.orders[id]
	if !ok {
		return models.Order{}, models.NotFound("order", id)
	}
	return o, nil
}

// ---- Tx ----

type memTx struct {
	d *memData
}

func (t *memTx) GetProduct(_ context.Context, id int64) (models.Product, error) {
	return t.d.product(id)
}

func (t *memTx) UpdateProductStock(_ context.Context, id int64, stock int) error {
	p, err := t.d.product(id)
	if err != nil {
		return err
	}
	if stock < 0 {
		return models.InvalidArgument("stock of product %d cannot be negative", id)
	}
	p.Stock = stock
	t.d.products[id] = p
	return nil
}

func (t *memTx) GetCart(_ context.Context, id int64) (models.Cart, error) {
	return t.d.cart(id)
}

func (t *memTx) UpdateCartTotal(_ context.Context, id int64, total decimal.Decimal) error {
	c, err := t.d.cart(id)
	if err != nil {
		return err
	}
	c.Total = total
	t.d.carts[id] = c
	return nil
}

func (t *memTx) GetCartLine(_ context.Context, id int64) (models.CartLine, error) {
	return t.d.cartLine(id)
}

func (t *memTx) FindCartLine(_ context.Context, cartID, productID int64) (models.CartLine, error) {
	for _, l := range t.d.lines {
		if l.CartID == cartID && l.ProductID == productID {
			return l, nil
		}
	}
	return models.CartLine{}, models.NotFound("cart line for product", productID)
}

func (t *memTx) GetCartLinesByCart(_ context.Context, cartID int64) ([]models.CartLine, error) {
	return t.d.cartLines(cartID), nil
}

// duplicateLine mirrors the (cart_id, product_id) unique constraint.
func (t *memTx) duplicateLine(line models.CartLine) bool {
	for _, l := range t.d.lines {
		if l.ID != line.ID && l.CartID == line.CartID && l.ProductID == line.ProductID {
			return true
		}
	}
	return false
}

func (t *memTx) InsertCartLine(_ context.Context, line *models.CartLine) error {
	if t.duplicateLine(*line) {
		return models.InvalidArgument("cart %d already has a line for product %d", line.CartID, line.ProductID)
	}
	line.ID = t.d.nextID("cart_lines")
	t.d.lines[line.ID] = *line
	return nil
}

func (t *memTx) UpdateCartLine(_ context.Context, line models.CartLine) error {
	if _, err := t.d.cartLine(line.ID); err != nil {
		return err
	}
	if t.duplicateLine(line) {
		return models.InvalidArgument("cart %d already has a line for product %d", line.CartID, line.ProductID)
	}
	t.d.lines[line.ID] = line
	return nil
}

func (t *memTx) DeleteCartLine(_ context.Context, id int64) error {
	if _, err := t.d.cartLine(id); err != nil {
		return err
	}
	delete(t.d.lines, id)
	return nil
}

func (t *memTx) DeleteCartLinesByCart(_ context.Context, cartID int64) (int64, error) {
	var n int64
	for id, l := range t.d.lines {
		if l.CartID == cartID {
			delete(t.d.lines, id)
			n++
		}
	}
	return n, nil
}

func (t *memTx) GetOrder(_ context.Context, id int64) (models.Order, error) {
	return t.d.order(id)
}

func (t *memTx) InsertOrder(_ context.Context, o *models.Order) error {
	o.ID = t.d.nextID("orders")
	t.d.orders[o.ID] = *o
	return nil
}

func (t *memTx) UpdateOrder(_ context.Context, o models.Order) error {
	if _, err := t.d.order(o.ID); err != nil {
		return err
	}
	t.d.orders[o.ID] = o
	return nil
}

func (t *memTx) DeleteOrder(_ context.Context, id int64) error {
	if _, err := t.d.order(id); err != nil {
		return err
	}
	delete(t.d.orders, id)
	for lid, l := range t.d.orderLines {
		if l.OrderID == id {
			delete(t.d.orderLines, lid)
		}
	}
	return nil
}

func (t *memTx) InsertOrderLine(_ context.Context, line *models.OrderLine) error {
	line.ID = t.d.nextID("order_lines")
	t.d.orderLines[line.ID] = *line
	return nil
}

func (t *memTx) InsertEvent(_ context.Context, ev *models.Event) error {
	ev.ID = t.d.nextID("outbox_events")
	stored := *ev
	stored.Payload = append([]byte(nil), ev.Payload...)
	t.d.events[ev.ID] = stored
	return nil
}
