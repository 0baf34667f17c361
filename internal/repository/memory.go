package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"flowershop/internal/domain"
)

// MemoryStore объединённое in-memory хранилище и простой генератор ID
type MemoryStore struct {
	mu    sync.RWMutex
	state memoryState
}

type memoryState struct {
	nextProdID     int64
	nextCatID      int64
	nextOrderID    int64
	nextItemID     int64
	nextUserID     int64
	productsByID   map[int64]domain.Product
	categoriesByID map[int64]domain.Category
	ordersByID     map[int64]domain.Order
	usersByID      map[int64]domain.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memoryState{
		nextProdID:     1,
		nextCatID:      1,
		nextOrderID:    1,
		nextItemID:     1,
		nextUserID:     1,
		productsByID:   make(map[int64]domain.Product),
		categoriesByID: make(map[int64]domain.Category),
		ordersByID:     make(map[int64]domain.Order),
		usersByID:      make(map[int64]domain.User),
	}}
}

// NewMemory собирает Store поверх одного MemoryStore
func NewMemory() *Store {
	m := NewMemoryStore()
	return &Store{
		Products:   m,
		Categories: NewMemoryCategories(m),
		Orders:     NewMemoryOrders(m),
		Users:      NewMemoryUsers(m),
		Tx:         NewMemoryTx(m),
		Close:      func() error { return nil },
	}
}

func (s memoryState) clone() memoryState {
	cp := s
	cp.productsByID = make(map[int64]domain.Product, len(s.productsByID))
	for k, v := range s.productsByID {
		cp.productsByID[k] = v
	}
	cp.categoriesByID = make(map[int64]domain.Category, len(s.categoriesByID))
	for k, v := range s.categoriesByID {
		cp.categoriesByID[k] = v
	}
	cp.ordersByID = make(map[int64]domain.Order, len(s.ordersByID))
	for k, v := range s.ordersByID {
		v.Items = append([]domain.OrderItem(nil), v.Items...)
		cp.ordersByID[k] = v
	}
	cp.usersByID = make(map[int64]domain.User, len(s.usersByID))
	for k, v := range s.usersByID {
		cp.usersByID[k] = v
	}
	return cp
}

// transaction-aware locking helpers
type txKey struct{}

func isTx(ctx context.Context) bool {
	v := ctx.Value(txKey{})
	if v == nil {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func (m *MemoryStore) rlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.RLock()
	}
}
func (m *MemoryStore) runlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.RUnlock()
	}
}
func (m *MemoryStore) wlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.Lock()
	}
}
func (m *MemoryStore) wunlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.Unlock()
	}
}

// withCategory attaches the category the way a preload would. Caller holds the lock.
func (m *MemoryStore) withCategory(p domain.Product) domain.Product {
	if c, ok := m.state.categoriesByID[p.CategoryID]; ok {
		cp := c
		p.Category = &cp
	} else {
		p.Category = nil
	}
	return p
}

// Ensure interfaces
var _ ProductRepository = (*MemoryStore)(nil)

// ProductRepository implementation
func (m *MemoryStore) Create(ctx context.Context, p *domain.Product) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	if _, ok := m.state.categoriesByID[p.CategoryID]; !ok {
		return ErrForeignKey
	}
	now := time.Now().UTC()
	p.ID = m.state.nextProdID
	m.state.nextProdID++
	p.CreatedAt = now
	p.UpdatedAt = now
	stored := *p
	stored.Category = nil
	m.state.productsByID[p.ID] = stored
	*p = m.withCategory(stored)
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	p, ok := m.state.productsByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	// return copy
	cp := m.withCategory(p)
	return &cp, nil
}

// GetForUpdate: the transaction already holds the store-wide write lock.
func (m *MemoryStore) GetForUpdate(ctx context.Context, id int64) (*domain.Product, error) {
	return m.GetByID(ctx, id)
}

func (m *MemoryStore) Update(ctx context.Context, p *domain.Product) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	old, ok := m.state.productsByID[p.ID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := m.state.categoriesByID[p.CategoryID]; !ok {
		return ErrForeignKey
	}
	p.CreatedAt = old.CreatedAt
	p.Stock = old.Stock
	p.UpdatedAt = time.Now().UTC()
	stored := *p
	stored.Category = nil
	m.state.productsByID[p.ID] = stored
	*p = m.withCategory(stored)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id int64) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	if _, ok := m.state.productsByID[id]; !ok {
		return ErrNotFound
	}
	delete(m.state.productsByID, id)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, f ProductFilter) ([]domain.Product, int64, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	out := make([]domain.Product, 0)
	for _, p := range m.state.productsByID {
		if f.CategoryID != 0 && p.CategoryID != f.CategoryID {
			continue
		}
		if !containsIgnoreCase(p.Name, f.NameSubstring) && !containsIgnoreCase(p.Description, f.NameSubstring) {
			continue
		}
		out = append(out, m.withCategory(p))
	}
	// newest first
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := int64(len(out))
	return paginate(out, f.Offset, f.Limit), total, nil
}

func (m *MemoryStore) CountByCategory(ctx context.Context, categoryID int64) (int64, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	var n int64
	for _, p := range m.state.productsByID {
		if p.CategoryID == categoryID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DecrementStock(ctx context.Context, id, qty int64) (*domain.Product, error) {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	p, ok := m.state.productsByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Stock < qty {
		cp := m.withCategory(p)
		return &cp, ErrInsufficientStock
	}
	p.Stock -= qty
	p.UpdatedAt = time.Now().UTC()
	m.state.productsByID[id] = p
	cp := m.withCategory(p)
	return &cp, nil
}

func (m *MemoryStore) SetStock(ctx context.Context, id, stock int64) (*domain.Product, error) {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	p, ok := m.state.productsByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.Stock = stock
	p.UpdatedAt = time.Now().UTC()
	m.state.productsByID[id] = p
	cp := m.withCategory(p)
	return &cp, nil
}

// CategoryRepository implementation on wrapper type
type MemoryCategories struct{ store *MemoryStore }

func NewMemoryCategories(store *MemoryStore) *MemoryCategories {
	return &MemoryCategories{store: store}
}

var _ CategoryRepository = (*MemoryCategories)(nil)

func (mc *MemoryCategories) Create(ctx context.Context, c *domain.Category) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	now := time.Now().UTC()
	c.ID = mc.store.state.nextCatID
	mc.store.state.nextCatID++
	c.CreatedAt = now
	c.UpdatedAt = now
	mc.store.state.categoriesByID[c.ID] = *c
	return nil
}

func (mc *MemoryCategories) GetByID(ctx context.Context, id int64) (*domain.Category, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	c, ok := mc.store.state.categoriesByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := c
	return &cp, nil
}

func (mc *MemoryCategories) GetForUpdate(ctx context.Context, id int64) (*domain.Category, error) {
	return mc.GetByID(ctx, id)
}

func (mc *MemoryCategories) GetForShare(ctx context.Context, id int64) (*domain.Category, error) {
	return mc.GetByID(ctx, id)
}

// FindByName returns the oldest category with exactly this name.
func (mc *MemoryCategories) FindByName(ctx context.Context, name string) (*domain.Category, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	var found *domain.Category
	for _, c := range mc.store.state.categoriesByID {
		if c.Name != name {
			continue
		}
		if found == nil || c.ID < found.ID {
			cp := c
			found = &cp
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (mc *MemoryCategories) Update(ctx context.Context, c *domain.Category) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	old, ok := mc.store.state.categoriesByID[c.ID]
	if !ok {
		return ErrNotFound
	}
	c.CreatedAt = old.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	mc.store.state.categoriesByID[c.ID] = *c
	return nil
}

// Delete refuses to orphan products, like a RESTRICT foreign key would.
func (mc *MemoryCategories) Delete(ctx context.Context, id int64) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	if _, ok := mc.store.state.categoriesByID[id]; !ok {
		return ErrNotFound
	}
	for _, p := range mc.store.state.productsByID {
		if p.CategoryID == id {
			return ErrForeignKey
		}
	}
	delete(mc.store.state.categoriesByID, id)
	return nil
}

func (mc *MemoryCategories) List(ctx context.Context) ([]domain.Category, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	out := make([]domain.Category, 0, len(mc.store.state.categoriesByID))
	for _, c := range mc.store.state.categoriesByID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// OrderRepository implementation on wrapper type
type MemoryOrders struct{ store *MemoryStore }

func NewMemoryOrders(store *MemoryStore) *MemoryOrders { return &MemoryOrders{store: store} }

var _ OrderRepository = (*MemoryOrders)(nil)

func (mo *MemoryOrders) Create(ctx context.Context, o *domain.Order) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	for _, existing := range mo.store.state.ordersByID {
		if existing.OrderNo == o.OrderNo {
			return ErrDuplicateKey
		}
	}
	o.ID = mo.store.state.nextOrderID
	mo.store.state.nextOrderID++
	o.CreatedAt = time.Now().UTC()
	o.UpdatedAt = o.CreatedAt
	items := make([]domain.OrderItem, len(o.Items))
	for i, it := range o.Items {
		it.ID = mo.store.state.nextItemID
		mo.store.state.nextItemID++
		it.OrderID = o.ID
		items[i] = it
	}
	o.Items = items
	stored := *o
	stored.Items = append([]domain.OrderItem(nil), items...)
	mo.store.state.ordersByID[o.ID] = stored
	return nil
}

func (mo *MemoryOrders) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	o, ok := mo.store.state.ordersByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := copyOrder(o)
	return &cp, nil
}

func (mo *MemoryOrders) GetByOrderNo(ctx context.Context, orderNo string) (*domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	for _, o := range mo.store.state.ordersByID {
		if o.OrderNo == orderNo {
			cp := copyOrder(o)
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (mo *MemoryOrders) List(ctx context.Context, offset, limit int) ([]domain.Order, int64, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	out := make([]domain.Order, 0, len(mo.store.state.ordersByID))
	for _, o := range mo.store.state.ordersByID {
		out = append(out, copyOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, offset, limit), int64(len(out)), nil
}

func (mo *MemoryOrders) UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	o, ok := mo.store.state.ordersByID[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	mo.store.state.ordersByID[id] = o
	return nil
}

func (mo *MemoryOrders) DeleteItems(ctx context.Context, orderID int64) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	o, ok := mo.store.state.ordersByID[orderID]
	if !ok {
		return nil
	}
	o.Items = nil
	mo.store.state.ordersByID[orderID] = o
	return nil
}

func (mo *MemoryOrders) Delete(ctx context.Context, id int64) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	if _, ok := mo.store.state.ordersByID[id]; !ok {
		return ErrNotFound
	}
	delete(mo.store.state.ordersByID, id)
	return nil
}

// UserRepository implementation on wrapper type
type MemoryUsers struct{ store *MemoryStore }

func NewMemoryUsers(store *MemoryStore) *MemoryUsers { return &MemoryUsers{store: store} }

var _ UserRepository = (*MemoryUsers)(nil)

// usernameTaken reports whether another user already has this name. Caller holds the lock.
func (us *MemoryUsers) usernameTaken(username string, exceptID int64) bool {
	for _, u := range us.store.state.usersByID {
		if u.Username == username && u.ID != exceptID {
			return true
		}
	}
	return false
}

func (us *MemoryUsers) Create(ctx context.Context, u *domain.User) error {
	us.store.wlock(ctx)
	defer us.store.wunlock(ctx)
	if us.usernameTaken(u.Username, 0) {
		return ErrDuplicateKey
	}
	now := time.Now().UTC()
	u.ID = us.store.state.nextUserID
	us.store.state.nextUserID++
	u.CreatedAt = now
	u.UpdatedAt = now
	us.store.state.usersByID[u.ID] = *u
	return nil
}

func (us *MemoryUsers) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	us.store.rlock(ctx)
	defer us.store.runlock(ctx)
	u, ok := us.store.state.usersByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (us *MemoryUsers) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	us.store.rlock(ctx)
	defer us.store.runlock(ctx)
	for _, u := range us.store.state.usersByID {
		if u.Username == username {
			cp := u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (us *MemoryUsers) Update(ctx context.Context, u *domain.User) error {
	us.store.wlock(ctx)
	defer us.store.wunlock(ctx)
	old, ok := us.store.state.usersByID[u.ID]
	if !ok {
		return ErrNotFound
	}
	if us.usernameTaken(u.Username, u.ID) {
		return ErrDuplicateKey
	}
	u.CreatedAt = old.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	us.store.state.usersByID[u.ID] = *u
	return nil
}

func (us *MemoryUsers) Delete(ctx context.Context, id int64) error {
	us.store.wlock(ctx)
	defer us.store.wunlock(ctx)
	if _, ok := us.store.state.usersByID[id]; !ok {
		return ErrNotFound
	}
	delete(us.store.state.usersByID, id)
	return nil
}

func (us *MemoryUsers) List(ctx context.Context) ([]domain.User, error) {
	us.store.rlock(ctx)
	defer us.store.runlock(ctx)
	out := make([]domain.User, 0, len(us.store.state.usersByID))
	for _, u := range us.store.state.usersByID {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func copyOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return o
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// MemoryTx: транзакция = глобальная блокировка записи + снимок состояния для отката
type MemoryTx struct{ store *MemoryStore }

func NewMemoryTx(store *MemoryStore) *MemoryTx { return &MemoryTx{store: store} }

func (tx *MemoryTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	// nested call joins the outer transaction
	if isTx(ctx) {
		return fn(ctx)
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	snapshot := tx.store.state.clone()
	committed := false
	defer func() {
		if !committed {
			tx.store.state = snapshot
		}
	}()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		return err
	}
	committed = true
	return nil
}
