package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"flowershop/internal/domain"
	"flowershop/internal/repository"
)

// fixture собирает сервисы поверх одного хранилища
type fixture struct {
	store      *repository.Store
	ledger     *InventoryLedger
	products   *ProductService
	orders     *OrderService
	categories *CategoryService
	guard      *CategoryGuard
	imports    *ImportService
	users      *UserService
	published  *recordingPublisher
}

func newFixture(t *testing.T, store *repository.Store, opts ...OrderOption) *fixture {
	t.Helper()
	pub := &recordingPublisher{}
	ledger := NewInventoryLedger(store.Products)
	products := NewProductService(store.Products, store.Categories, ledger, store.Tx)
	guard := NewCategoryGuard(store.Categories, store.Products, store.Tx, nil)
	opts = append([]OrderOption{WithPublisher(pub)}, opts...)
	return &fixture{
		store:      store,
		ledger:     ledger,
		products:   products,
		orders:     NewOrderService(ledger, store.Orders, store.Tx, opts...),
		categories: NewCategoryService(store.Categories, guard),
		guard:      guard,
		imports:    NewImportService(NewCategoryResolver(store.Categories), products, store.Tx, nil),
		users:      NewUserService(store.Users, WithPasswordCost(bcrypt.MinCost)),
		published:  pub,
	}
}

func newSQLite(t *testing.T) *repository.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repository.OpenGorm("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name), false)
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))
	s := repository.NewGorm(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// eachStore runs fn against the in-memory store and against SQLite via gorm.
func eachStore(t *testing.T, fn func(t *testing.T, f *fixture)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) { fn(t, newFixture(t, repository.NewMemory())) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newFixture(t, newSQLite(t))) })
}

func ptr[T any](v T) *T { return &v }

func mustCategory(t *testing.T, f *fixture, name string) *domain.Category {
	t.Helper()
	c, err := f.categories.Create(context.Background(), CategoryInput{Name: ptr(name)})
	require.NoError(t, err)
	return c
}

func mustProduct(t *testing.T, f *fixture, categoryID int64, name, price string, stock int64) *domain.Product {
	t.Helper()
	p, err := f.products.Create(context.Background(), ProductInput{
		Name:       ptr(name),
		Price:      ptr(decimal.RequireFromString(price)),
		Stock:      ptr(stock),
		CategoryID: ptr(categoryID),
	})
	require.NoError(t, err)
	return p
}

func stockOf(t *testing.T, f *fixture, id int64) int64 {
	t.Helper()
	p, err := f.products.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

type recordingPublisher struct {
	mu     sync.Mutex
	orders []string
	err    error
}

func (p *recordingPublisher) PublishOrderCreated(_ context.Context, o *domain.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, o.OrderNo)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.orders...)
}
