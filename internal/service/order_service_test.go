package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowershop/internal/domain"
	"flowershop/internal/repository"
)

func orderInput(lines ...domain.OrderLine) CreateOrderInput {
	return CreateOrderInput{
		CustomerName:  "Anna",
		CustomerPhone: "+7 900 000 00 00",
		Address:       "Lenina 1",
		Lines:         lines,
	}
}

func TestCreateOrder_DecrementsStockAndSumsTotal(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		c := mustCategory(t, f, "Roses")
		rose := mustProduct(t, f, c.ID, "Red Rose", "12.50", 10)
		tulip := mustProduct(t, f, c.ID, "Tulip", "3.20", 5)
		other := mustProduct(t, f, c.ID, "Lily", "7.00", 4)

		o, err := f.orders.CreateOrder(ctx, orderInput(
			domain.OrderLine{ProductID: rose.ID, Quantity: 3},
			domain.OrderLine{ProductID: tulip.ID, Quantity: 5},
		))
		require.NoError(t, err)

		assert.Equal(t, domain.OrderStatusPending, o.Status)
		assert.Regexp(t, `^ORD\d{13,}\d{4}$`, o.OrderNo)
		require.Len(t, o.Items, 2)

		sum := decimal.Zero
		for _, it := range o.Items {
			assert.True(t, it.Price.Mul(decimal.NewFromInt(it.Quantity)).Equal(it.Subtotal))
			sum = sum.Add(it.Subtotal)
		}
		assert.True(t, sum.Equal(o.TotalAmount), "sum %s total %s", sum, o.TotalAmount)
		assert.Equal(t, "53.50", o.TotalAmount.StringFixed(2))
		assert.Equal(t, "Red Rose", o.Items[0].ProductName)

		assert.Equal(t, int64(7), stockOf(t, f, rose.ID))
		assert.Equal(t, int64(0), stockOf(t, f, tulip.ID))
		assert.Equal(t, int64(4), stockOf(t, f, other.ID))

		got, err := f.orders.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Len(t, got.Items, 2)
		assert.True(t, got.TotalAmount.Equal(o.TotalAmount))

		assert.Equal(t, []string{o.OrderNo}, f.published.published())
	})
}

func TestCreateOrder_SnapshotSurvivesProductEdit(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		c := mustCategory(t, f, "Roses")
		rose := mustProduct(t, f, c.ID, "Red Rose", "12.50", 10)

		o, err := f.orders.CreateOrder(ctx, orderInput(domain.OrderLine{ProductID: rose.ID, Quantity: 1}))
		require.NoError(t, err)

		_, err = f.products.Update(ctx, rose.ID, ProductInput{Name: ptr("White Rose"), Price: ptr(decimal.RequireFromString("99"))})
		require.NoError(t, err)
		require.NoError(t, f.products.Delete(ctx, rose.ID))

		got, err := f.orders.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, "Red Rose", got.Items[0].ProductName)
		assert.Equal(t, "12.50", got.Items[0].Price.StringFixed(2))
	})
}

func TestCreateOrder_Validation(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		c := mustCategory(t, f, "Roses")
		rose := mustProduct(t, f, c.ID, "Red Rose", "12.50", 10)

		_, err := f.orders.CreateOrder(ctx, orderInput())
		assert.ErrorIs(t, err, domain.ErrValidation)

		in := orderInput(domain.OrderLine{ProductID: rose.ID, Quantity: 1})
		in.CustomerName = "  "
		_, err = f.orders.CreateOrder(ctx, in)
		assert.ErrorIs(t, err, domain.ErrValidation)

		_, err = f.orders.CreateOrder(ctx, orderInput(
			domain.OrderLine{ProductID: rose.ID, Quantity: 2},
			domain.OrderLine{ProductID: rose.ID, Quantity: 0},
		))
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.Equal(t, int64(10), stockOf(t, f, rose.ID))
		assert.Empty(t, f.published.published())
	})
}

func TestCreateOrder_RollbackOnFailedLine(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		c := mustCategory(t, f, "Roses")
		a := mustProduct(t, f, c.ID, "A", "1.00", 5)
		b := mustProduct(t, f, c.ID, "B", "2.00", 1)

		_, err := f.orders.CreateOrder(ctx, orderInput(
			domain.OrderLine{ProductID: a.ID, Quantity: 2},
			domain.OrderLine{ProductID: b.ID, Quantity: 3},
		))
		var stockErr *domain.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, b.ID, stockErr.ProductID)
		assert.Equal(t, int64(1), stockErr.Available)

		_, err = f.orders.CreateOrder(ctx, orderInput(
			domain.OrderLine{ProductID: a.ID, Quantity: 2},
			domain.OrderLine{ProductID: 9999, Quantity: 1},
		))
		var nf *domain.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "product", nf.Entity)
		assert.EqualValues(t, 9999, nf.ID)

		assert.Equal(t, int64(5), stockOf(t, f, a.ID))
		assert.Equal(t, int64(1), stockOf(t, f, b.ID))

		list, total, err := f.orders.ListOrders(ctx, 1, 10)
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, list)
		assert.Empty(t, f.published.published())
	})
}

func TestCreateOrder_ConcurrentOrdersForWholeStock(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		const n = 8
		c := mustCategory(t, f, "Roses")
		p := mustProduct(t, f, c.ID, "Red Rose", "10", n)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
			rejected  int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.orders.CreateOrder(ctx, orderInput(domain.OrderLine{ProductID: p.ID, Quantity: n}))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case errors.Is(err, domain.ErrInsufficientStock):
					rejected++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, succeeded)
		assert.Equal(t, n-1, rejected)
		assert.Equal(t, int64(0), stockOf(t, f, p.ID))
	})
}

func TestCreateOrder_OppositeLineOrdersRunConcurrently(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		const n = 10
		c := mustCategory(t, f, "Roses")
		a := mustProduct(t, f, c.ID, "A", "1.00", 100)
		b := mustProduct(t, f, c.ID, "B", "2.00", 100)

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			lines := []domain.OrderLine{{ProductID: a.ID, Quantity: 1}, {ProductID: b.ID, Quantity: 2}}
			if i%2 == 1 {
				lines[0], lines[1] = lines[1], lines[0]
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.orders.CreateOrder(ctx, orderInput(lines...))
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}

		assert.Equal(t, int64(100-n), stockOf(t, f, a.ID))
		assert.Equal(t, int64(100-2*n), stockOf(t, f, b.ID))
		_, total, err := f.orders.ListOrders(ctx, 1, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(n), total)
	})
}

func TestCreateOrder_FirstFailingLineWins(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		c := mustCategory(t, f, "Roses")
		rose := mustProduct(t, f, c.ID, "Red Rose", "12.50", 10)

		_, err := f.orders.CreateOrder(ctx, orderInput(
			domain.OrderLine{ProductID: 9999, Quantity: 1},
			domain.OrderLine{ProductID: rose.ID, Quantity: 0},
		))
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = f.orders.CreateOrder(ctx, orderInput(
			domain.OrderLine{ProductID: rose.ID, Quantity: 0},
			domain.OrderLine{ProductID: 9999, Quantity: 1},
		))
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "items: line 1: quantity must be positive, got 0", ve.Error())

		_, err = f.orders.CreateOrder(ctx, orderInput(
			domain.OrderLine{ProductID: rose.ID, Quantity: 11},
			domain.OrderLine{ProductID: 9999, Quantity: 1},
		))
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)
		assert.Equal(t, int64(10), stockOf(t, f, rose.ID))
	})
}

// lockRecorder remembers the order in which product rows are locked.
type lockRecorder struct {
	repository.ProductRepository
	mu  sync.Mutex
	ids []int64
}

func (r *lockRecorder) GetForUpdate(ctx context.Context, id int64) (*domain.Product, error) {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
	return r.ProductRepository.GetForUpdate(ctx, id)
}

func TestInventoryLedger_LockProductsAscending(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		c := mustCategory(t, f, "Roses")
		a := mustProduct(t, f, c.ID, "A", "1", 1)
		b := mustProduct(t, f, c.ID, "B", "1", 1)

		rec := &lockRecorder{ProductRepository: f.store.Products}
		ledger := NewInventoryLedger(rec)
		err := f.store.Tx.WithTransaction(ctx, func(ctx context.Context) error {
			return ledger.LockProducts(ctx, []int64{b.ID, 9999, a.ID, b.ID})
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{a.ID, b.ID, 9999}, rec.ids)
	})
}

func TestCreateOrder_RegeneratesDuplicateNumberOnce(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		fixed := time.UnixMilli(1700000000000)
		suffixes := []int{7, 7, 8, 8, 8}
		var mu sync.Mutex
		gen := &OrderNumberGenerator{
			now: func() time.Time { return fixed },
			intn: func(int) int {
				mu.Lock()
				defer mu.Unlock()
				v := suffixes[0]
				suffixes = suffixes[1:]
				return v
			},
		}
		f.orders = NewOrderService(f.ledger, f.store.Orders, f.store.Tx, WithOrderNumbers(gen))

		c := mustCategory(t, f, "Roses")
		p := mustProduct(t, f, c.ID, "Red Rose", "10", 10)

		first, err := f.orders.CreateOrder(ctx, orderInput(domain.OrderLine{ProductID: p.ID, Quantity: 1}))
		require.NoError(t, err)
		assert.Equal(t, "ORD17000000000000007", first.OrderNo)

		second, err := f.orders.CreateOrder(ctx, orderInput(domain.OrderLine{ProductID: p.ID, Quantity: 2}))
		require.NoError(t, err)
		assert.Equal(t, "ORD17000000000000008", second.OrderNo)
		require.Len(t, second.Items, 1)

		got, err := f.orders.GetOrderByNumber(ctx, second.OrderNo)
		require.NoError(t, err)
		assert.Equal(t, second.ID, got.ID)
		assert.Len(t, got.Items, 1)
		assert.Equal(t, int64(7), stockOf(t, f, p.ID))

		// both attempts collide: the order fails and stock is untouched
		_, err = f.orders.CreateOrder(ctx, orderInput(domain.OrderLine{ProductID: p.ID, Quantity: 1}))
		assert.ErrorIs(t, err, domain.ErrPersistence)
		assert.Equal(t, int64(7), stockOf(t, f, p.ID))
	})
}

func TestCreateOrder_PublishFailureDoesNotFailOrder(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		f.published.err = errors.New("broker down")
		c := mustCategory(t, f, "Roses")
		p := mustProduct(t, f, c.ID, "Red Rose", "10", 2)

		o, err := f.orders.CreateOrder(ctx, orderInput(domain.OrderLine{ProductID: p.ID, Quantity: 1}))
		require.NoError(t, err)
		assert.Equal(t, []string{o.OrderNo}, f.published.published())
	})
}

func TestUpdateStatus(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		c := mustCategory(t, f, "Roses")
		p := mustProduct(t, f, c.ID, "Red Rose", "10", 2)
		o, err := f.orders.CreateOrder(ctx, orderInput(domain.OrderLine{ProductID: p.ID, Quantity: 1}))
		require.NoError(t, err)

		got, err := f.orders.UpdateStatus(ctx, o.ID, "shipped")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusShipped, got.Status)

		_, err = f.orders.UpdateStatus(ctx, o.ID, "bogus")
		assert.ErrorIs(t, err, domain.ErrValidation)
		got, err = f.orders.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusShipped, got.Status)

		_, err = f.orders.UpdateStatus(ctx, 9999, "shipped")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		// any token is accepted from any status
		got, err = f.orders.UpdateStatus(ctx, o.ID, "pending")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusPending, got.Status)
	})
}

func TestListAndDeleteOrders(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		c := mustCategory(t, f, "Roses")
		p := mustProduct(t, f, c.ID, "Red Rose", "10", 10)
		var ids []int64
		for i := 0; i < 3; i++ {
			o, err := f.orders.CreateOrder(ctx, orderInput(domain.OrderLine{ProductID: p.ID, Quantity: 1}))
			require.NoError(t, err)
			ids = append(ids, o.ID)
		}

		list, total, err := f.orders.ListOrders(ctx, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, list, 2)
		assert.Equal(t, ids[2], list[0].ID)

		require.NoError(t, f.orders.DeleteOrder(ctx, ids[0]))
		_, err = f.orders.GetOrder(ctx, ids[0])
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.ErrorIs(t, f.orders.DeleteOrder(ctx, ids[0]), domain.ErrNotFound)

		_, err = f.orders.GetOrderByNumber(ctx, "ORD-missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestOrderNumberGenerator_Format(t *testing.T) {
	g := NewOrderNumberGenerator()
	re := regexp.MustCompile(`^ORD\d+$`)
	for i := 0; i < 50; i++ {
		n := g.Next()
		assert.Regexp(t, re, n)
		assert.GreaterOrEqual(t, len(n), len("ORD")+13+4)
	}

	g = &OrderNumberGenerator{now: func() time.Time { return time.UnixMilli(42) }, intn: func(int) int { return 5 }}
	assert.Equal(t, "ORD420005", g.Next())
}
