package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"flowershop/internal/domain"
	"flowershop/internal/events"
	"flowershop/internal/repository"
)

var tracer = otel.Tracer("flowershop/service")

// OrderService реализует логику заказов: создание, смена статуса, удаление
type OrderService struct {
	ledger    *InventoryLedger
	orders    repository.OrderRepository
	tx        repository.TxManager
	numbers   *OrderNumberGenerator
	publisher events.Publisher
	logger    *zap.Logger
}

// OrderOption настраивает необязательные зависимости OrderService
type OrderOption func(*OrderService)

func WithOrderNumbers(g *OrderNumberGenerator) OrderOption {
	return func(s *OrderService) { s.numbers = g }
}

func WithPublisher(p events.Publisher) OrderOption {
	return func(s *OrderService) { s.publisher = p }
}

func WithOrderLogger(l *zap.Logger) OrderOption {
	return func(s *OrderService) { s.logger = l }
}

func NewOrderService(ledger *InventoryLedger, orders repository.OrderRepository, tx repository.TxManager, opts ...OrderOption) *OrderService {
	s := &OrderService{
		ledger:    ledger,
		orders:    orders,
		tx:        tx,
		numbers:   NewOrderNumberGenerator(),
		publisher: events.NopPublisher{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrderInput данные нового заказа
type CreateOrderInput struct {
	CustomerName  string
	CustomerPhone string
	Address       string
	Remark        string
	Lines         []domain.OrderLine
}

func (in *CreateOrderInput) normalize() {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CustomerPhone = strings.TrimSpace(in.CustomerPhone)
	in.Address = strings.TrimSpace(in.Address)
	in.Remark = strings.TrimSpace(in.Remark)
}

func validateCreateOrder(in CreateOrderInput) error {
	if len(in.Lines) == 0 {
		return domain.NewValidationError("items", "order must contain at least one line")
	}
	if in.CustomerName == "" {
		return domain.NewValidationError("customer_name", "is required")
	}
	if in.CustomerPhone == "" {
		return domain.NewValidationError("customer_phone", "is required")
	}
	if in.Address == "" {
		return domain.NewValidationError("address", "is required")
	}
	return nil
}

func lineProductIDs(lines []domain.OrderLine) []int64 {
	ids := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	return ids
}

// CreateOrder проверяет наличие товара и атомарно списывает запас.
// Либо списываются все строки и сохраняется заказ, либо ничего не меняется.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "OrderService.CreateOrder")
	defer span.End()
	span.SetAttributes(attribute.Int("order.lines", len(in.Lines)))

	in.normalize()
	if err := validateCreateOrder(in); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var created *domain.Order
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.ledger.LockProducts(ctx, lineProductIDs(in.Lines)); err != nil {
			return err
		}
		// lines are checked in the order given, so the first failing line is the one reported
		total := decimal.Zero
		items := make([]domain.OrderItem, 0, len(in.Lines))
		for i, line := range in.Lines {
			if line.Quantity <= 0 {
				return domain.NewValidationError("items", "line %d: quantity must be positive, got %d", i+1, line.Quantity)
			}
			p, err := s.ledger.TryDecrement(ctx, line.ProductID, line.Quantity)
			if err != nil {
				return err
			}
			subtotal := p.Price.Mul(decimal.NewFromInt(line.Quantity))
			total = total.Add(subtotal)
			items = append(items, domain.OrderItem{
				ProductID:   p.ID,
				ProductName: p.Name,
				Price:       p.Price,
				Quantity:    line.Quantity,
				Subtotal:    subtotal,
			})
		}

		o := &domain.Order{
			CustomerName:  in.CustomerName,
			CustomerPhone: in.CustomerPhone,
			Address:       in.Address,
			Remark:        in.Remark,
			TotalAmount:   total,
			Status:        domain.OrderStatusPending,
			Items:         items,
		}
		if err := s.insertOrder(ctx, o); err != nil {
			return err
		}
		created = o
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, persistence("create order", err)
	}

	span.SetAttributes(attribute.String("order.no", created.OrderNo))
	s.logger.Info("order created",
		zap.Int64("order_id", created.ID),
		zap.String("order_no", created.OrderNo),
		zap.String("total_amount", created.TotalAmount.StringFixed(2)),
		zap.Int("items", len(created.Items)),
	)
	if err := s.publisher.PublishOrderCreated(ctx, created); err != nil {
		s.logger.Warn("publish order created", zap.String("order_no", created.OrderNo), zap.Error(err))
	}
	return created, nil
}

// insertOrder assigns an order number and inserts; a duplicate number is regenerated once.
func (s *OrderService) insertOrder(ctx context.Context, o *domain.Order) error {
	o.OrderNo = s.numbers.Next()
	err := s.orders.Create(ctx, o)
	if errors.Is(err, repository.ErrDuplicateKey) {
		s.logger.Warn("order number collision, regenerating", zap.String("order_no", o.OrderNo))
		resetOrderIDs(o)
		o.OrderNo = s.numbers.Next()
		err = s.orders.Create(ctx, o)
	}
	return persistence("insert order", err)
}

func resetOrderIDs(o *domain.Order) {
	o.ID = 0
	for i := range o.Items {
		o.Items[i].ID = 0
		o.Items[i].OrderID = 0
	}
}

// GetOrder возвращает заказ по id вместе с позициями
func (s *OrderService) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	if id <= 0 {
		return nil, domain.NewValidationError("id", "must be positive")
	}
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "order", id, "get order")
	}
	return o, nil
}

// GetOrderByNumber поиск по номеру заказа
func (s *OrderService) GetOrderByNumber(ctx context.Context, orderNo string) (*domain.Order, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return nil, domain.NewValidationError("order_no", "is required")
	}
	o, err := s.orders.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, notFoundOr(err, "order", orderNo, "get order by number")
	}
	return o, nil
}

// ListOrders страница заказов, новые первыми
func (s *OrderService) ListOrders(ctx context.Context, pageNum, pageSize int) ([]domain.Order, int64, error) {
	offset, limit := page(pageNum, pageSize)
	list, total, err := s.orders.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, persistence("list orders", err)
	}
	return list, total, nil
}

// UpdateStatus меняет статус. Проверяется только принадлежность к набору статусов,
// порядок переходов не ограничивается.
func (s *OrderService) UpdateStatus(ctx context.Context, id int64, status string) (*domain.Order, error) {
	st, ok := domain.ParseOrderStatus(status)
	if !ok {
		return nil, domain.NewValidationError("status", "unknown order status %q", status)
	}
	if err := s.orders.UpdateStatus(ctx, id, st); err != nil {
		return nil, notFoundOr(err, "order", id, "update order status")
	}
	s.logger.Info("order status changed", zap.Int64("order_id", id), zap.String("status", string(st)))
	return s.GetOrder(ctx, id)
}

// DeleteOrder удаляет позиции, затем сам заказ, в одной транзакции
func (s *OrderService) DeleteOrder(ctx context.Context, id int64) error {
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.orders.GetByID(ctx, id); err != nil {
			return notFoundOr(err, "order", id, "get order")
		}
		if err := s.orders.DeleteItems(ctx, id); err != nil {
			return persistence("delete order items", err)
		}
		if err := s.orders.Delete(ctx, id); err != nil {
			return notFoundOr(err, "order", id, "delete order")
		}
		return nil
	})
	return persistence("delete order", err)
}
