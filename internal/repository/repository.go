package repository

import (
	"context"
	"errors"
	"strings"

	"flowershop/internal/domain"
)

var (
	// ErrNotFound возвращается, когда сущность не найдена
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey нарушение уникального индекса (например, номер заказа)
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrForeignKey удаление или вставка нарушает внешний ключ
	ErrForeignKey = errors.New("foreign key violation")
	// ErrInsufficientStock условное списание не прошло: остаток меньше запрошенного
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ProductFilter параметры фильтрации списка товаров
type ProductFilter struct {
	// NameSubstring ищется в названии и описании без учёта регистра
	NameSubstring string
	CategoryID    int64
	Offset        int
	// Limit <= 0 означает без ограничения
	Limit int
}

// ProductRepository интерфейс репозитория товаров
type ProductRepository interface {
	Create(ctx context.Context, p *domain.Product) error
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
	// GetForUpdate читает товар и блокирует строку до конца транзакции
	GetForUpdate(ctx context.Context, id int64) (*domain.Product, error)
	// Update пишет все поля, кроме остатка
	Update(ctx context.Context, p *domain.Product) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, f ProductFilter) ([]domain.Product, int64, error)
	CountByCategory(ctx context.Context, categoryID int64) (int64, error)
	// DecrementStock одним шагом уменьшает остаток, если stock >= qty
	DecrementStock(ctx context.Context, id, qty int64) (*domain.Product, error)
	SetStock(ctx context.Context, id, stock int64) (*domain.Product, error)
}

// CategoryRepository интерфейс репозитория категорий
type CategoryRepository interface {
	Create(ctx context.Context, c *domain.Category) error
	GetByID(ctx context.Context, id int64) (*domain.Category, error)
	// GetForUpdate эксклюзивная блокировка строки категории (удаление)
	GetForUpdate(ctx context.Context, id int64) (*domain.Category, error)
	// GetForShare разделяемая блокировка: категорию нельзя удалить, пока транзакция жива
	GetForShare(ctx context.Context, id int64) (*domain.Category, error)
	FindByName(ctx context.Context, name string) (*domain.Category, error)
	Update(ctx context.Context, c *domain.Category) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]domain.Category, error)
}

// OrderRepository интерфейс репозитория заказов
type OrderRepository interface {
	// Create сохраняет заказ вместе с позициями
	Create(ctx context.Context, o *domain.Order) error
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	GetByOrderNo(ctx context.Context, orderNo string) (*domain.Order, error)
	List(ctx context.Context, offset, limit int) ([]domain.Order, int64, error)
	UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus) error
	DeleteItems(ctx context.Context, orderID int64) error
	Delete(ctx context.Context, id int64) error
}

// UserRepository интерфейс репозитория пользователей
type UserRepository interface {
	// Create возвращает ErrDuplicateKey, если имя пользователя занято
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	Update(ctx context.Context, u *domain.User) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]domain.User, error)
}

// TxManager абстракция транзакции. Ошибка из fn откатывает все изменения.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store набор репозиториев одного хранилища
type Store struct {
	Products   ProductRepository
	Categories CategoryRepository
	Orders     OrderRepository
	Users      UserRepository
	Tx         TxManager
	Close      func() error
}

// helper: case-insensitive contains
func containsIgnoreCase(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
