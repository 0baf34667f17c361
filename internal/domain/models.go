package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category категория товаров. Уникальность имени не гарантируется хранилищем
type Category struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"size:50;not null;index"`
	Description string    `json:"description" gorm:"size:255"`
	IsActive    bool      `json:"is_active" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Category) TableName() string { return "categories" }

// Product товар каталога. Остаток меняется только через InventoryLedger
type Product struct {
	ID          int64           `json:"id" gorm:"primaryKey"`
	Name        string          `json:"name" gorm:"size:100;not null"`
	Description string          `json:"description" gorm:"type:text"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(10,2);not null"`
	Stock       int64           `json:"stock" gorm:"not null;default:0"`
	Image       string          `json:"image" gorm:"size:255"`
	CategoryID  int64           `json:"category_id" gorm:"not null;index"`
	Category    *Category       `json:"category,omitempty" gorm:"foreignKey:CategoryID;constraint:OnDelete:RESTRICT"`
	Active      bool            `json:"active" gorm:"not null"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (Product) TableName() string { return "products" }

// UserRole роль пользователя
type UserRole int

const (
	UserRoleCustomer UserRole = 0
	UserRoleAdmin    UserRole = 1
)

// User учётная запись. Password хранит только bcrypt-хеш и не сериализуется
type User struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	Username  string    `json:"username" gorm:"size:50;not null;uniqueIndex"`
	Password  string    `json:"-" gorm:"size:100;not null"`
	Phone     string    `json:"phone" gorm:"size:20"`
	Email     string    `json:"email" gorm:"size:100"`
	Role      UserRole  `json:"role" gorm:"not null;default:0"`
	Active    bool      `json:"active" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

// OrderStatus статус заказа
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var orderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// ParseOrderStatus принимает только пять известных статусов
func ParseOrderStatus(s string) (OrderStatus, bool) {
	for _, st := range orderStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// OrderItem снимок товара на момент покупки: имя и цена копируются,
// поэтому изменение или удаление товара не влияет на историю заказов
type OrderItem struct {
	ID          int64           `json:"id" gorm:"primaryKey"`
	OrderID     int64           `json:"order_id" gorm:"not null;index"`
	ProductID   int64           `json:"product_id" gorm:"not null"`
	ProductName string          `json:"product_name" gorm:"size:100;not null"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(10,2);not null"`
	Quantity    int64           `json:"quantity" gorm:"not null"`
	Subtotal    decimal.Decimal `json:"subtotal" gorm:"type:decimal(10,2);not null"`
}

func (OrderItem) TableName() string { return "order_items" }

// Order заказ. TotalAmount всегда равен сумме Subtotal позиций и не пересчитывается
type Order struct {
	ID            int64           `json:"id" gorm:"primaryKey"`
	OrderNo       string          `json:"order_no" gorm:"size:50;not null;uniqueIndex"`
	CustomerName  string          `json:"customer_name" gorm:"size:50;not null"`
	CustomerPhone string          `json:"customer_phone" gorm:"size:20;not null"`
	Address       string          `json:"address" gorm:"size:255;not null"`
	TotalAmount   decimal.Decimal `json:"total_amount" gorm:"type:decimal(10,2);not null"`
	Status        OrderStatus     `json:"status" gorm:"size:20;not null;default:pending"`
	Remark        string          `json:"remark" gorm:"type:text"`
	Items         []OrderItem     `json:"items" gorm:"foreignKey:OrderID"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// OrderLine строка заказа: товар и количество
type OrderLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// ImportRow нормализованная строка файла импорта
type ImportRow struct {
	Name         string
	Description  string
	Price        decimal.Decimal
	Stock        int64
	Image        string
	CategoryName string
}

// ImportReport итог импорта. Errors идут в порядке строк входного файла
type ImportReport struct {
	Imported int      `json:"imported"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors"`
}

// StockLevel грубая оценка остатка для отчётов и фильтров
type StockLevel string

const (
	StockOut    StockLevel = "out_of_stock"
	StockLow    StockLevel = "low"
	StockNormal StockLevel = "normal"
	StockAmple  StockLevel = "ample"
)

func StockLevelOf(stock int64) StockLevel {
	switch {
	case stock <= 0:
		return StockOut
	case stock <= 10:
		return StockLow
	case stock <= 50:
		return StockNormal
	default:
		return StockAmple
	}
}
