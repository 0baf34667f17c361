package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"flowershop/internal/domain"
)

// OpenGorm открывает соединение с PostgreSQL или SQLite
func OpenGorm(driver, dsn string, debug bool) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// sqlite has a single writer; one connection keeps transactions from failing with SQLITE_BUSY
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Migrate создаёт или обновляет схему
func Migrate(db *gorm.DB) error {
	for _, m := range []any{&domain.Category{}, &domain.Product{}, &domain.Order{}, &domain.OrderItem{}, &domain.User{}} {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("automigrate %T: %w", m, err)
		}
	}
	return nil
}

// NewGorm собирает Store поверх *gorm.DB
func NewGorm(db *gorm.DB) *Store {
	return &Store{
		Products:   &GormProducts{db: db},
		Categories: &GormCategories{db: db},
		Orders:     &GormOrders{db: db},
		Users:      &GormUsers{db: db},
		Tx:         &GormTx{db: db},
		Close: func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	}
}

type gormTxKey struct{}

// conn returns the transaction bound to ctx, or the root handle.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(gormTxKey{}).(*gorm.DB); ok {
		return tx
	}
	return db.WithContext(ctx)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateKey
	case errors.Is(err, gorm.ErrForeignKeyViolated), isForeignKeyViolation(err):
		return ErrForeignKey
	case isUniqueViolation(err):
		return ErrDuplicateKey
	default:
		return err
	}
}

// The sqlite dialector translates only some constraint codes; a RESTRICT delete
// surfaces as the raw driver error, so match the driver text and SQLSTATE too.
func isForeignKeyViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "FOREIGN KEY constraint failed") || strings.Contains(msg, "SQLSTATE 23503")
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "SQLSTATE 23505")
}

func affected(res *gorm.DB) error {
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GormTx транзакция БД. Вложенный вызов создаёт SAVEPOINT.
type GormTx struct{ db *gorm.DB }

func (t *GormTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return conn(ctx, t.db).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, gormTxKey{}, tx))
	})
}

var (
	_ ProductRepository  = (*GormProducts)(nil)
	_ CategoryRepository = (*GormCategories)(nil)
	_ OrderRepository    = (*GormOrders)(nil)
	_ UserRepository     = (*GormUsers)(nil)
	_ TxManager          = (*GormTx)(nil)
)

// GormProducts ProductRepository поверх gorm
type GormProducts struct{ db *gorm.DB }

func (r *GormProducts) Create(ctx context.Context, p *domain.Product) error {
	return translate(conn(ctx, r.db).Omit(clause.Associations).Create(p).Error)
}

func (r *GormProducts) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	if err := conn(ctx, r.db).Preload("Category").First(&p, id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *GormProducts) GetForUpdate(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	if err := conn(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *GormProducts) Update(ctx context.Context, p *domain.Product) error {
	p.UpdatedAt = time.Now().UTC()
	res := conn(ctx, r.db).Model(p).Omit(clause.Associations).
		Select("Name", "Description", "Price", "Image", "CategoryID", "Active", "UpdatedAt").
		Updates(p)
	return affected(res)
}

func (r *GormProducts) Delete(ctx context.Context, id int64) error {
	return affected(conn(ctx, r.db).Delete(&domain.Product{}, id))
}

func (r *GormProducts) List(ctx context.Context, f ProductFilter) ([]domain.Product, int64, error) {
	var products []domain.Product
	var total int64

	query := conn(ctx, r.db).Model(&domain.Product{})
	if f.CategoryID != 0 {
		query = query.Where("category_id = ?", f.CategoryID)
	}
	if f.NameSubstring != "" {
		pattern := "%" + strings.ToLower(f.NameSubstring) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Preload("Category").Order("id DESC").Offset(f.Offset)
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}
	if err := query.Find(&products).Error; err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (r *GormProducts) CountByCategory(ctx context.Context, categoryID int64) (int64, error) {
	var n int64
	err := conn(ctx, r.db).Model(&domain.Product{}).Where("category_id = ?", categoryID).Count(&n).Error
	return n, err
}

// DecrementStock uses a conditional UPDATE so two writers can never both pass the stock check.
func (r *GormProducts) DecrementStock(ctx context.Context, id, qty int64) (*domain.Product, error) {
	res := conn(ctx, r.db).Model(&domain.Product{}).
		Where("id = ? AND stock >= ?", id, qty).
		UpdateColumns(map[string]any{
			"stock":      gorm.Expr("stock - ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	p, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return p, ErrInsufficientStock
	}
	return p, nil
}

func (r *GormProducts) SetStock(ctx context.Context, id, stock int64) (*domain.Product, error) {
	res := conn(ctx, r.db).Model(&domain.Product{}).Where("id = ?", id).
		UpdateColumns(map[string]any{"stock": stock, "updated_at": time.Now().UTC()})
	if err := affected(res); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// GormCategories CategoryRepository поверх gorm
type GormCategories struct{ db *gorm.DB }

func (r *GormCategories) Create(ctx context.Context, c *domain.Category) error {
	return translate(conn(ctx, r.db).Create(c).Error)
}

func (r *GormCategories) first(db *gorm.DB, id int64) (*domain.Category, error) {
	var c domain.Category
	if err := db.First(&c, id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *GormCategories) GetByID(ctx context.Context, id int64) (*domain.Category, error) {
	return r.first(conn(ctx, r.db), id)
}

func (r *GormCategories) GetForUpdate(ctx context.Context, id int64) (*domain.Category, error) {
	return r.first(conn(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *GormCategories) GetForShare(ctx context.Context, id int64) (*domain.Category, error) {
	return r.first(conn(ctx, r.db).Clauses(clause.Locking{Strength: "SHARE"}), id)
}

func (r *GormCategories) FindByName(ctx context.Context, name string) (*domain.Category, error) {
	var c domain.Category
	if err := conn(ctx, r.db).Where("name = ?", name).Order("id").First(&c).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *GormCategories) Update(ctx context.Context, c *domain.Category) error {
	c.UpdatedAt = time.Now().UTC()
	res := conn(ctx, r.db).Model(c).Select("Name", "Description", "IsActive", "UpdatedAt").Updates(c)
	return affected(res)
}

func (r *GormCategories) Delete(ctx context.Context, id int64) error {
	return affected(conn(ctx, r.db).Delete(&domain.Category{}, id))
}

func (r *GormCategories) List(ctx context.Context) ([]domain.Category, error) {
	var out []domain.Category
	if err := conn(ctx, r.db).Order("created_at DESC, id DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// GormOrders OrderRepository поверх gorm
type GormOrders struct{ db *gorm.DB }

// Create inserts the order and its items. It runs in its own (nested) transaction so a
// duplicate order number does not abort the caller's transaction.
func (r *GormOrders) Create(ctx context.Context, o *domain.Order) error {
	return translate(conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		return tx.Create(o).Error
	}))
}

func withItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") })
}

func (r *GormOrders) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	var o domain.Order
	if err := withItems(conn(ctx, r.db)).First(&o, id).Error; err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

func (r *GormOrders) GetByOrderNo(ctx context.Context, orderNo string) (*domain.Order, error) {
	var o domain.Order
	if err := withItems(conn(ctx, r.db)).Where("order_no = ?", orderNo).First(&o).Error; err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

func (r *GormOrders) List(ctx context.Context, offset, limit int) ([]domain.Order, int64, error) {
	var orders []domain.Order
	var total int64
	db := conn(ctx, r.db)
	if err := db.Model(&domain.Order{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query := withItems(db).Order("id DESC").Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *GormOrders) UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus) error {
	res := conn(ctx, r.db).Model(&domain.Order{}).Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()})
	return affected(res)
}

func (r *GormOrders) DeleteItems(ctx context.Context, orderID int64) error {
	return translate(conn(ctx, r.db).Where("order_id = ?", orderID).Delete(&domain.OrderItem{}).Error)
}

func (r *GormOrders) Delete(ctx context.Context, id int64) error {
	return affected(conn(ctx, r.db).Delete(&domain.Order{}, id))
}

// GormUsers UserRepository поверх gorm
type GormUsers struct{ db *gorm.DB }

func (r *GormUsers) Create(ctx context.Context, u *domain.User) error {
	return translate(conn(ctx, r.db).Create(u).Error)
}

func (r *GormUsers) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	if err := conn(ctx, r.db).First(&u, id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *GormUsers) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	var u domain.User
	if err := conn(ctx, r.db).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *GormUsers) Update(ctx context.Context, u *domain.User) error {
	u.UpdatedAt = time.Now().UTC()
	res := conn(ctx, r.db).Model(u).
		Select("Username", "Password", "Phone", "Email", "Role", "Active", "UpdatedAt").
		Updates(u)
	return affected(res)
}

func (r *GormUsers) Delete(ctx context.Context, id int64) error {
	return affected(conn(ctx, r.db).Delete(&domain.User{}, id))
}

func (r *GormUsers) List(ctx context.Context) ([]domain.User, error) {
	var out []domain.User
	if err := conn(ctx, r.db).Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
