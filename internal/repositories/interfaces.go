package repositories

import (
	"context"
	"time"

	domain "github.com/refugios-lanche/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Orders() OrderRepository
	Admins() AdminRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository persists the menu catalog.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, productID string) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
}

// OrderRepository persists order documents and provides query helpers for customers and admins.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	ListBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error)
	CountByStatus(ctx context.Context) (map[domain.OrderStatus]int, error)
}

// AdminRepository stores back-office accounts used by the access gate.
type AdminRepository interface {
	Insert(ctx context.Context, admin domain.Admin) error
	Update(ctx context.Context, admin domain.Admin) error
	FindByID(ctx context.Context, adminID string) (domain.Admin, error)
	FindByEmail(ctx context.Context, email string) (domain.Admin, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

// ProductListFilter narrows catalog listings.
type ProductListFilter struct {
	Category      *domain.ProductCategory
	OnlyAvailable bool
	Pagination    domain.Pagination
}

// OrderListFilter narrows order listings for the admin panel.
type OrderListFilter struct {
	Status       []domain.OrderStatus
	DeliveryType *domain.DeliveryType
	DateRange    domain.RangeQuery[time.Time]
	Pagination   domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
