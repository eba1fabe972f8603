package services

import (
	"context"
	"time"

	domain "github.com/refugios-lanche/api/internal/domain"
	"github.com/refugios-lanche/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Product            = domain.Product
	ProductCategory    = domain.ProductCategory
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	Customer           = domain.Customer
	Address            = domain.Address
	DeliveryType       = domain.DeliveryType
	PaymentMethod      = domain.PaymentMethod
	PaymentStatus      = domain.PaymentStatus
	StatusHistoryEntry = domain.StatusHistoryEntry
	Admin              = domain.Admin
	SalesStats         = domain.SalesStats
	SalesBucket        = domain.SalesBucket
	SystemHealthReport = domain.SystemHealthReport
)

// CatalogService manages the restaurant menu exposed to customers and the back office.
type CatalogService interface {
	CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error)
	SetAvailability(ctx context.Context, productID string, available bool) (Product, error)
	DeleteProduct(ctx context.Context, productID string) error
}

// CreateProductCommand carries the fields required to add a menu item.
type CreateProductCommand struct {
	Name            string
	Description     string
	Price           int64
	Category        ProductCategory
	Image           string
	Available       *bool
	PreparationTime int
}

// UpdateProductCommand carries a partial product update. Nil fields are left untouched.
type UpdateProductCommand struct {
	ProductID       string
	Name            *string
	Description     *string
	Price           *int64
	Category        *ProductCategory
	Image           *string
	Available       *bool
	PreparationTime *int
}

// ProductListFilter narrows and paginates catalog listings.
type ProductListFilter struct {
	Category      *ProductCategory
	OnlyAvailable bool
	Search        string
	Pagination    Pagination
}

// OrderService orchestrates order placement, lifecycle transitions and lookups.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	UpdatePaymentStatus(ctx context.Context, cmd UpdatePaymentStatusCommand) (Order, error)
}

// PlaceOrderCommand carries everything needed to create an order.
type PlaceOrderCommand struct {
	Customer      Customer
	Items         []PlaceOrderItem
	DeliveryType  DeliveryType
	PaymentMethod PaymentMethod
	Notes         string
}

// PlaceOrderItem references a catalog product and the desired quantity.
// Name and price are resolved from the current catalog at placement time.
type PlaceOrderItem struct {
	ProductID string
	Quantity  int
}

// OrderListFilter narrows and paginates order listings.
type OrderListFilter struct {
	Status       []OrderStatus
	DeliveryType *DeliveryType
	From         *time.Time
	To           *time.Time
	Pagination   Pagination
}

// OrderStatusTransitionCommand moves an order to the next lifecycle state.
type OrderStatusTransitionCommand struct {
	OrderID string
	Status  OrderStatus
	Actor   string
}

// CancelOrderCommand cancels a non-terminal order. Actor distinguishes
// customer self-service cancellation from back-office cancellation.
type CancelOrderCommand struct {
	OrderID string
	Reason  string
	Actor   string
	Admin   bool
}

// UpdatePaymentStatusCommand records a settlement state change on an order.
type UpdatePaymentStatusCommand struct {
	OrderID string
	Status  PaymentStatus
	Actor   string
}

// OrderPricer prices a prospective order against the current catalog.
type OrderPricer interface {
	Price(ctx context.Context, cmd PriceOrderCommand) (OrderQuote, error)
}

// PriceOrderCommand carries the lines and delivery type to price.
type PriceOrderCommand struct {
	Items        []PlaceOrderItem
	DeliveryType DeliveryType
}

// OrderQuote is the priced snapshot of an order before it is persisted.
type OrderQuote struct {
	Items       []OrderItem
	Subtotal    int64
	DeliveryFee int64
	Total       int64
}

// SalesService derives aggregate figures for the admin dashboard.
type SalesService interface {
	SalesReport(ctx context.Context) (SalesStats, error)
}

// AuthService authenticates back-office accounts and issues API tokens.
type AuthService interface {
	Login(ctx context.Context, cmd LoginCommand) (AuthSession, error)
	Profile(ctx context.Context, adminID string) (Admin, error)
}

// LoginCommand carries the admin credentials.
type LoginCommand struct {
	Email    string
	Password string
}

// AuthSession is the result of a successful login.
type AuthSession struct {
	Token     string
	ExpiresAt time.Time
	Admin     Admin
}

// CounterValue is the result of a counter increment: the raw sequence value
// plus its formatted representation.
type CounterValue struct {
	Value     int64
	Formatted string
}

// CounterGenerationOptions controls how counter values are incremented and formatted.
type CounterGenerationOptions struct {
	Step         int64
	Prefix       string
	Suffix       string
	PadLength    int
	MaxValue     *int64
	InitialValue *int64
	Formatter    func(now time.Time, value int64) string
}

// CounterService hands out monotonically increasing sequence values.
type CounterService interface {
	Next(ctx context.Context, scope, name string, opts CounterGenerationOptions) (CounterValue, error)
	NextOrderNumber(ctx context.Context) (string, error)
}

// SystemService exposes operational health and build metadata.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// OrderEventMessage is the payload published whenever an order is created,
// changes status or is cancelled.
type OrderEventMessage struct {
	EventType   string    `json:"eventType"`
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	Status      string    `json:"status"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// Order event types carried in OrderEventMessage.EventType.
const (
	OrderEventCreated       = "order.created"
	OrderEventStatusChanged = "order.status_changed"
	OrderEventCancelled     = "order.cancelled"
	OrderEventPaymentUpdate = "order.payment_updated"
)

// OrderEventPublisher emits order lifecycle events to interested consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, msg OrderEventMessage) error
}

// OrderEventPublisherFunc adapts ordinary functions to OrderEventPublisher.
type OrderEventPublisherFunc func(ctx context.Context, msg OrderEventMessage) error

// PublishOrderEvent publishes the event using the wrapped function.
func (f OrderEventPublisherFunc) PublishOrderEvent(ctx context.Context, msg OrderEventMessage) error {
	return f(ctx, msg)
}

// QRCodeGenerator renders content as an embeddable image data URL.
type QRCodeGenerator interface {
	DataURL(content string) (string, error)
}

// UnitOfWork re-exports the repositories transaction contract for service constructors.
type UnitOfWork = repositories.UnitOfWork
