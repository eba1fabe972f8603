package domain

import (
	"time"
)

// ProductCategory enumerates the menu sections of the restaurant.
type ProductCategory string

const (
	// CategoryLanches covers burgers and sandwiches.
	CategoryLanches ProductCategory = "lanches"
	// CategoryBebidas covers drinks.
	CategoryBebidas ProductCategory = "bebidas"
	// CategoryAcompanhamentos covers sides.
	CategoryAcompanhamentos ProductCategory = "acompanhamentos"
	// CategorySobremesas covers desserts.
	CategorySobremesas ProductCategory = "sobremesas"
)

// ValidCategory reports whether the value is one of the known menu categories.
func ValidCategory(value ProductCategory) bool {
	switch value {
	case CategoryLanches, CategoryBebidas, CategoryAcompanhamentos, CategorySobremesas:
		return true
	}
	return false
}

// Product is a catalog entry. Prices are stored in centavos to avoid
// floating point arithmetic on money.
type Product struct {
	ID              string
	Name            string
	Description     string
	Price           int64
	Category        ProductCategory
	Image           string
	Available       bool
	PreparationTime int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was received and awaits confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates the restaurant accepted the order.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusPreparing indicates the kitchen is working on the order.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusReady indicates the order is ready for handoff or dispatch.
	OrderStatusReady OrderStatus = "ready"
	// OrderStatusDelivering indicates the order is out for delivery.
	OrderStatusDelivering OrderStatus = "delivering"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled before delivery.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// ValidOrderStatus reports whether the value is one of the known order statuses.
func ValidOrderStatus(value OrderStatus) bool {
	switch value {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing,
		OrderStatusReady, OrderStatusDelivering, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// PaymentMethod enumerates accepted payment instruments.
type PaymentMethod string

const (
	// PaymentMethodCard is payment by credit or debit card.
	PaymentMethodCard PaymentMethod = "card"
	// PaymentMethodPix is payment by Pix transfer.
	PaymentMethodPix PaymentMethod = "pix"
	// PaymentMethodCash is payment in cash on handoff.
	PaymentMethodCash PaymentMethod = "cash"
)

// ValidPaymentMethod reports whether the value is a known payment method.
func ValidPaymentMethod(value PaymentMethod) bool {
	switch value {
	case PaymentMethodCard, PaymentMethodPix, PaymentMethodCash:
		return true
	}
	return false
}

// PaymentStatus enumerates settlement states for an order.
type PaymentStatus string

const (
	// PaymentStatusPending indicates payment has not settled yet.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid indicates payment settled.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed indicates payment failed.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded indicates a settled payment was returned.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// ValidPaymentStatus reports whether the value is a known payment status.
func ValidPaymentStatus(value PaymentStatus) bool {
	switch value {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// DeliveryType enumerates how the customer receives the order.
type DeliveryType string

const (
	// DeliveryTypeDelivery means the order is delivered to the customer address.
	DeliveryTypeDelivery DeliveryType = "delivery"
	// DeliveryTypePickup means the customer collects the order at the counter.
	DeliveryTypePickup DeliveryType = "pickup"
	// DeliveryTypeDineIn means the order is served at a table.
	DeliveryTypeDineIn DeliveryType = "dine_in"
)

// ValidDeliveryType reports whether the value is a known delivery type.
func ValidDeliveryType(value DeliveryType) bool {
	switch value {
	case DeliveryTypeDelivery, DeliveryTypePickup, DeliveryTypeDineIn:
		return true
	}
	return false
}

// Address is the customer delivery address. All fields are optional for
// pickup and dine-in orders.
type Address struct {
	Street       string
	Number       string
	Complement   string
	Neighborhood string
	City         string
	State        string
	ZipCode      string
}

// Customer identifies who placed the order.
type Customer struct {
	Name    string
	Email   string
	Phone   string
	Address *Address
}

// OrderItem is a line in an order. Name and unit price are snapshotted from
// the catalog at creation time so later edits never alter historical orders.
type OrderItem struct {
	ProductID string
	Name      string
	UnitPrice int64
	Quantity  int
	Subtotal  int64
}

// StatusHistoryEntry records a single status change for auditing.
type StatusHistoryEntry struct {
	Status   OrderStatus
	At       time.Time
	Actor    string
	Notified bool
}

// Order is a placed order. Orders are append-only: once created they are
// mutated only through status transitions and cancellation, never deleted.
type Order struct {
	ID                    string
	OrderNumber           string
	Customer              Customer
	Items                 []OrderItem
	Subtotal              int64
	DeliveryFee           int64
	Total                 int64
	DeliveryType          DeliveryType
	PaymentMethod         PaymentMethod
	PaymentStatus         PaymentStatus
	Status                OrderStatus
	Notes                 string
	QRCode                string
	EstimatedDeliveryTime time.Time
	DeliveredAt           *time.Time
	CancelledAt           *time.Time
	CancellationReason    string
	StatusHistory         []StatusHistoryEntry
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Terminal reports whether the order reached a final state.
func (o Order) Terminal() bool {
	return o.Status == OrderStatusDelivered || o.Status == OrderStatusCancelled
}

// Admin is a back-office account allowed to manage products and orders.
type Admin struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         string
	Active       bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SalesBucket is a count/revenue pair for one aggregation window.
type SalesBucket struct {
	Orders  int
	Revenue int64
}

// SalesStats holds the derived sales figures served to the admin dashboard.
// Cancelled orders are excluded from every bucket.
type SalesStats struct {
	Today    SalesBucket
	Month    SalesBucket
	Total    int
	ByStatus map[OrderStatus]int
}

// RangeQuery represents inclusive range filters for timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// Pagination carries cursor-based paging parameters for list queries.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps paginated results with the next page token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
