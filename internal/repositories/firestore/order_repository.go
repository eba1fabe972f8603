package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/refugios-lanche/api/internal/domain"
	pfirestore "github.com/refugios-lanche/api/internal/platform/firestore"
	"github.com/refugios-lanche/api/internal/repositories"
)

const ordersCollection = "orders"

const defaultOrderPageSize = 50

type orderDocument struct {
	OrderNumber           string                 `firestore:"orderNumber"`
	Customer              customerDocument       `firestore:"customer"`
	Items                 []orderItemDocument    `firestore:"items"`
	Subtotal              int64                  `firestore:"subtotal"`
	DeliveryFee           int64                  `firestore:"deliveryFee"`
	Total                 int64                  `firestore:"total"`
	PaymentMethod         string                 `firestore:"paymentMethod"`
	PaymentStatus         string                 `firestore:"paymentStatus"`
	DeliveryType          string                 `firestore:"deliveryType"`
	Status                string                 `firestore:"status"`
	Notes                 string                 `firestore:"notes,omitempty"`
	QRCode                string                 `firestore:"qrCode,omitempty"`
	EstimatedDeliveryTime time.Time              `firestore:"estimatedDeliveryTime"`
	DeliveredAt           *time.Time             `firestore:"deliveredAt,omitempty"`
	CancelledAt           *time.Time             `firestore:"cancelledAt,omitempty"`
	CancellationReason    string                 `firestore:"cancellationReason,omitempty"`
	StatusHistory         []statusEntryDocument  `firestore:"statusHistory"`
	CreatedAt             time.Time              `firestore:"createdAt"`
	UpdatedAt             time.Time              `firestore:"updatedAt"`
}

type customerDocument struct {
	Name    string           `firestore:"name"`
	Email   string           `firestore:"email,omitempty"`
	Phone   string           `firestore:"phone"`
	Address *addressDocument `firestore:"address,omitempty"`
}

type addressDocument struct {
	Street       string `firestore:"street"`
	Number       string `firestore:"number"`
	Complement   string `firestore:"complement,omitempty"`
	Neighborhood string `firestore:"neighborhood"`
	City         string `firestore:"city"`
	State        string `firestore:"state"`
	ZipCode      string `firestore:"zipCode"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	UnitPrice int64  `firestore:"unitPrice"`
	Quantity  int    `firestore:"quantity"`
	Subtotal  int64  `firestore:"subtotal"`
}

type statusEntryDocument struct {
	Status   string    `firestore:"status"`
	At       time.Time `firestore:"at"`
	Actor    string    `firestore:"actor,omitempty"`
	Notified bool      `firestore:"notified"`
}

// OrderRepository persists orders in Firestore.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{base: base, provider: provider}, nil
}

// Insert creates the order document. Inserting an existing ID yields a conflict error.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order id is required")
	}

	ref, err := r.base.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, fromDomainOrder(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update overwrites the stored order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order id is required")
	}
	_, err := r.base.Set(ctx, order.ID, fromDomainOrder(order))
	return err
}

// FindByID loads the order by document ID.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc.ID, doc.Data), nil
}

// FindByNumber loads the order carrying the public order number.
func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	number := strings.TrimSpace(orderNumber)
	if number == "" {
		return domain.Order{}, errors.New("order number is required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("orderNumber", "==", number).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError("orders.find_by_number", status.Error(codes.NotFound, "order not found"))
	}
	return toDomainOrder(docs[0].ID, docs[0].Data), nil
}

// List returns a page of orders matching the filter, newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = defaultOrderPageSize
	}

	var cursor time.Time
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		parsed, err := time.Parse(time.RFC3339Nano, token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, errors.New("invalid page token")
		}
		cursor = parsed
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if len(filter.Status) == 1 {
			query = query.Where("status", "==", string(filter.Status[0]))
		} else if len(filter.Status) > 1 {
			statuses := make([]string, 0, len(filter.Status))
			for _, s := range filter.Status {
				statuses = append(statuses, string(s))
			}
			query = query.Where("status", "in", statuses)
		}
		if filter.DeliveryType != nil {
			query = query.Where("deliveryType", "==", string(*filter.DeliveryType))
		}
		if filter.DateRange.From != nil {
			query = query.Where("createdAt", ">=", *filter.DateRange.From)
		}
		if filter.DateRange.To != nil {
			query = query.Where("createdAt", "<=", *filter.DateRange.To)
		}
		query = query.OrderBy("createdAt", firestore.Desc)
		if !cursor.IsZero() {
			query = query.StartAfter(cursor)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{}
	for i, doc := range docs {
		if i == pageSize {
			page.NextPageToken = docs[i-1].Data.CreatedAt.Format(time.RFC3339Nano)
			break
		}
		page.Items = append(page.Items, toDomainOrder(doc.ID, doc.Data))
	}
	return page, nil
}

// ListBetween returns all orders created in the half-open interval [from, to), oldest first.
func (r *OrderRepository) ListBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.
			Where("createdAt", ">=", from).
			Where("createdAt", "<", to).
			OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, toDomainOrder(doc.ID, doc.Data))
	}
	return orders, nil
}

// CountByStatus tallies orders per status across the whole collection.
func (r *OrderRepository) CountByStatus(ctx context.Context) (map[domain.OrderStatus]int, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Select("status")
	})
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.OrderStatus]int)
	for _, doc := range docs {
		counts[domain.OrderStatus(doc.Data.Status)]++
	}
	return counts, nil
}

func fromDomainOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		Customer: customerDocument{
			Name:  strings.TrimSpace(order.Customer.Name),
			Email: strings.ToLower(strings.TrimSpace(order.Customer.Email)),
			Phone: strings.TrimSpace(order.Customer.Phone),
		},
		Subtotal:              order.Subtotal,
		DeliveryFee:           order.DeliveryFee,
		Total:                 order.Total,
		PaymentMethod:         string(order.PaymentMethod),
		PaymentStatus:         string(order.PaymentStatus),
		DeliveryType:          string(order.DeliveryType),
		Status:                string(order.Status),
		Notes:                 strings.TrimSpace(order.Notes),
		QRCode:                order.QRCode,
		EstimatedDeliveryTime: order.EstimatedDeliveryTime,
		DeliveredAt:           order.DeliveredAt,
		CancelledAt:           order.CancelledAt,
		CancellationReason:    strings.TrimSpace(order.CancellationReason),
		CreatedAt:             order.CreatedAt,
		UpdatedAt:             order.UpdatedAt,
	}

	if order.Customer.Address != nil {
		doc.Customer.Address = &addressDocument{
			Street:       strings.TrimSpace(order.Customer.Address.Street),
			Number:       strings.TrimSpace(order.Customer.Address.Number),
			Complement:   strings.TrimSpace(order.Customer.Address.Complement),
			Neighborhood: strings.TrimSpace(order.Customer.Address.Neighborhood),
			City:         strings.TrimSpace(order.Customer.Address.City),
			State:        strings.TrimSpace(order.Customer.Address.State),
			ZipCode:      strings.TrimSpace(order.Customer.Address.ZipCode),
		}
	}

	doc.Items = make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Subtotal:  item.Subtotal,
		})
	}

	doc.StatusHistory = make([]statusEntryDocument, 0, len(order.StatusHistory))
	for _, entry := range order.StatusHistory {
		doc.StatusHistory = append(doc.StatusHistory, statusEntryDocument{
			Status:   string(entry.Status),
			At:       entry.At,
			Actor:    entry.Actor,
			Notified: entry.Notified,
		})
	}

	return doc
}

func toDomainOrder(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:          id,
		OrderNumber: doc.OrderNumber,
		Customer: domain.Customer{
			Name:  doc.Customer.Name,
			Email: doc.Customer.Email,
			Phone: doc.Customer.Phone,
		},
		Subtotal:              doc.Subtotal,
		DeliveryFee:           doc.DeliveryFee,
		Total:                 doc.Total,
		PaymentMethod:         domain.PaymentMethod(doc.PaymentMethod),
		PaymentStatus:         domain.PaymentStatus(doc.PaymentStatus),
		DeliveryType:          domain.DeliveryType(doc.DeliveryType),
		Status:                domain.OrderStatus(doc.Status),
		Notes:                 doc.Notes,
		QRCode:                doc.QRCode,
		EstimatedDeliveryTime: doc.EstimatedDeliveryTime,
		DeliveredAt:           doc.DeliveredAt,
		CancelledAt:           doc.CancelledAt,
		CancellationReason:    doc.CancellationReason,
		CreatedAt:             doc.CreatedAt,
		UpdatedAt:             doc.UpdatedAt,
	}

	if doc.Customer.Address != nil {
		order.Customer.Address = &domain.Address{
			Street:       doc.Customer.Address.Street,
			Number:       doc.Customer.Address.Number,
			Complement:   doc.Customer.Address.Complement,
			Neighborhood: doc.Customer.Address.Neighborhood,
			City:         doc.Customer.Address.City,
			State:        doc.Customer.Address.State,
			ZipCode:      doc.Customer.Address.ZipCode,
		}
	}

	order.Items = make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Subtotal:  item.Subtotal,
		})
	}

	order.StatusHistory = make([]domain.StatusHistoryEntry, 0, len(doc.StatusHistory))
	for _, entry := range doc.StatusHistory {
		order.StatusHistory = append(order.StatusHistory, domain.StatusHistoryEntry{
			Status:   domain.OrderStatus(entry.Status),
			At:       entry.At,
			Actor:    entry.Actor,
			Notified: entry.Notified,
		})
	}

	return order
}
