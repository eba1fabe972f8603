package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2"
	"github.com/oklog/ulid/v2"

	domain "github.com/refugios-lanche/api/internal/domain"
	"github.com/refugios-lanche/api/internal/repositories"
)

const (
	orderIDPrefix = "ord_"

	// estimatedPrepWindow is the fixed delivery/pickup estimate communicated
	// to the customer at placement time.
	estimatedPrepWindow = 45 * time.Minute

	// orderNumberInsertAttempts bounds retries when an order number collides
	// with a concurrently placed order.
	orderNumberInsertAttempts = 3
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderUnknownProduct marks a line item referencing a product id that does not exist.
	ErrOrderUnknownProduct = errors.New("order: unknown product")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates duplicate inserts or concurrent updates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderNotCancellable indicates the order can no longer be cancelled by the caller.
	ErrOrderNotCancellable = errors.New("order: not cancellable")
)

// orderStateTransitions is the lifecycle allow-list. Cancellation is handled
// separately so it can enforce actor rules and capture a reason.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusConfirmed},
	domain.OrderStatusConfirmed:  {domain.OrderStatusPreparing},
	domain.OrderStatusPreparing:  {domain.OrderStatusReady},
	domain.OrderStatusReady:      {domain.OrderStatusDelivering, domain.OrderStatusDelivered},
	domain.OrderStatusDelivering: {domain.OrderStatusDelivered},
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders          repositories.OrderRepository
	Pricer          OrderPricer
	Counters        CounterService
	QRCodes         QRCodeGenerator
	UnitOfWork      repositories.UnitOfWork
	Events          OrderEventPublisher
	FrontendBaseURL string
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders      repositories.OrderRepository
	pricer      OrderPricer
	counters    CounterService
	qrCodes     QRCodeGenerator
	unitOfWork  repositories.UnitOfWork
	events      OrderEventPublisher
	frontendURL string
	clock       func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Pricer == nil {
		return nil, errors.New("order service: pricer is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter service is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:      deps.Orders,
		pricer:      deps.Pricer,
		counters:    deps.Counters,
		qrCodes:     deps.QRCodes,
		unitOfWork:  unit,
		events:      deps.Events,
		frontendURL: strings.TrimRight(strings.TrimSpace(deps.FrontendBaseURL), "/"),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	if err := validatePlaceOrder(cmd); err != nil {
		return Order{}, err
	}

	quote, err := s.pricer.Price(ctx, PriceOrderCommand{Items: cmd.Items, DeliveryType: cmd.DeliveryType})
	if err != nil {
		return Order{}, mapPricingError(err)
	}

	now := s.now()

	order := Order{
		ID:                    orderIDPrefix + s.newID(),
		Customer:              normaliseCustomer(cmd.Customer, cmd.DeliveryType),
		Items:                 quote.Items,
		Subtotal:              quote.Subtotal,
		DeliveryFee:           quote.DeliveryFee,
		Total:                 quote.Total,
		DeliveryType:          cmd.DeliveryType,
		PaymentMethod:         cmd.PaymentMethod,
		PaymentStatus:         domain.PaymentStatusPending,
		Status:                domain.OrderStatusPending,
		Notes:                 strings.TrimSpace(cmd.Notes),
		EstimatedDeliveryTime: now.Add(estimatedPrepWindow),
		StatusHistory: []StatusHistoryEntry{{
			Status: domain.OrderStatusPending,
			At:     now,
			Actor:  "customer",
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Order numbers come from a shared counter; a rare collision with a
	// concurrent insert surfaces as a conflict and is retried with a fresh
	// number.
	backoff := gax.Backoff{Initial: 50 * time.Millisecond, Max: time.Second, Multiplier: 2}
	for attempt := 1; ; attempt++ {
		number, err := s.counters.NextOrderNumber(ctx)
		if err != nil {
			return Order{}, err
		}
		order.OrderNumber = number

		// The tracking code is a convenience; a render failure must not block checkout.
		if s.qrCodes != nil {
			qr, err := s.qrCodes.DataURL(s.trackingURL(number))
			if err != nil {
				s.logger(ctx, "order.qrcode.failed", map[string]any{
					"orderNumber": number,
					"error":       err.Error(),
				})
				qr = ""
			}
			order.QRCode = qr
		}

		insertErr := s.runInTx(ctx, func(txCtx context.Context) error {
			return s.mapRepositoryError(s.orders.Insert(txCtx, order))
		})
		if insertErr == nil {
			break
		}
		if !errors.Is(insertErr, ErrOrderConflict) || attempt >= orderNumberInsertAttempts {
			return Order{}, insertErr
		}
		s.logger(ctx, "order.number.collision", map[string]any{
			"orderNumber": order.OrderNumber,
			"attempt":     attempt,
		})
		if err := gax.Sleep(ctx, backoff.Pause()); err != nil {
			return Order{}, err
		}
	}

	s.publishEvent(ctx, OrderEventMessage{
		EventType:   OrderEventCreated,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		OccurredAt:  now,
	})

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) GetOrderByNumber(ctx context.Context, orderNumber string) (Order, error) {
	orderNumber = strings.ToUpper(strings.TrimSpace(orderNumber))
	if orderNumber == "" {
		return Order{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByNumber(ctx, orderNumber)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	for _, status := range filter.Status {
		if !domain.ValidOrderStatus(status) {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
		}
	}
	if filter.DeliveryType != nil && !domain.ValidDeliveryType(*filter.DeliveryType) {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown delivery type %q", ErrOrderInvalidInput, *filter.DeliveryType)
	}

	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		Status:       filter.Status,
		DeliveryType: filter.DeliveryType,
		DateRange:    domain.RangeQuery[time.Time]{From: filter.From, To: filter.To},
		Pagination:   filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !domain.ValidOrderStatus(cmd.Status) {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}
	if cmd.Status == domain.OrderStatusCancelled {
		return Order{}, fmt.Errorf("%w: cancellation goes through the cancel operation", ErrOrderInvalidState)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if order.Status == cmd.Status {
		return order, nil
	}
	if !canTransition(order.Status, cmd.Status) {
		return Order{}, fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, order.Status, cmd.Status)
	}
	if cmd.Status == domain.OrderStatusDelivering && order.DeliveryType != domain.DeliveryTypeDelivery {
		return Order{}, fmt.Errorf("%w: %s orders are never out for delivery", ErrOrderInvalidState, order.DeliveryType)
	}

	now := s.now()
	order.Status = cmd.Status
	order.UpdatedAt = now
	if cmd.Status == domain.OrderStatusDelivered {
		order.DeliveredAt = &now
	}
	order.StatusHistory = append(order.StatusHistory, StatusHistoryEntry{
		Status: cmd.Status,
		At:     now,
		Actor:  strings.TrimSpace(cmd.Actor),
	})

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		return s.mapRepositoryError(s.orders.Update(txCtx, order))
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEventMessage{
		EventType:   OrderEventStatusChanged,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		OccurredAt:  now,
	})

	return order, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if order.Terminal() {
		return Order{}, fmt.Errorf("%w: order already %s", ErrOrderNotCancellable, order.Status)
	}

	now := s.now()
	actor := strings.TrimSpace(cmd.Actor)
	if actor == "" {
		if cmd.Admin {
			actor = "admin"
		} else {
			actor = "customer"
		}
	}

	order.Status = domain.OrderStatusCancelled
	order.CancelledAt = &now
	order.CancellationReason = strings.TrimSpace(cmd.Reason)
	order.UpdatedAt = now
	order.StatusHistory = append(order.StatusHistory, StatusHistoryEntry{
		Status: domain.OrderStatusCancelled,
		At:     now,
		Actor:  actor,
	})

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		return s.mapRepositoryError(s.orders.Update(txCtx, order))
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEventMessage{
		EventType:   OrderEventCancelled,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		OccurredAt:  now,
	})

	return order, nil
}

// paymentStatusTransitions is the settlement allow-list.
var paymentStatusTransitions = map[domain.PaymentStatus][]domain.PaymentStatus{
	domain.PaymentStatusPending: {domain.PaymentStatusPaid, domain.PaymentStatusFailed},
	domain.PaymentStatusPaid:    {domain.PaymentStatusRefunded},
	domain.PaymentStatusFailed:  {domain.PaymentStatusPending},
}

func (s *orderService) UpdatePaymentStatus(ctx context.Context, cmd UpdatePaymentStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !domain.ValidPaymentStatus(cmd.Status) {
		return Order{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, cmd.Status)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if order.PaymentStatus == cmd.Status {
		return order, nil
	}
	if !slices.Contains(paymentStatusTransitions[order.PaymentStatus], cmd.Status) {
		return Order{}, fmt.Errorf("%w: payment %s to %s", ErrOrderInvalidState, order.PaymentStatus, cmd.Status)
	}

	now := s.now()
	order.PaymentStatus = cmd.Status
	order.UpdatedAt = now

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		return s.mapRepositoryError(s.orders.Update(txCtx, order))
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEventMessage{
		EventType:   OrderEventPaymentUpdate,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		OccurredAt:  now,
	})

	return order, nil
}

func (s *orderService) trackingURL(orderNumber string) string {
	if s.frontendURL == "" {
		return "/pedido/" + orderNumber
	}
	return s.frontendURL + "/pedido/" + orderNumber
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, msg OrderEventMessage) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, msg); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   msg.EventType,
			"order":  msg.OrderID,
			"status": msg.Status,
			"error":  err.Error(),
		})
	}
}

func validatePlaceOrder(cmd PlaceOrderCommand) error {
	if !domain.ValidDeliveryType(cmd.DeliveryType) {
		return fmt.Errorf("%w: unknown delivery type %q", ErrOrderInvalidInput, cmd.DeliveryType)
	}
	if !domain.ValidPaymentMethod(cmd.PaymentMethod) {
		return fmt.Errorf("%w: unknown payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}
	if len(cmd.Items) == 0 {
		return fmt.Errorf("%w: order requires at least one item", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.Customer.Name) == "" {
		return fmt.Errorf("%w: customer name is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.Customer.Phone) == "" {
		return fmt.Errorf("%w: customer phone is required", ErrOrderInvalidInput)
	}
	if email := strings.TrimSpace(cmd.Customer.Email); email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return fmt.Errorf("%w: invalid customer email", ErrOrderInvalidInput)
		}
	}
	if cmd.DeliveryType == domain.DeliveryTypeDelivery {
		addr := cmd.Customer.Address
		if addr == nil || strings.TrimSpace(addr.Street) == "" || strings.TrimSpace(addr.Number) == "" {
			return fmt.Errorf("%w: delivery orders require a street address", ErrOrderInvalidInput)
		}
	}
	return nil
}

func normaliseCustomer(customer Customer, deliveryType DeliveryType) Customer {
	customer.Name = strings.TrimSpace(customer.Name)
	customer.Email = strings.ToLower(strings.TrimSpace(customer.Email))
	customer.Phone = strings.TrimSpace(customer.Phone)
	if deliveryType != domain.DeliveryTypeDelivery {
		customer.Address = nil
	} else if customer.Address != nil {
		addr := *customer.Address
		customer.Address = &addr
	}
	return customer
}

func mapPricingError(err error) error {
	switch {
	case errors.Is(err, ErrPricingUnknownProduct):
		return fmt.Errorf("%w: %v", ErrOrderUnknownProduct, err)
	case errors.Is(err, ErrPricingInvalidInput),
		errors.Is(err, ErrPricingProductUnavailable):
		return fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}
	return err
}

func canTransition(current, target domain.OrderStatus) bool {
	if current == target {
		return true
	}
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
