package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/refugios-lanche/api/internal/domain"
	"github.com/refugios-lanche/api/internal/repositories"
)

type stubOrderRepository struct {
	mu     sync.Mutex
	stored map[string]domain.Order

	insertFn        func(ctx context.Context, order domain.Order) error
	updateFn        func(ctx context.Context, order domain.Order) error
	findByIDFn      func(ctx context.Context, orderID string) (domain.Order, error)
	findByNumberFn  func(ctx context.Context, orderNumber string) (domain.Order, error)
	listFn          func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	listBetweenFn   func(ctx context.Context, from, to time.Time) ([]domain.Order, error)
	countByStatusFn func(ctx context.Context) (map[domain.OrderStatus]int, error)
}

func newStubOrderRepository() *stubOrderRepository {
	return &stubOrderRepository{stored: make(map[string]domain.Order)}
}

func (s *stubOrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored[order.ID] = order
	return nil
}

func (s *stubOrderRepository) Update(ctx context.Context, order domain.Order) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, order)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored[order.ID] = order
	return nil
}

func (s *stubOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, orderID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.stored[orderID]
	if !ok {
		return domain.Order{}, notFoundRepoError{}
	}
	return order, nil
}

func (s *stubOrderRepository) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if s.findByNumberFn != nil {
		return s.findByNumberFn(ctx, orderNumber)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.stored {
		if order.OrderNumber == orderNumber {
			return order, nil
		}
	}
	return domain.Order{}, notFoundRepoError{}
}

func (s *stubOrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("list not stubbed")
	}
	return s.listFn(ctx, filter)
}

func (s *stubOrderRepository) ListBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error) {
	if s.listBetweenFn == nil {
		return nil, errors.New("listBetween not stubbed")
	}
	return s.listBetweenFn(ctx, from, to)
}

func (s *stubOrderRepository) CountByStatus(ctx context.Context) (map[domain.OrderStatus]int, error) {
	if s.countByStatusFn == nil {
		return nil, errors.New("countByStatus not stubbed")
	}
	return s.countByStatusFn(ctx)
}

type notFoundRepoError struct{}

func (notFoundRepoError) Error() string       { return "not found" }
func (notFoundRepoError) IsNotFound() bool    { return true }
func (notFoundRepoError) IsConflict() bool    { return false }
func (notFoundRepoError) IsUnavailable() bool { return false }

type conflictRepoError struct{}

func (conflictRepoError) Error() string       { return "already exists" }
func (conflictRepoError) IsNotFound() bool    { return false }
func (conflictRepoError) IsConflict() bool    { return true }
func (conflictRepoError) IsUnavailable() bool { return false }

type stubPricer struct {
	priceFn func(ctx context.Context, cmd PriceOrderCommand) (OrderQuote, error)
}

func (s *stubPricer) Price(ctx context.Context, cmd PriceOrderCommand) (OrderQuote, error) {
	if s.priceFn == nil {
		return OrderQuote{}, errors.New("price not stubbed")
	}
	return s.priceFn(ctx, cmd)
}

type stubCounterService struct {
	seq     int64
	nextFn  func(ctx context.Context) (string, error)
	nextSeq func() int64
}

func (s *stubCounterService) Next(context.Context, string, string, CounterGenerationOptions) (CounterValue, error) {
	return CounterValue{}, errors.New("not implemented")
}

func (s *stubCounterService) NextOrderNumber(ctx context.Context) (string, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx)
	}
	s.seq++
	return fmt.Sprintf("RFL%06d", s.seq), nil
}

type stubQRGenerator struct {
	lastContent string
	err         error
}

func (s *stubQRGenerator) DataURL(content string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.lastContent = content
	return "data:image/png;base64,qr", nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []OrderEventMessage
	err    error
}

func (p *capturingPublisher) PublishOrderEvent(_ context.Context, msg OrderEventMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, msg)
	return nil
}

func (p *capturingPublisher) byType(eventType string) []OrderEventMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []OrderEventMessage
	for _, evt := range p.events {
		if evt.EventType == eventType {
			out = append(out, evt)
		}
	}
	return out
}

type orderServiceFixture struct {
	repo      *stubOrderRepository
	pricer    *stubPricer
	counters  *stubCounterService
	qr        *stubQRGenerator
	publisher *capturingPublisher
	now       time.Time
	service   OrderService
}

func newOrderServiceFixture(t *testing.T) *orderServiceFixture {
	t.Helper()

	fixture := &orderServiceFixture{
		repo:     newStubOrderRepository(),
		counters: &stubCounterService{},
		qr:       &stubQRGenerator{},
		publisher: &capturingPublisher{},
		now:      time.Date(2026, 3, 10, 18, 30, 0, 0, time.UTC),
	}
	fixture.pricer = &stubPricer{
		priceFn: func(_ context.Context, cmd PriceOrderCommand) (OrderQuote, error) {
			items := make([]OrderItem, 0, len(cmd.Items))
			var subtotal int64
			for _, line := range cmd.Items {
				item := OrderItem{
					ProductID: line.ProductID,
					Name:      "X-Salada",
					UnitPrice: 2490,
					Quantity:  line.Quantity,
					Subtotal:  2490 * int64(line.Quantity),
				}
				subtotal += item.Subtotal
				items = append(items, item)
			}
			var fee int64
			if cmd.DeliveryType == domain.DeliveryTypeDelivery {
				fee = DeliveryFee
			}
			return OrderQuote{Items: items, Subtotal: subtotal, DeliveryFee: fee, Total: subtotal + fee}, nil
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:          fixture.repo,
		Pricer:          fixture.pricer,
		Counters:        fixture.counters,
		QRCodes:         fixture.qr,
		Events:          fixture.publisher,
		FrontendBaseURL: "https://refugioslanches.com.br",
		Clock:           func() time.Time { return fixture.now },
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	fixture.service = svc
	return fixture
}

func deliveryPlaceCommand() PlaceOrderCommand {
	return PlaceOrderCommand{
		Customer: Customer{
			Name:  "Ana Souza",
			Email: "Ana.Souza@example.com",
			Phone: "+55 11 98888-7777",
			Address: &Address{
				Street:       "Rua das Flores",
				Number:       "120",
				Neighborhood: "Centro",
				City:         "São Paulo",
				State:        "SP",
				ZipCode:      "01000-000",
			},
		},
		Items:         []PlaceOrderItem{{ProductID: "prod-burger", Quantity: 2}},
		DeliveryType:  domain.DeliveryTypeDelivery,
		PaymentMethod: domain.PaymentMethodPix,
		Notes:         "sem cebola",
	}
}

func TestPlaceOrderCreatesPendingOrder(t *testing.T) {
	fixture := newOrderServiceFixture(t)

	order, err := fixture.service.PlaceOrder(context.Background(), deliveryPlaceCommand())
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	if order.OrderNumber != "RFL000001" {
		t.Fatalf("unexpected order number %q", order.OrderNumber)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending status, got %s", order.Status)
	}
	if order.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("expected pending payment, got %s", order.PaymentStatus)
	}
	if order.Subtotal != 2*2490 || order.DeliveryFee != DeliveryFee || order.Total != 2*2490+DeliveryFee {
		t.Fatalf("unexpected totals: %+v", order)
	}
	if got := order.EstimatedDeliveryTime.Sub(fixture.now); got != 45*time.Minute {
		t.Fatalf("expected 45 minute estimate, got %s", got)
	}
	if len(order.StatusHistory) != 1 || order.StatusHistory[0].Status != domain.OrderStatusPending {
		t.Fatalf("unexpected status history: %+v", order.StatusHistory)
	}
	if order.Customer.Email != "ana.souza@example.com" {
		t.Fatalf("email was not normalised: %q", order.Customer.Email)
	}
	if order.QRCode == "" {
		t.Fatalf("expected a qr code data url")
	}
	if !strings.HasSuffix(fixture.qr.lastContent, "/pedido/RFL000001") {
		t.Fatalf("qr content should point at the tracking page, got %q", fixture.qr.lastContent)
	}

	created := fixture.publisher.byType(OrderEventCreated)
	if len(created) != 1 || created[0].OrderNumber != "RFL000001" {
		t.Fatalf("expected one created event, got %+v", created)
	}

	if _, ok := fixture.repo.stored[order.ID]; !ok {
		t.Fatalf("order was not persisted")
	}
}

func TestPlaceOrderRetriesOnNumberCollision(t *testing.T) {
	fixture := newOrderServiceFixture(t)

	var attempts int
	fixture.repo.insertFn = func(_ context.Context, order domain.Order) error {
		attempts++
		if attempts == 1 {
			return conflictRepoError{}
		}
		fixture.repo.mu.Lock()
		defer fixture.repo.mu.Unlock()
		fixture.repo.stored[order.ID] = order
		return nil
	}

	order, err := fixture.service.PlaceOrder(context.Background(), deliveryPlaceCommand())
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 insert attempts, got %d", attempts)
	}
	if order.OrderNumber != "RFL000002" {
		t.Fatalf("expected fresh number after collision, got %q", order.OrderNumber)
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	fixture := newOrderServiceFixture(t)

	cases := []struct {
		name   string
		mutate func(cmd *PlaceOrderCommand)
	}{
		{"missing name", func(cmd *PlaceOrderCommand) { cmd.Customer.Name = " " }},
		{"missing phone", func(cmd *PlaceOrderCommand) { cmd.Customer.Phone = "" }},
		{"bad email", func(cmd *PlaceOrderCommand) { cmd.Customer.Email = "not-an-email" }},
		{"no items", func(cmd *PlaceOrderCommand) { cmd.Items = nil }},
		{"bad delivery type", func(cmd *PlaceOrderCommand) { cmd.DeliveryType = "teleport" }},
		{"bad payment method", func(cmd *PlaceOrderCommand) { cmd.PaymentMethod = "barter" }},
		{"delivery without address", func(cmd *PlaceOrderCommand) { cmd.Customer.Address = nil }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := deliveryPlaceCommand()
			tc.mutate(&cmd)
			if _, err := fixture.service.PlaceOrder(context.Background(), cmd); !errors.Is(err, ErrOrderInvalidInput) {
				t.Fatalf("expected invalid input error, got %v", err)
			}
		})
	}
}

func TestPlaceOrderPickupDropsAddressAndFee(t *testing.T) {
	fixture := newOrderServiceFixture(t)

	cmd := deliveryPlaceCommand()
	cmd.DeliveryType = domain.DeliveryTypePickup

	order, err := fixture.service.PlaceOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if order.DeliveryFee != 0 {
		t.Fatalf("pickup orders must not carry a delivery fee, got %d", order.DeliveryFee)
	}
	if order.Customer.Address != nil {
		t.Fatalf("pickup orders must not retain an address")
	}
}

func placeTestOrder(t *testing.T, fixture *orderServiceFixture, deliveryType domain.DeliveryType) Order {
	t.Helper()
	cmd := deliveryPlaceCommand()
	cmd.DeliveryType = deliveryType
	order, err := fixture.service.PlaceOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	return order
}

func TestPlaceOrderSurvivesQRCodeFailure(t *testing.T) {
	fixture := newOrderServiceFixture(t)
	fixture.qr.err = errors.New("png encoder failed")

	order := placeTestOrder(t, fixture, domain.DeliveryTypeDelivery)
	if order.QRCode != "" {
		t.Fatalf("expected order without qr code, got %q", order.QRCode)
	}
	if order.OrderNumber == "" {
		t.Fatalf("expected an order number despite qr failure")
	}
	if len(fixture.repo.stored) != 1 {
		t.Fatalf("order was not persisted: %d", len(fixture.repo.stored))
	}
	if events := fixture.publisher.byType(OrderEventCreated); len(events) != 1 {
		t.Fatalf("expected one created event, got %d", len(events))
	}
}

func TestTransitionStatusWalksDeliveryLifecycle(t *testing.T) {
	fixture := newOrderServiceFixture(t)
	order := placeTestOrder(t, fixture, domain.DeliveryTypeDelivery)

	sequence := []domain.OrderStatus{
		domain.OrderStatusConfirmed,
		domain.OrderStatusPreparing,
		domain.OrderStatusReady,
		domain.OrderStatusDelivering,
		domain.OrderStatusDelivered,
	}

	for _, status := range sequence {
		updated, err := fixture.service.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
			OrderID: order.ID,
			Status:  status,
			Actor:   "admin-1",
		})
		if err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
		if updated.Status != status {
			t.Fatalf("expected %s got %s", status, updated.Status)
		}
	}

	final := fixture.repo.stored[order.ID]
	if final.DeliveredAt == nil {
		t.Fatalf("delivered orders must record DeliveredAt")
	}
	if len(final.StatusHistory) != 6 {
		t.Fatalf("expected 6 history entries, got %d", len(final.StatusHistory))
	}
	if events := fixture.publisher.byType(OrderEventStatusChanged); len(events) != 5 {
		t.Fatalf("expected 5 status events, got %d", len(events))
	}
}

func TestTransitionStatusRejectsSkipsAndBackwardMoves(t *testing.T) {
	fixture := newOrderServiceFixture(t)
	order := placeTestOrder(t, fixture, domain.DeliveryTypeDelivery)

	for _, status := range []domain.OrderStatus{domain.OrderStatusReady, domain.OrderStatusDelivered} {
		if _, err := fixture.service.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
			OrderID: order.ID,
			Status:  status,
		}); !errors.Is(err, ErrOrderInvalidState) {
			t.Fatalf("expected invalid state for pending->%s, got %v", status, err)
		}
	}

	if _, err := fixture.service.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID: order.ID,
		Status:  domain.OrderStatusConfirmed,
	}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := fixture.service.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID: order.ID,
		Status:  domain.OrderStatusPending,
	}); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state for backward move, got %v", err)
	}
}

func TestTransitionStatusPickupSkipsDelivering(t *testing.T) {
	fixture := newOrderServiceFixture(t)
	order := placeTestOrder(t, fixture, domain.DeliveryTypePickup)

	for _, status := range []domain.OrderStatus{
		domain.OrderStatusConfirmed,
		domain.OrderStatusPreparing,
		domain.OrderStatusReady,
	} {
		if _, err := fixture.service.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
			OrderID: order.ID,
			Status:  status,
		}); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}

	if _, err := fixture.service.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID: order.ID,
		Status:  domain.OrderStatusDelivering,
	}); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("pickup orders must not enter delivering, got %v", err)
	}

	updated, err := fixture.service.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID: order.ID,
		Status:  domain.OrderStatusDelivered,
	})
	if err != nil {
		t.Fatalf("ready->delivered for pickup: %v", err)
	}
	if updated.DeliveredAt == nil {
		t.Fatalf("expected DeliveredAt to be set")
	}
}

func TestTransitionStatusRejectsCancelledTarget(t *testing.T) {
	fixture := newOrderServiceFixture(t)
	order := placeTestOrder(t, fixture, domain.DeliveryTypeDelivery)

	if _, err := fixture.service.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID: order.ID,
		Status:  domain.OrderStatusCancelled,
	}); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestCancelSucceedsInAnyNonTerminalState(t *testing.T) {
	fixture := newOrderServiceFixture(t)
	order := placeTestOrder(t, fixture, domain.DeliveryTypeDelivery)

	cancelled, err := fixture.service.Cancel(context.Background(), CancelOrderCommand{
		OrderID: order.ID,
		Reason:  "pedido errado",
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if cancelled.CancelledAt == nil || cancelled.CancellationReason != "pedido errado" {
		t.Fatalf("cancellation details missing: %+v", cancelled)
	}
	if events := fixture.publisher.byType(OrderEventCancelled); len(events) != 1 {
		t.Fatalf("expected one cancelled event, got %d", len(events))
	}

	// Customers can still back out after the kitchen has started.
	second := placeTestOrder(t, fixture, domain.DeliveryTypeDelivery)
	for _, status := range []domain.OrderStatus{
		domain.OrderStatusConfirmed,
		domain.OrderStatusPreparing,
		domain.OrderStatusReady,
		domain.OrderStatusDelivering,
	} {
		if _, err := fixture.service.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
			OrderID: second.ID,
			Status:  status,
		}); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}

	cancelled, err = fixture.service.Cancel(context.Background(), CancelOrderCommand{
		OrderID: second.ID,
		Reason:  "mudei de ideia",
	})
	if err != nil {
		t.Fatalf("cancel while delivering: %v", err)
	}
	if cancelled.CancelledAt == nil {
		t.Fatalf("expected CancelledAt to be set")
	}
	last := cancelled.StatusHistory[len(cancelled.StatusHistory)-1]
	if last.Status != domain.OrderStatusCancelled || last.Actor != "customer" {
		t.Fatalf("unexpected history entry: %+v", last)
	}
}

func TestCancelRejectsTerminalOrders(t *testing.T) {
	fixture := newOrderServiceFixture(t)
	order := placeTestOrder(t, fixture, domain.DeliveryTypePickup)

	for _, status := range []domain.OrderStatus{
		domain.OrderStatusConfirmed,
		domain.OrderStatusPreparing,
		domain.OrderStatusReady,
		domain.OrderStatusDelivered,
	} {
		if _, err := fixture.service.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
			OrderID: order.ID,
			Status:  status,
		}); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}

	if _, err := fixture.service.Cancel(context.Background(), CancelOrderCommand{
		OrderID: order.ID,
		Admin:   true,
	}); !errors.Is(err, ErrOrderNotCancellable) {
		t.Fatalf("expected not cancellable for delivered order, got %v", err)
	}
}

func TestUpdatePaymentStatusAllowList(t *testing.T) {
	fixture := newOrderServiceFixture(t)
	order := placeTestOrder(t, fixture, domain.DeliveryTypeDelivery)

	updated, err := fixture.service.UpdatePaymentStatus(context.Background(), UpdatePaymentStatusCommand{
		OrderID: order.ID,
		Status:  domain.PaymentStatusPaid,
	})
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if updated.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected paid, got %s", updated.PaymentStatus)
	}

	if _, err := fixture.service.UpdatePaymentStatus(context.Background(), UpdatePaymentStatusCommand{
		OrderID: order.ID,
		Status:  domain.PaymentStatusFailed,
	}); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state for paid->failed, got %v", err)
	}

	if _, err := fixture.service.UpdatePaymentStatus(context.Background(), UpdatePaymentStatusCommand{
		OrderID: order.ID,
		Status:  domain.PaymentStatusRefunded,
	}); err != nil {
		t.Fatalf("refund: %v", err)
	}
}

func TestGetOrderByNumberNormalisesInput(t *testing.T) {
	fixture := newOrderServiceFixture(t)
	order := placeTestOrder(t, fixture, domain.DeliveryTypeDelivery)

	found, err := fixture.service.GetOrderByNumber(context.Background(), "  rfl000001 ")
	if err != nil {
		t.Fatalf("get by number: %v", err)
	}
	if found.ID != order.ID {
		t.Fatalf("expected order %s, got %s", order.ID, found.ID)
	}

	if _, err := fixture.service.GetOrderByNumber(context.Background(), "RFL999999"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListOrdersValidatesFilter(t *testing.T) {
	fixture := newOrderServiceFixture(t)
	fixture.repo.listFn = func(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
		return domain.CursorPage[domain.Order]{}, nil
	}

	if _, err := fixture.service.ListOrders(context.Background(), OrderListFilter{
		Status: []domain.OrderStatus{"bogus"},
	}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	if _, err := fixture.service.ListOrders(context.Background(), OrderListFilter{
		Status: []domain.OrderStatus{domain.OrderStatusPending},
	}); err != nil {
		t.Fatalf("list: %v", err)
	}
}
