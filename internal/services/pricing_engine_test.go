package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/refugios-lanche/api/internal/domain"
	"github.com/refugios-lanche/api/internal/repositories"
)

type stubProductRepository struct {
	insertFn    func(ctx context.Context, product domain.Product) error
	updateFn    func(ctx context.Context, product domain.Product) error
	deleteFn    func(ctx context.Context, productID string) error
	findByIDFn  func(ctx context.Context, productID string) (domain.Product, error)
	findByIDsFn func(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	listFn      func(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error)
}

func (s *stubProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if s.insertFn == nil {
		return errors.New("insert not stubbed")
	}
	return s.insertFn(ctx, product)
}

func (s *stubProductRepository) Update(ctx context.Context, product domain.Product) error {
	if s.updateFn == nil {
		return errors.New("update not stubbed")
	}
	return s.updateFn(ctx, product)
}

func (s *stubProductRepository) Delete(ctx context.Context, productID string) error {
	if s.deleteFn == nil {
		return errors.New("delete not stubbed")
	}
	return s.deleteFn(ctx, productID)
}

func (s *stubProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if s.findByIDFn == nil {
		return domain.Product{}, errors.New("findByID not stubbed")
	}
	return s.findByIDFn(ctx, productID)
}

func (s *stubProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if s.findByIDsFn == nil {
		return nil, errors.New("findByIDs not stubbed")
	}
	return s.findByIDsFn(ctx, productIDs)
}

func (s *stubProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if s.listFn == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("list not stubbed")
	}
	return s.listFn(ctx, filter)
}

func cheeseburgerCatalog() map[string]domain.Product {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return map[string]domain.Product{
		"prod-burger": {
			ID:        "prod-burger",
			Name:      "X-Salada",
			Price:     2490,
			Category:  domain.CategoryLanches,
			Available: true,
			CreatedAt: now,
			UpdatedAt: now,
		},
		"prod-soda": {
			ID:        "prod-soda",
			Name:      "Guaraná Lata",
			Price:     600,
			Category:  domain.CategoryBebidas,
			Available: true,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

func newTestPricingEngine(t *testing.T, catalog map[string]domain.Product) *OrderPricingEngine {
	t.Helper()
	repo := &stubProductRepository{
		findByIDsFn: func(_ context.Context, _ []string) (map[string]domain.Product, error) {
			return catalog, nil
		},
	}
	engine, err := NewOrderPricingEngine(OrderPricingEngineDeps{Products: repo})
	if err != nil {
		t.Fatalf("new pricing engine: %v", err)
	}
	return engine
}

func TestPricingEngineChargesDeliveryFeeOnlyForDelivery(t *testing.T) {
	engine := newTestPricingEngine(t, cheeseburgerCatalog())

	cmd := PriceOrderCommand{
		Items: []PlaceOrderItem{
			{ProductID: "prod-burger", Quantity: 2},
			{ProductID: "prod-soda", Quantity: 1},
		},
		DeliveryType: domain.DeliveryTypeDelivery,
	}

	quote, err := engine.Price(context.Background(), cmd)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if quote.Subtotal != 2*2490+600 {
		t.Fatalf("unexpected subtotal %d", quote.Subtotal)
	}
	if quote.DeliveryFee != DeliveryFee {
		t.Fatalf("expected delivery fee %d, got %d", DeliveryFee, quote.DeliveryFee)
	}
	if quote.Total != quote.Subtotal+DeliveryFee {
		t.Fatalf("unexpected total %d", quote.Total)
	}

	for _, deliveryType := range []domain.DeliveryType{domain.DeliveryTypePickup, domain.DeliveryTypeDineIn} {
		cmd.DeliveryType = deliveryType
		quote, err := engine.Price(context.Background(), cmd)
		if err != nil {
			t.Fatalf("price %s: %v", deliveryType, err)
		}
		if quote.DeliveryFee != 0 {
			t.Fatalf("expected no fee for %s, got %d", deliveryType, quote.DeliveryFee)
		}
		if quote.Total != quote.Subtotal {
			t.Fatalf("total should equal subtotal for %s", deliveryType)
		}
	}
}

func TestPricingEngineSnapshotsCatalogValues(t *testing.T) {
	engine := newTestPricingEngine(t, cheeseburgerCatalog())

	quote, err := engine.Price(context.Background(), PriceOrderCommand{
		Items:        []PlaceOrderItem{{ProductID: "prod-burger", Quantity: 3}},
		DeliveryType: domain.DeliveryTypePickup,
	})
	if err != nil {
		t.Fatalf("price: %v", err)
	}

	if len(quote.Items) != 1 {
		t.Fatalf("expected one line, got %d", len(quote.Items))
	}
	line := quote.Items[0]
	if line.Name != "X-Salada" || line.UnitPrice != 2490 {
		t.Fatalf("line did not snapshot catalog values: %+v", line)
	}
	if line.Subtotal != 3*2490 {
		t.Fatalf("unexpected line subtotal %d", line.Subtotal)
	}
}

func TestPricingEngineRejectsUnknownProduct(t *testing.T) {
	engine := newTestPricingEngine(t, cheeseburgerCatalog())

	_, err := engine.Price(context.Background(), PriceOrderCommand{
		Items:        []PlaceOrderItem{{ProductID: "prod-ghost", Quantity: 1}},
		DeliveryType: domain.DeliveryTypePickup,
	})
	if !errors.Is(err, ErrPricingUnknownProduct) {
		t.Fatalf("expected unknown product error, got %v", err)
	}
}

func TestPricingEngineRejectsUnavailableProduct(t *testing.T) {
	catalog := cheeseburgerCatalog()
	burger := catalog["prod-burger"]
	burger.Available = false
	catalog["prod-burger"] = burger

	engine := newTestPricingEngine(t, catalog)

	_, err := engine.Price(context.Background(), PriceOrderCommand{
		Items:        []PlaceOrderItem{{ProductID: "prod-burger", Quantity: 1}},
		DeliveryType: domain.DeliveryTypeDelivery,
	})
	if !errors.Is(err, ErrPricingProductUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestPricingEngineValidatesLines(t *testing.T) {
	engine := newTestPricingEngine(t, cheeseburgerCatalog())

	cases := []struct {
		name string
		cmd  PriceOrderCommand
	}{
		{name: "empty order", cmd: PriceOrderCommand{DeliveryType: domain.DeliveryTypePickup}},
		{name: "zero quantity", cmd: PriceOrderCommand{
			Items:        []PlaceOrderItem{{ProductID: "prod-burger", Quantity: 0}},
			DeliveryType: domain.DeliveryTypePickup,
		}},
		{name: "blank product id", cmd: PriceOrderCommand{
			Items:        []PlaceOrderItem{{ProductID: "  ", Quantity: 1}},
			DeliveryType: domain.DeliveryTypePickup,
		}},
		{name: "duplicate line", cmd: PriceOrderCommand{
			Items: []PlaceOrderItem{
				{ProductID: "prod-burger", Quantity: 1},
				{ProductID: "prod-burger", Quantity: 2},
			},
			DeliveryType: domain.DeliveryTypePickup,
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := engine.Price(context.Background(), tc.cmd); !errors.Is(err, ErrPricingInvalidInput) {
				t.Fatalf("expected invalid input error, got %v", err)
			}
		})
	}
}
