package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	domain "github.com/refugios-lanche/api/internal/domain"
	"github.com/refugios-lanche/api/internal/repositories"
)

var (
	// ErrPricingInvalidInput signals bad request data such as missing items or non-positive quantities.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrPricingUnknownProduct is returned when a referenced product does not exist in the catalog.
	ErrPricingUnknownProduct = errors.New("pricing: unknown product")
	// ErrPricingProductUnavailable is returned when a referenced product is currently off the menu.
	ErrPricingProductUnavailable = errors.New("pricing: product unavailable")
)

// DeliveryFee is the flat fee, in centavos, charged on delivery orders.
// Pickup and dine-in orders carry no fee.
const DeliveryFee int64 = 500

// OrderPricingEngine prices order lines against the live catalog, snapshotting
// each product's name and unit price so later menu edits never alter the order.
type OrderPricingEngine struct {
	products repositories.ProductRepository
	logger   func(context.Context, string, map[string]any)
	now      func() time.Time
}

// OrderPricingEngineDeps bundles collaborators required to construct a pricing engine.
type OrderPricingEngineDeps struct {
	Products repositories.ProductRepository
	Logger   func(context.Context, string, map[string]any)
	Now      func() time.Time
}

var _ OrderPricer = (*OrderPricingEngine)(nil)

// NewOrderPricingEngine constructs the pricing engine.
func NewOrderPricingEngine(deps OrderPricingEngineDeps) (*OrderPricingEngine, error) {
	if deps.Products == nil {
		return nil, errors.New("pricing engine: product repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &OrderPricingEngine{
		products: deps.Products,
		logger:   logger,
		now:      func() time.Time { return now().UTC() },
	}, nil
}

// Price resolves each line against the catalog and computes the order totals.
func (e *OrderPricingEngine) Price(ctx context.Context, cmd PriceOrderCommand) (OrderQuote, error) {
	if err := e.validateInput(cmd); err != nil {
		return OrderQuote{}, err
	}

	ids := make([]string, 0, len(cmd.Items))
	for _, line := range cmd.Items {
		ids = append(ids, strings.TrimSpace(line.ProductID))
	}

	catalog, err := e.products.FindByIDs(ctx, ids)
	if err != nil {
		return OrderQuote{}, err
	}

	items := make([]OrderItem, 0, len(cmd.Items))
	var subtotal int64
	for _, line := range cmd.Items {
		id := strings.TrimSpace(line.ProductID)
		product, ok := catalog[id]
		if !ok {
			return OrderQuote{}, fmt.Errorf("%w: %s", ErrPricingUnknownProduct, id)
		}
		if !product.Available {
			return OrderQuote{}, fmt.Errorf("%w: %s", ErrPricingProductUnavailable, product.Name)
		}

		quantity := int64(line.Quantity)
		if product.Price > 0 && product.Price > math.MaxInt64/quantity {
			return OrderQuote{}, fmt.Errorf("%w: line subtotal overflow for product %s", ErrPricingInvalidInput, id)
		}
		lineSubtotal := product.Price * quantity
		if subtotal > math.MaxInt64-lineSubtotal {
			return OrderQuote{}, fmt.Errorf("%w: order subtotal overflow", ErrPricingInvalidInput)
		}
		subtotal += lineSubtotal

		items = append(items, OrderItem{
			ProductID: id,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  line.Quantity,
			Subtotal:  lineSubtotal,
		})
	}

	var fee int64
	if cmd.DeliveryType == domain.DeliveryTypeDelivery {
		fee = DeliveryFee
	}

	quote := OrderQuote{
		Items:       items,
		Subtotal:    subtotal,
		DeliveryFee: fee,
		Total:       subtotal + fee,
	}

	e.logger(ctx, "order_priced", map[string]any{
		"lines":       len(items),
		"subtotal":    quote.Subtotal,
		"deliveryFee": quote.DeliveryFee,
		"total":       quote.Total,
	})

	return quote, nil
}

func (e *OrderPricingEngine) validateInput(cmd PriceOrderCommand) error {
	if len(cmd.Items) == 0 {
		return fmt.Errorf("%w: order requires at least one item", ErrPricingInvalidInput)
	}
	seen := make(map[string]struct{}, len(cmd.Items))
	for _, line := range cmd.Items {
		id := strings.TrimSpace(line.ProductID)
		if id == "" {
			return fmt.Errorf("%w: item product id is required", ErrPricingInvalidInput)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: item %s quantity must be positive", ErrPricingInvalidInput, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate line for product %s", ErrPricingInvalidInput, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
