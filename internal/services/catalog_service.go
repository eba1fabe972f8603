package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	domain "github.com/refugios-lanche/api/internal/domain"
	"github.com/refugios-lanche/api/internal/repositories"
)

const productIDPrefix = "prd_"

// Preparation time bounds in minutes.
const (
	minPreparationTime     = 5
	defaultPreparationTime = 15
)

var (
	// ErrCatalogInvalidInput signals the caller provided invalid product data.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the product could not be located.
	ErrCatalogNotFound = errors.New("catalog: product not found")
)

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products repositories.ProductRepository
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
	policy   *bluemonday.Policy
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
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

	return &catalogService{
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
		policy: bluemonday.StrictPolicy(),
	}, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	name := s.sanitize(cmd.Name)
	if name == "" {
		return Product{}, fmt.Errorf("%w: product name is required", ErrCatalogInvalidInput)
	}
	if cmd.Price <= 0 {
		return Product{}, fmt.Errorf("%w: price must be positive", ErrCatalogInvalidInput)
	}
	if !domain.ValidCategory(cmd.Category) {
		return Product{}, fmt.Errorf("%w: unknown category %q", ErrCatalogInvalidInput, cmd.Category)
	}
	preparationTime := cmd.PreparationTime
	if preparationTime == 0 {
		preparationTime = defaultPreparationTime
	}
	if preparationTime < minPreparationTime {
		return Product{}, fmt.Errorf("%w: preparation time must be at least %d minutes", ErrCatalogInvalidInput, minPreparationTime)
	}

	now := s.clock()
	available := true
	if cmd.Available != nil {
		available = *cmd.Available
	}

	product := Product{
		ID:              productIDPrefix + s.newID(),
		Name:            name,
		Description:     s.sanitize(cmd.Description),
		Price:           cmd.Price,
		Category:        cmd.Category,
		Image:           strings.TrimSpace(cmd.Image),
		Available:       available,
		PreparationTime: preparationTime,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "catalog.product.created", map[string]any{
		"productId": product.ID,
		"category":  string(product.Category),
	})

	return product, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error) {
	if filter.Category != nil && !domain.ValidCategory(*filter.Category) {
		return domain.CursorPage[Product]{}, fmt.Errorf("%w: unknown category %q", ErrCatalogInvalidInput, *filter.Category)
	}

	page, err := s.products.List(ctx, repositories.ProductListFilter{
		Category:      filter.Category,
		OnlyAvailable: filter.OnlyAvailable,
		Pagination:    filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Product]{}, s.mapRepositoryError(err)
	}

	if search := s.foldString(filter.Search); search != "" {
		filtered := page.Items[:0:0]
		for _, product := range page.Items {
			if strings.Contains(s.foldString(product.Name), search) ||
				strings.Contains(s.foldString(product.Description), search) {
				filtered = append(filtered, product)
			}
		}
		page.Items = filtered
	}

	return page, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}

	if cmd.Name != nil {
		name := s.sanitize(*cmd.Name)
		if name == "" {
			return Product{}, fmt.Errorf("%w: product name cannot be blank", ErrCatalogInvalidInput)
		}
		product.Name = name
	}
	if cmd.Description != nil {
		product.Description = s.sanitize(*cmd.Description)
	}
	if cmd.Price != nil {
		if *cmd.Price <= 0 {
			return Product{}, fmt.Errorf("%w: price must be positive", ErrCatalogInvalidInput)
		}
		product.Price = *cmd.Price
	}
	if cmd.Category != nil {
		if !domain.ValidCategory(*cmd.Category) {
			return Product{}, fmt.Errorf("%w: unknown category %q", ErrCatalogInvalidInput, *cmd.Category)
		}
		product.Category = *cmd.Category
	}
	if cmd.Image != nil {
		product.Image = strings.TrimSpace(*cmd.Image)
	}
	if cmd.Available != nil {
		product.Available = *cmd.Available
	}
	if cmd.PreparationTime != nil {
		if *cmd.PreparationTime < minPreparationTime {
			return Product{}, fmt.Errorf("%w: preparation time must be at least %d minutes", ErrCatalogInvalidInput, minPreparationTime)
		}
		product.PreparationTime = *cmd.PreparationTime
	}

	product.UpdatedAt = s.clock()

	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) SetAvailability(ctx context.Context, productID string, available bool) (Product, error) {
	return s.UpdateProduct(ctx, UpdateProductCommand{
		ProductID: productID,
		Available: &available,
	})
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if err := s.products.Delete(ctx, productID); err != nil {
		return s.mapRepositoryError(err)
	}
	s.logger(ctx, "catalog.product.deleted", map[string]any{"productId": productID})
	return nil
}

// sanitize strips markup from free-text fields before they reach storage.
func (s *catalogService) sanitize(value string) string {
	return strings.TrimSpace(s.policy.Sanitize(value))
}

// foldString lowercases the value and strips combining marks so that
// "Guaraná" and "guarana" produce the same search key.
func (s *catalogService) foldString(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, value)
	if err != nil {
		return value
	}
	return folded
}

func (s *catalogService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
	}
	return err
}
