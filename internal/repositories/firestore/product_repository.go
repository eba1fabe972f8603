package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/refugios-lanche/api/internal/domain"
	pfirestore "github.com/refugios-lanche/api/internal/platform/firestore"
	"github.com/refugios-lanche/api/internal/repositories"
)

const productsCollection = "products"

const defaultProductPageSize = 50

type productDocument struct {
	Name            string    `firestore:"name"`
	Description     string    `firestore:"description"`
	Price           int64     `firestore:"price"`
	Category        string    `firestore:"category"`
	Image           string    `firestore:"image,omitempty"`
	Available       bool      `firestore:"available"`
	PreparationTime int       `firestore:"preparationTime"`
	CreatedAt       time.Time `firestore:"createdAt"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

// ProductRepository persists the menu catalog in Firestore.
type ProductRepository struct {
	base     *pfirestore.BaseRepository[productDocument]
	provider *pfirestore.Provider
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &ProductRepository{base: base, provider: provider}, nil
}

// Insert stores a new product under its pre-assigned ID.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product id is required")
	}
	_, err := r.base.Set(ctx, product.ID, fromDomainProduct(product))
	return err
}

// Update overwrites the stored product document.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product id is required")
	}
	_, err := r.base.Set(ctx, product.ID, fromDomainProduct(product))
	return err
}

// Delete removes the product from the catalog.
func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	return r.base.Delete(ctx, productID)
}

// FindByID loads a product by ID.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return toDomainProduct(doc.ID, doc.Data), nil
}

// FindByIDs loads the requested products keyed by ID. Missing IDs are simply absent from the result.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("product repository not initialised")
	}

	out := make(map[string]domain.Product, len(productIDs))
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := out[id]; ok {
			continue
		}
		doc, err := r.base.Get(ctx, id)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				continue
			}
			return nil, err
		}
		out[id] = toDomainProduct(doc.ID, doc.Data)
	}
	return out, nil
}

// List returns a page of products matching the filter, ordered by document ID for stable cursors.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = defaultProductPageSize
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if filter.Category != nil {
			query = query.Where("category", "==", string(*filter.Category))
		}
		if filter.OnlyAvailable {
			query = query.Where("available", "==", true)
		}
		query = query.OrderBy(firestore.DocumentID, firestore.Asc)
		if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
			query = query.StartAfter(token)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	page := domain.CursorPage[domain.Product]{}
	for i, doc := range docs {
		if i == pageSize {
			page.NextPageToken = docs[i-1].ID
			break
		}
		page.Items = append(page.Items, toDomainProduct(doc.ID, doc.Data))
	}
	return page, nil
}

func fromDomainProduct(product domain.Product) productDocument {
	return productDocument{
		Name:            strings.TrimSpace(product.Name),
		Description:     strings.TrimSpace(product.Description),
		Price:           product.Price,
		Category:        string(product.Category),
		Image:           strings.TrimSpace(product.Image),
		Available:       product.Available,
		PreparationTime: product.PreparationTime,
		CreatedAt:       product.CreatedAt,
		UpdatedAt:       product.UpdatedAt,
	}
}

func toDomainProduct(id string, doc productDocument) domain.Product {
	return domain.Product{
		ID:              id,
		Name:            doc.Name,
		Description:     doc.Description,
		Price:           doc.Price,
		Category:        domain.ProductCategory(doc.Category),
		Image:           doc.Image,
		Available:       doc.Available,
		PreparationTime: doc.PreparationTime,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}
