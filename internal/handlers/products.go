package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/refugios-lanche/api/internal/domain"
	"github.com/refugios-lanche/api/internal/platform/auth"
	"github.com/refugios-lanche/api/internal/platform/httpx"
	"github.com/refugios-lanche/api/internal/services"
)

const (
	defaultProductPageSize = 50
	maxProductPageSize     = 200
	maxProductBodySize     = 32 * 1024
)

// ProductHandlers exposes the public menu and the admin catalog endpoints.
type ProductHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

// NewProductHandlers constructs a new ProductHandlers instance.
func NewProductHandlers(authn *auth.Authenticator, catalog services.CatalogService) *ProductHandlers {
	return &ProductHandlers{authn: authn, catalog: catalog}
}

// Routes registers the /products endpoints. Reading the menu is public;
// catalog mutations require an admin token.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	r.Get("/", h.listProducts)
	r.Get("/{productID}", h.getProduct)

	r.Group(func(admin chi.Router) {
		if h.authn != nil {
			admin.Use(h.authn.RequireAdmin())
		}
		admin.Post("/", h.createProduct)
		admin.Put("/{productID}", h.updateProduct)
		admin.Put("/{productID}/availability", h.setAvailability)
		admin.Delete("/{productID}", h.deleteProduct)
	})
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	filter := services.ProductListFilter{
		Search: strings.TrimSpace(query.Get("search")),
	}
	if raw := strings.ToLower(strings.TrimSpace(query.Get("category"))); raw != "" {
		category := domain.ProductCategory(raw)
		filter.Category = &category
	}
	if raw := strings.ToLower(strings.TrimSpace(query.Get("available"))); raw == "true" || raw == "1" {
		filter.OnlyAvailable = true
	}

	pagination, err := parsePagination(r, defaultProductPageSize, maxProductPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	filter.Pagination = pagination

	page, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildProductPayload(product))
	}

	writeJSONResponse(w, http.StatusOK, productListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

type createProductRequest struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	Price           int64  `json:"price"`
	Category        string `json:"category"`
	Image           string `json:"image"`
	Available       *bool  `json:"available"`
	PreparationTime int    `json:"preparation_time"`
}

func (h *ProductHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxProductBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createProductRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.CreateProduct(ctx, services.CreateProductCommand{
		Name:            req.Name,
		Description:     req.Description,
		Price:           req.Price,
		Category:        domain.ProductCategory(strings.ToLower(strings.TrimSpace(req.Category))),
		Image:           strings.TrimSpace(req.Image),
		Available:       req.Available,
		PreparationTime: req.PreparationTime,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, productResponse{Product: buildProductPayload(product)})
}

type updateProductRequest struct {
	Name            *string `json:"name"`
	Description     *string `json:"description"`
	Price           *int64  `json:"price"`
	Category        *string `json:"category"`
	Image           *string `json:"image"`
	Available       *bool   `json:"available"`
	PreparationTime *int    `json:"preparation_time"`
}

func (h *ProductHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxProductBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req updateProductRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.UpdateProductCommand{
		ProductID:       productID,
		Name:            req.Name,
		Description:     req.Description,
		Price:           req.Price,
		Image:           req.Image,
		Available:       req.Available,
		PreparationTime: req.PreparationTime,
	}
	if req.Category != nil {
		category := domain.ProductCategory(strings.ToLower(strings.TrimSpace(*req.Category)))
		cmd.Category = &category
	}

	product, err := h.catalog.UpdateProduct(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

type setAvailabilityRequest struct {
	Available *bool `json:"available"`
}

func (h *ProductHandlers) setAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxProductBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req setAvailabilityRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}
	if req.Available == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "available is required", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.SetAvailability(ctx, productID, *req.Available)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *ProductHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	if err := h.catalog.DeleteProduct(ctx, productID); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type productListResponse struct {
	Items         []productPayload `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type productResponse struct {
	Product productPayload `json:"product"`
}

type productPayload struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	Price           int64  `json:"price"`
	Category        string `json:"category"`
	Image           string `json:"image,omitempty"`
	Available       bool   `json:"available"`
	PreparationTime int    `json:"preparation_time,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at,omitempty"`
}

func buildProductPayload(product services.Product) productPayload {
	return productPayload{
		ID:              product.ID,
		Name:            product.Name,
		Description:     product.Description,
		Price:           product.Price,
		Category:        string(product.Category),
		Image:           product.Image,
		Available:       product.Available,
		PreparationTime: product.PreparationTime,
		CreatedAt:       formatTime(product.CreatedAt),
		UpdatedAt:       formatTime(product.UpdatedAt),
	}
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
