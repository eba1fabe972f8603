package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/refugios-lanche/api/internal/domain"
	"github.com/refugios-lanche/api/internal/platform/auth"
	"github.com/refugios-lanche/api/internal/platform/httpx"
	"github.com/refugios-lanche/api/internal/services"
)

const (
	defaultOrderPageSize  = 50
	maxOrderPageSize      = 200
	maxOrderBodySize      = 64 * 1024
	maxOrderCancelBody    = 4 * 1024
	orderPlacementPerMin  = 30
	placementLimiterScope = "orders:create"
)

// OrderHandlers exposes order placement, tracking and back-office endpoints.
type OrderHandlers struct {
	authn   *auth.Authenticator
	tokens  auth.TokenVerifier
	orders  services.OrderService
	sales   services.SalesService
	limiter rateLimiter
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, tokens auth.TokenVerifier, orders services.OrderService, sales services.SalesService) *OrderHandlers {
	return &OrderHandlers{
		authn:   authn,
		tokens:  tokens,
		orders:  orders,
		sales:   sales,
		limiter: newWindowRateLimiter(orderPlacementPerMin, time.Minute, nil),
	}
}

// Routes registers the /orders endpoints. Placement, tracking and customer
// cancellation are public; listing, transitions and stats require an admin token.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	r.Post("/", h.createOrder)
	r.Get("/number/{orderNumber}", h.getOrderByNumber)
	r.Put("/{orderID}/cancel", h.cancelOrder)

	r.Group(func(admin chi.Router) {
		if h.authn != nil {
			admin.Use(h.authn.RequireAdmin())
		}
		admin.Get("/", h.listOrders)
		admin.Get("/stats/sales", h.salesStats)
		admin.Get("/{orderID}", h.getOrder)
		admin.Put("/{orderID}/status", h.updateStatus)
		admin.Put("/{orderID}/payment", h.updatePayment)
	})
}

type createOrderRequest struct {
	Customer      customerPayload    `json:"customer"`
	Items         []orderLineRequest `json:"items"`
	DeliveryType  string             `json:"delivery_type"`
	PaymentMethod string             `json:"payment_method"`
	Notes         string             `json:"notes"`
}

type orderLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(placementLimiterScope+":"+r.RemoteAddr) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many orders, try again shortly", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	items := make([]services.PlaceOrderItem, 0, len(req.Items))
	for _, line := range req.Items {
		items = append(items, services.PlaceOrderItem{
			ProductID: strings.TrimSpace(line.ProductID),
			Quantity:  line.Quantity,
		})
	}

	cmd := services.PlaceOrderCommand{
		Customer:      buildCustomer(req.Customer),
		Items:         items,
		DeliveryType:  domain.DeliveryType(strings.ToLower(strings.TrimSpace(req.DeliveryType))),
		PaymentMethod: domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		Notes:         req.Notes,
	}

	order, err := h.orders.PlaceOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderNumber := strings.TrimSpace(chi.URLParam(r, "orderNumber"))
	if orderNumber == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order number is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()

	filter := services.OrderListFilter{}
	for _, raw := range parseFilterValues(query["status"]) {
		filter.Status = append(filter.Status, domain.OrderStatus(raw))
	}
	if raw := strings.ToLower(strings.TrimSpace(query.Get("delivery_type"))); raw != "" {
		deliveryType := domain.DeliveryType(raw)
		filter.DeliveryType = &deliveryType
	}
	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_before must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.To = &ts
	}

	pagination, err := parsePagination(r, defaultOrderPageSize, maxOrderPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	filter.Pagination = pagination

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}

	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxOrderCancelBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req updateStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID: orderID,
		Status:  domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		Actor:   adminActor(ctx),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) updatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxOrderCancelBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req updateStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdatePaymentStatus(ctx, services.UpdatePaymentStatusCommand{
		OrderID: orderID,
		Status:  domain.PaymentStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		Actor:   adminActor(ctx),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req cancelOrderRequest
	body, err := readLimitedBody(r, maxOrderCancelBody)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	cmd := services.CancelOrderCommand{
		OrderID: orderID,
		Reason:  strings.TrimSpace(req.Reason),
	}

	// An admin bearer token records the admin as the cancellation actor.
	if identity, ok := h.verifyOptionalAdmin(r); ok {
		cmd.Admin = true
		cmd.Actor = identity.Email
	}

	order, err := h.orders.Cancel(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) salesStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sales == nil {
		httpx.WriteError(ctx, w, httpx.NewError("sales_service_unavailable", "sales service unavailable", http.StatusServiceUnavailable))
		return
	}

	stats, err := h.sales.SalesReport(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to build sales report", http.StatusInternalServerError))
		return
	}

	byStatus := make(map[string]int, len(stats.ByStatus))
	for status, count := range stats.ByStatus {
		byStatus[string(status)] = count
	}

	writeJSONResponse(w, http.StatusOK, salesStatsResponse{
		Today:    salesBucketPayload{Orders: stats.Today.Orders, Revenue: stats.Today.Revenue},
		Month:    salesBucketPayload{Orders: stats.Month.Orders, Revenue: stats.Month.Revenue},
		Total:    stats.Total,
		ByStatus: byStatus,
	})
}

func (h *OrderHandlers) verifyOptionalAdmin(r *http.Request) (*auth.AdminIdentity, bool) {
	if h.tokens == nil {
		return nil, false
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return nil, false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, false
	}
	identity, err := h.tokens.Verify(strings.TrimSpace(parts[1]))
	if err != nil || identity == nil {
		return nil, false
	}
	return identity, true
}

func adminActor(ctx context.Context) string {
	identity, ok := auth.AdminFromContext(ctx)
	if !ok || identity == nil {
		return ""
	}
	if email := strings.TrimSpace(identity.Email); email != "" {
		return email
	}
	return strings.TrimSpace(identity.ID)
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

// Response payloads ----------------------------------------------------------

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID            string `json:"id"`
	OrderNumber   string `json:"order_number"`
	CustomerName  string `json:"customer_name"`
	Status        string `json:"status"`
	DeliveryType  string `json:"delivery_type"`
	PaymentStatus string `json:"payment_status"`
	Total         int64  `json:"total"`
	CreatedAt     string `json:"created_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID                    string                `json:"id"`
	OrderNumber           string                `json:"order_number"`
	Customer              customerPayload       `json:"customer"`
	Items                 []orderItemPayload    `json:"items"`
	Subtotal              int64                 `json:"subtotal"`
	DeliveryFee           int64                 `json:"delivery_fee"`
	Total                 int64                 `json:"total"`
	DeliveryType          string                `json:"delivery_type"`
	PaymentMethod         string                `json:"payment_method"`
	PaymentStatus         string                `json:"payment_status"`
	Status                string                `json:"status"`
	Notes                 string                `json:"notes,omitempty"`
	QRCode                string                `json:"qr_code,omitempty"`
	EstimatedDeliveryTime string                `json:"estimated_delivery_time,omitempty"`
	DeliveredAt           string                `json:"delivered_at,omitempty"`
	CancelledAt           string                `json:"cancelled_at,omitempty"`
	CancellationReason    string                `json:"cancellation_reason,omitempty"`
	StatusHistory         []statusEntryPayload  `json:"status_history"`
	CreatedAt             string                `json:"created_at"`
	UpdatedAt             string                `json:"updated_at,omitempty"`
}

type customerPayload struct {
	Name    string          `json:"name"`
	Email   string          `json:"email,omitempty"`
	Phone   string          `json:"phone"`
	Address *addressPayload `json:"address,omitempty"`
}

type addressPayload struct {
	Street       string `json:"street"`
	Number       string `json:"number"`
	Complement   string `json:"complement,omitempty"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
	ZipCode      string `json:"zip_code"`
}

type orderItemPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Subtotal  int64  `json:"subtotal"`
}

type statusEntryPayload struct {
	Status   string `json:"status"`
	At       string `json:"at"`
	Actor    string `json:"actor,omitempty"`
	Notified bool   `json:"notified,omitempty"`
}

type salesStatsResponse struct {
	Today    salesBucketPayload `json:"today"`
	Month    salesBucketPayload `json:"month"`
	Total    int                `json:"total"`
	ByStatus map[string]int     `json:"by_status"`
}

type salesBucketPayload struct {
	Orders  int   `json:"orders"`
	Revenue int64 `json:"revenue"`
}

func buildCustomer(payload customerPayload) services.Customer {
	customer := services.Customer{
		Name:  strings.TrimSpace(payload.Name),
		Email: strings.TrimSpace(payload.Email),
		Phone: strings.TrimSpace(payload.Phone),
	}
	if payload.Address != nil {
		customer.Address = &domain.Address{
			Street:       strings.TrimSpace(payload.Address.Street),
			Number:       strings.TrimSpace(payload.Address.Number),
			Complement:   strings.TrimSpace(payload.Address.Complement),
			Neighborhood: strings.TrimSpace(payload.Address.Neighborhood),
			City:         strings.TrimSpace(payload.Address.City),
			State:        strings.TrimSpace(payload.Address.State),
			ZipCode:      strings.TrimSpace(payload.Address.ZipCode),
		}
	}
	return customer
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerName:  order.Customer.Name,
		Status:        string(order.Status),
		DeliveryType:  string(order.DeliveryType),
		PaymentStatus: string(order.PaymentStatus),
		Total:         order.Total,
		CreatedAt:     formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Customer: customerPayload{
			Name:  order.Customer.Name,
			Email: order.Customer.Email,
			Phone: order.Customer.Phone,
		},
		Items:                 make([]orderItemPayload, 0, len(order.Items)),
		Subtotal:              order.Subtotal,
		DeliveryFee:           order.DeliveryFee,
		Total:                 order.Total,
		DeliveryType:          string(order.DeliveryType),
		PaymentMethod:         string(order.PaymentMethod),
		PaymentStatus:         string(order.PaymentStatus),
		Status:                string(order.Status),
		Notes:                 order.Notes,
		QRCode:                order.QRCode,
		EstimatedDeliveryTime: formatTime(order.EstimatedDeliveryTime),
		DeliveredAt:           formatTime(pointerTime(order.DeliveredAt)),
		CancelledAt:           formatTime(pointerTime(order.CancelledAt)),
		CancellationReason:    order.CancellationReason,
		StatusHistory:         make([]statusEntryPayload, 0, len(order.StatusHistory)),
		CreatedAt:             formatTime(order.CreatedAt),
		UpdatedAt:             formatTime(order.UpdatedAt),
	}

	if order.Customer.Address != nil {
		payload.Customer.Address = &addressPayload{
			Street:       order.Customer.Address.Street,
			Number:       order.Customer.Address.Number,
			Complement:   order.Customer.Address.Complement,
			Neighborhood: order.Customer.Address.Neighborhood,
			City:         order.Customer.Address.City,
			State:        order.Customer.Address.State,
			ZipCode:      order.Customer.Address.ZipCode,
		}
	}

	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Subtotal:  item.Subtotal,
		})
	}

	for _, entry := range order.StatusHistory {
		payload.StatusHistory = append(payload.StatusHistory, statusEntryPayload{
			Status:   string(entry.Status),
			At:       formatTime(entry.At),
			Actor:    entry.Actor,
			Notified: entry.Notified,
		})
	}

	return payload
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderUnknownProduct):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrOrderNotCancellable):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_cancellable", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
