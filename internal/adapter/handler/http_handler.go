package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cartel-codes/theme-nv-sub002/internal/core/domain"
	"github.com/cartel-codes/theme-nv-sub002/internal/core/service"
)

const maxBodyBytes = 1 << 20

type HTTPHandler struct {
	inventory *service.InventoryService
	orders    *service.OrderService
	validate  *validator.Validate
	logger    *zap.Logger
}

type LineItemHTTP struct {
	ProductID string `json:"productId" validate:"required,max=64"`
	VariantID string `json:"variantId,omitempty" validate:"max=64"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

func (l LineItemHTTP) toDomain() domain.LineRequest {
	return domain.LineRequest{ProductID: l.ProductID, VariantID: l.VariantID, Quantity: l.Quantity}
}

type AvailabilityHTTPRequest struct {
	Items []LineItemHTTP `json:"items" validate:"dive"`
}

type AvailabilityHTTPResponse struct {
	Available bool   `json:"available"`
	ProductID string `json:"productId,omitempty"`
	VariantID string `json:"variantId,omitempty"`
	Message   string `json:"message,omitempty"`
}

type SetStockHTTPRequest struct {
	VariantID string `json:"variantId,omitempty" validate:"max=64"`
	Quantity  *int   `json:"quantity" validate:"required,gte=0"`
}

type StockHTTPResponse struct {
	ProductID string    `json:"productId"`
	VariantID string    `json:"variantId,omitempty"`
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type OrderItemHTTP struct {
	ProductID string          `json:"productId" validate:"required,max=64"`
	VariantID string          `json:"variantId,omitempty" validate:"max=64"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type CreateOrderHTTPRequest struct {
	UserID string          `json:"userId" validate:"required,max=64"`
	Items  []OrderItemHTTP `json:"items" validate:"required,min=1,dive"`
}

type OrderHTTPResponse struct {
	ID               string          `json:"id"`
	UserID           string          `json:"userId"`
	Status           string          `json:"status"`
	StockDecremented bool            `json:"stockDecremented"`
	Total            decimal.Decimal `json:"total"`
	Items            []OrderItemHTTP `json:"items"`
	CreatedAt        time.Time       `json:"createdAt"`
}

type StatusHTTPResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func NewHTTPHandler(inventory *service.InventoryService, orders *service.OrderService, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{
		inventory: inventory,
		orders:    orders,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
	}
}

func (h *HTTPHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	var req AvailabilityHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	lines := make([]domain.LineRequest, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, it.toDomain())
	}

	result, err := h.inventory.CheckAvailability(r.Context(), lines)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, AvailabilityHTTPResponse{
		Available: result.Available,
		ProductID: result.ProductID,
		VariantID: result.VariantID,
		Message:   result.Message,
	})
}

func (h *HTTPHandler) GetStock(w http.ResponseWriter, r *http.Request) {
	key := domain.StockKey{
		ProductID: chi.URLParam(r, "productId"),
		VariantID: r.URL.Query().Get("variantId"),
	}

	rec, err := h.inventory.GetStock(r.Context(), key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, StockHTTPResponse{
		ProductID: rec.ProductID,
		VariantID: rec.VariantID,
		Quantity:  rec.Quantity,
		UpdatedAt: rec.UpdatedAt,
	})
}

func (h *HTTPHandler) SetStock(w http.ResponseWriter, r *http.Request) {
	var req SetStockHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	key := domain.StockKey{ProductID: chi.URLParam(r, "productId"), VariantID: req.VariantID}
	if err := h.inventory.SetStock(r.Context(), key, *req.Quantity); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, StatusHTTPResponse{Success: true, Message: "stock updated"})
}

func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, domain.OrderItem{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	order, err := h.orders.RecordPaidOrder(r.Context(), r.Header.Get("Idempotency-Key"), req.UserID, items)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderHTTP(order))
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderHTTP(order))
}

func (h *HTTPHandler) DecrementStock(w http.ResponseWriter, r *http.Request) {
	if err := h.inventory.DecrementStockForOrder(r.Context(), chi.URLParam(r, "orderId")); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, StatusHTTPResponse{Success: true, Message: "stock decremented"})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, StatusHTTPResponse{
			Success: false,
			Message: "invalid request body",
		})
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, StatusHTTPResponse{
			Success: false,
			Message: err.Error(),
		})
		return false
	}
	return true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := httpStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}

	writeJSON(w, status, StatusHTTPResponse{
		Success: false,
		Message: message,
	})
}

func httpStatus(err error) (int, string) {
	var txErr *domain.TransactionError
	switch {
	case errors.Is(err, domain.ErrInvalidLine), errors.Is(err, domain.ErrInvalidQuantity):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrRecordNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate request"
	case errors.As(err, &txErr):
		return http.StatusServiceUnavailable, "stock update aborted, retry the order"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func toOrderHTTP(order domain.Order) OrderHTTPResponse {
	resp := OrderHTTPResponse{
		ID:               order.ID,
		UserID:           order.UserID,
		Status:           string(order.Status),
		StockDecremented: order.StockDecremented(),
		Total:            order.Total(),
		CreatedAt:        order.CreatedAt,
		Items:            make([]OrderItemHTTP, 0, len(order.Items)),
	}
	for _, it := range order.Items {
		resp.Items = append(resp.Items, OrderItemHTTP{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
