package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rl1809/ebook-shop/internal/core/domain"
	"github.com/rl1809/ebook-shop/internal/core/service"
)

type HTTPHandler struct {
	carts     *service.CartService
	orders    *service.OrderService
	downloads *service.DownloadService
	logger    *log.Logger
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type AddItemRequest struct {
	EbookID  int64 `json:"ebookId"`
	Quantity int   `json:"quantity"`
}

type SetQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type DirectOrderRequest struct {
	EbookID int64 `json:"ebookId"`
}

type IssueTokenRequest struct {
	OrderID string `json:"orderId"`
	EbookID int64  `json:"ebookId"`
}

type CartLineResponse struct {
	EbookID  int64     `json:"ebookId"`
	Quantity int       `json:"quantity"`
	AddedAt  time.Time `json:"addedAt"`
}

type PricedLineResponse struct {
	EbookID      int64  `json:"ebookId"`
	Title        string `json:"title"`
	UnitPrice    string `json:"unitPrice"`
	Quantity     int    `json:"quantity"`
	LineSubtotal string `json:"lineSubtotal"`
	Sellable     bool   `json:"sellable"`
}

type CartSummaryResponse struct {
	Lines     []PricedLineResponse `json:"lines"`
	ItemCount int                  `json:"itemCount"`
	Total     string               `json:"total"`
}

type OrderLineResponse struct {
	EbookID   int64  `json:"ebookId"`
	Title     string `json:"title"`
	Price     string `json:"price"`
	Quantity  int    `json:"quantity"`
	LineTotal string `json:"lineTotal"`
}

type OrderResponse struct {
	ID          string              `json:"id"`
	OrderNumber string              `json:"orderNumber"`
	Source      string              `json:"source"`
	Status      string              `json:"status"`
	TotalAmount string              `json:"totalAmount"`
	FinalAmount string              `json:"finalAmount"`
	CreatedAt   time.Time           `json:"createdAt"`
	PaidAt      *time.Time          `json:"paidAt,omitempty"`
	CanceledAt  *time.Time          `json:"canceledAt,omitempty"`
	Lines       []OrderLineResponse `json:"lines"`
}

type OrderSummaryResponse struct {
	ID          string    `json:"id"`
	OrderNumber string    `json:"orderNumber"`
	Status      string    `json:"status"`
	TotalAmount string    `json:"totalAmount"`
	FinalAmount string    `json:"finalAmount"`
	CreatedAt   time.Time `json:"createdAt"`
}

type IssuedTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func NewHTTPHandler(carts *service.CartService, orders *service.OrderService, downloads *service.DownloadService, logger *log.Logger) *HTTPHandler {
	return &HTTPHandler{carts: carts, orders: orders, downloads: downloads, logger: logger}
}

// Routes builds the router. Download redemption is not behind auth: the token
// itself is the credential.
func (h *HTTPHandler) Routes(auth *Authenticator, metrics *ServerMetrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: h.logger, NoColor: true}))
	r.Use(middleware.Recoverer)
	if metrics != nil {
		r.Use(metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	r.Get("/health", h.HealthCheck)
	r.Get("/downloads/{token}", h.Download)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Get("/summary", h.CartSummary)
			r.Post("/items", h.AddItem)
			r.Put("/items/{ebookId}", h.SetQuantity)
			r.Delete("/items/{ebookId}", h.RemoveItem)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.CreateFromCart)
			r.Post("/direct", h.CreateDirect)
			r.Get("/", h.ListOrders)
			r.Get("/{orderId}", h.GetOrder)
			r.Post("/{orderId}/pay", h.MarkPaid)
			r.Post("/{orderId}/cancel", h.Cancel)
		})

		r.Post("/downloads/tokens", h.IssueToken)
	})

	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	lines, err := h.carts.ListLines(r.Context(), ShopperFromContext(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": toPricedLines(lines)})
}

func (h *HTTPHandler) CartSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.carts.Summary(r.Context(), ShopperFromContext(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CartSummaryResponse{
		Lines:     toPricedLines(s.Lines),
		ItemCount: s.ItemCount,
		Total:     s.Total.StringFixed(2),
	})
}

func (h *HTTPHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), ShopperFromContext(r.Context())); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	line, err := h.carts.AddItem(r.Context(), ShopperFromContext(r.Context()), req.EbookID, req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCartLine(line))
}

func (h *HTTPHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	ebookID, ok := ebookIDParam(w, r)
	if !ok {
		return
	}
	var req SetQuantityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	line, err := h.carts.SetQuantity(r.Context(), ShopperFromContext(r.Context()), ebookID, req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartLine(line))
}

func (h *HTTPHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ebookID, ok := ebookIDParam(w, r)
	if !ok {
		return
	}
	if err := h.carts.RemoveItem(r.Context(), ShopperFromContext(r.Context()), ebookID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) CreateFromCart(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.CreateFromCart(r.Context(), ShopperFromContext(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

func (h *HTTPHandler) CreateDirect(w http.ResponseWriter, r *http.Request) {
	var req DirectOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	o, err := h.orders.CreateDirectOrder(r.Context(), ShopperFromContext(r.Context()), req.EbookID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.GetMyOrders(r.Context(), ShopperFromContext(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]OrderSummaryResponse, 0, len(orders))
	for _, s := range orders {
		out = append(out, OrderSummaryResponse{
			ID:          s.ID,
			OrderNumber: s.OrderNumber,
			Status:      string(s.Status),
			TotalAmount: s.TotalAmount.StringFixed(2),
			FinalAmount: s.FinalAmount.StringFixed(2),
			CreatedAt:   s.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetDetail(r.Context(), ShopperFromContext(r.Context()), chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

func (h *HTTPHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.MarkPaid(r.Context(), ShopperFromContext(r.Context()), chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

func (h *HTTPHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Cancel(r.Context(), ShopperFromContext(r.Context()), chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

func (h *HTTPHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req IssueTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := h.downloads.Issue(r.Context(), ShopperFromContext(r.Context()), req.OrderID, req.EbookID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, IssuedTokenResponse{Token: t.Token, ExpiresAt: t.ExpiresAt})
}

func (h *HTTPHandler) Download(w http.ResponseWriter, r *http.Request) {
	f, err := h.downloads.Download(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, f.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Content)
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status, code := httpStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Printf("request failed: %v", err)
		message = "internal error"
	}
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// httpStatus checks ErrExpired before ErrValidation, which it wraps.
func httpStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrExpired):
		return http.StatusGone, "expired"
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, "conflict"
	}
	return http.StatusInternalServerError, "internal_error"
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "invalid JSON body"})
		return false
	}
	return true
}

func ebookIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "ebookId"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "ebookId must be an integer"})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func toCartLine(l domain.CartLine) CartLineResponse {
	return CartLineResponse{EbookID: l.EbookID, Quantity: l.Quantity, AddedAt: l.AddedAt}
}

func toPricedLines(lines []domain.PricedLine) []PricedLineResponse {
	out := make([]PricedLineResponse, 0, len(lines))
	for _, l := range lines {
		out = append(out, PricedLineResponse{
			EbookID:      l.EbookID,
			Title:        l.Title,
			UnitPrice:    l.UnitPrice.StringFixed(2),
			Quantity:     l.Quantity,
			LineSubtotal: l.LineSubtotal.StringFixed(2),
			Sellable:     l.Sellable,
		})
	}
	return out
}

func toOrder(o *domain.Order) OrderResponse {
	lines := make([]OrderLineResponse, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, OrderLineResponse{
			EbookID:   l.EbookID(),
			Title:     l.Title(),
			Price:     l.Price().StringFixed(2),
			Quantity:  l.Quantity(),
			LineTotal: l.LineTotal().StringFixed(2),
		})
	}
	return OrderResponse{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		Source:      string(o.Source),
		Status:      string(o.Status),
		TotalAmount: o.TotalAmount.StringFixed(2),
		FinalAmount: o.FinalAmount.StringFixed(2),
		CreatedAt:   o.CreatedAt,
		PaidAt:      o.PaidAt,
		CanceledAt:  o.CanceledAt,
		Lines:       lines,
	}
}
