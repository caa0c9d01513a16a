package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"online-market/idempotency"
	models "online-market/model"
	"online-market/service"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// Handler is the HTTP layer that talks to service.Service
type Handler struct {
	svc service.ServiceInterface
	log *slog.Logger
}

// NewHandler returns a Handler instance
func NewHandler(s service.ServiceInterface, log *slog.Logger) *Handler {
	return &Handler{svc: s, log: log}
}

// RegisterRoutes registers all routes on the provided router
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods("GET")

	// Products
	r.HandleFunc("/products", h.CreateProduct).Methods("POST")
	r.HandleFunc("/products", h.ListProducts).Methods("GET")
	r.HandleFunc("/products/{id}", h.GetProduct).Methods("GET")
	r.HandleFunc("/products/{id}/restock", h.Restock).Methods("POST")

	// Carts
	r.HandleFunc("/carts", h.EnsureCart).Methods("POST")
	r.HandleFunc("/carts/{id}", h.GetCart).Methods("GET")
	r.HandleFunc("/users/{userID}/cart", h.GetCartByUser).Methods("GET")
	r.HandleFunc("/carts/{id}/lines", h.AddLine).Methods("POST")
	r.HandleFunc("/carts/{id}/lines", h.ListLines).Methods("GET")
	r.HandleFunc("/carts/{id}/lines", h.ClearCart).Methods("DELETE")
	r.HandleFunc("/cart-lines/{id}", h.GetCartLine).Methods("GET")
	r.HandleFunc("/cart-lines/{id}", h.UpdateLine).Methods("PUT")
	r.HandleFunc("/cart-lines/{id}", h.RemoveLine).Methods("DELETE")

	// Checkout
	r.HandleFunc("/checkout", h.Checkout).Methods("POST")

	// Orders
	r.HandleFunc("/orders", h.CreateOrder).Methods("POST")
	r.HandleFunc("/orders", h.ListOrders).Methods("GET")
	r.HandleFunc("/orders/{id}", h.GetOrder).Methods("GET")
	r.HandleFunc("/orders/{id}", h.UpdateOrder).Methods("PUT")
	r.HandleFunc("/orders/{id}", h.DeleteOrder).Methods("DELETE")
	r.HandleFunc("/orders/{id}/lines", h.ListOrderLines).Methods("GET")
	r.HandleFunc("/orders/{id}/products", h.AddProductToOrder).Methods("POST")
	r.HandleFunc("/orders/{id}/total", h.RecomputeTotal).Methods("PUT")
}

// --- request / response shapes ---

type quantityReq struct {
	Quantity int `json:"quantity"`
}

type addLineReq struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type ensureCartReq struct {
	UserID int64 `json:"user_id"`
}

type recomputeReq struct {
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type errorBody struct {
	Error     string `json:"error"`
	ProductID int64  `json:"product_id,omitempty"`
	Available *int   `json:"available,omitempty"`
	Requested *int   `json:"requested,omitempty"`
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}

// writeServiceErr maps the error kinds onto status codes. Anything
// unrecognised is logged and reported as a 500 without its details.
func (h *Handler) writeServiceErr(w http.ResponseWriter, r *http.Request, err error) {
	var ise *models.InsufficientStockError
	switch {
	case errors.As(err, &ise):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error: err.Error(), ProductID: ise.ProductID, Available: &ise.Available, Requested: &ise.Requested,
		})
	case errors.Is(err, models.ErrNotFound):
		writeErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrInvalidArgument):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrConflict):
		writeErr(w, http.StatusConflict, err.Error())
	default:
		h.log.Error("request failed", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Any("error", err))
		writeErr(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id, err == nil && id > 0
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

// --- Handler ---

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateProduct handles POST /products
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req service.NewProduct
	if !decode(w, r, &req) {
		return
	}
	p, err := h.svc.CreateProduct(r.Context(), req)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// ListProducts handles GET /products
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := h.svc.ListProducts(r.Context())
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid product id")
		return
	}
	p, err := h.svc.GetProduct(r.Context(), id)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Restock handles POST /products/{id}/restock
// body: { "quantity": 5 }
func (h *Handler) Restock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var req quantityReq
	if !decode(w, r, &req) {
		return
	}
	p, err := h.svc.Restock(r.Context(), id, req.Quantity)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// EnsureCart handles POST /carts
// body: { "user_id": 1 }
func (h *Handler) EnsureCart(w http.ResponseWriter, r *http.Request) {
	var req ensureCartReq
	if !decode(w, r, &req) {
		return
	}
	c, err := h.svc.EnsureCart(r.Context(), req.UserID)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid cart id")
		return
	}
	c, err := h.svc.GetCart(r.Context(), id)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) GetCartByUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid user id")
		return
	}
	c, err := h.svc.GetCartByUser(r.Context(), userID)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// AddLine handles POST /carts/{id}/lines
// body: { "product_id": 1, "quantity": 2 }
func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	cartID, ok := pathID(r, "id")
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid cart id")
		return
	}
	var req addLineReq
	if !decode(w, r, &req) {
		return
	}
	line, err := h.svc.AddOrMergeLine(r.Context(), cartID, req.ProductID, req.Quantity)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, line)
}

func (h *Handler) ListLines(w http.ResponseWriter, r *http.Request) {
	cartID, ok := pathID(r, "id")
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid cart id")
		return
	}
	lines, err := h.svc.ListLines(r.Context(), cartID)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lines)
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	cartID, ok := pathID(r, "id")
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid cart id")
		return
	}
	if err := h.svc.ClearCart(r.Context(), cartID); err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetCartLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid cart line id")
		return
	}
	line, err := h.svc.GetCartLine(r.Context(), id)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, line)
}

// UpdateLine handles PUT /cart-lines/{id}
// body: { "cart_id": 1, "product_id": 2, "quantity": 3 }
func (h *Handler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid cart line id")
		return
	}
	var req service.LineUpdate
	if !decode(w, r, &req) {
		return
	}
	line, err := h.svc.UpdateLine(r.Context(), id, req)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, line)
}

func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid cart line id")
		return
	}
	if err := h.svc.RemoveLine(r.Context(), id); err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Checkout handles POST /checkout
// body: { "cart_id": 1, "user_id": 1, "payment_method": "card", ... }
// An Idempotency-Key header makes retries return the first order.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req service.CheckoutRequest
	if !decode(w, r, &req) {
		return
	}
	req.IdempotencyKey = idempotency.Key(r)
	ord, err := h.svc.Checkout(r.Context(), req)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ord)
}

// CreateOrder handles POST /orders
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req service.NewOrder
	if !decode(w, r, &req) {
		return
	}
	ord, err := h.svc.CreateOrder(r.Context(), req)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ord)
}

// ListOrders handles GET /orders?user_id=...
// Without user_id every order is returned.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var userID int64
	if v := r.URL.Query().Get("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			writeErr(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		userID = id
	}
	orders, err := h.svc.ListOrders(r.Context(), userID)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid order id")
		return
	}
	if err := h.svc.DeleteOrder(r.Context(), id); err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid order id")
		return
	}
	ord, err := h.svc.GetOrder(r.Context(), id)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ord)
}

// UpdateOrder handles PUT /orders/{id}. The total cannot be changed here.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid order id")
		return
	}
	var req service.OrderDetails
	if !decode(w, r, &req) {
		return
	}
	ord, err := h.svc.UpdateOrderDetails(r.Context(), id, req)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ord)
}

func (h *Handler) ListOrderLines(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid order id")
		return
	}
	lines, err := h.svc.ListOrderLines(r.Context(), id)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lines)
}

// AddProductToOrder handles POST /orders/{id}/products
// body: { "product_id": 1, "quantity": 2 }
func (h *Handler) AddProductToOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid order id")
		return
	}
	var req addLineReq
	if !decode(w, r, &req) {
		return
	}
	line, err := h.svc.AddProductToOrder(r.Context(), id, req.ProductID, req.Quantity)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, line)
}

// RecomputeTotal handles PUT /orders/{id}/total
// body: { "quantity": 2, "unit_price": "9.99" }
func (h *Handler) RecomputeTotal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid order id")
		return
	}
	var req recomputeReq
	if !decode(w, r, &req) {
		return
	}
	ord, err := h.svc.RecomputeTotal(r.Context(), id, req.Quantity, req.UnitPrice)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ord)
}
