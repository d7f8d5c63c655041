package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-payment-gateway/internal/gateway"
	"ms-payment-gateway/internal/logger"
	"ms-payment-gateway/internal/models"
	"ms-payment-gateway/internal/order/db"
	"ms-payment-gateway/internal/payment"
)

type Handler struct {
	PaymentService *payment.Service
	Logger         *logger.Logger
}

func NewHandler(paymentService *payment.Service, log *logger.Logger) *Handler {
	return &Handler{
		PaymentService: paymentService,
		Logger:         log,
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/orders", h.CreateOrder)
	r.Get("/orders/{orderId}", h.GetOrder)
	r.Post("/payments/checkout", h.Checkout)
	// The processor redirects the shopper with GET and posts embedded-form
	// results with POST; both land on the same reconciliation path.
	r.Get("/payments/callback", h.Callback)
	r.Post("/payments/callback", h.Callback)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("API", "CreateOrder: received request")

	var orderReq models.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&orderReq); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateOrder: failed to decode request body: %v", err))
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	order, err := h.PaymentService.CreateOrder(r.Context(), orderReq)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateOrder: failed to create order: %v", err))
		http.Error(w, "Could not create order: "+err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(order); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateOrder: failed to encode response: %v", err))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CreateOrder: order %s created", order.OrderID))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	h.Logger.Info("API", fmt.Sprintf("GetOrder: orderId=%s", orderID))

	order, err := h.PaymentService.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, db.ErrOrderNotFound) {
			http.Error(w, "Order not found", http.StatusNotFound)
			return
		}
		h.Logger.Error("API", fmt.Sprintf("GetOrder: lookup failed: %v", err))
		http.Error(w, "Could not load order", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(order); err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetOrder: failed to encode response: %v", err))
	}
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("API", "Checkout: received request")

	var req models.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Checkout: failed to decode request body: %v", err))
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.OrderID == "" {
		http.Error(w, "order_id is required", http.StatusBadRequest)
		return
	}

	resp, err := h.PaymentService.Checkout(r.Context(), req)
	if err != nil {
		h.writeCheckoutError(w, req.OrderID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Checkout: failed to encode response: %v", err))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("Checkout: order %s result=%s", req.OrderID, resp.Result))
}

func (h *Handler) writeCheckoutError(w http.ResponseWriter, orderID string, err error) {
	h.Logger.Error("API", fmt.Sprintf("Checkout: order %s: %v", orderID, err))

	switch {
	case errors.Is(err, db.ErrOrderNotFound):
		http.Error(w, "Order not found", http.StatusNotFound)
	case payment.IsInvalidState(err):
		http.Error(w, err.Error(), http.StatusConflict)
	case gateway.IsTransport(err):
		http.Error(w, "Payment processor unavailable", http.StatusBadGateway)
	default:
		http.Error(w, "Checkout failed: "+err.Error(), http.StatusInternalServerError)
	}
}

// Callback accepts the processor's redirect. It always answers 200: the
// shopper's browser is mid-redirect and an error page would strand them,
// so every outcome resolves to a redirect target instead.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Callback: failed to parse form: %v", err))
	}

	resp := h.PaymentService.HandleCallback(r.Context(), r.Form)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Callback: failed to encode response: %v", err))
	}
}
