package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-payment-gateway/internal/logger"
	"ms-payment-gateway/internal/sse"
)

// SSEHandler streams payment lifecycle events so a checkout page can react
// to hosted-payment callbacks without polling.
type SSEHandler struct {
	Logger       *logger.Logger
	EventEmitter *sse.PaymentEventEmitter
}

func NewSSEHandler(log *logger.Logger, emitter *sse.PaymentEventEmitter) *SSEHandler {
	return &SSEHandler{
		Logger:       log,
		EventEmitter: emitter,
	}
}

// HandleOrderEvents streams payment events for a single order.
func (h *SSEHandler) HandleOrderEvents(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		http.Error(w, "Order ID is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	h.setupSSEHeaders(w)

	ctx := r.Context()
	eventChan := h.EventEmitter.SubscribeToOrder(ctx, orderID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"orderID\":\"%s\"}\n\n", orderID)
	flusher.Flush()

	h.Logger.Info("SSE", fmt.Sprintf("Client connected to payment events for order: %s", orderID))

	for {
		select {
		case event, open := <-eventChan:
			if !open {
				h.Logger.Debug("SSE", fmt.Sprintf("Channel closed for order: %s", orderID))
				return
			}

			jsonData, err := json.Marshal(event)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize payment event: %v", err))
				continue
			}

			fmt.Fprintf(w, "event: payment\ndata: %s\n\n", jsonData)
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from payment events for order: %s", orderID))
			return
		}
	}
}

func (h *SSEHandler) setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
