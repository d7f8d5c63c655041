package sse

import (
	"context"
	"sync"

	"ms-payment-gateway/internal/models"
)

// PaymentEventEmitter manages SSE connections and event broadcasting for
// payment status changes, keyed by order id.
type PaymentEventEmitter struct {
	orderClients map[string][]chan models.PaymentEvent
	clientMutex  sync.RWMutex
}

// NewPaymentEventEmitter creates a new SSE event emitter for payment events
func NewPaymentEventEmitter() *PaymentEventEmitter {
	return &PaymentEventEmitter{
		orderClients: make(map[string][]chan models.PaymentEvent),
	}
}

// SubscribeToOrder adds a client to one order's payment events
func (e *PaymentEventEmitter) SubscribeToOrder(ctx context.Context, orderID string) chan models.PaymentEvent {
	clientChan := make(chan models.PaymentEvent, 10)

	e.clientMutex.Lock()
	e.orderClients[orderID] = append(e.orderClients[orderID], clientChan)
	e.clientMutex.Unlock()

	// Remove client when context is done
	go func() {
		<-ctx.Done()
		e.removeClient(orderID, clientChan)
	}()

	return clientChan
}

// Emit broadcasts a payment event to every client watching the order. Slow
// clients are skipped rather than blocking the transition path.
func (e *PaymentEventEmitter) Emit(event models.PaymentEvent) {
	e.clientMutex.RLock()
	clients := e.orderClients[event.OrderID]
	e.clientMutex.RUnlock()

	for _, ch := range clients {
		select {
		case ch <- event:
		default:
		}
	}
}

func (e *PaymentEventEmitter) removeClient(orderID string, client chan models.PaymentEvent) {
	e.clientMutex.Lock()
	defer e.clientMutex.Unlock()

	clients := e.orderClients[orderID]
	for i, ch := range clients {
		if ch == client {
			e.orderClients[orderID] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(e.orderClients[orderID]) == 0 {
		delete(e.orderClients, orderID)
	}
}
