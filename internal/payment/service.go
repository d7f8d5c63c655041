package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"ms-payment-gateway/internal/config"
	"ms-payment-gateway/internal/gateway"
	"ms-payment-gateway/internal/logger"
	"ms-payment-gateway/internal/models"
	"ms-payment-gateway/internal/payment/storage"
	"ms-payment-gateway/internal/utils"
)

type OrderStore interface {
	CreateOrder(ctx context.Context, order models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	UpdateOrder(ctx context.Context, order *models.Order) error
	CasPaymentState(ctx context.Context, id string, from, to models.PaymentState) (bool, error)
	AddNote(ctx context.Context, orderID, note string) error
}

type OrderLock interface {
	LockOrder(ctx context.Context, orderID, owner string) (bool, error)
	UnlockOrder(ctx context.Context, orderID, owner string) error
}

type EventPublisher interface {
	PublishPaymentSucceeded(event models.PaymentEvent) error
	PublishPaymentFailed(event models.PaymentEvent) error
	PublishPaymentRefunded(event models.PaymentEvent) error
}

// Notifier fans payment events out to live subscribers (SSE).
type Notifier interface {
	Emit(event models.PaymentEvent)
}

// Service drives the payment lifecycle: it serializes transitions per order,
// runs the state machine, persists the mutated order and applies the
// machine's side-effect signals.
type Service struct {
	DB            OrderStore
	Redis         OrderLock
	Kafka         EventPublisher
	TxnLog        storage.Store
	Machine       *Machine
	Subscriptions *SubscriptionExtension
	Mode          Mode
	Notifier      Notifier

	cfg config.GatewayConfig
	log *logger.Logger
}

func NewService(db OrderStore, lock OrderLock, kafka EventPublisher, txnLog storage.Store,
	machine *Machine, subs *SubscriptionExtension, mode Mode, notifier Notifier,
	cfg config.GatewayConfig, log *logger.Logger) *Service {
	return &Service{
		DB:            db,
		Redis:         lock,
		Kafka:         kafka,
		TxnLog:        txnLog,
		Machine:       machine,
		Subscriptions: subs,
		Mode:          mode,
		Notifier:      notifier,
		cfg:           cfg,
		log:           log,
	}
}

// CreateOrder registers a new order in the Unpaid state on behalf of the
// checkout controller.
func (s *Service) CreateOrder(ctx context.Context, req models.OrderRequest) (*models.Order, error) {
	if req.OrderID == "" {
		return nil, fmt.Errorf("order_id is required")
	}
	if req.TotalMinorUnits < 0 {
		return nil, fmt.Errorf("total_minor_units must not be negative")
	}
	order := models.Order{
		OrderID:         req.OrderID,
		TotalMinorUnits: req.TotalMinorUnits,
		Currency:        strings.ToUpper(req.Currency),
		PaymentState:    models.StateUnpaid,
		BillingEmail:    req.BillingEmail,
		BillingName:     req.BillingName,
		ReturnURL:       req.ReturnURL,
		CartURL:         req.CartURL,
		CreatedAt:       time.Now(),
	}
	if err := s.DB.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	s.log.LogPayment("CREATE", order.OrderID, fmt.Sprintf("registered, total %d %s", order.TotalMinorUnits, order.Currency))
	return &order, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return s.DB.GetOrderByID(ctx, id)
}

// Checkout begins a transaction for an order. With a token or customer
// reference it charges synchronously per the configured timing; without one
// it hands back the signed hosted-page args and waits for the callback.
func (s *Service) Checkout(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutResponse, error) {
	unlock, err := s.lock(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	order, err := s.DB.GetOrderByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	// Hosted flow: no token yet, the processor's page collects the card.
	if req.CardToken == "" && req.CustomerRef == "" {
		return s.beginHosted(ctx, order)
	}

	from := order.PaymentState
	var out *Outcome
	switch {
	case req.SaveMethod && req.CardToken != "":
		out, err = s.Subscriptions.ProcessInitialPayment(ctx, order, CardToken(req.CardToken))
	default:
		var ref TokenRef = CardToken(req.CardToken)
		if req.CustomerRef != "" {
			ref = CustomerRef(req.CustomerRef)
		}
		if s.Mode.Timing == TimingAuthorize {
			out, err = s.Machine.BeginAuthorization(ctx, order, ref)
		} else {
			out, err = s.Machine.BeginPurchase(ctx, order, ref)
		}
	}
	if err != nil {
		return s.checkoutFailure(order, err)
	}

	if err := s.commit(ctx, from, order, out); err != nil {
		return nil, err
	}

	resp := &models.CheckoutResponse{OrderState: order.PaymentState}
	if out.Approved {
		resp.Result = "success"
		resp.Redirect = s.returnURL(order)
	} else {
		resp.Result = "fail"
		resp.Errors = []string{"Payment was declined - please try another card."}
	}
	return resp, nil
}

func (s *Service) beginHosted(ctx context.Context, order *models.Order) (*models.CheckoutResponse, error) {
	pending := s.Mode.PendingState()
	if pending != order.PaymentState {
		if err := ValidateTransition(order.OrderID, order.PaymentState, pending); err != nil {
			return nil, err
		}
		ok, err := s.DB.CasPaymentState(ctx, order.OrderID, order.PaymentState, pending)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &InvalidStateError{OrderID: order.OrderID, From: order.PaymentState, To: pending,
				Reason: "concurrent modification"}
		}
		order.PaymentState = pending
	}
	s.log.LogPayment("HOSTED", order.OrderID, fmt.Sprintf("awaiting %s/%s callback", s.Mode.Timing, s.Mode.Integration))
	return &models.CheckoutResponse{
		Result:     "success",
		OrderState: order.PaymentState,
		HostedArgs: s.Mode.HostedArgs(s.cfg, order),
	}, nil
}

// checkoutFailure maps machine errors onto the legacy success/fail response
// shape. Validation problems are surfaced verbatim per field; real faults
// propagate.
func (s *Service) checkoutFailure(order *models.Order, err error) (*models.CheckoutResponse, error) {
	var ve *gateway.ValidationError
	if errors.As(err, &ve) {
		msgs := make([]string, 0, len(ve.FieldErrors))
		for _, fe := range ve.FieldErrors {
			msgs = append(msgs, fe.String())
		}
		if len(msgs) == 0 {
			msgs = []string{ve.Message}
		}
		return &models.CheckoutResponse{
			Result:     "fail",
			OrderState: order.PaymentState,
			Errors:     msgs,
		}, nil
	}
	return nil, err
}

// HandleCallback reconciles an asynchronous hosted/embedded callback. The
// transport contract is 200-always: every outcome maps onto a redirect
// target, errors included.
func (s *Service) HandleCallback(ctx context.Context, values url.Values) *models.CallbackResponse {
	cb, err := ParseCallback(values)
	if err != nil {
		s.log.Error("CALLBACK", fmt.Sprintf("rejected unparseable callback: %v", err))
		return &models.CallbackResponse{RedirectTo: s.cfg.CartURL}
	}

	unlock, err := s.lock(ctx, cb.Reference)
	if err != nil {
		s.log.Warn("CALLBACK", fmt.Sprintf("order %s: could not acquire transition lock: %v", cb.Reference, err))
		return &models.CallbackResponse{RedirectTo: s.cfg.CartURL}
	}
	defer unlock()

	order, err := s.DB.GetOrderByID(ctx, cb.Reference)
	if err != nil {
		s.log.Error("CALLBACK", fmt.Sprintf("order %s not found for callback", cb.Reference))
		return &models.CallbackResponse{RedirectTo: s.cfg.CartURL}
	}

	from := order.PaymentState
	out, err := s.Machine.ReconcileCallback(ctx, s.Mode, order, cb)
	if err != nil {
		// A conflicting replay still carries the manual-review signals.
		if errors.Is(err, ErrCallbackConflict) && out != nil {
			s.applySignals(ctx, order, out)
		}
		s.log.LogCallback(order.OrderID, fmt.Sprintf("rejected: %v", err))
		return &models.CallbackResponse{RedirectTo: s.cartURL(order), OrderState: order.PaymentState}
	}

	if err := s.commit(ctx, from, order, out); err != nil {
		s.log.Error("CALLBACK", fmt.Sprintf("order %s: failed to persist reconciliation: %v", order.OrderID, err))
		return &models.CallbackResponse{RedirectTo: s.cartURL(order), OrderState: order.PaymentState}
	}

	if out.Approved {
		return &models.CallbackResponse{RedirectTo: s.returnURL(order), OrderState: order.PaymentState}
	}
	return &models.CallbackResponse{RedirectTo: s.cartURL(order), OrderState: order.PaymentState}
}

// Capture is the operator action converting an authorization into funds.
func (s *Service) Capture(ctx context.Context, orderID string) (*Outcome, error) {
	return s.operatorTransition(ctx, orderID, s.Machine.Capture)
}

// Void is the operator action reversing an uncaptured authorization.
func (s *Service) Void(ctx context.Context, orderID string) (*Outcome, error) {
	return s.operatorTransition(ctx, orderID, s.Machine.Void)
}

// Refund refunds part or all of a captured payment.
func (s *Service) Refund(ctx context.Context, orderID string, amount int64, reason string) (*Outcome, error) {
	return s.operatorTransition(ctx, orderID, func(ctx context.Context, order *models.Order) (*Outcome, error) {
		return s.Machine.Refund(ctx, order, amount, reason)
	})
}

// ScheduledCharge charges a renewal or pre-order release against the order's
// stored customer reference.
func (s *Service) ScheduledCharge(ctx context.Context, orderID string) (*Outcome, error) {
	return s.operatorTransition(ctx, orderID, s.Subscriptions.ScheduledCharge)
}

func (s *Service) operatorTransition(ctx context.Context, orderID string,
	op func(context.Context, *models.Order) (*Outcome, error)) (*Outcome, error) {

	unlock, err := s.lock(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	order, err := s.DB.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	from := order.PaymentState
	out, err := op(ctx, order)
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, from, order, out); err != nil {
		return nil, err
	}
	return out, nil
}

// lock serializes transitions per order. Failing to take the lock means
// another transition is in flight; the caller backs off rather than queueing.
func (s *Service) lock(ctx context.Context, orderID string) (func(), error) {
	owner := utils.GenerateLockOwner()
	ok, err := s.Redis.LockOrder(ctx, orderID, owner)
	if err != nil {
		return nil, fmt.Errorf("order lock error: %w", err)
	}
	if !ok {
		return nil, &InvalidStateError{OrderID: orderID, Reason: "another transition is already in progress"}
	}
	return func() {
		if err := s.Redis.UnlockOrder(ctx, orderID, owner); err != nil {
			s.log.Warn("REDIS", fmt.Sprintf("failed to release lock for order %s: %v", orderID, err))
		}
	}, nil
}

// commit persists the mutated order and applies the machine's signals. The
// state swap is a compare-and-set so a racing transition loses cleanly.
func (s *Service) commit(ctx context.Context, from models.PaymentState, order *models.Order, out *Outcome) error {
	if out.State != "" && out.State != from {
		ok, err := s.DB.CasPaymentState(ctx, order.OrderID, from, out.State)
		if err != nil {
			return err
		}
		if !ok {
			return &InvalidStateError{OrderID: order.OrderID, From: from, To: out.State,
				Reason: "concurrent modification during transition"}
		}
	}
	if err := s.DB.UpdateOrder(ctx, order); err != nil {
		return err
	}

	s.recordTransaction(order, out)
	s.applySignals(ctx, order, out)
	return nil
}

func (s *Service) recordTransaction(order *models.Order, out *Outcome) {
	if s.TxnLog == nil || out.Kind == "" || (out.GatewayRef == "" && out.AmountMinor == 0) {
		return
	}
	status := "declined"
	if out.Approved {
		status = "approved"
	}
	txn := &models.Transaction{
		TransactionID: utils.GenerateTransactionID(),
		OrderID:       order.OrderID,
		Kind:          out.Kind,
		GatewayRef:    out.GatewayRef,
		AmountMinor:   out.AmountMinor,
		Currency:      order.Currency,
		Status:        status,
		AuthCode:      out.AuthCode,
		CreatedDate:   time.Now(),
	}
	if err := s.TxnLog.SaveTransaction(txn); err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("failed to log transaction for order %s: %v", order.OrderID, err))
	}
}

func (s *Service) applySignals(ctx context.Context, order *models.Order, out *Outcome) {
	for _, sig := range out.Signals {
		switch sig.Kind {
		case SignalRecordNote:
			if err := s.DB.AddNote(ctx, order.OrderID, sig.Note); err != nil {
				s.log.Error("DATABASE", fmt.Sprintf("failed to add note for order %s: %v", order.OrderID, err))
			}
		case SignalMarkPaid:
			s.emit(order, out, "payment.succeeded")
		case SignalMarkProcessing:
			s.emit(order, out, "payment.authorized")
		case SignalMarkFailed:
			s.emit(order, out, "payment.failed")
		case SignalRestock:
			// Void releases the held funds and the reserved goods.
			s.emit(order, out, "payment.reversed")
		case SignalManualReview:
			if err := s.DB.AddNote(ctx, order.OrderID, "Order requires manual payment reconciliation"); err != nil {
				s.log.Error("DATABASE", fmt.Sprintf("failed to flag order %s for review: %v", order.OrderID, err))
			}
		}
	}
	if out.Kind == models.TxnRefund && out.Approved {
		s.emit(order, out, "payment.refunded")
	}
}

func (s *Service) emit(order *models.Order, out *Outcome, eventType string) {
	event := models.PaymentEvent{
		Type:        eventType,
		OrderID:     order.OrderID,
		State:       order.PaymentState,
		GatewayRef:  out.GatewayRef,
		AmountMinor: out.AmountMinor,
		Timestamp:   time.Now(),
	}
	if s.Kafka != nil {
		var err error
		switch eventType {
		case "payment.succeeded":
			err = s.Kafka.PublishPaymentSucceeded(event)
		case "payment.failed":
			err = s.Kafka.PublishPaymentFailed(event)
		case "payment.refunded", "payment.reversed":
			err = s.Kafka.PublishPaymentRefunded(event)
		}
		if err != nil {
			s.log.Error("KAFKA", fmt.Sprintf("failed to publish %s for order %s: %v", eventType, order.OrderID, err))
		}
	}
	if s.Notifier != nil {
		s.Notifier.Emit(event)
	}
}

func (s *Service) returnURL(order *models.Order) string {
	if order.ReturnURL != "" {
		return order.ReturnURL
	}
	return s.cfg.ReturnURL
}

func (s *Service) cartURL(order *models.Order) string {
	if order.CartURL != "" {
		return order.CartURL
	}
	return s.cfg.CartURL
}
