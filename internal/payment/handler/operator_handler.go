package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ms-payment-gateway/internal/auth"
	"ms-payment-gateway/internal/gateway"
	"ms-payment-gateway/internal/logger"
	"ms-payment-gateway/internal/models"
	"ms-payment-gateway/internal/order/db"
	"ms-payment-gateway/internal/payment"
	"ms-payment-gateway/internal/payment/storage"
	"ms-payment-gateway/internal/utils"
)

// OperatorHandler exposes the back-office payment actions: capture, void,
// refund, scheduled charges and the transaction log.
type OperatorHandler struct {
	paymentService *payment.Service
	txnStore       storage.Store
	logger         *logger.Logger
}

func NewOperatorHandler(paymentService *payment.Service, txnStore storage.Store, logger *logger.Logger) *OperatorHandler {
	return &OperatorHandler{
		paymentService: paymentService,
		txnStore:       txnStore,
		logger:         logger,
	}
}

// Capture settles a previously authorized payment.
func (h *OperatorHandler) Capture(c *gin.Context) {
	orderID := c.Param("orderId")
	h.logOperator(c, "CAPTURE", orderID)

	out, err := h.paymentService.Capture(c.Request.Context(), orderID)
	if err != nil {
		h.writeError(c, "Capture failed", err)
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Capture processed", out))
}

// Void reverses an uncaptured authorization and releases the hold.
func (h *OperatorHandler) Void(c *gin.Context) {
	orderID := c.Param("orderId")
	h.logOperator(c, "VOID", orderID)

	out, err := h.paymentService.Void(c.Request.Context(), orderID)
	if err != nil {
		h.writeError(c, "Void failed", err)
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Authorization voided", out))
}

// Refund returns part or all of a captured payment to the shopper.
func (h *OperatorHandler) Refund(c *gin.Context) {
	orderID := c.Param("orderId")
	h.logOperator(c, "REFUND", orderID)

	var req models.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}
	if req.AmountMinor <= 0 {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", "amount_minor must be positive"))
		return
	}

	out, err := h.paymentService.Refund(c.Request.Context(), orderID, req.AmountMinor, req.Reason)
	if err != nil {
		h.writeError(c, "Refund failed", err)
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Refund processed", out))
}

// ScheduledCharge charges a renewal or releases a pre-order against the
// order's stored customer reference.
func (h *OperatorHandler) ScheduledCharge(c *gin.Context) {
	orderID := c.Param("orderId")
	h.logOperator(c, "SCHEDULED_CHARGE", orderID)

	out, err := h.paymentService.ScheduledCharge(c.Request.Context(), orderID)
	if err != nil {
		h.writeError(c, "Scheduled charge failed", err)
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Scheduled charge processed", out))
}

// GetOrderTransactions lists the gateway interaction log for one order.
func (h *OperatorHandler) GetOrderTransactions(c *gin.Context) {
	orderID := c.Param("orderId")

	txns, err := h.txnStore.ListTransactionsByOrder(orderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to load transactions", err.Error()))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Transactions retrieved", txns))
}

// ListTransactions pages through the full transaction log.
func (h *OperatorHandler) ListTransactions(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	txns, err := h.txnStore.ListTransactions(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to load transactions", err.Error()))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Transactions retrieved", txns))
}

func (h *OperatorHandler) writeError(c *gin.Context, title string, err error) {
	switch {
	case errors.Is(err, db.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, utils.ErrorResponse(title, "order not found"))
	case payment.IsInvalidState(err):
		c.JSON(http.StatusConflict, utils.ErrorResponse(title, err.Error()))
	case errors.Is(err, payment.ErrMissingCustomerRef):
		c.JSON(http.StatusUnprocessableEntity, utils.ErrorResponse(title, err.Error()))
	case gateway.IsValidation(err):
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(title, err.Error()))
	case gateway.IsTransport(err):
		c.JSON(http.StatusBadGateway, utils.ErrorResponse(title, "payment processor unavailable"))
	default:
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse(title, err.Error()))
	}
}

func (h *OperatorHandler) logOperator(c *gin.Context, action, orderID string) {
	operator := auth.OperatorID(c.Request.Context())
	if operator == "" {
		// Middleware normally injects the subject. Fall back to reading the
		// claim straight off the token so audit lines stay attributable.
		if raw, err := auth.ExtractTokenFromRequest(c.Request); err == nil {
			operator, _ = auth.ExtractOperatorFromJWT(raw)
		}
	}
	if operator == "" {
		operator = "unknown"
	}
	h.logger.Info("OPERATOR", fmt.Sprintf("[%s] order %s by %s", action, orderID, operator))
}
