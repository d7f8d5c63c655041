package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ms-payment-gateway/internal/models"

	"github.com/uptrace/bun"
)

// ErrOrderNotFound is returned when no order row exists for the given id.
var ErrOrderNotFound = errors.New("order not found")

type DB struct {
	Bun *bun.DB
}

// ---------------- ORDERS ----------------

// CreateOrder → insert new order in the Unpaid state
func (d *DB) CreateOrder(ctx context.Context, order models.Order) error {
	if order.PaymentState == "" {
		order.PaymentState = models.StateUnpaid
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	_, err := d.Bun.NewInsert().Model(&order).Exec(ctx)
	return err
}

// GetOrderByID → fetch one order by its ID
func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("order_id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrder → persist the payment fields mutated by a transition
func (d *DB) UpdateOrder(ctx context.Context, order *models.Order) error {
	order.UpdatedAt = time.Now()
	_, err := d.Bun.NewUpdate().
		Model(order).
		Column("payment_state", "captured", "refunded_minor_units",
			"gateway_payment_id", "gateway_authorization_id", "gateway_capture_id",
			"gateway_customer_id", "updated_at").
		Where("order_id = ?", order.OrderID).
		Exec(ctx)
	return err
}

// CasPaymentState → compare-and-set on the payment state. This is the
// per-order mutual-exclusion guarantee: a duplicate callback racing an
// operator capture loses the swap and is rejected.
func (d *DB) CasPaymentState(ctx context.Context, id string, from, to models.PaymentState) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("payment_state = ?", to).
		Set("updated_at = ?", time.Now()).
		Where("order_id = ?", id).
		Where("payment_state = ?", from).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// ---------------- NOTES ----------------

// AddNote → append an order note (decline reasons, gateway ids, review flags)
func (d *DB) AddNote(ctx context.Context, orderID, note string) error {
	n := models.OrderNote{
		OrderID:   orderID,
		Note:      note,
		CreatedAt: time.Now(),
	}
	_, err := d.Bun.NewInsert().Model(&n).Exec(ctx)
	return err
}

// GetNotes → fetch all notes linked to an order, oldest first
func (d *DB) GetNotes(ctx context.Context, orderID string) ([]models.OrderNote, error) {
	var notes []models.OrderNote
	err := d.Bun.NewSelect().
		Model(&notes).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return notes, nil
}
