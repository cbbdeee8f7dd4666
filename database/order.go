package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/pledgerhq/pledger/internal/apierror"
	"github.com/pledgerhq/pledger/model"
)

// CreateOrder persists an order and, when present, its subscription and the
// first contribution transaction, all in one atomic scope.
func (d Datasource) CreateOrder(ctx context.Context, ord *model.Order, subscription *model.Subscription, txn *model.Transaction) error {
	ctx, span := otel.Tracer("order.datasource").Start(ctx, "Saving order to db")
	defer span.End()

	metaDataJSON, err := json.Marshal(ord.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	return d.withTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO pledger.orders(order_id,source_account_id,destination_account_id,amount,currency,interval,status,payment_method_id,description,public_message,created_at,meta_data) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			ord.OrderID, ord.SourceAccountID, ord.DestinationAccountID, ord.Amount, ord.Currency, ord.Interval, ord.Status, ord.PaymentMethodID, ord.Description, ord.PublicMessage, ord.CreatedAt, metaDataJSON,
		)
		if err != nil {
			return mapPostgresError(err, "Failed to record order")
		}

		if subscription != nil {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO pledger.subscriptions(subscription_id,order_id,amount,currency,interval,payment_method_id,next_charge_at,active,created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
				subscription.SubscriptionID, subscription.OrderID, subscription.Amount, subscription.Currency, subscription.Interval, subscription.PaymentMethodID, subscription.NextChargeAt, subscription.Active, subscription.CreatedAt,
			)
			if err != nil {
				return mapPostgresError(err, "Failed to record subscription")
			}
		}

		if txn != nil {
			if err := insertTransaction(ctx, tx, txn); err != nil {
				return err
			}
		}
		return nil
	})
}

const selectOrderColumns = `
	SELECT order_id, source_account_id, destination_account_id, amount, currency, interval, status, payment_method_id, description, public_message, created_at, meta_data
	FROM pledger.orders
`

func scanOrder(row *sql.Row) (*model.Order, error) {
	ord := &model.Order{}
	var metaDataJSON []byte
	err := row.Scan(&ord.OrderID, &ord.SourceAccountID, &ord.DestinationAccountID, &ord.Amount, &ord.Currency, &ord.Interval, &ord.Status, &ord.PaymentMethodID, &ord.Description, &ord.PublicMessage, &ord.CreatedAt, &metaDataJSON)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metaDataJSON, &ord.MetaData); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
	}
	return ord, nil
}

// GetOrderByID retrieves an order by its ID.
func (d Datasource) GetOrderByID(ctx context.Context, id string) (*model.Order, error) {
	row := d.Conn.QueryRowContext(ctx, selectOrderColumns+`WHERE order_id = $1`, id)
	ord, err := scanOrder(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Order with ID '%s' not found", id), err)
		}
		if _, ok := err.(apierror.APIError); ok {
			return nil, err
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve order", err)
	}
	return ord, nil
}

// CompletePledge captures a pledged order: the pending state is re-checked
// under a row lock, the payment method is attached, the order moves to paid
// and the contribution transaction is recorded, all or nothing.
func (d Datasource) CompletePledge(ctx context.Context, orderID, paymentMethodID string, txn *model.Transaction) (*model.Order, error) {
	ctx, span := otel.Tracer("order.datasource").Start(ctx, "Completing pledge")
	defer span.End()

	var ord *model.Order
	err := d.withTransaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, selectOrderColumns+`WHERE order_id = $1 FOR UPDATE`, orderID)
		current, err := scanOrder(row)
		if err != nil {
			if err == sql.ErrNoRows {
				return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Order with ID '%s' not found", orderID), err)
			}
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve order", err)
		}

		if current.Status != model.OrderStatusPending {
			return apierror.NewAPIError(apierror.ErrInvalidState, fmt.Sprintf("Order '%s' is not a pending pledge (status: %s)", orderID, current.Status), nil)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE pledger.orders SET status = $2, payment_method_id = $3 WHERE order_id = $1`,
			orderID, model.OrderStatusPaid, paymentMethodID,
		)
		if err != nil {
			return mapPostgresError(err, "Failed to capture pledge")
		}

		if err := insertTransaction(ctx, tx, txn); err != nil {
			return err
		}

		current.Status = model.OrderStatusPaid
		current.PaymentMethodID = paymentMethodID
		ord = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ord, nil
}

// UpdateOrderMessage mutates the order's public message only. No ledger
// interaction.
func (d Datasource) UpdateOrderMessage(ctx context.Context, orderID, publicMessage string) (*model.Order, error) {
	result, err := d.Conn.ExecContext(ctx,
		`UPDATE pledger.orders SET public_message = $2 WHERE order_id = $1`,
		orderID, publicMessage,
	)
	if err != nil {
		return nil, mapPostgresError(err, "Failed to update order message")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Order with ID '%s' not found", orderID), nil)
	}
	return d.GetOrderByID(ctx, orderID)
}

const selectSubscriptionColumns = `
	SELECT subscription_id, order_id, amount, currency, interval, payment_method_id, next_charge_at, active, deactivated_at, created_at
	FROM pledger.subscriptions
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscription(row rowScanner) (*model.Subscription, error) {
	sub := &model.Subscription{}
	var deactivatedAt sql.NullTime
	err := row.Scan(&sub.SubscriptionID, &sub.OrderID, &sub.Amount, &sub.Currency, &sub.Interval, &sub.PaymentMethodID, &sub.NextChargeAt, &sub.Active, &deactivatedAt, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	if deactivatedAt.Valid {
		sub.DeactivatedAt = &deactivatedAt.Time
	}
	return sub, nil
}

// GetSubscriptionByID retrieves a subscription by its ID.
func (d Datasource) GetSubscriptionByID(ctx context.Context, id string) (*model.Subscription, error) {
	row := d.Conn.QueryRowContext(ctx, selectSubscriptionColumns+`WHERE subscription_id = $1`, id)
	sub, err := scanSubscription(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Subscription with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve subscription", err)
	}
	return sub, nil
}

// CancelSubscription deactivates the subscription and cancels its order.
// Transactions already recorded for past charges are never touched.
func (d Datasource) CancelSubscription(ctx context.Context, id string) (*model.Subscription, error) {
	var sub *model.Subscription
	err := d.withTransaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, selectSubscriptionColumns+`WHERE subscription_id = $1 FOR UPDATE`, id)
		current, err := scanSubscription(row)
		if err != nil {
			if err == sql.ErrNoRows {
				return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Subscription with ID '%s' not found", id), err)
			}
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve subscription", err)
		}

		now := time.Now()
		_, err = tx.ExecContext(ctx,
			`UPDATE pledger.subscriptions SET active = false, deactivated_at = $2 WHERE subscription_id = $1`,
			id, now,
		)
		if err != nil {
			return mapPostgresError(err, "Failed to cancel subscription")
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE pledger.orders SET status = $2 WHERE order_id = $1`,
			current.OrderID, model.OrderStatusCancelled,
		)
		if err != nil {
			return mapPostgresError(err, "Failed to cancel order")
		}

		current.Active = false
		current.DeactivatedAt = &now
		sub = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// UpdateSubscription mutates the amount and/or payment method used for
// future charges only.
func (d Datasource) UpdateSubscription(ctx context.Context, id string, amount *int64, paymentMethodID string) (*model.Subscription, error) {
	var sub *model.Subscription
	err := d.withTransaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, selectSubscriptionColumns+`WHERE subscription_id = $1 FOR UPDATE`, id)
		current, err := scanSubscription(row)
		if err != nil {
			if err == sql.ErrNoRows {
				return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Subscription with ID '%s' not found", id), err)
			}
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve subscription", err)
		}

		if amount != nil {
			current.Amount = *amount
		}
		if paymentMethodID != "" {
			current.PaymentMethodID = paymentMethodID
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE pledger.subscriptions SET amount = $2, payment_method_id = $3 WHERE subscription_id = $1`,
			id, current.Amount, current.PaymentMethodID,
		)
		if err != nil {
			return mapPostgresError(err, "Failed to update subscription")
		}
		sub = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// RecordSubscriptionCharge records a renewal contribution and advances the
// next-charge date in one atomic scope.
func (d Datasource) RecordSubscriptionCharge(ctx context.Context, id string, txn *model.Transaction, nextChargeAt time.Time) error {
	return d.withTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE pledger.subscriptions SET next_charge_at = $2 WHERE subscription_id = $1 AND active = true`,
			id, nextChargeAt,
		)
		if err != nil {
			return mapPostgresError(err, "Failed to advance next charge date")
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
		}
		if rowsAffected == 0 {
			return apierror.NewAPIError(apierror.ErrInvalidState, fmt.Sprintf("Subscription '%s' is not active", id), nil)
		}
		return insertTransaction(ctx, tx, txn)
	})
}
