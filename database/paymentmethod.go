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

const insertPaymentMethodQuery = `
	INSERT INTO pledger.payment_methods(payment_method_id,account_id,name,service,type,currency,token,data,monthly_limit_per_member,limited_to_tags,limited_to_collectives,limited_to_hosts,expiry_date,parent_payment_method_id,claim_code,recipient_email,claimed_at,created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
`

func paymentMethodInsertArgs(pm *model.PaymentMethod) ([]interface{}, error) {
	dataJSON, err := json.Marshal(pm.Data)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal payment method data", err)
	}
	tagsJSON, err := json.Marshal(pm.LimitedToTags)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal tag restrictions", err)
	}
	collectivesJSON, err := json.Marshal(pm.LimitedToCollectives)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal collective restrictions", err)
	}
	hostsJSON, err := json.Marshal(pm.LimitedToHosts)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal host restrictions", err)
	}
	return []interface{}{
		pm.PaymentMethodID, pm.AccountID, pm.Name, pm.Service, pm.Type, pm.Currency, pm.Token, dataJSON,
		pm.MonthlyLimitPerMember, tagsJSON, collectivesJSON, hostsJSON, pm.ExpiryDate,
		pm.ParentPaymentMethodID, pm.ClaimCode, pm.RecipientEmail, pm.ClaimedAt, pm.CreatedAt,
	}, nil
}

// CreatePaymentMethod inserts a single payment method.
func (d Datasource) CreatePaymentMethod(ctx context.Context, pm *model.PaymentMethod) (*model.PaymentMethod, error) {
	if pm.PaymentMethodID == "" {
		pm.PaymentMethodID = model.GenerateUUIDWithSuffix("pm")
	}
	pm.CreatedAt = time.Now()

	args, err := paymentMethodInsertArgs(pm)
	if err != nil {
		return nil, err
	}
	_, err = d.Conn.ExecContext(ctx, insertPaymentMethodQuery, args...)
	if err != nil {
		return nil, mapPostgresError(err, "Failed to create payment method")
	}
	return pm, nil
}

// CreatePaymentMethodsBatch inserts a set of payment methods in one atomic
// scope. Used for virtual card batches: either every card in the batch is
// minted or none is.
func (d Datasource) CreatePaymentMethodsBatch(ctx context.Context, pms []*model.PaymentMethod) error {
	ctx, span := otel.Tracer("paymentmethod.datasource").Start(ctx, "Saving payment method batch to db")
	defer span.End()

	return d.withTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertPaymentMethodQuery)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to prepare batch insert", err)
		}
		defer stmt.Close()

		for _, pm := range pms {
			args, err := paymentMethodInsertArgs(pm)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return mapPostgresError(err, fmt.Sprintf("Failed to create payment method '%s'", pm.PaymentMethodID))
			}
		}
		return nil
	})
}

const selectPaymentMethodColumns = `
	SELECT payment_method_id, account_id, name, service, type, currency, token, data, monthly_limit_per_member, limited_to_tags, limited_to_collectives, limited_to_hosts, expiry_date, parent_payment_method_id, claim_code, recipient_email, claimed_at, created_at
	FROM pledger.payment_methods
`

func scanPaymentMethod(row rowScanner) (*model.PaymentMethod, error) {
	pm := &model.PaymentMethod{}
	var dataJSON, tagsJSON, collectivesJSON, hostsJSON []byte
	var expiryDate, claimedAt sql.NullTime
	err := row.Scan(&pm.PaymentMethodID, &pm.AccountID, &pm.Name, &pm.Service, &pm.Type, &pm.Currency, &pm.Token, &dataJSON, &pm.MonthlyLimitPerMember, &tagsJSON, &collectivesJSON, &hostsJSON, &expiryDate, &pm.ParentPaymentMethodID, &pm.ClaimCode, &pm.RecipientEmail, &claimedAt, &pm.CreatedAt)
	if err != nil {
		return nil, err
	}
	if expiryDate.Valid {
		pm.ExpiryDate = &expiryDate.Time
	}
	if claimedAt.Valid {
		pm.ClaimedAt = &claimedAt.Time
	}
	restrictions := []struct {
		src []byte
		dst *[]string
	}{
		{tagsJSON, &pm.LimitedToTags},
		{collectivesJSON, &pm.LimitedToCollectives},
		{hostsJSON, &pm.LimitedToHosts},
	}
	for _, r := range restrictions {
		if len(r.src) > 0 {
			if err := json.Unmarshal(r.src, r.dst); err != nil {
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal restrictions", err)
			}
		}
	}
	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &pm.Data); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal payment method data", err)
		}
	}
	return pm, nil
}

// GetPaymentMethodByID retrieves a payment method by its ID.
func (d Datasource) GetPaymentMethodByID(ctx context.Context, id string) (*model.PaymentMethod, error) {
	row := d.Conn.QueryRowContext(ctx, selectPaymentMethodColumns+`WHERE payment_method_id = $1`, id)
	pm, err := scanPaymentMethod(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Payment method with ID '%s' not found", id), err)
		}
		if _, ok := err.(apierror.APIError); ok {
			return nil, err
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve payment method", err)
	}
	return pm, nil
}

// ClaimPaymentMethod binds an unclaimed virtual card to an account. The card
// row is locked by claim code so exactly one of two racing claims wins; the
// loser sees the card already claimed.
func (d Datasource) ClaimPaymentMethod(ctx context.Context, code, accountID string) (*model.PaymentMethod, error) {
	ctx, span := otel.Tracer("paymentmethod.datasource").Start(ctx, "Claiming virtual card")
	defer span.End()

	var pm *model.PaymentMethod
	err := d.withTransaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, selectPaymentMethodColumns+`WHERE claim_code = $1 FOR UPDATE`, code)
		current, err := scanPaymentMethod(row)
		if err != nil {
			if err == sql.ErrNoRows {
				return apierror.NewAPIError(apierror.ErrNotFound, "No virtual card matches this claim code", err)
			}
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve virtual card", err)
		}

		if current.IsClaimed() {
			return apierror.NewAPIError(apierror.ErrAlreadyClaimed, "This virtual card has already been claimed", nil)
		}

		now := time.Now()
		_, err = tx.ExecContext(ctx,
			`UPDATE pledger.payment_methods SET account_id = $2, claimed_at = $3 WHERE payment_method_id = $1`,
			current.PaymentMethodID, accountID, now,
		)
		if err != nil {
			return mapPostgresError(err, "Failed to claim virtual card")
		}

		current.AccountID = accountID
		current.ClaimedAt = &now
		pm = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pm, nil
}

// UpdatePaymentMethod mutates the editable fields of a payment method.
func (d Datasource) UpdatePaymentMethod(ctx context.Context, id, name string, monthlyLimitPerMember *int64) (*model.PaymentMethod, error) {
	var pm *model.PaymentMethod
	err := d.withTransaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, selectPaymentMethodColumns+`WHERE payment_method_id = $1 FOR UPDATE`, id)
		current, err := scanPaymentMethod(row)
		if err != nil {
			if err == sql.ErrNoRows {
				return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Payment method with ID '%s' not found", id), err)
			}
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve payment method", err)
		}

		if name != "" {
			current.Name = name
		}
		if monthlyLimitPerMember != nil {
			current.MonthlyLimitPerMember = *monthlyLimitPerMember
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE pledger.payment_methods SET name = $2, monthly_limit_per_member = $3 WHERE payment_method_id = $1`,
			id, current.Name, current.MonthlyLimitPerMember,
		)
		if err != nil {
			return mapPostgresError(err, "Failed to update payment method")
		}
		pm = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pm, nil
}

// DeletePaymentMethod removes a payment method unless a pending or active
// order still references it.
func (d Datasource) DeletePaymentMethod(ctx context.Context, id string) error {
	return d.withTransaction(ctx, func(tx *sql.Tx) error {
		var inUse bool
		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM pledger.orders
				WHERE payment_method_id = $1 AND status IN ($2, $3)
			)
		`, id, model.OrderStatusPending, model.OrderStatusActive).Scan(&inUse)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check payment method usage", err)
		}
		if inUse {
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Payment method '%s' is still used by open orders", id), nil)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM pledger.payment_methods WHERE payment_method_id = $1`, id)
		if err != nil {
			return mapPostgresError(err, "Failed to delete payment method")
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
		}
		if rowsAffected == 0 {
			return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Payment method with ID '%s' not found", id), nil)
		}
		return nil
	})
}

// AddFunds records the funding transaction that credits the target
// account, reusing the funder's existing instrument of the same type and
// currency or inserting it first, all in one atomic scope.
func (d Datasource) AddFunds(ctx context.Context, pm *model.PaymentMethod, txn *model.Transaction) (*model.PaymentMethod, error) {
	ctx, span := otel.Tracer("paymentmethod.datasource").Start(ctx, "Adding funds")
	defer span.End()

	err := d.withTransaction(ctx, func(tx *sql.Tx) error {
		var existingID string
		err := tx.QueryRowContext(ctx, `
		SELECT payment_method_id FROM pledger.payment_methods
		WHERE account_id = $1 AND type = $2 AND currency = $3
		LIMIT 1`, pm.AccountID, pm.Type, pm.Currency).Scan(&existingID)
		switch {
		case err == sql.ErrNoRows:
			if pm.PaymentMethodID == "" {
				pm.PaymentMethodID = model.GenerateUUIDWithSuffix("pm")
			}
			pm.CreatedAt = time.Now()
			args, argErr := paymentMethodInsertArgs(pm)
			if argErr != nil {
				return argErr
			}
			if _, err := tx.ExecContext(ctx, insertPaymentMethodQuery, args...); err != nil {
				return mapPostgresError(err, "Failed to create funding payment method")
			}
		case err != nil:
			return mapPostgresError(err, "Failed to look up funding payment method")
		default:
			pm.PaymentMethodID = existingID
		}
		txn.PaymentMethodID = pm.PaymentMethodID
		return insertTransaction(ctx, tx, txn)
	})
	if err != nil {
		return nil, err
	}
	return pm, nil
}
