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

// CreateExpense inserts a new expense in the pending state.
func (d Datasource) CreateExpense(ctx context.Context, exp *model.Expense) (*model.Expense, error) {
	exp.ExpenseID = model.GenerateUUIDWithSuffix("exp")
	exp.CreatedAt = time.Now()
	exp.Status = model.ExpenseStatusPending

	metaDataJSON, err := json.Marshal(exp.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	_, err = d.Conn.ExecContext(ctx,
		`INSERT INTO pledger.expenses(expense_id,account_id,payee_account_id,amount,currency,description,attachment,status,processor_fee,host_fee,platform_fee,created_at,meta_data) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		exp.ExpenseID, exp.AccountID, exp.PayeeAccountID, exp.Amount, exp.Currency, exp.Description, exp.Attachment, exp.Status, exp.ProcessorFee, exp.HostFee, exp.PlatformFee, exp.CreatedAt, metaDataJSON,
	)
	if err != nil {
		return nil, mapPostgresError(err, "Failed to create expense")
	}
	return exp, nil
}

const selectExpenseColumns = `
	SELECT expense_id, account_id, payee_account_id, amount, currency, description, attachment, status, processor_fee, host_fee, platform_fee, created_at, meta_data
	FROM pledger.expenses
`

func scanExpense(row rowScanner) (*model.Expense, error) {
	exp := &model.Expense{}
	var metaDataJSON []byte
	err := row.Scan(&exp.ExpenseID, &exp.AccountID, &exp.PayeeAccountID, &exp.Amount, &exp.Currency, &exp.Description, &exp.Attachment, &exp.Status, &exp.ProcessorFee, &exp.HostFee, &exp.PlatformFee, &exp.CreatedAt, &metaDataJSON)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metaDataJSON, &exp.MetaData); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
	}
	return exp, nil
}

// GetExpenseByID retrieves an expense by its ID.
func (d Datasource) GetExpenseByID(ctx context.Context, id string) (*model.Expense, error) {
	row := d.Conn.QueryRowContext(ctx, selectExpenseColumns+`WHERE expense_id = $1`, id)
	exp, err := scanExpense(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Expense with ID '%s' not found", id), err)
		}
		if _, ok := err.(apierror.APIError); ok {
			return nil, err
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve expense", err)
	}
	return exp, nil
}

// UpdateExpense rewrites the submitter-editable fields. Only pending
// expenses are mutable; the status guard lives in the WHERE clause so a
// concurrent approval cannot slip an edit in behind it.
func (d Datasource) UpdateExpense(ctx context.Context, exp *model.Expense) (*model.Expense, error) {
	metaDataJSON, err := json.Marshal(exp.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	result, err := d.Conn.ExecContext(ctx,
		`UPDATE pledger.expenses SET amount = $2, currency = $3, description = $4, attachment = $5, payee_account_id = $6, meta_data = $7 WHERE expense_id = $1 AND status = $8`,
		exp.ExpenseID, exp.Amount, exp.Currency, exp.Description, exp.Attachment, exp.PayeeAccountID, metaDataJSON, model.ExpenseStatusPending,
	)
	if err != nil {
		return nil, mapPostgresError(err, "Failed to update expense")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		// Distinguish a missing expense from one that left pending.
		current, getErr := d.GetExpenseByID(ctx, exp.ExpenseID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, apierror.NewAPIError(apierror.ErrInvalidState, fmt.Sprintf("Expense '%s' can no longer be edited (status: %s)", exp.ExpenseID, current.Status), nil)
	}
	return d.GetExpenseByID(ctx, exp.ExpenseID)
}

// DeleteExpense removes a pending expense. Approved, rejected and paid
// expenses stay on record.
func (d Datasource) DeleteExpense(ctx context.Context, id string) error {
	result, err := d.Conn.ExecContext(ctx,
		`DELETE FROM pledger.expenses WHERE expense_id = $1 AND status = $2`,
		id, model.ExpenseStatusPending,
	)
	if err != nil {
		return mapPostgresError(err, "Failed to delete expense")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		current, getErr := d.GetExpenseByID(ctx, id)
		if getErr != nil {
			return getErr
		}
		return apierror.NewAPIError(apierror.ErrInvalidState, fmt.Sprintf("Expense '%s' can no longer be deleted (status: %s)", id, current.Status), nil)
	}
	return nil
}

// UpdateExpenseStatus drives the approval state machine. The current status
// is read under a row lock so two concurrent decisions cannot both win.
func (d Datasource) UpdateExpenseStatus(ctx context.Context, id, newStatus string) (*model.Expense, error) {
	ctx, span := otel.Tracer("expense.datasource").Start(ctx, "Updating expense status")
	defer span.End()

	var exp *model.Expense
	err := d.withTransaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, selectExpenseColumns+`WHERE expense_id = $1 FOR UPDATE`, id)
		current, err := scanExpense(row)
		if err != nil {
			if err == sql.ErrNoRows {
				return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Expense with ID '%s' not found", id), err)
			}
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve expense", err)
		}

		if !model.CanTransitionExpense(current.Status, newStatus) {
			return apierror.NewAPIError(apierror.ErrInvalidState, fmt.Sprintf("Expense '%s' cannot move from %s to %s", id, current.Status, newStatus), nil)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE pledger.expenses SET status = $2 WHERE expense_id = $1`,
			id, newStatus,
		)
		if err != nil {
			return mapPostgresError(err, "Failed to update expense status")
		}

		current.Status = newStatus
		exp = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return exp, nil
}

// PayExpense settles an approved expense. Inside one transaction it locks
// the expense row, re-checks the approved state, verifies the host's managed
// pool covers the gross amount, records the payout transaction and marks the
// expense paid with its fee breakdown.
func (d Datasource) PayExpense(ctx context.Context, id string, fees model.FeeBreakdown, hostAccountID string, txn *model.Transaction) (*model.Expense, error) {
	ctx, span := otel.Tracer("expense.datasource").Start(ctx, "Paying expense")
	defer span.End()

	var exp *model.Expense
	err := d.withTransaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, selectExpenseColumns+`WHERE expense_id = $1 FOR UPDATE`, id)
		current, err := scanExpense(row)
		if err != nil {
			if err == sql.ErrNoRows {
				return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Expense with ID '%s' not found", id), err)
			}
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve expense", err)
		}

		if current.Status != model.ExpenseStatusApproved {
			return apierror.NewAPIError(apierror.ErrInvalidState, fmt.Sprintf("Expense '%s' is not approved (status: %s)", id, current.Status), nil)
		}

		var poolBalance int64
		err = tx.QueryRowContext(ctx, hostManagedBalanceQuery, hostAccountID).Scan(&poolBalance)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to compute host pool balance", err)
		}
		if poolBalance < current.Amount {
			return apierror.NewAPIError(apierror.ErrInsufficientFunds, fmt.Sprintf("Host pool balance %d does not cover expense amount %d", poolBalance, current.Amount), nil)
		}

		if err := insertTransaction(ctx, tx, txn); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE pledger.expenses SET status = $2, processor_fee = $3, host_fee = $4, platform_fee = $5 WHERE expense_id = $1`,
			id, model.ExpenseStatusPaid, fees.ProcessorFee, fees.HostFee, fees.PlatformFee,
		)
		if err != nil {
			return mapPostgresError(err, "Failed to mark expense paid")
		}

		current.Status = model.ExpenseStatusPaid
		current.ProcessorFee = fees.ProcessorFee
		current.HostFee = fees.HostFee
		current.PlatformFee = fees.PlatformFee
		exp = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return exp, nil
}
