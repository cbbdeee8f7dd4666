package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/pledgerhq/pledger/internal/apierror"
	"github.com/pledgerhq/pledger/model"
)

const insertTransactionQuery = `
	INSERT INTO pledger.transactions(transaction_id,type,source_account_id,destination_account_id,amount,currency,order_id,expense_id,payment_method_id,parent_transaction_id,description,reference,created_at,meta_data)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`

// insertTransaction writes a transaction row inside an already-open database
// transaction. Composite mutations share it so the ledger write always
// commits or aborts with the state change it records.
func insertTransaction(ctx context.Context, tx *sql.Tx, txn *model.Transaction) error {
	metaDataJSON, err := json.Marshal(txn.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}
	_, err = tx.ExecContext(ctx, insertTransactionQuery,
		txn.TransactionID, txn.Type, txn.SourceAccountID, txn.DestinationAccountID, txn.Amount, txn.Currency,
		txn.OrderID, txn.ExpenseID, txn.PaymentMethodID, txn.ParentTransactionID, txn.Description, txn.Reference,
		txn.CreatedAt, metaDataJSON,
	)
	if err != nil {
		return mapPostgresError(err, "Failed to record transaction")
	}
	return nil
}

// RecordTransaction writes a standalone ledger entry.
func (d Datasource) RecordTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	ctx, span := otel.Tracer("transaction.datasource").Start(ctx, "Saving transaction to db")
	defer span.End()

	err := d.withTransaction(ctx, func(tx *sql.Tx) error {
		return insertTransaction(ctx, tx, txn)
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

const selectTransactionColumns = `
	SELECT transaction_id, type, source_account_id, destination_account_id, amount, currency, order_id, expense_id, payment_method_id, parent_transaction_id, description, reference, created_at, meta_data
	FROM pledger.transactions
`

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	txn := &model.Transaction{}
	var metaDataJSON []byte
	err := row.Scan(&txn.TransactionID, &txn.Type, &txn.SourceAccountID, &txn.DestinationAccountID, &txn.Amount, &txn.Currency, &txn.OrderID, &txn.ExpenseID, &txn.PaymentMethodID, &txn.ParentTransactionID, &txn.Description, &txn.Reference, &txn.CreatedAt, &metaDataJSON)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metaDataJSON, &txn.MetaData); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
	}
	return txn, nil
}

// GetTransaction retrieves a transaction by its ID.
func (d Datasource) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	row := d.Conn.QueryRowContext(ctx, selectTransactionColumns+`WHERE transaction_id = $1`, id)
	txn, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with ID '%s' not found", id), err)
		}
		if _, ok := err.(apierror.APIError); ok {
			return nil, err
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transaction", err)
	}
	return txn, nil
}

// RecordRefund reverses a transaction. The original row is locked so two
// racing refunds serialize; whichever loses finds the refund already on
// record. A transaction can be refunded at most once.
func (d Datasource) RecordRefund(ctx context.Context, originalID string) (*model.Transaction, error) {
	ctx, span := otel.Tracer("transaction.datasource").Start(ctx, "Recording refund")
	defer span.End()

	var refund *model.Transaction
	err := d.withTransaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, selectTransactionColumns+`WHERE transaction_id = $1 FOR UPDATE`, originalID)
		original, err := scanTransaction(row)
		if err != nil {
			if err == sql.ErrNoRows {
				return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with ID '%s' not found", originalID), err)
			}
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transaction", err)
		}

		if original.Type == model.TransactionTypeRefund {
			return apierror.NewAPIError(apierror.ErrInvalidState, "A refund cannot itself be refunded", nil)
		}

		var alreadyRefunded bool
		err = tx.QueryRowContext(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM pledger.transactions WHERE parent_transaction_id = $1
			)
		`, originalID).Scan(&alreadyRefunded)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check for existing refund", err)
		}
		if alreadyRefunded {
			return apierror.NewAPIError(apierror.ErrAlreadyRefunded, fmt.Sprintf("Transaction '%s' has already been refunded", originalID), nil)
		}

		reversed := original.Reverse()
		if err := insertTransaction(ctx, tx, reversed); err != nil {
			return err
		}
		refund = reversed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refund, nil
}

// GetBalance derives an account's balance as the signed sum of its ledger
// entries: credits into the account minus debits out of it. Balances are
// never stored, so a refund or payout is reflected the instant its
// transaction commits.
func (d Datasource) GetBalance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(
			CASE
				WHEN destination_account_id = $1 THEN amount
				ELSE -amount
			END
		), 0)
		FROM pledger.transactions
		WHERE destination_account_id = $1 OR source_account_id = $1
	`, accountID).Scan(&balance)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to compute balance", err)
	}
	return balance, nil
}

const hostManagedBalanceQuery = `
	SELECT COALESCE(SUM(
		CASE
			WHEN t.destination_account_id = a.account_id THEN t.amount
			ELSE -t.amount
		END
	), 0)
	FROM pledger.transactions t
	JOIN pledger.accounts a
		ON a.account_id IN (t.source_account_id, t.destination_account_id)
	WHERE a.account_id = $1 OR a.host_account_id = $1
`

// GetHostManagedBalance sums the balances of a host account and every
// account it hosts. Expense payouts draw on this pool.
func (d Datasource) GetHostManagedBalance(ctx context.Context, hostAccountID string) (int64, error) {
	var balance int64
	err := d.Conn.QueryRowContext(ctx, hostManagedBalanceQuery, hostAccountID).Scan(&balance)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to compute host pool balance", err)
	}
	return balance, nil
}
