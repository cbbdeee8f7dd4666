package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/lib/pq"
	"github.com/pledgerhq/pledger/internal/apierror"
	"github.com/pledgerhq/pledger/model"
	"github.com/stretchr/testify/assert"
)

var transactionColumns = []string{"transaction_id", "type", "source_account_id", "destination_account_id", "amount", "currency", "order_id", "expense_id", "payment_method_id", "parent_transaction_id", "description", "reference", "created_at", "meta_data"}

func transactionRow(txnType string, amount int64) *sqlmock.Rows {
	metaDataJSON, _ := json.Marshal(map[string]interface{}{})
	return sqlmock.NewRows(transactionColumns).
		AddRow("txn1", txnType, "acc_src", "acc_dst", amount, "USD", "ord1", "", "pm1", "", "monthly contribution", "ref_abc", time.Now(), metaDataJSON)
}

func TestRecordTransaction_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO pledger.transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	txn := &model.Transaction{
		TransactionID:        "txn1",
		Type:                 model.TransactionTypeContribution,
		SourceAccountID:      "acc_src",
		DestinationAccountID: "acc_dst",
		Amount:               5000,
		Currency:             "USD",
		CreatedAt:            time.Now(),
	}
	recorded, err := ds.RecordTransaction(context.Background(), txn)
	assert.NoError(t, err)
	assert.Equal(t, "txn1", recorded.TransactionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordTransaction_Conflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO pledger.transactions").
		WillReturnError(&pq.Error{Code: "23505", Message: "unique_violation"})
	mock.ExpectRollback()

	_, err = ds.RecordTransaction(context.Background(), &model.Transaction{TransactionID: "txn1", CreatedAt: time.Now()})
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
}

func TestGetTransaction_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("FROM pledger.transactions\\s+WHERE transaction_id = \\$1").
		WithArgs("txn_missing").
		WillReturnError(sql.ErrNoRows)

	_, err = ds.GetTransaction(context.Background(), "txn_missing")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}

func TestRecordRefund_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	mock.ExpectQuery("FROM pledger.transactions\\s+WHERE transaction_id = \\$1 FOR UPDATE").
		WithArgs("txn1").
		WillReturnRows(transactionRow(model.TransactionTypeContribution, 5000))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("txn1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO pledger.transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	refund, err := ds.RecordRefund(context.Background(), "txn1")
	assert.NoError(t, err)
	assert.Equal(t, model.TransactionTypeRefund, refund.Type)
	assert.Equal(t, int64(-5000), refund.Amount)
	assert.Equal(t, "txn1", refund.ParentTransactionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRefund_AlreadyRefunded(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	mock.ExpectQuery("FROM pledger.transactions\\s+WHERE transaction_id = \\$1 FOR UPDATE").
		WithArgs("txn1").
		WillReturnRows(transactionRow(model.TransactionTypeContribution, 5000))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("txn1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err = ds.RecordRefund(context.Background(), "txn1")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrAlreadyRefunded, apiErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRefund_RefundOfRefund(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	mock.ExpectQuery("FROM pledger.transactions\\s+WHERE transaction_id = \\$1 FOR UPDATE").
		WithArgs("txn1").
		WillReturnRows(transactionRow(model.TransactionTypeRefund, -5000))
	mock.ExpectRollback()

	_, err = ds.RecordRefund(context.Background(), "txn1")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrInvalidState, apiErr.Code)
}

func TestRecordRefund_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	mock.ExpectQuery("FROM pledger.transactions\\s+WHERE transaction_id = \\$1 FOR UPDATE").
		WithArgs("txn_missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err = ds.RecordRefund(context.Background(), "txn_missing")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}

func TestGetBalance_SignedSum(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("FROM pledger.transactions\\s+WHERE destination_account_id = \\$1 OR source_account_id = \\$1").
		WithArgs("acc1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(4200)))

	balance, err := ds.GetBalance(context.Background(), "acc1")
	assert.NoError(t, err)
	assert.Equal(t, int64(4200), balance)
}

func TestGetHostManagedBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("FROM pledger.transactions t\\s+JOIN pledger.accounts a").
		WithArgs("acc_host").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(99000)))

	balance, err := ds.GetHostManagedBalance(context.Background(), "acc_host")
	assert.NoError(t, err)
	assert.Equal(t, int64(99000), balance)
}
