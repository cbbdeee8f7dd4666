/*
Copyright 2025 Pledger Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pledger

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/pledgerhq/pledger/internal/apierror"
	"github.com/pledgerhq/pledger/model"
)

func transactionLookupRow(txnType string, amount int64) *sqlmock.Rows {
	metaDataJSON, _ := json.Marshal(map[string]interface{}{})
	return sqlmock.NewRows([]string{"transaction_id", "type", "source_account_id", "destination_account_id", "amount", "currency", "order_id", "expense_id", "payment_method_id", "parent_transaction_id", "description", "reference", "created_at", "meta_data"}).
		AddRow("txn1", txnType, "acc_src", "acc_dst", amount, "USD", "ord1", "", "pm1", "", "contribution", "ref_abc", time.Now(), metaDataJSON)
}

func TestRefundTransaction_NegatesAndLinks(t *testing.T) {
	p, mock := newTestPledger(t)

	mock.ExpectQuery("FROM pledger.transactions\\s+WHERE transaction_id = \\$1").
		WithArgs("txn1").
		WillReturnRows(transactionLookupRow(model.TransactionTypeContribution, 5000))
	mock.ExpectBegin()
	mock.ExpectQuery("FROM pledger.transactions\\s+WHERE transaction_id = \\$1 FOR UPDATE").
		WithArgs("txn1").
		WillReturnRows(transactionLookupRow(model.TransactionTypeContribution, 5000))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("txn1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO pledger.transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	refund, err := p.RefundTransaction(context.Background(), "acc_src", "txn1")
	assert.NoError(t, err)
	assert.Equal(t, model.TransactionTypeRefund, refund.Type)
	assert.Equal(t, int64(-5000), refund.Amount)
	assert.Equal(t, "txn1", refund.ParentTransactionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefundTransaction_SecondRefundConflicts(t *testing.T) {
	p, mock := newTestPledger(t)

	mock.ExpectQuery("FROM pledger.transactions\\s+WHERE transaction_id = \\$1").
		WithArgs("txn1").
		WillReturnRows(transactionLookupRow(model.TransactionTypeContribution, 5000))
	mock.ExpectBegin()
	mock.ExpectQuery("FROM pledger.transactions\\s+WHERE transaction_id = \\$1 FOR UPDATE").
		WithArgs("txn1").
		WillReturnRows(transactionLookupRow(model.TransactionTypeContribution, 5000))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("txn1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := p.RefundTransaction(context.Background(), "acc_src", "txn1")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrAlreadyRefunded, apiErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefundTransaction_NeitherSideForbidden(t *testing.T) {
	p, mock := newTestPledger(t)

	mock.ExpectQuery("FROM pledger.transactions\\s+WHERE transaction_id = \\$1").
		WithArgs("txn1").
		WillReturnRows(transactionLookupRow(model.TransactionTypeContribution, 5000))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("acc_src", "acc_stranger", model.RoleAdmin).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("acc_dst", "acc_stranger", model.RoleAdmin).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := p.RefundTransaction(context.Background(), "acc_stranger", "txn1")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrForbidden, apiErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBalance_Derived(t *testing.T) {
	p, mock := newTestPledger(t)

	mock.ExpectQuery("FROM pledger.transactions\\s+WHERE destination_account_id = \\$1 OR source_account_id = \\$1").
		WithArgs("acc1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(7500)))

	balance, err := p.GetBalance(context.Background(), "acc1")
	assert.NoError(t, err)
	assert.Equal(t, int64(7500), balance)
}
