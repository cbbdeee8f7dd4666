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

package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/pledgerhq/pledger"
	"github.com/pledgerhq/pledger/api/middleware"
	"github.com/pledgerhq/pledger/config"
	"github.com/pledgerhq/pledger/database"
	"github.com/pledgerhq/pledger/internal/cache"
	"github.com/pledgerhq/pledger/model"
)

type TestRequest struct {
	Payload  io.Reader
	Router   *gin.Engine
	Response interface{}
	Method   string
	Route    string
	Account  string
}

func SetUpTestRequest(s TestRequest) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(s.Method, s.Route, s.Payload)
	req.Header.Set("Content-Type", "application/json")
	if s.Account != "" {
		req.Header.Set(middleware.AccountHeader, s.Account)
	}
	resp := httptest.NewRecorder()
	s.Router.ServeHTTP(resp, req)

	if s.Response != nil {
		if err := json.NewDecoder(resp.Body).Decode(s.Response); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func setupRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("error starting miniredis: %s", err)
	}
	t.Cleanup(mr.Close)

	config.MockConfig(&config.Configuration{
		Redis: config.RedisConfig{Dns: mr.Addr()},
		Queue: config.QueueConfig{MailQueue: "new:mail", SubscriptionQueue: "new:subscription"},
	})

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening stub database connection: %s", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	newCache, err := cache.NewCache()
	if err != nil {
		t.Fatalf("error creating cache: %s", err)
	}

	p, err := pledger.NewPledger(&database.Datasource{Conn: db, Cache: newCache})
	if err != nil {
		t.Fatalf("error creating service instance: %s", err)
	}

	return NewAPI(p).Router(), mock
}

func jsonBody(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("error marshaling request body: %s", err)
	}
	return bytes.NewReader(body)
}

var testAccountColumns = []string{"account_id", "name", "type", "currency", "host_account_id", "tags", "email", "created_at", "meta_data"}

func expectAccountLookup(mock sqlmock.Sqlmock, id, accType, currency, hostID string) {
	tagsJSON, _ := json.Marshal([]string{})
	metaDataJSON, _ := json.Marshal(map[string]interface{}{})
	mock.ExpectQuery("FROM pledger.accounts\\s+WHERE account_id = \\$1").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(testAccountColumns).
			AddRow(id, "account "+id, accType, currency, hostID, tagsJSON, "", time.Now(), metaDataJSON))
}

func TestCreateOrderEndpoint_PledgeStaysPending(t *testing.T) {
	router, mock := setupRouter(t)

	expectAccountLookup(mock, "acc_dst", model.AccountTypeCollective, "USD", "acc_host")
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO pledger.orders").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	var response model.Order
	resp, err := SetUpTestRequest(TestRequest{
		Payload: jsonBody(t, map[string]interface{}{
			"source_account_id":      "acc_src",
			"destination_account_id": "acc_dst",
			"amount":                 50.0,
			"currency":               "USD",
		}),
		Response: &response,
		Method:   "POST",
		Route:    "/orders",
		Router:   router,
		Account:  "acc_src",
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, model.OrderStatusPending, response.Status)
	assert.Equal(t, int64(5000), response.Amount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderEndpoint_RecurringWithoutPaymentMethod(t *testing.T) {
	router, _ := setupRouter(t)

	resp, err := SetUpTestRequest(TestRequest{
		Payload: jsonBody(t, map[string]interface{}{
			"source_account_id":      "acc_src",
			"destination_account_id": "acc_dst",
			"amount":                 10.0,
			"currency":               "USD",
			"interval":               model.IntervalMonthly,
		}),
		Method:  "POST",
		Route:   "/orders",
		Router:  router,
		Account: "acc_src",
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCreateOrderEndpoint_MissingSource(t *testing.T) {
	router, _ := setupRouter(t)

	resp, err := SetUpTestRequest(TestRequest{
		Payload: jsonBody(t, map[string]interface{}{
			"destination_account_id": "acc_dst",
			"amount":                 10.0,
		}),
		Method:  "POST",
		Route:   "/orders",
		Router:  router,
		Account: "acc_src",
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestApproveExpenseEndpoint_ForbiddenForStrangers(t *testing.T) {
	router, mock := setupRouter(t)

	metaDataJSON, _ := json.Marshal(map[string]interface{}{})
	mock.ExpectQuery("FROM pledger.expenses\\s+WHERE expense_id = \\$1").
		WithArgs("exp1").
		WillReturnRows(sqlmock.NewRows([]string{"expense_id", "account_id", "payee_account_id", "amount", "currency", "description", "attachment", "status", "processor_fee", "host_fee", "platform_fee", "created_at", "meta_data"}).
			AddRow("exp1", "acc_collective", "acc_payee", int64(12000), "USD", "travel", "", model.ExpenseStatusPending, int64(0), int64(0), int64(0), time.Now(), metaDataJSON))
	expectAccountLookup(mock, "acc_collective", model.AccountTypeCollective, "USD", "acc_host")
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("acc_host", "acc_stranger", model.RoleAdmin).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	resp, err := SetUpTestRequest(TestRequest{
		Method:  "POST",
		Route:   "/expenses/exp1/approve",
		Router:  router,
		Account: "acc_stranger",
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimVirtualCardEndpoint_RequiresCode(t *testing.T) {
	router, _ := setupRouter(t)

	resp, err := SetUpTestRequest(TestRequest{
		Payload: jsonBody(t, map[string]interface{}{}),
		Method:  "POST",
		Route:   "/virtual-cards/claim",
		Router:  router,
		Account: "acc_user",
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestRefundTransactionEndpoint_SecondRefundConflicts(t *testing.T) {
	router, mock := setupRouter(t)

	metaDataJSON, _ := json.Marshal(map[string]interface{}{})
	txnRow := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"transaction_id", "type", "source_account_id", "destination_account_id", "amount", "currency", "order_id", "expense_id", "payment_method_id", "parent_transaction_id", "description", "reference", "created_at", "meta_data"}).
			AddRow("txn1", model.TransactionTypeContribution, "acc_src", "acc_dst", int64(5000), "USD", "ord1", "", "pm1", "", "contribution", "ref_abc", time.Now(), metaDataJSON)
	}

	mock.ExpectQuery("FROM pledger.transactions\\s+WHERE transaction_id = \\$1").
		WithArgs("txn1").
		WillReturnRows(txnRow())
	mock.ExpectBegin()
	mock.ExpectQuery("FROM pledger.transactions\\s+WHERE transaction_id = \\$1 FOR UPDATE").
		WithArgs("txn1").
		WillReturnRows(txnRow())
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("txn1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	resp, err := SetUpTestRequest(TestRequest{
		Method:  "POST",
		Route:   "/refund-transaction/txn1",
		Router:  router,
		Account: "acc_src",
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBalanceEndpoint(t *testing.T) {
	router, mock := setupRouter(t)

	mock.ExpectQuery("FROM pledger.transactions\\s+WHERE destination_account_id = \\$1 OR source_account_id = \\$1").
		WithArgs("acc1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(7500)))

	var response map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{
		Response: &response,
		Method:   "GET",
		Route:    "/accounts/acc1/balance",
		Router:   router,
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, float64(7500), response["balance"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
