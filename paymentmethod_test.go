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
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"

	"github.com/pledgerhq/pledger/config"
	"github.com/pledgerhq/pledger/database"
	"github.com/pledgerhq/pledger/internal/apierror"
	"github.com/pledgerhq/pledger/internal/cache"
	"github.com/pledgerhq/pledger/model"
)

func TestCreateVirtualCards_NoSizeGiven(t *testing.T) {
	p, _ := newTestPledger(t)

	_, err := p.CreateVirtualCards(context.Background(), "acc_fund", VirtualCardBatch{
		AccountID: "acc_fund",
	})
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrInvalidInput, apiErr.Code)
}

func TestCreateVirtualCards_NegativeCount(t *testing.T) {
	p, _ := newTestPledger(t)

	_, err := p.CreateVirtualCards(context.Background(), "acc_fund", VirtualCardBatch{
		AccountID: "acc_fund",
		Count:     -2,
	})
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrInvalidInput, apiErr.Code)
}

func TestCreateVirtualCards_CountEmailMismatch(t *testing.T) {
	p, _ := newTestPledger(t)

	_, err := p.CreateVirtualCards(context.Background(), "acc_fund", VirtualCardBatch{
		AccountID: "acc_fund",
		Count:     3,
		Emails:    []string{"a@example.com", "b@example.com"},
	})
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrInvalidInput, apiErr.Code)
}

func TestCreateVirtualCards_OpenSourceConflictsWithHostRestriction(t *testing.T) {
	p, _ := newTestPledger(t)

	_, err := p.CreateVirtualCards(context.Background(), "acc_fund", VirtualCardBatch{
		AccountID:           "acc_fund",
		Count:               2,
		LimitedToOpenSource: true,
		LimitedToHosts:      []string{"acc_some_host"},
	})
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrInvalidInput, apiErr.Code)
}

func TestCreateVirtualCards_OpenSourceHostNotConfigured(t *testing.T) {
	p, _ := newTestPledger(t)

	_, err := p.CreateVirtualCards(context.Background(), "acc_fund", VirtualCardBatch{
		AccountID:           "acc_fund",
		Count:               2,
		LimitedToOpenSource: true,
	})
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrExternalDependency, apiErr.Code)
}

// newTestPledgerWithOpenSourceHost is newTestPledger with the designated
// open-source host configured.
func newTestPledgerWithOpenSourceHost(t *testing.T) (*Pledger, sqlmock.Sqlmock) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("error starting miniredis: %s", err)
	}
	t.Cleanup(mr.Close)

	config.MockConfig(&config.Configuration{
		Redis:            config.RedisConfig{Dns: mr.Addr()},
		Queue:            config.QueueConfig{MailQueue: "new:mail", SubscriptionQueue: "new:subscription"},
		OpenSourceHostID: "acc_oss_host",
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

	p, err := NewPledger(&database.Datasource{Conn: db, Cache: newCache})
	if err != nil {
		t.Fatalf("error creating service instance: %s", err)
	}
	return p, mock
}

func TestCreateVirtualCards_OpenSourceResolvesDesignatedHost(t *testing.T) {
	p, mock := newTestPledgerWithOpenSourceHost(t)

	expectAccountLookup(mock, "acc_fund", model.AccountTypeOrganization, "USD", "")
	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO pledger.payment_methods")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	cards, err := p.CreateVirtualCards(context.Background(), "acc_fund", VirtualCardBatch{
		AccountID:           "acc_fund",
		Count:               2,
		LimitedToOpenSource: true,
	})
	assert.NoError(t, err)
	assert.Len(t, cards, 2)
	for _, card := range cards {
		assert.Equal(t, []string{"acc_oss_host"}, card.LimitedToHosts)
		assert.Equal(t, model.PaymentMethodTypeVirtualCard, card.Type)
		assert.Len(t, card.ClaimCode, 16)
		assert.False(t, card.IsClaimed())
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateVirtualCards_EmailBatchBindsRecipients(t *testing.T) {
	p, mock := newTestPledger(t)

	emails := []string{"a@example.com", "b@example.com", "c@example.com"}

	expectAccountLookup(mock, "acc_fund", model.AccountTypeOrganization, "USD", "")
	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO pledger.payment_methods")
	for range emails {
		prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	cards, err := p.CreateVirtualCards(context.Background(), "acc_fund", VirtualCardBatch{
		AccountID: "acc_fund",
		Emails:    emails,
	})
	assert.NoError(t, err)
	assert.Len(t, cards, 3)
	for i, card := range cards {
		assert.Equal(t, emails[i], card.RecipientEmail)
		assert.NotEmpty(t, card.ClaimCode)
	}
	assert.NoError(t, mock.ExpectationsWereMet())

	// One invitation per bound email, enqueued after the batch committed.
	tasks, err := p.queue.Inspector.ListPendingTasks("new:mail")
	assert.NoError(t, err)
	assert.Len(t, tasks, len(emails))
	recipients := make([]string, 0, len(tasks))
	for _, task := range tasks {
		var msg MailMessage
		assert.NoError(t, json.Unmarshal(task.Payload, &msg))
		assert.Equal(t, MailTemplateVirtualCardInvite, msg.Template)
		recipients = append(recipients, msg.To)
	}
	assert.ElementsMatch(t, emails, recipients)
}

func parentMethodRow(accountID string) *sqlmock.Rows {
	dataJSON, _ := json.Marshal(map[string]interface{}{})
	emptyList, _ := json.Marshal([]string{})
	return sqlmock.NewRows([]string{"payment_method_id", "account_id", "name", "service", "type", "currency", "token", "data", "monthly_limit_per_member", "limited_to_tags", "limited_to_collectives", "limited_to_hosts", "expiry_date", "parent_payment_method_id", "claim_code", "recipient_email", "claimed_at", "created_at"}).
		AddRow("pm_fund", accountID, "prepaid budget", model.PaymentMethodServicePledger, model.PaymentMethodTypeManual, "USD", "", dataJSON, int64(0), emptyList, emptyList, emptyList, nil, "", "", "", nil, time.Now())
}

func TestCreateVirtualCards_AllocatesFromNamedMethod(t *testing.T) {
	p, mock := newTestPledger(t)

	expectAccountLookup(mock, "acc_fund", model.AccountTypeOrganization, "USD", "")
	mock.ExpectQuery("FROM pledger.payment_methods\\s+WHERE payment_method_id = \\$1").
		WithArgs("pm_fund").
		WillReturnRows(parentMethodRow("acc_fund"))
	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO pledger.payment_methods")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	cards, err := p.CreateVirtualCards(context.Background(), "acc_fund", VirtualCardBatch{
		AccountID:       "acc_fund",
		PaymentMethodID: "pm_fund",
		Count:           2,
	})
	assert.NoError(t, err)
	assert.Len(t, cards, 2)
	for _, card := range cards {
		assert.Equal(t, "pm_fund", card.ParentPaymentMethodID)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateVirtualCards_NamedMethodOnAnotherAccount(t *testing.T) {
	p, mock := newTestPledger(t)

	expectAccountLookup(mock, "acc_fund", model.AccountTypeOrganization, "USD", "")
	mock.ExpectQuery("FROM pledger.payment_methods\\s+WHERE payment_method_id = \\$1").
		WithArgs("pm_theirs").
		WillReturnRows(parentMethodRow("acc_other"))

	_, err := p.CreateVirtualCards(context.Background(), "acc_fund", VirtualCardBatch{
		AccountID:       "acc_fund",
		PaymentMethodID: "pm_theirs",
		Count:           2,
	})
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrInvalidInput, apiErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateVirtualCards_BatchFailureMintsNothing(t *testing.T) {
	p, mock := newTestPledger(t)

	expectAccountLookup(mock, "acc_fund", model.AccountTypeOrganization, "USD", "")
	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO pledger.payment_methods")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WillReturnError(assert.AnError)
	mock.ExpectRollback()

	cards, err := p.CreateVirtualCards(context.Background(), "acc_fund", VirtualCardBatch{
		AccountID: "acc_fund",
		Emails:    []string{"a@example.com", "b@example.com"},
	})
	assert.Error(t, err)
	assert.Nil(t, cards)
	assert.NoError(t, mock.ExpectationsWereMet())

	// A rolled-back batch must not have invited anyone.
	queues, err := p.queue.Inspector.Queues()
	assert.NoError(t, err)
	assert.NotContains(t, queues, "new:mail")
}

func TestClaimPaymentMethod_RequiresCode(t *testing.T) {
	p, _ := newTestPledger(t)

	_, err := p.ClaimPaymentMethod(context.Background(), "acc_user", "")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrInvalidInput, apiErr.Code)
}

func TestCreateCreditCard_RequiresToken(t *testing.T) {
	p, _ := newTestPledger(t)

	_, err := p.CreateCreditCard(context.Background(), "acc_user", &model.PaymentMethod{
		AccountID: "acc_user",
		Currency:  "USD",
	})
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrInvalidInput, apiErr.Code)
}
