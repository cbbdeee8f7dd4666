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

var accountColumns = []string{"account_id", "name", "type", "currency", "host_account_id", "tags", "email", "created_at", "meta_data"}

func TestCreateAccount_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("INSERT INTO pledger.accounts").
		WillReturnResult(sqlmock.NewResult(1, 1))

	account, err := ds.CreateAccount(context.Background(), model.Account{
		Name:     "webpack",
		Type:     model.AccountTypeCollective,
		Currency: "USD",
	})
	assert.NoError(t, err)
	assert.NotEmpty(t, account.AccountID)
	assert.WithinDuration(t, time.Now(), account.CreatedAt, time.Second)
}

func TestCreateAccount_UniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("INSERT INTO pledger.accounts").
		WillReturnError(&pq.Error{Code: "23505", Message: "unique_violation"})

	_, err = ds.CreateAccount(context.Background(), model.Account{Name: "webpack"})
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
}

func TestCreateOrganizationWithAdmin_Atomic(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO pledger.accounts").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO pledger.members").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	org, err := ds.CreateOrganizationWithAdmin(context.Background(), model.Account{Name: "Acme Inc"}, "acc_admin")
	assert.NoError(t, err)
	assert.Equal(t, model.AccountTypeOrganization, org.Type)
	assert.NotEmpty(t, org.AccountID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrganizationWithAdmin_MemberInsertFails_RollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO pledger.accounts").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO pledger.members").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err = ds.CreateOrganizationWithAdmin(context.Background(), model.Account{Name: "Acme Inc"}, "acc_admin")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAccountByID_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	tagsJSON, _ := json.Marshal([]string{"open source"})
	metaDataJSON, _ := json.Marshal(map[string]interface{}{})
	mock.ExpectQuery("FROM pledger.accounts\\s+WHERE account_id = \\$1").
		WithArgs("acc1").
		WillReturnRows(sqlmock.NewRows(accountColumns).
			AddRow("acc1", "webpack", model.AccountTypeCollective, "USD", "acc_host", tagsJSON, "team@webpack.test", time.Now(), metaDataJSON))

	account, err := ds.GetAccountByID(context.Background(), "acc1")
	assert.NoError(t, err)
	assert.Equal(t, "webpack", account.Name)
	assert.True(t, account.IsHosted())
}

func TestGetAccountByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("FROM pledger.accounts\\s+WHERE account_id = \\$1").
		WithArgs("acc_missing").
		WillReturnError(sql.ErrNoRows)

	_, err = ds.GetAccountByID(context.Background(), "acc_missing")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}

func TestHasRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("acc1", "acc_member", model.RoleAdmin).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := ds.HasRole(context.Background(), "acc1", "acc_member", model.RoleAdmin)
	assert.NoError(t, err)
	assert.True(t, ok)
}
