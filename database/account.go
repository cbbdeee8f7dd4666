package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pledgerhq/pledger/internal/apierror"
	"github.com/pledgerhq/pledger/model"

	_ "github.com/lib/pq"
)

// CreateAccount inserts a new account record.
func (d Datasource) CreateAccount(ctx context.Context, account model.Account) (model.Account, error) {
	account.AccountID = model.GenerateUUIDWithSuffix("acc")
	account.CreatedAt = time.Now()

	metaDataJSON, err := json.Marshal(account.MetaData)
	if err != nil {
		return model.Account{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}
	tagsJSON, err := json.Marshal(account.Tags)
	if err != nil {
		return model.Account{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal tags", err)
	}

	_, err = d.Conn.ExecContext(ctx,
		`INSERT INTO pledger.accounts(account_id,name,type,currency,host_account_id,tags,email,created_at,meta_data) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		account.AccountID, account.Name, account.Type, account.Currency, account.HostAccountID, tagsJSON, account.Email, account.CreatedAt, metaDataJSON,
	)
	if err != nil {
		return model.Account{}, mapPostgresError(err, "Failed to create account")
	}

	return account, nil
}

// CreateOrganizationWithAdmin creates an organization account together with
// its first administrator role in one atomic scope. A failure on either
// write leaves no partial entity behind.
func (d Datasource) CreateOrganizationWithAdmin(ctx context.Context, org model.Account, adminAccountID string) (model.Account, error) {
	org.AccountID = model.GenerateUUIDWithSuffix("acc")
	org.CreatedAt = time.Now()
	if org.Type == "" {
		org.Type = model.AccountTypeOrganization
	}

	metaDataJSON, err := json.Marshal(org.MetaData)
	if err != nil {
		return model.Account{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}
	tagsJSON, err := json.Marshal(org.Tags)
	if err != nil {
		return model.Account{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal tags", err)
	}

	err = d.withTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO pledger.accounts(account_id,name,type,currency,host_account_id,tags,email,created_at,meta_data) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			org.AccountID, org.Name, org.Type, org.Currency, org.HostAccountID, tagsJSON, org.Email, org.CreatedAt, metaDataJSON,
		)
		if err != nil {
			return mapPostgresError(err, "Failed to create organization")
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO pledger.members(member_id,account_id,member_account_id,role,created_at) VALUES ($1,$2,$3,$4,$5)`,
			model.GenerateUUIDWithSuffix("mem"), org.AccountID, adminAccountID, model.RoleAdmin, org.CreatedAt,
		)
		if err != nil {
			return mapPostgresError(err, "Failed to create administrator role")
		}
		return nil
	})
	if err != nil {
		return model.Account{}, err
	}

	return org, nil
}

// GetAccountByID retrieves an account, serving repeated lookups from cache.
// Accounts sit on the authorization path of every mutation, so this is the
// hottest read in the system.
func (d Datasource) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	cacheKey := fmt.Sprintf("account:%s", id)

	account := model.Account{}
	if d.Cache != nil {
		if err := d.Cache.Get(ctx, cacheKey, &account); err == nil && account.AccountID != "" {
			return &account, nil
		}
	}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT account_id, name, type, currency, host_account_id, tags, email, created_at, meta_data
		FROM pledger.accounts
		WHERE account_id = $1
	`, id)

	var tagsJSON, metaDataJSON []byte
	err := row.Scan(&account.AccountID, &account.Name, &account.Type, &account.Currency, &account.HostAccountID, &tagsJSON, &account.Email, &account.CreatedAt, &metaDataJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Account with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve account", err)
	}

	if err := json.Unmarshal(tagsJSON, &account.Tags); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal tags", err)
	}
	if err := json.Unmarshal(metaDataJSON, &account.MetaData); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
	}

	if d.Cache != nil {
		// cache writes are best-effort
		_ = d.Cache.Set(ctx, cacheKey, account, 5*time.Minute)
	}

	return &account, nil
}

// HasRole reports whether memberAccountID holds the given role on accountID.
func (d Datasource) HasRole(ctx context.Context, accountID, memberAccountID, role string) (bool, error) {
	var exists bool
	err := d.Conn.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM pledger.members
			WHERE account_id = $1 AND member_account_id = $2 AND role = $3
		)
	`, accountID, memberAccountID, role).Scan(&exists)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check role membership", err)
	}
	return exists, nil
}
