package model

import "github.com/pledgerhq/pledger/model"

// CreateAccount registers a new account. Type defaults to "user" and
// currency to the platform default when omitted.
type CreateAccount struct {
	Name     string                 `json:"name"`
	Type     string                 `json:"type"`
	Currency string                 `json:"currency"`
	Email    string                 `json:"email"`
	Tags     []string               `json:"tags"`
	MetaData map[string]interface{} `json:"meta_data"`
}

func (a *CreateAccount) ToAccount() model.Account {
	return model.Account{
		Name:     a.Name,
		Type:     a.Type,
		Currency: a.Currency,
		Email:    a.Email,
		Tags:     a.Tags,
		MetaData: a.MetaData,
	}
}

// CreateOrganization registers an organization with the caller as its
// first admin.
type CreateOrganization struct {
	Name     string                 `json:"name"`
	Currency string                 `json:"currency"`
	Email    string                 `json:"email"`
	Tags     []string               `json:"tags"`
	MetaData map[string]interface{} `json:"meta_data"`
}

func (o *CreateOrganization) ToAccount() model.Account {
	return model.Account{
		Name:     o.Name,
		Type:     model.AccountTypeOrganization,
		Currency: o.Currency,
		Email:    o.Email,
		Tags:     o.Tags,
		MetaData: o.MetaData,
	}
}

// AddFunds credits a hosted account from its host's managed pool. The
// host account is named explicitly and must hold the target account.
type AddFunds struct {
	HostAccountID string  `json:"host_account_id"`
	Amount        float64 `json:"amount"`
	Precision     int64   `json:"precision"`
	Description   string  `json:"description"`
}

func (f *AddFunds) MinorAmount() int64 {
	return toMinorUnits(f.Amount, f.Precision)
}
