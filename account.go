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

	"github.com/pledgerhq/pledger/internal/apierror"
	"github.com/pledgerhq/pledger/model"
)

// CreateAccount registers a new account.
func (p *Pledger) CreateAccount(ctx context.Context, account model.Account) (model.Account, error) {
	if account.Name == "" {
		return model.Account{}, apierror.NewAPIError(apierror.ErrInvalidInput, "Account name is required", nil)
	}
	if account.Currency == "" {
		account.Currency = "USD"
	}
	return p.datasource.CreateAccount(ctx, account)
}

// GetAccount retrieves an account by ID.
func (p *Pledger) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return p.datasource.GetAccountByID(ctx, id)
}

// CreateOrganization creates an organization account with the caller as its
// first administrator, atomically, and sends a welcome mail after commit.
func (p *Pledger) CreateOrganization(ctx context.Context, principal string, org model.Account) (model.Account, error) {
	ctx, span := tracer.Start(ctx, "Creating organization")
	defer span.End()

	if err := requireAuthenticated(principal); err != nil {
		return model.Account{}, err
	}
	if org.Name == "" {
		return model.Account{}, apierror.NewAPIError(apierror.ErrInvalidInput, "Organization name is required", nil)
	}
	if org.Currency == "" {
		org.Currency = "USD"
	}
	org.Type = model.AccountTypeOrganization

	created, err := p.datasource.CreateOrganizationWithAdmin(ctx, org, principal)
	if err != nil {
		return model.Account{}, err
	}

	p.sendMail(MailMessage{
		To:       created.Email,
		Subject:  "Your organization is ready",
		Template: MailTemplateOrganizationHello,
		Data: map[string]interface{}{
			"account_id": created.AccountID,
			"name":       created.Name,
		},
	})
	return created, nil
}
