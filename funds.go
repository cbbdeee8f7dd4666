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
	"fmt"
	"time"

	"github.com/pledgerhq/pledger/internal/apierror"
	"github.com/pledgerhq/pledger/model"
)

// AddFundsToOrg moves funds from a fiscal host into one of its hosted
// accounts: one fund_transfer transaction through the host's manual
// payment method (created on first use), recorded in a single scope. The
// named host must actually hold the account, and only administrators of
// that host may do this.
func (p *Pledger) AddFundsToOrg(ctx context.Context, principal, accountID, hostAccountID string, amount int64, description string) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Adding funds")
	defer span.End()

	if amount <= 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Amount must be positive", nil)
	}
	if hostAccountID == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "A host account is required", nil)
	}

	account, err := p.datasource.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.HostAccountID != hostAccountID {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Account '%s' is not hosted by '%s'", accountID, hostAccountID), nil)
	}
	if err := p.requireAdminOf(ctx, principal, hostAccountID); err != nil {
		return nil, err
	}

	pm := &model.PaymentMethod{
		AccountID: hostAccountID,
		Name:      "Host added funds",
		Service:   model.PaymentMethodServicePledger,
		Type:      model.PaymentMethodTypeManual,
		Currency:  account.Currency,
	}
	txn := &model.Transaction{
		TransactionID:        model.GenerateUUIDWithSuffix("txn"),
		Type:                 model.TransactionTypeFundTransfer,
		SourceAccountID:      hostAccountID,
		DestinationAccountID: accountID,
		Amount:               amount,
		Currency:             account.Currency,
		Description:          description,
		Reference:            model.GenerateUUIDWithSuffix("ref"),
		CreatedAt:            time.Now(),
	}

	if _, err := p.datasource.AddFunds(ctx, pm, txn); err != nil {
		return nil, err
	}
	return txn, nil
}
