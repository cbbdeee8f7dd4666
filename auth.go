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

	"github.com/pledgerhq/pledger/internal/apierror"
	"github.com/pledgerhq/pledger/model"
)

// Authorization runs before every mutation. A denied check performs no
// writes: the service methods call these guards first and return the error
// untouched.

// requireAuthenticated rejects requests with no principal. The outer
// gateway authenticates callers; this layer only refuses to act without one.
func requireAuthenticated(principal string) error {
	if principal == "" {
		return apierror.NewAPIError(apierror.ErrUnauthenticated, "An authenticated account is required", nil)
	}
	return nil
}

// requireAdminOf allows the account itself plus any account holding the
// admin role on it.
func (p *Pledger) requireAdminOf(ctx context.Context, principal, accountID string) error {
	if err := requireAuthenticated(principal); err != nil {
		return err
	}
	if principal == accountID {
		return nil
	}
	isAdmin, err := p.datasource.HasRole(ctx, accountID, principal, model.RoleAdmin)
	if err != nil {
		return err
	}
	if !isAdmin {
		return apierror.NewAPIError(apierror.ErrForbidden, fmt.Sprintf("Account '%s' is not an administrator of '%s'", principal, accountID), nil)
	}
	return nil
}

// requireHostAdminOf allows administrators of the account's fiscal host. A
// self-hosted account is its own host.
func (p *Pledger) requireHostAdminOf(ctx context.Context, principal string, account *model.Account) (string, error) {
	hostAccountID := account.AccountID
	if account.IsHosted() {
		hostAccountID = account.HostAccountID
	}
	if err := p.requireAdminOf(ctx, principal, hostAccountID); err != nil {
		return "", err
	}
	return hostAccountID, nil
}

// requirePayerOrPayeeAdmin allows administrators of either leg of a
// transaction. Used by refunds: both the payer and the payee may undo a
// fund movement.
func (p *Pledger) requirePayerOrPayeeAdmin(ctx context.Context, principal string, txn *model.Transaction) error {
	if err := requireAuthenticated(principal); err != nil {
		return err
	}
	if err := p.requireAdminOf(ctx, principal, txn.SourceAccountID); err == nil {
		return nil
	}
	if err := p.requireAdminOf(ctx, principal, txn.DestinationAccountID); err == nil {
		return nil
	}
	return apierror.NewAPIError(apierror.ErrForbidden, fmt.Sprintf("Account '%s' administers neither side of transaction '%s'", principal, txn.TransactionID), nil)
}
