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

	"github.com/pledgerhq/pledger/model"
)

// GetTransaction retrieves a transaction by ID.
func (p *Pledger) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	return p.datasource.GetTransaction(ctx, id)
}

// RefundTransaction reverses a transaction: a refund entry with the negated
// amount is appended, linked to the original through its parent id. The
// original is never mutated and a transaction refunds at most once; both
// guarantees are enforced under a row lock in the datasource.
func (p *Pledger) RefundTransaction(ctx context.Context, principal, transactionID string) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Refunding transaction")
	defer span.End()

	original, err := p.datasource.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := p.requirePayerOrPayeeAdmin(ctx, principal, original); err != nil {
		return nil, err
	}
	return p.datasource.RecordRefund(ctx, transactionID)
}

// GetBalance returns the derived balance of an account: the signed sum of
// every transaction touching it. Nothing is stored or cached, so refunds
// and payouts are reflected the moment they commit.
func (p *Pledger) GetBalance(ctx context.Context, accountID string) (int64, error) {
	return p.datasource.GetBalance(ctx, accountID)
}

// GetHostManagedBalance returns the pooled balance a fiscal host manages:
// its own plus every hosted account's.
func (p *Pledger) GetHostManagedBalance(ctx context.Context, hostAccountID string) (int64, error) {
	return p.datasource.GetHostManagedBalance(ctx, hostAccountID)
}
