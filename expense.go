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
	"time"

	"github.com/pledgerhq/pledger/internal/apierror"
	"github.com/pledgerhq/pledger/internal/notification"
	"github.com/pledgerhq/pledger/model"
)

// CreateExpense files a payout request against an account. Expenses always
// start pending.
func (p *Pledger) CreateExpense(ctx context.Context, principal string, exp *model.Expense) (*model.Expense, error) {
	ctx, span := tracer.Start(ctx, "Creating expense")
	defer span.End()

	if err := p.requireAdminOf(ctx, principal, exp.AccountID); err != nil {
		return nil, err
	}
	if exp.Amount <= 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Expense amount must be positive", nil)
	}
	if exp.PayeeAccountID == "" {
		exp.PayeeAccountID = principal
	}
	if _, err := p.datasource.GetAccountByID(ctx, exp.PayeeAccountID); err != nil {
		return nil, err
	}

	account, err := p.datasource.GetAccountByID(ctx, exp.AccountID)
	if err != nil {
		return nil, err
	}
	if exp.Currency == "" {
		exp.Currency = account.Currency
	}

	return p.datasource.CreateExpense(ctx, exp)
}

// GetExpense retrieves an expense by ID.
func (p *Pledger) GetExpense(ctx context.Context, id string) (*model.Expense, error) {
	return p.datasource.GetExpenseByID(ctx, id)
}

// UpdateExpense edits a pending expense. Once the expense leaves pending
// the edit fails with INVALID_STATE.
func (p *Pledger) UpdateExpense(ctx context.Context, principal string, exp *model.Expense) (*model.Expense, error) {
	current, err := p.datasource.GetExpenseByID(ctx, exp.ExpenseID)
	if err != nil {
		return nil, err
	}
	if err := p.requireAdminOf(ctx, principal, current.AccountID); err != nil {
		return nil, err
	}
	if exp.Amount <= 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Expense amount must be positive", nil)
	}

	// The edit carries only the fields a submitter may change; everything
	// else is carried over from the stored expense.
	exp.AccountID = current.AccountID
	exp.PayeeAccountID = current.PayeeAccountID
	exp.Currency = current.Currency
	if exp.MetaData == nil {
		exp.MetaData = current.MetaData
	}
	return p.datasource.UpdateExpense(ctx, exp)
}

// DeleteExpense removes a pending expense.
func (p *Pledger) DeleteExpense(ctx context.Context, principal, id string) error {
	current, err := p.datasource.GetExpenseByID(ctx, id)
	if err != nil {
		return err
	}
	if err := p.requireAdminOf(ctx, principal, current.AccountID); err != nil {
		return err
	}
	return p.datasource.DeleteExpense(ctx, id)
}

// ApproveExpense moves a pending expense to approved. Requires an
// administrator of the owning account's fiscal host.
func (p *Pledger) ApproveExpense(ctx context.Context, principal, id string) (*model.Expense, error) {
	return p.decideExpense(ctx, principal, id, model.ExpenseStatusApproved)
}

// RejectExpense moves a pending expense to rejected.
func (p *Pledger) RejectExpense(ctx context.Context, principal, id string) (*model.Expense, error) {
	return p.decideExpense(ctx, principal, id, model.ExpenseStatusRejected)
}

func (p *Pledger) decideExpense(ctx context.Context, principal, id, newStatus string) (*model.Expense, error) {
	ctx, span := tracer.Start(ctx, "Deciding expense")
	defer span.End()

	current, err := p.datasource.GetExpenseByID(ctx, id)
	if err != nil {
		return nil, err
	}
	account, err := p.datasource.GetAccountByID(ctx, current.AccountID)
	if err != nil {
		return nil, err
	}
	if _, err := p.requireHostAdminOf(ctx, principal, account); err != nil {
		return nil, err
	}

	decided, err := p.datasource.UpdateExpenseStatus(ctx, id, newStatus)
	if err != nil {
		return nil, err
	}
	p.notifyExpenseStatus(ctx, decided)
	return decided, nil
}

// PayExpense settles an approved expense from the host's managed pool. The
// approved state, the pool balance check, the payout transaction and the
// status change all happen in one locked datasource scope, so two racing
// payments resolve to exactly one success.
func (p *Pledger) PayExpense(ctx context.Context, principal, id string, fees model.FeeBreakdown) (*model.Expense, error) {
	ctx, span := tracer.Start(ctx, "Paying expense")
	defer span.End()

	current, err := p.datasource.GetExpenseByID(ctx, id)
	if err != nil {
		return nil, err
	}
	account, err := p.datasource.GetAccountByID(ctx, current.AccountID)
	if err != nil {
		return nil, err
	}
	hostAccountID, err := p.requireHostAdminOf(ctx, principal, account)
	if err != nil {
		return nil, err
	}

	if fees.ProcessorFee < 0 || fees.HostFee < 0 || fees.PlatformFee < 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Fees cannot be negative", nil)
	}
	net := current.NetPayout(fees)
	if net <= 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Fees consume the whole expense amount", nil)
	}

	txn := &model.Transaction{
		TransactionID:        model.GenerateUUIDWithSuffix("txn"),
		Type:                 model.TransactionTypeExpensePayment,
		SourceAccountID:      current.AccountID,
		DestinationAccountID: current.PayeeAccountID,
		Amount:               net,
		Currency:             current.Currency,
		ExpenseID:            current.ExpenseID,
		Description:          current.Description,
		Reference:            model.GenerateUUIDWithSuffix("ref"),
		CreatedAt:            time.Now(),
		MetaData: map[string]interface{}{
			"processor_fee": fees.ProcessorFee,
			"host_fee":      fees.HostFee,
			"platform_fee":  fees.PlatformFee,
		},
	}

	paid, err := p.datasource.PayExpense(ctx, id, fees, hostAccountID, txn)
	if err != nil {
		return nil, err
	}
	p.notifyExpenseStatus(ctx, paid)
	return paid, nil
}

func (p *Pledger) notifyExpenseStatus(ctx context.Context, exp *model.Expense) {
	payee, err := p.datasource.GetAccountByID(ctx, exp.PayeeAccountID)
	if err != nil {
		notification.NotifyError(err)
		return
	}
	p.sendMail(MailMessage{
		To:       payee.Email,
		Subject:  "Your expense is " + exp.Status,
		Template: MailTemplateExpenseStatus,
		Data: map[string]interface{}{
			"expense_id": exp.ExpenseID,
			"status":     exp.Status,
			"amount":     exp.Amount,
			"currency":   exp.Currency,
		},
	})
}
