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
	"github.com/pledgerhq/pledger/internal/notification"
	"github.com/pledgerhq/pledger/model"
)

func validInterval(interval string) bool {
	switch interval {
	case model.IntervalNone, model.IntervalMonthly, model.IntervalYearly:
		return true
	}
	return false
}

// contributionTransaction builds the ledger entry for a charge against an
// order.
func contributionTransaction(ord *model.Order, amount int64, paymentMethodID string) *model.Transaction {
	return &model.Transaction{
		TransactionID:        model.GenerateUUIDWithSuffix("txn"),
		Type:                 model.TransactionTypeContribution,
		SourceAccountID:      ord.SourceAccountID,
		DestinationAccountID: ord.DestinationAccountID,
		Amount:               amount,
		Currency:             ord.Currency,
		OrderID:              ord.OrderID,
		PaymentMethodID:      paymentMethodID,
		Description:          ord.Description,
		Reference:            model.GenerateUUIDWithSuffix("ref"),
		CreatedAt:            time.Now(),
	}
}

// CreateOrder records an intent to contribute. Three shapes fall out of the
// input:
//   - an interval makes the order recurring: it becomes active, the first
//     charge is recorded immediately and a renewal is scheduled;
//   - a one-time order with a payment method is captured on the spot;
//   - a one-time order without a payment method is a pledge and stays
//     pending until completed.
func (p *Pledger) CreateOrder(ctx context.Context, principal string, ord *model.Order) (*model.Order, error) {
	ctx, span := tracer.Start(ctx, "Creating order")
	defer span.End()

	if err := p.requireAdminOf(ctx, principal, ord.SourceAccountID); err != nil {
		return nil, err
	}
	if ord.Amount <= 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Order amount must be positive", nil)
	}
	if !validInterval(ord.Interval) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Unknown interval '%s'", ord.Interval), nil)
	}

	destination, err := p.datasource.GetAccountByID(ctx, ord.DestinationAccountID)
	if err != nil {
		return nil, err
	}
	if ord.Currency == "" {
		ord.Currency = destination.Currency
	}
	if ord.Currency != destination.Currency {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Order currency %s does not match account currency %s", ord.Currency, destination.Currency), nil)
	}

	if ord.IsRecurring() && ord.PaymentMethodID == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "A recurring order requires a payment method", nil)
	}
	if ord.PaymentMethodID != "" {
		if _, err := p.datasource.GetPaymentMethodByID(ctx, ord.PaymentMethodID); err != nil {
			return nil, err
		}
	}

	ord.OrderID = model.GenerateUUIDWithSuffix("ord")
	ord.CreatedAt = time.Now()

	var subscription *model.Subscription
	var txn *model.Transaction

	switch {
	case ord.IsRecurring():
		ord.Status = model.OrderStatusActive
		txn = contributionTransaction(ord, ord.Amount, ord.PaymentMethodID)
		subscription = &model.Subscription{
			SubscriptionID:  model.GenerateUUIDWithSuffix("sub"),
			OrderID:         ord.OrderID,
			Amount:          ord.Amount,
			Currency:        ord.Currency,
			Interval:        ord.Interval,
			PaymentMethodID: ord.PaymentMethodID,
			NextChargeAt:    model.NextChargeDate(ord.CreatedAt, ord.Interval),
			Active:          true,
			CreatedAt:       ord.CreatedAt,
		}
	case ord.PaymentMethodID != "":
		ord.Status = model.OrderStatusPaid
		txn = contributionTransaction(ord, ord.Amount, ord.PaymentMethodID)
	default:
		ord.Status = model.OrderStatusPending
	}

	if err := p.datasource.CreateOrder(ctx, ord, subscription, txn); err != nil {
		return nil, err
	}

	if subscription != nil {
		if err := p.queue.queueSubscriptionRenewal(subscription.SubscriptionID, subscription.NextChargeAt); err != nil {
			notification.NotifyError(err)
		}
	}
	if txn != nil {
		p.thankContributor(ctx, ord)
	}
	return ord, nil
}

func (p *Pledger) thankContributor(ctx context.Context, ord *model.Order) {
	source, err := p.datasource.GetAccountByID(ctx, ord.SourceAccountID)
	if err != nil {
		notification.NotifyError(err)
		return
	}
	p.sendMail(MailMessage{
		To:       source.Email,
		Subject:  "Thank you for your contribution",
		Template: MailTemplateContributionThanks,
		Data: map[string]interface{}{
			"order_id": ord.OrderID,
			"amount":   ord.Amount,
			"currency": ord.Currency,
		},
	})
}

// CompletePledge attaches payment information to a pending pledge and
// captures it. The pending check happens under a row lock in the datasource;
// a pledge captured twice fails the second time with INVALID_STATE.
func (p *Pledger) CompletePledge(ctx context.Context, principal, orderID, paymentMethodID string) (*model.Order, error) {
	ctx, span := tracer.Start(ctx, "Completing pledge")
	defer span.End()

	ord, err := p.datasource.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := p.requireAdminOf(ctx, principal, ord.SourceAccountID); err != nil {
		return nil, err
	}
	if paymentMethodID == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "A payment method is required to complete a pledge", nil)
	}
	if _, err := p.datasource.GetPaymentMethodByID(ctx, paymentMethodID); err != nil {
		return nil, err
	}

	txn := contributionTransaction(ord, ord.Amount, paymentMethodID)
	completed, err := p.datasource.CompletePledge(ctx, orderID, paymentMethodID, txn)
	if err != nil {
		return nil, err
	}
	p.thankContributor(ctx, completed)
	return completed, nil
}

// UpdateOrderInfo changes the order's public message. Nothing financial is
// touched.
func (p *Pledger) UpdateOrderInfo(ctx context.Context, principal, orderID, publicMessage string) (*model.Order, error) {
	ord, err := p.datasource.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := p.requireAdminOf(ctx, principal, ord.SourceAccountID); err != nil {
		return nil, err
	}
	return p.datasource.UpdateOrderMessage(ctx, orderID, publicMessage)
}

// GetOrder retrieves an order by ID.
func (p *Pledger) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return p.datasource.GetOrderByID(ctx, id)
}

// CancelSubscription stops future charges. Transactions already recorded
// stay untouched.
func (p *Pledger) CancelSubscription(ctx context.Context, principal, subscriptionID string) (*model.Subscription, error) {
	ctx, span := tracer.Start(ctx, "Cancelling subscription")
	defer span.End()

	sub, err := p.datasource.GetSubscriptionByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	ord, err := p.datasource.GetOrderByID(ctx, sub.OrderID)
	if err != nil {
		return nil, err
	}
	if err := p.requireAdminOf(ctx, principal, ord.SourceAccountID); err != nil {
		return nil, err
	}
	return p.datasource.CancelSubscription(ctx, subscriptionID)
}

// UpdateSubscription changes the amount and/or payment method applied to
// future charges.
func (p *Pledger) UpdateSubscription(ctx context.Context, principal, subscriptionID string, amount *int64, paymentMethodID string) (*model.Subscription, error) {
	ctx, span := tracer.Start(ctx, "Updating subscription")
	defer span.End()

	sub, err := p.datasource.GetSubscriptionByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	ord, err := p.datasource.GetOrderByID(ctx, sub.OrderID)
	if err != nil {
		return nil, err
	}
	if err := p.requireAdminOf(ctx, principal, ord.SourceAccountID); err != nil {
		return nil, err
	}
	if amount == nil && paymentMethodID == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Nothing to update", nil)
	}
	if amount != nil && *amount <= 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Subscription amount must be positive", nil)
	}
	if paymentMethodID != "" {
		if _, err := p.datasource.GetPaymentMethodByID(ctx, paymentMethodID); err != nil {
			return nil, err
		}
	}
	return p.datasource.UpdateSubscription(ctx, subscriptionID, amount, paymentMethodID)
}

// GetSubscription retrieves a subscription by ID.
func (p *Pledger) GetSubscription(ctx context.Context, id string) (*model.Subscription, error) {
	return p.datasource.GetSubscriptionByID(ctx, id)
}
