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

	"github.com/pledgerhq/pledger/config"
	"github.com/pledgerhq/pledger/internal/apierror"
	"github.com/pledgerhq/pledger/model"
)

// CreatePaymentMethod registers a payment instrument on an account.
func (p *Pledger) CreatePaymentMethod(ctx context.Context, principal string, pm *model.PaymentMethod) (*model.PaymentMethod, error) {
	if err := p.requireAdminOf(ctx, principal, pm.AccountID); err != nil {
		return nil, err
	}
	if pm.Type == "" || pm.Currency == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Payment method type and currency are required", nil)
	}
	if pm.Service == "" {
		pm.Service = model.PaymentMethodServicePledger
	}
	return p.datasource.CreatePaymentMethod(ctx, pm)
}

// CreateCreditCard registers a stripe-backed credit card. The processor
// token is stored, never the card number.
func (p *Pledger) CreateCreditCard(ctx context.Context, principal string, pm *model.PaymentMethod) (*model.PaymentMethod, error) {
	if pm.Token == "" || len(pm.Data) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "A processor token and card data are required", nil)
	}
	pm.Service = model.PaymentMethodServiceStripe
	pm.Type = model.PaymentMethodTypeCreditCard
	return p.CreatePaymentMethod(ctx, principal, pm)
}

// VirtualCardBatch describes a batch of virtual cards to mint against a
// funding account. Exactly one of Emails / Count decides the batch size;
// when both are given they must agree. PaymentMethodID optionally names an
// existing payment method on the funding account that the cards draw from.
type VirtualCardBatch struct {
	AccountID             string
	PaymentMethodID       string
	Name                  string
	Currency              string
	MonthlyLimitPerMember int64
	Count                 int
	Emails                []string
	ExpiryDate            *time.Time
	LimitedToTags         []string
	LimitedToCollectives  []string
	LimitedToHosts        []string
	LimitedToOpenSource   bool
}

// CreateVirtualCards mints a batch of virtual cards in two phases: every
// validation and every card is prepared in memory first, then the whole
// batch is persisted in one transaction. Invitations go out only after the
// commit, one per card bound to an email.
func (p *Pledger) CreateVirtualCards(ctx context.Context, principal string, batch VirtualCardBatch) ([]*model.PaymentMethod, error) {
	ctx, span := tracer.Start(ctx, "Creating virtual card batch")
	defer span.End()

	if err := p.requireAdminOf(ctx, principal, batch.AccountID); err != nil {
		return nil, err
	}

	if batch.Count < 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Card count cannot be negative", nil)
	}
	if batch.Count == 0 && len(batch.Emails) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Provide a card count or a list of recipient emails", nil)
	}
	if batch.Count > 0 && len(batch.Emails) > 0 && batch.Count != len(batch.Emails) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Card count %d does not match %d recipient emails", batch.Count, len(batch.Emails)), nil)
	}
	if batch.LimitedToOpenSource && len(batch.LimitedToHosts) > 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Open-source restriction and an explicit host restriction are mutually exclusive", nil)
	}

	if batch.LimitedToOpenSource {
		cnf, err := config.Fetch()
		if err != nil {
			return nil, err
		}
		if cnf.OpenSourceHostID == "" {
			return nil, apierror.NewAPIError(apierror.ErrExternalDependency, "No open-source host account is configured", nil)
		}
		batch.LimitedToHosts = []string{cnf.OpenSourceHostID}
	}

	funding, err := p.datasource.GetAccountByID(ctx, batch.AccountID)
	if err != nil {
		return nil, err
	}
	if batch.Currency == "" {
		batch.Currency = funding.Currency
	}

	if batch.PaymentMethodID != "" {
		parent, err := p.datasource.GetPaymentMethodByID(ctx, batch.PaymentMethodID)
		if err != nil {
			return nil, err
		}
		if parent.AccountID != batch.AccountID {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Payment method '%s' does not belong to account '%s'", batch.PaymentMethodID, batch.AccountID), nil)
		}
	}

	size := batch.Count
	if size == 0 {
		size = len(batch.Emails)
	}

	now := time.Now()
	cards := make([]*model.PaymentMethod, 0, size)
	for i := 0; i < size; i++ {
		card := &model.PaymentMethod{
			PaymentMethodID:       model.GenerateUUIDWithSuffix("pm"),
			Name:                  batch.Name,
			Service:               model.PaymentMethodServicePledger,
			Type:                  model.PaymentMethodTypeVirtualCard,
			Currency:              batch.Currency,
			MonthlyLimitPerMember: batch.MonthlyLimitPerMember,
			LimitedToTags:         batch.LimitedToTags,
			LimitedToCollectives:  batch.LimitedToCollectives,
			LimitedToHosts:        batch.LimitedToHosts,
			ExpiryDate:            batch.ExpiryDate,
			ParentPaymentMethodID: batch.PaymentMethodID,
			ClaimCode:             model.GenerateClaimCode(),
			CreatedAt:             now,
		}
		if i < len(batch.Emails) {
			card.RecipientEmail = batch.Emails[i]
		}
		cards = append(cards, card)
	}

	if err := p.datasource.CreatePaymentMethodsBatch(ctx, cards); err != nil {
		return nil, err
	}

	for _, card := range cards {
		if card.RecipientEmail == "" {
			continue
		}
		p.sendMail(MailMessage{
			To:       card.RecipientEmail,
			Subject:  "You have been sent a gift card",
			Template: MailTemplateVirtualCardInvite,
			Data: map[string]interface{}{
				"claim_code": card.ClaimCode,
				"amount":     card.MonthlyLimitPerMember,
				"currency":   card.Currency,
				"from":       funding.Name,
			},
		})
	}
	return cards, nil
}

// ClaimPaymentMethod binds an unclaimed virtual card to the caller. The
// claim races under a row lock; the loser gets ALREADY_CLAIMED.
func (p *Pledger) ClaimPaymentMethod(ctx context.Context, principal, code string) (*model.PaymentMethod, error) {
	ctx, span := tracer.Start(ctx, "Claiming virtual card")
	defer span.End()

	if err := requireAuthenticated(principal); err != nil {
		return nil, err
	}
	if code == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "A claim code is required", nil)
	}
	return p.datasource.ClaimPaymentMethod(ctx, code, principal)
}

// GetPaymentMethod retrieves a payment method by ID.
func (p *Pledger) GetPaymentMethod(ctx context.Context, id string) (*model.PaymentMethod, error) {
	return p.datasource.GetPaymentMethodByID(ctx, id)
}

// UpdatePaymentMethod edits the name and/or monthly member limit.
func (p *Pledger) UpdatePaymentMethod(ctx context.Context, principal, id, name string, monthlyLimitPerMember *int64) (*model.PaymentMethod, error) {
	current, err := p.datasource.GetPaymentMethodByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.requireAdminOf(ctx, principal, current.AccountID); err != nil {
		return nil, err
	}
	if monthlyLimitPerMember != nil && *monthlyLimitPerMember < 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Monthly limit cannot be negative", nil)
	}
	return p.datasource.UpdatePaymentMethod(ctx, id, name, monthlyLimitPerMember)
}

// RemovePaymentMethod deletes a payment method unless open orders still
// reference it, in which case the caller gets CONFLICT.
func (p *Pledger) RemovePaymentMethod(ctx context.Context, principal, id string) error {
	current, err := p.datasource.GetPaymentMethodByID(ctx, id)
	if err != nil {
		return err
	}
	if err := p.requireAdminOf(ctx, principal, current.AccountID); err != nil {
		return err
	}
	return p.datasource.DeletePaymentMethod(ctx, id)
}
