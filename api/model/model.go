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
package model

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/shopspring/decimal"

	"github.com/pledgerhq/pledger/model"
)

// toMinorUnits converts a major-unit amount to the integer minor units the
// ledger stores. Precision defaults to 100 (two-decimal currencies).
func toMinorUnits(amount float64, precision int64) int64 {
	if precision == 0 {
		precision = 100
	}
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromInt(precision)).IntPart()
}

func recurringNeedsPaymentMethod(o *CreateOrder) validation.RuleFunc {
	return func(value interface{}) error {
		if (o.Interval == model.IntervalMonthly || o.Interval == model.IntervalYearly) && o.PaymentMethodID == "" {
			return errors.New("a recurring order requires a payment method")
		}
		return nil
	}
}

func (o *CreateOrder) ValidateCreateOrder() error {
	return validation.ValidateStruct(o,
		validation.Field(&o.SourceAccountID, validation.Required),
		validation.Field(&o.DestinationAccountID, validation.Required),
		validation.Field(&o.Amount, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&o.Interval, validation.In(model.IntervalNone, model.IntervalMonthly, model.IntervalYearly)),
		validation.Field(&o.PaymentMethodID, validation.By(recurringNeedsPaymentMethod(o))),
	)
}

func (p *CompletePledge) ValidateCompletePledge() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.PaymentMethodID, validation.Required),
	)
}

func (u *UpdateSubscription) ValidateUpdateSubscription() error {
	return validation.ValidateStruct(u,
		validation.Field(&u.Amount, validation.By(func(value interface{}) error {
			if u.Amount == nil && u.PaymentMethodID == "" {
				return errors.New("provide a new amount or a new payment method")
			}
			if u.Amount != nil && *u.Amount <= 0 {
				return errors.New("amount must be greater than zero")
			}
			return nil
		})),
	)
}

func (e *CreateExpense) ValidateCreateExpense() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.AccountID, validation.Required),
		validation.Field(&e.Amount, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&e.Description, validation.Required),
	)
}

func (e *UpdateExpense) ValidateUpdateExpense() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.Amount, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&e.Description, validation.Required),
	)
}

func (p *PayExpense) ValidatePayExpense() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.ProcessorFee, validation.Min(0.0)),
		validation.Field(&p.HostFee, validation.Min(0.0)),
		validation.Field(&p.PlatformFee, validation.Min(0.0)),
	)
}

func (a *CreateAccount) ValidateCreateAccount() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.Name, validation.Required),
		validation.Field(&a.Type, validation.In(model.AccountTypeUser, model.AccountTypeCollective, model.AccountTypeOrganization, model.AccountTypeHost, "")),
		validation.Field(&a.Email, validation.When(a.Email != "", is.Email)),
	)
}

func (o *CreateOrganization) ValidateCreateOrganization() error {
	return validation.ValidateStruct(o,
		validation.Field(&o.Name, validation.Required),
		validation.Field(&o.Email, validation.When(o.Email != "", is.Email)),
	)
}

func (f *AddFunds) ValidateAddFunds() error {
	return validation.ValidateStruct(f,
		validation.Field(&f.HostAccountID, validation.Required),
		validation.Field(&f.Amount, validation.Required, validation.Min(0.0).Exclusive()),
	)
}

func (p *CreatePaymentMethod) ValidateCreatePaymentMethod() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.AccountID, validation.Required),
		validation.Field(&p.Type, validation.Required),
		validation.Field(&p.Currency, validation.Required),
	)
}

func (c *CreateCreditCard) ValidateCreateCreditCard() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.AccountID, validation.Required),
		validation.Field(&c.Currency, validation.Required),
		validation.Field(&c.Token, validation.Required),
		validation.Field(&c.Data, validation.Required),
	)
}

func countOrEmailsValidation(v *CreateVirtualCards) validation.RuleFunc {
	return func(value interface{}) error {
		if v.Count == 0 && len(v.Emails) == 0 {
			return errors.New("either count or emails is required")
		}
		if v.Count != 0 && len(v.Emails) != 0 && v.Count != len(v.Emails) {
			return errors.New("count does not match the number of emails")
		}
		return nil
	}
}

func openSourceRestrictionValidation(v *CreateVirtualCards) validation.RuleFunc {
	return func(value interface{}) error {
		if v.LimitedToOpenSource && len(v.LimitedToHosts) > 0 {
			return errors.New("limited_to_open_source and limited_to_host_collective_ids are mutually exclusive")
		}
		return nil
	}
}

func (v *CreateVirtualCards) ValidateCreateVirtualCards() error {
	return validation.ValidateStruct(v,
		validation.Field(&v.AccountID, validation.Required),
		validation.Field(&v.Count, validation.Min(0), validation.By(countOrEmailsValidation(v))),
		validation.Field(&v.Emails, validation.Each(is.Email)),
		validation.Field(&v.LimitedToOpenSource, validation.By(openSourceRestrictionValidation(v))),
	)
}

func (c *ClaimVirtualCard) ValidateClaimVirtualCard() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ClaimCode, validation.Required, validation.Length(16, 16)),
	)
}

func (u *UpdatePaymentMethod) ValidateUpdatePaymentMethod() error {
	return validation.ValidateStruct(u,
		validation.Field(&u.MonthlyLimitPerMember, validation.When(u.MonthlyLimitPerMember != nil, validation.Min(0.0))),
	)
}
