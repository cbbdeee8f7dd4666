package model

import (
	"time"

	"github.com/pledgerhq/pledger"
	"github.com/pledgerhq/pledger/model"
)

// CreatePaymentMethod registers a generic payment instrument.
type CreatePaymentMethod struct {
	AccountID             string                 `json:"account_id"`
	Name                  string                 `json:"name"`
	Service               string                 `json:"service"`
	Type                  string                 `json:"type"`
	Currency              string                 `json:"currency"`
	Token                 string                 `json:"token"`
	Data                  map[string]interface{} `json:"data"`
	MonthlyLimitPerMember float64                `json:"monthly_limit_per_member"`
	Precision             int64                  `json:"precision"`
}

func (p *CreatePaymentMethod) ToPaymentMethod() *model.PaymentMethod {
	pm := &model.PaymentMethod{
		AccountID: p.AccountID,
		Name:      p.Name,
		Service:   p.Service,
		Type:      p.Type,
		Currency:  p.Currency,
		Token:     p.Token,
		Data:      p.Data,
	}
	if p.MonthlyLimitPerMember != 0 {
		pm.MonthlyLimitPerMember = toMinorUnits(p.MonthlyLimitPerMember, p.Precision)
	}
	return pm
}

// CreateCreditCard registers a tokenized card from the payment processor.
type CreateCreditCard struct {
	AccountID string                 `json:"account_id"`
	Name      string                 `json:"name"`
	Currency  string                 `json:"currency"`
	Token     string                 `json:"token"`
	Data      map[string]interface{} `json:"data"`
}

func (c *CreateCreditCard) ToPaymentMethod() *model.PaymentMethod {
	return &model.PaymentMethod{
		AccountID: c.AccountID,
		Name:      c.Name,
		Currency:  c.Currency,
		Token:     c.Token,
		Data:      c.Data,
	}
}

// CreateVirtualCards mints a batch of gift cards funded by an account.
// Either Count or Emails sizes the batch; when both are given they must
// agree.
type CreateVirtualCards struct {
	AccountID             string     `json:"account_id"`
	PaymentMethodID       string     `json:"payment_method_id"`
	Name                  string     `json:"name"`
	Currency              string     `json:"currency"`
	MonthlyLimitPerMember float64    `json:"monthly_limit_per_member"`
	Precision             int64      `json:"precision"`
	Count                 int        `json:"count"`
	Emails                []string   `json:"emails"`
	ExpiryDate            *time.Time `json:"expiry_date"`
	LimitedToTags         []string   `json:"limited_to_tags"`
	LimitedToCollectives  []string   `json:"limited_to_collective_ids"`
	LimitedToHosts        []string   `json:"limited_to_host_collective_ids"`
	LimitedToOpenSource   bool       `json:"limited_to_open_source"`
}

func (v *CreateVirtualCards) ToBatch() pledger.VirtualCardBatch {
	batch := pledger.VirtualCardBatch{
		AccountID:            v.AccountID,
		PaymentMethodID:      v.PaymentMethodID,
		Name:                 v.Name,
		Currency:             v.Currency,
		Count:                v.Count,
		Emails:               v.Emails,
		ExpiryDate:           v.ExpiryDate,
		LimitedToTags:        v.LimitedToTags,
		LimitedToCollectives: v.LimitedToCollectives,
		LimitedToHosts:       v.LimitedToHosts,
		LimitedToOpenSource:  v.LimitedToOpenSource,
	}
	if v.MonthlyLimitPerMember != 0 {
		batch.MonthlyLimitPerMember = toMinorUnits(v.MonthlyLimitPerMember, v.Precision)
	}
	return batch
}

// ClaimVirtualCard binds an unclaimed card to the calling account.
type ClaimVirtualCard struct {
	ClaimCode string `json:"claim_code"`
}

// UpdatePaymentMethod renames an instrument or adjusts its member limit.
type UpdatePaymentMethod struct {
	Name                  string   `json:"name"`
	MonthlyLimitPerMember *float64 `json:"monthly_limit_per_member"`
	Precision             int64    `json:"precision"`
}

// MinorLimit returns the new limit in minor units, or nil when the limit
// is not being changed.
func (u *UpdatePaymentMethod) MinorLimit() *int64 {
	if u.MonthlyLimitPerMember == nil {
		return nil
	}
	limit := toMinorUnits(*u.MonthlyLimitPerMember, u.Precision)
	return &limit
}
