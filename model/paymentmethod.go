package model

import "time"

const (
	PaymentMethodTypeCreditCard  = "creditcard"
	PaymentMethodTypeManual      = "manual"
	PaymentMethodTypeVirtualCard = "virtualcard"

	PaymentMethodServiceStripe  = "stripe"
	PaymentMethodServicePledger = "pledger"
)

// PaymentMethod is a payment instrument owned by an account. Virtual cards
// are minted from a parent payment method and consume against its budget;
// until claimed they have no owning account, only a claim code and an
// optionally invited recipient.
type PaymentMethod struct {
	ID                    int64                  `json:"-"`
	PaymentMethodID       string                 `json:"payment_method_id"`
	AccountID             string                 `json:"account_id,omitempty"`
	Name                  string                 `json:"name"`
	Service               string                 `json:"service"`
	Type                  string                 `json:"type"`
	Currency              string                 `json:"currency"`
	Token                 string                 `json:"-"`
	Data                  map[string]interface{} `json:"data,omitempty"`
	MonthlyLimitPerMember int64                  `json:"monthly_limit_per_member,omitempty"`
	LimitedToTags         []string               `json:"limited_to_tags,omitempty"`
	LimitedToCollectives  []string               `json:"limited_to_collective_ids,omitempty"`
	LimitedToHosts        []string               `json:"limited_to_host_collective_ids,omitempty"`
	ExpiryDate            *time.Time             `json:"expiry_date,omitempty"`
	ParentPaymentMethodID string                 `json:"parent_payment_method_id,omitempty"`
	ClaimCode             string                 `json:"claim_code,omitempty"`
	RecipientEmail        string                 `json:"recipient_email,omitempty"`
	ClaimedAt             *time.Time             `json:"claimed_at,omitempty"`
	CreatedAt             time.Time              `json:"created_at"`
}

// IsClaimed reports whether a virtual card has been bound to an account.
func (p *PaymentMethod) IsClaimed() bool {
	return p.ClaimedAt != nil
}

// IsVirtualCard reports whether the instrument is a minted virtual card.
func (p *PaymentMethod) IsVirtualCard() bool {
	return p.Type == PaymentMethodTypeVirtualCard
}
