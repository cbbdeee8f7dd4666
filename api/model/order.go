package model

import "github.com/pledgerhq/pledger/model"

// CreateOrder is the request body for recording a contribution order.
// Amount is expressed in major units and converted with Precision
// (default 100) to the minor units the ledger stores.
type CreateOrder struct {
	SourceAccountID      string                 `json:"source_account_id"`
	DestinationAccountID string                 `json:"destination_account_id"`
	Amount               float64                `json:"amount"`
	Precision            int64                  `json:"precision"`
	Currency             string                 `json:"currency"`
	Interval             string                 `json:"interval"`
	PaymentMethodID      string                 `json:"payment_method_id"`
	Description          string                 `json:"description"`
	PublicMessage        string                 `json:"public_message"`
	MetaData             map[string]interface{} `json:"meta_data"`
}

func (o *CreateOrder) ToOrder() *model.Order {
	return &model.Order{
		SourceAccountID:      o.SourceAccountID,
		DestinationAccountID: o.DestinationAccountID,
		Amount:               toMinorUnits(o.Amount, o.Precision),
		Currency:             o.Currency,
		Interval:             o.Interval,
		PaymentMethodID:      o.PaymentMethodID,
		Description:          o.Description,
		PublicMessage:        o.PublicMessage,
		MetaData:             o.MetaData,
	}
}

// CompletePledge supplies the payment method that settles a pending pledge.
type CompletePledge struct {
	PaymentMethodID string `json:"payment_method_id"`
}

// UpdateOrderMessage replaces the public message attached to an order.
type UpdateOrderMessage struct {
	PublicMessage string `json:"public_message"`
}

// UpdateSubscription changes the amount or payment method of future charges.
type UpdateSubscription struct {
	Amount          *float64 `json:"amount"`
	Precision       int64    `json:"precision"`
	PaymentMethodID string   `json:"payment_method_id"`
}

// MinorAmount returns the new amount in minor units, or nil when the
// amount is not being changed.
func (u *UpdateSubscription) MinorAmount() *int64 {
	if u.Amount == nil {
		return nil
	}
	amount := toMinorUnits(*u.Amount, u.Precision)
	return &amount
}
