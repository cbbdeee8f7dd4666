package model

import "time"

const (
	IntervalNone    = ""
	IntervalMonthly = "monthly"
	IntervalYearly  = "yearly"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusActive    = "active"
	OrderStatusCancelled = "cancelled"
	OrderStatusPaid      = "paid"
)

// Order is a recorded intent to contribute funds from a source account to a
// destination account, one-time or recurring. An order with no payment
// method is a pledge: it stays pending until the payment information is
// supplied and the pledge is completed.
type Order struct {
	ID                   int64                  `json:"-"`
	OrderID              string                 `json:"order_id"`
	SourceAccountID      string                 `json:"source_account_id"`
	DestinationAccountID string                 `json:"destination_account_id"`
	Amount               int64                  `json:"amount"`
	Currency             string                 `json:"currency"`
	Interval             string                 `json:"interval,omitempty"`
	Status               string                 `json:"status"`
	PaymentMethodID      string                 `json:"payment_method_id,omitempty"`
	Description          string                 `json:"description,omitempty"`
	PublicMessage        string                 `json:"public_message,omitempty"`
	CreatedAt            time.Time              `json:"created_at"`
	MetaData             map[string]interface{} `json:"meta_data,omitempty"`
}

// Subscription is the recurring-charge schedule backing a recurring order.
// Cancelling or updating it only affects future charges; transactions
// already recorded are never touched.
type Subscription struct {
	ID              int64      `json:"-"`
	SubscriptionID  string     `json:"subscription_id"`
	OrderID         string     `json:"order_id"`
	Amount          int64      `json:"amount"`
	Currency        string     `json:"currency"`
	Interval        string     `json:"interval"`
	PaymentMethodID string     `json:"payment_method_id,omitempty"`
	NextChargeAt    time.Time  `json:"next_charge_at"`
	Active          bool       `json:"active"`
	DeactivatedAt   *time.Time `json:"deactivated_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// IsRecurring reports whether the order carries a charge interval.
func (o *Order) IsRecurring() bool {
	return o.Interval == IntervalMonthly || o.Interval == IntervalYearly
}

// NextChargeDate returns the next charge date following from for the given
// interval. Unknown intervals default to monthly.
func NextChargeDate(from time.Time, interval string) time.Time {
	if interval == IntervalYearly {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}
