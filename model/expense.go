package model

import "time"

const (
	ExpenseStatusPending  = "pending"
	ExpenseStatusApproved = "approved"
	ExpenseStatusRejected = "rejected"
	ExpenseStatusPaid     = "paid"
)

// Expense is a payout request filed against an account. Its status walks a
// one-directional machine: pending -> approved -> paid, or
// pending -> rejected.
type Expense struct {
	ID             int64     `json:"-"`
	ExpenseID      string    `json:"expense_id"`
	AccountID      string    `json:"account_id"`
	PayeeAccountID string    `json:"payee_account_id"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	Description    string    `json:"description"`
	Attachment     string    `json:"attachment,omitempty"`
	Status         string    `json:"status"`
	ProcessorFee   int64     `json:"processor_fee"`
	HostFee        int64     `json:"host_fee"`
	PlatformFee    int64     `json:"platform_fee"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	MetaData map[string]interface{} `json:"meta_data,omitempty"`
}

// FeeBreakdown is the caller-supplied fee split applied when an expense is
// paid out.
type FeeBreakdown struct {
	ProcessorFee int64 `json:"processor_fee"`
	HostFee      int64 `json:"host_fee"`
	PlatformFee  int64 `json:"platform_fee"`
}

// Total returns the sum of all fees.
func (f FeeBreakdown) Total() int64 {
	return f.ProcessorFee + f.HostFee + f.PlatformFee
}

// NetPayout returns the amount actually paid out once fees are deducted.
func (e *Expense) NetPayout(fees FeeBreakdown) int64 {
	return e.Amount - fees.Total()
}

// CanTransitionExpense reports whether the expense state machine allows the
// edge from -> to.
func CanTransitionExpense(from, to string) bool {
	switch from {
	case ExpenseStatusPending:
		return to == ExpenseStatusApproved || to == ExpenseStatusRejected
	case ExpenseStatusApproved:
		return to == ExpenseStatusPaid
	default:
		return false
	}
}
