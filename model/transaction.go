package model

import (
	"encoding/json"
	"time"
)

const (
	TransactionTypeContribution   = "contribution"
	TransactionTypeExpensePayment = "expense_payment"
	TransactionTypeRefund         = "refund"
	TransactionTypeFundTransfer   = "fund_transfer"
)

// Transaction is an immutable ledger entry representing a completed fund
// movement. A refund links to the entry it reverses through
// ParentTransactionID and carries the negated amount, so the signed sum of
// an entry and its refund is always zero.
type Transaction struct {
	ID                   int64                  `json:"-"`
	TransactionID        string                 `json:"id"`
	Type                 string                 `json:"type"`
	SourceAccountID      string                 `json:"source_account_id"`
	DestinationAccountID string                 `json:"destination_account_id"`
	Amount               int64                  `json:"amount"`
	Currency             string                 `json:"currency"`
	OrderID              string                 `json:"order_id,omitempty"`
	ExpenseID            string                 `json:"expense_id,omitempty"`
	PaymentMethodID      string                 `json:"payment_method_id,omitempty"`
	ParentTransactionID  string                 `json:"parent_transaction_id,omitempty"`
	Description          string                 `json:"description,omitempty"`
	Reference            string                 `json:"reference"`
	CreatedAt            time.Time              `json:"created_at"`
	MetaData             map[string]interface{} `json:"meta_data,omitempty"`
}

// Reverse builds the refund entry for the transaction: same legs, negated
// amount, linked to the original. The original record is never mutated.
func (transaction *Transaction) Reverse() *Transaction {
	return &Transaction{
		TransactionID:        GenerateUUIDWithSuffix("txn"),
		Type:                 TransactionTypeRefund,
		SourceAccountID:      transaction.SourceAccountID,
		DestinationAccountID: transaction.DestinationAccountID,
		Amount:               -transaction.Amount,
		Currency:             transaction.Currency,
		OrderID:              transaction.OrderID,
		ExpenseID:            transaction.ExpenseID,
		PaymentMethodID:      transaction.PaymentMethodID,
		ParentTransactionID:  transaction.TransactionID,
		Description:          "Refund of " + transaction.TransactionID,
		Reference:            GenerateUUIDWithSuffix("ref"),
		CreatedAt:            time.Now(),
	}
}

func (transaction *Transaction) ToJSON() ([]byte, error) {
	return json.Marshal(transaction)
}
