package model

import "github.com/pledgerhq/pledger/model"

// CreateExpense is the request body for submitting an expense against a
// collective. PayeeAccountID defaults to the submitting account.
type CreateExpense struct {
	AccountID      string                 `json:"account_id"`
	PayeeAccountID string                 `json:"payee_account_id"`
	Amount         float64                `json:"amount"`
	Precision      int64                  `json:"precision"`
	Currency       string                 `json:"currency"`
	Description    string                 `json:"description"`
	Attachment     string                 `json:"attachment"`
	MetaData       map[string]interface{} `json:"meta_data"`
}

func (e *CreateExpense) ToExpense() *model.Expense {
	return &model.Expense{
		AccountID:      e.AccountID,
		PayeeAccountID: e.PayeeAccountID,
		Amount:         toMinorUnits(e.Amount, e.Precision),
		Currency:       e.Currency,
		Description:    e.Description,
		Attachment:     e.Attachment,
		MetaData:       e.MetaData,
	}
}

// UpdateExpense edits a pending expense.
type UpdateExpense struct {
	Amount      float64                `json:"amount"`
	Precision   int64                  `json:"precision"`
	Description string                 `json:"description"`
	Attachment  string                 `json:"attachment"`
	MetaData    map[string]interface{} `json:"meta_data"`
}

func (e *UpdateExpense) ToExpense(expenseID string) *model.Expense {
	return &model.Expense{
		ExpenseID:   expenseID,
		Amount:      toMinorUnits(e.Amount, e.Precision),
		Description: e.Description,
		Attachment:  e.Attachment,
		MetaData:    e.MetaData,
	}
}

// PayExpense carries the fee breakdown withheld from the payout.
type PayExpense struct {
	ProcessorFee float64 `json:"processor_fee"`
	HostFee      float64 `json:"host_fee"`
	PlatformFee  float64 `json:"platform_fee"`
	Precision    int64   `json:"precision"`
}

func (p *PayExpense) ToFees() model.FeeBreakdown {
	return model.FeeBreakdown{
		ProcessorFee: toMinorUnits(p.ProcessorFee, p.Precision),
		HostFee:      toMinorUnits(p.HostFee, p.Precision),
		PlatformFee:  toMinorUnits(p.PlatformFee, p.Precision),
	}
}
