package database

import (
	"context"
	"time"

	"github.com/pledgerhq/pledger/model"
)

// IDataSource is the storage contract the service layer depends on. Every
// method that touches more than one row runs inside a single database
// transaction; invariants that close check-then-write races are re-checked
// there under row locks.
type IDataSource interface {
	account
	order
	expense
	paymentMethod
	transaction
}

type account interface {
	CreateAccount(ctx context.Context, account model.Account) (model.Account, error)
	CreateOrganizationWithAdmin(ctx context.Context, org model.Account, adminAccountID string) (model.Account, error)
	GetAccountByID(ctx context.Context, id string) (*model.Account, error)
	HasRole(ctx context.Context, accountID, memberAccountID, role string) (bool, error)
}

type order interface {
	CreateOrder(ctx context.Context, ord *model.Order, subscription *model.Subscription, txn *model.Transaction) error
	GetOrderByID(ctx context.Context, id string) (*model.Order, error)
	CompletePledge(ctx context.Context, orderID, paymentMethodID string, txn *model.Transaction) (*model.Order, error)
	UpdateOrderMessage(ctx context.Context, orderID, publicMessage string) (*model.Order, error)
	GetSubscriptionByID(ctx context.Context, id string) (*model.Subscription, error)
	CancelSubscription(ctx context.Context, id string) (*model.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, amount *int64, paymentMethodID string) (*model.Subscription, error)
	RecordSubscriptionCharge(ctx context.Context, id string, txn *model.Transaction, nextChargeAt time.Time) error
}

type expense interface {
	CreateExpense(ctx context.Context, exp *model.Expense) (*model.Expense, error)
	GetExpenseByID(ctx context.Context, id string) (*model.Expense, error)
	UpdateExpense(ctx context.Context, exp *model.Expense) (*model.Expense, error)
	DeleteExpense(ctx context.Context, id string) error
	UpdateExpenseStatus(ctx context.Context, id, newStatus string) (*model.Expense, error)
	PayExpense(ctx context.Context, id string, fees model.FeeBreakdown, hostAccountID string, txn *model.Transaction) (*model.Expense, error)
}

type paymentMethod interface {
	CreatePaymentMethod(ctx context.Context, pm *model.PaymentMethod) (*model.PaymentMethod, error)
	CreatePaymentMethodsBatch(ctx context.Context, pms []*model.PaymentMethod) error
	GetPaymentMethodByID(ctx context.Context, id string) (*model.PaymentMethod, error)
	ClaimPaymentMethod(ctx context.Context, code, accountID string) (*model.PaymentMethod, error)
	UpdatePaymentMethod(ctx context.Context, id, name string, monthlyLimitPerMember *int64) (*model.PaymentMethod, error)
	DeletePaymentMethod(ctx context.Context, id string) error
	AddFunds(ctx context.Context, pm *model.PaymentMethod, txn *model.Transaction) (*model.PaymentMethod, error)
}

type transaction interface {
	RecordTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	RecordRefund(ctx context.Context, originalID string) (*model.Transaction, error)
	GetBalance(ctx context.Context, accountID string) (int64, error)
	GetHostManagedBalance(ctx context.Context, hostAccountID string) (int64, error)
}
