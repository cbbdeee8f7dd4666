package model

import "time"

const (
	AccountTypeUser         = "user"
	AccountTypeCollective   = "collective"
	AccountTypeOrganization = "organization"
	AccountTypeHost         = "host"
)

const (
	RoleAdmin  = "admin"
	RoleHost   = "host"
	RoleBacker = "backer"
)

// Account is any entity capable of sending or receiving funds: a user, a
// collective, an organization, or a fiscal host. A collective that is
// fiscally sponsored points at its host through HostAccountID.
type Account struct {
	ID            int64                  `json:"-"`
	AccountID     string                 `json:"account_id"`
	Name          string                 `json:"name"`
	Type          string                 `json:"type"`
	Currency      string                 `json:"currency"`
	HostAccountID string                 `json:"host_account_id,omitempty"`
	Tags          []string               `json:"tags,omitempty"`
	Email         string                 `json:"email,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	MetaData      map[string]interface{} `json:"meta_data,omitempty"`
}

// Member assigns a role to MemberAccountID on AccountID. The pair plus role
// is unique; role mutation itself belongs to the membership collaborator,
// this core only reads it and creates the first admin on composite creates.
type Member struct {
	ID              int64     `json:"-"`
	MemberID        string    `json:"member_id"`
	AccountID       string    `json:"account_id"`
	MemberAccountID string    `json:"member_account_id"`
	Role            string    `json:"role"`
	CreatedAt       time.Time `json:"created_at"`
}

// IsHosted reports whether the account has a fiscal host.
func (a *Account) IsHosted() bool {
	return a.HostAccountID != ""
}
