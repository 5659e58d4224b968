package domain

// ─── Balance Events ─────────────────────────────────────────────────────────
// Audit trail of every balance movement. Emitting them is optional for the
// core; the application layer persists one per deposit, withdrawal and
// settlement transfer.

// EventType is the business reason for a balance movement.
type EventType string

const (
	EventDeposit    EventType = "DEPOSIT"
	EventWithdraw   EventType = "WITHDRAW"
	EventSettlement EventType = "SETTLEMENT"
)

// AccountRef names one balance-bearing record, e.g. "user:u-1". One owner
// may hold several accounts, so the audit trail is keyed by ref, not owner.
type AccountRef string

// UserRef returns the ref of the user with the given id.
func UserRef(id string) AccountRef { return AccountRef("user:" + id) }

// CompanyRef returns the ref of the company with the given id.
func CompanyRef(id string) AccountRef { return AccountRef("company:" + id) }

// RefOf returns the ref of a user or company account.
func RefOf(acct Account) AccountRef {
	switch a := acct.(type) {
	case *User:
		return UserRef(a.ID)
	case *Company:
		return CompanyRef(a.ID)
	}
	return ""
}

// BalanceEvent records one movement. The From side is empty for deposits
// and the To side is empty for withdrawals to an external wallet.
type BalanceEvent struct {
	ID           string     `json:"id"`
	Type         EventType  `json:"type"`
	From         Address    `json:"from,omitempty"`
	FromAccount  AccountRef `json:"from_account,omitempty"`
	To           Address    `json:"to,omitempty"`
	ToAccount    AccountRef `json:"to_account,omitempty"`
	Amount       uint64     `json:"amount"`
	CollectionID string     `json:"collection_id,omitempty"`
	Timestamp    int64      `json:"timestamp"`
}
