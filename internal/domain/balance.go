package domain

import (
	"fmt"
	"math"
)

// ─── Balance Ledger ─────────────────────────────────────────────────────────

// AccountCommit durably persists an account after a balance change. It runs
// while the account's lock is held; a non-nil error undoes the change.
type AccountCommit func(Account) error

// Deposit credits amount to acct. It takes the account's lock.
func Deposit(acct Account, amount uint64) error {
	return DepositAndCommit(acct, amount, nil)
}

// DepositAndCommit is Deposit followed by commit under the same lock.
func DepositAndCommit(acct Account, amount uint64, commit AccountCommit) error {
	acct.Lock()
	defer acct.Unlock()

	if err := deposit(acct, amount); err != nil {
		return err
	}
	if commit != nil {
		if err := commit(acct); err != nil {
			acct.debit(amount)
			return fmt.Errorf("commit deposit: %w", err)
		}
	}
	return nil
}

func deposit(acct Account, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("deposit of zero: %w", ErrInvalidAmount)
	}
	if acct.Balance() > math.MaxUint64-amount {
		return fmt.Errorf("deposit of %d overflows balance: %w", amount, ErrInvalidAmount)
	}
	acct.credit(amount)
	return nil
}

// Withdraw debits amount from acct on behalf of requester and returns the
// amount released to the requester's external wallet. Only the account
// owner may withdraw. It takes the account's lock.
func Withdraw(acct Account, amount uint64, requester Address) (uint64, error) {
	return WithdrawAndCommit(acct, amount, requester, nil)
}

// WithdrawAndCommit is Withdraw followed by commit under the same lock.
func WithdrawAndCommit(acct Account, amount uint64, requester Address, commit AccountCommit) (uint64, error) {
	acct.Lock()
	defer acct.Unlock()

	if requester != acct.OwnerAddress() {
		return 0, unauthorized(NotOwner, requester)
	}
	if amount == 0 {
		return 0, fmt.Errorf("withdraw of zero: %w", ErrInvalidAmount)
	}
	if acct.Balance() < amount {
		return 0, fmt.Errorf("withdraw %d from balance %d: %w", amount, acct.Balance(), ErrInsufficientBalance)
	}
	acct.debit(amount)
	if commit != nil {
		if err := commit(acct); err != nil {
			acct.credit(amount)
			return 0, fmt.Errorf("commit withdraw: %w", err)
		}
	}
	return amount, nil
}

// transfer moves amount from one account to another. Both legs are
// validated before either is applied. Callers must hold both locks and
// have authorized the debit of from.
func transfer(from, to Account, amount uint64) error {
	if from.Balance() < amount {
		return fmt.Errorf("transfer %d from balance %d: %w", amount, from.Balance(), ErrInsufficientBalance)
	}
	if to.Balance() > math.MaxUint64-amount {
		return fmt.Errorf("transfer of %d overflows balance: %w", amount, ErrInvalidAmount)
	}
	from.debit(amount)
	to.credit(amount)
	return nil
}
