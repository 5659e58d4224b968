package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/collectnet/collect/internal/domain"
)

// ─── User Operations ────────────────────────────────────────────────────────

// UpsertUser inserts or updates a user and its balance.
func (db *DB) UpsertUser(ctx context.Context, u *domain.User) error {
	return upsertUser(ctx, db.db, u)
}

func upsertUser(ctx context.Context, ex execer, u *domain.User) error {
	bal, err := toInt64(u.Balance())
	if err != nil {
		return fmt.Errorf("user %s: %w", u.ID, err)
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO users (id, owner, name, contact, home_address, district, balance, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET
			owner        = excluded.owner,
			name         = excluded.name,
			contact      = excluded.contact,
			home_address = excluded.home_address,
			district     = excluded.district,
			balance      = excluded.balance,
			updated_at   = datetime('now')
	`, u.ID, string(u.Owner), u.Profile.Name, u.Profile.Contact, u.Profile.HomeAddress, u.Profile.District, bal)
	return err
}

// GetUser loads a user. Returns domain.ErrNotFound when absent.
func (db *DB) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var (
		owner string
		p     domain.Profile
		bal   int64
	)
	err := db.db.QueryRowContext(ctx, `
		SELECT owner, name, contact, home_address, district, balance
		FROM users WHERE id = ?
	`, id).Scan(&owner, &p.Name, &p.Contact, &p.HomeAddress, &p.District, &bal)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return domain.NewUser(id, domain.Address(owner), p, uint64(bal)), nil
}

// ─── Company Operations ─────────────────────────────────────────────────────

// UpsertCompany inserts or updates a company's profile, charges and balance.
// Its requests and collections are written by their own operations.
func (db *DB) UpsertCompany(ctx context.Context, c *domain.Company) error {
	return upsertCompany(ctx, db.db, c)
}

func upsertCompany(ctx context.Context, ex execer, c *domain.Company) error {
	bal, err := toInt64(c.Balance())
	if err != nil {
		return fmt.Errorf("company %s: %w", c.ID, err)
	}
	charges, err := toInt64(c.Charges)
	if err != nil {
		return fmt.Errorf("company %s charges: %w", c.ID, err)
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO companies (id, owner, name, contact, home_address, district, charges, balance, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET
			owner        = excluded.owner,
			name         = excluded.name,
			contact      = excluded.contact,
			home_address = excluded.home_address,
			district     = excluded.district,
			charges      = excluded.charges,
			balance      = excluded.balance,
			updated_at   = datetime('now')
	`, c.ID, string(c.Owner), c.Profile.Name, c.Profile.Contact, c.Profile.HomeAddress, c.Profile.District, charges, bal)
	return err
}

// GetCompany loads a company together with its pending requests and its
// collection ledger. Returns domain.ErrNotFound when absent.
func (db *DB) GetCompany(ctx context.Context, id string) (*domain.Company, error) {
	var (
		owner        string
		p            domain.Profile
		charges, bal int64
	)
	err := db.db.QueryRowContext(ctx, `
		SELECT owner, name, contact, home_address, district, charges, balance
		FROM companies WHERE id = ?
	`, id).Scan(&owner, &p.Name, &p.Contact, &p.HomeAddress, &p.District, &charges, &bal)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("company %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	c := domain.NewCompany(id, domain.Address(owner), p, uint64(charges), uint64(bal))

	reqs, err := db.ListRequests(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, r := range reqs {
		if err := c.Requests.Load(r); err != nil {
			return nil, err
		}
	}

	cols, err := db.ListCollections(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, col := range cols {
		if err := c.Collections.Load(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ─── Balance Events ─────────────────────────────────────────────────────────

// RecordBalanceEvent appends one balance movement to the audit trail.
func (db *DB) RecordBalanceEvent(ctx context.Context, e domain.BalanceEvent) error {
	return insertBalanceEvent(ctx, db.db, e)
}

// CommitBalanceChange writes an account's new balance and the event that
// moved it in one transaction.
func (db *DB) CommitBalanceChange(ctx context.Context, acct domain.Account, e domain.BalanceEvent) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	switch a := acct.(type) {
	case *domain.User:
		err = upsertUser(ctx, tx, a)
	case *domain.Company:
		err = upsertCompany(ctx, tx, a)
	default:
		err = fmt.Errorf("unsupported account %T", acct)
	}
	if err != nil {
		return err
	}
	if err := insertBalanceEvent(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertBalanceEvent(ctx context.Context, ex execer, e domain.BalanceEvent) error {
	amount, err := toInt64(e.Amount)
	if err != nil {
		return fmt.Errorf("balance event %s: %w", e.ID, err)
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO balance_events (id, type, from_addr, from_account, to_addr, to_account, amount, collection_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, string(e.Type), string(e.From), string(e.FromAccount), string(e.To), string(e.ToAccount),
		amount, e.CollectionID, e.Timestamp)
	return err
}

// BalanceEvents returns the most recent movements on one account, newest
// first.
func (db *DB) BalanceEvents(ctx context.Context, ref domain.AccountRef, limit int) ([]domain.BalanceEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, type, from_addr, from_account, to_addr, to_account, amount, collection_id, timestamp
		FROM balance_events
		WHERE from_account = ? OR to_account = ?
		ORDER BY timestamp DESC, id DESC LIMIT ?
	`, string(ref), string(ref), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BalanceEvent
	for rows.Next() {
		var (
			e                domain.BalanceEvent
			typ              string
			from, to         string
			fromAcct, toAcct string
			amount           int64
		)
		if err := rows.Scan(&e.ID, &typ, &from, &fromAcct, &to, &toAcct, &amount, &e.CollectionID, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Type = domain.EventType(typ)
		e.From = domain.Address(from)
		e.FromAccount = domain.AccountRef(fromAcct)
		e.To = domain.Address(to)
		e.ToAccount = domain.AccountRef(toAcct)
		e.Amount = uint64(amount)
		out = append(out, e)
	}
	return out, rows.Err()
}
