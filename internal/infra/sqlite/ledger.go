package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/collectnet/collect/internal/domain"
)

// ─── Truck Operations ───────────────────────────────────────────────────────

// UpsertTruck inserts or updates a truck and its assigned users.
func (db *DB) UpsertTruck(ctx context.Context, t *domain.Truck) error {
	total, err := toInt64(t.TotalCapacity)
	if err != nil {
		return fmt.Errorf("truck %s: %w", t.ID, err)
	}
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trucks (id, company_id, registration, driver, district, total_capacity, capacity, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET
			registration = excluded.registration,
			driver       = excluded.driver,
			district     = excluded.district,
			capacity     = excluded.capacity,
			updated_at   = datetime('now')
	`, t.ID, t.CompanyID, t.Registration, t.Driver, t.District, total, int64(t.Capacity()))
	if err != nil {
		return err
	}
	for _, addr := range t.Users() {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO truck_users (truck_id, address) VALUES (?, ?)
		`, t.ID, string(addr)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetTruck loads a truck and its assigned users.
func (db *DB) GetTruck(ctx context.Context, id string) (*domain.Truck, error) {
	var (
		companyID, reg, driver, district string
		total, capacity                  int64
	)
	err := db.db.QueryRowContext(ctx, `
		SELECT company_id, registration, driver, district, total_capacity, capacity
		FROM trucks WHERE id = ?
	`, id).Scan(&companyID, &reg, &driver, &district, &total, &capacity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("truck %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	t := domain.NewTruck(id, companyID, reg, driver, district, uint64(total), uint64(capacity))

	rows, err := db.db.QueryContext(ctx, `SELECT address FROM truck_users WHERE truck_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		t.AssignUser(domain.Address(addr))
	}
	return t, rows.Err()
}

// ListTruckIDs returns the ids of a company's trucks.
func (db *DB) ListTruckIDs(ctx context.Context, companyID string) ([]string, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id FROM trucks WHERE company_id = ? ORDER BY id
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ─── Request Operations ─────────────────────────────────────────────────────

// InsertRequest stores a pending request for a company.
func (db *DB) InsertRequest(ctx context.Context, companyID string, r domain.CollectionRequest) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO collection_requests (id, company_id, requester, pickup_address, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, r.ID, companyID, string(r.Requester), r.PickupAddress, r.CreatedAt)
	return err
}

// DeleteRequest removes a pending request. Returns domain.ErrNotFound when
// no such request exists for the company.
func (db *DB) DeleteRequest(ctx context.Context, companyID, requestID string) error {
	return deleteRequest(ctx, db.db, companyID, requestID)
}

func deleteRequest(ctx context.Context, ex execer, companyID, requestID string) error {
	res, err := ex.ExecContext(ctx, `
		DELETE FROM collection_requests WHERE id = ? AND company_id = ?
	`, requestID, companyID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("request %s: %w", requestID, domain.ErrNotFound)
	}
	return nil
}

// ListRequests returns a company's pending requests, oldest first.
func (db *DB) ListRequests(ctx context.Context, companyID string) ([]domain.CollectionRequest, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, requester, pickup_address, created_at
		FROM collection_requests WHERE company_id = ?
		ORDER BY created_at, id
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CollectionRequest
	for rows.Next() {
		var (
			r         domain.CollectionRequest
			requester string
		)
		if err := rows.Scan(&r.ID, &requester, &r.PickupAddress, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Requester = domain.Address(requester)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ─── Collection Ledger Operations ───────────────────────────────────────────

// ListCollections returns a company's collections in insertion order.
func (db *DB) ListCollections(ctx context.Context, companyID string) ([]domain.Collection, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, company_id, requester, requester_name, truck_id, date, timestamp, district, weight, charges
		FROM collections WHERE company_id = ?
		ORDER BY seq
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Collection
	for rows.Next() {
		var (
			c               domain.Collection
			requester       string
			weight, charges int64
		)
		if err := rows.Scan(&c.ID, &c.CompanyID, &requester, &c.RequesterName, &c.TruckID,
			&c.Date, &c.Timestamp, &c.District, &weight, &charges); err != nil {
			return nil, err
		}
		c.Requester = domain.Address(requester)
		c.Weight = uint64(weight)
		c.Charges = uint64(charges)
		out = append(out, c)
	}
	return out, rows.Err()
}

// CommitSettlement writes balances, truck capacity, the collection record,
// the consumed request and the transfer event in one transaction.
func (db *DB) CommitSettlement(ctx context.Context, s domain.SettlementRecord) error {
	userBal, err := toInt64(s.UserBalance)
	if err != nil {
		return err
	}
	companyBal, err := toInt64(s.CompanyBalance)
	if err != nil {
		return err
	}
	weight, err := toInt64(s.Collection.Weight)
	if err != nil {
		return err
	}
	charges, err := toInt64(s.Collection.Charges)
	if err != nil {
		return err
	}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := updateOne(ctx, tx, `UPDATE users SET balance = ?, updated_at = datetime('now') WHERE id = ?`,
		userBal, s.UserID); err != nil {
		return fmt.Errorf("user %s: %w", s.UserID, err)
	}
	if err := updateOne(ctx, tx, `UPDATE companies SET balance = ?, updated_at = datetime('now') WHERE id = ?`,
		companyBal, s.CompanyID); err != nil {
		return fmt.Errorf("company %s: %w", s.CompanyID, err)
	}
	if err := updateOne(ctx, tx, `UPDATE trucks SET capacity = ?, updated_at = datetime('now') WHERE id = ?`,
		int64(s.TruckCapacity), s.TruckID); err != nil {
		return fmt.Errorf("truck %s: %w", s.TruckID, err)
	}

	c := s.Collection
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO collections (id, company_id, requester, requester_name, truck_id, date, timestamp, district, weight, charges)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.CompanyID, string(c.Requester), c.RequesterName, c.TruckID, c.Date, c.Timestamp, c.District, weight, charges); err != nil {
		return fmt.Errorf("insert collection %s: %w", c.ID, err)
	}

	if s.ConsumedRequest != "" {
		if err := deleteRequest(ctx, tx, s.CompanyID, s.ConsumedRequest); err != nil {
			return err
		}
	}
	if err := insertBalanceEvent(ctx, tx, s.Transfer); err != nil {
		return err
	}
	return tx.Commit()
}

func updateOne(ctx context.Context, ex execer, query string, args ...any) error {
	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return domain.ErrNotFound
	}
	return nil
}
