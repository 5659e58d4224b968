package sqlite

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema migration statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id           TEXT PRIMARY KEY,
			owner        TEXT NOT NULL,
			name         TEXT NOT NULL DEFAULT '',
			contact      TEXT NOT NULL DEFAULT '',
			home_address TEXT NOT NULL DEFAULT '',
			district     TEXT NOT NULL DEFAULT '',
			balance      INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
			updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_owner ON users(owner)`,

		`CREATE TABLE IF NOT EXISTS companies (
			id           TEXT PRIMARY KEY,
			owner        TEXT NOT NULL,
			name         TEXT NOT NULL DEFAULT '',
			contact      TEXT NOT NULL DEFAULT '',
			home_address TEXT NOT NULL DEFAULT '',
			district     TEXT NOT NULL DEFAULT '',
			charges      INTEGER NOT NULL DEFAULT 0 CHECK (charges >= 0),
			balance      INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
			updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		`CREATE TABLE IF NOT EXISTS trucks (
			id             TEXT PRIMARY KEY,
			company_id     TEXT NOT NULL REFERENCES companies(id),
			registration   TEXT NOT NULL DEFAULT '',
			driver         TEXT NOT NULL DEFAULT '',
			district       TEXT NOT NULL DEFAULT '',
			total_capacity INTEGER NOT NULL CHECK (total_capacity >= 0),
			capacity       INTEGER NOT NULL CHECK (capacity >= 0 AND capacity <= total_capacity),
			updated_at     TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trucks_company ON trucks(company_id)`,

		`CREATE TABLE IF NOT EXISTS truck_users (
			truck_id TEXT NOT NULL REFERENCES trucks(id),
			address  TEXT NOT NULL,
			PRIMARY KEY (truck_id, address)
		)`,

		// Pending requests: rows are deleted when cancelled or consumed
		`CREATE TABLE IF NOT EXISTS collection_requests (
			id             TEXT PRIMARY KEY,
			company_id     TEXT NOT NULL REFERENCES companies(id),
			requester      TEXT NOT NULL,
			pickup_address TEXT NOT NULL DEFAULT '',
			created_at     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_company ON collection_requests(company_id, created_at)`,

		// Append-only collection ledger
		`CREATE TABLE IF NOT EXISTS collections (
			seq            INTEGER PRIMARY KEY AUTOINCREMENT,
			id             TEXT NOT NULL UNIQUE,
			company_id     TEXT NOT NULL REFERENCES companies(id),
			requester      TEXT NOT NULL,
			requester_name TEXT NOT NULL DEFAULT '',
			truck_id       TEXT NOT NULL REFERENCES trucks(id),
			date           TEXT NOT NULL DEFAULT '',
			timestamp      INTEGER NOT NULL,
			district       TEXT NOT NULL DEFAULT '',
			weight         INTEGER NOT NULL,
			charges        INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_collections_company ON collections(company_id, seq)`,
		`CREATE TRIGGER IF NOT EXISTS collections_no_update
			BEFORE UPDATE ON collections
			BEGIN SELECT RAISE(ABORT, 'collections are append-only'); END`,
		`CREATE TRIGGER IF NOT EXISTS collections_no_delete
			BEFORE DELETE ON collections
			BEGIN SELECT RAISE(ABORT, 'collections are append-only'); END`,

		// Balance movement audit trail
		`CREATE TABLE IF NOT EXISTS balance_events (
			id            TEXT PRIMARY KEY,
			type          TEXT NOT NULL,
			from_addr     TEXT NOT NULL DEFAULT '',
			from_account  TEXT NOT NULL DEFAULT '',
			to_addr       TEXT NOT NULL DEFAULT '',
			to_account    TEXT NOT NULL DEFAULT '',
			amount        INTEGER NOT NULL,
			collection_id TEXT NOT NULL DEFAULT '',
			timestamp     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_balance_events_from ON balance_events(from_account, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_balance_events_to ON balance_events(to_account, timestamp)`,
	}
}
