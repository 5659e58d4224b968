package domain

import (
	"context"
	"time"
)

// ─── Collaborator Interfaces ────────────────────────────────────────────────
// The core consumes these; infrastructure implements them.

// Clock supplies settlement and request timestamps (unix milliseconds).
type Clock interface {
	Now() int64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() int64

func (f ClockFunc) Now() int64 { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(func() int64 { return time.Now().UnixMilli() })

// IDSource mints fresh unique identifiers.
type IDSource interface {
	NewID() string
}

// Store persists entities after the core has mutated them.
type Store interface {
	UpsertUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)

	UpsertCompany(ctx context.Context, c *Company) error
	GetCompany(ctx context.Context, id string) (*Company, error)

	UpsertTruck(ctx context.Context, t *Truck) error
	GetTruck(ctx context.Context, id string) (*Truck, error)

	InsertRequest(ctx context.Context, companyID string, r CollectionRequest) error
	DeleteRequest(ctx context.Context, companyID, requestID string) error

	// CommitSettlement durably writes every effect of one settlement in a
	// single transaction.
	CommitSettlement(ctx context.Context, s SettlementRecord) error

	RecordBalanceEvent(ctx context.Context, e BalanceEvent) error
}

// SettlementRecord bundles the post-settlement state handed to the Store.
type SettlementRecord struct {
	CompanyID       string
	CompanyBalance  uint64
	UserID          string
	UserBalance     uint64
	TruckID         string
	TruckCapacity   uint64
	Collection      Collection
	ConsumedRequest string // empty when no request was consumed
	Transfer        BalanceEvent
}
