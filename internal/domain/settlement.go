package domain

import "fmt"

// ─── Collection Settlement Engine ───────────────────────────────────────────
// A settlement records one completed pickup and moves the company's flat
// fee from the user to the company:
//
//  1. Lock company → user → truck (fixed order, so concurrent settlements
//     touching overlapping entities cannot deadlock)
//  2. Check preconditions, first violation wins
//  3. Transfer charges, reserve capacity, record the collection, consume
//     the request
//  4. Run the commit hook; on failure undo step 3
//  5. Unlock in reverse order

// SettleInput carries the per-call parameters of a settlement.
type SettleInput struct {
	// UserAddress is the identity the company claims to be servicing. It
	// must match the user record's stored owner address.
	UserAddress Address
	// RequestID optionally names the pending request this pickup consumes.
	RequestID string
	Date      string
	District  string
	Weight    uint64
}

// CommitFunc durably persists a settlement. It runs while all three entity
// locks are held; a non-nil error rolls the settlement back.
type CommitFunc func(SettlementRecord) error

// Engine performs settlements.
type Engine struct {
	clock Clock
	ids   IDSource
}

// NewEngine creates a settlement engine.
func NewEngine(clock Clock, ids IDSource) *Engine {
	return &Engine{clock: clock, ids: ids}
}

// Settle validates and applies one settlement. On any error nothing has
// changed. commit may be nil when no durable store is involved.
func (e *Engine) Settle(caller Address, company *Company, user *User, truck *Truck, in SettleInput, commit CommitFunc) (Collection, error) {
	company.Lock()
	defer company.Unlock()
	user.Lock()
	defer user.Unlock()
	truck.Lock()
	defer truck.Unlock()

	if err := checkSettlement(caller, company, user, truck, in); err != nil {
		return Collection{}, err
	}

	now := e.clock.Now()
	col := Collection{
		ID:            e.ids.NewID(),
		CompanyID:     company.ID,
		Requester:     user.Owner,
		RequesterName: user.Profile.Name,
		TruckID:       truck.ID,
		Date:          in.Date,
		Timestamp:     now,
		District:      in.District,
		Weight:        in.Weight,
		Charges:       company.Charges,
	}
	var consumed CollectionRequest
	if in.RequestID != "" {
		req, err := company.Requests.get(in.RequestID)
		if err != nil {
			return Collection{}, err
		}
		consumed = req
	}

	// Recording first rejects a duplicate collection id before any balance
	// or capacity moves. Transfer and reserve were validated above.
	if err := company.Collections.record(col); err != nil {
		return Collection{}, err
	}
	if err := transfer(user, company, company.Charges); err != nil {
		company.Collections.unrecord(col.ID)
		return Collection{}, err
	}
	if err := truck.CheckAndReserve(in.Weight); err != nil {
		rollbackTransfer(user, company, company.Charges)
		company.Collections.unrecord(col.ID)
		return Collection{}, err
	}
	if in.RequestID != "" {
		company.Requests.remove(in.RequestID)
	}

	if commit == nil {
		return col, nil
	}

	rec := SettlementRecord{
		CompanyID:       company.ID,
		CompanyBalance:  company.balance,
		UserID:          user.ID,
		UserBalance:     user.balance,
		TruckID:         truck.ID,
		TruckCapacity:   truck.capacity,
		Collection:      col,
		ConsumedRequest: in.RequestID,
		Transfer: BalanceEvent{
			ID:           e.ids.NewID(),
			Type:         EventSettlement,
			From:         user.Owner,
			FromAccount:  UserRef(user.ID),
			To:           company.Owner,
			ToAccount:    CompanyRef(company.ID),
			Amount:       company.Charges,
			CollectionID: col.ID,
			Timestamp:    now,
		},
	}
	if err := commit(rec); err != nil {
		if in.RequestID != "" {
			company.Requests.byID[consumed.ID] = consumed
		}
		company.Collections.unrecord(col.ID)
		truck.release(in.Weight)
		rollbackTransfer(user, company, company.Charges)
		return Collection{}, fmt.Errorf("commit settlement: %w", err)
	}
	return col, nil
}

// checkSettlement evaluates every precondition without mutating anything.
func checkSettlement(caller Address, company *Company, user *User, truck *Truck, in SettleInput) error {
	if caller != company.Owner {
		return unauthorized(NotCompany, caller)
	}
	if in.UserAddress == "" || user.Owner != in.UserAddress {
		return unauthorized(NotCompanyUser, caller)
	}
	if user.balance < company.Charges {
		return fmt.Errorf("user %s balance %d below charges %d: %w",
			user.ID, user.balance, company.Charges, ErrInsufficientBalance)
	}
	if in.Weight > truck.capacity {
		return fmt.Errorf("truck %s: weight %d exceeds remaining capacity %d: %w",
			truck.ID, in.Weight, truck.capacity, ErrInsufficientCapacity)
	}
	if truck.CompanyID != company.ID {
		return unauthorized(NotCompanyTruck, caller)
	}
	if in.RequestID != "" {
		req, err := company.Requests.get(in.RequestID)
		if err != nil {
			return err
		}
		if req.Requester != user.Owner {
			return unauthorized(NotCompanyUser, caller)
		}
	}
	if company.balance > ^uint64(0)-company.Charges {
		return fmt.Errorf("company %s balance would overflow: %w", company.ID, ErrInvalidAmount)
	}
	return nil
}

// rollbackTransfer reverses a completed transfer.
func rollbackTransfer(user *User, company *Company, amount uint64) {
	company.debit(amount)
	user.credit(amount)
}
