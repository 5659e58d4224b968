// Package domain contains the collection-accounting core: accounts, trucks,
// pickup requests, the collection ledger and the settlement engine.
// It has ZERO infrastructure imports; persistence, clocks and id minting
// are supplied through the interfaces in interfaces.go.
package domain

import (
	"sort"
	"sync"
)

// Address is an owner identity as supplied by the identity provider.
type Address string

// ─── Accounts ───────────────────────────────────────────────────────────────

// Account is the shared shape of users and companies: an owner and a
// non-negative balance. Balances only move through the Balance Ledger
// (Deposit, Withdraw and the settlement transfer).
type Account interface {
	sync.Locker
	OwnerAddress() Address
	Balance() uint64

	credit(amount uint64)
	debit(amount uint64)
}

// Profile holds the descriptive fields of an account.
type Profile struct {
	Name        string `json:"name"`
	Contact     string `json:"contact,omitempty"`
	HomeAddress string `json:"home_address,omitempty"`
	District    string `json:"district,omitempty"`
}

// User is a household or business that requests pickups and pays for them.
type User struct {
	mu      sync.Mutex
	ID      string
	Owner   Address
	Profile Profile
	balance uint64
}

// NewUser builds a user record with an opening balance.
func NewUser(id string, owner Address, profile Profile, balance uint64) *User {
	return &User{ID: id, Owner: owner, Profile: profile, balance: balance}
}

func (u *User) OwnerAddress() Address { return u.Owner }
func (u *User) Balance() uint64       { return u.balance }
func (u *User) credit(amount uint64)  { u.balance += amount }
func (u *User) debit(amount uint64)   { u.balance -= amount }

// Lock acquires the user's exclusive-access lock.
func (u *User) Lock() { u.mu.Lock() }

// Unlock releases the user's lock.
func (u *User) Unlock() { u.mu.Unlock() }

// Company runs a fleet, charges a flat fee per collection, and owns its
// request registry and collection ledger.
type Company struct {
	mu          sync.Mutex
	ID          string
	Owner       Address
	Profile     Profile
	Charges     uint64
	balance     uint64
	Requests    *RequestRegistry
	Collections *CollectionLedger
}

// NewCompany builds a company with an empty registry and ledger.
func NewCompany(id string, owner Address, profile Profile, charges, balance uint64) *Company {
	return &Company{
		ID:          id,
		Owner:       owner,
		Profile:     profile,
		Charges:     charges,
		balance:     balance,
		Requests:    newRequestRegistry(),
		Collections: newCollectionLedger(),
	}
}

func (c *Company) OwnerAddress() Address { return c.Owner }
func (c *Company) Balance() uint64       { return c.balance }
func (c *Company) credit(amount uint64)  { c.balance += amount }
func (c *Company) debit(amount uint64)   { c.balance -= amount }

// Lock acquires the company's exclusive-access lock. It also guards the
// company's request registry and collection ledger.
func (c *Company) Lock() { c.mu.Lock() }

// Unlock releases the company's lock.
func (c *Company) Unlock() { c.mu.Unlock() }

// ─── Trucks ─────────────────────────────────────────────────────────────────

// Truck is a collection vehicle with one-way depleting capacity.
type Truck struct {
	mu            sync.Mutex
	ID            string
	CompanyID     string
	Registration  string
	Driver        string
	District      string
	TotalCapacity uint64
	capacity      uint64
	users         map[Address]struct{}
}

// NewTruck builds a truck. Remaining capacity is clamped to total capacity.
func NewTruck(id, companyID, registration, driver, district string, total, remaining uint64) *Truck {
	if remaining > total {
		remaining = total
	}
	return &Truck{
		ID:            id,
		CompanyID:     companyID,
		Registration:  registration,
		Driver:        driver,
		District:      district,
		TotalCapacity: total,
		capacity:      remaining,
		users:         make(map[Address]struct{}),
	}
}

// Capacity returns the remaining capacity.
func (t *Truck) Capacity() uint64 { return t.capacity }

// AssignUser adds a user address to the truck's route.
func (t *Truck) AssignUser(addr Address) {
	t.users[addr] = struct{}{}
}

// RemoveUser drops addr from the truck's route.
func (t *Truck) RemoveUser(addr Address) {
	delete(t.users, addr)
}

// HasUser reports whether addr is assigned to this truck.
func (t *Truck) HasUser(addr Address) bool {
	_, ok := t.users[addr]
	return ok
}

// Users returns the assigned addresses in sorted order.
func (t *Truck) Users() []Address {
	out := make([]Address, 0, len(t.users))
	for a := range t.users {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Lock acquires the truck's exclusive-access lock.
func (t *Truck) Lock() { t.mu.Lock() }

// Unlock releases the truck's lock.
func (t *Truck) Unlock() { t.mu.Unlock() }

// ─── Requests & Collections ─────────────────────────────────────────────────

// CollectionRequest is a pending pickup intent. It ends either consumed by
// a settlement or cancelled by the company.
type CollectionRequest struct {
	ID            string  `json:"id"`
	Requester     Address `json:"requester"`
	PickupAddress string  `json:"pickup_address"`
	CreatedAt     int64   `json:"created_at"`
}

// Collection is an immutable record of a completed, paid pickup.
type Collection struct {
	ID            string  `json:"id"`
	CompanyID     string  `json:"company_id"`
	Requester     Address `json:"requester"`
	RequesterName string  `json:"requester_name"`
	TruckID       string  `json:"truck_id"`
	Date          string  `json:"date"`
	Timestamp     int64   `json:"timestamp"`
	District      string  `json:"district"`
	Weight        uint64  `json:"weight"`
	Charges       uint64  `json:"charges"`
}
