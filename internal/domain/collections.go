package domain

import "fmt"

// ─── Collection Ledger ──────────────────────────────────────────────────────

// CollectionLedger is a company's append-only audit trail of completed
// collections. There is no update or delete. It is guarded by the owning
// company's lock.
type CollectionLedger struct {
	byID  map[string]Collection
	order []string
}

func newCollectionLedger() *CollectionLedger {
	return &CollectionLedger{byID: make(map[string]Collection)}
}

// Len returns the number of recorded collections.
func (l *CollectionLedger) Len() int { return len(l.order) }

// Load inserts an already-persisted collection while hydrating a company.
func (l *CollectionLedger) Load(c Collection) error {
	return l.record(c)
}

func (l *CollectionLedger) record(c Collection) error {
	if _, ok := l.byID[c.ID]; ok {
		return fmt.Errorf("collection %s: %w", c.ID, ErrDuplicateID)
	}
	l.byID[c.ID] = c
	l.order = append(l.order, c.ID)
	return nil
}

// unrecord drops the most recent record. Only used to roll back a
// settlement whose commit failed.
func (l *CollectionLedger) unrecord(id string) {
	n := len(l.order)
	if n == 0 || l.order[n-1] != id {
		panic(fmt.Sprintf("collection ledger: rollback of %s is not the latest record", id))
	}
	l.order = l.order[:n-1]
	delete(l.byID, id)
}

// Collection returns one recorded collection. Owner only.
func (c *Company) Collection(caller Address, id string) (Collection, error) {
	c.Lock()
	defer c.Unlock()

	if caller != c.Owner {
		return Collection{}, unauthorized(NotCompany, caller)
	}
	col, ok := c.Collections.byID[id]
	if !ok {
		return Collection{}, fmt.Errorf("collection %s: %w", id, ErrNotFound)
	}
	return col, nil
}

// CollectionHistory lists recorded collections in insertion order. Owner only.
func (c *Company) CollectionHistory(caller Address) ([]Collection, error) {
	c.Lock()
	defer c.Unlock()

	if caller != c.Owner {
		return nil, unauthorized(NotCompany, caller)
	}
	out := make([]Collection, 0, len(c.Collections.order))
	for _, id := range c.Collections.order {
		out = append(out, c.Collections.byID[id])
	}
	return out, nil
}
