package domain

import "fmt"

// ─── Truck Capacity Tracker ─────────────────────────────────────────────────

// CheckAndReserve consumes weight from the truck's remaining capacity.
// Depletion is one-way: nothing in the core restores capacity except the
// rollback of a settlement that failed to commit. Callers must hold the
// truck's lock.
func (t *Truck) CheckAndReserve(weight uint64) error {
	if weight > t.capacity {
		return fmt.Errorf("truck %s: weight %d exceeds remaining capacity %d: %w",
			t.ID, weight, t.capacity, ErrInsufficientCapacity)
	}
	t.capacity -= weight
	return nil
}

// release undoes a reservation made by CheckAndReserve.
func (t *Truck) release(weight uint64) {
	t.capacity += weight
	if t.capacity > t.TotalCapacity {
		panic(fmt.Sprintf("truck %s: capacity %d above total %d", t.ID, t.capacity, t.TotalCapacity))
	}
}
