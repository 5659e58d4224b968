package domain

import (
	"fmt"
	"sort"
)

// ─── Collection Request Registry ────────────────────────────────────────────

// RequestRegistry holds a company's pending pickup requests. It is guarded
// by the owning company's lock.
type RequestRegistry struct {
	byID map[string]CollectionRequest
}

func newRequestRegistry() *RequestRegistry {
	return &RequestRegistry{byID: make(map[string]CollectionRequest)}
}

// Len returns the number of pending requests.
func (r *RequestRegistry) Len() int { return len(r.byID) }

// Load inserts an already-persisted request while hydrating a company.
func (r *RequestRegistry) Load(req CollectionRequest) error {
	return r.add(req)
}

func (r *RequestRegistry) add(req CollectionRequest) error {
	if _, ok := r.byID[req.ID]; ok {
		return fmt.Errorf("request %s: %w", req.ID, ErrDuplicateID)
	}
	r.byID[req.ID] = req
	return nil
}

func (r *RequestRegistry) get(id string) (CollectionRequest, error) {
	req, ok := r.byID[id]
	if !ok {
		return CollectionRequest{}, fmt.Errorf("request %s: %w", id, ErrNotFound)
	}
	return req, nil
}

func (r *RequestRegistry) remove(id string) {
	delete(r.byID, id)
}

// list returns requests oldest first.
func (r *RequestRegistry) list() []CollectionRequest {
	out := make([]CollectionRequest, 0, len(r.byID))
	for _, req := range r.byID {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// RequestCommit durably persists a registry change. It runs under the
// company's lock; a non-nil error undoes the change.
type RequestCommit func(CollectionRequest) error

// SubmitRequest files a pickup request from user with the company. The
// caller must be the user the request is declared for. commit may be nil.
func (c *Company) SubmitRequest(caller Address, user *User, pickupAddress, id string, now int64, commit RequestCommit) (CollectionRequest, error) {
	if caller != user.OwnerAddress() {
		return CollectionRequest{}, unauthorized(NotRequester, caller)
	}
	req := CollectionRequest{
		ID:            id,
		Requester:     user.OwnerAddress(),
		PickupAddress: pickupAddress,
		CreatedAt:     now,
	}

	c.Lock()
	defer c.Unlock()
	if err := c.Requests.add(req); err != nil {
		return CollectionRequest{}, err
	}
	if commit != nil {
		if err := commit(req); err != nil {
			c.Requests.remove(req.ID)
			return CollectionRequest{}, fmt.Errorf("commit request: %w", err)
		}
	}
	return req, nil
}

// CancelRequest removes a pending request. Only the company owner may
// cancel. commit may be nil.
func (c *Company) CancelRequest(requestID string, requester Address, commit RequestCommit) error {
	c.Lock()
	defer c.Unlock()

	if requester != c.Owner {
		return unauthorized(NotCompany, requester)
	}
	req, err := c.Requests.get(requestID)
	if err != nil {
		return err
	}
	c.Requests.remove(requestID)
	if commit != nil {
		if err := commit(req); err != nil {
			c.Requests.byID[req.ID] = req
			return fmt.Errorf("commit cancel: %w", err)
		}
	}
	return nil
}

// Request looks up one pending request. Owner only.
func (c *Company) Request(caller Address, requestID string) (CollectionRequest, error) {
	c.Lock()
	defer c.Unlock()

	if caller != c.Owner {
		return CollectionRequest{}, unauthorized(NotCompany, caller)
	}
	return c.Requests.get(requestID)
}

// PendingRequests lists pending requests oldest first. Owner only.
func (c *Company) PendingRequests(caller Address) ([]CollectionRequest, error) {
	c.Lock()
	defer c.Unlock()

	if caller != c.Owner {
		return nil, unauthorized(NotCompany, caller)
	}
	return c.Requests.list(), nil
}
