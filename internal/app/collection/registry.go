package collection

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/collectnet/collect/internal/domain"
)

// ─── Views ──────────────────────────────────────────────────────────────────
// Entities carry locks and unexported balances, so handlers and the CLI get
// point-in-time copies instead.

// CompanyView is a snapshot of a company.
type CompanyView struct {
	ID              string         `json:"id"`
	Owner           domain.Address `json:"owner"`
	Profile         domain.Profile `json:"profile"`
	Charges         uint64         `json:"charges"`
	Balance         uint64         `json:"balance"`
	PendingRequests int            `json:"pending_requests"`
	Collections     int            `json:"collections"`
}

// UserView is a snapshot of a user.
type UserView struct {
	ID      string         `json:"id"`
	Owner   domain.Address `json:"owner"`
	Profile domain.Profile `json:"profile"`
	Balance uint64         `json:"balance"`
}

// TruckView is a snapshot of a truck.
type TruckView struct {
	ID            string           `json:"id"`
	CompanyID     string           `json:"company_id"`
	Registration  string           `json:"registration"`
	Driver        string           `json:"driver"`
	District      string           `json:"district"`
	TotalCapacity uint64           `json:"total_capacity"`
	Capacity      uint64           `json:"capacity"`
	Users         []domain.Address `json:"users"`
}

func companyView(c *domain.Company) CompanyView {
	c.Lock()
	defer c.Unlock()
	return CompanyView{
		ID:              c.ID,
		Owner:           c.Owner,
		Profile:         c.Profile,
		Charges:         c.Charges,
		Balance:         c.Balance(),
		PendingRequests: c.Requests.Len(),
		Collections:     c.Collections.Len(),
	}
}

func userView(u *domain.User) UserView {
	u.Lock()
	defer u.Unlock()
	return UserView{ID: u.ID, Owner: u.Owner, Profile: u.Profile, Balance: u.Balance()}
}

func truckView(t *domain.Truck) TruckView {
	t.Lock()
	defer t.Unlock()
	return TruckView{
		ID:            t.ID,
		CompanyID:     t.CompanyID,
		Registration:  t.Registration,
		Driver:        t.Driver,
		District:      t.District,
		TotalCapacity: t.TotalCapacity,
		Capacity:      t.Capacity(),
		Users:         t.Users(),
	}
}

// ─── Registration ───────────────────────────────────────────────────────────

// CompanyParams describes a new company. An empty ID is minted.
type CompanyParams struct {
	ID      string         `json:"id,omitempty"`
	Profile domain.Profile `json:"profile"`
	Charges uint64         `json:"charges"`
}

// UserParams describes a new user. An empty ID is minted.
type UserParams struct {
	ID      string         `json:"id,omitempty"`
	Profile domain.Profile `json:"profile"`
}

// TruckParams describes a new truck. An empty ID is minted.
type TruckParams struct {
	ID           string `json:"id,omitempty"`
	Registration string `json:"registration"`
	Driver       string `json:"driver"`
	District     string `json:"district"`
	Capacity     uint64 `json:"capacity"`
}

// ensureAbsent fails with ErrDuplicateID if get finds an existing record.
func ensureAbsent(kind, id string, cached bool, get func() error) error {
	if cached {
		return fmt.Errorf("%s %s: %w", kind, id, domain.ErrDuplicateID)
	}
	err := get()
	if err == nil {
		return fmt.Errorf("%s %s: %w", kind, id, domain.ErrDuplicateID)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return nil
}

// RegisterCompany creates a company owned by caller with a zero balance.
func (s *Service) RegisterCompany(ctx context.Context, caller domain.Address, p CompanyParams) (CompanyView, error) {
	if caller == "" {
		return CompanyView{}, &domain.UnauthorizedError{Reason: domain.NotOwner}
	}
	if p.ID == "" {
		p.ID = s.ids.NewID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, cached := s.companies[p.ID]
	err := ensureAbsent("company", p.ID, cached, func() error {
		_, err := s.store.GetCompany(ctx, p.ID)
		return err
	})
	if err != nil {
		s.logResult(ctx, "register company", err, zap.String("company", p.ID))
		return CompanyView{}, err
	}

	c := domain.NewCompany(p.ID, caller, p.Profile, p.Charges, 0)
	if err := s.store.UpsertCompany(ctx, c); err != nil {
		s.logResult(ctx, "register company", err, zap.String("company", p.ID))
		return CompanyView{}, err
	}
	s.companies[c.ID] = c
	s.logResult(ctx, "register company", nil,
		zap.String("company", c.ID), zap.String("owner", string(caller)), zap.Uint64("charges", c.Charges))
	return companyView(c), nil
}

// RegisterUser creates a user owned by caller with a zero balance.
func (s *Service) RegisterUser(ctx context.Context, caller domain.Address, p UserParams) (UserView, error) {
	if caller == "" {
		return UserView{}, &domain.UnauthorizedError{Reason: domain.NotOwner}
	}
	if p.ID == "" {
		p.ID = s.ids.NewID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, cached := s.users[p.ID]
	err := ensureAbsent("user", p.ID, cached, func() error {
		_, err := s.store.GetUser(ctx, p.ID)
		return err
	})
	if err != nil {
		s.logResult(ctx, "register user", err, zap.String("user", p.ID))
		return UserView{}, err
	}

	u := domain.NewUser(p.ID, caller, p.Profile, 0)
	if err := s.store.UpsertUser(ctx, u); err != nil {
		s.logResult(ctx, "register user", err, zap.String("user", p.ID))
		return UserView{}, err
	}
	s.users[u.ID] = u
	s.logResult(ctx, "register user", nil, zap.String("user", u.ID), zap.String("owner", string(caller)))
	return userView(u), nil
}

// RegisterTruck adds a truck to a company's fleet with full capacity. Only
// the company owner may register trucks.
func (s *Service) RegisterTruck(ctx context.Context, caller domain.Address, companyID string, p TruckParams) (TruckView, error) {
	c, err := s.company(ctx, companyID)
	if err != nil {
		return TruckView{}, err
	}
	if caller != c.OwnerAddress() {
		err := &domain.UnauthorizedError{Reason: domain.NotCompany, Caller: caller}
		s.logResult(ctx, "register truck", err, zap.String("company", companyID))
		return TruckView{}, err
	}
	if p.Capacity == 0 {
		return TruckView{}, fmt.Errorf("truck capacity of zero: %w", domain.ErrInvalidAmount)
	}
	if p.ID == "" {
		p.ID = s.ids.NewID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, cached := s.trucks[p.ID]
	err = ensureAbsent("truck", p.ID, cached, func() error {
		_, err := s.store.GetTruck(ctx, p.ID)
		return err
	})
	if err != nil {
		s.logResult(ctx, "register truck", err, zap.String("truck", p.ID))
		return TruckView{}, err
	}

	t := domain.NewTruck(p.ID, companyID, p.Registration, p.Driver, p.District, p.Capacity, p.Capacity)
	if err := s.store.UpsertTruck(ctx, t); err != nil {
		s.logResult(ctx, "register truck", err, zap.String("truck", p.ID))
		return TruckView{}, err
	}
	s.trucks[t.ID] = t
	s.logResult(ctx, "register truck", nil,
		zap.String("truck", t.ID), zap.String("company", companyID), zap.Uint64("capacity", p.Capacity))
	return truckView(t), nil
}

// AssignUser puts a user on a truck's route. Only the owner of the truck's
// company may assign.
func (s *Service) AssignUser(ctx context.Context, caller domain.Address, truckID string, user domain.Address) (TruckView, error) {
	t, err := s.truck(ctx, truckID)
	if err != nil {
		return TruckView{}, err
	}
	c, err := s.company(ctx, t.CompanyID)
	if err != nil {
		return TruckView{}, err
	}
	if caller != c.OwnerAddress() {
		err := &domain.UnauthorizedError{Reason: domain.NotCompany, Caller: caller}
		s.logResult(ctx, "assign user", err, zap.String("truck", truckID))
		return TruckView{}, err
	}
	if user == "" {
		return TruckView{}, fmt.Errorf("assign empty address: %w", domain.ErrInvalidInput)
	}

	t.Lock()
	already := t.HasUser(user)
	if !already {
		t.AssignUser(user)
		cctx, cancel := s.commitCtx(ctx)
		err = s.store.UpsertTruck(cctx, t)
		cancel()
		if err != nil {
			t.RemoveUser(user)
		}
	}
	t.Unlock()
	if err != nil {
		s.logResult(ctx, "assign user", err, zap.String("truck", truckID))
		return TruckView{}, err
	}
	s.logResult(ctx, "assign user", nil, zap.String("truck", truckID), zap.String("user", string(user)))
	return truckView(t), nil
}

// ─── Lookups ────────────────────────────────────────────────────────────────

// Company returns a snapshot of a company.
func (s *Service) Company(ctx context.Context, id string) (CompanyView, error) {
	c, err := s.company(ctx, id)
	if err != nil {
		return CompanyView{}, err
	}
	return companyView(c), nil
}

// User returns a snapshot of a user.
func (s *Service) User(ctx context.Context, id string) (UserView, error) {
	u, err := s.user(ctx, id)
	if err != nil {
		return UserView{}, err
	}
	return userView(u), nil
}

// Truck returns a snapshot of a truck.
func (s *Service) Truck(ctx context.Context, id string) (TruckView, error) {
	t, err := s.truck(ctx, id)
	if err != nil {
		return TruckView{}, err
	}
	return truckView(t), nil
}

// Trucks lists a company's fleet. Owner only.
func (s *Service) Trucks(ctx context.Context, caller domain.Address, companyID string) ([]TruckView, error) {
	c, err := s.company(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if caller != c.OwnerAddress() {
		return nil, &domain.UnauthorizedError{Reason: domain.NotCompany, Caller: caller}
	}
	ids, err := s.store.ListTruckIDs(ctx, companyID)
	if err != nil {
		return nil, err
	}
	out := make([]TruckView, 0, len(ids))
	for _, id := range ids {
		t, err := s.truck(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, truckView(t))
	}
	return out, nil
}
