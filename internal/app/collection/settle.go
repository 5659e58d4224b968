package collection

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/collectnet/collect/internal/domain"
	"github.com/collectnet/collect/internal/infra/observability"
)

// ─── Settlement ─────────────────────────────────────────────────────────────

// SettleParams identifies the parties of one settlement.
type SettleParams struct {
	UserID  string `json:"user_id"`
	TruckID string `json:"truck_id"`
	// UserAddress is the identity being serviced. When empty and RequestID
	// is set, the request's requester is used.
	UserAddress domain.Address `json:"user_address,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	// Date defaults to the settlement day in UTC (YYYY-MM-DD).
	Date string `json:"date,omitempty"`
	// District defaults to the truck's district.
	District string `json:"district,omitempty"`
	Weight   uint64 `json:"weight"`
}

// Settle records a completed pickup, charges the user and depletes the
// truck. The whole settlement is written in one store transaction; if that
// fails the in-memory state is rolled back and the error returned.
func (s *Service) Settle(ctx context.Context, caller domain.Address, companyID string, p SettleParams) (domain.Collection, error) {
	ctx, span := s.tracer.StartSpan(ctx, "settle", map[string]string{
		"company": companyID, "user": p.UserID, "truck": p.TruckID,
	})
	var rolledBack bool
	col, err := s.settle(ctx, caller, companyID, p, &rolledBack)
	if rolledBack {
		span.SetAttr("rolled_back", "true")
	}
	s.tracer.EndSpan(span, err)

	observability.Settlements.WithLabelValues(observability.Result(err)).Inc()
	if rolledBack {
		observability.CommitRollbacks.Inc()
	}
	s.mu.Lock()
	if err == nil {
		s.settled++
	} else {
		s.rejected++
	}
	s.mu.Unlock()

	if err != nil {
		s.logResult(ctx, "settle", err,
			zap.String("company", companyID), zap.String("user", p.UserID),
			zap.String("truck", p.TruckID), zap.Uint64("weight", p.Weight))
		return domain.Collection{}, err
	}
	observability.SettledWeight.Observe(float64(col.Weight))
	observability.ChargesTransferred.Add(float64(col.Charges))
	s.logResult(ctx, "settle", nil,
		zap.String("company", companyID), zap.String("collection", col.ID),
		zap.String("user", p.UserID), zap.String("truck", p.TruckID),
		zap.Uint64("weight", col.Weight), zap.Uint64("charges", col.Charges))
	return col, nil
}

func (s *Service) settle(ctx context.Context, caller domain.Address, companyID string, p SettleParams, rolledBack *bool) (domain.Collection, error) {
	c, u, t, err := s.resolve(ctx, companyID, p)
	if err != nil {
		return domain.Collection{}, err
	}

	in := domain.SettleInput{
		UserAddress: p.UserAddress,
		RequestID:   p.RequestID,
		Date:        p.Date,
		District:    p.District,
		Weight:      p.Weight,
	}
	if in.UserAddress == "" && in.RequestID != "" {
		// A failed lookup leaves the address empty, and the engine then
		// reports the first violated precondition in its usual order.
		if req, err := c.Request(caller, in.RequestID); err == nil {
			in.UserAddress = req.Requester
		}
	}
	if in.Date == "" {
		in.Date = time.UnixMilli(s.clock.Now()).UTC().Format(time.DateOnly)
	}
	if in.District == "" {
		in.District = t.District
	}

	commit := func(rec domain.SettlementRecord) (err error) {
		cctx, span := s.tracer.StartSpan(ctx, "settle.commit", map[string]string{"collection": rec.Collection.ID})
		defer func() { s.tracer.EndSpan(span, err) }()

		cctx, cancel := s.commitCtx(cctx)
		defer cancel()
		if err := s.store.CommitSettlement(cctx, rec); err != nil {
			*rolledBack = true
			return err
		}
		return nil
	}
	return s.engine.Settle(caller, c, u, t, in, commit)
}

// resolve loads the three parties of a settlement from the cache or store.
func (s *Service) resolve(ctx context.Context, companyID string, p SettleParams) (c *domain.Company, u *domain.User, t *domain.Truck, err error) {
	ctx, span := s.tracer.StartSpan(ctx, "settle.resolve", nil)
	defer func() { s.tracer.EndSpan(span, err) }()

	if c, err = s.company(ctx, companyID); err != nil {
		return nil, nil, nil, err
	}
	if u, err = s.user(ctx, p.UserID); err != nil {
		return nil, nil, nil, err
	}
	if t, err = s.truck(ctx, p.TruckID); err != nil {
		return nil, nil, nil, err
	}
	return c, u, t, nil
}

// ListCollections returns the company's collection history in insertion
// order. Company owner only.
func (s *Service) ListCollections(ctx context.Context, caller domain.Address, companyID string) ([]domain.Collection, error) {
	c, err := s.company(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return c.CollectionHistory(caller)
}

// GetCollection returns one collection record. Company owner only.
func (s *Service) GetCollection(ctx context.Context, caller domain.Address, companyID, collectionID string) (domain.Collection, error) {
	c, err := s.company(ctx, companyID)
	if err != nil {
		return domain.Collection{}, err
	}
	return c.Collection(caller, collectionID)
}
