package collection

import (
	"context"

	"go.uber.org/zap"

	"github.com/collectnet/collect/internal/domain"
	"github.com/collectnet/collect/internal/infra/observability"
)

// ─── Collection Requests ────────────────────────────────────────────────────

// SubmitRequest files a pickup request for userID with the company. The
// caller must own the user record.
func (s *Service) SubmitRequest(ctx context.Context, caller domain.Address, companyID, userID, pickupAddress string) (domain.CollectionRequest, error) {
	req, err := s.submitRequest(ctx, caller, companyID, userID, pickupAddress)
	observability.RequestOps.WithLabelValues("submit", observability.Result(err)).Inc()
	s.logResult(ctx, "submit request", err,
		zap.String("company", companyID), zap.String("user", userID), zap.String("request", req.ID))
	return req, err
}

func (s *Service) submitRequest(ctx context.Context, caller domain.Address, companyID, userID, pickupAddress string) (domain.CollectionRequest, error) {
	c, err := s.company(ctx, companyID)
	if err != nil {
		return domain.CollectionRequest{}, err
	}
	u, err := s.user(ctx, userID)
	if err != nil {
		return domain.CollectionRequest{}, err
	}
	commit := func(r domain.CollectionRequest) error {
		cctx, cancel := s.commitCtx(ctx)
		defer cancel()
		return s.store.InsertRequest(cctx, companyID, r)
	}
	return c.SubmitRequest(caller, u, pickupAddress, s.ids.NewID(), s.clock.Now(), commit)
}

// CancelRequest removes a pending request. Company owner only.
func (s *Service) CancelRequest(ctx context.Context, caller domain.Address, companyID, requestID string) error {
	err := s.cancelRequest(ctx, caller, companyID, requestID)
	observability.RequestOps.WithLabelValues("cancel", observability.Result(err)).Inc()
	s.logResult(ctx, "cancel request", err, zap.String("company", companyID), zap.String("request", requestID))
	return err
}

func (s *Service) cancelRequest(ctx context.Context, caller domain.Address, companyID, requestID string) error {
	c, err := s.company(ctx, companyID)
	if err != nil {
		return err
	}
	commit := func(r domain.CollectionRequest) error {
		cctx, cancel := s.commitCtx(ctx)
		defer cancel()
		return s.store.DeleteRequest(cctx, companyID, r.ID)
	}
	return c.CancelRequest(requestID, caller, commit)
}

// ListRequests returns the company's pending requests, oldest first.
// Company owner only.
func (s *Service) ListRequests(ctx context.Context, caller domain.Address, companyID string) ([]domain.CollectionRequest, error) {
	c, err := s.company(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return c.PendingRequests(caller)
}
