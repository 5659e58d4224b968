package collection

import (
	"context"

	"go.uber.org/zap"

	"github.com/collectnet/collect/internal/domain"
	"github.com/collectnet/collect/internal/infra/observability"
)

// ─── Balance Ledger ─────────────────────────────────────────────────────────

// balanceCommit persists the account together with the event describing
// the movement, inside a child span of the operation.
func (s *Service) balanceCommit(ctx context.Context, op string, ev domain.BalanceEvent) domain.AccountCommit {
	return func(acct domain.Account) (err error) {
		cctx, span := s.tracer.StartSpan(ctx, op+".commit", map[string]string{"event": ev.ID})
		defer func() { s.tracer.EndSpan(span, err) }()

		cctx, cancel := s.commitCtx(cctx)
		defer cancel()
		return s.store.CommitBalanceChange(cctx, acct, ev)
	}
}

// Deposit credits amount to the account of the given kind. Anyone may fund
// an account.
func (s *Service) Deposit(ctx context.Context, kind AccountKind, id string, amount uint64) (bal uint64, err error) {
	ctx, span := s.tracer.StartSpan(ctx, "deposit", map[string]string{"kind": string(kind), "account": id})
	defer func() { s.tracer.EndSpan(span, err) }()

	acct, err := s.account(ctx, kind, id)
	if err != nil {
		observability.BalanceOps.WithLabelValues("deposit", observability.Result(err)).Inc()
		return 0, err
	}
	ev := domain.BalanceEvent{
		ID:        s.ids.NewID(),
		Type:      domain.EventDeposit,
		To:        acct.OwnerAddress(),
		ToAccount: domain.RefOf(acct),
		Amount:    amount,
		Timestamp: s.clock.Now(),
	}
	err = domain.DepositAndCommit(acct, amount, s.balanceCommit(ctx, "deposit", ev))

	observability.BalanceOps.WithLabelValues("deposit", observability.Result(err)).Inc()
	s.logResult(ctx, "deposit", err, zap.String("kind", string(kind)), zap.String("account", id), zap.Uint64("amount", amount))
	if err != nil {
		return 0, err
	}
	observability.BalanceVolume.WithLabelValues("deposit").Add(float64(amount))
	return balanceOf(acct), nil
}

// Withdraw debits amount from the account on behalf of caller, who must own
// it. It returns the amount released to the caller's external wallet.
func (s *Service) Withdraw(ctx context.Context, caller domain.Address, kind AccountKind, id string, amount uint64) (released uint64, err error) {
	ctx, span := s.tracer.StartSpan(ctx, "withdraw", map[string]string{"kind": string(kind), "account": id})
	defer func() { s.tracer.EndSpan(span, err) }()

	acct, err := s.account(ctx, kind, id)
	if err != nil {
		observability.BalanceOps.WithLabelValues("withdraw", observability.Result(err)).Inc()
		return 0, err
	}
	ev := domain.BalanceEvent{
		ID:          s.ids.NewID(),
		Type:        domain.EventWithdraw,
		From:        acct.OwnerAddress(),
		FromAccount: domain.RefOf(acct),
		Amount:      amount,
		Timestamp:   s.clock.Now(),
	}
	released, err = domain.WithdrawAndCommit(acct, amount, caller, s.balanceCommit(ctx, "withdraw", ev))

	observability.BalanceOps.WithLabelValues("withdraw", observability.Result(err)).Inc()
	s.logResult(ctx, "withdraw", err,
		zap.String("kind", string(kind)), zap.String("account", id),
		zap.String("caller", string(caller)), zap.Uint64("amount", amount))
	if err != nil {
		return 0, err
	}
	observability.BalanceVolume.WithLabelValues("withdraw").Add(float64(released))
	return released, nil
}

// BalanceEvents lists the most recent movements on an account. Only the
// account owner may read them. limit <= 0 uses the configured default.
func (s *Service) BalanceEvents(ctx context.Context, caller domain.Address, kind AccountKind, id string, limit int) ([]domain.BalanceEvent, error) {
	acct, err := s.account(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if caller != acct.OwnerAddress() {
		return nil, &domain.UnauthorizedError{Reason: domain.NotOwner, Caller: caller}
	}
	if limit <= 0 {
		limit = s.config.EventsLimit
	}
	return s.store.BalanceEvents(ctx, domain.RefOf(acct), limit)
}

func balanceOf(acct domain.Account) uint64 {
	acct.Lock()
	defer acct.Unlock()
	return acct.Balance()
}
