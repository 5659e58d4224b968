package collection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/collectnet/collect/internal/domain"
	"github.com/collectnet/collect/internal/infra/observability"
	"github.com/collectnet/collect/internal/infra/sqlite"
)

const (
	companyOwner domain.Address = "0xco"
	userOwner    domain.Address = "0xuser"
	stranger     domain.Address = "0xstranger"

	// 2023-11-14T22:13:20Z
	fixedNow int64 = 1_700_000_000_000
)

var errDisk = errors.New("disk full")

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("id-%d", s.n)
}

// failingStore injects commit failures on top of a real database.
type failingStore struct {
	*sqlite.DB
	failSettle bool
	failTruck  bool
	failEvents bool
}

func (f *failingStore) CommitSettlement(ctx context.Context, rec domain.SettlementRecord) error {
	if f.failSettle {
		return errDisk
	}
	return f.DB.CommitSettlement(ctx, rec)
}

func (f *failingStore) UpsertTruck(ctx context.Context, t *domain.Truck) error {
	if f.failTruck {
		return errDisk
	}
	return f.DB.UpsertTruck(ctx, t)
}

func (f *failingStore) CommitBalanceChange(ctx context.Context, acct domain.Account, e domain.BalanceEvent) error {
	if f.failEvents {
		return errDisk
	}
	return f.DB.CommitBalanceChange(ctx, acct, e)
}

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestService(t *testing.T, store Store, opts ...Option) *Service {
	t.Helper()
	base := []Option{
		WithClock(domain.ClockFunc(func() int64 { return fixedNow })),
		WithIDs(&seqIDs{}),
		WithLogger(zaptest.NewLogger(t)),
	}
	return New(DefaultConfig(), store, append(base, opts...)...)
}

// setup registers the reference parties: a company charging 100, a user
// holding 150 and a truck with capacity 50 that serves the user.
func setup(t *testing.T, s *Service) {
	t.Helper()
	ctx := context.Background()
	_, err := s.RegisterCompany(ctx, companyOwner, CompanyParams{ID: "co-1", Profile: domain.Profile{Name: "GreenBins"}, Charges: 100})
	require.NoError(t, err)
	_, err = s.RegisterUser(ctx, userOwner, UserParams{ID: "u-1", Profile: domain.Profile{Name: "Ada", District: "north"}})
	require.NoError(t, err)
	_, err = s.Deposit(ctx, KindUser, "u-1", 150)
	require.NoError(t, err)
	_, err = s.RegisterTruck(ctx, companyOwner, "co-1", TruckParams{ID: "t-1", Registration: "KA-01", Driver: "Bob", District: "north", Capacity: 50})
	require.NoError(t, err)
	_, err = s.AssignUser(ctx, companyOwner, "t-1", userOwner)
	require.NoError(t, err)
}

// ─── Config ─────────────────────────────────────────────────────────────────

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5*time.Second, cfg.CommitTimeout)
	assert.Equal(t, 100, cfg.EventsLimit)
}

func TestUUIDSource(t *testing.T) {
	a, b := UUIDSource{}.NewID(), UUIDSource{}.NewID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

// ─── Registration ───────────────────────────────────────────────────────────

func TestRegister(t *testing.T) {
	s := newTestService(t, newTestDB(t))
	setup(t, s)
	ctx := context.Background()

	c, err := s.Company(ctx, "co-1")
	require.NoError(t, err)
	assert.Equal(t, companyOwner, c.Owner)
	assert.Equal(t, uint64(100), c.Charges)
	assert.Equal(t, uint64(0), c.Balance)

	tr, err := s.Truck(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(50), tr.Capacity)
	assert.Equal(t, []domain.Address{userOwner}, tr.Users)
}

func TestRegister_Duplicate(t *testing.T) {
	s := newTestService(t, newTestDB(t))
	setup(t, s)
	ctx := context.Background()

	_, err := s.RegisterCompany(ctx, companyOwner, CompanyParams{ID: "co-1"})
	assert.ErrorIs(t, err, domain.ErrDuplicateID)
	_, err = s.RegisterUser(ctx, stranger, UserParams{ID: "u-1"})
	assert.ErrorIs(t, err, domain.ErrDuplicateID)
	_, err = s.RegisterTruck(ctx, companyOwner, "co-1", TruckParams{ID: "t-1", Capacity: 5})
	assert.ErrorIs(t, err, domain.ErrDuplicateID)
}

func TestRegister_MintsID(t *testing.T) {
	s := newTestService(t, newTestDB(t))
	u, err := s.RegisterUser(context.Background(), userOwner, UserParams{})
	require.NoError(t, err)
	assert.Equal(t, "id-1", u.ID)
}

func TestRegister_EmptyCaller(t *testing.T) {
	s := newTestService(t, newTestDB(t))
	_, err := s.RegisterCompany(context.Background(), "", CompanyParams{ID: "co-1"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRegisterTruck_NotOwner(t *testing.T) {
	s := newTestService(t, newTestDB(t))
	setup(t, s)

	_, err := s.RegisterTruck(context.Background(), stranger, "co-1", TruckParams{ID: "t-2", Capacity: 10})
	reason, ok := domain.ReasonOf(err)
	require.True(t, ok, "err = %v", err)
	assert.Equal(t, domain.NotCompany, reason)
}

func TestRegisterTruck_ZeroCapacity(t *testing.T) {
	s := newTestService(t, newTestDB(t))
	setup(t, s)
	_, err := s.RegisterTruck(context.Background(), companyOwner, "co-1", TruckParams{ID: "t-2"})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestAssignUser_RollbackOnFailure(t *testing.T) {
	store := &failingStore{DB: newTestDB(t)}
	s := newTestService(t, store)
	setup(t, s)

	store.failTruck = true
	_, err := s.AssignUser(context.Background(), companyOwner, "t-1", "0xother")
	require.ErrorIs(t, err, errDisk)

	tr, err := s.Truck(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Address{userOwner}, tr.Users)
}

func TestTrucks(t *testing.T) {
	s := newTestService(t, newTestDB(t))
	setup(t, s)
	ctx := context.Background()
	_, err := s.RegisterTruck(ctx, companyOwner, "co-1", TruckParams{ID: "t-2", Capacity: 10})
	require.NoError(t, err)

	fleet, err := s.Trucks(ctx, companyOwner, "co-1")
	require.NoError(t, err)
	require.Len(t, fleet, 2)
	assert.Equal(t, "t-1", fleet[0].ID)

	_, err = s.Trucks(ctx, stranger, "co-1")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

// ─── Balances ───────────────────────────────────────────────────────────────

func TestDepositWithdraw(t *testing.T) {
	s := newTestService(t, newTestDB(t))
	setup(t, s)
	ctx := context.Background()

	bal, err := s.Deposit(ctx, KindUser, "u-1", 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), bal)

	released, err := s.Withdraw(ctx, userOwner, KindUser, "u-1", 80)
	require.NoError(t, err)
	assert.Equal(t, uint64(80), released)

	_, err = s.Withdraw(ctx, stranger, KindUser, "u-1", 1)
	reason, _ := domain.ReasonOf(err)
	assert.Equal(t, domain.NotOwner, reason)

	_, err = s.Withdraw(ctx, userOwner, KindUser, "u-1", 1_000)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	u, err := s.User(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(120), u.Balance)

	events, err := s.BalanceEvents(ctx, userOwner, KindUser, "u-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventWithdraw, events[0].Type)

	_, err = s.BalanceEvents(ctx, stranger, KindUser, "u-1", 0)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestDeposit_UnknownKind(t *testing.T) {
	s := newTestService(t, newTestDB(t))
	_, err := s.Deposit(context.Background(), "truck", "t-1", 5)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDeposit_BeyondStorableRange(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := newTestService(t, newTestDB(t), WithLogger(zap.New(core)))
	setup(t, s)
	ctx := observability.WithTraceID(context.Background(), "req-42")

	_, err := s.Deposit(ctx, KindUser, "u-1", math.MaxInt64)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Equal(t, observability.ResultInvalid, observability.Result(err))

	u, err := s.User(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(150), u.Balance)

	rejected := logs.FilterMessage("deposit rejected").All()
	require.Len(t, rejected, 1)
	assert.Equal(t, zapcore.WarnLevel, rejected[0].Level)
	assert.Equal(t, "req-42", rejected[0].ContextMap()["trace_id"])
	assert.Zero(t, logs.FilterMessage("deposit failed").Len())
}

func TestRegisterCompany_ChargesBeyondStorableRange(t *testing.T) {
	s := newTestService(t, newTestDB(t))
	_, err := s.RegisterCompany(context.Background(), companyOwner, CompanyParams{ID: "co-1", Charges: math.MaxUint64})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = s.Company(context.Background(), "co-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBalanceEvents_SharedOwner(t *testing.T) {
	s := newTestService(t, newTestDB(t))
	ctx := context.Background()
	const same domain.Address = "0xsame"

	_, err := s.RegisterCompany(ctx, same, CompanyParams{ID: "c", Charges: 1})
	require.NoError(t, err)
	_, err = s.RegisterUser(ctx, same, UserParams{ID: "u"})
	require.NoError(t, err)
	_, err = s.Deposit(ctx, KindCompany, "c", 5)
	require.NoError(t, err)
	_, err = s.Deposit(ctx, KindUser, "u", 7)
	require.NoError(t, err)

	events, err := s.BalanceEvents(ctx, same, KindUser, "u", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(7), events[0].Amount)
	assert.Equal(t, domain.UserRef("u"), events[0].ToAccount)

	events, err = s.BalanceEvents(ctx, same, KindCompany, "c", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(5), events[0].Amount)
}

func TestDeposit_RollbackOnFailure(t *testing.T) {
	store := &failingStore{DB: newTestDB(t)}
	s := newTestService(t, store)
	setup(t, s)

	store.failEvents = true
	_, err := s.Deposit(context.Background(), KindCompany, "co-1", 10)
	require.ErrorIs(t, err, errDisk)

	c, err := s.Company(context.Background(), "co-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), c.Balance)
}

// ─── Requests ───────────────────────────────────────────────────────────────

func TestRequests(t *testing.T) {
	db := newTestDB(t)
	s := newTestService(t, db)
	setup(t, s)
	ctx := context.Background()

	r1, err := s.SubmitRequest(ctx, userOwner, "co-1", "u-1", "1 Elm St")
	require.NoError(t, err)
	_, err = s.SubmitRequest(ctx, userOwner, "co-1", "u-1", "1 Elm St")
	require.NoError(t, err)

	_, err = s.SubmitRequest(ctx, stranger, "co-1", "u-1", "1 Elm St")
	reason, _ := domain.ReasonOf(err)
	assert.Equal(t, domain.NotRequester, reason)

	require.ErrorIs(t, s.CancelRequest(ctx, stranger, "co-1", r1.ID), domain.ErrUnauthorized)
	require.NoError(t, s.CancelRequest(ctx, companyOwner, "co-1", r1.ID))
	require.ErrorIs(t, s.CancelRequest(ctx, companyOwner, "co-1", r1.ID), domain.ErrNotFound)

	pending, err := s.ListRequests(ctx, companyOwner, "co-1")
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	// A fresh service hydrates the same registry from the store.
	fresh := newTestService(t, db)
	pending, err = fresh.ListRequests(ctx, companyOwner, "co-1")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

// ─── Settlement ─────────────────────────────────────────────────────────────

func TestSettle_Reference(t *testing.T) {
	db := newTestDB(t)
	s := newTestService(t, db)
	setup(t, s)
	ctx := context.Background()

	col, err := s.Settle(ctx, companyOwner, "co-1", SettleParams{UserID: "u-1", TruckID: "t-1", UserAddress: userOwner, Weight: 30})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), col.Charges)
	assert.Equal(t, "2023-11-14", col.Date)
	assert.Equal(t, "north", col.District)
	assert.Equal(t, "Ada", col.RequesterName)
	assert.Equal(t, fixedNow, col.Timestamp)

	// Reload everything through a fresh service to check what was persisted.
	fresh := newTestService(t, db)
	u, err := fresh.User(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(50), u.Balance)
	c, err := fresh.Company(ctx, "co-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), c.Balance)
	tr, err := fresh.Truck(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(20), tr.Capacity)

	got, err := fresh.GetCollection(ctx, companyOwner, "co-1", col.ID)
	require.NoError(t, err)
	assert.Equal(t, col, got)

	assert.Equal(t, int64(1), s.Stats().Settled)
}

func TestSettle_ResolvesUserFromRequest(t *testing.T) {
	s := newTestService(t, newTestDB(t))
	setup(t, s)
	ctx := context.Background()

	req, err := s.SubmitRequest(ctx, userOwner, "co-1", "u-1", "1 Elm St")
	require.NoError(t, err)

	col, err := s.Settle(ctx, companyOwner, "co-1", SettleParams{UserID: "u-1", TruckID: "t-1", RequestID: req.ID, Weight: 10})
	require.NoError(t, err)
	assert.Equal(t, userOwner, col.Requester)

	pending, err := s.ListRequests(ctx, companyOwner, "co-1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSettle_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		caller domain.Address
		p      SettleParams
		want   error
	}{
		{"not company", stranger, SettleParams{UserID: "u-1", TruckID: "t-1", UserAddress: userOwner, Weight: 1}, domain.ErrUnauthorized},
		{"wrong user address", companyOwner, SettleParams{UserID: "u-1", TruckID: "t-1", UserAddress: stranger, Weight: 1}, domain.ErrUnauthorized},
		{"over capacity", companyOwner, SettleParams{UserID: "u-1", TruckID: "t-1", UserAddress: userOwner, Weight: 51}, domain.ErrInsufficientCapacity},
		{"unknown truck", companyOwner, SettleParams{UserID: "u-1", TruckID: "t-9", UserAddress: userOwner, Weight: 1}, domain.ErrNotFound},
		{"unknown request", companyOwner, SettleParams{UserID: "u-1", TruckID: "t-1", RequestID: "r-9", Weight: 1}, domain.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(t, newTestDB(t))
			setup(t, s)
			_, err := s.Settle(context.Background(), tt.caller, "co-1", tt.p)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, int64(1), s.Stats().Rejected)
		})
	}
}

func TestSettle_RollbackOnCommitFailure(t *testing.T) {
	store := &failingStore{DB: newTestDB(t)}
	s := newTestService(t, store)
	setup(t, s)
	ctx := context.Background()

	store.failSettle = true
	_, err := s.Settle(ctx, companyOwner, "co-1", SettleParams{UserID: "u-1", TruckID: "t-1", UserAddress: userOwner, Weight: 30})
	require.ErrorIs(t, err, errDisk)

	u, _ := s.User(ctx, "u-1")
	c, _ := s.Company(ctx, "co-1")
	tr, _ := s.Truck(ctx, "t-1")
	assert.Equal(t, uint64(150), u.Balance)
	assert.Equal(t, uint64(0), c.Balance)
	assert.Equal(t, uint64(50), tr.Capacity)
	assert.Equal(t, 0, c.Collections)

	// The store recovers; the same settlement now goes through.
	store.failSettle = false
	_, err = s.Settle(ctx, companyOwner, "co-1", SettleParams{UserID: "u-1", TruckID: "t-1", UserAddress: userOwner, Weight: 30})
	require.NoError(t, err)
}

func TestSettle_Spans(t *testing.T) {
	store := &failingStore{DB: newTestDB(t)}
	tracer := observability.NewTracer(observability.DefaultTracerConfig())
	s := newTestService(t, store, WithTracer(tracer))
	setup(t, s)
	tracer.Reset()

	store.failSettle = true
	ctx := observability.WithTraceID(context.Background(), "req-1")
	_, err := s.Settle(ctx, companyOwner, "co-1", SettleParams{UserID: "u-1", TruckID: "t-1", UserAddress: userOwner, Weight: 30})
	require.ErrorIs(t, err, errDisk)

	spans := s.Traces(0)
	byOp := make(map[string]observability.Span)
	for _, sp := range spans {
		assert.Equal(t, "req-1", sp.TraceID)
		byOp[sp.Operation] = sp
	}
	require.Len(t, byOp, 3)
	root := byOp["settle"]
	assert.Equal(t, observability.SpanError, root.Status)
	assert.Equal(t, "true", root.Attrs["rolled_back"])
	assert.Equal(t, root.SpanID, byOp["settle.resolve"].ParentID)
	assert.Equal(t, observability.SpanOK, byOp["settle.resolve"].Status)
	assert.Equal(t, root.SpanID, byOp["settle.commit"].ParentID)
	assert.Equal(t, "disk full", byOp["settle.commit"].Attrs["error"])
}

func TestSettle_ConcurrentNoOversell(t *testing.T) {
	s := newTestService(t, newTestDB(t))
	setup(t, s)
	ctx := context.Background()
	_, err := s.Deposit(ctx, KindUser, "u-1", 10_000)
	require.NoError(t, err)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Settle(ctx, companyOwner, "co-1", SettleParams{UserID: "u-1", TruckID: "t-1", UserAddress: userOwner, Weight: 7})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 7, ok)
	tr, _ := s.Truck(ctx, "t-1")
	assert.Equal(t, uint64(1), tr.Capacity)
	cols, err := s.ListCollections(ctx, companyOwner, "co-1")
	require.NoError(t, err)
	assert.Len(t, cols, 7)
}
