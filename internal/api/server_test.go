package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/collectnet/collect/internal/app/collection"
	"github.com/collectnet/collect/internal/domain"
	"github.com/collectnet/collect/internal/infra/observability"
	"github.com/collectnet/collect/internal/infra/sqlite"
)

const (
	companyOwner = "0xco"
	userOwner    = "0xuser"
	stranger     = "0xstranger"
)

func setupServer(t *testing.T) http.Handler {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := collection.New(collection.DefaultConfig(), db)
	srv := NewServer(svc)
	srv.EnableMetrics()
	return srv.Handler()
}

// do sends a JSON request as caller and returns the recorder.
func do(t *testing.T, h http.Handler, method, path, caller string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(CallerHeader, caller)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func mustStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, want, w.Body.String())
	}
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode: %v (body: %s)", err, w.Body.String())
	}
}

// seedAPI registers the reference parties over HTTP.
func seedAPI(t *testing.T, h http.Handler) {
	t.Helper()
	mustStatus(t, do(t, h, "POST", "/api/companies", companyOwner,
		map[string]interface{}{"id": "co-1", "profile": map[string]string{"name": "GreenBins"}, "charges": 100}), http.StatusCreated)
	mustStatus(t, do(t, h, "POST", "/api/users", userOwner,
		map[string]interface{}{"id": "u-1", "profile": map[string]string{"name": "Ada"}}), http.StatusCreated)
	mustStatus(t, do(t, h, "POST", "/api/accounts/user/u-1/deposit", "",
		map[string]interface{}{"amount": 150}), http.StatusOK)
	mustStatus(t, do(t, h, "POST", "/api/companies/co-1/trucks", companyOwner,
		map[string]interface{}{"id": "t-1", "registration": "KA-01", "driver": "Bob", "district": "north", "capacity": 50}), http.StatusCreated)
	mustStatus(t, do(t, h, "POST", "/api/trucks/t-1/users", companyOwner,
		map[string]interface{}{"address": userOwner}), http.StatusOK)
}

// ─── Basic Routes ───────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	h := setupServer(t)
	w := do(t, h, "GET", "/health", "", nil)
	mustStatus(t, w, http.StatusOK)

	var resp map[string]string
	decodeBody(t, w, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want ok", resp["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := setupServer(t)
	mustStatus(t, do(t, h, "GET", "/metrics", "", nil), http.StatusOK)
}

func TestMetricsDisabled(t *testing.T) {
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	h := NewServer(collection.New(collection.DefaultConfig(), db)).Handler()

	mustStatus(t, do(t, h, "GET", "/metrics", "", nil), http.StatusNotFound)
}

// ─── Settlement Flow ────────────────────────────────────────────────────────

func TestSettleFlow(t *testing.T) {
	h := setupServer(t)
	seedAPI(t, h)

	w := do(t, h, "POST", "/api/companies/co-1/requests", userOwner,
		map[string]string{"user_id": "u-1", "pickup_address": "1 Elm St"})
	mustStatus(t, w, http.StatusCreated)
	var req domain.CollectionRequest
	decodeBody(t, w, &req)

	w = do(t, h, "POST", "/api/companies/co-1/collections", companyOwner,
		map[string]interface{}{"user_id": "u-1", "truck_id": "t-1", "request_id": req.ID, "date": "2026-10-18", "weight": 30})
	mustStatus(t, w, http.StatusCreated)
	var col domain.Collection
	decodeBody(t, w, &col)
	if col.Charges != 100 || col.Weight != 30 || col.Requester != userOwner {
		t.Errorf("collection = %+v", col)
	}

	w = do(t, h, "GET", "/api/users/u-1", "", nil)
	mustStatus(t, w, http.StatusOK)
	var u collection.UserView
	decodeBody(t, w, &u)
	if u.Balance != 50 {
		t.Errorf("user balance = %d, want 50", u.Balance)
	}

	w = do(t, h, "GET", "/api/trucks/t-1", "", nil)
	mustStatus(t, w, http.StatusOK)
	var tr collection.TruckView
	decodeBody(t, w, &tr)
	if tr.Capacity != 20 {
		t.Errorf("truck capacity = %d, want 20", tr.Capacity)
	}

	w = do(t, h, "GET", "/api/companies/co-1/collections/"+col.ID, companyOwner, nil)
	mustStatus(t, w, http.StatusOK)

	w = do(t, h, "GET", "/api/companies/co-1/collections", companyOwner, nil)
	mustStatus(t, w, http.StatusOK)
	var list struct {
		Collections []domain.Collection `json:"collections"`
	}
	decodeBody(t, w, &list)
	if len(list.Collections) != 1 {
		t.Errorf("collections = %d, want 1", len(list.Collections))
	}

	w = do(t, h, "GET", "/api/companies/co-1/requests", companyOwner, nil)
	mustStatus(t, w, http.StatusOK)
	var pending struct {
		Requests []domain.CollectionRequest `json:"requests"`
	}
	decodeBody(t, w, &pending)
	if len(pending.Requests) != 0 {
		t.Errorf("pending requests = %d, want 0 (consumed)", len(pending.Requests))
	}
}

func TestSettle_ErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		caller     string
		body       map[string]interface{}
		wantStatus int
		wantReason string
	}{
		{"not company", stranger, map[string]interface{}{"user_id": "u-1", "truck_id": "t-1", "user_address": userOwner, "weight": 1}, http.StatusForbidden, "NOT_COMPANY"},
		{"not company user", companyOwner, map[string]interface{}{"user_id": "u-1", "truck_id": "t-1", "user_address": stranger, "weight": 1}, http.StatusForbidden, "NOT_COMPANY_USER"},
		{"over capacity", companyOwner, map[string]interface{}{"user_id": "u-1", "truck_id": "t-1", "user_address": userOwner, "weight": 51}, http.StatusConflict, ""},
		{"unknown user", companyOwner, map[string]interface{}{"user_id": "u-9", "truck_id": "t-1", "user_address": userOwner, "weight": 1}, http.StatusNotFound, ""},
		{"unknown field", companyOwner, map[string]interface{}{"bogus": 1}, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setupServer(t)
			seedAPI(t, h)
			w := do(t, h, "POST", "/api/companies/co-1/collections", tt.caller, tt.body)
			mustStatus(t, w, tt.wantStatus)

			if tt.wantReason == "" {
				return
			}
			var resp struct {
				Error struct {
					Reason string `json:"reason"`
				} `json:"error"`
			}
			decodeBody(t, w, &resp)
			if resp.Error.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", resp.Error.Reason, tt.wantReason)
			}
		})
	}
}

func TestSettle_InsufficientBalance(t *testing.T) {
	h := setupServer(t)
	seedAPI(t, h)
	mustStatus(t, do(t, h, "POST", "/api/accounts/user/u-1/withdraw", userOwner,
		map[string]interface{}{"amount": 100}), http.StatusOK)

	w := do(t, h, "POST", "/api/companies/co-1/collections", companyOwner,
		map[string]interface{}{"user_id": "u-1", "truck_id": "t-1", "user_address": userOwner, "weight": 1})
	mustStatus(t, w, http.StatusPaymentRequired)
}

// ─── Balances & Requests ────────────────────────────────────────────────────

func TestWithdraw_NotOwner(t *testing.T) {
	h := setupServer(t)
	seedAPI(t, h)
	w := do(t, h, "POST", "/api/accounts/user/u-1/withdraw", stranger, map[string]interface{}{"amount": 1})
	mustStatus(t, w, http.StatusForbidden)
}

func TestDeposit_InvalidAmount(t *testing.T) {
	h := setupServer(t)
	seedAPI(t, h)
	mustStatus(t, do(t, h, "POST", "/api/accounts/company/co-1/deposit", "", map[string]interface{}{"amount": 0}), http.StatusBadRequest)
	mustStatus(t, do(t, h, "POST", "/api/accounts/truck/t-1/deposit", "", map[string]interface{}{"amount": 5}), http.StatusBadRequest)
}

func TestDeposit_BeyondStorableRange(t *testing.T) {
	h := setupServer(t)
	seedAPI(t, h)

	w := do(t, h, "POST", "/api/accounts/user/u-1/deposit", "", map[string]interface{}{"amount": uint64(math.MaxInt64)})
	mustStatus(t, w, http.StatusBadRequest)
	var resp struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	decodeBody(t, w, &resp)
	if resp.Error.Type != "invalid_request" {
		t.Errorf("error type = %q, want invalid_request", resp.Error.Type)
	}

	w = do(t, h, "GET", "/api/users/u-1", "", nil)
	mustStatus(t, w, http.StatusOK)
	var u collection.UserView
	decodeBody(t, w, &u)
	if u.Balance != 150 {
		t.Errorf("balance = %d, want 150 (rolled back)", u.Balance)
	}
}

func TestBalanceEvents(t *testing.T) {
	h := setupServer(t)
	seedAPI(t, h)

	w := do(t, h, "GET", "/api/accounts/user/u-1/events?limit=5", userOwner, nil)
	mustStatus(t, w, http.StatusOK)
	var resp struct {
		Events []domain.BalanceEvent `json:"events"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Events) != 1 || resp.Events[0].Type != domain.EventDeposit {
		t.Errorf("events = %+v, want one DEPOSIT", resp.Events)
	}

	// A company held by the same owner keeps its own trail.
	mustStatus(t, do(t, h, "POST", "/api/companies", userOwner,
		map[string]interface{}{"id": "co-2", "charges": 1}), http.StatusCreated)
	mustStatus(t, do(t, h, "POST", "/api/accounts/company/co-2/deposit", "",
		map[string]interface{}{"amount": 5}), http.StatusOK)
	w = do(t, h, "GET", "/api/accounts/user/u-1/events", userOwner, nil)
	mustStatus(t, w, http.StatusOK)
	decodeBody(t, w, &resp)
	if len(resp.Events) != 1 || resp.Events[0].ToAccount != domain.UserRef("u-1") {
		t.Errorf("user events = %+v, want only the user's deposit", resp.Events)
	}

	mustStatus(t, do(t, h, "GET", "/api/accounts/user/u-1/events?limit=x", userOwner, nil), http.StatusBadRequest)
	mustStatus(t, do(t, h, "GET", "/api/accounts/user/u-1/events", stranger, nil), http.StatusForbidden)
}

func TestTraces(t *testing.T) {
	h := setupServer(t)
	seedAPI(t, h)

	w := do(t, h, "POST", "/api/accounts/user/u-1/deposit", "", map[string]interface{}{"amount": 10})
	mustStatus(t, w, http.StatusOK)
	traceID := w.Header().Get(TraceHeader)
	if traceID == "" {
		t.Fatalf("missing %s header", TraceHeader)
	}

	w = do(t, h, "GET", "/api/traces", "", nil)
	mustStatus(t, w, http.StatusOK)
	var resp struct {
		Spans []observability.Span `json:"spans"`
	}
	decodeBody(t, w, &resp)

	byOp := map[string]observability.Span{}
	for _, sp := range resp.Spans {
		if sp.TraceID == traceID {
			byOp[sp.Operation] = sp
		}
	}
	root, ok := byOp["deposit"]
	if !ok {
		t.Fatalf("no deposit span for trace %s in %+v", traceID, resp.Spans)
	}
	commit, ok := byOp["deposit.commit"]
	if !ok {
		t.Fatalf("no deposit.commit span for trace %s", traceID)
	}
	if commit.ParentID != root.SpanID {
		t.Errorf("commit ParentID = %q, want %q", commit.ParentID, root.SpanID)
	}

	mustStatus(t, do(t, h, "GET", "/api/traces?limit=-1", "", nil), http.StatusBadRequest)
}

func TestCancelRequest(t *testing.T) {
	h := setupServer(t)
	seedAPI(t, h)

	w := do(t, h, "POST", "/api/companies/co-1/requests", userOwner,
		map[string]string{"user_id": "u-1", "pickup_address": "1 Elm St"})
	mustStatus(t, w, http.StatusCreated)
	var req domain.CollectionRequest
	decodeBody(t, w, &req)

	path := fmt.Sprintf("/api/companies/co-1/requests/%s", req.ID)
	mustStatus(t, do(t, h, "DELETE", path, stranger, nil), http.StatusForbidden)
	mustStatus(t, do(t, h, "DELETE", path, companyOwner, nil), http.StatusNoContent)
	mustStatus(t, do(t, h, "DELETE", path, companyOwner, nil), http.StatusNotFound)
}

func TestRegisterCompany_Duplicate(t *testing.T) {
	h := setupServer(t)
	seedAPI(t, h)
	w := do(t, h, "POST", "/api/companies", companyOwner, map[string]interface{}{"id": "co-1", "charges": 1})
	mustStatus(t, w, http.StatusConflict)
}

func TestListTrucks(t *testing.T) {
	h := setupServer(t)
	seedAPI(t, h)
	w := do(t, h, "GET", "/api/companies/co-1/trucks", companyOwner, nil)
	mustStatus(t, w, http.StatusOK)
	var resp struct {
		Trucks []collection.TruckView `json:"trucks"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Trucks) != 1 || resp.Trucks[0].ID != "t-1" {
		t.Errorf("trucks = %+v, want [t-1]", resp.Trucks)
	}
}

// ─── Error Mapping ──────────────────────────────────────────────────────────

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&domain.UnauthorizedError{Reason: domain.NotOwner}, http.StatusForbidden},
		{fmt.Errorf("x: %w", domain.ErrInsufficientBalance), http.StatusPaymentRequired},
		{domain.ErrInsufficientCapacity, http.StatusConflict},
		{domain.ErrDuplicateID, http.StatusConflict},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrInvalidAmount, http.StatusBadRequest},
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{errors.New("disk"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
