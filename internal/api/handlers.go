package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/collectnet/collect/internal/app/collection"
	"github.com/collectnet/collect/internal/domain"
)

// ─── Collection API ─────────────────────────────────────────────────────────
// Every mutating route acts as the identity in X-Collect-Caller.
//
// POST   /api/companies                               register a company
// GET    /api/companies/{id}                          company snapshot
// POST   /api/companies/{id}/trucks                   register a truck
// GET    /api/companies/{id}/trucks                   list the fleet
// POST   /api/companies/{id}/requests                 submit a pickup request
// GET    /api/companies/{id}/requests                 pending requests
// DELETE /api/companies/{id}/requests/{requestID}     cancel a request
// POST   /api/companies/{id}/collections              settle a collection
// GET    /api/companies/{id}/collections              collection history
// GET    /api/companies/{id}/collections/{collectionID}
// POST   /api/users                                   register a user
// GET    /api/users/{id}                              user snapshot
// GET    /api/trucks/{id}                             truck snapshot
// POST   /api/trucks/{id}/users                       assign a user
// POST   /api/accounts/{kind}/{id}/deposit            kind is user|company
// POST   /api/accounts/{kind}/{id}/withdraw
// GET    /api/accounts/{kind}/{id}/events             balance movements
// GET    /api/traces                                  recent spans

type amountRequest struct {
	Amount uint64 `json:"amount"`
}

type assignRequest struct {
	Address domain.Address `json:"address"`
}

type submitRequest struct {
	UserID        string `json:"user_id"`
	PickupAddress string `json:"pickup_address"`
}

// ─── Registration ───────────────────────────────────────────────────────────

func (s *Server) handleRegisterCompany(w http.ResponseWriter, r *http.Request) {
	var p collection.CompanyParams
	if err := decode(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	c, err := s.svc.RegisterCompany(r.Context(), caller(r), p)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Company(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var p collection.UserParams
	if err := decode(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	u, err := s.svc.RegisterUser(r.Context(), caller(r), p)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.svc.User(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleRegisterTruck(w http.ResponseWriter, r *http.Request) {
	var p collection.TruckParams
	if err := decode(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	t, err := s.svc.RegisterTruck(r.Context(), caller(r), chi.URLParam(r, "id"), p)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleListTrucks(w http.ResponseWriter, r *http.Request) {
	trucks, err := s.svc.Trucks(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trucks": trucks})
}

func (s *Server) handleGetTruck(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.Truck(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleAssignUser(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	t, err := s.svc.AssignUser(r.Context(), caller(r), chi.URLParam(r, "id"), req.Address)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ─── Balances ───────────────────────────────────────────────────────────────

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	kind := collection.AccountKind(chi.URLParam(r, "kind"))
	bal, err := s.svc.Deposit(r.Context(), kind, chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"balance": bal})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	kind := collection.AccountKind(chi.URLParam(r, "kind"))
	released, err := s.svc.Withdraw(r.Context(), caller(r), kind, chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"released": released})
}

func (s *Server) handleBalanceEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	kind := collection.AccountKind(chi.URLParam(r, "kind"))
	events, err := s.svc.BalanceEvents(r.Context(), caller(r), kind, chi.URLParam(r, "id"), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// ─── Requests ───────────────────────────────────────────────────────────────

func (s *Server) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	cr, err := s.svc.SubmitRequest(r.Context(), caller(r), chi.URLParam(r, "id"), req.UserID, req.PickupAddress)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cr)
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.svc.ListRequests(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"requests": reqs})
}

func (s *Server) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	err := s.svc.CancelRequest(r.Context(), caller(r), chi.URLParam(r, "id"), chi.URLParam(r, "requestID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Collections ────────────────────────────────────────────────────────────

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	var p collection.SettleParams
	if err := decode(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	col, err := s.svc.Settle(r.Context(), caller(r), chi.URLParam(r, "id"), p)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, col)
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := s.svc.ListCollections(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"collections": cols})
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	col, err := s.svc.GetCollection(r.Context(), caller(r), chi.URLParam(r, "id"), chi.URLParam(r, "collectionID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, col)
}

// ─── Traces ─────────────────────────────────────────────────────────────────

func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"spans": s.svc.Traces(limit)})
}
