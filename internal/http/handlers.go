package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"conti/internal/auth"
	"conti/internal/core"
	"conti/internal/log"
	"conti/internal/services"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady runs every readiness check and reports each one.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]string, len(s.ready))
	for name, check := range s.ready {
		if err := check(ctx); err != nil {
			checks[name] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	NewJSONResponse().Status(httpStatus).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides cache, rate limit and request counters in a
// Prometheus-like text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	stats, size := s.svc.CacheStats()
	traced := s.tracer.GetMetrics()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	metrics := []struct {
		name, help, kind string
		value            int64
	}{
		{"http_requests_total", "Total number of HTTP requests", "counter", traced.TotalRequests},
		{"http_server_errors_total", "Requests answered with a 5xx status", "counter", traced.ServerFailures},
		{"report_cache_hits_total", "Result cache hits", "counter", stats.Hits},
		{"report_cache_misses_total", "Result cache misses", "counter", stats.Misses},
		{"report_cache_evictions_total", "Result cache LRU evictions", "counter", stats.Evictions},
		{"report_cache_rejected_total", "Publishes refused because a newer result was cached", "counter", stats.Rejected},
		{"report_cache_entries", "Current result cache entries", "gauge", int64(size)},
		{"rate_limit_hits_total", "Requests rejected by the rate limiter", "counter", s.limiter.Hits()},
		{"rate_limit_active_clients", "Clients tracked by the rate limiter", "gauge", int64(s.limiter.ActiveClients())},
		{"suspicious_requests_total", "Requests flagged as suspicious", "counter", s.detector.SuspiciousRequests()},
		{"uptime_seconds", "Seconds since the server started", "gauge", int64(time.Since(s.started).Seconds())},
	}
	for _, m := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %d\n\n", m.name, m.help, m.name, m.kind, m.name, m.value)
	}
}

type createGroupRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	g, err := s.svc.CreateGroup(r.Context(), sanitizeInput(req.Name))
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := toGroupResponse(g, nil)
	if claims, ok := auth.FromContext(r.Context()); ok && s.tokens != nil {
		// The caller's token cannot grant a group created after it; hand
		// out one that does, expiring with the original.
		ttl := time.Until(claims.ExpiresAt.Time)
		token, err := s.tokens.Issue(claims.MemberID, append(append([]string(nil), claims.Groups...), g.ID), ttl)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp.Token = token
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Group created",
		log.FieldOperation, log.OpCreate,
		log.FieldGroupID, g.ID)
	NewJSONResponse().Status(http.StatusCreated).Header("Location", "/api/v1/groups/"+g.ID).Body(resp).Write(w)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	g, err := s.svc.GetGroup(r.Context(), groupID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	members, err := s.svc.Members(r.Context(), groupID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(toGroupResponse(g, members)).Write(w)
}

type addMemberRequest struct {
	DisplayName string `json:"display_name"`
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	m, err := s.svc.AddMember(r.Context(), chi.URLParam(r, "groupID"), sanitizeInput(req.DisplayName))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(toMemberResponse(m)).Write(w)
}

type shareRequest struct {
	MemberID string `json:"member_id"`
	Amount   string `json:"amount"`
}

type addExpenseRequest struct {
	Description  string         `json:"description"`
	Amount       string         `json:"amount"`
	PayerID      string         `json:"payer_id"`
	Split        string         `json:"split"`
	Participants []string       `json:"participants"`
	Shares       []shareRequest `json:"shares"`
}

func (req addExpenseRequest) toInput() (services.ExpenseInput, error) {
	amount, err := parseAmount("amount", req.Amount, false)
	if err != nil {
		return services.ExpenseInput{}, err
	}
	in := services.ExpenseInput{
		Description:  sanitizeInput(req.Description),
		Amount:       amount,
		PayerID:      req.PayerID,
		Split:        req.Split,
		Participants: req.Participants,
	}
	for i, sh := range req.Shares {
		owed, err := parseAmount(fmt.Sprintf("shares[%d].amount", i), sh.Amount, true)
		if err != nil {
			return services.ExpenseInput{}, err
		}
		in.Shares = append(in.Shares, core.Share{MemberID: sh.MemberID, Owed: owed})
	}
	return in, nil
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	var req addExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, r, err)
		return
	}

	groupID := chi.URLParam(r, "groupID")
	e, err := s.svc.AddExpense(r.Context(), groupID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Expense added",
		log.FieldOperation, log.OpCreate,
		log.FieldGroupID, groupID,
		log.FieldExpenseID, e.ID,
		log.FieldAmountCents, e.Amount.Cents)
	NewJSONResponse().Status(http.StatusCreated).Body(toExpenseResponse(e)).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	err := s.svc.DeleteExpense(r.Context(), chi.URLParam(r, "groupID"), chi.URLParam(r, "expenseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleMarkSharePaid(w http.ResponseWriter, r *http.Request) {
	err := s.svc.MarkSharePaid(r.Context(),
		chi.URLParam(r, "groupID"),
		chi.URLParam(r, "expenseID"),
		chi.URLParam(r, "memberID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

type addChoreRequest struct {
	MemberID string `json:"member_id"`
	Title    string `json:"title"`
	Points   int    `json:"points"`
}

func (s *Server) handleAddChore(w http.ResponseWriter, r *http.Request) {
	var req addChoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	c, err := s.svc.AddChore(r.Context(), chi.URLParam(r, "groupID"), core.ChoreContribution{
		MemberID: req.MemberID,
		Title:    sanitizeInput(req.Title),
		Points:   req.Points,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(toChoreResponse(c)).Write(w)
}

func (s *Server) handleCompleteChore(w http.ResponseWriter, r *http.Request) {
	err := s.svc.CompleteChore(r.Context(), chi.URLParam(r, "groupID"), chi.URLParam(r, "choreID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
