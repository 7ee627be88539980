package http

import (
	"time"

	"conti/internal/core"
)

// Wire representations. Amounts travel both as integer cents and as
// major-unit decimal strings.

type groupResponse struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	CreatedAt   time.Time        `json:"created_at"`
	Fingerprint string           `json:"fingerprint"`
	Members     []memberResponse `json:"members,omitempty"`
	Token       string           `json:"token,omitempty"`
}

type memberResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type shareResponse struct {
	MemberID    string `json:"member_id"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
	IsPaid      bool   `json:"is_paid"`
}

type expenseResponse struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	AmountCents int64           `json:"amount_cents"`
	Amount      string          `json:"amount"`
	PayerID     string          `json:"payer_id"`
	Shares      []shareResponse `json:"shares"`
}

type choreResponse struct {
	ID          string `json:"id"`
	MemberID    string `json:"member_id"`
	Title       string `json:"title"`
	Points      int    `json:"points"`
	IsCompleted bool   `json:"is_completed"`
}

type balanceResponse struct {
	MemberID     string `json:"member_id"`
	BalanceCents int64  `json:"balance_cents"`
	Balance      string `json:"balance"`
	Formatted    string `json:"formatted"`
}

type settlementResponse struct {
	FromMemberID string `json:"from_member_id"`
	ToMemberID   string `json:"to_member_id"`
	AmountCents  int64  `json:"amount_cents"`
	Amount       string `json:"amount"`
	Formatted    string `json:"formatted"`
}

type scoreResponse struct {
	MemberID             string `json:"member_id"`
	Score                int    `json:"score"`
	ExpenseSubscore      int    `json:"expense_subscore"`
	ChoreSubscore        int    `json:"chore_subscore"`
	RawContributionCents int64  `json:"raw_contribution_cents"`
}

type reportResponse struct {
	GroupID         string               `json:"group_id"`
	Fingerprint     string               `json:"fingerprint"`
	ComputedAt      time.Time            `json:"computed_at"`
	TotalSpentCents int64                `json:"total_spent_cents"`
	TotalSpent      string               `json:"total_spent"`
	Balances        []balanceResponse    `json:"balances"`
	Settlements     []settlementResponse `json:"settlements"`
	Scores          []scoreResponse      `json:"scores"`
}

func toGroupResponse(g core.Group, members []core.Member) groupResponse {
	resp := groupResponse{
		ID:          g.ID,
		Name:        g.Name,
		CreatedAt:   g.CreatedAt,
		Fingerprint: g.Fingerprint.String(),
	}
	for _, m := range members {
		resp.Members = append(resp.Members, toMemberResponse(m))
	}
	return resp
}

func toMemberResponse(m core.Member) memberResponse {
	return memberResponse{ID: m.ID, DisplayName: m.DisplayName}
}

func toExpenseResponse(e core.Expense) expenseResponse {
	resp := expenseResponse{
		ID:          e.ID,
		Description: e.Description,
		AmountCents: e.Amount.Cents,
		Amount:      e.Amount.String(),
		PayerID:     e.PayerID,
		Shares:      make([]shareResponse, 0, len(e.Shares)),
	}
	for _, s := range e.Shares {
		resp.Shares = append(resp.Shares, shareResponse{
			MemberID:    s.MemberID,
			AmountCents: s.Owed.Cents,
			Amount:      s.Owed.String(),
			IsPaid:      s.IsPaid,
		})
	}
	return resp
}

func toChoreResponse(c core.ChoreContribution) choreResponse {
	return choreResponse{
		ID:          c.ID,
		MemberID:    c.MemberID,
		Title:       c.Title,
		Points:      c.Points,
		IsCompleted: c.IsCompleted,
	}
}

func toBalances(in []core.NetBalance) []balanceResponse {
	out := make([]balanceResponse, 0, len(in))
	for _, b := range in {
		out = append(out, balanceResponse{
			MemberID:     b.MemberID,
			BalanceCents: b.Balance.Cents,
			Balance:      b.Balance.String(),
			Formatted:    b.Balance.FormatEuros(),
		})
	}
	return out
}

func toSettlements(in []core.Settlement) []settlementResponse {
	out := make([]settlementResponse, 0, len(in))
	for _, s := range in {
		out = append(out, settlementResponse{
			FromMemberID: s.FromMemberID,
			ToMemberID:   s.ToMemberID,
			AmountCents:  s.Amount.Cents,
			Amount:       s.Amount.String(),
			Formatted:    s.Amount.FormatEuros(),
		})
	}
	return out
}

func toScores(in []core.FairnessScore) []scoreResponse {
	out := make([]scoreResponse, 0, len(in))
	for _, s := range in {
		out = append(out, scoreResponse{
			MemberID:             s.MemberID,
			Score:                s.Score,
			ExpenseSubscore:      s.ExpenseSubscore,
			ChoreSubscore:        s.ChoreSubscore,
			RawContributionCents: s.RawContribution,
		})
	}
	return out
}

func toReportResponse(r core.Report) reportResponse {
	return reportResponse{
		GroupID:         r.GroupID,
		Fingerprint:     r.Fingerprint.String(),
		ComputedAt:      r.ComputedAt,
		TotalSpentCents: r.TotalSpent.Cents,
		TotalSpent:      r.TotalSpent.String(),
		Balances:        toBalances(r.Balances),
		Settlements:     toSettlements(r.Settlements),
		Scores:          toScores(r.Scores),
	}
}
