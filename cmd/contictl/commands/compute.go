package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"conti/internal/core"
	"conti/internal/reconcile"
	"conti/internal/services"
	"conti/internal/storage"
)

// snapshotFile is the on-disk form of a group accepted by compute.
// Amounts are major-unit decimal strings.
type snapshotFile struct {
	GroupID  string        `json:"group_id"`
	Members  []memberFile  `json:"members"`
	Expenses []expenseFile `json:"expenses"`
	Chores   []choreFile   `json:"chores"`
}

type memberFile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type shareFile struct {
	MemberID string `json:"member_id"`
	Amount   string `json:"amount"`
	Paid     bool   `json:"paid"`
}

type expenseFile struct {
	Description  string      `json:"description"`
	Amount       string      `json:"amount"`
	PayerID      string      `json:"payer_id"`
	Split        string      `json:"split"`
	Participants []string    `json:"participants"`
	Shares       []shareFile `json:"shares"`
}

type choreFile struct {
	MemberID  string `json:"member_id"`
	Title     string `json:"title"`
	Points    int    `json:"points"`
	Completed bool   `json:"completed"`
}

func computeCmd() *cobra.Command {
	var (
		file   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Compute balances, settlements and fairness scores for a snapshot file",
		Example: `  contictl compute --file group.json
  cat group.json | contictl compute --file - --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(cmd, file)
			if err != nil {
				return err
			}
			defer in.Close()

			snap, err := readSnapshot(in)
			if err != nil {
				return err
			}
			report := reconcile.Reconcile(snap, time.Now().UTC())
			logger.Debug("Reconciled snapshot",
				"members", len(snap.Members),
				"expenses", len(snap.Expenses),
				"settlements", len(report.Settlements))

			if asJSON {
				return writeReportJSON(cmd.OutOrStdout(), report)
			}
			return writeReportText(cmd.OutOrStdout(), snap.Members, report)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "snapshot JSON file, or - for stdin")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func openInput(cmd *cobra.Command, file string) (io.ReadCloser, error) {
	if file == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	return f, nil
}

// readSnapshot decodes and validates a snapshot file. Equal splits are
// resolved against the member list the same way the API resolves them.
func readSnapshot(r io.Reader) (core.Snapshot, error) {
	var sf snapshotFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sf); err != nil {
		return core.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}

	snap := core.Snapshot{GroupID: sf.GroupID}
	known := make(map[string]bool, len(sf.Members))
	for i, m := range sf.Members {
		member := core.Member{ID: strings.TrimSpace(m.ID), DisplayName: strings.TrimSpace(m.DisplayName)}
		if member.ID == "" {
			return core.Snapshot{}, fmt.Errorf("members[%d]: %w", i, core.ErrEmptyMember)
		}
		if member.DisplayName == "" {
			member.DisplayName = member.ID
		}
		known[member.ID] = true
		snap.Members = append(snap.Members, member)
	}
	isMember := func(id string) bool { return known[id] }

	for i, ef := range sf.Expenses {
		e, err := ef.resolve(snap.Members)
		if err != nil {
			return core.Snapshot{}, fmt.Errorf("expenses[%d]: %w", i, err)
		}
		if err := storage.CheckExpenseMembers(e, isMember); err != nil {
			return core.Snapshot{}, fmt.Errorf("expenses[%d]: %w", i, err)
		}
		e.ID = fmt.Sprintf("e%d", i+1)
		snap.Expenses = append(snap.Expenses, e)
	}

	for i, cf := range sf.Chores {
		c := core.ChoreContribution{
			ID:          fmt.Sprintf("c%d", i+1),
			MemberID:    cf.MemberID,
			Title:       cf.Title,
			Points:      cf.Points,
			IsCompleted: cf.Completed,
		}
		if err := c.Validate(); err != nil {
			return core.Snapshot{}, fmt.Errorf("chores[%d]: %w", i, err)
		}
		snap.Chores = append(snap.Chores, c)
	}
	return snap, nil
}

func (ef expenseFile) resolve(members []core.Member) (core.Expense, error) {
	amount, err := parseCents(ef.Amount, false)
	if err != nil {
		return core.Expense{}, fmt.Errorf("amount: %w", err)
	}
	in := services.ExpenseInput{
		Description:  ef.Description,
		Amount:       amount,
		PayerID:      ef.PayerID,
		Split:        ef.Split,
		Participants: ef.Participants,
	}
	for j, sf := range ef.Shares {
		owed, err := parseCents(sf.Amount, true)
		if err != nil {
			return core.Expense{}, fmt.Errorf("shares[%d].amount: %w", j, err)
		}
		in.Shares = append(in.Shares, core.Share{MemberID: sf.MemberID, Owed: owed, IsPaid: sf.Paid})
	}
	return in.Resolve(members)
}

func parseCents(s string, allowZero bool) (core.Money, error) {
	if allowZero {
		if d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", ".")); err == nil && d.IsZero() {
			return core.Money{}, nil
		}
	}
	cents, err := core.ParseDecimalToCents(s)
	if err != nil {
		return core.Money{}, fmt.Errorf("%w %q", err, s)
	}
	return core.Money{Cents: cents}, nil
}

type reportJSON struct {
	GroupID     string           `json:"group_id,omitempty"`
	TotalSpent  string           `json:"total_spent"`
	Balances    []balanceJSON    `json:"balances"`
	Settlements []settlementJSON `json:"settlements"`
	Scores      []scoreJSON      `json:"scores"`
}

type balanceJSON struct {
	MemberID string `json:"member_id"`
	Balance  string `json:"balance"`
}

type settlementJSON struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type scoreJSON struct {
	MemberID string `json:"member_id"`
	Score    int    `json:"score"`
	Expense  int    `json:"expense_subscore"`
	Chore    int    `json:"chore_subscore"`
}

func writeReportJSON(w io.Writer, r core.Report) error {
	out := reportJSON{
		GroupID:     r.GroupID,
		TotalSpent:  r.TotalSpent.String(),
		Balances:    make([]balanceJSON, 0, len(r.Balances)),
		Settlements: make([]settlementJSON, 0, len(r.Settlements)),
		Scores:      make([]scoreJSON, 0, len(r.Scores)),
	}
	for _, b := range r.Balances {
		out.Balances = append(out.Balances, balanceJSON{MemberID: b.MemberID, Balance: b.Balance.String()})
	}
	for _, s := range r.Settlements {
		out.Settlements = append(out.Settlements, settlementJSON{From: s.FromMemberID, To: s.ToMemberID, Amount: s.Amount.String()})
	}
	for _, s := range r.Scores {
		out.Scores = append(out.Scores, scoreJSON{MemberID: s.MemberID, Score: s.Score, Expense: s.ExpenseSubscore, Chore: s.ChoreSubscore})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeReportText(w io.Writer, members []core.Member, r core.Report) error {
	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.ID] = m.DisplayName
	}
	name := func(id string) string {
		if n, ok := names[id]; ok {
			return n
		}
		return id
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Total spent\t%s\n\n", r.TotalSpent.FormatEuros())

	fmt.Fprintln(tw, "MEMBER\tBALANCE\tSCORE\tEXPENSE\tCHORE")
	scores := make(map[string]core.FairnessScore, len(r.Scores))
	for _, s := range r.Scores {
		scores[s.MemberID] = s
	}
	for _, b := range r.Balances {
		s := scores[b.MemberID]
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", name(b.MemberID), b.Balance.FormatEuros(), s.Score, s.ExpenseSubscore, s.ChoreSubscore)
	}

	fmt.Fprintln(tw)
	if len(r.Settlements) == 0 {
		fmt.Fprintln(tw, "Everyone is settled up.")
		return tw.Flush()
	}
	fmt.Fprintln(tw, "FROM\tTO\tAMOUNT")
	for _, s := range r.Settlements {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name(s.FromMemberID), name(s.ToMemberID), s.Amount.FormatEuros())
	}
	return tw.Flush()
}
