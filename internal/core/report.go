package core

import (
	"strconv"
	"time"
)

// Fingerprint identifies a data snapshot by the Unix-nanosecond timestamp of
// its most recent modification. Larger is newer.
type Fingerprint int64

// FingerprintOf returns the fingerprint for a modification time.
func FingerprintOf(t time.Time) Fingerprint {
	if t.IsZero() {
		return 0
	}
	return Fingerprint(t.UnixNano())
}

// Time returns the modification time encoded by the fingerprint.
func (f Fingerprint) Time() time.Time {
	return time.Unix(0, int64(f)).UTC()
}

func (f Fingerprint) String() string {
	return strconv.FormatInt(int64(f), 36)
}

// ETag renders the fingerprint as a strong HTTP entity tag.
func (f Fingerprint) ETag() string {
	return `"` + f.String() + `"`
}

// Snapshot is the immutable input of one reconciliation run for a group.
type Snapshot struct {
	GroupID     string
	Members     []Member
	Expenses    []Expense
	Chores      []ChoreContribution
	Fingerprint Fingerprint
}

// Report is the combined output of a reconciliation run.
type Report struct {
	GroupID     string
	Fingerprint Fingerprint
	Balances    []NetBalance
	Settlements []Settlement
	Scores      []FairnessScore
	TotalSpent  Money
	ComputedAt  time.Time
}

// Group is a household or any set of members sharing expenses.
type Group struct {
	ID          string
	Name        string
	CreatedAt   time.Time
	Fingerprint Fingerprint
}
