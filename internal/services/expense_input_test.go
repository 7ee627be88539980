package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/core"
)

func TestExpenseInput_Resolve(t *testing.T) {
	members := []core.Member{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	tests := []struct {
		name    string
		in      ExpenseInput
		want    []core.Share
		wantErr error
	}{
		{
			name: "equal split over all members distributes remainder",
			in:   ExpenseInput{Description: "Pizza", Amount: core.Money{Cents: 1000}, PayerID: "a"},
			want: []core.Share{
				{MemberID: "a", Owed: core.Money{Cents: 334}},
				{MemberID: "b", Owed: core.Money{Cents: 333}},
				{MemberID: "c", Owed: core.Money{Cents: 333}},
			},
		},
		{
			name: "equal split over participants",
			in:   ExpenseInput{Description: "Taxi", Amount: core.Money{Cents: 1001}, PayerID: "a", Split: SplitEqual, Participants: []string{"b", "c"}},
			want: []core.Share{
				{MemberID: "b", Owed: core.Money{Cents: 501}},
				{MemberID: "c", Owed: core.Money{Cents: 500}},
			},
		},
		{
			name: "exact split",
			in: ExpenseInput{Description: "Rent", Amount: core.Money{Cents: 300}, PayerID: "a", Split: SplitExact,
				Shares: []core.Share{{MemberID: "a", Owed: core.Money{Cents: 100}}, {MemberID: "b", Owed: core.Money{Cents: 200}}}},
			want: []core.Share{{MemberID: "a", Owed: core.Money{Cents: 100}}, {MemberID: "b", Owed: core.Money{Cents: 200}}},
		},
		{
			name:    "zero amount",
			in:      ExpenseInput{Description: "Free", PayerID: "a"},
			wantErr: core.ErrInvalidAmount,
		},
		{
			name:    "empty description",
			in:      ExpenseInput{Amount: core.Money{Cents: 10}, PayerID: "a"},
			wantErr: core.ErrEmptyDescription,
		},
		{
			name:    "duplicate participant",
			in:      ExpenseInput{Description: "Dup", Amount: core.Money{Cents: 10}, PayerID: "a", Participants: []string{"b", "b"}},
			wantErr: core.ErrDuplicateShare,
		},
		{
			name:    "exact without shares",
			in:      ExpenseInput{Description: "None", Amount: core.Money{Cents: 10}, PayerID: "a", Split: SplitExact},
			wantErr: core.ErrNoShares,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := tt.in.Resolve(members)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.Shares)
		})
	}
}
