package commands

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/auth"
)

const sampleSnapshot = `{
  "group_id": "flat",
  "members": [
    {"id": "a", "display_name": "Alice"},
    {"id": "b", "display_name": "Bob"},
    {"id": "c", "display_name": "Carol"}
  ],
  "expenses": [
    {"description": "Groceries", "amount": "30.00", "payer_id": "a"},
    {"description": "Taxi", "amount": "12", "payer_id": "b", "split": "exact",
     "shares": [{"member_id": "b", "amount": "0"}, {"member_id": "c", "amount": "12"}]}
  ],
  "chores": [
    {"member_id": "c", "title": "Bins", "points": 2, "completed": true}
  ]
}`

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestComputeJSON(t *testing.T) {
	out, err := run(t, sampleSnapshot, "compute", "--file", "-", "--json")
	require.NoError(t, err, out)

	var report reportJSON
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "flat", report.GroupID)
	assert.Equal(t, "42.00", report.TotalSpent)

	balances := make(map[string]string)
	for _, b := range report.Balances {
		balances[b.MemberID] = b.Balance
	}
	// a: +30 -10, b: +12 -10, c: -10 -12
	assert.Equal(t, map[string]string{"a": "20.00", "b": "2.00", "c": "-22.00"}, balances)

	var total int
	for _, s := range report.Settlements {
		assert.Equal(t, "c", s.From)
		total++
	}
	assert.Equal(t, 2, total)
	assert.Len(t, report.Scores, 3)
}

func TestComputeText(t *testing.T) {
	out, err := run(t, sampleSnapshot, "compute", "-f", "-")
	require.NoError(t, err, out)
	assert.Contains(t, out, "€42,00")
	assert.Contains(t, out, "Carol")
	assert.Contains(t, out, "€20,00")
}

func TestComputeSettledGroup(t *testing.T) {
	snapshot := `{"members":[{"id":"a"},{"id":"b"}],"expenses":[]}`
	out, err := run(t, snapshot, "compute", "-f", "-")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Everyone is settled up.")
}

func TestComputeRejectsInvalidSnapshots(t *testing.T) {
	tests := []struct {
		name     string
		snapshot string
		wantErr  string
	}{
		{
			name:     "unknown payer",
			snapshot: `{"members":[{"id":"a"}],"expenses":[{"description":"x","amount":"5","payer_id":"z"}]}`,
			wantErr:  "member not found",
		},
		{
			name:     "shares do not sum",
			snapshot: `{"members":[{"id":"a"}],"expenses":[{"description":"x","amount":"5","payer_id":"a","split":"exact","shares":[{"member_id":"a","amount":"4"}]}]}`,
			wantErr:  "shares do not sum",
		},
		{
			name:     "bad amount",
			snapshot: `{"members":[{"id":"a"}],"expenses":[{"description":"x","amount":"-5","payer_id":"a"}]}`,
			wantErr:  "invalid amount",
		},
		{
			name:     "unknown field",
			snapshot: `{"members":[],"payments":[]}`,
			wantErr:  "unknown field",
		},
		{
			name:     "chore points too large",
			snapshot: `{"members":[{"id":"a"}],"chores":[{"member_id":"a","title":"Bins","points":9223372036854775807}]}`,
			wantErr:  "chore points too large",
		},
		{
			name:     "empty member id",
			snapshot: `{"members":[{"id":" "}]}`,
			wantErr:  "empty member id",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.snapshot, "compute", "-f", "-")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestComputeRequiresFile(t *testing.T) {
	_, err := run(t, "", "compute")
	require.Error(t, err)
}

func TestMigrateSQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "conti.db")
	out, err := run(t, "", "migrate", "--backend", "sqlite", "--sqlite-path", dbPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "sqlite schema is up to date")

	// Running again is a no-op.
	_, err = run(t, "", "migrate", "--backend", "sqlite", "--sqlite-path", dbPath)
	require.NoError(t, err)
}

func TestMigrateRejectsMemoryBackend(t *testing.T) {
	t.Setenv("DATA_BACKEND", "memory")
	_, err := run(t, "", "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no schema")
}

func TestToken(t *testing.T) {
	out, err := run(t, "", "token", "--member", "alice", "--group", "g1", "--group", "g2", "--secret", "s3cret")
	require.NoError(t, err, out)

	tokens, err := auth.NewTokens("s3cret")
	require.NoError(t, err)
	claims, err := tokens.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.MemberID)
	assert.True(t, claims.CanAccess("g2"))
	assert.False(t, claims.CanAccess("g3"))
}

func TestTokenUsesEnvironmentSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	out, err := run(t, "", "token", "--member", "bob")
	require.NoError(t, err, out)

	tokens, err := auth.NewTokens("from-env")
	require.NoError(t, err)
	_, err = tokens.Verify(strings.TrimSpace(out))
	assert.NoError(t, err)
}

func TestTokenRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := run(t, "", "token", "--member", "bob")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}
