package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/cache"
	"conti/internal/core"
	"conti/internal/storage"
	"conti/internal/storage/memory"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []core.Fingerprint
	err  error
}

func (p *recordingPublisher) PublishGroupChanged(_ context.Context, _ string, fp core.Fingerprint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, fp)
	return p.err
}

type mapShared struct {
	mu      sync.Mutex
	entries map[string]core.Report
	loads   int
	stores  int
	gate    chan struct{}
}

func newMapShared() *mapShared { return &mapShared{entries: map[string]core.Report{}} }

func (m *mapShared) Load(_ context.Context, key string, fp core.Fingerprint) (core.Report, bool, error) {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	r, ok := m.entries[key]
	if !ok || r.Fingerprint != fp {
		return core.Report{}, false, nil
	}
	return r, true, nil
}

func (m *mapShared) Store(_ context.Context, key string, fp core.Fingerprint, v core.Report) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores++
	m.entries[key] = v
	return true, nil
}

var fixedNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T, opts ...Option) (*ReconciliationService, *memory.Store) {
	t.Helper()
	store := memory.New()
	results := cache.NewResultCache[core.Report](time.Minute)
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewReconciliationService(store, results, opts...), store
}

func seedGroup(t *testing.T, s *ReconciliationService) (core.Group, []core.Member) {
	t.Helper()
	ctx := context.Background()
	g, err := s.CreateGroup(ctx, "Flat")
	require.NoError(t, err)
	var ms []core.Member
	for _, name := range []string{"Alice", "Bob", "Carol"} {
		m, err := s.AddMember(ctx, g.ID, name)
		require.NoError(t, err)
		ms = append(ms, m)
	}
	return g, ms
}

func TestReport_ComputesAndCaches(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	g, ms := seedGroup(t, s)

	_, err := s.AddExpense(ctx, g.ID, ExpenseInput{
		Description: "Groceries",
		Amount:      core.Money{Cents: 9000},
		PayerID:     ms[0].ID,
	})
	require.NoError(t, err)

	r, cached, err := s.Report(ctx, g.ID)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, fixedNow, r.ComputedAt)
	assert.Equal(t, int64(9000), r.TotalSpent.Cents)
	assert.Equal(t, []core.Settlement{
		{FromMemberID: ms[1].ID, ToMemberID: ms[0].ID, Amount: core.Money{Cents: 3000}},
		{FromMemberID: ms[2].ID, ToMemberID: ms[0].ID, Amount: core.Money{Cents: 3000}},
	}, r.Settlements)

	again, cached, err := s.Report(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, r, again)
}

func TestReport_WriteInvalidatesByFingerprint(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	g, ms := seedGroup(t, s)

	first, _, err := s.Report(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, first.Settlements)

	_, err = s.AddExpense(ctx, g.ID, ExpenseInput{
		Description:  "Taxi",
		Amount:       core.Money{Cents: 1000},
		PayerID:      ms[0].ID,
		Participants: []string{ms[0].ID, ms[1].ID},
	})
	require.NoError(t, err)

	second, cached, err := s.Report(ctx, g.ID)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Greater(t, int64(second.Fingerprint), int64(first.Fingerprint))
	assert.Equal(t, []core.Settlement{
		{FromMemberID: ms[1].ID, ToMemberID: ms[0].ID, Amount: core.Money{Cents: 500}},
	}, second.Settlements)
}

func TestReport_UsesSharedTier(t *testing.T) {
	shared := newMapShared()
	s, store := newService(t, WithSharedCache(shared))
	ctx := context.Background()
	g, _ := seedGroup(t, s)

	snap, err := store.LoadSnapshot(ctx, g.ID)
	require.NoError(t, err)
	planted := core.Report{GroupID: g.ID, Fingerprint: snap.Fingerprint, TotalSpent: core.Money{Cents: 4242}}
	_, err = shared.Store(ctx, g.ID, snap.Fingerprint, planted)
	require.NoError(t, err)

	r, cached, err := s.Report(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, int64(4242), r.TotalSpent.Cents)
}

func TestReport_ConcurrentReadersShareTierHit(t *testing.T) {
	shared := newMapShared()
	s, store := newService(t, WithSharedCache(shared))
	ctx := context.Background()
	g, _ := seedGroup(t, s)

	snap, err := store.LoadSnapshot(ctx, g.ID)
	require.NoError(t, err)
	_, err = shared.Store(ctx, g.ID, snap.Fingerprint, core.Report{GroupID: g.ID, Fingerprint: snap.Fingerprint})
	require.NoError(t, err)
	shared.gate = make(chan struct{})

	const readers = 8
	var wg sync.WaitGroup
	hits := make([]bool, readers)
	for i := range hits {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, cached, err := s.Report(ctx, g.ID)
			assert.NoError(t, err)
			hits[i] = cached
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(shared.gate)
	wg.Wait()

	assert.Equal(t, 1, shared.loads)
	for i, hit := range hits {
		assert.True(t, hit, "reader %d", i)
	}
}

func TestReport_StoresIntoSharedTier(t *testing.T) {
	shared := newMapShared()
	s, _ := newService(t, WithSharedCache(shared))
	g, _ := seedGroup(t, s)

	_, _, err := s.Report(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, shared.stores)
}

func TestReport_UnknownGroup(t *testing.T) {
	s, _ := newService(t)
	_, _, err := s.Report(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrGroupNotFound)
}

func TestReport_ConcurrentReadersAgree(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	g, ms := seedGroup(t, s)
	_, err := s.AddExpense(ctx, g.ID, ExpenseInput{Description: "Rent", Amount: core.Money{Cents: 120000}, PayerID: ms[2].ID})
	require.NoError(t, err)

	var wg sync.WaitGroup
	reports := make([]core.Report, 16)
	for i := range reports {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, _, err := s.Report(ctx, g.ID)
			assert.NoError(t, err)
			reports[i] = r
		}(i)
	}
	wg.Wait()
	for _, r := range reports[1:] {
		assert.Equal(t, reports[0], r)
	}
}

func TestRecompute_PublishesToCaches(t *testing.T) {
	shared := newMapShared()
	s, _ := newService(t, WithSharedCache(shared))
	ctx := context.Background()
	g, _ := seedGroup(t, s)

	r, err := s.Recompute(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, shared.stores)

	got, cached, err := s.Report(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, r, got)
}

func TestWrites_AnnounceNewFingerprint(t *testing.T) {
	pub := &recordingPublisher{}
	s, _ := newService(t, WithPublisher(pub))
	ctx := context.Background()
	g, ms := seedGroup(t, s)

	e, err := s.AddExpense(ctx, g.ID, ExpenseInput{
		Description: "Dinner",
		Amount:      core.Money{Cents: 3000},
		PayerID:     ms[0].ID,
		Split:       SplitExact,
		Shares: []core.Share{
			{MemberID: ms[1].ID, Owed: core.Money{Cents: 2000}},
			{MemberID: ms[2].ID, Owed: core.Money{Cents: 1000}},
		},
	})
	require.NoError(t, err)
	require.NoError(t, s.MarkSharePaid(ctx, g.ID, e.ID, ms[1].ID))
	c, err := s.AddChore(ctx, g.ID, core.ChoreContribution{MemberID: ms[0].ID, Title: "Bins", Points: 2})
	require.NoError(t, err)
	require.NoError(t, s.CompleteChore(ctx, g.ID, c.ID))
	require.NoError(t, s.DeleteExpense(ctx, g.ID, e.ID))

	// create + 3 members + 5 writes
	require.Len(t, pub.msgs, 9)
	for i := 1; i < len(pub.msgs); i++ {
		assert.Greater(t, int64(pub.msgs[i]), int64(pub.msgs[i-1]))
	}

	fp, err := s.Fingerprint(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, fp, pub.msgs[len(pub.msgs)-1])
}

func TestWrites_PublishFailureDoesNotFailWrite(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	s, _ := newService(t, WithPublisher(pub))

	g, err := s.CreateGroup(context.Background(), "Flat")
	require.NoError(t, err)
	assert.NotEmpty(t, g.ID)
}

func TestWrites_FailedWriteIsNotAnnounced(t *testing.T) {
	pub := &recordingPublisher{}
	s, _ := newService(t, WithPublisher(pub))
	g, _ := seedGroup(t, s)
	before := len(pub.msgs)

	err := s.CompleteChore(context.Background(), g.ID, "missing")
	assert.ErrorIs(t, err, storage.ErrChoreNotFound)
	assert.Len(t, pub.msgs, before)
}

func TestAddExpense_Validation(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	g, ms := seedGroup(t, s)

	_, err := s.AddExpense(ctx, g.ID, ExpenseInput{
		Description: "Mismatch",
		Amount:      core.Money{Cents: 1000},
		PayerID:     ms[0].ID,
		Split:       SplitExact,
		Shares:      []core.Share{{MemberID: ms[1].ID, Owed: core.Money{Cents: 900}}},
	})
	assert.ErrorIs(t, err, core.ErrSharesMismatch)
	assert.True(t, IsValidation(err))

	_, err = s.AddExpense(ctx, g.ID, ExpenseInput{Description: "x", Amount: core.Money{Cents: 10}, PayerID: ms[0].ID, Split: "percent"})
	assert.ErrorIs(t, err, ErrUnknownSplit)

	empty, err := s.CreateGroup(ctx, "Empty")
	require.NoError(t, err)
	_, err = s.AddExpense(ctx, empty.ID, ExpenseInput{Description: "x", Amount: core.Money{Cents: 10}, PayerID: "p"})
	assert.ErrorIs(t, err, ErrNoGroupMember)

	assert.False(t, IsValidation(storage.ErrGroupNotFound))
}
