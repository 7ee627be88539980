package services

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"conti/internal/cache"
	"conti/internal/core"
	"conti/internal/log"
	"conti/internal/reconcile"
	"conti/internal/storage"
)

const tracerName = "conti/internal/services"

// Publisher announces that a group moved to a new fingerprint.
type Publisher interface {
	PublishGroupChanged(ctx context.Context, groupID string, fp core.Fingerprint) error
}

// SharedCache is a result tier shared between instances.
type SharedCache interface {
	Load(ctx context.Context, key string, fp core.Fingerprint) (core.Report, bool, error)
	Store(ctx context.Context, key string, fp core.Fingerprint, v core.Report) (bool, error)
}

// ReconciliationService orchestrates group writes and report reads across
// storage, the result caches and the message broker.
type ReconciliationService struct {
	store     storage.Store
	results   *cache.ResultCache[core.Report]
	shared    SharedCache
	publisher Publisher
	logger    *log.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

type Option func(*ReconciliationService)

func WithSharedCache(c SharedCache) Option {
	return func(s *ReconciliationService) { s.shared = c }
}

func WithPublisher(p Publisher) Option {
	return func(s *ReconciliationService) { s.publisher = p }
}

func WithLogger(l *log.Logger) Option {
	return func(s *ReconciliationService) { s.logger = l }
}

// WithClock sets the clock stamping computed reports.
func WithClock(now func() time.Time) Option {
	return func(s *ReconciliationService) { s.now = now }
}

func NewReconciliationService(store storage.Store, results *cache.ResultCache[core.Report], opts ...Option) *ReconciliationService {
	s := &ReconciliationService{
		store:   store,
		results: results,
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(log.DefaultConfig())
	}
	s.logger = s.logger.WithComponent(log.ComponentReconcile)
	return s
}

// Fingerprint returns the group's current fingerprint without loading the
// full snapshot.
func (s *ReconciliationService) Fingerprint(ctx context.Context, groupID string) (core.Fingerprint, error) {
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return 0, err
	}
	return g.Fingerprint, nil
}

// Report returns the reconciliation report for the group's current data.
// The boolean reports whether it was served from a cache.
func (s *ReconciliationService) Report(ctx context.Context, groupID string) (core.Report, bool, error) {
	ctx, span := s.tracer.Start(ctx, "ReconciliationService.Report",
		trace.WithAttributes(attribute.String("group.id", groupID)))
	defer span.End()

	snap, err := s.loadSnapshot(ctx, groupID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return core.Report{}, false, err
	}
	span.SetAttributes(attribute.Int64("group.fingerprint", int64(snap.Fingerprint)))

	report, hit, err := s.results.GetOrCompute(groupID, snap.Fingerprint, func() (core.Report, bool, error) {
		if r, ok := s.loadShared(ctx, groupID, snap.Fingerprint); ok {
			return r, true, nil
		}
		r := s.compute(ctx, snap)
		s.storeShared(ctx, r)
		return r, false, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return core.Report{}, false, fmt.Errorf("compute report: %w", err)
	}

	span.SetAttributes(attribute.Bool("cache.hit", hit))
	s.logger.DebugContext(ctx, "Report served",
		log.FieldGroupID, groupID,
		log.FieldFingerprint, int64(snap.Fingerprint),
		log.FieldCacheHit, hit)
	return report, hit, nil
}

// Recompute reloads the group, recomputes its report and publishes it to
// every cache tier. Used by the worker after a change notification.
func (s *ReconciliationService) Recompute(ctx context.Context, groupID string) (core.Report, error) {
	ctx, span := s.tracer.Start(ctx, "ReconciliationService.Recompute",
		trace.WithAttributes(attribute.String("group.id", groupID)))
	defer span.End()

	snap, err := s.loadSnapshot(ctx, groupID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return core.Report{}, err
	}
	r := s.compute(ctx, snap)
	s.results.Publish(groupID, r.Fingerprint, r)
	s.storeShared(ctx, r)
	return r, nil
}

// CacheStats reports the local result cache counters and size.
func (s *ReconciliationService) CacheStats() (cache.Stats, int) {
	return s.results.Stats(), s.results.Size()
}

func (s *ReconciliationService) loadSnapshot(ctx context.Context, groupID string) (core.Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "storage.LoadSnapshot")
	defer span.End()

	snap, err := s.store.LoadSnapshot(ctx, groupID)
	if err != nil {
		span.RecordError(err)
		return core.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	span.SetAttributes(
		attribute.Int("snapshot.members", len(snap.Members)),
		attribute.Int("snapshot.expenses", len(snap.Expenses)),
		attribute.Int("snapshot.chores", len(snap.Chores)))
	return snap, nil
}

func (s *ReconciliationService) compute(ctx context.Context, snap core.Snapshot) core.Report {
	_, span := s.tracer.Start(ctx, "reconcile.Reconcile")
	defer span.End()

	start := time.Now()
	r := reconcile.Reconcile(snap, s.now().UTC())
	span.SetAttributes(attribute.Int("report.settlements", len(r.Settlements)))

	s.logger.InfoContext(ctx, "Report computed",
		log.FieldGroupID, snap.GroupID,
		log.FieldFingerprint, int64(snap.Fingerprint),
		log.FieldMembers, len(snap.Members),
		log.FieldSettlements, len(r.Settlements),
		log.FieldDuration, time.Since(start).Milliseconds())
	return r
}

func (s *ReconciliationService) loadShared(ctx context.Context, groupID string, fp core.Fingerprint) (core.Report, bool) {
	if s.shared == nil {
		return core.Report{}, false
	}
	r, ok, err := s.shared.Load(ctx, groupID, fp)
	if err != nil {
		s.logger.WarnContext(ctx, "Shared cache read failed", log.FieldGroupID, groupID, log.FieldError, err)
		return core.Report{}, false
	}
	return r, ok
}

func (s *ReconciliationService) storeShared(ctx context.Context, r core.Report) {
	if s.shared == nil {
		return
	}
	if _, err := s.shared.Store(ctx, r.GroupID, r.Fingerprint, r); err != nil {
		s.logger.WarnContext(ctx, "Shared cache write failed", log.FieldGroupID, r.GroupID, log.FieldError, err)
	}
}
