package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"conti/internal/amqp"
	"conti/internal/core"
	"conti/internal/log"
	"conti/internal/sheets"
	"conti/internal/storage"
)

// Reconciler recomputes group reports and resolves member names.
type Reconciler interface {
	Recompute(ctx context.Context, groupID string) (core.Report, error)
	GetGroup(ctx context.Context, groupID string) (core.Group, error)
	MemberNames(ctx context.Context, groupID string) (map[string]string, error)
}

// Notifier posts a short report summary to a chat channel.
type Notifier interface {
	NotifyReport(ctx context.Context, r core.Report, groupName string, names map[string]string) error
}

// Consumer delivers group changed messages until ctx is cancelled.
type Consumer interface {
	ConsumeGroupChanges(ctx context.Context, handler amqp.Handler) error
}

// SyncWorker turns group changed messages into fresh reports and pushes them
// to the configured sinks. Both sinks are optional.
type SyncWorker struct {
	reconciler Reconciler
	exporter   sheets.ReportExporter
	notifier   Notifier
	logger     *log.Logger

	// delivered holds the newest fingerprint pushed to the sinks per group,
	// so redelivered or stale messages do not export the same plan twice.
	deliveredMu sync.Mutex
	delivered   map[string]core.Fingerprint

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

type Option func(*SyncWorker)

func WithExporter(e sheets.ReportExporter) Option {
	return func(w *SyncWorker) { w.exporter = e }
}

func WithNotifier(n Notifier) Option {
	return func(w *SyncWorker) { w.notifier = n }
}

func WithLogger(l *log.Logger) Option {
	return func(w *SyncWorker) { w.logger = l }
}

func NewSyncWorker(reconciler Reconciler, opts ...Option) *SyncWorker {
	w := &SyncWorker{
		reconciler: reconciler,
		delivered:  make(map[string]core.Fingerprint),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = log.New(log.DefaultConfig())
	}
	w.logger = w.logger.WithComponent(log.ComponentWorker)
	return w
}

// HandleGroupChanged recomputes the group's report from its current
// snapshot, whatever fingerprint the message carries, and delivers it.
// An export failure is returned so the message is requeued; a failed chat
// notification is only logged.
func (w *SyncWorker) HandleGroupChanged(ctx context.Context, msg *amqp.GroupChangedMessage) error {
	w.logger.InfoContext(ctx, "Processing group changed message",
		log.FieldGroupID, msg.GroupID,
		log.FieldFingerprint, msg.Fingerprint)

	report, err := w.reconciler.Recompute(ctx, msg.GroupID)
	if errors.Is(err, storage.ErrGroupNotFound) {
		w.logger.WarnContext(ctx, "Dropping message for unknown group", log.FieldGroupID, msg.GroupID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("recompute report: %w", err)
	}

	if int64(report.Fingerprint) < msg.Fingerprint {
		// The snapshot read is older than the announced write; retry later.
		return fmt.Errorf("snapshot %d behind announced fingerprint %d", report.Fingerprint, msg.Fingerprint)
	}

	if w.exporter == nil && w.notifier == nil {
		return nil
	}
	if !w.newer(msg.GroupID, report.Fingerprint) {
		w.logger.DebugContext(ctx, "Report already delivered",
			log.FieldGroupID, msg.GroupID,
			log.FieldFingerprint, int64(report.Fingerprint))
		return nil
	}

	names, err := w.reconciler.MemberNames(ctx, msg.GroupID)
	if err != nil {
		return fmt.Errorf("load member names: %w", err)
	}

	if w.exporter != nil {
		if err := w.exporter.ExportReport(ctx, report, names); err != nil {
			return fmt.Errorf("export report: %w", err)
		}
		w.logger.InfoContext(ctx, "Exported report",
			log.FieldOperation, log.OpExport,
			log.FieldGroupID, msg.GroupID,
			log.FieldSettlements, len(report.Settlements))
	}

	if w.notifier != nil {
		w.notify(ctx, report, names)
	}

	w.markDelivered(msg.GroupID, report.Fingerprint)
	return nil
}

func (w *SyncWorker) notify(ctx context.Context, report core.Report, names map[string]string) {
	groupName := report.GroupID
	if g, err := w.reconciler.GetGroup(ctx, report.GroupID); err == nil {
		groupName = g.Name
	}
	if err := w.notifier.NotifyReport(ctx, report, groupName, names); err != nil {
		w.logger.ErrorContext(ctx, "Failed to notify report",
			log.FieldOperation, log.OpNotify,
			log.FieldGroupID, report.GroupID,
			log.FieldError, err)
		return
	}
	w.logger.InfoContext(ctx, "Notified report",
		log.FieldOperation, log.OpNotify,
		log.FieldGroupID, report.GroupID)
}

func (w *SyncWorker) newer(groupID string, fp core.Fingerprint) bool {
	w.deliveredMu.Lock()
	defer w.deliveredMu.Unlock()
	last, ok := w.delivered[groupID]
	return !ok || fp > last
}

func (w *SyncWorker) markDelivered(groupID string, fp core.Fingerprint) {
	w.deliveredMu.Lock()
	defer w.deliveredMu.Unlock()
	if fp > w.delivered[groupID] {
		w.delivered[groupID] = fp
	}
}

// Start consumes messages in the background. Returns an error if already
// running.
func (w *SyncWorker) Start(ctx context.Context, consumer Consumer) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("sync worker is already running")
	}
	w.running = true
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	w.stopCh, w.doneCh = stopCh, doneCh
	w.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-runCtx.Done():
		}
	}()
	go w.run(runCtx, cancel, consumer, doneCh)

	w.logger.InfoContext(ctx, "Sync worker started")
	return nil
}

func (w *SyncWorker) run(ctx context.Context, cancel context.CancelFunc, consumer Consumer, doneCh chan struct{}) {
	defer close(doneCh)
	defer cancel()

	err := consumer.ConsumeGroupChanges(ctx, w.HandleGroupChanged)
	if err != nil && !errors.Is(err, context.Canceled) {
		w.logger.ErrorContext(ctx, "Message consumption failed", log.FieldError, err)
	}
}

// Stop cancels consumption and waits for the in-flight message to finish.
func (w *SyncWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	doneCh := w.doneCh
	w.mu.Unlock()

	select {
	case <-doneCh:
		w.logger.InfoContext(ctx, "Sync worker stopped gracefully")
	case <-ctx.Done():
		w.logger.WarnContext(ctx, "Sync worker stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

// IsRunning returns whether the worker is consuming.
func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Done is closed once consumption has ended, either through Stop or
// because the consumer returned.
func (w *SyncWorker) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.doneCh
}
