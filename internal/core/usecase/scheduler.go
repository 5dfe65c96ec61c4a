package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/care-assistant/internal/core/domain"
	"github.com/kirillkom/care-assistant/internal/core/ports"
)

// SchedulerObserver receives run and per-item outcomes.
type SchedulerObserver interface {
	ObserveItem(kind domain.DueKind, outcome domain.ItemOutcome)
	ObserveRun(result *domain.SchedulerRunResult, duration time.Duration, err error)
}

type SchedulerOptions struct {
	Intervals   domain.SchedulerIntervals
	Concurrency int
	Lock        ports.RunLock
	Logger      *slog.Logger
	Observer    SchedulerObserver
	Now         func() time.Time
	NewID       func() string
}

// Scheduler discovers due recalls, check-ins and pending tasks and acts on
// each one at most once per due occurrence. Runs never overlap within a
// process; Lock extends the guarantee across processes.
type Scheduler struct {
	store       ports.RecordStore
	notifier    ports.ActionNotifier
	intervals   domain.SchedulerIntervals
	concurrency int
	lock        ports.RunLock
	logger      *slog.Logger
	observer    SchedulerObserver
	now         func() time.Time
	newID       func() string

	running sync.Mutex
}

func NewScheduler(store ports.RecordStore, notifier ports.ActionNotifier, opts SchedulerOptions) *Scheduler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Scheduler{
		store:       store,
		notifier:    notifier,
		intervals:   opts.Intervals,
		concurrency: opts.Concurrency,
		lock:        opts.Lock,
		logger:      opts.Logger,
		observer:    opts.Observer,
		now:         opts.Now,
		newID:       opts.NewID,
	}
}

type itemResult struct {
	outcome domain.ItemOutcome
	reason  string
}

// errItemFatal marks a per-item error that must abort the whole run.
type errItemFatal struct {
	err error
}

func (e *errItemFatal) Error() string { return e.err.Error() }
func (e *errItemFatal) Unwrap() error { return e.err }

// errItemNotReached reports an item interrupted by run cancellation before
// its occurrence was claimed. It counts towards Remaining.
var errItemNotReached = errors.New("item not reached")

func (s *Scheduler) RunFullScheduler(ctx context.Context) (*domain.SchedulerRunResult, error) {
	if !s.running.TryLock() {
		return nil, domain.WrapError(domain.ErrRunInProgress, "run scheduler", errors.New("a run is active in this process"))
	}
	defer s.running.Unlock()

	start := time.Now()
	now := s.now().UTC()
	result := &domain.SchedulerRunResult{
		RunID:     s.newID(),
		StartedAt: now,
		Failures:  []domain.ItemFailure{},
	}

	if s.lock != nil {
		release, acquired, err := s.lock.TryAcquire(ctx)
		if err != nil {
			return s.fatal(result, start, domain.WrapError(domain.ErrStoreUnavailable, "acquire run lock", err))
		}
		if !acquired {
			return nil, domain.WrapError(domain.ErrRunInProgress, "run scheduler", errors.New("a run is active in another process"))
		}
		defer release()
	}

	items, err := s.discover(ctx, now)
	if err != nil {
		return s.fatal(result, start, err)
	}
	s.logger.Info("scheduler_run_started", "run_id", result.RunID, "due_items", len(items))

	outcomes := make([]*itemResult, len(items))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)
	for i, item := range items {
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return nil
			}
			res, err := s.process(groupCtx, result.RunID, item, now)
			if errors.Is(err, errItemNotReached) {
				return nil
			}
			outcomes[i] = &res
			var fatal *errItemFatal
			if errors.As(err, &fatal) {
				return fatal.err
			}
			return nil
		})
	}
	runErr := group.Wait()

	for i, res := range outcomes {
		if res == nil {
			result.Remaining++
			continue
		}
		result.Record(items[i], res.outcome, res.reason)
		if s.observer != nil {
			s.observer.ObserveItem(items[i].Kind, res.outcome)
		}
		if res.outcome == domain.OutcomeFailed {
			s.logger.Warn("scheduler_item_failed",
				"run_id", result.RunID,
				"kind", items[i].Kind,
				"record_id", items[i].RecordID,
				"reason", res.reason,
			)
		}
	}
	result.FinishedAt = s.now().UTC()

	if runErr == nil && result.Remaining > 0 && ctx.Err() != nil {
		runErr = domain.WrapError(domain.ErrTemporary, "run scheduler", fmt.Errorf("run interrupted: %w", ctx.Err()))
	}
	if runErr != nil {
		result.Aborted = true
		result.FatalError = runErr.Error()
		s.logger.Error("scheduler_run_aborted", "run_id", result.RunID, "error", runErr, "remaining", result.Remaining)
		s.observeRun(result, start, runErr)
		return result, runErr
	}

	s.logger.Info("scheduler_run_finished",
		"run_id", result.RunID,
		"considered", result.Considered,
		"acted", result.Acted,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	s.observeRun(result, start, nil)
	return result, nil
}

func (s *Scheduler) fatal(result *domain.SchedulerRunResult, start time.Time, err error) (*domain.SchedulerRunResult, error) {
	result.FinishedAt = s.now().UTC()
	result.FatalError = err.Error()
	s.logger.Error("scheduler_run_failed", "run_id", result.RunID, "error", err)
	s.observeRun(result, start, err)
	return result, err
}

func (s *Scheduler) observeRun(result *domain.SchedulerRunResult, start time.Time, err error) {
	if s.observer != nil {
		s.observer.ObserveRun(result, time.Since(start), err)
	}
}

// discover lists due items in a fixed order: recalls, check-ins, pending
// tasks. Duplicate records are considered once.
func (s *Scheduler) discover(ctx context.Context, now time.Time) ([]domain.DueItem, error) {
	calls, err := s.store.QueryDueRecalls(ctx, now, s.intervals.Recall)
	if err != nil {
		return nil, storeFatal("query due recalls", err)
	}
	checkIns, err := s.store.QueryDueCheckIns(ctx, now)
	if err != nil {
		return nil, storeFatal("query due check-ins", err)
	}
	tasks, err := s.store.QueryPendingTasks(ctx, now)
	if err != nil {
		return nil, storeFatal("query pending tasks", err)
	}

	items := make([]domain.DueItem, 0, len(calls)+len(checkIns)+len(tasks))
	seen := make(map[string]struct{}, cap(items))
	add := func(item domain.DueItem) {
		if _, dup := seen[item.Key()]; dup {
			return
		}
		seen[item.Key()] = struct{}{}
		items = append(items, item)
	}
	for _, call := range calls {
		add(domain.DueItem{
			Kind:       domain.DueRecall,
			RecordKind: domain.RecordCall,
			RecordID:   call.ID,
			DueAt:      call.LastContactAt.Add(s.intervals.Recall),
		})
	}
	for _, checkIn := range checkIns {
		add(domain.DueItem{
			Kind:       domain.DueCheckIn,
			RecordKind: checkIn.Kind,
			RecordID:   checkIn.RecordID,
			DueAt:      checkIn.CheckInAt,
		})
	}
	for _, task := range tasks {
		dueAt := task.CreatedAt
		if task.DueAt != nil {
			dueAt = *task.DueAt
		}
		add(domain.DueItem{
			Kind:       domain.DuePendingTask,
			RecordKind: domain.RecordTask,
			RecordID:   task.ID,
			DueAt:      dueAt,
		})
	}
	return items, nil
}

func storeFatal(operation string, err error) error {
	if domain.IsKind(err, domain.ErrStoreUnavailable) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return domain.WrapError(domain.ErrStoreUnavailable, operation, err)
}

// process handles one due item. The returned error is non-nil only when the
// run has to stop; it is then an *errItemFatal.
func (s *Scheduler) process(ctx context.Context, runID string, item domain.DueItem, now time.Time) (res itemResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = itemResult{outcome: domain.OutcomeFailed, reason: fmt.Sprintf("panic: %v", r)}
			err = nil
		}
	}()

	due, err := s.isDue(ctx, item, now)
	if err != nil {
		if interrupted(ctx, err) {
			return itemResult{}, errItemNotReached
		}
		return s.itemError("reload before action", err)
	}
	if !due {
		return itemResult{outcome: domain.OutcomeSkipped, reason: "not due"}, nil
	}

	claimed, err := s.act(ctx, runID, item, now)
	if err != nil {
		if !claimed && interrupted(ctx, err) {
			return itemResult{}, errItemNotReached
		}
		return s.itemError("action", err)
	}

	due, err = s.isDue(ctx, item, now)
	if err != nil {
		return s.itemError("reload after action", err)
	}
	if due {
		return itemResult{outcome: domain.OutcomeFailed, reason: "still due after action"}, nil
	}
	return itemResult{outcome: domain.OutcomeActed}, nil
}

func (s *Scheduler) itemError(stage string, err error) (itemResult, error) {
	res := itemResult{outcome: domain.OutcomeFailed, reason: fmt.Sprintf("%s: %v", stage, err)}
	if domain.IsKind(err, domain.ErrRecordNotFound) && stage == "reload before action" {
		return itemResult{outcome: domain.OutcomeSkipped, reason: "record no longer exists"}, nil
	}
	if domain.IsKind(err, domain.ErrStoreUnavailable) {
		return res, &errItemFatal{err: fmt.Errorf("%s: %w", stage, err)}
	}
	return res, nil
}

func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// isDue recomputes due-status from the stored record.
func (s *Scheduler) isDue(ctx context.Context, item domain.DueItem, now time.Time) (bool, error) {
	switch item.RecordKind {
	case domain.RecordCall:
		call, err := s.store.GetCall(ctx, item.RecordID)
		if err != nil {
			return false, err
		}
		return call.RecallDue(now, s.intervals.Recall), nil
	case domain.RecordTriage:
		record, err := s.store.GetTriageRecord(ctx, item.RecordID)
		if err != nil {
			return false, err
		}
		return record.CheckInDue(now), nil
	case domain.RecordAppointment:
		appointment, err := s.store.GetAppointment(ctx, item.RecordID)
		if err != nil {
			return false, err
		}
		return appointment.CheckInDue(now), nil
	case domain.RecordTask:
		task, err := s.store.GetTask(ctx, item.RecordID)
		if err != nil {
			return false, err
		}
		return task.Due(now), nil
	default:
		return false, fmt.Errorf("unsupported record kind %q", item.RecordKind)
	}
}

// act persists the action first, claiming the occurrence, then hands the
// event to the notifier. claimed reports whether the claim was stored.
func (s *Scheduler) act(ctx context.Context, runID string, item domain.DueItem, now time.Time) (claimed bool, err error) {
	event := domain.ActionEvent{
		RunID:      runID,
		Kind:       item.Kind,
		RecordKind: item.RecordKind,
		RecordID:   item.RecordID,
		At:         now,
	}

	switch item.Kind {
	case domain.DueRecall:
		if err := s.store.RecordRecall(ctx, item.RecordID, now); err != nil {
			return false, fmt.Errorf("record recall: %w", err)
		}
		event.Detail = "recall contact initiated"
	case domain.DueCheckIn:
		if err := s.store.MarkCompleted(ctx, item.RecordID, item.RecordKind, now); err != nil {
			return false, fmt.Errorf("complete check-in: %w", err)
		}
		event.Detail = "check-in completed"
	case domain.DuePendingTask:
		task, err := s.store.GetTask(ctx, item.RecordID)
		if err != nil {
			return false, fmt.Errorf("load task: %w", err)
		}
		if err := s.store.MarkCompleted(ctx, item.RecordID, domain.RecordTask, now); err != nil {
			return false, fmt.Errorf("resolve task: %w", err)
		}
		event.Detail = task.Kind
	default:
		return false, fmt.Errorf("unsupported due kind %q", item.Kind)
	}

	if s.notifier != nil {
		if err := s.notifier.PublishAction(ctx, event); err != nil {
			return true, fmt.Errorf("publish %s action: %w", item.Kind, err)
		}
	}
	return true, nil
}
