package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/studiofoundry/backstage"
	"github.com/studiofoundry/backstage/internal/domain"
)

const (
	defaultStepTimeout = 15 * time.Second
	maxStepAttempts    = 3
)

// Step is one forward action of a staged operation, paired with the
// compensating action that undoes it. Compensate is nil for actions
// that cannot be undone (storage deletes). Forward actions must be
// idempotent: a caller may re-issue the whole operation after a failure
// without knowing whether the side effect landed.
type Step struct {
	Name       string
	Timeout    time.Duration
	Forward    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// StagedOperation is an ordered list of steps executed for one
// high-level request. It lives in memory only and is discarded after
// completion. Subject is the id of the thing being mutated; the caller
// holds it before dispatch, so progress subscriptions keyed on it catch
// the operation's events from the first step on.
type StagedOperation struct {
	ID      string
	Name    string
	Subject string
	Steps   []Step
}

func NewStagedOperation(name, subject string, steps ...Step) StagedOperation {
	return StagedOperation{
		ID:      uuid.NewString(),
		Name:    name,
		Subject: subject,
		Steps:   steps,
	}
}

// Runner executes staged operations: steps strictly in order, bounded
// retries for transient failures, and reverse-order compensation of the
// already-executed steps when a step fails for good. A compensation
// failure is terminal and surfaced as domain.CompensationError, never
// swallowed.
type Runner struct {
	progress ProgressPublisher
}

func NewRunner(progress ProgressPublisher) *Runner {
	return &Runner{progress: progress}
}

// Run executes op. Cancellation is honored only before the first step
// has been dispatched; once a forward action is in flight the operation
// runs to completion, compensation included, because leaf actions are
// not interruptible.
func (r *Runner) Run(ctx context.Context, op StagedOperation) (backstage.OperationResult, error) {
	result := backstage.OperationResult{OperationID: op.ID}
	total := len(op.Steps)

	select {
	case <-ctx.Done():
		return result, ctx.Err()
	default:
	}

	base := context.WithoutCancel(ctx)

	for i, step := range op.Steps {
		r.emit(base, r.event(op, step.Name, i, total, i*100/max(total, 1), backstage.StepStatusRunning, nil, false))

		attempts, err := r.runStep(base, op, step, i, total)
		report := backstage.StepReport{
			Name:     step.Name,
			Status:   backstage.StepStatusOK,
			Attempts: attempts,
		}

		if err != nil {
			report.Status = backstage.StepStatusFailed
			report.Error = err.Error()
			result.Steps = append(result.Steps, report)
			r.emit(base, r.event(op, step.Name, i, total, i*100/max(total, 1), backstage.StepStatusFailed, err, false))

			if cerr := r.compensate(base, op, i, &result); cerr != nil {
				result.Detail = cerr.Error()
				r.emit(base, r.event(op, step.Name, i, total, i*100/max(total, 1), backstage.StepStatusFailed, cerr, true))
				return result, cerr
			}

			result.Detail = err.Error()
			r.emit(base, r.event(op, step.Name, i, total, i*100/max(total, 1), backstage.StepStatusFailed, err, true))
			return result, err
		}

		result.Steps = append(result.Steps, report)
		r.emit(base, r.event(op, step.Name, i, total, (i+1)*100/max(total, 1), backstage.StepStatusOK, nil, i == total-1))
	}

	result.OK = true
	return result, nil
}

func (r *Runner) runStep(ctx context.Context, op StagedOperation, step Step, index, total int) (int, error) {
	timeout := step.Timeout
	if timeout == 0 {
		timeout = defaultStepTimeout
	}

	for attempt := 1; ; attempt++ {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		err := step.Forward(stepCtx)
		timedOut := errors.Is(stepCtx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil {
			return attempt, nil
		}

		// A timed-out forward action may or may not have landed; the
		// idempotent-step contract makes re-issuing it safe either way.
		if timedOut {
			err = domain.TransientError{Op: step.Name, Err: err}
		}

		if !errors.Is(err, domain.ErrTransient) || attempt >= maxStepAttempts {
			return attempt, err
		}

		slog.WarnContext(ctx, "step failed, retrying",
			slog.String("operation", op.Name),
			slog.String("step", step.Name),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
			slog.String("module", "coordinator"),
		)
		r.emit(ctx, r.event(op, step.Name, index, total, index*100/max(total, 1), backstage.StepStatusRetrying, err, false))
	}
}

// compensate undoes steps 0..failed-1 in reverse order. The first
// compensation failure stops the unwind and is returned; the stores are
// then in a degraded state that needs manual reconciliation.
func (r *Runner) compensate(ctx context.Context, op StagedOperation, failed int, result *backstage.OperationResult) error {
	total := len(op.Steps)

	for j := failed - 1; j >= 0; j-- {
		step := op.Steps[j]
		if step.Compensate == nil {
			continue
		}

		timeout := step.Timeout
		if timeout == 0 {
			timeout = defaultStepTimeout
		}

		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		err := step.Compensate(stepCtx)
		cancel()

		if err != nil {
			result.Steps[j].Error = err.Error()
			slog.ErrorContext(ctx, "compensation failed",
				slog.String("operation", op.Name),
				slog.String("step", step.Name),
				slog.String("error", err.Error()),
				slog.String("module", "coordinator"),
			)
			return domain.CompensationError{Step: step.Name, Err: err}
		}

		result.Steps[j].Status = backstage.StepStatusCompensated
		result.Steps[j].Compensated = true
		r.emit(ctx, r.event(op, step.Name, j, total, j*100/max(total, 1), backstage.StepStatusCompensated, nil, false))
	}

	return nil
}

func (r *Runner) event(op StagedOperation, step string, index, total, percent int, status string, err error, final bool) backstage.ProgressEvent {
	ev := backstage.ProgressEvent{
		OperationID: op.ID,
		Subject:     op.Subject,
		Operation:   op.Name,
		Step:        step,
		Index:       index,
		Total:       total,
		Percent:     percent,
		Status:      status,
		Final:       final,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

func (r *Runner) emit(ctx context.Context, ev backstage.ProgressEvent) {
	if r.progress == nil {
		return
	}
	if err := r.progress.Publish(ctx, ev); err != nil {
		slog.WarnContext(ctx, "failed to publish progress",
			slog.String("error", err.Error()),
			slog.String("module", "coordinator"),
		)
	}
}
