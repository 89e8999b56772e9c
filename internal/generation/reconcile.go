package generation

import (
	"time"

	"tasvir/internal/credits"
	"tasvir/internal/domain"
)

// EffectKind enumerates side effects that follow a settled transition.
type EffectKind int

const (
	EffectAppendHistory EffectKind = iota
	EffectRefund
)

// Effect is a mutation of the user document owed by a task transition. Every
// effect is idempotent at the store: history entries are keyed by id and
// refunds by task id.
type Effect struct {
	Kind   EffectKind
	UserID string
	TaskID string
	Mode   domain.TaskMode
	Amount int
	Entry  domain.HistoryEntry
}

// Reconcile applies outcome to task and returns the next record, the effects
// the transition owes and whether anything changed. It never touches Version;
// the store bumps it when the compare-and-set succeeds.
//
// A task that is terminal or already settled is returned unchanged, which is
// how repeated or stale deliveries are absorbed.
func Reconcile(task domain.Task, outcome Outcome, now time.Time) (domain.Task, []Effect, bool) {
	if task.Status.IsTerminal() || task.CreditsDeducted {
		return task, nil, false
	}

	next := task.Clone()
	switch outcome.Kind {
	case OutcomeSuccess:
		next.Status = domain.TaskStatusCompleted
		next.Images = cleanURLs(outcome.URLs)
		next.Error = ""
	case OutcomeFailure:
		next.Status = domain.TaskStatusFailed
		next.Error = outcome.Message
		if next.Error == "" {
			next.Error = defaultFailureMessage
		}
	default:
		if task.Status != domain.TaskStatusPending {
			return task, nil, false
		}
		next.Status = domain.TaskStatusProcessing
		next.UpdatedAt = now
		return next, nil, true
	}

	at := now
	next.CompletedAt = &at
	next.UpdatedAt = now
	credits.Settle(&next)
	return next, EffectsFor(next), true
}

// EffectsFor lists the effects owed by a settled task. It is used by
// Reconcile and by operator replays after a partially applied settlement.
func EffectsFor(task domain.Task) []Effect {
	if !task.CreditsDeducted {
		return nil
	}
	switch task.Status {
	case domain.TaskStatusCompleted:
		ts := task.UpdatedAt
		if task.CompletedAt != nil {
			ts = *task.CompletedAt
		}
		effects := make([]Effect, 0, len(task.Images))
		for i, url := range task.Images {
			effects = append(effects, Effect{
				Kind:   EffectAppendHistory,
				UserID: task.UserID,
				TaskID: task.ID,
				Mode:   task.Mode,
				Entry: domain.HistoryEntry{
					ID:        domain.HistoryEntryID(task.ID, i),
					URL:       url,
					Prompt:    task.Prompt,
					TaskID:    task.ID,
					Timestamp: ts,
				},
			})
		}
		return effects
	case domain.TaskStatusFailed:
		if task.CreditsReserved <= 0 {
			return nil
		}
		return []Effect{{
			Kind:   EffectRefund,
			UserID: task.UserID,
			TaskID: task.ID,
			Mode:   task.Mode,
			Amount: task.CreditsReserved,
		}}
	default:
		return nil
	}
}
