package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"tasvir/internal/domain"
)

const (
	// TypePoll is the asynq task type for scheduled provider status checks.
	TypePoll = "generation:poll"

	PollQueue       = "generation"
	MaxPollAttempts = 20
	pollStep        = 15 * time.Second
	maxPollDelay    = 2 * time.Minute
)

// Queue schedules provider status checks for a task.
type Queue interface {
	SchedulePoll(ctx context.Context, taskID string, attempt int, delay time.Duration) error
}

// NoopQueue drops every request. Used when no Redis is configured; the
// stale sweep and client polling still reconcile tasks.
type NoopQueue struct{}

func (NoopQueue) SchedulePoll(context.Context, string, int, time.Duration) error { return nil }

// PollPayload is the JSON body of a TypePoll task.
type PollPayload struct {
	TaskID  string `json:"task_id"`
	Attempt int    `json:"attempt"`
}

// AsynqQueue enqueues poll tasks on Redis through asynq.
type AsynqQueue struct {
	client *asynq.Client
	queue  string
}

// NewAsynqQueue connects an asynq client to redisOpt.
func NewAsynqQueue(redisOpt asynq.RedisClientOpt) *AsynqQueue {
	return &AsynqQueue{client: asynq.NewClient(redisOpt), queue: PollQueue}
}

// SchedulePoll enqueues a status check for taskID after delay. Each
// (task, attempt) pair is enqueued at most once.
func (q *AsynqQueue) SchedulePoll(ctx context.Context, taskID string, attempt int, delay time.Duration) error {
	if q.client == nil {
		return errors.New("nil asynq client")
	}
	body, err := json.Marshal(PollPayload{TaskID: taskID, Attempt: attempt})
	if err != nil {
		return err
	}
	t := asynq.NewTask(TypePoll, body)
	_, err = q.client.EnqueueContext(ctx, t,
		asynq.Queue(q.queue),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(3),
		asynq.TaskID(fmt.Sprintf("poll:%s:%d", taskID, attempt)),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func (q *AsynqQueue) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

// PollDelay is the wait before the given poll attempt.
func PollDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(attempt) * pollStep
	if d > maxPollDelay {
		return maxPollDelay
	}
	return d
}

// HandlePollTask reconciles one task from the queue path and schedules the
// next attempt while the task stays open.
func (s *Service) HandlePollTask(ctx context.Context, t *asynq.Task) error {
	var p PollPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode poll payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.TaskID == "" {
		return fmt.Errorf("poll payload without task id: %w", asynq.SkipRetry)
	}
	task, err := s.tasks.GetByID(ctx, p.TaskID)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) || errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("poll %s: %v: %w", p.TaskID, err, asynq.SkipRetry)
		}
		return err
	}
	updated, err := s.refresh(ctx, task, PathQueue)
	if err != nil {
		return err
	}
	if updated.Status.IsTerminal() || updated.CreditsDeducted {
		return nil
	}
	if p.Attempt >= MaxPollAttempts {
		s.logger.Warn().Str("task_id", updated.ID).Int("attempt", p.Attempt).Msg("generation: poll budget exhausted, leaving task to the sweeper")
		return nil
	}
	next := p.Attempt + 1
	return s.queue.SchedulePoll(ctx, updated.ID, next, PollDelay(next))
}

// RegisterHandlers binds the generation task types on mux.
func (s *Service) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypePoll, s.HandlePollTask)
}
