// Package generation owns the credit-metered generation workflow: submission
// with pessimistic credit reservation, and reconciliation of provider status
// updates arriving by webhook, client poll or background sweep.
package generation

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"tasvir/internal/credits"
	"tasvir/internal/domain"
	"tasvir/internal/infra"
	"tasvir/internal/metrics"
	"tasvir/internal/textnorm"
)

const (
	MaxPromptRunes      = 2000
	maxApplyAttempts    = 3
	staleSweepLimit     = 100
	firstPollDelay      = 20 * time.Second
	maxErrorMessage     = 500
	compensationTimeout = 30 * time.Second

	orphanMessage = "provider task was never created"
)

// ErrSettlementIncomplete reports a settled task whose history or refund did
// not reach the user record yet. The task stays listed for the stale sweep
// until the effects land.
var ErrSettlementIncomplete = errors.New("settlement effects incomplete")

// Delivery paths, used as metric labels and log fields.
const (
	PathWebhook = "webhook"
	PathPoll    = "poll"
	PathQueue   = "queue"
	PathSweep   = "sweep"
	PathSubmit  = "submit"
	PathReplay  = "replay"
)

// CreateRequest is what the provider needs to start a job.
type CreateRequest struct {
	Prompt      string
	NumImages   int
	Mode        domain.TaskMode
	ImageURLs   []string
	CallbackURL string
}

// Provider is the external generation API.
type Provider interface {
	CreateTask(ctx context.Context, req CreateRequest) (string, error)
	GetTaskStatus(ctx context.Context, mode domain.TaskMode, providerTaskID string) (StatusPayload, error)
}

// CreditLedger is the subset of the credit ledger used by the workflow.
type CreditLedger interface {
	Reserve(ctx context.Context, userID string, amount int) (int, error)
	Refund(ctx context.Context, userID, taskID string, amount int) (bool, error)
}

// HistoryAppender records finished assets on the user document.
type HistoryAppender interface {
	AppendHistory(ctx context.Context, userID string, mode domain.TaskMode, entry domain.HistoryEntry) error
}

// SubmitRequest is a validated-on-entry generation request.
type SubmitRequest struct {
	UserID    string
	Prompt    string
	NumImages int
	Mode      domain.TaskMode
	ImageURLs []string
}

// SubmitResult reports the created task and the balance after reservation.
type SubmitResult struct {
	Task             *domain.Task
	RemainingCredits int
}

// Options configures a Service.
type Options struct {
	Tasks          domain.TaskRepository
	Credits        CreditLedger
	History        HistoryAppender
	Provider       Provider
	Queue          Queue
	Logger         *infra.Logger
	CallbackBase   string
	CallbackSecret string
	Now            func() time.Time
}

// Service runs the generation workflow.
type Service struct {
	tasks          domain.TaskRepository
	credits        CreditLedger
	history        HistoryAppender
	provider       Provider
	queue          Queue
	logger         *infra.Logger
	callbackBase   string
	callbackSecret []byte
	now            func() time.Time
}

// NewService validates opts and builds a Service.
func NewService(opts Options) (*Service, error) {
	if opts.Tasks == nil || opts.Credits == nil || opts.History == nil || opts.Provider == nil {
		return nil, errors.New("generation: tasks, credits, history and provider are required")
	}
	queue := opts.Queue
	if queue == nil {
		queue = NoopQueue{}
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		tasks:          opts.Tasks,
		credits:        opts.Credits,
		history:        opts.History,
		provider:       opts.Provider,
		queue:          queue,
		logger:         logger,
		callbackBase:   strings.TrimRight(opts.CallbackBase, "/"),
		callbackSecret: []byte(opts.CallbackSecret),
		now:            now,
	}, nil
}

// SetQueue swaps the poll queue. The worker wires itself after construction.
func (s *Service) SetQueue(q Queue) {
	if q == nil {
		q = NoopQueue{}
	}
	s.queue = q
}

// Submit reserves credits, records a pending task and hands it to the
// provider. A provider failure after reservation fails the task and refunds
// the reservation before the error is returned.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	ctx, span := otel.Tracer("generation").Start(ctx, "generation.submit")
	defer span.End()

	if err := normalizeSubmit(&req); err != nil {
		metrics.SubmissionsRejected.WithLabelValues("validation").Inc()
		return nil, err
	}
	cost := credits.CostFor(req.Mode, req.NumImages)
	span.SetAttributes(
		attribute.String("generation.mode", string(req.Mode)),
		attribute.Int("generation.num_images", req.NumImages),
		attribute.Int("generation.cost", cost),
	)

	remaining, err := s.credits.Reserve(ctx, req.UserID, cost)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			metrics.SubmissionsRejected.WithLabelValues("insufficient_credits").Inc()
		}
		return nil, err
	}

	now := s.now().UTC()
	task := &domain.Task{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		Mode:            req.Mode,
		Prompt:          req.Prompt,
		NumImages:       req.NumImages,
		ImageURLs:       req.ImageURLs,
		Status:          domain.TaskStatusPending,
		CreditsReserved: cost,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	log := s.logger.With().Str("task_id", task.ID).Str("user_id", task.UserID).Logger()

	if err := s.tasks.Create(ctx, task); err != nil {
		// No task record exists yet, so the reservation is returned directly.
		cctx, cancel := detached(ctx)
		defer cancel()
		if _, refundErr := s.credits.Refund(cctx, req.UserID, task.ID, cost); refundErr != nil {
			log.Error().Err(refundErr).Msg("generation: refund after failed create")
		}
		return nil, fmt.Errorf("create task: %w", err)
	}

	providerTaskID, err := s.provider.CreateTask(ctx, CreateRequest{
		Prompt:      task.Prompt,
		NumImages:   task.NumImages,
		Mode:        task.Mode,
		ImageURLs:   task.ImageURLs,
		CallbackURL: s.CallbackURL(task.ID),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider create failed")
		metrics.SubmissionsRejected.WithLabelValues("provider").Inc()
		log.Warn().Err(err).Msg("generation: provider rejected task, compensating")
		cctx, cancel := detached(ctx)
		defer cancel()
		if _, applyErr := s.apply(cctx, task, Outcome{Kind: OutcomeFailure, Message: providerMessage(err)}, PathSubmit); applyErr != nil {
			// The task stays pending without a provider id; the stale sweep
			// fails it and refunds the reservation.
			log.Error().Err(applyErr).Msg("generation: compensation failed")
		}
		if errors.Is(err, domain.ErrProviderUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}

	// The provider owns the job from here on, so a client disconnect must not
	// drop the correlation.
	bg, cancel := detached(ctx)
	defer cancel()
	attached, err := s.tasks.AttachProviderTask(bg, task.ID, providerTaskID)
	if err != nil {
		// The signed callback URL still carries the local id, so the webhook can
		// recover the correlation.
		log.Error().Err(err).Str("provider_task_id", providerTaskID).Msg("generation: attach provider task failed")
		task.ProviderTaskID = providerTaskID
		attached = task
	}

	if err := s.queue.SchedulePoll(bg, attached.ID, 1, firstPollDelay); err != nil {
		log.Warn().Err(err).Msg("generation: schedule poll failed")
	}
	metrics.TasksSubmitted.WithLabelValues(string(attached.Mode)).Inc()
	log.Info().Str("provider_task_id", providerTaskID).Int("credits_reserved", cost).Msg("generation: task submitted")
	return &SubmitResult{Task: attached, RemainingCredits: remaining}, nil
}

// HandleCallback applies a webhook payload. localID comes from the signed
// callback URL and may be empty, in which case the provider task id is the
// only correlation key and the payload itself is not trusted: the status is
// fetched from the provider instead.
func (s *Service) HandleCallback(ctx context.Context, localID string, payload StatusPayload) (*domain.Task, error) {
	ctx, span := otel.Tracer("generation").Start(ctx, "generation.callback")
	defer span.End()

	var (
		task *domain.Task
		err  error
	)
	switch {
	case localID != "":
		task, err = s.tasks.GetByID(ctx, localID)
		if err != nil {
			return nil, err
		}
		if payload.ProviderTaskID != "" {
			if task.ProviderTaskID == "" {
				if task, err = s.tasks.AttachProviderTask(ctx, task.ID, payload.ProviderTaskID); err != nil {
					return nil, fmt.Errorf("attach provider task: %w", err)
				}
			} else if task.ProviderTaskID != payload.ProviderTaskID {
				return nil, domain.NewValidationError("task_id", "does not match callback target")
			}
		}
	case payload.ProviderTaskID != "":
		task, err = s.tasks.GetByProviderTaskID(ctx, payload.ProviderTaskID)
		if err != nil {
			return nil, err
		}
		if !task.CreditsDeducted {
			confirmed, lookupErr := s.provider.GetTaskStatus(ctx, task.Mode, task.ProviderTaskID)
			if lookupErr != nil {
				return nil, fmt.Errorf("confirm unsigned callback for %s: %w", task.ID, lookupErr)
			}
			payload = confirmed
		}
	default:
		return nil, domain.NewValidationError("task_id", "required")
	}
	span.SetAttributes(attribute.String("generation.task_id", task.ID))
	return s.apply(ctx, task, Classify(payload), PathWebhook)
}

// Get returns a task owned by userID.
func (s *Service) Get(ctx context.Context, userID, taskID string) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.UserID != userID {
		return nil, domain.ErrTaskNotFound
	}
	return task, nil
}

// List returns the user's most recent tasks.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]domain.Task, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.tasks.ListByUser(ctx, userID, limit)
}

// Refresh is the client poll path: a non-terminal task owned by userID is
// re-checked with the provider before it is returned. Provider errors leave
// the last known record in place, and unfinished settlement effects are left
// to the stale sweep.
func (s *Service) Refresh(ctx context.Context, userID, taskID string) (*domain.Task, error) {
	task, err := s.Get(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	updated, err := s.refresh(ctx, task, PathPoll)
	if errors.Is(err, ErrSettlementIncomplete) {
		return updated, nil
	}
	return updated, err
}

func (s *Service) refresh(ctx context.Context, task *domain.Task, path string) (*domain.Task, error) {
	if task.Status.IsTerminal() || task.CreditsDeducted {
		return s.settle(ctx, task, path)
	}
	if task.ProviderTaskID == "" {
		return task, nil
	}
	payload, err := s.provider.GetTaskStatus(ctx, task.Mode, task.ProviderTaskID)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("task_id", task.ID).
			Str("provider_task_id", task.ProviderTaskID).
			Str("path", path).
			Msg("generation: provider status lookup failed")
		return task, nil
	}
	return s.apply(ctx, task, Classify(payload), path)
}

// SweepStale re-checks tasks that have not moved for olderThan: open tasks
// whose callback never arrived and whose owner stopped polling, settled tasks
// whose effects did not all land, and pending tasks that never got a provider
// id, which are failed and refunded.
func (s *Service) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().UTC().Add(-olderThan)
	tasks, err := s.tasks.ListStale(ctx, cutoff, staleSweepLimit)
	if err != nil {
		return 0, fmt.Errorf("list stale tasks: %w", err)
	}
	settled := 0
	for i := range tasks {
		if err := ctx.Err(); err != nil {
			return settled, err
		}
		task := &tasks[i]
		var updated *domain.Task
		if task.Status == domain.TaskStatusPending && task.ProviderTaskID == "" {
			updated, err = s.apply(ctx, task, Outcome{Kind: OutcomeFailure, Message: orphanMessage}, PathSweep)
		} else {
			updated, err = s.refresh(ctx, task, PathSweep)
		}
		if err != nil {
			s.logger.Error().Err(err).Str("task_id", tasks[i].ID).Msg("generation: sweep reconcile failed")
			continue
		}
		if updated.Status.IsTerminal() {
			settled++
		}
	}
	return settled, nil
}

// ReplayEffects re-runs the side effects of a settled task even when they are
// flagged as applied. Effects are idempotent and history entries the user
// deleted stay deleted, so this is safe at any time.
func (s *Service) ReplayEffects(ctx context.Context, taskID string) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !task.CreditsDeducted {
		return task, nil
	}
	task.EffectsApplied = false
	return s.settle(ctx, task, PathReplay)
}

// apply reconciles outcome into task with a version compare-and-set. When
// another path wins the race the record is reloaded and reconciled again,
// which turns the losing delivery into a no-op.
func (s *Service) apply(ctx context.Context, task *domain.Task, outcome Outcome, path string) (*domain.Task, error) {
	current := task
	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		next, _, changed := Reconcile(*current, outcome, s.now().UTC())
		if !changed {
			if current.CreditsDeducted && outcome.Kind != OutcomeInProgress {
				metrics.DuplicateDeliveries.WithLabelValues(path).Inc()
				s.logger.Debug().Str("task_id", current.ID).Str("path", path).Msg("generation: duplicate delivery absorbed")
			}
			// A redelivery finishes effects a previous delivery left behind.
			return s.settle(ctx, current, path)
		}
		stored, err := s.tasks.Update(ctx, &next, current.Version)
		if errors.Is(err, domain.ErrVersionConflict) {
			metrics.VersionConflicts.Inc()
			reloaded, getErr := s.tasks.GetByID(ctx, current.ID)
			if getErr != nil {
				return nil, fmt.Errorf("reload task %s: %w", current.ID, getErr)
			}
			current = reloaded
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update task %s: %w", current.ID, err)
		}

		metrics.Reconciliations.WithLabelValues(path, outcome.Kind.String()).Inc()
		s.logger.Info().
			Str("task_id", stored.ID).
			Str("provider_task_id", stored.ProviderTaskID).
			Str("status", string(stored.Status)).
			Str("path", path).
			Int("version", stored.Version).
			Msg("generation: task transitioned")
		return s.settle(ctx, stored, path)
	}
	return nil, fmt.Errorf("reconcile task %s: %w", task.ID, domain.ErrVersionConflict)
}

// settle runs the effects owed by a settled task and flags them as applied.
// Open tasks and tasks whose effects already landed pass through unchanged.
// On failure the task is returned together with ErrSettlementIncomplete.
func (s *Service) settle(ctx context.Context, task *domain.Task, path string) (*domain.Task, error) {
	if !task.CreditsDeducted || task.EffectsApplied {
		return task, nil
	}
	if err := s.runEffects(ctx, EffectsFor(*task)); err != nil {
		metrics.SettlementsIncomplete.WithLabelValues(path).Inc()
		s.logger.Error().Err(err).Str("task_id", task.ID).Str("path", path).Msg("generation: settlement effects incomplete")
		return task, fmt.Errorf("%w: task %s: %w", ErrSettlementIncomplete, task.ID, err)
	}
	if err := s.tasks.MarkEffectsApplied(ctx, task.ID); err != nil {
		// The effects landed; the sweep replays them as no-ops until the flag sticks.
		s.logger.Warn().Err(err).Str("task_id", task.ID).Msg("generation: mark effects applied failed")
		return task, nil
	}
	task.EffectsApplied = true
	return task, nil
}

func (s *Service) runEffects(ctx context.Context, effects []Effect) error {
	var errs []error
	for _, e := range effects {
		switch e.Kind {
		case EffectRefund:
			applied, err := s.credits.Refund(ctx, e.UserID, e.TaskID, e.Amount)
			if err != nil {
				errs = append(errs, fmt.Errorf("refund: %w", err))
				continue
			}
			if applied {
				metrics.CreditsRefunded.Add(float64(e.Amount))
			}
		case EffectAppendHistory:
			if err := s.history.AppendHistory(ctx, e.UserID, e.Mode, e.Entry); err != nil {
				errs = append(errs, fmt.Errorf("append history: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}

// CallbackURL builds the signed webhook URL handed to the provider.
func (s *Service) CallbackURL(taskID string) string {
	q := url.Values{}
	q.Set("task", taskID)
	q.Set("sig", s.sign(taskID))
	return s.callbackBase + "/v1/callbacks/generation?" + q.Encode()
}

// VerifyCallback checks the signature carried by a callback URL.
func (s *Service) VerifyCallback(taskID, sig string) bool {
	if taskID == "" || sig == "" {
		return false
	}
	return hmac.Equal([]byte(s.sign(taskID)), []byte(sig))
}

func (s *Service) sign(taskID string) string {
	mac := hmac.New(sha256.New, s.callbackSecret)
	mac.Write([]byte(taskID))
	return hex.EncodeToString(mac.Sum(nil))
}

func normalizeSubmit(req *SubmitRequest) error {
	if strings.TrimSpace(req.UserID) == "" {
		return domain.NewValidationError("user_id", "required")
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return domain.NewValidationError("prompt", "required")
	}
	if utf8.RuneCountInString(req.Prompt) > MaxPromptRunes {
		return domain.NewValidationError("prompt", fmt.Sprintf("must be at most %d characters", MaxPromptRunes))
	}
	if req.Mode == "" {
		req.Mode = domain.TaskModeImage
	}
	if !req.Mode.Valid() {
		return domain.NewValidationError("mode", "must be image or video")
	}
	if req.Mode == domain.TaskModeVideo {
		req.NumImages = 1
	}
	if req.NumImages < 1 || req.NumImages > credits.MaxImagesPerTask {
		return domain.NewValidationError("num_images", fmt.Sprintf("must be within 1..%d", credits.MaxImagesPerTask))
	}
	cleaned := make([]string, 0, len(req.ImageURLs))
	for _, raw := range req.ImageURLs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return domain.NewValidationError("image_urls", "must be absolute http(s) urls")
		}
		cleaned = append(cleaned, raw)
	}
	req.ImageURLs = cleaned
	return nil
}

func providerMessage(err error) string {
	msg := textnorm.Truncate(strings.TrimSpace(err.Error()), maxErrorMessage)
	if msg == "" {
		return "provider unavailable"
	}
	return msg
}

// detached keeps ctx values but not its cancellation, for work that must
// finish after the caller has gone away.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
}
