package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tasvir/internal/domain"
	"tasvir/internal/infra"
	"tasvir/internal/sqlinline"
)

// TaskRepositoryPG implements domain.TaskRepository backed by PostgreSQL.
type TaskRepositoryPG struct {
	db infra.SQLExecutor
}

// NewTaskRepository creates a task repository over db.
func NewTaskRepository(db infra.SQLExecutor) *TaskRepositoryPG {
	return &TaskRepositoryPG{db: db}
}

// Create inserts a new task. The stored version starts at 1 unless set.
func (r *TaskRepositoryPG) Create(ctx context.Context, task *domain.Task) error {
	if task.Version == 0 {
		task.Version = 1
	}
	imageURLs, err := jsonList(task.ImageURLs)
	if err != nil {
		return err
	}
	images, err := jsonList(task.Images)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, sqlinline.QInsertTask,
		task.ID,
		task.ProviderTaskID,
		task.UserID,
		string(task.Mode),
		task.Prompt,
		task.NumImages,
		imageURLs,
		string(task.Status),
		images,
		task.Error,
		task.CreditsReserved,
		task.CreditsDeducted,
		task.Version,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if infra.IsUniqueViolation(err) {
		return domain.ErrDuplicateOperation
	}
	return err
}

// AttachProviderTask records the provider's id on the task. Attaching the same
// id twice is allowed; a different id is a duplicate.
func (r *TaskRepositoryPG) AttachProviderTask(ctx context.Context, id, providerTaskID string) (*domain.Task, error) {
	if !validID(id) {
		return nil, domain.ErrTaskNotFound
	}
	task, err := scanTask(r.db.QueryRow(ctx, sqlinline.QAttachProviderTask, id, providerTaskID))
	if err == nil {
		return task, nil
	}
	if infra.IsUniqueViolation(err) {
		return nil, domain.ErrDuplicateOperation
	}
	if !errors.Is(err, domain.ErrTaskNotFound) {
		return nil, err
	}
	exists, existsErr := r.exists(ctx, id)
	if existsErr != nil {
		return nil, existsErr
	}
	if exists {
		return nil, domain.ErrDuplicateOperation
	}
	return nil, domain.ErrTaskNotFound
}

func (r *TaskRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	if !validID(id) {
		return nil, domain.ErrTaskNotFound
	}
	return scanTask(r.db.QueryRow(ctx, sqlinline.QSelectTaskByID, id))
}

func (r *TaskRepositoryPG) GetByProviderTaskID(ctx context.Context, providerTaskID string) (*domain.Task, error) {
	return scanTask(r.db.QueryRow(ctx, sqlinline.QSelectTaskByProviderID, providerTaskID))
}

// Update writes the mutable task fields when the stored version equals
// expectedVersion.
func (r *TaskRepositoryPG) Update(ctx context.Context, task *domain.Task, expectedVersion int) (*domain.Task, error) {
	if !validID(task.ID) {
		return nil, domain.ErrTaskNotFound
	}
	images, err := jsonList(task.Images)
	if err != nil {
		return nil, err
	}
	updated, err := scanTask(r.db.QueryRow(ctx, sqlinline.QUpdateTaskVersioned,
		task.ID,
		expectedVersion,
		string(task.Status),
		images,
		task.Error,
		task.CreditsDeducted,
		task.UpdatedAt,
		task.CompletedAt,
	))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, domain.ErrTaskNotFound) {
		return nil, err
	}
	exists, existsErr := r.exists(ctx, task.ID)
	if existsErr != nil {
		return nil, existsErr
	}
	if exists {
		return nil, domain.ErrVersionConflict
	}
	return nil, domain.ErrTaskNotFound
}

func (r *TaskRepositoryPG) MarkEffectsApplied(ctx context.Context, id string) error {
	if !validID(id) {
		return domain.ErrTaskNotFound
	}
	_, err := r.db.Exec(ctx, sqlinline.QMarkTaskEffectsApplied, id)
	return err
}

func (r *TaskRepositoryPG) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]domain.Task, error) {
	rows, err := r.db.Query(ctx, sqlinline.QListStaleTasks, olderThan, limit)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

func (r *TaskRepositoryPG) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Task, error) {
	rows, err := r.db.Query(ctx, sqlinline.QListTasksByUser, userID, limit)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

func (r *TaskRepositoryPG) exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	if err := r.db.QueryRow(ctx, sqlinline.QTaskExists, id).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func collectTasks(rows pgx.Rows) ([]domain.Task, error) {
	defer rows.Close()
	var out []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *task)
	}
	return out, rows.Err()
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var (
		t                 domain.Task
		mode, status      string
		imageURLs, images []byte
	)
	if err := row.Scan(
		&t.ID,
		&t.ProviderTaskID,
		&t.UserID,
		&mode,
		&t.Prompt,
		&t.NumImages,
		&imageURLs,
		&status,
		&images,
		&t.Error,
		&t.CreditsReserved,
		&t.CreditsDeducted,
		&t.EffectsApplied,
		&t.Version,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.CompletedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, err
	}
	t.Mode = domain.TaskMode(mode)
	t.Status = domain.TaskStatus(status)
	if err := decodeJSON(imageURLs, &t.ImageURLs); err != nil {
		return nil, fmt.Errorf("decode image_urls: %w", err)
	}
	if err := decodeJSON(images, &t.Images); err != nil {
		return nil, fmt.Errorf("decode images: %w", err)
	}
	return &t, nil
}

// validID reports whether id can be bound to a uuid column. Postgres rejects
// anything else with a syntax error instead of matching no row.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// jsonList encodes a slice for a jsonb parameter; nil becomes [].
func jsonList[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

func decodeJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

var _ domain.TaskRepository = (*TaskRepositoryPG)(nil)
