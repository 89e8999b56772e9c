// Package memory provides mutex-guarded in-process repositories with the same
// compare-and-set semantics as the PostgreSQL adapters. It backs tests and
// STORE_DRIVER=memory development runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"tasvir/internal/domain"
)

// TaskStore implements domain.TaskRepository.
type TaskStore struct {
	mu         sync.Mutex
	tasks      map[string]domain.Task
	byProvider map[string]string
}

// NewTaskStore creates an empty task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks:      make(map[string]domain.Task),
		byProvider: make(map[string]string),
	}
}

func (s *TaskStore) Create(_ context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; ok {
		return domain.ErrDuplicateOperation
	}
	if task.ProviderTaskID != "" {
		if _, ok := s.byProvider[task.ProviderTaskID]; ok {
			return domain.ErrDuplicateOperation
		}
		s.byProvider[task.ProviderTaskID] = task.ID
	}
	stored := task.Clone()
	if stored.Version == 0 {
		stored.Version = 1
	}
	task.Version = stored.Version
	s.tasks[task.ID] = stored
	return nil
}

func (s *TaskStore) AttachProviderTask(_ context.Context, id, providerTaskID string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	if owner, ok := s.byProvider[providerTaskID]; ok && owner != id {
		return nil, domain.ErrDuplicateOperation
	}
	if task.ProviderTaskID != "" && task.ProviderTaskID != providerTaskID {
		return nil, domain.ErrDuplicateOperation
	}
	task.ProviderTaskID = providerTaskID
	task.Version++
	s.tasks[id] = task
	s.byProvider[providerTaskID] = id
	out := task.Clone()
	return &out, nil
}

func (s *TaskStore) GetByID(_ context.Context, id string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	out := task.Clone()
	return &out, nil
}

func (s *TaskStore) GetByProviderTaskID(ctx context.Context, providerTaskID string) (*domain.Task, error) {
	s.mu.Lock()
	id, ok := s.byProvider[providerTaskID]
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *TaskStore) Update(_ context.Context, task *domain.Task, expectedVersion int) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tasks[task.ID]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	if current.Version != expectedVersion {
		return nil, domain.ErrVersionConflict
	}
	next := task.Clone()
	// Identity fields are immutable through Update.
	next.UserID = current.UserID
	next.ProviderTaskID = current.ProviderTaskID
	next.CreatedAt = current.CreatedAt
	next.EffectsApplied = current.EffectsApplied
	next.Version = expectedVersion + 1
	s.tasks[task.ID] = next
	out := next.Clone()
	return &out, nil
}

func (s *TaskStore) MarkEffectsApplied(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	if task.CreditsDeducted {
		task.EffectsApplied = true
		s.tasks[id] = task
	}
	return nil
}

func (s *TaskStore) ListStale(_ context.Context, olderThan time.Time, limit int) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Task
	for _, task := range s.tasks {
		owed := task.CreditsDeducted && !task.EffectsApplied
		if (task.Status.IsTerminal() && !owed) || !task.UpdatedAt.Before(olderThan) {
			continue
		}
		out = append(out, task.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *TaskStore) ListByUser(_ context.Context, userID string, limit int) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Task
	for _, task := range s.tasks {
		if task.UserID == userID {
			out = append(out, task.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ domain.TaskRepository = (*TaskStore)(nil)
