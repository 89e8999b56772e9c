package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"tasvir/internal/credits"
	"tasvir/internal/domain"
)

// UserStore implements domain.UserRepository and domain.CreditRepository over
// a single map of user documents.
type UserStore struct {
	mu      sync.Mutex
	users   map[string]domain.User
	refunds map[string]struct{}
	// deleted holds history entry ids removed by their owner, keyed by
	// deletedKey.
	deleted map[string]struct{}
}

// NewUserStore creates an empty user store.
func NewUserStore() *UserStore {
	return &UserStore{
		users:   make(map[string]domain.User),
		refunds: make(map[string]struct{}),
		deleted: make(map[string]struct{}),
	}
}

// Put inserts or replaces a user document.
func (s *UserStore) Put(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = cloneUser(user)
}

func (s *UserStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneUser(u)
	return &out, nil
}

func (s *UserStore) UpsertByPhone(_ context.Context, phone string, now time.Time) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range s.users {
		if u.Phone == phone {
			u.UpdatedAt = now
			s.users[id] = u
			out := cloneUser(u)
			return &out, nil
		}
	}
	u := domain.User{
		ID:           uuid.NewString(),
		Phone:        phone,
		Plan:         domain.UserPlanFree,
		MonthResetAt: credits.NextMonthlyReset(now),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[u.ID] = u
	out := cloneUser(u)
	return &out, nil
}

func (s *UserStore) AppendHistory(_ context.Context, userID string, mode domain.TaskMode, entry domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	if _, gone := s.deleted[deletedKey(userID, entry.ID)]; gone {
		return nil
	}
	for _, existing := range u.History(mode) {
		if existing.ID == entry.ID {
			return nil
		}
	}
	if mode == domain.TaskModeVideo {
		u.VideoHistory = append(u.VideoHistory, entry)
	} else {
		u.ImageHistory = append(u.ImageHistory, entry)
		u.ImagesGeneratedThisMonth++
	}
	u.UpdatedAt = time.Now().UTC()
	s.users[userID] = u
	return nil
}

func (s *UserStore) DeleteHistory(_ context.Context, userID string, mode domain.TaskMode, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	list := u.History(mode)
	kept := make([]domain.HistoryEntry, 0, len(list))
	found := false
	for _, e := range list {
		if e.ID == entryID {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return domain.ErrNotFound
	}
	if mode == domain.TaskModeVideo {
		u.VideoHistory = kept
	} else {
		u.ImageHistory = kept
	}
	s.users[userID] = u
	s.deleted[deletedKey(userID, entryID)] = struct{}{}
	return nil
}

func deletedKey(userID, entryID string) string {
	return userID + "/" + entryID
}

func (s *UserStore) AppendBilling(_ context.Context, userID string, entry domain.BillingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.BillingHistory = append(u.BillingHistory, entry)
	s.users[userID] = u
	return nil
}

func (s *UserStore) Reserve(_ context.Context, userID string, amount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if u.Credits < amount {
		return u.Credits, domain.ErrInsufficientCredits
	}
	u.Credits -= amount
	u.UpdatedAt = time.Now().UTC()
	s.users[userID] = u
	return u.Credits, nil
}

func (s *UserStore) Refund(_ context.Context, userID, taskID string, amount int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.refunds[taskID]; done {
		return false, nil
	}
	u, ok := s.users[userID]
	if !ok {
		return false, domain.ErrNotFound
	}
	u.Credits += amount
	u.UpdatedAt = time.Now().UTC()
	s.users[userID] = u
	s.refunds[taskID] = struct{}{}
	return true, nil
}

func (s *UserStore) SetPlan(_ context.Context, userID string, plan domain.Plan, now time.Time) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	u.Plan = plan.Name
	u.Credits = plan.Credits
	u.ImagesGeneratedThisMonth = 0
	u.MonthResetAt = credits.NextMonthlyReset(now)
	u.UpdatedAt = now
	s.users[userID] = u
	out := cloneUser(u)
	return &out, nil
}

func (s *UserStore) ResetMonthly(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, u := range s.users {
		if u.MonthResetAt.After(now) {
			continue
		}
		u.ImagesGeneratedThisMonth = 0
		u.MonthResetAt = credits.NextMonthlyReset(now)
		u.UpdatedAt = now
		s.users[id] = u
		n++
	}
	return n, nil
}

func cloneUser(u domain.User) domain.User {
	out := u
	out.ImageHistory = append([]domain.HistoryEntry(nil), u.ImageHistory...)
	out.VideoHistory = append([]domain.HistoryEntry(nil), u.VideoHistory...)
	out.BillingHistory = append([]domain.BillingEntry(nil), u.BillingHistory...)
	return out
}

var (
	_ domain.UserRepository   = (*UserStore)(nil)
	_ domain.CreditRepository = (*UserStore)(nil)
)
