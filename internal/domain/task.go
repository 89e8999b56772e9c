package domain

import "time"

// TaskMode enumerates supported generation categories.
type TaskMode string

const (
	TaskModeImage TaskMode = "image"
	TaskModeVideo TaskMode = "video"
)

// Valid reports whether the mode is one the platform can generate.
func (m TaskMode) Valid() bool {
	return m == TaskModeImage || m == TaskModeVideo
}

// TaskStatus enumerates task lifecycle states.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsTerminal returns true if no further state transitions are possible.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task is the persisted record of one generation request.
//
// ID is assigned locally at submission so the record exists before the provider
// answers; ProviderTaskID is written back once the provider accepts the job and
// is the correlation key for callbacks and polls. Version is bumped by the store
// on every persisted transition and is the compare-and-set guard.
//
// CreditsDeducted closes the reservation. EffectsApplied is set afterwards,
// once the history entries or the refund owed by the settlement have reached
// the user record.
type Task struct {
	ID              string
	ProviderTaskID  string
	UserID          string
	Mode            TaskMode
	Prompt          string
	NumImages       int
	ImageURLs       []string
	Status          TaskStatus
	Images          []string
	Error           string
	CreditsReserved int
	CreditsDeducted bool
	EffectsApplied  bool
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// Clone returns a deep copy so callers can mutate slices without aliasing the
// stored record.
func (t Task) Clone() Task {
	out := t
	out.ImageURLs = append([]string(nil), t.ImageURLs...)
	out.Images = append([]string(nil), t.Images...)
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		out.CompletedAt = &at
	}
	return out
}
