package domain

import (
	"fmt"
	"time"
)

// HistoryEntry is one generated asset shown in a user's image or video history.
type HistoryEntry struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Prompt    string    `json:"prompt"`
	TaskID    string    `json:"task_id"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryEntryID derives a stable entry id from the owning task and the
// position of the asset so re-appending the same result is detectable.
func HistoryEntryID(taskID string, index int) string {
	return fmt.Sprintf("%s-%d", taskID, index)
}
