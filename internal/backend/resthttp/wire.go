package resthttp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tasktree/internal/service"
)

// wireTask is a task as the API sends it. Nullable columns are pointers.
type wireTask struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	IsCompleted bool      `json:"is_completed"`
	ParentID    *int64    `json:"parent_id"`
	Level       int       `json:"level"`
	Priority    *int      `json:"priority"`
	Status      string    `json:"status,omitempty"`
	Position    int64     `json:"position,omitempty"`
	Deadline    *wireTime `json:"deadline"`
	CreatedAt   wireTime  `json:"created_at"`
	UpdatedAt   wireTime  `json:"updated_at"`
}

func (w wireTask) task() service.Task {
	t := service.Task{
		ID:          w.ID,
		Title:       w.Title,
		IsCompleted: w.IsCompleted,
		ParentID:    w.ParentID,
		Level:       w.Level,
		Status:      service.Status(w.Status),
		Position:    w.Position,
		CreatedAt:   w.CreatedAt.Time,
		UpdatedAt:   w.UpdatedAt.Time,
	}
	if w.Description != nil {
		t.Description = *w.Description
	}
	if w.Priority != nil {
		t.Priority = *w.Priority
	}
	if w.Deadline != nil && !w.Deadline.IsZero() {
		deadline := w.Deadline.Time
		t.Deadline = &deadline
	}
	return t
}

// wireBody is the create and replace payload.
type wireBody struct {
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	IsCompleted bool      `json:"is_completed"`
	ParentID    *int64    `json:"parent_id"`
	Level       int       `json:"level"`
	Deadline    *wireTime `json:"deadline"`
	Priority    int       `json:"priority"`
	Status      string    `json:"status,omitempty"`
	Position    int64     `json:"position,omitempty"`
}

func bodyFromNew(n service.NewTask) wireBody {
	b := wireBody{
		Title:       n.Title,
		IsCompleted: n.IsCompleted,
		ParentID:    n.ParentID,
		Level:       n.Level,
		Priority:    n.Priority,
		Status:      string(n.Status),
		Position:    n.Position,
	}
	if n.Description != "" {
		desc := n.Description
		b.Description = &desc
	}
	if n.Deadline != nil {
		b.Deadline = &wireTime{Time: *n.Deadline}
	}
	return b
}

// wireTime accepts RFC 3339 timestamps and the zone-less ISO form the API
// emits for naive UTC datetimes.
type wireTime struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func (t *wireTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func (t wireTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}
