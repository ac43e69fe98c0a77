package domain

import (
	"fmt"
	"strings"
	"time"
)

type TaskCategory string

const (
	CategoryTraining TaskCategory = "研修"
	CategoryTPS      TaskCategory = "TPS"
	CategoryOther    TaskCategory = "その他"

	// CategoryAll is the filter sentinel meaning "any category"; it is never stored on a task.
	CategoryAll TaskCategory = "ALL"
)

// Categories lists the closed set of task categories in display order.
var Categories = []TaskCategory{CategoryTraining, CategoryTPS, CategoryOther}

func (c TaskCategory) Valid() bool {
	switch c {
	case CategoryTraining, CategoryTPS, CategoryOther:
		return true
	}
	return false
}

// ParseCategory accepts the stored category values plus ASCII aliases.
func ParseCategory(s string) (TaskCategory, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(CategoryTraining), "training":
		return CategoryTraining, nil
	case "tps":
		return CategoryTPS, nil
	case string(CategoryOther), "other":
		return CategoryOther, nil
	case "all", "":
		return CategoryAll, nil
	}
	return "", fmt.Errorf("invalid category %q", s)
}

type Partner struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

type RecurringTask struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Category     TaskCategory `json:"category"`
	TriggerMonth int          `json:"triggerMonth"`
	Description  string       `json:"description,omitempty"`
}

type TaskAssignment struct {
	PartnerID   string     `json:"partnerId"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type Task struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Category    TaskCategory     `json:"category"`
	Deadline    Date             `json:"deadline"`
	Assignments []TaskAssignment `json:"assignments"`
	CreatedAt   time.Time        `json:"createdAt"`
	Archived    bool             `json:"archived"`
}

// AppState is the single root aggregate persisted as one blob.
type AppState struct {
	Partners       []Partner       `json:"partners"`
	Tasks          []Task          `json:"tasks"`
	RecurringTasks []RecurringTask `json:"recurringTasks"`
}

// Empty returns the initial state used when nothing has been persisted yet.
func Empty() AppState {
	return AppState{
		Partners:       []Partner{},
		Tasks:          []Task{},
		RecurringTasks: []RecurringTask{},
	}
}

// Normalize replaces nil slices with empty ones so the state serializes as arrays.
func (s AppState) Normalize() AppState {
	if s.Partners == nil {
		s.Partners = []Partner{}
	}
	if s.Tasks == nil {
		s.Tasks = []Task{}
	}
	if s.RecurringTasks == nil {
		s.RecurringTasks = []RecurringTask{}
	}
	for i := range s.Tasks {
		if s.Tasks[i].Assignments == nil {
			s.Tasks[i].Assignments = []TaskAssignment{}
		}
	}
	return s
}

// Clone returns a deep copy that shares no slices or pointers with s.
func (s AppState) Clone() AppState {
	out := AppState{
		Partners:       append([]Partner{}, s.Partners...),
		Tasks:          make([]Task, len(s.Tasks)),
		RecurringTasks: append([]RecurringTask{}, s.RecurringTasks...),
	}
	for i, t := range s.Tasks {
		out.Tasks[i] = t.Clone()
	}
	return out
}

func (t Task) Clone() Task {
	assignments := make([]TaskAssignment, len(t.Assignments))
	for i, a := range t.Assignments {
		if a.CompletedAt != nil {
			ts := *a.CompletedAt
			a.CompletedAt = &ts
		}
		assignments[i] = a
	}
	t.Assignments = assignments
	return t
}
