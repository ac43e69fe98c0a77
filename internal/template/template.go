// Package template turns recurring task templates into task drafts.
package template

import (
	"fmt"
	"time"

	"partnertrack/internal/domain"
)

// Draft is a task that has not been committed yet. The caller may narrow the
// partner selection before turning it into a Task.
type Draft struct {
	Title       string                  `json:"title"`
	Category    domain.TaskCategory     `json:"category"`
	Deadline    domain.Date             `json:"deadline"`
	Assignments []domain.TaskAssignment `json:"assignments"`
}

// Instantiate fills a draft from t for the given year: the deadline is the first
// day of the template's trigger month and every known partner is pre-selected.
func Instantiate(t domain.RecurringTask, year int, partners []domain.Partner) Draft {
	assignments := make([]domain.TaskAssignment, 0, len(partners))
	for _, p := range partners {
		assignments = append(assignments, domain.TaskAssignment{PartnerID: p.ID})
	}
	return Draft{
		Title:       t.Title,
		Category:    t.Category,
		Deadline:    domain.NewDate(year, time.Month(t.TriggerMonth), 1),
		Assignments: assignments,
	}
}

// PartnerIDs returns the selected partner ids in draft order.
func (d Draft) PartnerIDs() []string {
	ids := make([]string, 0, len(d.Assignments))
	for _, a := range d.Assignments {
		ids = append(ids, a.PartnerID)
	}
	return ids
}

// Select keeps only assignments for the given partner ids. An empty selection keeps all.
func (d Draft) Select(partnerIDs []string) (Draft, error) {
	if len(partnerIDs) == 0 {
		return d, nil
	}
	present := make(map[string]bool, len(d.Assignments))
	for _, a := range d.Assignments {
		present[a.PartnerID] = true
	}
	want := make(map[string]bool, len(partnerIDs))
	for _, id := range partnerIDs {
		if !present[id] {
			return Draft{}, fmt.Errorf("partner %s is not part of the draft", id)
		}
		want[id] = true
	}
	kept := make([]domain.TaskAssignment, 0, len(want))
	for _, a := range d.Assignments {
		if want[a.PartnerID] {
			kept = append(kept, a)
		}
	}
	d.Assignments = kept
	return d, nil
}

// Task commits the draft as a new, unarchived task.
func (d Draft) Task(id string, createdAt time.Time) domain.Task {
	return domain.Task{
		ID:          id,
		Title:       d.Title,
		Category:    d.Category,
		Deadline:    d.Deadline,
		Assignments: append([]domain.TaskAssignment{}, d.Assignments...),
		CreatedAt:   createdAt,
	}
}
