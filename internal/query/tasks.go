// Package query derives read-only views from an AppState. Nothing here mutates
// its input; every function that reorders tasks works on a copy of the slice.
package query

import (
	"math"
	"sort"
	"time"

	"partnertrack/internal/domain"
)

const (
	DefaultUrgentDays  = 7
	DefaultRecentLimit = 5
)

// ActiveTasks returns non-archived tasks in stored order.
func ActiveTasks(state domain.AppState) []domain.Task {
	out := make([]domain.Task, 0, len(state.Tasks))
	for _, t := range state.Tasks {
		if !t.Archived {
			out = append(out, t)
		}
	}
	return out
}

// DaysUntil is the number of days from now to the deadline, rounded up.
// Overdue deadlines give zero or negative values.
func DaysUntil(deadline domain.Date, now time.Time) int {
	return int(math.Ceil(deadline.Time().Sub(now).Hours() / 24))
}

// UrgentTasks returns active, unfinished tasks due within the default window.
func UrgentTasks(state domain.AppState, now time.Time) []domain.Task {
	return UrgentTasksWithin(state, now, DefaultUrgentDays)
}

// UrgentTasksWithin returns active tasks with outstanding assignments whose
// deadline is at most days away (overdue included), earliest deadline first.
func UrgentTasksWithin(state domain.AppState, now time.Time, days int) []domain.Task {
	var out []domain.Task
	for _, t := range ActiveTasks(state) {
		completed, total := CompletionCount(t)
		if completed >= total {
			continue
		}
		if DaysUntil(t.Deadline, now) <= days {
			out = append(out, t)
		}
	}
	sortByDeadline(out)
	return out
}

// RecentTasks returns up to n active tasks, newest createdAt first.
func RecentTasks(state domain.AppState, n int) []domain.Task {
	if n <= 0 {
		n = DefaultRecentLimit
	}
	tasks := ActiveTasks(state)
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })
	if len(tasks) > n {
		tasks = tasks[:n]
	}
	return tasks
}

// FilterTasks keeps tasks whose archived flag matches and, unless category is
// CategoryAll (or empty), whose category matches. Results are ordered by deadline.
func FilterTasks(state domain.AppState, archived bool, category domain.TaskCategory) []domain.Task {
	out := []domain.Task{}
	for _, t := range state.Tasks {
		if t.Archived != archived {
			continue
		}
		if category != domain.CategoryAll && category != "" && t.Category != category {
			continue
		}
		out = append(out, t)
	}
	sortByDeadline(out)
	return out
}

func sortByDeadline(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Deadline.Before(tasks[j].Deadline) })
}

func FindTask(state domain.AppState, id string) (domain.Task, bool) {
	for _, t := range state.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Task{}, false
}

func FindPartner(state domain.AppState, id string) (domain.Partner, bool) {
	return findPartner(state.Partners, id)
}

func findPartner(partners []domain.Partner, id string) (domain.Partner, bool) {
	for _, p := range partners {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Partner{}, false
}

func FindRecurring(state domain.AppState, id string) (domain.RecurringTask, bool) {
	for _, r := range state.RecurringTasks {
		if r.ID == id {
			return r, true
		}
	}
	return domain.RecurringTask{}, false
}

// RecurringByMonth lists templates ordered by trigger month, keeping insertion order within a month.
func RecurringByMonth(state domain.AppState) []domain.RecurringTask {
	out := append([]domain.RecurringTask{}, state.RecurringTasks...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].TriggerMonth < out[j].TriggerMonth })
	return out
}
