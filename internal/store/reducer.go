package store

import (
	"sort"
	"time"

	"partnertrack/internal/domain"
)

// Reducer applies actions to an AppState. Now stamps completedAt on toggles.
type Reducer struct {
	Now func() time.Time
}

func (r Reducer) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Apply returns the state that results from action. The input state is never
// modified; slices that change are copied. Unknown or nil actions return state as is.
func (r Reducer) Apply(state domain.AppState, action Action) domain.AppState {
	switch a := action.(type) {
	case AddPartner:
		partners := make([]domain.Partner, 0, len(state.Partners)+1)
		partners = append(partners, state.Partners...)
		partners = append(partners, a.Partner)
		state.Partners = sortPartners(partners)
	case UpdatePartner:
		partners := make([]domain.Partner, len(state.Partners))
		for i, p := range state.Partners {
			if p.ID == a.Partner.ID {
				p = a.Partner
			}
			partners[i] = p
		}
		state.Partners = sortPartners(partners)
	case DeletePartner:
		partners := make([]domain.Partner, 0, len(state.Partners))
		for _, p := range state.Partners {
			if p.ID != a.ID {
				partners = append(partners, p)
			}
		}
		state.Partners = partners
	case AddTask:
		tasks := make([]domain.Task, 0, len(state.Tasks)+1)
		tasks = append(tasks, a.Task)
		state.Tasks = append(tasks, state.Tasks...)
	case UpdateTask:
		state.Tasks = mapTasks(state.Tasks, a.Task.ID, func(domain.Task) domain.Task { return a.Task })
	case DeleteTask:
		tasks := make([]domain.Task, 0, len(state.Tasks))
		for _, t := range state.Tasks {
			if t.ID != a.ID {
				tasks = append(tasks, t)
			}
		}
		state.Tasks = tasks
	case ToggleAssignment:
		now := r.now()
		state.Tasks = mapTasks(state.Tasks, a.TaskID, func(t domain.Task) domain.Task {
			assignments := make([]domain.TaskAssignment, len(t.Assignments))
			for i, as := range t.Assignments {
				if as.PartnerID == a.PartnerID {
					as.Completed = !as.Completed
					if as.Completed {
						ts := now
						as.CompletedAt = &ts
					} else {
						as.CompletedAt = nil
					}
				}
				assignments[i] = as
			}
			t.Assignments = assignments
			return t
		})
	case ArchiveTask:
		state.Tasks = mapTasks(state.Tasks, a.ID, func(t domain.Task) domain.Task {
			t.Archived = true
			return t
		})
	case AddRecurring:
		recurring := make([]domain.RecurringTask, 0, len(state.RecurringTasks)+1)
		recurring = append(recurring, state.RecurringTasks...)
		state.RecurringTasks = append(recurring, a.Recurring)
	case DeleteRecurring:
		recurring := make([]domain.RecurringTask, 0, len(state.RecurringTasks))
		for _, rt := range state.RecurringTasks {
			if rt.ID != a.ID {
				recurring = append(recurring, rt)
			}
		}
		state.RecurringTasks = recurring
	}
	return state
}

func sortPartners(partners []domain.Partner) []domain.Partner {
	sort.SliceStable(partners, func(i, j int) bool { return partners[i].Code < partners[j].Code })
	return partners
}

// mapTasks copies tasks, replacing the one with the given id by fn's result.
// When no task matches the original slice is returned.
func mapTasks(tasks []domain.Task, id string, fn func(domain.Task) domain.Task) []domain.Task {
	idx := -1
	for i, t := range tasks {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return tasks
	}
	out := make([]domain.Task, len(tasks))
	copy(out, tasks)
	for i := idx; i < len(out); i++ {
		if out[i].ID == id {
			out[i] = fn(out[i])
		}
	}
	return out
}
