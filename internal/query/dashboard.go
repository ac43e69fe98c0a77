package query

import (
	"time"

	"partnertrack/internal/domain"
)

type DashboardOptions struct {
	UrgentDays  int
	RecentLimit int
}

// UrgentItem is an urgent task with its days-until-deadline figure.
type UrgentItem struct {
	Task     domain.Task
	DaysLeft int
	Progress TaskProgress
}

type RecentItem struct {
	Task     domain.Task
	Progress TaskProgress
}

type DashboardSummary struct {
	ActiveCount  int
	UrgentCount  int
	PartnerCount int
	Urgent       []UrgentItem
	Recent       []RecentItem
}

// Dashboard gathers the figures for the overview screen.
func Dashboard(state domain.AppState, now time.Time, opts DashboardOptions) DashboardSummary {
	days := opts.UrgentDays
	if days <= 0 {
		days = DefaultUrgentDays
	}
	urgent := UrgentTasksWithin(state, now, days)
	recent := RecentTasks(state, opts.RecentLimit)

	sum := DashboardSummary{
		ActiveCount:  len(ActiveTasks(state)),
		UrgentCount:  len(urgent),
		PartnerCount: len(state.Partners),
		Urgent:       make([]UrgentItem, 0, len(urgent)),
		Recent:       make([]RecentItem, 0, len(recent)),
	}
	for _, t := range urgent {
		sum.Urgent = append(sum.Urgent, UrgentItem{Task: t, DaysLeft: DaysUntil(t.Deadline, now), Progress: Progress(t)})
	}
	for _, t := range recent {
		sum.Recent = append(sum.Recent, RecentItem{Task: t, Progress: Progress(t)})
	}
	return sum
}
