package server

import (
	"time"

	"partnertrack/internal/domain"
	"partnertrack/internal/query"
	"partnertrack/internal/template"
)

// Request payloads

type CreatePartnerRequest struct {
	Code string `json:"code" pattern:"^[0-9]{5}$" example:"10001"`
	Name string `json:"name" minLength:"1" example:"山田税理士事務所"`
}

type UpdatePartnerRequest struct {
	Code *string `json:"code,omitempty" pattern:"^[0-9]{5}$"`
	Name *string `json:"name,omitempty"`
}

type CreateTaskRequest struct {
	Title      string   `json:"title" minLength:"1"`
	Category   string   `json:"category,omitempty" doc:"研修, TPS or その他 (aliases: training, tps, other)"`
	Deadline   string   `json:"deadline" format:"date" example:"2024-04-01"`
	PartnerIDs []string `json:"partner_ids" minItems:"1"`
}

type UpdateTaskRequest struct {
	Title    *string `json:"title,omitempty"`
	Category *string `json:"category,omitempty" doc:"研修, TPS or その他 (aliases: training, tps, other)"`
	Deadline *string `json:"deadline,omitempty" format:"date"`
}

type CreateRecurringRequest struct {
	Title        string `json:"title" minLength:"1"`
	Category     string `json:"category,omitempty" doc:"研修, TPS or その他 (aliases: training, tps, other)"`
	TriggerMonth int    `json:"trigger_month" minimum:"1" maximum:"12"`
	Description  string `json:"description,omitempty"`
}

type ApplyTemplateRequest struct {
	Year       int      `json:"year,omitempty" doc:"Deadline year; defaults to the current year"`
	PartnerIDs []string `json:"partner_ids,omitempty" doc:"Subset of partners; empty keeps all"`
	Deadline   *string  `json:"deadline,omitempty" format:"date"`
}

// Response payloads

type PartnerResponse struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

type AssignmentResponse struct {
	PartnerID   string     `json:"partner_id"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type ProgressResponse struct {
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Percent   int    `json:"percent"`
	Band      string `json:"band" enum:"complete,warning,normal"`
	Label     string `json:"label" example:"50% 完了"`
}

type TaskResponse struct {
	ID          string               `json:"id"`
	Title       string               `json:"title"`
	Category    string               `json:"category"`
	Deadline    string               `json:"deadline" format:"date"`
	Assignments []AssignmentResponse `json:"assignments"`
	CreatedAt   time.Time            `json:"created_at"`
	Archived    bool                 `json:"archived"`
	Progress    ProgressResponse     `json:"progress"`
}

type AssignmentViewResponse struct {
	PartnerID   string     `json:"partner_id"`
	Code        string     `json:"code"`
	Name        string     `json:"name"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type RecurringResponse struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Category     string `json:"category"`
	TriggerMonth int    `json:"trigger_month"`
	Description  string `json:"description,omitempty"`
}

type DraftResponse struct {
	Title      string   `json:"title"`
	Category   string   `json:"category"`
	Deadline   string   `json:"deadline" format:"date"`
	PartnerIDs []string `json:"partner_ids"`
}

type UrgentTaskResponse struct {
	Task     TaskResponse `json:"task"`
	DaysLeft int          `json:"days_left"`
}

type DashboardResponse struct {
	ActiveCount  int                  `json:"active_count"`
	UrgentCount  int                  `json:"urgent_count"`
	PartnerCount int                  `json:"partner_count"`
	Urgent       []UrgentTaskResponse `json:"urgent"`
	Recent       []TaskResponse       `json:"recent"`
}

func partnerResponse(p domain.Partner) PartnerResponse {
	return PartnerResponse{ID: p.ID, Code: p.Code, Name: p.Name}
}

func mapPartners(items []domain.Partner) []PartnerResponse {
	out := make([]PartnerResponse, 0, len(items))
	for _, p := range items {
		out = append(out, partnerResponse(p))
	}
	return out
}

func progressResponse(p query.TaskProgress) ProgressResponse {
	return ProgressResponse{
		Completed: p.Completed,
		Total:     p.Total,
		Percent:   p.Percent,
		Band:      string(p.Band),
		Label:     p.Label(),
	}
}

func taskResponse(t domain.Task) TaskResponse {
	assignments := make([]AssignmentResponse, 0, len(t.Assignments))
	for _, a := range t.Assignments {
		assignments = append(assignments, AssignmentResponse{
			PartnerID:   a.PartnerID,
			Completed:   a.Completed,
			CompletedAt: a.CompletedAt,
		})
	}
	return TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Category:    string(t.Category),
		Deadline:    t.Deadline.String(),
		Assignments: assignments,
		CreatedAt:   t.CreatedAt,
		Archived:    t.Archived,
		Progress:    progressResponse(query.Progress(t)),
	}
}

func mapTasks(items []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		out = append(out, taskResponse(t))
	}
	return out
}

func mapAssignmentViews(items []query.AssignmentView) []AssignmentViewResponse {
	out := make([]AssignmentViewResponse, 0, len(items))
	for _, v := range items {
		out = append(out, AssignmentViewResponse{
			PartnerID:   v.Partner.ID,
			Code:        v.Partner.Code,
			Name:        v.Partner.Name,
			Completed:   v.Assignment.Completed,
			CompletedAt: v.Assignment.CompletedAt,
		})
	}
	return out
}

func recurringResponse(r domain.RecurringTask) RecurringResponse {
	return RecurringResponse{
		ID:           r.ID,
		Title:        r.Title,
		Category:     string(r.Category),
		TriggerMonth: r.TriggerMonth,
		Description:  r.Description,
	}
}

func mapRecurring(items []domain.RecurringTask) []RecurringResponse {
	out := make([]RecurringResponse, 0, len(items))
	for _, r := range items {
		out = append(out, recurringResponse(r))
	}
	return out
}

func draftResponse(d template.Draft) DraftResponse {
	return DraftResponse{
		Title:      d.Title,
		Category:   string(d.Category),
		Deadline:   d.Deadline.String(),
		PartnerIDs: d.PartnerIDs(),
	}
}

func dashboardResponse(d query.DashboardSummary) DashboardResponse {
	urgent := make([]UrgentTaskResponse, 0, len(d.Urgent))
	for _, u := range d.Urgent {
		urgent = append(urgent, UrgentTaskResponse{Task: taskResponse(u.Task), DaysLeft: u.DaysLeft})
	}
	recent := make([]TaskResponse, 0, len(d.Recent))
	for _, r := range d.Recent {
		recent = append(recent, taskResponse(r.Task))
	}
	return DashboardResponse{
		ActiveCount:  d.ActiveCount,
		UrgentCount:  d.UrgentCount,
		PartnerCount: d.PartnerCount,
		Urgent:       urgent,
		Recent:       recent,
	}
}
