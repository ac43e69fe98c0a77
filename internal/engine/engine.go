package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"partnertrack/internal/config"
	"partnertrack/internal/domain"
	"partnertrack/internal/query"
	"partnertrack/internal/store"
	"partnertrack/internal/template"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation failed")
	ErrInvalidCode   = fmt.Errorf("%w: partner code must be exactly 5 digits", ErrValidation)
	ErrDuplicateCode = errors.New("partner code already in use")
)

// Engine validates requests from the CLI and API, builds action payloads with
// fresh ids and timestamps, and dispatches them to the store.
type Engine struct {
	Store  *store.Store
	Config *config.Config
	Now    func() time.Time
	NewID  func() string
	Log    *slog.Logger
}

func New(s *store.Store, cfg *config.Config, log *slog.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = slog.Default()
	}
	return Engine{
		Store:  s,
		Config: cfg,
		Now:    time.Now,
		NewID:  func() string { return uuid.NewString() },
		Log:    log,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

// Clock returns the engine's current time.
func (e Engine) Clock() time.Time {
	return e.now()
}

// State returns a snapshot of the current state.
func (e Engine) State() domain.AppState {
	return e.Store.Snapshot()
}

// update validates against the live state and commits the resulting action
// while the store lock is held.
func (e Engine) update(ctx context.Context, build func(domain.AppState) (store.Action, error)) (domain.AppState, error) {
	var kind string
	state, err := e.Store.Update(ctx, func(s domain.AppState) (store.Action, error) {
		a, err := build(s)
		if a != nil {
			kind = a.Kind()
		}
		return a, err
	})
	if err != nil {
		return state, err
	}
	e.Log.InfoContext(ctx, "state updated", slog.String("action", kind))
	return state, nil
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// --- partners ---

func validCode(code string) bool {
	if len(code) != 5 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func checkPartner(state domain.AppState, p domain.Partner) error {
	if !validCode(p.Code) {
		return fmt.Errorf("%w (got %q)", ErrInvalidCode, p.Code)
	}
	if strings.TrimSpace(p.Name) == "" {
		return invalid("partner name is required")
	}
	for _, existing := range state.Partners {
		if existing.Code == p.Code && existing.ID != p.ID {
			return fmt.Errorf("%w: %s (%s)", ErrDuplicateCode, p.Code, existing.Name)
		}
	}
	return nil
}

func (e Engine) AddPartner(ctx context.Context, code, name string) (domain.Partner, error) {
	p := domain.Partner{ID: e.newID(), Code: strings.TrimSpace(code), Name: strings.TrimSpace(name)}
	_, err := e.update(ctx, func(state domain.AppState) (store.Action, error) {
		if err := checkPartner(state, p); err != nil {
			return nil, err
		}
		return store.AddPartner{Partner: p}, nil
	})
	if err != nil && !errors.Is(err, store.ErrPersist) {
		return domain.Partner{}, err
	}
	return p, err
}

// PartnerUpdate carries optional changes; nil fields are left as they are.
type PartnerUpdate struct {
	ID   string
	Code *string
	Name *string
}

func (e Engine) UpdatePartner(ctx context.Context, upd PartnerUpdate) (domain.Partner, error) {
	var p domain.Partner
	_, err := e.update(ctx, func(state domain.AppState) (store.Action, error) {
		found, ok := query.FindPartner(state, upd.ID)
		if !ok {
			return nil, notFound("partner", upd.ID)
		}
		if upd.Code != nil {
			found.Code = strings.TrimSpace(*upd.Code)
		}
		if upd.Name != nil {
			found.Name = strings.TrimSpace(*upd.Name)
		}
		if err := checkPartner(state, found); err != nil {
			return nil, err
		}
		p = found
		return store.UpdatePartner{Partner: p}, nil
	})
	if err != nil && !errors.Is(err, store.ErrPersist) {
		return domain.Partner{}, err
	}
	return p, err
}

// DeletePartner removes the partner. Assignments that reference it stay on their tasks.
func (e Engine) DeletePartner(ctx context.Context, id string) error {
	_, err := e.update(ctx, func(state domain.AppState) (store.Action, error) {
		if _, ok := query.FindPartner(state, id); !ok {
			return nil, notFound("partner", id)
		}
		return store.DeletePartner{ID: id}, nil
	})
	return err
}

// --- tasks ---

type TaskCreateOptions struct {
	Title      string
	Category   domain.TaskCategory
	Deadline   domain.Date
	PartnerIDs []string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Task{}, invalid("title is required")
	}
	if opts.Category == "" {
		opts.Category = domain.CategoryOther
	}
	if !opts.Category.Valid() {
		return domain.Task{}, invalid("invalid category %q", opts.Category)
	}
	if opts.Deadline.IsZero() {
		return domain.Task{}, invalid("deadline is required")
	}
	t := domain.Task{
		ID:        e.newID(),
		Title:     title,
		Category:  opts.Category,
		Deadline:  opts.Deadline,
		CreatedAt: e.now().UTC(),
	}
	_, err := e.update(ctx, func(state domain.AppState) (store.Action, error) {
		ids, err := uniquePartnerIDs(state, opts.PartnerIDs)
		if err != nil {
			return nil, err
		}
		t.Assignments = make([]domain.TaskAssignment, 0, len(ids))
		for _, id := range ids {
			t.Assignments = append(t.Assignments, domain.TaskAssignment{PartnerID: id})
		}
		return store.AddTask{Task: t}, nil
	})
	if err != nil && !errors.Is(err, store.ErrPersist) {
		return domain.Task{}, err
	}
	return t, err
}

func uniquePartnerIDs(state domain.AppState, ids []string) ([]string, error) {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		if _, ok := query.FindPartner(state, id); !ok {
			return nil, notFound("partner", id)
		}
		seen[id] = true
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, invalid("at least one partner must be assigned")
	}
	return out, nil
}

// TaskUpdateOptions changes title, category and deadline. Assignments are fixed at creation.
type TaskUpdateOptions struct {
	ID       string
	Title    *string
	Category *domain.TaskCategory
	Deadline *domain.Date
}

func (o TaskUpdateOptions) validate() error {
	if o.Title != nil && strings.TrimSpace(*o.Title) == "" {
		return invalid("title is required")
	}
	if o.Category != nil && !o.Category.Valid() {
		return invalid("invalid category %q", *o.Category)
	}
	if o.Deadline != nil && o.Deadline.IsZero() {
		return invalid("deadline is required")
	}
	return nil
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	if err := opts.validate(); err != nil {
		return domain.Task{}, err
	}
	state, err := e.update(ctx, func(state domain.AppState) (store.Action, error) {
		t, ok := query.FindTask(state, opts.ID)
		if !ok {
			return nil, notFound("task", opts.ID)
		}
		if opts.Title != nil {
			t.Title = strings.TrimSpace(*opts.Title)
		}
		if opts.Category != nil {
			t.Category = *opts.Category
		}
		if opts.Deadline != nil {
			t.Deadline = *opts.Deadline
		}
		return store.UpdateTask{Task: t}, nil
	})
	if err != nil && !errors.Is(err, store.ErrPersist) {
		return domain.Task{}, err
	}
	updated, _ := query.FindTask(state, opts.ID)
	return updated, err
}

func (e Engine) DeleteTask(ctx context.Context, id string) error {
	_, err := e.update(ctx, func(state domain.AppState) (store.Action, error) {
		if _, ok := query.FindTask(state, id); !ok {
			return nil, notFound("task", id)
		}
		return store.DeleteTask{ID: id}, nil
	})
	return err
}

// ToggleAssignment flips one partner's completion on a task and returns the updated task.
func (e Engine) ToggleAssignment(ctx context.Context, taskID, partnerID string) (domain.Task, error) {
	state, err := e.update(ctx, func(state domain.AppState) (store.Action, error) {
		t, ok := query.FindTask(state, taskID)
		if !ok {
			return nil, notFound("task", taskID)
		}
		for _, a := range t.Assignments {
			if a.PartnerID == partnerID {
				return store.ToggleAssignment{TaskID: taskID, PartnerID: partnerID}, nil
			}
		}
		return nil, notFound("assignment", taskID+"/"+partnerID)
	})
	if err != nil && !errors.Is(err, store.ErrPersist) {
		return domain.Task{}, err
	}
	updated, _ := query.FindTask(state, taskID)
	return updated, err
}

// ArchiveTask hides the task from active views. There is no way back.
func (e Engine) ArchiveTask(ctx context.Context, id string) (domain.Task, error) {
	state, err := e.update(ctx, func(state domain.AppState) (store.Action, error) {
		if _, ok := query.FindTask(state, id); !ok {
			return nil, notFound("task", id)
		}
		return store.ArchiveTask{ID: id}, nil
	})
	if err != nil && !errors.Is(err, store.ErrPersist) {
		return domain.Task{}, err
	}
	updated, _ := query.FindTask(state, id)
	return updated, err
}

// --- recurring templates ---

type RecurringCreateOptions struct {
	Title        string
	Category     domain.TaskCategory
	TriggerMonth int
	Description  string
}

func (e Engine) AddRecurring(ctx context.Context, opts RecurringCreateOptions) (domain.RecurringTask, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.RecurringTask{}, invalid("title is required")
	}
	if opts.Category == "" {
		opts.Category = domain.CategoryOther
	}
	if !opts.Category.Valid() {
		return domain.RecurringTask{}, invalid("invalid category %q", opts.Category)
	}
	if opts.TriggerMonth < 1 || opts.TriggerMonth > 12 {
		return domain.RecurringTask{}, invalid("trigger month must be 1-12 (got %d)", opts.TriggerMonth)
	}
	r := domain.RecurringTask{
		ID:           e.newID(),
		Title:        title,
		Category:     opts.Category,
		TriggerMonth: opts.TriggerMonth,
		Description:  strings.TrimSpace(opts.Description),
	}
	_, err := e.update(ctx, func(domain.AppState) (store.Action, error) {
		return store.AddRecurring{Recurring: r}, nil
	})
	return r, err
}

func (e Engine) DeleteRecurring(ctx context.Context, id string) error {
	_, err := e.update(ctx, func(state domain.AppState) (store.Action, error) {
		if _, ok := query.FindRecurring(state, id); !ok {
			return nil, notFound("recurring template", id)
		}
		return store.DeleteRecurring{ID: id}, nil
	})
	return err
}

// DraftFromTemplate pre-fills a task from a template. year 0 means the current year.
func (e Engine) DraftFromTemplate(id string, year int) (template.Draft, error) {
	state := e.State()
	r, ok := query.FindRecurring(state, id)
	if !ok {
		return template.Draft{}, notFound("recurring template", id)
	}
	if year == 0 {
		year = e.now().Year()
	}
	return template.Instantiate(r, year, state.Partners), nil
}

// CreateTaskFromTemplate commits a template draft. partnerIDs narrows the
// pre-selected partners; nil keeps all of them. A zero deadline keeps the draft's.
func (e Engine) CreateTaskFromTemplate(ctx context.Context, id string, year int, partnerIDs []string, deadline domain.Date) (domain.Task, error) {
	draft, err := e.DraftFromTemplate(id, year)
	if err != nil {
		return domain.Task{}, err
	}
	draft, err = draft.Select(partnerIDs)
	if err != nil {
		return domain.Task{}, invalid("%v", err)
	}
	if !deadline.IsZero() {
		draft.Deadline = deadline
	}
	return e.CreateTask(ctx, TaskCreateOptions{
		Title:      draft.Title,
		Category:   draft.Category,
		Deadline:   draft.Deadline,
		PartnerIDs: draft.PartnerIDs(),
	})
}

// Dashboard computes the overview using the configured windows.
func (e Engine) Dashboard() query.DashboardSummary {
	return query.Dashboard(e.State(), e.now(), query.DashboardOptions{
		UrgentDays:  e.Config.Dashboard.UrgentDays,
		RecentLimit: e.Config.Dashboard.RecentLimit,
	})
}
