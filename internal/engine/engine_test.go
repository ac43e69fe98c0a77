package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"partnertrack/internal/config"
	"partnertrack/internal/domain"
	"partnertrack/internal/engine"
	"partnertrack/internal/logging"
	"partnertrack/internal/persist"
	"partnertrack/internal/query"
	"partnertrack/internal/store"
)

type testEnv struct {
	Engine  engine.Engine
	Backend *persist.MemoryBackend
	Ctx     context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	ctx := context.Background()
	log := logging.Discard()
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	backend := persist.NewMemoryBackend(log)
	s := store.New(ctx, backend, store.Reducer{Now: func() time.Time { return now }}, log)
	eng := engine.New(s, config.Default(), log)
	eng.Now = func() time.Time { return now }
	seq := 0
	eng.NewID = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	return testEnv{Engine: eng, Backend: backend, Ctx: ctx}
}

func (env testEnv) partner(t *testing.T, code, name string) domain.Partner {
	t.Helper()
	p, err := env.Engine.AddPartner(env.Ctx, code, name)
	if err != nil {
		t.Fatalf("add partner %s: %v", code, err)
	}
	return p
}

func TestAddPartnerValidation(t *testing.T) {
	env := newTestEnv(t)
	env.partner(t, "10002", "Beta")
	env.partner(t, "10001", "Alpha")

	cases := []struct {
		code, name string
		want       error
	}{
		{"1234", "Short", engine.ErrInvalidCode},
		{"12a45", "Letters", engine.ErrInvalidCode},
		{"20001", "  ", engine.ErrValidation},
		{"10001", "Dup", engine.ErrDuplicateCode},
	}
	for _, tc := range cases {
		if _, err := env.Engine.AddPartner(env.Ctx, tc.code, tc.name); !errors.Is(err, tc.want) {
			t.Fatalf("add %q/%q: expected %v, got %v", tc.code, tc.name, tc.want, err)
		}
	}
	state := env.Engine.State()
	if len(state.Partners) != 2 {
		t.Fatalf("expected 2 partners, got %d", len(state.Partners))
	}
	if state.Partners[0].Code != "10001" || state.Partners[1].Code != "10002" {
		t.Fatalf("partners not sorted by code: %+v", state.Partners)
	}
}

func TestUpdatePartner(t *testing.T) {
	env := newTestEnv(t)
	a := env.partner(t, "10001", "Alpha")
	env.partner(t, "10002", "Beta")

	name := "Alpha Office"
	p, err := env.Engine.UpdatePartner(env.Ctx, engine.PartnerUpdate{ID: a.ID, Name: &name})
	if err != nil {
		t.Fatalf("update partner: %v", err)
	}
	if p.Name != name || p.Code != "10001" {
		t.Fatalf("unexpected partner after update: %+v", p)
	}
	// keeping its own code is not a duplicate
	same := "10001"
	if _, err := env.Engine.UpdatePartner(env.Ctx, engine.PartnerUpdate{ID: a.ID, Code: &same}); err != nil {
		t.Fatalf("update with own code: %v", err)
	}
	taken := "10002"
	if _, err := env.Engine.UpdatePartner(env.Ctx, engine.PartnerUpdate{ID: a.ID, Code: &taken}); !errors.Is(err, engine.ErrDuplicateCode) {
		t.Fatalf("expected duplicate code, got %v", err)
	}
	if _, err := env.Engine.UpdatePartner(env.Ctx, engine.PartnerUpdate{ID: "missing", Name: &name}); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeletePartnerKeepsAssignments(t *testing.T) {
	env := newTestEnv(t)
	a := env.partner(t, "10001", "Alpha")
	b := env.partner(t, "10002", "Beta")
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:      "Annual training",
		Category:   domain.CategoryTraining,
		Deadline:   domain.NewDate(2024, 4, 1),
		PartnerIDs: []string{a.ID, b.ID},
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := env.Engine.DeletePartner(env.Ctx, a.ID); err != nil {
		t.Fatalf("delete partner: %v", err)
	}
	state := env.Engine.State()
	if len(state.Partners) != 1 {
		t.Fatalf("expected 1 partner, got %d", len(state.Partners))
	}
	if got := len(state.Tasks[0].Assignments); got != 2 || state.Tasks[0].ID != task.ID {
		t.Fatalf("assignments should survive partner delete, got %d", got)
	}
	if err := env.Engine.DeletePartner(env.Ctx, a.ID); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestCreateTask(t *testing.T) {
	env := newTestEnv(t)
	a := env.partner(t, "10001", "Alpha")
	b := env.partner(t, "10002", "Beta")

	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:      "  TPS review ",
		Category:   domain.CategoryTPS,
		Deadline:   domain.NewDate(2024, 3, 31),
		PartnerIDs: []string{b.ID, a.ID, b.ID, ""},
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Title != "TPS review" {
		t.Fatalf("title not trimmed: %q", task.Title)
	}
	if len(task.Assignments) != 2 || task.Assignments[0].PartnerID != b.ID || task.Assignments[1].PartnerID != a.ID {
		t.Fatalf("unexpected assignments: %+v", task.Assignments)
	}
	for _, as := range task.Assignments {
		if as.Completed || as.CompletedAt != nil {
			t.Fatalf("new assignment should be incomplete: %+v", as)
		}
	}
	if task.Archived {
		t.Fatalf("new task should not be archived")
	}
	if !task.CreatedAt.Equal(env.Engine.Now()) {
		t.Fatalf("createdAt = %v", task.CreatedAt)
	}
	if env.Backend.Saves() == 0 {
		t.Fatalf("expected state to be persisted")
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	a := env.partner(t, "10001", "Alpha")
	deadline := domain.NewDate(2024, 3, 31)

	cases := []struct {
		name string
		opts engine.TaskCreateOptions
		want error
	}{
		{"no title", engine.TaskCreateOptions{Title: " ", Deadline: deadline, PartnerIDs: []string{a.ID}}, engine.ErrValidation},
		{"no deadline", engine.TaskCreateOptions{Title: "x", PartnerIDs: []string{a.ID}}, engine.ErrValidation},
		{"no partners", engine.TaskCreateOptions{Title: "x", Deadline: deadline}, engine.ErrValidation},
		{"bad category", engine.TaskCreateOptions{Title: "x", Category: "misc", Deadline: deadline, PartnerIDs: []string{a.ID}}, engine.ErrValidation},
		{"unknown partner", engine.TaskCreateOptions{Title: "x", Deadline: deadline, PartnerIDs: []string{"ghost"}}, engine.ErrNotFound},
	}
	for _, tc := range cases {
		if _, err := env.Engine.CreateTask(env.Ctx, tc.opts); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if n := len(env.Engine.State().Tasks); n != 0 {
		t.Fatalf("rejected tasks must not be stored, got %d", n)
	}
}

func TestUpdateTaskKeepsAssignments(t *testing.T) {
	env := newTestEnv(t)
	a := env.partner(t, "10001", "Alpha")
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "Draft", Deadline: domain.NewDate(2024, 3, 31), PartnerIDs: []string{a.ID},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ToggleAssignment(env.Ctx, task.ID, a.ID); err != nil {
		t.Fatal(err)
	}
	title := "Final"
	cat := domain.CategoryTraining
	deadline := domain.NewDate(2024, 5, 1)
	updated, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Title: &title, Category: &cat, Deadline: &deadline})
	if err != nil {
		t.Fatalf("update task: %v", err)
	}
	if updated.Title != "Final" || updated.Category != cat || updated.Deadline != deadline {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if !updated.Assignments[0].Completed {
		t.Fatalf("update must not reset assignments")
	}
	empty := ""
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Title: &empty}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: "nope", Title: &title}); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestToggleAssignment(t *testing.T) {
	env := newTestEnv(t)
	a := env.partner(t, "10001", "Alpha")
	b := env.partner(t, "10002", "Beta")
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "Check", Deadline: domain.NewDate(2024, 3, 31), PartnerIDs: []string{a.ID, b.ID},
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := env.Engine.ToggleAssignment(env.Ctx, task.ID, b.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if got.Assignments[0].Completed || !got.Assignments[1].Completed {
		t.Fatalf("only b should be complete: %+v", got.Assignments)
	}
	if got.Assignments[1].CompletedAt == nil || !got.Assignments[1].CompletedAt.Equal(env.Engine.Now()) {
		t.Fatalf("completedAt not stamped: %+v", got.Assignments[1])
	}
	got, err = env.Engine.ToggleAssignment(env.Ctx, task.ID, b.ID)
	if err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	if got.Assignments[1].Completed || got.Assignments[1].CompletedAt != nil {
		t.Fatalf("toggle twice should clear completion: %+v", got.Assignments[1])
	}
	if _, err := env.Engine.ToggleAssignment(env.Ctx, task.ID, "ghost"); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected not found for unassigned partner, got %v", err)
	}
}

func TestArchiveAndDeleteTask(t *testing.T) {
	env := newTestEnv(t)
	a := env.partner(t, "10001", "Alpha")
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "Old", Deadline: domain.NewDate(2024, 1, 31), PartnerIDs: []string{a.ID},
	})
	if err != nil {
		t.Fatal(err)
	}
	archived, err := env.Engine.ArchiveTask(env.Ctx, task.ID)
	if err != nil || !archived.Archived {
		t.Fatalf("archive: %+v %v", archived, err)
	}
	if d := env.Engine.Dashboard(); d.ActiveCount != 0 {
		t.Fatalf("archived task counted as active")
	}
	if err := env.Engine.DeleteTask(env.Ctx, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, task.ID); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRecurringTemplates(t *testing.T) {
	env := newTestEnv(t)
	env.partner(t, "10001", "Alpha")
	b := env.partner(t, "10002", "Beta")

	if _, err := env.Engine.AddRecurring(env.Ctx, engine.RecurringCreateOptions{Title: "x", TriggerMonth: 13}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected month validation, got %v", err)
	}
	r, err := env.Engine.AddRecurring(env.Ctx, engine.RecurringCreateOptions{
		Title: "Year-end adjustment", Category: domain.CategoryOther, TriggerMonth: 12,
	})
	if err != nil {
		t.Fatalf("add recurring: %v", err)
	}

	draft, err := env.Engine.DraftFromTemplate(r.ID, 0)
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if draft.Deadline != domain.NewDate(2024, 12, 1) {
		t.Fatalf("draft deadline = %s", draft.Deadline)
	}
	if len(draft.Assignments) != 2 {
		t.Fatalf("draft should preselect all partners: %+v", draft.Assignments)
	}

	task, err := env.Engine.CreateTaskFromTemplate(env.Ctx, r.ID, 2025, []string{b.ID}, domain.Date{})
	if err != nil {
		t.Fatalf("create from template: %v", err)
	}
	if task.Title != r.Title || task.Deadline != domain.NewDate(2025, 12, 1) {
		t.Fatalf("unexpected task: %+v", task)
	}
	if len(task.Assignments) != 1 || task.Assignments[0].PartnerID != b.ID {
		t.Fatalf("selection not applied: %+v", task.Assignments)
	}
	if _, err := env.Engine.CreateTaskFromTemplate(env.Ctx, r.ID, 2025, []string{"ghost"}, domain.Date{}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if err := env.Engine.DeleteRecurring(env.Ctx, r.ID); err != nil {
		t.Fatalf("delete recurring: %v", err)
	}
	if _, err := env.Engine.DraftFromTemplate(r.ID, 2024); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPersistFailureKeepsState(t *testing.T) {
	env := newTestEnv(t)
	env.Backend.SaveErr = errors.New("disk full")
	p, err := env.Engine.AddPartner(env.Ctx, "10001", "Alpha")
	if !errors.Is(err, store.ErrPersist) {
		t.Fatalf("expected persist error, got %v", err)
	}
	if _, ok := findPartner(env.Engine.State(), p.ID); !ok {
		t.Fatalf("state should keep the partner even if saving failed")
	}
}

func findPartner(state domain.AppState, id string) (domain.Partner, bool) {
	for _, p := range state.Partners {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Partner{}, false
}

func TestToggleBothAssignmentsLeavesUrgent(t *testing.T) {
	env := newTestEnv(t)
	a := env.partner(t, "10001", "Alpha")
	b := env.partner(t, "10002", "Beta")
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:      "TPS提出",
		Category:   domain.CategoryTPS,
		Deadline:   domain.NewDate(2024, 3, 13),
		PartnerIDs: []string{a.ID, b.ID},
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	now := env.Engine.Clock()
	if got := query.UrgentTasks(env.Engine.State(), now); len(got) != 1 || got[0].ID != task.ID {
		t.Fatalf("task due in 3 days should be urgent: %+v", got)
	}

	if _, err := env.Engine.ToggleAssignment(env.Ctx, task.ID, a.ID); err != nil {
		t.Fatalf("toggle a: %v", err)
	}
	if got := query.UrgentTasks(env.Engine.State(), now); len(got) != 1 {
		t.Fatalf("half-done task should stay urgent: %+v", got)
	}
	if _, err := env.Engine.ToggleAssignment(env.Ctx, task.ID, b.ID); err != nil {
		t.Fatalf("toggle b: %v", err)
	}
	if got := query.UrgentTasks(env.Engine.State(), now); len(got) != 0 {
		t.Fatalf("finished task should leave the urgent list: %+v", got)
	}
	if len(query.ActiveTasks(env.Engine.State())) != 1 {
		t.Fatalf("finished task is still active until archived")
	}
}

func TestConcurrentUpdateKeepsToggles(t *testing.T) {
	env := newTestEnv(t)
	var seq atomic.Int64
	env.Engine.NewID = func() string { return fmt.Sprintf("id-%d", seq.Add(1)) }
	a := env.partner(t, "10001", "Alpha")
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "研修", Deadline: domain.NewDate(2024, 4, 1), PartnerIDs: []string{a.ID},
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	const toggles, edits = 41, 40
	var wg sync.WaitGroup
	for i := 0; i < toggles; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.Engine.ToggleAssignment(env.Ctx, task.ID, a.ID); err != nil {
				t.Errorf("toggle: %v", err)
			}
		}()
	}
	for i := 0; i < edits; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			title := fmt.Sprintf("研修 %d", i)
			if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Title: &title}); err != nil {
				t.Errorf("update: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, _ := query.FindTask(env.Engine.State(), task.ID)
	if !got.Assignments[0].Completed {
		t.Fatalf("after %d toggles completed=false, an update overwrote a toggle", toggles)
	}
	if got.Title == "研修" {
		t.Fatalf("title edits were lost")
	}
}

func TestConcurrentAddPartnerRejectsDuplicateCode(t *testing.T) {
	env := newTestEnv(t)
	var seq atomic.Int64
	env.Engine.NewID = func() string { return fmt.Sprintf("id-%d", seq.Add(1)) }

	const n = 20
	var (
		wg      sync.WaitGroup
		added   atomic.Int64
		dupes   atomic.Int64
		unknown atomic.Int64
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.Engine.AddPartner(env.Ctx, "10001", fmt.Sprintf("Office %d", i))
			switch {
			case err == nil:
				added.Add(1)
			case errors.Is(err, engine.ErrDuplicateCode):
				dupes.Add(1)
			default:
				unknown.Add(1)
			}
		}(i)
	}
	wg.Wait()
	if added.Load() != 1 || dupes.Load() != n-1 || unknown.Load() != 0 {
		t.Fatalf("added=%d dupes=%d other=%d", added.Load(), dupes.Load(), unknown.Load())
	}
	if len(env.Engine.State().Partners) != 1 {
		t.Fatalf("partners = %+v", env.Engine.State().Partners)
	}
}

func TestClockWithoutNow(t *testing.T) {
	e := engine.Engine{}
	before := time.Now()
	if got := e.Clock(); got.Before(before) {
		t.Fatalf("clock = %v, want >= %v", got, before)
	}
}
