package store

import "partnertrack/internal/domain"

// Action kinds, matching the tags written by earlier clients of the persisted state.
const (
	KindAddPartner       = "ADD_PARTNER"
	KindUpdatePartner    = "UPDATE_PARTNER"
	KindDeletePartner    = "DELETE_PARTNER"
	KindAddTask          = "ADD_TASK"
	KindUpdateTask       = "UPDATE_TASK"
	KindDeleteTask       = "DELETE_TASK"
	KindToggleAssignment = "TOGGLE_ASSIGNMENT"
	KindArchiveTask      = "ARCHIVE_TASK"
	KindAddRecurring     = "ADD_RECURRING"
	KindDeleteRecurring  = "DELETE_RECURRING"
)

// Action is a closed set of state mutations. Only types in this package implement it.
type Action interface {
	Kind() string
	action()
}

type AddPartner struct{ Partner domain.Partner }

type UpdatePartner struct{ Partner domain.Partner }

type DeletePartner struct{ ID string }

type AddTask struct{ Task domain.Task }

type UpdateTask struct{ Task domain.Task }

type DeleteTask struct{ ID string }

type ToggleAssignment struct {
	TaskID    string
	PartnerID string
}

type ArchiveTask struct{ ID string }

type AddRecurring struct{ Recurring domain.RecurringTask }

type DeleteRecurring struct{ ID string }

func (AddPartner) Kind() string       { return KindAddPartner }
func (UpdatePartner) Kind() string    { return KindUpdatePartner }
func (DeletePartner) Kind() string    { return KindDeletePartner }
func (AddTask) Kind() string          { return KindAddTask }
func (UpdateTask) Kind() string       { return KindUpdateTask }
func (DeleteTask) Kind() string       { return KindDeleteTask }
func (ToggleAssignment) Kind() string { return KindToggleAssignment }
func (ArchiveTask) Kind() string      { return KindArchiveTask }
func (AddRecurring) Kind() string     { return KindAddRecurring }
func (DeleteRecurring) Kind() string  { return KindDeleteRecurring }

func (AddPartner) action()       {}
func (UpdatePartner) action()    {}
func (DeletePartner) action()    {}
func (AddTask) action()          {}
func (UpdateTask) action()       {}
func (DeleteTask) action()       {}
func (ToggleAssignment) action() {}
func (ArchiveTask) action()      {}
func (AddRecurring) action()     {}
func (DeleteRecurring) action()  {}
