package query

import (
	"sort"
	"strings"

	"partnertrack/internal/domain"
)

// AssignmentView pairs an assignment with the partner it resolves to.
type AssignmentView struct {
	Assignment domain.TaskAssignment
	Partner    domain.Partner
}

// SearchAssignments resolves the task's assignments against partners and keeps
// those whose partner name or code contains q, ignoring case. Assignments whose
// partner no longer exists are dropped. Incomplete assignments come first, then
// ties are ordered by partner code.
func SearchAssignments(task domain.Task, partners []domain.Partner, q string) []AssignmentView {
	needle := strings.ToLower(strings.TrimSpace(q))
	out := []AssignmentView{}
	for _, a := range task.Assignments {
		p, ok := findPartner(partners, a.PartnerID)
		if !ok {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(strings.ToLower(p.Code), needle) {
			continue
		}
		out = append(out, AssignmentView{Assignment: a, Partner: p})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Assignment.Completed != out[j].Assignment.Completed {
			return !out[i].Assignment.Completed
		}
		return out[i].Partner.Code < out[j].Partner.Code
	})
	return out
}
