package query

import (
	"fmt"
	"math"

	"partnertrack/internal/domain"
)

type ProgressBand string

const (
	BandComplete ProgressBand = "complete"
	BandWarning  ProgressBand = "warning"
	BandNormal   ProgressBand = "normal"
)

// TaskProgress is the completion summary shown next to every task.
type TaskProgress struct {
	Completed int          `json:"completed"`
	Total     int          `json:"total"`
	Percent   int          `json:"percent"`
	Band      ProgressBand `json:"band"`
}

// CompletionCount returns how many assignments are done and how many exist.
func CompletionCount(t domain.Task) (completed, total int) {
	for _, a := range t.Assignments {
		if a.Completed {
			completed++
		}
	}
	return completed, len(t.Assignments)
}

// ProgressPercentage rounds half up; a task with no assignments is 0%.
func ProgressPercentage(current, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Floor(float64(current)/float64(total)*100 + 0.5))
}

func Band(percent int) ProgressBand {
	switch {
	case percent == 100:
		return BandComplete
	case percent < 30:
		return BandWarning
	default:
		return BandNormal
	}
}

func Progress(t domain.Task) TaskProgress {
	completed, total := CompletionCount(t)
	pct := ProgressPercentage(completed, total)
	return TaskProgress{Completed: completed, Total: total, Percent: pct, Band: Band(pct)}
}

// IsComplete reports whether every assignment is done. A task with no assignments is not complete.
func IsComplete(t domain.Task) bool {
	completed, total := CompletionCount(t)
	return total > 0 && completed == total
}

// Label renders the percentage as shown in task lists, e.g. "50% 完了".
func (p TaskProgress) Label() string {
	return fmt.Sprintf("%d%% 完了", p.Percent)
}

// Counts renders completed and total assignments, e.g. "2 / 4 件".
func (p TaskProgress) Counts() string {
	return fmt.Sprintf("%d / %d 件", p.Completed, p.Total)
}
