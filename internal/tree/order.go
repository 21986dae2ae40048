package tree

import (
	"cmp"

	"tasktree/internal/service"
)

// unrankedStatus sorts unknown statuses after every known one.
const unrankedStatus = 999

var statusRank = map[service.Status]int{
	service.StatusInProgress: 0,
	service.StatusNotStarted: 1,
	service.StatusCasual:     2,
	service.StatusBacklog:    3,
	service.StatusDone:       4,
}

// StatusRank returns the sort rank of a status (lower sorts first).
// An empty status counts as not started.
func StatusRank(s service.Status) int {
	if s == "" {
		s = service.StatusNotStarted
	}
	if rank, ok := statusRank[s]; ok {
		return rank
	}
	return unrankedStatus
}

// CompareRoots orders root-level siblings: status rank ascending, then
// priority descending. Equal tasks compare as 0 so a stable sort keeps
// their input order. Never applied below the root level.
func CompareRoots(a, b service.Task) int {
	if c := cmp.Compare(StatusRank(a.Status), StatusRank(b.Status)); c != 0 {
		return c
	}
	return cmp.Compare(b.Priority, a.Priority)
}
