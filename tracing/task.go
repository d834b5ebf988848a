package tracing

import "github.com/sarchlab/nbmsg/timing"

// A TaskStep represents a milestone in the processing of task
type TaskStep struct {
	Time timing.TimeInSec `json:"time"`
	What string           `json:"what"`
}

// A Task is a traced span of work. Every observed call and every request is
// a task.
type Task struct {
	ID        string           `json:"id"`
	ParentID  string           `json:"parent_id"`
	Kind      string           `json:"kind"`
	What      string           `json:"what"`
	Where     string           `json:"where"`
	StartTime timing.TimeInSec `json:"start_time"`
	EndTime   timing.TimeInSec `json:"end_time"`
	Steps     []TaskStep       `json:"steps"`
	Detail    any              `json:"-"`
}

// TaskFilter is a function that can filter interesting tasks. If this function
// returns true, the task is considered useful.
type TaskFilter func(t Task) bool

// KindFilter keeps tasks of the given kind and, when whats is not empty, one of
// the given whats.
func KindFilter(kind string, whats ...string) TaskFilter {
	return func(t Task) bool {
		if t.Kind != kind {
			return false
		}

		if len(whats) == 0 {
			return true
		}

		for _, w := range whats {
			if t.What == w {
				return true
			}
		}

		return false
	}
}
