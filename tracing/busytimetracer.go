package tracing

import (
	"sync"

	"github.com/sarchlab/nbmsg/timing"
)

// BusyTimeTracer measures how long at least one task of a kind is in flight.
// Overlapping tasks are counted once.
type BusyTimeTracer struct {
	timeTeller timing.TimeTeller
	filter     TaskFilter

	lock          sync.Mutex
	inflightTasks map[string]bool
	busySince     timing.TimeInSec
	busyTime      timing.TimeInSec
}

// NewBusyTimeTracer creates a new BusyTimeTracer. A nil filter accepts every
// task.
func NewBusyTimeTracer(
	timeTeller timing.TimeTeller,
	filter TaskFilter,
) *BusyTimeTracer {
	return &BusyTimeTracer{
		timeTeller:    timeTeller,
		filter:        filter,
		inflightTasks: make(map[string]bool),
	}
}

// BusyTime returns the time during which tasks were in flight, including the
// current busy period.
func (t *BusyTimeTracer) BusyTime() timing.TimeInSec {
	t.lock.Lock()
	defer t.lock.Unlock()

	if len(t.inflightTasks) == 0 {
		return t.busyTime
	}

	return t.busyTime + t.timeTeller.CurrentTime() - t.busySince
}

// StartTask opens a busy period if nothing was in flight.
func (t *BusyTimeTracer) StartTask(task Task) {
	if t.filter != nil && !t.filter(task) {
		return
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	if len(t.inflightTasks) == 0 {
		t.busySince = t.timeTeller.CurrentTime()
	}

	t.inflightTasks[task.ID] = true
}

// StepTask does nothing
func (t *BusyTimeTracer) StepTask(_ Task) {
	// Do nothing
}

// EndTask closes the busy period when the last task in flight ends.
func (t *BusyTimeTracer) EndTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if !t.inflightTasks[task.ID] {
		return
	}

	delete(t.inflightTasks, task.ID)

	if len(t.inflightTasks) == 0 {
		t.busyTime += t.timeTeller.CurrentTime() - t.busySince
	}
}
