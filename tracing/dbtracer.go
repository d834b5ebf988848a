package tracing

import (
	"sync"

	"github.com/sarchlab/nbmsg/datarecording"
	"github.com/sarchlab/nbmsg/timing"
	"github.com/tebeka/atexit"
)

const (
	taskTableName = "trace"
	stepTableName = "trace_step"
)

type taskTableEntry struct {
	ID        string  `json:"id" nbmsg_data:"index"`
	ParentID  string  `json:"parent_id" nbmsg_data:"index"`
	Kind      string  `json:"kind" nbmsg_data:"index"`
	What      string  `json:"what"`
	Location  string  `json:"location" nbmsg_data:"index"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Finished  bool    `json:"finished"`
}

type stepTableEntry struct {
	TaskID string  `json:"task_id" nbmsg_data:"index"`
	What   string  `json:"what"`
	Time   float64 `json:"time"`
}

// DBTracer is a tracer that stores tasks into a database through a
// DataRecorder. Tasks are written when they end; tasks that never end are
// written, unfinished, when the tracer terminates.
type DBTracer struct {
	mu         sync.Mutex
	timeTeller timing.TimeTeller
	backend    datarecording.DataRecorder

	startTime, endTime timing.TimeInSec

	tracingTasks map[string]Task
	terminated   bool
}

// NewDBTracer creates a new DBTracer.
func NewDBTracer(
	timeTeller timing.TimeTeller,
	dataRecorder datarecording.DataRecorder,
) *DBTracer {
	dataRecorder.CreateTable(taskTableName, taskTableEntry{})
	dataRecorder.CreateTable(stepTableName, stepTableEntry{})

	t := &DBTracer{
		timeTeller:   timeTeller,
		backend:      dataRecorder,
		tracingTasks: make(map[string]Task),
	}

	atexit.Register(func() {
		t.Terminate()
	})

	return t
}

// SetTimeRange limits the tracer to tasks that overlap [startTime, endTime].
// A zero bound is open.
func (t *DBTracer) SetTimeRange(startTime, endTime timing.TimeInSec) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.startTime = startTime
	t.endTime = endTime
}

// StartTask marks the start of a task.
func (t *DBTracer) StartTask(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.terminated {
		return
	}

	startingTaskMustBeValid(task)

	task.StartTime = t.timeTeller.CurrentTime()
	if t.endTime > 0 && task.StartTime > t.endTime {
		return
	}

	t.tracingTasks[task.ID] = task
}

func startingTaskMustBeValid(task Task) {
	if task.ID == "" {
		panic("task ID must be set")
	}

	if task.Kind == "" {
		panic("task kind must be set")
	}

	if task.What == "" {
		panic("task what must be set")
	}

	if task.Where == "" {
		panic("task location must be set")
	}
}

// StepTask records a step of a task.
func (t *DBTracer) StepTask(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.tracingTasks[task.ID]; !ok {
		return
	}

	now := t.timeTeller.CurrentTime()
	for _, step := range task.Steps {
		t.backend.InsertData(stepTableName, stepTableEntry{
			TaskID: task.ID,
			What:   step.What,
			Time:   float64(now),
		})
	}
}

// EndTask marks the end of a task.
func (t *DBTracer) EndTask(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	originalTask, ok := t.tracingTasks[task.ID]
	if !ok {
		return
	}

	delete(t.tracingTasks, task.ID)

	originalTask.EndTime = t.timeTeller.CurrentTime()
	if t.startTime > 0 && originalTask.EndTime < t.startTime {
		return
	}

	t.writeTask(originalTask, true)
}

func (t *DBTracer) writeTask(task Task, finished bool) {
	t.backend.InsertData(taskTableName, taskTableEntry{
		ID:        task.ID,
		ParentID:  task.ParentID,
		Kind:      task.Kind,
		What:      task.What,
		Location:  task.Where,
		StartTime: float64(task.StartTime),
		EndTime:   float64(task.EndTime),
		Finished:  finished,
	})
}

// Terminate writes the tasks that are still in flight and flushes the
// backend. Calling Terminate more than once has no further effect.
func (t *DBTracer) Terminate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.terminated {
		return
	}

	for _, task := range t.tracingTasks {
		t.writeTask(task, false)
	}

	t.tracingTasks = nil
	t.terminated = true
	t.backend.Flush()
}
