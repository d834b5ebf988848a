package tracing

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// TaskPrinter can print tasks with a format.
type TaskPrinter interface {
	Print(task Task, depth int, inflight bool)
}

type writerTaskPrinter struct {
	w io.Writer
}

// NewTaskPrinter returns a printer that writes one indented line per task.
func NewTaskPrinter(w io.Writer) TaskPrinter {
	return &writerTaskPrinter{w: w}
}

func (p *writerTaskPrinter) Print(task Task, depth int, inflight bool) {
	state := "ended"
	if inflight {
		state = "in flight"
	}

	fmt.Fprintf(p.w, "%s%s %s-%s@%s (%s)\n",
		strings.Repeat("  ", depth), task.ID, task.Kind, task.What,
		task.Where, state)
}

// BackTraceTracer remembers every task so that the tasks still in flight can
// be printed along with the tasks that caused them.
type BackTraceTracer struct {
	printer TaskPrinter

	lock     sync.Mutex
	tasks    map[string]Task
	order    []string
	inflight map[string]bool
}

// NewBackTraceTracer creates a new BackTraceTracer
func NewBackTraceTracer(printer TaskPrinter) *BackTraceTracer {
	return &BackTraceTracer{
		printer:  printer,
		tasks:    make(map[string]Task),
		inflight: make(map[string]bool),
	}
}

// StartTask remembers the task.
func (t *BackTraceTracer) StartTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.tasks[task.ID] = task
	t.order = append(t.order, task.ID)
	t.inflight[task.ID] = true
}

// StepTask adds the step to the remembered task.
func (t *BackTraceTracer) StepTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	original, ok := t.tasks[task.ID]
	if !ok {
		return
	}

	original.Steps = append(original.Steps, task.Steps...)
	t.tasks[task.ID] = original
}

// EndTask marks the task as ended.
func (t *BackTraceTracer) EndTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	delete(t.inflight, task.ID)
}

// InflightTasks returns the tasks that have started but not ended, in the
// order they started.
func (t *BackTraceTracer) InflightTasks() []Task {
	t.lock.Lock()
	defer t.lock.Unlock()

	var tasks []Task
	for _, id := range t.order {
		if t.inflight[id] {
			tasks = append(tasks, t.tasks[id])
		}
	}

	return tasks
}

// DumpBackTrace prints the task and then its ancestors, one level deeper each.
func (t *BackTraceTracer) DumpBackTrace(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.dumpBackTrace(task, 0)
}

func (t *BackTraceTracer) dumpBackTrace(task Task, depth int) {
	t.printer.Print(task, depth, t.inflight[task.ID])

	if task.ParentID == "" {
		return
	}

	parentTask, ok := t.tasks[task.ParentID]
	if !ok {
		return
	}

	t.dumpBackTrace(parentTask, depth+1)
}

// DumpInflight prints the back trace of every task in flight that no other
// task in flight descends from. It returns the number of back traces printed.
func (t *BackTraceTracer) DumpInflight() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	hasInflightChild := make(map[string]bool)
	for id := range t.inflight {
		hasInflightChild[t.tasks[id].ParentID] = true
	}

	var leaves []string
	for _, id := range t.order {
		if t.inflight[id] && !hasInflightChild[id] {
			leaves = append(leaves, id)
		}
	}

	sort.SliceStable(leaves, func(i, j int) bool {
		return t.tasks[leaves[i]].Where < t.tasks[leaves[j]].Where
	})

	for _, id := range leaves {
		t.dumpBackTrace(t.tasks[id], 0)
	}

	return len(leaves)
}
