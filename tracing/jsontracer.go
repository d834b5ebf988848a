package tracing

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/xid"
	"github.com/sarchlab/nbmsg/timing"
	"github.com/tebeka/atexit"
)

// JSONTracer writes finished tasks as a JSON array.
type JSONTracer struct {
	w             io.Writer
	timeTeller    timing.TimeTeller
	lock          sync.Mutex
	firstTask     bool
	finished      bool
	inflightTasks map[string]Task
}

// NewJSONTracer creates a JSONTracer that writes into w. The opening bracket
// is written immediately; Close writes the closing one.
func NewJSONTracer(w io.Writer, timeTeller timing.TimeTeller) *JSONTracer {
	_, err := w.Write([]byte("[\n"))
	if err != nil {
		panic(err)
	}

	return &JSONTracer{
		w:             w,
		timeTeller:    timeTeller,
		firstTask:     true,
		inflightTasks: make(map[string]Task),
	}
}

// NewJSONTracerToFile creates a JSONTracer that writes into a new file with a
// unique name. The file is closed at exit.
func NewJSONTracerToFile(timeTeller timing.TimeTeller) *JSONTracer {
	filename := xid.New().String() + ".json"

	f, err := os.Create(filename)
	if err != nil {
		panic(err)
	}

	fmt.Fprintf(os.Stderr, "Recording tasks in %s\n", filename)

	t := NewJSONTracer(f, timeTeller)

	atexit.Register(func() {
		t.Close()
		f.Close()
	})

	return t
}

// StartTask records the start of a task
func (t *JSONTracer) StartTask(task Task) {
	task.StartTime = t.timeTeller.CurrentTime()

	t.lock.Lock()
	t.inflightTasks[task.ID] = task
	t.lock.Unlock()
}

// StepTask records the moment that a task reaches a milestone
func (t *JSONTracer) StepTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	originalTask, ok := t.inflightTasks[task.ID]
	if !ok {
		return
	}

	now := t.timeTeller.CurrentTime()
	for _, step := range task.Steps {
		step.Time = now
		originalTask.Steps = append(originalTask.Steps, step)
	}

	t.inflightTasks[task.ID] = originalTask
}

// EndTask records the time that a task is completed.
func (t *JSONTracer) EndTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	originalTask, ok := t.inflightTasks[task.ID]
	if !ok || t.finished {
		return
	}

	originalTask.EndTime = t.timeTeller.CurrentTime()
	delete(t.inflightTasks, task.ID)

	if t.firstTask {
		t.firstTask = false
	} else {
		t.mustWrite([]byte(",\n"))
	}

	b, err := json.Marshal(originalTask)
	if err != nil {
		panic(err)
	}

	t.mustWrite(b)
}

// Close terminates the JSON array. Tasks that end afterwards are dropped.
func (t *JSONTracer) Close() {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.finished {
		return
	}

	t.finished = true
	t.mustWrite([]byte("\n]"))
}

func (t *JSONTracer) mustWrite(b []byte) {
	_, err := t.w.Write(b)
	if err != nil {
		panic(err)
	}
}
