package tracing

import (
	"context"

	"github.com/sarchlab/nbmsg/datarecording"
	"github.com/sarchlab/nbmsg/timing"
)

// TaskQuery selects tasks from a recorded trace. Empty fields match
// everything.
type TaskQuery struct {
	ID       string
	ParentID string
	Kind     string
	Where    string

	// EnableSteps loads the steps of each returned task.
	EnableSteps bool
}

// RecordedTask is a task read back from a database, together with whether it
// ended before the tracer terminated.
type RecordedTask struct {
	Task
	Finished bool
}

// TraceReader reads the tasks that a DBTracer wrote.
type TraceReader struct {
	reader datarecording.DataReader
}

// NewTraceReader opens a trace database written by a DBTracer.
func NewTraceReader(filename string) (*TraceReader, error) {
	reader, err := datarecording.NewReader(filename)
	if err != nil {
		return nil, err
	}

	reader.MapTable(taskTableName, taskTableEntry{})
	reader.MapTable(stepTableName, stepTableEntry{})

	return &TraceReader{reader: reader}, nil
}

// ListTasks returns the tasks that match the query, ordered by start time.
func (r *TraceReader) ListTasks(
	ctx context.Context,
	query TaskQuery,
) ([]RecordedTask, error) {
	params := datarecording.QueryParams{OrderBy: "StartTime, ID"}
	addCondition(&params, "ID", query.ID)
	addCondition(&params, "ParentID", query.ParentID)
	addCondition(&params, "Kind", query.Kind)
	addCondition(&params, "Location", query.Where)

	results, _, err := r.reader.Query(ctx, taskTableName, params)
	if err != nil {
		return nil, err
	}

	tasks := make([]RecordedTask, 0, len(results))
	for _, result := range results {
		entry := result.(*taskTableEntry)
		task := RecordedTask{
			Task: Task{
				ID:        entry.ID,
				ParentID:  entry.ParentID,
				Kind:      entry.Kind,
				What:      entry.What,
				Where:     entry.Location,
				StartTime: timing.TimeInSec(entry.StartTime),
				EndTime:   timing.TimeInSec(entry.EndTime),
			},
			Finished: entry.Finished,
		}

		if query.EnableSteps {
			task.Steps, err = r.listSteps(ctx, entry.ID)
			if err != nil {
				return nil, err
			}
		}

		tasks = append(tasks, task)
	}

	return tasks, nil
}

func (r *TraceReader) listSteps(
	ctx context.Context,
	taskID string,
) ([]TaskStep, error) {
	results, _, err := r.reader.Query(ctx, stepTableName,
		datarecording.QueryParams{
			Where:   "TaskID = ?",
			Args:    []any{taskID},
			OrderBy: "Time",
		})
	if err != nil {
		return nil, err
	}

	steps := make([]TaskStep, 0, len(results))
	for _, result := range results {
		entry := result.(*stepTableEntry)
		steps = append(steps, TaskStep{
			Time: timing.TimeInSec(entry.Time),
			What: entry.What,
		})
	}

	return steps, nil
}

// ExecInfo returns the description of the run that produced the trace.
func (r *TraceReader) ExecInfo(
	ctx context.Context,
) ([]datarecording.ExecInfo, error) {
	return datarecording.ReadExecInfo(ctx, r.reader)
}

func addCondition(params *datarecording.QueryParams, column, value string) {
	if value == "" {
		return
	}

	if params.Where != "" {
		params.Where += " AND "
	}

	params.Where += column + " = ?"
	params.Args = append(params.Args, value)
}

// Close closes the underlying database.
func (r *TraceReader) Close() error {
	return r.reader.Close()
}
