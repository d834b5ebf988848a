package datarecording

import (
	"context"
	"os"
	"slices"
	"strings"
	"time"
)

// ExecTableName is the table that holds the description of a program run.
const ExecTableName = "exec_info"

const execTimeFormat = "2006-01-02 15:04:05.000000000"

// ExecInfo is one property of a program run.
type ExecInfo struct {
	Property string
	Value    string
}

// ExecRecorder records how and when the program ran next to the data it
// produced.
type ExecRecorder struct {
	recorder DataRecorder
	entries  []ExecInfo
}

// NewExecRecorder creates the exec table in the recorder.
func NewExecRecorder(recorder DataRecorder) *ExecRecorder {
	recorder.CreateTable(ExecTableName, ExecInfo{})

	return &ExecRecorder{recorder: recorder}
}

// Start records the start time, the command line and the working directory.
func (e *ExecRecorder) Start() {
	e.Set("Start Time", time.Now().Format(execTimeFormat))
	e.Set("Command", strings.Join(os.Args, " "))

	cwd, err := os.Getwd()
	if err != nil {
		panic(err)
	}

	e.Set("Working Directory", cwd)
}

// Set records an additional property of the run.
func (e *ExecRecorder) Set(property, value string) {
	e.entries = append(e.entries, ExecInfo{Property: property, Value: value})
}

// End writes the recorded properties along with the end time.
func (e *ExecRecorder) End() {
	e.Set("End Time", time.Now().Format(execTimeFormat))

	for _, entry := range e.entries {
		e.recorder.InsertData(ExecTableName, entry)
	}

	e.entries = nil

	e.recorder.Flush()
}

// ReadExecInfo returns the recorded properties of the run, or nothing if the
// database has no exec table.
func ReadExecInfo(ctx context.Context, reader DataReader) ([]ExecInfo, error) {
	tables, err := reader.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	if !slices.Contains(tables, ExecTableName) {
		return nil, nil
	}

	reader.MapTable(ExecTableName, ExecInfo{})

	results, _, err := reader.Query(ctx, ExecTableName, QueryParams{})
	if err != nil {
		return nil, err
	}

	infos := make([]ExecInfo, 0, len(results))
	for _, result := range results {
		infos = append(infos, *result.(*ExecInfo))
	}

	return infos, nil
}
