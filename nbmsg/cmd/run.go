package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarchlab/nbmsg/comm"
	"github.com/sarchlab/nbmsg/config"
	"github.com/sarchlab/nbmsg/datarecording"
	"github.com/sarchlab/nbmsg/harness"
	"github.com/sarchlab/nbmsg/idgen"
	"github.com/sarchlab/nbmsg/timing"
	"github.com/sarchlab/nbmsg/tracing"
)

type runOptions struct {
	sc harness.Scenario

	timeout     time.Duration
	jsonTrace   bool
	monitor     bool
	openBrowser bool
}

// runReport is what the run command prints.
type runReport struct {
	Size     int         `json:"size"`
	Sender   comm.Rank   `json:"sender"`
	Receiver comm.Rank   `json:"receiver"`
	Send     comm.Status `json:"send"`
	Recv     comm.Status `json:"recv"`
	Received int32       `json:"received"`

	SendError string `json:"send_error,omitempty"`
	RecvError string `json:"recv_error,omitempty"`
	Error     string `json:"error,omitempty"`

	WaitCalls       uint64  `json:"wait_calls"`
	AverageWaitTime float64 `json:"average_wait_time"`
	TotalWaitTime   float64 `json:"total_wait_time"`
	RequestBusyTime float64 `json:"request_busy_time"`
	Matched         uint64  `json:"matched"`
}

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the exchange and print the completion records.",
		Long: "`run` initializes a world, lets the sender post a send and " +
			"the receiver post a receive, and waits on both. When the tags " +
			"do not match, the receive stays pending until --timeout.",
		Args: cobra.NoArgs,
		RunE: runExchange,
	}

	flags := runCmd.Flags()
	flags.Int("size", 2, "Number of endpoints in the world")
	flags.Int("sender", 0, "Rank of the sender")
	flags.Int("receiver", 1, "Rank of the receiver")
	flags.Int("tag", int(harness.DefaultTag), "Tag of the send")
	flags.Int("recv-tag", int(harness.DefaultTag),
		"Tag of the receive, same as --tag unless set")
	flags.Int32("value", 42, "Value to send")
	flags.Duration("timeout", 5*time.Second,
		"Give up waiting after this long, 0 waits forever")
	flags.Int("eager-limit", 0, "Largest send in bytes that completes eagerly")
	flags.Duration("match-timeout", 0,
		"Fail requests that stay unmatched this long, 0 disables")
	flags.String("trace-db", "", "Record the trace into this SQLite file")
	flags.Bool("json-trace", false, "Record the trace into a JSON file")
	flags.Bool("parallel-id", false, "Use globally unique IDs")
	flags.Bool("monitor", false, "Serve the live state over HTTP")
	flags.Int("port", 0, "Port of the monitoring server")
	flags.Bool("open-browser", false, "Open the monitor in a browser")

	return runCmd
}

func runExchange(cmd *cobra.Command, _ []string) error {
	cfg, opts, err := loadRunSettings(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)

	ids := idgen.NewSequential()
	if cfg.ParallelID {
		ids = idgen.NewParallel()
	}

	world := comm.NewWorld(cfg.Size,
		comm.WithEagerLimit(cfg.EagerLimit),
		comm.WithMatchTimeout(cfg.MatchTimeout),
		comm.WithIDGenerator(ids),
		comm.WithLogger(logger),
	)

	clock := timing.NewWallClock()
	waitTracer := tracing.NewAverageTimeTracer(clock,
		tracing.KindFilter(comm.TaskKindCall, string(comm.OpWait)))
	totalWaitTracer := tracing.NewTotalTimeTracer(clock,
		tracing.KindFilter(comm.TaskKindCall, string(comm.OpWait)))
	matchTracer := tracing.NewStepCountTracer(
		tracing.KindFilter(comm.TaskKindReq))
	busyTracer := tracing.NewBusyTimeTracer(clock,
		tracing.KindFilter(comm.TaskKindReq))
	backTracer := tracing.NewBackTraceTracer(
		tracing.NewTaskPrinter(cmd.ErrOrStderr()))
	world.CollectTrace(waitTracer)
	world.CollectTrace(totalWaitTracer)
	world.CollectTrace(matchTracer)
	world.CollectTrace(busyTracer)
	world.CollectTrace(backTracer)

	var (
		dbTracer *tracing.DBTracer
		execInfo *datarecording.ExecRecorder
	)
	if cfg.TraceDB != "" {
		recorder := datarecording.NewDataRecorder(cfg.TraceDB)
		execInfo = datarecording.NewExecRecorder(recorder)
		execInfo.Start()
		recordScenario(execInfo, cfg, opts.sc)

		dbTracer = tracing.NewDBTracer(clock, recorder)
		world.CollectTrace(dbTracer)
	}

	if opts.jsonTrace {
		world.CollectTrace(tracing.NewJSONTracerToFile(clock))
	}

	if opts.monitor {
		m := startMonitor(world, cfg.MonitorPort, opts.openBrowser, logger)
		defer func() { _ = m.StopServer() }()
	}

	err = world.Init()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	res, runErr := harness.Run(ctx, world, opts.sc)

	if runErr == nil {
		err = world.Finalize()
	} else {
		logger.Warn("exchange did not complete",
			"err", runErr, "pending", countPending(world))
		backTracer.DumpInflight()
	}

	if dbTracer != nil {
		if runErr != nil {
			execInfo.Set("Error", runErr.Error())
		}

		execInfo.End()
		dbTracer.Terminate()
	}

	report := runReport{
		Size:            cfg.Size,
		Sender:          opts.sc.Sender,
		Receiver:        opts.sc.Receiver,
		Send:            res.SendStatus,
		Recv:            res.RecvStatus,
		Received:        res.Received,
		WaitCalls:       waitTracer.TotalCount(),
		AverageWaitTime: float64(waitTracer.AverageTime()),
		TotalWaitTime:   float64(totalWaitTracer.TotalTime()),
		RequestBusyTime: float64(busyTracer.BusyTime()),
		Matched:         matchTracer.GetTaskCount(comm.StepMatched),
	}
	if res.SendStatus.Err != nil {
		report.SendError = res.SendStatus.Err.Error()
	}
	if res.RecvStatus.Err != nil {
		report.RecvError = res.RecvStatus.Err.Error()
	}
	if runErr != nil {
		report.Error = runErr.Error()
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(report); encErr != nil {
		return encErr
	}

	return errors.Join(runErr, err)
}

// loadRunSettings reads the configuration and lets explicitly set flags take
// precedence over it.
func loadRunSettings(
	cmd *cobra.Command,
) (config.Config, runOptions, error) {
	var opts runOptions

	envFiles, _ := cmd.Flags().GetStringSlice("env-file")
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return cfg, opts, err
	}

	flags := cmd.Flags()
	if flags.Changed("size") {
		cfg.Size, _ = flags.GetInt("size")
	}

	if flags.Changed("eager-limit") {
		cfg.EagerLimit, _ = flags.GetInt("eager-limit")
	}

	if flags.Changed("match-timeout") {
		cfg.MatchTimeout, _ = flags.GetDuration("match-timeout")
	}

	if flags.Changed("trace-db") {
		cfg.TraceDB, _ = flags.GetString("trace-db")
	}

	if flags.Changed("port") {
		cfg.MonitorPort, _ = flags.GetInt("port")
	}

	if flags.Changed("parallel-id") {
		cfg.ParallelID, _ = flags.GetBool("parallel-id")
	}

	cfg.LogLevel, err = parseLevel(cmd, cfg.LogLevel)
	if err != nil {
		return cfg, opts, err
	}

	err = cfg.Validate()
	if err != nil {
		return cfg, opts, err
	}

	sender, _ := flags.GetInt("sender")
	receiver, _ := flags.GetInt("receiver")
	if cfg.Size == 1 && !flags.Changed("receiver") {
		receiver = sender
	}

	tag, _ := flags.GetInt("tag")
	recvTag, _ := flags.GetInt("recv-tag")
	if !flags.Changed("recv-tag") {
		recvTag = tag
	}

	value, _ := flags.GetInt32("value")

	opts.sc = harness.Scenario{
		Sender:   comm.Rank(sender),
		Receiver: comm.Rank(receiver),
		SendTag:  comm.Tag(tag),
		RecvTag:  comm.Tag(recvTag),
		Value:    value,
	}
	opts.timeout, _ = flags.GetDuration("timeout")
	opts.jsonTrace, _ = flags.GetBool("json-trace")
	opts.monitor, _ = flags.GetBool("monitor")
	opts.openBrowser, _ = flags.GetBool("open-browser")

	if opts.timeout < 0 {
		return cfg, opts, fmt.Errorf("timeout must not be negative, got %s",
			opts.timeout)
	}

	return cfg, opts, nil
}

func recordScenario(
	e *datarecording.ExecRecorder,
	cfg config.Config,
	sc harness.Scenario,
) {
	e.Set("Size", strconv.Itoa(cfg.Size))
	e.Set("Sender", strconv.Itoa(int(sc.Sender)))
	e.Set("Receiver", strconv.Itoa(int(sc.Receiver)))
	e.Set("Send Tag", strconv.Itoa(int(sc.SendTag)))
	e.Set("Receive Tag", strconv.Itoa(int(sc.RecvTag)))
	e.Set("Eager Limit", strconv.Itoa(cfg.EagerLimit))
	e.Set("Match Timeout", cfg.MatchTimeout.String())
}

func countPending(world *comm.World) int {
	n := 0
	for _, e := range world.Endpoints() {
		n += len(e.Pending())
	}

	return n
}
