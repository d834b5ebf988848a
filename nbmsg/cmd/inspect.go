package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarchlab/nbmsg/tracing"
)

func newInspectCmd() *cobra.Command {
	inspectCmd := &cobra.Command{
		Use:   "inspect <db>",
		Short: "Print the tasks recorded in a trace database.",
		Long: "`inspect trace.sqlite3` lists every recorded call and request " +
			"in start order. Requests that never completed are shown as " +
			"unfinished.",
		Args: cobra.ExactArgs(1),
		RunE: inspectTrace,
	}

	inspectCmd.Flags().String("kind", "", "Only list tasks of this kind")
	inspectCmd.Flags().String("where", "", "Only list tasks of this endpoint")
	inspectCmd.Flags().Bool("steps", true, "Show the steps of each task")

	return inspectCmd
}

func inspectTrace(cmd *cobra.Command, args []string) error {
	filename := args[0]

	_, err := os.Stat(filename)
	if err != nil {
		return err
	}

	reader, err := tracing.NewTraceReader(filename)
	if err != nil {
		return err
	}
	defer reader.Close()

	kind, _ := cmd.Flags().GetString("kind")
	where, _ := cmd.Flags().GetString("where")
	steps, _ := cmd.Flags().GetBool("steps")

	tasks, err := reader.ListTasks(cmd.Context(), tracing.TaskQuery{
		Kind:        kind,
		Where:       where,
		EnableSteps: steps,
	})
	if err != nil {
		return fmt.Errorf("reading %s: %w", filename, err)
	}

	infos, err := reader.ExecInfo(cmd.Context())
	if err != nil {
		return fmt.Errorf("reading %s: %w", filename, err)
	}

	for _, info := range infos {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", info.Property, info.Value)
	}

	if len(infos) > 0 {
		fmt.Fprintln(cmd.OutOrStdout())
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPARENT\tKIND\tWHAT\tWHERE\tSTART\tEND\tSTEPS")

	for _, t := range tasks {
		end := fmt.Sprintf("%.9f", float64(t.EndTime))
		if !t.Finished {
			end = "unfinished"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.9f\t%s\t%s\n",
			t.ID, t.ParentID, t.Kind, t.What, t.Where,
			float64(t.StartTime), end, formatSteps(t.Steps))
	}

	return w.Flush()
}

func formatSteps(steps []tracing.TaskStep) string {
	if len(steps) == 0 {
		return "-"
	}

	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.What
	}

	return strings.Join(names, ",")
}
