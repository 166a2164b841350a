package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// NewRunsCmd создаёт группу команд для runs на сервере.
func NewRunsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and cancel runs on the server",
	}

	cmd.AddCommand(
		newRunsListCmd(clientFn, outputFn),
		newRunsShowCmd(clientFn, outputFn),
		newRunsItemsCmd(clientFn, outputFn),
		newRunsCancelCmd(clientFn, outputFn),
	)

	return cmd
}

func newRunsListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListRunsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := clientFn().ListRuns(opts)
			if err != nil {
				return err
			}
			printRuns(outputFn(), runs, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (PENDING, RUNNING, SUCCEEDED, FAILED, CANCELLED)")
	cmd.Flags().StringVar(&opts.ScheduleID, "schedule-id", "", "Filter by schedule ID")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newRunsShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show run details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			run, err := clientFn().GetRun(args[0])
			if err != nil {
				return err
			}

			if out.JSONMode() {
				out.JSON(run)
				return nil
			}

			engine := orDash(run.Spec.EngineVariant)
			if run.Spec.ModelRef != "" {
				engine += " (" + run.Spec.ModelRef + ")"
			}
			input := fmt.Sprintf("%d items", run.Total)
			if run.Spec.Source != "" {
				input = run.Spec.Source
			}

			out.Table([]string{"FIELD", "VALUE"}, [][]string{
				{"ID", run.ID},
				{"STATUS", run.Status},
				{"ENGINE", engine},
				{"STRATEGY", orDash(run.Spec.Strategy)},
				{"INPUT", input},
				{"OUTPUT", orDash(run.Spec.OutputDir)},
				{"RESULT", fmt.Sprintf("%d succeeded, %d failed of %d", run.Succeeded, run.Failed, run.Total)},
				{"DURATION", formatDuration(run.DurationMs)},
				{"SCHEDULE", orDash(run.ScheduleID)},
				{"CREATED", shortTime(run.CreatedAt)},
				{"FINISHED", shortTime(run.FinishedAt)},
				{"ERROR", orDash(run.Error)},
			})
			return nil
		},
	}
}

func newRunsItemsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var failedOnly bool

	cmd := &cobra.Command{
		Use:   "items RUN_ID",
		Short: "List item results of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := clientFn().ListItems(args[0], failedOnly)
			if err != nil {
				return err
			}

			headers := []string{"ID", "OUTCOME", "ARTIFACT", "STAGE", "REASON", "DURATION"}
			rows := make([][]string, len(items))
			for i, it := range items {
				rows[i] = []string{
					it.ID, it.Outcome, orDash(it.ArtifactPath), orDash(it.Stage),
					orDash(it.Reason), formatDuration(it.DurationMs),
				}
			}

			outputFn().Print(headers, rows, items)
			return nil
		},
	}

	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Show only failed items")

	return cmd
}

func newRunsCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a pending or running run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := clientFn().CancelRun(args[0])
			if err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Run cancelled: %s", run.ID))
			return nil
		},
	}
}

// printRuns выводит runs таблицей, а в JSON-режиме — jsonData.
func printRuns(out *Output, runs []RunResponse, jsonData any) {
	headers := []string{"ID", "STATUS", "ENGINE", "TOTAL", "SUCCEEDED", "FAILED", "CREATED"}
	rows := make([][]string, len(runs))
	for i, r := range runs {
		rows[i] = []string{
			r.ID, r.Status, orDash(r.Spec.EngineVariant),
			strconv.Itoa(r.Total), strconv.Itoa(r.Succeeded), strconv.Itoa(r.Failed),
			shortTime(r.CreatedAt),
		}
	}
	out.Print(headers, rows, jsonData)
}

func formatDuration(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return (time.Duration(ms) * time.Millisecond).String()
}
