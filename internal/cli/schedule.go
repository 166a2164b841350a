package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewScheduleCmd создаёт группу команд для расписаний повторной озвучки.
func NewScheduleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage periodic re-runs of a TSV file",
	}

	cmd.AddCommand(
		newScheduleListCmd(clientFn, outputFn),
		newScheduleCreateCmd(clientFn, outputFn),
		newScheduleShowCmd(clientFn, outputFn),
		newScheduleUpdateCmd(clientFn, outputFn),
		newScheduleDeleteCmd(clientFn, outputFn),
		newScheduleToggleCmd(clientFn, outputFn, true),
		newScheduleToggleCmd(clientFn, outputFn, false),
	)

	return cmd
}

func newScheduleListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var enabledOnly, disabledOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter *bool
			switch {
			case enabledOnly && disabledOnly:
				return fmt.Errorf("--enabled and --disabled are mutually exclusive")
			case enabledOnly, disabledOnly:
				filter = &enabledOnly
			}

			schedules, err := clientFn().ListSchedules(filter)
			if err != nil {
				return err
			}
			printSchedules(outputFn(), schedules, schedules)
			return nil
		},
	}

	cmd.Flags().BoolVar(&enabledOnly, "enabled", false, "Only enabled schedules")
	cmd.Flags().BoolVar(&disabledOnly, "disabled", false, "Only disabled schedules")

	return cmd
}

func newScheduleCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		spec     specFlags
		name     string
		cronExpr string
		interval time.Duration
		timezone string
		disabled bool
	)

	cmd := &cobra.Command{
		Use:   "create SOURCE",
		Short: "Create a schedule that re-synthesizes SOURCE (a TSV path on the worker host)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runSpec, err := spec.spec()
			if err != nil {
				return err
			}
			runSpec.Source = args[0]

			req := CreateScheduleRequest{
				Name:        name,
				Spec:        runSpec,
				CronExpr:    cronExpr,
				IntervalSec: int(interval / time.Second),
				Timezone:    timezone,
				Enabled:     !disabled,
			}

			schedule, err := clientFn().CreateSchedule(req)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Schedule created: %s", schedule.ID))
			printSchedules(out, []ScheduleResponse{*schedule}, schedule)
			return nil
		},
	}

	spec.register(cmd)
	cmd.Flags().StringVar(&name, "name", "", "Schedule name (required)")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression (e.g. '0 3 * * *')")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Interval between runs (e.g. 6h)")
	cmd.Flags().StringVar(&timezone, "timezone", "", "Timezone for cron (e.g. 'Europe/Moscow')")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Create the schedule disabled")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newScheduleShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show schedule details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			s, err := clientFn().GetSchedule(args[0])
			if err != nil {
				return err
			}

			if out.JSONMode() {
				out.JSON(s)
				return nil
			}

			out.Table([]string{"FIELD", "VALUE"}, [][]string{
				{"ID", s.ID},
				{"NAME", orDash(s.Name)},
				{"TIMING", formatTiming(s)},
				{"ENABLED", strconv.FormatBool(s.Enabled)},
				{"SOURCE", s.Spec.Source},
				{"ENGINE", orDash(s.Spec.EngineVariant)},
				{"OUTPUT", orDash(s.Spec.OutputDir)},
				{"NEXT_DUE", shortTime(s.NextDueAt)},
				{"LAST_RUN", orDash(s.LastRunID)},
				{"LAST_RUN_AT", shortTime(s.LastRunAt)},
			})
			return nil
		},
	}
}

func newScheduleUpdateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		spec     specFlags
		name     string
		source   string
		cronExpr string
		interval time.Duration
		timezone string
	)

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Update a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			flags := cmd.Flags()

			req := UpdateScheduleRequest{}
			if flags.Changed("name") {
				req.Name = &name
			}
			if flags.Changed("cron") {
				req.CronExpr = &cronExpr
			}
			if flags.Changed("interval") {
				sec := int(interval / time.Second)
				req.IntervalSec = &sec
			}
			if flags.Changed("timezone") {
				req.Timezone = &timezone
			}

			// параметры run меняются поверх текущих
			if flags.Changed("source") || anyChanged(cmd, "engine", "model", "param", "strategy", "concurrency", "batch-size", "out") {
				current, err := client.GetSchedule(args[0])
				if err != nil {
					return err
				}
				patch, err := spec.spec()
				if err != nil {
					return err
				}
				merged := current.Spec
				if source != "" {
					merged.Source = source
				}
				if patch.EngineVariant != "" {
					merged.EngineVariant = patch.EngineVariant
					merged.EngineParams = nil
				}
				if patch.ModelRef != "" {
					merged.ModelRef = patch.ModelRef
				}
				if patch.EngineParams != nil {
					if merged.EngineParams == nil {
						merged.EngineParams = make(map[string]any)
					}
					for k, v := range patch.EngineParams {
						merged.EngineParams[k] = v
					}
				}
				if patch.Strategy != "" {
					merged.Strategy = patch.Strategy
				}
				if patch.Concurrency != 0 {
					merged.Concurrency = patch.Concurrency
				}
				if patch.BatchSize != 0 {
					merged.BatchSize = patch.BatchSize
				}
				if patch.OutputDir != "" {
					merged.OutputDir = patch.OutputDir
				}
				req.Spec = &merged
			}

			schedule, err := client.UpdateSchedule(args[0], req)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success("Schedule updated")
			printSchedules(out, []ScheduleResponse{*schedule}, schedule)
			return nil
		},
	}

	spec.register(cmd)
	cmd.Flags().StringVar(&name, "name", "", "New schedule name")
	cmd.Flags().StringVar(&source, "source", "", "New TSV path on the worker host")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "New cron expression")
	cmd.Flags().DurationVar(&interval, "interval", 0, "New interval between runs")
	cmd.Flags().StringVar(&timezone, "timezone", "", "New timezone")

	return cmd
}

func newScheduleDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().DeleteSchedule(args[0]); err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Schedule deleted: %s", args[0]))
			return nil
		},
	}
}

// newScheduleToggleCmd создаёт enable или disable.
func newScheduleToggleCmd(clientFn func() *Client, outputFn func() *Output, enable bool) *cobra.Command {
	verb := "disable"
	if enable {
		verb = "enable"
	}

	return &cobra.Command{
		Use:   verb + " ID",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := clientFn().SetScheduleEnabled(args[0], enable); err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Schedule %sd: %s", verb, args[0]))
			return nil
		},
	}
}

func printSchedules(out *Output, schedules []ScheduleResponse, jsonData any) {
	headers := []string{"ID", "NAME", "TIMING", "SOURCE", "ENABLED", "NEXT_DUE"}
	rows := make([][]string, len(schedules))
	for i, s := range schedules {
		rows[i] = []string{
			s.ID, orDash(s.Name), formatTiming(&s), s.Spec.Source,
			strconv.FormatBool(s.Enabled), shortTime(s.NextDueAt),
		}
	}
	out.Print(headers, rows, jsonData)
}

func formatTiming(s *ScheduleResponse) string {
	switch {
	case s.CronExpr != "":
		tz := s.Timezone
		if tz == "" {
			tz = "UTC"
		}
		return fmt.Sprintf("cron %s (%s)", s.CronExpr, tz)
	case s.IntervalSec > 0:
		return "every " + (time.Duration(s.IntervalSec) * time.Second).String()
	}
	return "-"
}

func anyChanged(cmd *cobra.Command, names ...string) bool {
	for _, n := range names {
		if cmd.Flags().Changed(n) {
			return true
		}
	}
	return false
}
