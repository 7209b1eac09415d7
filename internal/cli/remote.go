package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewReportCmd создаёт группу команд для отчётов на сервере.
func NewReportCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Browse run reports stored by the runner",
	}

	cmd.AddCommand(
		newReportListCmd(clientFn, outputFn),
		newReportShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newReportListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListReportsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			reports, err := client.ListReports(opts)
			if err != nil {
				return err
			}

			headers := []string{"RUN_ID", "PIPELINE", "BRANCH", "STATUS", "DURATION_MS", "STARTED"}
			rows := make([][]string, len(reports))
			for i, r := range reports {
				rows[i] = []string{r.RunID, r.Pipeline, r.Branch, r.Status, strconv.FormatInt(r.DurationMs, 10), r.StartedAt}
			}

			out.Print(headers, rows, reports)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Pipeline, "pipeline", "", "Filter by pipeline name")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (SUCCESS, FAILURE, SKIPPED, ABORTED)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newReportShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show a report with stage outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			report, err := client.GetReport(args[0])
			if err != nil {
				return err
			}

			stages, _ := report["stages"].([]any)
			headers := []string{"STAGE", "PARENT", "STEP", "STATUS", "ATTEMPTS", "ERROR"}
			rows := make([][]string, 0, len(stages))
			for _, s := range stages {
				stage, ok := s.(map[string]any)
				if !ok {
					continue
				}
				rows = append(rows, []string{
					field(stage, "stage_id"),
					field(stage, "parent_id"),
					field(stage, "step"),
					field(stage, "status"),
					field(stage, "attempts"),
					field(stage, "error"),
				})
			}

			out.Print(headers, rows, report)
			out.Success(fmt.Sprintf("Run %s: %s", field(report, "run_id"), field(report, "status")))
			return nil
		},
	}
}

// NewDispatchCmd создаёт команду запуска pipeline на сервере.
func NewDispatchCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		branch string
		vars   []string
		key    string
	)

	cmd := &cobra.Command{
		Use:   "dispatch PIPELINE",
		Short: "Start a pipeline on the runner",
		Long:  "Start a pipeline on the runner. PIPELINE is a path relative to the runner's pipeline directory.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			varMap, err := parseKeyValues(vars, "var")
			if err != nil {
				return err
			}

			accepted, err := client.StartRun(CreateRunRequest{
				Pipeline:       args[0],
				Branch:         branch,
				Vars:           toAny(varMap),
				IdempotencyKey: key,
			})
			if err != nil {
				return err
			}

			if accepted.Duplicate {
				out.Success(fmt.Sprintf("Run already exists: %s", accepted.RunID))
			} else {
				out.Success(fmt.Sprintf("Run started: %s", accepted.RunID))
			}
			if out.JSONMode() {
				out.JSON(accepted)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&branch, "branch", "", "Branch name for guards")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "Initial context variable as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&key, "idempotency-key", "", "Deduplication key")

	return cmd
}

// NewActiveCmd создаёт команду вывода выполняющихся run.
func NewActiveCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "List runs currently executing on the runner",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ActiveRuns()
			if err != nil {
				return err
			}

			headers := []string{"RUN_ID", "PIPELINE", "BRANCH", "SOURCE", "STARTED"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{r.RunID, r.Pipeline, r.Branch, r.Source, r.StartedAt}
			}

			out.Print(headers, rows, runs)
			return nil
		},
	}
}

// NewScheduleCmd создаёт группу команд для расписаний.
func NewScheduleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect schedules loaded by the runner",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			schedules, err := client.ListSchedules()
			if err != nil {
				return err
			}

			headers := []string{"NAME", "PIPELINE", "TRIGGER", "ENABLED", "NEXT_DUE", "LAST_RUN_ID"}
			rows := make([][]string, len(schedules))
			for i, s := range schedules {
				trigger := s.CronExpr
				if trigger == "" {
					trigger = fmt.Sprintf("every %ds", s.IntervalSec)
				}
				rows[i] = []string{s.Name, s.Pipeline, trigger, strconv.FormatBool(s.Enabled), s.NextDueAt, s.LastRunID}
			}

			out.Print(headers, rows, schedules)
			return nil
		},
	})

	return cmd
}

// field возвращает значение поля JSON-объекта строкой.
func field(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
