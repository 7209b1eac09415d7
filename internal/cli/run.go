package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/stagehand/internal/domain"
	"github.com/shaiso/stagehand/internal/engine"
	"github.com/shaiso/stagehand/internal/executor"
	"github.com/shaiso/stagehand/internal/pipelinefile"
	"github.com/shaiso/stagehand/internal/runctx"
	"github.com/shaiso/stagehand/internal/steps"
)

// ErrRunNotSuccessful — run завершился не со статусом SUCCESS.
// main превращает её в ненулевой код выхода.
var ErrRunNotSuccessful = errors.New("run did not succeed")

// NewRunCmd создаёт команду локального запуска pipeline.
func NewRunCmd(registryFn func() *steps.Registry, outputFn func() *Output) *cobra.Command {
	var (
		branch  string
		vars    []string
		creds   []string
		key     string
		workers int
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Run a pipeline locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			p, err := compileFile(args[0], registryFn())
			if err != nil {
				return err
			}

			varMap, err := parseKeyValues(vars, "var")
			if err != nil {
				return err
			}
			credMap, err := parseKeyValues(creds, "cred")
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			exec := executor.New(executor.Config{
				Workers:        workers,
				DefaultTimeout: timeout,
				Logger:         slog.Default(),
			})

			rc := runctx.New(runctx.Options{
				Branch:      branch,
				Vars:        toAny(varMap),
				Credentials: credMap,
			})

			report := exec.Run(ctx, p, rc, executor.RunOptions{IdempotencyKey: key})
			printReport(out, report)

			if report.Status != domain.StatusSuccess {
				return fmt.Errorf("%w: %s finished with %s", ErrRunNotSuccessful, report.Pipeline, report.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&branch, "branch", "", "Branch name for guards")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "Initial context variable as KEY=VALUE (repeatable)")
	cmd.Flags().StringArrayVar(&creds, "cred", nil, "Credential descriptor as NAME=REF (repeatable)")
	cmd.Flags().StringVar(&key, "idempotency-key", "", "Idempotency key recorded in the report")
	cmd.Flags().IntVar(&workers, "workers", executor.DefaultWorkers, "Worker pool size for parallel stages")
	cmd.Flags().DurationVar(&timeout, "timeout", executor.DefaultTimeout, "Default step timeout")

	return cmd
}

// printReport выводит итог run: таблицу стадий или весь отчёт в JSON.
func printReport(out *Output, r *domain.RunReport) {
	headers := []string{"STAGE", "PARENT", "STEP", "STATUS", "ATTEMPTS", "DURATION", "ERROR"}
	rows := make([][]string, len(r.Stages))
	for i, s := range r.Stages {
		rows[i] = []string{
			s.StageID,
			s.ParentID,
			s.Step,
			s.Status.String(),
			strconv.Itoa(s.Attempts),
			s.Duration().Round(time.Millisecond).String(),
			s.Error,
		}
	}

	out.Print(headers, rows, r)
	out.Success(fmt.Sprintf("Run %s: %s in %s", r.RunID, r.Status, r.Duration().Round(time.Millisecond)))
}

// compileFile читает и компилирует pipeline.
func compileFile(path string, registry *steps.Registry) (*engine.Pipeline, error) {
	src, err := pipelinefile.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return engine.Compile(src, registry)
}

// parseKeyValues разбирает флаги вида KEY=VALUE.
func parseKeyValues(pairs []string, flag string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	result := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --%s %q, expected KEY=VALUE", flag, kv)
		}
		result[k] = v
	}
	return result, nil
}

func toAny(m map[string]string) map[string]any {
	if m == nil {
		return nil
	}
	result := make(map[string]any, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}
