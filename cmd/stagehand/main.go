// Stagehand CLI — локальный запуск и проверка pipeline, а также
// работа с API stagehand-runner.
//
// Использование:
//
//	stagehand [--api-url URL] [--json] <command> [flags]
//
// Локальные команды:
//
//	run FILE          Выполнить pipeline
//	validate FILE     Скомпилировать pipeline и показать стадии
//	fingerprint FILE  Вывести отпечаток pipeline
//	steps [NAME]      Показать реестр шагов
//
// Команды сервера:
//
//	dispatch PIPELINE Запустить pipeline на runner
//	active            Выполняющиеся run
//	report            Отчёты run
//	schedule          Расписания
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/stagehand/internal/cli"
	"github.com/shaiso/stagehand/internal/steps"
	"github.com/shaiso/stagehand/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool
	var logFormat string

	rootCmd := &cobra.Command{
		Use:           "stagehand",
		Short:         "Stagehand CLI — pipeline orchestration tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Логи в stderr: stdout остаётся для результата.
			telemetry.SetupLoggerTo(os.Stderr, logFormat)
		},
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", envOr("STAGEHAND_API_URL", "http://localhost:8080"), "Runner API URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", envOr("LOG_FORMAT", "text"), "Log format (text, json)")

	registryFn := steps.DefaultRegistry
	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewRunCmd(registryFn, outputFn),
		cli.NewValidateCmd(registryFn, outputFn),
		cli.NewFingerprintCmd(registryFn, outputFn),
		cli.NewStepsCmd(registryFn, outputFn),
		cli.NewDispatchCmd(clientFn, outputFn),
		cli.NewActiveCmd(clientFn, outputFn),
		cli.NewReportCmd(clientFn, outputFn),
		cli.NewScheduleCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, cli.ErrRunNotSuccessful) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
