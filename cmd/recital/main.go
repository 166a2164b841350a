// recital — батчевая озвучка словарей.
//
// Использование:
//
//	recital [--api-url URL] [--json] <command> [flags]
//
// Команды:
//
//	run       Локально озвучить TSV
//	engines   Варианты движков
//	submit    Отправить TSV на сервер
//	runs      Управление серверными runs
//	schedule  Управление расписаниями
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Recital/internal/cli"
	"github.com/shaiso/Recital/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "recital",
		Short:         "Recital — batch text-to-speech for word lists",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := "http://localhost:8080"
	if v := os.Getenv("RECITAL_API_URL"); v != "" {
		defaultURL = v
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }
	loggerFn := func() *slog.Logger { return telemetry.SetupCLILogger(os.Stderr) }

	rootCmd.AddCommand(
		cli.NewRunCmd(outputFn, loggerFn),
		cli.NewEnginesCmd(clientFn, outputFn),
		cli.NewSubmitCmd(clientFn, outputFn),
		cli.NewRunsCmd(clientFn, outputFn),
		cli.NewScheduleCmd(clientFn, outputFn),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return cli.ExitOK
	}

	fmt.Fprintln(os.Stderr, "Error:", err)

	var exit *cli.ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	return cli.ExitFatal
}
