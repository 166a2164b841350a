package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shaiso/Recital/internal/config"
	"github.com/shaiso/Recital/internal/domain"
	"github.com/shaiso/Recital/internal/engine"
	"github.com/shaiso/Recital/internal/orchestrator"
	"github.com/shaiso/Recital/internal/report"
	"github.com/shaiso/Recital/internal/source"
	"github.com/shaiso/Recital/internal/telemetry"
)

// localOptions — флаги `recital run`.
type localOptions struct {
	spec        specFlags
	configPath  string
	workDir     string
	reportPath  string
	format      string
	metricsAddr string
	quiet       bool
}

// NewRunCmd создаёт команду локального выполнения run: TSV → аудиофайлы.
//
// Команда не требует сервера. Конфигурация берётся из --config,
// ./recital.yaml или ~/.config/recital/config.yaml; флаги имеют приоритет.
func NewRunCmd(outputFn func() *Output, loggerFn func() *slog.Logger) *cobra.Command {
	var opts localOptions

	cmd := &cobra.Command{
		Use:   "run TSV",
		Short: "Synthesize every row of a TSV file into an audio file",
		Long: `Reads id<TAB>text rows and writes <out>/<id>.<ext> for each of them.

Exit status is 0 when every item succeeded, 2 when the run finished but
some items failed, and 1 when the run could not be executed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocal(cmd.Context(), args[0], opts, outputFn(), loggerFn())
		},
	}

	opts.spec.register(cmd)
	fs := cmd.Flags()
	fs.StringVarP(&opts.configPath, "config", "c", "", "Config file (default: ./recital.yaml, then ~/.config/recital/config.yaml)")
	fs.StringVar(&opts.workDir, "work-dir", "", "Directory for intermediate WAV files (default: system temp)")
	fs.StringVar(&opts.reportPath, "report", "", "Write a JSON report to this path")
	fs.StringVar(&opts.format, "format", "table", "Report format on stdout: table or json")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run (e.g. :9090)")
	fs.BoolVarP(&opts.quiet, "quiet", "q", false, "Do not print per-item progress")

	return cmd
}

func runLocal(ctx context.Context, path string, opts localOptions, out *Output, logger *slog.Logger) error {
	format, err := report.ParseFormat(opts.format)
	if err != nil {
		return fatal(err)
	}
	if out.JSONMode() {
		format = report.FormatJSON
	}

	cfg, err := config.LoadWithFallback(opts.configPath)
	if err != nil {
		return fatal(err)
	}
	spec, err := opts.spec.spec()
	if err != nil {
		return fatal(err)
	}
	cfg = cfg.WithSpec(spec)
	if opts.workDir != "" {
		cfg.Output.WorkDir = opts.workDir
	}
	if opts.reportPath != "" {
		cfg.Output.Report = opts.reportPath
	}

	items, err := source.ReadTSVFile(path)
	if err != nil {
		return fatal(err)
	}

	runID := uuid.New()
	logger = telemetry.WithRunID(logger, runID.String())

	observers := orchestrator.Observers{}
	if !opts.quiet {
		observers = append(observers, telemetry.NewProgress(out.errW))
	}

	var metrics *telemetry.Metrics
	if opts.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics = telemetry.NewMetrics(reg)
		observers = append(observers, metrics)

		stop, err := serveMetrics(opts.metricsAddr, reg, logger)
		if err != nil {
			return fatal(err)
		}
		defer stop()
	}

	pipeline, err := cfg.Build(engine.DefaultRegistry(), observers, logger)
	if err != nil {
		return fatal(err)
	}

	started := time.Now()
	results, runErr := pipeline.Orchestrator.Run(ctx, items)
	if runErr != nil && results == nil {
		if metrics != nil {
			metrics.RunFinished(domain.RunStatusFailed)
		}
		return fatal(runErr)
	}

	rep := domain.NewReport(runID, started, time.Now(), results)

	status := domain.RunStatusSucceeded
	if runErr != nil {
		status = domain.RunStatusCancelled
	}
	if metrics != nil {
		metrics.RunFinished(status)
	}

	if cfg.Output.Report != "" {
		if err := report.WriteFile(cfg.Output.Report, rep); err != nil {
			logger.Error("failed to write report", "path", cfg.Output.Report, "error", err)
			return fatal(err)
		}
		logger.Info("report written", "path", cfg.Output.Report)
	}

	if err := report.Render(out.w, rep, format); err != nil {
		return fatal(err)
	}

	switch {
	case runErr != nil:
		return fatal(runErr)
	case rep.Summary.Failed > 0:
		return &ExitError{
			Code: ExitItemsFailed,
			Err:  fmt.Errorf("%d of %d items failed", rep.Summary.Failed, rep.Summary.Total),
		}
	}
	return nil
}

// serveMetrics поднимает /metrics на время run. stop закрывает сервер.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) (stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
