package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Recital/internal/source"
)

// NewSubmitCmd создаёт команду отправки run на сервер.
func NewSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		spec           specFlags
		remoteSource   bool
		idempotencyKey string
		wait           bool
		pollInterval   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "submit TSV",
		Short: "Submit a TSV file to the server for synthesis",
		Long: `Reads the TSV locally and sends its rows to the API.

With --remote-source the path is sent as is and read by the worker,
which is useful for large dictionaries stored next to the worker.
With --wait the command polls the run and exits like "recital run".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runSpec, err := spec.spec()
			if err != nil {
				return err
			}

			req := CreateRunRequest{RunSpec: runSpec, IdempotencyKey: idempotencyKey}
			if remoteSource {
				req.Source = args[0]
			} else {
				if req.Items, err = source.ReadTSVFile(args[0]); err != nil {
					return err
				}
				if len(req.Items) == 0 {
					return fmt.Errorf("%s has no items", args[0])
				}
			}

			run, err := client.CreateRun(req)
			if err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Run submitted: %s", run.ID))

			if wait {
				if run, err = waitRun(cmd.Context(), client, run.ID, pollInterval); err != nil {
					return err
				}
			}

			printRuns(out, []RunResponse{*run}, run)

			if wait {
				return runExitError(run)
			}
			return nil
		},
	}

	spec.register(cmd)
	fs := cmd.Flags()
	fs.BoolVar(&remoteSource, "remote-source", false, "Treat TSV as a path on the worker host")
	fs.StringVar(&idempotencyKey, "idempotency-key", "", "Return the existing run if this key was already submitted")
	fs.BoolVarP(&wait, "wait", "w", false, "Wait until the run finishes")
	fs.DurationVar(&pollInterval, "poll-interval", 2*time.Second, "How often to poll the run with --wait")

	return cmd
}

// waitRun опрашивает run, пока он не завершится.
func waitRun(ctx context.Context, client *Client, id string, every time.Duration) (*RunResponse, error) {
	if every <= 0 {
		every = 2 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		run, err := client.GetRun(id)
		if err != nil {
			return nil, err
		}
		if run.IsFinished() {
			return run, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// runExitError переводит итог серверного run в код выхода.
func runExitError(run *RunResponse) error {
	switch {
	case run.Status == "FAILED":
		return fatal(fmt.Errorf("run %s failed: %s", run.ID, run.Error))
	case run.Status == "CANCELLED":
		return fatal(fmt.Errorf("run %s was cancelled", run.ID))
	case run.Failed > 0:
		return &ExitError{
			Code: ExitItemsFailed,
			Err:  fmt.Errorf("%d of %d items failed", run.Failed, run.Total),
		}
	}
	return nil
}
