package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/Recital/internal/engine"
)

// NewEnginesCmd создаёт команду списка вариантов движка.
// Без --remote показывает варианты, встроенные в этот бинарник.
func NewEnginesCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "engines",
		Short: "List engine variants and their batch support",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			var engines []EngineResponse
			if remote {
				var err error
				if engines, err = clientFn().ListEngines(); err != nil {
					return err
				}
			} else {
				engines = localEngines(engine.DefaultRegistry())
			}

			headers := []string{"VARIANT", "BATCH", "BATCH_ONLY", "DESCRIPTION"}
			rows := make([][]string, len(engines))
			for i, e := range engines {
				rows[i] = []string{
					e.Variant,
					strconv.FormatBool(e.Batch),
					strconv.FormatBool(e.BatchOnly),
					e.Description,
				}
			}

			out.Print(headers, rows, engines)
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Ask the API server instead of this binary")

	return cmd
}

func localEngines(reg *engine.Registry) []EngineResponse {
	var out []EngineResponse
	for _, v := range reg.Variants() {
		a, err := reg.Get(v)
		if err != nil {
			continue
		}
		caps := a.Capabilities()
		out = append(out, EngineResponse{
			Variant:     string(v),
			Batch:       caps.Batch,
			BatchOnly:   caps.BatchOnly,
			Description: caps.Description,
		})
	}
	return out
}
