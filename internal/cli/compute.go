package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/illustration-analyzer/internal/pipeline"
)

func newComputeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compute POLICY.json|-",
		Short: "Compute cashflows, payback and the IRR trend for a policy record",
		Long:  "Reads a policy record as JSON (\"-\" for stdin) and prints the metrics without calling a model.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := AppFrom(cmd)
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read policy: %w", err)
			}
			rec, err := pipeline.DecodePolicy(data)
			if err != nil {
				return err
			}
			// no extractor or model is needed for metrics only
			proc := pipeline.NewProcessor(app.Logger, nil, nil, nil)
			res, err := proc.Compute(rec)
			if err != nil {
				return err
			}
			return app.PrintJSON(res)
		},
	}
}
