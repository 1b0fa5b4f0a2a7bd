package cli

import (
	"github.com/kiranshivaraju/framecheck/internal/aggregate"
	"github.com/spf13/cobra"
)

func (a *app) resultsCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "results <job id>",
		Short: "Show the results of a finished job",
		Long:  `Fetch a finished job's frame results from the detection service and print the summary`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := a.client().GetResults(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			view := aggregate.Build(results)
			if asJSON {
				return printJSON(a.out, view)
			}
			return printSummary(a.out, args[0], view)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the aggregate view as JSON")
	return cmd
}
