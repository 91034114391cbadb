package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/crm-insights/server/internal/analytics"
)

func newSummaryCmd(opts *rootOptions) *cobra.Command {
	var (
		stages []string
		f      analytics.Filter
		output string
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the dashboard aggregates for the CSV data",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := loadDataset(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("stages") {
				f.Stages = make([]string, 0, len(stages))
				for _, s := range stages {
					if s = strings.TrimSpace(s); s != "" {
						f.Stages = append(f.Stages, s)
					}
				}
			}
			return writeOutput(cmd.OutOrStdout(), output, analytics.BuildDashboard(ds, f))
		},
	}

	fl := cmd.Flags()
	fl.StringSliceVar(&stages, "stages", nil, "restrict to these stages (comma separated)")
	fl.StringVar(&f.Stage, "stage", "", "focus one stage, as if its bar was clicked")
	fl.StringVar(&f.Month, "month", "", "focus one month label such as \"Jan '24\"")
	fl.StringVarP(&output, "output", "o", outputYAML, "output format: json or yaml")
	return cmd
}
