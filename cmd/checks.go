package cmd

import (
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"dashcheck/internal/checks"
	apperrors "dashcheck/pkg/errors"
)

func newChecksCmd() *cobra.Command {
	var stage int

	cmd := &cobra.Command{
		Use:   "checks [id...]",
		Short: "List the validation check catalog",
		Long: `List the validation check catalog, or only the checks named by id
(for example "dashcheck checks 2.2 3.1").`,
		RunE: func(cmd *cobra.Command, args []string) error {
			selected, err := selectChecks(args, stage)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"ID", "Stage", "Name", "Description"})
			table.SetBorder(false)
			table.SetAutoWrapText(false)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			for _, c := range selected {
				table.Append([]string{c.ID, strconv.Itoa(c.Stage), c.Name, c.Description})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&stage, "stage", 0, "only list checks of this stage")
	return cmd
}

// selectChecks resolves ids against the catalog, or filters it by stage when
// no ids are given.
func selectChecks(ids []string, stage int) ([]checks.Info, error) {
	if len(ids) == 0 {
		var out []checks.Info
		for _, c := range checks.Catalog {
			if stage == 0 || c.Stage == stage {
				out = append(out, c)
			}
		}
		return out, nil
	}

	out := make([]checks.Info, 0, len(ids))
	for _, id := range ids {
		c, ok := checks.Lookup(id)
		if !ok {
			return nil, apperrors.ValidationError("check", id, "unknown check id").
				WithSuggestions("Run 'dashcheck checks' to list the catalog")
		}
		if stage != 0 && c.Stage != stage {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
