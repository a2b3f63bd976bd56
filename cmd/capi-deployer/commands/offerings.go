package commands

import (
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/capi-deployer/pkg/capi"
)

// NewOfferingsCommand creates the offerings command.
func NewOfferingsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "offerings",
		Aliases: []string{"marketplace"},
		Short:   "List service offerings and their plans",
		Long:    "List the service catalog as seen by the provisioner, one row per offering",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := newRuntime(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer session.Close()

			entries, err := session.Client.Catalog().ListOfferings(cmd.Context())
			if err != nil {
				return err
			}

			return renderOfferings(cmd, entries)
		},
	}
}

func renderOfferings(cmd *cobra.Command, entries []capi.OfferingCatalogEntry) error {
	return render(cmd.OutOrStdout(), entries, func(table *tablewriter.Table) error {
		table.Header("Offering", "GUID", "Plans")

		for _, entry := range entries {
			plans := make([]string, 0, len(entry.Plans))
			for _, plan := range entry.Plans {
				plans = append(plans, plan.Name)
			}

			err := table.Append(entry.OfferingName, orNotAvailable(entry.OfferingGUID), orNotAvailable(strings.Join(plans, ", ")))
			if err != nil {
				return err
			}
		}

		return nil
	})
}
