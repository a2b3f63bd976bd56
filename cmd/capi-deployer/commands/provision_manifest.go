package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/capi-deployer/internal/constants"
	"github.com/fivetwenty-io/capi-deployer/pkg/capi"
)

type manifestOptions struct {
	spaceGUID   string
	org         string
	space       string
	concurrency int
	timeout     time.Duration
}

// NewProvisionManifestCommand creates the provision-manifest command.
func NewProvisionManifestCommand() *cobra.Command {
	opts := &manifestOptions{}

	cmd := &cobra.Command{
		Use:   "provision-manifest FILE",
		Short: "Create every service instance listed in a manifest",
		Long: `Create every service instance listed in a YAML service manifest. Instances
are provisioned in parallel with the same fallback rules as provision; one
failure does not stop the others, but makes the command exit non-zero.`,
		Example: `  capi-deployer provision-manifest services.yml --org acme --space prod --concurrency 3`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filepath.Clean(args[0]))
			if err != nil {
				return fmt.Errorf("reading manifest: %w", err)
			}

			manifest, err := capi.ParseServiceManifest(data)
			if err != nil {
				return err
			}

			ctx := cmd.Context()

			session, err := newRuntime(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer session.Close()

			spaceGUID, err := resolveSpaceGUID(ctx, session.Client, opts.spaceGUID, opts.org, opts.space)
			if err != nil {
				return err
			}

			executor := capi.NewBatchExecutor(session.Client.Provisioner(), opts.concurrency)
			executor.SetTimeout(opts.timeout)

			results := executor.Execute(ctx, manifest.Operations(spaceGUID))

			err = renderBatch(cmd, results)
			if err != nil {
				return err
			}

			return capi.BatchErrors(results)
		},
	}

	cmd.Flags().StringVar(&opts.spaceGUID, "space-guid", "", "target space GUID")
	cmd.Flags().StringVarP(&opts.org, "org", "o", "", "organization name, used with --space")
	cmd.Flags().StringVar(&opts.space, "space", "", "space name, used with --org")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", capi.DefaultBatchConcurrency, "instances provisioned in parallel")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", constants.DefaultHTTPTimeout, "time limit per instance")

	return cmd
}

func renderBatch(cmd *cobra.Command, results []capi.BatchResult) error {
	return render(cmd.OutOrStdout(), results, func(table *tablewriter.Table) error {
		table.Header("Name", "Success", "Offering", "Plan", "Error")

		for _, result := range results {
			offering, plan := NotAvailable, NotAvailable
			if result.Result != nil {
				offering, plan = result.Result.Offering, result.Result.Plan
			}

			err := table.Append(result.ID, yesNo(result.Success), offering, plan, orNotAvailable(result.Message))
			if err != nil {
				return err
			}
		}

		return nil
	})
}
