package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fivetwenty-io/capi-deployer/internal/constants"
	"github.com/fivetwenty-io/capi-deployer/pkg/capi"
)

type provisionOptions struct {
	offering       string
	plan           string
	alternatives   []string
	spaceGUID      string
	org            string
	space          string
	parametersFile string
	tags           []string
	wait           bool
	waitTimeout    time.Duration
}

// provisionOutput is the rendered result of the provision command.
type provisionOutput struct {
	capi.ProvisionResult `yaml:",inline"`

	JobState string `json:"job_state,omitempty" yaml:"job_state,omitempty"`
}

// NewProvisionCommand creates the provision command.
func NewProvisionCommand() *cobra.Command {
	opts := &provisionOptions{}

	cmd := &cobra.Command{
		Use:   "provision NAME",
		Short: "Create a managed service instance",
		Long: `Create a managed service instance from the preferred offering, falling back
to the alternative offerings in order when the platform forbids a plan.`,
		Example: `  capi-deployer provision orders-db --offering postgresql --plan small \
    --alternative postgresql-trial --org acme --space prod --wait`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			session, err := newRuntime(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer session.Close()

			request, err := opts.request(ctx, session.Client, args[0])
			if err != nil {
				return err
			}

			result, err := session.Client.Provisioner().Provision(ctx, request)
			if err != nil {
				return err
			}

			output := provisionOutput{ProvisionResult: *result}

			if opts.wait {
				job, err := waitForJob(ctx, session.Client.Jobs(), result.JobURL, opts.waitTimeout)
				if job != nil {
					output.JobState = job.State
				}

				if err != nil {
					return err
				}
			}

			return renderProvision(cmd, &output)
		},
	}

	cmd.Flags().StringVarP(&opts.offering, "offering", "s", "", "preferred service offering")
	cmd.Flags().StringVarP(&opts.plan, "plan", "p", "", "service plan, required in every candidate offering")
	cmd.Flags().StringSliceVar(&opts.alternatives, "alternative", nil, "alternative offering, tried in order (repeatable)")
	cmd.Flags().StringVar(&opts.spaceGUID, "space-guid", "", "target space GUID")
	cmd.Flags().StringVarP(&opts.org, "org", "o", "", "organization name, used with --space")
	cmd.Flags().StringVar(&opts.space, "space", "", "space name, used with --org")
	cmd.Flags().StringVarP(&opts.parametersFile, "parameters-file", "f", "", "YAML or JSON file with broker parameters")
	cmd.Flags().StringSliceVarP(&opts.tags, "tags", "t", nil, "service instance tags")
	cmd.Flags().BoolVarP(&opts.wait, "wait", "w", false, "wait for the creation job to finish")
	cmd.Flags().DurationVar(&opts.waitTimeout, "wait-timeout", constants.DefaultJobPollTimeout, "how long --wait polls the job")

	_ = cmd.MarkFlagRequired("offering")
	_ = cmd.MarkFlagRequired("plan")

	return cmd
}

func (o *provisionOptions) request(ctx context.Context, client capi.Client, name string) (*capi.ServiceProvisionRequest, error) {
	spaceGUID, err := resolveSpaceGUID(ctx, client, o.spaceGUID, o.org, o.space)
	if err != nil {
		return nil, err
	}

	parameters, err := loadParameters(o.parametersFile)
	if err != nil {
		return nil, err
	}

	return &capi.ServiceProvisionRequest{
		Name:                 name,
		Offering:             o.offering,
		Plan:                 o.plan,
		AlternativeOfferings: o.alternatives,
		Credentials:          parameters,
		Tags:                 o.tags,
		SpaceGUID:            spaceGUID,
	}, nil
}

// resolveSpaceGUID returns spaceGUID, or looks the space up by org and space name.
func resolveSpaceGUID(ctx context.Context, client capi.Client, spaceGUID, org, space string) (string, error) {
	if spaceGUID != "" {
		return spaceGUID, nil
	}

	if org == "" || space == "" {
		return "", constants.ErrSpaceSelectorRequired
	}

	found, err := client.Spaces().FindSpace(ctx, org, space)
	if err != nil {
		return "", fmt.Errorf("resolving space %s/%s: %w", org, space, err)
	}

	return found.GUID.UUID.String(), nil
}

// loadParameters reads broker parameters from a YAML or JSON file. JSON is
// valid YAML, so one decoder serves both.
func loadParameters(path string) (map[string]interface{}, error) {
	if path == "" {
		return nil, nil //nolint:nilnil // no file means no parameters
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading parameters file: %w", err)
	}

	var parameters map[string]interface{}

	err = yaml.Unmarshal(data, &parameters)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", constants.ErrInvalidParameterFile, err)
	}

	if parameters == nil {
		return nil, constants.ErrInvalidParameterFile
	}

	return parameters, nil
}

func waitForJob(ctx context.Context, jobs capi.JobsClient, locator string, timeout time.Duration) (*capi.Job, error) {
	if locator == "" {
		return nil, constants.ErrNoJobToWait
	}

	if timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	job, err := jobs.PollUntilComplete(ctx, locator)
	if err != nil {
		return job, fmt.Errorf("waiting for service instance creation: %w", err)
	}

	return job, nil
}

func renderProvision(cmd *cobra.Command, output *provisionOutput) error {
	return render(cmd.OutOrStdout(), output, func(table *tablewriter.Table) error {
		table.Header("Property", "Value")
		_ = table.Append("Name", output.Name)
		_ = table.Append("Offering", output.Offering)
		_ = table.Append("Plan", output.Plan)
		_ = table.Append("Plan GUID", output.PlanGUID)
		_ = table.Append("Job", orNotAvailable(output.JobURL))

		if output.JobState != "" {
			return table.Append("Job State", output.JobState)
		}

		return nil
	})
}
