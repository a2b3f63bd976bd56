package commands

import (
	"context"
	"errors"
	"net/http"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/capi-deployer/internal/constants"
	"github.com/fivetwenty-io/capi-deployer/pkg/capi"
)

const defaultCheckAction = "check-access"

type checkAccessOptions struct {
	userID    string
	userName  string
	userToken string
	scopes    []string
	spaceGUID string
	org       string
	space     string
	readOnly  bool
	action    string
}

// accessResult is the rendered result of the check-access command.
type accessResult struct {
	UserID     string `json:"user_id"               yaml:"user_id"`
	Space      string `json:"space"                 yaml:"space"`
	ReadOnly   bool   `json:"read_only"             yaml:"read_only"`
	Authorized bool   `json:"authorized"            yaml:"authorized"`
	StatusCode int    `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	Reason     string `json:"reason,omitempty"      yaml:"reason,omitempty"`
}

// NewCheckAccessCommand creates the check-access command.
func NewCheckAccessCommand() *cobra.Command {
	opts := &checkAccessOptions{}

	cmd := &cobra.Command{
		Use:   "check-access",
		Short: "Check whether a user may act on a space",
		Long: `Check whether a user may act on a space. Space developers always pass;
with --read-only, space auditors and managers pass too. A denial exits non-zero.`,
		Example: `  capi-deployer check-access --user-id 5f0c... --space-guid 0b4c... --read-only
  capi-deployer check-access --user-id 5f0c... --org acme --space prod`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.userID == "" {
				return constants.ErrUserIDRequired
			}

			if opts.spaceGUID == "" && (opts.org == "" || opts.space == "") {
				return constants.ErrSpaceSelectorRequired
			}

			session, err := newRuntime(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer session.Close()

			result, denial := opts.check(cmd.Context(), session.Client.Authorization())
			if result == nil {
				return denial
			}

			err = renderAccess(cmd, result)
			if err != nil {
				return err
			}

			return denial
		},
	}

	cmd.Flags().StringVar(&opts.userID, "user-id", "", "user GUID")
	cmd.Flags().StringVar(&opts.userName, "user-name", "", "user name, reported in audit events")
	cmd.Flags().StringVar(&opts.userToken, "user-token", "", "token presented by the user")
	cmd.Flags().StringSliceVar(&opts.scopes, "scope", nil, "token scope held by the user (repeatable)")
	cmd.Flags().StringVar(&opts.spaceGUID, "space-guid", "", "space GUID")
	cmd.Flags().StringVarP(&opts.org, "org", "o", "", "organization name, used with --space")
	cmd.Flags().StringVar(&opts.space, "space", "", "space name, used with --org")
	cmd.Flags().BoolVar(&opts.readOnly, "read-only", false, "accept auditors and managers")
	cmd.Flags().StringVar(&opts.action, "action", defaultCheckAction, "action name recorded for denials")

	return cmd
}

func (o *checkAccessOptions) user() *capi.UserInfo {
	return &capi.UserInfo{ID: o.userID, Name: o.userName, Token: o.userToken, Scopes: o.scopes}
}

// check returns the decision. A denial returns both the result and the error
// the command exits with; a failed check returns only the error.
func (o *checkAccessOptions) check(ctx context.Context, checker capi.AuthorizationChecker) (*accessResult, error) {
	result := &accessResult{UserID: o.userID, ReadOnly: o.readOnly}

	if o.spaceGUID == "" {
		result.Space = o.org + "/" + o.space

		authorized, err := checker.IsAuthorizedForSpace(ctx, o.user(), o.org, o.space, o.readOnly)
		if err != nil {
			return nil, err
		}

		result.Authorized = authorized
		if !authorized {
			result.StatusCode = http.StatusForbidden
			result.Reason = "not authorized for space " + result.Space

			return result, &capi.AuthorizationError{StatusCode: result.StatusCode, Message: result.Reason}
		}

		return result, nil
	}

	result.Space = o.spaceGUID

	err := checker.EnsureAuthorized(ctx, o.user(), o.spaceGUID, o.action, o.readOnly)
	if err == nil {
		result.Authorized = true

		return result, nil
	}

	var authErr *capi.AuthorizationError
	if !errors.As(err, &authErr) {
		return nil, err
	}

	result.StatusCode = authErr.StatusCode
	result.Reason = authErr.Message

	return result, err
}

func renderAccess(cmd *cobra.Command, result *accessResult) error {
	return render(cmd.OutOrStdout(), result, func(table *tablewriter.Table) error {
		table.Header("Property", "Value")
		_ = table.Append("User", result.UserID)
		_ = table.Append("Space", result.Space)
		_ = table.Append("Read Only", yesNo(result.ReadOnly))
		_ = table.Append("Authorized", yesNo(result.Authorized))

		if result.Reason != "" {
			return table.Append("Reason", result.Reason)
		}

		return nil
	})
}
