package auth

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/nuzum-saas/platform/go/auth/devtoken"
)

// Command groups token helpers for local development.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication helpers (dev tokens)",
	}
	cmd.AddCommand(devTokenCommand())
	return cmd
}

func devTokenCommand() *cobra.Command {
	var (
		params    devtoken.Params
		secretEnv string
		unsigned  bool
	)

	cmd := &cobra.Command{
		Use:   "devtoken",
		Short: "Generate a JWT for local use (HS256 with JWT_SECRET, or unsigned for AUTH_PROVIDER=dev)",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now().UTC()

			var (
				token string
				err   error
			)
			if unsigned {
				token, err = devtoken.BuildUnsignedToken(params, now)
			} else {
				secret := os.Getenv(secretEnv)
				if secret == "" {
					return fmt.Errorf("%s is empty; set it or pass --unsigned", secretEnv)
				}
				token, err = devtoken.BuildSignedToken(params, []byte(secret), now)
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	// Required claims
	cmd.Flags().StringVar(&params.UserID, "user-id", "", "sub/user_id claim (the user's UUID)")
	cmd.Flags().StringVar(&params.Email, "email", "", "email claim")
	cmd.Flags().StringVar(&params.UserType, "user-type", "company_admin", "system_owner | company_admin | employee")

	// Optional claims
	cmd.Flags().StringVar(&params.CompanyID, "company-id", "", "companyId claim; required for company users")
	cmd.Flags().StringVar(&params.Name, "name", "", "display name")
	cmd.Flags().StringVar(&params.Role, "role", "", "free-form role label")
	cmd.Flags().StringVar(&params.Issuer, "issuer", "nuzum", "iss claim; must match JWT_ISSUER")
	cmd.Flags().DurationVar(&params.ExpiresIn, "expires-in", time.Hour, "token lifetime (e.g. 30m, 2h)")
	cmd.Flags().StringVar(&secretEnv, "secret-env", "JWT_SECRET", "environment variable holding the HMAC secret")
	cmd.Flags().BoolVar(&unsigned, "unsigned", false, "emit an alg=none token for AUTH_PROVIDER=dev")

	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}
