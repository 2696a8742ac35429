package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zenGate-Global/nuzum-saas/apps/cli/deps"
	usersrepo "github.com/zenGate-Global/nuzum-saas/domains/users/be/repo"
	"github.com/zenGate-Global/nuzum-saas/platform/go/persistence"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

// Notes/constraints:
// - The schema DDL is idempotent; running bootstrap twice is safe.
// - The system owner is matched by email, so a second run prints the existing record.

// Command groups bootstrap helpers (platform init, future seed steps).
func Command(opts *deps.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Bootstrap platform resources (schema, system owner)",
	}

	cmd.AddCommand(platformCommand(opts))
	return cmd
}

func platformCommand(opts *deps.Options) *cobra.Command {
	var (
		ownerEmail    string
		ownerFullName string
		ownerID       string
		skipSchema    bool
	)

	c := &cobra.Command{
		Use:   "platform",
		Short: "Create the schema and the first system owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svc, closeFn, err := opts.Open(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			if !skipSchema {
				if err := persistence.BootstrapSchema(ctx, svc.Pool); err != nil {
					return fmt.Errorf("bootstrap schema: %w", err)
				}
				svc.Logger.Info("schema ready")
			}

			id := uuid.New()
			if ownerID != "" {
				parsed, parseErr := uuid.Parse(ownerID)
				if parseErr != nil {
					return fmt.Errorf("invalid owner-id uuid: %w", parseErr)
				}
				id = parsed
			}

			owner, created, err := ensureSystemOwner(ctx, svc.Users, id, ownerEmail, ownerFullName)
			if err != nil {
				return err
			}
			svc.Logger.Info("system owner ready", zap.String("user_id", owner.UserID.String()), zap.Bool("created", created))

			fmt.Fprintf(cmd.OutOrStdout(), "Bootstrap complete. System owner: %s (%s)\n", owner.Email, owner.UserID)
			return nil
		},
	}

	c.Flags().StringVar(&ownerEmail, "owner-email", "", "System owner email")
	c.Flags().StringVar(&ownerFullName, "owner-full-name", "", "System owner full name")
	c.Flags().StringVar(&ownerID, "owner-id", "", "UUID for the owner; use the identity provider's subject (optional; defaults to random)")
	c.Flags().BoolVar(&skipSchema, "skip-schema", false, "Do not run the schema DDL")

	_ = c.MarkFlagRequired("owner-email")
	_ = c.MarkFlagRequired("owner-full-name")

	return c
}

// ensureSystemOwner performs a check-or-create for the platform owner.
func ensureSystemOwner(ctx context.Context, users usersrepo.Repository, id uuid.UUID, email, fullName string) (persistence.User, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	fullName = strings.TrimSpace(fullName)
	if email == "" || fullName == "" {
		return persistence.User{}, false, errors.New("owner email and full name are required")
	}

	existing, err := users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.UserType != string(tenant.SystemOwner) {
			return persistence.User{}, false, fmt.Errorf("%s already exists as %s", email, existing.UserType)
		}
		return existing, false, nil
	case !errors.Is(err, persistence.ErrUserNotFound):
		return persistence.User{}, false, fmt.Errorf("lookup owner: %w", err)
	}

	user, err := users.Create(ctx, persistence.CreateUserParams{
		UserID:   id,
		Email:    email,
		FullName: fullName,
		Role:     "owner",
		UserType: string(tenant.SystemOwner),
	})
	if err != nil {
		return persistence.User{}, false, fmt.Errorf("create owner: %w", err)
	}
	return user, true, nil
}
