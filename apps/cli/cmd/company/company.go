package company

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/nuzum-saas/apps/cli/deps"
	tenants "github.com/zenGate-Global/nuzum-saas/domains/tenants/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

// Command groups company directory helpers.
func Command(opts *deps.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "company",
		Short: "Company utilities (create/list)",
	}

	cmd.AddCommand(createCommand(opts), listCommand(opts))
	return cmd
}

func createCommand(opts *deps.Options) *cobra.Command {
	var (
		name         string
		contactEmail string
		noTrial      bool
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Create a company and open its basic trial",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := opts.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			input := tenants.CreateInput{Name: name, StartTrial: !noTrial}
			if email := strings.TrimSpace(contactEmail); email != "" {
				input.ContactEmail = &email
			}
			company, err := svc.Companies.Create(cmd.Context(), input)
			if err != nil {
				return fmt.Errorf("create company: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Company created: %s (%s)\n", company.Name, company.ID)
			return nil
		},
	}

	c.Flags().StringVar(&name, "name", "", "Company name")
	c.Flags().StringVar(&contactEmail, "contact-email", "", "Contact email (optional)")
	c.Flags().BoolVar(&noTrial, "no-trial", false, "Do not open the basic trial")
	_ = c.MarkFlagRequired("name")

	return c
}

func listCommand(opts *deps.Options) *cobra.Command {
	var pageSize int

	c := &cobra.Command{
		Use:   "list",
		Short: "List companies",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := opts.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := svc.Companies.List(cmd.Context(), tenant.System(), tenants.ListOptions{Page: 1, PageSize: pageSize})
			if err != nil {
				return fmt.Errorf("list companies: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tCREATED")
			for _, c := range res.Companies {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Status, c.CreatedAt.Format("2006-01-02"))
			}
			return tw.Flush()
		},
	}

	c.Flags().IntVar(&pageSize, "page-size", 100, "Maximum companies to print")
	return c
}
