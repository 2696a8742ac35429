package subscription

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zenGate-Global/nuzum-saas/apps/cli/deps"
	"github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/plans"
	subscriptions "github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/service"
)

// Command groups subscription lifecycle helpers. Every subcommand except plans takes --company-id.
func Command(opts *deps.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscription",
		Short: "Subscription lifecycle (status/trial/upgrade/extend/suspend/activate)",
	}

	var companyID string
	cmd.PersistentFlags().StringVar(&companyID, "company-id", "", "Company UUID")

	company := func() (uuid.UUID, error) {
		id, err := uuid.Parse(companyID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid --company-id: %w", err)
		}
		return id, nil
	}

	cmd.AddCommand(
		statusCommand(opts, company),
		trialCommand(opts, company),
		upgradeCommand(opts, company),
		extendCommand(opts, company),
		mutation(opts, company, "suspend", "Deactivate the current subscription", (*subscriptions.Service).Suspend),
		mutation(opts, company, "activate", "Reactivate the most recent subscription", (*subscriptions.Service).Activate),
		plansCommand(opts),
	)
	return cmd
}

type companyFunc func() (uuid.UUID, error)

// run opens the services and hands the parsed company to fn.
func run(cmd *cobra.Command, opts *deps.Options, company companyFunc, fn func(context.Context, *subscriptions.Service, uuid.UUID) error) error {
	id, err := company()
	if err != nil {
		return err
	}
	svc, closeFn, err := opts.Open(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(cmd.Context(), svc.Subscriptions, id)
}

func statusCommand(opts *deps.Options, company companyFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the subscription status report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, company, func(ctx context.Context, subs *subscriptions.Service, id uuid.UUID) error {
				report, err := subs.Status(ctx, id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Status: %s\n", report.Status)
				fmt.Fprintf(out, "Days remaining: %d\n", report.DaysRemaining)
				fmt.Fprintf(out, "Message: %s\n", report.Message)
				if report.ActionRequired != "" {
					fmt.Fprintf(out, "Action: %s\n", report.ActionRequired)
				}
				if report.Subscription != nil {
					printSubscription(out, *report.Subscription)
				}
				return nil
			})
		},
	}
}

func trialCommand(opts *deps.Options, company companyFunc) *cobra.Command {
	var plan string
	c := &cobra.Command{
		Use:   "trial",
		Short: "Open a trial subscription",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, company, func(ctx context.Context, subs *subscriptions.Service, id uuid.UUID) error {
				sub, err := subs.CreateTrial(ctx, id, plans.Type(plan))
				if err != nil {
					return err
				}
				printSubscription(cmd.OutOrStdout(), sub)
				return nil
			})
		},
	}
	c.Flags().StringVar(&plan, "plan", string(plans.Basic), "Plan type")
	return c
}

func upgradeCommand(opts *deps.Options, company companyFunc) *cobra.Command {
	var (
		plan   string
		months int
	)
	c := &cobra.Command{
		Use:   "upgrade",
		Short: "Replace the current subscription with a paid one",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, company, func(ctx context.Context, subs *subscriptions.Service, id uuid.UUID) error {
				sub, err := subs.UpgradeToPaid(ctx, id, plans.Type(plan), months)
				if err != nil {
					return err
				}
				printSubscription(cmd.OutOrStdout(), sub)
				return nil
			})
		},
	}
	c.Flags().StringVar(&plan, "plan", string(plans.Premium), "Plan type")
	c.Flags().IntVar(&months, "months", 1, "Paid duration in months")
	return c
}

func extendCommand(opts *deps.Options, company companyFunc) *cobra.Command {
	var days int
	c := &cobra.Command{
		Use:   "extend",
		Short: "Push the end of the current period out by a number of days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, company, func(ctx context.Context, subs *subscriptions.Service, id uuid.UUID) error {
				sub, err := subs.Extend(ctx, id, days)
				if err != nil {
					return err
				}
				printSubscription(cmd.OutOrStdout(), sub)
				return nil
			})
		},
	}
	c.Flags().IntVar(&days, "days", 30, "Days to add")
	return c
}

func mutation(opts *deps.Options, company companyFunc, use, short string, fn func(*subscriptions.Service, context.Context, uuid.UUID) (subscriptions.Subscription, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, company, func(ctx context.Context, subs *subscriptions.Service, id uuid.UUID) error {
				sub, err := fn(subs, ctx, id)
				if err != nil {
					return err
				}
				printSubscription(cmd.OutOrStdout(), sub)
				return nil
			})
		},
	}
}

func plansCommand(opts *deps.Options) *cobra.Command {
	var months int
	c := &cobra.Command{
		Use:   "plans",
		Short: "Print the plan catalog with the quote for a duration",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := opts.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PLAN\tMONTHLY\tQUOTE\tEMPLOYEES\tVEHICLES\tUSERS")
			for _, p := range svc.Subscriptions.Plans() {
				quote, err := svc.Subscriptions.Quote(p.Type, months)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n", p.Type, p.PriceMonthly.StringFixed(2), quote.StringFixed(2), p.MaxEmployees, p.MaxVehicles, p.MaxUsers)
			}
			return tw.Flush()
		},
	}
	c.Flags().IntVar(&months, "months", 12, "Months to quote")
	return c
}

func printSubscription(out io.Writer, sub subscriptions.Subscription) {
	fmt.Fprintf(out, "Subscription %s: plan=%s trial=%t active=%t start=%s end=%s\n",
		sub.ID, sub.PlanType, sub.IsTrial, sub.IsActive, sub.StartDate.Format(time.DateOnly), formatEnd(sub.EndDate))
}

func formatEnd(t *time.Time) string {
	if t == nil {
		return "open"
	}
	return t.Format(time.DateOnly)
}
