package notify

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/nuzum-saas/apps/cli/deps"
	notifications "github.com/zenGate-Global/nuzum-saas/domains/notifications/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/lock"
)

// Command groups notification jobs.
func Command(opts *deps.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Notification jobs",
	}
	cmd.AddCommand(scanCommand(opts))
	return cmd
}

// scanCommand runs one expiry scan. With a Redis URL it takes the same lease as the API
// scheduler, so it is safe to run from cron next to live servers.
func scanCommand(opts *deps.Options) *cobra.Command {
	var (
		redisURL    string
		environment string
	)

	c := &cobra.Command{
		Use:   "scan",
		Short: "Notify companies whose subscription ends within three days",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, closeFn, err := opts.Open(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			var locker lock.Locker = lock.NewLocal()
			if redisURL != "" {
				rdb, err := lock.NewRedisClient(ctx, redisURL)
				if err != nil {
					return err
				}
				defer func() { _ = rdb.Close() }()
				locker = lock.NewRedis(rdb, "nuzum:"+environment+":")
			}

			scheduler := notifications.NewScheduler(svc.Notifications, locker, 0, nil, svc.Logger)
			ran, err := scheduler.RunOnce(ctx)
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			if !ran {
				fmt.Fprintln(cmd.OutOrStdout(), "Scan skipped: another process holds the lease.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Scan complete.")
			return nil
		},
	}

	c.Flags().StringVar(&redisURL, "redis-url", os.Getenv("REDIS_URL"), "Redis URL for the shared scan lease (defaults to REDIS_URL)")
	c.Flags().StringVar(&environment, "environment", envOr("ENVIRONMENT", "development"), "Environment name used in the lease key")
	return c
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
