package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/holgern/s3gw/pkg/storage"
	"github.com/holgern/s3gw/pkg/storage/driver/remote"
)

// NewCacheCmd returns the "cache" command group, which inspects and
// maintains the MD5 side-cache a remote workspace uses to answer ETags.
func NewCacheCmd() *cobra.Command {
	var dsn string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the remote workspace's MD5 cache",
	}

	cmd.PersistentFlags().StringVar(&dsn, "dsn", envString("DSN", "remote:default"),
		"Remote storage DSN (remote:workspace?cache=path)")

	cmd.AddCommand(newCacheStatsCmd(&dsn))
	cmd.AddCommand(newCacheCleanupCmd(&dsn))
	cmd.AddCommand(newCacheVacuumCmd(&dsn))
	cmd.AddCommand(newCacheMigrateCmd(&dsn))

	return cmd
}

// openRemote opens dsn and returns the underlying remote.Storage, failing
// if dsn names a different driver. The cache commands only make sense
// against a remote-backed workspace.
func openRemote(ctx context.Context, dsn string) (*remote.Storage, error) {
	stor, err := storage.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	rs, ok := stor.(*remote.Storage)
	if !ok {
		_ = stor.Close()
		return nil, fmt.Errorf("dsn %q is not a remote workspace; cache commands require a remote:// DSN", dsn)
	}
	return rs, nil
}

func newCacheStatsCmd(dsn *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the number of cached digests and their total size",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			rs, err := openRemote(ctx, *dsn)
			if err != nil {
				return err
			}
			defer rs.Close()

			stats, err := rs.Cache().Stats(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "  %s %d\n", labelStyle.Render("Entries:"), stats.Entries)
			fmt.Fprintf(out, "  %s %d bytes\n", labelStyle.Render("Total size:"), stats.TotalSize)
			return nil
		},
	}
}

func newCacheCleanupCmd(dsn *string) *cobra.Command {
	var bucket string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove cache entries for objects that no longer exist remotely",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			rs, err := openRemote(ctx, *dsn)
			if err != nil {
				return err
			}
			defer rs.Close()

			objs, err := rs.ListAll(ctx, bucket)
			if err != nil {
				return fmt.Errorf("list remote objects: %w", err)
			}

			alive := make(map[string]bool, len(objs))
			for _, obj := range objs {
				alive[obj.RemoteID] = true
			}

			removed, err := rs.Cache().Cleanup(ctx, alive)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("removed %d stale cache entries", removed)))
			return nil
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "Limit to a single bucket (default: every bucket in the workspace)")
	return cmd
}

func newCacheVacuumCmd(dsn *string) *cobra.Command {
	return &cobra.Command{
		Use:   "vacuum",
		Short: "Reclaim free space in the cache database file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			rs, err := openRemote(ctx, *dsn)
			if err != nil {
				return err
			}
			defer rs.Close()

			if err := rs.Cache().Vacuum(ctx); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("vacuum complete"))
			return nil
		},
	}
}

func newCacheMigrateCmd(dsn *string) *cobra.Command {
	var (
		bucket      string
		dryRun      bool
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Backfill MD5 cache entries for objects the cache is missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rs, err := openRemote(ctx, *dsn)
			if err != nil {
				return err
			}
			defer rs.Close()

			stats, err := rs.Cache().Migrate(ctx, rs, bucket, dryRun, concurrency)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "  %s %d\n", labelStyle.Render("Scanned:"), stats.Scanned)
			fmt.Fprintf(out, "  %s %d\n", labelStyle.Render("Missing:"), stats.Missing)
			if dryRun {
				fmt.Fprintf(out, "  %s %d\n", labelStyle.Render("Would write:"), stats.Missing-stats.Skipped)
			} else {
				fmt.Fprintf(out, "  %s %d\n", labelStyle.Render("Written:"), stats.Written)
			}
			fmt.Fprintf(out, "  %s %d\n", labelStyle.Render("Skipped:"), stats.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "Limit to a single bucket (default: every bucket in the workspace)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only report what would be written, without writing")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Number of objects to hash concurrently")
	return cmd
}
