package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// dataDir is the default data directory for the local storage driver and
// the MD5 cache database.
var dataDir string

// Execute runs the CLI.
func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:   "s3gw",
		Short: "s3gw - a single-tenant S3-compatible storage gateway",
		Long: `s3gw fronts a local filesystem or a Box-like remote object store with an
S3-compatible REST API.

Get started:
  s3gw serve           Start the gateway
  s3gw cache stats     Inspect the MD5 side-cache
  s3gw cache migrate   Backfill MD5s for objects the cache is missing`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	home, _ := os.UserHomeDir()
	dataDir = filepath.Join(home, "data", "s3gw")

	root.SetVersionTemplate("s3gw {{.Version}}\n")
	root.Version = versionString()
	root.PersistentFlags().StringVar(&dataDir, "data", dataDir, "Data directory for the local storage driver and MD5 cache")
	root.PersistentFlags().Bool("dev", false, "Enable development mode")

	root.AddCommand(NewServeCmd())
	root.AddCommand(NewCacheCmd())
	root.AddCommand(NewVersionCmd())

	if err := fang.Execute(ctx, root,
		fang.WithVersion(Version),
		fang.WithCommit(Commit),
	); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("[ERROR] "+err.Error()))
		return err
	}
	return nil
}

func versionString() string {
	if strings.TrimSpace(Version) != "" && Version != "dev" {
		return Version
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		if bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			return bi.Main.Version
		}
	}
	return "dev"
}

// GetDataDir returns the data directory.
func GetDataDir() string {
	return dataDir
}
