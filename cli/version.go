package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewVersionCmd returns the "version" subcommand, printing the build
// metadata baked in via ldflags (see cmd/s3gw/main.go).
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "  %s %s\n", labelStyle.Render("Version:"), versionString())
			fmt.Fprintf(out, "  %s %s\n", labelStyle.Render("Commit:"), Commit)
			fmt.Fprintf(out, "  %s %s\n", labelStyle.Render("Built:"), BuildTime)
			return nil
		},
	}
}
