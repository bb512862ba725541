package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/holgern/s3gw/pkg/storage/server"
)

// NewServeCmd returns the "serve" subcommand, which starts the gateway
// and blocks until it receives an interrupt or terminate signal.
func NewServeCmd() *cobra.Command {
	var (
		host        string
		port        int
		dsn         string
		accessKey   string
		secretKey   string
		region      string
		maxObjSize  int64
		noAuth      bool
		enablePprof bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the S3-compatible gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

			cfg := &server.Config{
				Host:          host,
				Port:          port,
				DSN:           dsn,
				Region:        region,
				MaxObjectSize: maxObjSize,
				Logger:        logger,
				EnablePprof:   enablePprof,
			}
			if !noAuth {
				cfg.AccessKeyID = accessKey
				cfg.SecretAccessKey = secretKey
			}

			srv, err := server.New(cfg)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), Banner())
			fmt.Fprintln(cmd.OutOrStdout(), infoStyle.Render(fmt.Sprintf("listening on %s:%d (region %s)", host, port, region)))

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.WriteTimeout)
				defer shutdownCancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	defaultDSN := envString("DSN", "local://"+filepath.Join(GetDataDir(), "objects"))

	cmd.Flags().StringVar(&host, "host", envString("HOST", "0.0.0.0"), "Address to bind to")
	cmd.Flags().IntVar(&port, "port", envInt("PORT", 9000), "Port to listen on")
	cmd.Flags().StringVar(&dsn, "dsn", defaultDSN, "Storage backend DSN (local://path or remote:workspace?cache=path)")
	cmd.Flags().StringVar(&accessKey, "access-key", envString("ACCESS_KEY", "s3gw"), "S3 access key id")
	cmd.Flags().StringVar(&secretKey, "secret-key", envString("SECRET_KEY", "s3gwsecret"), "S3 secret access key")
	cmd.Flags().StringVar(&region, "region", envString("REGION", "us-east-1"), "Region reported by GetBucketLocation")
	cmd.Flags().Int64Var(&maxObjSize, "max-object-size", envInt64("MAX_OBJECT_SIZE", 5*1024*1024*1024), "Maximum accepted object size in bytes, 0 for unbounded")
	cmd.Flags().BoolVar(&noAuth, "no-auth", envBool("NO_AUTH", false), "Disable SigV4 request authentication")
	cmd.Flags().BoolVar(&enablePprof, "pprof", envBool("PPROF", true), "Expose pprof endpoints under /debug/pprof")

	return cmd
}
