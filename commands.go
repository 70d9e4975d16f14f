package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/example/recycle-points/internal/config"
	"github.com/example/recycle-points/internal/logging"
)

// newRootCommand builds the CLI. Every setting can also come from the
// environment or a .env file; flags take precedence.
func newRootCommand() *cobra.Command {
	v := config.New()

	root := &cobra.Command{
		Use:           "recycle-points",
		Short:         "Scan recyclables and keep a per-address points ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("database-driver", "", "database driver (postgres, sqlite)")
	root.PersistentFlags().String("database-dsn", "", "database connection string")
	for _, name := range []string{"log-level", "database-driver", "database-dsn"} {
		_ = v.BindPFlag(flagKey(name), root.PersistentFlags().Lookup(name))
	}

	root.AddCommand(
		serveCommand(v),
		migrateCommand(v),
		scanCommand(v),
		lookupCommand(v),
		verifyCommand(v),
	)
	return root
}

func flagKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// withApp loads the configuration, builds the app and closes it after run.
func withApp(cmd *cobra.Command, v *viper.Viper, run func(ctx context.Context, a *app) error) error {
	cfg, err := config.Read(v)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return err
	}
	defer a.Close()

	if err := run(cmd.Context(), a); err != nil {
		a.logger.Error("command failed", append(logging.ErrorFields(err), zap.String("command", cmd.Name()))...)
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return err
	}
	return nil
}

func serveCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, v, func(ctx context.Context, a *app) error {
				return a.serve(ctx)
			})
		},
	}
	cmd.Flags().String("http-addr", "", "listen address")
	_ = v.BindPFlag("http_addr", cmd.Flags().Lookup("http-addr"))
	return cmd
}

func migrateCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, v, func(ctx context.Context, a *app) error {
				return a.migrate(ctx)
			})
		},
	}
}

func scanCommand(v *viper.Viper) *cobra.Command {
	var address, imagePath string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Classify one image and record its points",
		RunE: func(cmd *cobra.Command, _ []string) error {
			img, err := os.ReadFile(imagePath)
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			return withApp(cmd, v, func(ctx context.Context, a *app) error {
				if err := a.migrate(ctx); err != nil {
					return err
				}
				uc, err := a.scanUseCase(ctx, nil)
				if err != nil {
					return err
				}
				out, scanErr := uc.ProcessScan(ctx, address, img)
				if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
					return err
				}
				return scanErr
			})
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "address the scan is credited to")
	cmd.Flags().StringVar(&imagePath, "image", "", "path to the image file")
	_ = cmd.MarkFlagRequired("address")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

func lookupCommand(v *viper.Viper) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Print the points total of an address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, v, func(ctx context.Context, a *app) error {
				if err := a.migrate(ctx); err != nil {
					return err
				}
				loc, err := a.readUseCase().LookupLocation(ctx, address)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), loc)
			})
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "address to look up")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

var errLedgerDrift = errors.New("ledger totals do not match the scan audit trail")

func verifyCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check every location total against its scan history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, v, func(ctx context.Context, a *app) error {
				discrepancies, err := a.readUseCase().VerifyLedger(ctx)
				if err != nil {
					return err
				}
				if err := writeJSON(cmd.OutOrStdout(), discrepancies); err != nil {
					return err
				}
				if len(discrepancies) > 0 {
					return errLedgerDrift
				}
				return nil
			})
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
