// Package cli implements the catalogsync command line: serving the HTTP API,
// running one reconciliation and listing run history.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/erp/catalogsync/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags "-X .../cli.Version=..."
var Version = "dev"

// RootOptions holds global flags for all commands
type RootOptions struct {
	Format string // "json" | "text"

	// LoadConfig loads configuration; tests replace it
	LoadConfig func() (*config.Config, error)
	// NewApp wires the application; tests replace it
	NewApp func(ctx context.Context, cfg *config.Config, opts AppOptions) (*App, error)
}

// ValidFormats defines the allowed output formats
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{LoadConfig: config.Load, NewApp: NewApp})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "catalogsync",
		Short:   "Remote catalog reconciliation",
		Long:    "Pulls the remote product catalog and reconciles it into the local catalog store.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// bootstrap loads configuration and wires the application
func (o *RootOptions) bootstrap(ctx context.Context, appOpts AppOptions) (*App, error) {
	cfg, err := o.LoadConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	app, err := o.NewApp(ctx, cfg, appOpts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to start", err)
	}
	return app, nil
}
