// Package main implements the contentflow CLI: the admin API server and
// one-shot operator commands against the shared workflow state.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cli carries the persistent flags and the config resolved before any
// subcommand runs.
type cli struct {
	configPath string
	cfg        *AppConfig
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "contentflow",
		Short: "Content workflow orchestration and governance engine",
		Long: `contentflow runs blog content workflows through research, outline, draft
and compliance phases under a shared daily quota, and watches for stuck
workflows and abusive API clients.

Configuration comes from an optional YAML or JSON file and CONTENTFLOW_*
environment variables, which win over the file.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := loadConfig(c.configPath)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.logger = newLogger(cfg.LogLevel)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to a YAML or JSON config file")

	root.AddCommand(
		c.newServeCmd(),
		c.newRunCmd(),
		c.newStatusCmd(),
		c.newAlertsCmd(),
		c.newQuotaCmd(),
		c.newSweepCmd(),
		c.newTokenCmd(),
	)
	return root
}

// withApp builds the shared components, runs fn and releases them.
func (c *cli) withApp(ctx context.Context, fn func(*app) error) error {
	a, err := newApp(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
