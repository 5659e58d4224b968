// Package cli implements the collect command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/collectnet/collect/internal/daemon"
	"github.com/collectnet/collect/internal/domain"
)

var (
	configPath string
	callerAddr string
)

var rootCmd = &cobra.Command{
	Use:   "collect",
	Short: "Waste collection accounting and scheduling ledger",
	Long: `collect keeps the balances of households and collection companies,
tracks truck capacity, queues pickup requests and settles completed
collections.

Commands other than serve operate directly on the local database. Stop the
server before using them against the same data directory.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $COLLECT_HOME/config.toml)")
	rootCmd.PersistentFlags().StringVar(&callerAddr, "as", os.Getenv("COLLECT_CALLER"), "Owner address to act as (env COLLECT_CALLER)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// caller returns the identity given with --as.
func caller() domain.Address {
	return domain.Address(callerAddr)
}

// withDaemon loads config, opens the daemon resources, runs fn and closes.
func withDaemon(fn func(ctx context.Context, d *daemon.Daemon) error) error {
	cfg, err := daemon.LoadConfig(configPath)
	if err != nil {
		return err
	}
	d, err := daemon.New(cfg)
	if err != nil {
		return fmt.Errorf("open daemon: %w", err)
	}
	defer d.Close()
	return fn(context.Background(), d)
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
