// Command pagestore drives the page-backed b-tree and linear hash engines:
// random workloads checked against Go maps, structure dumps and a content
// comparison with bbolt.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		logLevel   string
		logFile    string
		cfg        Config
		logger     *zap.Logger
	)

	root := &cobra.Command{
		Use:          "pagestore",
		Short:        "Exercise page-backed b-trees and linear hash tables",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if cfg, err = LoadConfig(configPath); err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			if cmd.Flags().Changed("log-file") {
				cfg.Log.File = logFile
			}
			logger, err = NewLogger(cfg.Log)
			return err
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level")
	root.PersistentFlags().StringVar(&logFile, "log-file", "", "rotating JSON log file")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the configured random workload on both engines",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return RunWorkloads(cmd.Context(), cfg, logger)
			},
		},
		newDumpCommand(&logger),
		newCompareCommand(&cfg, &logger),
	)
	return root
}

func newDumpCommand(logger **zap.Logger) *cobra.Command {
	opts := DumpOptions{Kind: "btree", Keys: 100, BlockSize: 128, Seed: 1}
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Build a small structure and print its blocks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return DumpStructure(cmd.OutOrStdout(), opts, *logger)
		},
	}
	cmd.Flags().StringVar(&opts.Kind, "kind", opts.Kind, "btree or hash")
	cmd.Flags().IntVar(&opts.Keys, "keys", opts.Keys, "number of inserts")
	cmd.Flags().IntVar(&opts.BlockSize, "block-size", opts.BlockSize, "block or bucket size in bytes")
	cmd.Flags().Int64Var(&opts.Seed, "seed", opts.Seed, "random seed")
	return cmd
}

func newCompareCommand(cfg *Config, logger **zap.Logger) *cobra.Command {
	opts := CompareOptions{Keys: 100000, Dir: os.TempDir(), Seed: 1}
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Load the same entries into an ordered map and bbolt and compare",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return CompareWithBolt(*cfg, opts, *logger)
		},
	}
	cmd.Flags().IntVar(&opts.Keys, "keys", opts.Keys, "number of entries")
	cmd.Flags().StringVar(&opts.Dir, "dir", opts.Dir, "directory for the bbolt file")
	cmd.Flags().Int64Var(&opts.Seed, "seed", opts.Seed, "random seed")
	return cmd
}
