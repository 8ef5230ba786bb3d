// rtmksync mirrors a remote FTP directory of timestamped RTMK CSV drops
// into month-partitioned files under data/, tracking processed files in a
// committed state file so repeated runs only ingest new data.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rtmksync/internal/config"
	"rtmksync/internal/logging"
	"rtmksync/internal/remote"
	"rtmksync/internal/syncer"
)

var version = "dev"

var (
	cfgFile string
	verbose bool
	rebuild bool
)

var rootCmd = &cobra.Command{
	Use:   "rtmksync",
	Short: "Incremental FTP-to-monthly-CSV sync for RTMK 10-minute data",
	Long: `rtmksync connects to the configured FTP server, lists the CSV drops,
keeps those dated on or after START_FROM_DATE, and appends each new file's
data rows to data/YYYY-MM.csv. Processed file names are recorded in a state
file so the run is incremental and safe to repeat; commit data/ and state/
to keep increments working from clean checkouts.

Configuration comes from the environment (FTP_HOST, FTP_USER, FTP_PASS,
FTP_DIR, START_FROM_DATE, REBUILD_MONTHS, ...), optionally seeded from a
YAML file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSync,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the rtmksync version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rtmksync %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&rebuild, "rebuild", false, "rebuild in-scope month files (same as REBUILD_MONTHS=1)")
	rootCmd.AddCommand(versionCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	if rebuild {
		cfg.Rebuild = true
	}

	logger, closeLog, err := logging.New(cfg.LogDir, verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer closeLog()

	src, err := remote.NewFTP(cfg, logger)
	if err != nil {
		logger.Error("configuration error", zap.Error(err))
		return err
	}

	// Ctrl+C / SIGTERM stop the run between files; that is a clean exit,
	// not a failure.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := syncer.New(cfg, src, logger).Run(ctx); err != nil {
		logger.Error("sync failed", zap.Error(err))
		return err
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
