package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"configurateur/internal/catalog"
	"configurateur/internal/config"
	"configurateur/internal/logging"
	"configurateur/internal/media"
)

// exit code when at least one download failed
const exitFailures = 2

var errFailures = errors.New("some downloads failed")

var (
	configPath   string
	dataDir      string
	parallelism  int
	timeout      time.Duration
	allowedHosts []string
	dryRun       bool
)

var rootCmd = &cobra.Command{
	Use:   "fetch-media",
	Short: "Mirror product pictures and datasheets referenced by the catalogs",
	Long: `fetch-media reads every catalog CSV and downloads the image_url and
datasheet_url targets (plus the accessory media of accessories.csv) into
<data>/Images/<family>/ and <data>/Fiche_tech/<family>/.

Files that already exist with a non-zero size are skipped, so the command can
be re-run safely. Only hosts from the allowed list are contacted.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file (or CONFIGURATEUR_CONFIG)")
	rootCmd.Flags().StringVarP(&dataDir, "data-dir", "d", "", "Catalog directory (overrides config)")
	rootCmd.Flags().IntVarP(&parallelism, "parallelism", "p", 0, "Parallel downloads (overrides config)")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-request timeout (overrides config)")
	rootCmd.Flags().StringSliceVar(&allowedHosts, "allow-host", nil, "Allowed download host, repeatable (overrides config)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "List planned downloads without fetching")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errFailures) {
			os.Exit(exitFailures)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
		cfg.DatasheetsDir = filepath.Join(dataDir, "Fiche_tech")
	}
	if parallelism > 0 {
		cfg.Media.Parallelism = parallelism
	}
	if timeout > 0 {
		cfg.Media.Timeout = timeout
	}
	if len(allowedHosts) > 0 {
		cfg.Media.AllowedHosts = allowedHosts
	}

	log := logging.Must(cfg.Log.Level, cfg.Log.Format)
	defer func() { _ = log.Sync() }()

	store := catalog.NewStore(cfg.DataDir, log.Named("catalog"))
	plan, err := media.BuildPlan(store, media.Dirs{Images: cfg.ImagesDir(), Datasheets: cfg.DatasheetsDir})
	if err != nil {
		return fmt.Errorf("plan downloads: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "DATA_DIR : %s\n", cfg.DataDir)
	fmt.Fprintf(out, "Jobs     : %d\n\n", len(plan.Jobs))

	if dryRun {
		for _, j := range plan.Jobs {
			fmt.Fprintf(out, "[%s] %-3s %-14s %s -> %s\n", j.Family, j.Kind, j.ID, j.URL, j.Dest)
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := media.NewRunner(media.NewFetcher(cfg.Media.Timeout, cfg.Media.AllowedHosts), cfg.Media.Parallelism, log.Named("media"))
	sum := runner.Run(ctx, plan.Jobs)

	for _, o := range sum.Outcomes {
		fmt.Fprintf(out, "[%s] %-3s %-14s -> %s\n", o.Job.Family, o.Job.Kind, o.Job.ID, o)
	}

	if plan.AccessoryIDs != nil {
		p, err := media.WriteAccessoryIDs(cfg.DataDir, plan.AccessoryIDs)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n[accessories] %d ids -> %s\n", len(plan.AccessoryIDs), p)
	}

	fmt.Fprintln(out, "\n=== Summary ===")
	fmt.Fprintf(out, "OK   : %d\n", sum.OK)
	fmt.Fprintf(out, "SKIP : %d\n", sum.Skip)
	fmt.Fprintf(out, "ERR  : %d\n", sum.Err)

	if sum.Failed() {
		return errFailures
	}
	return nil
}
