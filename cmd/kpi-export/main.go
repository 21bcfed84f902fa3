package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"configurateur/internal/config"
	"configurateur/internal/kpi"
	"configurateur/internal/logging"
	"configurateur/pkg/database"
)

var (
	configPath string
	dbPath     string
	outPath    string
)

var rootCmd = &cobra.Command{
	Use:          "kpi-export",
	Short:        "Dump the KPI events table to CSV without a running server",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file (or CONFIGURATEUR_CONFIG)")
	rootCmd.Flags().StringVar(&dbPath, "db", "", "KPI sqlite file (overrides config)")
	rootCmd.Flags().StringVarP(&outPath, "out", "o", "kpi_export.csv", "Output CSV path, - for stdout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.KPIDBPath = dbPath
	}
	log := logging.Must(cfg.Log.Level, cfg.Log.Format)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	db, err := database.Open(database.Config{Path: cfg.KPIDBPath})
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("db migrate failed: %w", err)
	}

	var w io.Writer = cmd.OutOrStdout()
	if outPath != "-" {
		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			return err
		}
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	n, err := kpi.NewRepo(db).ExportCSV(ctx, w)
	if err != nil {
		return fmt.Errorf("export kpi events: %w", err)
	}
	log.Info("kpi events exported", zap.Int("rows", n), zap.String("db", cfg.KPIDBPath), zap.String("out", outPath))
	return nil
}
