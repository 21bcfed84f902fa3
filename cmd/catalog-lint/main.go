package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"configurateur/internal/catalog"
	"configurateur/internal/config"
)

var errProblems = errors.New("catalog problems found")

var (
	configPath string
	dataDir    string
	asJSON     bool
)

var rootCmd = &cobra.Command{
	Use:   "catalog-lint",
	Short: "Check the catalog CSV files for missing, duplicate and shared ids",
	Long: `catalog-lint loads every declared catalog and reports rows without an id,
ids repeated inside one file and ids present in several families. A shared id
always resolves to the first family in declared order, so the others are
unreachable for datasheet lookup and exports.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file (or CONFIGURATEUR_CONFIG)")
	rootCmd.Flags().StringVarP(&dataDir, "data-dir", "d", "", "Catalog directory (overrides config)")
	rootCmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errProblems) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	root := dataDir
	if root == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		root = cfg.DataDir
	}

	rep := catalog.Lint(root)
	out := cmd.OutOrStdout()

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "%s: %d catalogs, %d identifiers\n", root, rep.Catalogs, rep.Identifiers)
		if len(rep.Problems) > 0 {
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FAMILY\tKIND\tROW\tID\tDETAIL")
			for _, p := range rep.Problems {
				row := "-"
				if p.Row > 0 {
					row = fmt.Sprint(p.Row)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Family, p.Kind, row, p.ID, p.Detail)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
		}
	}

	if !rep.OK() {
		return errProblems
	}
	return nil
}
