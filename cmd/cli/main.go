package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const defaultBaseURL = "http://localhost:8000"

var (
	baseURL   string
	tokenPath string
)

var rootCmd = &cobra.Command{
	Use:   "configurateur",
	Short: "Admin client for the configurator backend",
	Long: `configurateur talks to a running api-server: log in as admin, read and
replace catalogs, inspect or purge KPI events, build datasheet archives and
follow the live admin feed.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	defaultAPI := defaultBaseURL
	if env := os.Getenv("CONFIGURATEUR_API"); env != "" {
		defaultAPI = env
	}
	rootCmd.PersistentFlags().StringVar(&baseURL, "api", defaultAPI, "API base URL (or set CONFIGURATEUR_API)")
	rootCmd.PersistentFlags().StringVar(&tokenPath, "token-file", defaultTokenPath(), "Where the admin token is kept")

	rootCmd.AddCommand(loginCmd, logoutCmd, catalogCmd, kpiCmd, exportCmd, watchCmd)
}

// publicClient is used for endpoints that need no token.
func publicClient() *apiClient {
	return newClient(baseURL, "")
}

func authedClient() (*apiClient, error) {
	token, err := readToken(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("no usable token, run `configurateur login` first: %w", err)
	}
	if token == "" {
		return nil, fmt.Errorf("token empty, run `configurateur login` first")
	}
	return newClient(baseURL, token), nil
}
