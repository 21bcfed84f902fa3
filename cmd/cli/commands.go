package main

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"configurateur/internal/catalog"
	"configurateur/internal/export"
	"configurateur/pkg/models"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in as admin and store the token",
	RunE: func(cmd *cobra.Command, _ []string) error {
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && err != io.EOF {
				return err
			}
			password = strings.TrimSpace(line)
		}

		var resp struct {
			Token     string `json:"token"`
			ExpiresIn int64  `json:"expires_in"`
		}
		if err := publicClient().doJSON(cmd.Context(), http.MethodPost, "/api/login", map[string]string{"password": password}, &resp); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		td := tokenData{Token: resp.Token}
		if resp.ExpiresIn > 0 {
			td.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
		}
		if err := saveToken(tokenPath, td); err != nil {
			return fmt.Errorf("save token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "logged in")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the stored token and forget it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if c, err := authedClient(); err == nil {
			if err := c.doJSON(cmd.Context(), http.MethodPost, "/api/logout", nil, nil); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "server logout: %v\n", err)
			}
		}
		if err := clearToken(tokenPath); err != nil {
			return fmt.Errorf("logout failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "logged out")
		return nil
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Read or replace a catalog (" + strings.Join(catalog.Names(), ", ") + ")",
}

var catalogGetCmd = &cobra.Command{
	Use:   "get <kind>",
	Short: "Print a catalog as CSV (or JSON with --json)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient()
		if err != nil {
			return err
		}
		var resp struct {
			Columns []string            `json:"columns"`
			Rows    []map[string]string `json:"rows"`
		}
		if err := c.doJSON(cmd.Context(), http.MethodGet, "/api/admin/catalog/"+url.PathEscape(args[0]), nil, &resp); err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		return catalog.WriteTable(cmd.OutOrStdout(), resp.Columns, resp.Rows)
	},
}

var catalogPutCmd = &cobra.Command{
	Use:   "put <kind> <file.csv>",
	Short: "Replace a catalog with a local CSV file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient()
		if err != nil {
			return err
		}
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		t, err := catalog.ParseTable(f)
		if err != nil {
			return fmt.Errorf("parse %s: %w", args[1], err)
		}

		rows := make([]map[string]any, 0, len(t.Rows))
		for _, r := range t.Rows {
			row := make(map[string]any, len(r))
			for k, v := range r {
				row[k] = v
			}
			rows = append(rows, row)
		}
		var resp map[string]any
		payload := map[string]any{"columns": t.Columns, "rows": rows}
		if err := c.doJSON(cmd.Context(), http.MethodPut, "/api/admin/catalog/"+url.PathEscape(args[0]), payload, &resp); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

var kpiCmd = &cobra.Command{
	Use:   "kpi",
	Short: "Inspect or purge KPI events",
}

var kpiSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Totals, top events and events per day",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := authedClient()
		if err != nil {
			return err
		}
		var resp models.KPISummary
		if err := c.doJSON(cmd.Context(), http.MethodGet, "/api/kpi/summary", nil, &resp); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

var kpiEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List the latest events",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := authedClient()
		if err != nil {
			return err
		}
		event, _ := cmd.Flags().GetString("event")
		limit, _ := cmd.Flags().GetInt("limit")
		q := url.Values{}
		q.Set("limit", strconv.Itoa(limit))
		if event != "" {
			q.Set("event", event)
		}
		var resp struct {
			Rows []models.KPIEvent `json:"rows"`
		}
		if err := c.doJSON(cmd.Context(), http.MethodGet, "/api/kpi/events?"+q.Encode(), nil, &resp); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp.Rows)
	},
}

var kpiExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download every event as CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := authedClient()
		if err != nil {
			return err
		}
		resp, err := c.do(cmd.Context(), http.MethodGet, "/api/kpi/export.csv", nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		out, _ := cmd.Flags().GetString("out")
		return writeBody(cmd, resp.Body, out)
	},
}

var kpiResetCmd = &cobra.Command{
	Use:   "reset <YYYY-MM>",
	Short: "Delete every event of one month",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient()
		if err != nil {
			return err
		}
		var resp map[string]any
		if err := c.doJSON(cmd.Context(), http.MethodDelete, "/api/kpi/reset-month", map[string]string{"month": args[0]}, &resp); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <quote.pdf> <ID>...",
	Short: "Build a zip of a quote and the datasheets of the given products",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("name")
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = export.SanitizeArchiveName(name)
		}

		payload := map[string]any{
			"pdf_base64":  base64.StdEncoding.EncodeToString(doc),
			"product_ids": args[1:],
			"zip_name":    name,
		}
		resp, err := publicClient().do(cmd.Context(), http.MethodPost, "/export/localzip", payload)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := writeBody(cmd, resp.Body, out); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s datasheets included, %s missing\n",
			out, resp.Header.Get("X-Export-Included"), resp.Header.Get("X-Export-Missing"))
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the live admin feed",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := authedClient()
		if err != nil {
			return err
		}
		endpoint, err := websocketURL(c.BaseURL, "/api/admin/ws")
		if err != nil {
			return fmt.Errorf("ws url: %w", err)
		}
		header := http.Header{}
		header.Set("Authorization", "Bearer "+c.Token)

		conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), endpoint, header)
		if err != nil {
			return fmt.Errorf("connect %s: %w", endpoint, err)
		}
		defer conn.Close()
		fmt.Fprintf(cmd.ErrOrStderr(), "connected to %s\n", endpoint)

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return nil
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(msg))
		}
	},
}

func init() {
	loginCmd.Flags().String("password", "", "Admin password (prompted when empty)")

	catalogGetCmd.Flags().Bool("json", false, "Print columns and rows as JSON")
	catalogCmd.AddCommand(catalogGetCmd, catalogPutCmd)

	kpiEventsCmd.Flags().String("event", "", "Only this event name")
	kpiEventsCmd.Flags().Int("limit", 200, "Maximum rows")
	kpiExportCmd.Flags().StringP("out", "o", "", "Output file (stdout when empty)")
	kpiCmd.AddCommand(kpiSummaryCmd, kpiEventsCmd, kpiExportCmd, kpiResetCmd)

	exportCmd.Flags().String("name", export.DefaultArchiveName, "Archive name sent to the server")
	exportCmd.Flags().StringP("out", "o", "", "Output file (defaults to the archive name)")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeBody(cmd *cobra.Command, body io.Reader, out string) error {
	if out == "" || out == "-" {
		_, err := io.Copy(cmd.OutOrStdout(), body)
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
