package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	serverURL   string
	noAutoStart bool
	rootCmd     = &cobra.Command{
		Use:   "fetchq",
		Short: "FetchQ CLI - yt-dlp download queue manager",
		Long:  `A command-line interface for queueing and supervising yt-dlp downloads.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8090", "Server URL")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(cancelAllCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(clearCompletedCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(tailCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(depsCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(concurrencyCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

var addCmd = &cobra.Command{
	Use:   "add [source]",
	Short: "Add a download to the queue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		source := args[0]
		format, _ := cmd.Flags().GetString("format")
		quality, _ := cmd.Flags().GetString("quality")

		payload := map[string]string{
			"source": source,
		}
		if format != "" {
			payload["format"] = format
		}
		if quality != "" {
			payload["quality"] = quality
		}

		data, _ := json.Marshal(payload)
		resp, err := http.Post(serverURL+"/api/v1/downloads", "application/json", bytes.NewBuffer(data))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}

		var result map[string]interface{}
		json.Unmarshal(body, &result)
		if resp.StatusCode == http.StatusOK {
			fmt.Printf("Already in queue as download #%v (%v)\n", result["id"], result["status"])
			return
		}
		fmt.Printf("Download added successfully!\n")
		fmt.Printf("ID: %v\n", result["id"])
		fmt.Printf("Status: %v\n", result["status"])
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued downloads",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		status, _ := cmd.Flags().GetString("status")
		page, _ := cmd.Flags().GetInt("page")
		pageSize, _ := cmd.Flags().GetInt("page-size")

		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("page_size", strconv.Itoa(pageSize))
		if status != "" {
			params.Set("status", status)
		}

		resp, err := http.Get(serverURL + "/api/v1/downloads?" + params.Encode())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}

		var snapshot struct {
			Items []map[string]interface{} `json:"items"`
			Stats map[string]interface{}   `json:"stats"`
		}
		json.Unmarshal(body, &snapshot)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tPROGRESS\tSPEED\tETA")
		for _, d := range snapshot.Items {
			title, _ := d["title"].(string)
			if title == "" {
				title, _ = d["source"].(string)
			}
			pct, _ := d["progress"].(float64)
			speed, _ := d["speed"].(string)
			eta, _ := d["eta"].(string)
			fmt.Fprintf(w, "%v\t%s\t%v\t%5.1f%%\t%s\t%s\n",
				d["id"],
				truncate(title, 40),
				d["status"],
				pct,
				speed,
				eta)
		}
		w.Flush()

		if snapshot.Stats != nil {
			fmt.Printf("\n%v total, %v pending, %v active\n",
				snapshot.Stats["total"], snapshot.Stats["pending"], snapshot.Stats["active"])
		}
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue statistics",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		resp, err := http.Get(serverURL + "/api/v1/downloads/stats")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		var stats map[string]interface{}
		json.Unmarshal(body, &stats)

		fmt.Println("Queue Statistics:")
		fmt.Printf("  Total:       %v\n", stats["total"])
		fmt.Printf("  Pending:     %v\n", stats["pending"])
		fmt.Printf("  Active:      %v\n", stats["active"])
		fmt.Printf("  Completed:   %v\n", stats["completed"])
		fmt.Printf("  Failed:      %v\n", stats["failed"])
		fmt.Printf("  Cancelled:   %v\n", stats["cancelled"])
	},
}

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Get download details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		id := args[0]
		resp, err := http.Get(serverURL + "/api/v1/downloads/" + id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}

		var download map[string]interface{}
		json.Unmarshal(body, &download)

		fmt.Printf("Download Details:\n")
		fmt.Printf("  ID:       %v\n", download["id"])
		fmt.Printf("  Source:   %v\n", download["source"])
		fmt.Printf("  Status:   %v\n", download["status"])
		if download["title"] != nil {
			fmt.Printf("  Title:    %v\n", download["title"])
		}
		if download["stage"] != nil {
			fmt.Printf("  Stage:    %v\n", download["stage"])
		}
		pct, _ := download["progress"].(float64)
		fmt.Printf("  Progress: %.1f%%\n", pct)
		if download["speed"] != nil {
			fmt.Printf("  Speed:    %v\n", download["speed"])
		}
		if download["eta"] != nil {
			fmt.Printf("  ETA:      %v\n", download["eta"])
		}
		fmt.Printf("  Created:  %v\n", download["created_at"])
		if download["error_message"] != nil {
			fmt.Printf("  Error:\n%v\n", download["error_message"])
		}
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a download",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		id := args[0]
		resp, err := http.Post(serverURL+"/api/v1/downloads/"+id+"/cancel", "application/json", nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}

		var result map[string]interface{}
		json.Unmarshal(body, &result)
		if result["result"] == "noop" {
			fmt.Println("Download already finished, nothing to cancel")
			return
		}
		fmt.Println("Download cancelled successfully")
	},
}

var cancelAllCmd = &cobra.Command{
	Use:   "cancel-all",
	Short: "Cancel every pending and active download",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		resp, err := http.Post(serverURL+"/api/v1/downloads/cancel-all", "application/json", nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		var result struct {
			Cancelled int      `json:"cancelled"`
			Errors    []string `json:"errors"`
		}
		json.Unmarshal(body, &result)

		fmt.Printf("Cancelled %d downloads\n", result.Cancelled)
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", e)
		}
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry [id]",
	Short: "Retry a failed or cancelled download",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		id := args[0]
		resp, err := http.Post(serverURL+"/api/v1/downloads/"+id+"/retry", "application/json", nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusCreated {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}

		var result map[string]interface{}
		json.Unmarshal(body, &result)
		fmt.Printf("Retrying as download #%v\n", result["id"])
	},
}

var clearCompletedCmd = &cobra.Command{
	Use:   "clear-completed",
	Short: "Remove completed downloads from the queue view",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		resp, err := http.Post(serverURL+"/api/v1/downloads/clear-completed", "application/json", nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		var result map[string]interface{}
		json.Unmarshal(body, &result)
		fmt.Printf("Removed %v completed downloads\n", result["removed"])
	},
}

func init() {
	addCmd.Flags().StringP("format", "f", "", "yt-dlp format selector (overrides quality)")
	addCmd.Flags().StringP("quality", "q", "", "Quality preset (best, 2160p, 1440p, 1080p, 720p, 480p, audio)")
	listCmd.Flags().StringP("status", "s", "", "Filter by status")
	listCmd.Flags().Int("page", 0, "Page number (zero-based)")
	listCmd.Flags().Int("page-size", 50, "Items per page")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
