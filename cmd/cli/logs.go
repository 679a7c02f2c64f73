package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View engine logs",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		level, _ := cmd.Flags().GetString("level")
		category, _ := cmd.Flags().GetString("category")
		search, _ := cmd.Flags().GetString("search")
		limit, _ := cmd.Flags().GetInt("limit")

		params := url.Values{}
		params.Set("page", "1")
		params.Set("page_size", strconv.Itoa(limit))
		if level != "" {
			params.Set("level", level)
		}
		if category != "" {
			params.Set("category", category)
		}
		if search != "" {
			params.Set("search", search)
		}

		resp, err := http.Get(serverURL + "/api/v1/logs?" + params.Encode())
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

		var result struct {
			Items []map[string]interface{} `json:"items"`
			Total int64                    `json:"total_count"`
		}
		json.Unmarshal(body, &result)

		// Query returns most-recent-first; print chronologically.
		for i := len(result.Items) - 1; i >= 0; i-- {
			printLogEntry(result.Items[i])
		}
		fmt.Printf("\n%d entries\n", result.Total)
	},
}

var logsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show log statistics",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		resp, err := http.Get(serverURL + "/api/v1/logs/stats")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		var stats map[string]interface{}
		json.Unmarshal(body, &stats)

		fmt.Println("Log Statistics:")
		fmt.Printf("  Total:    %v\n", stats["total"])
		fmt.Printf("  Errors:   %v\n", stats["errors"])
		fmt.Printf("  Warnings: %v\n", stats["warnings"])
		fmt.Printf("  Info:     %v\n", stats["info"])
	},
}

var logsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear engine logs",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		category, _ := cmd.Flags().GetString("category")

		target := serverURL + "/api/v1/logs"
		if category != "" {
			target += "?category=" + url.QueryEscape(category)
		}

		req, _ := http.NewRequest(http.MethodDelete, target, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		var result map[string]interface{}
		json.Unmarshal(body, &result)
		fmt.Printf("Removed %v log entries\n", result["removed"])
	},
}

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Stream engine logs live",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		wsURL := strings.Replace(serverURL, "http", "ws", 1) + "/api/v1/logs/ws"
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer conn.Close()

		// Close the connection on interrupt so ReadMessage unblocks.
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-interrupt
			conn.Close()
		}()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var entry map[string]interface{}
			if err := json.Unmarshal(data, &entry); err != nil {
				continue
			}
			printLogEntry(entry)
		}
	},
}

func printLogEntry(entry map[string]interface{}) {
	ts := ""
	if millis, ok := entry["timestamp"].(float64); ok {
		ts = time.UnixMilli(int64(millis)).Format("2006-01-02 15:04:05")
	}
	fmt.Printf("%s %-5v [%v] %v\n", ts, entry["level"], entry["category"], entry["message"])
	if details, ok := entry["details"].(string); ok && details != "" {
		for _, line := range strings.Split(details, "\n") {
			fmt.Printf("    %s\n", line)
		}
	}
}

func init() {
	logsCmd.Flags().String("level", "", "Filter by level (error, warn, info, debug)")
	logsCmd.Flags().String("category", "", "Filter by category (download, queue, history, system)")
	logsCmd.Flags().String("search", "", "Filter by message substring")
	logsCmd.Flags().Int("limit", 50, "Number of entries to show")
	logsClearCmd.Flags().String("category", "", "Clear only this category")
	logsCmd.AddCommand(logsStatsCmd)
	logsCmd.AddCommand(logsClearCmd)
}
