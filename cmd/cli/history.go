package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List completed downloads",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		search, _ := cmd.Flags().GetString("search")
		page, _ := cmd.Flags().GetInt("page")
		pageSize, _ := cmd.Flags().GetInt("page-size")

		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("page_size", strconv.Itoa(pageSize))
		if search != "" {
			params.Set("search", search)
		}

		resp, err := http.Get(serverURL + "/api/v1/history?" + params.Encode())
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

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tQUALITY\tSIZE\tDOWNLOADED")
		for _, e := range result.Items {
			title, _ := e["title"].(string)
			downloaded := ""
			if secs, ok := e["downloaded_at"].(float64); ok {
				downloaded = time.Unix(int64(secs), 0).Format("2006-01-02 15:04")
			}
			size := ""
			if b, ok := e["file_size_bytes"].(float64); ok {
				size = humanBytes(int64(b))
			}
			fmt.Fprintf(w, "%v\t%s\t%v\t%s\t%s\n",
				e["id"],
				truncate(title, 40),
				e["quality"],
				size,
				downloaded)
		}
		w.Flush()

		fmt.Printf("\n%d entries\n", result.Total)
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a history entry",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		id := args[0]
		req, _ := http.NewRequest(http.MethodDelete, serverURL+"/api/v1/history/"+id, nil)
		resp, err := http.DefaultClient.Do(req)
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
		fmt.Println("History entry deleted")
	},
}

func init() {
	historyCmd.Flags().String("search", "", "Filter by title substring")
	historyCmd.Flags().Int("page", 1, "Page number")
	historyCmd.Flags().Int("page-size", 50, "Items per page")
	historyCmd.AddCommand(historyDeleteCmd)
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
