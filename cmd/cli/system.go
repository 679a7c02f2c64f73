package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine status",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		resp, err := http.Get(serverURL + "/api/v1/system/status")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		var status map[string]interface{}
		json.Unmarshal(body, &status)

		fmt.Printf("Version: %v\n", status["version"])
		if queue, ok := status["queue"].(map[string]interface{}); ok {
			fmt.Printf("Queue running: %v (max %v concurrent)\n",
				queue["running"], queue["max_concurrent"])
		}
		if diskInfo, ok := status["disk"].(map[string]interface{}); ok {
			free, _ := diskInfo["free_bytes"].(float64)
			total, _ := diskInfo["total_bytes"].(float64)
			pct, _ := diskInfo["used_percent"].(float64)
			fmt.Printf("Disk: %s free of %s (%.1f%% used) at %v\n",
				humanBytes(int64(free)), humanBytes(int64(total)), pct, diskInfo["path"])
		}
	},
}

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Check yt-dlp and ffmpeg availability",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		resp, err := http.Get(serverURL + "/api/v1/system/dependencies")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		var report map[string]interface{}
		json.Unmarshal(body, &report)

		printDep := func(name, installedKey, versionKey, pathKey string) {
			if installed, _ := report[installedKey].(bool); installed {
				fmt.Printf("%s: %v (%v)\n", name, report[versionKey], report[pathKey])
			} else {
				fmt.Printf("%s: not found\n", name)
			}
		}
		printDep("yt-dlp", "ytdlp_installed", "ytdlp_version", "ytdlp_path")
		printDep("ffmpeg", "ffmpeg_installed", "ffmpeg_version", "ffmpeg_path")
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update yt-dlp to the latest version",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		resp, err := http.Post(serverURL+"/api/v1/system/update", "application/json", nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		var result map[string]interface{}
		json.Unmarshal(body, &result)

		if resp.StatusCode != http.StatusOK {
			fmt.Fprintf(os.Stderr, "Error: %v\n", result["error"])
			os.Exit(1)
		}
		fmt.Printf("%v", result["output"])
	},
}

var concurrencyCmd = &cobra.Command{
	Use:   "concurrency [limit]",
	Short: "Show or set the parallel download limit",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		if len(args) == 0 {
			resp, err := http.Get(serverURL + "/api/v1/system/concurrency")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)
			var result map[string]interface{}
			json.Unmarshal(body, &result)
			fmt.Printf("Concurrency limit: %v\n", result["limit"])
			return
		}

		limit, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: limit must be a number\n")
			os.Exit(1)
		}

		data, _ := json.Marshal(map[string]int{"limit": limit})
		req, _ := http.NewRequest(http.MethodPut, serverURL+"/api/v1/system/concurrency", bytes.NewBuffer(data))
		req.Header.Set("Content-Type", "application/json")
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

		var result map[string]interface{}
		json.Unmarshal(body, &result)
		fmt.Printf("Concurrency limit set to %v\n", result["limit"])
	},
}
