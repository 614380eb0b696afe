package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"packrat/internal/model"

	"github.com/spf13/cobra"
)

var (
	historyN      int
	historyPaused bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recent executions",
	RunE: func(cmd *cobra.Command, args []string) error {
		url := fmt.Sprintf("%s?n=%d", daemonURL("/executions/recent"), historyN)
		if historyPaused {
			url = daemonURL("/executions/paused")
		}

		resp, err := http.Get(url)
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var execs []model.Execution
		if err := json.NewDecoder(resp.Body).Decode(&execs); err != nil {
			return err
		}

		if len(execs) == 0 {
			fmt.Println("no executions yet")
			return nil
		}

		fmt.Printf("%-6s %-6s %-22s %-20s %-10s %s\n",
			"ID", "JOB", "STATUS", "STARTED", "FILES", "ERROR")
		for _, e := range execs {
			fmt.Printf("%-6d %-6d %-22s %-20s %d/%d (%d failed) %s\n",
				e.ID, e.JobID, e.Status,
				e.StartedAt.Format("2006-01-02 15:04:05"),
				e.ProcessedFiles, e.TotalFiles, e.FailedFiles,
				e.ErrorMessage)
		}

		return nil
	},
}

var purgeDays int

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete finished executions older than N days",
	RunE: func(cmd *cobra.Command, args []string) error {
		url := fmt.Sprintf("%s?days=%d", daemonURL("/executions/purge"), purgeDays)
		resp, err := http.Post(url, "application/json", nil)
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var result struct {
			Purged int64 `json:"purged"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return err
		}

		fmt.Printf("purged %d executions\n", result.Purged)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyN, "n", 20, "number of executions to show")
	historyCmd.Flags().BoolVar(&historyPaused, "paused", false, "show only paused executions")
	purgeCmd.Flags().IntVar(&purgeDays, "days", 30, "age cutoff in days")
	rootCmd.AddCommand(historyCmd, purgeCmd)
}
