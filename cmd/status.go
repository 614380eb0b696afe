package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"packrat/internal/engine"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Get(daemonURL("/status"))
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var snap engine.Snapshot
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			return fmt.Errorf("failed to decode status response: %w", err)
		}

		if !snap.Running {
			fmt.Println("idle")
			return nil
		}

		state := "running"
		if snap.Paused {
			state = "paused"
		}

		fmt.Printf("job %d: %s, %d/%d files", snap.JobID, state, snap.Processed, snap.Total)
		if snap.Failed > 0 {
			fmt.Printf(" (%d failed)", snap.Failed)
		}
		if snap.CurrentFile != "" {
			fmt.Printf(", %s", snap.CurrentFile)
		}
		fmt.Printf("\nuptime: %s\n", time.Since(snap.StartedAt).Round(time.Second))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
