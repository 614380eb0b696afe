package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

func postControl(path, success string) error {
	resp, err := http.Post(daemonURL(path), "application/json", nil)
	if err != nil {
		return fmt.Errorf("daemon not running: %w", err)
	}

	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode >= 400 {
		var result map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&result)
		return fmt.Errorf("%s", result["error"])
	}

	fmt.Println(success)
	return nil
}

var runCmd = &cobra.Command{
	Use:   "run [job-id]",
	Short: "Start (or resume) a backup run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postControl("/jobs/"+args[0]+"/run", "backup started")
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the active backup run",
	RunE: func(cmd *cobra.Command, args []string) error {
		return postControl("/run/pause", "backup pausing")
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume the paused backup run",
	RunE: func(cmd *cobra.Command, args []string) error {
		return postControl("/run/resume", "backup resumed")
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Cancel the active backup run",
	RunE: func(cmd *cobra.Command, args []string) error {
		return postControl("/run/stop", "backup stopping")
	},
}

func init() {
	rootCmd.AddCommand(runCmd, pauseCmd, resumeCmd, stopCmd)
}
