package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	jobName     string
	jobIncludes string
	jobExcludes string
	jobTarget   string
	jobPolicy   string
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage backup jobs",
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Get(daemonURL("/jobs"))
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var result struct {
			Jobs []struct {
				ID             uint   `json:"ID"`
				Name           string `json:"Name"`
				Sources        string `json:"Sources"`
				TargetType     string `json:"TargetType"`
				ConflictPolicy string `json:"ConflictPolicy"`
			} `json:"jobs"`
		}

		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return err
		}

		if len(result.Jobs) == 0 {
			fmt.Println("no jobs configured")
			return nil
		}

		fmt.Printf("%-4s %-20s %-8s %-10s %s\n", "ID", "NAME", "TARGET", "POLICY", "SOURCES")
		for _, j := range result.Jobs {
			fmt.Printf("%-4d %-20s %-8s %-10s %s\n",
				j.ID, j.Name, j.TargetType, j.ConflictPolicy, j.Sources)
		}

		return nil
	},
}

var jobAddCmd = &cobra.Command{
	Use:   "add [source]...",
	Short: "Add a new job",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if jobName == "" || jobTarget == "" {
			return fmt.Errorf("--name and --target are required")
		}

		body, err := json.Marshal(map[string]any{
			"name":             jobName,
			"sources":          args,
			"include_patterns": jobIncludes,
			"exclude_patterns": jobExcludes,
			"target_type":      "local",
			"target_path":      jobTarget,
			"conflict_policy":  jobPolicy,
		})
		if err != nil {
			return err
		}

		resp, err := http.Post(daemonURL("/jobs"), "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var result map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&result)

		if resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("failed to add job: %v", result["error"])
		}

		fmt.Printf("job added: id=%v name=%s\n", result["ID"], jobName)
		return nil
	},
}

var jobRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Remove a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, _ := http.NewRequest(http.MethodDelete, daemonURL("/jobs/"+args[0]), nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		fmt.Printf("job %s removed\n", args[0])
		return nil
	},
}

func init() {
	jobAddCmd.Flags().StringVar(&jobName, "name", "", "job name")
	jobAddCmd.Flags().StringVar(&jobIncludes, "include", "", "include patterns, ';'-separated")
	jobAddCmd.Flags().StringVar(&jobExcludes, "exclude", "", "exclude patterns, ';'-separated")
	jobAddCmd.Flags().StringVar(&jobTarget, "target", "", "destination directory")
	jobAddCmd.Flags().StringVar(&jobPolicy, "policy", "rename", "conflict policy (rename|overwrite|skip)")

	jobCmd.AddCommand(jobListCmd, jobAddCmd, jobRemoveCmd)
	rootCmd.AddCommand(jobCmd)
}
