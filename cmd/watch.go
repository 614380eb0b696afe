package cmd

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"packrat/internal/db"
	"packrat/internal/engine"
	"packrat/internal/logger"
	"packrat/internal/repository"
	"packrat/internal/watch"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchCmd = &cobra.Command{
	Use:   "watch [job-id]",
	Short: "Watch a job's sources and back up on change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()

		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return err
		}

		gdb, err := db.Open(cfg.DBPath)
		if err != nil {
			return err
		}

		job, err := repository.NewJobRepository(gdb).GetByID(uint(id))
		if err != nil {
			return err
		}

		eng, err := engine.New(gdb, cfg)
		if err != nil {
			return err
		}

		w, err := watch.New(eng, job, cfg.DebounceInterval)
		if err != nil {
			return err
		}

		if err := w.Start(); err != nil {
			return err
		}

		logger.Log.Info("watching for changes",
			zap.Uint("job", job.ID),
			zap.String("name", job.Name))

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		w.Stop()
		eng.Wait()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
