package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"packrat/internal/daemon"
	"packrat/internal/db"
	"packrat/internal/engine"
	"packrat/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the backup daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()

		gdb, err := db.Open(cfg.DBPath)
		if err != nil {
			return err
		}

		eng, err := engine.New(gdb, cfg)
		if err != nil {
			return err
		}

		eng.OnProgress(func(processed, total int, label string) {
			logger.Log.Info("progress",
				zap.Int("processed", processed),
				zap.Int("total", total),
				zap.String("file", label))
		})

		srv := daemon.NewServer(eng, gdb, cfg.DaemonPort)
		srv.Start()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-sigCh:
			logger.Log.Info("signal received, shutting down")
		case <-srv.StopCh():
			logger.Log.Info("stop requested, shutting down")
		}

		// Bounded: an in-flight file copy finishes, then the run parks as
		// paused before the process exits.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Stop(ctx)
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
