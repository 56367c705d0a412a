package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fixloop/fixloop/internal/learning"
	"github.com/fixloop/fixloop/internal/server"
)

var serveAllowAll bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the diagnostic API server",
	Long: `Starts the HTTP API for diagnostic sessions, tutorial feedback, and
learning-cycle management. A cron scheduler runs periodic learning cycles
when server.learning_schedule is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		app, err := buildApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		srv := server.New(server.Config{
			Addr:     cfg.Server.Addr,
			AllowAll: serveAllowAll,
		}, server.Deps{
			Controller: app.controller,
			Feedback:   app.feedback,
			Runner:     app.runner,
			Knowledge:  app.knowledge,
			Library:    app.library,
		})

		if cfg.Server.LearningSchedule != "" {
			sched, err := learning.NewScheduler(app.runner, cfg.Server.LearningSchedule)
			if err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()
			log.Printf("learning scheduler active: %s", cfg.Server.LearningSchedule)
		}

		errCh := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return fmt.Errorf("server: %w", err)
		case <-stop:
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveAllowAll, "allow-all-origins", false, "allow all CORS origins (dev mode)")
	rootCmd.AddCommand(serveCmd)
}
