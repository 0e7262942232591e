package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/inkdrift/scriptorium/internal/config"
	"github.com/inkdrift/scriptorium/internal/persist"
	"github.com/inkdrift/scriptorium/pkg/audit"
	"github.com/inkdrift/scriptorium/pkg/logger"
	"github.com/inkdrift/scriptorium/pkg/server"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "scriptorium",
	Short: "Collaborative rich-text document engine",
	Long: `scriptorium synchronizes a single shared rich-text document among
many simultaneously connected clients over a websocket transport, with
inline image processing and debounced crash-safe persistence.`,
	RunE: runServe,
}

func init() {
	rootCmd.Flags().String("port", "", "Listening TCP port (overrides PORT env)")
	rootCmd.Flags().String("config", "", "Path to an optional TOML config file")
	rootCmd.Flags().String("audit-db", "", "Path to an optional SQLite audit database")
	rootCmd.Flags().String("doc-path", "", "Path to the persisted plain-text document file")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger.Init()
	log := logger.With("component", "main")

	port, _ := cmd.Flags().GetString("port")
	configFile, _ := cmd.Flags().GetString("config")
	auditDB, _ := cmd.Flags().GetString("audit-db")
	docPath, _ := cmd.Flags().GetString("doc-path")

	cfg, err := config.Load(configFile, auditDB, docPath, port)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log.Info("starting scriptorium server")
	log.Field("port", cfg.Port).Field("docPath", cfg.DocPath).Info("config loaded")

	var auditLog *audit.Log
	if cfg.AuditDB != "" {
		auditLog, err = audit.Open(cfg.AuditDB)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		defer auditLog.Close()
		log.Field("path", cfg.AuditDB).Info("audit log enabled")
	} else {
		log.Info("audit log disabled")
	}

	srv, err := server.New(*cfg, auditLog)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	scheduler := persist.New(srv.Store(), time.Duration(cfg.SaveInterval)*time.Millisecond, auditLog)
	schedulerCtx, cancelScheduler := context.WithCancel(context.Background())
	go scheduler.Run(schedulerCtx)

	// The config file's save_interval_ms, max_image_kb, image_max_dimension,
	// and image_jpeg_quality are safe to change without a restart; push every
	// reload straight into the components built from them.
	live := config.NewLive(*cfg)
	stopWatch, err := live.Watch(func(updated config.Config) {
		scheduler.SetInterval(time.Duration(updated.SaveInterval) * time.Millisecond)
		srv.Images().UpdateParams(updated.MaxImageKB, updated.ImageMaxDimension, updated.ImageJPEGQuality)
	})
	if err != nil {
		log.Error("config hot-reload disabled: %v", err)
		stopWatch = func() {}
	}
	defer stopWatch()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR2)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(":" + cfg.Port)
	}()

	select {
	case sig := <-sigCh:
		log.Field("signal", sig.String()).Info("received signal, shutting down")
	case err := <-errCh:
		if err != nil {
			log.Error("listener error: %v", err)
			return err
		}
		return nil
	}

	cancelScheduler()

	done := make(chan error, 1)
	go func() {
		done <- srv.Shutdown(context.Background())
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Error("shutdown error: %v", err)
			os.Exit(1)
		}
	case <-time.After(10 * time.Second):
		log.Error("shutdown deadline exceeded, forcing exit")
		os.Exit(1)
	}

	return nil
}
