package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fetchq/fetchq/api"
	"github.com/fetchq/fetchq/internal/app"
	"github.com/fetchq/fetchq/internal/domain"
	"github.com/fetchq/fetchq/internal/infrastructure"
	"github.com/fetchq/fetchq/pkg/logger"
)

var (
	serverMode = flag.Bool("server-mode", false, "Internal flag: run in server mode (called by daemon)")
	configPath = flag.String("config", "", "Path to config file")
)

func main() {
	flag.Parse()

	// If not in server mode, run as daemon
	if !*serverMode {
		startAsDaemon()
		return
	}

	// Run as server (called by daemon)
	runServer()
}

// startAsDaemon forks the current process and runs the server in background
func startAsDaemon() {
	// Get the executable path
	execPath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get executable path: %v\n", err)
		os.Exit(1)
	}

	// Get current working directory
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "/"
	}

	args := []string{"-server-mode"}
	if *configPath != "" {
		args = append(args, "-config", *configPath)
	}

	// Fork the process
	cmd := exec.Command(execPath, args...)
	cmd.Dir = cwd
	cmd.Env = os.Environ()

	// Detach from parent process
	setSysProcAttr(cmd)

	// Redirect output to /dev/null
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open /dev/null: %v\n", err)
		os.Exit(1)
	}
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	// Start the child process
	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Server started as daemon (PID: %d)\n", cmd.Process.Pid)
	os.Exit(0)
}

func runServer() {
	// Load configuration
	config, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting FetchQ server",
		zap.String("version", "1.0.0"),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("download_dir", config.Download.Dir),
		zap.Int("concurrent_limit", config.Download.ConcurrentLimit))

	// Create directories
	if err := createDirectories(config); err != nil {
		log.Fatal("Failed to create directories", zap.Error(err))
	}

	// Initialize stores
	historyStore, err := infrastructure.NewSQLiteHistoryStore(config.Store.HistoryPath())
	if err != nil {
		log.Fatal("Failed to initialize history store", zap.Error(err))
	}
	defer historyStore.Close()

	logStore, err := infrastructure.NewSQLiteLogStore(config.Store.LogsPath(), log)
	if err != nil {
		log.Fatal("Failed to initialize log store", zap.Error(err))
	}
	defer logStore.Close()

	// Initialize notification service
	notifier := infrastructure.NewNotificationService(&config.Notification, log)

	// Initialize the yt-dlp runner
	runner := infrastructure.NewYTDLPRunner(config, log)

	// Initialize scheduler
	scheduler := app.NewScheduler(runner, historyStore, logStore, notifier, config, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := scheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// Enforce log retention in the background
	go runLogCleanup(ctx, logStore, &config.Store, log)

	// Setup HTTP router
	router := api.SetupRouter(api.RouterDeps{
		Scheduler: scheduler,
		History:   historyStore,
		Logs:      logStore,
		Checker:   infrastructure.NewBinaryChecker(config),
		Config:    config,
		Logger:    log,
	})

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop taking requests first
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	// Stop the scheduler; this kills live downloads and waits for their
	// supervisors, so the stores see every final state before closing.
	if err := scheduler.Stop(); err != nil {
		log.Error("Error stopping scheduler", zap.Error(err))
	}

	log.Info("Server exited")
}

// runLogCleanup sweeps expired log entries at startup and on an interval
func runLogCleanup(ctx context.Context, store domain.LogStore, cfg *domain.StoreConfig, log *zap.Logger) {
	sweep := func() {
		removed, err := store.Cleanup(cfg.LogMaxAgeDays, cfg.LogMaxEntries)
		if err != nil {
			log.Error("Log cleanup failed", zap.Error(err))
			return
		}
		if removed > 0 {
			log.Info("Log cleanup removed entries", zap.Int64("removed", removed))
		}
	}

	sweep()

	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}

func createDirectories(config *domain.Config) error {
	dirs := []string{
		config.Download.Dir,
		config.Store.Dir,
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
