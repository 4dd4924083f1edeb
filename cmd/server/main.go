package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/thereceipt/thermal-bridge/internal/api"
	"github.com/thereceipt/thermal-bridge/internal/config"
	"github.com/thereceipt/thermal-bridge/internal/logger"
	"github.com/thereceipt/thermal-bridge/internal/printer"
)

// Version is set during build via ldflags
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to a thermal-bridge.toml file")
	portFlag := flag.Int("port", 0, "Port to listen on (overrides the configuration)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != 0 {
		cfg.App.Port = *portFlag
	} else if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.App.Port = p
		}
	}
	if cfg.App.RegistryPath == "" {
		cfg.App.RegistryPath = getRegistryPath()
	}

	zlog, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	zlog.Info("Thermal bridge starting",
		zap.String("version", Version),
		zap.String("env", cfg.App.Env),
		zap.String("registry", cfg.App.RegistryPath),
	)

	service, err := printer.NewServiceFromConfig(cfg, zlog)
	if err != nil {
		zlog.Fatal("Failed to create printer service", zap.Error(err))
	}
	defer service.Close()

	server := api.NewServer(service, zlog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Discovery.MonitorInterval > 0 {
		monitor := service.NewMonitor(cfg.Discovery.MonitorInterval, printer.USB)
		monitor.OnAdded(server.BroadcastPrinterAdded)
		monitor.OnRemoved(server.BroadcastPrinterRemoved)
		monitor.Start(ctx)
		defer monitor.Stop()
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", cfg.App.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		zlog.Info("Starting API server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		zlog.Error("Server error", zap.Error(err))
	case <-ctx.Done():
		zlog.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("Server shutdown failed", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// getRegistryPath returns the path to the printer registry file.
// It tries to place it next to the executable, or falls back to current directory.
func getRegistryPath() string {
	if exePath, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exePath)

		// Check if we can write to the executable directory
		testFile := filepath.Join(exeDir, ".thermal-bridge-write-test")
		if f, err := os.Create(testFile); err == nil {
			f.Close()
			os.Remove(testFile)
			return filepath.Join(exeDir, "printer_registry.json")
		}
	}

	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, "printer_registry.json")
	}

	// Last resort: user config directory
	var configDir string
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			configDir = filepath.Join(appData, "thermal-bridge")
		} else {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "thermal-bridge")
		}
	} else if home := os.Getenv("HOME"); home != "" {
		configDir = filepath.Join(home, ".config", "thermal-bridge")
	}

	if configDir != "" {
		return filepath.Join(configDir, "printer_registry.json")
	}
	return "printer_registry.json"
}
