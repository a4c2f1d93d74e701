package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fbettag/srm-wifi-switches/internal/auth"
	"github.com/fbettag/srm-wifi-switches/internal/config"
	"github.com/fbettag/srm-wifi-switches/internal/database"
	"github.com/fbettag/srm-wifi-switches/internal/handlers"
	"github.com/fbettag/srm-wifi-switches/internal/mqtt"
	"github.com/fbettag/srm-wifi-switches/internal/router"
)

var (
	Version = "dev" // Set by build process
)

var (
	configFile   = flag.String("config", "config.yaml", "Path to configuration file")
	port         = flag.Int("port", 0, "Port to run the API server on (overrides config)")
	dbPath       = flag.String("database", "", "Path to database file (overrides config)")
	logLevel     = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides config")
	setPassword  = flag.String("set-password", "", "Set the admin password and exit")
	secureCookie = flag.Bool("secure-cookie", false, "Mark the session cookie as HTTPS only")
	showVersion  = flag.Bool("version", false, "Show version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("SRM WiFi Switches %s\n", Version)
		os.Exit(0)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := config.LoadOrInitialize(*configFile)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	setLogLevel(logger, level)

	if *setPassword != "" {
		if cfg.Admin.Username == "" {
			cfg.Admin.Username = "admin"
		}
		if err := cfg.SetAdminPassword(*setPassword); err != nil {
			logger.Fatalf("Failed to hash password: %v", err)
		}
		if err := config.SaveConfig(*configFile, cfg); err != nil {
			logger.Fatalf("Failed to save configuration: %v", err)
		}
		logger.Infof("Password for %s updated", cfg.Admin.Username)
		return
	}

	logger.Infof("Starting SRM WiFi Switches %s", Version)

	databasePath := cfg.DatabasePath
	if *dbPath != "" {
		databasePath = *dbPath
		logger.Infof("Using database path from command line: %s", databasePath)
	}

	db, err := database.Initialize(databasePath)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	app := &handlers.App{
		Config:       cfg,
		ConfigPath:   *configFile,
		DB:           db,
		Logger:       logger,
		SessionStore: auth.NewSessionStore(cfg.SessionSecret, *secureCookie),
		Routers:      router.NewRegistry(),
	}

	if cfg.MQTT.Enabled {
		bridge, err := mqtt.NewBridge(cfg.MQTT, app.Routers, logger)
		if err != nil {
			// The API keeps working without Home Assistant discovery
			logger.Errorf("Failed to start MQTT bridge: %v", err)
		} else {
			app.Bridge = bridge
		}
	}

	if err := app.LoadRouters(); err != nil {
		logger.Fatalf("Failed to load routers: %v", err)
	}

	if cfg.IsConfigured() {
		go app.StartMonitoring()
	} else {
		logger.Warn("Setup not completed, POST /api/setup to configure the first router")
	}

	listenPort := cfg.ListenPort
	if *port != 0 {
		listenPort = *port
	}
	addr := fmt.Sprintf(":%d", listenPort)

	server := &http.Server{
		Addr:         addr,
		Handler:      app.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		logger.Info("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Errorf("Server shutdown failed: %v", err)
		}
	}()

	logger.Infof("Starting server on http://localhost%s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Failed to start server: %v", err)
	}

	app.Shutdown()
}

func setLogLevel(logger *logrus.Logger, level string) {
	switch level {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}
}
