package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/fbettag/srm-wifi-switches/internal/auth"
	"github.com/fbettag/srm-wifi-switches/internal/config"
	"github.com/fbettag/srm-wifi-switches/internal/database"
	"github.com/fbettag/srm-wifi-switches/internal/mqtt"
	"github.com/fbettag/srm-wifi-switches/internal/router"
	"github.com/fbettag/srm-wifi-switches/internal/synology"
)

// ClientFactory builds the SRM client of a configured router.
type ClientFactory func(rc config.RouterConfig) (router.Client, error)

type App struct {
	Config       *config.Config
	ConfigPath   string
	DB           *database.DB
	Logger       *logrus.Logger
	SessionStore *auth.SessionStore
	Routers      *router.Registry
	Bridge       *mqtt.Bridge
	NewClient    ClientFactory

	// configMu guards Config; handlers and pollers read it concurrently.
	configMu sync.RWMutex

	// Monitoring state
	monitoringMu   sync.RWMutex
	isMonitoring   bool
	monitorCtx     context.Context
	stopMonitoring context.CancelFunc
	pollers        map[string]context.CancelFunc
	wg             sync.WaitGroup
}

// NewSynologyClient is the default ClientFactory.
func NewSynologyClient(logger logrus.FieldLogger) ClientFactory {
	return func(rc config.RouterConfig) (router.Client, error) {
		return synology.NewClient(synology.Options{
			Host:               rc.Host,
			Port:               rc.Port,
			Username:           rc.Username,
			Password:           rc.Password,
			HTTPS:              rc.HTTPS,
			InsecureSkipVerify: rc.HTTPS && !rc.VerifyTLS,
			Timeout:            rc.TimeoutDuration(),
			RateLimitPerMinute: rc.RateLimit,
			Logger:             synology.NewLogrusAdapter(logger.WithField("router", rc.Name)),
		})
	}
}

func (app *App) clientFactory() ClientFactory {
	if app.NewClient != nil {
		return app.NewClient
	}
	return NewSynologyClient(app.Logger)
}

func (app *App) isConfigured() bool {
	app.configMu.RLock()
	defer app.configMu.RUnlock()
	return app.Config.IsConfigured()
}

func (app *App) routerConfigs() []config.RouterConfig {
	app.configMu.RLock()
	defer app.configMu.RUnlock()
	return append([]config.RouterConfig(nil), app.Config.Routers...)
}

func (app *App) routerConfig(name string) (config.RouterConfig, bool) {
	app.configMu.RLock()
	defer app.configMu.RUnlock()
	rc := app.Config.GetRouter(name)
	if rc == nil {
		return config.RouterConfig{}, false
	}
	return *rc, true
}

// addRouterConfig stores rc and returns it with defaults applied.
func (app *App) addRouterConfig(rc config.RouterConfig) (config.RouterConfig, error) {
	app.configMu.Lock()
	defer app.configMu.Unlock()
	if err := app.Config.AddRouter(rc); err != nil {
		return config.RouterConfig{}, err
	}
	stored := app.Config.GetRouter(rc.Name)
	if stored == nil {
		return config.RouterConfig{}, errors.Wrapf(config.ErrRouterNotFound, "%s", rc.Name)
	}
	return *stored, nil
}

func (app *App) removeRouterConfig(name string) error {
	app.configMu.Lock()
	defer app.configMu.Unlock()
	return app.Config.RemoveRouter(name)
}

// LoadRouters registers every router of the configuration.
func (app *App) LoadRouters() error {
	if app.Routers == nil {
		app.Routers = router.NewRegistry()
	}
	for _, rc := range app.routerConfigs() {
		if err := app.registerRouter(rc); err != nil {
			return err
		}
	}
	return nil
}

func (app *App) registerRouter(rc config.RouterConfig) error {
	client, err := app.clientFactory()(rc)
	if err != nil {
		return errors.Wrapf(err, "create client for router %s", rc.Name)
	}

	var store router.Store
	if app.DB != nil {
		store = app.DB
	}

	r := router.New(rc.Name, rc.Host, client, store, app.Logger)
	if err := app.Routers.Add(r); err != nil {
		return err
	}
	if app.Bridge != nil {
		app.Bridge.Watch(r)
	}

	app.monitoringMu.Lock()
	defer app.monitoringMu.Unlock()
	if app.isMonitoring {
		app.startPoller(r, rc.ScanDuration())
	}
	return nil
}

// unregisterRouter stops polling, removes MQTT entities and logs out.
func (app *App) unregisterRouter(name string) {
	app.monitoringMu.Lock()
	if cancel, ok := app.pollers[name]; ok {
		cancel()
		delete(app.pollers, name)
	}
	app.monitoringMu.Unlock()

	r, ok := app.Routers.Remove(name)
	if !ok {
		return
	}
	if app.Bridge != nil {
		app.Bridge.Forget(r)
	}
	app.closeClient(r.Name(), r.Client())
}

// closeClient ends the router session of client, if it keeps one.
func (app *App) closeClient(name string, client router.Client) {
	closer, ok := client.(interface{ Close(context.Context) error })
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := closer.Close(ctx); err != nil {
		app.Logger.Warnf("Failed to log out of router %s: %v", name, err)
	}
}

// StartMonitoring polls every router and runs the log cleanup job until
// StopMonitoring is called.
func (app *App) StartMonitoring() {
	app.monitoringMu.Lock()
	if app.isMonitoring {
		app.monitoringMu.Unlock()
		return
	}

	app.isMonitoring = true
	app.monitorCtx, app.stopMonitoring = context.WithCancel(context.Background())
	app.pollers = make(map[string]context.CancelFunc)

	for _, r := range app.Routers.All() {
		interval := time.Duration(config.DefaultScanInterval) * time.Second
		if rc, ok := app.routerConfig(r.Name()); ok {
			interval = rc.ScanDuration()
		}
		app.startPoller(r, interval)
	}
	ctx := app.monitorCtx
	app.monitoringMu.Unlock()

	app.Logger.Info("Starting router monitoring")

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.startCleanupJob(ctx)
	}()

	<-ctx.Done()
	app.wg.Wait()
	app.Logger.Info("Router monitoring stopped")
}

// startPoller must be called with monitoringMu held.
func (app *App) startPoller(r *router.Router, interval time.Duration) {
	ctx, cancel := context.WithCancel(app.monitorCtx)
	app.pollers[r.Name()] = cancel

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		r.Run(ctx, interval)
	}()
}

func (app *App) StopMonitoring() {
	app.monitoringMu.Lock()
	defer app.monitoringMu.Unlock()

	if app.isMonitoring {
		app.stopMonitoring()
		app.isMonitoring = false
	}
}

// IsMonitoring reports whether the pollers are running.
func (app *App) IsMonitoring() bool {
	app.monitoringMu.RLock()
	defer app.monitoringMu.RUnlock()
	return app.isMonitoring
}

// Shutdown stops monitoring, marks MQTT offline and logs out of every router.
func (app *App) Shutdown() {
	app.StopMonitoring()
	if app.Bridge != nil {
		app.Bridge.Stop()
	}
	for _, r := range app.Routers.All() {
		app.closeClient(r.Name(), r.Client())
	}
}

// startCleanupJob deletes old activity log entries every hour
func (app *App) startCleanupJob(ctx context.Context) {
	app.Logger.Info("Starting log cleanup job (runs every hour)")

	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	app.cleanupOldLogs()

	for {
		select {
		case <-ticker.C:
			app.cleanupOldLogs()
		case <-ctx.Done():
			app.Logger.Info("Stopping log cleanup job")
			return
		}
	}
}

func (app *App) cleanupOldLogs() {
	if app.DB == nil {
		return
	}

	days := app.Config.LogRetentionDays
	if days <= 0 {
		days = config.DefaultRetention
	}

	deletedCount, err := app.DB.DeleteOldLogs(days)
	if err != nil {
		app.Logger.Errorf("Failed to delete old logs: %v", err)
		return
	}

	if deletedCount > 0 {
		app.Logger.Infof("Deleted %d old log entries (>%d days)", deletedCount, days)
	}
}
