package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"

	"github.com/fbettag/srm-wifi-switches/internal/config"
	"github.com/fbettag/srm-wifi-switches/internal/database"
	"github.com/fbettag/srm-wifi-switches/internal/router"
	"github.com/fbettag/srm-wifi-switches/internal/synology"
	"github.com/fbettag/srm-wifi-switches/internal/wifi"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
	requestTimeout  = 30 * time.Second
)

// routerRequest is the JSON body for adding or testing a router. Unlike
// config.RouterConfig it carries the password.
type routerRequest struct {
	Name         string `json:"name"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	HTTPS        bool   `json:"https"`
	VerifyTLS    bool   `json:"verify_tls"`
	ScanInterval int    `json:"scan_interval"`
	Timeout      int    `json:"timeout"`
	RateLimit    int    `json:"rate_limit"`
}

func (req routerRequest) config() config.RouterConfig {
	return config.RouterConfig{
		Name:         req.Name,
		Host:         req.Host,
		Port:         req.Port,
		Username:     req.Username,
		Password:     req.Password,
		HTTPS:        req.HTTPS,
		VerifyTLS:    req.VerifyTLS,
		ScanInterval: req.ScanInterval,
		Timeout:      req.Timeout,
		RateLimit:    req.RateLimit,
	}
}

type routerResponse struct {
	config.RouterConfig
	Status router.Status `json:"status"`
}

func (app *App) sendJSON(w http.ResponseWriter, payload interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		app.Logger.Errorf("Failed to encode response: %v", err)
	}
}

// Helper function to send JSON error responses
func (app *App) sendJSONError(w http.ResponseWriter, message string, statusCode int) {
	app.sendJSON(w, map[string]interface{}{
		"success": false,
		"error":   message,
	}, statusCode)
}

func (app *App) sendSuccess(w http.ResponseWriter) {
	app.sendJSON(w, map[string]bool{"success": true}, http.StatusOK)
}

// sendError maps domain errors to HTTP status codes.
func (app *App) sendError(w http.ResponseWriter, err error) {
	var validationErrs config.ValidationErrors
	status := http.StatusInternalServerError

	switch {
	case errors.As(err, &validationErrs),
		errors.Is(err, router.ErrInvalidServiceCall),
		errors.Is(err, synology.ErrInvalidProfiles):
		status = http.StatusBadRequest
	case errors.Is(err, router.ErrSwitchNotFound),
		errors.Is(err, router.ErrUnknownService),
		errors.Is(err, config.ErrRouterNotFound),
		errors.Is(err, wifi.ErrProfileNotFound),
		errors.Is(err, wifi.ErrRadioNotFound):
		status = http.StatusNotFound
	case errors.Is(err, router.ErrRouterExists),
		errors.Is(err, config.ErrRouterExists),
		errors.Is(err, wifi.ErrRadioUnavailable):
		status = http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case isRouterFailure(err):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		app.Logger.Errorf("Request failed: %v", err)
	}
	app.sendJSONError(w, err.Error(), status)
}

func isRouterFailure(err error) bool {
	var statusErr *synology.StatusError
	var commonErr *synology.CommonError
	var apiErr *synology.APIError
	return synology.IsAuthError(err) ||
		errors.As(err, &statusErr) ||
		errors.As(err, &commonErr) ||
		errors.As(err, &apiErr) ||
		errors.Is(err, synology.ErrMalformedResponse) ||
		errors.Is(err, router.ErrPushRejected)
}

// HealthHandler answers without authentication for container probes.
func (app *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	app.sendJSON(w, map[string]interface{}{
		"status":     "ok",
		"configured": app.isConfigured(),
	}, http.StatusOK)
}

// SetupAPIHandler creates the admin account and the first router.
func (app *App) SetupAPIHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Admin struct {
			Username string `json:"username"`
			Password string `json:"password"`
		} `json:"admin"`
		Router routerRequest `json:"router"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.sendJSONError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.Admin.Username == "" || len(req.Admin.Password) < 8 {
		app.sendJSONError(w, "Admin username and a password of at least 8 characters are required", http.StatusBadRequest)
		return
	}

	stored, err := app.addRouterConfig(req.Router.config())
	if err != nil {
		app.sendError(w, err)
		return
	}

	if err := app.testRouter(r.Context(), stored); err != nil {
		app.Logger.Errorf("Router test during setup failed: %v", err)
		_ = app.removeRouterConfig(stored.Name)
		app.sendError(w, err)
		return
	}

	if err := app.completeSetup(req.Admin.Username, req.Admin.Password); err != nil {
		_ = app.removeRouterConfig(stored.Name)
		app.sendJSONError(w, "Failed to set password", http.StatusInternalServerError)
		return
	}

	if err := app.saveConfig(); err != nil {
		app.sendJSONError(w, "Failed to save configuration", http.StatusInternalServerError)
		return
	}

	if err := app.registerRouter(stored); err != nil {
		app.sendError(w, err)
		return
	}
	if !app.IsMonitoring() {
		go app.StartMonitoring()
	}

	if err := app.SessionStore.Login(r, w); err != nil {
		// Setup is done; the admin can still log in manually
		app.Logger.Errorf("Failed to create session after setup: %v", err)
	}

	app.sendSuccess(w)
}

// TestRouterHandler checks credentials and lists the networks of a router
// without saving anything.
func (app *App) TestRouterHandler(w http.ResponseWriter, r *http.Request) {
	var req routerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.sendJSONError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	rc := req.config()
	if rc.Name == "" {
		rc.Name = "test"
	}
	if err := config.ValidateRouter(withDefaults(rc)); err != nil {
		app.sendError(w, err)
		return
	}

	app.Logger.Debugf("TestRouter request: host=%s port=%d user=%s", rc.Host, rc.Port, rc.Username)

	client, err := app.clientFactory()(withDefaults(rc))
	if err != nil {
		app.sendError(w, err)
		return
	}
	defer app.closeClient(rc.Name, client)

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := client.CheckConnection(ctx); err != nil {
		app.Logger.Errorf("Router connection test failed: %v", err)
		app.sendJSONError(w, "Failed to connect to the router. Please check host and port.", http.StatusBadGateway)
		return
	}

	snapshot, err := client.FetchCurrentConfiguration(ctx)
	if err != nil {
		app.Logger.Errorf("Router login test failed: %v", err)
		if synology.IsAuthError(err) {
			app.sendJSONError(w, "Connected to the router but login failed. Please check your credentials.", http.StatusBadGateway)
			return
		}
		app.sendError(w, err)
		return
	}

	app.sendJSON(w, map[string]interface{}{
		"success":  true,
		"networks": wifi.BuildModel(snapshot).Summarize(),
	}, http.StatusOK)
}

func withDefaults(rc config.RouterConfig) config.RouterConfig {
	probe := config.Config{Routers: []config.RouterConfig{rc}}
	probe.ApplyDefaults()
	return probe.Routers[0]
}

func (app *App) testRouter(ctx context.Context, rc config.RouterConfig) error {
	client, err := app.clientFactory()(rc)
	if err != nil {
		return err
	}
	defer app.closeClient(rc.Name, client)

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if err := client.CheckConnection(ctx); err != nil {
		return err
	}
	_, err = client.FetchCurrentConfiguration(ctx)
	return err
}

func (app *App) completeSetup(username, password string) error {
	app.configMu.Lock()
	defer app.configMu.Unlock()
	if err := app.Config.SetAdminPassword(password); err != nil {
		return err
	}
	app.Config.Admin.Username = username
	app.Config.SetupComplete = true
	return nil
}

func (app *App) saveConfig() error {
	if app.ConfigPath == "" {
		return nil
	}
	// saves write one file, keep them exclusive
	app.configMu.Lock()
	defer app.configMu.Unlock()
	if err := config.SaveConfig(app.ConfigPath, app.Config); err != nil {
		app.Logger.Errorf("Failed to save configuration: %v", err)
		return err
	}
	return nil
}

// LoginHandler checks the admin credentials and opens a session.
func (app *App) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.sendJSONError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	app.configMu.RLock()
	valid := req.Username == app.Config.Admin.Username && app.Config.VerifyAdminPassword(req.Password)
	app.configMu.RUnlock()

	if !valid {
		app.Logger.Warnf("Failed login attempt for user %q", req.Username)
		app.sendJSONError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if err := app.SessionStore.Login(r, w); err != nil {
		app.sendJSONError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	app.sendSuccess(w)
}

func (app *App) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.SessionStore.Logout(r, w); err != nil {
		app.Logger.Errorf("Failed to logout: %v", err)
	}
	app.sendSuccess(w)
}

// GetStatusHandler reports monitoring state and every router's health.
func (app *App) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	routers := make([]router.Status, 0)
	for _, rt := range app.Routers.All() {
		routers = append(routers, rt.Status())
	}

	status := map[string]interface{}{
		"is_monitoring": app.IsMonitoring(),
		"mqtt_enabled":  app.Bridge != nil,
		"routers":       routers,
	}
	if loginAt, ok := app.SessionStore.LoginTime(r); ok {
		status["logged_in_at"] = loginAt
	}
	app.sendJSON(w, status, http.StatusOK)
}

func (app *App) GetRoutersHandler(w http.ResponseWriter, r *http.Request) {
	configs := app.routerConfigs()
	routers := make([]routerResponse, 0, len(configs))
	for _, rc := range configs {
		resp := routerResponse{RouterConfig: rc}
		if rt, ok := app.Routers.Get(rc.Name); ok {
			resp.Status = rt.Status()
		}
		routers = append(routers, resp)
	}
	app.sendJSON(w, routers, http.StatusOK)
}

// AddRouterHandler validates, tests and registers a new router.
func (app *App) AddRouterHandler(w http.ResponseWriter, r *http.Request) {
	var req routerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.sendJSONError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	stored, err := app.addRouterConfig(req.config())
	if err != nil {
		app.sendError(w, err)
		return
	}

	if err := app.testRouter(r.Context(), stored); err != nil {
		_ = app.removeRouterConfig(stored.Name)
		app.sendError(w, err)
		return
	}

	if err := app.registerRouter(stored); err != nil {
		_ = app.removeRouterConfig(stored.Name)
		app.sendError(w, err)
		return
	}

	if err := app.saveConfig(); err != nil {
		app.sendJSONError(w, "Failed to save configuration", http.StatusInternalServerError)
		return
	}

	app.Logger.Infof("Added router %s (%s)", stored.Name, stored.Host)
	app.sendJSON(w, routerResponse{RouterConfig: stored}, http.StatusCreated)
}

func (app *App) DeleteRouterHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["router"]

	if err := app.removeRouterConfig(name); err != nil {
		app.sendError(w, err)
		return
	}
	app.unregisterRouter(name)

	if err := app.saveConfig(); err != nil {
		app.sendJSONError(w, "Failed to save configuration", http.StatusInternalServerError)
		return
	}

	app.Logger.Infof("Removed router %s", name)
	app.sendSuccess(w)
}

func (app *App) lookupRouter(w http.ResponseWriter, r *http.Request) (*router.Router, bool) {
	name := mux.Vars(r)["router"]
	rt, ok := app.Routers.Get(name)
	if !ok {
		app.sendError(w, errors.Wrapf(config.ErrRouterNotFound, "%s", name))
		return nil, false
	}
	return rt, true
}

func (app *App) GetSwitchesHandler(w http.ResponseWriter, r *http.Request) {
	rt, ok := app.lookupRouter(w, r)
	if !ok {
		return
	}
	app.sendJSON(w, rt.Switches(), http.StatusOK)
}

// SetSwitchHandler turns one switch on or off: {"enable": true}.
func (app *App) SetSwitchHandler(w http.ResponseWriter, r *http.Request) {
	rt, ok := app.lookupRouter(w, r)
	if !ok {
		return
	}

	var req struct {
		Enable *bool `json:"enable"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enable == nil {
		app.sendJSONError(w, "Invalid request, expected {\"enable\": bool}", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	id := mux.Vars(r)["id"]
	if err := rt.SetSwitch(ctx, id, *req.Enable, router.SourceAPI); err != nil {
		app.sendError(w, err)
		return
	}

	s, _ := rt.Switch(id)
	app.sendJSON(w, s, http.StatusOK)
}

func (app *App) RefreshRouterHandler(w http.ResponseWriter, r *http.Request) {
	rt, ok := app.lookupRouter(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := rt.Refresh(ctx); err != nil {
		app.sendError(w, err)
		return
	}
	app.sendJSON(w, rt.Status(), http.StatusOK)
}

// CallServiceHandler runs enable_wifi, disable_wifi or toggle_smart_connect
// on every router.
func (app *App) CallServiceHandler(w http.ResponseWriter, r *http.Request) {
	var call router.ServiceCall
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		app.sendJSONError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	service := mux.Vars(r)["service"]
	if err := app.Routers.Call(ctx, service, call, router.SourceService); err != nil {
		app.sendError(w, err)
		return
	}
	app.sendSuccess(w)
}

// GetLogsHandler pages through the activity log, optionally for one router.
func (app *App) GetLogsHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	offset := 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = min(v, maxLogLimit)
		}
	}

	if o := r.URL.Query().Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}

	var logs []database.LogEntry
	var err error
	if name := r.URL.Query().Get("router"); name != "" {
		logs, err = app.DB.GetLogsByRouter(name, limit)
	} else {
		logs, err = app.DB.GetLogs(limit, offset)
	}
	if err != nil {
		app.sendJSONError(w, "Failed to get logs", http.StatusInternalServerError)
		return
	}

	if logs == nil {
		logs = []database.LogEntry{}
	}
	app.sendJSON(w, logs, http.StatusOK)
}

// GetActivityHandler returns the activity of the last ?hours (default 24).
func (app *App) GetActivityHandler(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if h := r.URL.Query().Get("hours"); h != "" {
		if v, err := strconv.Atoi(h); err == nil && v > 0 {
			hours = v
		}
	}

	logs, err := app.DB.GetRecentActivity(hours)
	if err != nil {
		app.sendJSONError(w, "Failed to get activity", http.StatusInternalServerError)
		return
	}
	app.sendJSON(w, logs, http.StatusOK)
}
