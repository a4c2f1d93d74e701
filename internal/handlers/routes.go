package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

var setupPaths = map[string]bool{
	"/api/setup":       true,
	"/api/test-router": true,
}

// CheckSetupMiddleware only lets setup requests through until an admin and a
// router are configured, and closes the setup endpoints afterwards.
func (app *App) CheckSetupMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health" {
			next.ServeHTTP(w, r)
			return
		}

		configured := app.isConfigured()
		switch {
		case configured && r.URL.Path == "/api/setup":
			app.sendJSONError(w, "Setup already completed", http.StatusForbidden)
		case !configured && !setupPaths[r.URL.Path]:
			app.sendJSONError(w, "Setup required", http.StatusServiceUnavailable)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// setupOrAuth serves next without a session only while setup is pending.
func (app *App) setupOrAuth(next http.Handler) http.Handler {
	protected := app.SessionStore.Middleware(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !app.isConfigured() {
			next.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	})
}

// Routes builds the HTTP API.
func (app *App) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(app.CheckSetupMiddleware)

	// Public routes
	r.HandleFunc("/api/health", app.HealthHandler).Methods("GET")
	r.HandleFunc("/api/setup", app.SetupAPIHandler).Methods("POST")
	r.HandleFunc("/api/login", app.LoginHandler).Methods("POST")
	r.Handle("/api/test-router", app.setupOrAuth(http.HandlerFunc(app.TestRouterHandler))).Methods("POST")

	// Protected routes (require authentication)
	api := r.PathPrefix("/api").Subrouter()
	api.Use(app.SessionStore.Middleware)

	api.HandleFunc("/logout", app.LogoutHandler).Methods("POST")
	api.HandleFunc("/status", app.GetStatusHandler).Methods("GET")

	api.HandleFunc("/routers", app.GetRoutersHandler).Methods("GET")
	api.HandleFunc("/routers", app.AddRouterHandler).Methods("POST")
	api.HandleFunc("/routers/{router}", app.DeleteRouterHandler).Methods("DELETE")
	api.HandleFunc("/routers/{router}/refresh", app.RefreshRouterHandler).Methods("POST")
	api.HandleFunc("/routers/{router}/switches", app.GetSwitchesHandler).Methods("GET")
	api.HandleFunc("/routers/{router}/switches/{id}", app.SetSwitchHandler).Methods("PUT")

	api.HandleFunc("/services/{service}", app.CallServiceHandler).Methods("POST")

	api.HandleFunc("/logs", app.GetLogsHandler).Methods("GET")
	api.HandleFunc("/activity", app.GetActivityHandler).Methods("GET")

	return r
}
