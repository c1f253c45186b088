package routes

import (
	"net/http"

	"github.com/templui/habits/internal/app"
	"github.com/templui/habits/internal/backend"
	"github.com/templui/habits/internal/handler"
	"github.com/templui/habits/internal/middleware"
)

func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	health := handler.NewHealthHandler(app.DB, app.Cfg.DBDriver)
	auth := handler.NewAuthHandler(app.AuthService)
	rest := handler.NewRestHandler(app.DataService)

	mux := http.NewServeMux()

	// ============================================================================
	// PUBLIC ROUTES
	// ============================================================================

	mux.HandleFunc("GET /health", health.Health)

	// Auth (rate limited per IP)
	rateLimiter := middleware.RateLimitAuth(app.Cfg.AuthRateLimit, app.Cfg.AuthRateWindow)

	mux.HandleFunc("POST /auth/v1/signup", rateLimiter(auth.SignUp))
	mux.HandleFunc("POST /auth/v1/token", rateLimiter(auth.Token))

	// ============================================================================
	// AUTHENTICATED ROUTES
	// ============================================================================

	mux.HandleFunc("POST /auth/v1/logout", middleware.RequireUser(auth.Logout))
	mux.HandleFunc("GET /auth/v1/user", middleware.RequireUser(auth.User))

	// Tables (row-level security applies per caller)
	mux.HandleFunc("GET /rest/v1/{table}", middleware.RequireUser(rest.Select))
	mux.HandleFunc("POST /rest/v1/{table}", middleware.RequireUser(rest.Insert))
	mux.HandleFunc("PATCH /rest/v1/{table}", middleware.RequireUser(rest.Update))
	mux.HandleFunc("DELETE /rest/v1/{table}", middleware.RequireUser(rest.Delete))

	// ============================================================================
	// FALLBACK
	// ============================================================================

	mux.HandleFunc("/{path...}", func(w http.ResponseWriter, r *http.Request) {
		handler.WriteError(w, r, backend.NewError(http.StatusNotFound, "not_found", "no route for "+r.Method+" "+r.URL.Path))
	})

	// Global middleware - executed in order (top to bottom)
	handler := middleware.Chain(
		mux,
		middleware.Recover, // Outermost so panics anywhere become a 500
		middleware.RequestLogging,
		middleware.APIKey(app.Cfg.APIKey),
		middleware.Authenticate(app.AuthService),
	)

	return handler
}
