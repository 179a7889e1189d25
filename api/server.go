/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend
  5. Verifier + RequireActor on every mutating route
  6. Scenario load and reset wipe every table, ledger and audit trail
     included: they also need the admin role and EnableScenarios

ROUTE GROUPS:
  /health               Liveness and database ping
  /api/runs/*           Pay run lifecycle
  /api/accounts/*       Loans and advances
  /api/employees/*      Payroll inputs and per-employee ledger views
  /api/rates/*          Rate configurations
  /api/audit            Audit trail query
  /api/scenarios/*      Demo scenarios

Reads are public; writes need a bearer token.

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Token verification and actor extraction
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/jwtauth/v5"

	"github.com/warp/payroll-engine/payrun"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	JWTAuth        *jwtauth.JWTAuth
	AllowedOrigins []string

	// EnableScenarios allows loading demo scenarios. Never set it against a
	// database holding real payroll.
	EnableScenarios bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	authed := func(r chi.Router) {
		r.Use(jwtauth.Verifier(opts.JWTAuth))
		r.Use(RequireActor)
	}

	r.Route("/api", func(r chi.Router) {
		// Pay run routes
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.ListRuns)
			r.Get("/{id}", h.GetRun)
			r.Get("/{id}/lines", h.GetRunLines)

			r.Group(func(r chi.Router) {
				authed(r)
				r.Post("/", h.CreateRun)
				r.Post("/{id}/process", h.ProcessRun)
				r.Post("/{id}/submit", h.SubmitRun)
				r.Post("/{id}/approve", h.ApproveRun)
				r.Post("/{id}/pay", h.PayRun)
				r.Post("/{id}/cancel", h.CancelRun)
				r.Post("/{id}/revise", h.ReviseRun)
			})
		})

		// Loan and advance routes
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/{id}", h.GetAccount)
			r.Get("/{id}/due", h.GetAccountDue)
			r.Get("/{id}/entries", h.GetAccountEntries)

			r.Group(func(r chi.Router) {
				authed(r)
				r.Post("/loans", h.CreateLoan)
				r.Post("/advances", h.CreateAdvance)
				r.Post("/{id}/prepay", h.PrepayAccount)
				r.Post("/{id}/write-off", h.WriteOffAccount)
			})
		})

		// Employee input routes
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Get("/{id}/accounts", h.ListEmployeeAccounts)
			r.Get("/{id}/dues", h.ListEmployeeDues)

			r.Group(func(r chi.Router) {
				authed(r)
				r.Post("/", h.SaveEmployee)
				r.Put("/{id}/compensation", h.SaveCompensation)
				r.Put("/{id}/attendance/{period}", h.SaveAttendance)
				r.Post("/{id}/adjustments", h.CreateAdjustment)
			})
		})

		// Rate configuration routes
		r.Route("/rates", func(r chi.Router) {
			r.Get("/", h.ListRates)
			r.Group(func(r chi.Router) {
				authed(r)
				r.Post("/", h.CreateRates)
			})
		})

		r.Get("/audit", h.QueryAudit)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)

			r.Group(func(r chi.Router) {
				authed(r)
				r.Use(RequireRole(payrun.RoleAdmin))
				r.Use(scenariosEnabled(opts.EnableScenarios))
				r.Post("/load", h.LoadScenario)
				r.Post("/reset", h.ResetDatabase)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found", nil)
	})

	return r
}

func scenariosEnabled(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				writeError(w, http.StatusForbidden, "Demo scenarios are disabled", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
