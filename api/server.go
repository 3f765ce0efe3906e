/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/patients/*      Patient management
  /api/drugs/*         Drug catalog
  /api/deliveries/*    Delivery lifecycle
  /api/drug_batches    Stock receipts
  /api/drug_removals   Stock write-offs
  /api/inventory/*     Ledger, adjustments, summary
  /api/insights        Adherence + severity report
  /*                   Static files (frontend)

STATIC FILE SERVING:
  Serves the built frontend from web/dist/ when present, falling back
  to index.html for client-side routing.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
// allowedOrigins feeds the CORS middleware.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/stats", h.GetStats)
		r.Get("/insights", h.GetInsights)

		r.Route("/patients", func(r chi.Router) {
			r.Get("/", h.ListPatients)
			r.Post("/", h.CreatePatient)
		})

		r.Route("/drugs", func(r chi.Router) {
			r.Get("/", h.ListDrugs)
			r.Post("/", h.CreateDrug)
			r.Patch("/{id}", h.UpdateDrug)
			r.Delete("/{id}", h.DeleteDrug)
		})

		r.Route("/deliveries", func(r chi.Router) {
			r.Get("/", h.ListDeliveries)
			r.Post("/", h.ScheduleDelivery)
			r.Patch("/{id}/status", h.UpdateDeliveryStatus)
			r.Delete("/{id}", h.DeleteDelivery)
			r.Get("/patient/{id}", h.PatientHistory)
		})

		r.Route("/drug_batches", func(r chi.Router) {
			r.Get("/", h.ListBatches)
			r.Post("/", h.ReceiveBatch)
		})

		r.Route("/drug_removals", func(r chi.Router) {
			r.Get("/", h.ListRemovals)
			r.Post("/", h.RemoveStock)
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Post("/adjust", h.Adjust)
			r.Get("/transactions", h.ListTransactions)
			r.Get("/summary", h.InventorySummary)
		})
	})

	// Serve static files (frontend build), SPA-style
	staticDir := "./web/dist"
	if _, err := os.Stat(staticDir); os.IsNotExist(err) {
		exe, _ := os.Executable()
		staticDir = filepath.Join(filepath.Dir(exe), "web", "dist")
	}

	if _, err := os.Stat(staticDir); err == nil {
		fileServer := http.FileServer(http.Dir(staticDir))
		r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
			fullPath := filepath.Join(staticDir, r.URL.Path)
			if _, err := os.Stat(fullPath); os.IsNotExist(err) {
				// SPA routing: serve index.html
				http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
				return
			}
			fileServer.ServeHTTP(w, r)
		})
	} else {
		r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Delivery Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Drug Delivery Engine API</h1>
<p>The frontend is not built. Run <code>cd web && npm install && npm run build</code></p>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/patients">/api/patients</a> - List patients</li>
<li><a href="/api/drugs">/api/drugs</a> - List drugs</li>
<li><a href="/api/deliveries">/api/deliveries</a> - List deliveries</li>
<li><a href="/api/insights">/api/insights</a> - Insights report</li>
</ul>
</body>
</html>`))
		})
	}

	return r
}
