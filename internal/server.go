package internal

import (
	"context"
	"database/sql"
	"embed"
	"log"
	"net/http"
	"os"
	"time"

	"device-custody-api/internal/auth"
	"device-custody-api/internal/config"
	"device-custody-api/internal/handlers"
	"device-custody-api/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed openapi
var openapiFS embed.FS

type Server struct {
	DB         *sql.DB
	Pool       *pgxpool.Pool
	Router     *chi.Mux
	JWTManager *auth.JWTManager
	Metrics    *Metrics
}

func NewServer(dsn string, cfg *config.Config) *Server {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatal("Failed to open database connection:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal("Database ping failed:", err)
	}

	// Also create a pgxpool for the importer
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatal("Failed to create pgxpool:", err)
	}

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTExpiry)
	if err := jwtManager.ValidateConfig(); err != nil {
		log.Fatal("JWT configuration validation failed:", err)
	}

	s := &Server{
		DB:         db,
		Pool:       pool,
		Router:     chi.NewRouter(),
		JWTManager: jwtManager,
	}

	// Mount public routes FIRST (no middleware)
	s.Router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	s.Router.Get("/dbping", func(w http.ResponseWriter, r *http.Request) {
		if err := s.DB.PingContext(r.Context()); err != nil {
			http.Error(w, "db: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		if _, err := w.Write([]byte("db: ok")); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	// Public auth routes (no JWT required)
	s.Router.Post("/auth/login", s.loginUser)
	s.mountDocs(s.Router)

	// Mount metrics if enabled; s.Metrics stays nil otherwise and RecordOp
	// becomes a no-op
	if os.Getenv("ENABLE_METRICS") == "true" {
		s.Metrics = NewMetrics()
		s.Router.Use(s.Metrics.Middleware())
		s.Router.Get("/metrics", s.Metrics.Handler().ServeHTTP)
	}

	// Create a protected route group with middleware
	s.Router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(s.JWTManager))
		s.mountProtectedRoutes(r)
	})

	return s
}

// Close properly shuts down the server and cleans up resources
func (s *Server) Close(ctx context.Context) error {
	if s.Pool != nil {
		s.Pool.Close()
	}
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// mountDocs serves the OpenAPI spec and Swagger UI
func (s *Server) mountDocs(mux *chi.Mux) {
	if os.Getenv("ENABLE_SWAGGER") != "true" {
		return
	}

	// Serve the raw YAML
	mux.HandleFunc("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		data, err := openapiFS.ReadFile("openapi/openapi.yaml")
		if err != nil {
			http.Error(w, "Failed to read OpenAPI spec", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/x-yaml")
		if _, err := w.Write(data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	mux.HandleFunc("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(200)
		w.Write([]byte(`<!doctype html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>Device Custody API - Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui.css">
    <style>
        body { margin: 0; background: #f7f7f7; }
        .swagger-ui .topbar { background: #1f2937; border-bottom: 3px solid #3b82f6; }
        .swagger-ui .topbar .download-url-wrapper { display: none; }
    </style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({
                url: '/openapi.yaml',
                dom_id: '#swagger-ui',
                deepLinking: true,
                presets: [
                    SwaggerUIBundle.presets.apis,
                    SwaggerUIBundle.presets.standalone
                ],
                layout: "StandaloneLayout",
                tryItOutEnabled: true
            });
        };
    </script>
</body>
</html>`))
	})
}

// mountProtectedRoutes mounts all protected routes that require authentication.
// Reads are open to any authenticated user; writes require the admin role.
func (s *Server) mountProtectedRoutes(r chi.Router) {
	admin := auth.MustRole(models.RoleAdmin)

	// Device types
	r.Get("/device-types", s.listDeviceTypes)
	r.Get("/device-types/{id}", s.getDeviceType)
	r.Post("/device-types", admin(http.HandlerFunc(s.createDeviceType)).(http.HandlerFunc))

	// Devices
	r.Get("/devices", s.listDevices)
	r.Get("/devices/{id}", s.getDevice)
	r.Post("/devices", admin(http.HandlerFunc(s.createDevice)).(http.HandlerFunc))
	r.Put("/devices/{id}", admin(http.HandlerFunc(s.updateDevice)).(http.HandlerFunc))
	r.Delete("/devices/{id}", admin(http.HandlerFunc(s.deleteDevice)).(http.HandlerFunc))

	// Custody
	r.Get("/assignments", s.listAssignments)
	r.Post("/assignments", admin(http.HandlerFunc(s.assignDevice)).(http.HandlerFunc))
	r.Post("/assignments/{id}/return", admin(http.HandlerFunc(s.returnAssignment)).(http.HandlerFunc))
	r.Post("/assignments/{id}/transfer", admin(http.HandlerFunc(s.transferAssignment)).(http.HandlerFunc))
	r.Delete("/assignments/{id}", admin(http.HandlerFunc(s.deleteAssignment)).(http.HandlerFunc))

	// Retirement register
	r.Get("/retirements", s.listRetirements)
	r.Post("/retirements", admin(http.HandlerFunc(s.retireDevice)).(http.HandlerFunc))
	r.Put("/retirements/{id}", admin(http.HandlerFunc(s.updateRetirement)).(http.HandlerFunc))
	r.Post("/retirements/{id}/restore", admin(http.HandlerFunc(s.restoreRetirement)).(http.HandlerFunc))

	// Movement log and audit trail have no write endpoints; rows are only
	// ever inserted by custody operations
	r.Get("/movements", s.listMovements)
	r.Get("/audit", admin(http.HandlerFunc(s.listAuditEntries)).(http.HandlerFunc))

	// Areas
	r.Get("/areas", s.listAreas)
	r.Get("/areas/{id}", s.getArea)
	r.Post("/areas", admin(http.HandlerFunc(s.createArea)).(http.HandlerFunc))
	r.Put("/areas/{id}", admin(http.HandlerFunc(s.updateArea)).(http.HandlerFunc))
	r.Delete("/areas/{id}", admin(http.HandlerFunc(s.deleteArea)).(http.HandlerFunc))

	// Reports
	r.Get("/reports/summary", s.getSummaryReport)
	r.Get("/reports/top", s.getTopReport)

	// Excel import
	importsHandler := handlers.NewImportsHandler(s.Pool)
	r.Post("/imports/excel", admin(http.HandlerFunc(importsHandler.UploadExcel)).(http.HandlerFunc))

	// User management - admin only
	r.Post("/users", admin(http.HandlerFunc(s.createUser)).(http.HandlerFunc))
	r.Get("/users", admin(http.HandlerFunc(s.listUsers)).(http.HandlerFunc))
	r.Get("/users/{id}", admin(http.HandlerFunc(s.getUser)).(http.HandlerFunc))
	r.Put("/users/{id}", admin(http.HandlerFunc(s.updateUser)).(http.HandlerFunc))
	r.Delete("/users/{id}", admin(http.HandlerFunc(s.deleteUser)).(http.HandlerFunc))

	// Self-service
	r.Get("/auth/profile", s.getProfile)
}
