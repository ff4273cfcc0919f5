package http

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/processdojo/kiosk/internal/attempt"
	"github.com/processdojo/kiosk/internal/auth"
	authmw "github.com/processdojo/kiosk/internal/auth/middleware"
	"github.com/processdojo/kiosk/internal/biometric"
	"github.com/processdojo/kiosk/internal/content"
	"github.com/processdojo/kiosk/internal/rbac"
	"github.com/processdojo/kiosk/internal/reports"
	"github.com/processdojo/kiosk/internal/storage"
	syncx "github.com/processdojo/kiosk/internal/sync"
	"github.com/processdojo/kiosk/internal/videogate"
)

// Deps are the services the router mounts.
type Deps struct {
	DB        *sql.DB
	Auth      *authmw.AuthService
	Users     *auth.Users
	Content   *content.SQLStore
	Gate      *videogate.Gate
	Attempts  *attempt.Service
	Biometric *biometric.Service
	Reports   *reports.Reports
	Events    *syncx.EventRepo
	Sync      *syncx.Pusher // nil when no central server is configured
	Blobs     storage.BlobStore
}

type Options struct {
	CORSOrigins     []string
	EnableLocalAuth bool
}

func NewRouter(d Deps, opt Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opt.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	if opt.EnableLocalAuth {
		r.Post("/auth/login", LoginHandler(d.Auth, d.Users))
	}
	r.Post("/biometric/authenticate", BiometricLoginHandler(d.Auth, d.Users, d.Biometric))
	r.Get("/biometric/device-status", DeviceStatusHandler(d.Biometric))

	// JWT -> role from users table -> RBAC per route
	r.Group(func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(d.Auth), authmw.AttachRoleFromDB(d.DB))

		pr.Post("/auth/logout", LogoutHandler(d.Users))
		pr.Get("/me", MeHandler(d.Users))
		pr.Post("/me/password", ChangePasswordHandler(d.Users))
		pr.With(rbac.Require("dashboard:view-own")).
			Get("/me/dashboard", DashboardHandler(d.Reports))

		pr.With(rbac.Require("catalog:view")).
			Get("/catalog", CatalogHandler(d.Content))

		pr.Route("/videos/{videoID}", func(vr chi.Router) {
			vr.Use(rbac.Require("video:watch"))
			vr.Get("/", VideoHandler(d.Content, d.Gate))
			vr.Get("/file", VideoFileHandler(d.Content, d.Blobs))
			vr.Post("/progress", VideoProgressHandler(d.Gate))
		})

		pr.With(rbac.Require("test:take")).
			Post("/tests/{testID}/attempts", StartAttemptHandler(d.Attempts))
		pr.With(rbac.Require("attempt:view-own")).
			Get("/attempts", ListAttemptsHandler(d.Attempts))
		pr.Route("/attempts/{attemptID}", func(ar chi.Router) {
			ar.With(rbac.Require("test:take")).Get("/", AttemptSheetHandler(d.Attempts))
			ar.With(rbac.Require("test:take")).Post("/answers", AutosaveHandler(d.Attempts))
			ar.With(rbac.Require("test:take")).Post("/submit", SubmitAttemptHandler(d.Attempts))
			ar.With(rbac.Require("attempt:view-own")).Get("/result", AttemptResultHandler(d.Attempts))
		})

		pr.Route("/admin", func(ad chi.Router) {
			ad.With(rbac.Require("catalog:import")).Post("/catalog", ImportCatalogHandler(d.Content))
			ad.With(rbac.Require("catalog:import")).
				Post("/videos/{videoID}/file", UploadVideoFileHandler(d.Content, d.Blobs))

			ad.With(rbac.Require("users:manage")).Get("/users", ListUsersHandler(d.Users))
			ad.With(rbac.Require("users:manage")).Post("/users", BulkUpsertUsersHandler(d.Users))
			ad.With(rbac.Require("users:manage")).
				Patch("/users/{userID}/role", AdminUpdateUserRoleHandler(d.Users))

			ad.Route("/biometric/{userID}", func(br chi.Router) {
				br.Use(rbac.Require("biometric:enroll"))
				br.Post("/", EnrollHandler(d.Biometric))
				br.Delete("/", DeleteBiometricHandler(d.Biometric))
				br.Post("/verify", VerifyBiometricHandler(d.Biometric))
			})

			ad.Route("/reports", func(rr chi.Router) {
				rr.Use(rbac.Require("report:view"))
				rr.Get("/attempts", AttemptsReportHandler(d.Reports))
				rr.Get("/attempt-groups", AttemptGroupsReportHandler(d.Reports))
				rr.Get("/videos", VideoReportHandler(d.Reports))
				rr.Get("/logins", LoginReportHandler(d.Reports))
				rr.Get("/employees/{employeeID}", EmployeeReportHandler(d.Reports))
			})

			ad.With(rbac.Require("events:view")).Get("/events", EventsHandler(d.Events))
			ad.With(rbac.Require("events:view")).Get("/sync", SyncStatusHandler(d.Sync))
		})
	})

	return r
}
