package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kilianp07/ridefleet/core/fleet"
	"github.com/kilianp07/ridefleet/infra/logger"
)

// Options configures the router.
type Options struct {
	JWTSecret      string
	AllowedOrigins []string
}

// Server holds the handlers' dependencies.
type Server struct {
	engine *fleet.Engine
	secret []byte
	log    logger.Logger
}

// NewRouter returns the HTTP handler serving the fleet API.
func NewRouter(e *fleet.Engine, opts Options, log logger.Logger) http.Handler {
	if log == nil {
		log = logger.NopLogger{}
	}
	s := &Server{engine: e, secret: []byte(opts.JWTSecret), log: log}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.logRequests)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route("/rides", func(r chi.Router) {
			r.Post("/", s.requestRide)
			r.Get("/", s.listRides)
			r.Post("/manual", s.createAssignedRide)
			r.Get("/pending", s.pendingRides)
			r.Get("/assigned", s.assignedRides)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getRide)
				r.Post("/assign", s.assignRide)
				r.Post("/start", s.startRide)
				r.Post("/complete", s.completeRide)
				r.Post("/cancel", s.cancelRide)
				r.Put("/status", s.setRideStatus)
				r.Put("/odometer/complete", s.closeRideEntry)
			})
		})

		r.Route("/drivers", func(r chi.Router) {
			r.Get("/", s.listDrivers)
			r.Post("/", s.registerDriver)
			r.Put("/me/status", s.setOwnStatus)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getDriver)
				r.Put("/status", s.setDriverStatus)
				r.Post("/deactivate", s.deactivateDriver)
				r.Get("/availability", s.driverAvailability)
				r.Get("/odometer", s.driverOdometer)
			})
		})

		r.Route("/passengers", func(r chi.Router) {
			r.Get("/", s.listPassengers)
			r.Post("/", s.registerPassenger)
			r.Get("/{id}", s.getPassenger)
		})

		r.Route("/km-entries", func(r chi.Router) {
			r.Post("/", s.openEntry)
			r.Get("/", s.listEntries)
			r.Put("/{id}/complete", s.closeEntry)
		})

		r.Route("/fuel-entries", func(r chi.Router) {
			r.Post("/", s.recordFuel)
			r.Get("/", s.listFuel)
		})
		r.Route("/attendance", func(r chi.Router) {
			r.Get("/", s.listAttendance)
			r.Get("/active", s.activeAttendance)
			r.Get("/summary", s.attendanceSummary)
			r.Get("/export", s.exportAttendance)
		})

		r.Route("/leave-requests", func(r chi.Router) {
			r.Post("/", s.submitLeave)
			r.Get("/", s.listLeave)
			r.Get("/stats", s.leaveStats)
			r.Get("/{id}", s.getLeave)
			r.Put("/{id}/review", s.reviewLeave)
		})

		r.Get("/dashboard/stats", s.dashboard)
	})
	return r
}

// logRequests logs method, path, status and duration of every request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.Debugw("http request", map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  chimw.GetReqID(r.Context()),
			})
		}()
		next.ServeHTTP(ww, r)
	})
}
