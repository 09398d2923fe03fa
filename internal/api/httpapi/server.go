// Package httpapi is the HTTP boundary of the booking service: routing,
// bearer authentication, request validation and error mapping.
package httpapi

import (
	_ "embed"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

//go:embed swagger.json
var swaggerDoc []byte

type RouterOptions struct {
	JWTSecret      []byte
	AllowedOrigins []string
}

func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/swagger.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(swaggerDoc)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(opts.JWTSecret))

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", h.CreateBooking)
			r.Get("/", h.ListBookings)
			r.Get("/lr/{lr}", h.GetBookingByLR)
			r.Get("/{id}", h.GetBooking)
			r.Put("/{id}", h.UpdateBooking)
			r.Patch("/{id}/status", h.UpdateStatus)
			r.Delete("/{id}", h.PurgeBooking)
		})

		r.Route("/ledger", func(r chi.Router) {
			r.Get("/", h.LedgerStatement)
			r.Post("/transactions/{id}/reverse", h.ReverseTransaction)
		})

		r.Put("/admin/counters/{branch}/{entity}/{field}", h.OverrideCounter)
		r.Get("/audit", h.ListAudit)
		r.Get("/reports/{type}", h.Report)
	})

	return r
}
