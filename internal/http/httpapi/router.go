package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tasvir/internal/http/handlers"
	"tasvir/internal/middleware"
)

// Options carries the middleware dependencies of the router.
type Options struct {
	Tokens      middleware.TokenParser
	Limiter     middleware.Limiter
	OTPLimiter  middleware.Limiter
	Country     middleware.CountryLookup
	Logger      zerolog.Logger
	CORSOrigins []string
	AdminToken  string
	// StaticDir is served under /static when set.
	StaticDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
		middleware.Country(opts.Country),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/readyz", app.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	if opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}

	// Provider webhook: authenticated by the signed callback URL.
	r.Post("/v1/callbacks/generation", app.GenerationCallback)

	r.Route("/v1/auth/otp", func(r chi.Router) {
		if opts.OTPLimiter != nil {
			r.Use(middleware.RateLimit(opts.OTPLimiter, opts.Logger))
		}
		r.Post("/request", app.OTPRequest)
		r.Post("/verify", app.OTPVerify)
	})

	r.Get("/v1/billing/plans", app.Plans)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.Tokens))
		if opts.Limiter != nil {
			r.Use(middleware.RateLimit(opts.Limiter, opts.Logger))
		}
		r.Get("/v1/me", app.Me)

		r.Route("/v1/generations", func(r chi.Router) {
			r.Post("/", app.CreateGeneration)
			r.Get("/", app.ListGenerations)
			r.Get("/{id}", app.GetGeneration)
			r.Get("/{id}/zip", app.GenerationZip)
		})

		r.Get("/v1/history/{kind}", app.ListHistory)
		r.Delete("/v1/history/{kind}/{entryID}", app.DeleteHistory)
		r.Post("/v1/uploads", app.Upload)
		r.Get("/v1/billing/history", app.BillingHistory)
		r.Post("/v1/discounts/preview", app.DiscountPreview)
	})

	r.Route("/v1/admin", func(r chi.Router) {
		r.Use(middleware.AdminToken(opts.AdminToken))
		r.Post("/discounts", app.AdminCreateDiscount)
		r.Post("/purchases", app.AdminPurchase)
	})

	return r
}
