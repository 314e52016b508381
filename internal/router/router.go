package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/eventdesk/internal/handler"
	"github.com/iliyamo/eventdesk/internal/middleware"
	"github.com/iliyamo/eventdesk/internal/model"
)

// Deps holds everything the routes are built from.
type Deps struct {
	Log      logrus.FieldLogger
	Verifier middleware.TokenVerifier
	DB       handler.Pinger
	Auth     *handler.AuthHandler
	Events   *handler.EventHandler
	Ratings  *handler.RatingHandler

	// IPExtractor decides the client key used for rate limiting. Nil means
	// the TCP peer address.
	IPExtractor echo.IPExtractor
}

// New builds the echo instance with the shared middleware stack and every
// route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(d.Log)
	e.IPExtractor = d.IPExtractor
	if e.IPExtractor == nil {
		e.IPExtractor = echo.ExtractIPDirect()
	}

	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(d.Log))
	e.Use(echomw.BodyLimit("64K"))

	RegisterRoutes(e, d.DB)
	RegisterAuth(e, d.Auth, d.Verifier)
	RegisterEvents(e, d.Events, d.Ratings, d.Verifier)
	return e
}

// RegisterRoutes registers the unauthenticated probes. The readiness probe
// is only mounted when a database handle is available.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	if db != nil {
		e.GET("/readyz", handler.Ready(db))
	}
}

// RegisterAuth registers the account routes. Signup, login and the
// password reset pair are public; everything else needs a bearer token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, v middleware.TokenVerifier) {
	g := e.Group("/v1/auth")
	g.POST("/signup", a.Signup)
	g.POST("/login", a.Login)
	g.POST("/password/forgot", a.ForgotPassword)
	g.POST("/password/reset", a.ResetPassword)

	authn := middleware.Authenticate(v)
	g.POST("/refresh", a.Refresh, authn)
	g.POST("/logout", a.Logout, authn)

	p := e.Group("/v1", authn)
	p.GET("/me", a.Me)
	p.GET("/users/:username", a.Profile)
}

// RegisterEvents registers the event workflow and rating routes, all
// behind a bearer token.
func RegisterEvents(e *echo.Echo, ev *handler.EventHandler, r *handler.RatingHandler, v middleware.TokenVerifier) {
	g := e.Group("/v1", middleware.Authenticate(v))

	g.GET("/events", ev.List)
	g.POST("/events", ev.Create, middleware.RequireRole(model.RoleOrganizer))
	g.GET("/events/:id", ev.Get)
	g.PUT("/events/:id", ev.Update)
	g.PATCH("/events/:id", ev.Update)
	g.DELETE("/events/:id", ev.Delete)
	g.POST("/events/:id/accept", ev.Accept)
	g.POST("/events/:id/reject", ev.Reject)

	g.GET("/events/:id/ratings", r.ListEvent)
	g.POST("/events/:id/ratings", r.RateEvent)
	g.GET("/users/:username/ratings", r.ListUser)
	g.POST("/users/:username/ratings", r.RateUser)
}
