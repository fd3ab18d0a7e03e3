package app

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/FooledKiwi/ridemap-api/internal/handler"
	"github.com/FooledKiwi/ridemap-api/internal/middleware"
	"github.com/FooledKiwi/ridemap-api/internal/service"
)

// eventsRoute streams for as long as the client stays connected.
const eventsRoute = "/api/v1/views/:id/events"

// Deps are the handlers and guards the HTTP engine is built from.
type Deps struct {
	Handler        *handler.Handler
	Driver         *handler.DriverHandler
	Admin          *handler.AdminHandler
	Verifier       middleware.TokenVerifier
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// NewEngine builds the gin engine and registers every route.
func NewEngine(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 10 * time.Second
	}

	router := gin.New()
	router.Use(middleware.RequestLogger(d.Logger.Named("access")))
	router.Use(gin.Recovery())
	router.Use(middleware.Timeout(d.RequestTimeout,
		middleware.ExceptRoutes(eventsRoute),
		middleware.WithTimeoutLogger(d.Logger),
	))

	router.GET("/health", handler.Health)

	h := d.Handler
	auth := middleware.JWTAuth(d.Verifier)
	anyRole := middleware.RequireRole(service.RoleRider, service.RoleDriver, service.RoleAdmin)

	api := router.Group("/api/v1")
	{
		// Public endpoints.
		api.GET("/vehicles/:id/position", h.GetVehiclePosition)

		// Any authenticated client.
		authed := api.Group("", auth, anyRole)
		{
			authed.GET("/maps/key", h.GetMapsKey)
			authed.GET("/directions", h.GetDirections)

			views := authed.Group("/views")
			views.POST("", h.CreateView)
			views.GET("/:id", h.GetView)
			views.DELETE("/:id", h.DeleteView)
			views.GET("/:id/events", h.StreamViewEvents)
			views.POST("/:id/recenter", h.Recenter)
			views.PUT("/:id/markers/:marker", h.UpsertMarker)
			views.DELETE("/:id/markers/:marker", h.RemoveMarker)
			views.DELETE("/:id/markers", h.ClearMarkers)
			views.POST("/:id/route", h.RenderRoute)
			views.DELETE("/:id/route", h.ClearRoute)
			views.PUT("/:id/inputs/:field", h.SetInputText)
			views.GET("/:id/inputs/:field/suggestions", h.Suggest)
			views.POST("/:id/inputs/:field/select", h.SelectPlace)
			views.POST("/:id/follow/:vehicle", h.Follow)
			views.DELETE("/:id/follow", h.Unfollow)
		}

		// Driver devices.
		driver := api.Group("/driver", auth, middleware.RequireRole(service.RoleDriver, service.RoleAdmin))
		{
			driver.GET("/assignment", d.Driver.GetAssignment)
			driver.POST("/position", d.Driver.ReportPosition)
			driver.POST("/position/error", d.Driver.ReportPositionError)
		}

		// Administration.
		admin := api.Group("/admin", auth, middleware.RequireRole(service.RoleAdmin))
		{
			admin.PUT("/maps/key", d.Admin.SetGlobalKey)
			admin.DELETE("/maps/key", d.Admin.ClearGlobalKey)
			admin.GET("/maps/keys", d.Admin.ListRegionKeys)
			admin.PUT("/maps/keys/:region", d.Admin.SetRegionKey)
			admin.DELETE("/maps/keys/:region", d.Admin.DeleteRegionKey)
			admin.POST("/tokens", d.Admin.IssueToken)
		}
	}

	return router
}
