// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"waykel/internal/http/handlers"
	"waykel/internal/http/middleware"
	"waykel/internal/infra"
)

type RouterDeps struct {
	Rides    handlers.RideService
	Payments handlers.PaymentService
	Viewer   handlers.RideViewer
	// Subscriber is optional; without it the stream route is not registered.
	Subscriber handlers.Subscriber
	Verifier   infra.TokenVerifier
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logging())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api")
	api.Use(middleware.Auth(deps.Verifier))

	api.GET("/lifecycle/rides", handlers.RideLifecycle)
	api.GET("/lifecycle/payments", handlers.PaymentLifecycle)

	rideHandler := handlers.NewRideHandler(deps.Rides)
	api.POST("/rides", rideHandler.Create)
	api.GET("/rides/:id", rideHandler.Get)
	api.GET("/rides/:id/next", rideHandler.Next)
	api.GET("/rides/:id/events", rideHandler.Events)
	api.POST("/rides/:id/status", rideHandler.Transition)
	api.POST("/rides/:id/authorize", rideHandler.Authorize)
	api.GET("/rides/:id/bids", rideHandler.ListBids)
	api.POST("/rides/:id/bids", rideHandler.PlaceBid)
	api.POST("/rides/:id/bids/:bidId/accept", rideHandler.AcceptBid)
	api.POST("/rides/:id/assign", rideHandler.AssignDriver)

	paymentHandler := handlers.NewPaymentHandler(deps.Payments)
	api.GET("/rides/:id/payment", paymentHandler.Get)
	api.GET("/rides/:id/payment/events", paymentHandler.Events)
	api.POST("/rides/:id/payment/status", paymentHandler.Transition)

	if deps.Subscriber != nil && deps.Viewer != nil {
		streamHandler := handlers.NewStreamHandler(deps.Viewer, deps.Subscriber)
		api.GET("/rides/:id/stream", streamHandler.Ride)
	}

	return r
}
