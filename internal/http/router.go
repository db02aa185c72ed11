// README: HTTP router registration.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"roadcall/internal/http/handlers"
	"roadcall/internal/http/middleware"
	"roadcall/internal/modules/location"
	"roadcall/internal/modules/mechanic"
	"roadcall/internal/modules/offer"
	"roadcall/internal/modules/payment"
	"roadcall/internal/modules/request"
)

type RouterDeps struct {
	Requests      *request.Service
	Offers        *offer.Service
	Locations     *location.Service
	Mechanics     *mechanic.PgStore
	Payments      *payment.Coordinator
	OfferTTL      time.Duration
	WebhookSecret string
	Log           *zerolog.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Logging(deps.Log), middleware.Recovery(deps.Log))

	requestHandler := handlers.NewRequestHandler(deps.Requests)
	api := r.Group("/api")
	api.POST("/requests", requestHandler.Create)
	api.GET("/requests/:id", requestHandler.Get)
	api.POST("/requests/:id/start-route", requestHandler.StartRoute)
	api.POST("/requests/:id/arrive", requestHandler.MarkArrived)
	api.POST("/requests/:id/verify-arrival", requestHandler.VerifyArrival)
	api.POST("/requests/:id/end-service", requestHandler.EndService)
	api.POST("/requests/:id/verify-completion", requestHandler.VerifyCompletion)
	api.POST("/requests/:id/cancel", requestHandler.Cancel)
	// static segment would conflict with the :id wildcard above
	api.GET("/open-requests", requestHandler.OpenNearby)
	api.GET("/clients/:id/requests", requestHandler.ActiveByClient)
	api.GET("/mechanics/:id/requests", requestHandler.ActiveByMechanic)

	offerHandler := handlers.NewOfferHandler(deps.Offers, deps.OfferTTL)
	api.POST("/offers", offerHandler.Submit)
	api.POST("/requests/:id/offers/resolve", offerHandler.Resolve)
	api.GET("/requests/:id/offers", offerHandler.ListByRequest)

	locationHandler := handlers.NewLocationHandler(deps.Locations)
	api.POST("/locations", locationHandler.Report)

	mechanicHandler := handlers.NewMechanicHandler(deps.Mechanics)
	api.PUT("/mechanics/:id/availability", mechanicHandler.SetAvailability)

	webhookHandler := handlers.NewWebhookHandler(deps.Payments, deps.WebhookSecret, deps.Log)
	r.POST("/webhooks/stripe", webhookHandler.HandleStripe)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
