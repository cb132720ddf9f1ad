package router

import (
	"log"

	"provisioner/config"
	"provisioner/controllers"

	"github.com/gin-gonic/gin"
)

// Initialize wires all routes.
// Webhook routes ficam sem o Logger(): provider reentrega em cima de latência
// e o corpo já vai inteiro pro event store de qualquer jeito.
func Initialize(r *gin.Engine, cfg config.Configuration) {
	r.Use(gin.Recovery())

	r.GET("/healthz", controllers.Health)

	// Slack Events API
	r.POST("/slack/events", controllers.SlackEvents(cfg))

	// Microsoft Graph change notifications
	r.GET("/teams/events", controllers.TeamsValidation)
	r.POST("/teams/events", controllers.TeamsEvents(cfg))

	// Inspeção (operador) - somente leitura
	ops := r.Group("/ops")
	ops.Use(controllers.OpsAuth(cfg))
	ops.GET("/events", Logger(), controllers.GetEvents)
	ops.GET("/events/:id", Logger(), controllers.GetEventByID)
	ops.GET("/mappings", Logger(), controllers.GetMappings)

	r.NoRoute(controllers.NotFound)

	log.Printf("Routes initialized")
}
