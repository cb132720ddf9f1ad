package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GET /healthz
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339),
	})
}

// Rotas desconhecidas respondem o mesmo JSON de erro do resto da API.
func NotFound(c *gin.Context) {
	RespondError(c, "not_found", http.StatusNotFound)
}
