package controllers

import (
	"net/http"
	"strconv"

	"provisioner/config"
	dbpkg "provisioner/db"
	"provisioner/store"
	"provisioner/tools"

	"github.com/gin-gonic/gin"
)

// Resultados de provisionamento nunca aparecem na resposta síncrona do
// webhook; o operador inspeciona por aqui (somente leitura).

// OpsAuth protege as rotas de inspeção com bearer token. Sem OPS_TOKEN
// configurado as rotas ficam abertas (deploy atrás de rede interna).
func OpsAuth(cfg config.Configuration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !tools.VerifyBearer(c.GetHeader("Authorization"), cfg.OpsToken) {
			RespondError(c, "unauthorized", http.StatusUnauthorized)
			c.Abort()
			return
		}
		c.Next()
	}
}

// GET /ops/events?status=&limit=
func GetEvents(c *gin.Context) {
	events := store.NewEventStore(dbpkg.DBInstance(c))

	list, err := events.List(c.Query("status"), queryLimit(c))
	if err != nil {
		RespondError(c, err.Error(), http.StatusInternalServerError)
		return
	}
	RespondSuccess(c, gin.H{"ok": true, "events": list})
}

// GET /ops/events/:id
func GetEventByID(c *gin.Context) {
	events := store.NewEventStore(dbpkg.DBInstance(c))

	ev, err := events.GetByID(c.Param("id"))
	if err != nil {
		RespondError(c, "event_not_found", http.StatusNotFound)
		return
	}
	RespondSuccess(c, gin.H{"ok": true, "event": ev})
}

// GET /ops/mappings?provider=&limit=
func GetMappings(c *gin.Context) {
	mappings := store.NewMappingStore(dbpkg.DBInstance(c))

	list, err := mappings.List(c.Query("provider"), queryLimit(c))
	if err != nil {
		RespondError(c, err.Error(), http.StatusInternalServerError)
		return
	}
	RespondSuccess(c, gin.H{"ok": true, "mappings": list})
}

func queryLimit(c *gin.Context) int {
	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	return limit
}
