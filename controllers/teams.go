package controllers

import (
	"encoding/json"
	"net/http"

	"provisioner/config"
	dbpkg "provisioner/db"
	"provisioner/models"
	"provisioner/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type teamsNotification struct {
	Value []struct {
		ClientState string `json:"clientState"`
	} `json:"value"`
}

// TeamsValidation handles GET /teams/events: o Microsoft Graph manda um
// validationToken na criação da subscription e espera o token ecoado em
// texto puro, sem nenhuma outra checagem.
func TeamsValidation(c *gin.Context) {
	token := c.Query("validationToken")
	if token == "" {
		NotFound(c)
		return
	}
	c.String(http.StatusOK, token)
}

// TeamsEvents handles POST /teams/events.
//
// Notificações do Graph não têm id próprio utilizável e um batch pode
// misturar resource kinds, então tudo entra na fila sem classificar (o worker
// decide) e a resposta é 202: aceito, ainda não começou.
func TeamsEvents(cfg config.Configuration) gin.HandlerFunc {
	return func(c *gin.Context) {
		// O Graph também revalida mandando o token num POST, inclusive antes
		// do modo Teams ser habilitado no deploy.
		if token := c.Query("validationToken"); token != "" {
			c.String(http.StatusOK, token)
			return
		}

		if !cfg.TeamsEnabled {
			RespondError(c, "teams_disabled", http.StatusForbidden)
			return
		}

		raw, err := c.GetRawData()
		if err != nil {
			RespondError(c, "invalid_body", http.StatusBadRequest)
			return
		}

		var notification teamsNotification
		if err := json.Unmarshal(raw, &notification); err != nil {
			RespondError(c, "invalid_json", http.StatusBadRequest)
			return
		}

		// clientState é o segredo compartilhado da subscription; basta
		// conferir o primeiro item do batch.
		if cfg.TeamsClientState != "" && len(notification.Value) > 0 {
			if notification.Value[0].ClientState != cfg.TeamsClientState {
				RespondError(c, "invalid_client_state", http.StatusUnauthorized)
				return
			}
		}

		events := store.NewEventStore(dbpkg.DBInstance(c))
		queued, err := events.Enqueue(&models.Event{
			ID:        "teams-" + uuid.New().String(),
			Provider:  models.EVENT_PROVIDER_TEAMS,
			EventType: "graph_notification",
			Payload:   string(raw),
		})
		if err != nil {
			RespondError(c, "enqueue_failed", http.StatusInternalServerError)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"ok": true, "queued": queued})
	}
}
