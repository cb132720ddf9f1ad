package controllers

import (
	"encoding/json"
	"net/http"

	"provisioner/config"
	dbpkg "provisioner/db"
	"provisioner/models"
	"provisioner/store"
	"provisioner/tools"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// slackEnvelope captura só o que o ingress precisa; o payload completo é
// persistido verbatim no evento para o worker e para auditoria.
type slackEnvelope struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	EventID   string `json:"event_id"`
	Event     struct {
		Type string `json:"type"`
	} `json:"event"`
}

// Só esses tipos disparam provisionamento; o resto é filtro deliberado,
// respondido com sucesso + ignored.
var slackEventTypes = map[string]struct{}{
	"team_join":   {},
	"user_change": {},
}

// SlackEvents handles POST /slack/events.
//
// Ordem importa: decode (400) → handshake url_verification (sem assinatura,
// contrato do Slack) → assinatura (401) → filtro de tipo → enqueue com dedup
// pelo event_id do próprio Slack.
func SlackEvents(cfg config.Configuration) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.GetRawData()
		if err != nil {
			RespondError(c, "invalid_body", http.StatusBadRequest)
			return
		}

		var envelope slackEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			RespondError(c, "invalid_json", http.StatusBadRequest)
			return
		}

		if envelope.Type == "url_verification" {
			c.String(http.StatusOK, envelope.Challenge)
			return
		}

		ts := c.GetHeader("X-Slack-Request-Timestamp")
		sig := c.GetHeader("X-Slack-Signature")
		if !tools.VerifySlackSignature(cfg.SlackSigningSecret, raw, ts, sig) {
			RespondError(c, "invalid_signature", http.StatusUnauthorized)
			return
		}

		if _, ok := slackEventTypes[envelope.Event.Type]; !ok {
			RespondSuccess(c, gin.H{"ok": true, "ignored": true})
			return
		}

		// event_id do Slack é a chave de dedup; sem ele, geramos um (e aí
		// reenvio de verdade não dedupa — limitação conhecida).
		eventID := envelope.EventID
		if eventID == "" {
			eventID = uuid.New().String()
		}

		events := store.NewEventStore(dbpkg.DBInstance(c))
		queued, err := events.Enqueue(&models.Event{
			ID:        eventID,
			Provider:  models.EVENT_PROVIDER_SLACK,
			EventType: envelope.Event.Type,
			Payload:   string(raw),
		})
		if err != nil {
			RespondError(c, "enqueue_failed", http.StatusInternalServerError)
			return
		}

		RespondSuccess(c, gin.H{"ok": true, "queued": queued})
	}
}
