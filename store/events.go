package store

import (
	"time"

	"provisioner/models"

	"github.com/jinzhu/gorm"
)

// EventStore é a fila durável de notificações. Ingress escreve, worker lê e
// atualiza status; é o único canal entre os dois.
type EventStore struct {
	db *gorm.DB
}

func NewEventStore(database *gorm.DB) *EventStore {
	return &EventStore{db: database}
}

// Enqueue persists one accepted notification. A duplicate id is reported as
// queued=false and is not an error: the provider resent something we already
// hold, so the original row stands untouched.
func (s *EventStore) Enqueue(ev *models.Event) (bool, error) {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}
	if ev.Status == "" {
		ev.Status = models.EVENT_STATUS_PENDING
	}

	if err := s.db.Create(ev).Error; err != nil {
		// Create falhou: se a linha já existe é dedup, senão é erro real.
		var existing models.Event
		if s.db.Where("id = ?", ev.ID).First(&existing).Error == nil {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// FetchProcessable returns the oldest pending/retryable events, capped at
// limit. Events at or above maxAttempts stay behind for operator attention.
func (s *EventStore) FetchProcessable(limit, maxAttempts int) ([]models.Event, error) {
	var events []models.Event
	err := s.db.
		Where("status IN (?)", []string{models.EVENT_STATUS_PENDING, models.EVENT_STATUS_FAILED}).
		Where("attempts < ?", maxAttempts).
		Order("received_at asc").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (s *EventStore) GetByID(id string) (*models.Event, error) {
	var ev models.Event
	if err := s.db.Where("id = ?", id).First(&ev).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}

// List devolve eventos recentes para inspeção (ops), mais novos primeiro.
func (s *EventStore) List(status string, limit int) ([]models.Event, error) {
	q := s.db.Order("received_at desc").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var events []models.Event
	err := q.Find(&events).Error
	return events, err
}

func (s *EventStore) MarkDone(id, reason string) error {
	return s.setStatus(id, models.EVENT_STATUS_DONE, reason)
}

func (s *EventStore) MarkDenied(id, reason string) error {
	return s.setStatus(id, models.EVENT_STATUS_DENIED, reason)
}

// MarkFailed flags the event retryable and bumps the attempt counter in the
// same update so concurrent restarts cannot lose an increment.
func (s *EventStore) MarkFailed(id, reason string) error {
	return s.db.Model(&models.Event{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":   models.EVENT_STATUS_FAILED,
			"attempts": gorm.Expr("attempts + 1"),
			"reason":   truncateReason(reason),
		}).Error
}

func (s *EventStore) setStatus(id, status, reason string) error {
	return s.db.Model(&models.Event{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status": status,
			"reason": truncateReason(reason),
		}).Error
}

// Reasons podem carregar mensagens de erro de APIs externas; corta pra não
// estourar a coluna com body de resposta gigante.
func truncateReason(reason string) string {
	if len(reason) > 500 {
		return reason[:500]
	}
	return reason
}
