package store

import (
	"time"

	"provisioner/models"

	"github.com/jinzhu/gorm"
)

// MappingStore guarda o último desfecho por identidade externa. Só o worker
// escreve aqui; uma linha por (provider, external_user_id).
type MappingStore struct {
	db *gorm.DB
}

func NewMappingStore(database *gorm.DB) *MappingStore {
	return &MappingStore{db: database}
}

// Upsert overwrites the whole row for the identity (last-write-wins on
// updated_at). Duplicate events for the same identity therefore converge on
// a single audit row instead of piling up conflicting history.
func (s *MappingStore) Upsert(m *models.Mapping) error {
	m.UpdatedAt = time.Now().UTC()

	values := map[string]interface{}{
		"tenant_or_team_id": m.TenantOrTeamID,
		"email":             m.Email,
		"n8n_user_id":       m.N8NUserID,
		"status":            m.Status,
		"updated_at":        m.UpdatedAt,
		"reason":            m.Reason,
	}

	res := s.db.Model(&models.Mapping{}).
		Where("provider = ? AND external_user_id = ?", m.Provider, m.ExternalUserID).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	return s.db.Create(m).Error
}

func (s *MappingStore) Get(provider, externalUserID string) (*models.Mapping, error) {
	var m models.Mapping
	err := s.db.
		Where("provider = ? AND external_user_id = ?", provider, externalUserID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// List devolve mappings recentes para inspeção (ops), mais novos primeiro.
func (s *MappingStore) List(provider string, limit int) ([]models.Mapping, error) {
	q := s.db.Order("updated_at desc").Limit(limit)
	if provider != "" {
		q = q.Where("provider = ?", provider)
	}
	var mappings []models.Mapping
	err := q.Find(&mappings).Error
	return mappings, err
}
