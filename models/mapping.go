package models

import "time"

/************************************************
/**** MARK: MAPPING STATUS ****/
/************************************************/
const MAPPING_STATUS_DENIED = "denied"
const MAPPING_STATUS_DRY_RUN = "dry_run"
const MAPPING_STATUS_CREATED = "created"
const MAPPING_STATUS_EXISTS = "exists"

// Mapping guarda o último desfecho de provisionamento por identidade externa
// (provider + external_user_id). Cada escrita é um upsert completo: a linha
// sempre reflete a decisão mais recente, mesmo com eventos duplicados.
type Mapping struct {
	Provider       string    `gorm:"primary_key" json:"provider"`
	ExternalUserID string    `gorm:"primary_key;column:external_user_id" json:"external_user_id"`
	TenantOrTeamID string    `gorm:"column:tenant_or_team_id" json:"tenant_or_team_id"`
	Email          string    `json:"email"`
	N8NUserID      string    `gorm:"column:n8n_user_id" json:"n8n_user_id"`
	Status         string    `gorm:"not null" json:"status"`
	UpdatedAt      time.Time `json:"updated_at"`
	Reason         string    `gorm:"default:''" json:"reason"`
}
