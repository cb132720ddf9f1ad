package models

import "time"

/************************************************
/**** MARK: EVENT STATUS ****/
/************************************************/
const EVENT_STATUS_PENDING = "pending"
const EVENT_STATUS_DONE = "done"
const EVENT_STATUS_DENIED = "denied"
const EVENT_STATUS_FAILED = "failed"

const EVENT_PROVIDER_SLACK = "slack"
const EVENT_PROVIDER_TEAMS = "teams"

// Retries: eventos "failed" voltam pro worker até o teto de tentativas.
const EVENT_MAX_ATTEMPTS = 5

// Event representa uma notificação inbound aceita no webhook.
// O ID vem do provider quando existe (dedup) e é a primary key: reenvio do
// mesmo evento não cria uma segunda linha. Eventos nunca são deletados.
type Event struct {
	ID         string     `gorm:"primary_key" json:"id"`
	Provider   string     `gorm:"not null;index" json:"provider"`
	ReceivedAt time.Time  `gorm:"not null;index" json:"received_at"`
	EventType  string     `gorm:"default:''" json:"event_type"`
	Payload    string     `gorm:"type:text;not null" json:"payload"`
	Status     string     `gorm:"not null;default:'pending';index" json:"status"`
	Attempts   int        `gorm:"not null;default:0" json:"attempts"`
	Reason     string     `gorm:"default:''" json:"reason"`
	CreatedAt  *time.Time `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at"`
}
