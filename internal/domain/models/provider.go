package models

import "time"

// Provider is a configured external AI capability endpoint. Rows are owned by
// an external admin surface; the orchestrator only reads enabled rows ordered
// by priority.
type Provider struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Kind      TaskType  `json:"kind" db:"kind"`
	ModelID   string    `json:"model_id" db:"model_id"`
	BaseURL   string    `json:"base_url,omitempty" db:"base_url"`
	EnvKey    string    `json:"env_key,omitempty" db:"env_key"`
	Priority  int       `json:"priority" db:"priority"`
	Enabled   bool      `json:"enabled" db:"enabled"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
