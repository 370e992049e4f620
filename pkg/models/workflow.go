package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// WorkflowStep is one stage of the AI document generation pipeline.
// Steps run in position order; disabled steps are skipped.
type WorkflowStep struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Prompt    string    `db:"prompt" json:"prompt"`
	Position  int       `db:"position" json:"position"`
	IsEnabled bool      `db:"is_enabled" json:"is_enabled"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// GenerationStatus captures background generation job lifecycle states.
type GenerationStatus string

const (
	GenerationStatusQueued     GenerationStatus = "QUEUED"
	GenerationStatusProcessing GenerationStatus = "PROCESSING"
	GenerationStatusFinished   GenerationStatus = "FINISHED"
	GenerationStatusFailed     GenerationStatus = "FAILED"
)

// GenerationJob persists metadata of a queued AI document generation run.
type GenerationJob struct {
	ID           string              `db:"id" json:"id"`
	Params       GenerationJobParams `db:"params" json:"params"`
	Status       GenerationStatus    `db:"status" json:"status"`
	Progress     int                 `db:"progress" json:"progress"`
	ResultURL    *string             `db:"result_url" json:"result_url,omitempty"`
	CreatedBy    string              `db:"created_by" json:"created_by"`
	CreatedAt    time.Time           `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time          `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string             `db:"error_message" json:"error_message,omitempty"`
}

// GenerationJobParams stores request-scoped options persisted as JSONB.
type GenerationJobParams struct {
	ProductID string            `json:"productId"`
	VersionID string            `json:"versionId"`
	Subject   string            `json:"subject"`
	Extras    map[string]string `json:"extras,omitempty"`
}

// Value marshals params to JSON for persistence.
func (p GenerationJobParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal generation job params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *GenerationJobParams) Scan(value interface{}) error {
	if value == nil {
		*p = GenerationJobParams{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for GenerationJobParams", value)
	}
	if len(data) == 0 {
		*p = GenerationJobParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal generation job params: %w", err)
	}
	return nil
}
