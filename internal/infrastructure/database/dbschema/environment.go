package dbschema

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"jan-server/services/envchat-api/internal/domain/environment"
)

// Environment is the database schema for the environments table. Rows are
// partitioned by Scope; ID is unique within a scope.
type Environment struct {
	Scope           string         `gorm:"primaryKey;size:64"`
	ID              string         `gorm:"primaryKey;size:128"`
	Name            string         `gorm:"size:255;not null"`
	Settings        datatypes.JSON `gorm:"type:jsonb;not null"`
	BackendSettings datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt       time.Time      `gorm:"not null;default:now()"`
	UpdatedAt       time.Time      `gorm:"not null;default:now()"`
}

func (Environment) TableName() string {
	return "envchat.environments"
}

// NewSchemaEnvironment converts a domain record to its schema row.
func NewSchemaEnvironment(r *environment.Record) *Environment {
	return &Environment{
		Scope:           r.Scope,
		ID:              r.ID,
		Name:            r.Name,
		Settings:        jsonOrEmpty(r.Settings),
		BackendSettings: jsonOrEmpty(r.BackendSettings),
		UpdatedAt:       r.UpdatedAt,
	}
}

// EtoD converts entity (database schema) to domain record.
func (e *Environment) EtoD() *environment.Record {
	return &environment.Record{
		Scope:           e.Scope,
		ID:              e.ID,
		Name:            e.Name,
		Settings:        json.RawMessage(e.Settings),
		BackendSettings: json.RawMessage(e.BackendSettings),
		UpdatedAt:       e.UpdatedAt,
	}
}

func jsonOrEmpty(raw json.RawMessage) datatypes.JSON {
	if len(raw) == 0 {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(raw)
}
