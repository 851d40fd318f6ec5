package models

import (
	"encoding/json"
	"time"

	id "kyb/pkg/domain"
)

// RegistrySnapshot is the last successful fetch from one registry for one
// entity. A newer fetch supersedes it; snapshots are never deleted.
type RegistrySnapshot struct {
	EntityID  id.EntityID     `json:"entity_id"`
	Source    string          `json:"source"`
	Payload   json.RawMessage `json:"payload"`
	Raw       []byte          `json:"-"`
	FetchedAt time.Time       `json:"fetched_at"`
}
