package extraction

import (
	"context"
	"encoding/json"

	"kyb/internal/identity/models"
)

// StaticEngine returns fixed facts. Used in development when no model is
// configured, and in tests.
type StaticEngine struct {
	Facts models.ExtractedFacts
	Err   error
}

func (s *StaticEngine) Name() string { return "static" }

func (s *StaticEngine) Extract(context.Context, Document) (json.RawMessage, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return json.Marshal(s.Facts)
}
