// Package extraction reads the company name and registration number out of
// an uploaded filing document.
package extraction

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"kyb/internal/identity/models"
	dErrors "kyb/pkg/domain-errors"
	pstrings "kyb/pkg/platform/strings"
)

//go:embed schema.json
var factsSchema string

const maxDocumentBytes = 10 << 20

// Document is an uploaded filing.
type Document struct {
	Content  []byte
	MimeType string
}

// Engine turns a document into a JSON object matching schema.json.
type Engine interface {
	Name() string
	Extract(ctx context.Context, doc Document) (json.RawMessage, error)
}

// Extractor validates engine output before it is trusted. Every failure
// it returns carries dErrors.CodeExtraction.
type Extractor struct {
	engine Engine
	schema *gojsonschema.Schema
	logger *slog.Logger
}

type Option func(*Extractor)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

func New(engine Engine, opts ...Option) (*Extractor, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(factsSchema))
	if err != nil {
		return nil, fmt.Errorf("compile extraction schema: %w", err)
	}
	e := &Extractor{engine: engine, schema: schema, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Extract returns the facts stated in doc. A document stating neither fact
// is an extraction failure.
func (e *Extractor) Extract(ctx context.Context, doc Document) (*models.ExtractedFacts, error) {
	if len(bytes.TrimSpace(doc.Content)) == 0 {
		return nil, dErrors.New(dErrors.CodeExtraction, "document is empty")
	}
	if len(doc.Content) > maxDocumentBytes {
		return nil, dErrors.New(dErrors.CodeExtraction, "document is too large")
	}

	raw, err := e.engine.Extract(ctx, doc)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeExtraction) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeExtraction, "extraction engine failed")
	}

	result, err := e.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeExtraction, "engine output is not JSON")
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			msgs = append(msgs, re.String())
		}
		e.logger.WarnContext(ctx, "extraction output rejected",
			"engine", e.engine.Name(),
			"violations", strings.Join(msgs, "; "),
		)
		return nil, dErrors.New(dErrors.CodeExtraction, "engine output violates schema")
	}

	var facts models.ExtractedFacts
	if err := json.Unmarshal(raw, &facts); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeExtraction, "decode engine output")
	}
	facts.CompanyName = clean(facts.CompanyName)
	facts.RegistrationNumber = clean(facts.RegistrationNumber)
	if facts.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeExtraction, "document states neither company name nor registration number")
	}
	return &facts, nil
}

func clean(s *string) *string {
	if s == nil {
		return nil
	}
	v := pstrings.CollapseSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// IsExtractionError reports whether err is an extraction failure.
func IsExtractionError(err error) bool {
	return dErrors.HasCode(err, dErrors.CodeExtraction)
}
