package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	base := errors.New("connection refused")
	inner := Wrap(base, CodeExternalService, "registry unavailable")
	outer := Wrap(inner, CodeInternal, "enrichment failed")

	assert.True(t, HasCode(outer, CodeInternal))
	assert.True(t, HasCode(outer, CodeExternalService))
	assert.False(t, HasCode(outer, CodeNotFound))
	assert.ErrorIs(t, outer, base)
}

func TestHasCodeThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("load entity: %w", New(CodeNotFound, "legal entity not found"))

	assert.True(t, Is(err, CodeNotFound))
	assert.Equal(t, CodeNotFound, CodeOf(err))
	assert.Equal(t, "legal entity not found", MessageOf(err))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, CodeInternal, "ignored"))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.Empty(t, MessageOf(errors.New("boom")))
}
