package documents

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "kyb/pkg/domain-errors"
	"kyb/pkg/platform/sentinel"
)

func TestInMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	ref, err := s.Upload(ctx, "entity-1/kvk-extract.pdf", []byte("%PDF-1.7"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "doc://entity-1/kvk-extract.pdf", ref)

	content, mimeType, err := s.Download(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7"), content)
	assert.Equal(t, "application/pdf", mimeType)
}

func TestInMemoryStore_DefaultMime(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	ref, err := s.Upload(ctx, "entity-1/blob", []byte("x"), "")
	require.NoError(t, err)

	_, mimeType, err := s.Download(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", mimeType)
}

func TestInMemoryStore_KeysCannotEscape(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	ref, err := s.Upload(ctx, "../../etc/passwd", []byte("x"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "doc://etc/passwd", ref)

	_, err = s.Upload(ctx, "  ", []byte("x"), "text/plain")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = s.Upload(ctx, "a/b.meta.json", []byte("x"), "text/plain")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestInMemoryStore_DownloadMissing(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	_, _, err := s.Download(ctx, "doc://nope")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	_, _, err = s.Download(ctx, "s3://bucket/key")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewInMemoryStore().Upload(ctx, "k", []byte("x"), "text/plain")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFSStore_WritesUnderDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFSStore(dir)
	require.NoError(t, err)

	ref, err := s.Upload(ctx, "entity-2/doc.txt", []byte("Acme B.V."), "text/plain")
	require.NoError(t, err)

	onDisk, err := os.ReadFile(filepath.Join(dir, "entity-2", "doc.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Acme B.V.", string(onDisk))

	content, mimeType, err := s.Download(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "Acme B.V.", string(content))
	assert.Equal(t, "text/plain", mimeType)
}
