// Package documents stores uploaded filing documents. References handed out
// by Upload are opaque to callers and resolved again by Download.
package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/spf13/afero"

	dErrors "kyb/pkg/domain-errors"
	"kyb/pkg/platform/sentinel"
)

const (
	scheme      = "doc://"
	metaSuffix  = ".meta.json"
	defaultMIME = "application/octet-stream"
)

// Store is the blob storage collaborator.
type Store interface {
	Upload(ctx context.Context, key string, content []byte, mimeType string) (string, error)
	Download(ctx context.Context, ref string) ([]byte, string, error)
}

type meta struct {
	MimeType string `json:"mime_type"`
	Size     int    `json:"size"`
}

// FSStore keeps documents on an afero filesystem with a JSON sidecar that
// records the MIME type.
type FSStore struct {
	fs afero.Fs
}

// NewFSStore roots the store at dir on the host filesystem.
func NewFSStore(dir string) (*FSStore, error) {
	if err := afero.NewOsFs().MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create document dir: %w", err)
	}
	return &FSStore{fs: afero.NewBasePathFs(afero.NewOsFs(), dir)}, nil
}

// NewInMemoryStore keeps documents in process memory.
func NewInMemoryStore() *FSStore {
	return &FSStore{fs: afero.NewMemMapFs()}
}

func (s *FSStore) Upload(ctx context.Context, key string, content []byte, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if mimeType == "" {
		mimeType = defaultMIME
	}
	if err := s.fs.MkdirAll(path.Dir(clean), 0o750); err != nil {
		return "", fmt.Errorf("create document dir: %w", err)
	}
	if err := afero.WriteFile(s.fs, clean, content, 0o640); err != nil {
		return "", fmt.Errorf("write document: %w", err)
	}
	m, err := json.Marshal(meta{MimeType: mimeType, Size: len(content)})
	if err != nil {
		return "", fmt.Errorf("encode document meta: %w", err)
	}
	if err := afero.WriteFile(s.fs, clean+metaSuffix, m, 0o640); err != nil {
		return "", fmt.Errorf("write document meta: %w", err)
	}
	return scheme + clean, nil
}

func (s *FSStore) Download(ctx context.Context, ref string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	key, ok := strings.CutPrefix(ref, scheme)
	if !ok {
		return nil, "", fmt.Errorf("unknown document reference %q: %w", ref, sentinel.ErrNotFound)
	}
	clean, err := cleanKey(key)
	if err != nil {
		return nil, "", err
	}
	content, err := afero.ReadFile(s.fs, clean)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("document %s: %w", clean, sentinel.ErrNotFound)
		}
		return nil, "", fmt.Errorf("read document: %w", err)
	}
	mimeType := defaultMIME
	raw, err := afero.ReadFile(s.fs, clean+metaSuffix)
	switch {
	case err == nil:
		var m meta
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, "", fmt.Errorf("decode document meta: %w", err)
		}
		if m.MimeType != "" {
			mimeType = m.MimeType
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, "", fmt.Errorf("read document meta: %w", err)
	}
	return content, mimeType, nil
}

func cleanKey(key string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(key))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." || strings.HasSuffix(clean, metaSuffix) {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid document key")
	}
	return clean, nil
}
