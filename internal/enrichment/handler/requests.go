package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"kyb/internal/identity/models"
	dErrors "kyb/pkg/domain-errors"
)

const (
	// maxDocumentBytes bounds an uploaded filing document.
	maxDocumentBytes = 20 << 20
	// maxFormMemory is the part of a multipart body kept in memory.
	maxFormMemory = 4 << 20
)

type uploadForm struct {
	content  []byte
	mimeType string
	filename string
	method   models.VerificationMethod
}

// parseUpload reads the "file" part and the optional "method" field of a
// multipart document upload.
func parseUpload(w http.ResponseWriter, r *http.Request) (*uploadForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBytes+maxFormMemory)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, dErrors.New(dErrors.CodeValidation, "document exceeds the upload limit")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "expected a multipart form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "file is required")
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxDocumentBytes+1))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read document")
	}
	if len(content) > maxDocumentBytes {
		return nil, dErrors.New(dErrors.CodeValidation, "document exceeds the upload limit")
	}
	if len(content) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "document is empty")
	}

	method, err := parseMethod(r.FormValue("method"))
	if err != nil {
		return nil, err
	}

	return &uploadForm{
		content:  content,
		mimeType: partMimeType(header.Header.Get("Content-Type"), content),
		filename: header.Filename,
		method:   method,
	}, nil
}

// parseMethod accepts the upload methods; empty means MANUAL_UPLOAD.
func parseMethod(raw string) (models.VerificationMethod, error) {
	method := models.VerificationMethod(strings.ToUpper(strings.TrimSpace(raw)))
	switch method {
	case "":
		return models.MethodManualUpload, nil
	case models.MethodManualUpload, models.MethodApplicationUpload:
		return method, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "method must be MANUAL_UPLOAD or APPLICATION_UPLOAD")
	}
}

// partMimeType prefers the declared part type and sniffs when it is missing
// or generic.
func partMimeType(declared string, content []byte) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
			return mt
		}
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(content))
	return mt
}
