package extraction

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"

	dErrors "kyb/pkg/domain-errors"
	pstrings "kyb/pkg/platform/strings"
)

// pdfText returns the text layer of a PDF. A scanned filing without a text
// layer is an extraction failure.
func pdfText(content []byte) (text string, err error) {
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if p := recover(); p != nil {
			text, err = "", dErrors.New(dErrors.CodeExtraction, fmt.Sprintf("pdf is malformed: %v", p))
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeExtraction, "pdf could not be opened")
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeExtraction, "pdf text could not be read")
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeExtraction, "pdf text could not be read")
	}
	text = pstrings.CollapseSpace(string(raw))
	if text == "" {
		return "", dErrors.New(dErrors.CodeExtraction, "pdf has no text layer")
	}
	return text, nil
}
