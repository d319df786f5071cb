package extract

import (
	"context"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
)

// PdfLib reads the embedded text layer with a pure Go parser. It is the
// cheapest stage: no subprocess, no network.
type PdfLib struct{}

// ExtractText returns the PDF's text layer. The parser panics on some
// malformed files, which is converted to an error so the cascade can move
// on.
func (PdfLib) ExtractText(ctx context.Context, pdfPath string) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = eris.Errorf("extract: pdf text layer panicked on %s: %v", pdfPath, p)
		}
	}()

	f, r, err := pdf.Open(pdfPath)
	if err != nil {
		return "", eris.Wrapf(err, "extract: open pdf %s", pdfPath)
	}
	defer f.Close() //nolint:errcheck

	body, err := r.GetPlainText()
	if err != nil {
		return "", eris.Wrapf(err, "extract: read text layer of %s", pdfPath)
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, body); err != nil {
		return "", eris.Wrapf(err, "extract: copy text layer of %s", pdfPath)
	}
	return sb.String(), nil
}
