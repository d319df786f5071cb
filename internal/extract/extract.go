// Package extract converts downloaded PDF forms into structured data using
// layered extraction strategies: the embedded text layer first, then the
// pdftotext tool, then OCR.
package extract

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/talentops/bgvsync/internal/config"
	"github.com/talentops/bgvsync/internal/model"
)

// ErrExtraction marks a form whose text could not be extracted by any
// stage. It is recorded per candidate, never fatal to a run.
var ErrExtraction = eris.New("extract: extraction failed")

// FormFileName is the structured output written beside each PIF PDF.
const FormFileName = "pif.json"

// maxRawChars caps the raw text kept per form so a scanned appendix cannot
// bloat the output JSON.
const maxRawChars = 100000

// Extractor extracts text content from PDF files.
type Extractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// Stage is one named extraction strategy in the cascade.
type Stage struct {
	Name string
	Extractor
}

// Cascade tries its stages in order and keeps the first non-empty text.
type Cascade struct {
	stages []Stage
	log    *zap.Logger
}

// NewCascade builds the production cascade from config. The OCR stage is
// only present when a Mistral key is configured.
func NewCascade(cfg config.ExtractConfig) *Cascade {
	stages := []Stage{
		{Name: "text_layer", Extractor: PdfLib{}},
		{Name: "pdftotext", Extractor: NewPdfToText(cfg.PdfToTextPath)},
	}
	if cfg.MistralKey != "" {
		stages = append(stages, Stage{
			Name:      "mistral_ocr",
			Extractor: NewMistralOCR(cfg.MistralKey, cfg.MistralModel),
		})
	}
	return newCascade(stages)
}

func newCascade(stages []Stage) *Cascade {
	return &Cascade{
		stages: stages,
		log:    zap.L().With(zap.String("component", "extract")),
	}
}

// ExtractText walks the cascade and returns the first stage's non-empty
// text.
func (c *Cascade) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	var lastErr error
	for _, st := range c.stages {
		text, err := st.ExtractText(ctx, pdfPath)
		if err != nil {
			lastErr = err
			c.log.Debug("extraction stage failed",
				zap.String("stage", st.Name),
				zap.String("pdf", pdfPath),
				zap.Error(err))
			continue
		}
		if strings.TrimSpace(text) == "" {
			c.log.Debug("extraction stage produced no text",
				zap.String("stage", st.Name),
				zap.String("pdf", pdfPath))
			continue
		}
		c.log.Info("text extracted",
			zap.String("stage", st.Name),
			zap.Int("chars", len(text)))
		return text, nil
	}
	if lastErr != nil {
		return "", eris.Wrapf(ErrExtraction, "%s: %v", pdfPath, lastErr)
	}
	return "", eris.Wrapf(ErrExtraction, "%s: no stage produced text", pdfPath)
}

// ParseForm extracts a PDF's text and parses the PIF fields out of it. A
// form where every field comes back empty still parses; the caller decides
// what to do with an unextracted form.
func (c *Cascade) ParseForm(ctx context.Context, pdfPath string) (*model.FormData, error) {
	text, err := c.ExtractText(ctx, pdfPath)
	if err != nil {
		return nil, err
	}
	text = truncate(text, maxRawChars)
	return &model.FormData{
		RawText: text,
		Parsed:  ParseFields(text),
	}, nil
}

// WriteForm persists the parsed form beside its source PDF and returns the
// output path.
func WriteForm(pdfPath string, fd *model.FormData) (string, error) {
	path := filepath.Join(filepath.Dir(pdfPath), FormFileName)
	data, err := json.MarshalIndent(fd, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "extract: marshal form data")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "extract: write %s", path)
	}
	return path, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
