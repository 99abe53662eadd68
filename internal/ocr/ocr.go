// Package ocr extracts text fragments from question images.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/quickhelp/quickhelp/internal/config"
	"github.com/quickhelp/quickhelp/internal/llm"
)

var (
	ErrTesseractUnavailable = errors.New("ocr: binary built without tesseract support")
	ErrUnknownProvider      = errors.New("ocr: unknown provider")
)

// Extractor returns the text fragments found in the image at path, in
// reading order.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]string, error)
}

// New builds the extractor selected by cfg.OCRProvider. vision is only
// used by the vision extractor and may be nil otherwise.
func New(cfg *config.Config, vision llm.Provider) (Extractor, error) {
	switch cfg.OCRProvider {
	case config.OCRProviderVision, "":
		if vision == nil {
			return nil, fmt.Errorf("vision extractor needs a model provider")
		}
		return NewVisionExtractor(vision, cfg.OCRLanguage, cfg.LLMTimeout), nil
	case config.OCRProviderTesseract:
		return NewTesseractExtractor(cfg.OCRLanguage)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.OCRProvider)
	}
}

// Join concatenates fragments with single spaces, skipping blank ones.
func Join(fragments []string) string {
	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}

// splitLines turns a transcription into one fragment per non-empty line.
func splitLines(text string) []string {
	var fragments []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			fragments = append(fragments, line)
		}
	}
	return fragments
}
