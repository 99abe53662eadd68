//go:build tesseract

package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractExtractor runs the local Tesseract engine through gosseract.
// A new engine is created per call since gosseract clients are not safe
// for concurrent use.
type TesseractExtractor struct {
	language string
}

var _ Extractor = (*TesseractExtractor)(nil)

func NewTesseractExtractor(language string) (Extractor, error) {
	return &TesseractExtractor{language: tesseractLanguage(language)}, nil
}

func (t *TesseractExtractor) Extract(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.language); err != nil {
		return nil, fmt.Errorf("failed to set language %q: %w", t.language, err)
	}
	if err := client.SetImage(path); err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("tesseract failed: %w", err)
	}

	fragments := make([]string, 0, len(boxes))
	for _, box := range boxes {
		if word := strings.TrimSpace(box.Word); word != "" {
			fragments = append(fragments, word)
		}
	}
	return fragments, nil
}
