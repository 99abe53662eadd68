package ocr

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/quickhelp/quickhelp/internal/llm"
	"github.com/quickhelp/quickhelp/internal/logger"
)

// noTextMarker is what the model is told to answer for images without text.
const noTextMarker = "NO_TEXT"

const visionPrompt = `Transcribe all text visible in this image exactly as written, line by line.
The text is most likely in language "%s".
Do not answer, solve, translate or explain anything.
If the image contains no readable text, reply with %s only.`

// VisionExtractor asks a multimodal model to transcribe an image.
type VisionExtractor struct {
	provider llm.Provider
	language string
	timeout  time.Duration
}

var _ Extractor = (*VisionExtractor)(nil)

func NewVisionExtractor(provider llm.Provider, language string, timeout time.Duration) *VisionExtractor {
	if language == "" {
		language = "en"
	}
	return &VisionExtractor{provider: provider, language: language, timeout: timeout}
}

func (v *VisionExtractor) Extract(ctx context.Context, path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image file is empty")
	}

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	mimeType := http.DetectContentType(data)
	prompt := fmt.Sprintf(visionPrompt, v.language, noTextMarker)

	text, _, err := v.provider.CompleteWithImage(ctx, prompt, data, mimeType)
	if err != nil {
		return nil, fmt.Errorf("%s transcription failed: %w", v.provider.Name(), err)
	}

	text = strings.TrimSpace(text)
	if text == "" || text == noTextMarker {
		return nil, nil
	}

	fragments := splitLines(text)
	logger.Debug("Image transcribed", logger.Fields{
		"provider":  v.provider.Name(),
		"mime_type": mimeType,
		"fragments": len(fragments),
	})
	return fragments, nil
}
