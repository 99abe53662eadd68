package ocr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quickhelp/quickhelp/internal/config"
	"github.com/quickhelp/quickhelp/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngHeader is enough for content sniffing to report image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type visionStub struct {
	reply    string
	err      error
	prompt   string
	image    []byte
	mimeType string
}

func (s *visionStub) Name() string { return "stub" }

func (s *visionStub) Complete(ctx context.Context, prompt string) (string, *llm.Usage, error) {
	return "", nil, errors.New("not used")
}

func (s *visionStub) CompleteWithImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, *llm.Usage, error) {
	s.prompt, s.image, s.mimeType = prompt, image, mimeType
	return s.reply, nil, s.err
}

func writeImage(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "question.png")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestVisionExtractor_Extract(t *testing.T) {
	stub := &visionStub{reply: "Solve for x:\n\n  2x + 3 = 11  \n"}
	ext := NewVisionExtractor(stub, "en", time.Second)

	fragments, err := ext.Extract(context.Background(), writeImage(t, pngHeader))
	require.NoError(t, err)

	assert.Equal(t, []string{"Solve for x:", "2x + 3 = 11"}, fragments)
	assert.Equal(t, "image/png", stub.mimeType)
	assert.Equal(t, pngHeader, stub.image)
	assert.Contains(t, stub.prompt, `"en"`)
	assert.Contains(t, stub.prompt, noTextMarker)
}

func TestVisionExtractor_NoText(t *testing.T) {
	for _, reply := range []string{"NO_TEXT", "  ", ""} {
		ext := NewVisionExtractor(&visionStub{reply: reply}, "", 0)
		fragments, err := ext.Extract(context.Background(), writeImage(t, pngHeader))
		require.NoError(t, err)
		assert.Empty(t, fragments, "reply %q", reply)
	}
}

func TestVisionExtractor_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		ext := NewVisionExtractor(&visionStub{}, "en", 0)
		_, err := ext.Extract(context.Background(), filepath.Join(t.TempDir(), "gone.png"))
		assert.Error(t, err)
	})

	t.Run("empty file", func(t *testing.T) {
		ext := NewVisionExtractor(&visionStub{}, "en", 0)
		_, err := ext.Extract(context.Background(), writeImage(t, nil))
		assert.Error(t, err)
	})

	t.Run("provider failure", func(t *testing.T) {
		cause := errors.New("quota exceeded")
		ext := NewVisionExtractor(&visionStub{err: cause}, "en", 0)
		_, err := ext.Extract(context.Background(), writeImage(t, pngHeader))
		assert.ErrorIs(t, err, cause)
	})
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "", Join(nil))
	assert.Equal(t, "a b", Join([]string{"a", "b"}))
	assert.Equal(t, "What is 2 + 2 ?", Join([]string{" What is", "", "2 + 2", " ", "? "}))
}

func TestNew(t *testing.T) {
	stub := &visionStub{}

	ext, err := New(&config.Config{OCRProvider: config.OCRProviderVision, OCRLanguage: "hi"}, stub)
	require.NoError(t, err)
	assert.IsType(t, &VisionExtractor{}, ext)

	_, err = New(&config.Config{OCRProvider: config.OCRProviderVision}, nil)
	assert.Error(t, err)

	_, err = New(&config.Config{OCRProvider: "abbyy"}, stub)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestTesseractLanguage(t *testing.T) {
	assert.Equal(t, "eng", tesseractLanguage("en"))
	assert.Equal(t, "eng", tesseractLanguage(""))
	assert.Equal(t, "hin", tesseractLanguage(" HI "))
	assert.Equal(t, "eng+hin", tesseractLanguage("eng+hin"))
}
