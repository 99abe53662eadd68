//go:build !tesseract

package ocr

// NewTesseractExtractor reports ErrTesseractUnavailable; build with
// -tags tesseract to link libtesseract.
func NewTesseractExtractor(language string) (Extractor, error) {
	return nil, ErrTesseractUnavailable
}
