package ocr

import "strings"

// tesseractLanguages maps two-letter codes to Tesseract traineddata names.
var tesseractLanguages = map[string]string{
	"en": "eng",
	"hi": "hin",
	"es": "spa",
	"fr": "fra",
	"de": "deu",
	"pt": "por",
	"ru": "rus",
	"zh": "chi_sim",
	"ja": "jpn",
	"ar": "ara",
}

func tesseractLanguage(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return "eng"
	}
	if name, ok := tesseractLanguages[code]; ok {
		return name
	}
	return code
}
