package kerala

import (
	"fmt"
	"strings"
)

const (
	translationConfidence = 0.85
	translationService    = "Kerala EdTech Translation API"
)

type TranslateRequest struct {
	Text           string `json:"text" validate:"required,max=5000"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
}

type TranslateResponse struct {
	OriginalText       string  `json:"original_text"`
	TranslatedText     string  `json:"translated_text"`
	SourceLanguage     string  `json:"source_language"`
	TargetLanguage     string  `json:"target_language"`
	Confidence         float64 `json:"confidence"`
	TranslationService string  `json:"translation_service"`
}

// Translate is a placeholder that tags the text with the target language.
// Unknown targets return the text unchanged.
func Translate(req TranslateRequest) TranslateResponse {
	source := strings.ToLower(strings.TrimSpace(req.SourceLanguage))
	if source == "" {
		source = "english"
	}
	target := strings.ToLower(strings.TrimSpace(req.TargetLanguage))
	if target == "" {
		target = "malayalam"
	}

	translated := req.Text
	switch target {
	case "malayalam":
		translated = fmt.Sprintf("[Malayalam Translation] %s", req.Text)
	case "hindi":
		translated = fmt.Sprintf("[Hindi Translation] %s", req.Text)
	}

	return TranslateResponse{
		OriginalText:       req.Text,
		TranslatedText:     translated,
		SourceLanguage:     source,
		TargetLanguage:     target,
		Confidence:         translationConfidence,
		TranslationService: translationService,
	}
}
