package kerala

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurriculumInfo(t *testing.T) {
	info, ok := CurriculumInfo("SCERT")
	require.True(t, ok)

	c := info["curriculum"].(Curriculum)
	assert.Equal(t, "SCERT Kerala", c.Name)
	assert.Contains(t, c.Languages, "Malayalam")
	assert.Len(t, c.Classes, 12)

	_, ok = CurriculumInfo("ib")
	assert.False(t, ok)

	assert.Equal(t, []string{"cbse", "icse", "scert"}, CurriculumTypes())
}

func TestPricingInfo(t *testing.T) {
	info := PricingInfo()
	assert.Equal(t, "INR", info["currency"])

	p := info["pricing"].(Pricing)
	assert.Equal(t, 299, p.StudentMonthly)
	assert.Equal(t, 19999, p.UniversityLicense)
}

func TestTranslate(t *testing.T) {
	resp := Translate(TranslateRequest{Text: "Photosynthesis"})
	assert.Equal(t, "[Malayalam Translation] Photosynthesis", resp.TranslatedText)
	assert.Equal(t, "english", resp.SourceLanguage)
	assert.Equal(t, "malayalam", resp.TargetLanguage)
	assert.Equal(t, 0.85, resp.Confidence)

	resp = Translate(TranslateRequest{Text: "Gravity", TargetLanguage: "Hindi"})
	assert.Equal(t, "[Hindi Translation] Gravity", resp.TranslatedText)

	resp = Translate(TranslateRequest{Text: "Gravity", TargetLanguage: "french"})
	assert.Equal(t, "Gravity", resp.TranslatedText)
}
