package lexicon

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ressKim-io/trilingual-sentiment/internal/domain/entity"
)

func TestDetectLanguage(t *testing.T) {
	t.Run("arabic script", func(t *testing.T) {
		assert.Equal(t, entity.LanguageArabic, DetectLanguage("هذا المنتج رائع جدا وأنا سعيد به كثيرا"))
	})

	t.Run("french sentence", func(t *testing.T) {
		assert.Equal(t, entity.LanguageFrench, DetectLanguage("C'est vraiment un très mauvais film, je ne le recommande pas du tout"))
	})

	t.Run("english sentence", func(t *testing.T) {
		assert.Equal(t, entity.LanguageEnglish, DetectLanguage("I absolutely love this product and would buy it again"))
	})

	t.Run("short text defaults to english", func(t *testing.T) {
		for _, text := range []string{"so bad", "bad", "ok", "nice"} {
			assert.Equal(t, entity.LanguageEnglish, DetectLanguage(text), text)
		}
	})

	t.Run("short arabic is still arabic", func(t *testing.T) {
		assert.Equal(t, entity.LanguageArabic, DetectLanguage("سيء"))
	})

	t.Run("blank defaults to english", func(t *testing.T) {
		assert.Equal(t, entity.LanguageEnglish, DetectLanguage("  "))
	})
}

func TestResolveLanguage(t *testing.T) {
	assert.Equal(t, entity.LanguageFrench, ResolveLanguage("anything", "fr"))
	assert.Equal(t, entity.LanguageEnglish, ResolveLanguage("anything", "xx"))
	assert.Equal(t, entity.LanguageArabic, ResolveLanguage("هذا المنتج رائع جدا وأنا سعيد به كثيرا", "auto"))
	assert.Equal(t, entity.LanguageArabic, ResolveLanguage("هذا المنتج رائع جدا وأنا سعيد به كثيرا", ""))
	assert.Equal(t, entity.LanguageEnglish, ResolveLanguage("so bad", ""))
}

func TestResolveLanguage_ShortTextScoresWithEnglishLexicon(t *testing.T) {
	lang := ResolveLanguage("so bad", "")

	pred := Score("so bad", string(lang))

	assert.Equal(t, entity.LabelNegative, pred.Label)
	assert.InDelta(t, 0.6, pred.Confidence, 1e-9)
}
