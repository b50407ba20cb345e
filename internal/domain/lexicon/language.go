package lexicon

import (
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"

	"github.com/ressKim-io/trilingual-sentiment/internal/domain/entity"
)

var detectOptions = whatlanggo.Options{
	Whitelist: map[whatlanggo.Lang]bool{
		whatlanggo.Eng: true,
		whatlanggo.Fra: true,
		whatlanggo.Arb: true,
	},
}

// DetectLanguage guesses which supported language text is written in.
// Arabic script is always Arabic. Latin text is only routed away from
// English when the detector is confident, which short inputs rarely are.
func DetectLanguage(text string) entity.Language {
	if strings.TrimSpace(text) == "" {
		return entity.DefaultLanguage
	}
	if whatlanggo.DetectScript(text) == unicode.Arabic {
		return entity.LanguageArabic
	}

	info := whatlanggo.DetectWithOptions(text, detectOptions)
	if !info.IsReliable() {
		return entity.DefaultLanguage
	}
	return entity.ParseLanguage(info.Lang.Iso6391())
}

// ResolveLanguage returns the hinted language, or a detected one when the hint
// is empty or "auto"
func ResolveLanguage(text, hint string) entity.Language {
	switch strings.TrimSpace(entity.Fold(hint)) {
	case "", "auto":
		return DetectLanguage(text)
	default:
		return entity.ParseLanguage(strings.TrimSpace(hint))
	}
}
