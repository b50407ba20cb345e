// Package lexicon implements the rule-based sentiment scorer used when no
// learned model is available. It has no I/O and no external state: the word
// tables are built once at package initialization and only read afterwards.
package lexicon

import (
	"math"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/ressKim-io/trilingual-sentiment/internal/domain/entity"
)

const (
	baseConfidence = 0.5
	stepConfidence = 0.1
)

// wordSets holds the disjoint trigger words of one language
type wordSets struct {
	positive map[string]struct{}
	negative map[string]struct{}
}

// word characters are letters, combining marks, digits and underscore, so Arabic
// and accented French words tokenize the same way English does
var tokenPattern = regexp.MustCompile(`[\p{L}\p{M}\p{N}_]+(?:'[\p{L}\p{M}\p{N}_]+)?`)

var apostrophes = strings.NewReplacer("’", "'", "ʼ", "'")

var lexicons = map[entity.Language]wordSets{
	entity.LanguageEnglish: newWordSets(
		[]string{"good", "great", "excellent", "love", "amazing", "happy", "awesome", "wonderful", "nice", "like"},
		[]string{"bad", "terrible", "awful", "hate", "sad", "horrible", "worst", "disappoint", "poor", "angry"},
	),
	entity.LanguageArabic: newWordSets(
		[]string{"جيد", "رائع", "ممتاز", "أحب", "سعيد", "جميل", "مذهل", "لطيف"},
		[]string{"سيئ", "فظيع", "كريه", "أكره", "حزين", "مزري", "أسوأ", "مخيب", "رديء", "غاضب"},
	),
	entity.LanguageFrench: newWordSets(
		[]string{"bon", "génial", "excellent", "j'aime", "heureux", "incroyable", "agréable", "super"},
		[]string{"mauvais", "terrible", "affreux", "déteste", "triste", "horrible", "pire", "décevant", "pauvre", "fâché"},
	),
}

func newWordSets(positive, negative []string) wordSets {
	return wordSets{positive: toSet(positive), negative: toSet(negative)}
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[normalize(w)] = struct{}{}
	}
	return set
}

func normalize(text string) string {
	return entity.Fold(norm.NFC.String(apostrophes.Replace(text)))
}

// Tokens returns the distinct case-folded tokens of text in order of first appearance
func Tokens(text string) []string {
	matches := tokenPattern.FindAllString(normalize(text), -1)
	seen := make(map[string]struct{}, len(matches))
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		tokens = append(tokens, m)
	}
	return tokens
}

// Counts returns how many distinct tokens of text hit the positive and negative
// sets of the language
func Counts(text string, lang entity.Language) (pos, neg int) {
	sets, ok := lexicons[lang]
	if !ok {
		sets = lexicons[entity.DefaultLanguage]
	}
	for _, tok := range Tokens(text) {
		if _, ok := sets.positive[tok]; ok {
			pos++
		}
		if _, ok := sets.negative[tok]; ok {
			neg++
		}
	}
	return pos, neg
}

// Score classifies text with the word lists of the given language hint.
// Unknown hints use English. Blank text is neutral with zero confidence.
func Score(text, language string) entity.Prediction {
	if strings.TrimSpace(text) == "" {
		return entity.NeutralEmpty
	}

	pos, neg := Counts(text, entity.ParseLanguage(language))
	switch {
	case pos > neg:
		return entity.Prediction{Label: entity.LabelPositive, Confidence: confidence(pos - neg)}
	case neg > pos:
		return entity.Prediction{Label: entity.LabelNegative, Confidence: confidence(neg - pos)}
	default:
		return entity.Prediction{Label: entity.LabelNeutral, Confidence: baseConfidence}
	}
}

// ScoreDistribution is Score as a one-hot distribution on the winning label
func ScoreDistribution(text, language string) entity.Distribution {
	return entity.OneHot(Score(text, language))
}

func confidence(margin int) float64 {
	return math.Min(1.0, baseConfidence+stepConfidence*float64(margin))
}
