package entity

import (
	"golang.org/x/text/cases"
)

// Label is one of the three canonical sentiment classes
type Label string

const (
	LabelNegative Label = "negative"
	LabelNeutral  Label = "neutral"
	LabelPositive Label = "positive"
)

// Labels lists the canonical labels in presentation order
var Labels = []Label{LabelNegative, LabelNeutral, LabelPositive}

// Fold applies Unicode case folding. A Caser keeps state, so one is made per call.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// ParseLabel accepts only the canonical label names, ignoring case
func ParseLabel(s string) (Label, bool) {
	switch Label(Fold(s)) {
	case LabelNegative:
		return LabelNegative, true
	case LabelNeutral:
		return LabelNeutral, true
	case LabelPositive:
		return LabelPositive, true
	}
	return "", false
}

// Language is a supported input language
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageArabic  Language = "ar"
	LanguageFrench  Language = "fr"
)

// DefaultLanguage is used for unknown language hints
const DefaultLanguage = LanguageEnglish

// ParseLanguage maps a language hint to a supported language.
// Unknown hints fall back to English.
func ParseLanguage(s string) Language {
	switch Language(Fold(s)) {
	case LanguageArabic:
		return LanguageArabic
	case LanguageFrench:
		return LanguageFrench
	default:
		return DefaultLanguage
	}
}

// Mode tells which path produced a prediction
type Mode string

const (
	ModeModel   Mode = "model"
	ModeLexicon Mode = "lexicon"
	ModeEmpty   Mode = "empty"
)

// Prediction is a single label with its confidence in [0,1]
type Prediction struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
}

// NeutralEmpty is returned for blank input
var NeutralEmpty = Prediction{Label: LabelNeutral, Confidence: 0}

// Distribution holds a confidence for every canonical label
type Distribution struct {
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
	Positive float64 `json:"positive"`
}

// OneHot builds a distribution where only the given label is populated
func OneHot(p Prediction) Distribution {
	var d Distribution
	d.Add(p.Label, p.Confidence)
	return d
}

// Get returns the confidence for a label
func (d Distribution) Get(label Label) float64 {
	switch label {
	case LabelNegative:
		return d.Negative
	case LabelPositive:
		return d.Positive
	default:
		return d.Neutral
	}
}

// Add accumulates score into the given label
func (d *Distribution) Add(label Label, score float64) {
	switch label {
	case LabelNegative:
		d.Negative += score
	case LabelPositive:
		d.Positive += score
	default:
		d.Neutral += score
	}
}

// Best returns the highest scoring label. Ties keep the first label in Labels order.
func (d Distribution) Best() Prediction {
	best := Prediction{Label: Labels[0], Confidence: d.Get(Labels[0])}
	for _, l := range Labels[1:] {
		if s := d.Get(l); s > best.Confidence {
			best = Prediction{Label: l, Confidence: s}
		}
	}
	return best
}

// Map returns the distribution keyed by label name, for JSON dumps
func (d Distribution) Map() map[string]float64 {
	return map[string]float64{
		string(LabelNegative): d.Negative,
		string(LabelNeutral):  d.Neutral,
		string(LabelPositive): d.Positive,
	}
}
