package verify

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/language"

	"github.com/geomind-labs/geomind/internal/model"
)

// languageRegions maps a base language to the regions where that language
// on public signage is a meaningful prior.
var languageRegions = map[string][]string{
	"ja": {"japan"},
	"zh": {"china", "taiwan", "hong kong", "macau", "singapore"},
	"ko": {"korea"},
	"th": {"thailand"},
	"ar": {"saudi arabia", "egypt", "morocco", "uae", "jordan", "qatar", "kuwait", "oman", "tunisia", "algeria"},
	"ru": {"russia", "belarus", "kazakhstan", "ukraine", "kyrgyzstan"},
	"el": {"greece", "cyprus"},
	"he": {"israel"},
	"hi": {"india", "nepal"},
	"fr": {"france", "belgium", "switzerland", "canada", "luxembourg", "monaco"},
	"de": {"germany", "austria", "switzerland", "liechtenstein"},
	"es": {"spain", "mexico", "argentina", "colombia", "chile", "peru", "ecuador", "uruguay"},
	"pt": {"portugal", "brazil", "angola", "mozambique"},
	"it": {"italy", "switzerland", "san marino"},
	"nl": {"netherlands", "belgium"},
	"tr": {"turkey", "türkiye"},
	"vi": {"vietnam"},
}

// LanguagePrior checks whether the languages seen in recognized text are
// plausible for the candidate's region.
type LanguagePrior struct{}

// NewLanguagePrior returns the language and script region-prior checker.
func NewLanguagePrior() *LanguagePrior { return &LanguagePrior{} }

func (*LanguagePrior) Name() string { return "language_prior" }

func (*LanguagePrior) Verify(_ context.Context, cand model.Candidate, clues *model.Clues) (Finding, error) {
	if clues == nil || len(clues.OCR) == 0 {
		return Finding{}, nil
	}

	region := strings.ToLower(cand.Name + " " + cand.SourceHypothesis)

	var finding Finding
	seen := map[string]bool{}
	for _, snippet := range clues.OCR {
		lang := snippetLanguage(snippet)
		if lang == "" || seen[lang] {
			continue
		}
		seen[lang] = true

		regions, known := languageRegions[lang]
		if !known {
			continue
		}

		ev := model.Evidence{
			Kind:   "language_prior",
			Value:  lang + " text visible",
			Detail: map[string]any{"language": lang},
		}
		if matchesAny(region, regions) {
			ev.Result = model.EvidencePass
			ev.Confidence = 0.8
		} else {
			ev.Result = model.EvidenceFail
			ev.Confidence = 0.3
		}
		finding.Evidence = append(finding.Evidence, ev)
	}

	if len(finding.Evidence) == 0 {
		return Finding{}, nil
	}

	var total float64
	for _, ev := range finding.Evidence {
		total += ev.Confidence
	}
	finding.Confidence = total / float64(len(finding.Evidence))
	return finding, nil
}

// snippetLanguage resolves the snippet's language, preferring the declared
// tag and falling back to script detection over the text itself.
func snippetLanguage(snippet model.OCRSnippet) string {
	if snippet.Language != "" {
		tag := language.Make(snippet.Language)
		if base, conf := tag.Base(); conf > language.No {
			return base.String()
		}
	}
	return detectScript(snippet.Text)
}

// detectScript maps the first recognizable non-Latin script in the text to
// a language key. Kana is checked before Han so Japanese text with kanji
// still resolves to Japanese.
func detectScript(text string) string {
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r):
			return "ja"
		case unicode.Is(unicode.Hangul, r):
			return "ko"
		case unicode.Is(unicode.Thai, r):
			return "th"
		case unicode.Is(unicode.Arabic, r):
			return "ar"
		case unicode.Is(unicode.Cyrillic, r):
			return "ru"
		case unicode.Is(unicode.Greek, r):
			return "el"
		case unicode.Is(unicode.Hebrew, r):
			return "he"
		case unicode.Is(unicode.Devanagari, r):
			return "hi"
		}
	}
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			return "zh"
		}
	}
	return ""
}

func matchesAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
