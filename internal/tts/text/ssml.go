// Package text turns raw dialogue lines into annotated SSML for speech synthesis.
//
// All patterns and lookup tables are compiled once by NewSanitizer; a
// Sanitizer is safe for concurrent use.
package text

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/book-expert/podcast-service/internal/core"
)

// Regex patterns for stripping script artifacts.
const (
	stageDirectionRegexPattern = `\[[^\]]*\]`
	parentheticalCueRegex      = `(?i)\(\s*(?:laughs?|laughing|chuckles?|sighs?|pauses?|applause|music|smiles?|clears throat|inhales?|exhales?)[^)]*\)`
	citationRegexPattern       = `\([^()]*\bet al\.[^()]*\)`
	headingRegexPattern        = `(?m)^[ \t]*#+[ \t]*`
	underscoreEmphasisPattern  = `(^|[\s(])_([^_\s][^_]*)_`
	whitespaceRegexPattern     = `\s+`
	markupTagRegexPattern      = `<[^>]*>`
)

// Regex patterns for SSML enhancement.
const (
	sentenceEndRegexPattern = `([.!?])\s+`
	commaRegexPattern       = `,\s+`
	signpostRegexPattern    = `\b(importantly|significantly|crucially|notably)\b`
	conclusionRegexPattern  = `\b(In conclusion|To summarize|Importantly|Finally)\b`
	breathRegexPattern      = `([^.!?<>]{60,}?)(\s+(?:and|but|or|because)\s+)`
	acronymRegexPattern     = `\b(arXiv|SQL|API|JSON|AI|ML|NLP|GPT|LLM|GPU|CPU)\b`
	yearRegexPattern        = `\b((?:19|20)\d{2})\b`
	decimalRegexPattern     = `\b(\d+\.\d+)\b`
)

// SSML fragments.
const (
	speakOpen  = "<speak>"
	speakClose = "</speak>"

	sentenceBreakReplacement = `${1}<break time="600ms"/> `
	commaBreakReplacement    = `,<break time="300ms"/> `
	emphasisReplacement      = `<emphasis level="moderate">${1}</emphasis>`
	conclusionReplacement    = `<break time="750ms"/>${1}`
	breathReplacement        = `${1}<break time="250ms"/>${2}`
	spellOutReplacement      = `<say-as interpret-as="spell-out">${1}</say-as>`
	yearReplacement          = `<say-as interpret-as="date" format="y">${1}</say-as>`
	decimalReplacement       = `<say-as interpret-as="decimal">${1}</say-as>`

	prosodyFormat = `<prosody rate="%s" pitch="%s">`
	prosodyClose  = "</prosody>"
)

// prosody is the per-speaker rate and pitch bias.
type prosody struct {
	Rate  string
	Pitch string
}

// speakerProsody holds the host personas. Unknown speakers get no prosody
// wrapper and fall back to the synthesizer's neutral delivery.
var speakerProsody = map[string]prosody{
	"alex":   {Rate: "105%", Pitch: "+0.5st"},
	"jordan": {Rate: "95%", Pitch: "-0.5st"},
}

// Sanitizer strips markup artifacts from script text and adds SSML prosody,
// pause and pronunciation hints.
type Sanitizer struct {
	stageDirectionPattern *regexp.Regexp
	cuePattern            *regexp.Regexp
	citationPattern       *regexp.Regexp
	headingPattern        *regexp.Regexp
	underscorePattern     *regexp.Regexp
	whitespacePattern     *regexp.Regexp
	tagPattern            *regexp.Regexp

	sentenceEndPattern *regexp.Regexp
	commaPattern       *regexp.Regexp
	signpostPattern    *regexp.Regexp
	conclusionPattern  *regexp.Regexp
	breathPattern      *regexp.Regexp
	acronymPattern     *regexp.Regexp
	yearPattern        *regexp.Regexp
	decimalPattern     *regexp.Regexp

	markdownReplacer *strings.Replacer
	quoteReplacer    *strings.Replacer
	xmlReplacer      *strings.Replacer
}

// NewSanitizer creates a Sanitizer with all patterns compiled.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		stageDirectionPattern: regexp.MustCompile(stageDirectionRegexPattern),
		cuePattern:            regexp.MustCompile(parentheticalCueRegex),
		citationPattern:       regexp.MustCompile(citationRegexPattern),
		headingPattern:        regexp.MustCompile(headingRegexPattern),
		underscorePattern:     regexp.MustCompile(underscoreEmphasisPattern),
		whitespacePattern:     regexp.MustCompile(whitespaceRegexPattern),
		tagPattern:            regexp.MustCompile(markupTagRegexPattern),
		sentenceEndPattern:    regexp.MustCompile(sentenceEndRegexPattern),
		commaPattern:          regexp.MustCompile(commaRegexPattern),
		signpostPattern:       regexp.MustCompile(signpostRegexPattern),
		conclusionPattern:     regexp.MustCompile(conclusionRegexPattern),
		breathPattern:         regexp.MustCompile(breathRegexPattern),
		acronymPattern:        regexp.MustCompile(acronymRegexPattern),
		yearPattern:           regexp.MustCompile(yearRegexPattern),
		decimalPattern:        regexp.MustCompile(decimalRegexPattern),
		markdownReplacer:      strings.NewReplacer("**", "", "__", "", "*", "", "`", ""),
		quoteReplacer: strings.NewReplacer(
			"—", ", ", "–", "-", "…", "...",
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
		xmlReplacer: strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;"),
	}
}

// Annotate returns the SSML for one segment spoken by speaker. The boolean is
// false when nothing speakable remains after stripping, in which case the
// segment must be skipped rather than synthesized as silence.
func (s *Sanitizer) Annotate(text, speaker string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if IsSSML(trimmed) {
		if strings.TrimSpace(s.tagPattern.ReplaceAllString(trimmed, "")) == "" {
			return "", false
		}

		return trimmed, true
	}

	cleaned := s.Clean(text)
	if cleaned == "" {
		return "", false
	}

	content := s.xmlReplacer.Replace(cleaned)
	content = s.insertPauses(content)
	content = s.markPronunciation(content)
	content = wrapProsody(content, speaker)

	return speakOpen + content + speakClose, true
}

// Clean removes stage directions, citations and markdown emphasis and
// collapses whitespace. The result is plain text.
func (s *Sanitizer) Clean(text string) string {
	if text == "" {
		return ""
	}

	cleaned := s.stageDirectionPattern.ReplaceAllString(text, " ")
	cleaned = s.cuePattern.ReplaceAllString(cleaned, " ")
	cleaned = s.citationPattern.ReplaceAllString(cleaned, "")
	cleaned = s.headingPattern.ReplaceAllString(cleaned, "")
	cleaned = s.markdownReplacer.Replace(cleaned)
	cleaned = s.underscorePattern.ReplaceAllString(cleaned, "${1}${2}")
	cleaned = s.quoteReplacer.Replace(cleaned)
	cleaned = s.whitespacePattern.ReplaceAllString(cleaned, " ")

	return strings.TrimSpace(cleaned)
}

// IsSSML reports whether text is already a complete SSML document.
func IsSSML(text string) bool {
	return strings.HasPrefix(text, speakOpen) && strings.HasSuffix(text, speakClose)
}

func (s *Sanitizer) insertPauses(content string) string {
	content = s.sentenceEndPattern.ReplaceAllString(content, sentenceBreakReplacement)
	content = s.commaPattern.ReplaceAllString(content, commaBreakReplacement)
	content = s.signpostPattern.ReplaceAllString(content, emphasisReplacement)
	content = s.conclusionPattern.ReplaceAllString(content, conclusionReplacement)

	return s.breathPattern.ReplaceAllString(content, breathReplacement)
}

func (s *Sanitizer) markPronunciation(content string) string {
	content = s.acronymPattern.ReplaceAllString(content, spellOutReplacement)
	content = s.yearPattern.ReplaceAllString(content, yearReplacement)

	return s.decimalPattern.ReplaceAllString(content, decimalReplacement)
}

func wrapProsody(content, speaker string) string {
	bias, ok := speakerProsody[core.NormalizeSpeaker(speaker)]
	if !ok {
		return content
	}

	return fmt.Sprintf(prosodyFormat, bias.Rate, bias.Pitch) + content + prosodyClose
}
