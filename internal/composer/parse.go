package composer

import (
	"regexp"
	"strings"

	"github.com/book-expert/podcast-service/internal/core"
)

const (
	codeFence           = "```"
	episodeHeaderPrefix = "# "
	sectionHeaderPrefix = "## "
	introductionTitle   = "INTRODUCTION"
	speakerLineRegex    = `^\**([A-Za-z][A-Za-z ]{0,30}?)\**:\s*(.+)$`
)

var speakerLinePattern = regexp.MustCompile(speakerLineRegex)

// ParseScript converts speaker-tagged text into a Script titled title.
//
// "## " lines open a section, "NAME: text" lines add a segment and any other
// non-header line continues the previous segment. Dialogue before the first
// section header lands in an introduction section. Sections without
// segments are dropped.
func ParseScript(raw, title string) *core.Script {
	script := &core.Script{Title: title, Sections: nil}
	current := core.Section{Title: "", Segments: nil}

	flush := func() {
		if len(current.Segments) == 0 {
			return
		}

		if current.Title == "" {
			current.Title = introductionTitle
		}

		script.Sections = append(script.Sections, current)
	}

	for line := range strings.SplitSeq(unfence(raw), "\n") {
		line = strings.TrimSpace(line)

		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, sectionHeaderPrefix):
			flush()

			current = core.Section{Title: strings.TrimSpace(strings.TrimPrefix(line, sectionHeaderPrefix)), Segments: nil}
		case strings.HasPrefix(line, episodeHeaderPrefix), strings.HasPrefix(line, "#"):
			continue
		default:
			appendLine(&current, line)
		}
	}

	flush()

	return script
}

func appendLine(section *core.Section, line string) {
	if match := speakerLinePattern.FindStringSubmatch(line); match != nil && isSpeakerTag(match[1]) {
		section.Segments = append(section.Segments, core.Segment{
			Speaker: core.NormalizeSpeaker(match[1]),
			Text:    strings.TrimSpace(match[2]),
		})

		return
	}

	if last := len(section.Segments) - 1; last >= 0 {
		section.Segments[last].Text += " " + line
	}
}

// isSpeakerTag accepts upper-case tags and the host names in any case.
func isSpeakerTag(tag string) bool {
	if tag == strings.ToUpper(tag) {
		return true
	}

	for _, host := range hosts {
		if strings.EqualFold(host.Name, tag) {
			return true
		}
	}

	return false
}

// unfence returns the body of the first fenced block when the reply wraps
// the script in one.
func unfence(raw string) string {
	parts := strings.Split(raw, codeFence)
	if len(parts) < 3 {
		return raw
	}

	body := parts[1]

	firstLine, rest, found := strings.Cut(body, "\n")
	if found {
		switch strings.ToLower(strings.TrimSpace(firstLine)) {
		case "markdown", "md", "text":
			return rest
		}
	}

	return body
}
