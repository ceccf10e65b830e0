package chunk

import (
	"regexp"
	"strings"
)

var (
	paragraphSeparator = regexp.MustCompile(`\n\s*\n`)
	markdownHeading    = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

	definitionPatterns = []*regexp.Regexp{
		// JS/TS
		regexp.MustCompile(`^(?:export\s+)?(?:async\s+)?(?:function|class|interface|type|enum|const|let|var)\s+`),
		// Python
		regexp.MustCompile(`^(?:def|class|async def)\s+`),
		// Rust
		regexp.MustCompile(`^(?:pub\s+)?(?:fn|struct|impl|enum|trait)\s+`),
		// Java/C#
		regexp.MustCompile(`^(?:public|private|protected)?\s*(?:static\s+)?(?:class|void|int|string|boolean|function)\s+`),
	}
)

// codeSegmentMin is the number of characters a code segment must
// accumulate before a blank line ends it.
const codeSegmentMin = 200

// SplitParagraphs splits text on blank lines. Paragraphs are trimmed and
// empty ones removed.
func SplitParagraphs(text string) []string {
	return nonEmpty(trimAll(paragraphSeparator.Split(text, -1)))
}

func byParagraph(text string, chunkSize, overlap int) []string {
	paragraphs := SplitParagraphs(text)
	if len(paragraphs) <= 1 {
		return byCharacter(text, chunkSize, overlap)
	}
	return pack(paragraphs, chunkSize, overlap)
}

// pack joins units with blank lines while they fit; a unit larger than
// chunkSize is split by character on its own.
func pack(units []string, chunkSize, overlap int) []string {
	var chunks []string
	current := ""

	for _, unit := range units {
		if length(unit) > chunkSize {
			if strings.TrimSpace(current) != "" {
				chunks = append(chunks, strings.TrimSpace(current))
			}
			current = ""
			chunks = append(chunks, byCharacter(unit, chunkSize, overlap)...)
			continue
		}

		candidate := joinNonEmpty(current, "\n\n", unit)
		if length(candidate) <= chunkSize {
			current = candidate
			continue
		}
		if strings.TrimSpace(current) != "" {
			chunks = append(chunks, strings.TrimSpace(current))
		}
		current = unit
	}

	if strings.TrimSpace(current) != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}
	return nonEmpty(chunks)
}

type section struct {
	heading string
	content string
}

func byMarkdown(text string, chunkSize, overlap int) []string {
	matches := markdownHeading.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return byParagraph(text, chunkSize, overlap)
	}

	var sections []section
	last := 0
	for _, m := range matches {
		if last < m[0] {
			if len(sections) > 0 {
				sections[len(sections)-1].content += text[last:m[0]]
			} else if preamble := strings.TrimSpace(text[last:m[0]]); preamble != "" {
				sections = append(sections, section{content: preamble})
			}
		}
		sections = append(sections, section{heading: text[m[0]:m[1]]})
		last = m[1]
	}
	sections[len(sections)-1].content += text[last:]

	var chunks []string
	current := ""
	for _, s := range sections {
		body := strings.TrimSpace(s.heading + "\n" + s.content)
		if body == "" {
			continue
		}

		if length(body) > chunkSize {
			if strings.TrimSpace(current) != "" {
				chunks = append(chunks, strings.TrimSpace(current))
			}
			current = ""
			prefix := ""
			if s.heading != "" {
				prefix = s.heading + "\n"
			}
			for _, sub := range byCharacter(strings.TrimSpace(s.content), chunkSize-length(prefix), overlap) {
				chunks = append(chunks, strings.TrimSpace(prefix+sub))
			}
			continue
		}

		candidate := joinNonEmpty(current, "\n\n", body)
		if length(candidate) <= chunkSize {
			current = candidate
			continue
		}
		if strings.TrimSpace(current) != "" {
			chunks = append(chunks, strings.TrimSpace(current))
		}
		current = body
	}

	if strings.TrimSpace(current) != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}
	return nonEmpty(chunks)
}

func byCode(text string, chunkSize, overlap int) []string {
	var segments []string
	var current strings.Builder

	flush := func() {
		if seg := strings.TrimSpace(current.String()); seg != "" {
			segments = append(segments, seg)
		}
		current.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		trimmedLen := length(strings.TrimSpace(current.String()))
		switch {
		case isDefinitionStart(line) && trimmedLen > 0:
			flush()
			current.WriteString(line + "\n")
		case strings.TrimSpace(line) == "" && trimmedLen > codeSegmentMin:
			flush()
		default:
			current.WriteString(line + "\n")
		}
	}
	flush()

	if len(segments) <= 1 {
		return byCharacter(text, chunkSize, overlap)
	}
	return pack(segments, chunkSize, overlap)
}

func isDefinitionStart(line string) bool {
	for _, p := range definitionPatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}
