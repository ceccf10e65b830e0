package chunk

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/poiesic/kbase/core"
)

// Options controls how text is split.
type Options struct {
	ChunkSize         int                // Maximum chunk length in characters
	ChunkOverlap      int                // Characters carried into the next chunk
	PreserveSentences bool               // Pack whole sentences (fixed strategy only)
	Strategy          core.ChunkStrategy // Splitting strategy, fixed when empty
}

// DefaultOptions returns the options used for new collections.
func DefaultOptions() Options {
	return Options{
		ChunkSize:         core.DefaultChunkSize,
		ChunkOverlap:      core.DefaultChunkOverlap,
		PreserveSentences: true,
		Strategy:          core.ChunkStrategyFixed,
	}
}

// OptionsFor derives sentence-preserving options from a collection's
// chunking configuration.
func OptionsFor(c *core.Collection) Options {
	opts := DefaultOptions()
	if c == nil {
		return opts
	}
	if c.ChunkSize > 0 {
		opts.ChunkSize = c.ChunkSize
	}
	if c.ChunkOverlap >= 0 {
		opts.ChunkOverlap = c.ChunkOverlap
	}
	if c.ChunkStrategy != "" {
		opts.Strategy = c.ChunkStrategy
	}
	return opts
}

// Split chunks text with the fixed strategy.
func Split(text string, chunkSize, overlap int, preserveSentences bool) []string {
	return SplitWithOptions(text, Options{
		ChunkSize:         chunkSize,
		ChunkOverlap:      overlap,
		PreserveSentences: preserveSentences,
		Strategy:          core.ChunkStrategyFixed,
	})
}

// SplitWithOptions chunks text using the strategy named in opts. Unknown
// strategies are treated as fixed.
func SplitWithOptions(text string, opts Options) []string {
	if opts.ChunkSize < 1 {
		opts.ChunkSize = core.DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = 0
	}

	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return []string{}
	}
	if length(cleaned) <= opts.ChunkSize {
		return []string{cleaned}
	}

	switch opts.Strategy {
	case core.ChunkStrategyMarkdown:
		return byMarkdown(cleaned, opts.ChunkSize, opts.ChunkOverlap)
	case core.ChunkStrategyCode:
		return byCode(cleaned, opts.ChunkSize, opts.ChunkOverlap)
	case core.ChunkStrategyParagraph:
		return byParagraph(cleaned, opts.ChunkSize, opts.ChunkOverlap)
	default:
		if !opts.PreserveSentences {
			return byCharacter(cleaned, opts.ChunkSize, opts.ChunkOverlap)
		}
		return bySentence(cleaned, opts.ChunkSize, opts.ChunkOverlap)
	}
}

// bySentence greedily packs sentences, seeding each new chunk with the
// overlap taken from the chunk that was just closed.
func bySentence(text string, chunkSize, overlap int) []string {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return byCharacter(text, chunkSize, overlap)
	}

	var chunks []string
	current := ""
	overlapBuf := ""

	for _, sentence := range sentences {
		if length(sentence) > chunkSize {
			if current != "" {
				chunks = append(chunks, strings.TrimSpace(current))
			}
			sub := byCharacter(sentence, chunkSize, overlap)
			chunks = append(chunks, sub...)
			current = ""
			overlapBuf = ""
			if len(sub) > 0 {
				overlapBuf = overlapText(sub[len(sub)-1], overlap)
			}
			continue
		}

		candidate := joinNonEmpty(current, " ", sentence)
		if length(candidate) <= chunkSize {
			current = candidate
			continue
		}

		if current != "" {
			chunks = append(chunks, strings.TrimSpace(current))
			overlapBuf = overlapText(current, overlap)
		}
		current = joinNonEmpty(overlapBuf, " ", sentence)
		if length(current) > chunkSize {
			current = sentence
		}
	}

	if current != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}
	return nonEmpty(chunks)
}

// byCharacter slides a window of chunkSize characters over text with a
// stride of chunkSize-overlap, stopping once a window reaches the end.
// Windows are not trimmed; whitespace-only windows are dropped.
func byCharacter(text string, chunkSize, overlap int) []string {
	if chunkSize < 1 {
		chunkSize = 1
	}
	runes := []rune(text)
	step := max(1, chunkSize-overlap)

	chunks := []string{}
	for i := 0; i < len(runes); i += step {
		end := min(i+chunkSize, len(runes))
		window := string(runes[i:end])
		if strings.TrimSpace(window) != "" {
			chunks = append(chunks, window)
		}
		if i+chunkSize >= len(runes) {
			break
		}
	}
	return chunks
}

// overlapText returns up to size trailing characters of text, starting after
// the first sentence terminator in that window when one is found early
// enough to leave meaningful text.
func overlapText(text string, size int) string {
	if text == "" || size <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= size {
		return text
	}

	window := runes[len(runes)-size:]
	for i, r := range window {
		if isTerminator(r) {
			if i < len(window)-10 {
				return strings.TrimSpace(string(window[i+1:]))
			}
			break
		}
	}
	return string(window)
}

// SplitSentences splits text after every sentence terminator (。！？.!? or
// newline), discarding the whitespace that follows it. Sentences are trimmed
// and empty ones removed.
func SplitSentences(text string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(text); {
		r, w := utf8.DecodeRuneInString(text[i:])
		i += w
		if r != '\n' && !isTerminator(r) {
			continue
		}
		parts = append(parts, text[start:i])
		for i < len(text) {
			r, w := utf8.DecodeRuneInString(text[i:])
			if !unicode.IsSpace(r) {
				break
			}
			i += w
		}
		start = i
	}
	if start < len(text) {
		parts = append(parts, text[start:])
	}
	return nonEmpty(trimAll(parts))
}

func isTerminator(r rune) bool {
	switch r {
	case '。', '！', '？', '.', '!', '?':
		return true
	}
	return false
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}

func joinNonEmpty(head, sep, tail string) string {
	if head == "" {
		return tail
	}
	return head + sep + tail
}

func trimAll(parts []string) []string {
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func nonEmpty(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
