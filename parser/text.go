package parser

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// TextParser decodes UTF-8 text. It drops a leading byte order mark,
// replaces invalid sequences with U+FFFD and normalises line endings to \n.
type TextParser struct{}

var _ Parser = (*TextParser)(nil)

// Parse implements Parser.
func (p *TextParser) Parse(ctx context.Context, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return DecodeText(data), nil
}

// DecodeText converts raw file bytes to a normalised string.
func DecodeText(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}
