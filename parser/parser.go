package parser

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// Parser turns the bytes of a file into plain text.
type Parser interface {
	Parse(ctx context.Context, data []byte, filename string) (string, error)
}

// binaryExtensions lists formats whose raw bytes are not readable text.
var binaryExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".doc":  true,
	".xlsx": true,
	".xls":  true,
	".pptx": true,
	".ppt":  true,
	".epub": true,
	".rtf":  true,
	".odt":  true,
}

// Ext returns the lower-cased extension of filename, including the dot.
func Ext(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// IsBinary reports whether filename names a binary document format that
// needs a parser before its text can be chunked.
func IsBinary(filename string) bool {
	return binaryExtensions[Ext(filename)]
}

// Registry dispatches to a Parser by file extension.
type Registry struct {
	parsers  map[string]Parser
	fallback Parser
	logger   *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// WithParser registers p for the given extensions, replacing any parser
// already registered for them.
func WithParser(p Parser, extensions ...string) Option {
	return func(r *Registry) error {
		if p == nil {
			return fmt.Errorf("nil parser for %v", extensions)
		}
		for _, ext := range extensions {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			r.parsers[strings.ToLower(ext)] = p
		}
		return nil
	}
}

// NewRegistry creates a registry with the PDF parser registered for .pdf
// and TextParser used for every non-binary extension.
func NewRegistry(opts ...Option) (*Registry, error) {
	r := &Registry{
		parsers:  make(map[string]Parser),
		fallback: &TextParser{},
		logger:   slog.Default(),
	}
	r.parsers[".pdf"] = NewPDFParser()

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "parser")
	return r, nil
}

// Supports reports whether Parse would find a parser for filename.
func (r *Registry) Supports(filename string) bool {
	ext := Ext(filename)
	if _, ok := r.parsers[ext]; ok {
		return true
	}
	return !binaryExtensions[ext]
}

// Parse extracts the text of a file using the parser registered for its
// extension.
func (r *Registry) Parse(ctx context.Context, data []byte, filename string) (string, error) {
	ext := Ext(filename)
	p, ok := r.parsers[ext]
	if !ok {
		if binaryExtensions[ext] {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
		}
		p = r.fallback
	}

	text, err := p.Parse(ctx, data, filename)
	if err != nil {
		r.logger.Warn("parse failed", "file", filename, "err", err)
		return "", err
	}
	r.logger.Debug("parsed file", "file", filename, "bytes", len(data), "chars", len(text))
	return text, nil
}
