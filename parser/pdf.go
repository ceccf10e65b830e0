// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"
)

const defaultPDFWorkers = 4

// PDFParser extracts the plain text of every page of a PDF.
type PDFParser struct {
	maxWorkers int
}

var _ Parser = (*PDFParser)(nil)

// PDFOption configures a PDFParser.
type PDFOption func(*PDFParser)

// WithMaxWorkers bounds the number of pages extracted concurrently.
// Values below 1 are ignored.
func WithMaxWorkers(n int) PDFOption {
	return func(p *PDFParser) {
		if n > 0 {
			p.maxWorkers = n
		}
	}
}

// NewPDFParser creates a PDF parser.
func NewPDFParser(opts ...PDFOption) *PDFParser {
	p := &PDFParser{maxWorkers: defaultPDFWorkers}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse returns the text of all pages in page order, separated by blank lines.
func (p *PDFParser) Parse(ctx context.Context, data []byte, filename string) (string, error) {
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return "", fmt.Errorf("open %s: %w", filename, err)
	}

	numPages := pdfReader.NumPage()
	pages := make([]string, numPages)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxWorkers)
	for i := 1; i <= numPages; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			page := pdfReader.Page(i)
			if page.V.IsNull() {
				return nil
			}
			text, err := page.GetPlainText(nil)
			if err != nil {
				return fmt.Errorf("failed to get text from page %d: %w", i, err)
			}
			pages[i-1] = strings.TrimSpace(text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	text := strings.Join(nonEmpty(pages), "\n\n")
	if text == "" {
		return "", fmt.Errorf("%w: %s", ErrNoText, filename)
	}
	return text, nil
}

func nonEmpty(pages []string) []string {
	out := pages[:0]
	for _, page := range pages {
		if page != "" {
			out = append(out, page)
		}
	}
	return out
}
