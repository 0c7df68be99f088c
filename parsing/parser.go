// Package parsing is the Parser (C3): dispatches on MIME type to a
// format-specific strategy that turns raw bytes into an ordered stream
// of typed Elements. No teacher file parses documents; the capability-
// contract shape is grounded on
// _examples/kxddry-rag-text-search/internal/domain/interfaces.go's
// Document/Chunk contracts, behavior follows spec.md §4.3 directly, and
// the PDF/docx strategies are grounded on
// _examples/custodia-labs-sercha-cli/internal/normalisers (pdftotext via
// a CommandRunner for PDF, archive/zip+encoding/xml over
// word/document.xml for docx).
package parsing

import (
	"fmt"
	"strings"

	"ragbackend/ragerrors"
)

// ElementKind mirrors metadata.ElementKind; kept as its own type here so
// parsing has no dependency on the metadata package (the Parser is a
// pure function of bytes+mime, the caller decides how to persist it).
type ElementKind string

const (
	Heading   ElementKind = "heading"
	Paragraph ElementKind = "paragraph"
	ListItem  ElementKind = "list_item"
	Table     ElementKind = "table"
	Code      ElementKind = "code"
	Other     ElementKind = "other"
)

// Element is one typed, ordered piece of parsed content (spec §3).
type Element struct {
	Ordinal       int
	Kind          ElementKind
	Page          *int
	Level         *int
	Text          string
	TableMarkdown string
}

// Parser converts raw bytes of a given mime type into an ordered stream
// of Elements.
type Parser interface {
	Parse(data []byte, mime string) ([]Element, error)
}

// Dispatcher picks a format-specific Strategy by mime type (spec §4.3
// "Dispatch by mime to format-specific strategies").
type Dispatcher struct {
	strategies map[string]Parser
	fallback   Parser
}

// NewDispatcher builds the default strategy table: markdown, HTML,
// plain text, delimited text (CSV/TSV), PDF, and docx are all
// implemented with real extraction. Legacy binary application/msword
// (pre-2007 .doc) has no real extraction path grounded anywhere in the
// example pack — no file or file format library handles the OLE2
// compound-file format it uses — so it is deliberately left
// unregistered; httpapi's upload allowlist must stay in sync.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{strategies: map[string]Parser{}}
	md := &markdownParser{}
	d.strategies["text/markdown"] = md
	d.strategies["text/x-markdown"] = md
	d.strategies["text/html"] = &htmlParser{}
	d.strategies["text/plain"] = &plainTextParser{}
	d.strategies["text/csv"] = &delimitedParser{delimiter: ','}
	d.strategies["text/tab-separated-values"] = &delimitedParser{delimiter: '\t'}
	d.strategies["application/pdf"] = newPDFParser()
	d.strategies["application/vnd.openxmlformats-officedocument.wordprocessingml.document"] = &docxParser{}
	d.fallback = &plainTextParser{}
	return d
}

// Parse dispatches to the strategy registered for mime, falling back to
// plain text for any mime type that has no registered strategy.
func (d *Dispatcher) Parse(data []byte, mime string) ([]Element, error) {
	key := strings.ToLower(strings.TrimSpace(strings.SplitN(mime, ";", 2)[0]))
	strategy, ok := d.strategies[key]
	if !ok {
		strategy = d.fallback
	}
	elems, err := strategy.Parse(data, key)
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.ParseFailed, fmt.Sprintf("parsing: mime %q", key), err)
	}
	if len(elems) == 0 {
		return nil, ragerrors.New(ragerrors.ParseFailed, fmt.Sprintf("parsing: mime %q produced no elements", key))
	}
	for i := range elems {
		elems[i].Ordinal = i
	}
	return elems, nil
}
