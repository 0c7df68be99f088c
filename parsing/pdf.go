package parsing

import (
	"context"
	"errors"
	"os"
	"os/exec"

	"ragbackend/ragerrors"
)

// CommandRunner abstracts shelling out to an external binary, so
// pdfParser can be exercised in tests without pdftotext installed.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// ErrPDFToolNotFound is returned when pdftotext isn't on PATH and no
// CommandRunner was injected to stand in for it.
var ErrPDFToolNotFound = errors.New("pdftotext not found on PATH")

// InstallInstructions describes how to install the poppler-utils
// package that provides pdftotext, for surfacing in error messages.
func InstallInstructions() string {
	return "install poppler-utils: `brew install poppler` (macOS) or `apt install poppler-utils` (Debian/Ubuntu)"
}

// pdfParser extracts text from application/pdf by shelling out to
// pdftotext, one Element per paragraph with Page set from pdftotext's
// form-feed page breaks (-layout preserves both).
type pdfParser struct {
	runner   CommandRunner
	injected bool
}

func newPDFParser() *pdfParser {
	return &pdfParser{runner: execRunner{}}
}

func newPDFParserWithRunner(runner CommandRunner) *pdfParser {
	return &pdfParser{runner: runner, injected: true}
}

func (p *pdfParser) checkAvailable() error {
	if p.injected {
		return nil
	}
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return ragerrors.Wrap(ragerrors.ParseFailed, InstallInstructions(), ErrPDFToolNotFound)
	}
	return nil
}

func (p *pdfParser) Parse(data []byte, _ string) ([]Element, error) {
	if err := p.checkAvailable(); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", "ragbackend-pdf-*.pdf")
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.ParseFailed, "pdf: create temp file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, ragerrors.Wrap(ragerrors.ParseFailed, "pdf: write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, ragerrors.Wrap(ragerrors.ParseFailed, "pdf: close temp file", err)
	}

	out, err := p.runner.Run(context.Background(), "pdftotext", "-layout", tmp.Name(), "-")
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.ParseFailed, "pdftotext extraction failed", err)
	}

	return pdfPagesToElements(out), nil
}

func pdfPagesToElements(out []byte) []Element {
	pages := splitFormFeed(string(out))
	var elems []Element
	for i, page := range pages {
		pageNum := i + 1
		for _, para := range splitParagraphs(page) {
			elems = append(elems, Element{Kind: Paragraph, Page: &pageNum, Text: para})
		}
	}
	return elems
}

func splitFormFeed(s string) []string {
	var pages []string
	start := 0
	for i, r := range s {
		if r == '\f' {
			pages = append(pages, s[start:i])
			start = i + len("\f")
		}
	}
	pages = append(pages, s[start:])
	return pages
}
