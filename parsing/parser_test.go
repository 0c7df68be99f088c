package parsing

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	out []byte
	err error
}

func (f fakeRunner) Run(_ context.Context, _ string, _ ...string) ([]byte, error) {
	return f.out, f.err
}

func buildDocxBytes(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)

	var body strings.Builder
	body.WriteString(`<?xml version="1.0"?><w:document><w:body>`)
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	body.WriteString(`</w:body></w:document>`)
	_, err = w.Write([]byte(body.String()))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDispatcher_MarkdownHeadingAndParagraph(t *testing.T) {
	d := NewDispatcher()
	elems, err := d.Parse([]byte("# Title\n\nSome body text.\n"), "text/markdown")

	require.NoError(t, err)
	require.Len(t, elems, 2)
	assert.Equal(t, Heading, elems[0].Kind)
	assert.Equal(t, "Title", elems[0].Text)
	assert.Equal(t, Paragraph, elems[1].Kind)
}

func TestDispatcher_OrdinalsAssignedAcrossStrategy(t *testing.T) {
	d := NewDispatcher()
	elems, err := d.Parse([]byte("para one\n\npara two\n\npara three"), "text/plain")

	require.NoError(t, err)
	for i, e := range elems {
		assert.Equal(t, i, e.Ordinal)
	}
}

func TestDispatcher_MimeWithParametersStripped(t *testing.T) {
	d := NewDispatcher()
	elems, err := d.Parse([]byte("just text"), "text/plain; charset=utf-8")

	require.NoError(t, err)
	require.Len(t, elems, 1)
}

func TestDispatcher_UnknownMimeFallsBackToPlainText(t *testing.T) {
	d := NewDispatcher()
	elems, err := d.Parse([]byte("arbitrary content"), "application/x-unknown")

	require.NoError(t, err)
	require.Len(t, elems, 1)
	assert.Equal(t, Paragraph, elems[0].Kind)
}

func TestPDFParser_ExtractsParagraphsWithPageNumbers(t *testing.T) {
	out := []byte("Page one text.\n\fPage two text.\n")
	p := newPDFParserWithRunner(fakeRunner{out: out})

	elems, err := p.Parse([]byte("%PDF-1.4 fake bytes"), "application/pdf")
	require.NoError(t, err)
	require.Len(t, elems, 2)
	require.NotNil(t, elems[0].Page)
	assert.Equal(t, 1, *elems[0].Page)
	assert.Contains(t, elems[0].Text, "Page one")
	require.NotNil(t, elems[1].Page)
	assert.Equal(t, 2, *elems[1].Page)
	assert.Contains(t, elems[1].Text, "Page two")
}

func TestPDFParser_RunnerErrorPropagates(t *testing.T) {
	p := newPDFParserWithRunner(fakeRunner{err: errors.New("pdftotext crashed")})

	_, err := p.Parse([]byte("%PDF-1.4 fake bytes"), "application/pdf")
	require.Error(t, err)
}

func TestDocxParser_ExtractsParagraphs(t *testing.T) {
	data := buildDocxBytes(t, "First paragraph.", "Second paragraph.")
	d := docxParser{}

	elems, err := d.Parse(data, "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	require.NoError(t, err)
	require.Len(t, elems, 2)
	assert.Equal(t, "First paragraph.", elems[0].Text)
	assert.Equal(t, "Second paragraph.", elems[1].Text)
	assert.Nil(t, elems[0].Page)
}

func TestDocxParser_NotAZipFails(t *testing.T) {
	d := docxParser{}
	_, err := d.Parse([]byte("not a zip archive"), "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	require.Error(t, err)
}

func TestDispatcher_DocxMimeRoutesToRealExtraction(t *testing.T) {
	data := buildDocxBytes(t, "Hello from docx.")
	d := NewDispatcher()

	elems, err := d.Parse(data, "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	require.NoError(t, err)
	require.Len(t, elems, 1)
	assert.Equal(t, "Hello from docx.", elems[0].Text)
}

func TestDispatcher_EmptyInputFails(t *testing.T) {
	d := NewDispatcher()
	_, err := d.Parse([]byte(""), "text/plain")
	require.Error(t, err)
}

func TestMarkdownParser_TableElement(t *testing.T) {
	md := "| a | b |\n| - | - |\n| 1 | 2 |\n"
	d := NewDispatcher()
	elems, err := d.Parse([]byte(md), "text/markdown")

	require.NoError(t, err)
	require.Len(t, elems, 1)
	assert.Equal(t, Table, elems[0].Kind)
	assert.Contains(t, elems[0].TableMarkdown, "| a | b |")
}

func TestMarkdownParser_FencedCodeBlock(t *testing.T) {
	md := "```\nfmt.Println(\"hi\")\n```\n"
	d := NewDispatcher()
	elems, err := d.Parse([]byte(md), "text/markdown")

	require.NoError(t, err)
	require.Len(t, elems, 1)
	assert.Equal(t, Code, elems[0].Kind)
}

func TestHTMLParser_HeadingsAndParagraphs(t *testing.T) {
	d := NewDispatcher()
	elems, err := d.Parse([]byte("<h1>Title</h1><p>Body text</p>"), "text/html")

	require.NoError(t, err)
	require.Len(t, elems, 2)
	assert.Equal(t, Heading, elems[0].Kind)
	assert.Equal(t, Paragraph, elems[1].Kind)
}

func TestDelimitedParser_CSV(t *testing.T) {
	d := NewDispatcher()
	elems, err := d.Parse([]byte("a,b\n1,2\n3,4\n"), "text/csv")

	require.NoError(t, err)
	require.Len(t, elems, 1)
	assert.Equal(t, Table, elems[0].Kind)
}
