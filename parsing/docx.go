package parsing

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"ragbackend/ragerrors"
)

// docxParser extracts paragraph text from
// application/vnd.openxmlformats-officedocument.wordprocessingml.document
// by walking word/document.xml inside the zip container. OOXML carries
// no page-boundary information (pagination is a rendering concern, not
// part of the document model), so docx Elements carry no Page.
type docxParser struct{}

type docxDocument struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
	} `xml:"body"`
}

type docxParagraph struct {
	Runs []docxRun `xml:"r"`
}

type docxRun struct {
	Text []docxText `xml:"t"`
}

type docxText struct {
	Content string `xml:",chardata"`
}

func (docxParser) Parse(data []byte, _ string) ([]Element, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.ParseFailed, "docx: not a valid zip archive", err)
	}

	content, err := readZipEntry(reader, "word/document.xml")
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.ParseFailed, "docx: missing word/document.xml", err)
	}

	var doc docxDocument
	if err := xml.Unmarshal(content, &doc); err != nil {
		return nil, ragerrors.Wrap(ragerrors.ParseFailed, "docx: malformed document.xml", err)
	}

	var elems []Element
	for _, para := range doc.Body.Paragraphs {
		if text := strings.TrimSpace(paragraphText(para)); text != "" {
			elems = append(elems, Element{Kind: Paragraph, Text: text})
		}
	}
	return elems, nil
}

func paragraphText(para docxParagraph) string {
	var b strings.Builder
	for _, run := range para.Runs {
		for _, t := range run.Text {
			b.WriteString(t.Content)
		}
	}
	return b.String()
}

func readZipEntry(reader *zip.Reader, name string) ([]byte, error) {
	f, err := reader.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
