package parsing

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// plainTextParser splits on blank lines into paragraph Elements. No
// headings, no pages: plain text carries no structure to recover.
type plainTextParser struct{}

func (plainTextParser) Parse(data []byte, _ string) ([]Element, error) {
	text := strings.ToValidUTF8(string(data), "")
	paragraphs := splitParagraphs(text)
	elems := make([]Element, 0, len(paragraphs))
	for _, p := range paragraphs {
		elems = append(elems, Element{Kind: Paragraph, Text: p})
	}
	return elems, nil
}

func splitParagraphs(text string) []string {
	normalized := strings.ReplaceAll(strings.ReplaceAll(text, "\r\n", "\n"), "\r", "\n")
	raw := regexp.MustCompile(`\n\s*\n+`).Split(normalized, -1)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

var headingRe = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)

// markdownParser recognizes ATX headings (# ... ######), pipe tables,
// fenced code blocks, and plain paragraphs. Table Elements carry
// canonicalized markdown with the first row as header, per spec §4.3.
type markdownParser struct{}

func (markdownParser) Parse(data []byte, _ string) ([]Element, error) {
	text := strings.ToValidUTF8(string(data), "")
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var elems []Element
	var para []string
	var fence []string
	inFence := false

	flushPara := func() {
		if joined := strings.TrimSpace(strings.Join(para, "\n")); joined != "" {
			elems = append(elems, Element{Kind: Paragraph, Text: joined})
		}
		para = nil
	}

	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if inFence {
			if strings.HasPrefix(trimmed, "```") {
				elems = append(elems, Element{Kind: Code, Text: strings.Join(fence, "\n")})
				fence = nil
				inFence = false
			} else {
				fence = append(fence, line)
			}
			i++
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "```"):
			flushPara()
			inFence = true
		case headingRe.MatchString(trimmed):
			flushPara()
			m := headingRe.FindStringSubmatch(trimmed)
			level := len(m[1])
			elems = append(elems, Element{Kind: Heading, Level: &level, Text: strings.TrimSpace(m[2])})
		case strings.HasPrefix(trimmed, "|") && i+1 < len(lines) && isTableSeparator(lines[i+1]):
			flushPara()
			tableLines := []string{line}
			j := i + 1
			for j < len(lines) && strings.TrimSpace(lines[j]) != "" {
				tableLines = append(tableLines, lines[j])
				j++
			}
			elems = append(elems, buildTableElement(tableLines))
			i = j
			continue
		case strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") || strings.HasPrefix(trimmed, "+ "):
			flushPara()
			elems = append(elems, Element{Kind: ListItem, Text: strings.TrimSpace(trimmed[2:])})
		case trimmed == "":
			flushPara()
		default:
			para = append(para, line)
		}
		i++
	}
	flushPara()
	if inFence && len(fence) > 0 {
		elems = append(elems, Element{Kind: Code, Text: strings.Join(fence, "\n")})
	}
	return elems, nil
}

func isTableSeparator(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "|") {
		return false
	}
	return regexp.MustCompile(`^[\|\s:\-]+$`).MatchString(trimmed)
}

func buildTableElement(lines []string) Element {
	// lines[0] = header, lines[1] = separator, lines[2:] = rows.
	rows := make([][]string, 0, len(lines))
	for idx, line := range lines {
		if idx == 1 {
			continue // drop the --- separator row, it carries no data
		}
		cells := strings.Split(strings.Trim(strings.TrimSpace(line), "|"), "|")
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}
		rows = append(rows, cells)
	}
	md := canonicalTableMarkdown(rows)
	return Element{Kind: Table, Text: md, TableMarkdown: md}
}

func canonicalTableMarkdown(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	var b strings.Builder
	header := rows[0]
	b.WriteString("| " + strings.Join(header, " | ") + " |\n")
	sep := make([]string, len(header))
	for i := range sep {
		sep[i] = "---"
	}
	b.WriteString("| " + strings.Join(sep, " | ") + " |\n")
	for _, row := range rows[1:] {
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// htmlParser walks the DOM for headings (h1-h6), paragraphs, list
// items, and tables.
type htmlParser struct{}

func (htmlParser) Parse(data []byte, _ string) ([]Element, error) {
	doc, err := html.Parse(strings.NewReader(strings.ToValidUTF8(string(data), "")))
	if err != nil {
		return nil, err
	}
	var elems []Element
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "h1", "h2", "h3", "h4", "h5", "h6":
				level := int(n.Data[1] - '0')
				if text := strings.TrimSpace(textContent(n)); text != "" {
					elems = append(elems, Element{Kind: Heading, Level: &level, Text: text})
				}
				return
			case "p":
				if text := strings.TrimSpace(textContent(n)); text != "" {
					elems = append(elems, Element{Kind: Paragraph, Text: text})
				}
				return
			case "li":
				if text := strings.TrimSpace(textContent(n)); text != "" {
					elems = append(elems, Element{Kind: ListItem, Text: text})
				}
				return
			case "pre", "code":
				if text := strings.TrimSpace(textContent(n)); text != "" {
					elems = append(elems, Element{Kind: Code, Text: text})
				}
				return
			case "table":
				elems = append(elems, buildHTMLTableElement(n))
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return elems, nil
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func buildHTMLTableElement(table *html.Node) Element {
	var rows [][]string
	var walkRows func(*html.Node)
	walkRows = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			var row []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					row = append(row, textContent(c))
				}
			}
			if len(row) > 0 {
				rows = append(rows, row)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walkRows(c)
		}
	}
	walkRows(table)
	md := canonicalTableMarkdown(rows)
	return Element{Kind: Table, Text: md, TableMarkdown: md}
}

// delimitedParser turns a CSV/TSV file into a single Table Element,
// per spec §4.3's "Tables MUST be emitted as single Elements ...
// (first row = header)"; oversize tables are left unsplit here, to be
// partitioned by the chunker (spec §4.3, §4.4).
type delimitedParser struct {
	delimiter rune
}

func (p delimitedParser) Parse(data []byte, _ string) ([]Element, error) {
	text := strings.ToValidUTF8(string(data), "")
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	var rows [][]string
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, strings.Split(line, string(p.delimiter)))
	}
	if len(rows) == 0 {
		return nil, nil
	}
	md := canonicalTableMarkdown(rows)
	return []Element{{Kind: Table, Text: md, TableMarkdown: md}}, nil
}
