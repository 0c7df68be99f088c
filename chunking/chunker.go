// Package chunking is the Chunker (C4): groups Parser Elements into
// size-bounded, overlap-respecting Chunks with header breadcrumbs.
// Grounded on knowledge/chunking.go's char-window chunker (boundary
// search, estimateTokenCount), generalized from a flat character window
// over raw content to an Element-aware chunker that tracks header_path
// and partitions tables into row groups, per original_source's
// MarkdownHeaderSplitter (header stack) and pipeline.py (table row
// grouping target).
package chunking

import (
	"strings"

	"ragbackend/parsing"
)

// Chunk is the Chunker's output, pre-persistence (metadata.Chunk is the
// persisted row; this is the pure value the chunker computes from
// Elements).
type Chunk struct {
	Ordinal    int
	Page       *int
	TokenCount int
	Text       string
	HeaderPath []string
	IsTable    bool
}

// Config bounds chunk size per spec §4.4's defaults.
type Config struct {
	MinTokens        int
	MaxTokens        int
	OverlapTokens    int
	HeaderBreakLevel int
	TableMinRows     int
	TableMaxRows     int
	TableTargetRows  int // default target within [TableMinRows, TableMaxRows], grounded on original_source's pipeline.py (40)
}

// DefaultConfig matches spec §4.4's stated defaults.
func DefaultConfig() Config {
	return Config{
		MinTokens:        350,
		MaxTokens:        700,
		OverlapTokens:    105, // 15% of 700
		HeaderBreakLevel: 2,
		TableMinRows:     20,
		TableMaxRows:     60,
		TableTargetRows:  40,
	}
}

// headerStack tracks ancestor headings the way
// MarkdownHeaderSplitter.split_by_headers does: pop down to the new
// heading's level before pushing it.
type headerStack struct {
	levels []int
	texts  []string
}

func (h *headerStack) push(level int, text string) {
	for len(h.levels) > 0 && h.levels[len(h.levels)-1] >= level {
		h.levels = h.levels[:len(h.levels)-1]
		h.texts = h.texts[:len(h.texts)-1]
	}
	h.levels = append(h.levels, level)
	h.texts = append(h.texts, text)
}

func (h *headerStack) path() []string {
	return append([]string(nil), h.texts...)
}

// Split groups elems into Chunks. Pure and deterministic given elems +
// cfg (spec §4.4: "Chunker is pure and deterministic given Elements +
// config").
func Split(elems []parsing.Element, cfg Config) []Chunk {
	var chunks []Chunk
	stack := &headerStack{}

	var group []parsing.Element
	groupPath := stack.path()

	flush := func() {
		if len(group) == 0 {
			return
		}
		chunks = append(chunks, packGroup(group, groupPath, cfg)...)
		group = nil
	}

	for _, el := range elems {
		switch el.Kind {
		case parsing.Heading:
			level := 6
			if el.Level != nil {
				level = *el.Level
			}
			if level <= cfg.HeaderBreakLevel {
				flush()
			}
			stack.push(level, el.Text)
			groupPath = stack.path()
			group = append(group, el)
		case parsing.Table:
			flush()
			chunks = append(chunks, splitTable(el, stack.path(), cfg)...)
			groupPath = stack.path()
		default:
			group = append(group, el)
		}
	}
	flush()

	for i := range chunks {
		chunks[i].Ordinal = i
	}
	return chunks
}

// packGroup merges consecutive non-table Elements into token-budgeted
// Chunks with overlap, the direct generalization of
// knowledge.chunker.split's char-window walk to a token-budget walk
// over Element text.
func packGroup(elems []parsing.Element, headerPath []string, cfg Config) []Chunk {
	var chunks []Chunk
	var buf []string
	var bufTokens int
	var page *int

	flush := func(force bool) {
		text := strings.TrimSpace(strings.Join(buf, "\n\n"))
		if text == "" {
			return
		}
		if bufTokens < cfg.MinTokens && !force {
			return
		}
		chunks = append(chunks, Chunk{
			Page:       page,
			TokenCount: CountTokens(text),
			Text:       text,
			HeaderPath: headerPath,
		})
		buf = nil
		bufTokens = 0
		page = nil
	}

	for _, el := range elems {
		if el.Page != nil && page == nil {
			page = el.Page
		}
		t := strings.TrimSpace(el.Text)
		if t == "" {
			continue
		}
		tokens := CountTokens(t)
		if bufTokens > 0 && bufTokens+tokens > cfg.MaxTokens {
			flush(true)
		}
		buf = append(buf, t)
		bufTokens += tokens
		if bufTokens >= cfg.MaxTokens {
			flush(true)
		}
	}
	flush(true) // final chunk of the group may fall under MinTokens (spec §3 exception)

	return addOverlap(chunks, cfg)
}

// addOverlap prepends a tail slice of the previous chunk's text to each
// chunk after the first, approximating overlap_tokens by word count
// (the chunker has no sub-chunk token index to slice by, so this walks
// words from the end of the previous chunk's text until the token
// budget for the overlap is met).
func addOverlap(chunks []Chunk, cfg Config) []Chunk {
	if cfg.OverlapTokens <= 0 || len(chunks) < 2 {
		return chunks
	}
	for i := 1; i < len(chunks); i++ {
		prevWords := strings.Fields(chunks[i-1].Text)
		tail := tailByTokenBudget(prevWords, cfg.OverlapTokens)
		if tail == "" {
			continue
		}
		chunks[i].Text = tail + "\n\n" + chunks[i].Text
		chunks[i].TokenCount = CountTokens(chunks[i].Text)
	}
	return chunks
}

func tailByTokenBudget(words []string, budget int) string {
	if len(words) == 0 {
		return ""
	}
	for start := len(words) - 1; start >= 0; start-- {
		candidate := strings.Join(words[start:], " ")
		if CountTokens(candidate) > budget {
			return strings.Join(words[start+1:], " ")
		}
	}
	return strings.Join(words, " ")
}

// splitTable partitions a table Element's rows into groups of
// [TableMinRows, TableMaxRows] (target TableTargetRows), with the
// header row repeated at the top of every group (spec §4.4).
func splitTable(el parsing.Element, headerPath []string, cfg Config) []Chunk {
	lines := strings.Split(el.TableMarkdown, "\n")
	if len(lines) < 2 {
		return []Chunk{{Page: el.Page, TokenCount: CountTokens(el.Text), Text: el.Text, HeaderPath: headerPath, IsTable: true}}
	}
	header := lines[0]
	sep := lines[1]
	rows := lines[2:]

	if len(rows) <= cfg.TableMaxRows {
		return []Chunk{{Page: el.Page, TokenCount: CountTokens(el.Text), Text: el.Text, HeaderPath: headerPath, IsTable: true}}
	}

	target := cfg.TableTargetRows
	if target <= 0 {
		target = cfg.TableMaxRows
	}
	var chunks []Chunk
	for start := 0; start < len(rows); {
		end := start + target
		if end > len(rows) {
			end = len(rows)
		}
		// Fold a remainder smaller than TableMinRows into this group when
		// the merged group still fits within TableMaxRows.
		if rem := len(rows) - end; rem > 0 && rem < cfg.TableMinRows && end-start+rem <= cfg.TableMaxRows {
			end = len(rows)
		}
		group := append([]string{header, sep}, rows[start:end]...)
		text := strings.Join(group, "\n")
		chunks = append(chunks, Chunk{
			Page:       el.Page,
			TokenCount: CountTokens(text),
			Text:       text,
			HeaderPath: headerPath,
			IsTable:    true,
		})
		start = end
	}
	return chunks
}
