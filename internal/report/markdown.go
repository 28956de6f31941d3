// Package report turns AI-generated Markdown into a structured document and renders
// tracker data as CSV and PDF.
package report

import (
	"regexp"
	"strings"
)

// BlockKind identifies the kind of content block inside a section.
type BlockKind string

const (
	BlockParagraph BlockKind = "paragraph"
	BlockTable     BlockKind = "table"
	BlockList      BlockKind = "list"
)

// Table is a parsed pipe table. Every row has len(Headers) cells.
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// List is a bullet or numbered list.
type List struct {
	Ordered bool     `json:"ordered"`
	Items   []string `json:"items"`
}

// Block is one paragraph, table or list.
type Block struct {
	Kind  BlockKind `json:"kind"`
	Text  string    `json:"text,omitempty"`
	Table *Table    `json:"table,omitempty"`
	List  *List     `json:"list,omitempty"`
}

// Section groups blocks under a heading. Level is 1-6 for '#' headings and 0 for bold-line titles;
// text before the first heading lands in an untitled section.
type Section struct {
	Title  string  `json:"title,omitempty"`
	Level  int     `json:"level"`
	Blocks []Block `json:"blocks"`
}

// Document is the parsed form of an AI response.
type Document struct {
	Sections []Section `json:"sections"`
}

var (
	headingRe   = regexp.MustCompile(`^(#{1,6})\s+(.*?)(?:\s+#+)?\s*$`)
	boldTitleRe = regexp.MustCompile(`^\*\*([^*]+?)\*\*:?\s*$`)
	hruleRe     = regexp.MustCompile(`^\s*([-*_])(\s*([-*_])){2,}\s*$`)
	bulletRe    = regexp.MustCompile(`^\s*[-*+•]\s+(.*)$`)
	orderedRe   = regexp.MustCompile(`^\s*\d+[.)]\s+(.*)$`)
	separatorRe = regexp.MustCompile(`^\s*\|?\s*:?-+:?\s*(\|\s*:?-+:?\s*)*\|?\s*$`)

	boldRe   = regexp.MustCompile(`\*\*(.+?)\*\*|__(.+?)__`)
	italicRe = regexp.MustCompile(`(^|[^*\w])\*([^*\s][^*]*?)\*`)
	codeRe   = regexp.MustCompile("`([^`]*)`")
	linkRe   = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
)

// StripInline removes inline Markdown markup (bold, italics, code spans, links) for plain rendering.
func StripInline(s string) string {
	s = linkRe.ReplaceAllString(s, "$1")
	s = codeRe.ReplaceAllString(s, "$1")
	s = boldRe.ReplaceAllString(s, "$1$2")
	s = italicRe.ReplaceAllString(s, "$1$2")
	return strings.TrimSpace(s)
}

// Parse splits AI text into sections of paragraphs, tables and lists.
func Parse(text string) Document {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")

	p := &parser{}
	p.current = &Section{}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], " \t")
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			p.flush()
		case headingRe.MatchString(trimmed):
			m := headingRe.FindStringSubmatch(trimmed)
			p.startSection(StripInline(m[2]), len(m[1]))
		case hruleRe.MatchString(trimmed):
			p.flush()
		case boldTitleRe.MatchString(trimmed):
			m := boldTitleRe.FindStringSubmatch(trimmed)
			p.startSection(strings.TrimSuffix(strings.TrimSpace(m[1]), ":"), 0)
		case isTableRow(trimmed):
			p.flush()
			consumed := p.parseTable(lines[i:])
			i += consumed - 1
		case bulletRe.MatchString(line):
			p.addListItem(false, bulletRe.FindStringSubmatch(line)[1])
		case orderedRe.MatchString(line):
			p.addListItem(true, orderedRe.FindStringSubmatch(line)[1])
		default:
			if p.list != nil && (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) {
				last := len(p.list.Items) - 1
				p.list.Items[last] = strings.TrimSpace(p.list.Items[last] + " " + StripInline(trimmed))
				continue
			}
			p.closeList()
			p.para = append(p.para, StripInline(trimmed))
		}
	}
	p.startSection("", 0)
	return Document{Sections: p.sections}
}

type parser struct {
	sections []Section
	current  *Section
	para     []string
	list     *List
}

func (p *parser) flush() {
	p.closeList()
	p.closeParagraph()
}

func (p *parser) closeParagraph() {
	if len(p.para) == 0 {
		return
	}
	p.current.Blocks = append(p.current.Blocks, Block{Kind: BlockParagraph, Text: strings.Join(p.para, " ")})
	p.para = nil
}

func (p *parser) closeList() {
	if p.list == nil {
		return
	}
	p.current.Blocks = append(p.current.Blocks, Block{Kind: BlockList, List: p.list})
	p.list = nil
}

func (p *parser) addListItem(ordered bool, item string) {
	p.closeParagraph()
	if p.list != nil && p.list.Ordered != ordered {
		p.closeList()
	}
	if p.list == nil {
		p.list = &List{Ordered: ordered}
	}
	p.list.Items = append(p.list.Items, StripInline(item))
}

// startSection closes the current section (dropping it if empty) and opens a new one.
func (p *parser) startSection(title string, level int) {
	p.flush()
	if p.current.Title != "" || len(p.current.Blocks) > 0 {
		p.sections = append(p.sections, *p.current)
	}
	p.current = &Section{Title: title, Level: level}
}

// parseTable consumes a run of table rows and returns how many lines it used.
func (p *parser) parseTable(lines []string) int {
	var rows [][]string
	hasSeparator := false
	n := 0
	for n < len(lines) {
		trimmed := strings.TrimSpace(lines[n])
		if !isTableRow(trimmed) {
			break
		}
		if n == 1 && separatorRe.MatchString(trimmed) {
			hasSeparator = true
			n++
			continue
		}
		rows = append(rows, splitRow(trimmed))
		n++
	}

	if len(rows) == 1 && !hasSeparator {
		// A lone pipe line is prose, not a table.
		p.para = append(p.para, StripInline(strings.Trim(strings.TrimSpace(lines[0]), "|")))
		return n
	}

	table := &Table{Headers: rows[0]}
	width := len(table.Headers)
	for _, r := range rows[1:] {
		table.Rows = append(table.Rows, normalizeRow(r, width))
	}
	p.current.Blocks = append(p.current.Blocks, Block{Kind: BlockTable, Table: table})
	return n
}

func isTableRow(trimmed string) bool {
	return strings.HasPrefix(trimmed, "|") && strings.Count(trimmed, "|") >= 2
}

func splitRow(line string) []string {
	line = strings.ReplaceAll(line, `\|`, "\x00")
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	parts := strings.Split(line, "|")
	cells := make([]string, len(parts))
	for i, c := range parts {
		cells[i] = StripInline(strings.ReplaceAll(c, "\x00", "|"))
	}
	return cells
}

// normalizeRow pads short rows with empty cells and folds overflow into the last cell.
func normalizeRow(row []string, width int) []string {
	if len(row) == width {
		return row
	}
	out := make([]string, width)
	copy(out, row)
	if len(row) > width && width > 0 {
		out[width-1] = strings.Join(row[width-1:], " | ")
	}
	return out
}
