// Package mermaid checks the syntax of Mermaid diagram sources.
//
// Flowcharts (graph / flowchart) are parsed statement by statement: node
// declarations with shapes, chains of links with optional labels, subgraphs,
// and styling statements. Other diagram types are recognized by their header
// only.
package mermaid

import (
	"context"
	"fmt"
	"unicode"
)

// SyntaxError describes why a diagram failed to parse.
type SyntaxError struct {
	Line    int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("Parse error on line %d: %s", e.Line, e.Message)
}

// headerOnlyDiagrams are accepted once their header is recognized.
var headerOnlyDiagrams = map[string]bool{
	"sequenceDiagram":    true,
	"classDiagram":       true,
	"classDiagram-v2":    true,
	"stateDiagram":       true,
	"stateDiagram-v2":    true,
	"erDiagram":          true,
	"gantt":              true,
	"pie":                true,
	"journey":            true,
	"gitGraph":           true,
	"mindmap":            true,
	"timeline":           true,
	"quadrantChart":      true,
	"requirementDiagram": true,
	"C4Context":          true,
	"C4Container":        true,
	"C4Component":        true,
	"C4Dynamic":          true,
	"C4Deployment":       true,
	"sankey-beta":        true,
	"xychart-beta":       true,
	"block-beta":         true,
}

var directions = map[string]bool{
	"TB": true, "TD": true, "BT": true, "RL": true, "LR": true,
	"<": true, ">": true, "^": true, "v": true,
}

// Validator checks Mermaid sources.
type Validator struct{}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate returns nil when text parses, or a *SyntaxError describing the
// first problem found.
func (v *Validator) Validate(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p := newParser(text)
	p.skipPreamble()

	kind := p.readWord()
	switch {
	case kind == "":
		return &SyntaxError{Line: p.line, Message: "No diagram type detected"}
	case kind == "graph" || kind == "flowchart":
		return p.parseFlowchart()
	case headerOnlyDiagrams[kind]:
		return nil
	default:
		return &SyntaxError{Line: p.line, Message: fmt.Sprintf("No diagram type detected matching %q", kind)}
	}
}

type parser struct {
	src   []rune
	pos   int
	line  int
	depth int
}

func newParser(text string) *parser {
	return &parser{src: []rune(text), line: 1}
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() rune {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) peekAt(off int) rune {
	if p.pos+off >= len(p.src) {
		return 0
	}
	return p.src[p.pos+off]
}

func (p *parser) advance() rune {
	r := p.src[p.pos]
	p.pos++
	if r == '\n' {
		p.line++
	}
	return r
}

func (p *parser) hasPrefix(s string) bool {
	rs := []rune(s)
	if p.pos+len(rs) > len(p.src) {
		return false
	}
	for i, r := range rs {
		if p.src[p.pos+i] != r {
			return false
		}
	}
	return true
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Line: p.line, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) skipSpaces() {
	for !p.eof() && (p.peek() == ' ' || p.peek() == '\t' || p.peek() == '\r') {
		p.advance()
	}
}

func (p *parser) atSeparator() bool {
	return p.eof() || p.peek() == ';' || p.peek() == '\n'
}

// skipToLineEnd consumes up to, not including, the next newline.
func (p *parser) skipToLineEnd() {
	for !p.eof() && p.peek() != '\n' {
		p.advance()
	}
}

// skipToSeparator consumes up to, not including, the next ';' or newline.
func (p *parser) skipToSeparator() {
	for !p.atSeparator() {
		p.advance()
	}
}

// skipBlank consumes whitespace, separators and %% comment lines.
func (p *parser) skipBlank() {
	for !p.eof() {
		switch {
		case unicode.IsSpace(p.peek()) || p.peek() == ';':
			p.advance()
		case p.hasPrefix("%%"):
			p.skipToLineEnd()
		default:
			return
		}
	}
}

// skipPreamble consumes blank lines, comments, directives and a YAML front
// matter block.
func (p *parser) skipPreamble() {
	p.skipBlank()
	if !p.hasPrefix("---") {
		return
	}
	p.skipToLineEnd()
	for !p.eof() {
		p.advance()
		p.skipSpaces()
		if p.hasPrefix("---") {
			p.skipToLineEnd()
			break
		}
		p.skipToLineEnd()
	}
	p.skipBlank()
}

// readWord reads a run of non-space, non-separator characters.
func (p *parser) readWord() string {
	start := p.pos
	for !p.eof() && !unicode.IsSpace(p.peek()) && p.peek() != ';' {
		p.advance()
	}
	return string(p.src[start:p.pos])
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (p *parser) readIdent() string {
	start := p.pos
	for !p.eof() && isIdentRune(p.peek()) {
		p.advance()
	}
	return string(p.src[start:p.pos])
}

func describe(r rune) string {
	switch r {
	case 0:
		return "end of input"
	case '\n':
		return "newline"
	default:
		return fmt.Sprintf("%q", r)
	}
}

func (p *parser) parseFlowchart() error {
	p.skipSpaces()
	if !p.atSeparator() {
		start := p.pos
		dir := p.readWord()
		if !directions[dir] {
			p.pos = start
			return p.errorf("expecting direction (TB, TD, BT, RL, LR), got %q", dir)
		}
		p.skipSpaces()
		if !p.atSeparator() {
			return p.errorf("expecting ';' or newline after direction %s, got %s", dir, describe(p.peek()))
		}
	}

	for {
		p.skipBlank()
		if p.eof() {
			break
		}
		if err := p.parseStatement(); err != nil {
			return err
		}
		p.skipSpaces()
		if !p.atSeparator() {
			return p.errorf("unexpected %s", describe(p.peek()))
		}
	}

	if p.depth > 0 {
		return p.errorf("expecting 'end' to close %d open subgraph(s)", p.depth)
	}
	return nil
}

func (p *parser) parseStatement() error {
	start := p.pos
	startLine := p.line
	word := p.readIdent()

	switch word {
	case "subgraph":
		p.depth++
		p.skipToSeparator()
		return nil
	case "end":
		if p.depth == 0 {
			return p.errorf("'end' without matching subgraph")
		}
		p.depth--
		return nil
	case "direction":
		p.skipSpaces()
		dir := p.readWord()
		if !directions[dir] {
			return p.errorf("expecting direction after 'direction', got %q", dir)
		}
		return nil
	case "classDef", "class", "style", "linkStyle", "click":
		p.skipSpaces()
		if p.atSeparator() {
			return p.errorf("expecting arguments after %q", word)
		}
		p.skipToSeparator()
		return nil
	}

	// Not a keyword: rewind and parse a chain of nodes and links.
	p.pos = start
	p.line = startLine
	return p.parseChain()
}

func (p *parser) parseChain() error {
	if err := p.parseNodeGroup(); err != nil {
		return err
	}
	for {
		p.skipSpaces()
		if p.atSeparator() {
			return nil
		}
		linked, err := p.parseLink()
		if err != nil {
			return err
		}
		if !linked {
			return p.errorf("expecting link or separator, got %s", describe(p.peek()))
		}
		p.skipSpaces()
		if err := p.parseNodeGroup(); err != nil {
			return err
		}
	}
}

// parseNodeGroup parses `node (& node)*`.
func (p *parser) parseNodeGroup() error {
	for {
		if err := p.parseNode(); err != nil {
			return err
		}
		p.skipSpaces()
		if p.peek() != '&' {
			return nil
		}
		p.advance()
		p.skipSpaces()
	}
}

var shapeClosers = map[rune]rune{'[': ']', '(': ')', '{': '}', '>': ']'}

func (p *parser) parseNode() error {
	id := p.readIdent()
	if id == "" {
		return p.errorf("expecting node id, got %s", describe(p.peek()))
	}
	if id == "end" || id == "subgraph" {
		return p.errorf("%q is a reserved word and cannot be used as a node id", id)
	}

	if closer, ok := shapeClosers[p.peek()]; ok {
		if err := p.parseShape(p.advance(), closer); err != nil {
			return err
		}
	}

	if p.hasPrefix(":::") {
		p.pos += 3
		if p.readIdent() == "" {
			return p.errorf("expecting class name after ':::'")
		}
	}
	return nil
}

// parseShape consumes a node label up to the bracket that balances opener.
func (p *parser) parseShape(opener, closer rune) error {
	startLine := p.line
	depth := 1
	for !p.eof() {
		r := p.advance()
		switch {
		case r == '"':
			for !p.eof() && p.peek() != '"' {
				p.advance()
			}
			if p.eof() {
				return &SyntaxError{Line: startLine, Message: "unterminated string in node label"}
			}
			p.advance()
		case r == opener && opener != '>':
			depth++
		case r == closer:
			depth--
			if depth == 0 {
				return nil
			}
		}
	}
	return &SyntaxError{Line: startLine, Message: fmt.Sprintf("unterminated node shape, expecting %q", closer)}
}

// parseLink consumes one link and its optional |label|. It reports false when
// the input does not start with a link.
func (p *parser) parseLink() (bool, error) {
	if p.peek() == '<' && (p.peekAt(1) == '-' || p.peekAt(1) == '=') {
		p.advance()
	}

	switch {
	case p.hasPrefix("~~~"):
		for p.peek() == '~' {
			p.advance()
		}
	case p.hasPrefix("-."):
		if err := p.parseDottedLink(); err != nil {
			return true, err
		}
	case p.hasPrefix("--"):
		if err := p.parseLineLink('-'); err != nil {
			return true, err
		}
	case p.hasPrefix("=="):
		if err := p.parseLineLink('='); err != nil {
			return true, err
		}
	default:
		return false, nil
	}

	p.skipSpaces()
	if p.peek() == '|' {
		p.advance()
		for !p.eof() && p.peek() != '|' && p.peek() != '\n' {
			p.advance()
		}
		if p.peek() != '|' {
			return true, p.errorf("unterminated link label, expecting '|'")
		}
		p.advance()
	}
	return true, nil
}

func isArrowHead(r rune) bool { return r == '>' || r == 'x' || r == 'o' }

// parseLineLink handles --> --- --x --o ==> === and the inline-text forms
// "-- text -->" and "== text ==>".
func (p *parser) parseLineLink(stroke rune) error {
	n := 0
	for p.peek() == stroke {
		p.advance()
		n++
	}
	if isArrowHead(p.peek()) && !isIdentRune(p.peekAt(1)) || p.peek() == '>' {
		p.advance()
		return nil
	}
	if n >= 3 {
		return nil
	}

	// Two strokes open an inline label that must be closed by a full link.
	open := string([]rune{stroke, stroke})
	for !p.atSeparator() {
		if p.hasPrefix(open) {
			m := 0
			for p.peek() == stroke {
				p.advance()
				m++
			}
			if isArrowHead(p.peek()) {
				p.advance()
				return nil
			}
			if m >= 3 {
				return nil
			}
			continue
		}
		p.advance()
	}
	return p.errorf("incomplete link, expecting '%s>' or '%s%c' to close %q", open, open, stroke, open)
}

// parseDottedLink handles -.-> -.- and "-. text .->".
func (p *parser) parseDottedLink() error {
	p.advance() // '-'
	for p.peek() == '.' {
		p.advance()
	}
	if p.peek() == '-' {
		p.advance()
		if isArrowHead(p.peek()) && !isIdentRune(p.peekAt(1)) || p.peek() == '>' {
			p.advance()
		}
		return nil
	}

	for !p.atSeparator() {
		if p.hasPrefix(".-") {
			p.pos += 2
			if isArrowHead(p.peek()) {
				p.advance()
			}
			return nil
		}
		p.advance()
	}
	return p.errorf("incomplete dotted link, expecting '.->' or '.-'")
}
