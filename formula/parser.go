package formula

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokString
	tokIdent
	tokCell
	tokOp
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) && (l.input[l.pos] == ' ' || l.input[l.pos] == '\t') {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.input[l.pos]

	switch {
	case c >= '0' && c <= '9' || c == '.':
		for l.pos < len(l.input) && (l.input[l.pos] >= '0' && l.input[l.pos] <= '9' || l.input[l.pos] == '.') {
			l.pos++
		}
		return token{kind: tokNumber, text: l.input[start:l.pos], pos: start}, nil

	case c == '"':
		l.pos++
		for l.pos < len(l.input) && l.input[l.pos] != '"' {
			l.pos++
		}
		if l.pos >= len(l.input) {
			return token{}, fmt.Errorf("unterminated string at position %d", start)
		}
		l.pos++
		return token{kind: tokString, text: l.input[start+1 : l.pos-1], pos: start}, nil

	case isLetter(c):
		for l.pos < len(l.input) && isLetter(l.input[l.pos]) {
			l.pos++
		}
		letters := l.pos
		for l.pos < len(l.input) && l.input[l.pos] >= '0' && l.input[l.pos] <= '9' {
			l.pos++
		}
		if l.pos > letters && isUpper(l.input[start:letters]) {
			return token{kind: tokCell, text: l.input[start:l.pos], pos: start}, nil
		}
		l.pos = letters
		return token{kind: tokIdent, text: l.input[start:letters], pos: start}, nil

	case strings.ContainsRune("+-*/(),:", rune(c)):
		l.pos++
		return token{kind: tokOp, text: string(c), pos: start}, nil

	case c == '<':
		l.pos++
		if l.pos < len(l.input) && (l.input[l.pos] == '=' || l.input[l.pos] == '>') {
			l.pos++
		}
		return token{kind: tokOp, text: l.input[start:l.pos], pos: start}, nil

	case c == '>':
		l.pos++
		if l.pos < len(l.input) && l.input[l.pos] == '=' {
			l.pos++
		}
		return token{kind: tokOp, text: l.input[start:l.pos], pos: start}, nil

	case c == '=':
		l.pos++
		return token{kind: tokOp, text: "=", pos: start}, nil
	}

	return token{}, fmt.Errorf("unexpected character %q at position %d", c, start)
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isUpper(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

type parser struct {
	lex  lexer
	cur  token
	next token
}

// parse turns a formula body (the text after the leading "=") into an AST.
func parse(input string) (node, error) {
	p := &parser{lex: lexer{input: input}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	n, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at position %d", p.cur.text, p.cur.pos)
	}
	return n, nil
}

func (p *parser) advance() error {
	p.cur = p.next
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.next = tok
	return nil
}

func (p *parser) acceptOp(ops ...string) (string, bool) {
	if p.cur.kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if p.cur.text == op {
			return op, true
		}
	}
	return "", false
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if op, ok := p.acceptOp("=", "<>", "<", "<=", ">", ">="); ok {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return binaryNode{op: op, left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("+", "-")
		if !ok {
			return left, nil
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("*", "/")
		if !ok {
			return left, nil
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	if op, ok := p.acceptOp("-", "+"); ok {
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: op, operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	switch p.cur.kind {

	case tokNumber:
		val, err := decimal.NewFromString(p.cur.text)
		if err != nil {
			return nil, fmt.Errorf("bad number %q at position %d", p.cur.text, p.cur.pos)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return numberNode{val: val}, nil

	case tokString:
		val := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return stringNode{val: val}, nil

	case tokCell:
		return p.parseCellOrRange()

	case tokIdent:
		return p.parseCall()

	case tokOp:
		if p.cur.text == "(" {
			if err := p.advance(); err != nil {
				return nil, err
			}
			inner, err := p.parseComparison()
			if err != nil {
				return nil, err
			}
			if _, ok := p.acceptOp(")"); !ok {
				return nil, fmt.Errorf("missing ) at position %d", p.cur.pos)
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
			return inner, nil
		}
	}
	return nil, fmt.Errorf("unexpected %q at position %d", p.cur.text, p.cur.pos)
}

func (p *parser) parseCellOrRange() (node, error) {
	startRow, startCol, err := cellCoords(p.cur.text)
	if err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, ok := p.acceptOp(":"); !ok {
		return cellNode{row: startRow, col: startCol}, nil
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.cur.kind != tokCell {
		return nil, fmt.Errorf("expected cell after : at position %d", p.cur.pos)
	}
	endRow, endCol, err := cellCoords(p.cur.text)
	if err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if endRow < startRow {
		startRow, endRow = endRow, startRow
	}
	if endCol < startCol {
		startCol, endCol = endCol, startCol
	}
	return rangeNode{startRow: startRow, startCol: startCol, endRow: endRow, endCol: endCol}, nil
}

func (p *parser) parseCall() (node, error) {
	name := strings.ToUpper(p.cur.text)
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, ok := p.acceptOp("("); !ok {
		return nil, fmt.Errorf("expected ( after %s at position %d", name, p.cur.pos)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	var args []node
	if _, ok := p.acceptOp(")"); !ok {
		for {
			arg, err := p.parseComparison()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if _, ok := p.acceptOp(","); !ok {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		if _, ok := p.acceptOp(")"); !ok {
			return nil, fmt.Errorf("missing ) at position %d", p.cur.pos)
		}
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return callNode{name: name, args: args}, nil
}

// cellCoords converts an A1 style address to 0-based row and column.
func cellCoords(address string) (int, int, error) {
	i := 0
	col := 0
	for i < len(address) && address[i] >= 'A' && address[i] <= 'Z' {
		col = col*26 + int(address[i]-'A'+1)
		i++
	}
	if i == 0 || i == len(address) {
		return 0, 0, fmt.Errorf("bad cell address %q", address)
	}
	row := 0
	for ; i < len(address); i++ {
		if address[i] < '0' || address[i] > '9' {
			return 0, 0, fmt.Errorf("bad cell address %q", address)
		}
		row = row*10 + int(address[i]-'0')
	}
	if row == 0 {
		return 0, 0, fmt.Errorf("bad cell address %q", address)
	}
	return row - 1, col - 1, nil
}
