package calc

import (
	"fmt"
	"strings"
)

// maxDepth bounds parser recursion so evaluation time stays linear in the input.
const maxDepth = 256

type parser struct {
	input string
	toks  []token
	pos   int
	depth int
}

// Parse turns expr into an expression tree. Only numbers, variables, the
// operators + - * / ** ^ and parentheses are accepted.
func Parse(expr string) (Node, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, &ParseError{Expr: expr, Msg: "empty expression"}
	}
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{input: expr, toks: toks}
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		if t.kind == tokRParen {
			return nil, p.errorf(t, "unbalanced ')'")
		}
		return nil, p.errorf(t, "unexpected %s", describe(t))
	}
	return n, nil
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &ParseError{Expr: p.input, Pos: t.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > maxDepth {
		return p.errorf(p.peek(), "expression nested too deeply")
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) parseExpr() (Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	return p.parseAddSub()
}

func (p *parser) parseAddSub() (Node, error) {
	left, err := p.parseMulDiv()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokPlus && t.kind != tokMinus {
			return left, nil
		}
		p.next()
		right, err := p.parseMulDiv()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: t.text, L: left, R: right}
	}
}

func (p *parser) parseMulDiv() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokStar && t.kind != tokSlash {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: t.text, L: left, R: right}
	}
}

func (p *parser) parseUnary() (Node, error) {
	t := p.peek()
	if t.kind != tokPlus && t.kind != tokMinus {
		return p.parsePower()
	}
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	p.next()
	x, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &Unary{Op: t.text[0], X: x}, nil
}

func (p *parser) parsePower() (Node, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokPow {
		return base, nil
	}
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	p.next()
	exp, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &Binary{Op: "**", L: base, R: exp}, nil
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return &Number{Value: t.num, Text: t.text}, nil
	case tokIdent:
		if p.peek().kind == tokLParen {
			return nil, p.errorf(p.peek(), "function calls are not supported (%s)", t.text)
		}
		return &Variable{Name: t.text}, nil
	case tokLParen:
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if c := p.next(); c.kind != tokRParen {
			return nil, p.errorf(c, "missing ')' for '(' at %d", t.pos)
		}
		return x, nil
	case tokEOF:
		return nil, p.errorf(t, "unexpected end of expression")
	case tokRParen:
		return nil, p.errorf(t, "unbalanced ')'")
	}
	return nil, p.errorf(t, "operator %s in invalid position", describe(t))
}

func describe(t token) string {
	if t.kind == tokNumber || t.kind == tokIdent {
		return fmt.Sprintf("%s %q", t.kind, t.text)
	}
	if t.text != "" {
		return fmt.Sprintf("'%s'", t.text)
	}
	return t.kind.String()
}
