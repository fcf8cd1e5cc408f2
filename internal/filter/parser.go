package filter

import (
	"strconv"
	"strings"
)

type parser struct {
	toks []token
	i    int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func parse(toks []token) (Query, error) {
	// select, fields, from and a channel at the very least
	if len(toks)-1 < 4 {
		return Query{}, invalid("expected `select <fields> from <channel>`")
	}
	p := &parser{toks: toks}
	var q Query

	if !p.next().keyword("select") {
		return Query{}, invalid("query must start with select")
	}
	fields, err := p.fields()
	if err != nil {
		return Query{}, err
	}
	q.Fields = fields

	if !p.next().keyword("from") {
		return Query{}, invalid("missing from")
	}
	ch := p.next()
	switch {
	case ch.kind == tokBacktick && ch.text != "":
		q.Channel = ch.text
	case ch.kind == tokIdent && !ch.keyword("where"):
		q.Channel = ch.text
	default:
		return Query{}, invalid("missing channel after from")
	}

	t := p.next()
	if t.kind == tokEOF {
		return q, nil
	}
	if !t.keyword("where") {
		return Query{}, invalid("unexpected %q after channel", t.text)
	}
	w, err := p.where()
	if err != nil {
		return Query{}, err
	}
	q.Where = w
	return q, nil
}

func (p *parser) fields() ([]Field, error) {
	if p.peek().kind == tokStar {
		p.next()
		return nil, nil
	}
	var out []Field
	for {
		t := p.next()
		if t.kind != tokIdent || t.keyword("from") {
			return nil, invalid("expected field name, got %q", t.text)
		}
		f := Field{Path: splitPath(t.text), Name: t.text}
		if p.peek().keyword("as") {
			p.next()
			alias := p.next()
			if alias.kind != tokIdent {
				return nil, invalid("expected alias after AS")
			}
			f.Name = alias.text
		}
		out = append(out, f)
		if p.peek().kind != tokComma {
			return out, nil
		}
		p.next()
	}
}

func (p *parser) where() (*Where, error) {
	w := &Where{}
	modeSet := false
	for {
		c, err := p.comparison()
		if err != nil {
			return nil, err
		}
		w.Comparisons = append(w.Comparisons, c)

		t := p.next()
		var mode Mode
		switch {
		case t.kind == tokEOF:
			return w, nil
		case t.keyword("and"):
			mode = ModeAnd
		case t.keyword("or"):
			mode = ModeOr
		default:
			return nil, invalid("expected AND or OR, got %q", t.text)
		}
		if modeSet && mode != w.Mode {
			return nil, invalid("cannot mix AND and OR")
		}
		w.Mode, modeSet = mode, true
	}
}

func (p *parser) comparison() (Comparison, error) {
	path := p.next()
	if path.kind != tokIdent {
		return Comparison{}, invalid("expected a field path, got %q", path.text)
	}
	var c Comparison
	c.Path = splitPath(path.text)

	op := p.next()
	switch {
	case op.kind == tokOp && op.text == "=":
		c.Op = OpEq
	case op.kind == tokOp && op.text == "!=":
		c.Op = OpNe
	case op.kind == tokOp && op.text == ">":
		c.Op = OpGt
	case op.kind == tokOp && op.text == "<":
		c.Op = OpLt
	case op.keyword("like"):
		c.Op = OpLike
	default:
		return Comparison{}, invalid("invalid operator %q", op.text)
	}

	lit := p.next()
	switch {
	case lit.kind == tokQuoted:
		c.Literal = lit.text
	case lit.kind == tokInt:
		n, err := strconv.ParseInt(lit.text, 10, 64)
		if err != nil {
			return Comparison{}, invalid("invalid integer %q", lit.text)
		}
		c.Literal = n
	case lit.kind == tokIdent && (strings.EqualFold(lit.text, "true") || strings.EqualFold(lit.text, "false")):
		c.Literal = strings.EqualFold(lit.text, "true")
	default:
		return Comparison{}, invalid("invalid literal %q", lit.text)
	}
	if c.Op == OpLike {
		if _, ok := c.Literal.(string); !ok {
			return Comparison{}, invalid("LIKE needs a string literal")
		}
	}
	return c, nil
}
