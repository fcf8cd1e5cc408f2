package filter

import (
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokQuoted   // 'text' or "text"
	tokBacktick // `channel`
	tokInt
	tokStar
	tokComma
	tokOp
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// keyword reports whether t is the identifier kw, case-insensitively.
func (t token) keyword(kw string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, kw)
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("_.-/:$@#", r)
}

func lex(src string) ([]token, error) {
	var toks []token
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '*':
			toks = append(toks, token{tokStar, "*", i})
			i++
		case r == ',':
			toks = append(toks, token{tokComma, ",", i})
			i++
		case r == '=' || r == '>' || r == '<':
			toks = append(toks, token{tokOp, string(r), i})
			i++
		case r == '!':
			if i+1 >= len(rs) || rs[i+1] != '=' {
				return nil, invalid("unexpected '!' at %d", i)
			}
			toks = append(toks, token{tokOp, "!=", i})
			i += 2
		case r == '\'' || r == '"' || r == '`':
			end := i + 1
			for end < len(rs) && rs[end] != r {
				end++
			}
			if end >= len(rs) {
				return nil, invalid("unterminated %c at %d", r, i)
			}
			kind := tokQuoted
			if r == '`' {
				kind = tokBacktick
			}
			toks = append(toks, token{kind, string(rs[i+1 : end]), i})
			i = end + 1
		case isIdentRune(r):
			start := i
			for i < len(rs) && isIdentRune(rs[i]) {
				i++
			}
			text := string(rs[start:i])
			kind := tokIdent
			if isInt(text) {
				kind = tokInt
			}
			toks = append(toks, token{kind, text, start})
		default:
			return nil, invalid("unexpected %q at %d", r, i)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(rs)}), nil
}

func isInt(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
