// Package filter compiles and evaluates subscription filters:
//
//	select <*|path [AS name], ...> from `<channel>` [where <cmp> [(AND|OR) <cmp>]...]
//
// A comparison is `<dotted.path> <op> <literal>` with op one of = != > < LIKE
// and literal a quoted string, true/false or an integer. There are no
// parentheses and no precedence: a where clause is all-AND or all-OR.
//
// LIKE tests substring containment with `_`, `*` and `%` as wildcards.
// They have no escape: 'a_b' matches "axb" and '100%' matches "score 100".
package filter

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidFilter wraps every compile error.
var ErrInvalidFilter = errors.New("invalid filter")

// Op is a comparison operator.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpGt
	OpLt
	OpLike
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "="
	case OpNe:
		return "!="
	case OpGt:
		return ">"
	case OpLt:
		return "<"
	case OpLike:
		return "LIKE"
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Mode combines the comparisons of a where clause.
type Mode int

const (
	ModeAnd Mode = iota
	ModeOr
)

// Field is one projected path and the key it is rendered under.
type Field struct {
	Path []string
	Name string
}

// Comparison is one `path op literal` term. Literal is a string, bool or int64.
type Comparison struct {
	Path    []string
	Op      Op
	Literal interface{}
}

// Where is the optional predicate of a query.
type Where struct {
	Mode        Mode
	Comparisons []Comparison
}

// Query is the parsed form of a filter. Fields is nil for `select *`.
type Query struct {
	Fields  []Field
	Channel string
	Where   *Where
}

// Filter is a compiled query, safe for concurrent use.
type Filter struct {
	src   string
	query Query
}

// Compile parses src. Errors wrap ErrInvalidFilter.
func Compile(src string) (*Filter, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	q, err := parse(toks)
	if err != nil {
		return nil, err
	}
	return &Filter{src: src, query: q}, nil
}

// Channel is the channel named in the from clause.
func (f *Filter) Channel() string { return f.query.Channel }

// Query returns the parsed query.
func (f *Filter) Query() Query { return f.query }

func (f *Filter) String() string { return f.src }

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidFilter, fmt.Sprintf(format, args...))
}

func splitPath(p string) []string { return strings.Split(p, ".") }
