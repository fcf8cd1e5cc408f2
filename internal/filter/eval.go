package filter

import (
	"encoding/json"
	"strings"
)

// Match evaluates the filter against a decoded JSON message. A list is
// matched through its first element and anything that is not an object
// fails. On a match it returns the projected message.
func (f *Filter) Match(msg interface{}) (interface{}, bool) {
	if f.query.Where == nil && f.query.Fields == nil {
		return msg, true
	}
	if list, ok := msg.([]interface{}); ok {
		if len(list) == 0 {
			return nil, false
		}
		msg = list[0]
	}
	obj, ok := msg.(map[string]interface{})
	if !ok {
		return nil, false
	}
	if w := f.query.Where; w != nil && !w.match(obj) {
		return nil, false
	}
	return f.project(obj), true
}

func (w *Where) match(obj map[string]interface{}) bool {
	if w.Mode == ModeOr {
		for _, c := range w.Comparisons {
			if c.match(obj) {
				return true
			}
		}
		return false
	}
	for _, c := range w.Comparisons {
		if !c.match(obj) {
			return false
		}
	}
	return true
}

func (f *Filter) project(obj map[string]interface{}) interface{} {
	if f.query.Fields == nil {
		return obj
	}
	out := make(map[string]interface{}, len(f.query.Fields))
	for _, fld := range f.query.Fields {
		v, ok := resolve(obj, fld.Path)
		if !ok {
			v = map[string]interface{}{}
		}
		out[fld.Name] = v
	}
	return out
}

// resolve walks path segment by segment. A missing segment at any depth, or
// a non-object on the way, reports false.
func resolve(obj map[string]interface{}, path []string) (interface{}, bool) {
	var cur interface{} = obj
	for _, seg := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = m[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// match compares the resolved value with the literal. Missing values compare
// as null: only != holds.
func (c Comparison) match(obj map[string]interface{}) bool {
	v, ok := resolve(obj, c.Path)
	if !ok {
		v = nil
	}
	switch c.Op {
	case OpEq:
		return equal(v, c.Literal)
	case OpNe:
		return !equal(v, c.Literal)
	case OpGt:
		cmp, ok := compare(v, c.Literal)
		return ok && cmp > 0
	case OpLt:
		cmp, ok := compare(v, c.Literal)
		return ok && cmp < 0
	case OpLike:
		return like(v, c.Literal.(string))
	}
	return false
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func equal(v, lit interface{}) bool {
	switch l := lit.(type) {
	case string:
		s, ok := v.(string)
		return ok && s == l
	case bool:
		b, ok := v.(bool)
		return ok && b == l
	case int64:
		n, ok := number(v)
		return ok && n == float64(l)
	}
	return false
}

// compare orders numbers numerically and strings lexically; other pairs
// do not compare.
func compare(v, lit interface{}) (int, bool) {
	if l, ok := lit.(int64); ok {
		n, ok := number(v)
		if !ok {
			return 0, false
		}
		switch {
		case n < float64(l):
			return -1, true
		case n > float64(l):
			return 1, true
		}
		return 0, true
	}
	if l, ok := lit.(string); ok {
		s, ok := v.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(s, l), true
	}
	return 0, false
}

// like is substring containment. Inside the pattern `_` matches any single
// character and `*` or `%` any run; there is no escape, so a literal `_`,
// `*` or `%` cannot be required. Arrays match when an element is equal to
// the pattern.
func like(v interface{}, pattern string) bool {
	switch s := v.(type) {
	case string:
		return containsPattern([]rune(s), []rune(pattern))
	case []interface{}:
		for _, e := range s {
			if es, ok := e.(string); ok && es == pattern {
				return true
			}
		}
	}
	return false
}

func containsPattern(s, p []rune) bool {
	for start := 0; start <= len(s); start++ {
		if matchPrefix(s[start:], p) {
			return true
		}
	}
	return false
}

// matchPrefix reports whether p matches some prefix of s.
func matchPrefix(s, p []rune) bool {
	if len(p) == 0 {
		return true
	}
	switch p[0] {
	case '*', '%':
		for i := 0; i <= len(s); i++ {
			if matchPrefix(s[i:], p[1:]) {
				return true
			}
		}
		return false
	case '_':
		return len(s) > 0 && matchPrefix(s[1:], p[1:])
	}
	return len(s) > 0 && s[0] == p[0] && matchPrefix(s[1:], p[1:])
}
