package apps

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/cel-go/cel"
)

// Rule kinds.
const (
	RuleCompose2 = "compose2"
	RuleAdd      = "add"
	RuleExpr     = "expr"
)

// Rule derives an extra channel from a published message.
//
//	compose2: "<message.field1><separator><message.field2>"
//	add:      the constant Channel
//	expr:     a CEL expression over `message` yielding a string
type Rule struct {
	Kind      string `yaml:"kind"`
	Field1    string `yaml:"field1,omitempty"`
	Field2    string `yaml:"field2,omitempty"`
	Separator string `yaml:"separator,omitempty"`
	Channel   string `yaml:"channel,omitempty"`
	Expr      string `yaml:"expr,omitempty"`
}

type builtRule struct {
	name string
	rule Rule
	prg  cel.Program
}

// ChannelBuilder applies an app's rules to publish bodies.
type ChannelBuilder struct {
	rules    []builtRule
	warnings []string
}

// NewChannelBuilder validates rules (sorted by name). Invalid rules are
// skipped and reported by Warnings.
func NewChannelBuilder(rules map[string]*Rule) *ChannelBuilder {
	b := &ChannelBuilder{}
	names := make([]string, 0, len(rules))
	for n := range rules {
		names = append(names, n)
	}
	sort.Strings(names)

	var env *cel.Env
	for _, name := range names {
		r := rules[name]
		if r == nil {
			b.warn("rule %q is not a mapping", name)
			continue
		}
		br := builtRule{name: name, rule: *r}
		switch r.Kind {
		case RuleCompose2:
			if r.Field1 == "" || r.Field2 == "" {
				b.warn("compose2 rule %q needs field1 and field2", name)
				continue
			}
		case RuleAdd:
			if r.Channel == "" {
				b.warn("add rule %q needs a channel", name)
				continue
			}
		case RuleExpr:
			if env == nil {
				var err error
				env, err = cel.NewEnv(cel.Variable("message", cel.MapType(cel.StringType, cel.DynType)))
				if err != nil {
					b.warn("expr rule %q: %v", name, err)
					continue
				}
			}
			ast, iss := env.Compile(r.Expr)
			if iss != nil && iss.Err() != nil {
				b.warn("expr rule %q: %v", name, iss.Err())
				continue
			}
			prg, err := env.Program(ast)
			if err != nil {
				b.warn("expr rule %q: %v", name, err)
				continue
			}
			br.prg = prg
		default:
			b.warn("rule %q has invalid kind %q", name, r.Kind)
			continue
		}
		b.rules = append(b.rules, br)
	}
	return b
}

func (b *ChannelBuilder) warn(format string, args ...interface{}) {
	b.warnings = append(b.warnings, fmt.Sprintf(format, args...))
}

// Warnings lists rules that were skipped.
func (b *ChannelBuilder) Warnings() []string { return b.warnings }

// Len is the number of usable rules.
func (b *ChannelBuilder) Len() int {
	if b == nil {
		return 0
	}
	return len(b.rules)
}

// Apply merges body.channel into body.channels and appends the channels
// derived by the rules, de-duplicated in first-seen order. Bodies whose
// message is not an object, or whose channels is not a list, are left as is.
func (b *ChannelBuilder) Apply(body map[string]interface{}) {
	if b.Len() == 0 || body == nil {
		return
	}
	message, ok := body["message"].(map[string]interface{})
	if !ok {
		return
	}
	var channels []string
	switch v := body["channels"].(type) {
	case nil:
	case []interface{}:
		for _, c := range v {
			if s, ok := c.(string); ok {
				channels = append(channels, s)
			}
		}
	default:
		return
	}
	if c, ok := body["channel"].(string); ok && c != "" {
		channels = append(channels, c)
	}
	for _, r := range b.rules {
		if ch, ok := r.derive(message); ok {
			channels = append(channels, ch)
		}
	}

	seen := make(map[string]bool, len(channels))
	out := make([]interface{}, 0, len(channels))
	for _, c := range channels {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	body["channels"] = out
}

func (r builtRule) derive(message map[string]interface{}) (string, bool) {
	switch r.rule.Kind {
	case RuleAdd:
		return r.rule.Channel, true
	case RuleCompose2:
		a, ok := lookupScalar(message, r.rule.Field1)
		if !ok {
			return "", false
		}
		c, ok := lookupScalar(message, r.rule.Field2)
		if !ok {
			return "", false
		}
		return a + r.rule.Separator + c, true
	case RuleExpr:
		out, _, err := r.prg.Eval(map[string]interface{}{"message": message})
		if err != nil {
			return "", false
		}
		s, ok := out.Value().(string)
		return s, ok && s != ""
	}
	return "", false
}

// lookupScalar resolves a dotted path and renders the value; missing values
// and objects do not yield a channel.
func lookupScalar(m map[string]interface{}, path string) (string, bool) {
	var cur interface{} = m
	for _, seg := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return "", false
		}
		if cur, ok = obj[seg]; !ok {
			return "", false
		}
	}
	switch v := cur.(type) {
	case nil, map[string]interface{}:
		return "", false
	case string:
		return v, true
	default:
		return fmt.Sprint(v), true
	}
}
