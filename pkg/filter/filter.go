package filter

import (
	"cmp"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Kind is the type of a filterable field.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindTime
)

// Schema names the filterable fields and their kinds.
type Schema map[string]Kind

// Resolver supplies field values for one candidate. Values are string,
// float64 or time.Time according to the field's Kind; ok is false when the
// candidate has no value for the field.
type Resolver interface {
	Field(name string) (value any, ok bool)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(name string) (any, bool)

// Field implements Resolver.
func (f ResolverFunc) Field(name string) (any, bool) { return f(name) }

// ErrInvalid marks malformed filter expressions.
var ErrInvalid = errors.New("invalid filter")

// Filter is a compiled expression. The zero Filter matches everything.
type Filter struct {
	root node
}

type node interface {
	match(r Resolver) bool
}

type orNode []node

func (n orNode) match(r Resolver) bool {
	for _, c := range n {
		if c.match(r) {
			return true
		}
	}
	return false
}

type andNode []node

func (n andNode) match(r Resolver) bool {
	for _, c := range n {
		if !c.match(r) {
			return false
		}
	}
	return true
}

type notNode struct{ inner node }

func (n notNode) match(r Resolver) bool { return !n.inner.match(r) }

type cmpNode struct {
	field string
	kind  Kind
	op    string
	str   string
	num   float64
	when  time.Time
	like  *regexp.Regexp
}

// Parse compiles src against schema. An empty src yields a Filter that
// matches everything.
func Parse(src string, schema Schema) (*Filter, error) {
	if strings.TrimSpace(src) == "" {
		return &Filter{}, nil
	}
	ast, err := parser.ParseString("", src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	root, err := compileOr(ast, schema)
	if err != nil {
		return nil, err
	}
	return &Filter{root: root}, nil
}

// Match reports whether the candidate satisfies the filter.
func (f *Filter) Match(r Resolver) bool {
	if f == nil || f.root == nil {
		return true
	}
	return f.root.match(r)
}

func compileOr(e *orExpr, schema Schema) (node, error) {
	out := make(orNode, 0, len(e.And))
	for _, a := range e.And {
		n, err := compileAnd(a, schema)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return out, nil
}

func compileAnd(e *andExpr, schema Schema) (node, error) {
	out := make(andNode, 0, len(e.Terms))
	for _, u := range e.Terms {
		var (
			n   node
			err error
		)
		if u.Term.Sub != nil {
			n, err = compileOr(u.Term.Sub, schema)
		} else {
			n, err = compileComparison(u.Term.Comparison, schema)
		}
		if err != nil {
			return nil, err
		}
		if u.Not {
			n = notNode{n}
		}
		out = append(out, n)
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return out, nil
}

// timeLayouts are accepted for time-valued comparisons.
var timeLayouts = []string{time.RFC3339Nano, "2006-01-02"}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// likePattern converts a LIKE pattern (% any run, _ one rune) to a
// case-insensitive anchored regexp.
func likePattern(p string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?is)^")
	for _, r := range p {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

func compileComparison(c *comparison, schema Schema) (node, error) {
	kind, ok := schema[c.Field]
	if !ok {
		return nil, fmt.Errorf("%w: %s: unknown field %q", ErrInvalid, c.Pos, c.Field)
	}
	n := &cmpNode{field: c.Field, kind: kind, op: strings.ToUpper(c.Operator)}

	switch kind {
	case KindNumber:
		if c.Value.Number == nil {
			return nil, fmt.Errorf("%w: %s: field %q needs a number", ErrInvalid, c.Pos, c.Field)
		}
		n.num = *c.Value.Number
	case KindTime:
		if c.Value.String == nil {
			return nil, fmt.Errorf("%w: %s: field %q needs a quoted date", ErrInvalid, c.Pos, c.Field)
		}
		t, ok := parseTime(*c.Value.String)
		if !ok {
			return nil, fmt.Errorf("%w: %s: %q is not a date", ErrInvalid, c.Pos, *c.Value.String)
		}
		n.when = t
	case KindString:
		switch {
		case c.Value.String != nil:
			n.str = *c.Value.String
		case c.Value.Ident != nil:
			n.str = *c.Value.Ident
		default:
			return nil, fmt.Errorf("%w: %s: field %q needs a string", ErrInvalid, c.Pos, c.Field)
		}
	}

	if n.op == "LIKE" {
		if kind != KindString {
			return nil, fmt.Errorf("%w: %s: LIKE applies to text fields only", ErrInvalid, c.Pos)
		}
		n.like = likePattern(n.str)
	}
	return n, nil
}

func (n *cmpNode) match(r Resolver) bool {
	v, ok := r.Field(n.field)
	if !ok {
		return false
	}
	var order int
	switch n.kind {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return false
		}
		if n.like != nil {
			return n.like.MatchString(s)
		}
		if n.op == "=" || n.op == "!=" {
			return strings.EqualFold(s, n.str) == (n.op == "=")
		}
		order = cmp.Compare(strings.ToLower(s), strings.ToLower(n.str))
	case KindNumber:
		f, ok := v.(float64)
		if !ok {
			return false
		}
		order = cmp.Compare(f, n.num)
	case KindTime:
		t, ok := v.(time.Time)
		if !ok {
			return false
		}
		order = t.Compare(n.when)
	}
	switch n.op {
	case "=":
		return order == 0
	case "!=":
		return order != 0
	case "<":
		return order < 0
	case "<=":
		return order <= 0
	case ">":
		return order > 0
	case ">=":
		return order >= 0
	}
	return false
}
