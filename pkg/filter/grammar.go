// Package filter parses and evaluates the list filter expressions accepted by
// the evaluations endpoint, for example
//
//	status = 'submitted' AND (score >= 65 OR label = 'Gold') AND NOT name LIKE '%pilot%'
package filter

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var filterLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Keyword", Pattern: `(?i)\b(AND|OR|NOT|LIKE)\b`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_.\-]*`},
	{Name: "String", Pattern: `'[^']*'|"[^"]*"`},
	{Name: "Number", Pattern: `[-+]?\d+(\.\d+)?`},
	{Name: "Operator", Pattern: `!=|<=|>=|=|<|>`},
	{Name: "Punct", Pattern: `[()]`},
	{Name: "whitespace", Pattern: `\s+`},
})

var parser = participle.MustBuild[orExpr](
	participle.Lexer(filterLexer),
	participle.Unquote("String"),
	participle.CaseInsensitive("Keyword"),
	participle.Elide("whitespace"),
)

type orExpr struct {
	And []*andExpr `parser:"@@ ( 'OR' @@ )*"`
}

type andExpr struct {
	Terms []*unary `parser:"@@ ( 'AND' @@ )*"`
}

type unary struct {
	Not  bool  `parser:"@'NOT'?"`
	Term *term `parser:"@@"`
}

type term struct {
	Sub        *orExpr     `parser:"  '(' @@ ')'"`
	Comparison *comparison `parser:"| @@"`
}

type comparison struct {
	Pos      lexer.Position
	Field    string `parser:"@Ident"`
	Operator string `parser:"@( Operator | 'LIKE' )"`
	Value    value  `parser:"@@"`
}

type value struct {
	String *string  `parser:"  @String"`
	Number *float64 `parser:"| @Number"`
	Ident  *string  `parser:"| @Ident"`
}
