package translate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// AST for Participle Parser

type ASTSelect struct {
	Fields  []*ASTSelectField `parser:"'SELECT' @@ (',' @@)*"`
	From    *string           `parser:"('FROM' (@Ident | @String))?"`
	Where   *ASTExpression    `parser:"('WHERE' @@)?"`
	GroupBy *string           `parser:"('GROUP' 'BY' @Ident)?"`
	OrderBy []*ASTOrder       `parser:"('ORDER' 'BY' @@ (',' @@)*)?"`
	Limit   *string           `parser:"('LIMIT' @Number)?"`
	Offset  *string           `parser:"('OFFSET' @Number)? ';'?"`
}

type ASTSelectField struct {
	Star     bool         `parser:"(  @'*'"`
	Function *ASTFunction `parser:" | @@"`
	Path     *string      `parser:" | @Ident )"`
	Alias    string       `parser:"('AS' (@Ident | @String))?"`
}

type ASTFunction struct {
	Name string `parser:"@Ident"`
	Arg  string `parser:"'(' (@'*' | @Ident) ')'"`
}

type ASTOrder struct {
	Path string `parser:"@Ident"`
	Dir  string `parser:"@('ASC' | 'DESC')?"`
}

type ASTExpression struct {
	Or []*ASTOrCondition `parser:"@@ ('OR' @@)*"`
}

type ASTOrCondition struct {
	And []*ASTCondition `parser:"@@ ('AND' @@)*"`
}

type ASTCondition struct {
	Grouped *ASTExpression      `parser:"  '(' @@ ')'"`
	Simple  *ASTSimpleCondition `parser:"| @@"`
}

type ASTSimpleCondition struct {
	Path  string        `parser:"@Ident"`
	Null  *ASTNullCheck `parser:"(  @@"`
	In    []*ASTLiteral `parser:" | 'IN' '(' @@ (',' @@)* ')'"`
	Op    *string       `parser:" | @('=' | '!=' | '<>' | '>=' | '<=' | '>' | '<' | 'CONTAINS' | 'LIKE')"`
	Value *ASTLiteral   `parser:"   @@ )"`
}

type ASTNullCheck struct {
	Not bool `parser:"'IS' @'NOT'? 'NULL'"`
}

type ASTLiteral struct {
	Number *string `parser:"  @Number"`
	Str    *string `parser:"| @String"`
	Bool   *string `parser:"| @('TRUE' | 'FALSE')"`
	Null   bool    `parser:"| @'NULL'"`
}

// Value converts the literal to the value stored in a command document.
// Integers become int32 when they fit.
func (l *ASTLiteral) Value() (any, error) {
	switch {
	case l.Number != nil:
		if !strings.Contains(*l.Number, ".") {
			n, err := strconv.ParseInt(*l.Number, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %s: %w", *l.Number, err)
			}
			if n >= -1<<31 && n < 1<<31 {
				return int32(n), nil
			}
			return n, nil
		}
		f, err := strconv.ParseFloat(*l.Number, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %s: %w", *l.Number, err)
		}
		return f, nil
	case l.Str != nil:
		return *l.Str, nil
	case l.Bool != nil:
		return strings.EqualFold(*l.Bool, "TRUE"), nil
	default:
		return nil, nil
	}
}

// Lexer definition
var (
	sqlLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Keyword", Pattern: `(?i)\b(SELECT|FROM|WHERE|GROUP|ORDER|BY|AS|AND|OR|TRUE|FALSE|NULL|CONTAINS|LIKE|IN|IS|NOT|LIMIT|OFFSET|ASC|DESC)\b`},
		// dotted paths are a single token so that numeric parts stay paths
		{Name: "Ident", Pattern: `[a-zA-Z_$][\w$]*(?:\.[\w$]+)*`},
		{Name: "Number", Pattern: `[-+]?\d*\.?\d+`},
		{Name: "String", Pattern: `'[^']*'|"[^"]*"`},
		{Name: "Operator", Pattern: `>=|<=|!=|<>|[=<>]`},
		{Name: "Punct", Pattern: `[-+/*%,.();]`},
		{Name: "Whitespace", Pattern: `\s+`},
	})

	// Participle Parser
	sqlParser = participle.MustBuild[ASTSelect](
		participle.Lexer(sqlLexer),
		participle.Unquote("String"),
		participle.CaseInsensitive("Keyword"),
		participle.Elide("Whitespace"),
		participle.UseLookahead(2),
	)
)
