// Package token defines the lexical tokens produced by pkg/lexer and
// consumed by pkg/parser.
package token

import "github.com/orchidlang/orchid/pkg/errs"

type Type int

const (
	EOF Type = iota
	NEWLINE
	INDENT
	DEDENT
	SECTIONCOMMENT
	TRIPLEHASH

	IDENT
	STRING
	DOCSTRING
	NUMBER
	BOOLEAN
	NULL

	// Operators and punctuation.
	WALRUS  // :=
	PLUSEQ  // +=
	PIPE2   // >>
	BAR     // |
	EQ      // ==
	ASSIGN  // = (tag value assignment only, e.g. <retry=3>)
	NEQ     // !=
	LE      // <=
	GE      // >=
	LT      // <
	GT      // >
	PLUS    // +
	MINUS   // -
	STAR    // *
	SLASH   // /
	COLON   // :
	DOT     // .
	COMMA   // ,
	DOLLAR  // $
	AT      // @
	USCORE  // _
	LPAREN  // (
	RPAREN  // )
	LBRACK  // [
	RBRACK  // ]
	LBRACE  // {
	RBRACE  // }

	// Keywords.
	KIF
	KELIF
	KELSE
	KFOR
	KIN
	KWHILE
	KUNTIL
	KTRY
	KEXCEPT
	KFINALLY
	KASSERT
	KREQUIRE
	KAGENT
	KMACRO
	KIMPORT
	KAS
	KUSE
	KMCP
	KPLUGIN
	KDISCOVER
	KFORK
	KEMIT
	KON
	KLISTEN
	KSTREAM
	KRETURN
	KAND
	KOR
	KNOT
	KTRUE
	KFALSE
	KNULL
	KPERMISSIONS
	KBREAK
)

var keywords = map[string]Type{
	"if":          KIF,
	"elif":        KELIF,
	"else":        KELSE,
	"for":         KFOR,
	"in":          KIN,
	"while":       KWHILE,
	"until":       KUNTIL,
	"try":         KTRY,
	"except":      KEXCEPT,
	"finally":     KFINALLY,
	"assert":      KASSERT,
	"require":     KREQUIRE,
	"agent":       KAGENT,
	"macro":       KMACRO,
	"import":      KIMPORT,
	"as":          KAS,
	"Use":         KUSE,
	"MCP":         KMCP,
	"Plugin":      KPLUGIN,
	"Discover":    KDISCOVER,
	"fork":        KFORK,
	"emit":        KEMIT,
	"on":          KON,
	"listen":      KLISTEN,
	"Stream":      KSTREAM,
	"return":      KRETURN,
	"and":         KAND,
	"or":          KOR,
	"not":         KNOT,
	"true":        KTRUE,
	"false":       KFALSE,
	"null":        KNULL,
	"permissions": KPERMISSIONS,
	"break":       KBREAK,
}

// LookupIdent classifies an identifier as a keyword token, or IDENT.
func LookupIdent(s string) Type {
	if t, ok := keywords[s]; ok {
		return t
	}
	return IDENT
}

// Token is a single lexical token with its source position.
type Token struct {
	Type    Type
	Literal string
	Num     float64
	Unit    string
	Pos     errs.Position
}
