// Package ast defines the Orchid abstract syntax tree produced by
// pkg/parser and walked by pkg/interp. It is a flat sum-of-structs design
// (§9 "Untyped AST with many variants") dispatched by a single type switch
// in the interpreter rather than a visitor hierarchy.
package ast

import "github.com/orchidlang/orchid/pkg/errs"

// Node is implemented by every AST node; it only carries position info.
type Node interface {
	Pos() errs.Position
}

// Base is embedded in every concrete node to satisfy Node and to carry the
// node's source position.
type Base struct {
	Position errs.Position
}

func (b Base) Pos() errs.Position { return b.Position }

// NewBase constructs a Base from a position; used by the parser when
// building node literals (Base is exported so struct literals can name the
// field explicitly, e.g. ast.StringLiteral{Base: ast.NewBase(pos), ...}).
func NewBase(pos errs.Position) Base { return Base{Position: pos} }

// Program is the root node: metadata directives plus the top-level body.
type Program struct {
	Base
	Metadata []Metadata
	Body     []Node
}

// Metadata is an `@name value` directive at the top of a script.
type Metadata struct {
	Base
	Name  string
	Value string
}

// Block is a sequence of statements sharing one lexical scope; used as the
// body of callables, control-flow constructs, and atomic blocks.
type Block struct {
	Base
	Statements []Node
}

// --- literals & identifiers ---

type StringLiteral struct {
	Base
	Value string
}

// InterpolatedString is produced when a string literal contains `$name`,
// `$_`, or `${expr}` segments; Parts alternates literal text and
// expression nodes in source order.
type InterpolatedString struct {
	Base
	Parts []InterpPart
}

type InterpPart struct {
	Literal string // used when Expr == nil
	Expr    Node
}

type NumberLiteral struct {
	Base
	Value float64
	Unit  string
}

type BooleanLiteral struct {
	Base
	Value bool
}

type NullLiteral struct{ Base }

type ListLiteral struct {
	Base
	Items []Node
}

type DictEntry struct {
	Key   string
	Value Node
}

type DictLiteral struct {
	Base
	Entries []DictEntry
}

type Identifier struct {
	Base
	Name string
}

// ImplicitContext is the bare `_` expression.
type ImplicitContext struct{ Base }

// --- tags ---

// Tag is a `<name[=value]>` modifier on an operation call.
type Tag struct {
	Name  string
	Value Node // nil if the tag is bare (e.g. <best_effort>)
}

// --- operations ---

type Arg struct {
	Name  string // "" for positional
	Value Node
}

type Operation struct {
	Base
	Name string
	Args []Arg
	Tags []Tag
}

type NamespacedOperation struct {
	Base
	Namespace string
	Name      string
	Args      []Arg
	Tags      []Tag
}

// --- assignment ---

type Assignment struct {
	Base
	Targets []string // len 1 for plain assignment, >1 for destructure
	Value   Node
}

type PlusAssignment struct {
	Base
	Target string
	Value  Node
}

// --- control flow ---

type If struct {
	Base
	Cond   Node
	Then   *Block
	Elifs  []ElifClause
	Else   *Block // nil if no else
}

type ElifClause struct {
	Cond Node
	Body *Block
}

type For struct {
	Base
	Var  string
	Iter Node
	Body *Block
}

type While struct {
	Base
	Cond Node
	Body *Block
}

type Until struct {
	Base
	Cond Node
	Body *Block
	Tags []Tag
}

type Try struct {
	Base
	Body    *Block
	Excepts []ExceptClause
	Finally *Block // nil if absent
}

type ExceptClause struct {
	ErrorType string // "" matches anything
	Body      *Block
}

type Assert struct {
	Base
	Cond Node
	Msg  Node // nil if absent
}

type Require struct {
	Base
	Cond Node
	Msg  Node // nil if absent
}

// --- definitions ---

type ParamDef struct {
	Name    string
	Default Node // nil if no default
}

type AgentDef struct {
	Base
	Name   string
	Params []ParamDef
	Body   *Block
}

type MacroDef struct {
	Base
	Name   string
	Params []ParamDef
	Body   *Block
}

// PermissionsBlock is parsed but never executed (declarative).
type PermissionsBlock struct {
	Base
	Raw string
}

type Import struct {
	Base
	Path  string
	Alias string // "" if none
}

type UseKind int

const (
	UseMCP UseKind = iota
	UsePlugin
)

type Use struct {
	Base
	Kind  UseKind
	Name  string
	Alias string // "" if none
}

// --- events ---

type Emit struct {
	Base
	Name    string
	Payload Node // nil if absent
}

type On struct {
	Base
	Name string
	Var  string
	Body *Block
}

type ReturnStatement struct {
	Base
	Value Node // nil for bare `return`
}

type BreakStatement struct{ Base }

// --- atomic ---

type AtomicBlock struct {
	Base
	Body *Block
}

// --- fork ---

type ForkBranch struct {
	Name string // "" for unnamed (list) branches
	Expr Node
}

type ForkExpression struct {
	Base
	Count    Node // nil if absent; a synthetic _count keyword arg otherwise
	Branches []ForkBranch
	ForLoop  *For // non-nil for the fork-for variant; Branches is empty then
}

// --- expressions ---

type BinaryExpr struct {
	Base
	Op    string // ">>", "|", "+", "-", "*", "/", "==", "!=", "<", "<=", ">", ">=", "in", "and", "or"
	Left  Node
	Right Node
}

type UnaryExpr struct {
	Base
	Op      string // "-", "not"
	Operand Node
}

type MemberExpr struct {
	Base
	Target Node
	Name   string
}

type IndexExpr struct {
	Base
	Target Node
	Index  Node
}

type CallExpr struct {
	Base
	Callee Node
	Args   []Arg
}

type ListenExpression struct{ Base }

type StreamExpression struct {
	Base
	Source Node
}
