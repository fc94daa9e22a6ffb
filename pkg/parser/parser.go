// Package parser implements Orchid's recursive-descent parser, producing
// the AST defined in pkg/ast from the token stream produced by pkg/lexer.
//
// Precedence, lowest to highest (per spec.md §4.2): pipe `>>`; alternative
// `|`; logical `or`; logical `and`; unary `not`; comparison; `in`; merge
// `+`; multiplicative (`* /` — `-` is also handled here per the spec's
// observed grammar); unary `-`; postfix (`.`, call, index); primary.
package parser

import (
	"strings"

	"github.com/orchidlang/orchid/pkg/ast"
	"github.com/orchidlang/orchid/pkg/errs"
	"github.com/orchidlang/orchid/pkg/lexer"
	"github.com/orchidlang/orchid/pkg/token"
)

// Parser consumes a token slice and produces a *ast.Program.
type Parser struct {
	file string
	toks []token.Token
	pos  int
}

// ParseFile lexes and parses a complete Orchid source file.
func ParseFile(file, src string) (*ast.Program, error) {
	lx := lexer.New(file, src)
	toks, err := lx.Tokenize()
	if err != nil {
		return nil, err
	}
	p := &Parser{file: file, toks: toks}
	return p.parseProgram()
}

// Parse runs the parser over an already-lexed token stream; used by the
// `--lex`/`--parse` CLI flags to separate the two stages.
func Parse(file string, toks []token.Token) (*ast.Program, error) {
	p := &Parser{file: file, toks: toks}
	return p.parseProgram()
}

// mark is a cursor save/restore point, used for the tag-vs-comparison and
// fork-for lookahead ambiguities described in spec.md §4.2.
type mark int

func (p *Parser) save() mark     { return mark(p.pos) }
func (p *Parser) restore(m mark) { p.pos = int(m) }

func (p *Parser) cur() token.Token { return p.toks[p.pos] }

func (p *Parser) at(t token.Type) bool { return p.cur().Type == t }

func (p *Parser) atAny(ts ...token.Type) bool {
	for _, t := range ts {
		if p.at(t) {
			return true
		}
	}
	return false
}

func (p *Parser) advance() token.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) expect(t token.Type, what string) (token.Token, error) {
	if !p.at(t) {
		return token.Token{}, errs.New(errs.ParseError, p.cur().Pos, "expected %s, got %q", what, p.cur().Literal)
	}
	return p.advance(), nil
}

func (p *Parser) skipNewlines() {
	for p.at(token.NEWLINE) || p.at(token.SECTIONCOMMENT) {
		p.advance()
	}
}

// --- program & metadata ---

func (p *Parser) parseProgram() (*ast.Program, error) {
	prog := &ast.Program{Base: ast.NewBase(p.cur().Pos)}
	p.skipNewlines()
	for p.at(token.AT) {
		m, err := p.parseMetadata()
		if err != nil {
			return nil, err
		}
		prog.Metadata = append(prog.Metadata, m)
		p.skipNewlines()
	}
	body, err := p.parseStatements(func() bool { return p.at(token.EOF) })
	if err != nil {
		return nil, err
	}
	prog.Body = body
	return prog, nil
}

func (p *Parser) parseMetadata() (ast.Metadata, error) {
	at := p.cur().Pos
	if _, err := p.expect(token.AT, "'@'"); err != nil {
		return ast.Metadata{}, err
	}
	name, err := p.expect(token.IDENT, "metadata name")
	if err != nil {
		return ast.Metadata{}, err
	}
	var sb strings.Builder
	for !p.at(token.NEWLINE) && !p.at(token.EOF) {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(p.advance().Literal)
	}
	p.skipNewlines()
	return ast.Metadata{Base: ast.NewBase(at), Name: name.Literal, Value: strings.TrimSpace(sb.String())}, nil
}

// parseStatements parses statements until stop() reports true, consuming
// NEWLINE separators and blank lines between them.
func (p *Parser) parseStatements(stop func() bool) ([]ast.Node, error) {
	var out []ast.Node
	p.skipNewlines()
	for !stop() {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			out = append(out, stmt)
		}
		p.skipNewlines()
	}
	return out, nil
}

func (p *Parser) parseBlock() (*ast.Block, error) {
	at := p.cur().Pos
	if _, err := p.expect(token.COLON, "':'"); err != nil {
		return nil, err
	}
	p.skipNewlines()
	if _, err := p.expect(token.INDENT, "indented block"); err != nil {
		return nil, err
	}
	stmts, err := p.parseStatements(func() bool { return p.at(token.DEDENT) || p.at(token.EOF) })
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.DEDENT, "dedent"); err != nil {
		return nil, err
	}
	return &ast.Block{Base: ast.NewBase(at), Statements: stmts}, nil
}

// --- statements ---

func (p *Parser) parseStatement() (ast.Node, error) {
	switch p.cur().Type {
	case token.KIF:
		return p.parseIf()
	case token.KFOR:
		return p.parseFor()
	case token.KWHILE:
		return p.parseWhile()
	case token.KUNTIL:
		return p.parseUntilStmt()
	case token.KTRY:
		return p.parseTry()
	case token.KASSERT:
		return p.parseAssert()
	case token.KREQUIRE:
		return p.parseRequire()
	case token.KAGENT:
		return p.parseAgentOrMacroDef(true)
	case token.KMACRO:
		return p.parseAgentOrMacroDef(false)
	case token.KPERMISSIONS:
		return p.parsePermissions()
	case token.KIMPORT:
		return p.parseImport()
	case token.KUSE:
		return p.parseUse()
	case token.KEMIT:
		return p.parseEmit()
	case token.KON:
		return p.parseOn()
	case token.KRETURN:
		return p.parseReturn()
	case token.KBREAK:
		b := &ast.BreakStatement{Base: ast.NewBase(p.cur().Pos)}
		p.advance()
		return b, nil
	case token.TRIPLEHASH:
		return p.parseAtomic()
	case token.LBRACK:
		if stmt, ok, err := p.tryParseDestructure(); ok || err != nil {
			return stmt, err
		}
	}
	return p.parseExprOrAssignStatement()
}

func (p *Parser) parseExprOrAssignStatement() (ast.Node, error) {
	startPos := p.cur().Pos
	if p.at(token.IDENT) {
		save := p.save()
		name := p.cur().Literal
		p.advance()
		if p.at(token.WALRUS) {
			p.advance()
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			return &ast.Assignment{Base: ast.NewBase(startPos), Targets: []string{name}, Value: val}, nil
		}
		if p.at(token.PLUSEQ) {
			p.advance()
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			return &ast.PlusAssignment{Base: ast.NewBase(startPos), Target: name, Value: val}, nil
		}
		p.restore(save)
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return expr, nil
}

// tryParseDestructure attempts `[a,b,c] := expr`; on failure it restores the
// cursor and reports ok=false so the caller falls back to a normal
// expression (list literal) parse.
func (p *Parser) tryParseDestructure() (ast.Node, bool, error) {
	save := p.save()
	startPos := p.cur().Pos
	p.advance() // '['
	var names []string
	for !p.at(token.RBRACK) {
		if !p.at(token.IDENT) {
			p.restore(save)
			return nil, false, nil
		}
		names = append(names, p.advance().Literal)
		if p.at(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	if !p.at(token.RBRACK) {
		p.restore(save)
		return nil, false, nil
	}
	p.advance() // ']'
	if !p.at(token.WALRUS) {
		p.restore(save)
		return nil, false, nil
	}
	p.advance()
	val, err := p.parseExpr()
	if err != nil {
		return nil, true, err
	}
	return &ast.Assignment{Base: ast.NewBase(startPos), Targets: names, Value: val}, true, nil
}

func (p *Parser) parseIf() (ast.Node, error) {
	startPos := p.cur().Pos
	p.advance()
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	node := &ast.If{Base: ast.NewBase(startPos), Cond: cond, Then: then}
	for {
		save := p.save()
		p.skipNewlines()
		if !p.at(token.KELIF) {
			p.restore(save)
			break
		}
		p.advance()
		c, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		b, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		node.Elifs = append(node.Elifs, ast.ElifClause{Cond: c, Body: b})
	}
	save := p.save()
	p.skipNewlines()
	if p.at(token.KELSE) {
		p.advance()
		b, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		node.Else = b
	} else {
		p.restore(save)
	}
	return node, nil
}

func (p *Parser) parseFor() (*ast.For, error) {
	startPos := p.cur().Pos
	p.advance()
	name, err := p.expect(token.IDENT, "loop variable")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.KIN, "'in'"); err != nil {
		return nil, err
	}
	iter, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.For{Base: ast.NewBase(startPos), Var: name.Literal, Iter: iter, Body: body}, nil
}

func (p *Parser) parseWhile() (ast.Node, error) {
	startPos := p.cur().Pos
	p.advance()
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.While{Base: ast.NewBase(startPos), Cond: cond, Body: body}, nil
}

// --- events ---

func (p *Parser) parseEmit() (ast.Node, error) {
	startPos := p.cur().Pos
	p.advance()
	name, err := p.expect(token.IDENT, "event name")
	if err != nil {
		return nil, err
	}
	e := &ast.Emit{Base: ast.NewBase(startPos), Name: name.Literal}
	if p.at(token.LPAREN) {
		p.advance()
		if !p.at(token.RPAREN) {
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			e.Payload = val
		}
		if _, err := p.expect(token.RPAREN, "')'"); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (p *Parser) parseOn() (ast.Node, error) {
	startPos := p.cur().Pos
	p.advance()
	name, err := p.expect(token.IDENT, "event name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.KAS, "'as'"); err != nil {
		return nil, err
	}
	v, err := p.expect(token.IDENT, "handler variable")
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.On{Base: ast.NewBase(startPos), Name: name.Literal, Var: v.Literal, Body: body}, nil
}

func (p *Parser) parseReturn() (ast.Node, error) {
	startPos := p.cur().Pos
	p.advance()
	r := &ast.ReturnStatement{Base: ast.NewBase(startPos)}
	if !p.at(token.NEWLINE) && !p.at(token.EOF) && !p.at(token.DEDENT) {
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		r.Value = val
	}
	return r, nil
}

// --- try/assert/require ---

func (p *Parser) parseTry() (ast.Node, error) {
	startPos := p.cur().Pos
	p.advance()
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	node := &ast.Try{Base: ast.NewBase(startPos), Body: body}
	for {
		save := p.save()
		p.skipNewlines()
		if !p.at(token.KEXCEPT) {
			p.restore(save)
			break
		}
		p.advance()
		var errType string
		if p.at(token.IDENT) {
			errType = p.advance().Literal
		}
		b, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		node.Excepts = append(node.Excepts, ast.ExceptClause{ErrorType: errType, Body: b})
	}
	save := p.save()
	p.skipNewlines()
	if p.at(token.KFINALLY) {
		p.advance()
		b, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		node.Finally = b
	} else {
		p.restore(save)
	}
	return node, nil
}

func (p *Parser) parseAssert() (ast.Node, error) {
	startPos := p.cur().Pos
	p.advance()
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	a := &ast.Assert{Base: ast.NewBase(startPos), Cond: cond}
	if p.at(token.COMMA) {
		p.advance()
		msg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		a.Msg = msg
	}
	return a, nil
}

func (p *Parser) parseRequire() (ast.Node, error) {
	startPos := p.cur().Pos
	p.advance()
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	r := &ast.Require{Base: ast.NewBase(startPos), Cond: cond}
	if p.at(token.COMMA) {
		p.advance()
		msg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		r.Msg = msg
	}
	return r, nil
}

// --- definitions ---

func (p *Parser) parseParamList() ([]ast.ParamDef, error) {
	if _, err := p.expect(token.LPAREN, "'('"); err != nil {
		return nil, err
	}
	var params []ast.ParamDef
	for !p.at(token.RPAREN) {
		name, err := p.expect(token.IDENT, "parameter name")
		if err != nil {
			return nil, err
		}
		pd := ast.ParamDef{Name: name.Literal}
		if p.at(token.WALRUS) || p.at(token.COLON) {
			p.advance()
			def, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			pd.Default = def
		}
		params = append(params, pd)
		if p.at(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(token.RPAREN, "')'"); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *Parser) parseAgentOrMacroDef(isAgent bool) (ast.Node, error) {
	startPos := p.cur().Pos
	p.advance()
	name, err := p.expect(token.IDENT, "name")
	if err != nil {
		return nil, err
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if isAgent {
		return &ast.AgentDef{Base: ast.NewBase(startPos), Name: name.Literal, Params: params, Body: body}, nil
	}
	return &ast.MacroDef{Base: ast.NewBase(startPos), Name: name.Literal, Params: params, Body: body}, nil
}

func (p *Parser) parsePermissions() (ast.Node, error) {
	startPos := p.cur().Pos
	p.advance()
	if _, err := p.expect(token.COLON, "':'"); err != nil {
		return nil, err
	}
	p.skipNewlines()
	if _, err := p.expect(token.INDENT, "indented block"); err != nil {
		return nil, err
	}
	var sb strings.Builder
	depth := 1
	for depth > 0 {
		switch p.cur().Type {
		case token.INDENT:
			depth++
		case token.DEDENT:
			depth--
			if depth == 0 {
				p.advance()
				continue
			}
		case token.EOF:
			return nil, errs.New(errs.ParseError, p.cur().Pos, "unterminated permissions block")
		}
		if depth == 0 {
			break
		}
		tok := p.advance()
		if tok.Type == token.NEWLINE {
			sb.WriteByte('\n')
		} else {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(tok.Literal)
		}
	}
	return &ast.PermissionsBlock{Base: ast.NewBase(startPos), Raw: strings.TrimSpace(sb.String())}, nil
}

func (p *Parser) parseImport() (ast.Node, error) {
	startPos := p.cur().Pos
	p.advance()
	var parts []string
	first, err := p.expect(token.IDENT, "module path")
	if err != nil {
		return nil, err
	}
	parts = append(parts, first.Literal)
	for p.at(token.DOT) {
		p.advance()
		seg, err := p.expect(token.IDENT, "module path segment")
		if err != nil {
			return nil, err
		}
		parts = append(parts, seg.Literal)
	}
	imp := &ast.Import{Base: ast.NewBase(startPos), Path: strings.Join(parts, "/")}
	if p.at(token.KAS) {
		p.advance()
		alias, err := p.expect(token.IDENT, "alias")
		if err != nil {
			return nil, err
		}
		imp.Alias = alias.Literal
	}
	return imp, nil
}

func (p *Parser) parseUse() (ast.Node, error) {
	startPos := p.cur().Pos
	p.advance()
	var kind ast.UseKind
	switch {
	case p.at(token.KMCP):
		kind = ast.UseMCP
		p.advance()
	case p.at(token.KPLUGIN):
		kind = ast.UsePlugin
		p.advance()
	default:
		return nil, errs.New(errs.ParseError, p.cur().Pos, "expected MCP or Plugin after Use")
	}
	if _, err := p.expect(token.LPAREN, "'('"); err != nil {
		return nil, err
	}
	name, err := p.expect(token.STRING, "module name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN, "')'"); err != nil {
		return nil, err
	}
	use := &ast.Use{Base: ast.NewBase(startPos), Kind: kind, Name: stripVersionSuffix(name.Literal)}
	if p.at(token.KAS) {
		p.advance()
		alias, err := p.expect(token.IDENT, "alias")
		if err != nil {
			return nil, err
		}
		use.Alias = alias.Literal
	}
	return use, nil
}

func stripVersionSuffix(name string) string {
	if i := strings.IndexByte(name, '@'); i >= 0 {
		return name[:i]
	}
	return name
}

// --- atomic blocks ---

func (p *Parser) parseAtomic() (ast.Node, error) {
	startPos := p.cur().Pos
	p.advance() // opening ###
	p.skipNewlines()
	stmts, err := p.parseStatements(func() bool { return p.at(token.TRIPLEHASH) || p.at(token.EOF) })
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.TRIPLEHASH, "closing '###'"); err != nil {
		return nil, err
	}
	return &ast.AtomicBlock{Base: ast.NewBase(startPos), Body: &ast.Block{Base: ast.NewBase(startPos), Statements: stmts}}, nil
}

// --- expressions, precedence climbing ---

func (p *Parser) parseExpr() (ast.Node, error) { return p.parsePipe() }

func (p *Parser) parsePipe() (ast.Node, error) {
	left, err := p.parseAlternative()
	if err != nil {
		return nil, err
	}
	for p.at(token.PIPE2) {
		opPos := p.cur().Pos
		p.advance()
		right, err := p.parseAlternative()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Base: ast.NewBase(opPos), Op: ">>", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAlternative() (ast.Node, error) {
	left, err := p.parseLogicalOr()
	if err != nil {
		return nil, err
	}
	for p.at(token.BAR) {
		opPos := p.cur().Pos
		p.advance()
		right, err := p.parseLogicalOr()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Base: ast.NewBase(opPos), Op: "|", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseLogicalOr() (ast.Node, error) {
	left, err := p.parseLogicalAnd()
	if err != nil {
		return nil, err
	}
	for p.at(token.KOR) {
		opPos := p.cur().Pos
		p.advance()
		right, err := p.parseLogicalAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Base: ast.NewBase(opPos), Op: "or", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseLogicalAnd() (ast.Node, error) {
	left, err := p.parseUnaryNot()
	if err != nil {
		return nil, err
	}
	for p.at(token.KAND) {
		opPos := p.cur().Pos
		p.advance()
		right, err := p.parseUnaryNot()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Base: ast.NewBase(opPos), Op: "and", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnaryNot() (ast.Node, error) {
	if p.at(token.KNOT) {
		opPos := p.cur().Pos
		p.advance()
		operand, err := p.parseUnaryNot()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Base: ast.NewBase(opPos), Op: "not", Operand: operand}, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[token.Type]string{
	token.EQ: "==", token.NEQ: "!=", token.LT: "<",
	token.LE: "<=", token.GT: ">", token.GE: ">=",
}

func (p *Parser) parseComparison() (ast.Node, error) {
	left, err := p.parseIn()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := comparisonOps[p.cur().Type]
		if !ok {
			break
		}
		opPos := p.cur().Pos
		p.advance()
		right, err := p.parseIn()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Base: ast.NewBase(opPos), Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseIn() (ast.Node, error) {
	left, err := p.parseMerge()
	if err != nil {
		return nil, err
	}
	for p.at(token.KIN) {
		opPos := p.cur().Pos
		p.advance()
		right, err := p.parseMerge()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Base: ast.NewBase(opPos), Op: "in", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMerge() (ast.Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.at(token.PLUS) {
		opPos := p.cur().Pos
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Base: ast.NewBase(opPos), Op: "+", Left: left, Right: right}
	}
	return left, nil
}

// parseMultiplicative handles `*`, `-`, and `/` at the same precedence
// level, per spec.md §4.2's note that `-` and `*` share precedence here.
func (p *Parser) parseMultiplicative() (ast.Node, error) {
	left, err := p.parseUnaryMinus()
	if err != nil {
		return nil, err
	}
	for p.atAny(token.STAR, token.MINUS, token.SLASH) {
		op := p.cur().Literal
		opPos := p.cur().Pos
		p.advance()
		right, err := p.parseUnaryMinus()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Base: ast.NewBase(opPos), Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnaryMinus() (ast.Node, error) {
	if p.at(token.MINUS) {
		opPos := p.cur().Pos
		p.advance()
		operand, err := p.parseUnaryMinus()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Base: ast.NewBase(opPos), Op: "-", Operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (ast.Node, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.at(token.DOT):
			p.advance()
			name, err := p.expect(token.IDENT, "member name")
			if err != nil {
				return nil, err
			}
			expr = &ast.MemberExpr{Base: ast.NewBase(name.Pos), Target: expr, Name: name.Literal}
		case p.at(token.LBRACK):
			bracketPos := p.cur().Pos
			p.advance()
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RBRACK, "']'"); err != nil {
				return nil, err
			}
			expr = &ast.IndexExpr{Base: ast.NewBase(bracketPos), Target: expr, Index: idx}
		case p.at(token.LPAREN):
			parenPos := p.cur().Pos
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			expr = &ast.CallExpr{Base: ast.NewBase(parenPos), Callee: expr, Args: args}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parseArgs() ([]ast.Arg, error) {
	if _, err := p.expect(token.LPAREN, "'('"); err != nil {
		return nil, err
	}
	var args []ast.Arg
	for !p.at(token.RPAREN) {
		arg, err := p.parseArg()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.at(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(token.RPAREN, "')'"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parseArg() (ast.Arg, error) {
	if p.at(token.IDENT) {
		save := p.save()
		name := p.cur().Literal
		p.advance()
		if p.at(token.COLON) {
			p.advance()
			val, err := p.parseExpr()
			if err != nil {
				return ast.Arg{}, err
			}
			return ast.Arg{Name: name, Value: val}, nil
		}
		p.restore(save)
	}
	val, err := p.parseExpr()
	if err != nil {
		return ast.Arg{}, err
	}
	return ast.Arg{Value: val}, nil
}

// parseTags attempts to parse `<name[=value], ...>` with a try/restore
// cursor, since `<` also starts a comparison. A failed tag parse restores
// and leaves the comparison interpretation in place.
func (p *Parser) parseTags() []ast.Tag {
	if !p.at(token.LT) {
		return nil
	}
	save := p.save()
	p.advance()
	var tags []ast.Tag
	for {
		if !p.at(token.IDENT) {
			p.restore(save)
			return nil
		}
		name := p.advance().Literal
		tag := ast.Tag{Name: name}
		if p.at(token.ASSIGN) {
			p.advance()
			val, err := p.parseTagValue()
			if err != nil {
				p.restore(save)
				return nil
			}
			tag.Value = val
		}
		tags = append(tags, tag)
		if p.at(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	if !p.at(token.GT) {
		p.restore(save)
		return nil
	}
	p.advance()
	return tags
}

// parseTagValue parses the restricted expression grammar valid inside a
// tag value: literals, identifiers, and simple unary-minus numbers. This
// avoids swallowing a trailing '>' as a comparison inside the tag parse.
func (p *Parser) parseTagValue() (ast.Node, error) {
	switch p.cur().Type {
	case token.STRING:
		t := p.advance()
		return &ast.StringLiteral{Base: ast.NewBase(t.Pos), Value: t.Literal}, nil
	case token.NUMBER:
		t := p.advance()
		return &ast.NumberLiteral{Base: ast.NewBase(t.Pos), Value: t.Num, Unit: t.Unit}, nil
	case token.BOOLEAN:
		t := p.advance()
		return &ast.BooleanLiteral{Base: ast.NewBase(t.Pos), Value: t.Literal == "true"}, nil
	case token.IDENT:
		t := p.advance()
		return &ast.Identifier{Base: ast.NewBase(t.Pos), Name: t.Literal}, nil
	case token.MINUS:
		opPos := p.cur().Pos
		p.advance()
		t, err := p.expect(token.NUMBER, "number")
		if err != nil {
			return nil, err
		}
		return &ast.NumberLiteral{Base: ast.NewBase(opPos), Value: -t.Num, Unit: t.Unit}, nil
	default:
		return nil, errs.New(errs.ParseError, p.cur().Pos, "invalid tag value")
	}
}

func (p *Parser) parsePrimary() (ast.Node, error) {
	t := p.cur()
	switch t.Type {
	case token.STRING:
		p.advance()
		return parseStringLiteral(t)
	case token.DOCSTRING:
		p.advance()
		return &ast.StringLiteral{Base: ast.NewBase(t.Pos), Value: t.Literal}, nil
	case token.NUMBER:
		p.advance()
		return &ast.NumberLiteral{Base: ast.NewBase(t.Pos), Value: t.Num, Unit: t.Unit}, nil
	case token.BOOLEAN:
		p.advance()
		return &ast.BooleanLiteral{Base: ast.NewBase(t.Pos), Value: t.Literal == "true"}, nil
	case token.NULL:
		p.advance()
		return &ast.NullLiteral{Base: ast.NewBase(t.Pos)}, nil
	case token.USCORE:
		p.advance()
		return &ast.ImplicitContext{Base: ast.NewBase(t.Pos)}, nil
	case token.LPAREN:
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN, "')'"); err != nil {
			return nil, err
		}
		return expr, nil
	case token.LBRACK:
		return p.parseListLiteral()
	case token.LBRACE:
		return p.parseDictLiteral()
	case token.KFORK:
		return p.parseFork()
	case token.KLISTEN:
		p.advance()
		if _, err := p.expect(token.LPAREN, "'('"); err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN, "')'"); err != nil {
			return nil, err
		}
		return &ast.ListenExpression{Base: ast.NewBase(t.Pos)}, nil
	case token.KSTREAM:
		p.advance()
		if _, err := p.expect(token.LPAREN, "'('"); err != nil {
			return nil, err
		}
		src, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN, "')'"); err != nil {
			return nil, err
		}
		return &ast.StreamExpression{Base: ast.NewBase(t.Pos), Source: src}, nil
	case token.KDISCOVER, token.IDENT:
		return p.parseOperationOrIdentifier()
	default:
		return nil, errs.New(errs.ParseError, t.Pos, "unexpected token %q", t.Literal)
	}
}

func parseStringLiteral(t token.Token) (ast.Node, error) {
	parts, hasExpr, err := interpolate(t.Literal, t.Pos)
	if err != nil {
		return nil, err
	}
	if !hasExpr {
		return &ast.StringLiteral{Base: ast.NewBase(t.Pos), Value: t.Literal}, nil
	}
	return &ast.InterpolatedString{Base: ast.NewBase(t.Pos), Parts: parts}, nil
}

// interpolate scans a string literal's raw content for `$identifier`,
// `$_`, and `${expr}` segments. Dotted identifiers become nested member
// accesses. Returns hasExpr=false when the string had no interpolation,
// letting the caller fall back to a plain StringLiteral.
func interpolate(s string, base errs.Position) ([]ast.InterpPart, bool, error) {
	var parts []ast.InterpPart
	hasExpr := false
	var lit strings.Builder
	flushLit := func() {
		if lit.Len() > 0 {
			parts = append(parts, ast.InterpPart{Literal: lit.String()})
			lit.Reset()
		}
	}
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '$' || i == len(runes)-1 {
			lit.WriteRune(r)
			continue
		}
		next := runes[i+1]
		switch {
		case next == '_':
			flushLit()
			parts = append(parts, ast.InterpPart{Expr: &ast.ImplicitContext{Base: ast.NewBase(base)}})
			hasExpr = true
			i++
		case next == '{':
			end := strings.IndexByte(string(runes[i+2:]), '}')
			if end < 0 {
				lit.WriteRune(r)
				continue
			}
			exprSrc := string(runes[i+2 : i+2+end])
			node, err := ParseExprString(exprSrc, base)
			if err != nil {
				return nil, false, err
			}
			flushLit()
			parts = append(parts, ast.InterpPart{Expr: node})
			hasExpr = true
			i = i + 2 + end
		case isIdentStartRune(next):
			j := i + 1
			for j < len(runes) && isIdentPartRune(runes[j]) {
				j++
			}
			name := string(runes[i+1 : j])
			flushLit()
			var node ast.Node = &ast.Identifier{Base: ast.NewBase(base), Name: strings.SplitN(name, ".", 2)[0]}
			segs := strings.Split(name, ".")
			for _, seg := range segs[1:] {
				node = &ast.MemberExpr{Base: ast.NewBase(base), Target: node, Name: seg}
			}
			parts = append(parts, ast.InterpPart{Expr: node})
			hasExpr = true
			i = j - 1
		default:
			lit.WriteRune(r)
		}
	}
	flushLit()
	return parts, hasExpr, nil
}

// ParseExprString parses a single expression from raw text, used for
// `${expr}` interpolation segments. All resulting tokens are attributed to
// base since the nested text has no independent column tracking.
func ParseExprString(src string, base errs.Position) (ast.Node, error) {
	lx := lexer.New(base.File, src)
	toks, err := lx.Tokenize()
	if err != nil {
		return nil, err
	}
	p := &Parser{file: base.File, toks: toks}
	return p.parseExpr()
}

func isIdentStartRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentPartRune(r rune) bool {
	return isIdentStartRune(r) || (r >= '0' && r <= '9') || r == '.'
}

func (p *Parser) parseListLiteral() (ast.Node, error) {
	startPos := p.cur().Pos
	p.advance()
	var items []ast.Node
	p.skipNewlines()
	for !p.at(token.RBRACK) {
		item, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		p.skipNewlines()
		if p.at(token.COMMA) {
			p.advance()
			p.skipNewlines()
			continue
		}
		break
	}
	p.skipNewlines()
	if _, err := p.expect(token.RBRACK, "']'"); err != nil {
		return nil, err
	}
	return &ast.ListLiteral{Base: ast.NewBase(startPos), Items: items}, nil
}

func (p *Parser) parseDictLiteral() (ast.Node, error) {
	startPos := p.cur().Pos
	p.advance()
	var entries []ast.DictEntry
	p.skipNewlines()
	for !p.at(token.RBRACE) {
		var key string
		switch p.cur().Type {
		case token.IDENT:
			key = p.advance().Literal
		case token.STRING:
			key = p.advance().Literal
		default:
			return nil, errs.New(errs.ParseError, p.cur().Pos, "expected dict key")
		}
		if _, err := p.expect(token.COLON, "':'"); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		entries = append(entries, ast.DictEntry{Key: key, Value: val})
		p.skipNewlines()
		if p.at(token.COMMA) {
			p.advance()
			p.skipNewlines()
			continue
		}
		break
	}
	p.skipNewlines()
	if _, err := p.expect(token.RBRACE, "'}'"); err != nil {
		return nil, err
	}
	return &ast.DictLiteral{Base: ast.NewBase(startPos), Entries: entries}, nil
}

// parseOperationOrIdentifier handles the several forms that start with an
// identifier: bare identifier, `Name(args)<tags>`, `Name[N](args)`,
// `ns:Name(args)<tags>`.
func (p *Parser) parseOperationOrIdentifier() (ast.Node, error) {
	name := p.advance()

	// Namespaced call: `ns:Name(args)` — only when ':' is followed
	// immediately by an identifier (disambiguates from dict-literal or
	// block-header ':').
	if p.at(token.COLON) {
		save := p.save()
		p.advance()
		if p.at(token.IDENT) {
			opName := p.advance()
			if p.at(token.LPAREN) {
				args, err := p.parseArgs()
				if err != nil {
					return nil, err
				}
				tags := p.parseTags()
				return &ast.NamespacedOperation{
					Base: ast.NewBase(name.Pos), Namespace: name.Literal, Name: opName.Literal,
					Args: args, Tags: tags,
				}, nil
			}
		}
		p.restore(save)
	}

	// Bracketed count: `Name[N](args)`.
	if p.at(token.LBRACK) {
		save := p.save()
		p.advance()
		countExpr, err := p.parseExpr()
		if err == nil && p.at(token.RBRACK) {
			p.advance()
			if p.at(token.LPAREN) {
				args, aerr := p.parseArgs()
				if aerr == nil {
					args = append(args, ast.Arg{Name: "_count", Value: countExpr})
					tags := p.parseTags()
					return &ast.Operation{Base: ast.NewBase(name.Pos), Name: name.Literal, Args: args, Tags: tags}, nil
				}
			}
		}
		p.restore(save)
	}

	if p.at(token.LPAREN) {
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		tags := p.parseTags()
		return &ast.Operation{Base: ast.NewBase(name.Pos), Name: name.Literal, Args: args, Tags: tags}, nil
	}

	return &ast.Identifier{Base: ast.NewBase(name.Pos), Name: name.Literal}, nil
}

// --- fork ---

func (p *Parser) parseFork() (ast.Node, error) {
	startPos := p.cur().Pos
	p.advance()
	f := &ast.ForkExpression{Base: ast.NewBase(startPos)}
	if p.at(token.LBRACK) {
		p.advance()
		n, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RBRACK, "']'"); err != nil {
			return nil, err
		}
		f.Count = n
	}
	if _, err := p.expect(token.COLON, "':'"); err != nil {
		return nil, err
	}
	p.skipNewlines()
	if _, err := p.expect(token.INDENT, "indented fork body"); err != nil {
		return nil, err
	}

	// A single nested `for` statement yields the fork-for variant.
	if p.at(token.KFOR) {
		forNode, err := p.parseFor()
		if err != nil {
			return nil, err
		}
		p.skipNewlines()
		if _, err := p.expect(token.DEDENT, "dedent"); err != nil {
			return nil, err
		}
		f.ForLoop = forNode
		return f, nil
	}

	for !p.at(token.DEDENT) && !p.at(token.EOF) {
		branch, err := p.parseForkBranch()
		if err != nil {
			return nil, err
		}
		f.Branches = append(f.Branches, branch)
		p.skipNewlines()
	}
	if _, err := p.expect(token.DEDENT, "dedent"); err != nil {
		return nil, err
	}
	return f, nil
}

// parseForkBranch parses either `name: expr` (named) or a bare expression
// (unnamed). The lookahead tries `IDENT ':'` first; if that doesn't hold,
// falls back to a bare expression.
func (p *Parser) parseForkBranch() (ast.ForkBranch, error) {
	if p.at(token.IDENT) {
		save := p.save()
		name := p.cur().Literal
		p.advance()
		if p.at(token.COLON) {
			p.advance()
			expr, err := p.parseExpr()
			if err != nil {
				return ast.ForkBranch{}, err
			}
			return ast.ForkBranch{Name: name, Expr: expr}, nil
		}
		p.restore(save)
	}
	expr, err := p.parseExpr()
	if err != nil {
		return ast.ForkBranch{}, err
	}
	return ast.ForkBranch{Expr: expr}, nil
}

// --- until ---

func (p *Parser) parseUntilStmt() (ast.Node, error) {
	startPos := p.cur().Pos
	p.advance()
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	tags := p.parseTags()
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.Until{Base: ast.NewBase(startPos), Cond: cond, Body: body, Tags: tags}, nil
}

