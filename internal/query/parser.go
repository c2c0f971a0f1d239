package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rhema-dev/rhema/internal/rhema"
)

var resourceKinds = map[string]rhema.ResourceKind{
	"knowledge":   rhema.KindKnowledge,
	"todos":       rhema.KindTodos,
	"decisions":   rhema.KindDecisions,
	"patterns":    rhema.KindPatterns,
	"conventions": rhema.KindConventions,
	"scopes":      rhema.KindScopes,
}

type parser struct {
	tokens []token
	pos    int
}

// Parse parses a CQL statement into a Query. The target token is split off
// the raw string first, exactly as the original implementation's
// regex-based parser does, since the scope-glob prefix it carries
// ("./x/todos", "../x/knowledge", "*/todos") is not itself tokenizable without
// ambiguity against path-projection dots. Everything after the target
// (WHERE / ORDER BY / LIMIT / OFFSET) is tokenized and parsed normally,
// extending the original's single "=" operator to the fixed grammar's
// full operator and clause set.
func Parse(cql string) (*Query, error) {
	cql = strings.TrimSpace(cql)
	if cql == "" {
		return nil, fmt.Errorf("empty query")
	}

	targetTok, rest := splitTargetToken(cql)
	if targetTok == "" {
		return nil, fmt.Errorf("cql: missing query target")
	}

	q := &Query{}
	if err := parseTargetToken(targetTok, q); err != nil {
		return nil, err
	}

	tokens, err := tokenize(rest)
	if err != nil {
		return nil, fmt.Errorf("cql: %w", err)
	}
	p := &parser{tokens: tokens}

	for {
		kw := p.peekUpper()
		switch kw {
		case "WHERE":
			p.next()
			if err := p.parseConditions(q); err != nil {
				return nil, err
			}
		case "ORDER":
			p.next()
			if err := p.expectKeyword("BY"); err != nil {
				return nil, err
			}
			if err := p.parseOrderBy(q); err != nil {
				return nil, err
			}
		case "LIMIT":
			p.next()
			n, err := p.expectNumber("LIMIT")
			if err != nil {
				return nil, err
			}
			q.Limit = n
			q.HasLimit = true
		case "OFFSET":
			p.next()
			n, err := p.expectNumber("OFFSET")
			if err != nil {
				return nil, err
			}
			q.Offset = n
		case "":
			return q, nil
		default:
			return nil, fmt.Errorf("cql: unexpected token %q", p.peek().text)
		}
	}
}

func (p *parser) peek() token {
	if p.pos >= len(p.tokens) {
		return token{kind: tokEOF}
	}
	return p.tokens[p.pos]
}

func (p *parser) peekUpper() string {
	t := p.peek()
	if t.kind != tokIdent {
		return ""
	}
	return strings.ToUpper(t.text)
}

func (p *parser) next() token {
	t := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return t
}

func (p *parser) expectKeyword(word string) error {
	t := p.next()
	if t.kind != tokIdent || strings.ToUpper(t.text) != word {
		return fmt.Errorf("cql: expected %q, got %q", word, t.text)
	}
	return nil
}

func (p *parser) expectNumber(ctx string) (int, error) {
	t := p.next()
	if t.kind != tokNumber {
		return 0, fmt.Errorf("cql: %s expects a number, got %q", ctx, t.text)
	}
	n, err := strconv.Atoi(t.text)
	if err != nil {
		return 0, fmt.Errorf("cql: invalid %s value %q", ctx, t.text)
	}
	return n, nil
}

// splitTargetToken peels the leading whitespace-delimited target token off
// a raw CQL statement, returning it and the untouched remainder (which may
// start with WHERE / ORDER BY / LIMIT / OFFSET, or be empty). This mirrors
// the original implementation's `^([^\s]+)(?:\s+...)?$` split.
func splitTargetToken(cql string) (target, rest string) {
	idx := strings.IndexFunc(cql, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' })
	if idx < 0 {
		return cql, ""
	}
	return cql[:idx], strings.TrimSpace(cql[idx+1:])
}

// parseTargetToken decomposes the target token into an optional
// scope-addressing prefix, the resource kind, and an optional dotted YAML
// path projection, e.g. "*/todos.items.0", "./services/api/knowledge",
// "knowledge.metadata.owner", or a bare "todos".
//
// The scope glob and resource are split on the last '/': wildcard (*) and
// relative (./, ../) prefixes address every scope known to the Store
// exactly as the original resolver's resolve_target_scopes does; a bare
// resource name with no '/' leaves the scope glob empty, meaning "every
// scope that has this file" (again matching the original's default case).
func parseTargetToken(raw string, q *Query) error {
	scopeGlob, tail := "", raw
	if idx := strings.LastIndex(raw, "/"); idx >= 0 {
		scopeGlob, tail = raw[:idx], raw[idx+1:]
	}
	q.ScopeGlob = scopeGlob

	resourceName, path := tail, ""
	if idx := strings.Index(tail, "."); idx >= 0 {
		resourceName, path = tail[:idx], tail[idx+1:]
	}

	kind, ok := resourceKinds[resourceName]
	if !ok {
		return fmt.Errorf("cql: unknown target resource %q", resourceName)
	}
	q.Target = kind
	q.YAMLPath = path
	return nil
}

func (p *parser) parseConditions(q *Query) error {
	for {
		cond, err := p.parseCondition()
		if err != nil {
			return err
		}
		q.Conditions = append(q.Conditions, cond)

		if p.peekUpper() == "AND" {
			p.next()
			continue
		}
		return nil
	}
}

func (p *parser) parseCondition() (Condition, error) {
	field := p.next()
	if field.kind != tokIdent {
		return Condition{}, fmt.Errorf("cql: expected a field name, got %q", field.text)
	}

	op, err := p.parseOperator()
	if err != nil {
		return Condition{}, err
	}

	cond := Condition{Field: field.text, Operator: op}

	switch op {
	case OpIsNull, OpIsNotNull:
		return cond, nil
	case OpIn, OpNotIn:
		values, err := p.parseValueList()
		if err != nil {
			return Condition{}, err
		}
		cond.Values = values
		return cond, nil
	default:
		val, err := p.parseValue()
		if err != nil {
			return Condition{}, err
		}
		cond.Value = val
		return cond, nil
	}
}

// parseOperator consumes one of the fixed comparison operators. Multi-word
// operators (NOT LIKE, IS NULL, ...) are assembled from consecutive ident
// tokens since the lexer does not special-case keywords.
func (p *parser) parseOperator() (Operator, error) {
	t := p.next()
	switch t.text {
	case "=":
		return OpEq, nil
	case "!=":
		return OpNeq, nil
	case ">":
		return OpGt, nil
	case ">=":
		return OpGte, nil
	case "<":
		return OpLt, nil
	case "<=":
		return OpLte, nil
	case "LIKE":
		return OpLike, nil
	case "CONTAINS":
		return OpContains, nil
	case "IN":
		return OpIn, nil
	case "IS":
		nxt := strings.ToUpper(p.next().text)
		if nxt == "NULL" {
			return OpIsNull, nil
		}
		if nxt == "NOT" {
			if err := p.expectKeyword("NULL"); err != nil {
				return "", err
			}
			return OpIsNotNull, nil
		}
		return "", fmt.Errorf("cql: expected NULL or NOT NULL after IS")
	case "NOT":
		nxt := strings.ToUpper(p.next().text)
		switch nxt {
		case "LIKE":
			return OpNotLike, nil
		case "IN":
			return OpNotIn, nil
		case "CONTAINS":
			return OpNotContain, nil
		default:
			return "", fmt.Errorf("cql: unsupported operator NOT %s", nxt)
		}
	default:
		return "", fmt.Errorf("cql: unsupported operator %q", t.text)
	}
}

func (p *parser) parseValue() (rhema.Value, error) {
	t := p.next()
	return literalValue(t), nil
}

func (p *parser) parseValueList() ([]rhema.Value, error) {
	if p.peek().kind != tokLParen {
		return nil, fmt.Errorf("cql: expected '(' to start a value list, got %q", p.peek().text)
	}
	p.next()

	var values []rhema.Value
	for {
		if p.peek().kind == tokRParen {
			p.next()
			return values, nil
		}
		values = append(values, literalValue(p.next()))
		if p.peek().kind == tokComma {
			p.next()
			continue
		}
	}
}

// literalValue converts one scalar token into a typed rhema.Value,
// following the original source's convention of folding the bare words
// true/false/null into their typed forms and leaving everything else as a
// string (quoted literals arrive pre-stripped from the lexer).
func literalValue(t token) rhema.Value {
	switch t.kind {
	case tokNumber:
		if n, err := strconv.ParseInt(t.text, 10, 64); err == nil {
			return rhema.Int(n)
		}
		return rhema.String(t.text)
	case tokString:
		return rhema.String(t.text)
	default:
		switch t.text {
		case "true":
			return rhema.Bool(true)
		case "false":
			return rhema.Bool(false)
		case "null":
			return rhema.Null()
		default:
			return rhema.String(t.text)
		}
	}
}

func (p *parser) parseOrderBy(q *Query) error {
	for {
		field := p.next()
		if field.kind != tokIdent {
			return fmt.Errorf("cql: expected an ORDER BY field, got %q", field.text)
		}
		dir := Asc
		switch p.peekUpper() {
		case "ASC":
			p.next()
		case "DESC":
			p.next()
			dir = Desc
		}
		q.OrderBy = append(q.OrderBy, OrderClause{Field: field.text, Direction: dir})

		if p.peek().kind == tokComma {
			p.next()
			continue
		}
		return nil
	}
}
