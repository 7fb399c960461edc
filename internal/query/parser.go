package query

import (
	"strconv"
)

// Parser parses tokens into a Query AST.
//
// Grammar, loosest binding first:
//
//	or      = and { "OR" and }
//	and     = unary { ["AND"] unary }
//	unary   = ["NOT" | "-"] boosted
//	boosted = primary ["^" number]
//	primary = TERM | PHRASE | "(" or ")" | FIELD ( TERM | PHRASE | "(" or ")" )
//
// A field prefix on a group applies to every clause inside it that does
// not name its own field.
type Parser struct {
	tokens []Token
	pos    int
}

// NewParser creates a new parser.
func NewParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse parses tokens into a Query AST.
func Parse(tokens []Token) (Query, error) {
	return NewParser(tokens).Parse()
}

// ParseString tokenizes and parses a query string.
func ParseString(input string) (Query, error) {
	tokens, err := Tokenize(input)
	if err != nil {
		return nil, err
	}
	return Parse(tokens)
}

// Parse parses the tokens into a Query AST. An empty input yields a nil
// query.
func (p *Parser) Parse() (Query, error) {
	if p.current().Type == TokenEOF {
		return nil, nil
	}

	query, err := p.parseOr("")
	if err != nil {
		return nil, err
	}

	if tok := p.current(); tok.Type != TokenEOF {
		return nil, syntaxErrorf(tok.Pos, "unexpected %s", tok)
	}
	return query, nil
}

func (p *Parser) current() Token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	eof := Token{Type: TokenEOF}
	if n := len(p.tokens); n > 0 {
		eof.Pos = p.tokens[n-1].Pos
	}
	return eof
}

func (p *Parser) advance() Token {
	tok := p.current()
	p.pos++
	return tok
}

// startsClause reports whether t can begin an implicitly AND-ed clause.
func startsClause(t TokenType) bool {
	switch t {
	case TokenTerm, TokenPhrase, TokenField, TokenLParen, TokenNot:
		return true
	}
	return false
}

func (p *Parser) parseOr(field string) (Query, error) {
	first, err := p.parseAnd(field)
	if err != nil {
		return nil, err
	}

	clauses := []Query{first}
	for p.current().Type == TokenOr {
		p.advance()
		next, err := p.parseAnd(field)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, next)
	}

	if len(clauses) == 1 {
		return first, nil
	}
	return &BoolQuery{Should: clauses}, nil
}

func (p *Parser) parseAnd(field string) (Query, error) {
	first, err := p.parseUnary(field)
	if err != nil {
		return nil, err
	}

	clauses := []Query{first}
	for {
		switch {
		case p.current().Type == TokenAnd:
			p.advance()
		case startsClause(p.current().Type):
		default:
			if len(clauses) == 1 {
				return first, nil
			}
			return &BoolQuery{Must: clauses}, nil
		}
		next, err := p.parseUnary(field)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, next)
	}
}

func (p *Parser) parseUnary(field string) (Query, error) {
	if p.current().Type != TokenNot {
		return p.parseBoosted(field)
	}
	p.advance()
	expr, err := p.parseBoosted(field)
	if err != nil {
		return nil, err
	}
	return &BoolQuery{MustNot: []Query{expr}}, nil
}

// parseBoosted parses a primary expression and an optional ^N suffix.
func (p *Parser) parseBoosted(field string) (Query, error) {
	q, err := p.parsePrimary(field)
	if err != nil {
		return nil, err
	}
	if p.current().Type != TokenBoost {
		return q, nil
	}
	tok := p.advance()
	boost, err := strconv.ParseFloat(tok.Value, 32)
	if err != nil {
		return nil, syntaxErrorf(tok.Pos, "invalid boost %q", tok.Value)
	}
	return withBoost(q, float32(boost)), nil
}

func (p *Parser) parsePrimary(field string) (Query, error) {
	tok := p.current()

	switch tok.Type {
	case TokenLParen:
		return p.parseGroup(field)
	case TokenField:
		p.advance()
		return p.parseFieldValue(tok)
	case TokenPhrase:
		p.advance()
		return &PhraseQuery{Field: field, Phrase: tok.Value}, nil
	case TokenTerm:
		p.advance()
		return &TermQuery{Field: field, Term: tok.Value}, nil
	case TokenEOF:
		return nil, syntaxErrorf(tok.Pos, "unexpected end of query")
	default:
		return nil, syntaxErrorf(tok.Pos, "unexpected %s", tok)
	}
}

func (p *Parser) parseGroup(field string) (Query, error) {
	open := p.advance()

	expr, err := p.parseOr(field)
	if err != nil {
		return nil, err
	}

	if p.current().Type != TokenRParen {
		return nil, syntaxErrorf(open.Pos, "unmatched '('")
	}
	p.advance()
	return expr, nil
}

// parseFieldValue parses what follows a field prefix.
func (p *Parser) parseFieldValue(fieldTok Token) (Query, error) {
	field := fieldTok.Value
	tok := p.current()

	switch tok.Type {
	case TokenPhrase:
		p.advance()
		return &PhraseQuery{Field: field, Phrase: tok.Value}, nil
	case TokenTerm:
		p.advance()
		return &TermQuery{Field: field, Term: tok.Value}, nil
	case TokenLParen:
		return p.parseGroup(field)
	default:
		return nil, syntaxErrorf(fieldTok.Pos, "expected term after field '%s:'", field)
	}
}
