package query

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type TokenType int

const (
	TokenTerm TokenType = iota
	TokenPhrase
	TokenField
	TokenAnd
	TokenOr
	TokenNot
	TokenLParen
	TokenRParen
	TokenBoost
	TokenEOF
)

var tokenNames = [...]string{
	TokenTerm:   "TERM",
	TokenPhrase: "PHRASE",
	TokenField:  "FIELD",
	TokenAnd:    "AND",
	TokenOr:     "OR",
	TokenNot:    "NOT",
	TokenLParen: "LPAREN",
	TokenRParen: "RPAREN",
	TokenBoost:  "BOOST",
	TokenEOF:    "EOF",
}

func (t TokenType) String() string {
	if t < 0 || int(t) >= len(tokenNames) {
		return "UNKNOWN"
	}
	return tokenNames[t]
}

// Token is a lexical token and the byte offset where it starts.
type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

func (t Token) String() string {
	if t.Value != "" {
		return fmt.Sprintf("%s(%s)", t.Type, t.Value)
	}
	return t.Type.String()
}

// SyntaxError reports malformed query text.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s at position %d", e.Msg, e.Pos)
}

func syntaxErrorf(pos int, format string, args ...any) error {
	return &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// Lexer tokenizes a query string.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a new lexer.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Tokenize tokenizes a query string into tokens ending with TokenEOF.
func Tokenize(query string) ([]Token, error) {
	return NewLexer(query).TokenizeAll()
}

// TokenizeAll returns all tokens from the input.
func (l *Lexer) TokenizeAll() ([]Token, error) {
	var tokens []Token
	for {
		token, err := l.NextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
		if token.Type == TokenEOF {
			return tokens, nil
		}
	}
}

func (l *Lexer) peekRune() (rune, int) {
	if l.pos >= len(l.input) {
		return utf8.RuneError, 0
	}
	return utf8.DecodeRuneInString(l.input[l.pos:])
}

// NextToken returns the next token.
func (l *Lexer) NextToken() (Token, error) {
	for {
		r, size := l.peekRune()
		if size == 0 || !unicode.IsSpace(r) {
			break
		}
		l.pos += size
	}

	start := l.pos
	r, size := l.peekRune()
	if size == 0 {
		return Token{Type: TokenEOF, Pos: start}, nil
	}

	switch r {
	case '(':
		l.pos += size
		return Token{Type: TokenLParen, Value: "(", Pos: start}, nil
	case ')':
		l.pos += size
		return Token{Type: TokenRParen, Value: ")", Pos: start}, nil
	case '"':
		return l.readPhrase()
	case '^':
		return l.readBoost()
	case '-':
		// a dash directly before a clause negates it; elsewhere it is text
		l.pos += size
		if next, n := l.peekRune(); n > 0 && !unicode.IsSpace(next) && next != ')' {
			return Token{Type: TokenNot, Value: "-", Pos: start}, nil
		}
		l.pos = start
	}

	return l.readWord()
}

func isWordEnd(r rune) bool {
	return unicode.IsSpace(r) || r == '(' || r == ')' || r == '"' || r == '^'
}

// scanWord consumes runes up to a word boundary. A backslash escapes the
// rune after it, so `c\:drive` is the single word "c:drive". colon is the
// offset in word of the first unescaped colon, or -1, and resume is the
// input offset just past that colon.
func (l *Lexer) scanWord() (word string, colon, resume int) {
	var sb strings.Builder
	colon = -1
	for {
		r, size := l.peekRune()
		if size == 0 || isWordEnd(r) {
			return sb.String(), colon, resume
		}
		l.pos += size
		if r == '\\' {
			if next, n := l.peekRune(); n > 0 {
				l.pos += n
				sb.WriteRune(next)
				continue
			}
		}
		if r == ':' && colon < 0 {
			colon, resume = sb.Len(), l.pos
		}
		sb.WriteRune(r)
	}
}

func (l *Lexer) readWord() (Token, error) {
	start := l.pos
	word, colon, resume := l.scanWord()
	if word == "" {
		return Token{}, syntaxErrorf(start, "unexpected character")
	}

	switch word {
	case "AND", "&&":
		return Token{Type: TokenAnd, Value: "AND", Pos: start}, nil
	case "OR", "||":
		return Token{Type: TokenOr, Value: "OR", Pos: start}, nil
	case "NOT", "!":
		return Token{Type: TokenNot, Value: "NOT", Pos: start}, nil
	}

	if colon > 0 {
		l.pos = resume
		return Token{Type: TokenField, Value: word[:colon], Pos: start}, nil
	}

	return Token{Type: TokenTerm, Value: word, Pos: start}, nil
}

func (l *Lexer) readPhrase() (Token, error) {
	start := l.pos
	l.pos++ // opening quote

	var sb strings.Builder
	for {
		r, size := l.peekRune()
		if size == 0 {
			return Token{}, syntaxErrorf(start, "unterminated phrase")
		}
		l.pos += size
		switch r {
		case '"':
			return Token{Type: TokenPhrase, Value: sb.String(), Pos: start}, nil
		case '\\':
			if next, n := l.peekRune(); n > 0 && (next == '"' || next == '\\') {
				l.pos += n
				sb.WriteRune(next)
				continue
			}
		}
		sb.WriteRune(r)
	}
}

// readBoost reads a ^N suffix. N must be a positive finite number.
func (l *Lexer) readBoost() (Token, error) {
	start := l.pos
	l.pos++ // caret
	value, _, _ := l.scanWord()

	boost, err := strconv.ParseFloat(value, 32)
	if err != nil || !(boost > 0) || math.IsInf(boost, 0) {
		return Token{}, syntaxErrorf(start, "invalid boost %q: must be a positive number", value)
	}
	return Token{Type: TokenBoost, Value: value, Pos: start}, nil
}
