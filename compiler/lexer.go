package compiler

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for yo source
// ---------------------------------------------------------------------------

// Lexer tokenizes yo source code.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
	col     int  // current column (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
		col:   0,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = l.readPos
		l.col++
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// peekCharAt returns the character n positions after the current one.
func (l *Lexer) peekCharAt(n int) rune {
	p := l.readPos
	var r rune
	for i := 0; i < n; i++ {
		if p >= len(l.input) {
			return 0
		}
		var size int
		r, size = utf8.DecodeRuneInString(l.input[p:])
		p += size
	}
	return r
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.col,
	}
}

// Tokenize returns all tokens up to and including EOF.
func (l *Lexer) Tokenize() []Token {
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			return tokens
		}
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	pos := l.position()
	tok := func(t TokenType, lit string) Token {
		for i, n := 0, utf8.RuneCountInString(lit); i < n; i++ {
			l.readChar()
		}
		return Token{Type: t, Literal: lit, Pos: pos}
	}

	switch ch := l.ch; {
	case ch == 0:
		return Token{Type: TokenEOF, Pos: pos}

	case ch == '"':
		return l.readString(pos)

	case isDigit(ch):
		return l.readNumber(pos)

	case isIdentStart(ch):
		return l.readIdentifier(pos)

	case ch == '#':
		if l.peekChar() == '[' {
			return tok(TokenHashLBracket, "#[")
		}
		if isIdentStart(l.peekChar()) {
			l.readChar()
			ident := l.readIdentifier(pos)
			ident.Literal = "#" + ident.Literal
			ident.Type = TokenIdentifier
			return ident
		}
		return tok(TokenError, "#")

	case ch == '(':
		return tok(TokenLParen, "(")
	case ch == ')':
		return tok(TokenRParen, ")")
	case ch == '{':
		return tok(TokenLBrace, "{")
	case ch == '}':
		return tok(TokenRBrace, "}")
	case ch == '[':
		return tok(TokenLBracket, "[")
	case ch == ']':
		return tok(TokenRBracket, "]")
	case ch == ',':
		return tok(TokenComma, ",")
	case ch == ';':
		return tok(TokenSemicolon, ";")
	case ch == '@':
		return tok(TokenAt, "@")
	case ch == '~':
		return tok(TokenTilde, "~")
	case ch == '^':
		return tok(TokenCaret, "^")
	case ch == '+':
		return tok(TokenPlus, "+")
	case ch == '-':
		return tok(TokenMinus, "-")
	case ch == '*':
		return tok(TokenStar, "*")
	case ch == '/':
		return tok(TokenSlash, "/")
	case ch == '%':
		return tok(TokenPercent, "%")

	case ch == ':':
		if l.peekChar() == ':' {
			return tok(TokenColonColon, "::")
		}
		return tok(TokenColon, ":")

	case ch == '.':
		if l.peekChar() == '.' && l.peekCharAt(2) == '.' {
			return tok(TokenEllipsis, "...")
		}
		if l.peekChar() == '.' && l.peekCharAt(2) == '<' {
			return tok(TokenRangeExcl, "..<")
		}
		return tok(TokenDot, ".")

	case ch == '=':
		if l.peekChar() == '=' {
			return tok(TokenEq, "==")
		}
		return tok(TokenAssign, "=")

	case ch == '!':
		if l.peekChar() == '=' {
			return tok(TokenNotEq, "!=")
		}
		return tok(TokenBang, "!")

	case ch == '<':
		switch l.peekChar() {
		case '=':
			return tok(TokenLE, "<=")
		case '<':
			return tok(TokenShl, "<<")
		}
		return tok(TokenLT, "<")

	case ch == '>':
		switch l.peekChar() {
		case '=':
			return tok(TokenGE, ">=")
		case '>':
			return tok(TokenShr, ">>")
		}
		return tok(TokenGT, ">")

	case ch == '&':
		switch l.peekChar() {
		case '&':
			return tok(TokenAndAnd, "&&")
		case '!':
			return tok(TokenAmpBang, "&!")
		}
		return tok(TokenAmp, "&")

	case ch == '|':
		if l.peekChar() == '|' {
			return tok(TokenOrOr, "||")
		}
		return tok(TokenPipe, "|")
	}

	lit := string(l.ch)
	l.readChar()
	return Token{Type: TokenError, Literal: "unexpected character " + lit, Pos: pos}
}

// skipWhitespaceAndComments skips whitespace, // line comments and
// /* block comments */.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
			l.readChar()
		}

		if l.ch == '/' && l.peekChar() == '/' {
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
			continue
		}

		if l.ch == '/' && l.peekChar() == '*' {
			l.readChar()
			l.readChar()
			for l.ch != 0 && !(l.ch == '*' && l.peekChar() == '/') {
				l.readChar()
			}
			if l.ch != 0 {
				l.readChar()
				l.readChar()
			}
			continue
		}

		return
	}
}

func (l *Lexer) readIdentifier(pos Position) Token {
	start := l.pos
	for isIdentPart(l.ch) {
		l.readChar()
	}
	lit := l.input[start:l.pos]
	if t, ok := keywords[lit]; ok {
		return Token{Type: t, Literal: lit, Pos: pos}
	}
	return Token{Type: TokenIdentifier, Literal: lit, Pos: pos}
}

func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos

	if l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X') {
		l.readChar()
		l.readChar()
		for isHexDigit(l.ch) || l.ch == '_' {
			l.readChar()
		}
		return Token{Type: TokenInteger, Literal: l.input[start:l.pos], Pos: pos}
	}

	for isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}

	// A dot followed by a digit makes a float; `1..<2` and `1...2` are ranges.
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
		if l.ch == 'e' || l.ch == 'E' {
			l.readChar()
			if l.ch == '-' || l.ch == '+' {
				l.readChar()
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
		return Token{Type: TokenFloat, Literal: l.input[start:l.pos], Pos: pos}
	}

	return Token{Type: TokenInteger, Literal: l.input[start:l.pos], Pos: pos}
}

func (l *Lexer) readString(pos Position) Token {
	l.readChar() // opening quote
	var sb strings.Builder
	for l.ch != '"' {
		if l.ch == 0 || l.ch == '\n' {
			return Token{Type: TokenError, Literal: "unterminated string literal", Pos: pos}
		}
		if l.ch == '\\' {
			l.readChar()
			switch l.ch {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case '0':
				sb.WriteRune(0)
			case '"', '\\':
				sb.WriteRune(l.ch)
			default:
				return Token{Type: TokenError, Literal: "invalid escape sequence \\" + string(l.ch), Pos: pos}
			}
			l.readChar()
			continue
		}
		sb.WriteRune(l.ch)
		l.readChar()
	}
	l.readChar() // closing quote
	return Token{Type: TokenString, Literal: sb.String(), Pos: pos}
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func isHexDigit(ch rune) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func isIdentStart(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch)
}

func isIdentPart(ch rune) bool {
	return isIdentStart(ch) || unicode.IsDigit(ch)
}
