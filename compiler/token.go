package compiler

import (
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Token types for the yo lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenInteger    // 42, 0xff
	TokenFloat      // 3.14
	TokenString     // "hello"
	TokenIdentifier // foo, Bar, #function

	// Keywords
	TokenFn
	TokenVal
	TokenVar
	TokenConst
	TokenReturn
	TokenIf
	TokenElse
	TokenWhile
	TokenFor
	TokenIn
	TokenBreak
	TokenContinue
	TokenDefer
	TokenUnsafe
	TokenType_
	TokenEnum
	TokenProtocol
	TokenImpl
	TokenStatic
	TokenUse
	TokenAs
	TokenTrue
	TokenFalse

	// Delimiters
	TokenLParen       // (
	TokenRParen       // )
	TokenLBrace       // {
	TokenRBrace       // }
	TokenLBracket     // [
	TokenRBracket     // ]
	TokenHashLBracket // #[
	TokenComma        // ,
	TokenSemicolon    // ;
	TokenColon        // :
	TokenColonColon   // ::
	TokenDot          // .
	TokenEllipsis     // ...
	TokenRangeExcl    // ..<

	// Operators
	TokenAssign     // =
	TokenEq         // ==
	TokenNotEq      // !=
	TokenLT         // <
	TokenLE         // <=
	TokenGT         // >
	TokenGE         // >=
	TokenPlus       // +
	TokenMinus      // -
	TokenStar       // *
	TokenSlash      // /
	TokenPercent    // %
	TokenAmp        // &
	TokenAmpBang    // &!
	TokenAndAnd     // &&
	TokenPipe       // |
	TokenOrOr       // ||
	TokenCaret      // ^
	TokenTilde      // ~
	TokenBang       // !
	TokenShl        // <<
	TokenShr        // >>
	TokenAt         // @
)

var tokenNames = map[TokenType]string{
	TokenEOF:          "EOF",
	TokenError:        "ERROR",
	TokenInteger:      "INTEGER",
	TokenFloat:        "FLOAT",
	TokenString:       "STRING",
	TokenIdentifier:   "IDENTIFIER",
	TokenFn:           "fn",
	TokenVal:          "val",
	TokenVar:          "var",
	TokenConst:        "const",
	TokenReturn:       "return",
	TokenIf:           "if",
	TokenElse:         "else",
	TokenWhile:        "while",
	TokenFor:          "for",
	TokenIn:           "in",
	TokenBreak:        "break",
	TokenContinue:     "continue",
	TokenDefer:        "defer",
	TokenUnsafe:       "unsafe",
	TokenType_:        "type",
	TokenEnum:         "enum",
	TokenProtocol:     "protocol",
	TokenImpl:         "impl",
	TokenStatic:       "static",
	TokenUse:          "use",
	TokenAs:           "as",
	TokenTrue:         "true",
	TokenFalse:        "false",
	TokenLParen:       "(",
	TokenRParen:       ")",
	TokenLBrace:       "{",
	TokenRBrace:       "}",
	TokenLBracket:     "[",
	TokenRBracket:     "]",
	TokenHashLBracket: "#[",
	TokenComma:        ",",
	TokenSemicolon:    ";",
	TokenColon:        ":",
	TokenColonColon:   "::",
	TokenDot:          ".",
	TokenEllipsis:     "...",
	TokenRangeExcl:    "..<",
	TokenAssign:       "=",
	TokenEq:           "==",
	TokenNotEq:        "!=",
	TokenLT:           "<",
	TokenLE:           "<=",
	TokenGT:           ">",
	TokenGE:           ">=",
	TokenPlus:         "+",
	TokenMinus:        "-",
	TokenStar:         "*",
	TokenSlash:        "/",
	TokenPercent:      "%",
	TokenAmp:          "&",
	TokenAmpBang:      "&!",
	TokenAndAnd:       "&&",
	TokenPipe:         "|",
	TokenOrOr:         "||",
	TokenCaret:        "^",
	TokenTilde:        "~",
	TokenBang:         "!",
	TokenShl:          "<<",
	TokenShr:          ">>",
	TokenAt:           "@",
}

// String returns the name of a token type.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TOKEN(%d)", int(t))
}

var keywords = map[string]TokenType{
	"fn":       TokenFn,
	"val":      TokenVal,
	"var":      TokenVar,
	"const":    TokenConst,
	"return":   TokenReturn,
	"if":       TokenIf,
	"else":     TokenElse,
	"while":    TokenWhile,
	"for":      TokenFor,
	"in":       TokenIn,
	"break":    TokenBreak,
	"continue": TokenContinue,
	"defer":    TokenDefer,
	"unsafe":   TokenUnsafe,
	"type":     TokenType_,
	"enum":     TokenEnum,
	"protocol": TokenProtocol,
	"impl":     TokenImpl,
	"static":   TokenStatic,
	"use":      TokenUse,
	"as":       TokenAs,
	"true":     TokenTrue,
	"false":    TokenFalse,
}

// Keywords returns the reserved words in sorted order.
func Keywords() []string {
	out := make([]string, 0, len(keywords))
	for k := range keywords {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q) at %d:%d", t.Type, t.Literal, t.Pos.Line, t.Pos.Column)
}
