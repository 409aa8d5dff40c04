package calc

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokPow
	tokLParen
	tokRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of expression"
	case tokNumber:
		return "number"
	case tokIdent:
		return "identifier"
	case tokPlus:
		return "'+'"
	case tokMinus:
		return "'-'"
	case tokStar:
		return "'*'"
	case tokSlash:
		return "'/'"
	case tokPow:
		return "'**'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	}
	return "token"
}

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

// tokenize splits expr into tokens. The last token is always tokEOF.
func tokenize(expr string) ([]token, error) {
	var toks []token
	pos := 0
	for {
		pos = skipSpaces(expr, pos)
		if pos >= len(expr) {
			toks = append(toks, token{kind: tokEOF, pos: pos})
			return toks, nil
		}
		ch := expr[pos]
		switch {
		case ch == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: pos})
			pos++
		case ch == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: pos})
			pos++
		case ch == '+':
			toks = append(toks, token{kind: tokPlus, text: "+", pos: pos})
			pos++
		case ch == '-':
			toks = append(toks, token{kind: tokMinus, text: "-", pos: pos})
			pos++
		case ch == '/':
			toks = append(toks, token{kind: tokSlash, text: "/", pos: pos})
			pos++
		case ch == '^':
			toks = append(toks, token{kind: tokPow, text: "^", pos: pos})
			pos++
		case ch == '*':
			if pos+1 < len(expr) && expr[pos+1] == '*' {
				toks = append(toks, token{kind: tokPow, text: "**", pos: pos})
				pos += 2
			} else {
				toks = append(toks, token{kind: tokStar, text: "*", pos: pos})
				pos++
			}
		case isDigit(ch) || ch == '.':
			end := scanNumber(expr, pos)
			text := expr[pos:end]
			v, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, &ParseError{Expr: expr, Pos: pos, Msg: fmt.Sprintf("invalid number %q", text)}
			}
			toks = append(toks, token{kind: tokNumber, text: text, num: v, pos: pos})
			pos = end
		case isIdentStart(ch):
			end := scanIdent(expr, pos)
			toks = append(toks, token{kind: tokIdent, text: expr[pos:end], pos: pos})
			pos = end
		default:
			r, _ := utf8.DecodeRuneInString(expr[pos:])
			return nil, &ParseError{Expr: expr, Pos: pos, Msg: fmt.Sprintf("invalid character %q", r)}
		}
	}
}

func skipSpaces(s string, pos int) int {
	for pos < len(s) && (s[pos] == ' ' || s[pos] == '\t' || s[pos] == '\n' || s[pos] == '\r') {
		pos++
	}
	return pos
}

// scanNumber returns the end of the numeric literal starting at pos:
// digits, at most one dot, and an optional exponent with sign.
func scanNumber(s string, pos int) int {
	j := pos
	seenDot := false
	seenE := false
	for j < len(s) {
		c := s[j]
		if isDigit(c) {
			j++
			continue
		}
		if c == '.' {
			if seenDot || seenE {
				break
			}
			seenDot = true
			j++
			continue
		}
		if (c == 'e' || c == 'E') && !seenE && j > pos {
			seenE = true
			j++
			if j < len(s) && (s[j] == '+' || s[j] == '-') {
				j++
			}
			continue
		}
		break
	}
	return j
}

func scanIdent(s string, pos int) int {
	j := pos
	for j < len(s) && isIdentChar(s[j]) {
		j++
	}
	return j
}

func isLetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isIdentStart(b byte) bool {
	return isLetter(b) || b == '_'
}

func isIdentChar(b byte) bool {
	return isIdentStart(b) || isDigit(b)
}

// identIndex returns the offset of the first occurrence of name in s that is
// not part of a longer identifier, or -1.
func identIndex(s, name string) int {
	for off := 0; off <= len(s)-len(name); {
		i := strings.Index(s[off:], name)
		if i < 0 {
			return -1
		}
		i += off
		end := i + len(name)
		if (i == 0 || !isIdentChar(s[i-1])) && (end == len(s) || !isIdentChar(s[end])) {
			return i
		}
		off = i + 1
	}
	return -1
}

// IsIdentifier reports whether name is a valid variable name.
func IsIdentifier(name string) bool {
	if name == "" || !isIdentStart(name[0]) {
		return false
	}
	return scanIdent(name, 0) == len(name)
}
