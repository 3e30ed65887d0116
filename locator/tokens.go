package locator

import (
	"slices"
	"strings"
)

// TokenKind classifies a piece of a CSS or XPath expression.
type TokenKind uint8

const (
	// TokenText holds names, predicates and punctuation.
	TokenText TokenKind = iota
	// TokenSep is a top-level step separator ("/", "//", " > ", " ").
	TokenSep
	// TokenIndex is a positional term: [3], :nth-child(3), :nth-of-type(3).
	TokenIndex
	// TokenLiteral is a quoted string. Its content is never inspected.
	TokenLiteral
	// TokenHole is an index or literal blanked by the caller.
	TokenHole
)

// Token is one typed segment of an expression.
type Token struct {
	Kind TokenKind
	Text string
}

// Path is a tokenized expression. Two paths are equal when their token
// sequences are.
type Path []Token

var nthPrefixes = []string{":nth-child(", ":nth-of-type("}

// Tokenize splits expr into typed segments. Quoted literals are consumed
// whole, so brackets and digits inside them are never read as positions.
// Separators count only outside brackets and parentheses.
func Tokenize(expr string) Path {
	xpath := strings.HasPrefix(expr, "/") || strings.HasPrefix(expr, "(")
	var p Path
	var text strings.Builder
	emit := func(k TokenKind, s string) {
		if text.Len() > 0 {
			p = append(p, Token{Kind: TokenText, Text: text.String()})
			text.Reset()
		}
		if k == TokenSep && len(p) > 0 && p[len(p)-1].Kind == TokenSep {
			p[len(p)-1].Text += s
			return
		}
		p = append(p, Token{Kind: k, Text: s})
	}

	depth := 0
	for i := 0; i < len(expr); {
		c := expr[i]
		switch {
		case c == '"' || c == '\'':
			end := len(expr)
			if j := strings.IndexByte(expr[i+1:], c); j >= 0 {
				end = i + j + 2
			}
			emit(TokenLiteral, expr[i:end])
			i = end
			continue
		case c == '[':
			if n := digitsBefore(expr[i+1:], ']'); n > 0 {
				emit(TokenIndex, expr[i:i+n+2])
				i += n + 2
				continue
			}
			depth++
		case c == ':':
			if n := nthLen(expr[i:]); n > 0 {
				emit(TokenIndex, expr[i:i+n])
				i += n
				continue
			}
		case c == '(':
			depth++
		case c == ']' || c == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0 && isSeparator(c, xpath):
			emit(TokenSep, string(c))
			i++
			continue
		}
		text.WriteByte(c)
		i++
	}
	if text.Len() > 0 {
		p = append(p, Token{Kind: TokenText, Text: text.String()})
	}
	return p
}

// digitsBefore returns the length of the run of digits at the start of s
// when it is directly followed by end, or 0.
func digitsBefore(s string, end byte) int {
	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	if n == 0 || n >= len(s) || s[n] != end {
		return 0
	}
	return n
}

func nthLen(s string) int {
	for _, pre := range nthPrefixes {
		if strings.HasPrefix(s, pre) {
			if n := digitsBefore(s[len(pre):], ')'); n > 0 {
				return len(pre) + n + 1
			}
		}
	}
	return 0
}

func isSeparator(c byte, xpath bool) bool {
	if xpath {
		return c == '/'
	}
	return c == '>' || c == ' '
}

// String renders the path back to an expression.
func (p Path) String() string {
	var b strings.Builder
	for _, t := range p {
		b.WriteString(t.Text)
	}
	return b.String()
}

// Equal reports structural equality.
func (p Path) Equal(o Path) bool { return slices.Equal(p, o) }

// Key encodes the token sequence for use as a map key. Paths with equal
// keys are Equal.
func (p Path) Key() string {
	var b strings.Builder
	for _, t := range p {
		b.WriteByte('0' + byte(t.Kind))
		b.WriteString(t.Text)
		b.WriteByte(0)
	}
	return b.String()
}

// Last returns the index of the last token of kind k, or -1.
func (p Path) Last(k TokenKind) int {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i].Kind == k {
			return i
		}
	}
	return -1
}

// Without drops every token of kind k. Text runs left adjacent are merged.
func (p Path) Without(k TokenKind) Path {
	out := make(Path, 0, len(p))
	for _, t := range p {
		if t.Kind == k {
			continue
		}
		if n := len(out); n > 0 && t.Kind == TokenText && out[n-1].Kind == TokenText {
			out[n-1].Text += t.Text
			continue
		}
		out = append(out, t)
	}
	return out
}

// Blank returns a copy with token i replaced by a hole rendered as text.
func (p Path) Blank(i int, text string) Path {
	out := slices.Clone(p)
	out[i] = Token{Kind: TokenHole, Text: text}
	return out
}

// Segment returns the token range [start, end) of the step holding token
// at. Separators are excluded.
func (p Path) Segment(at int) (start, end int) {
	start, end = 0, len(p)
	for i := at - 1; i >= 0; i-- {
		if p[i].Kind == TokenSep {
			start = i + 1
			break
		}
	}
	for i := at + 1; i < len(p); i++ {
		if p[i].Kind == TokenSep {
			end = i
			break
		}
	}
	return start, end
}
