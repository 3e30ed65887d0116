package locator

import "testing"

func TestTokenize(t *testing.T) {
	cases := []struct {
		expr  string
		kinds []TokenKind
	}{
		{"ul > li:nth-child(3) > a", []TokenKind{TokenText, TokenSep, TokenText, TokenIndex, TokenSep, TokenText}},
		{"//a[@title='Chapter [1]']", []TokenKind{TokenSep, TokenText, TokenLiteral, TokenText}},
		{"(//div[@class='x'])[3]", []TokenKind{TokenText, TokenLiteral, TokenText, TokenIndex}},
		{`a[title="b > c"]`, []TokenKind{TokenText, TokenLiteral, TokenText}},
	}
	for _, tc := range cases {
		p := Tokenize(tc.expr)
		if p.String() != tc.expr {
			t.Errorf("Tokenize(%q).String(): got %q", tc.expr, p.String())
		}
		if len(p) != len(tc.kinds) {
			t.Errorf("Tokenize(%q): got %+v, want kinds %v", tc.expr, p, tc.kinds)
			continue
		}
		for i, k := range tc.kinds {
			if p[i].Kind != k {
				t.Errorf("Tokenize(%q)[%d]: got kind %d (%q), want %d", tc.expr, i, p[i].Kind, p[i].Text, k)
			}
		}
	}
}

func TestPath_EqualityIsStructural(t *testing.T) {
	a := Tokenize("//a[@title='Chapter [1]']").Without(TokenIndex)
	b := Tokenize("//a[@title='Chapter [2]']").Without(TokenIndex)
	if a.Equal(b) || a.Key() == b.Key() {
		t.Errorf("distinct literals compared equal: %q, %q", a, b)
	}
	c := Tokenize("ul > li:nth-child(1)").Without(TokenIndex)
	d := Tokenize("ul > li:nth-child(7)").Without(TokenIndex)
	if !c.Equal(d) || c.Key() != d.Key() {
		t.Errorf("positions not blanked: %q, %q", c, d)
	}
}

func TestPath_Segment(t *testing.T) {
	p := Tokenize("ul.items > li:nth-of-type(2) > a")
	at := p.Last(TokenIndex)
	start, end := p.Segment(at)
	if got := p[start:end].String(); got != "li:nth-of-type(2)" {
		t.Errorf("segment: got %q", got)
	}
}
