package shell

import (
	"strings"
	"unicode"
)

// Lookuper resolves variable references during expansion.
type Lookuper interface {
	LookupEnv(name string) (string, bool)
}

// LookupFunc adapts a function to a Lookuper.
type LookupFunc func(name string) (string, bool)

// LookupEnv implements Lookuper.
func (f LookupFunc) LookupEnv(name string) (string, bool) {
	return f(name)
}

// MapLookup is a Lookuper backed by a plain map.
type MapLookup map[string]string

// LookupEnv implements Lookuper.
func (m MapLookup) LookupEnv(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

func (t Token) spansOrDefault() []span {
	if t.spans != nil {
		return t.spans
	}
	return []span{{text: t.Text, quote: t.Quote, literal: t.Quote == SingleQuoted}}
}

func (t Token) isLiteral() bool {
	for _, s := range t.spansOrDefault() {
		if !s.literal {
			return false
		}
	}
	return true
}

// Expand substitutes $NAME and ${NAME} references in every token that is not
// single quoted. Unset variables expand to the empty string. Values that land
// in unquoted text are split into separate fields on blanks, and an unquoted
// token that expands to nothing is dropped. Substituted text is never
// rescanned, and the returned tokens are literal so expanding them again is
// the identity.
func Expand(tokens []Token, env Lookuper) []Token {
	out := make([]Token, 0, len(tokens))
	for _, tok := range tokens {
		if tok.Operator || tok.isLiteral() {
			out = append(out, tok)
			continue
		}
		for _, field := range expandFields(tok, env) {
			out = append(out, Token{
				Text:  field,
				Quote: tok.Quote,
				spans: []span{{text: field, quote: tok.Quote, literal: true}},
			})
		}
	}
	return out
}

// ExpandWord expands a single token without field splitting, as used for
// assignment values and redirect targets.
func ExpandWord(tok Token, env Lookuper) string {
	if tok.Operator {
		return tok.Text
	}
	var sb strings.Builder
	for _, s := range expandTilde(tok.spansOrDefault(), env) {
		if s.literal {
			sb.WriteString(s.text)
			continue
		}
		sb.WriteString(expandText(s.text, env))
	}
	return sb.String()
}

// expandTilde replaces an unquoted ~ at the start of a word with $HOME when it
// is the whole word or followed by a slash. The home directory is never split.
func expandTilde(spans []span, env Lookuper) []span {
	if len(spans) == 0 || env == nil {
		return spans
	}
	first := spans[0]
	if first.quote != Unquoted || first.literal || !strings.HasPrefix(first.text, "~") {
		return spans
	}
	rest := first.text[1:]
	switch {
	case rest == "" && len(spans) > 1:
		return spans
	case rest != "" && rest[0] != '/':
		return spans
	}
	home, ok := env.LookupEnv("HOME")
	if !ok {
		return spans
	}

	out := make([]span, 0, len(spans)+1)
	out = append(out, span{text: home, quote: Unquoted, literal: true})
	if rest != "" {
		out = append(out, span{text: rest, quote: Unquoted})
	}
	return append(out, spans[1:]...)
}

type fieldBuilder struct {
	fields []string
	cur    strings.Builder
	have   bool
}

func (fb *fieldBuilder) write(s string) {
	fb.cur.WriteString(s)
	fb.have = true
}

func (fb *fieldBuilder) split() {
	if fb.have {
		fb.fields = append(fb.fields, fb.cur.String())
	}
	fb.cur.Reset()
	fb.have = false
}

func expandFields(tok Token, env Lookuper) []string {
	fb := &fieldBuilder{}
	for _, s := range expandTilde(tok.spansOrDefault(), env) {
		switch {
		case s.literal:
			fb.write(s.text)
		case s.quote != Unquoted:
			fb.write(expandText(s.text, env))
		default:
			for _, part := range splitBlanks(expandText(s.text, env)) {
				if part == "" {
					fb.split()
					continue
				}
				fb.write(part)
			}
		}
	}
	fb.split()
	return fb.fields
}

// splitBlanks splits s around runs of blanks, returning "" markers where a
// field boundary falls.
func splitBlanks(s string) []string {
	var out []string
	var cur strings.Builder
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' {
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
			out = append(out, "")
			continue
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func isNameStart(r rune) bool {
	return r == '_' || (r < unicode.MaxASCII && unicode.IsLetter(r))
}

func isNameChar(r rune) bool {
	return isNameStart(r) || (r >= '0' && r <= '9')
}

// IsName reports whether s is a valid variable name.
func IsName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 && !isNameStart(r) {
			return false
		}
		if !isNameChar(r) {
			return false
		}
	}
	return true
}

func lookup(env Lookuper, name string) string {
	if env == nil {
		return ""
	}
	v, _ := env.LookupEnv(name)
	return v
}

// expandText performs one pass of variable substitution over s.
func expandText(s string, env Lookuper) string {
	if !strings.ContainsRune(s, '$') {
		return s
	}
	rs := []rune(s)
	var sb strings.Builder
	for i := 0; i < len(rs); i++ {
		if rs[i] != '$' || i+1 >= len(rs) {
			sb.WriteRune(rs[i])
			continue
		}
		next := rs[i+1]
		switch {
		case next == '?' || next == '$':
			sb.WriteString(lookup(env, string(next)))
			i++
		case next == '{':
			end := -1
			for j := i + 2; j < len(rs); j++ {
				if rs[j] == '}' {
					end = j
					break
				}
			}
			if end == -1 || !IsName(string(rs[i+2:end])) {
				sb.WriteRune(rs[i])
				continue
			}
			sb.WriteString(lookup(env, string(rs[i+2:end])))
			i = end
		case isNameStart(next):
			j := i + 1
			for j < len(rs) && isNameChar(rs[j]) {
				j++
			}
			sb.WriteString(lookup(env, string(rs[i+1:j])))
			i = j - 1
		default:
			sb.WriteRune(rs[i])
		}
	}
	return sb.String()
}
