package shell

import "strings"

// Quoting records how a token (or a span of one) was quoted in the input.
type Quoting int

const (
	Unquoted Quoting = iota
	SingleQuoted
	DoubleQuoted
)

func (q Quoting) String() string {
	switch q {
	case SingleQuoted:
		return "single"
	case DoubleQuoted:
		return "double"
	default:
		return "none"
	}
}

// Operator texts produced by the tokenizer.
const (
	OpPipe        = "|"
	OpBackground  = "&"
	OpSemicolon   = ";"
	OpNewline     = "\n"
	OpRedirectIn  = "<"
	OpRedirectOut = ">"
	OpAppendOut   = ">>"
	OpRedirectErr = "2>"
	OpAppendErr   = "2>>"
)

// span is a run of token text with a single quoting state. Literal spans are
// never expanded (single quoted text, escaped characters and the output of a
// previous expansion).
type span struct {
	text    string
	quote   Quoting
	literal bool
}

// Token is a word or an operator. It is immutable once produced.
type Token struct {
	// Text is the token's content with quotes and escapes removed.
	Text string
	// Quote is the token's quoting provenance: the kind of the first quoted
	// span, or Unquoted if the token had no quotes at all.
	Quote Quoting
	// Operator is set for unquoted control and redirection operators.
	Operator bool

	spans []span
}

// Word creates an unquoted word token.
func Word(text string) Token {
	return Token{Text: text, Quote: Unquoted}
}

// Quoted creates a word token with the given provenance covering all of text.
func Quoted(text string, q Quoting) Token {
	return Token{Text: text, Quote: q, spans: []span{{text: text, quote: q, literal: q == SingleQuoted}}}
}

// Literal creates a token that is never expanded.
func Literal(text string) Token {
	return Token{Text: text, Quote: Unquoted, spans: []span{{text: text, literal: true}}}
}

func operator(text string) Token {
	return Token{Text: text, Quote: Unquoted, Operator: true}
}

// IsOp reports whether the token is the operator op.
func (t Token) IsOp(op string) bool {
	return t.Operator && t.Text == op
}

// IsKeyword reports whether the token is the bare, unquoted word kw.
func (t Token) IsKeyword(kw string) bool {
	if t.Operator || t.Quote != Unquoted || t.Text != kw {
		return false
	}
	for _, s := range t.spans {
		if s.literal {
			return false
		}
	}
	return true
}

// isRedirect reports whether the token is one of the redirection operators.
func (t Token) isRedirect() bool {
	if !t.Operator {
		return false
	}
	switch t.Text {
	case OpRedirectIn, OpRedirectOut, OpAppendOut, OpRedirectErr, OpAppendErr:
		return true
	}
	return false
}

// isSeparator reports whether the token ends a statement.
func (t Token) isSeparator() bool {
	return t.IsOp(OpSemicolon) || t.IsOp(OpNewline) || t.IsOp(OpBackground)
}

func (t Token) String() string {
	if t.Operator {
		if t.Text == OpNewline {
			return `\n`
		}
		return t.Text
	}
	if t.Text == "" || strings.ContainsAny(t.Text, " \t\n'\"\\|&;<>$#") {
		return "'" + strings.ReplaceAll(t.Text, "'", `'\''`) + "'"
	}
	return t.Text
}

// Texts returns the text of every token.
func Texts(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Text
	}
	return out
}
