package shell

import "strings"

type lexState int

const (
	stateNone lexState = iota
	stateSingle
	stateDouble
)

// escapableInDouble lists the characters a backslash escapes inside double
// quotes; before anything else the backslash is kept.
const escapableInDouble = "\"\\$` \n"

type lexer struct {
	tokens []Token

	spans   []span
	started bool
	quote   Quoting
	quoted  bool
}

// add appends text to the current token, merging it into the last span when
// the quoting matches.
func (l *lexer) add(text string, q Quoting, literal bool) {
	l.started = true
	if n := len(l.spans); n > 0 && l.spans[n-1].quote == q && l.spans[n-1].literal == literal {
		l.spans[n-1].text += text
		return
	}
	l.spans = append(l.spans, span{text: text, quote: q, literal: literal})
}

func (l *lexer) openQuote(q Quoting) {
	l.started = true
	if !l.quoted {
		l.quoted = true
		l.quote = q
	}
}

func (l *lexer) endWord() {
	if !l.started {
		return
	}
	var sb strings.Builder
	for _, s := range l.spans {
		sb.WriteString(s.text)
	}
	l.tokens = append(l.tokens, Token{Text: sb.String(), Quote: l.quote, spans: l.spans})
	l.spans = nil
	l.started = false
	l.quoted = false
	l.quote = Unquoted
}

func (l *lexer) emit(op string) {
	l.endWord()
	l.tokens = append(l.tokens, operator(op))
}

// isBareTwo reports whether the word in progress is exactly an unquoted "2".
func (l *lexer) isBareTwo() bool {
	return !l.quoted && len(l.spans) == 1 && l.spans[0].text == "2" && !l.spans[0].literal
}

// Tokenize splits a line into tokens, resolving quotes and escapes.
//
// Whitespace outside quotes separates words. Single quotes preserve everything
// literally. Double quotes preserve everything except backslash escapes of
// escapableInDouble. Unquoted metacharacters (| & ; < > and newline) become
// operator tokens.
func Tokenize(line string) ([]Token, error) {
	l := &lexer{}
	rs := []rune(line)
	state := stateNone
	quoteStart := 0

	for i := 0; i < len(rs); i++ {
		c := rs[i]
		switch state {
		case stateSingle:
			if c == '\'' {
				state = stateNone
				continue
			}
			l.add(string(c), SingleQuoted, true)

		case stateDouble:
			switch {
			case c == '"':
				state = stateNone
			case c == '\\' && i+1 < len(rs) && strings.ContainsRune(escapableInDouble, rs[i+1]):
				i++
				if rs[i] != '\n' {
					l.add(string(rs[i]), DoubleQuoted, true)
				}
			default:
				l.add(string(c), DoubleQuoted, false)
			}

		default:
			switch c {
			case ' ', '\t', '\r':
				l.endWord()
			case '\n':
				l.emit(OpNewline)
			case '#':
				if l.started {
					l.add("#", Unquoted, false)
					continue
				}
				for i+1 < len(rs) && rs[i+1] != '\n' {
					i++
				}
			case '\'':
				l.openQuote(SingleQuoted)
				state = stateSingle
				quoteStart = i
			case '"':
				l.openQuote(DoubleQuoted)
				state = stateDouble
				quoteStart = i
			case '\\':
				if i+1 >= len(rs) {
					return nil, &LexError{Pos: i, Err: ErrTrailingBackslash}
				}
				i++
				if rs[i] == '\n' {
					continue // line continuation
				}
				l.add(string(rs[i]), Unquoted, true)
			case '|':
				l.emit(OpPipe)
			case '&':
				l.emit(OpBackground)
			case ';':
				l.emit(OpSemicolon)
			case '<':
				l.emit(OpRedirectIn)
			case '>':
				appending := i+1 < len(rs) && rs[i+1] == '>'
				if appending {
					i++
				}
				switch {
				case l.isBareTwo() && appending:
					l.spans, l.started = nil, false
					l.emit(OpAppendErr)
				case l.isBareTwo():
					l.spans, l.started = nil, false
					l.emit(OpRedirectErr)
				case appending:
					l.emit(OpAppendOut)
				default:
					l.emit(OpRedirectOut)
				}
			default:
				l.add(string(c), Unquoted, false)
			}
		}
	}

	if state != stateNone {
		return nil, &LexError{Pos: quoteStart, Err: ErrUnterminatedQuote}
	}
	l.endWord()
	return l.tokens, nil
}
