package shell

import "strings"

// closers are keywords that end a nested statement list.
var closers = []string{"then", "else", "elif", "fi", "do", "done"}

type parser struct {
	toks []Token
	pos  int
}

// Parse builds statements from tokens. Keywords are recognized only as the
// first word of a statement; everywhere else they are ordinary words.
func Parse(tokens []Token) ([]Statement, error) {
	p := &parser{toks: tokens}
	return p.list("")
}

// ParseLine tokenizes and parses one line of input.
func ParseLine(line string) ([]Statement, error) {
	tokens, err := Tokenize(line)
	if err != nil {
		return nil, err
	}
	return Parse(tokens)
}

func (p *parser) eof() bool {
	return p.pos >= len(p.toks)
}

func (p *parser) peek() Token {
	return p.toks[p.pos]
}

func (p *parser) next() Token {
	t := p.toks[p.pos]
	p.pos++
	return t
}

func (p *parser) skipSeparators() {
	for !p.eof() && (p.peek().IsOp(OpSemicolon) || p.peek().IsOp(OpNewline)) {
		p.pos++
	}
}

func (p *parser) atKeyword(kws ...string) (string, bool) {
	if p.eof() {
		return "", false
	}
	for _, kw := range kws {
		if p.peek().IsKeyword(kw) {
			return kw, true
		}
	}
	return "", false
}

func unexpected(t Token) error {
	return &ParseError{Near: t.String(), Err: ErrUnexpectedToken}
}

func unclosed(opener string) error {
	return &ParseError{Near: opener, Err: ErrUnclosedBlock}
}

// list parses statements until one of terms is the next statement word. The
// terminating keyword is left unconsumed. An opener of "" marks the top level,
// which ends at end of input.
func (p *parser) list(opener string, terms ...string) ([]Statement, error) {
	stmts := []Statement{}
	for {
		p.skipSeparators()
		if p.eof() {
			if opener != "" {
				return nil, unclosed(opener)
			}
			return stmts, nil
		}
		if _, ok := p.atKeyword(terms...); ok {
			return stmts, nil
		}
		if _, ok := p.atKeyword(closers...); ok {
			return nil, unexpected(p.peek())
		}
		stmt, err := p.statement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
}

func (p *parser) statement() (Statement, error) {
	if p.eof() {
		return nil, &ParseError{Err: ErrEmptyPipelineSegment}
	}
	kw, _ := p.atKeyword("if", "for", "while")
	var stmt Statement
	var err error
	switch kw {
	case "if":
		p.pos++
		stmt, err = p.ifRest()
	case "for":
		p.pos++
		stmt, err = p.forRest()
	case "while":
		p.pos++
		stmt, err = p.whileRest()
	default:
		return p.simple()
	}
	if err != nil {
		return nil, err
	}
	// A compound statement must be followed by a separator, the end of input
	// or a keyword.
	if !p.eof() && !p.peek().IsOp(OpSemicolon) && !p.peek().IsOp(OpNewline) {
		if _, ok := p.atKeyword(closers...); !ok {
			return nil, unexpected(p.peek())
		}
	}
	return stmt, nil
}

// condition parses the single statement following if/while.
func (p *parser) condition(opener string) (Statement, error) {
	if p.eof() {
		return nil, unclosed(opener)
	}
	if p.peek().isSeparator() {
		return nil, unexpected(p.peek())
	}
	return p.statement()
}

// expect consumes kw, possibly after separators.
func (p *parser) expect(opener, kw string) error {
	p.skipSeparators()
	if p.eof() {
		return unclosed(opener)
	}
	if !p.peek().IsKeyword(kw) {
		return unexpected(p.peek())
	}
	p.pos++
	return nil
}

func (p *parser) ifRest() (*If, error) {
	cond, err := p.condition("if")
	if err != nil {
		return nil, err
	}
	if err := p.expect("if", "then"); err != nil {
		return nil, err
	}
	then, err := p.list("if", "else", "elif", "fi")
	if err != nil {
		return nil, err
	}
	stmt := &If{Cond: cond, Then: then}
	switch kw, _ := p.atKeyword("else", "elif", "fi"); kw {
	case "elif":
		p.pos++
		nested, err := p.ifRest()
		if err != nil {
			return nil, err
		}
		stmt.Else = []Statement{nested}
		return stmt, nil
	case "else":
		p.pos++
		if stmt.Else, err = p.list("if", "fi"); err != nil {
			return nil, err
		}
	}
	if err := p.expect("if", "fi"); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *parser) forRest() (*For, error) {
	if p.eof() {
		return nil, unclosed("for")
	}
	name := p.next()
	if name.Operator || !name.IsKeyword(name.Text) || !IsName(name.Text) {
		return nil, unexpected(name)
	}
	if err := p.expect("for", "in"); err != nil {
		return nil, err
	}
	stmt := &For{Var: name.Text}
	for !p.eof() && !p.peek().IsOp(OpSemicolon) && !p.peek().IsOp(OpNewline) {
		if p.peek().Operator {
			return nil, unexpected(p.peek())
		}
		stmt.List = append(stmt.List, p.next())
	}
	if err := p.expect("for", "do"); err != nil {
		return nil, err
	}
	body, err := p.list("for", "done")
	if err != nil {
		return nil, err
	}
	stmt.Body = body
	if err := p.expect("for", "done"); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *parser) whileRest() (*While, error) {
	cond, err := p.condition("while")
	if err != nil {
		return nil, err
	}
	if err := p.expect("while", "do"); err != nil {
		return nil, err
	}
	body, err := p.list("while", "done")
	if err != nil {
		return nil, err
	}
	if err := p.expect("while", "done"); err != nil {
		return nil, err
	}
	return &While{Cond: cond, Body: body}, nil
}

// simple parses a pipeline up to the next separator. A trailing & marks it
// as a background pipeline and is consumed.
func (p *parser) simple() (*Simple, error) {
	start := p.pos
	for !p.eof() {
		t := p.peek()
		// The & of >&N is part of the redirect.
		dup := t.IsOp(OpBackground) && p.pos > start &&
			(p.toks[p.pos-1].IsOp(OpRedirectOut) || p.toks[p.pos-1].IsOp(OpRedirectErr))
		if t.isSeparator() && !dup {
			break
		}
		p.pos++
	}
	toks := p.toks[start:p.pos]
	pipeline := &Pipeline{}
	if !p.eof() && p.peek().IsOp(OpBackground) {
		p.pos++
		pipeline.Background = true
	}

	var segment []Token
	flush := func(near Token) error {
		if len(segment) == 0 {
			return &ParseError{Near: near.String(), Err: ErrEmptyPipelineSegment}
		}
		cmd, err := parseCommand(segment)
		if err != nil {
			return err
		}
		pipeline.Commands = append(pipeline.Commands, cmd)
		segment = nil
		return nil
	}
	for _, t := range toks {
		if t.IsOp(OpPipe) {
			if err := flush(t); err != nil {
				return nil, err
			}
			continue
		}
		segment = append(segment, t)
	}
	last := operator(OpPipe)
	if pipeline.Background {
		last = operator(OpBackground)
	}
	if err := flush(last); err != nil {
		return nil, err
	}
	return &Simple{Pipeline: pipeline}, nil
}

// isAssignment reports whether t looks like NAME=value with an unquoted NAME.
func isAssignment(t Token) bool {
	if t.Operator {
		return false
	}
	first := t.spansOrDefault()[0]
	if first.quote != Unquoted || first.literal {
		return false
	}
	i := strings.IndexByte(first.text, '=')
	return i > 0 && IsName(first.text[:i])
}

func parseCommand(toks []Token) (*SimpleCommand, error) {
	cmd := &SimpleCommand{}
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if !t.isRedirect() {
			if t.Operator {
				return nil, unexpected(t)
			}
			if len(cmd.Words) == 0 && isAssignment(t) {
				cmd.Assigns = append(cmd.Assigns, t)
			} else {
				cmd.Words = append(cmd.Words, t)
			}
			continue
		}

		r := Redirect{}
		switch t.Text {
		case OpRedirectIn:
			r.FD, r.Mode = Stdin, Read
		case OpRedirectOut:
			r.FD, r.Mode = Stdout, Overwrite
		case OpAppendOut:
			r.FD, r.Mode = Stdout, Append
		case OpRedirectErr:
			r.FD, r.Mode = Stderr, Overwrite
		case OpAppendErr:
			r.FD, r.Mode = Stderr, Append
		}

		// N>&M duplication.
		if i+1 < len(toks) && toks[i+1].IsOp(OpBackground) && (t.Text == OpRedirectOut || t.Text == OpRedirectErr) {
			if i+2 >= len(toks) || (toks[i+2].Text != "1" && toks[i+2].Text != "2") || toks[i+2].Operator {
				return nil, &ParseError{Near: t.Text + "&", Err: ErrMissingRedirectTarget}
			}
			r.Mode = Duplicate
			r.Target = toks[i+2]
			cmd.Redirects = append(cmd.Redirects, r)
			i += 2
			continue
		}

		if i+1 >= len(toks) || toks[i+1].Operator {
			return nil, &ParseError{Near: t.Text, Err: ErrMissingRedirectTarget}
		}
		r.Target = toks[i+1]
		cmd.Redirects = append(cmd.Redirects, r)
		i++
	}
	return cmd, nil
}
