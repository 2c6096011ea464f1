package shell

import "strings"

// FD names a standard stream a redirect applies to.
type FD int

const (
	Stdin FD = iota
	Stdout
	Stderr
)

// RedirectMode is how a redirect target is opened.
type RedirectMode int

const (
	// Read opens the target for reading.
	Read RedirectMode = iota
	// Overwrite creates or truncates the target.
	Overwrite
	// Append creates the target or appends to it.
	Append
	// Duplicate makes FD a copy of the descriptor named by the target ("1" or
	// "2") at the point the redirect is applied.
	Duplicate
)

// Redirect attaches a file to one of a command's standard streams. Later
// redirects of the same FD override earlier ones.
type Redirect struct {
	FD     FD
	Mode   RedirectMode
	Target Token
}

func (r Redirect) String() string {
	var op string
	switch {
	case r.Mode == Duplicate && r.FD == Stderr:
		return "2>&" + r.Target.Text
	case r.Mode == Duplicate:
		return ">&" + r.Target.Text
	case r.FD == Stdin:
		op = OpRedirectIn
	case r.FD == Stderr && r.Mode == Append:
		op = OpAppendErr
	case r.FD == Stderr:
		op = OpRedirectErr
	case r.Mode == Append:
		op = OpAppendOut
	default:
		op = OpRedirectOut
	}
	return op + " " + r.Target.String()
}

// SimpleCommand is one stage of a pipeline. Words holds the program followed
// by its arguments, all unexpanded.
type SimpleCommand struct {
	Assigns   []Token
	Words     []Token
	Redirects []Redirect
}

func (c *SimpleCommand) String() string {
	var parts []string
	for _, t := range c.Assigns {
		parts = append(parts, t.Text)
	}
	for _, t := range c.Words {
		parts = append(parts, t.String())
	}
	for _, r := range c.Redirects {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, " ")
}

// Pipeline is one or more commands with stdout of each connected to stdin of
// the next.
type Pipeline struct {
	Commands   []*SimpleCommand
	Background bool
}

func (p *Pipeline) String() string {
	parts := make([]string, len(p.Commands))
	for i, c := range p.Commands {
		parts[i] = c.String()
	}
	return strings.Join(parts, " | ")
}

// Statement is a node of the parsed tree: *Simple, *If, *For or *While.
type Statement interface {
	statement()
}

// Simple runs a pipeline.
type Simple struct {
	Pipeline *Pipeline
}

// If runs Then when Cond exits 0 and Else otherwise. A nil Else means the
// statement had no else branch.
type If struct {
	Cond Statement
	Then []Statement
	Else []Statement
}

// For runs Body once per expanded List value with Var bound to it.
type For struct {
	Var  string
	List []Token
	Body []Statement
}

// While runs Body for as long as Cond exits 0.
type While struct {
	Cond Statement
	Body []Statement
}

func (*Simple) statement() {}
func (*If) statement()     {}
func (*For) statement()    {}
func (*While) statement()  {}
