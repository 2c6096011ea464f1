package core

import (
	"bufio"
	"io"
	"strings"

	"github.com/abiosoft/readline"
	"github.com/josephlewis42/rush/core/config"
	"golang.org/x/term"
)

// LineSource supplies input one line at a time. io.EOF marks the end of
// input; an empty line is just an empty string.
type LineSource interface {
	// ReadLine returns the next line without its trailing newline. Interactive
	// sources show prompt first.
	ReadLine(prompt string) (string, error)
	Close() error
}

// ReadlineSource reads lines from a terminal with editing and history.
type ReadlineSource struct {
	Readline *readline.Instance
}

var _ LineSource = (*ReadlineSource)(nil)

// NewReadlineSource creates an interactive source on stdio. History is
// persisted to the configured history file.
func NewReadlineSource(stdio Stdio, cfg *config.Configuration) (*ReadlineSource, error) {
	rlCfg := &readline.Config{
		Stdin:        readline.NewCancelableStdin(stdio.In),
		Stdout:       stdio.Out,
		Stderr:       stdio.Err,
		HistoryFile:  cfg.HistoryPath(),
		HistoryLimit: cfg.HistoryLimit,

		FuncIsTerminal: func() bool {
			return term.IsTerminal(int(stdio.In.Fd())) && term.IsTerminal(int(stdio.Out.Fd()))
		},
	}

	if err := rlCfg.Init(); err != nil {
		return nil, err
	}

	rl, err := readline.NewEx(rlCfg)
	if err != nil {
		return nil, err
	}

	return &ReadlineSource{Readline: rl}, nil
}

// ReadLine implements LineSource.
func (r *ReadlineSource) ReadLine(prompt string) (string, error) {
	r.Readline.SetPrompt(prompt)
	return r.Readline.Readline()
}

// ResetHistory clears the in-memory history.
func (r *ReadlineSource) ResetHistory() {
	r.Readline.Operation.ResetHistory()
}

// Close implements LineSource.
func (r *ReadlineSource) Close() error {
	return r.Readline.Close()
}

// ScriptSource reads lines from a script without prompting.
type ScriptSource struct {
	r      *bufio.Reader
	closer io.Closer
}

var _ LineSource = (*ScriptSource)(nil)

// NewScriptSource reads lines from r. If r is an io.Closer it is closed by
// Close.
func NewScriptSource(r io.Reader) *ScriptSource {
	src := &ScriptSource{r: bufio.NewReader(r)}
	if c, ok := r.(io.Closer); ok {
		src.closer = c
	}
	return src
}

// NewSharedScriptSource reads a script from a descriptor children may also
// read, such as the shell's stdin. It never reads past the current line.
func NewSharedScriptSource(r io.Reader) *ScriptSource {
	return &ScriptSource{r: bufio.NewReaderSize(byteReader{r}, 16)}
}

// ReadLine implements LineSource.
func (s *ScriptSource) ReadLine(string) (string, error) {
	line, err := s.r.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r"), nil
}

// Close implements LineSource.
func (s *ScriptSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// byteReader reads at most one byte per call.
type byteReader struct {
	r io.Reader
}

func (b byteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return b.r.Read(p[:1])
}
