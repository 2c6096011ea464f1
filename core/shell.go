package core

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/abiosoft/readline"
	"github.com/josephlewis42/rush/core/config"
	"github.com/josephlewis42/rush/core/jobs"
	"github.com/josephlewis42/rush/core/logger"
	"github.com/josephlewis42/rush/core/shell"
	"github.com/josephlewis42/rush/core/vos"
)

const (
	EnvHome               = "HOME"
	EnvPWD                = "PWD"
	EnvOldPWD             = "OLDPWD"
	EnvPath               = "PATH"
	EnvPrompt             = "PS1"
	EnvContinuationPrompt = "PS2"
	EnvHostname           = "HOSTNAME"
	EnvUser               = "USER"

	DefaultPrompt             = `\u@\h:\w\$ `
	DefaultContinuationPrompt = "> "
)

// Stdio is the descriptor triple a shell or a pipeline stage runs with.
type Stdio struct {
	In  *os.File
	Out *os.File
	Err *os.File
}

// OSStdio returns the process's standard descriptors.
func OSStdio() Stdio {
	return Stdio{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// Shell is the state of one interpreter session.
type Shell struct {
	Stdio

	// Vars holds shell-local variables. Exported variables live in Env.
	Vars *vos.MapEnv
	// Env is the exported environment inherited by children.
	Env vos.Environ
	// Dir is the working directory children start in. The shell process
	// itself never changes directory.
	Dir string
	// LastStatus is the exit status of the last completed statement.
	LastStatus int

	Jobs     *jobs.Table
	Builtins map[string]ShellBuiltin
	Paths    vos.PathResolver
	Config   *config.Configuration
	Logger   *log.Logger
	// Events, if set, records commands and job changes.
	Events *logger.Logger
	Colors *ColorPrinter

	ctrl     jobs.Control
	router   *jobs.Router
	tty      *jobs.TTY
	source   LineSource
	history  []string
	pid      int
	task     bool
	exited   bool
	exitCode int
}

var _ shell.Lookuper = (*Shell)(nil)

// NewShell creates a session using the process environment and working
// directory. A nil cfg uses the built-in defaults.
func NewShell(stdio Stdio, cfg *config.Configuration) *Shell {
	if cfg == nil {
		cfg = config.Default()
	}
	dir, err := os.Getwd()
	if err != nil {
		dir = "/"
	}

	builtins := make(map[string]ShellBuiltin, len(AllBuiltins))
	for name, b := range AllBuiltins {
		builtins[name] = b
	}

	s := &Shell{
		Stdio:    stdio,
		Vars:     vos.NewMapEnv(),
		Env:      vos.OSEnv{},
		Dir:      dir,
		Builtins: builtins,
		Paths:    vos.NewOSSearchPath(),
		Config:   cfg,
		Logger:   log.New(io.Discard, "", 0),
		Colors:   NewColorPrinter(cfg.Color, stdio.Err),
		ctrl:     jobs.OSControl{},
		pid:      os.Getpid(),
	}
	s.Jobs = jobs.NewTable(s.ctrl)
	s.Jobs.Subscribe(jobs.NotifierFunc(s.reportJob))
	return s
}

// Init sets up the environment similar to login + source ~/.bashrc.
func (s *Shell) Init() {
	if _, ok := s.Env.LookupEnv(EnvPath); !ok {
		s.setenv(EnvPath, s.Config.Path)
	}
	for k, v := range s.Config.Env {
		s.setenv(k, v)
	}
	s.setenv(EnvPWD, s.Dir)

	prompt, continuation := s.Config.Prompt, s.Config.ContinuationPrompt
	if prompt == "" {
		prompt = DefaultPrompt
	}
	if continuation == "" {
		continuation = DefaultContinuationPrompt
	}
	if _, ok := s.LookupEnv(EnvPrompt); !ok {
		s.Vars.Setenv(EnvPrompt, prompt)
	}
	if _, ok := s.LookupEnv(EnvContinuationPrompt); !ok {
		s.Vars.Setenv(EnvContinuationPrompt, continuation)
	}
}

func (s *Shell) setenv(key, value string) {
	if err := s.Env.Setenv(key, value); err != nil {
		s.Logger.Printf("setenv %q: %v", key, err)
	}
}

// SetLogger replaces the diagnostic logger of the shell and its job control.
func (s *Shell) SetLogger(l *log.Logger) {
	s.Logger = l
	s.Jobs.Logger = l
	if s.router != nil {
		s.router.Logger = l
	}
}

// SetEvents records commands and job changes to ev.
func (s *Shell) SetEvents(ev *logger.Logger) {
	s.Events = ev
	s.Jobs.Subscribe(ev)
}

// EnableJobControl starts forwarding terminal signals to foreground jobs and,
// if stdin is the shell's controlling terminal, hands it to them.
func (s *Shell) EnableJobControl() {
	if s.router != nil {
		return
	}
	s.router = jobs.NewRouter(s.ctrl)
	s.router.Logger = s.Logger
	s.router.Start()
	s.Jobs.Router = s.router

	if s.In != nil {
		if tty, ok := jobs.NewTTY(s.In); ok {
			s.tty = tty
			s.Jobs.Terminal = tty
		}
	}
}

// Close stops signal forwarding.
func (s *Shell) Close() error {
	if s.router != nil {
		s.router.Stop()
	}
	return nil
}

// LookupEnv resolves a variable for expansion: the special parameters $? and
// $$, then shell variables, then the exported environment.
func (s *Shell) LookupEnv(name string) (string, bool) {
	switch name {
	case "?":
		return strconv.Itoa(s.LastStatus), true
	case "$":
		return strconv.Itoa(s.pid), true
	}
	if v, ok := s.Vars.LookupEnv(name); ok {
		return v, true
	}
	return s.Env.LookupEnv(name)
}

// Getvar returns the value of name or "".
func (s *Shell) Getvar(name string) string {
	v, _ := s.LookupEnv(name)
	return v
}

// Setvar assigns a variable. Exported variables are updated in the
// environment, everything else is shell-local.
func (s *Shell) Setvar(name, value string) error {
	if !shell.IsName(name) {
		return fmt.Errorf("`%s': not a valid identifier", name)
	}
	if _, exported := s.Env.LookupEnv(name); exported {
		return s.Env.Setenv(name, value)
	}
	return s.Vars.Setenv(name, value)
}

// Export moves name to the environment, setting it to value if given. An
// unset name without a value is left alone.
func (s *Shell) Export(name string, value *string) error {
	if !shell.IsName(name) {
		return fmt.Errorf("`%s': not a valid identifier", name)
	}
	if value == nil {
		v, ok := s.Vars.LookupEnv(name)
		if !ok {
			return nil
		}
		value = &v
	}
	if err := s.Env.Setenv(name, *value); err != nil {
		return err
	}
	return s.Vars.Unsetenv(name)
}

// Unexport moves name from the environment back to the shell variables.
func (s *Shell) Unexport(name string) error {
	v, ok := s.Env.LookupEnv(name)
	if !ok {
		return nil
	}
	if err := s.Env.Unsetenv(name); err != nil {
		return err
	}
	return s.Vars.Setenv(name, v)
}

// Unsetvar removes name from both shell variables and the environment.
func (s *Shell) Unsetvar(name string) error {
	if err := s.Vars.Unsetenv(name); err != nil {
		return err
	}
	return s.Env.Unsetenv(name)
}

// environ builds a child environment: the exported variables overridden by
// the command's NAME=value assignments.
func (s *Shell) environ(assigns []string) []string {
	env := vos.NewMapEnvFromEnvList(s.Env.Environ())
	if err := vos.CopyEnv(env, vos.EnvList(assigns)); err != nil {
		s.Logger.Printf("command environment: %v", err)
	}
	return env.Environ()
}

// abs resolves path against the shell's working directory.
func (s *Shell) abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(s.Dir, path)
}

// clone creates the state a builtin runs with inside a pipeline or in the
// background: copies of the variables and environment, a read-only view of
// the job table and the stage's descriptors. Changes never reach s.
func (s *Shell) clone(stdio Stdio) *Shell {
	c := *s
	c.Stdio = stdio
	c.Vars = s.Vars.Clone()
	c.Env = vos.NewMapEnvFromEnvList(s.Env.Environ())
	c.Jobs = s.Jobs.Snapshot()
	c.router = nil
	c.tty = nil
	c.source = nil
	c.history = append([]string(nil), s.history...)
	c.task = true
	c.exited = false
	return &c
}

// Exited reports whether exit was called.
func (s *Shell) Exited() bool {
	return s.exited
}

// Status is the session's result: the exit argument or the last status.
func (s *Shell) Status() int {
	if s.exited {
		return s.exitCode
	}
	return s.LastStatus
}

func (s *Shell) prompt() string {
	prompt := s.Getvar(EnvPrompt)
	if prompt == "" {
		prompt = DefaultPrompt
	}
	prompt = strings.ReplaceAll(prompt, `\u`, s.username())
	prompt = strings.ReplaceAll(prompt, `\h`, s.hostname())

	pwd := s.Dir
	home := s.Getvar(EnvHome)
	if home != "" && (pwd == home || strings.HasPrefix(pwd, home+"/")) {
		pwd = "~" + strings.TrimPrefix(pwd, home)
	}

	prompt = strings.ReplaceAll(prompt, `\w`, pwd)

	if os.Geteuid() == 0 {
		prompt = strings.ReplaceAll(prompt, `\$`, "#")
	} else {
		prompt = strings.ReplaceAll(prompt, `\$`, "$")
	}

	return unescape(prompt)
}

func (s *Shell) continuationPrompt() string {
	if prompt, ok := s.LookupEnv(EnvContinuationPrompt); ok {
		return unescape(prompt)
	}
	return DefaultContinuationPrompt
}

func (s *Shell) username() string {
	if name := s.Getvar(EnvUser); name != "" {
		return name
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "?"
}

func (s *Shell) hostname() string {
	if host := s.Getvar(EnvHostname); host != "" {
		return host
	}
	host, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	if i := strings.IndexByte(host, '.'); i > 0 {
		host = host[:i]
	}
	return host
}

// Run reads and executes lines from src until the input ends or exit is
// called, and returns the session's status.
func (s *Shell) Run(src LineSource) int {
	s.source = src
	defer func() { s.source = nil }()

	for !s.exited {
		s.Jobs.Reap()

		line, err := src.ReadLine(s.prompt())
		switch {
		case err == io.EOF:
			return s.Status()

		case err == readline.ErrInterrupt:
			// Interrupt clears line.
			continue

		case err != nil:
			s.Logger.Printf("Error readline: %v", err)
			s.printError(err)
			return StatusFailure
		}

		if s.router != nil {
			s.router.Interrupted()
		}
		s.runInput(src, line)
	}
	return s.Status()
}

// RunString executes script as if its lines were read from a file.
func (s *Shell) RunString(script string) int {
	return s.Run(NewScriptSource(strings.NewReader(script)))
}

// runInput parses line, reading continuation lines from src while a quote or
// block is left open, and evaluates it.
func (s *Shell) runInput(src LineSource, line string) {
	text := line
	for {
		stmts, err := shell.ParseLine(text)
		if err == nil {
			s.remember(text)
			s.EvalList(stmts)
			return
		}
		if shell.Incomplete(err) {
			more, rerr := src.ReadLine(s.continuationPrompt())
			if rerr == nil {
				text += "\n" + more
				continue
			}
			if rerr == readline.ErrInterrupt {
				return
			}
		}
		s.remember(text)
		s.printError(fmt.Errorf("syntax error: %w", err))
		s.LastStatus = StatusSyntax
		return
	}
}

func (s *Shell) remember(text string) {
	if strings.TrimSpace(text) != "" {
		s.history = append(s.history, text)
	}
}

func (s *Shell) printError(err error) {
	fmt.Fprintf(s.Err, "rush: %s\n", s.Colors.Sprintf(ColorBoldRed, "%v", err))
}
