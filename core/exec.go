package core

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/josephlewis42/rush/core/jobs"
	"github.com/josephlewis42/rush/core/shell"
	"golang.org/x/sys/unix"
)

var errAmbiguousRedirect = errors.New("ambiguous redirect")

// stage is one command of a pipeline, expanded and resolved but not started.
type stage struct {
	cmd     *shell.SimpleCommand
	args    []string
	assigns []string
	targets []string

	builtin ShellBuiltin
	path    string

	// done is set once the stage runs inside the shell.
	done chan int
}

// name is used in diagnostics.
func (st *stage) name() string {
	if len(st.args) == 0 {
		return st.cmd.String()
	}
	return st.args[0]
}

// prepare expands and resolves every command of p without opening or
// starting anything, so a lookup failure leaves nothing to clean up.
func (s *Shell) prepare(p *shell.Pipeline) ([]*stage, error) {
	stages := make([]*stage, len(p.Commands))
	for i, cmd := range p.Commands {
		st := &stage{
			cmd:  cmd,
			args: shell.Texts(shell.Expand(cmd.Words, s)),
		}
		for _, a := range cmd.Assigns {
			st.assigns = append(st.assigns, shell.ExpandWord(a, s))
		}
		for _, r := range cmd.Redirects {
			target := r.Target.Text
			if r.Mode != shell.Duplicate {
				target = shell.ExpandWord(r.Target, s)
			}
			st.targets = append(st.targets, target)
		}

		if len(st.args) > 0 {
			if b, ok := s.Builtins[st.args[0]]; ok {
				st.builtin = b
			} else {
				candidates := s.Paths.Resolve(st.args[0], s.Getvar(EnvPath), s.Dir)
				if len(candidates) == 0 {
					return nil, &NotFoundError{Name: st.args[0]}
				}
				st.path = candidates[0]
			}
		}
		stages[i] = st
	}
	return stages, nil
}

func redirectFlags(mode shell.RedirectMode) int {
	switch mode {
	case shell.Overwrite:
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case shell.Append:
		return os.O_WRONLY | os.O_CREATE | os.O_APPEND
	default:
		return os.O_RDONLY
	}
}

// openRedirects opens the files named by st's redirects, one entry per
// redirect and nil for duplications. Nothing stays open on failure.
func (s *Shell) openRedirects(st *stage) ([]*os.File, error) {
	files := make([]*os.File, len(st.cmd.Redirects))
	for i, r := range st.cmd.Redirects {
		if r.Mode == shell.Duplicate {
			continue
		}
		path := st.targets[i]
		if path == "" {
			closeAll(files)
			return nil, &RedirectError{Path: r.Target.String(), Err: errAmbiguousRedirect}
		}
		f, err := os.OpenFile(s.abs(path), redirectFlags(r.Mode), 0666)
		if err != nil {
			closeAll(files)
			return nil, &RedirectError{Path: path, Err: err}
		}
		files[i] = f
	}
	return files, nil
}

// wire applies st's redirects in order on top of fds. A later redirect of the
// same descriptor wins; a duplication copies whatever the source descriptor
// refers to at that point.
func wire(fds [3]*os.File, st *stage, files []*os.File) [3]*os.File {
	for i, r := range st.cmd.Redirects {
		if r.Mode == shell.Duplicate {
			src, err := strconv.Atoi(st.targets[i])
			if err == nil && src >= 0 && src < len(fds) {
				fds[r.FD] = fds[src]
			}
			continue
		}
		fds[r.FD] = files[i]
	}
	return fds
}

func redirectsStdin(st *stage) bool {
	for _, r := range st.cmd.Redirects {
		if r.FD == shell.Stdin {
			return true
		}
	}
	return false
}

func closeAll(files []*os.File) {
	for _, f := range files {
		if f != nil {
			f.Close()
		}
	}
}

// Launch starts every command of p and registers the result as a job.
func (s *Shell) Launch(p *shell.Pipeline) (*jobs.Job, error) {
	stages, err := s.prepare(p)
	if err != nil {
		return nil, err
	}
	return s.start(p, stages)
}

// start opens all redirects and pipes, then starts the stages left to right.
// Background jobs, and every job once job control is enabled, get a process
// group of their own led by the first child; otherwise children stay in the
// shell's group so terminal reads and keyboard signals reach them. Builtins
// run on their own goroutine against a clone of the shell. The parent's copy
// of every descriptor handed to a stage is closed once that stage is running;
// a builtin stage closes its own when it finishes.
func (s *Shell) start(p *shell.Pipeline, stages []*stage) (*jobs.Job, error) {
	n := len(stages)
	owned := make([][]*os.File, n)
	fds := make([][3]*os.File, n)
	redirects := make([][]*os.File, n)
	release := func(from int) {
		for _, files := range owned[from:] {
			closeAll(files)
		}
	}

	for i, st := range stages {
		files, err := s.openRedirects(st)
		if err != nil {
			release(0)
			return nil, err
		}
		redirects[i] = files
		owned[i] = append(owned[i], files...)
		fds[i] = [3]*os.File{s.In, s.Out, s.Err}
	}

	if p.Background && !redirectsStdin(stages[0]) {
		null, err := os.Open(os.DevNull)
		if err != nil {
			release(0)
			return nil, &RedirectError{Path: os.DevNull, Err: err}
		}
		fds[0][shell.Stdin] = null
		owned[0] = append(owned[0], null)
	}

	for i := 0; i < n-1; i++ {
		r, w, err := os.Pipe()
		if err != nil {
			release(0)
			return nil, fmt.Errorf("%w: %v", ErrPipeCreationFailed, err)
		}
		fds[i][shell.Stdout] = w
		owned[i] = append(owned[i], w)
		fds[i+1][shell.Stdin] = r
		owned[i+1] = append(owned[i+1], r)
	}

	for i, st := range stages {
		fds[i] = wire(fds[i], st, redirects[i])
	}

	var (
		pgid    int
		members []*jobs.Member
		group   = p.Background || s.router != nil
	)
	for i, st := range stages {
		member, err := s.spawn(st, fds[i], launch{pgid: pgid, group: group, background: p.Background}, owned[i])
		if err != nil {
			release(i)
			s.abort(stages[:i], members)
			return nil, err
		}
		if group && pgid == 0 && member.Pid != 0 {
			pgid = member.Pid
		}
		members = append(members, member)
	}

	return s.Jobs.Add(pgid, members, p.String(), p.Background), nil
}

// launch is how a job's children are placed in process groups.
type launch struct {
	// pgid of the job's group, 0 until its leader has started.
	pgid       int
	group      bool
	background bool
}

func (l launch) sysProcAttr(tty *jobs.TTY) *syscall.SysProcAttr {
	if !l.group {
		return &syscall.SysProcAttr{}
	}
	sys := &syscall.SysProcAttr{Setpgid: true, Pgid: l.pgid}
	if l.pgid == 0 && !l.background && tty != nil {
		// The group leader takes the terminal before exec so it can't race
		// the shell for its first read.
		sys.Foreground = true
		sys.Ctty = tty.Fd()
	}
	return sys
}

// spawn starts one stage. On success the descriptors in owned belong to the
// stage.
func (s *Shell) spawn(st *stage, fds [3]*os.File, l launch, owned []*os.File) (*jobs.Member, error) {
	if st.builtin == nil && len(st.args) > 0 {
		return s.spawnProcess(st, fds, l, owned)
	}

	child := s.clone(Stdio{In: fds[0], Out: fds[1], Err: fds[2]})
	st.done = make(chan int, 1)
	go func() {
		status := child.runStage(st)
		closeAll(owned)
		st.done <- status
	}()
	return jobs.NewTask(st.done), nil
}

func (s *Shell) spawnProcess(st *stage, fds [3]*os.File, l launch, owned []*os.File) (*jobs.Member, error) {
	sys := l.sysProcAttr(s.tty)
	if sys.Foreground {
		s.tty.Save()
	}

	proc, err := os.StartProcess(st.path, st.args, &os.ProcAttr{
		Dir:   s.Dir,
		Env:   s.environ(st.assigns),
		Files: []*os.File{fds[0], fds[1], fds[2]},
		Sys:   sys,
	})
	if err != nil {
		if sys.Foreground {
			if rerr := s.tty.Reclaim(); rerr != nil {
				s.Logger.Printf("terminal reclaim: %v", rerr)
			}
		}
		return nil, &SpawnError{Name: st.args[0], Err: err}
	}
	closeAll(owned)

	pid := proc.Pid
	if err := proc.Release(); err != nil {
		s.Logger.Printf("release %d: %v", pid, err)
	}
	if l.group {
		s.Logger.Printf("started %s as pid %d in group %d", st.path, pid, pgidOr(l.pgid, pid))
	} else {
		s.Logger.Printf("started %s as pid %d in the shell's group", st.path, pid)
	}
	return jobs.NewProcess(pid), nil
}

func pgidOr(pgid, pid int) int {
	if pgid == 0 {
		return pid
	}
	return pgid
}

// abort kills and reaps the stages already started when a later one failed.
func (s *Shell) abort(started []*stage, members []*jobs.Member) {
	for _, m := range members {
		if m.Pid == 0 {
			continue
		}
		if err := unix.Kill(m.Pid, unix.SIGKILL); err != nil {
			s.Logger.Printf("kill %d: %v", m.Pid, err)
		}
	}
	for _, m := range members {
		if m.Pid == 0 {
			continue
		}
		for {
			res, ok, err := s.ctrl.Wait(m.Pid, true)
			if err != nil {
				s.Logger.Printf("wait %d: %v", m.Pid, err)
				break
			}
			if ok && res.Exited {
				break
			}
		}
	}
	for _, st := range started {
		if st.done != nil {
			<-st.done
		}
	}
	if s.tty != nil && len(members) > 0 {
		if err := s.tty.Reclaim(); err != nil {
			s.Logger.Printf("terminal reclaim: %v", err)
		}
	}
}

// runStage runs a builtin or assignment-only stage on a cloned shell.
func (s *Shell) runStage(st *stage) int {
	if len(st.args) == 0 {
		return s.assign(st.assigns)
	}
	return st.builtin.Main(s, st.args)
}

// assign applies NAME=value words to the shell.
func (s *Shell) assign(assigns []string) int {
	status := 0
	for _, a := range assigns {
		name, value, _ := strings.Cut(a, "=")
		if err := s.Setvar(name, value); err != nil {
			s.printError(err)
			status = StatusFailure
		}
	}
	return status
}

// runBuiltin runs a lone foreground builtin in the shell itself with its
// redirects applied for the duration of the call.
func (s *Shell) runBuiltin(st *stage) int {
	files, err := s.openRedirects(st)
	if err != nil {
		return s.fail(err)
	}
	defer closeAll(files)

	saved := s.Stdio
	fds := wire([3]*os.File{s.In, s.Out, s.Err}, st, files)
	s.Stdio = Stdio{In: fds[0], Out: fds[1], Err: fds[2]}
	defer func() { s.Stdio = saved }()

	defer s.withAssigns(st.assigns)()
	return st.builtin.Main(s, st.args)
}

// withAssigns sets shell variables for the length of one builtin call and
// returns a function restoring the previous values.
func (s *Shell) withAssigns(assigns []string) func() {
	type saved struct {
		name, value string
		ok          bool
	}
	var prev []saved
	for _, a := range assigns {
		name, value, _ := strings.Cut(a, "=")
		old, ok := s.Vars.LookupEnv(name)
		if err := s.Vars.Setenv(name, value); err != nil {
			s.Logger.Printf("assign %q: %v", name, err)
			continue
		}
		prev = append(prev, saved{name, old, ok})
	}
	return func() {
		for i := len(prev) - 1; i >= 0; i-- {
			p := prev[i]
			if p.ok {
				s.Vars.Setenv(p.name, p.value)
			} else {
				s.Vars.Unsetenv(p.name)
			}
		}
	}
}

// assignOnly handles a lone command with no words: its redirects are
// performed for their side effects and its assignments change the shell.
func (s *Shell) assignOnly(st *stage) int {
	files, err := s.openRedirects(st)
	if err != nil {
		return s.fail(err)
	}
	closeAll(files)
	return s.assign(st.assigns)
}

// fail reports err and returns its exit status.
func (s *Shell) fail(err error) int {
	s.printError(err)
	return ExitStatus(err)
}
