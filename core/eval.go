package core

import (
	"syscall"

	"github.com/josephlewis42/rush/core/shell"
)

// Eval runs one statement and records its status in LastStatus.
func (s *Shell) Eval(stmt shell.Statement) int {
	var status int
	switch st := stmt.(type) {
	case *shell.Simple:
		status = s.evalPipeline(st.Pipeline)
	case *shell.If:
		status = s.evalIf(st)
	case *shell.For:
		status = s.evalFor(st)
	case *shell.While:
		status = s.evalWhile(st)
	default:
		s.Logger.Printf("unknown statement %T", stmt)
		status = StatusFailure
	}
	s.LastStatus = status
	return status
}

// EvalList runs statements in order and returns the status of the last one,
// or 0 for an empty list. It stops once exit has been called.
func (s *Shell) EvalList(stmts []shell.Statement) int {
	status := 0
	for _, stmt := range stmts {
		if s.exited {
			break
		}
		status = s.Eval(stmt)
	}
	return status
}

func (s *Shell) evalIf(st *shell.If) int {
	cond := s.Eval(st.Cond)
	switch {
	case s.exited:
		return cond
	case cond == 0:
		return s.EvalList(st.Then)
	case st.Else != nil:
		return s.EvalList(st.Else)
	default:
		return 0
	}
}

func (s *Shell) evalFor(st *shell.For) int {
	status := 0
	for _, value := range shell.Texts(shell.Expand(st.List, s)) {
		if s.exited {
			break
		}
		if s.interrupted() {
			return interruptStatus
		}
		if err := s.Setvar(st.Var, value); err != nil {
			return s.fail(err)
		}
		status = s.EvalList(st.Body)
	}
	return status
}

func (s *Shell) evalWhile(st *shell.While) int {
	status := 0
	for !s.exited {
		if s.interrupted() {
			return interruptStatus
		}
		if s.Eval(st.Cond) != 0 || s.exited {
			break
		}
		status = s.EvalList(st.Body)
	}
	return status
}

var interruptStatus = StatusSignalOffset + int(syscall.SIGINT)

// interrupted reports an interrupt received while no job was in the
// foreground, which ends the innermost running loop.
func (s *Shell) interrupted() bool {
	return s.router != nil && s.router.Interrupted()
}

// evalPipeline runs p. A lone foreground builtin or assignment runs in the
// shell itself; everything else becomes a job.
func (s *Shell) evalPipeline(p *shell.Pipeline) int {
	stages, err := s.prepare(p)
	if err != nil {
		return s.record(p, s.fail(err))
	}

	if len(stages) == 1 && !p.Background {
		st := stages[0]
		switch {
		case len(st.args) == 0:
			return s.assignOnly(st)
		case st.builtin != nil:
			return s.record(p, s.runBuiltin(st))
		}
	}

	job, err := s.start(p, stages)
	if err != nil {
		return s.record(p, s.fail(err))
	}
	if p.Background {
		return 0
	}

	status, err := s.Jobs.WaitForeground(job)
	if err != nil {
		s.printError(err)
	}
	return s.record(p, status)
}

func (s *Shell) record(p *shell.Pipeline, status int) int {
	if s.Events != nil {
		if err := s.Events.RunCommand(p.String(), status); err != nil {
			s.Logger.Printf("event log: %v", err)
		}
	}
	return status
}
