// Package jobs tracks launched pipelines, their process groups and their
// Running, Stopped and Done states.
package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSuchJob is returned when a job spec matches nothing.
	ErrNoSuchJob = errors.New("no such job")
	// ErrNoJobControl is returned by a read-only table.
	ErrNoJobControl = errors.New("no job control")
	// ErrSignalDeliveryFailed is returned when a process group could not be
	// signalled, usually because it is already gone.
	ErrSignalDeliveryFailed = errors.New("signal delivery failed")
)

// State is a job's lifecycle state.
type State int

const (
	Running State = iota
	Stopped
	Done
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	case Done:
		return "Done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Member is one stage of a job: either a child process or a stage executed
// inside the shell that reports its status on a channel.
type Member struct {
	// Pid is the process id, or 0 for an in-process stage.
	Pid int

	done    <-chan int
	exited  bool
	stopped bool
	status  int
}

// NewProcess creates a member for a spawned child process.
func NewProcess(pid int) *Member {
	return &Member{Pid: pid}
}

// NewTask creates a member for an in-process stage that sends its exit
// status on done when it finishes.
func NewTask(done <-chan int) *Member {
	return &Member{done: done}
}

// Exited reports whether the member has finished.
func (m *Member) Exited() bool {
	return m.exited
}

// Status is the member's exit status once it has exited.
func (m *Member) Status() int {
	return m.status
}

func (m *Member) apply(res WaitResult) {
	switch {
	case res.Exited:
		m.exited = true
		m.stopped = false
		m.status = res.Status
	case res.Stopped:
		m.stopped = true
		m.status = res.Status
	case res.Continued:
		m.stopped = false
	}
}

// Job is one launched pipeline.
type Job struct {
	ID         int
	Pgid       int
	Members    []*Member
	Command    string
	Background bool

	state  State
	status int
}

// State is the job's current state.
func (j *Job) State() State {
	return j.state
}

// Status is the job's exit status: the last member's status once Done, or
// the stop signal status while Stopped.
func (j *Job) Status() int {
	return j.status
}

// Pids returns the process ids of the job's child processes.
func (j *Job) Pids() []int {
	var out []int
	for _, m := range j.Members {
		if m.Pid != 0 {
			out = append(out, m.Pid)
		}
	}
	return out
}

// refresh recomputes the job state from its members and reports whether it
// changed.
func (j *Job) refresh() bool {
	prev := j.state
	allExited := true
	anyStopped := false
	for _, m := range j.Members {
		if !m.exited {
			allExited = false
		}
		if m.stopped && !m.exited {
			anyStopped = true
			j.status = m.status
		}
	}
	switch {
	case allExited:
		j.state = Done
		j.status = j.Members[len(j.Members)-1].status
	case anyStopped:
		j.state = Stopped
	default:
		j.state = Running
	}
	return j.state != prev
}

// Event is a job state change notification.
type Event struct {
	ID         int
	Pgid       int
	State      State
	Status     int
	Command    string
	Background bool
	// Current is set if the job is the default target of fg and bg.
	Current bool
	// Launched is set for the notification emitted when the job is added.
	Launched bool
}

// Notifier receives job state changes.
type Notifier interface {
	JobChanged(Event)
}

// NotifierFunc adapts a function to a Notifier.
type NotifierFunc func(Event)

// JobChanged implements Notifier.
func (f NotifierFunc) JobChanged(ev Event) {
	f(ev)
}
