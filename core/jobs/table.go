package jobs

import (
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"syscall"
)

// Table is the shell's job table. It is owned by the interpreter goroutine
// and is not safe for concurrent use.
type Table struct {
	// Terminal, if set, is handed to foreground jobs.
	Terminal Terminal
	// Router, if set, is told which process group is in the foreground.
	Router *Router
	// Logger receives reaping and signalling failures.
	Logger *log.Logger

	ctrl      Control
	jobs      []*Job
	notifiers []Notifier
	current   int
	previous  int
	readOnly  bool
}

// NewTable creates an empty table backed by ctrl.
func NewTable(ctrl Control) *Table {
	return &Table{
		ctrl:   ctrl,
		Logger: log.New(io.Discard, "", 0),
	}
}

// Subscribe registers n for state change notifications.
func (t *Table) Subscribe(n Notifier) {
	t.notifiers = append(t.notifiers, n)
}

// Add records a newly launched job. IDs count up from one past the largest
// ID currently in the table.
func (t *Table) Add(pgid int, members []*Member, command string, background bool) *Job {
	id := 1
	for _, j := range t.jobs {
		if j.ID >= id {
			id = j.ID + 1
		}
	}
	j := &Job{
		ID:         id,
		Pgid:       pgid,
		Members:    members,
		Command:    command,
		Background: background,
		state:      Running,
	}
	t.jobs = append(t.jobs, j)
	if background {
		t.setCurrent(id)
	}
	t.emit(j, true)
	return j
}

// Jobs returns the jobs in ID order.
func (t *Table) Jobs() []*Job {
	out := make([]*Job, len(t.jobs))
	copy(out, t.jobs)
	return out
}

// Current returns the ID of the default job for fg and bg, or 0.
func (t *Table) Current() int {
	if t.find(t.current) != nil {
		return t.current
	}
	if len(t.jobs) == 0 {
		return 0
	}
	return t.jobs[len(t.jobs)-1].ID
}

// Lookup resolves a job spec: "", %+, %% and %- name the current and
// previous jobs, N and %N name a job by ID.
func (t *Table) Lookup(spec string) (*Job, error) {
	var j *Job
	switch spec {
	case "", "%", "%+", "%%":
		j = t.find(t.Current())
	case "%-":
		j = t.find(t.previous)
	default:
		id, err := strconv.Atoi(strings.TrimPrefix(spec, "%"))
		if err == nil {
			j = t.find(id)
		}
	}
	if j == nil {
		if spec == "" {
			spec = "current"
		}
		return nil, fmt.Errorf("%s: %w", spec, ErrNoSuchJob)
	}
	return j, nil
}

// Snapshot returns a read-only copy of the table for inspection by stages
// running outside the interpreter goroutine.
func (t *Table) Snapshot() *Table {
	snap := &Table{
		ctrl:     t.ctrl,
		Logger:   t.Logger,
		current:  t.current,
		previous: t.previous,
		readOnly: true,
	}
	for _, j := range t.jobs {
		cp := *j
		cp.Members = append([]*Member(nil), j.Members...)
		snap.jobs = append(snap.jobs, &cp)
	}
	return snap
}

// WaitForeground waits for j while it runs in the foreground. It returns when
// every member has exited or any member stops. A stopped job stays in the
// table and becomes the current job; a finished one is removed.
func (t *Table) WaitForeground(j *Job) (int, error) {
	return t.foreground(j, false)
}

// Foreground moves j to the foreground, resuming it if it is stopped, and
// waits for it.
func (t *Table) Foreground(j *Job) (int, error) {
	return t.foreground(j, true)
}

// Background resumes a stopped job without waiting for it.
func (t *Table) Background(j *Job) error {
	if t.readOnly {
		return ErrNoJobControl
	}
	j.Background = true
	t.setCurrent(j.ID)
	if j.state == Stopped {
		return t.resume(j)
	}
	return nil
}

// Reap polls every unfinished job without blocking, emits a notification for
// each state change and removes finished jobs.
func (t *Table) Reap() {
	if t.readOnly {
		return
	}
	for _, j := range t.Jobs() {
		if j.state == Done {
			continue
		}
		for _, m := range j.Members {
			if m.exited {
				continue
			}
			if m.Pid == 0 {
				select {
				case st := <-m.done:
					m.exited = true
					m.status = st
				default:
				}
				continue
			}
			for {
				res, ok, err := t.ctrl.Wait(m.Pid, false)
				if err != nil {
					t.Logger.Printf("wait %d: %v", m.Pid, err)
					m.exited = true
					break
				}
				if !ok {
					break
				}
				m.apply(res)
				if m.exited {
					break
				}
			}
		}
		if j.refresh() {
			t.emit(j, false)
		}
		if j.state == Done {
			t.remove(j)
		}
	}
}

func (t *Table) foreground(j *Job, resume bool) (int, error) {
	if t.readOnly {
		return 0, ErrNoJobControl
	}
	j.Background = false
	if j.Pgid > 0 {
		if t.Terminal != nil {
			if err := t.Terminal.Foreground(j.Pgid); err != nil {
				t.Logger.Printf("terminal handoff to %d: %v", j.Pgid, err)
			}
			defer func() {
				if err := t.Terminal.Reclaim(); err != nil {
					t.Logger.Printf("terminal reclaim: %v", err)
				}
			}()
		}
		if t.Router != nil {
			t.Router.SetForeground(j.Pgid)
			defer t.Router.SetForeground(0)
		}
	}
	if resume && j.state == Stopped {
		if err := t.resume(j); err != nil {
			return j.status, err
		}
	}

	for _, m := range j.Members {
		for !m.exited {
			if m.Pid == 0 {
				m.status = <-m.done
				m.exited = true
				break
			}
			res, ok, err := t.ctrl.Wait(m.Pid, true)
			if err != nil {
				t.Logger.Printf("wait %d: %v", m.Pid, err)
				m.exited = true
				break
			}
			if !ok {
				continue
			}
			m.apply(res)
			if res.Stopped {
				j.refresh()
				t.setCurrent(j.ID)
				t.emit(j, false)
				return j.status, nil
			}
		}
	}
	j.refresh()
	t.emit(j, false)
	t.remove(j)
	return j.status, nil
}

// resume sends SIGCONT to a stopped job. If the group is gone the job is
// treated as finished.
func (t *Table) resume(j *Job) error {
	if j.Pgid == 0 {
		// Processes sharing the shell's group can't be continued as a unit.
		for _, m := range j.Members {
			if m.Pid != 0 && !m.exited {
				return fmt.Errorf("%%%d: %w", j.ID, ErrNoJobControl)
			}
		}
	}
	if j.Pgid > 0 {
		if err := t.ctrl.Signal(j.Pgid, syscall.SIGCONT); err != nil {
			t.Logger.Printf("continue job %d: %v", j.ID, err)
			for _, m := range j.Members {
				if !m.exited && m.Pid != 0 {
					m.exited = true
				}
			}
			j.refresh()
			t.emit(j, false)
			t.remove(j)
			return fmt.Errorf("%%%d: %w: %v", j.ID, ErrSignalDeliveryFailed, err)
		}
	}
	for _, m := range j.Members {
		m.stopped = false
	}
	j.refresh()
	t.emit(j, false)
	return nil
}

func (t *Table) find(id int) *Job {
	if id == 0 {
		return nil
	}
	for _, j := range t.jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

func (t *Table) setCurrent(id int) {
	if id == t.current {
		return
	}
	t.previous = t.current
	t.current = id
}

func (t *Table) remove(j *Job) {
	for i, other := range t.jobs {
		if other == j {
			t.jobs = append(t.jobs[:i], t.jobs[i+1:]...)
			break
		}
	}
	if t.current == j.ID {
		t.current = t.previous
		t.previous = 0
	}
	if t.previous == j.ID {
		t.previous = 0
	}
}

func (t *Table) emit(j *Job, launched bool) {
	ev := Event{
		ID:         j.ID,
		Pgid:       j.Pgid,
		State:      j.state,
		Status:     j.status,
		Command:    j.Command,
		Background: j.Background,
		Current:    j.ID == t.Current(),
		Launched:   launched,
	}
	for _, n := range t.notifiers {
		n.JobChanged(ev)
	}
}
