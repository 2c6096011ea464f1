package jobs

import (
	"bytes"
	"errors"
	"log"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	pgid int
	sig  syscall.Signal
}

// fakeControl replays scripted wait results per pid.
type fakeControl struct {
	results map[int][]WaitResult
	sent    []sent
	sigErr  error
}

func newFakeControl() *fakeControl {
	return &fakeControl{results: map[int][]WaitResult{}}
}

func (f *fakeControl) push(pid int, res ...WaitResult) {
	f.results[pid] = append(f.results[pid], res...)
}

func (f *fakeControl) Wait(pid int, block bool) (WaitResult, bool, error) {
	queue := f.results[pid]
	if len(queue) == 0 {
		if block {
			return WaitResult{}, false, syscall.ECHILD
		}
		return WaitResult{}, false, nil
	}
	f.results[pid] = queue[1:]
	return queue[0], true, nil
}

func (f *fakeControl) Signal(pgid int, sig syscall.Signal) error {
	f.sent = append(f.sent, sent{pgid, sig})
	return f.sigErr
}

func exited(status int) WaitResult {
	return WaitResult{Exited: true, Status: status}
}

var stopped = WaitResult{Stopped: true, Status: 128 + int(syscall.SIGTSTP)}

func recordEvents(t *Table) *[]Event {
	var events []Event
	t.Subscribe(NotifierFunc(func(ev Event) {
		events = append(events, ev)
	}))
	return &events
}

func TestTableAddIDs(t *testing.T) {
	table := NewTable(newFakeControl())

	a := table.Add(100, []*Member{NewProcess(100)}, "a", true)
	b := table.Add(200, []*Member{NewProcess(200)}, "b", true)
	assert.Equal(t, 1, a.ID)
	assert.Equal(t, 2, b.ID)

	table.remove(a)
	c := table.Add(300, []*Member{NewProcess(300)}, "c", true)
	assert.Equal(t, 3, c.ID)

	table.remove(b)
	table.remove(c)
	d := table.Add(400, []*Member{NewProcess(400)}, "d", true)
	assert.Equal(t, 1, d.ID)
}

func TestTableForegroundStatusIsLastMember(t *testing.T) {
	cases := map[string]struct {
		statuses []int
		expected int
	}{
		"last fails":  {statuses: []int{0, 1}, expected: 1},
		"first fails": {statuses: []int{1, 0}, expected: 0},
		"single":      {statuses: []int{7}, expected: 7},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			ctrl := newFakeControl()
			table := NewTable(ctrl)
			var members []*Member
			for i, st := range tc.statuses {
				pid := 10 + i
				ctrl.push(pid, exited(st))
				members = append(members, NewProcess(pid))
			}
			j := table.Add(10, members, "p", false)

			status, err := table.WaitForeground(j)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, status)
			assert.Equal(t, Done, j.State())
			assert.Empty(t, table.Jobs())
		})
	}
}

func TestTableInProcessMember(t *testing.T) {
	ctrl := newFakeControl()
	table := NewTable(ctrl)
	done := make(chan int, 1)
	done <- 3
	ctrl.push(50, exited(0))
	j := table.Add(50, []*Member{NewProcess(50), NewTask(done)}, "ext | builtin", false)

	status, err := table.WaitForeground(j)
	require.NoError(t, err)
	assert.Equal(t, 3, status)
	assert.Equal(t, []int{50}, j.Pids())
}

func TestTableStopAndResume(t *testing.T) {
	ctrl := newFakeControl()
	table := NewTable(ctrl)
	events := recordEvents(table)
	ctrl.push(42, stopped)
	j := table.Add(42, []*Member{NewProcess(42)}, "sleep 10", false)

	status, err := table.WaitForeground(j)
	require.NoError(t, err)
	assert.Equal(t, 148, status)
	assert.Equal(t, Stopped, j.State())
	require.Len(t, table.Jobs(), 1)

	cur, err := table.Lookup("%+")
	require.NoError(t, err)
	assert.Same(t, j, cur)

	ctrl.push(42, exited(0))
	status, err = table.Foreground(j)
	require.NoError(t, err)
	assert.Equal(t, 0, status)
	assert.Equal(t, []sent{{42, syscall.SIGCONT}}, ctrl.sent)
	assert.Empty(t, table.Jobs())

	var states []State
	for _, ev := range *events {
		states = append(states, ev.State)
	}
	assert.Equal(t, []State{Running, Stopped, Running, Done}, states)
	assert.True(t, (*events)[0].Launched)
}

func TestTableBackgroundResume(t *testing.T) {
	ctrl := newFakeControl()
	table := NewTable(ctrl)
	ctrl.push(42, stopped)
	j := table.Add(42, []*Member{NewProcess(42)}, "sleep 10", false)
	_, err := table.WaitForeground(j)
	require.NoError(t, err)

	require.NoError(t, table.Background(j))
	assert.Equal(t, Running, j.State())
	assert.True(t, j.Background)
	assert.Equal(t, []sent{{42, syscall.SIGCONT}}, ctrl.sent)

	// Running jobs are not signalled again.
	require.NoError(t, table.Background(j))
	assert.Len(t, ctrl.sent, 1)
}

func TestTableResumeFailureFinishesJob(t *testing.T) {
	ctrl := newFakeControl()
	var logs bytes.Buffer
	table := NewTable(ctrl)
	table.Logger = log.New(&logs, "", 0)
	ctrl.push(42, stopped)
	j := table.Add(42, []*Member{NewProcess(42)}, "sleep 10", false)
	_, err := table.WaitForeground(j)
	require.NoError(t, err)

	ctrl.sigErr = syscall.ESRCH
	err = table.Background(j)
	assert.True(t, errors.Is(err, ErrSignalDeliveryFailed))
	assert.Equal(t, Done, j.State())
	assert.Empty(t, table.Jobs())
	assert.Contains(t, logs.String(), "continue job 1")
}

func TestTableReap(t *testing.T) {
	ctrl := newFakeControl()
	table := NewTable(ctrl)
	events := recordEvents(table)
	j := table.Add(7, []*Member{NewProcess(7), NewProcess(8)}, "a | b", true)

	table.Reap()
	assert.Equal(t, Running, j.State())
	assert.Len(t, *events, 1)

	ctrl.push(7, exited(0))
	table.Reap()
	assert.Equal(t, Running, j.State())
	assert.Len(t, *events, 1)

	ctrl.push(8, exited(2))
	table.Reap()
	assert.Equal(t, Done, j.State())
	assert.Equal(t, 2, j.Status())
	require.Len(t, *events, 2)
	last := (*events)[1]
	assert.Equal(t, Done, last.State)
	assert.Equal(t, "a | b", last.Command)
	assert.True(t, last.Background)
	assert.Empty(t, table.Jobs())
}

func TestTableReapStop(t *testing.T) {
	ctrl := newFakeControl()
	table := NewTable(ctrl)
	j := table.Add(7, []*Member{NewProcess(7)}, "cat", true)

	ctrl.push(7, stopped)
	table.Reap()
	assert.Equal(t, Stopped, j.State())

	ctrl.push(7, WaitResult{Continued: true})
	table.Reap()
	assert.Equal(t, Running, j.State())
}

func TestTableLookup(t *testing.T) {
	table := NewTable(newFakeControl())

	_, err := table.Lookup("")
	assert.True(t, errors.Is(err, ErrNoSuchJob))

	a := table.Add(1, []*Member{NewProcess(1)}, "a", true)
	b := table.Add(2, []*Member{NewProcess(2)}, "b", true)

	cases := map[string]*Job{
		"":   b,
		"%":  b,
		"%+": b,
		"%%": b,
		"%-": a,
		"1":  a,
		"%1": a,
		"%2": b,
	}
	for spec, expected := range cases {
		got, err := table.Lookup(spec)
		require.NoError(t, err, spec)
		assert.Same(t, expected, got, spec)
	}

	for _, spec := range []string{"3", "%3", "%x", "abc"} {
		_, err := table.Lookup(spec)
		assert.True(t, errors.Is(err, ErrNoSuchJob), spec)
	}

	table.remove(b)
	got, err := table.Lookup("%+")
	require.NoError(t, err)
	assert.Same(t, a, got)
}

func TestTableSnapshotIsReadOnly(t *testing.T) {
	ctrl := newFakeControl()
	table := NewTable(ctrl)
	j := table.Add(9, []*Member{NewProcess(9)}, "sleep 1", true)

	snap := table.Snapshot()
	require.Len(t, snap.Jobs(), 1)
	assert.Equal(t, "sleep 1", snap.Jobs()[0].Command)
	assert.NotSame(t, j, snap.Jobs()[0])

	_, err := snap.Foreground(snap.Jobs()[0])
	assert.Equal(t, ErrNoJobControl, err)
	assert.Equal(t, ErrNoJobControl, snap.Background(snap.Jobs()[0]))

	ctrl.push(9, exited(0))
	snap.Reap()
	assert.Equal(t, Running, j.State())
}

type fakeTerminal struct {
	calls []int
}

func (f *fakeTerminal) Foreground(pgid int) error {
	f.calls = append(f.calls, pgid)
	return nil
}

func (f *fakeTerminal) Reclaim() error {
	f.calls = append(f.calls, 0)
	return nil
}

func TestTableTerminalHandoff(t *testing.T) {
	ctrl := newFakeControl()
	term := &fakeTerminal{}
	router := NewRouter(ctrl)
	table := NewTable(ctrl)
	table.Terminal = term
	table.Router = router

	var observed int
	ctrl.push(33, exited(0))
	table.Subscribe(NotifierFunc(func(ev Event) {
		if ev.State == Done {
			observed = router.Foreground()
		}
	}))
	j := table.Add(33, []*Member{NewProcess(33)}, "ls", false)
	_, err := table.WaitForeground(j)
	require.NoError(t, err)

	assert.Equal(t, []int{33, 0}, term.calls)
	assert.Equal(t, 33, observed)
	assert.Equal(t, 0, router.Foreground())
}

func TestTableResumeWithoutGroup(t *testing.T) {
	ctrl := newFakeControl()
	table := NewTable(ctrl)
	ctrl.push(60, stopped)
	j := table.Add(0, []*Member{NewProcess(60)}, "cat", false)

	status, err := table.WaitForeground(j)
	require.NoError(t, err)
	assert.Equal(t, 128+int(syscall.SIGTSTP), status)

	_, err = table.Foreground(j)
	assert.ErrorIs(t, err, ErrNoJobControl)
	assert.ErrorIs(t, table.Background(j), ErrNoJobControl)
	assert.Empty(t, ctrl.sent)
}
