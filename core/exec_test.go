package core

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/josephlewis42/rush/core/config"
	"github.com/josephlewis42/rush/core/jobs"
	"github.com/josephlewis42/rush/core/logger"
	"github.com/josephlewis42/rush/core/shell"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func openFds(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skipf("can't list descriptors: %v", err)
	}
	return len(entries)
}

func TestNoDescriptorLeaks(t *testing.T) {
	ts := newTestShell(t)
	script := strings.Join([]string{
		"echo a | cat | tr a b > out",
		"echo a | true",
		"cat < out | rush-no-such-command",
		"echo x > /rush-no-such-dir/out | cat",
		"true | false | echo c",
		"sleep 0.01 &",
		"fg",
	}, "\n")

	// The first run lets the runtime open its own descriptors.
	ts.RunString(script)
	before := openFds(t)
	for i := 0; i < 5; i++ {
		ts.RunString(script)
	}
	assert.Equal(t, before, openFds(t))
}

func TestBackgroundAndForeground(t *testing.T) {
	ts, status := runScript(t, "sleep 0.3 &\njobs\nfg\necho done $?")

	assert.Equal(t, 0, status)
	assert.Equal(t, fmt.Sprintf("[1]+  %-24s%s\nsleep 0.3\ndone 0\n", "Running", "sleep 0.3 &"), ts.Stdout())
	assert.Regexp(t, `^\[1\] \d+\n`, ts.Stderr())
	assert.Empty(t, ts.Jobs.Jobs())
}

func TestBackgroundDoesNotBlock(t *testing.T) {
	ts, _ := runScript(t, "sleep 5 &\necho next\nkill %1\necho $?")

	assert.Equal(t, "next\n0\n", ts.Stdout())
}

func TestBackgroundStdin(t *testing.T) {
	ts := newTestShell(t)
	in, err := os.CreateTemp(t.TempDir(), "stdin")
	require.NoError(t, err)
	_, err = in.WriteString("from stdin\n")
	require.NoError(t, err)
	_, err = in.Seek(0, 0)
	require.NoError(t, err)
	defer in.Close()
	ts.In = in

	ts.RunString("sh -c 'sleep 0.2; cat' > bg &\nfg\ncat bg | wc -c | tr -d ' '")

	assert.Equal(t, "sh -c 'sleep 0.2; cat' > bg\n0\n", ts.Stdout())
}

func TestBackgroundExitStatus(t *testing.T) {
	ts, status := runScript(t, "sh -c 'sleep 0.2; exit 7' &\nfg")

	assert.Equal(t, 7, status)
	assert.Equal(t, "sh -c 'sleep 0.2; exit 7'\n", ts.Stdout())
}

func TestSignaledStatus(t *testing.T) {
	_, status := runScript(t, "sh -c 'kill -TERM $$'")

	assert.Equal(t, StatusSignalOffset+15, status)
}

func TestJobErrors(t *testing.T) {
	cases := map[string]struct {
		script  string
		wantErr string
	}{
		"fg":        {"fg", "fg: current: no such job\n"},
		"fg id":     {"fg %3", "fg: %3: no such job\n"},
		"bg":        {"bg", "bg: current: no such job\n"},
		"jobs":      {"jobs %2", "jobs: %2: no such job\n"},
		"kill job":  {"kill %7", "kill: %7: no such job\n"},
		"kill arg":  {"kill abc", "kill: abc: arguments must be process or job IDs\n"},
		"kill sig":  {"kill -NOPE 1", "usage: kill"},
		"kill none": {"kill", "usage: kill"},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			ts, status := runScript(t, tc.script)

			assert.NotEqual(t, 0, status)
			assert.Contains(t, ts.Stderr(), tc.wantErr)
		})
	}
}

func TestKillList(t *testing.T) {
	ts, status := runScript(t, "kill -l")

	assert.Equal(t, 0, status)
	assert.Contains(t, ts.Stdout(), "15) SIGTERM\n")
	assert.Contains(t, ts.Stdout(), " 9) SIGKILL\n")
}

func TestParseSignal(t *testing.T) {
	cases := map[string]int{
		"9":       9,
		"KILL":    9,
		"SIGKILL": 9,
		"term":    15,
		"BOGUS":   0,
	}
	for spec, want := range cases {
		t.Run(spec, func(t *testing.T) {
			assert.Equal(t, want, int(parseSignal(spec)))
		})
	}
}

func TestJobsListing(t *testing.T) {
	ts, _ := runScript(t, "sleep 5 &\nsleep 5 &\njobs\njobs -p\nkill %1 %2")

	lines := strings.Split(strings.TrimSpace(ts.Stdout()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, fmt.Sprintf("[1]   %-24s%s", "Running", "sleep 5 &"), lines[0])
	assert.Equal(t, fmt.Sprintf("[2]+  %-24s%s", "Running", "sleep 5 &"), lines[1])
	assert.Regexp(t, `^\d+$`, lines[2])
	assert.Regexp(t, `^\d+$`, lines[3])
}

func TestEventLog(t *testing.T) {
	ts := newTestShell(t)
	var buf bytes.Buffer
	ts.SetEvents(logger.NewJsonLinesLogRecorder(&buf))

	ts.RunString("true\nfalse | true\nrush-no-such-command\n")

	var commands []*logger.LogEntry
	var jobEntries []*logger.LogEntry
	err := logger.ReadJSONLinesLog(&buf, func(le *logger.LogEntry) {
		switch le.Type {
		case logger.TypeCommand:
			commands = append(commands, le)
		case logger.TypeJob:
			jobEntries = append(jobEntries, le)
		}
	})
	require.NoError(t, err)

	require.Len(t, commands, 3)
	assert.Equal(t, "true", commands[0].Command)
	assert.Equal(t, 0, commands[0].Status)
	assert.Equal(t, "false | true", commands[1].Command)
	assert.Equal(t, 0, commands[1].Status)
	assert.Equal(t, "rush-no-such-command", commands[2].Command)
	assert.Equal(t, StatusNotFound, commands[2].Status)

	require.Len(t, jobEntries, 2)
	assert.True(t, jobEntries[0].Launched)
	assert.Equal(t, "Running", jobEntries[0].State)
	assert.Equal(t, "Done", jobEntries[1].State)
	assert.Equal(t, 1, jobEntries[1].JobID)
}

func TestLaunchCleansUpOnSpawnFailure(t *testing.T) {
	ts := newTestShell(t)
	script := filepath.Join(ts.Dir, "noexec")
	require.NoError(t, os.WriteFile(script, []byte("echo hi\n"), 0644))

	status := ts.RunString("sleep 5 | ./noexec")

	assert.Equal(t, StatusCannotExec, status)
	assert.Contains(t, ts.Stderr(), "rush: ./noexec: permission denied")
	assert.Empty(t, ts.Jobs.Jobs())
}

func TestLaunch(t *testing.T) {
	ts := newTestShell(t)
	stmts, err := shell.ParseLine("echo a | tr a b > out")
	require.NoError(t, err)
	p := stmts[0].(*shell.Simple).Pipeline

	job, err := ts.Launch(p)
	require.NoError(t, err)
	require.Len(t, job.Members, 2)
	assert.Equal(t, 0, job.Members[0].Pid)
	assert.NotZero(t, job.Members[1].Pid)
	assert.Zero(t, job.Pgid, "without job control children stay in the shell's group")
	assert.Equal(t, "echo a | tr a b > out", job.Command)

	status, err := ts.Jobs.WaitForeground(job)
	require.NoError(t, err)
	assert.Equal(t, 0, status)

	out, err := os.ReadFile(filepath.Join(ts.Dir, "out"))
	require.NoError(t, err)
	assert.Equal(t, "b\n", string(out))
}

func TestLaunchNotFound(t *testing.T) {
	ts := newTestShell(t)
	stmts, err := shell.ParseLine("echo a | rush-no-such-command")
	require.NoError(t, err)

	_, err = ts.Launch(stmts[0].(*shell.Simple).Pipeline)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "rush-no-such-command", notFound.Name)
	assert.Equal(t, StatusNotFound, ExitStatus(err))
}

func TestFormatJob(t *testing.T) {
	g := goldie.New(
		t,
		goldie.WithFixtureDir(filepath.Join("testdata", "golden")),
		goldie.WithDiffEngine(goldie.ColoredDiff),
	)
	s := &Shell{Colors: NewColorPrinter(config.ColorNever, nil)}

	var out bytes.Buffer
	for _, tc := range []struct {
		ev   jobs.Event
		long bool
	}{
		{ev: jobs.Event{ID: 1, State: jobs.Running, Command: "sleep 10", Background: true, Current: true}},
		{ev: jobs.Event{ID: 2, State: jobs.Stopped, Command: "vim notes"}},
		{ev: jobs.Event{ID: 3, State: jobs.Done, Command: "make"}},
		{ev: jobs.Event{ID: 4, State: jobs.Done, Status: 2, Command: "false"}},
		{ev: jobs.Event{ID: 5, Pgid: 4242, State: jobs.Running, Command: "cat", Background: true, Current: true}, long: true},
	} {
		fmt.Fprintln(&out, s.formatJob(tc.ev, tc.long))
	}

	g.Assert(t, "format_job", out.Bytes())
}

func TestExitStatus(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int
	}{
		"nil":       {nil, 0},
		"not found": {&NotFoundError{Name: "x"}, StatusNotFound},
		"spawn":     {&SpawnError{Name: "x", Err: os.ErrPermission}, StatusCannotExec},
		"redirect":  {&RedirectError{Path: "x", Err: os.ErrNotExist}, StatusFailure},
		"pipe":      {fmt.Errorf("%w: too many files", ErrPipeCreationFailed), StatusPipeFailed},
		"syntax":    {&shell.ParseError{Err: shell.ErrUnexpectedToken}, StatusSyntax},
	}
	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			assert.Equal(t, tc.want, ExitStatus(tc.err))
		})
	}
}

// pgrpCommand prints the process group of the process running it.
const pgrpCommand = "cut -d' ' -f5 /proc/self/stat"

func requireProcStat(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/proc/self/stat"); err != nil {
		t.Skipf("no /proc: %v", err)
	}
}

func TestForegroundJobsShareShellGroup(t *testing.T) {
	requireProcStat(t)

	ts, status := runScript(t, pgrpCommand+" | cat")

	assert.Equal(t, 0, status)
	assert.Equal(t, strconv.Itoa(unix.Getpgrp())+"\n", ts.Stdout())
}

func TestBackgroundJobsGetOwnGroup(t *testing.T) {
	requireProcStat(t)

	ts, _ := runScript(t, "sh -c 'sleep 0.2; cut -d\" \" -f5 /proc/self/stat' > pg &\nfg\ncat pg")

	lines := strings.Split(strings.TrimSpace(ts.Stdout()), "\n")
	require.Len(t, lines, 2)
	assert.NotEqual(t, strconv.Itoa(unix.Getpgrp()), lines[1])
}

func TestJobControlGivesForegroundJobsOwnGroup(t *testing.T) {
	requireProcStat(t)
	ts := newTestShell(t)
	ts.EnableJobControl()
	defer ts.Close()

	ts.RunString(pgrpCommand)

	pgrp := strings.TrimSpace(ts.Stdout())
	assert.NotEmpty(t, pgrp)
	assert.NotEqual(t, strconv.Itoa(unix.Getpgrp()), pgrp)
}
