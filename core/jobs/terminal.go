package jobs

import (
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Terminal hands the controlling terminal to foreground jobs.
type Terminal interface {
	// Foreground gives the terminal to the process group pgid.
	Foreground(pgid int) error
	// Reclaim gives the terminal back to the shell.
	Reclaim() error
}

// TTY is the shell's controlling terminal.
type TTY struct {
	fd    int
	pgrp  int
	saved *term.State
}

var _ Terminal = (*TTY)(nil)

// NewTTY returns the terminal behind f if f is a terminal whose foreground
// process group is the shell's own.
func NewTTY(f *os.File) (*TTY, bool) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil, false
	}
	pgrp := unix.Getpgrp()
	owner, err := unix.IoctlGetInt(fd, unix.TIOCGPGRP)
	if err != nil || owner != pgrp {
		return nil, false
	}
	return &TTY{fd: fd, pgrp: pgrp}, true
}

// Save records the shell's terminal modes for the next Reclaim. It must run
// while the shell still owns the terminal.
func (t *TTY) Save() {
	if state, err := term.GetState(t.fd); err == nil {
		t.saved = state
	}
}

// Foreground implements Terminal.Foreground. Modes are saved unless Save
// already ran for this job.
func (t *TTY) Foreground(pgid int) error {
	if t.saved == nil {
		t.Save()
	}
	return withoutSIGTTOU(func() error {
		return unix.IoctlSetPointerInt(t.fd, unix.TIOCSPGRP, pgid)
	})
}

// Fd returns the terminal's file descriptor.
func (t *TTY) Fd() int {
	return t.fd
}

// Reclaim implements Terminal.Reclaim.
func (t *TTY) Reclaim() error {
	err := withoutSIGTTOU(func() error {
		return unix.IoctlSetPointerInt(t.fd, unix.TIOCSPGRP, t.pgrp)
	})
	if t.saved != nil {
		_ = term.Restore(t.fd, t.saved)
		t.saved = nil
	}
	return err
}

// withoutSIGTTOU runs fn with SIGTTOU blocked on the calling thread so a
// shell outside the foreground group may set it. The mask is restored before
// the thread is released; children never see it.
func withoutSIGTTOU(fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var set, old unix.Sigset_t
	sigaddset(&set, unix.SIGTTOU)
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &set, &old); err != nil {
		return err
	}
	defer unix.PthreadSigmask(unix.SIG_SETMASK, &old, nil)

	return fn()
}

func sigaddset(set *unix.Sigset_t, sig unix.Signal) {
	const bits = 8 * unsafe.Sizeof(set.Val[0])
	n := uintptr(sig) - 1
	set.Val[n/bits] |= 1 << (n % bits)
}
