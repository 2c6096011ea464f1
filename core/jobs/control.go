package jobs

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// WaitResult is a decoded wait status.
type WaitResult struct {
	Exited    bool
	Stopped   bool
	Continued bool
	// Status is the exit code, or 128+signal for processes killed or stopped
	// by a signal.
	Status int
}

// Control waits on and signals child processes.
type Control interface {
	// Wait reports the next state change of pid. When block is false and
	// nothing changed, ok is false.
	Wait(pid int, block bool) (res WaitResult, ok bool, err error)

	// Signal sends sig to every process in the group pgid.
	Signal(pgid int, sig syscall.Signal) error
}

// OSControl implements Control with wait4(2) and kill(2).
type OSControl struct{}

var _ Control = OSControl{}

// Wait implements Control.Wait.
func (OSControl) Wait(pid int, block bool) (WaitResult, bool, error) {
	opts := unix.WUNTRACED | unix.WCONTINUED
	if !block {
		opts |= unix.WNOHANG
	}
	for {
		var ws unix.WaitStatus
		wpid, err := unix.Wait4(pid, &ws, opts, nil)
		switch {
		case err == unix.EINTR:
			continue
		case err != nil:
			return WaitResult{}, false, err
		case wpid == 0:
			return WaitResult{}, false, nil
		}
		return decodeStatus(ws), true, nil
	}
}

func decodeStatus(ws unix.WaitStatus) WaitResult {
	switch {
	case ws.Exited():
		return WaitResult{Exited: true, Status: ws.ExitStatus()}
	case ws.Signaled():
		return WaitResult{Exited: true, Status: 128 + int(ws.Signal())}
	case ws.Stopped():
		return WaitResult{Stopped: true, Status: 128 + int(ws.StopSignal())}
	case ws.Continued():
		return WaitResult{Continued: true}
	}
	return WaitResult{}
}

// Signal implements Control.Signal.
func (OSControl) Signal(pgid int, sig syscall.Signal) error {
	return unix.Kill(-pgid, sig)
}
