package jobs

import (
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// RoutedSignals are the signals the shell forwards to the foreground job
// instead of acting on them itself.
var RoutedSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGTSTP}

// Router forwards terminal signals received by the shell to the process
// group currently in the foreground. With no foreground job an interrupt
// only sets a flag the interpreter can poll.
type Router struct {
	// Logger receives delivery failures.
	Logger *log.Logger

	ctrl        Control
	foreground  atomic.Int64
	interrupted atomic.Bool

	mu      sync.Mutex
	signals chan os.Signal
	done    chan struct{}
}

// NewRouter creates a stopped router that signals through ctrl.
func NewRouter(ctrl Control) *Router {
	return &Router{
		ctrl:   ctrl,
		Logger: log.New(io.Discard, "", 0),
	}
}

// Start begins intercepting RoutedSignals.
func (r *Router) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.signals != nil {
		return
	}
	r.signals = make(chan os.Signal, 8)
	r.done = make(chan struct{})
	signal.Notify(r.signals, RoutedSignals...)
	go r.loop(r.signals, r.done)
}

// Stop restores default signal handling.
func (r *Router) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.signals == nil {
		return
	}
	signal.Stop(r.signals)
	close(r.done)
	r.signals = nil
}

func (r *Router) loop(signals <-chan os.Signal, done <-chan struct{}) {
	for {
		select {
		case sig := <-signals:
			if s, ok := sig.(syscall.Signal); ok {
				r.Route(s)
			}
		case <-done:
			return
		}
	}
}

// SetForeground records the foreground process group; 0 means the shell
// itself.
func (r *Router) SetForeground(pgid int) {
	r.foreground.Store(int64(pgid))
}

// Foreground returns the foreground process group, or 0.
func (r *Router) Foreground() int {
	return int(r.foreground.Load())
}

// Route delivers sig to the foreground group. Without one, SIGINT marks the
// shell as interrupted and everything else is dropped.
func (r *Router) Route(sig syscall.Signal) {
	pgid := r.Foreground()
	if pgid <= 0 {
		if sig == syscall.SIGINT {
			r.interrupted.Store(true)
		}
		return
	}
	if err := r.ctrl.Signal(pgid, sig); err != nil {
		r.Logger.Printf("%v: %s to group %d: %v", ErrSignalDeliveryFailed, sig, pgid, err)
	}
}

// Interrupted reports and clears an interrupt received while no job was in
// the foreground.
func (r *Router) Interrupted() bool {
	return r.interrupted.Swap(false)
}
