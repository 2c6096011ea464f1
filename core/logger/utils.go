package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/josephlewis42/rush/core/jobs"
)

const (
	TypeCommand = "command"
	TypeJob     = "job"
)

// LogEntry is one recorded event.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Type    string    `json:"type"`
	Command string    `json:"command,omitempty"`
	JobID   int       `json:"job_id,omitempty"`
	State   string    `json:"state,omitempty"`
	Status  int       `json:"status"`

	// Launched marks the entry written when a job starts.
	Launched bool `json:"launched,omitempty"`
}

// LogRecorder is a callback that stores events in an external datastore.
type LogRecorder func(le *LogEntry) error

// Logger captures session events. It is safe for concurrent use.
type Logger struct {
	Record LogRecorder

	mu  sync.Mutex
	now func() time.Time
}

var _ jobs.Notifier = (*Logger)(nil)

// NewJsonLinesLogRecorder creates a Logger that exports logs in newline
// delimited JSON object format.
func NewJsonLinesLogRecorder(w io.Writer) *Logger {
	return &Logger{
		Record: func(le *LogEntry) error {
			entry, err := json.Marshal(le)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(w, string(entry))
			return err
		},
		now: time.Now,
	}
}

func (l *Logger) record(le *LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.now != nil {
		le.Time = l.now()
	} else {
		le.Time = time.Now()
	}
	return l.Record(le)
}

// RunCommand records a finished foreground command and its status.
func (l *Logger) RunCommand(command string, status int) error {
	return l.record(&LogEntry{Type: TypeCommand, Command: command, Status: status})
}

// JobChanged implements jobs.Notifier.
func (l *Logger) JobChanged(ev jobs.Event) {
	_ = l.record(&LogEntry{
		Type:     TypeJob,
		Command:  ev.Command,
		JobID:    ev.ID,
		State:    ev.State.String(),
		Status:   ev.Status,
		Launched: ev.Launched,
	})
}
