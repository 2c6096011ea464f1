package logger

import (
	"encoding/json"
	"io"
	"sort"
	"strings"

	"github.com/josephlewis42/rush/core/jobs"
)

// ReadJSONLinesLog parses a newline delimited JSON log.
func ReadJSONLinesLog(r io.Reader, handler func(le *LogEntry)) error {
	decoder := json.NewDecoder(r)
	for decoder.More() {
		var logEntry LogEntry
		if err := decoder.Decode(&logEntry); err != nil {
			return err
		}

		handler(&logEntry)
	}
	return nil
}

// Report holds statistics about the logged events.
type Report struct {
	LogEntries     int        `json:"log_entries"`
	InvalidEntries StrCounter `json:"unknown_log_entries,omitempty"`

	RunCommand RunCommandReport `json:"run_command_report"`
	Jobs       JobReport        `json:"job_report"`
}

func (r *Report) Update(le *LogEntry) {
	r.LogEntries++

	switch le.Type {
	case TypeCommand:
		r.RunCommand.update(le)
	case TypeJob:
		r.Jobs.update(le)
	default:
		r.InvalidEntries.Increment(le.Type)
	}
}

type RunCommandReport struct {
	// Name of the program of the first pipeline stage.
	CommandNames StrCounter `json:"command_names"`
	// Number of commands that failed.
	Failures int `json:"failures"`
}

func (r *RunCommandReport) update(le *LogEntry) {
	if fields := strings.Fields(le.Command); len(fields) > 0 {
		r.CommandNames.Increment(fields[0])
	}
	if le.Status != 0 {
		r.Failures++
	}
}

type JobReport struct {
	// Number of jobs launched.
	Launched int `json:"launched"`
	// Job state changes after launch and their counts.
	States StrCounter `json:"states"`
	// Exit statuses of finished jobs.
	Statuses *PathCounter `json:"statuses"`
}

func (r *JobReport) update(le *LogEntry) {
	if r.Statuses == nil {
		r.Statuses = NewPathCounter("command", "status")
	}
	if le.Launched {
		r.Launched++
		return
	}
	r.States.Increment(le.State)
	if le.State == jobs.Done.String() {
		r.Statuses.Increment(le.Command, statusKey(le.Status))
	}
}

func statusKey(status int) string {
	out, _ := json.Marshal(status)
	return string(out)
}

// StrCounter counts the number of strings seen.
type StrCounter struct {
	internal map[string]int
}

// Increment adds one to the given key.
func (s *StrCounter) Increment(toAdd string) {
	if s.internal == nil {
		s.internal = make(map[string]int)
	}

	s.internal[toAdd]++
}

// Get returns the count for key.
func (s *StrCounter) Get(key string) int {
	return s.internal[key]
}

// MarshalJSON implemnts custom JSON marshaler.
func (s StrCounter) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.internal)
}

func NewPathCounter(cols ...string) *PathCounter {
	return &PathCounter{
		cols:     cols,
		internal: make(map[string]int),
	}
}

// PathCounter counts the number of strings seen.
type PathCounter struct {
	cols     []string
	internal map[string]int
}

// Increment adds one to the given key.
func (ctr *PathCounter) Increment(toAdd ...string) {
	if len(toAdd) != len(ctr.cols) {
		panic("wrong number of columns to add")
	}

	ctr.internal[toKey(toAdd...)]++
}

// MarshalJSON implemnts custom JSON marshaler.
func (ctr *PathCounter) MarshalJSON() ([]byte, error) {
	type Count struct {
		Count  int               `json:"count"`
		Fields map[string]string `json:"event"`
		Path   string            `json:"-"`
	}

	var out []Count
	for k, v := range ctr.internal {
		count := Count{
			Count:  v,
			Path:   k,
			Fields: make(map[string]string),
		}

		splitPath := fromKey(k)
		for colNum, colVal := range ctr.cols {
			count.Fields[colVal] = splitPath[colNum]
		}

		out = append(out, count)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Path < out[j].Path
		}
		return out[i].Count > out[j].Count
	})

	return json.Marshal(out)
}

func toKey(vals ...string) string {
	key, _ := json.Marshal(vals)
	return string(key)
}

func fromKey(key string) (out []string) {
	json.Unmarshal([]byte(key), &out)
	return
}
