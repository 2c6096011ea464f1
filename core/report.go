package core

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/josephlewis42/rush/core/jobs"
)

// reportJob prints job notifications: the [id] pgid line for background
// launches, stops, and background jobs resuming or finishing.
func (s *Shell) reportJob(ev jobs.Event) {
	switch {
	case ev.Launched:
		if ev.Background {
			fmt.Fprintf(s.Err, "[%d] %d\n", ev.ID, ev.Pgid)
		}
	case ev.State == jobs.Stopped:
		fmt.Fprintln(s.Err, s.formatJob(ev, false))
	case !ev.Background:
	case ev.State == jobs.Running:
		fmt.Fprintln(s.Err, s.formatJob(ev, false))
	case s.Config.ReportJobs:
		fmt.Fprintln(s.Err, s.formatJob(ev, false))
	}
}

// formatJob renders a job the way jobs lists it.
func (s *Shell) formatJob(ev jobs.Event, long bool) string {
	marker := " "
	if ev.Current {
		marker = "+"
	}

	state := ev.State.String()
	var clr *color.Color
	switch ev.State {
	case jobs.Done:
		clr = ColorBoldGreen
		if ev.Status != 0 {
			state = fmt.Sprintf("Exit %d", ev.Status)
			clr = ColorBoldRed
		}
	case jobs.Stopped:
		clr = ColorBoldYellow
	}
	if clr != nil {
		state = s.Colors.Sprintf(clr, "%-24s", state)
	} else {
		state = fmt.Sprintf("%-24s", state)
	}

	cmd := ev.Command
	if ev.State == jobs.Running && ev.Background {
		cmd += " &"
	}
	if long {
		return fmt.Sprintf("[%d]%s %d %s%s", ev.ID, marker, ev.Pgid, state, cmd)
	}
	return fmt.Sprintf("[%d]%s  %s%s", ev.ID, marker, state, cmd)
}

// jobEvent describes j's current state for formatJob.
func (s *Shell) jobEvent(j *jobs.Job) jobs.Event {
	return jobs.Event{
		ID:         j.ID,
		Pgid:       j.Pgid,
		State:      j.State(),
		Status:     j.Status(),
		Command:    j.Command,
		Background: j.Background,
		Current:    j.ID == s.Jobs.Current(),
	}
}
