package app

import (
	"fmt"
	"time"

	"github.com/mishka251/goszakupki-parces/internal/progress"
)

// --- Progress Messages ---

// RegionProgressMsg updates the row of one region.
type RegionProgressMsg struct {
	Region  string
	Percent int
	Done    int
	Total   int
	File    string // last finished source file
}

// TaskFinishedMsg signals the end of the background ingest.
type TaskFinishedMsg struct {
	Err       error
	StartTime time.Time
	EndTime   time.Time
}

func NewRegionProgress(u progress.Update) RegionProgressMsg {
	return RegionProgressMsg{Region: u.Region, Percent: u.Percent, Done: u.Done, Total: u.Total, File: u.File}
}

func NewTaskFinished(start time.Time, err error) TaskFinishedMsg {
	return TaskFinishedMsg{StartTime: start, EndTime: time.Now(), Err: err}
}

func (p RegionProgressMsg) String() string {
	return fmt.Sprintf("RegionProgress %s: %d%%", p.Region, p.Percent)
}

func (t TaskFinishedMsg) String() string {
	return fmt.Sprintf("TaskFinished after %s", t.EndTime.Sub(t.StartTime).Round(time.Millisecond))
}
