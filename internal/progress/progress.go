// Package progress reports per-region ingest completion as a percentage.
package progress

import (
	"fmt"
	"log/slog"
	"sync"
)

// Update is one progress observation for a region.
type Update struct {
	Region  string
	Percent int
	Done    int
	Total   int
	File    string // source file that just finished, empty for the initial report
}

// Reporter receives progress updates.
type Reporter interface {
	Report(u Update)
}

// Percent returns done*100/total clamped to 0..100. An empty total counts as complete.
func Percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	p := done * 100 / total
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// Tracker turns file completions into a non-decreasing percentage sequence
// for one region.
type Tracker struct {
	mu       sync.Mutex
	region   string
	total    int
	done     int
	last     int
	reporter Reporter
}

// NewTracker creates a Tracker and emits the initial 0% report.
func NewTracker(region string, total int, reporter Reporter) *Tracker {
	t := &Tracker{region: region, total: total, last: -1, reporter: reporter}
	t.emit("")
	return t
}

// FileDone records one finished source file, whether it succeeded or not.
func (t *Tracker) FileDone(name string) {
	t.mu.Lock()
	if t.done < t.total {
		t.done++
	}
	t.mu.Unlock()
	t.emit(name)
}

// Finish forces the final 100% report if it has not been emitted.
func (t *Tracker) Finish() {
	t.mu.Lock()
	t.done = t.total
	t.mu.Unlock()
	t.emit("")
}

func (t *Tracker) emit(file string) {
	t.mu.Lock()
	p := Percent(t.done, t.total)
	if t.total == 0 && t.last < 0 {
		p = 0
	}
	if p < t.last || (p == t.last && file == "") {
		t.mu.Unlock()
		return
	}
	t.last = p
	u := Update{Region: t.region, Percent: p, Done: t.done, Total: t.total, File: file}
	t.mu.Unlock()
	if t.reporter != nil {
		t.reporter.Report(u)
	}
}

// LogReporter writes each update to a slog logger.
type LogReporter struct {
	Logger *slog.Logger
}

func (r LogReporter) Report(u Update) {
	r.Logger.Info(fmt.Sprintf("%s - %d%% loaded", u.Region, u.Percent), slog.Int("done", u.Done), slog.Int("total", u.Total))
}

// ChannelReporter forwards updates to a channel without blocking the pipeline.
// Updates are dropped when the channel is full, except 100% which always waits.
type ChannelReporter struct {
	C chan<- Update
}

func (r ChannelReporter) Report(u Update) {
	if u.Percent == 100 {
		r.C <- u
		return
	}
	select {
	case r.C <- u:
	default:
	}
}

// MultiReporter fans updates out to several reporters.
type MultiReporter []Reporter

func (m MultiReporter) Report(u Update) {
	for _, r := range m {
		if r != nil {
			r.Report(u)
		}
	}
}

// ReporterFunc adapts a function to a Reporter.
type ReporterFunc func(Update)

func (f ReporterFunc) Report(u Update) { f(u) }
