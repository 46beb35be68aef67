package progress

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/G-Research/benchrunner/internal/benchrunner/jobs"
	"github.com/G-Research/benchrunner/internal/common/util"
)

const Header = " Executed  |   Time   |  Load   | Last Instance\n"

// RunState is owned by whoever drains the engine; it is never shared between goroutines.
type RunState struct {
	TotalJobs      int
	CompletedCount int
	StartTime      time.Time
}

// LoadSource returns the 1-minute system load average.
type LoadSource func() (float64, error)

// Reporter keeps a single status line up to date, rewriting it after every result.
type Reporter struct {
	log      *logrus.Entry
	out      io.Writer
	clock    util.Clock
	load     LoadSource
	capacity int
	state    RunState
	// Set after the first failure to read the load so it is only logged once.
	loadFailed bool
}

func NewReporter(log *logrus.Entry, out io.Writer, clock util.Clock, load LoadSource, capacity int, totalJobs int) *Reporter {
	return &Reporter{
		log:      log,
		out:      out,
		clock:    clock,
		load:     load,
		capacity: capacity,
		state:    RunState{TotalJobs: totalJobs},
	}
}

// Start prints the column header and starts the run timer.
func (r *Reporter) Start() {
	r.state.StartTime = r.clock.Now()
	fmt.Fprint(r.out, Header)
}

// Report accounts for one more processed job and redraws the status line.
func (r *Reporter) Report(job jobs.Descriptor) {
	r.state.CompletedCount++
	elapsed := r.clock.Now().Sub(r.state.StartTime)
	load, err := r.load()
	if err != nil && !r.loadFailed {
		r.loadFailed = true
		r.log.WithError(err).Debug("unable to read system load")
	}
	fmt.Fprint(r.out, FormatLine(job, r.state.CompletedCount, r.state.TotalJobs, elapsed, load, r.capacity))
}

// Finish ends the status line.
func (r *Reporter) Finish() {
	fmt.Fprintln(r.out)
}

func (r *Reporter) State() RunState {
	return r.state
}

// FormatLine renders the status line, carriage return first so that it overwrites the previous one.
func FormatLine(job jobs.Descriptor, index int, total int, elapsed time.Duration, load float64, capacity int) string {
	seconds := int(elapsed / time.Second)
	return fmt.Sprintf("\r %4d/%4d | %02d:%02d:%02d | %2.2f/%-2d | %s   ",
		index, total,
		seconds/3600, seconds/60%60, seconds%60,
		load, capacity,
		job)
}
