package progress

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Stats holds transfer statistics
type Stats struct {
	TotalBytes       int64
	TransferredBytes atomic.Int64
	StartTime        time.Time
}

// Reporter counts bytes written through it and, when given an output,
// renders a progress bar there. Pass it as the Progress writer of a transfer.
type Reporter struct {
	stats *Stats
	bar   *progressbar.ProgressBar
}

// Console returns stderr when show is set and stderr is a terminal, nil otherwise
func Console(show bool) io.Writer {
	if !show || !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	return os.Stderr
}

// NewReporter creates a reporter for a transfer of total bytes. A nil out
// only counts.
func NewReporter(filename string, total int64, out io.Writer) *Reporter {
	r := &Reporter{
		stats: &Stats{
			TotalBytes: total,
			StartTime:  time.Now(),
		},
	}

	if out != nil {
		r.bar = progressbar.NewOptions64(total,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetDescription(filename),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionOnCompletion(func() { io.WriteString(out, "\n") }),
		)
	}

	return r
}

// Write records len(p) transferred bytes
func (r *Reporter) Write(p []byte) (int, error) {
	r.stats.TransferredBytes.Add(int64(len(p)))
	if r.bar != nil {
		r.bar.Add64(int64(len(p)))
	}
	return len(p), nil
}

// Finish completes the bar on success or leaves it where it stopped on failure
func (r *Reporter) Finish(success bool) {
	if r.bar == nil {
		return
	}
	if success {
		r.bar.Finish()
		return
	}
	r.bar.Exit()
}

// GetCurrentStats returns current transfer statistics
func (r *Reporter) GetCurrentStats() (transferred int64, percent float64, elapsed time.Duration) {
	transferred = r.stats.TransferredBytes.Load()
	if r.stats.TotalBytes > 0 {
		percent = float64(transferred) / float64(r.stats.TotalBytes) * 100
	} else {
		percent = 100
	}
	elapsed = time.Since(r.stats.StartTime)
	return
}
