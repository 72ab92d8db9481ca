package linearize

import (
	"sort"
	"time"

	"github.com/Sumatoshi-tech/fuzzdash/pkg/report"
)

// workerTimeline is the ordered, per-worker sequence of raw reports as
// received, kept sorted by the worker's own monotonic elapsed-time axis.
type workerTimeline struct {
	reports []*report.Report
}

// insertPos returns the rightmost insertion position for elapsed: every
// earlier entry has Elapsed <= elapsed.
func (wt *workerTimeline) insertPos(elapsed time.Duration) int {
	return sort.Search(len(wt.reports), func(i int) bool {
		return wt.reports[i].Elapsed > elapsed
	})
}

// insert places r at position pos, shifting later entries right.
func (wt *workerTimeline) insert(pos int, r *report.Report) {
	wt.reports = append(wt.reports, nil)
	copy(wt.reports[pos+1:], wt.reports[pos:])
	wt.reports[pos] = r
}

// last returns the most recent report on the worker's own time axis, or nil.
func (wt *workerTimeline) last() *report.Report {
	if len(wt.reports) == 0 {
		return nil
	}

	return wt.reports[len(wt.reports)-1]
}
