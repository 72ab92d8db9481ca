package dashboard

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/fuzzdash/pkg/testrun"
)

var statusColors = map[testrun.Status]*color.Color{
	testrun.StatusFailed:    color.New(color.FgRed, color.Bold),
	testrun.StatusShrinking: color.New(color.FgYellow),
	testrun.StatusWaiting:   color.New(color.FgHiBlack),
	testrun.StatusRunning:   color.New(color.FgGreen),
}

func colorStatus(status testrun.Status) string {
	c, ok := statusColors[status]
	if !ok {
		return string(status)
	}

	return c.Sprint(string(status))
}

// StatusTable writes a terminal summary table for the given sorted test list.
func StatusTable(w io.Writer, tests []*testrun.Test, now time.Time) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false

	tbl.AppendHeader(table.Row{
		"Test", "Status", "Inputs", "Behaviors", "Fingerprints", "Since Discovery", "Last Report",
	})

	var totalInputs int64

	for _, tr := range tests {
		totalInputs += int64(tr.Inputs())

		lastReport := "never"
		if linear := tr.Linear(); len(linear) > 0 {
			lastReport = humanize.RelTime(linear[len(linear)-1].Timestamp, now, "ago", "from now")
		}

		tbl.AppendRow(table.Row{
			tr.ID(),
			colorStatus(tr.Status(now)),
			humanize.Comma(int64(tr.Inputs())),
			tr.Behaviors(),
			tr.Fingerprints(),
			humanize.Comma(int64(tr.InputsSinceNewBehavior())),
			lastReport,
		})
	}

	tbl.AppendFooter(table.Row{
		fmt.Sprintf("%d tests", len(tests)), "", humanize.Comma(totalInputs), "", "", "", "",
	})

	tbl.Render()
}
