package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/samber/lo"

	"github.com/book-expert/podcast-service/internal/core"
)

const (
	maxErrorColumn = 60
	ellipsis       = "..."
)

const (
	columnID       = "ID"
	columnKind     = "Kind"
	columnState    = "State"
	columnProgress = "Progress"
	columnArtifact = "Artifact"
	columnCreated  = "Created"
	columnError    = "Error"
)

var jobStateOrder = []core.JobState{
	core.JobQueued,
	core.JobRunning,
	core.JobCompleted,
	core.JobFailed,
	core.JobCancelled,
}

// renderJobTable lists jobs one per row with a footer counting them by state.
func renderJobTable(jobs []*core.Job) string {
	writer := table.NewWriter()
	writer.SetStyle(table.StyleRounded)
	writer.AppendHeader(table.Row{columnID, columnKind, columnState, columnProgress, columnArtifact, columnCreated, columnError})

	for _, job := range jobs {
		writer.AppendRow(table.Row{
			job.ID,
			string(job.Kind),
			string(job.State),
			strconv.Itoa(job.ProgressPercent) + "%",
			job.ArtifactID,
			job.CreatedAt.Local().Format(time.DateTime),
			job.ErrorMessage,
		})
	}

	writer.AppendFooter(table.Row{fmt.Sprintf("%d jobs", len(jobs)), "", stateSummary(jobs)})

	writer.SetColumnConfigs([]table.ColumnConfig{
		{Name: columnProgress, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Name: columnError, WidthMax: maxErrorColumn, WidthMaxEnforcer: truncateWithEllipsis},
	})

	return writer.Render()
}

// stateSummary renders "2 queued, 1 failed" in lifecycle order.
func stateSummary(jobs []*core.Job) string {
	counts := lo.CountValuesBy(jobs, func(job *core.Job) core.JobState { return job.State })

	parts := lo.FilterMap(jobStateOrder, func(state core.JobState, _ int) (string, bool) {
		return fmt.Sprintf("%d %s", counts[state], state), counts[state] > 0
	})

	return strings.Join(parts, ", ")
}

func truncateWithEllipsis(value string, maxLen int) string {
	if text.RuneWidthWithoutEscSequences(value) <= maxLen {
		return value
	}

	return text.Trim(value, maxLen-len(ellipsis)) + ellipsis
}
