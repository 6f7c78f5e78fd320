package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/hszk-dev/abrpack/internal/domain/model"
)

// renderJob formats a finalized job as a summary block followed by one
// table row per rendition and one for the thumbnail.
func renderJob(job *model.TranscodeJob) string {
	var b strings.Builder
	fmt.Fprintf(&b, "job:      %s\n", job.ID)
	fmt.Fprintf(&b, "status:   %s\n", job.Status)
	fmt.Fprintf(&b, "duration: %ds\n", job.DurationSeconds)
	if job.FailureReason != "" {
		fmt.Fprintf(&b, "reason:   %s\n", job.FailureReason)
	}
	for _, c := range job.Conditions {
		fmt.Fprintf(&b, "note:     %s: %s\n", c.Kind, c.Message)
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Output", "Height", "Status", "Location"})

	for _, r := range job.Renditions {
		tw.AppendRow(table.Row{r.Tier.Label, strconv.Itoa(r.Tier.Height), string(r.Status), outcomeDetail(r.Succeeded(), r.PublicURL, r.Err)})
	}
	if job.Thumbnail.Status != "" {
		t := job.Thumbnail
		tw.AppendRow(table.Row{"thumbnail", "", string(t.Status), outcomeDetail(t.Succeeded(), t.PublicURL, t.Err)})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, WidthMax: 80},
	})

	b.WriteString(tw.Render())
	return b.String()
}

func outcomeDetail(succeeded bool, url string, err error) string {
	if succeeded {
		return url
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
