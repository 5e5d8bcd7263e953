package style

import (
	"fmt"
	"strings"

	"github.com/arthur-debert/wrapup/pkg/errors"
	"github.com/arthur-debert/wrapup/pkg/types"
)

// RenderReport renders the stage lines followed by the summary box
func RenderReport(report types.RunReport) string {
	var b strings.Builder
	for _, s := range report.Stages {
		b.WriteString(RenderStage(s))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(RenderSummary(report))
	return b.String()
}

// RenderSummary renders the framed run summary
func RenderSummary(report types.RunReport) string {
	lines := []string{TitleStyle.Render(Headline(report))}
	if report.Duration > 0 {
		lines = append(lines, MutedStyle.Render("took "+FormatDuration(report.Duration)))
	}
	if report.RunID != "" {
		lines = append(lines, MutedStyle.Render("run "+report.RunID))
	}

	box := BoxStyle
	if report.Outcome == types.RunFailed {
		box = FailedBoxStyle
		if s, ok := report.Stage(report.FailedStage); ok && s.Message != "" {
			lines = append(lines, ErrorStyle.Render(s.Message))
		}
	}
	if report.LogPath != "" && report.Outcome == types.RunFailed {
		lines = append(lines, "log: "+PathStyle.Render(report.LogPath))
	}
	return box.Render(strings.Join(lines, "\n"))
}

// RenderError renders an error, naming the stage it happened in
func RenderError(err error) string {
	if err == nil {
		return ""
	}
	if stage := errors.StageOf(err); stage != "" {
		return fmt.Sprintf("%s %s %s", ErrorIndicator, ErrorStyle.Render("stage "+stage+":"), err.Error())
	}
	return fmt.Sprintf("%s %s", ErrorIndicator, ErrorStyle.Render(err.Error()))
}
