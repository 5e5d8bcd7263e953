package style

import (
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/arthur-debert/wrapup/pkg/types"
)

// labelWidth pads stage labels so messages line up
const labelWidth = 32

// StatusStyle returns the badge style for a stage status
func StatusStyle(status types.StageStatus) *pterm.Style {
	switch status {
	case types.StageStatusDone:
		return pterm.NewStyle(pterm.BgGreen, pterm.FgBlack)
	case types.StageStatusFailed:
		return pterm.NewStyle(pterm.BgRed, pterm.FgWhite, pterm.Bold)
	case types.StageStatusWouldRun:
		return pterm.NewStyle(pterm.BgYellow, pterm.FgBlack)
	case types.StageStatusSkipped:
		return pterm.NewStyle(pterm.FgGray)
	default:
		return pterm.NewStyle(pterm.FgDefault)
	}
}

// Indicator returns the single-glyph marker for a status
func Indicator(status types.StageStatus) string {
	switch status {
	case types.StageStatusDone:
		return SuccessIndicator
	case types.StageStatusFailed:
		return ErrorIndicator
	case types.StageStatusWouldRun:
		return WouldIndicator
	case types.StageStatusSkipped:
		return SkipIndicator
	default:
		return PendingIndicator
	}
}

// RenderStage renders one stage line:
//
//	✓  done      Assembling wrapper               completed (2.1s)
func RenderStage(sr types.StageReport) string {
	badge := StatusStyle(sr.Status).Sprint(fmt.Sprintf(" %-9s", sr.Status))
	label := sr.Label
	if label == "" {
		label = sr.Name
	}
	line := fmt.Sprintf("%s %s %-*s", Indicator(sr.Status), badge, labelWidth, label)

	msg := sr.Message
	if sr.Status == types.StageStatusDone && sr.Duration > 0 {
		msg = fmt.Sprintf("%s (%s)", msg, FormatDuration(sr.Duration))
	}
	if msg != "" {
		if sr.Status == types.StageStatusFailed {
			msg = ErrorStyle.Render(msg)
		} else {
			msg = MutedStyle.Render(msg)
		}
		line += " " + msg
	}
	return strings.TrimRight(line, " ")
}

// FormatDuration rounds d for display
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(100 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}

// Headline summarises a run in one sentence
func Headline(report types.RunReport) string {
	switch {
	case report.Outcome == types.RunFailed:
		return fmt.Sprintf("Provisioning failed at %s", report.FailedStage)
	case report.DryRun:
		n := count(report, types.StageStatusWouldRun)
		if n == 0 {
			return "Dry run: nothing would change"
		}
		return fmt.Sprintf("Dry run: %d stage(s) would run", n)
	case report.AllSkipped():
		return "Nothing to do, everything is already in place"
	default:
		return fmt.Sprintf("Provisioning completed: %d stage(s) ran, %d already satisfied",
			count(report, types.StageStatusDone), count(report, types.StageStatusSkipped))
	}
}

func count(report types.RunReport, status types.StageStatus) int {
	n := 0
	for _, s := range report.Stages {
		if s.Status == status {
			n++
		}
	}
	return n
}
