// Package text provides plain text output without any styling
package text

import (
	"fmt"
	"io"
	"strings"

	"github.com/arthur-debert/wrapup/pkg/errors"
	"github.com/arthur-debert/wrapup/pkg/lifecycle"
	"github.com/arthur-debert/wrapup/pkg/snapshot"
	"github.com/arthur-debert/wrapup/pkg/style"
	"github.com/arthur-debert/wrapup/pkg/types"
)

// Renderer writes plain text
type Renderer struct {
	output io.Writer
}

// New creates a new text renderer
func New(output io.Writer) *Renderer {
	return &Renderer{output: output}
}

// RenderResult renders any result type as plain text
func (r *Renderer) RenderResult(result interface{}) error {
	var b strings.Builder
	switch v := result.(type) {
	case types.RunReport:
		writeReport(&b, v)
	case *types.RunReport:
		writeReport(&b, *v)
	case lifecycle.Result:
		writeUninstall(&b, v)
	case []snapshot.Snapshot:
		writeSnapshots(&b, v)
	default:
		fmt.Fprintf(&b, "%+v\n", result)
	}
	_, err := io.WriteString(r.output, b.String())
	return err
}

// RenderError renders an error as plain text
func (r *Renderer) RenderError(err error) error {
	msg := err.Error()
	if stage := errors.StageOf(err); stage != "" {
		msg = fmt.Sprintf("stage %s: %s", stage, msg)
	}
	_, werr := fmt.Fprintf(r.output, "Error: %s\n", msg)
	return werr
}

// RenderMessage renders a simple message with markup removed
func (r *Renderer) RenderMessage(msg string) error {
	_, err := fmt.Fprintln(r.output, style.Strip(msg))
	return err
}

// RenderStage writes one stage line
func (r *Renderer) RenderStage(sr types.StageReport) error {
	var b strings.Builder
	writeStage(&b, sr)
	_, err := io.WriteString(r.output, b.String())
	return err
}

// RenderSummary writes the headline of a streamed run
func (r *Renderer) RenderSummary(report types.RunReport) error {
	var b strings.Builder
	writeSummary(&b, report)
	_, err := io.WriteString(r.output, b.String())
	return err
}

func writeReport(b *strings.Builder, report types.RunReport) {
	for _, s := range report.Stages {
		writeStage(b, s)
	}
	writeSummary(b, report)
}

func writeStage(b *strings.Builder, s types.StageReport) {
	label := s.Label
	if label == "" {
		label = s.Name
	}
	line := fmt.Sprintf("%-11s %-32s %s", "["+string(s.Status)+"]", label, s.Message)
	fmt.Fprintln(b, strings.TrimRight(line, " "))
}

func writeSummary(b *strings.Builder, report types.RunReport) {
	fmt.Fprintln(b)
	fmt.Fprintln(b, style.Headline(report))
	if report.Outcome == types.RunFailed && report.LogPath != "" {
		fmt.Fprintf(b, "log: %s\n", report.LogPath)
	}
}

func writeUninstall(b *strings.Builder, res lifecycle.Result) {
	if !res.Confirmed {
		fmt.Fprintln(b, "Nothing was removed.")
		return
	}
	for _, p := range res.Removed {
		fmt.Fprintf(b, "removed %s\n", p)
	}
	for _, p := range res.Uninstalled {
		fmt.Fprintf(b, "uninstalled %s\n", p)
	}
	if res.Snapshot != nil {
		fmt.Fprintf(b, "config store saved to %s\n", res.Snapshot.Path)
	}
	if len(res.Removed) == 0 && len(res.Uninstalled) == 0 {
		fmt.Fprintln(b, "Nothing to remove.")
	}
}

func writeSnapshots(b *strings.Builder, snaps []snapshot.Snapshot) {
	if len(snaps) == 0 {
		fmt.Fprintln(b, "No snapshots.")
		return
	}
	for _, s := range snaps {
		fmt.Fprintf(b, "%s  %-16s %s\n", s.CreatedAt.Local().Format("2006-01-02 15:04:05"), s.Label, s.Path)
	}
}
