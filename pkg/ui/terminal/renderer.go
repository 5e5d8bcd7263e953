// Package terminal provides rich terminal output with colors and styling
package terminal

import (
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"

	"github.com/arthur-debert/wrapup/pkg/lifecycle"
	"github.com/arthur-debert/wrapup/pkg/snapshot"
	"github.com/arthur-debert/wrapup/pkg/style"
	"github.com/arthur-debert/wrapup/pkg/types"
)

// Renderer writes styled output for interactive terminals
type Renderer struct {
	output io.Writer
}

// New creates a new terminal renderer
func New(w io.Writer) *Renderer {
	return &Renderer{output: w}
}

// RenderResult renders any result type with rich terminal formatting
func (r *Renderer) RenderResult(result interface{}) error {
	switch v := result.(type) {
	case types.RunReport:
		return r.write(style.RenderReport(v) + "\n")
	case *types.RunReport:
		return r.write(style.RenderReport(*v) + "\n")
	case lifecycle.Result:
		return r.write(renderUninstall(v))
	case []snapshot.Snapshot:
		return r.renderSnapshots(v)
	default:
		return r.write(fmt.Sprintf("%+v\n", result))
	}
}

// RenderError renders an error with appropriate formatting
func (r *Renderer) RenderError(err error) error {
	return r.write(style.RenderError(err) + "\n")
}

// RenderMessage renders a simple message with markup
func (r *Renderer) RenderMessage(msg string) error {
	return r.write(style.Render(msg) + "\n")
}

// RenderStage writes one stage line
func (r *Renderer) RenderStage(sr types.StageReport) error {
	return r.write(style.RenderStage(sr) + "\n")
}

// RenderSummary writes the summary box of a streamed run
func (r *Renderer) RenderSummary(report types.RunReport) error {
	return r.write("\n" + style.RenderSummary(report) + "\n")
}

func (r *Renderer) write(s string) error {
	_, err := io.WriteString(r.output, s)
	return err
}

func renderUninstall(res lifecycle.Result) string {
	if !res.Confirmed {
		return style.MutedStyle.Render("Nothing was removed.") + "\n"
	}
	var b strings.Builder
	for _, p := range res.Removed {
		fmt.Fprintf(&b, "%s removed %s\n", style.SuccessIndicator, style.PathStyle.Render(p))
	}
	for _, p := range res.Uninstalled {
		fmt.Fprintf(&b, "%s uninstalled %s\n", style.SuccessIndicator, style.Bold(p))
	}
	if res.Snapshot != nil {
		fmt.Fprintf(&b, "%s config store saved to %s\n", style.SkipIndicator, style.PathStyle.Render(res.Snapshot.Path))
	}
	if len(res.Removed) == 0 && len(res.Uninstalled) == 0 {
		b.WriteString(style.MutedStyle.Render("Nothing to remove.") + "\n")
	}
	return b.String()
}

func (r *Renderer) renderSnapshots(snaps []snapshot.Snapshot) error {
	if len(snaps) == 0 {
		return r.write(style.MutedStyle.Render("No snapshots.") + "\n")
	}
	data := pterm.TableData{{"Taken", "Label", "Path"}}
	for _, s := range snaps {
		data = append(data, []string{s.CreatedAt.Local().Format("2006-01-02 15:04:05"), s.Label, s.Path})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	return r.write(table + "\n")
}
