// Package ui renders run reports, uninstall results and snapshot listings
// in terminal, text, JSON or YAML form.
package ui

import (
	"fmt"
	"io"

	"github.com/arthur-debert/wrapup/pkg/types"
	"github.com/arthur-debert/wrapup/pkg/ui/json"
	"github.com/arthur-debert/wrapup/pkg/ui/terminal"
	"github.com/arthur-debert/wrapup/pkg/ui/text"
	"github.com/arthur-debert/wrapup/pkg/ui/yaml"
)

// Renderer is the common interface for all output renderers
type Renderer interface {
	// RenderResult renders a types.RunReport, a lifecycle.Result or a
	// []snapshot.Snapshot. Other values are printed as they are.
	RenderResult(result interface{}) error

	// RenderError renders an error with appropriate formatting
	RenderError(err error) error

	// RenderMessage renders a simple message; it may carry markup tags
	RenderMessage(msg string) error

	// RenderStage reports one stage as soon as it finishes. Structured
	// formats ignore it and emit the whole report through RenderSummary.
	RenderStage(sr types.StageReport) error

	// RenderSummary closes a run whose stages were streamed
	RenderSummary(report types.RunReport) error
}

// NewRenderer creates a renderer for format. FormatAuto inspects output.
func NewRenderer(format Format, output io.Writer) (Renderer, error) {
	switch format {
	case FormatAuto:
		return NewRenderer(ResolveFormat(format, output), output)
	case FormatTerminal:
		return terminal.New(output), nil
	case FormatText:
		return text.New(output), nil
	case FormatJSON:
		return json.New(output), nil
	case FormatYAML:
		return yaml.New(output), nil
	default:
		return nil, fmt.Errorf("unknown format: %v", format)
	}
}
