// Package json provides machine-readable JSON output
package json

import (
	"encoding/json"
	"io"

	"github.com/arthur-debert/wrapup/pkg/errors"
	"github.com/arthur-debert/wrapup/pkg/style"
	"github.com/arthur-debert/wrapup/pkg/types"
)

// Renderer provides JSON output for machine consumption
type Renderer struct {
	encoder *json.Encoder
}

// New creates a new JSON renderer
func New(output io.Writer) *Renderer {
	encoder := json.NewEncoder(output)
	encoder.SetIndent("", "  ")
	return &Renderer{encoder: encoder}
}

// RenderResult renders any result type as JSON
func (r *Renderer) RenderResult(result interface{}) error {
	return r.encoder.Encode(result)
}

// RenderError renders an error object carrying its code and stage
func (r *Renderer) RenderError(err error) error {
	return r.encoder.Encode(errors.Describe(err))
}

// RenderStage does nothing; the whole report is written at the end
func (r *Renderer) RenderStage(types.StageReport) error {
	return nil
}

// RenderSummary writes the complete report
func (r *Renderer) RenderSummary(report types.RunReport) error {
	return r.RenderResult(report)
}

// RenderMessage renders a simple message as JSON
func (r *Renderer) RenderMessage(msg string) error {
	return r.encoder.Encode(map[string]string{"message": style.Strip(msg)})
}
