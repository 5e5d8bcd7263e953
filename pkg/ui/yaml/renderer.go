// Package yaml provides machine-readable YAML output
package yaml

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/arthur-debert/wrapup/pkg/errors"
	"github.com/arthur-debert/wrapup/pkg/style"
	"github.com/arthur-debert/wrapup/pkg/types"
)

// Renderer writes one YAML document per call
type Renderer struct {
	output io.Writer
}

// New creates a new YAML renderer
func New(output io.Writer) *Renderer {
	return &Renderer{output: output}
}

// RenderResult renders any result type as a YAML document
func (r *Renderer) RenderResult(result interface{}) error {
	return r.encode(result)
}

// RenderError renders an error document carrying its code and stage
func (r *Renderer) RenderError(err error) error {
	return r.encode(errors.Describe(err))
}

// RenderStage does nothing; the whole report is written at the end
func (r *Renderer) RenderStage(types.StageReport) error {
	return nil
}

// RenderSummary writes the complete report
func (r *Renderer) RenderSummary(report types.RunReport) error {
	return r.RenderResult(report)
}

// RenderMessage renders a simple message document
func (r *Renderer) RenderMessage(msg string) error {
	return r.encode(map[string]string{"message": style.Strip(msg)})
}

func (r *Renderer) encode(v interface{}) error {
	enc := yaml.NewEncoder(r.output)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
