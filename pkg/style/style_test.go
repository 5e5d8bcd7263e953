package style

import (
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"

	"github.com/arthur-debert/wrapup/pkg/errors"
	"github.com/arthur-debert/wrapup/pkg/types"
)

func plain(s string) string {
	return ansi.Strip(s)
}

func TestRenderStage(t *testing.T) {
	tests := []struct {
		name     string
		report   types.StageReport
		contains []string
	}{
		{
			name:     "done with duration",
			report:   types.StageReport{Name: "wrapper-assembled", Label: "Assembling wrapper", Status: types.StageStatusDone, Message: "completed", Duration: 2100 * time.Millisecond},
			contains: []string{"done", "Assembling wrapper", "completed (2.1s)"},
		},
		{
			name:     "skipped",
			report:   types.StageReport{Name: "preflight", Label: "Checking host requirements", Status: types.StageStatusSkipped, Message: "already satisfied"},
			contains: []string{"skipped", "Checking host requirements", "already satisfied"},
		},
		{
			name:     "failed",
			report:   types.StageReport{Name: "guest-installed", Status: types.StageStatusFailed, Message: "installer exited 2"},
			contains: []string{"failed", "guest-installed", "installer exited 2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := plain(RenderStage(tt.report))
			for _, want := range tt.contains {
				assert.Contains(t, line, want)
			}
		})
	}
}

func TestHeadline(t *testing.T) {
	skipped := types.StageReport{Status: types.StageStatusSkipped}
	done := types.StageReport{Status: types.StageStatusDone}
	would := types.StageReport{Status: types.StageStatusWouldRun}

	assert.Equal(t, "Nothing to do, everything is already in place",
		Headline(types.RunReport{Outcome: types.RunCompleted, Stages: []types.StageReport{skipped, skipped}}))
	assert.Equal(t, "Provisioning completed: 1 stage(s) ran, 1 already satisfied",
		Headline(types.RunReport{Outcome: types.RunCompleted, Stages: []types.StageReport{skipped, done}}))
	assert.Equal(t, "Dry run: 1 stage(s) would run",
		Headline(types.RunReport{Outcome: types.RunCompleted, DryRun: true, Stages: []types.StageReport{skipped, would}}))
	assert.Equal(t, "Provisioning failed at dependencies-installed",
		Headline(types.RunReport{Outcome: types.RunFailed, FailedStage: "dependencies-installed"}))
}

func TestRenderSummary_FailureNamesStageAndLog(t *testing.T) {
	report := types.RunReport{
		Outcome:     types.RunFailed,
		FailedStage: "wrapper-assembled",
		LogPath:     "/state/logs/wrapup-1.log",
		Stages: []types.StageReport{
			{Name: "wrapper-assembled", Status: types.StageStatusFailed, Message: "engine archive is corrupt"},
		},
	}
	out := plain(RenderSummary(report))
	assert.Contains(t, out, "Provisioning failed at wrapper-assembled")
	assert.Contains(t, out, "engine archive is corrupt")
	assert.Contains(t, out, "/state/logs/wrapup-1.log")
}

func TestRenderError(t *testing.T) {
	err := errors.InStage(errors.New(errors.ErrDownload, "server answered 500"), "wrapper-assembled")
	out := plain(RenderError(err))
	assert.Contains(t, out, "stage wrapper-assembled:")
	assert.Contains(t, out, "[DOWNLOAD] server answered 500")

	assert.Empty(t, RenderError(nil))
}

func TestMarkup(t *testing.T) {
	assert.Equal(t, "remove /tmp/x now", Strip("remove [path]/tmp/x[/path] now"))
	assert.Equal(t, "nested value", Strip("[bold]nested [code]value[/code][/bold]"))
	assert.Equal(t, "[unknown]kept[/unknown]", Strip("[unknown]kept[/unknown]"))
	assert.Equal(t, "a b", plain(RenderTemplate("[info]{{x}}[/info] {{y}}", map[string]string{"x": "a", "y": "b"})))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond))
	assert.Equal(t, "1.5s", FormatDuration(1520*time.Millisecond))
	assert.Equal(t, "2m3s", FormatDuration(123*time.Second))
}
