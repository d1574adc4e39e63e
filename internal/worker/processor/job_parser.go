package processor

import (
	"strings"

	"scenecast/internal/generate"
	"scenecast/internal/models"
	"scenecast/internal/render"
)

// ParsedJob is a stored render job turned into pipeline inputs.
type ParsedJob struct {
	Request render.Request
	// Script is set when the job was submitted with its own code.
	Script render.Script
}

// HasScript reports whether generation can be skipped.
func (j *ParsedJob) HasScript() bool { return !j.Script.Empty() }

// GenerateRequest is what the code generator is asked for.
func (j *ParsedJob) GenerateRequest() generate.Request {
	r := j.Request
	return generate.Request{
		Prompt:   r.Prompt,
		Duration: r.Duration,
		Mode:     r.Mode,
		Width:    r.Width,
		Height:   r.Height,
		FPS:      r.FPS,
	}
}

// ParseJob validates a stored job. The returned request carries the job's
// id so the pipeline derives its workspace from it.
func ParseJob(j *models.RenderJob) (*ParsedJob, error) {
	mode, err := render.ParseMode(j.Mode)
	if err != nil {
		return nil, err
	}
	req := render.Request{
		JobID:    j.ID,
		Prompt:   j.Prompt,
		Duration: j.DurationMinutes,
		Mode:     mode,
		Width:    j.Width,
		Height:   j.Height,
		FPS:      j.FPS,
	}.WithDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p := &ParsedJob{Request: req}
	if strings.TrimSpace(j.Script) != "" {
		p.Script = render.NewScript(j.Script)
	}
	return p, nil
}
