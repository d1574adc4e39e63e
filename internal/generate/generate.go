// Package generate turns a natural language prompt into a scene script. It
// builds the prompt context, asks a Generator for code and returns the
// script only if it passes validation. It never substitutes content of its
// own when generation fails.
package generate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	apperrors "scenecast/internal/pkg/errors"
	"scenecast/internal/pkg/logger"
	"scenecast/internal/render"
)

// ErrNoValidScript is returned when the generator produced nothing usable.
// It wraps render.ErrNoScript.
var ErrNoValidScript = fmt.Errorf("generator returned no valid script: %w", render.ErrNoScript)

// Generator produces candidate script text.
type Generator interface {
	Generate(ctx context.Context, promptContext string, durationMinutes float64, mode render.Mode) (render.Script, error)
}

// Summarizer supplies reference text appended to every prompt.
type Summarizer interface {
	Summary() string
}

// Request is what a caller asks to be generated.
type Request struct {
	Prompt   string
	Duration float64 // minutes
	Mode     render.Mode
	Width    int
	Height   int
	FPS      int
}

// Rejection carries the validator's verdict on a generated script.
type Rejection struct {
	Result render.ValidationResult
	Source string
}

func (r *Rejection) Error() string {
	return ErrNoValidScript.Error() + ": " + r.Result.Reason
}

func (r *Rejection) Unwrap() error { return ErrNoValidScript }

// Orchestrator builds prompt context and validates what comes back.
type Orchestrator struct {
	gen Generator
	kb  Summarizer
	log *logger.Logger
}

// NewOrchestrator returns an Orchestrator.
func NewOrchestrator(gen Generator, kb Summarizer, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Discard()
	}
	return &Orchestrator{gen: gen, kb: kb, log: log.WithComponent("generate")}
}

// Script generates and validates a script for req. A failed validation
// returns a *Rejection; an empty reply returns ErrNoValidScript.
func (o *Orchestrator) Script(ctx context.Context, req Request) (render.Script, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return render.Script{}, apperrors.ValidationField("prompt", "prompt is required")
	}
	mode, err := render.ParseMode(string(req.Mode))
	if err != nil {
		return render.Script{}, apperrors.ValidationField("mode", err.Error())
	}

	summary := ""
	if o.kb != nil {
		summary = o.kb.Summary()
	}
	pc := BuildPromptContext(req, summary)

	raw, err := o.gen.Generate(ctx, pc, req.Duration, mode)
	if err != nil {
		return render.Script{}, apperrors.WrapWithCode(err, apperrors.CodeUnavailable, "generate.script", "code generator failed")
	}

	src := StripFences(raw.Source())
	if strings.TrimSpace(src) == "" {
		o.log.Warn("generator returned empty script")
		return render.Script{}, ErrNoValidScript
	}

	script, res := render.Validate(render.NewScript(src))
	if !res.OK {
		o.log.Warn("generated script rejected", "reason", res.Reason, "missing", strings.Join(res.Missing, ","))
		return render.Script{}, &Rejection{Result: res, Source: src}
	}
	o.log.Debug("script generated", "bytes", len(src))
	return script, nil
}

// IsNoValidScript reports whether err means no usable script was produced.
func IsNoValidScript(err error) bool {
	return errors.Is(err, ErrNoValidScript)
}

const promptLabel = "Prompt: "

// BuildPromptContext assembles the text sent to the generator.
func BuildPromptContext(req Request, knowledge string) string {
	mode := req.Mode
	if mode == "" {
		mode = render.ModeBasic
	}
	var b strings.Builder
	b.WriteString(promptLabel + oneLine(req.Prompt) + "\n")
	fmt.Fprintf(&b, "Duration: %g minute(s)\n", req.Duration)
	fmt.Fprintf(&b, "Mode: %s\n", mode)
	if req.Width > 0 && req.Height > 0 {
		fmt.Fprintf(&b, "Resolution: %dx%d\n", req.Width, req.Height)
	}
	if req.FPS > 0 {
		fmt.Fprintf(&b, "Frame rate: %d fps\n", req.FPS)
	}
	if knowledge != "" {
		b.WriteString("\n" + strings.TrimSpace(knowledge) + "\n")
	}
	b.WriteString(scenePlan)
	b.WriteString(authoringRules)
	return b.String()
}

// PromptOf extracts the user prompt from a context built by
// BuildPromptContext.
func PromptOf(promptContext string) string {
	for _, line := range strings.Split(promptContext, "\n") {
		if rest, ok := strings.CutPrefix(line, promptLabel); ok {
			return rest
		}
	}
	return ""
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

const scenePlan = `
Scene plan:
- Main object: use a relevant shape for the concept.
- Add a ground plane if appropriate.
- Add lighting for realism.
- Animate at least one property (rotation, position, scale or color).
`

const authoringRules = `
Rules:
- Output only JavaScript, no markdown and no explanations.
- Use the global THREE (three.js r155); gsap and troika-three-text are also loaded.
- Create exactly one THREE.Scene, one camera and one THREE.WebGLRenderer({ preserveDrawingBuffer: true }).
- Size the renderer with renderer.setSize(window.innerWidth, window.innerHeight) and append renderer.domElement to document.body.
- Define window.renderFrame = function (frame) { ... } that updates the scene for that frame index and calls renderer.render(scene, camera).
- Derive all motion from the frame index only. Do not use requestAnimationFrame, timers, Date or unseeded randomness.
- Do not load network resources.
- Follow good design: composition, color, balance and contrast. Obey physics: gravity, inertia, collisions.
`

var fence = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \t]*\r?\n(.*?)\r?\n?```")

// StripFences returns the body of the first fenced code block in s, or s
// trimmed when it has none.
func StripFences(s string) string {
	if m := fence.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}
