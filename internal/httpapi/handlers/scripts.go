package handlers

import (
	"errors"
	"net/http"

	"scenecast/internal/generate"
	"scenecast/internal/httpkit"
	apperrors "scenecast/internal/pkg/errors"
	"scenecast/internal/render"
)

type GenerateScriptRequest struct {
	Prompt   string  `json:"prompt"`
	Duration float64 `json:"duration"`
	Mode     string  `json:"mode,omitempty"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	FPS      int     `json:"fps,omitempty"`
}

// GenerateScript returns a validated script for a prompt. It is an
// error-returning handler; a generator that produced nothing usable maps to
// NO_SCRIPT (422).
func (h *Handler) GenerateScript(w http.ResponseWriter, r *http.Request) error {
	var body GenerateScriptRequest
	if err := httpkit.DecodeJSON(r, &body); err != nil {
		return apperrors.Validation("invalid json body: " + err.Error())
	}
	def := h.defaults(render.Request{Duration: body.Duration, Width: body.Width, Height: body.Height, FPS: body.FPS})

	script, err := h.scripts.Script(r.Context(), generate.Request{
		Prompt:   body.Prompt,
		Duration: def.Duration,
		Mode:     render.Mode(body.Mode),
		Width:    def.Width,
		Height:   def.Height,
		FPS:      def.FPS,
	})
	if err != nil {
		var rej *generate.Rejection
		switch {
		case errors.As(err, &rej):
			return apperrors.New(apperrors.CodeNoScript, err.Error()).
				WithFields(map[string]any{"reason": rej.Result.Reason, "missing": rej.Result.Missing})
		case generate.IsNoValidScript(err):
			return apperrors.New(apperrors.CodeNoScript, err.Error())
		}
		return err
	}

	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"script": script.Source(),
		"bytes":  len(script.Source()),
	})
	return nil
}

type ValidateScriptRequest struct {
	Script string `json:"script"`
}

// ValidateScript runs the structural checks on submitted code. An invalid
// script is a normal 200 answer with ok=false.
func (h *Handler) ValidateScript(w http.ResponseWriter, r *http.Request) error {
	var body ValidateScriptRequest
	if err := httpkit.DecodeJSON(r, &body); err != nil {
		return apperrors.Validation("invalid json body: " + err.Error())
	}
	_, res := render.Validate(render.NewScript(body.Script))
	out := map[string]any{"ok": res.OK}
	if !res.OK {
		out["reason"] = res.Reason
		out["missing"] = res.Missing
	}
	httpkit.WriteJSON(w, http.StatusOK, out)
	return nil
}
